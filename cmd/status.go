package cmd

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Davincible/toolbridge/internal/process"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show service status",
	Long:  `Display whether the service is running and where it listens.`,
	Run:   runStatus,
}

func runStatus(cmd *cobra.Command, _ []string) {
	procMgr := process.NewManager(baseDir, logger)
	cfg := cfgMgr.Get()

	running := procMgr.IsRunning()

	color.Blue("Status for %s:", AppName)
	fmt.Printf("  %-17s: %v\n", "Running", running)
	if running {
		fmt.Printf("  %-17s: %d\n", "PID", procMgr.ReadPID())
	}
	fmt.Printf("  %-17s: %s\n", "Endpoint", "http://"+cfg.Address())
	fmt.Printf("  %-17s: %s\n", "Default Provider", cfg.DefaultProvider)
	fmt.Printf("  %-17s: %d\n", "Providers", len(cfg.Providers))
	fmt.Printf("  %-17s: %s\n", "Config Path", cfgMgr.GetPath())
	fmt.Printf("  %-17s: v%s\n", "Version", Version)
}
