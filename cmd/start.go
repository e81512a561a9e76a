package cmd

import (
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Davincible/toolbridge/internal/logging"
	"github.com/Davincible/toolbridge/internal/process"
	"github.com/Davincible/toolbridge/internal/server"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the service",
	Long:  `Start the chat completions service in the foreground.`,
	RunE:  runStart,
}

func runStart(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	level, err := flagLevel(cmd, cfg.LogLevel)
	if err != nil {
		return err
	}
	logger = logging.New(os.Stderr, level)

	procMgr := process.NewManager(baseDir, logger)
	if procMgr.IsRunning() {
		color.Yellow("%s is already running (pid %d)", AppName, procMgr.ReadPID())
		return nil
	}

	srv, err := server.New(cfg, AppName, Version, logger)
	if err != nil {
		return err
	}

	color.Green("Starting %s v%s on http://%s", AppName, Version, cfg.Address())

	if err := procMgr.WritePID(); err != nil {
		return err
	}
	defer procMgr.CleanupPID()

	return srv.Start(cmd.Context())
}
