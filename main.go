package main

import "github.com/Davincible/toolbridge/cmd"

func main() {
	cmd.Execute()
}
