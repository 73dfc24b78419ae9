package main

import (
	"os"

	"github.com/initializ/foundry/cli/cmd"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	cmd.SetVersionInfo(version, commit)
	os.Exit(cmd.Execute())
}
