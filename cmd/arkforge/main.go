package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/arkforge/arkforge/pkg/cli"
)

const version = "1.0.0"

func main() {
	// Workspace-local overrides such as ARKFORGE_PLUGIN_TIMEOUT may
	// live in a .env file; absence is not an error.
	_ = godotenv.Load()

	if err := cli.Execute(version); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
