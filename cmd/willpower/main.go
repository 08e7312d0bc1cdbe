// Package main is the single-binary entrypoint for willpower.
package main

import "github.com/willpower-app/willpower/internal/cli"

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	cli.Execute(version)
}
