package main

import (
	"os"

	"figurineForge/cli"
)

func main() {
	os.Exit(cli.Execute())
}
