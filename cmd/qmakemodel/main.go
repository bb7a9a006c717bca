package main

import (
	"os"

	"qmakemodel/internal/ui/cli"
)

func main() {
	os.Exit(cli.Run(os.Args[1:]))
}
