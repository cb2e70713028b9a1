package main

import (
	"os"

	"github.com/funvibe/oxython/pkg/cli"
)

func main() {
	os.Exit(cli.Run())
}
