package main

import (
	"os"

	"github.com/thiesmoeller/wrc-coach-sub001/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
