// Command archivectl provides a CLI front-end over the archiveguard
// extraction and creation engine.
package main

import (
	"os"

	"github.com/onkernel/archiveguard/cmd/archivectl/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
