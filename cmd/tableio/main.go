// Command tableio is the command-line front end for read and write nodes.
package main

import (
	"os"

	"github.com/JonMunkholm/tableio/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
