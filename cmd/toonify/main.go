// Command toonify turns a picture into a song list and, optionally, a
// Spotify playlist. It runs as a CLI or as an HTTP service.
package main

import (
	"fmt"
	"os"

	"github.com/54b3r/toonify-go/cmd/toonify/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
