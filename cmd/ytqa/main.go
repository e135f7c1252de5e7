// Command ytqa indexes YouTube transcripts and answers questions about them.
// It provides a CLI interface (via Cobra) and an HTTP server that ingests
// transcripts in the background.
package main

import (
	"fmt"
	"os"

	"github.com/54b3r/ytqa-go/cmd/ytqa/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
