// Command ragbot is the entry point for the document chatbot.
// It provides a CLI (via Cobra) for indexing PDFs and asking questions, and
// an HTTP server for interactive use.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/ragbot/ragbot-go/cmd/ragbot/commands"
)

func main() {
	// A .env in the working directory is a convenience for local runs;
	// its absence is not an error. Real env vars always win.
	_ = godotenv.Load()

	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
