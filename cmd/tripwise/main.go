// Command tripwise is a conversational travel planner.
package main

import (
	"os"

	"github.com/flynn-ai/tripwise/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
