// Command scriptctl drives the persona script pipeline from the terminal.
//
// Usage:
//
//	scriptctl run --plan episode.yaml --out ./out
//	scriptctl parse raw_script.txt
//	scriptctl watch <session-id> --server http://localhost:8080
package main

import (
	"fmt"
	"os"

	"github.com/kapu/persona-script-go/cmd/scriptctl/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
