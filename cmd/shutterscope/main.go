// shutterscope CLI: inspect a shutterscope results server from the terminal
//
// Usage:
//
//	shutterscope login --server http://localhost:8080 --username admin
//	shutterscope stats
//	shutterscope stats --output json
//	shutterscope stats --chart codes.png
//	shutterscope stats --interactive
//	shutterscope results list --limit 20
//	shutterscope import results.jsonl
package main

import (
	"fmt"
	"os"

	"github.com/shutterscope/shutterscope/cmd/shutterscope/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
