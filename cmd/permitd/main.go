// Command permitd ingests and enriches drilling permits from the state
// regulatory portal.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "permitd: %v\n", err)
		os.Exit(1)
	}
}
