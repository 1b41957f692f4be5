// Command reportd runs the stock report pipeline: the trigger resolver,
// the scheduled worker, and the HTTP API over run history.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
