// Command opsctl is a small operator CLI for the filmtrack API.
//
//	export OPSCTL_TOKEN=$(opsctl login -u operator -p secret)
//	opsctl stock out mat-pe-granule 120 --reference shift-a
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
