// mzpeak is a thin CLI around the library packages: a way to exercise
// convert, validate, and summarize end to end.
package main

import (
	"fmt"
	"os"

	"github.com/mzpeak/mzpeak/cmd/mzpeak/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
