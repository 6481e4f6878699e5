package main

import (
	"fmt"
	"os"

	"github.com/denniswebb/portfwd/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "portfwd: %v\n", err)
		os.Exit(1)
	}
}
