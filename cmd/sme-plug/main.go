package main

import (
	"errors"
	"fmt"
	"os"
)

// Exit codes.
const (
	exitOK      = 0
	exitBlocked = 1
	exitError   = 2
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		if errors.Is(err, errBlocked) {
			os.Exit(exitBlocked)
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(exitError)
	}
	os.Exit(exitOK)
}
