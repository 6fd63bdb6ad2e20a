package main

import (
	"os"

	"github.com/franksops/gonewer/cmd/gnewer/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
