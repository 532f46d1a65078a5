// Package main provides the entry point for the amanscan CLI.
package main

import (
	"os"

	"github.com/Aman-CERP/amanscan/cmd/amanscan/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
