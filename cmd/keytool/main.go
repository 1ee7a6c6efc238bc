package main

import (
	"os"

	"zkconsent/cmd/keytool/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
