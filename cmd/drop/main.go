package main

import (
	"os"

	"thingdrop/cmd/drop/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
