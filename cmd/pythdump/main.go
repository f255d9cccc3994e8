package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"pythclient/internal/cli"
)

func main() {
	// pick up PYTHDUMP_* variables from a .env file if there is one
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Warning: could not load .env: %v\n", err)
	}

	cli.Execute()
}
