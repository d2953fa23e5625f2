package main

import (
	"os"

	"github.com/joho/godotenv"

	"github.com/ThetaSpace/tradesphere-swap/internal/cli"
)

func main() {
	// Optional .env with TRADESPHERE_* variables and the signing key
	_ = godotenv.Load(".env")

	if err := cli.Execute(); err != nil {
		cli.PrintError(err)
		os.Exit(1)
	}
}
