package main

import (
	"fmt"
	"os"

	"github.com/ayo6706/payout-settlement/internal/app"
)

func main() {
	if err := app.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "payout-settlement: %v\n", err)
		os.Exit(1)
	}
}
