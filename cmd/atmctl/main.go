package main

import (
	"fmt"
	"os"

	"lnurl-atm-gateway/cmd/atmctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}
