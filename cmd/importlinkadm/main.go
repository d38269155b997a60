package main

import (
	"context"
	"fmt"
	"os"

	"github.com/lherron/importlink/internal/cli"
)

func main() {
	if err := cli.ExecuteAdmin(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(cli.ExitCode(err))
	}
}
