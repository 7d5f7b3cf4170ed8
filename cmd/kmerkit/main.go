package main

import (
	"context"
	"fmt"
	"os"

	"github.com/eaton-lab/kmpy/pkg/cli"
)

func main() {
	ctx := context.Background()

	code, err := cli.Run(ctx, os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, "kmerkit:", err)
	}
	os.Exit(code)
}
