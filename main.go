package main

import (
	"fmt"
	"os"

	"github.com/conneroisu/docserve/cmd"
	"github.com/conneroisu/docserve/internal/errors"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(errors.ExitCode(err))
	}
}
