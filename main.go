package main

import (
	"errors"
	"fmt"
	"os"

	"swiftget/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		var exitErr *cmd.ExitError
		if errors.As(err, &exitErr) {
			if exitErr.Code != 0 {
				fmt.Fprintln(os.Stderr, exitErr.Error())
			}
			os.Exit(exitErr.Code)
		}
		// Any error reaching here without an ExitError wrapper originates in
		// cobra itself (bad flag, wrong arg count), which is a misuse error.
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
}
