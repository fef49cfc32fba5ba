package main

import (
	"errors"
	"fmt"
	"io"
	"os"
)

// #region main
func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.Execute()
	if err == nil {
		return 0
	}
	fmt.Fprintf(stderr, "error: %v\n", err)
	return exitCode(err)
}

// #endregion main

// #region exit-codes
var (
	errVerdictFailed = errors.New("snapshot failed policy guard")
	errReplayFailed  = errors.New("replay had failing cases")
)

type usageError struct{ err error }

func (u usageError) Error() string { return u.err.Error() }
func (u usageError) Unwrap() error { return u.err }

func exitCode(err error) int {
	var ue usageError
	switch {
	case errors.As(err, &ue):
		return 2
	case errors.Is(err, errVerdictFailed):
		return 3
	}
	return 1
}

// #endregion exit-codes
