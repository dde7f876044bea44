package main

import (
	"errors"
	"fmt"
	"os"
)

// Exit codes for different failure modes
const (
	ExitSuccess        = 0 // Every call succeeded
	ExitPartialFailure = 1 // The run finished but some calls failed
	ExitError          = 2 // Configuration or runtime error
)

// PartialFailureError indicates that the run completed, but one or more
// generate or evaluate calls failed.
type PartialFailureError struct {
	Message string
}

func (e *PartialFailureError) Error() string {
	return e.Message
}

func main() {
	if err := execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var partial *PartialFailureError
	if errors.As(err, &partial) {
		return ExitPartialFailure
	}

	// All other errors are configuration/runtime errors
	return ExitError
}
