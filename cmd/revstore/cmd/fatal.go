package cmd

import (
	"fmt"
	"io"
	"log"
	"os"
)

var (
	// globals used to patch over calls to os.Exit() during test

	osExit = os.Exit

	// infoLogger wraps informative messages to os.Stderr without cluttering the expected output
	infoLogger = log.New(os.Stderr, "", 0)
)

// wrapError gives context to a failed step of a command
func wrapError(msg string, err error) error {
	return fmt.Errorf("%s: %w", msg, err)
}

func out(w io.Writer, format string, args ...interface{}) {
	_, _ = fmt.Fprintf(w, format, args...)
}
