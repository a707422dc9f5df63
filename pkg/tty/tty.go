// Package tty provides terminal-detection helpers shared by the console package.
package tty

import (
	"os"

	"github.com/mattn/go-isatty"
)

// IsStdoutTerminal reports whether stdout is attached to an interactive terminal.
func IsStdoutTerminal() bool {
	return isatty.IsTerminal(os.Stdout.Fd())
}

// IsStderrTerminal reports whether stderr is attached to an interactive terminal.
func IsStderrTerminal() bool {
	return isatty.IsTerminal(os.Stderr.Fd())
}
