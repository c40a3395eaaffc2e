package bettertest

import (
	"os"

	"golang.org/x/term"
)

// TerminalState remembers the input mode of a terminal so it can be put back
// after the toolchain processes or a crash leave it without echo.
type TerminalState struct {
	fd    int
	state *term.State
}

// SaveTerminal captures the state of f. It returns nil when f is not a terminal.
func SaveTerminal(f *os.File) *TerminalState {
	fd := int(f.Fd())
	if !term.IsTerminal(fd) {
		return nil
	}
	state, err := term.GetState(fd)
	if err != nil {
		return nil
	}
	return &TerminalState{fd: fd, state: state}
}

// Restore puts the terminal back into the saved state. It is a no-op on nil.
func (t *TerminalState) Restore() error {
	if t == nil || t.state == nil {
		return nil
	}
	return term.Restore(t.fd, t.state)
}
