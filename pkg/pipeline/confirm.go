package pipeline

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// ErrCancelled is returned when the operator declines the overwrite prompt.
// The CLI maps it to a clean exit, not a failure.
var ErrCancelled = errors.New("build cancelled by user")

// Confirmer asks the operator a yes/no question. The pipeline uses it
// exactly once, before overwriting an existing output file.
type Confirmer interface {
	Confirm(prompt string) (bool, error)
}

// StdinConfirmer prompts on a terminal and reads the answer from stdin.
type StdinConfirmer struct {
	In  io.Reader
	Out io.Writer
}

// NewStdinConfirmer returns a confirmer wired to the process terminal.
func NewStdinConfirmer() *StdinConfirmer {
	return &StdinConfirmer{In: os.Stdin, Out: os.Stderr}
}

func (c *StdinConfirmer) Confirm(prompt string) (bool, error) {
	fmt.Fprintf(c.Out, "%s [y/N]: ", prompt)

	scanner := bufio.NewScanner(c.In)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return false, err
		}
		return false, nil // EOF counts as decline
	}

	answer := strings.ToLower(strings.TrimSpace(scanner.Text()))
	return answer == "y" || answer == "yes", nil
}
