package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"
)

// maxInputBytes bounds how much text a command reads from a file or stdin.
const maxInputBytes = 1 << 20

// readInput returns the text named by arg: a file path, or "-" for stdin.
func readInput(arg string) (string, error) {
	var r io.Reader
	if arg == "-" {
		r = os.Stdin
	} else {
		f, err := os.Open(arg)
		if err != nil {
			return "", fmt.Errorf("opening input: %w", err)
		}
		defer f.Close()
		r = f
	}
	data, err := io.ReadAll(io.LimitReader(r, maxInputBytes))
	if err != nil {
		return "", fmt.Errorf("reading input: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}
