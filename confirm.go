package models

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// newPromptConfirm returns a ConfirmFunc that asks on out and reads a y/N
// answer from in. With yes set every prompt is approved without asking.
// When in is a non-interactive *os.File the prompt is shown and denied, so
// unattended runs never delete anything without --yes.
func newPromptConfirm(in io.Reader, out io.Writer, yes bool) ConfirmFunc {
	if yes {
		return AlwaysConfirm
	}
	if f, ok := in.(*os.File); ok && !isTerminal(f) {
		return func(prompt string, _ Impact) bool {
			fmt.Fprintf(out, "%s [y/N] (non-interactive, use --yes)\n", prompt)
			return false
		}
	}

	// One reader for every prompt of a command, so buffered answers to
	// later prompts are not lost.
	reader := bufio.NewReader(in)
	return func(prompt string, _ Impact) bool {
		fmt.Fprintf(out, "%s [y/N] ", prompt)
		response, err := reader.ReadString('\n')
		if err != nil && response == "" {
			fmt.Fprintln(out)
			return false
		}
		response = strings.ToLower(strings.TrimSpace(response))
		return response == "y" || response == "yes"
	}
}
