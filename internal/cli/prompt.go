// Package cli provides line-based terminal prompts for the setup wizard.
package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"golang.org/x/term"
)

// Prompter asks questions on Out and reads answers from In.
type Prompter struct {
	In      io.Reader
	Out     io.Writer
	scanner *bufio.Scanner
}

func (p *Prompter) line() string {
	if p.scanner == nil {
		p.scanner = bufio.NewScanner(p.In)
	}
	if p.scanner.Scan() {
		return strings.TrimSpace(p.scanner.Text())
	}
	return ""
}

// Ask reads one line, returning def when the answer is blank.
func (p *Prompter) Ask(question, def string) string {
	if def != "" {
		_, _ = fmt.Fprintf(p.Out, "%s [%s]: ", question, def)
	} else {
		_, _ = fmt.Fprintf(p.Out, "%s: ", question)
	}
	if ans := p.line(); ans != "" {
		return ans
	}
	return def
}

// AskSecret reads a line without echo when In is a terminal. A blank answer
// keeps def, which is never printed.
func (p *Prompter) AskSecret(question, def string) string {
	if def != "" {
		_, _ = fmt.Fprintf(p.Out, "%s [keep current]: ", question)
	} else {
		_, _ = fmt.Fprintf(p.Out, "%s: ", question)
	}

	var ans string
	if f, ok := p.In.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		b, err := term.ReadPassword(int(f.Fd()))
		_, _ = fmt.Fprintln(p.Out)
		if err == nil {
			ans = strings.TrimSpace(string(b))
		}
	} else {
		ans = p.line()
	}
	if ans == "" {
		return def
	}
	return ans
}

// Choose prints numbered options and returns the selected one.
func (p *Prompter) Choose(question string, options []string, defaultIdx int) string {
	_, _ = fmt.Fprintln(p.Out, question)
	for i, opt := range options {
		marker := "  "
		if i == defaultIdx {
			marker = "> "
		}
		_, _ = fmt.Fprintf(p.Out, "%s%d) %s\n", marker, i+1, opt)
	}
	for {
		n, err := strconv.Atoi(p.Ask("Choice", strconv.Itoa(defaultIdx+1)))
		if err == nil && n >= 1 && n <= len(options) {
			return options[n-1]
		}
		_, _ = fmt.Fprintf(p.Out, "  Please enter a number between 1 and %d.\n", len(options))
	}
}

// Confirm asks a yes/no question.
func (p *Prompter) Confirm(question string, defaultYes bool) bool {
	hint := "y/N"
	if defaultYes {
		hint = "Y/n"
	}
	ans := p.Ask(fmt.Sprintf("%s [%s]", question, hint), "")
	if ans == "" {
		return defaultYes
	}
	return strings.HasPrefix(strings.ToLower(ans), "y")
}
