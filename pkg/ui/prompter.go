package ui

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"artsync/pkg/logger"
)

// Prompter asks the user how to proceed after an interrupted download or a
// storage fault.
type Prompter interface {
	// ContinueSubject reports whether the traversal of subject should go on
	// after an aborted download.
	ContinueSubject(ctx context.Context, subject string) bool
	// DiskFull is shown when a write fails for lack of space. It returns once
	// the user has acknowledged it.
	DiskFull(ctx context.Context, path string, err error)
}

// NewPrompter returns a TerminalPrompter when stdin is a terminal and batch
// is false, otherwise a BatchPrompter.
func NewPrompter(batch bool, log logger.Logger) Prompter {
	if !batch && term.IsTerminal(int(os.Stdin.Fd())) {
		return NewTerminalPrompter(os.Stdin, os.Stdout)
	}
	return &BatchPrompter{log: logger.Or(log)}
}

// TerminalPrompter reads answers from an interactive terminal
type TerminalPrompter struct {
	in  *bufio.Reader
	out io.Writer
}

func NewTerminalPrompter(in io.Reader, out io.Writer) *TerminalPrompter {
	return &TerminalPrompter{in: bufio.NewReader(in), out: out}
}

func (p *TerminalPrompter) ContinueSubject(ctx context.Context, subject string) bool {
	fmt.Fprintf(p.out, "%s %s [y/N] ", Orange("Download interrupted."), "Continue with "+subject+"?")
	answer, ok := p.readLine(ctx)
	if !ok {
		return false
	}
	answer = strings.ToLower(answer)
	return answer == "y" || answer == "yes"
}

func (p *TerminalPrompter) DiskFull(ctx context.Context, path string, err error) {
	fmt.Fprintf(p.out, "%s %s: %v\n", Red("No space left writing"), path, err)
	fmt.Fprint(p.out, "Free some space and press Enter to continue... ")
	p.readLine(ctx)
}

// readLine returns false when ctx ends or input is closed before a line
// arrives.
func (p *TerminalPrompter) readLine(ctx context.Context) (string, bool) {
	type line struct {
		s   string
		err error
	}
	ch := make(chan line, 1)
	go func() {
		s, err := p.in.ReadString('\n')
		ch <- line{strings.TrimSpace(s), err}
	}()
	select {
	case <-ctx.Done():
		fmt.Fprintln(p.out)
		return "", false
	case l := <-ch:
		if l.err != nil && l.s == "" {
			return "", false
		}
		return l.s, true
	}
}

// BatchPrompter never blocks: interrupted subjects stop and the batch goes on.
type BatchPrompter struct {
	log logger.Logger
}

func NewBatchPrompter(log logger.Logger) *BatchPrompter {
	return &BatchPrompter{log: logger.Or(log)}
}

func (p *BatchPrompter) ContinueSubject(_ context.Context, subject string) bool {
	p.log.WarnWithFields("download aborted, stopping subject", map[string]interface{}{
		"subject": subject,
	})
	return false
}

func (p *BatchPrompter) DiskFull(_ context.Context, path string, err error) {
	p.log.ErrorWithFields("no space left on device", map[string]interface{}{
		"path":  path,
		"error": err.Error(),
	})
}
