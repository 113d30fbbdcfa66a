// Package console prints workflow progress with a nesting prefix, so output
// of a lab command re-invoked by another lab command stays readable.
package console

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
)

// EnvIndent carries the indent level to re-invoked lab commands.
const EnvIndent = "LAB_PRINT_INDENT"

type Printer struct {
	mu     sync.Mutex
	out    io.Writer
	indent int
}

func New(out io.Writer, indent int) *Printer {
	if indent < 0 {
		indent = 0
	}
	return &Printer{out: out, indent: indent}
}

// FromEnv builds a stdout printer with the indent inherited from the parent
// lab command.
func FromEnv() *Printer {
	return New(os.Stdout, IndentFromEnv())
}

// IndentFromEnv reads the inherited indent. Malformed values count as zero.
func IndentFromEnv() int {
	indent, _ := strconv.Atoi(strings.TrimSpace(os.Getenv(EnvIndent)))
	return indent
}

func (p *Printer) Indent() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.indent
}

// Nest raises the indent by one until the returned func is called.
func (p *Printer) Nest() func() {
	p.mu.Lock()
	p.indent++
	p.mu.Unlock()
	return func() {
		p.mu.Lock()
		p.indent--
		p.mu.Unlock()
	}
}

func (p *Printer) Println(args ...any) {
	p.write(fmt.Sprintln(args...))
}

func (p *Printer) Printf(format string, args ...any) {
	p.write(fmt.Sprintf(format, args...))
}

// File echoes the contents of path line by line.
func (p *Printer) File(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	reader := bufio.NewReader(f)
	for {
		line, err := reader.ReadString('\n')
		if line != "" {
			p.write(line)
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func (p *Printer) write(text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.indent > 0 {
		text = prefixLines(text, Prefix(p.indent))
	}
	_, _ = io.WriteString(p.out, text)
}

// Prefix is the marker put in front of every line at the given indent.
func Prefix(indent int) string {
	if indent <= 0 {
		return ""
	}
	return strings.Repeat("=", 4*indent-2) + "> "
}

// prefixLines prefixes every non-blank line, leaving blank lines alone.
func prefixLines(text, prefix string) string {
	lines := strings.SplitAfter(text, "\n")
	var builder strings.Builder
	for _, line := range lines {
		if strings.TrimSpace(line) != "" {
			builder.WriteString(prefix)
		}
		builder.WriteString(line)
	}
	return builder.String()
}
