// internal/console/output.go
package console

import "strings"

// Output receives console text. Print continues the current line,
// Println terminates it.
type Output interface {
	Print(s string)
	Println(s string)
}

// Buffer collects output as complete lines (HTTP console endpoint).
type Buffer struct {
	lines   []string
	partial strings.Builder
}

func (b *Buffer) Print(s string) {
	b.partial.WriteString(s)
}

func (b *Buffer) Println(s string) {
	b.partial.WriteString(s)
	b.lines = append(b.lines, b.partial.String())
	b.partial.Reset()
}

// Lines returns every line written so far, including an unterminated tail.
func (b *Buffer) Lines() []string {
	out := append([]string(nil), b.lines...)
	if b.partial.Len() > 0 {
		out = append(out, b.partial.String())
	}
	if out == nil {
		out = []string{}
	}
	return out
}
