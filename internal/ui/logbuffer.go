package ui

import (
	"strings"

	"github.com/piwi3910/esp32-flasher/internal/esptool"
)

const defaultMaxLines = 2000

// LogBuffer holds the lines shown in the status log. It keeps at most
// maxLines lines, and a progress redraw replaces the progress line directly
// before it instead of adding a new one. When full, the oldest tenth is
// dropped at once so the view is rebuilt rarely.
type LogBuffer struct {
	lines    []string
	maxLines int
}

// NewLogBuffer creates a LogBuffer with the default limit.
func NewLogBuffer() *LogBuffer {
	return &LogBuffer{maxLines: defaultMaxLines}
}

// Append adds a line. It returns true when the last line was replaced
// rather than a new one added.
func (b *LogBuffer) Append(line string) bool {
	if n := len(b.lines); n > 0 && esptool.IsProgressLine(line) && esptool.IsProgressLine(b.lines[n-1]) {
		b.lines[n-1] = line
		return true
	}
	b.lines = append(b.lines, line)
	if len(b.lines) > b.maxLines {
		keep := b.maxLines - b.maxLines/10
		b.lines = append([]string(nil), b.lines[len(b.lines)-keep:]...)
	}
	return false
}

// Lines returns a copy of the buffered lines.
func (b *LogBuffer) Lines() []string {
	cp := make([]string, len(b.lines))
	copy(cp, b.lines)
	return cp
}

// Len returns the number of buffered lines.
func (b *LogBuffer) Len() int {
	return len(b.lines)
}

// Text joins the lines for display.
func (b *LogBuffer) Text() string {
	return strings.Join(b.lines, "\n")
}

// Clear removes all lines.
func (b *LogBuffer) Clear() {
	b.lines = nil
}
