package ui

import (
	"fmt"
	"testing"
)

func TestNewLogBuffer(t *testing.T) {
	b := NewLogBuffer()
	if b.maxLines != defaultMaxLines {
		t.Errorf("expected maxLines %d, got %d", defaultMaxLines, b.maxLines)
	}
	if b.Len() != 0 {
		t.Error("new buffer should be empty")
	}
	if b.Text() != "" {
		t.Errorf("expected empty text, got %q", b.Text())
	}
}

func TestAppendKeepsOrder(t *testing.T) {
	b := NewLogBuffer()
	b.Append("Starting flash process...")
	b.Append("Port: COM3")

	if got := b.Text(); got != "Starting flash process...\nPort: COM3" {
		t.Errorf("unexpected text %q", got)
	}
}

func TestProgressLinesCollapse(t *testing.T) {
	b := NewLogBuffer()
	b.Append("Compressed 812345 bytes to 512000...")
	if b.Append("Writing at 0x00010000... (3 %)") {
		t.Error("first progress line should be added, not replace")
	}
	if !b.Append("Writing at 0x00014000... (10 %)") {
		t.Error("second progress line should replace the first")
	}
	b.Append("Writing at 0x00018000... (100 %)")
	b.Append("Wrote 812345 bytes")

	lines := b.Lines()
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d: %v", len(lines), lines)
	}
	if lines[1] != "Writing at 0x00018000... (100 %)" {
		t.Errorf("expected last progress line to survive, got %q", lines[1])
	}

	// A new run starts a new progress line after other output.
	b.Append("Writing at 0x00001000... (50 %)")
	if b.Len() != 4 {
		t.Errorf("expected 4 lines, got %d", b.Len())
	}
}

func TestMaxLines(t *testing.T) {
	b := &LogBuffer{maxLines: 10}
	for i := 0; i < 11; i++ {
		b.Append(fmt.Sprintf("line %d", i))
	}
	lines := b.Lines()
	if len(lines) != 9 {
		t.Fatalf("expected the oldest tenth dropped, got %d lines", len(lines))
	}
	if lines[0] != "line 2" || lines[8] != "line 10" {
		t.Errorf("expected oldest lines dropped, got %v", lines)
	}

	b.Append("line 11")
	if b.Len() != 10 {
		t.Errorf("expected 10 lines below the limit, got %d", b.Len())
	}
}

func TestLinesIsACopy(t *testing.T) {
	b := NewLogBuffer()
	b.Append("a")
	lines := b.Lines()
	lines[0] = "changed"
	if b.Lines()[0] != "a" {
		t.Error("Lines must not expose the internal slice")
	}
}

func TestClear(t *testing.T) {
	b := NewLogBuffer()
	b.Append("a")
	b.Append("b")
	b.Clear()
	if b.Len() != 0 {
		t.Errorf("expected empty buffer after Clear, got %d lines", b.Len())
	}
}
