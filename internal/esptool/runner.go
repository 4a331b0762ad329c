package esptool

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/golang/glog"
)

// waitDelay bounds how long Wait blocks on the output pipe after the
// process has been killed.
const waitDelay = 2 * time.Second

// ExitError reports a tool run that finished with a non-zero exit code.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("esptool exited with code %d", e.Code)
}

// LineFunc receives each output line of the tool, with surrounding
// whitespace removed. Empty lines are not delivered.
type LineFunc func(line string)

// Runner starts esptool processes.
type Runner struct {
	// Command builds the process; nil means exec.CommandContext.
	Command func(ctx context.Context, name string, args ...string) *exec.Cmd
}

// Run starts the tool, streams its merged stdout/stderr to onLine and
// waits for it to exit. It returns the exit code; a non-zero code comes
// with an *ExitError. Cancelling ctx kills the process and returns ctx.Err().
func (r *Runner) Run(ctx context.Context, tool Tool, args []string, onLine LineFunc) (int, error) {
	command := r.Command
	if command == nil {
		command = execCommand
	}
	cmd := command(ctx, tool.Path, args...)
	cmd.WaitDelay = waitDelay

	out, err := cmd.StdoutPipe()
	if err != nil {
		return -1, fmt.Errorf("failed to attach to esptool output: %w", err)
	}
	cmd.Stderr = cmd.Stdout

	glog.Infof("running %s", CommandLine(tool.Path, args))
	if err := cmd.Start(); err != nil {
		return -1, fmt.Errorf("failed to start %s: %w", tool.Path, err)
	}

	scanner := bufio.NewScanner(out)
	scanner.Buffer(make([]byte, 0, 4096), 1024*1024)
	scanner.Split(ScanOutputLines)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if onLine != nil {
			onLine(line)
		}
	}
	scanErr := scanner.Err()
	if scanErr != nil {
		// Keep the pipe empty so the tool does not block on write.
		io.Copy(io.Discard, out)
	}

	waitErr := cmd.Wait()
	if ctx.Err() != nil {
		return -1, ctx.Err()
	}
	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			code := exitErr.ExitCode()
			glog.Warningf("%s exited with code %d", tool.Path, code)
			return code, &ExitError{Code: code}
		}
		return -1, fmt.Errorf("esptool did not finish cleanly: %w", waitErr)
	}
	if scanErr != nil {
		return 0, fmt.Errorf("reading esptool output: %w", scanErr)
	}
	return 0, nil
}

// ScanOutputLines is a bufio.SplitFunc that ends lines at "\n", "\r\n" or a
// lone "\r". esptool redraws its progress line with carriage returns, so
// each redraw becomes its own line.
func ScanOutputLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		if data[i] == '\n' {
			return i + 1, data[:i], nil
		}
		if i+1 < len(data) {
			if data[i+1] == '\n' {
				return i + 2, data[:i], nil
			}
			return i + 1, data[:i], nil
		}
		if atEOF {
			return i + 1, data[:i], nil
		}
		// A "\r" at the end of the buffer may be the start of "\r\n".
		return 0, nil, nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

var progressRe = regexp.MustCompile(`^Writing at 0x[0-9a-fA-F]+.*?(\d+(?:\.\d+)?)\s*%`)

// ParseProgress extracts the percentage from an esptool "Writing at" line.
func ParseProgress(line string) (float64, bool) {
	m := progressRe.FindStringSubmatch(line)
	if m == nil {
		return 0, false
	}
	pct, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return pct, true
}

// IsProgressLine reports whether line is a progress redraw.
func IsProgressLine(line string) bool {
	_, ok := ParseProgress(line)
	return ok
}
