// Package esptool locates, checks and drives the external esptool utility.
// The chip protocol lives entirely inside esptool; this package only
// assembles its command line and relays its output.
package esptool

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"time"
)

// ProbeTimeout bounds the "--version" check.
const ProbeTimeout = 2 * time.Second

// execCommand is replaced in tests.
var execCommand = exec.CommandContext

// Tool is a resolved esptool executable.
type Tool struct {
	Path     string // absolute path, or a bare command name resolved via PATH
	FromPATH bool
	Version  string // as reported by --version, empty if unknown
}

// ToolFromConfig interprets a stored esptool_path. A bare command name
// (no directory part) means the tool is looked up on PATH.
func ToolFromConfig(path string) (Tool, bool) {
	if path == "" {
		return Tool{}, false
	}
	if filepath.Base(path) == path && filepath.Dir(path) == "." {
		return Tool{Path: path, FromPATH: true}, true
	}
	return Tool{Path: path}, true
}

// Display returns the text shown next to the tool selector.
func (t Tool) Display() string {
	switch {
	case t.Path == "":
		return "Not found"
	case t.FromPATH:
		return t.Path + " (from PATH)"
	default:
		return filepath.Base(t.Path)
	}
}

var versionRe = regexp.MustCompile(`v?(\d+\.\d+(?:\.\d+)?(?:[-.]?(?:dev|rc|beta|alpha)\d*)?)`)

// ParseVersion extracts the version number from esptool's --version output,
// e.g. "esptool.py v4.7.0" or "esptool v5.0.2".
func ParseVersion(output string) string {
	m := versionRe.FindStringSubmatch(output)
	if m == nil {
		return ""
	}
	return m[1]
}

// Probe runs "<path> --version" and returns the parsed version. A non-zero
// exit or a timeout is an error.
func Probe(ctx context.Context, path string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, ProbeTimeout)
	defer cancel()

	out, err := execCommand(ctx, path, "--version").CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("probe %s: %w", path, err)
	}
	return ParseVersion(string(out)), nil
}

// ErrToolNotFound is wrapped by CheckTool failures.
var ErrToolNotFound = errors.New("esptool not found")

// ToolError carries the user-facing explanation of a tool problem.
type ToolError struct {
	Message string
	Err     error
}

func (e *ToolError) Error() string { return e.Message }

func (e *ToolError) Unwrap() error { return ErrToolNotFound }

// ProbeFunc reports the version of the tool at path.
type ProbeFunc func(ctx context.Context, path string) (string, error)

// CheckTool verifies that tool can be started right before flashing. Tools
// on PATH are re-probed; tools given by location must exist on disk. The
// returned Tool carries the detected version when a probe was run.
func CheckTool(ctx context.Context, tool Tool, probe ProbeFunc) (Tool, error) {
	if probe == nil {
		probe = Probe
	}
	if tool.FromPATH {
		v, err := probe(ctx, tool.Path)
		if err != nil {
			return tool, &ToolError{
				Message: tool.Path + " not found in PATH. Please install it with: pip install esptool",
				Err:     err,
			}
		}
		tool.Version = v
		return tool, nil
	}
	info, err := os.Stat(tool.Path)
	if err != nil || info.IsDir() {
		return tool, &ToolError{
			Message: fmt.Sprintf("%s not found at:\n%s\n\nPlease select the correct path.", filepath.Base(tool.Path), tool.Path),
			Err:     err,
		}
	}
	if tool.Version == "" {
		if v, err := probe(ctx, tool.Path); err == nil {
			tool.Version = v
		}
	}
	return tool, nil
}
