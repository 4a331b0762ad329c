package esptool

import (
	"fmt"
	"strconv"
	"strings"

	goversion "github.com/mcuadros/go-version"
	"github.com/mattn/go-shellwords"

	"github.com/piwi3910/esp32-flasher/internal/model"
)

// dashedSince is the first esptool release whose documented command and
// option names use dashes instead of underscores.
const dashedSince = "5.0"

// UsesDashedArgs reports whether version expects write-flash style names.
// Unknown versions get the underscore spelling, which every release accepts.
func UsesDashedArgs(version string) bool {
	if version == "" {
		return false
	}
	return goversion.Compare(version, dashedSince, ">=")
}

// BuildArgs assembles the esptool arguments for plan. Images are written in
// the plan's order at their slot offsets.
func BuildArgs(plan model.FlashPlan, toolVersion string) ([]string, error) {
	o := plan.Options
	dashed := UsesDashedArgs(toolVersion)
	name := func(s string) string {
		if dashed {
			return strings.ReplaceAll(s, "_", "-")
		}
		return s
	}

	args := []string{
		"--chip", o.Chip,
		"--port", plan.Port,
		"--baud", strconv.Itoa(o.Baud),
		"--before", name(o.Before),
		"--after", name(o.After),
	}

	if strings.TrimSpace(o.ExtraArgs) != "" {
		extra, err := shellwords.Parse(o.ExtraArgs)
		if err != nil {
			return nil, fmt.Errorf("invalid extra arguments %q: %w", o.ExtraArgs, err)
		}
		args = append(args, extra...)
	}

	args = append(args, name("write_flash"))
	if o.Compress {
		args = append(args, "-z")
	} else {
		args = append(args, "-u")
	}
	args = append(args,
		name("--flash_mode"), o.FlashMode,
		name("--flash_freq"), o.FlashFreq,
		name("--flash_size"), o.FlashSize,
	)
	for _, img := range plan.Images {
		args = append(args, img.Slot.OffsetHex(), img.Path)
	}
	return args, nil
}

// CommandLine renders a command for display, quoting arguments with spaces.
func CommandLine(path string, args []string) string {
	parts := make([]string, 0, len(args)+1)
	for _, a := range append([]string{path}, args...) {
		if a == "" || strings.ContainsAny(a, " \t\"'") {
			// Backslashes in Windows paths stay as they are.
			a = `"` + strings.ReplaceAll(a, `"`, `\"`) + `"`
		}
		parts = append(parts, a)
	}
	return strings.Join(parts, " ")
}
