// Package flasher runs one complete flash: it validates the plan, checks the
// tool, inspects the images, takes the port lock, drives esptool and
// records the session in the history. The GUI and the command-line flasher
// both go through it so they log the same messages.
package flasher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/golang/glog"

	"github.com/piwi3910/esp32-flasher/internal/esptool"
	"github.com/piwi3910/esp32-flasher/internal/firmware"
	"github.com/piwi3910/esp32-flasher/internal/model"
	"github.com/piwi3910/esp32-flasher/internal/project"
	"github.com/piwi3910/esp32-flasher/internal/serialport"
)

// Separator frames the start and end of a flash in the status log.
var Separator = strings.Repeat("=", 60)

// maxCapturedLines bounds the tool output kept in memory for the history.
const maxCapturedLines = 200

// Flasher holds the collaborators of a flash run. The zero value works but
// logs nowhere and keeps no history.
type Flasher struct {
	Runner *esptool.Runner
	// Probe reads the tool version; nil uses esptool.Probe.
	Probe esptool.ProbeFunc
	// HistoryPath is the history file sessions are appended to. Empty
	// disables recording.
	HistoryPath string
	// TempDir is the parent of the directory used for converted images.
	TempDir string
	// Log receives the status log lines.
	Log func(line string)
	// Progress receives the write percentage parsed from the tool output.
	Progress func(pct float64)
}

// Job is a validated, ready-to-run flash. Close removes converted images.
type Job struct {
	Plan   model.FlashPlan // images point at the files handed to the tool
	Source model.FlashPlan // images as selected by the user
	Tool   esptool.Tool
	Args   []string
	Report firmware.Report

	workDir string
}

// CommandLine renders the tool invocation for display.
func (j *Job) CommandLine() string {
	return esptool.CommandLine(j.Tool.Path, j.Args)
}

// Close removes the files created for the job.
func (j *Job) Close() error {
	if j == nil || j.workDir == "" {
		return nil
	}
	err := os.RemoveAll(j.workDir)
	j.workDir = ""
	return err
}

// Prepare validates plan and builds the tool command without touching the
// serial port. Validation and tool errors are returned unchanged so callers
// can show their messages as they are.
func (f *Flasher) Prepare(ctx context.Context, plan model.FlashPlan) (*Job, error) {
	if err := plan.Validate(); err != nil {
		return nil, err
	}

	tool, _ := esptool.ToolFromConfig(plan.ToolPath)
	tool, err := esptool.CheckTool(ctx, tool, f.Probe)
	if err != nil {
		return nil, err
	}

	report, err := firmware.Inspect(plan)
	if err != nil {
		return nil, err
	}

	job := &Job{Source: plan, Tool: tool, Report: report}
	workDir, err := os.MkdirTemp(f.TempDir, "esp32-flasher-")
	if err != nil {
		return nil, fmt.Errorf("failed to create work directory: %w", err)
	}
	job.workDir = workDir

	prepared, created, err := firmware.PrepareImages(plan, workDir)
	if err != nil {
		job.Close()
		return nil, err
	}
	for _, p := range created {
		glog.V(1).Infof("converted image written to %s", p)
	}
	job.Plan = prepared

	job.Args, err = esptool.BuildArgs(prepared, tool.Version)
	if err != nil {
		job.Close()
		return nil, err
	}
	return job, nil
}

// Flash prepares and runs plan. The returned session is the history record
// of the run; it is zero when the flash never started. A non-nil error is
// a validation or tool problem, a busy port, a failed run (*esptool.ExitError)
// or a cancellation.
func (f *Flasher) Flash(ctx context.Context, plan model.FlashPlan) (model.FlashSession, error) {
	job, err := f.Prepare(ctx, plan)
	if err != nil {
		var verr *model.ValidationError
		var terr *esptool.ToolError
		if !errors.As(err, &verr) && !errors.As(err, &terr) {
			f.logf("Error: %v", err)
		}
		return model.FlashSession{}, err
	}
	defer job.Close()

	lock, err := serialport.Lock(plan.Port)
	if err != nil {
		f.logf("Error: %v", err)
		return model.FlashSession{}, err
	}
	defer lock.Unlock()

	return f.run(ctx, job)
}

func (f *Flasher) run(ctx context.Context, job *Job) (model.FlashSession, error) {
	src := job.Source
	session := model.NewFlashSession(src)
	session.Tool = job.Tool.Path
	session.Images = job.Report.Records()

	for _, w := range job.Report.Warnings {
		f.logf("Warning: %s", w)
	}
	f.logf("%s", Separator)
	f.logf("Starting flash process...")
	f.logf("Port: %s", src.Port)
	for _, img := range src.Images {
		f.logf("%s: %s", img.Slot.Kind, filepath.Base(img.Path))
	}
	f.logf("%s", Separator)
	glog.Infof("flash session %s: %s", session.ShortID(), job.CommandLine())

	var captured []string
	onLine := func(line string) {
		if pct, ok := esptool.ParseProgress(line); ok && f.Progress != nil {
			f.Progress(pct)
		}
		captured = append(captured, line)
		if len(captured) > maxCapturedLines {
			captured = captured[len(captured)-maxCapturedLines:]
		}
		f.logf("%s", line)
	}

	runner := f.Runner
	if runner == nil {
		runner = &esptool.Runner{}
	}
	code, err := runner.Run(ctx, job.Tool, job.Args, onLine)

	var exitErr *esptool.ExitError
	switch {
	case err == nil:
		session.Finish(model.OutcomeSuccess, code, nil, captured)
		if f.Progress != nil {
			f.Progress(100)
		}
		f.logf("%s", Separator)
		f.logf("Flash completed successfully!")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		session.Finish(model.OutcomeCancelled, code, err, captured)
		f.logf("%s", Separator)
		f.logf("Flash cancelled")
	case errors.As(err, &exitErr):
		session.Finish(model.OutcomeFailed, exitErr.Code, err, captured)
		f.logf("%s", Separator)
		f.logf("Flash failed with return code: %d", exitErr.Code)
	default:
		session.Finish(model.OutcomeError, code, err, captured)
		f.logf("Error: %v", err)
	}

	if f.HistoryPath != "" {
		if herr := project.RecordSession(f.HistoryPath, session); herr != nil {
			glog.Warningf("could not record session %s: %v", session.ShortID(), herr)
			f.logf("Warning: Could not save history: %v", herr)
		}
	}
	return session, err
}

func (f *Flasher) logf(format string, args ...interface{}) {
	if f.Log != nil {
		f.Log(fmt.Sprintf(format, args...))
	}
}
