package flasher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/piwi3910/esp32-flasher/internal/esptool"
	"github.com/piwi3910/esp32-flasher/internal/firmware"
	"github.com/piwi3910/esp32-flasher/internal/model"
	"github.com/piwi3910/esp32-flasher/internal/project"
	"github.com/piwi3910/esp32-flasher/internal/serialport"
)

func fakeTool(mode string) func(ctx context.Context, name string, args ...string) *exec.Cmd {
	return func(ctx context.Context, name string, args ...string) *exec.Cmd {
		cs := append([]string{"-test.run=TestHelperProcess", "--", name}, args...)
		cmd := exec.CommandContext(ctx, os.Args[0], cs...)
		cmd.Env = append(os.Environ(), "GO_WANT_HELPER_PROCESS=1", "FLASHER_HELPER_MODE="+mode)
		return cmd
	}
}

func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	switch os.Getenv("FLASHER_HELPER_MODE") {
	case "success":
		fmt.Println("esptool.py v4.7.0")
		fmt.Print("Writing at 0x00010000... (50 %)\rWriting at 0x00018000... (100 %)\r\n")
		fmt.Println("Hard resetting via RTS pin...")
		os.Exit(0)
	case "fail":
		fmt.Fprintln(os.Stderr, "A fatal error occurred: Failed to connect to ESP32")
		os.Exit(2)
	case "hang":
		fmt.Println("Connecting...")
		time.Sleep(30 * time.Second)
	}
	os.Exit(0)
}

func fixedProbe(version string) esptool.ProbeFunc {
	return func(ctx context.Context, path string) (string, error) { return version, nil }
}

func writeImage(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, data, 0644))
	return p
}

// testPlan writes four small valid images and an executable placeholder
// for the tool.
func testPlan(t *testing.T) model.FlashPlan {
	t.Helper()
	dir := t.TempDir()
	img := func(n int) []byte {
		b := make([]byte, n)
		b[0] = 0xE9
		return b
	}
	cfg := model.DefaultAppConfig()
	cfg.Port = "COM9"
	cfg.EsptoolPath = writeImage(t, dir, "esptool.exe", []byte("tool"))
	cfg.BootloaderPath = writeImage(t, dir, "bootloader.bin", img(64))
	table := firmware.EncodePartitionTable([]firmware.Partition{
		{Type: firmware.PartitionTypeApp, Subtype: 0x10, Offset: 0x10000, Size: 0x140000, Label: "app0"},
	})
	cfg.PartitionsPath = writeImage(t, dir, "partitions.bin", table)
	cfg.BootApp0Path = writeImage(t, dir, "boot_app0.bin", []byte{0xff})
	cfg.AppBinPath = writeImage(t, dir, "LoRaController.ino.bin", img(128))
	return model.NewFlashPlan(cfg)
}

type harness struct {
	f        *Flasher
	lines    []string
	progress []float64
}

func newHarness(t *testing.T, mode string) *harness {
	t.Helper()
	orig := serialport.LockDir
	serialport.LockDir = t.TempDir()
	t.Cleanup(func() { serialport.LockDir = orig })

	h := &harness{}
	h.f = &Flasher{
		Runner:      &esptool.Runner{Command: fakeTool(mode)},
		Probe:       fixedProbe("4.7.0"),
		HistoryPath: filepath.Join(t.TempDir(), "history.json"),
		TempDir:     t.TempDir(),
		Log:         func(l string) { h.lines = append(h.lines, l) },
		Progress:    func(p float64) { h.progress = append(h.progress, p) },
	}
	return h
}

func TestFlashSuccess(t *testing.T) {
	h := newHarness(t, "success")
	plan := testPlan(t)

	session, err := h.f.Flash(context.Background(), plan)
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeSuccess, session.Outcome)
	assert.Equal(t, 0, session.ExitCode)
	assert.Equal(t, "COM9", session.Port)
	require.Len(t, session.Images, 4)
	assert.Equal(t, "0x10000", session.Images[3].Offset)

	assert.Equal(t, []string{
		Separator,
		"Starting flash process...",
		"Port: COM9",
		"Bootloader: bootloader.bin",
		"Partitions: partitions.bin",
		"Boot App0: boot_app0.bin",
		"Application: LoRaController.ino.bin",
		Separator,
	}, h.lines[:8])
	assert.Contains(t, h.lines, "Hard resetting via RTS pin...")
	assert.Equal(t, "Flash completed successfully!", h.lines[len(h.lines)-1])
	assert.Equal(t, []float64{50, 100, 100}, h.progress)

	hist, err := project.LoadHistory(h.f.HistoryPath)
	require.NoError(t, err)
	require.Len(t, hist.Sessions, 1)
	assert.Equal(t, session.ID, hist.Sessions[0].ID)
}

func TestFlashFailure(t *testing.T) {
	h := newHarness(t, "fail")

	session, err := h.f.Flash(context.Background(), testPlan(t))
	var exitErr *esptool.ExitError
	require.True(t, errors.As(err, &exitErr))
	assert.Equal(t, 2, exitErr.Code)
	assert.Equal(t, model.OutcomeFailed, session.Outcome)
	assert.Equal(t, 2, session.ExitCode)
	assert.Equal(t, "Flash failed with return code: 2", h.lines[len(h.lines)-1])
	assert.Contains(t, session.LogTail, "A fatal error occurred: Failed to connect to ESP32")
}

func TestFlashCancel(t *testing.T) {
	h := newHarness(t, "hang")
	ctx, cancel := context.WithCancel(context.Background())
	h.f.Log = func(l string) {
		h.lines = append(h.lines, l)
		if l == "Connecting..." {
			cancel()
		}
	}

	session, err := h.f.Flash(ctx, testPlan(t))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, model.OutcomeCancelled, session.Outcome)
	assert.Equal(t, "Flash cancelled", h.lines[len(h.lines)-1])
}

func TestFlashValidationErrorIsNotLogged(t *testing.T) {
	h := newHarness(t, "success")
	plan := testPlan(t)
	plan.Port = ""

	session, err := h.f.Flash(context.Background(), plan)
	require.Error(t, err)
	assert.Equal(t, "Please select a COM port", err.Error())
	assert.Empty(t, session.ID)
	assert.Empty(t, h.lines)
}

func TestFlashMissingTool(t *testing.T) {
	h := newHarness(t, "success")
	plan := testPlan(t)
	plan.ToolPath = filepath.Join(t.TempDir(), "esptool.exe")

	_, err := h.f.Flash(context.Background(), plan)
	assert.ErrorIs(t, err, esptool.ErrToolNotFound)
	assert.True(t, strings.HasPrefix(err.Error(), "esptool.exe not found at:\n"))
}

func TestFlashBusyPort(t *testing.T) {
	h := newHarness(t, "success")
	held, err := serialport.Lock("COM9")
	require.NoError(t, err)
	defer held.Unlock()

	_, err = h.f.Flash(context.Background(), testPlan(t))
	assert.ErrorIs(t, err, serialport.ErrPortBusy)
	require.Len(t, h.lines, 1)
	assert.True(t, strings.HasPrefix(h.lines[0], "Error: "))
}

func TestPrepareDryRun(t *testing.T) {
	h := newHarness(t, "success")
	plan := testPlan(t)

	job, err := h.f.Prepare(context.Background(), plan)
	require.NoError(t, err)
	defer job.Close()

	assert.Equal(t, "4.7.0", job.Tool.Version)
	assert.Contains(t, job.Args, "write_flash")
	assert.Contains(t, job.CommandLine(), "--port COM9")
	assert.Equal(t, plan.Images, job.Plan.Images)
}

func TestPrepareUsesDashedArgsForNewTools(t *testing.T) {
	h := newHarness(t, "success")
	h.f.Probe = fixedProbe("5.0.2")

	job, err := h.f.Prepare(context.Background(), testPlan(t))
	require.NoError(t, err)
	defer job.Close()
	assert.Contains(t, job.Args, "write-flash")
}

func TestJobCloseRemovesWorkDir(t *testing.T) {
	h := newHarness(t, "success")
	job, err := h.f.Prepare(context.Background(), testPlan(t))
	require.NoError(t, err)

	dir := job.workDir
	require.DirExists(t, dir)
	require.NoError(t, job.Close())
	assert.NoDirExists(t, dir)
	assert.NoError(t, job.Close())
}
