package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/piwi3910/esp32-flasher/internal/esptool"
	"github.com/piwi3910/esp32-flasher/internal/firmware"
	"github.com/piwi3910/esp32-flasher/internal/model"
	"github.com/piwi3910/esp32-flasher/internal/project"
	"github.com/piwi3910/esp32-flasher/internal/serialport"
)

func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	fmt.Println("Connecting....")
	if os.Getenv("ESP32_FLASH_HELPER_FAIL") == "1" {
		fmt.Println("A fatal error occurred: Failed to connect to ESP32: No serial data received.")
		os.Exit(3)
	}
	fmt.Println("Hash of data verified.")
	os.Exit(0)
}

func helperRunner(fail bool) *esptool.Runner {
	return &esptool.Runner{Command: func(ctx context.Context, name string, args ...string) *exec.Cmd {
		cs := append([]string{"-test.run=TestHelperProcess", "--", name}, args...)
		cmd := exec.CommandContext(ctx, os.Args[0], cs...)
		cmd.Env = append(os.Environ(), "GO_WANT_HELPER_PROCESS=1")
		if fail {
			cmd.Env = append(cmd.Env, "ESP32_FLASH_HELPER_FAIL=1")
		}
		return cmd
	}}
}

// writeConfig saves a config with four valid images and a tool file.
func writeConfig(t *testing.T, port string) string {
	t.Helper()
	dir := t.TempDir()
	write := func(name string, data []byte) string {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, data, 0644))
		return p
	}
	cfg := model.DefaultAppConfig()
	cfg.Port = port
	cfg.EsptoolPath = write("esptool.exe", []byte("tool"))
	cfg.BootloaderPath = write("bootloader.bin", []byte{0xE9, 0, 0, 0})
	cfg.PartitionsPath = write("partitions.bin", firmware.EncodePartitionTable([]firmware.Partition{
		{Type: firmware.PartitionTypeApp, Subtype: 0x10, Offset: 0x10000, Size: 0x140000, Label: "app0"},
	}))
	cfg.BootApp0Path = write("boot_app0.bin", []byte{0xff})
	cfg.AppBinPath = write("LoRaController.ino.bin", []byte{0xE9, 1, 2, 3})

	path := filepath.Join(dir, "config.json")
	require.NoError(t, project.SaveAppConfig(path, cfg))
	return path
}

func newTestCLI(t *testing.T) (*cli, *bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	orig := serialport.LockDir
	serialport.LockDir = t.TempDir()
	t.Cleanup(func() { serialport.LockDir = orig })

	var stdout, stderr bytes.Buffer
	c := newCLI(&stdout, &stderr)
	c.probe = func(ctx context.Context, path string) (string, error) { return "4.7.0", nil }
	c.ports = func() ([]serialport.Port, error) {
		return []serialport.Port{
			{Name: "/dev/ttyUSB1", IsUSB: true, VID: "1A86", PID: "7523"},
			{Name: "/dev/ttyUSB0", IsUSB: true, Description: "CP2102 USB to UART"},
			{Name: "/dev/ttyS0"},
		}, nil
	}
	return c, &stdout, &stderr
}

func TestListPorts(t *testing.T) {
	c, stdout, _ := newTestCLI(t)

	code := c.run([]string{"--list-ports", "--no-color"})
	assert.Equal(t, exitOK, code)
	assert.Equal(t,
		"/dev/ttyS0\n"+
			"/dev/ttyUSB0     CP2102 USB to UART\n"+
			"/dev/ttyUSB1     USB 1A86:7523\n",
		stdout.String())
}

func TestDryRunAppliesOverrides(t *testing.T) {
	c, stdout, _ := newTestCLI(t)
	config := writeConfig(t, "COM3")

	code := c.run([]string{"--config", config, "--port", "COM5", "-b", "115200", "--chip", "esp32s3", "--dry-run", "--no-color"})
	require.Equal(t, exitOK, code)

	out := stdout.String()
	assert.Contains(t, out, "--chip esp32s3 --port COM5 --baud 115200")
	assert.Contains(t, out, "write_flash -z")
	assert.Contains(t, out, "0x10000 "+filepath.Join(filepath.Dir(config), "LoRaController.ino.bin"))

	saved, err := project.LoadAppConfig(config)
	require.NoError(t, err)
	assert.Equal(t, "COM3", saved.Port, "overrides must not be saved")
}

func TestFlashSuccessRecordsHistory(t *testing.T) {
	c, stdout, _ := newTestCLI(t)
	c.runner = helperRunner(false)
	config := writeConfig(t, "COM7")

	code := c.run([]string{"--config", config, "--no-color"})
	require.Equal(t, exitOK, code)
	assert.Contains(t, stdout.String(), "Starting flash process...")
	assert.Contains(t, stdout.String(), "Hash of data verified.")
	assert.Contains(t, stdout.String(), "Flash completed successfully!")

	hist, err := project.LoadHistory(filepath.Join(filepath.Dir(config), "history.json"))
	require.NoError(t, err)
	require.Len(t, hist.Sessions, 1)
	assert.Equal(t, model.OutcomeSuccess, hist.Sessions[0].Outcome)
}

func TestFlashFailurePassesExitCode(t *testing.T) {
	c, stdout, _ := newTestCLI(t)
	c.runner = helperRunner(true)
	config := writeConfig(t, "COM7")

	code := c.run([]string{"--config", config, "--no-color"})
	assert.Equal(t, 3, code)
	assert.Contains(t, stdout.String(), "Flash failed with return code: 3")
}

func TestMissingPortIsUsageError(t *testing.T) {
	c, stdout, stderr := newTestCLI(t)
	config := writeConfig(t, "")

	code := c.run([]string{"--config", config, "--no-color"})
	assert.Equal(t, exitUsage, code)
	assert.Empty(t, stdout.String())
	assert.Equal(t, "Error: Please select a COM port\n", stderr.String())
}

func TestUnknownFlag(t *testing.T) {
	c, _, stderr := newTestCLI(t)
	assert.Equal(t, exitUsage, c.run([]string{"--bogus"}))
	assert.Contains(t, stderr.String(), "unknown flag: --bogus")
}

func TestDryRunWithToolOnPath(t *testing.T) {
	c, stdout, stderr := newTestCLI(t)
	var probed string
	c.probe = func(ctx context.Context, path string) (string, error) {
		probed = path
		return "4.7.0", nil
	}
	config := writeConfig(t, "COM3")

	code := c.run([]string{"--config", config, "--tool", "esptool.py", "--dry-run", "--no-color"})
	require.Equal(t, exitOK, code, stderr.String())
	assert.Equal(t, "esptool.py", probed)
	lines := strings.Split(strings.TrimSpace(stdout.String()), "\n")
	assert.True(t, strings.HasPrefix(lines[len(lines)-1], "esptool.py --chip esp32 --port COM3 "), stdout.String())
}
