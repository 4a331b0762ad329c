package esptool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/piwi3910/esp32-flasher/internal/model"
)

func testPlan() model.FlashPlan {
	cfg := model.DefaultAppConfig()
	cfg.Port = "COM5"
	cfg.EsptoolPath = "esptool.py"
	cfg.BootloaderPath = "/fw/bootloader.bin"
	cfg.PartitionsPath = "/fw/partitions.bin"
	cfg.BootApp0Path = "/fw/boot_app0.bin"
	cfg.AppBinPath = "/fw/my app.bin"
	return model.NewFlashPlan(cfg)
}

func TestBuildArgsDefault(t *testing.T) {
	args, err := BuildArgs(testPlan(), "4.7.0")
	require.NoError(t, err)

	want := []string{
		"--chip", "esp32",
		"--port", "COM5",
		"--baud", "921600",
		"--before", "default_reset",
		"--after", "hard_reset",
		"write_flash",
		"-z",
		"--flash_mode", "keep",
		"--flash_freq", "keep",
		"--flash_size", "keep",
		"0x1000", "/fw/bootloader.bin",
		"0x8000", "/fw/partitions.bin",
		"0xe000", "/fw/boot_app0.bin",
		"0x10000", "/fw/my app.bin",
	}
	assert.Equal(t, want, args)
}

func TestBuildArgsUnknownVersionUsesUnderscores(t *testing.T) {
	args, err := BuildArgs(testPlan(), "")
	require.NoError(t, err)
	assert.Contains(t, args, "write_flash")
	assert.Contains(t, args, "--flash_mode")
}

func TestBuildArgsDashedForV5(t *testing.T) {
	args, err := BuildArgs(testPlan(), "5.0.2")
	require.NoError(t, err)
	assert.Contains(t, args, "write-flash")
	assert.Contains(t, args, "--flash-mode")
	assert.Contains(t, args, "--flash-freq")
	assert.Contains(t, args, "--flash-size")
	assert.Contains(t, args, "default-reset")
	assert.Contains(t, args, "hard-reset")
	assert.NotContains(t, args, "write_flash")
}

func TestBuildArgsExtraAndNoCompress(t *testing.T) {
	plan := testPlan()
	plan.Options.Compress = false
	plan.Options.ExtraArgs = `--no-stub --trace "--connect-attempts" 3`

	args, err := BuildArgs(plan, "4.7.0")
	require.NoError(t, err)

	idx := indexOf(args, "write_flash")
	require.Greater(t, idx, 0)
	assert.Equal(t, []string{"--no-stub", "--trace", "--connect-attempts", "3"}, args[idx-4:idx])
	assert.Equal(t, "-u", args[idx+1])
}

func TestBuildArgsBadExtra(t *testing.T) {
	plan := testPlan()
	plan.Options.ExtraArgs = `--trace "unterminated`
	_, err := BuildArgs(plan, "")
	assert.Error(t, err)
}

func TestUsesDashedArgs(t *testing.T) {
	assert.False(t, UsesDashedArgs(""))
	assert.False(t, UsesDashedArgs("3.3"))
	assert.False(t, UsesDashedArgs("4.10.0"))
	assert.True(t, UsesDashedArgs("5.0"))
	assert.True(t, UsesDashedArgs("5.1.0"))
}

func TestCommandLine(t *testing.T) {
	got := CommandLine("esptool.py", []string{"--port", "COM5", "/fw/my app.bin"})
	assert.Equal(t, `esptool.py --port COM5 "/fw/my app.bin"`, got)
}

func TestCommandLineKeepsBackslashes(t *testing.T) {
	got := CommandLine(`C:\esptool\esptool.exe`, []string{"0x10000", `C:\Users\My Docs\app.bin`, ""})
	assert.Equal(t, `C:\esptool\esptool.exe 0x10000 "C:\Users\My Docs\app.bin" ""`, got)
}

func indexOf(s []string, v string) int {
	for i, x := range s {
		if x == v {
			return i
		}
	}
	return -1
}
