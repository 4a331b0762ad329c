package project

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/piwi3910/esp32-flasher/internal/esptool"
	"github.com/piwi3910/esp32-flasher/internal/model"
)

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}
}

func TestSaveAndLoadAppConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	boot := filepath.Join(dir, "bootloader.bin")
	tool := filepath.Join(dir, "esptool.exe")
	writeFile(t, boot, []byte{0xE9})
	writeFile(t, tool, []byte("tool"))

	cfg := model.DefaultAppConfig()
	cfg.Port = "COM7"
	cfg.BootloaderPath = boot
	cfg.EsptoolPath = tool
	cfg.Baud = 460800
	cfg.Theme = "dark"

	if err := SaveAppConfig(path, cfg); err != nil {
		t.Fatalf("SaveAppConfig failed: %v", err)
	}

	loaded, err := LoadAppConfig(path)
	if err != nil {
		t.Fatalf("LoadAppConfig failed: %v", err)
	}
	if loaded.Port != "COM7" {
		t.Errorf("expected Port=COM7, got %s", loaded.Port)
	}
	if loaded.BootloaderPath != boot {
		t.Errorf("expected bootloader %s, got %s", boot, loaded.BootloaderPath)
	}
	if loaded.EsptoolPath != tool {
		t.Errorf("expected tool %s, got %s", tool, loaded.EsptoolPath)
	}
	if loaded.Baud != 460800 {
		t.Errorf("expected Baud=460800, got %d", loaded.Baud)
	}
	if loaded.Theme != "dark" {
		t.Errorf("expected Theme=dark, got %s", loaded.Theme)
	}
}

func TestSaveAppConfigUsesStableKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	cfg := model.DefaultAppConfig()
	cfg.BootApp0Path = "/fw/boot_app0.bin"
	if err := SaveAppConfig(path, cfg); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{`"port"`, `"esptool_path"`, `"bootloader_path"`, `"partitions_path"`, `"boot_app0_path"`, `"app_bin_path"`} {
		if !strings.Contains(string(data), key) {
			t.Errorf("config file missing key %s", key)
		}
	}
	if !strings.Contains(string(data), "\n    \"port\"") {
		t.Error("expected four-space indentation")
	}
}

func TestLoadAppConfigMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nonexistent", "config.json")

	cfg, err := LoadAppConfig(path)
	if err != nil {
		t.Fatalf("expected no error for missing file, got: %v", err)
	}
	if cfg.Baud != model.DefaultAppConfig().Baud {
		t.Errorf("expected default baud, got %d", cfg.Baud)
	}
	if cfg.Theme != "system" {
		t.Errorf("expected theme=system, got %s", cfg.Theme)
	}
}

func TestLoadAppConfigInvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	writeFile(t, path, []byte("not valid json{{{"))

	if _, err := LoadAppConfig(path); err == nil {
		t.Fatal("expected error for invalid JSON, got nil")
	}
}

func TestLoadAppConfigDropsMissingPaths(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	app := filepath.Join(dir, "app.bin")
	writeFile(t, app, []byte{0xE9})

	data := []byte(`{
		"port": "COM3",
		"esptool_path": "` + filepath.ToSlash(filepath.Join(dir, "gone.exe")) + `",
		"bootloader_path": "` + filepath.ToSlash(filepath.Join(dir, "gone.bin")) + `",
		"app_bin_path": "` + filepath.ToSlash(app) + `"
	}`)
	writeFile(t, path, data)

	cfg, err := LoadAppConfig(path)
	if err != nil {
		t.Fatalf("LoadAppConfig failed: %v", err)
	}
	if cfg.Port != "COM3" {
		t.Errorf("port should be kept, got %q", cfg.Port)
	}
	if cfg.EsptoolPath != "" {
		t.Errorf("missing tool should be dropped, got %q", cfg.EsptoolPath)
	}
	if cfg.BootloaderPath != "" {
		t.Errorf("missing bootloader should be dropped, got %q", cfg.BootloaderPath)
	}
	if filepath.Clean(cfg.AppBinPath) != filepath.Clean(app) {
		t.Errorf("existing app should be kept, got %q", cfg.AppBinPath)
	}
	if cfg.Chip != "esp32" {
		t.Errorf("old config should get default chip, got %q", cfg.Chip)
	}
}

func TestLoadAppConfigKeepsPathSentinel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	writeFile(t, path, []byte(`{"esptool_path":"esptool.py"}`))

	cfg, err := LoadAppConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.EsptoolPath != model.PathToolSentinel {
		t.Errorf("expected PATH sentinel to survive, got %q", cfg.EsptoolPath)
	}
}

func TestLoadAppConfigPathOnlyFileCompresses(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	boot := filepath.Join(dir, "bootloader.bin")
	writeFile(t, boot, []byte{0xE9})
	// Files from earlier releases carry only these six keys.
	writeFile(t, path, []byte(`{"port":"COM3","esptool_path":"esptool.py","bootloader_path":"`+filepath.ToSlash(boot)+`","partitions_path":"","boot_app0_path":"","app_bin_path":""}`))

	cfg, err := LoadAppConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.Compress {
		t.Fatal("expected compression to default to on")
	}
	args, err := esptool.BuildArgs(model.NewFlashPlan(cfg), "")
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, a := range args {
		if a == "-u" {
			t.Errorf("unexpected -u in %v", args)
		}
		if a == "-z" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected -z in %v", args)
	}
}

func TestSaveAppConfigCreatesDirectories(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "dir", "config.json")

	if err := SaveAppConfig(path, model.DefaultAppConfig()); err != nil {
		t.Fatalf("SaveAppConfig should create parent dirs: %v", err)
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Fatal("config file was not created")
	}
}

func TestDefaultConfigPathPrefersPortable(t *testing.T) {
	dir := t.TempDir()
	orig := executableFolder
	t.Cleanup(func() { executableFolder = orig })
	executableFolder = func() (string, error) { return dir, nil }

	if got := DefaultConfigPath(); got != filepath.Join(DefaultConfigDir(), ConfigFileName) {
		t.Errorf("without portable config expected home path, got %s", got)
	}

	writeFile(t, filepath.Join(dir, ConfigFileName), []byte("{}"))
	if got := DefaultConfigPath(); got != filepath.Join(dir, ConfigFileName) {
		t.Errorf("expected portable path, got %s", got)
	}

	executableFolder = func() (string, error) { return "", errors.New("no exe") }
	if got := DefaultConfigPath(); got != filepath.Join(DefaultConfigDir(), ConfigFileName) {
		t.Errorf("expected home path on error, got %s", got)
	}
}
