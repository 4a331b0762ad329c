package project

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/golang/glog"
	"github.com/kardianos/osext"

	"github.com/piwi3910/esp32-flasher/internal/model"
)

// ConfigFileName is the name of the configuration file.
const ConfigFileName = "config.json"

// executableFolder is replaced in tests.
var executableFolder = osext.ExecutableFolder

// DefaultConfigDir returns the default directory for application configuration.
// On all platforms this is ~/.esp32flasher/
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".esp32flasher")
}

// DefaultConfigPath returns the path of the config file. A config.json next
// to the executable wins, so a flasher copied onto a USB stick together
// with its config keeps working as a portable install.
func DefaultConfigPath() string {
	if dir, err := executableFolder(); err == nil {
		portable := filepath.Join(dir, ConfigFileName)
		if _, err := os.Stat(portable); err == nil {
			return portable
		}
	}
	return filepath.Join(DefaultConfigDir(), ConfigFileName)
}

// SaveAppConfig persists an AppConfig to the given path as JSON.
// It creates any missing parent directories automatically.
func SaveAppConfig(path string, config model.AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(config, "", "    ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// LoadAppConfig reads an AppConfig from the given path.
// If the file does not exist, it returns DefaultAppConfig with no error.
// Image and tool paths that no longer exist are cleared; the port is kept
// as stored because the device may simply be unplugged.
func LoadAppConfig(path string) (model.AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return model.DefaultAppConfig(), nil
		}
		return model.AppConfig{}, err
	}
	var config model.AppConfig
	if err := json.Unmarshal(data, &config); err != nil {
		return model.AppConfig{}, err
	}
	config.FillDefaults()

	if !isCommandName(config.EsptoolPath) && !fileExists(config.EsptoolPath) {
		config.EsptoolPath = ""
	}
	for _, s := range model.Slots() {
		p := config.ImagePath(s.Kind)
		if p != "" && !fileExists(p) {
			glog.V(1).Infof("dropping missing %s image %q from config", s.Kind, p)
			config.SetImagePath(s.Kind, "")
		}
	}
	return config, nil
}

// isCommandName reports whether path is a bare name looked up on PATH,
// such as the "esptool.py" sentinel.
func isCommandName(path string) bool {
	return path != "" && filepath.Base(path) == path
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}
