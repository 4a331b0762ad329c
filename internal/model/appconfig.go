package model

import "encoding/json"

// PathToolSentinel is stored in esptool_path when the tool was found on PATH
// rather than at a concrete location.
const PathToolSentinel = "esptool.py"

// DefaultAppLabel is the display name of the application image slot.
const DefaultAppLabel = "LoRaController.ino.bin"

// maxRecentPorts bounds the RecentPorts list.
const maxRecentPorts = 8

// AppConfig is the flat configuration record persisted between runs.
// The first six keys keep the names used by earlier releases so an existing
// config.json is picked up unchanged.
type AppConfig struct {
	Port           string `json:"port"`
	EsptoolPath    string `json:"esptool_path"`
	BootloaderPath string `json:"bootloader_path"`
	PartitionsPath string `json:"partitions_path"`
	BootApp0Path   string `json:"boot_app0_path"`
	AppBinPath     string `json:"app_bin_path"`

	// Flash options passed through to esptool
	Chip      string `json:"chip"`
	Baud      int    `json:"baud"`
	Before    string `json:"before"`
	After     string `json:"after"`
	FlashMode string `json:"flash_mode"`
	FlashFreq string `json:"flash_freq"`
	FlashSize string `json:"flash_size"`
	Compress  bool   `json:"compress"`
	ExtraArgs string `json:"extra_args"` // shell-quoted, inserted before write_flash

	// Application preferences
	AppLabel    string   `json:"app_label"`
	Theme       string   `json:"theme"` // "light", "dark", "system"
	RecentPorts []string `json:"recent_ports"`
}

// DefaultAppConfig returns an AppConfig with the flash options the tool has
// always used: esp32 at 921600 baud, keep the chip's flash parameters.
func DefaultAppConfig() AppConfig {
	return AppConfig{
		Chip:        "esp32",
		Baud:        921600,
		Before:      "default_reset",
		After:       "hard_reset",
		FlashMode:   "keep",
		FlashFreq:   "keep",
		FlashSize:   "keep",
		Compress:    true,
		AppLabel:    DefaultAppLabel,
		Theme:       "system",
		RecentPorts: []string{},
	}
}

// UnmarshalJSON decodes over DefaultAppConfig, so keys missing from files
// written by earlier releases keep their defaults. This matters for
// booleans like Compress, whose zero value is a valid setting.
func (c *AppConfig) UnmarshalJSON(data []byte) error {
	type plain AppConfig
	p := plain(DefaultAppConfig())
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*c = AppConfig(p)
	return nil
}

// FillDefaults replaces zero values with defaults. Config files written by
// earlier releases only carry the path keys.
func (c *AppConfig) FillDefaults() {
	d := DefaultAppConfig()
	if c.Chip == "" {
		c.Chip = d.Chip
	}
	if c.Baud <= 0 {
		c.Baud = d.Baud
	}
	if c.Before == "" {
		c.Before = d.Before
	}
	if c.After == "" {
		c.After = d.After
	}
	if c.FlashMode == "" {
		c.FlashMode = d.FlashMode
	}
	if c.FlashFreq == "" {
		c.FlashFreq = d.FlashFreq
	}
	if c.FlashSize == "" {
		c.FlashSize = d.FlashSize
	}
	if c.AppLabel == "" {
		c.AppLabel = d.AppLabel
	}
	if c.Theme == "" {
		c.Theme = d.Theme
	}
	if c.RecentPorts == nil {
		c.RecentPorts = []string{}
	}
}

// ImagePath returns the configured path for a slot.
func (c AppConfig) ImagePath(kind SlotKind) string {
	switch kind {
	case SlotBootloader:
		return c.BootloaderPath
	case SlotPartitions:
		return c.PartitionsPath
	case SlotBootApp0:
		return c.BootApp0Path
	case SlotApplication:
		return c.AppBinPath
	}
	return ""
}

// SetImagePath stores the path for a slot.
func (c *AppConfig) SetImagePath(kind SlotKind, path string) {
	switch kind {
	case SlotBootloader:
		c.BootloaderPath = path
	case SlotPartitions:
		c.PartitionsPath = path
	case SlotBootApp0:
		c.BootApp0Path = path
	case SlotApplication:
		c.AppBinPath = path
	}
}

// HasAnyImage reports whether at least one image path is set.
func (c AppConfig) HasAnyImage() bool {
	for _, s := range Slots() {
		if c.ImagePath(s.Kind) != "" {
			return true
		}
	}
	return false
}

// RememberPort moves port to the front of RecentPorts.
func (c *AppConfig) RememberPort(port string) {
	if port == "" {
		return
	}
	out := []string{port}
	for _, p := range c.RecentPorts {
		if p != port {
			out = append(out, p)
		}
	}
	if len(out) > maxRecentPorts {
		out = out[:maxRecentPorts]
	}
	c.RecentPorts = out
}

// Options extracts the esptool options from the config.
func (c AppConfig) Options() FlashOptions {
	return FlashOptions{
		Chip:      c.Chip,
		Baud:      c.Baud,
		Before:    c.Before,
		After:     c.After,
		FlashMode: c.FlashMode,
		FlashFreq: c.FlashFreq,
		FlashSize: c.FlashSize,
		Compress:  c.Compress,
		ExtraArgs: c.ExtraArgs,
	}
}

// ApplyOptions copies esptool options back into the config.
func (c *AppConfig) ApplyOptions(o FlashOptions) {
	c.Chip = o.Chip
	c.Baud = o.Baud
	c.Before = o.Before
	c.After = o.After
	c.FlashMode = o.FlashMode
	c.FlashFreq = o.FlashFreq
	c.FlashSize = o.FlashSize
	c.Compress = o.Compress
	c.ExtraArgs = o.ExtraArgs
}
