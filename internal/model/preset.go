package model

import (
	"time"

	"github.com/google/uuid"
)

// FirmwarePreset is a named set of the four image paths, so a user flashing
// several products can switch between firmware builds in one step.
type FirmwarePreset struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Description    string `json:"description"`
	CreatedAt      string `json:"created_at"`
	BootloaderPath string `json:"bootloader_path"`
	PartitionsPath string `json:"partitions_path"`
	BootApp0Path   string `json:"boot_app0_path"`
	AppBinPath     string `json:"app_bin_path"`
	AppLabel       string `json:"app_label"`
}

// NewFirmwarePreset captures the image selection of cfg.
func NewFirmwarePreset(name, description string, cfg AppConfig) FirmwarePreset {
	return FirmwarePreset{
		ID:             uuid.New().String()[:8],
		Name:           name,
		Description:    description,
		CreatedAt:      time.Now().UTC().Format(time.RFC3339),
		BootloaderPath: cfg.BootloaderPath,
		PartitionsPath: cfg.PartitionsPath,
		BootApp0Path:   cfg.BootApp0Path,
		AppBinPath:     cfg.AppBinPath,
		AppLabel:       cfg.AppLabel,
	}
}

// ApplyTo copies the preset's images into cfg. Port, tool and flash
// options are left alone.
func (p FirmwarePreset) ApplyTo(cfg *AppConfig) {
	cfg.BootloaderPath = p.BootloaderPath
	cfg.PartitionsPath = p.PartitionsPath
	cfg.BootApp0Path = p.BootApp0Path
	cfg.AppBinPath = p.AppBinPath
	if p.AppLabel != "" {
		cfg.AppLabel = p.AppLabel
	}
}

// PresetStore holds the saved firmware presets.
type PresetStore struct {
	Presets []FirmwarePreset `json:"presets"`
}

// NewPresetStore creates an empty preset store.
func NewPresetStore() PresetStore {
	return PresetStore{
		Presets: []FirmwarePreset{},
	}
}

// Add appends a preset, replacing an existing one with the same name.
func (ps *PresetStore) Add(p FirmwarePreset) {
	for i := range ps.Presets {
		if ps.Presets[i].Name == p.Name {
			p.ID = ps.Presets[i].ID
			ps.Presets[i] = p
			return
		}
	}
	ps.Presets = append(ps.Presets, p)
}

// Remove removes a preset by ID. Returns true if found and removed.
func (ps *PresetStore) Remove(id string) bool {
	for i, p := range ps.Presets {
		if p.ID == id {
			ps.Presets = append(ps.Presets[:i], ps.Presets[i+1:]...)
			return true
		}
	}
	return false
}

// FindByName returns the preset with the given name.
func (ps *PresetStore) FindByName(name string) (FirmwarePreset, bool) {
	for _, p := range ps.Presets {
		if p.Name == name {
			return p, true
		}
	}
	return FirmwarePreset{}, false
}

// Names returns the preset names in stored order.
func (ps *PresetStore) Names() []string {
	names := make([]string, len(ps.Presets))
	for i, p := range ps.Presets {
		names[i] = p.Name
	}
	return names
}
