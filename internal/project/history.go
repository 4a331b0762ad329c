package project

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/piwi3910/esp32-flasher/internal/model"
)

// MaxHistorySessions bounds the number of sessions kept on disk.
const MaxHistorySessions = 500

// FlashHistory is the on-disk list of flash sessions, oldest first.
type FlashHistory struct {
	Sessions []model.FlashSession `json:"sessions"`
}

// DefaultHistoryPath returns the default file path for the flash history.
// This is located at ~/.esp32flasher/history.json.
func DefaultHistoryPath() string {
	return filepath.Join(DefaultConfigDir(), "history.json")
}

// Append adds a session and drops the oldest entries beyond the cap.
func (h *FlashHistory) Append(s model.FlashSession) {
	h.Sessions = append(h.Sessions, s)
	if len(h.Sessions) > MaxHistorySessions {
		h.Sessions = h.Sessions[len(h.Sessions)-MaxHistorySessions:]
	}
}

// Last returns the most recent session.
func (h FlashHistory) Last() (model.FlashSession, bool) {
	if len(h.Sessions) == 0 {
		return model.FlashSession{}, false
	}
	return h.Sessions[len(h.Sessions)-1], true
}

// Find returns the session with the given id or id prefix.
func (h FlashHistory) Find(id string) (model.FlashSession, bool) {
	for i := len(h.Sessions) - 1; i >= 0; i-- {
		s := h.Sessions[i]
		if s.ID == id || (len(id) >= 8 && len(s.ID) >= len(id) && s.ID[:len(id)] == id) {
			return s, true
		}
	}
	return model.FlashSession{}, false
}

// SaveHistory writes the history to a JSON file.
func SaveHistory(path string, h FlashHistory) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(h, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// LoadHistory reads the history from a JSON file.
// If the file does not exist, returns an empty history.
func LoadHistory(path string) (FlashHistory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return FlashHistory{Sessions: []model.FlashSession{}}, nil
		}
		return FlashHistory{}, err
	}
	var h FlashHistory
	if err := json.Unmarshal(data, &h); err != nil {
		return FlashHistory{}, err
	}
	if h.Sessions == nil {
		h.Sessions = []model.FlashSession{}
	}
	return h, nil
}

// RecordSession loads the history at path, appends s and saves it back.
func RecordSession(path string, s model.FlashSession) error {
	h, err := LoadHistory(path)
	if err != nil {
		return err
	}
	h.Append(s)
	return SaveHistory(path, h)
}
