package project

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/piwi3910/esp32-flasher/internal/model"
)

func newSession(port string) model.FlashSession {
	cfg := samplePresetConfig()
	cfg.Port = port
	cfg.EsptoolPath = "/tools/esptool"
	return model.NewFlashSession(model.NewFlashPlan(cfg))
}

func TestRecordSessionAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.json")

	first := newSession("COM3")
	first.Finish(model.OutcomeSuccess, 0, nil, []string{"done"})
	second := newSession("COM4")
	second.Finish(model.OutcomeFailed, 2, nil, nil)

	require.NoError(t, RecordSession(path, first))
	require.NoError(t, RecordSession(path, second))

	h, err := LoadHistory(path)
	require.NoError(t, err)
	require.Len(t, h.Sessions, 2)

	last, ok := h.Last()
	require.True(t, ok)
	assert.Equal(t, "COM4", last.Port)
	assert.Equal(t, model.OutcomeFailed, last.Outcome)

	found, ok := h.Find(first.ShortID())
	require.True(t, ok)
	assert.Equal(t, first.ID, found.ID)
	assert.Equal(t, []string{"done"}, found.LogTail)
}

func TestFlashHistoryCap(t *testing.T) {
	var h FlashHistory
	var firstID string
	for i := 0; i < MaxHistorySessions+5; i++ {
		s := newSession("COM1")
		if i == 0 {
			firstID = s.ID
		}
		h.Append(s)
	}
	assert.Len(t, h.Sessions, MaxHistorySessions)
	_, ok := h.Find(firstID)
	assert.False(t, ok, "oldest session should have been dropped")
}

func TestLoadHistoryMissingFile(t *testing.T) {
	h, err := LoadHistory(filepath.Join(t.TempDir(), "history.json"))
	require.NoError(t, err)
	assert.NotNil(t, h.Sessions)

	_, ok := h.Last()
	assert.False(t, ok)
}

func TestFindRequiresUsefulPrefix(t *testing.T) {
	var h FlashHistory
	h.Append(newSession("COM1"))

	_, ok := h.Find(h.Sessions[0].ID[:3])
	assert.False(t, ok, "short prefixes should not match")
}

func TestLoadHistoryInvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.json")
	writeFile(t, path, []byte(`{"sessions": [`))

	_, err := LoadHistory(path)
	assert.Error(t, err)
}
