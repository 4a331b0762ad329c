package serialport

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockIsExclusive(t *testing.T) {
	orig := LockDir
	LockDir = t.TempDir()
	t.Cleanup(func() { LockDir = orig })

	first, err := Lock("COM5")
	require.NoError(t, err)

	_, err = Lock("COM5")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPortBusy))

	other, err := Lock("/dev/ttyUSB0")
	require.NoError(t, err, "different ports do not conflict")
	require.NoError(t, other.Unlock())

	require.NoError(t, first.Unlock())
	again, err := Lock("COM5")
	require.NoError(t, err)
	require.NoError(t, again.Unlock())
}

func TestLockName(t *testing.T) {
	assert.Equal(t, "COM3.lock", lockName("COM3"))
	assert.Equal(t, "dev_ttyUSB0.lock", lockName("/dev/ttyUSB0"))
	assert.Equal(t, "COM12.lock", lockName(`\\.\COM12`))
}

func TestNilUnlock(t *testing.T) {
	var l *PortLock
	assert.NoError(t, l.Unlock())
}
