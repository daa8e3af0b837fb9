package env

import (
	"flag"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewArgsDefaults(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	args := NewArgs(fs)
	require.NoError(t, fs.Parse(nil))

	assert.False(t, *args.Verbose)
	assert.True(t, *args.DHTEnabled)
	assert.True(t, *args.BMPEnabled)
	assert.Equal(t, BMP280Address, *args.BMPAddress)
	assert.Equal(t, DHTIn, *args.DHTPin)
	assert.Equal(t, ReadInterval, *args.Interval)
	assert.Equal(t, SeaLevelPa, *args.SeaLevel)
	assert.Zero(t, *args.Elevation)
	assert.False(t, *args.LEDs)
	assert.Equal(t, LEDTemperature, *args.TempLED)
	assert.Equal(t, TempAlertHigh, *args.TempHigh)
	assert.Equal(t, HumidityAlertLow, *args.HumidityLow)
}

func TestNewArgsFlagsAndEnvironment(t *testing.T) {
	t.Setenv("BMP280_ADDRESS", "0x77")
	t.Setenv("ENABLE_DHT11", "false")
	t.Setenv("INTERVAL", "30s")
	t.Setenv("TEMP_ALERT_HIGH", "30.5")

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	args := NewArgs(fs)
	require.NoError(t, fs.Parse([]string{"-dht-pin", "GPIO17", "-rotation", "1"}))

	assert.Equal(t, 0x77, *args.BMPAddress)
	assert.False(t, *args.DHTEnabled)
	assert.Equal(t, 30*time.Second, *args.Interval)
	assert.Equal(t, "GPIO17", *args.DHTPin)
	assert.Equal(t, 1, *args.Rotation)
	assert.Equal(t, 30.5, *args.TempHigh)
}

func TestBadValuesFallBack(t *testing.T) {
	t.Setenv("X_BOOL", "maybe")
	t.Setenv("X_INT", "seven")
	t.Setenv("X_FLOAT", "")
	t.Setenv("X_DURATION", "5")

	assert.True(t, Bool("X_BOOL", true))
	assert.Equal(t, 7, Int("X_INT", 7))
	assert.Equal(t, 1.5, Float("X_FLOAT", 1.5))
	assert.Equal(t, time.Second, Duration("X_DURATION", time.Second))
	assert.Equal(t, "def", String("X_UNSET_FOR_TEST", "def"))
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	f := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(f, []byte("WP_TEST_LOADED=yes\nWP_TEST_KEPT=file\n"), 0o600))
	t.Setenv("WP_TEST_KEPT", "process")
	t.Cleanup(func() { os.Unsetenv("WP_TEST_LOADED") })

	require.NoError(t, Load(filepath.Join(dir, "missing.env"), f))
	assert.Equal(t, "yes", os.Getenv("WP_TEST_LOADED"))
	assert.Equal(t, "process", os.Getenv("WP_TEST_KEPT"))

	require.NoError(t, os.WriteFile(f, []byte("not a valid line\n"), 0o600))
	assert.Error(t, Load(f))
}
