package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/mklimuk/tof/cmd/tof/console"
	"github.com/mklimuk/tof/vl53l5cx"
)

func captureOutput(t *testing.T) *bytes.Buffer {
	t.Helper()
	var out bytes.Buffer
	console.SetOutput(&out, &out)
	t.Cleanup(func() { console.SetOutput(os.Stdout, os.Stderr) })
	return &out
}

func writeProfile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "profile.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestRun_ReadYAML(t *testing.T) {
	out := captureOutput(t)
	code := run([]string{"tof", "--adapter", "sim", "read", "-n", "2", "--format", "yaml"})
	require.Equal(t, 0, code, out.String())

	dec := yaml.NewDecoder(out)
	var frames []frameDump
	for {
		var f frameDump
		if dec.Decode(&f) != nil {
			break
		}
		frames = append(frames, f)
	}
	require.Len(t, frames, 2)
	assert.Equal(t, 0, frames[0].Seq)
	assert.Equal(t, 1, frames[1].Seq)
	assert.Equal(t, "4x4", frames[0].Resolution)
	assert.Len(t, frames[0].Distance, 4)
	assert.Nil(t, frames[0].Motion)
}

func TestRun_ReadWithProfile(t *testing.T) {
	out := captureOutput(t)
	path := writeProfile(t, `
resolution: 8x8
frequency_hz: 10
integration_ms: 20
sharpener_percent: 0
target_order: closest
ranging_mode: autonomous
motion:
  min_mm: 400
  max_mm: 1400
`)
	code := run([]string{"tof", "--adapter", "sim", "--profile", path, "read", "--format", "yaml"})
	require.Equal(t, 0, code, out.String())

	var f frameDump
	require.NoError(t, yaml.NewDecoder(out).Decode(&f))
	assert.Equal(t, "8x8", f.Resolution)
	assert.Len(t, f.Distance, 8)
	assert.Len(t, f.Motion, 4)
}

func TestRun_Failures(t *testing.T) {
	captureOutput(t)
	unknown := writeProfile(t, "resolution: 8x8\nfrequncy_hz: 10\n")
	tooFast := writeProfile(t, "resolution: 8x8\nfrequency_hz: 30\n")

	tests := []struct {
		name string
		args []string
	}{
		{"unknown adapter", []string{"tof", "--adapter", "spi", "read"}},
		{"bad address", []string{"tof", "--adapter", "sim", "--addr", "0x80", "read"}},
		{"unknown profile field", []string{"tof", "--adapter", "sim", "--profile", unknown, "read"}},
		{"frequency over limit", []string{"tof", "--adapter", "sim", "--profile", tooFast, "read"}},
		{"bad format", []string{"tof", "--adapter", "sim", "read", "--format", "json"}},
		{"mcp2221 lpn on sim", []string{"tof", "--adapter", "sim", "--lpn", "mcp2221:1", "read"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, 1, run(tt.args))
		})
	}
}

func TestRun_Address(t *testing.T) {
	out := captureOutput(t)
	code := run([]string{"tof", "--adapter", "sim", "address", "--desired", "0x30", "--yes"})
	require.Equal(t, 0, code, out.String())
	assert.Contains(t, out.String(), "0x30")
}

func TestRun_Scan(t *testing.T) {
	out := captureOutput(t)
	code := run([]string{"tof", "--adapter", "sim", "--addr", "0x2a", "scan"})
	require.Equal(t, 0, code)
	assert.Contains(t, out.String(), "\n20 -- -- -- -- -- -- -- -- -- -- 2a -- ")
}

func TestScan(t *testing.T) {
	dev := vl53l5cx.NewEmulatedDevice(0x29, vl53l5cx.DefaultScene)
	found := scan(context.Background(), dev)
	assert.Equal(t, map[byte]bool{0x29: true}, found)
}

func TestRun_RangingFlags(t *testing.T) {
	out := captureOutput(t)
	code := run([]string{"tof", "--adapter", "sim", "read", "--resolution", "4x4", "--frequency", "30", "--format", "yaml"})
	require.Equal(t, 0, code, out.String())
	var f frameDump
	require.NoError(t, yaml.NewDecoder(out).Decode(&f))
	assert.Equal(t, "4x4", f.Resolution)
}

func TestParseAddress(t *testing.T) {
	for in, want := range map[string]byte{"0x29": 0x29, "41": 0x29, "0x7f": 0x7f} {
		got, err := parseAddress(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	for _, in := range []string{"0", "0x80", "zz", ""} {
		_, err := parseAddress(in)
		assert.Error(t, err, in)
	}
}
