package sharprudp

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadConfig_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "does-not-exist.toml"))
	assert.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadConfig_PartialFileFillsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rudp.toml")
	assert.NoError(t, os.WriteFile(path, []byte(`mtu = 2000`), 0o644))

	cfg, err := LoadConfig(path)
	assert.NoError(t, err)
	assert.Equal(t, 2000, cfg.MTU)
	assert.Equal(t, DefaultConfig().SendFrequencyMs, cfg.SendFrequencyMs)
	assert.Equal(t, DefaultConfig().LogLevel, cfg.LogLevel)
}

func TestDefaultConfig_SequenceLimitsAreHalfIntMax(t *testing.T) {
	cfg := DefaultConfig()
	const intMax = 1<<31 - 1
	assert.Equal(t, uint32(intMax/2), cfg.PacketIDLimit)
	assert.Equal(t, uint32(intMax/2), cfg.SequenceLimit)
}

func TestConfig_WithDefaults_LeavesNonZeroFieldsAlone(t *testing.T) {
	c := Config{MTU: 900, LogLevel: "debug"}
	filled := c.withDefaults()
	assert.Equal(t, 900, filled.MTU)
	assert.Equal(t, "debug", filled.LogLevel)
	assert.Equal(t, DefaultConfig().ClientStartSeq, filled.ClientStartSeq)
}
