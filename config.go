package sharprudp

import (
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/fsnotify/fsnotify"
)

// Config holds every tunable of the engine. Zero-valued fields passed to
// Listen/Connect/LoadConfig are filled in from DefaultConfig.
type Config struct {
	MTU    int `toml:"mtu"`
	MaxMTU int `toml:"max_mtu"`

	SendFrequencyMs int `toml:"send_frequency_ms"`
	RecvFrequencyMs int `toml:"recv_frequency_ms"`

	PacketIDLimit  uint32 `toml:"packet_id_limit"`
	SequenceLimit  uint32 `toml:"sequence_limit"`
	ClientStartSeq uint32 `toml:"client_start_sequence"`
	ServerStartSeq uint32 `toml:"server_start_sequence"`

	MagicHeader []byte `toml:"-"`

	LogLevel          string `toml:"log_level"`
	MetricsNamespace  string `toml:"metrics_namespace"`
	DiagAddr          string `toml:"diag_addr"`
}

// DefaultConfig returns the configuration in spec.md §6.
func DefaultConfig() Config {
	const intMax = 1<<31 - 1
	mtu := 1500
	return Config{
		MTU:              mtu,
		MaxMTU:           int(0.80 * float64(mtu)),
		SendFrequencyMs:  10,
		RecvFrequencyMs:  10,
		PacketIDLimit:    intMax / 2,
		SequenceLimit:    intMax / 2,
		ClientStartSeq:   100,
		ServerStartSeq:   200,
		MagicHeader:      append([]byte(nil), DefaultMagicHeader...),
		LogLevel:         "info",
		MetricsNamespace: "sharprudp",
		DiagAddr:         "",
	}
}

// withDefaults fills every zero-valued field of c from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MTU == 0 {
		c.MTU = d.MTU
	}
	if c.MaxMTU == 0 {
		c.MaxMTU = int(0.80 * float64(c.MTU))
	}
	if c.SendFrequencyMs == 0 {
		c.SendFrequencyMs = d.SendFrequencyMs
	}
	if c.RecvFrequencyMs == 0 {
		c.RecvFrequencyMs = d.RecvFrequencyMs
	}
	if c.PacketIDLimit == 0 {
		c.PacketIDLimit = d.PacketIDLimit
	}
	if c.SequenceLimit == 0 {
		c.SequenceLimit = d.SequenceLimit
	}
	if c.ClientStartSeq == 0 {
		c.ClientStartSeq = d.ClientStartSeq
	}
	if c.ServerStartSeq == 0 {
		c.ServerStartSeq = d.ServerStartSeq
	}
	if len(c.MagicHeader) == 0 {
		c.MagicHeader = d.MagicHeader
	}
	if c.LogLevel == "" {
		c.LogLevel = d.LogLevel
	}
	if c.MetricsNamespace == "" {
		c.MetricsNamespace = d.MetricsNamespace
	}
	return c
}

func (c Config) sendTick() time.Duration { return time.Duration(c.SendFrequencyMs) * time.Millisecond }
func (c Config) recvTick() time.Duration { return time.Duration(c.RecvFrequencyMs) * time.Millisecond }

// LoadConfig parses a TOML file into a Config, the way the teacher pack's
// dtn7-style configuration.go loads its own node configuration, and fills
// any field the file leaves unset from DefaultConfig. A missing file
// yields DefaultConfig unchanged.
func LoadConfig(path string) (Config, error) {
	var c Config
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}
	if _, err := toml.DecodeFile(path, &c); err != nil {
		return Config{}, err
	}
	return c.withDefaults(), nil
}

// WatchConfig re-loads path on every write and invokes onChange with the
// freshly parsed Config. It is a CLI convenience only: the engine itself
// never re-reads its configuration after Listen/Connect. The returned
// function stops the watch.
func WatchConfig(path string, onChange func(Config)) (stop func() error, err error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return nil, err
	}

	done := make(chan struct{})
	go func() {
		for {
			select {
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
					if cfg, err := LoadConfig(path); err == nil {
						onChange(cfg)
					}
				}
			case <-watcher.Errors:
			case <-done:
				return
			}
		}
	}()

	return func() error {
		close(done)
		return watcher.Close()
	}, nil
}
