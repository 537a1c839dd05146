package config

import "time"

// Default timings.
const (
	DefaultDialTimeout   = 5 * time.Second
	DefaultProbeTimeout  = 5 * time.Second
	DefaultProbeInterval = time.Second
	DefaultProbeCount    = 1
)

// Default returns the default session configuration.
func Default() *Config {
	return &Config{
		Dial: DialConfig{
			Timeout: DefaultDialTimeout,
		},
		Probe: ProbeConfig{
			Timeout:  DefaultProbeTimeout,
			Count:    DefaultProbeCount,
			Interval: DefaultProbeInterval,
		},
		Identity: IdentityConfig{
			KeyType: KeyEd25519,
		},
		Log: LogConfig{
			Level: "info",
			JSON:  false,
		},
	}
}
