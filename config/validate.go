package config

import (
	"fmt"
	"strings"
	"time"
)

// maxProbeTimeout caps the per-probe wait so a session cannot hang on a
// silent peer for minutes.
const maxProbeTimeout = 2 * time.Minute

// Validate checks the session config for obvious operator mistakes.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if strings.TrimSpace(cfg.Target) == "" {
		return fmt.Errorf("target multiaddress is required")
	}
	if cfg.Dial.Timeout <= 0 {
		return fmt.Errorf("dial.timeout must be positive")
	}
	if cfg.Probe.Timeout <= 0 || cfg.Probe.Timeout > maxProbeTimeout {
		return fmt.Errorf("probe.timeout must be in (0, %s]", maxProbeTimeout)
	}
	if cfg.Probe.Count < 0 {
		return fmt.Errorf("probe.count must not be negative")
	}
	if cfg.Probe.Interval < 0 {
		return fmt.Errorf("probe.interval must not be negative")
	}
	if cfg.Session < 0 {
		return fmt.Errorf("session must not be negative")
	}

	cfg.Identity.KeyType = strings.ToLower(strings.TrimSpace(cfg.Identity.KeyType))
	if cfg.Identity.KeyType == "" {
		cfg.Identity.KeyType = KeyEd25519
	}
	switch cfg.Identity.KeyType {
	case KeyEd25519, KeySecp256k1:
	default:
		return fmt.Errorf("identity.type must be %s or %s", KeyEd25519, KeySecp256k1)
	}

	if cfg.Identity.Seed != "" && cfg.Identity.File != "" {
		return fmt.Errorf("identity.seed and identity.file are mutually exclusive")
	}

	switch cfg.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be debug, info, warn, or error")
	}
	return nil
}
