// Package config handles application configuration.
//
// peerprobe has no configuration file. Settings come from defaults and
// command-line flags, plus the identity passphrase from the environment.
// Nothing is kept between runs unless --identity-file is given.
package config

import "time"

// Identity key types.
const (
	KeyEd25519   = "ed25519"
	KeySecp256k1 = "secp256k1"
)

// Config holds the runtime configuration of one probe session.
type Config struct {
	// Target is the multiaddress of the remote peer, including /p2p/<id>.
	Target string `conf:"target"`

	// Dialing
	Dial DialConfig

	// Liveness probing
	Probe ProbeConfig

	// Session bounds how long the connection is kept open after the last
	// probe so inbound activity from the remote can still be observed.
	Session time.Duration `conf:"session"`

	// Local identity
	Identity IdentityConfig

	// Listen addresses. Empty means the client is not dialable.
	Listen []string `conf:"listen"`

	// Metrics endpoint
	Metrics MetricsConfig

	// Logging
	Log LogConfig
}

// DialConfig holds connection establishment settings.
type DialConfig struct {
	Timeout time.Duration `conf:"dial.timeout"`
}

// ProbeConfig holds liveness probe settings.
type ProbeConfig struct {
	Timeout  time.Duration `conf:"probe.timeout"`
	Count    int           `conf:"probe.count"` // 0 = until interrupted
	Interval time.Duration `conf:"probe.interval"`
}

// IdentityConfig selects the local peer identity.
type IdentityConfig struct {
	KeyType    string `conf:"identity.type"` // ed25519 or secp256k1
	Seed       string `conf:"identity.seed"` // derive a stable key from this seed
	File       string `conf:"identity.file"` // load or create a persisted key here
	Passphrase string `conf:"-"`             // encrypts File; read from PassphraseEnv
}

// PassphraseEnv names the environment variable holding the identity file
// passphrase.
const PassphraseEnv = "PEERPROBE_IDENTITY_PASSPHRASE"

// MetricsConfig holds the Prometheus endpoint settings.
type MetricsConfig struct {
	Addr string `conf:"metrics.addr"` // empty = disabled
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `conf:"log.level"`
	File  string `conf:"log.file"`
	JSON  bool   `conf:"log.json"`
}
