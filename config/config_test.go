package config

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testTarget = "/ip4/127.0.0.1/tcp/4001/p2p/12D3KooWRH71QRJe5vrMp6zZXoH4K7z5MDSWwTXXPriG9dK8HQXk"

func TestDefault_Valid(t *testing.T) {
	cfg := Default()
	cfg.Target = testTarget
	require.NoError(t, Validate(cfg))
	assert.Equal(t, DefaultDialTimeout, cfg.Dial.Timeout)
	assert.Equal(t, DefaultProbeTimeout, cfg.Probe.Timeout)
	assert.Equal(t, 1, cfg.Probe.Count)
	assert.Empty(t, cfg.Listen, "client must not be dialable by default")
}

func TestLoad_Flags(t *testing.T) {
	var out bytes.Buffer
	cfg, _, err := Load([]string{
		"-n", "5",
		"--interval", "250ms",
		"--probe-timeout", "2s",
		"--dial-timeout", "3s",
		"--session", "4s",
		"--key-type", "SECP256K1",
		"--identity-seed", "module-42",
		"--listen", "/ip4/0.0.0.0/tcp/0, /ip4/0.0.0.0/udp/0/quic-v1",
		"--log-level", "debug",
		"--log-json",
		testTarget,
	}, &out)
	require.NoError(t, err)

	assert.Equal(t, testTarget, cfg.Target)
	assert.Equal(t, 5, cfg.Probe.Count)
	assert.Equal(t, 250*time.Millisecond, cfg.Probe.Interval)
	assert.Equal(t, 2*time.Second, cfg.Probe.Timeout)
	assert.Equal(t, 3*time.Second, cfg.Dial.Timeout)
	assert.Equal(t, 4*time.Second, cfg.Session)
	assert.Equal(t, KeySecp256k1, cfg.Identity.KeyType)
	assert.Equal(t, "module-42", cfg.Identity.Seed)
	assert.Equal(t, []string{"/ip4/0.0.0.0/tcp/0", "/ip4/0.0.0.0/udp/0/quic-v1"}, cfg.Listen)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.Log.JSON)
}

func TestLoad_CountZeroMeansForever(t *testing.T) {
	cfg, _, err := Load([]string{"--count=0", testTarget}, &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.Probe.Count)
}

func TestLoad_MissingTarget(t *testing.T) {
	_, _, err := Load(nil, &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "target")
}

func TestLoad_TooManyArgs(t *testing.T) {
	_, _, err := Load([]string{testTarget, testTarget}, &bytes.Buffer{})
	require.Error(t, err)
}

func TestLoad_Help(t *testing.T) {
	var out bytes.Buffer
	_, _, err := Load([]string{"--help"}, &out)
	assert.True(t, errors.Is(err, ErrUsage))
	assert.Contains(t, out.String(), "Usage:")
	assert.Contains(t, out.String(), "--probe-timeout")
}

func TestLoad_Version(t *testing.T) {
	var out bytes.Buffer
	_, _, err := Load([]string{"-v"}, &out)
	assert.True(t, errors.Is(err, ErrUsage))
	assert.Contains(t, out.String(), Version)
}

func TestLoad_UnknownFlag(t *testing.T) {
	_, _, err := Load([]string{"--bogus", testTarget}, &bytes.Buffer{})
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"nil target", func(c *Config) { c.Target = "  " }},
		{"zero dial timeout", func(c *Config) { c.Dial.Timeout = 0 }},
		{"zero probe timeout", func(c *Config) { c.Probe.Timeout = 0 }},
		{"huge probe timeout", func(c *Config) { c.Probe.Timeout = time.Hour }},
		{"negative count", func(c *Config) { c.Probe.Count = -1 }},
		{"negative interval", func(c *Config) { c.Probe.Interval = -time.Second }},
		{"negative session", func(c *Config) { c.Session = -time.Second }},
		{"bad key type", func(c *Config) { c.Identity.KeyType = "rsa" }},
		{"bad log level", func(c *Config) { c.Log.Level = "trace" }},
		{"seed and file", func(c *Config) { c.Identity.Seed = "s"; c.Identity.File = "/tmp/k" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Target = testTarget
			tt.mutate(cfg)
			assert.Error(t, Validate(cfg))
		})
	}

	assert.Error(t, Validate(nil))
}

func TestValidate_EmptyKeyTypeDefaults(t *testing.T) {
	cfg := Default()
	cfg.Target = testTarget
	cfg.Identity.KeyType = ""
	require.NoError(t, Validate(cfg))
	assert.Equal(t, KeyEd25519, cfg.Identity.KeyType)
}

func TestParseStringList(t *testing.T) {
	assert.Nil(t, parseStringList(""))
	assert.Equal(t, []string{"a", "b"}, parseStringList(" a ,, b "))
}

func TestLoad_IdentityFilePassphrase(t *testing.T) {
	t.Setenv(PassphraseEnv, "hunter2")
	cfg, _, err := Load([]string{"--identity-file", "/tmp/peerprobe.key", testTarget}, &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, "/tmp/peerprobe.key", cfg.Identity.File)
	assert.Equal(t, "hunter2", cfg.Identity.Passphrase)
}
