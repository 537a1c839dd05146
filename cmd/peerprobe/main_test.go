package main

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRun_Help(t *testing.T) {
	assert.Equal(t, exitOK, run([]string{"--help"}))
}

func TestRun_MissingTarget(t *testing.T) {
	assert.Equal(t, exitUsage, run([]string{"--log-level", "error"}))
}

func TestRun_InvalidTarget(t *testing.T) {
	assert.Equal(t, exitUsage, run([]string{"--log-level", "error", "/ip4/127.0.0.1/tcp/1"}))
}

func TestRun_UnreachablePeer(t *testing.T) {
	key := filepath.Join(t.TempDir(), "peer.key")
	code := run([]string{
		"--log-level", "error",
		"--dial-timeout", "500ms",
		"--identity-file", key,
		"/ip4/127.0.0.1/tcp/1/p2p/12D3KooWRH71QRJe5vrMp6zZXoH4K7z5MDSWwTXXPriG9dK8HQXk",
	})
	assert.Equal(t, exitFailure, code)
	assert.FileExists(t, key, "identity file is created through the client handle")
}
