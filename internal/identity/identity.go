// Package identity creates the local libp2p identity key: fresh per run,
// derived from a seed, or persisted in a key file.
package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	libp2pcrypto "github.com/libp2p/go-libp2p/core/crypto"
	"github.com/zeebo/blake3"
)

// Key types.
const (
	Ed25519   = "ed25519"
	Secp256k1 = "secp256k1"
)

// seedContext is the BLAKE3 key-derivation context for seeded identities.
// Changing it changes every seeded peer ID.
const seedContext = "peerprobe 2024-06-01 local identity key v1"

var (
	ErrUnknownKeyType  = errors.New("unknown key type")
	ErrWrongPassphrase = errors.New("wrong passphrase or corrupted key file")
	ErrKeyTypeMismatch = errors.New("key file holds a different key type")
)

// Options selects how the identity is obtained. File takes precedence over
// Seed; with neither, a fresh key is generated.
type Options struct {
	KeyType    string
	Seed       string
	File       string
	Passphrase []byte
	KDF        KDFParams // zero means DefaultKDFParams
}

// Origin says where New obtained the key.
type Origin string

const (
	OriginGenerated   Origin = "generated"    // fresh random key
	OriginSeed        Origin = "seed"         // derived from Options.Seed
	OriginFile        Origin = "file"         // loaded from Options.File
	OriginFileCreated Origin = "file_created" // generated and saved to Options.File
)

// New returns the identity described by opts and where it came from.
func New(opts Options) (libp2pcrypto.PrivKey, Origin, error) {
	switch {
	case opts.File != "":
		priv, created, err := LoadOrCreate(opts.File, opts.KeyType, opts.Passphrase, opts.KDF)
		if err != nil {
			return nil, "", fmt.Errorf("identity file %s: %w", opts.File, err)
		}
		if created {
			return priv, OriginFileCreated, nil
		}
		return priv, OriginFile, nil
	case opts.Seed != "":
		priv, err := FromSeed(opts.KeyType, opts.Seed)
		return priv, OriginSeed, err
	default:
		priv, err := Generate(opts.KeyType)
		return priv, OriginGenerated, err
	}
}

// Generate creates a fresh random key. An empty key type means ed25519.
func Generate(keyType string) (libp2pcrypto.PrivKey, error) {
	switch normalize(keyType) {
	case Ed25519:
		priv, _, err := libp2pcrypto.GenerateEd25519Key(rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("generate ed25519 key: %w", err)
		}
		return priv, nil
	case Secp256k1:
		priv, err := secp256k1.GeneratePrivateKey()
		if err != nil {
			return nil, fmt.Errorf("generate secp256k1 key: %w", err)
		}
		return (*libp2pcrypto.Secp256k1PrivateKey)(priv), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKeyType, keyType)
	}
}

// FromSeed deterministically derives a key from seed, so the same seed and
// key type always yield the same peer ID.
func FromSeed(keyType, seed string) (libp2pcrypto.PrivKey, error) {
	if seed == "" {
		return nil, errors.New("empty identity seed")
	}
	var material [32]byte
	blake3.DeriveKey(seedContext, []byte(seed), material[:])
	defer wipe(material[:])

	switch normalize(keyType) {
	case Ed25519:
		return libp2pcrypto.UnmarshalEd25519PrivateKey(ed25519.NewKeyFromSeed(material[:]))
	case Secp256k1:
		return (*libp2pcrypto.Secp256k1PrivateKey)(secp256k1.PrivKeyFromBytes(material[:])), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKeyType, keyType)
	}
}

// KeyType returns the normalized key type name of priv.
func KeyType(priv libp2pcrypto.PrivKey) string {
	switch priv.Type() {
	case libp2pcrypto.Ed25519:
		return Ed25519
	case libp2pcrypto.Secp256k1:
		return Secp256k1
	default:
		return strings.ToLower(priv.Type().String())
	}
}

func normalize(keyType string) string {
	keyType = strings.ToLower(strings.TrimSpace(keyType))
	if keyType == "" {
		return Ed25519
	}
	return keyType
}
