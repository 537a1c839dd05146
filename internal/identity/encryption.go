package identity

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

// Sealed key layout:
// version(1) | salt(16) | memory(4) | iterations(4) | parallelism(1) | nonce(24) | ciphertext
const (
	sealVersion = 1
	saltSize    = 16
	sealHeader  = 1 + saltSize + 4 + 4 + 1
)

// KDFParams holds the Argon2id cost parameters used to stretch a
// passphrase into a key-file encryption key.
type KDFParams struct {
	Memory      uint32 // in KiB
	Iterations  uint32
	Parallelism uint8
}

// DefaultKDFParams returns the Argon2id parameters used for new key files.
func DefaultKDFParams() KDFParams {
	return KDFParams{
		Memory:      64 * 1024,
		Iterations:  3,
		Parallelism: 4,
	}
}

func (p KDFParams) isZero() bool {
	return p.Memory == 0 && p.Iterations == 0 && p.Parallelism == 0
}

func stretch(passphrase, salt []byte, p KDFParams) []byte {
	return argon2.IDKey(passphrase, salt, p.Iterations, p.Memory, p.Parallelism, chacha20poly1305.KeySize)
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// seal encrypts a marshaled private key. The key type is bound as
// associated data so a sealed blob cannot be relabeled.
func seal(plain, passphrase []byte, keyType string, p KDFParams) ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}

	key := stretch(passphrase, salt, p)
	defer wipe(key)

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	out := make([]byte, 0, sealHeader+len(nonce)+len(plain)+aead.Overhead())
	out = append(out, sealVersion)
	out = append(out, salt...)
	out = binary.LittleEndian.AppendUint32(out, p.Memory)
	out = binary.LittleEndian.AppendUint32(out, p.Iterations)
	out = append(out, p.Parallelism)
	out = append(out, nonce...)
	return aead.Seal(out, nonce, plain, []byte(keyType)), nil
}

// unseal reverses seal.
func unseal(sealed, passphrase []byte, keyType string) ([]byte, error) {
	minSize := sealHeader + chacha20poly1305.NonceSizeX + chacha20poly1305.Overhead
	if len(sealed) < minSize {
		return nil, fmt.Errorf("sealed key too short: %d bytes, need at least %d", len(sealed), minSize)
	}
	if sealed[0] != sealVersion {
		return nil, fmt.Errorf("unsupported sealed key version %d", sealed[0])
	}

	salt := sealed[1 : 1+saltSize]
	rest := sealed[1+saltSize:]
	p := KDFParams{
		Memory:      binary.LittleEndian.Uint32(rest[0:4]),
		Iterations:  binary.LittleEndian.Uint32(rest[4:8]),
		Parallelism: rest[8],
	}
	nonce := sealed[sealHeader : sealHeader+chacha20poly1305.NonceSizeX]
	ciphertext := sealed[sealHeader+chacha20poly1305.NonceSizeX:]

	key := stretch(passphrase, salt, p)
	defer wipe(key)

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	plain, err := aead.Open(nil, nonce, ciphertext, []byte(keyType))
	if err != nil {
		return nil, ErrWrongPassphrase
	}
	return plain, nil
}
