package identity

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	libp2pcrypto "github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/peer"
)

// keyFile is the on-disk JSON format of a persisted identity.
type keyFile struct {
	Version   int       `json:"version"`
	KeyType   string    `json:"key_type"`
	PeerID    string    `json:"peer_id"`
	CreatedAt time.Time `json:"created_at"`
	Encrypted bool      `json:"encrypted"`
	Key       []byte    `json:"key"` // protobuf-marshaled private key, sealed if Encrypted
}

// LoadOrCreate loads the identity persisted at path, or generates one of
// keyType and saves it. A non-empty passphrase encrypts a new file and is
// required to open an encrypted one. The bool result reports whether a new
// key was created.
func LoadOrCreate(path, keyType string, passphrase []byte, params KDFParams) (libp2pcrypto.PrivKey, bool, error) {
	priv, err := Load(path, passphrase)
	if err == nil {
		if want := normalize(keyType); keyType != "" && KeyType(priv) != want {
			return nil, false, fmt.Errorf("%w: %s has %s, want %s", ErrKeyTypeMismatch, path, KeyType(priv), want)
		}
		return priv, false, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, false, err
	}

	priv, err = Generate(keyType)
	if err != nil {
		return nil, false, err
	}
	if err := Save(path, priv, passphrase, params); err != nil {
		return nil, false, err
	}
	return priv, true, nil
}

// Load reads the identity persisted at path.
func Load(path string, passphrase []byte) (libp2pcrypto.PrivKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}
	var kf keyFile
	if err := json.Unmarshal(data, &kf); err != nil {
		return nil, fmt.Errorf("decode key file %s: %w", path, err)
	}
	if kf.Version != 1 {
		return nil, fmt.Errorf("unsupported key file version %d", kf.Version)
	}

	raw := kf.Key
	if kf.Encrypted {
		if len(passphrase) == 0 {
			return nil, fmt.Errorf("key file %s is encrypted: %w", path, ErrWrongPassphrase)
		}
		if raw, err = unseal(kf.Key, passphrase, kf.KeyType); err != nil {
			return nil, err
		}
		defer wipe(raw)
	}

	priv, err := libp2pcrypto.UnmarshalPrivateKey(raw)
	if err != nil {
		return nil, fmt.Errorf("unmarshal key: %w", err)
	}
	if KeyType(priv) != kf.KeyType {
		return nil, fmt.Errorf("%w: header says %s, key is %s", ErrKeyTypeMismatch, kf.KeyType, KeyType(priv))
	}
	return priv, nil
}

// Save writes priv to path with 0600 permissions, creating parent
// directories as needed. It refuses to overwrite an existing file.
func Save(path string, priv libp2pcrypto.PrivKey, passphrase []byte, params KDFParams) error {
	raw, err := libp2pcrypto.MarshalPrivateKey(priv)
	if err != nil {
		return fmt.Errorf("marshal key: %w", err)
	}
	defer wipe(raw)

	id, err := peer.IDFromPrivateKey(priv)
	if err != nil {
		return fmt.Errorf("derive peer id: %w", err)
	}

	kf := keyFile{
		Version:   1,
		KeyType:   KeyType(priv),
		PeerID:    id.String(),
		CreatedAt: time.Now().UTC(),
		Key:       raw,
	}
	if len(passphrase) > 0 {
		if params.isZero() {
			params = DefaultKDFParams()
		}
		sealed, err := seal(raw, passphrase, kf.KeyType, params)
		if err != nil {
			return fmt.Errorf("encrypt key: %w", err)
		}
		kf.Key = sealed
		kf.Encrypted = true
	}

	data, err := json.MarshalIndent(&kf, "", "  ")
	if err != nil {
		return fmt.Errorf("encode key file: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("create key dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return fmt.Errorf("create key file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("write key file: %w", err)
	}
	return f.Close()
}
