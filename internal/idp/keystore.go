package idp

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/persona-compat/browserid-go/internal/key"
	"github.com/persona-compat/browserid-go/internal/token"
)

// DefaultKeyName is the key-pair name used when none is configured.
const DefaultKeyName = "root"

// KeyStore loads the local IdP's own key pair once at startup; afterwards it
// is read-only.
type KeyStore interface {
	PublicKey() key.PublicKey
	SecretKey() key.SecretKey
}

// FileKeyStore reads the on-disk layout: <name>.secretkey holds the
// SecretKey JSON, <name>.cert holds a JWT whose payload is
// {"public-key": <PublicKey JSON>}.
type FileKeyStore struct {
	pub key.PublicKey
	sec key.SecretKey
}

func (s *FileKeyStore) PublicKey() key.PublicKey { return s.pub }
func (s *FileKeyStore) SecretKey() key.SecretKey { return s.sec }

// LoadFileKeyStore reads the pair named name from dir.
func LoadFileKeyStore(dir, name string) (*FileKeyStore, error) {
	if name == "" {
		name = DefaultKeyName
	}
	secretPath := filepath.Join(dir, name+".secretkey")
	raw, err := os.ReadFile(secretPath)
	if err != nil {
		return nil, fmt.Errorf("read secret key: %w", err)
	}
	sec, err := key.UnmarshalSecret(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", secretPath, err)
	}

	certPath := filepath.Join(dir, name+".cert")
	rawCert, err := os.ReadFile(certPath)
	if err != nil {
		return nil, fmt.Errorf("read public key cert: %w", err)
	}
	pub, err := publicKeyFromCert(string(rawCert))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", certPath, err)
	}
	return &FileKeyStore{pub: pub, sec: sec}, nil
}

// BootstrapFileKeyStore generates a key pair and writes the on-disk layout,
// for hosts starting with an empty key directory. The .cert token is signed
// with the pair's own secret key.
func BootstrapFileKeyStore(dir, name string, generate func() (key.SecretKey, error)) (*FileKeyStore, error) {
	if name == "" {
		name = DefaultKeyName
	}
	sec, err := generate()
	if err != nil {
		return nil, err
	}
	pub := sec.Public()

	rawSecret, err := json.Marshal(sec)
	if err != nil {
		return nil, fmt.Errorf("serialize secret key: %w", err)
	}
	var keyObj map[string]interface{}
	rawPub, err := json.Marshal(pub)
	if err != nil {
		return nil, fmt.Errorf("serialize public key: %w", err)
	}
	if err := json.Unmarshal(rawPub, &keyObj); err != nil {
		return nil, fmt.Errorf("serialize public key: %w", err)
	}
	cert, err := token.Sign(map[string]interface{}{"public-key": keyObj}, sec)
	if err != nil {
		return nil, fmt.Errorf("sign public key cert: %w", err)
	}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	if err := os.WriteFile(filepath.Join(dir, name+".secretkey"), rawSecret, 0o600); err != nil {
		return nil, err
	}
	if err := os.WriteFile(filepath.Join(dir, name+".cert"), []byte(cert), 0o644); err != nil {
		return nil, err
	}
	return &FileKeyStore{pub: pub, sec: sec}, nil
}

func publicKeyFromCert(raw string) (key.PublicKey, error) {
	tok, err := token.Parse(raw)
	if err != nil {
		return nil, err
	}
	rawKey, ok := tok.Claims["public-key"]
	if !ok {
		return nil, fmt.Errorf("cert payload lacks public-key")
	}
	encoded, err := json.Marshal(rawKey)
	if err != nil {
		return nil, err
	}
	return key.UnmarshalPublic(encoded)
}
