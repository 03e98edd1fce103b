package secrets

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/OffGrid0xDAO/EigenSwarm-Monad-sub002/infrastructure/crypto"
)

const (
	fileSubject = "eigenswarm-keeper-secrets"
	fileInfo    = "v1"
	filePerm    = 0o600
)

// payload is the plaintext wrapped inside the on-disk envelope.
type payload struct {
	MasterKeyHex      string `json:"master_key_hex"`
	FacilitatorURL    string `json:"facilitator_url"`
	FacilitatorAPIKey string `json:"facilitator_api_key"`
}

// FileStore persists the keeper's secrets in a single AES-256-GCM envelope
// on disk, wrapped by a root key supplied out-of-band (an env var, in
// development; a mounted file in production). Rotating the root key
// re-wraps the envelope without disturbing the master secret it protects,
// so sub-wallet derivation is unaffected by key rotation.
type FileStore struct {
	path string
	body payload
}

// OpenFileStore reads and decrypts the secrets file at path using rootKey.
// If the file does not exist, it is treated as empty (all getters return
// ErrNotFound until Seed is called).
func OpenFileStore(path string, rootKey []byte) (*FileStore, error) {
	s := &FileStore{path: path}
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("secrets: read %s: %w", path, err)
	}
	plaintext, err := crypto.DecryptEnvelope(rootKey, []byte(fileSubject), fileInfo, raw)
	if err != nil {
		return nil, fmt.Errorf("secrets: %w: %v", ErrInvalidCiphertext, err)
	}
	if len(plaintext) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(plaintext, &s.body); err != nil {
		return nil, fmt.Errorf("secrets: decode payload: %w", err)
	}
	return s, nil
}

// Seed writes master key, facilitator URL, and facilitator API key to the
// store, encrypting them with rootKey, and persists the result to disk.
func (s *FileStore) Seed(rootKey []byte, masterKey []byte, facilitatorURL, facilitatorAPIKey string) error {
	s.body = payload{
		MasterKeyHex:      hex.EncodeToString(masterKey),
		FacilitatorURL:    facilitatorURL,
		FacilitatorAPIKey: facilitatorAPIKey,
	}
	return s.persist(rootKey)
}

// Rotate re-encrypts the existing payload under newRootKey. Call after
// reading the file with the old root key.
func (s *FileStore) Rotate(newRootKey []byte) error {
	return s.persist(newRootKey)
}

func (s *FileStore) persist(rootKey []byte) error {
	plaintext, err := json.Marshal(s.body)
	if err != nil {
		return fmt.Errorf("secrets: encode payload: %w", err)
	}
	ciphertext, err := crypto.EncryptEnvelope(rootKey, []byte(fileSubject), fileInfo, plaintext)
	if err != nil {
		return fmt.Errorf("secrets: encrypt payload: %w", err)
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("secrets: mkdir %s: %w", dir, err)
		}
	}
	return os.WriteFile(s.path, ciphertext, filePerm)
}

func (s *FileStore) MasterKey() ([]byte, error) {
	if s.body.MasterKeyHex == "" {
		return nil, ErrNotFound
	}
	key, err := hex.DecodeString(s.body.MasterKeyHex)
	if err != nil {
		return nil, fmt.Errorf("secrets: %w: %v", ErrInvalidCiphertext, err)
	}
	return key, nil
}

func (s *FileStore) FacilitatorURL() (string, error) {
	if s.body.FacilitatorURL == "" {
		return "", ErrNotFound
	}
	return s.body.FacilitatorURL, nil
}

func (s *FileStore) FacilitatorAPIKey() (string, error) {
	if s.body.FacilitatorAPIKey == "" {
		return "", ErrNotFound
	}
	return s.body.FacilitatorAPIKey, nil
}

// NormalizeRootKey accepts a 64-char hex string or a raw 32-byte string and
// returns the 32-byte key.
func NormalizeRootKey(raw string) ([]byte, error) {
	trimmed := strings.TrimSpace(raw)
	trimmed = strings.TrimPrefix(strings.TrimPrefix(trimmed, "0x"), "0X")
	if trimmed == "" {
		return nil, fmt.Errorf("secrets: root key is required")
	}
	if decoded, err := hex.DecodeString(trimmed); err == nil && len(decoded) == 32 {
		return decoded, nil
	}
	if len(trimmed) == 32 {
		return []byte(trimmed), nil
	}
	return nil, fmt.Errorf("secrets: root key must be 32 bytes raw or 64 hex chars")
}
