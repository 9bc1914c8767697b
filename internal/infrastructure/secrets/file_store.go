package secrets

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/crypto/hkdf"

	"github.com/goodhang/authcore/pkg/constants"
	"github.com/goodhang/authcore/pkg/errors"
	"github.com/goodhang/authcore/pkg/logger"
)

const (
	saltFileName = ".salt"
	saltLen      = 16
	keyLen       = 32
)

// FileStore is the encrypted-file backend. Each secret key maps to one file
// under dir holding nonce || AES-256-GCM ciphertext. The AES key is derived
// per install with HKDF-SHA256 from the master key and a random salt created
// on first use, so copying the files to another machine without the master
// key yields nothing.
type FileStore struct {
	mu     sync.Mutex
	dir    string
	aead   cipher.AEAD
	logger logger.Logger
}

var _ Store = (*FileStore)(nil)

// NewFileStore creates the file backend. masterKey is the raw master key
// material (from the OS keychain or an environment variable, never from the
// config file).
func NewFileStore(dir string, masterKey []byte, log logger.Logger) (*FileStore, error) {
	if len(masterKey) == 0 {
		return nil, errors.Storage("master_key_missing", "secret store master key is empty")
	}
	dir = os.ExpandEnv(dir)
	if err := os.MkdirAll(dir, constants.SecretDirMode); err != nil {
		return nil, errors.ErrSecretStoreUnavailable("init", err)
	}

	salt, err := loadOrCreateSalt(filepath.Join(dir, saltFileName))
	if err != nil {
		return nil, errors.ErrSecretStoreUnavailable("init", err)
	}

	key := make([]byte, keyLen)
	kdf := hkdf.New(sha256.New, masterKey, salt, []byte("goodhang-secret-store"))
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, errors.ErrSecretStoreUnavailable("init", err)
	}
	defer zero(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errors.ErrSecretStoreUnavailable("init", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, errors.ErrSecretStoreUnavailable("init", err)
	}

	return &FileStore{
		dir:    dir,
		aead:   aead,
		logger: log.WithComponent("secrets.file"),
	}, nil
}

// Acquire decrypts the record for key and passes it to fn. The plaintext
// buffer is zeroed before Acquire returns, on every path.
func (s *FileStore) Acquire(ctx context.Context, key string, fn func(plaintext []byte) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return fn(nil)
		}
		return errors.ErrSecretStoreUnavailable("read", err)
	}

	plaintext, err := s.decrypt(data, key)
	if err != nil {
		// A record we cannot decrypt is indistinguishable from corruption.
		// Report it as unreadable; callers treat the record as absent.
		s.logger.Warn(ctx, "secret record unreadable, treating as absent", logger.String("key", key))
		return errors.ErrSecretStoreUnavailable("decrypt", err)
	}
	defer zero(plaintext)

	return fn(plaintext)
}

// Put encrypts and writes the record for key, replacing any prior value.
// The write goes through a temp file and rename so a crash never leaves a
// half-written record.
func (s *FileStore) Put(ctx context.Context, key string, plaintext []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return errors.ErrSecretStoreUnavailable("write", err)
	}
	sealed := s.aead.Seal(nonce, nonce, plaintext, []byte(key))

	path := s.path(key)
	if err := os.MkdirAll(filepath.Dir(path), constants.SecretDirMode); err != nil {
		return errors.ErrSecretStoreUnavailable("write", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, sealed, constants.SecretFileMode); err != nil {
		return errors.ErrSecretStoreUnavailable("write", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return errors.ErrSecretStoreUnavailable("write", err)
	}
	return nil
}

// Delete removes the record for key. Deleting an absent record is a no-op.
func (s *FileStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path(key)); err != nil && !os.IsNotExist(err) {
		return errors.ErrSecretStoreUnavailable("delete", err)
	}
	return nil
}

func (s *FileStore) decrypt(data []byte, key string) ([]byte, error) {
	if len(data) < s.aead.NonceSize() {
		return nil, fmt.Errorf("record too short")
	}
	nonce, ciphertext := data[:s.aead.NonceSize()], data[s.aead.NonceSize():]
	return s.aead.Open(nil, nonce, ciphertext, []byte(key))
}

// path maps a secret key to a filename. Key segments may contain '/' for
// namespacing; anything else unusual is encoded away.
func (s *FileStore) path(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = base64.RawURLEncoding.EncodeToString([]byte(p))
	}
	return filepath.Join(s.dir, filepath.Join(parts...)+".bin")
}

func loadOrCreateSalt(path string) ([]byte, error) {
	salt, err := os.ReadFile(path)
	if err == nil && len(salt) == saltLen {
		return salt, nil
	}
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	salt = make([]byte, saltLen)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, salt, constants.SecretFileMode); err != nil {
		return nil, err
	}
	return salt, nil
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
