package secrets

import (
	"context"
	"encoding/base64"
	stderrors "errors"
	"fmt"

	vault "github.com/hashicorp/vault/api"

	"github.com/goodhang/authcore/internal/config"
	"github.com/goodhang/authcore/pkg/errors"
	"github.com/goodhang/authcore/pkg/logger"
)

// VaultStore is the KV v2 backend used by the hosted dashboard deployment,
// where secrets live in Vault instead of an encrypted local file.
type VaultStore struct {
	client    *vault.Client
	mountPath string
	basePath  string
	logger    logger.Logger
}

var _ Store = (*VaultStore)(nil)

// NewVaultStore creates the Vault backend.
func NewVaultStore(cfg config.VaultConfig, log logger.Logger) (*VaultStore, error) {
	vaultCfg := vault.DefaultConfig()
	vaultCfg.Address = cfg.Address
	client, err := vault.NewClient(vaultCfg)
	if err != nil {
		return nil, errors.ErrSecretStoreUnavailable("init", err)
	}
	if cfg.Token != "" {
		client.SetToken(cfg.Token)
	}
	return &VaultStore{
		client:    client,
		mountPath: cfg.MountPath,
		basePath:  cfg.BasePath,
		logger:    log.WithComponent("secrets.vault"),
	}, nil
}

// Acquire reads the record for key and passes it to fn. Vault transports the
// value as base64 so arbitrary bytes survive the JSON round trip.
func (s *VaultStore) Acquire(ctx context.Context, key string, fn func(plaintext []byte) error) error {
	secret, err := s.client.KVv2(s.mountPath).Get(ctx, s.path(key))
	if err != nil {
		if isVaultNotFound(err) {
			return fn(nil)
		}
		return errors.ErrSecretStoreUnavailable("read", err)
	}

	encoded, ok := secret.Data["value"].(string)
	if !ok {
		s.logger.Warn(ctx, "vault record malformed, treating as absent", logger.String("key", key))
		return errors.ErrSecretStoreUnavailable("read", fmt.Errorf("missing value field"))
	}
	plaintext, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return errors.ErrSecretStoreUnavailable("read", err)
	}
	defer zero(plaintext)

	return fn(plaintext)
}

// Put writes the record for key, replacing any prior value.
func (s *VaultStore) Put(ctx context.Context, key string, plaintext []byte) error {
	_, err := s.client.KVv2(s.mountPath).Put(ctx, s.path(key), map[string]interface{}{
		"value": base64.StdEncoding.EncodeToString(plaintext),
	})
	if err != nil {
		return errors.ErrSecretStoreUnavailable("write", err)
	}
	return nil
}

// Delete removes the record for key.
func (s *VaultStore) Delete(ctx context.Context, key string) error {
	if err := s.client.KVv2(s.mountPath).DeleteMetadata(ctx, s.path(key)); err != nil {
		if isVaultNotFound(err) {
			return nil
		}
		return errors.ErrSecretStoreUnavailable("delete", err)
	}
	return nil
}

func (s *VaultStore) path(key string) string {
	return s.basePath + "/" + key
}

func isVaultNotFound(err error) bool {
	if err == nil {
		return false
	}
	var respErr *vault.ResponseError
	if stderrors.As(err, &respErr) {
		return respErr.StatusCode == 404
	}
	return stderrors.Is(err, vault.ErrSecretNotFound)
}
