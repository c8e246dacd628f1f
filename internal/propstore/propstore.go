// Package propstore provides the durable key/value backends used for the
// OTP blob and notification dedup flags.
package propstore

import (
	"context"
	"fmt"
	"strings"

	"marks-access/internal/vault"
)

// Store is the key/value contract shared by every backend
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	// SetIfAbsent writes value only when key is unset and reports whether it did
	SetIfAbsent(ctx context.Context, key, value string) (bool, error)
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]string, error)
}

// VaultStore keeps each property as one KV v2 secret below a directory
type VaultStore struct {
	client *vault.Client
	dir    string
}

// NewVaultStore creates a Vault-backed store rooted at dir
func NewVaultStore(client *vault.Client, dir string) *VaultStore {
	return &VaultStore{client: client, dir: strings.Trim(dir, "/")}
}

func (s *VaultStore) path(key string) string {
	return s.dir + "/" + key
}

// Get returns the value under key and whether it exists
func (s *VaultStore) Get(ctx context.Context, key string) (string, bool, error) {
	data, found, err := s.client.GetSecret(ctx, s.path(key))
	if err != nil || !found {
		return "", false, err
	}
	value, ok := data["value"].(string)
	if !ok {
		return "", false, fmt.Errorf("property %s has no string value", key)
	}
	return value, true, nil
}

// Set writes value under key
func (s *VaultStore) Set(ctx context.Context, key, value string) error {
	return s.client.PutSecret(ctx, s.path(key), map[string]interface{}{"value": value})
}

// SetIfAbsent writes value under key unless the key already exists
func (s *VaultStore) SetIfAbsent(ctx context.Context, key, value string) (bool, error) {
	return s.client.PutSecretIfAbsent(ctx, s.path(key), map[string]interface{}{"value": value})
}

// Delete removes key
func (s *VaultStore) Delete(ctx context.Context, key string) error {
	return s.client.DeleteSecret(ctx, s.path(key))
}

// List returns the keys starting with prefix
func (s *VaultStore) List(ctx context.Context, prefix string) ([]string, error) {
	keys, err := s.client.ListSecrets(ctx, s.dir)
	if err != nil {
		return nil, err
	}
	var matched []string
	for _, k := range keys {
		if strings.HasPrefix(k, prefix) {
			matched = append(matched, k)
		}
	}
	return matched, nil
}
