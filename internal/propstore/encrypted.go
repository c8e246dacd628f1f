package propstore

import (
	"context"
	"fmt"
	"slices"

	"marks-access/internal/models"
)

// Cipher encrypts values with a named key, as Vault transit does
type Cipher interface {
	Encrypt(ctx context.Context, keyName string, plaintext []byte) (string, error)
	Decrypt(ctx context.Context, keyName string, ciphertext string) ([]byte, error)
}

// EncryptedStore encrypts the values of selected keys before they reach the inner store
type EncryptedStore struct {
	inner   Store
	cipher  Cipher
	keyName string
	secrets []string
}

// NewEncryptedStore wraps inner so that values under the secret keys are stored encrypted
func NewEncryptedStore(inner Store, cipher Cipher, keyName string, secretKeys ...string) *EncryptedStore {
	return &EncryptedStore{inner: inner, cipher: cipher, keyName: keyName, secrets: secretKeys}
}

func (s *EncryptedStore) isSecret(key string) bool {
	return slices.Contains(s.secrets, key)
}

// Get decrypts secret keys transparently. A ciphertext that cannot be
// decrypted is reported as models.ErrCorruptValue.
func (s *EncryptedStore) Get(ctx context.Context, key string) (string, bool, error) {
	value, found, err := s.inner.Get(ctx, key)
	if err != nil || !found || !s.isSecret(key) {
		return value, found, err
	}

	plaintext, err := s.cipher.Decrypt(ctx, s.keyName, value)
	if err != nil {
		return "", false, fmt.Errorf("%w: failed to decrypt property %s: %v", models.ErrCorruptValue, key, err)
	}
	return string(plaintext), true, nil
}

// Set encrypts secret keys before writing
func (s *EncryptedStore) Set(ctx context.Context, key, value string) error {
	if !s.isSecret(key) {
		return s.inner.Set(ctx, key, value)
	}

	ciphertext, err := s.cipher.Encrypt(ctx, s.keyName, []byte(value))
	if err != nil {
		return fmt.Errorf("failed to encrypt property %s: %w", key, err)
	}
	return s.inner.Set(ctx, key, ciphertext)
}

// SetIfAbsent encrypts secret keys before the conditional write
func (s *EncryptedStore) SetIfAbsent(ctx context.Context, key, value string) (bool, error) {
	if !s.isSecret(key) {
		return s.inner.SetIfAbsent(ctx, key, value)
	}

	ciphertext, err := s.cipher.Encrypt(ctx, s.keyName, []byte(value))
	if err != nil {
		return false, fmt.Errorf("failed to encrypt property %s: %w", key, err)
	}
	return s.inner.SetIfAbsent(ctx, key, ciphertext)
}

// Delete removes key
func (s *EncryptedStore) Delete(ctx context.Context, key string) error {
	return s.inner.Delete(ctx, key)
}

// List returns the keys starting with prefix
func (s *EncryptedStore) List(ctx context.Context, prefix string) ([]string, error) {
	return s.inner.List(ctx, prefix)
}
