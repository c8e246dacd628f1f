package vault

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/vault/api"
)

// Client wraps HashiCorp Vault API
type Client struct {
	client       *api.Client
	kvMount      string
	transitMount string
}

// Config holds Vault configuration
type Config struct {
	Address      string
	Token        string
	KVMount      string
	TransitMount string
}

// NewClient creates a new Vault client
func NewClient(cfg *Config) (*Client, error) {
	config := api.DefaultConfig()
	config.Address = cfg.Address

	client, err := api.NewClient(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}

	client.SetToken(cfg.Token)

	kvMount := cfg.KVMount
	if kvMount == "" {
		kvMount = "secret"
	}

	return &Client{
		client:       client,
		kvMount:      kvMount,
		transitMount: cfg.TransitMount,
	}, nil
}

// EnsureTransitKey mounts the transit engine if needed and creates keyName
func (c *Client) EnsureTransitKey(ctx context.Context, keyName string) error {
	mounts, err := c.client.Sys().ListMountsWithContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to list mounts: %w", err)
	}

	if _, exists := mounts[c.transitMount+"/"]; !exists {
		err = c.client.Sys().MountWithContext(ctx, c.transitMount, &api.MountInput{
			Type:        "transit",
			Description: "Transit encryption for portal properties",
		})
		if err != nil {
			return fmt.Errorf("failed to mount transit engine: %w", err)
		}
	}

	path := fmt.Sprintf("%s/keys/%s", c.transitMount, keyName)
	data := map[string]interface{}{
		"type":       "aes256-gcm96",
		"exportable": false,
	}
	if _, err := c.client.Logical().WriteWithContext(ctx, path, data); err != nil {
		return fmt.Errorf("failed to create key %s: %w", keyName, err)
	}

	return nil
}

// Encrypt encrypts data using Vault's transit engine
func (c *Client) Encrypt(ctx context.Context, keyName string, plaintext []byte) (string, error) {
	path := fmt.Sprintf("%s/encrypt/%s", c.transitMount, keyName)

	secret, err := c.client.Logical().WriteWithContext(ctx, path, map[string]interface{}{
		"plaintext": base64.StdEncoding.EncodeToString(plaintext),
	})
	if err != nil {
		return "", fmt.Errorf("failed to encrypt: %w", err)
	}
	if secret == nil {
		return "", fmt.Errorf("empty encrypt response")
	}

	ciphertext, ok := secret.Data["ciphertext"].(string)
	if !ok {
		return "", fmt.Errorf("invalid ciphertext response")
	}

	return ciphertext, nil
}

// Decrypt decrypts data using Vault's transit engine
func (c *Client) Decrypt(ctx context.Context, keyName string, ciphertext string) ([]byte, error) {
	path := fmt.Sprintf("%s/decrypt/%s", c.transitMount, keyName)

	secret, err := c.client.Logical().WriteWithContext(ctx, path, map[string]interface{}{
		"ciphertext": ciphertext,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt: %w", err)
	}
	if secret == nil {
		return nil, fmt.Errorf("empty decrypt response")
	}

	encodedPlaintext, ok := secret.Data["plaintext"].(string)
	if !ok {
		return nil, fmt.Errorf("invalid plaintext response")
	}

	plaintext, err := base64.StdEncoding.DecodeString(encodedPlaintext)
	if err != nil {
		return nil, fmt.Errorf("failed to decode plaintext: %w", err)
	}

	return plaintext, nil
}

// PutSecret stores data at path in the KV v2 mount
func (c *Client) PutSecret(ctx context.Context, path string, data map[string]interface{}) error {
	if _, err := c.client.KVv2(c.kvMount).Put(ctx, path, data); err != nil {
		return fmt.Errorf("failed to store secret: %w", err)
	}
	return nil
}

// PutSecretIfAbsent stores data at path only when nothing is stored there yet.
// It reports false when another writer got there first.
func (c *Client) PutSecretIfAbsent(ctx context.Context, path string, data map[string]interface{}) (bool, error) {
	_, err := c.client.KVv2(c.kvMount).Put(ctx, path, data, api.WithCheckAndSet(0))
	var respErr *api.ResponseError
	if errors.As(err, &respErr) && respErr.StatusCode == http.StatusBadRequest && strings.Contains(err.Error(), "check-and-set") {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to store secret: %w", err)
	}
	return true, nil
}

// GetSecret reads the latest version at path; found is false when nothing is stored
func (c *Client) GetSecret(ctx context.Context, path string) (data map[string]interface{}, found bool, err error) {
	secret, err := c.client.KVv2(c.kvMount).Get(ctx, path)
	if errors.Is(err, api.ErrSecretNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read secret: %w", err)
	}
	if secret == nil || secret.Data == nil {
		return nil, false, nil
	}
	return secret.Data, true, nil
}

// DeleteSecret removes every version and the metadata at path
func (c *Client) DeleteSecret(ctx context.Context, path string) error {
	if err := c.client.KVv2(c.kvMount).DeleteMetadata(ctx, path); err != nil {
		return fmt.Errorf("failed to delete secret: %w", err)
	}
	return nil
}

// ListSecrets returns the key names directly under dir, sorted
func (c *Client) ListSecrets(ctx context.Context, dir string) ([]string, error) {
	path := fmt.Sprintf("%s/metadata/%s", c.kvMount, strings.TrimSuffix(dir, "/"))

	secret, err := c.client.Logical().ListWithContext(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to list secrets: %w", err)
	}
	if secret == nil || secret.Data == nil {
		return nil, nil
	}

	raw, ok := secret.Data["keys"].([]interface{})
	if !ok {
		return nil, nil
	}

	keys := make([]string, 0, len(raw))
	for _, k := range raw {
		if s, ok := k.(string); ok && !strings.HasSuffix(s, "/") {
			keys = append(keys, s)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Health checks Vault health status
func (c *Client) Health() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	health, err := c.client.Sys().HealthWithContext(ctx)
	if err != nil {
		return fmt.Errorf("vault health check failed: %w", err)
	}

	if !health.Initialized {
		return fmt.Errorf("vault is not initialized")
	}

	if health.Sealed {
		return fmt.Errorf("vault is sealed")
	}

	return nil
}
