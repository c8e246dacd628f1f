package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"marks-access/internal/config"
	"marks-access/internal/database"
	"marks-access/internal/propstore"
	"marks-access/internal/repository"
	"marks-access/internal/service"
	"marks-access/internal/vault"
)

// getContext creates a context with timeout
func getContext(timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), timeout)
}

// openPropertyStore builds the backend holding the OTP blob and dedup flags
func openPropertyStore(cfg *config.Config, db *database.Database) (service.PropertyStore, error) {
	var vaultClient *vault.Client
	if cfg.Vault.Enabled {
		client, err := vault.NewClient(&vault.Config{
			Address:      cfg.Vault.Address,
			Token:        cfg.Vault.Token,
			KVMount:      cfg.Vault.KVMount,
			TransitMount: cfg.Vault.TransitMount,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize vault client: %w", err)
		}
		vaultClient = client
	}

	var store propstore.Store
	switch cfg.PropertyStore.Backend {
	case "vault":
		if vaultClient == nil {
			return nil, fmt.Errorf("vault property store requires VAULT_ENABLED")
		}
		store = propstore.NewVaultStore(vaultClient, "marks-access/properties")
	default:
		store = repository.NewPropertyRepository(db.DB)
	}

	if !cfg.PropertyStore.EncryptSecrets {
		return store, nil
	}

	ctx, cancel := getContext(30 * time.Second)
	defer cancel()
	if err := vaultClient.EnsureTransitKey(ctx, cfg.Vault.TransitKey); err != nil {
		return nil, fmt.Errorf("failed to prepare transit key: %w", err)
	}
	slog.Info("OTP blob encryption enabled", "transit_key", cfg.Vault.TransitKey)
	return propstore.NewEncryptedStore(store, vaultClient, cfg.Vault.TransitKey, service.OTPPropertyKey), nil
}

// healthHandler reports database reachability
func healthHandler(db *database.Database) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := db.HealthCheck(); err != nil {
			slog.Error("Health check failed", "error", err)
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{"status": "unhealthy", "database": "unreachable"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "healthy", "database": "ok"})
	}
}
