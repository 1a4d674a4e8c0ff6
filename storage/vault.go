package storage

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/vault/api"

	"github.com/ruteri/tee-enclave-agent/interfaces"
)

// VaultOptions configures a KV v2 backed store.
type VaultOptions struct {
	// Address of the Vault server, e.g. https://vault.example.com:8200
	Address string
	// MountPath of the KV v2 engine, e.g. "secret"
	MountPath string
	// DataPath within the mount, e.g. "enclave-agent"
	DataPath string
	// Token authenticates requests. Empty falls back to VAULT_TOKEN.
	Token string
	// Namespace is set on every request when non-empty.
	Namespace string
	Timeout   time.Duration
}

// VaultBackend stores content as base64 strings in a KV v2 secrets engine.
type VaultBackend struct {
	client      *api.Client
	mountPath   string
	dataPath    string
	log         *slog.Logger
	locationURI string
}

func NewVaultBackend(opts VaultOptions, log *slog.Logger) (*VaultBackend, error) {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}

	config := api.DefaultConfig()
	config.Address = opts.Address
	config.HttpClient = &http.Client{Timeout: opts.Timeout}

	client, err := api.NewClient(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vault client: %w", err)
	}
	if opts.Token != "" {
		client.SetToken(opts.Token)
	}
	if opts.Namespace != "" {
		client.SetNamespace(opts.Namespace)
	}

	mountPath := strings.Trim(opts.MountPath, "/")
	if mountPath == "" {
		mountPath = "secret"
	}
	dataPath := strings.Trim(opts.DataPath, "/")

	return &VaultBackend{
		client:      client,
		mountPath:   mountPath,
		dataPath:    dataPath,
		log:         log,
		locationURI: fmt.Sprintf("vault://%s/%s/%s", strings.TrimPrefix(strings.TrimPrefix(opts.Address, "https://"), "http://"), mountPath, dataPath),
	}, nil
}

func (b *VaultBackend) Fetch(ctx context.Context, id interfaces.ContentID, contentType interfaces.ContentType) ([]byte, error) {
	secretPath, err := b.secretPath(id, contentType)
	if err != nil {
		return nil, err
	}

	secret, err := b.client.KVv2(b.mountPath).Get(ctx, secretPath)
	if err != nil {
		if errors.Is(err, api.ErrSecretNotFound) {
			b.log.Debug("Content not found in Vault", "path", secretPath)
			return nil, interfaces.ErrContentNotFound
		}
		b.log.Error("Failed to read from Vault", "path", secretPath, "err", err)
		return nil, fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}

	encoded, ok := secret.Data["content"].(string)
	if !ok {
		return nil, fmt.Errorf("content key not found in Vault data at %s", secretPath)
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("invalid content encoding in Vault data: %w", err)
	}

	b.log.Debug("Fetched content from Vault", "path", secretPath, "size", len(data))
	return data, nil
}

func (b *VaultBackend) Store(ctx context.Context, data []byte, contentType interfaces.ContentType) (interfaces.ContentID, error) {
	id := interfaces.ComputeID(data)
	secretPath, err := b.secretPath(id, contentType)
	if err != nil {
		return id, err
	}

	_, err = b.client.KVv2(b.mountPath).Put(ctx, secretPath, map[string]interface{}{
		"content": base64.StdEncoding.EncodeToString(data),
	})
	if err != nil {
		b.log.Error("Failed to write to Vault", "path", secretPath, "err", err)
		return id, fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}

	b.log.Debug("Stored content in Vault", "path", secretPath)
	return id, nil
}

// Available reports whether Vault is initialized and unsealed.
func (b *VaultBackend) Available(ctx context.Context) bool {
	healthCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	health, err := b.client.Sys().HealthWithContext(healthCtx)
	if err != nil {
		b.log.Debug("Vault health check failed", "err", err)
		return false
	}
	if !health.Initialized || health.Sealed {
		b.log.Debug("Vault is not available",
			slog.Bool("initialized", health.Initialized),
			slog.Bool("sealed", health.Sealed))
		return false
	}
	return true
}

func (b *VaultBackend) Name() string {
	return fmt.Sprintf("vault-%s-%s", b.mountPath, b.dataPath)
}

func (b *VaultBackend) LocationURI() string {
	return b.locationURI
}

func (b *VaultBackend) secretPath(id interfaces.ContentID, contentType interfaces.ContentType) (string, error) {
	dir, err := namespace(contentType)
	if err != nil {
		return "", err
	}
	if b.dataPath == "" {
		return dir + "/" + id.String(), nil
	}
	return b.dataPath + "/" + dir + "/" + id.String(), nil
}
