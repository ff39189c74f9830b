package config

import (
	"fmt"
	"os"
	"strings"

	"jobpulse/internal/errors"

	"github.com/hashicorp/vault/api"
)

// VaultConfig holds Vault connection configuration
type VaultConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Address   string `mapstructure:"address"`
	Token     string `mapstructure:"token"`
	TokenFile string `mapstructure:"tokenFile"`
	Namespace string `mapstructure:"namespace"`

	// Secret paths
	Secrets VaultSecrets `mapstructure:"secrets"`
}

// VaultSecrets defines where to find secrets in Vault
type VaultSecrets struct {
	// Credentials expects a single string with comma-separated provider
	// credentials, e.g. "key1,key2,key3". Order defines rotation order.
	Credentials string `mapstructure:"credentials"`
}

// VaultClient wraps the Vault API client
type VaultClient struct {
	client *api.Client
	config VaultConfig
	logger *errors.Logger
}

// NewVaultClient creates a new Vault client from configuration.
// Returns (nil, nil) when Vault integration is disabled.
func NewVaultClient(config VaultConfig, logger *errors.Logger) (*VaultClient, error) {
	if !config.Enabled {
		if logger != nil {
			logger.Debug("Vault integration disabled")
		}
		return nil, nil
	}

	client, err := createVaultAPIClient(config, logger)
	if err != nil {
		return nil, err
	}

	token, err := resolveVaultToken(config)
	if err != nil {
		return nil, err
	}

	client.SetToken(token)

	if err := testVaultConnection(client, config.Address, logger); err != nil {
		return nil, err
	}

	return &VaultClient{
		client: client,
		config: config,
		logger: logger,
	}, nil
}

// createVaultAPIClient creates and configures the Vault API client
func createVaultAPIClient(config VaultConfig, logger *errors.Logger) (*api.Client, error) {
	vaultConfig := api.DefaultConfig()
	if config.Address != "" {
		vaultConfig.Address = config.Address
	}

	client, err := api.NewClient(vaultConfig)
	if err != nil {
		if logger != nil {
			logger.LogError(err, "Failed to create Vault client")
		}
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}

	if config.Namespace != "" {
		client.SetNamespace(config.Namespace)
	}

	return client, nil
}

// resolveVaultToken resolves the Vault token from config or file
func resolveVaultToken(config VaultConfig) (string, error) {
	token := config.Token

	if token == "" && config.TokenFile != "" {
		data, err := os.ReadFile(config.TokenFile)
		if err != nil {
			return "", fmt.Errorf("failed to read vault token file: %w", err)
		}
		token = strings.TrimSpace(string(data))
	}

	if token == "" {
		token = os.Getenv("VAULT_TOKEN")
	}

	if token == "" {
		return "", fmt.Errorf("vault token not found (set vault.token, vault.tokenFile, or VAULT_TOKEN)")
	}

	return token, nil
}

// testVaultConnection verifies the client can reach Vault
func testVaultConnection(client *api.Client, address string, logger *errors.Logger) error {
	health, err := client.Sys().Health()
	if err != nil {
		if logger != nil {
			logger.LogError(err, "Vault health check failed", "address", address)
		}
		return fmt.Errorf("vault health check failed: %w", err)
	}
	if logger != nil {
		logger.Debug("Vault connection verified",
			"address", address,
			"sealed", health.Sealed,
			"version", health.Version)
	}
	return nil
}

// LoadCredentials reads the provider credential list from the configured
// secret path. The secret is expected to hold a "value" field with
// comma-separated credentials.
func (vc *VaultClient) LoadCredentials() ([]string, error) {
	if vc == nil || vc.config.Secrets.Credentials == "" {
		return nil, nil
	}

	secret, err := vc.client.Logical().Read(vc.config.Secrets.Credentials)
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials from vault: %w", err)
	}
	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("no secret found at %s", vc.config.Secrets.Credentials)
	}

	// KV v2 nests the payload under "data"
	data := secret.Data
	if nested, ok := data["data"].(map[string]any); ok {
		data = nested
	}

	raw, ok := data["value"].(string)
	if !ok || raw == "" {
		return nil, fmt.Errorf("secret at %s has no string 'value' field", vc.config.Secrets.Credentials)
	}

	creds := splitAndTrim(raw)
	if len(creds) == 0 {
		return nil, fmt.Errorf("secret at %s contained no credentials", vc.config.Secrets.Credentials)
	}

	vc.logger.Info("Loaded provider credentials from Vault", "count", len(creds))
	return creds, nil
}

// ApplyVaultSecrets overwrites the credential pool from Vault when configured.
// Called once at startup, before the dispatcher is constructed.
func (c *Config) ApplyVaultSecrets(logger *errors.Logger) error {
	vc, err := NewVaultClient(c.Vault, logger)
	if err != nil {
		return errors.NewConfigError(errors.ErrCodeInvalidConfig, "Vault setup failed", err)
	}
	if vc == nil {
		return nil
	}

	creds, err := vc.LoadCredentials()
	if err != nil {
		return errors.NewConfigError(errors.ErrCodeMissingCredentials, "Vault credential load failed", err)
	}
	if len(creds) > 0 {
		c.AI.Credentials = creds
	}
	return nil
}
