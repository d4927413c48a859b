package backends

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"

	"github.com/carlmjohnson/requests"
)

// HashicorpConfig carries the per-metadata-entry HashiCorp Vault connection
// parameters for the "hashicorp" entry type.
type HashicorpConfig struct {
	ServerHost         string
	ServerPort         int
	Token              string
	TLSEnabled         bool
	TLSKnownServerFile string
}

// HashicorpClient fetches a secret value from a Vault KV or transit path,
// implementing SecretFetcher for hashicorp metadata entries.
type HashicorpClient struct {
	cfg        HashicorpConfig
	httpClient *http.Client
}

// NewHashicorpClient builds a client for the given Vault server.
func NewHashicorpClient(cfg HashicorpConfig) *HashicorpClient {
	if cfg.ServerPort == 0 {
		cfg.ServerPort = 8200
	}
	client := http.DefaultClient
	if cfg.TLSEnabled {
		client = &http.Client{
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{MinVersion: tls.VersionTLS12}, //nolint:gosec // system-root verification only; TLSKnownServerFile is not read
			},
		}
	}
	return &HashicorpClient{cfg: cfg, httpClient: client}
}

func (c *HashicorpClient) baseURL() string {
	scheme := "http"
	if c.cfg.TLSEnabled {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, c.cfg.ServerHost, c.cfg.ServerPort)
}

// FetchSecret reads keyPath from Vault's KV v2 engine and returns one value
// from the secret's data map. No key name is selected: when the secret holds
// several keys, which value is returned is not defined.
func (c *HashicorpClient) FetchSecret(ctx context.Context, keyPath string) (string, error) {
	var resp struct {
		Data struct {
			Data map[string]string `json:"data"`
		} `json:"data"`
	}

	err := requests.
		URL(c.baseURL()).
		Path(keyPath).
		Client(c.httpClient).
		Header("X-Vault-Token", c.cfg.Token).
		ToJSON(&resp).
		Fetch(ctx)
	if err != nil {
		return "", fmt.Errorf("hashicorp vault read %s: %w", keyPath, err)
	}

	for _, v := range resp.Data.Data {
		return v, nil
	}
	return "", fmt.Errorf("hashicorp vault secret %s has no data", keyPath)
}
