package backends

import (
	"context"
	"crypto/ecdsa"
	"encoding/base64"
	"fmt"
	"math/big"
	"net/url"
	"time"

	"github.com/carlmjohnson/requests"

	gethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// AzureCredentials authenticates against Azure AD via the client-credentials
// flow, as used by the azure-secret / azure-key metadata entries.
type AzureCredentials struct {
	ClientID     string
	ClientSecret string
	TenantID     string
}

// AzureVaultClient fetches secrets from, and signs digests with keys in, an
// Azure Key Vault. Only the two capabilities the signing service needs are
// modelled; the full Key Vault REST surface is out of scope.
type AzureVaultClient struct {
	vaultName string
	creds     AzureCredentials
	tokenAt   time.Time
	token     string
}

// NewAzureVaultClient builds a client for the named vault (https://<vaultName>.vault.azure.net).
func NewAzureVaultClient(vaultName string, creds AzureCredentials) *AzureVaultClient {
	return &AzureVaultClient{vaultName: vaultName, creds: creds}
}

func (c *AzureVaultClient) baseURL() string {
	return fmt.Sprintf("https://%s.vault.azure.net", c.vaultName)
}

// accessToken performs the AD client-credentials grant, caching the token
// for its lifetime.
func (c *AzureVaultClient) accessToken(ctx context.Context) (string, error) {
	if c.token != "" && time.Now().Before(c.tokenAt) {
		return c.token, nil
	}

	form := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {c.creds.ClientID},
		"client_secret": {c.creds.ClientSecret},
		"scope":         {"https://vault.azure.net/.default"},
	}

	var resp struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}

	err := requests.
		URL(fmt.Sprintf("https://login.microsoftonline.com/%s/oauth2/v2.0/token", c.creds.TenantID)).
		BodyForm(form).
		Post().
		ToJSON(&resp).
		Fetch(ctx)
	if err != nil {
		return "", fmt.Errorf("azure ad token: %w", err)
	}

	c.token = resp.AccessToken
	c.tokenAt = time.Now().Add(time.Duration(resp.ExpiresIn-30) * time.Second)
	return c.token, nil
}

// FetchSecret implements SecretFetcher using the Key Vault "get secret" call.
func (c *AzureVaultClient) FetchSecret(ctx context.Context, name string) (string, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return "", err
	}

	var resp struct {
		Value string `json:"value"`
	}

	err = requests.
		URL(c.baseURL()).
		Pathf("/secrets/%s", name).
		Param("api-version", "7.4").
		Header("Authorization", "Bearer "+token).
		ToJSON(&resp).
		Fetch(ctx)
	if err != nil {
		return "", fmt.Errorf("azure get secret %s: %w", name, err)
	}

	return resp.Value, nil
}

// GetPublicKey implements the azure-key public-key fetch using the Key
// Vault "get key" call, returning the secp256k1 public key so a caller can
// wrap this client in a signing.BackendSecpSigner.
func (c *AzureVaultClient) GetPublicKey(ctx context.Context, keyName string) (*ecdsa.PublicKey, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Key struct {
			Kty string `json:"kty"`
			Crv string `json:"crv"`
			X   string `json:"x"`
			Y   string `json:"y"`
		} `json:"key"`
	}

	err = requests.
		URL(c.baseURL()).
		Pathf("/keys/%s", keyName).
		Param("api-version", "7.4").
		Header("Authorization", "Bearer "+token).
		ToJSON(&resp).
		Fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("azure get key %s: %w", keyName, err)
	}

	x, err := base64.RawURLEncoding.DecodeString(resp.Key.X)
	if err != nil {
		return nil, fmt.Errorf("decode azure key x coordinate: %w", err)
	}
	y, err := base64.RawURLEncoding.DecodeString(resp.Key.Y)
	if err != nil {
		return nil, fmt.Errorf("decode azure key y coordinate: %w", err)
	}

	return &ecdsa.PublicKey{
		Curve: gethcrypto.S256(),
		X:     new(big.Int).SetBytes(x),
		Y:     new(big.Int).SetBytes(y),
	}, nil
}

// SignDigest implements signing.DigestSigner using the Key Vault "sign" call
// (ES256K), returning the raw P1363 (r||s) signature.
func (c *AzureVaultClient) SignDigest(ctx context.Context, keyName string, digest []byte) ([]byte, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	payload := struct {
		Alg   string `json:"alg"`
		Value string `json:"value"`
	}{
		Alg:   "ES256K",
		Value: base64.RawURLEncoding.EncodeToString(digest),
	}

	var resp struct {
		Value string `json:"value"`
	}

	err = requests.
		URL(c.baseURL()).
		Pathf("/keys/%s/sign", keyName).
		Param("api-version", "7.4").
		Header("Authorization", "Bearer "+token).
		BodyJSON(payload).
		Post().
		ToJSON(&resp).
		Fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("azure sign digest: %w", err)
	}

	sig, err := base64.RawURLEncoding.DecodeString(resp.Value)
	if err != nil {
		return nil, fmt.Errorf("decode azure signature: %w", err)
	}
	return sig, nil
}
