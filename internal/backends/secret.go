// Package backends models the external key-vault/KMS collaborators as thin
// Go capability interfaces — "fetch a secret by name" and "sign a digest by
// key id" — explicit exclusion of their wire protocols.
// The implementations (Azure Key Vault, AWS Secrets Manager/KMS, HashiCorp
// Vault) use a real ecosystem client library (AWS SDK) or a generic HTTP
// client (carlmjohnson/requests) for backends without a dedicated SDK.
package backends

import "context"

// SecretFetcher fetches a named secret's value, the shared capability behind
// azure-secret, aws-secret, and hashicorp metadata entries.
type SecretFetcher interface {
	FetchSecret(ctx context.Context, name string) (string, error)
}
