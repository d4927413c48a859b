// Package metadata parses per-key YAML metadata files and bulk-loader
// results into signing.Signer instances.
package metadata

// KeyType mirrors signing.KeyType without importing the signing package,
// so metadata parsing stays independent of the signer construction it feeds.
type KeyType string

const (
	KeyTypeBLS       KeyType = "BLS"
	KeyTypeSECP256K1 KeyType = "SECP256K1"
)

// EntryType discriminates the YAML metadata file's "type" field.
type EntryType string

const (
	TypeFileRaw      EntryType = "file-raw"
	TypeFileKeystore EntryType = "file-keystore"
	TypeHashicorp    EntryType = "hashicorp"
	TypeAzureSecret  EntryType = "azure-secret"
	TypeAzureKey     EntryType = "azure-key"
	TypeAWSSecret    EntryType = "aws-secret"
	TypeAWSKMS       EntryType = "aws-kms"
)

// Entry is the parsed union of every supported metadata YAML shape. Only
// the fields relevant to Type are populated by the parser; the rest are
// left zero.
type Entry struct {
	Type    EntryType `yaml:"type"`
	KeyType KeyType   `yaml:"keyType"`

	// file-raw
	PrivateKey string `yaml:"privateKey"`

	// file-keystore
	KeystoreFile         string `yaml:"keystoreFile"`
	KeystorePasswordFile string `yaml:"keystorePasswordFile"`

	// hashicorp
	ServerHost         string `yaml:"serverHost"`
	ServerPort         int    `yaml:"serverPort"`
	Timeout            int    `yaml:"timeout"`
	KeyPath            string `yaml:"keyPath"`
	Token              string `yaml:"token"`
	TLSEnabled         bool   `yaml:"tlsEnabled"`
	TLSKnownServerFile string `yaml:"tlsKnownServerFile"`

	// azure-secret / azure-key
	ClientID     string `yaml:"clientId"`
	ClientSecret string `yaml:"clientSecret"`
	TenantID     string `yaml:"tenantId"`
	VaultName    string `yaml:"vaultName"`
	SecretName   string `yaml:"secretName"`
	KeyName      string `yaml:"keyName"`

	// aws-secret / aws-kms
	AuthenticationMode string `yaml:"authenticationMode"`
	Region             string `yaml:"region"`
	AccessKeyID        string `yaml:"accessKeyId"`
	SecretAccessKey    string `yaml:"secretAccessKey"`
	KMSKeyID           string `yaml:"kmsKeyId"`
	EndpointOverride   string `yaml:"endpointOverride"`
}

// MappedResults is the outcome of a bulk load: the values that parsed
// successfully, plus a count of failures. Per-key errors are
// counted, not fatal, and are reported via the healthcheck endpoint.
type MappedResults[T any] struct {
	Values     []T
	ErrorCount int
}
