package backends

import (
	"context"
	"crypto/ecdsa"
	"encoding/asn1"
	"fmt"
	"math/big"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/kms"
	"github.com/aws/aws-sdk-go/service/secretsmanager"

	gethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// AWSAuthMode mirrors the metadata file's authenticationMode field, shared
// by the aws-secret and aws-kms entry types.
type AWSAuthMode string

const (
	AWSAuthModeSpecified  AWSAuthMode = "SPECIFIED"
	AWSAuthModeEnvironment AWSAuthMode = "ENVIRONMENT"
)

// AWSConfig carries the per-metadata-entry AWS connection parameters.
type AWSConfig struct {
	AuthMode        AWSAuthMode
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	EndpointOverride string
}

func newSession(cfg AWSConfig) (*session.Session, error) {
	awsCfg := aws.NewConfig().WithRegion(cfg.Region)
	if cfg.EndpointOverride != "" {
		awsCfg = awsCfg.WithEndpoint(cfg.EndpointOverride)
	}
	if cfg.AuthMode == AWSAuthModeSpecified {
		awsCfg = awsCfg.WithCredentials(credentials.NewStaticCredentials(cfg.AccessKeyID, cfg.SecretAccessKey, ""))
	}
	return session.NewSession(awsCfg)
}

// AWSSecretsManagerClient fetches secret values, implementing SecretFetcher
// for aws-secret metadata entries.
type AWSSecretsManagerClient struct {
	svc *secretsmanager.SecretsManager
}

// NewAWSSecretsManagerClient builds a client from the metadata entry's
// connection parameters.
func NewAWSSecretsManagerClient(cfg AWSConfig) (*AWSSecretsManagerClient, error) {
	sess, err := newSession(cfg)
	if err != nil {
		return nil, fmt.Errorf("aws session: %w", err)
	}
	return &AWSSecretsManagerClient{svc: secretsmanager.New(sess)}, nil
}

func (c *AWSSecretsManagerClient) FetchSecret(ctx context.Context, name string) (string, error) {
	out, err := c.svc.GetSecretValueWithContext(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(name),
	})
	if err != nil {
		return "", fmt.Errorf("aws get secret value %s: %w", name, err)
	}
	if out.SecretString == nil {
		return "", fmt.Errorf("aws secret %s has no string value", name)
	}
	return *out.SecretString, nil
}

// AWSKMSClient signs digests with an asymmetric AWS KMS key, implementing
// signing.DigestSigner for aws-kms metadata entries.
type AWSKMSClient struct {
	svc *kms.KMS
}

// NewAWSKMSClient builds a client from the metadata entry's connection
// parameters.
func NewAWSKMSClient(cfg AWSConfig) (*AWSKMSClient, error) {
	sess, err := newSession(cfg)
	if err != nil {
		return nil, fmt.Errorf("aws session: %w", err)
	}
	return &AWSKMSClient{svc: kms.New(sess)}, nil
}

// SignDigest signs a pre-computed digest with the given KMS key id using
// ECDSA_SHA_256, returning the DER-encoded signature.
func (c *AWSKMSClient) SignDigest(ctx context.Context, keyID string, digest []byte) ([]byte, error) {
	out, err := c.svc.SignWithContext(ctx, &kms.SignInput{
		KeyId:            aws.String(keyID),
		Message:          digest,
		MessageType:      aws.String(kms.MessageTypeDigest),
		SigningAlgorithm: aws.String(kms.SigningAlgorithmSpecEcdsaSha256),
	})
	if err != nil {
		return nil, fmt.Errorf("aws kms sign: %w", err)
	}
	return out.Signature, nil
}

// GetPublicKey fetches the secp256k1 public key for an aws-kms metadata
// entry's key id, so a caller can wrap this client in a
// signing.BackendSecpSigner. KMS never exposes the private key itself.
func (c *AWSKMSClient) GetPublicKey(ctx context.Context, keyID string) (*ecdsa.PublicKey, error) {
	out, err := c.svc.GetPublicKeyWithContext(ctx, &kms.GetPublicKeyInput{KeyId: aws.String(keyID)})
	if err != nil {
		return nil, fmt.Errorf("aws kms get public key: %w", err)
	}
	return parseKMSSecp256k1PublicKey(out.PublicKey)
}

// asn1SubjectPublicKeyInfo mirrors the DER structure KMS's GetPublicKey
// returns. crypto/x509 can't parse it directly: it only recognizes the NIST
// P-* curve OIDs, not secp256k1.
type asn1SubjectPublicKeyInfo struct {
	Algorithm asn1.RawValue
	PublicKey asn1.BitString
}

func parseKMSSecp256k1PublicKey(der []byte) (*ecdsa.PublicKey, error) {
	var info asn1SubjectPublicKeyInfo
	if _, err := asn1.Unmarshal(der, &info); err != nil {
		return nil, fmt.Errorf("parse subject public key info: %w", err)
	}

	curve := gethcrypto.S256()
	byteLen := (curve.Params().BitSize + 7) / 8
	point := info.PublicKey.Bytes
	if len(point) != 1+2*byteLen || point[0] != 4 {
		return nil, fmt.Errorf("unexpected EC point encoding, length %d", len(point))
	}

	return &ecdsa.PublicKey{
		Curve: curve,
		X:     new(big.Int).SetBytes(point[1 : 1+byteLen]),
		Y:     new(big.Int).SetBytes(point[1+byteLen:]),
	}, nil
}
