// Command eth2signer runs a remote BLS/secp256k1 signing service for
// Ethereum consensus and execution-layer clients.
package main

import (
	"context"
	"crypto/tls"
	"encoding/hex"
	"fmt"
	"log"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/alecthomas/kong"
	"github.com/herumi/bls-eth-go-binary/bls"
	"go.uber.org/zap"

	"github.com/PegaSysEng/Eth2Signer/internal/dispatch"
	"github.com/PegaSysEng/Eth2Signer/internal/httpapi"
	"github.com/PegaSysEng/Eth2Signer/internal/interchange"
	"github.com/PegaSysEng/Eth2Signer/internal/metadata"
	"github.com/PegaSysEng/Eth2Signer/internal/proxykey"
	"github.com/PegaSysEng/Eth2Signer/internal/registry"
	"github.com/PegaSysEng/Eth2Signer/internal/signing"
	"github.com/PegaSysEng/Eth2Signer/internal/slashing"
	"github.com/PegaSysEng/Eth2Signer/internal/tlsutil"
	"github.com/PegaSysEng/Eth2Signer/internal/vmanager"
)

// SharedConfig holds the flags every long-running subcommand needs:
// where to load key metadata from, and the credential defaults a bulk
// vault-backed deployment shares across its metadata files.
type SharedConfig struct {
	ListenAddr      string `env:"LISTEN_ADDR" default:":9000"`
	MetadataDir     string `env:"METADATA_DIR" required:""`
	ChainID         uint64 `env:"CHAIN_ID" default:"1"`
	LoadConcurrency int    `env:"LOAD_CONCURRENCY" default:"4"`

	ReloadEvictStaleKeys bool `env:"RELOAD_EVICT_STALE_KEYS" name:"reload-evict-stale-keys" help:"On /reload, remove signers no longer present in the metadata directory instead of keeping them registered."`

	AzureVaultClientID     string `env:"AZURE_VAULT_CLIENT_ID" name:"azure-vault-client-id"`
	AzureVaultClientSecret string `env:"AZURE_VAULT_CLIENT_SECRET" name:"azure-vault-client-secret"`
	AzureVaultTenantID     string `env:"AZURE_VAULT_TENANT_ID" name:"azure-vault-tenant-id"`

	AWSSecretsRegion          string `env:"AWS_SECRETS_REGION" name:"aws-secrets-region"`
	AWSSecretsAccessKeyID     string `env:"AWS_SECRETS_ACCESS_KEY_ID" name:"aws-secrets-access-key-id"`
	AWSSecretsSecretAccessKey string `env:"AWS_SECRETS_SECRET_ACCESS_KEY" name:"aws-secrets-secret-access-key"`

	TLSKeystoreFile         string `env:"TLS_KEYSTORE_FILE" name:"tls-keystore-file" help:"PKCS12 keystore holding the server certificate and key."`
	TLSKeystorePasswordFile string `env:"TLS_KEYSTORE_PASSWORD_FILE" name:"tls-keystore-password-file"`
	TLSKnownClientsFile     string `env:"TLS_KNOWN_CLIENTS_FILE" name:"tls-known-clients-file" help:"Client certificate fingerprint allowlist for mutual TLS."`
}

func (c SharedConfig) loadDefaults() metadata.Defaults {
	return metadata.Defaults{
		AzureClientID:      c.AzureVaultClientID,
		AzureClientSecret:  c.AzureVaultClientSecret,
		AzureTenantID:      c.AzureVaultTenantID,
		AWSRegion:          c.AWSSecretsRegion,
		AWSAccessKeyID:     c.AWSSecretsAccessKeyID,
		AWSSecretAccessKey: c.AWSSecretsSecretAccessKey,
	}
}

func (c SharedConfig) tlsConfig(logger *zap.Logger) (*tls.Config, error) {
	cfg := tlsutil.Config{
		KeystoreFile:         c.TLSKeystoreFile,
		KeystorePasswordFile: c.TLSKeystorePasswordFile,
		KnownClientsFile:     c.TLSKnownClientsFile,
	}
	tlsConfig, err := cfg.Load()
	if err != nil {
		return nil, err
	}
	if tlsConfig != nil {
		logger.Info("server TLS configured", zap.Bool("mutual_tls", c.TLSKnownClientsFile != ""))
	}
	return tlsConfig, nil
}

// Eth1Cmd serves the eth1 JSON-RPC surface (eth_sign / eth_accounts) over
// secp256k1 metadata entries only.
type Eth1Cmd struct {
	SharedConfig `embed:""`
}

func (c *Eth1Cmd) Run(logger *zap.Logger) error {
	ctx := context.Background()
	reg := registry.New(ctx, logger)
	chainID := new(big.Int).SetUint64(c.ChainID)

	var results metadata.MappedResults[signing.Signer]
	reg.Load(ctx, func(ctx context.Context) []signing.Signer {
		results = metadata.LoadDirectoryWithDefaults(ctx, logger, c.MetadataDir, chainID, c.LoadConcurrency, c.loadDefaults())
		return results.Values
	}, c.ReloadEvictStaleKeys, nil)
	logger.Info("loaded eth1 signers", zap.Int("count", len(results.Values)), zap.Int("errors", results.ErrorCount))

	disp := dispatch.New(logger, reg, nil)
	tlsConfig, err := c.tlsConfig(logger)
	if err != nil {
		return err
	}

	srv := httpapi.NewServer(httpapi.Config{
		Logger:          logger,
		Registry:        reg,
		Dispatcher:      disp,
		VManager:        vmanager.New(logger, reg, nil, ""),
		MetadataDir:     c.MetadataDir,
		ChainID:         chainID,
		LoadConcurrency: c.LoadConcurrency,
		LoadDefaults:    c.loadDefaults(),
		EvictStaleKeys:  c.ReloadEvictStaleKeys,
	}, optionalTLS(tlsConfig)...)

	logger.Info("starting eth1 signer", zap.String("addr", c.ListenAddr))
	return srv.ListenAndServe(c.ListenAddr)
}

// Eth2Cmd serves the full consensus-layer surface: sign, key-manager,
// Commit-Boost, healthcheck, and reload, backed by a slashing-protection
// database.
type Eth2Cmd struct {
	SharedConfig `embed:""`

	SlashingProtectionDBURL string `env:"SLASHING_PROTECTION_DB_URL" required:"" name:"slashing-protection-db-url"`

	SlashingProtectionPruningEnabled        bool          `env:"SLASHING_PROTECTION_PRUNING_ENABLED" name:"slashing-protection-pruning-enabled"`
	SlashingProtectionPruningEpochsToKeep   uint64        `env:"SLASHING_PROTECTION_PRUNING_EPOCHS_TO_KEEP" name:"slashing-protection-pruning-epochs-to-keep" default:"10"`
	SlashingProtectionPruningSlotsPerEpoch  uint64        `env:"SLASHING_PROTECTION_PRUNING_SLOTS_PER_EPOCH" name:"slashing-protection-pruning-slots-per-epoch" default:"32"`
	SlashingProtectionPruningInterval       time.Duration `env:"SLASHING_PROTECTION_PRUNING_INTERVAL" name:"slashing-protection-pruning-interval" default:"1h"`

	KeystoreDir string `env:"KEYSTORE_DIR" name:"keystore-dir" required:""`

	KeyManagerAPIEnabled  bool `env:"KEY_MANAGER_API_ENABLED" name:"key-manager-api-enabled"`
	CommitBoostAPIEnabled bool `env:"COMMIT_BOOST_API_ENABLED" name:"commit-boost-api-enabled"`

	ProxyKeystoresPath         string `env:"PROXY_KEYSTORES_PATH" name:"proxy-keystores-path"`
	ProxyKeystoresPasswordFile string `env:"PROXY_KEYSTORES_PASSWORD_FILE" name:"proxy-keystores-password-file"`

	GenesisForkVersion    string `env:"GENESIS_FORK_VERSION" default:"0x00000000"`
	GenesisValidatorsRoot string `name:"Xgenesis-validators-root" env:"GENESIS_VALIDATORS_ROOT" help:"experimental: seed the genesis validators root on first start"`
}

// proxyKeystoresPassword reads the shared password protecting every proxy
// keystore under ProxyKeystoresPath, returning an empty string if no
// password file is configured.
func (c *Eth2Cmd) proxyKeystoresPassword() (string, error) {
	if c.ProxyKeystoresPasswordFile == "" {
		return "", nil
	}
	password, err := os.ReadFile(c.ProxyKeystoresPasswordFile)
	if err != nil {
		return "", fmt.Errorf("read proxy keystores password file: %w", err)
	}
	return strings.TrimSpace(string(password)), nil
}

func (c *Eth2Cmd) Run(logger *zap.Logger) error {
	if err := bls.Init(bls.BLS12_381); err != nil {
		return fmt.Errorf("init BLS: %w", err)
	}

	ctx := context.Background()
	store, err := slashing.Open(ctx, c.SlashingProtectionDBURL)
	if err != nil {
		return fmt.Errorf("open slashing protection database: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("failed to close slashing protection database", zap.Error(err))
		}
	}()

	if c.GenesisValidatorsRoot != "" {
		gvr, err := decodeHex32(c.GenesisValidatorsRoot)
		if err != nil {
			return fmt.Errorf("parse -Xgenesis-validators-root: %w", err)
		}
		if err := store.SetGenesisValidatorsRoot(ctx, gvr[:]); err != nil {
			return fmt.Errorf("seed genesis validators root: %w", err)
		}
	}

	reg := registry.New(ctx, logger)
	chainID := new(big.Int).SetUint64(c.ChainID)

	proxyPassword, err := c.proxyKeystoresPassword()
	if err != nil {
		return err
	}

	var results metadata.MappedResults[signing.Signer]
	reg.Load(ctx, func(ctx context.Context) []signing.Signer {
		results = metadata.LoadDirectoryWithDefaults(ctx, logger, c.MetadataDir, chainID, c.LoadConcurrency, c.loadDefaults())
		return results.Values
	}, c.ReloadEvictStaleKeys, nil)

	if c.ProxyKeystoresPath != "" {
		for _, s := range results.Values {
			for _, proxy := range proxykey.LoadDirectory(logger, c.ProxyKeystoresPath, s.Identifier(), proxyPassword) {
				reg.AddProxy(ctx, proxy, s.Identifier())
			}
		}
	}
	logger.Info("loaded eth2 signers", zap.Int("count", len(results.Values)), zap.Int("errors", results.ErrorCount))

	genesisForkVersion, err := decodeHex4(c.GenesisForkVersion)
	if err != nil {
		return fmt.Errorf("parse --genesis-fork-version: %w", err)
	}

	disp := dispatch.New(logger, reg, store)
	vm := vmanager.New(logger, reg, store, c.KeystoreDir)

	if c.SlashingProtectionPruningEnabled {
		go runPruneLoop(ctx, logger, store, c.SlashingProtectionPruningEpochsToKeep, c.SlashingProtectionPruningSlotsPerEpoch, c.SlashingProtectionPruningInterval)
	}

	tlsConfig, err := c.tlsConfig(logger)
	if err != nil {
		return err
	}

	cfg := httpapi.Config{
		Logger:                logger,
		Registry:              reg,
		Dispatcher:            disp,
		VManager:              vm,
		Store:                 store,
		MetadataDir:           c.MetadataDir,
		ChainID:               chainID,
		LoadConcurrency:       c.LoadConcurrency,
		LoadDefaults:          c.loadDefaults(),
		GenesisForkVersion:    genesisForkVersion,
		ProxyRoot:             c.ProxyKeystoresPath,
		ProxyPassword:         proxyPassword,
		SelfURL:               "http://" + c.ListenAddr,
		EvictStaleKeys:        c.ReloadEvictStaleKeys,
		KeyManagerAPIEnabled:  c.KeyManagerAPIEnabled,
		CommitBoostAPIEnabled: c.CommitBoostAPIEnabled,
	}

	srv := httpapi.NewServer(cfg, optionalTLS(tlsConfig)...)

	logger.Info("starting eth2 signer",
		zap.String("addr", c.ListenAddr),
		zap.Bool("key_manager_api_enabled", c.KeyManagerAPIEnabled),
		zap.Bool("commit_boost_api_enabled", c.CommitBoostAPIEnabled),
		zap.Bool("tls_enabled", tlsConfig != nil),
	)
	return srv.ListenAndServe(c.ListenAddr)
}

func runPruneLoop(ctx context.Context, logger *zap.Logger, store *slashing.Store, epochsToKeep, slotsPerEpoch uint64, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := store.Prune(ctx, epochsToKeep, slotsPerEpoch); err != nil {
				logger.Warn("slashing protection pruning failed", zap.Error(err))
			}
		}
	}
}

// WatermarkRepairCmd recomputes every validator's low watermark from its
// existing signed_blocks/signed_attestations rows, repairing a database
// where watermark tracking was disabled.
type WatermarkRepairCmd struct {
	SlashingProtectionDBURL string `env:"SLASHING_PROTECTION_DB_URL" required:"" name:"slashing-protection-db-url"`
}

func (c *WatermarkRepairCmd) Run(logger *zap.Logger) error {
	ctx := context.Background()
	store, err := slashing.Open(ctx, c.SlashingProtectionDBURL)
	if err != nil {
		return fmt.Errorf("open slashing protection database: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("failed to close slashing protection database", zap.Error(err))
		}
	}()

	if err := store.RepairWatermarks(ctx); err != nil {
		return fmt.Errorf("repair watermarks: %w", err)
	}
	logger.Info("watermark repair finished")
	return nil
}

// ExportCmd streams a full EIP-3076 interchange export of the
// slashing-protection database to stdout, or to Out if given.
type ExportCmd struct {
	SlashingProtectionDBURL string `env:"SLASHING_PROTECTION_DB_URL" required:"" name:"slashing-protection-db-url"`
	Out                     string `arg:"" optional:"" help:"output file path; defaults to stdout"`
}

func (c *ExportCmd) Run(logger *zap.Logger) error {
	ctx := context.Background()
	store, err := slashing.Open(ctx, c.SlashingProtectionDBURL)
	if err != nil {
		return fmt.Errorf("open slashing protection database: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("failed to close slashing protection database", zap.Error(err))
		}
	}()

	out := os.Stdout
	if c.Out != "" {
		f, err := os.Create(c.Out)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		out = f
	}

	if err := interchange.StreamExport(ctx, store, out); err != nil {
		return fmt.Errorf("export interchange document: %w", err)
	}
	logger.Info("export finished")
	return nil
}

// ImportCmd loads an EIP-3076 interchange document into the
// slashing-protection database, from In or stdin.
type ImportCmd struct {
	SlashingProtectionDBURL string `env:"SLASHING_PROTECTION_DB_URL" required:"" name:"slashing-protection-db-url"`
	In                      string `arg:"" optional:"" help:"input file path; defaults to stdin"`
}

func (c *ImportCmd) Run(logger *zap.Logger) error {
	ctx := context.Background()
	store, err := slashing.Open(ctx, c.SlashingProtectionDBURL)
	if err != nil {
		return fmt.Errorf("open slashing protection database: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("failed to close slashing protection database", zap.Error(err))
		}
	}()

	in := os.Stdin
	if c.In != "" {
		f, err := os.Open(c.In)
		if err != nil {
			return fmt.Errorf("open input file: %w", err)
		}
		defer f.Close()
		in = f
	}

	result, err := interchange.Import(ctx, store, in)
	if err != nil {
		return fmt.Errorf("import interchange document: %w", err)
	}
	logger.Info("import finished",
		zap.Int("blocks_inserted", result.BlocksInserted),
		zap.Int("blocks_skipped", result.BlocksSkipped),
		zap.Int("blocks_rejected", result.BlocksRejected),
		zap.Int("attestations_inserted", result.AttestationsInserted),
		zap.Int("attestations_skipped", result.AttestationsSkipped),
		zap.Int("attestations_rejected", result.AttestationsRejected),
	)
	return nil
}

// CLI is the top-level command, dispatching to one of five subcommands.
type CLI struct {
	Eth1            Eth1Cmd            `cmd:"" help:"Serve the eth1 JSON-RPC signing surface."`
	Eth2            Eth2Cmd            `cmd:"" help:"Serve the eth2 consensus signing surface."`
	WatermarkRepair WatermarkRepairCmd `cmd:"" name:"watermark-repair" help:"Recompute low watermarks from signing history."`
	Export          ExportCmd          `cmd:"" help:"Export slashing protection data as an EIP-3076 document."`
	Import          ImportCmd          `cmd:"" help:"Import an EIP-3076 slashing protection document."`
}

func main() {
	var cli CLI
	kctx := kong.Parse(&cli, kong.Name("eth2signer"), kong.UsageOnError())

	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatal(err)
	}
	defer func() {
		if err := logger.Sync(); err != nil {
			log.Println("failed to sync logger: ", err)
		}
	}()

	if err := kctx.Run(logger); err != nil {
		logger.Fatal("application failed", zap.Error(err))
	}
}

func optionalTLS(cfg *tls.Config) []httpapi.Option {
	if cfg == nil {
		return nil
	}
	return []httpapi.Option{httpapi.WithTLS(cfg)}
}

func decodeHex4(s string) ([4]byte, error) {
	raw, err := decodeHexN(s, 4)
	var out [4]byte
	if err != nil {
		return out, err
	}
	copy(out[:], raw)
	return out, nil
}

func decodeHex32(s string) ([32]byte, error) {
	raw, err := decodeHexN(s, 32)
	var out [32]byte
	if err != nil {
		return out, err
	}
	copy(out[:], raw)
	return out, nil
}

func decodeHexN(s string, n int) ([]byte, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return nil, err
	}
	if len(raw) != n {
		return nil, fmt.Errorf("expected %d bytes, got %d", n, len(raw))
	}
	return raw, nil
}
