package httpapi

import (
	"context"
	"crypto/tls"
	"math/big"
	"net"
	"sync/atomic"

	"github.com/fasthttp/router"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/PegaSysEng/Eth2Signer/internal/apperrors"
	"github.com/PegaSysEng/Eth2Signer/internal/dispatch"
	"github.com/PegaSysEng/Eth2Signer/internal/jsonrpc"
	"github.com/PegaSysEng/Eth2Signer/internal/metadata"
	"github.com/PegaSysEng/Eth2Signer/internal/proxykey"
	"github.com/PegaSysEng/Eth2Signer/internal/registry"
	"github.com/PegaSysEng/Eth2Signer/internal/signing"
	"github.com/PegaSysEng/Eth2Signer/internal/slashing"
	"github.com/PegaSysEng/Eth2Signer/internal/vmanager"
)

const (
	pathSignEth2         = "/api/v1/eth2/sign/{identifier}"
	pathSignEth1         = "/api/v1/eth1/sign/{identifier}"
	pathPublicKeysEth2   = "/api/v1/eth2/publicKeys"
	pathPublicKeysEth1   = "/api/v1/eth1/publicKeys"
	pathReload           = "/reload"
	pathUpcheck          = "/upcheck"
	pathHealthcheck      = "/healthcheck"
	pathKeystores        = "/eth/v1/keystores"
	pathRemoteKeys       = "/eth/v1/remotekeys"
	pathRequestSignature = "/signer/v1/request_signature"
	pathGenerateProxyKey = "/signer/v1/generate_proxy_key"
	pathJSONRPC          = "/"
)

// Server wires the sign dispatcher, registry, key-manager, and Commit-Boost
// components into the HTTP surface, built on fasthttp and fasthttp/router.
type Server struct {
	logger     *zap.Logger
	registry   *registry.Registry
	dispatcher *dispatch.Dispatcher
	vmanager   *vmanager.Manager
	store      *slashing.Store // nil in eth1-only deployments
	jsonrpc    *jsonrpc.Handler

	metadataDir        string
	chainID            *big.Int
	loadConcurrency    int
	loadDefaults       metadata.Defaults
	lastLoadErrors     atomic.Int64
	genesisForkVersion [4]byte

	proxyRoot      string
	proxyPassword  string
	selfURL        string
	evictStaleKeys bool

	router    *router.Router
	tlsConfig *tls.Config
}

// Config bundles the collaborators and static settings NewServer needs.
type Config struct {
	Logger             *zap.Logger
	Registry           *registry.Registry
	Dispatcher         *dispatch.Dispatcher
	VManager           *vmanager.Manager
	Store              *slashing.Store
	MetadataDir        string
	ChainID            *big.Int
	LoadConcurrency    int
	LoadDefaults       metadata.Defaults
	GenesisForkVersion [4]byte
	ProxyRoot          string
	ProxyPassword      string
	SelfURL            string
	EvictStaleKeys     bool

	// KeyManagerAPIEnabled and CommitBoostAPIEnabled gate their respective
	// route groups, off by default like Web3Signer's own optional APIs.
	KeyManagerAPIEnabled  bool
	CommitBoostAPIEnabled bool
}

// Option configures optional Server behavior using the functional-option
// pattern.
type Option func(*Server)

// WithTLS configures TLS for the server.
func WithTLS(tlsConfig *tls.Config) Option {
	return func(s *Server) { s.tlsConfig = tlsConfig }
}

func NewServer(cfg Config, opts ...Option) *Server {
	s := &Server{
		logger:             cfg.Logger,
		registry:           cfg.Registry,
		dispatcher:         cfg.Dispatcher,
		vmanager:           cfg.VManager,
		store:              cfg.Store,
		jsonrpc:            jsonrpc.NewHandler(cfg.Registry),
		metadataDir:        cfg.MetadataDir,
		chainID:            cfg.ChainID,
		loadConcurrency:    cfg.LoadConcurrency,
		loadDefaults:       cfg.LoadDefaults,
		genesisForkVersion: cfg.GenesisForkVersion,
		proxyRoot:          cfg.ProxyRoot,
		proxyPassword:      cfg.ProxyPassword,
		selfURL:            cfg.SelfURL,
		evictStaleKeys:     cfg.EvictStaleKeys,
		router:             router.New(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.router.POST(pathSignEth2, s.handleSignEth2)
	s.router.POST(pathSignEth1, s.handleSignEth1)
	s.router.GET(pathPublicKeysEth2, s.handlePublicKeysEth2)
	s.router.GET(pathPublicKeysEth1, s.handlePublicKeysEth1)
	s.router.POST(pathReload, s.handleReload)
	s.router.GET(pathUpcheck, s.handleUpcheck)
	s.router.GET(pathHealthcheck, s.handleHealthcheck)

	if cfg.KeyManagerAPIEnabled {
		s.router.GET(pathKeystores, s.handleListKeystores)
		s.router.POST(pathKeystores, s.handleImportKeystores)
		s.router.DELETE(pathKeystores, s.handleDeleteKeystores)
		s.router.GET(pathRemoteKeys, s.handleListRemoteKeys)
		s.router.DELETE(pathRemoteKeys, s.handleDeleteRemoteKeys)
	}

	if cfg.CommitBoostAPIEnabled {
		s.router.POST(pathRequestSignature, s.handleRequestSignature)
		s.router.POST(pathGenerateProxyKey, s.handleGenerateProxyKey)
	}

	s.router.POST(pathJSONRPC, s.handleJSONRPC)

	return s
}

// Handler returns the fasthttp entry point. Handler and ListenAndServe are
// kept separate so callers can embed this server behind their own listener
// or metrics wrapper.
func (s *Server) Handler() func(ctx *fasthttp.RequestCtx) {
	return s.router.Handler
}

// ListenAndServe starts the server on addr, using TLS if configured.
func (s *Server) ListenAndServe(addr string) error {
	handler := s.Handler()

	if s.tlsConfig != nil {
		s.logger.Info("starting server with TLS", zap.String("addr", addr))
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return err
		}
		return fasthttp.Serve(tls.NewListener(ln, s.tlsConfig), handler)
	}

	s.logger.Info("starting server without TLS", zap.String("addr", addr))
	return fasthttp.ListenAndServe(addr, handler)
}

func (s *Server) genesisValidatorsRoot(ctx context.Context) ([32]byte, error) {
	if s.store == nil {
		return [32]byte{}, apperrors.New(apperrors.KindInternal, "genesis validators root requires a configured slashing store")
	}
	meta, err := s.store.GetMetadata(ctx)
	if err != nil {
		return [32]byte{}, err
	}
	if len(meta.GenesisValidatorsRoot) != 32 {
		return [32]byte{}, apperrors.New(apperrors.KindInternal, "genesis validators root is not configured")
	}
	var gvr [32]byte
	copy(gvr[:], meta.GenesisValidatorsRoot)
	return gvr, nil
}

// reload re-scans the metadata directory through the registry's Load
// algorithm (atomic snapshot replace, in-batch dedup, stale-set
// computation) and returns how many signers failed to load (the loaded
// count is only logged), used by both /reload and the healthcheck's
// bulk-loader accounting. For
// every loaded consensus identifier it also rescans its proxy-keystore
// directories, so Commit-Boost proxy keys generated in an earlier process
// survive a restart or /reload instead of only ever existing in the
// in-memory registry that generated them. Whether stale identifiers
// (present before reload, absent from this scan) are evicted or kept is
// the evictStaleKeys deployment setting, per the reload Open Question
// decision (DESIGN.md).
func (s *Server) reload(ctx context.Context) metadata.MappedResults[any] {
	if s.metadataDir == "" {
		return metadata.MappedResults[any]{}
	}

	var results metadata.MappedResults[signing.Signer]
	supply := func(ctx context.Context) []signing.Signer {
		results = metadata.LoadDirectoryWithDefaults(ctx, s.logger, s.metadataDir, s.chainID, s.loadConcurrency, s.loadDefaults)
		return results.Values
	}

	var staleCount int
	s.registry.Load(ctx, supply, s.evictStaleKeys, func(loaded int, stale map[string]struct{}) {
		staleCount = len(stale)
	})
	s.lastLoadErrors.Store(int64(results.ErrorCount))

	if s.proxyRoot != "" {
		for _, signer := range results.Values {
			for _, proxy := range proxykey.LoadDirectory(s.logger, s.proxyRoot, signer.Identifier(), s.proxyPassword) {
				s.registry.AddProxy(ctx, proxy, signer.Identifier())
			}
		}
	}

	s.logger.Debug("reload complete",
		zap.Int("loaded", len(results.Values)),
		zap.Int("errors", results.ErrorCount),
		zap.Int("stale", staleCount),
		zap.Bool("evicted_stale", s.evictStaleKeys),
	)

	return metadata.MappedResults[any]{ErrorCount: results.ErrorCount}
}
