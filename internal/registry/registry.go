// Package registry implements the process-wide signer registry: a
// concurrent, reloadable map from identifier to signing.Signer,
// plus per-consensus-identifier proxy signer sets. Mutations are serialised
// on a single-owner goroutine receiving closures over a channel; reads go
// through an atomically swappable immutable snapshot, so readers never
// block writers.
package registry

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/PegaSysEng/Eth2Signer/internal/signing"
)

// snapshot is the immutable state published after every mutation.
type snapshot struct {
	signers map[string]signing.Signer            // identifier -> signer
	proxies map[string]map[string]signing.Signer // consensus identifier -> proxy identifier -> signer
}

func emptySnapshot() *snapshot {
	return &snapshot{
		signers: make(map[string]signing.Signer),
		proxies: make(map[string]map[string]signing.Signer),
	}
}

func (s *snapshot) clone() *snapshot {
	out := &snapshot{
		signers: make(map[string]signing.Signer, len(s.signers)),
		proxies: make(map[string]map[string]signing.Signer, len(s.proxies)),
	}
	for k, v := range s.signers {
		out.signers[k] = v
	}
	for consensus, set := range s.proxies {
		clone := make(map[string]signing.Signer, len(set))
		for k, v := range set {
			clone[k] = v
		}
		out.proxies[consensus] = clone
	}
	return out
}

// Supplier enumerates the signers to load, e.g. from metadata files and
// bulk loaders.
type Supplier func(ctx context.Context) []signing.Signer

// PostLoadFunc is invoked after a Load/Reload completes, with the count
// loaded and the set of identifiers present before but not after (stale
// keys) "explicit stale-key set passed to callback".
type PostLoadFunc func(loaded int, stale map[string]struct{})

type mutation func(*snapshot) *snapshot

// Registry is the concurrent signer registry. All mutations are applied on
// a single background worker in FIFO submission order; Add/Remove/AddProxy
// return once the mutation is visible to readers.
type Registry struct {
	logger   *zap.Logger
	current  atomic.Pointer[snapshot]
	mutate   chan mutationRequest
	done     chan struct{}
}

type mutationRequest struct {
	fn   mutation
	done chan struct{}
}

// New constructs an empty Registry and starts its mutation worker. Cancel
// ctx to stop the worker.
func New(ctx context.Context, logger *zap.Logger) *Registry {
	r := &Registry{
		logger: logger,
		mutate: make(chan mutationRequest, 64),
		done:   make(chan struct{}),
	}
	r.current.Store(emptySnapshot())
	go r.run(ctx)
	return r
}

func (r *Registry) run(ctx context.Context) {
	defer close(r.done)
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-r.mutate:
			next := req.fn(r.current.Load())
			r.current.Store(next)
			close(req.done)
		}
	}
}

// submit enqueues fn on the worker and blocks until it has been applied.
func (r *Registry) submit(ctx context.Context, fn mutation) {
	req := mutationRequest{fn: fn, done: make(chan struct{})}
	select {
	case r.mutate <- req:
	case <-ctx.Done():
		return
	}
	select {
	case <-req.done:
	case <-ctx.Done():
	}
}

// Get looks up a signer by normalised identifier.
func (r *Registry) Get(id string) (signing.Signer, bool) {
	s, ok := r.current.Load().signers[signing.NormalizeIdentifier(id)]
	return s, ok
}

// GetProxy looks up a proxy signer directly by its own identifier, across
// all consensus keys.
func (r *Registry) GetProxy(proxyID string) (signing.Signer, bool) {
	proxyID = signing.NormalizeIdentifier(proxyID)
	for _, set := range r.current.Load().proxies {
		if s, ok := set[proxyID]; ok {
			return s, true
		}
	}
	return nil, false
}

// Available returns every top-level identifier currently registered.
func (r *Registry) Available() []string {
	snap := r.current.Load()
	out := make([]string, 0, len(snap.signers))
	for id := range snap.signers {
		out = append(out, id)
	}
	return out
}

// ProxyIDs returns, for a consensus identifier, the set of proxy
// identifiers grouped by key type.
func (r *Registry) ProxyIDs(consensus string) map[signing.KeyType][]string {
	consensus = signing.NormalizeIdentifier(consensus)
	out := make(map[signing.KeyType][]string)
	for id, s := range r.current.Load().proxies[consensus] {
		out[s.KeyType()] = append(out[s.KeyType()], id)
	}
	return out
}

// Add registers signer, replacing any prior signer with the same
// identifier. Blocks until visible to subsequent readers.
func (r *Registry) Add(ctx context.Context, s signing.Signer) {
	r.submit(ctx, func(snap *snapshot) *snapshot {
		next := snap.clone()
		next.signers[signing.NormalizeIdentifier(s.Identifier())] = s
		return next
	})
}

// Remove unregisters id and destroys its proxy set, since a proxy signer
// set has no meaning once its consensus identifier is gone. Blocks until
// subsequent Get(id) calls return not-found.
func (r *Registry) Remove(ctx context.Context, id string) {
	id = signing.NormalizeIdentifier(id)
	r.submit(ctx, func(snap *snapshot) *snapshot {
		next := snap.clone()
		delete(next.signers, id)
		delete(next.proxies, id)
		return next
	})
}

// AddProxy registers proxy as a proxy signer of the consensus identifier.
func (r *Registry) AddProxy(ctx context.Context, proxy signing.Signer, consensus string) {
	consensus = signing.NormalizeIdentifier(consensus)
	r.submit(ctx, func(snap *snapshot) *snapshot {
		next := snap.clone()
		set, ok := next.proxies[consensus]
		if !ok {
			set = make(map[string]signing.Signer)
		}
		set[signing.NormalizeIdentifier(proxy.Identifier())] = proxy
		next.proxies[consensus] = set
		return next
	})
}

// Load runs the supplier and merges its output into the registry: on
// duplicate identifier within the supplier's own output, the first
// encountered signer is kept and a warning logged. It computes
// stale = old_keys - new_keys and invokes onLoad with (loaded, stale)
// before returning.
//
// evictStale controls what happens to the stale set: false (the default
// behaviour operators expect from a routine reload) leaves previously
// loaded signers and their proxy sets in place even if this load's
// supplier didn't return them again; true removes them, for a deployment
// that wants a reload to fully replace the registry's contents.
func (r *Registry) Load(ctx context.Context, supply Supplier, evictStale bool, onLoad PostLoadFunc) {
	loaded := supply(ctx)

	r.submit(ctx, func(snap *snapshot) *snapshot {
		oldKeys := make(map[string]struct{}, len(snap.signers))
		for id := range snap.signers {
			oldKeys[id] = struct{}{}
		}

		next := snap.clone()
		seen := make(map[string]struct{}, len(loaded))
		for _, s := range loaded {
			id := signing.NormalizeIdentifier(s.Identifier())
			if _, dup := seen[id]; dup {
				r.logger.Warn("duplicate identifier during load, keeping first", zap.String("identifier", id))
				continue
			}
			seen[id] = struct{}{}
			next.signers[id] = s
			delete(oldKeys, id)
		}

		if evictStale {
			for id := range oldKeys {
				delete(next.signers, id)
				delete(next.proxies, id)
			}
		}

		if onLoad != nil {
			onLoad(len(seen), oldKeys)
		}
		return next
	})
}

// Wait blocks until the registry's worker has stopped (its context was
// cancelled). Intended for graceful shutdown ordering.
func (r *Registry) Wait() {
	<-r.done
}
