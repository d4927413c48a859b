// Package proxykey implements Commit-Boost proxy-key delegation
//: generating a fresh BLS or secp256k1 proxy key, writing
// it to disk as an encrypted keystore, registering it in the signer
// registry, and signing a ProxyKeyMessage attesting the delegation with
// the consensus BLS key. Domain computation and the signing-root shape
// follow the standard ComputeETHSigningRoot/ComputeSigningRoot pattern;
// the domain arithmetic itself lives in internal/ethdomain, shared with
// the consensus sign dispatcher.
package proxykey

import (
	ssz "github.com/ferranbt/fastssz"

	"github.com/PegaSysEng/Eth2Signer/internal/ethdomain"
)

// Domain is a 32-byte signing domain, computed by mixing a domain type,
// fork version, and genesis validators root.
type Domain = ethdomain.Domain

// ComputeDomain implements compute_domain(domain_type, fork_version,
// genesis_validators_root).
func ComputeDomain(domainType [4]byte, forkVersion [4]byte, genesisValidatorsRoot [32]byte) (Domain, error) {
	return ethdomain.Compute(domainType, forkVersion, genesisValidatorsRoot)
}

// CommitBoostDomain is ComputeDomain specialised to the fixed Commit-Boost
// proxy-delegation domain type.
func CommitBoostDomain(forkVersion [4]byte, genesisValidatorsRoot [32]byte) (Domain, error) {
	return ethdomain.Compute(ethdomain.DomainCommitBoostProxy, forkVersion, genesisValidatorsRoot)
}

// Scheme names the cryptographic scheme of a proxy key.
type Scheme string

const (
	SchemeBLS   Scheme = "bls"
	SchemeECDSA Scheme = "ecdsa"
)

// Message is the ProxyKeyMessage delegation statement: the consensus key
// vouches that Proxy is authorised to sign on its behalf. Delegator is
// always a 48-byte BLS public key; Proxy is 48 bytes for a BLS proxy or
// 33 bytes (compressed) for an ECDSA proxy.
type Message struct {
	Delegator []byte
	Proxy     []byte
}

func (m *Message) HashTreeRoot() ([32]byte, error) {
	return ssz.HashWithDefaultHasher(m)
}

func (m *Message) GetTree() (*ssz.Node, error) {
	return ssz.ProofTree(m)
}

func (m *Message) HashTreeRootWith(hh ssz.HashWalker) error {
	idx := hh.Index()
	hh.PutBytes(m.Delegator)
	hh.PutBytes(m.Proxy)
	hh.Merkleize(idx)
	return nil
}

// SigningRoot computes the domain-wrapped signing root of msg, the value
// actually signed by the consensus BLS key.
func SigningRoot(msg *Message, domain Domain) ([32]byte, error) {
	objectRoot, err := msg.HashTreeRoot()
	if err != nil {
		return [32]byte{}, err
	}
	return ethdomain.SigningRoot(objectRoot, domain)
}
