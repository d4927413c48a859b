// Package ethdomain implements compute_domain and the SSZ signing-root
// wrapper shared by every consensus signing path (proxy-key delegation,
// block/attestation signing, and the miscellaneous artifact types),
// following the standard ComputeSigningRoot pattern, implemented directly
// with ferranbt/fastssz since no generated SSZ struct types are pulled in
// just for this arithmetic.
package ethdomain

import (
	ssz "github.com/ferranbt/fastssz"
)

// Type is a 4-byte domain type, e.g. DOMAIN_BEACON_PROPOSER.
type Type [4]byte

var (
	DomainBeaconProposer               = Type{0x00, 0x00, 0x00, 0x00}
	DomainBeaconAttester               = Type{0x01, 0x00, 0x00, 0x00}
	DomainRandao                       = Type{0x02, 0x00, 0x00, 0x00}
	DomainDeposit                      = Type{0x03, 0x00, 0x00, 0x00}
	DomainVoluntaryExit                = Type{0x04, 0x00, 0x00, 0x00}
	DomainSelectionProof               = Type{0x05, 0x00, 0x00, 0x00}
	DomainAggregateAndProof            = Type{0x06, 0x00, 0x00, 0x00}
	DomainSyncCommittee                = Type{0x07, 0x00, 0x00, 0x00}
	DomainSyncCommitteeSelectionProof  = Type{0x08, 0x00, 0x00, 0x00}
	DomainContributionAndProof         = Type{0x09, 0x00, 0x00, 0x00}
	DomainApplicationBuilder           = Type{0x00, 0x00, 0x00, 0x01}
	DomainCommitBoostProxy             = Type{0x6d, 0x6d, 0x6f, 0x43} // "mmoC"
)

// Domain is the 32-byte mixed-in signing domain.
type Domain [32]byte

// Fork carries the two fork versions and the epoch a validator uses to pick
// between them; only CurrentVersion feeds compute_domain for the artifact
// types this service signs.
type Fork struct {
	PreviousVersion [4]byte
	CurrentVersion  [4]byte
	Epoch           uint64
}

type forkData struct {
	ForkVersion           [4]byte
	GenesisValidatorsRoot [32]byte
}

func (f *forkData) HashTreeRoot() ([32]byte, error) {
	return ssz.HashWithDefaultHasher(f)
}

func (f *forkData) GetTree() (*ssz.Node, error) {
	return ssz.ProofTree(f)
}

func (f *forkData) HashTreeRootWith(hh ssz.HashWalker) error {
	idx := hh.Index()
	hh.PutBytes(f.ForkVersion[:])
	hh.PutBytes(f.GenesisValidatorsRoot[:])
	hh.Merkleize(idx)
	return nil
}

// Compute implements compute_domain(domain_type, fork_version,
// genesis_validators_root): fork_data_root = hash_tree_root(ForkData{
// fork_version, genesis_validators_root}), domain = domain_type ++
// fork_data_root[:28].
func Compute(domainType Type, forkVersion [4]byte, genesisValidatorsRoot [32]byte) (Domain, error) {
	fd := forkData{ForkVersion: forkVersion, GenesisValidatorsRoot: genesisValidatorsRoot}
	root, err := fd.HashTreeRoot()
	if err != nil {
		return Domain{}, err
	}
	var d Domain
	copy(d[:4], domainType[:])
	copy(d[4:], root[:28])
	return d, nil
}

// signingData is the SSZ container {object_root, domain} that
// ComputeSigningRoot wraps any signed object in.
type signingData struct {
	ObjectRoot [32]byte
	Domain     Domain
}

func (s *signingData) HashTreeRoot() ([32]byte, error) {
	return ssz.HashWithDefaultHasher(s)
}

func (s *signingData) GetTree() (*ssz.Node, error) {
	return ssz.ProofTree(s)
}

func (s *signingData) HashTreeRootWith(hh ssz.HashWalker) error {
	idx := hh.Index()
	hh.PutBytes(s.ObjectRoot[:])
	hh.PutBytes(s.Domain[:])
	hh.Merkleize(idx)
	return nil
}

// SigningRoot computes the domain-wrapped signing root of an object whose
// own hash-tree-root is objectRoot, the value actually handed to the
// signer for every consensus artifact type.
func SigningRoot(objectRoot [32]byte, domain Domain) ([32]byte, error) {
	sd := signingData{ObjectRoot: objectRoot, Domain: domain}
	return sd.HashTreeRoot()
}
