package dispatch

import (
	ssz "github.com/ferranbt/fastssz"

	"github.com/PegaSysEng/Eth2Signer/internal/apperrors"
	"github.com/PegaSysEng/Eth2Signer/internal/ethdomain"
)

type sszBlockHeader BlockHeader

func (b *sszBlockHeader) HashTreeRoot() ([32]byte, error) { return ssz.HashWithDefaultHasher(b) }
func (b *sszBlockHeader) GetTree() (*ssz.Node, error) { return ssz.ProofTree(b) }


func (b *sszBlockHeader) HashTreeRootWith(hh ssz.HashWalker) error {
	idx := hh.Index()
	hh.PutUint64(b.Slot)
	hh.PutUint64(b.ProposerIndex)
	hh.PutBytes(b.ParentRoot[:])
	hh.PutBytes(b.StateRoot[:])
	hh.PutBytes(b.BodyRoot[:])
	hh.Merkleize(idx)
	return nil
}

type sszCheckpoint Checkpoint

func (c *sszCheckpoint) HashTreeRoot() ([32]byte, error) { return ssz.HashWithDefaultHasher(c) }
func (c *sszCheckpoint) GetTree() (*ssz.Node, error) { return ssz.ProofTree(c) }


func (c *sszCheckpoint) HashTreeRootWith(hh ssz.HashWalker) error {
	idx := hh.Index()
	hh.PutUint64(c.Epoch)
	hh.PutBytes(c.Root[:])
	hh.Merkleize(idx)
	return nil
}

type sszAttestationData AttestationData

func (a *sszAttestationData) HashTreeRoot() ([32]byte, error) { return ssz.HashWithDefaultHasher(a) }
func (a *sszAttestationData) GetTree() (*ssz.Node, error) { return ssz.ProofTree(a) }


func (a *sszAttestationData) HashTreeRootWith(hh ssz.HashWalker) error {
	idx := hh.Index()
	hh.PutUint64(a.Slot)
	hh.PutUint64(a.Index)
	hh.PutBytes(a.BeaconBlockRoot[:])
	src := sszCheckpoint(a.Source)
	if err := src.HashTreeRootWith(hh); err != nil {
		return err
	}
	tgt := sszCheckpoint(a.Target)
	if err := tgt.HashTreeRootWith(hh); err != nil {
		return err
	}
	hh.Merkleize(idx)
	return nil
}

// sszUint64 hash-tree-roots a single bare uint64 field, the SSZ shape of
// AggregationSlot, RandaoReveal, and the sync-committee selection-proof slot.
type sszUint64 uint64

func (u *sszUint64) HashTreeRoot() ([32]byte, error) { return ssz.HashWithDefaultHasher(u) }
func (u *sszUint64) GetTree() (*ssz.Node, error) { return ssz.ProofTree(u) }


func (u *sszUint64) HashTreeRootWith(hh ssz.HashWalker) error {
	idx := hh.Index()
	hh.PutUint64(uint64(*u))
	hh.Merkleize(idx)
	return nil
}

// computeObjectRoot returns the hash-tree-root of the payload named by
// req.Type, ready to be wrapped with a domain and signed.
func computeObjectRoot(req Request) ([32]byte, error) {
	switch req.Type {
	case TypeBlock, TypeBlockV2:
		if req.Block == nil {
			return [32]byte{}, apperrors.New(apperrors.KindBadRequest, "block header is required for BLOCK/BLOCK_V2")
		}
		h := sszBlockHeader(*req.Block)
		return h.HashTreeRoot()
	case TypeAttestation:
		if req.Attestation == nil {
			return [32]byte{}, apperrors.New(apperrors.KindBadRequest, "attestation data is required for ATTESTATION")
		}
		a := sszAttestationData(*req.Attestation)
		return a.HashTreeRoot()
	case TypeAggregationSlot:
		u := sszUint64(req.AggregationSlot)
		return u.HashTreeRoot()
	case TypeRandaoReveal:
		u := sszUint64(req.RandaoRevealEpoch)
		return u.HashTreeRoot()
	case TypeSyncCommitteeSelectionProof:
		u := sszUint64(req.SelectionProofSlot)
		return u.HashTreeRoot()
	case TypeVoluntaryExit:
		ve := sszVoluntaryExit{Epoch: req.VoluntaryExitEpoch, ValidatorIndex: req.VoluntaryExitValidatorIndex}
		return ve.HashTreeRoot()
	case TypeSyncCommitteeMessage:
		sc := sszSyncCommitteeMessage{Slot: req.SyncCommitteeSlot, BeaconBlockRoot: req.SyncCommitteeBeaconBlockRoot}
		return sc.HashTreeRoot()
	case TypeSyncCommitteeContributionAndProof:
		return req.ContributionBeaconBlockRoot, nil
	case TypeAggregateAndProof:
		return req.AggregateAndProofRoot, nil
	case TypeValidatorRegistration:
		return req.ValidatorRegistrationRoot, nil
	default:
		return [32]byte{}, apperrors.New(apperrors.KindBadRequest, "unsupported artifact type")
	}
}

type sszVoluntaryExit struct {
	Epoch          uint64
	ValidatorIndex uint64
}

func (v *sszVoluntaryExit) HashTreeRoot() ([32]byte, error) { return ssz.HashWithDefaultHasher(v) }
func (v *sszVoluntaryExit) GetTree() (*ssz.Node, error) { return ssz.ProofTree(v) }


func (v *sszVoluntaryExit) HashTreeRootWith(hh ssz.HashWalker) error {
	idx := hh.Index()
	hh.PutUint64(v.Epoch)
	hh.PutUint64(v.ValidatorIndex)
	hh.Merkleize(idx)
	return nil
}

type sszSyncCommitteeMessage struct {
	Slot            uint64
	BeaconBlockRoot [32]byte
}

func (s *sszSyncCommitteeMessage) HashTreeRoot() ([32]byte, error) { return ssz.HashWithDefaultHasher(s) }
func (s *sszSyncCommitteeMessage) GetTree() (*ssz.Node, error) { return ssz.ProofTree(s) }


func (s *sszSyncCommitteeMessage) HashTreeRootWith(hh ssz.HashWalker) error {
	idx := hh.Index()
	hh.PutUint64(s.Slot)
	hh.PutBytes(s.BeaconBlockRoot[:])
	hh.Merkleize(idx)
	return nil
}

// SigningRoot computes the domain-wrapped signing root for req, the value
// handed to the Signer.
func SigningRoot(req Request) ([32]byte, error) {
	objectRoot, err := computeObjectRoot(req)
	if err != nil {
		return [32]byte{}, err
	}
	domain, err := ethdomain.Compute(domainTypeFor(req.Type), req.Fork.Fork.CurrentVersion, req.Fork.GenesisValidatorsRoot)
	if err != nil {
		return [32]byte{}, apperrors.Wrap(apperrors.KindInternal, "compute signing domain", err)
	}
	return ethdomain.SigningRoot(objectRoot, domain)
}
