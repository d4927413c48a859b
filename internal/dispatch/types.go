// Package dispatch implements the sign dispatcher: identifier
// normalisation, registry lookup, the slashing check for consensus block and
// attestation domains, signing-root computation for every other artifact
// type restored from the original Web3Signer ArtifactType enum, and
// signature encoding. Domain arithmetic is shared with internal/proxykey
// through internal/ethdomain.
package dispatch

import "github.com/PegaSysEng/Eth2Signer/internal/ethdomain"

// ObjectType names the kind of artifact a sign request covers, mirroring
// Web3Signer's SignedObjectType enum.
type ObjectType string

const (
	TypeBlock                             ObjectType = "BLOCK"
	TypeBlockV2                           ObjectType = "BLOCK_V2"
	TypeAttestation                       ObjectType = "ATTESTATION"
	TypeAggregationSlot                   ObjectType = "AGGREGATION_SLOT"
	TypeAggregateAndProof                 ObjectType = "AGGREGATE_AND_PROOF"
	TypeRandaoReveal                      ObjectType = "RANDAO_REVEAL"
	TypeVoluntaryExit                     ObjectType = "VOLUNTARY_EXIT"
	TypeSyncCommitteeMessage              ObjectType = "SYNC_COMMITTEE_MESSAGE"
	TypeSyncCommitteeSelectionProof       ObjectType = "SYNC_COMMITTEE_SELECTION_PROOF"
	TypeSyncCommitteeContributionAndProof ObjectType = "SYNC_COMMITTEE_CONTRIBUTION_AND_PROOF"
	TypeValidatorRegistration             ObjectType = "VALIDATOR_REGISTRATION"
)

// Fork is the fork descriptor a sign request carries; only current_version
// is kept, since that is the version compute_domain uses.
type Fork struct {
	CurrentVersion [4]byte
}

// ForkInfo pairs a Fork with the network's genesis validators root, the
// fork-context half of every consensus signing-root computation.
type ForkInfo struct {
	Fork                  Fork
	GenesisValidatorsRoot [32]byte
}

// Checkpoint is a (epoch, root) pair, used for attestation source/target.
type Checkpoint struct {
	Epoch uint64
	Root  [32]byte
}

// BlockHeader is the BeaconBlockHeader-shaped view of a proposal used for
// both BLOCK and BLOCK_V2: the full forked block body is hashed by the
// caller into BodyRoot before the request reaches this service.
type BlockHeader struct {
	Slot          uint64
	ProposerIndex uint64
	ParentRoot    [32]byte
	StateRoot     [32]byte
	BodyRoot      [32]byte
}

// AttestationData is the standard phase0 attestation payload.
type AttestationData struct {
	Slot            uint64
	Index           uint64
	BeaconBlockRoot [32]byte
	Source          Checkpoint
	Target          Checkpoint
}

// Request is the input to Dispatcher.SignConsensus: exactly one of the type-specific
// fields is populated, matching Type.
type Request struct {
	Type ObjectType
	Fork ForkInfo

	Block                        *BlockHeader
	Attestation                  *AttestationData
	AggregationSlot              uint64
	RandaoRevealEpoch            uint64
	VoluntaryExitEpoch           uint64
	VoluntaryExitValidatorIndex  uint64
	SyncCommitteeSlot            uint64
	SyncCommitteeBeaconBlockRoot [32]byte
	SelectionProofSlot           uint64
	ContributionSlot             uint64
	ContributionSubcommitteeIdx  uint64
	ContributionBeaconBlockRoot  [32]byte
	ValidatorRegistrationRoot    [32]byte // pre-hashed by the caller; the registration message itself isn't SSZ-simple enough to restate here

	// AggregateAndProofRoot lets AGGREGATE_AND_PROOF requests supply an
	// already hash-tree-rooted object, since AggregateAndProof's
	// attestation payload is variable-length and out of scope to reimplement.
	AggregateAndProofRoot [32]byte
}

func domainTypeFor(t ObjectType) ethdomain.Type {
	switch t {
	case TypeBlock, TypeBlockV2:
		return ethdomain.DomainBeaconProposer
	case TypeAttestation:
		return ethdomain.DomainBeaconAttester
	case TypeAggregationSlot:
		return ethdomain.DomainSelectionProof
	case TypeAggregateAndProof:
		return ethdomain.DomainAggregateAndProof
	case TypeRandaoReveal:
		return ethdomain.DomainRandao
	case TypeVoluntaryExit:
		return ethdomain.DomainVoluntaryExit
	case TypeSyncCommitteeMessage:
		return ethdomain.DomainSyncCommittee
	case TypeSyncCommitteeSelectionProof:
		return ethdomain.DomainSyncCommitteeSelectionProof
	case TypeSyncCommitteeContributionAndProof:
		return ethdomain.DomainContributionAndProof
	case TypeValidatorRegistration:
		return ethdomain.DomainApplicationBuilder
	default:
		return ethdomain.Type{}
	}
}
