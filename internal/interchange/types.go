// Package interchange implements the EIP-3076 slashing-protection
// interchange format: import, export and the incremental streaming
// exporter used by large validator sets. The pubKeyFromHex/rootFromHex/
// uint64FromString decimal-string parsing follows the standard-protection-
// format convention, applied here against a relational slashing.Store
// rather than a key-value store.
package interchange

// FormatVersion is the EIP-3076 interchange_format_version this package
// reads and writes.
const FormatVersion = "5"

// Document is the top-level EIP-3076 JSON document.
type Document struct {
	Metadata Metadata          `json:"metadata"`
	Data     []ValidatorRecord `json:"data"`
}

// Metadata is the interchange document's metadata block.
type Metadata struct {
	InterchangeFormatVersion string `json:"interchange_format_version"`
	GenesisValidatorsRoot    string `json:"genesis_validators_root"`
}

// ValidatorRecord holds one validator's slashing-protection history.
type ValidatorRecord struct {
	Pubkey             string              `json:"pubkey"`
	SignedBlocks       []SignedBlock       `json:"signed_blocks"`
	SignedAttestations []SignedAttestation `json:"signed_attestations"`
}

// SignedBlock is one signed_blocks entry. Slot and epoch fields are
// decimal strings per the EIP-3076 wire format, not JSON numbers.
type SignedBlock struct {
	Slot        string `json:"slot"`
	SigningRoot string `json:"signing_root,omitempty"`
}

// SignedAttestation is one signed_attestations entry.
type SignedAttestation struct {
	SourceEpoch string `json:"source_epoch"`
	TargetEpoch string `json:"target_epoch"`
	SigningRoot string `json:"signing_root,omitempty"`
}
