package interchange

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPubKeyFromHexRoundTrip(t *testing.T) {
	raw := make([]byte, 48)
	for i := range raw {
		raw[i] = byte(i)
	}
	original := pubKeyToHexString(raw)

	pk, err := pubKeyFromHex(original)
	require.NoError(t, err)
	require.Equal(t, original, pubKeyToHexString(pk[:]))
}

func TestPubKeyFromHexRejectsWrongLength(t *testing.T) {
	_, err := pubKeyFromHex("0xabcd")
	require.Error(t, err)
}

func TestRootFromHexRoundTrip(t *testing.T) {
	original := "0x" + "11223344556677889900aabbccddeeff11223344556677889900aabbccddeeff"
	root, err := rootFromHex(original)
	require.NoError(t, err)
	require.Equal(t, original, rootToHexString(root[:]))
}

func TestRootToHexStringEmptyIsBlank(t *testing.T) {
	require.Equal(t, "", rootToHexString(nil))
}

func TestParseSignedBlocksRejectsNonNumericSlot(t *testing.T) {
	_, err := parseSignedBlocks([]SignedBlock{{Slot: "not-a-number"}})
	require.Error(t, err)
}

func TestParseSignedAttestationsRoundTrip(t *testing.T) {
	in := []SignedAttestation{{SourceEpoch: "1", TargetEpoch: "2", SigningRoot: ""}}
	out, err := parseSignedAttestations(in)
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, uint64(1), out[0].SourceEpoch)
	require.Equal(t, uint64(2), out[0].TargetEpoch)
	require.Nil(t, out[0].SigningRoot)
}
