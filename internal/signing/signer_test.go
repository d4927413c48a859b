package signing

import (
	"context"
	"crypto/ecdsa"
	"crypto/rand"
	"math/big"
	"testing"

	gethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/herumi/bls-eth-go-binary/bls"
	"github.com/stretchr/testify/require"
)

func TestNormalizeIdentifier(t *testing.T) {
	cases := []string{"0xAB12", "0XAB12", "ab12", "AB12"}
	for _, c := range cases {
		require.Equal(t, "0xab12", NormalizeIdentifier(c))
	}
}

func TestCanonicalizeS(t *testing.T) {
	r := big.NewInt(1)
	highS := new(big.Int).Sub(secp256k1Order, big.NewInt(1))
	_, s := CanonicalizeS(r, highS)
	require.True(t, s.Cmp(secp256k1HalfOrder) <= 0)
}

func TestBLSSignerRoundTrip(t *testing.T) {
	require.NoError(t, bls.Init(bls.BLS12_381))

	sk := new(bls.SecretKey)
	sk.SetByCSPRNG()

	signer := NewBLSSigner(sk)
	require.NotEmpty(t, signer.Identifier())
	require.Equal(t, KeyTypeBLS, signer.KeyType())

	root := make([]byte, 32)
	for i := range root {
		root[i] = byte(i)
	}

	sig, err := signer.Sign(context.Background(), root)
	require.NoError(t, err)
	require.Equal(t, EncodingBLSCompressed, sig.Encoding)
	require.Len(t, sig.Bytes, 96)

	blsSig := new(bls.Sign)
	require.NoError(t, blsSig.Deserialize(sig.Bytes))
	require.True(t, blsSig.VerifyByte(sk.GetPublicKey(), root))
}

func TestSecpLocalSignerEthSignFormat(t *testing.T) {
	priv, err := ecdsa.GenerateKey(gethcrypto.S256(), rand.Reader)
	require.NoError(t, err)

	signer := NewSecpLocalSigner(priv, nil)
	sig, err := signer.Sign(context.Background(), []byte("0xdeadbeaf"))
	require.NoError(t, err)

	hexSig := sig.Hex()
	require.Len(t, hexSig, 132) // "0x" + 130 hex chars == 65 bytes

	r := sig.Bytes[0:32]
	s := sig.Bytes[32:64]
	v := sig.Bytes[64]
	require.Len(t, r, 32)
	require.Len(t, s, 32)
	require.True(t, v == 27 || v == 28)
}

func TestK256SignerCanonicalSAndNoRecoveryByte(t *testing.T) {
	priv, err := ecdsa.GenerateKey(gethcrypto.S256(), rand.Reader)
	require.NoError(t, err)

	signer := NewK256Signer(priv)
	digest := make([]byte, 32)
	for i := range digest {
		digest[i] = byte(i * 3)
	}

	sig, err := signer.Sign(context.Background(), digest)
	require.NoError(t, err)
	require.Len(t, sig.Bytes, 64)

	s := new(big.Int).SetBytes(sig.Bytes[32:])
	require.True(t, s.Cmp(secp256k1HalfOrder) <= 0)
}
