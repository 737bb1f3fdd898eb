package crypto

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

var (
	testKey = []byte("0123456789abcdef")
	testIV  = []byte("fedcba9876543210")
)

func TestContainerRoundTrip(t *testing.T) {
	plain := []byte(`{"c":"{\"event\":\"SDK init start\"}","f":1,"l":1000,"n":"main"}` + "\n")

	encoded, err := EncodeLogContainer(plain, testKey, testIV)
	require.NoError(t, err)
	require.True(t, IsEncryptedContainer(encoded))

	decoded, err := DecodeLogContainer(encoded, testKey, testIV)
	require.NoError(t, err)
	require.True(t, bytes.Equal(plain, decoded))
}

func TestContainerMultipleBlocks(t *testing.T) {
	first, err := EncodeLogContainer([]byte("first block\n"), testKey, testIV)
	require.NoError(t, err)
	second, err := EncodeLogContainer([]byte("second block\n"), testKey, testIV)
	require.NoError(t, err)

	decoded, err := DecodeLogContainer(append(first, second...), testKey, testIV)
	require.NoError(t, err)
	require.Equal(t, "first block\nsecond block\n", string(decoded))
}

func TestContainerWrongKey(t *testing.T) {
	plain := []byte("secret")
	encoded, err := EncodeLogContainer(plain, testKey, testIV)
	require.NoError(t, err)

	// A wrong key either trips the padding check or yields garbage;
	// it must never round-trip to the original plaintext.
	decoded, err := DecodeLogContainer(encoded, []byte("xxxxxxxxxxxxxxxx"), testIV)
	if err == nil {
		require.False(t, bytes.Equal(plain, decoded))
	} else {
		require.ErrorIs(t, err, ErrDecode)
	}
}

func TestContainerTruncated(t *testing.T) {
	encoded, err := EncodeLogContainer([]byte("secret payload"), testKey, testIV)
	require.NoError(t, err)

	_, err = DecodeLogContainer(encoded[:len(encoded)-3], testKey, testIV)
	require.ErrorIs(t, err, ErrDecode)
}

func TestIsEncryptedContainer(t *testing.T) {
	require.False(t, IsEncryptedContainer([]byte(`{"c":"plain"}`)))
	require.False(t, IsEncryptedContainer(nil))
}
