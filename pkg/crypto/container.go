package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"
	"errors"
	"fmt"
)

// The on-device SDK wraps encrypted log batches in a simple block framing:
// each block is a 0x01 marker byte, a big-endian uint32 ciphertext length,
// and the AES-128-CBC ciphertext (PKCS#7 padded). A buffer whose first byte
// is the marker is treated as an encrypted container; anything else is plain
// UTF-8 text.

// ContainerMagic marks the start of an encrypted log container block
const ContainerMagic = 0x01

const blockHeaderLen = 5

// ErrDecode is returned when a buffer carries the container magic but
// cannot be decrypted with the configured key material.
var ErrDecode = errors.New("invalid encrypted log container")

// IsEncryptedContainer reports whether the buffer starts with the
// container magic signature.
func IsEncryptedContainer(data []byte) bool {
	return len(data) >= blockHeaderLen && data[0] == ContainerMagic
}

// DecodeLogContainer decrypts an encrypted log container, concatenating
// the plaintext of all framed blocks.
func DecodeLogContainer(data, key, iv []byte) ([]byte, error) {
	if !IsEncryptedContainer(data) {
		return nil, fmt.Errorf("%w: missing magic signature", ErrDecode)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if len(iv) != block.BlockSize() {
		return nil, fmt.Errorf("%w: bad IV length %d", ErrDecode, len(iv))
	}

	var plain []byte
	for len(data) > 0 {
		if len(data) < blockHeaderLen || data[0] != ContainerMagic {
			return nil, fmt.Errorf("%w: malformed block header", ErrDecode)
		}

		n := binary.BigEndian.Uint32(data[1:blockHeaderLen])
		data = data[blockHeaderLen:]
		if n == 0 || uint32(len(data)) < n || n%aes.BlockSize != 0 {
			return nil, fmt.Errorf("%w: bad block length %d", ErrDecode, n)
		}

		ciphertext := data[:n]
		data = data[n:]

		decrypted := make([]byte, n)
		cipher.NewCBCDecrypter(block, iv).CryptBlocks(decrypted, ciphertext)

		unpadded, err := pkcs7Unpad(decrypted)
		if err != nil {
			return nil, err
		}
		plain = append(plain, unpadded...)
	}

	return plain, nil
}

// EncodeLogContainer encrypts plaintext into a single-block container.
// It is the inverse of DecodeLogContainer and exists for round-trip
// verification and test fixtures.
func EncodeLogContainer(plain, key, iv []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("new cipher: %w", err)
	}
	if len(iv) != block.BlockSize() {
		return nil, fmt.Errorf("bad IV length %d", len(iv))
	}

	padded := pkcs7Pad(plain, aes.BlockSize)
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)

	out := make([]byte, blockHeaderLen, blockHeaderLen+len(ciphertext))
	out[0] = ContainerMagic
	binary.BigEndian.PutUint32(out[1:], uint32(len(ciphertext)))
	return append(out, ciphertext...), nil
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	n := blockSize - len(data)%blockSize
	padded := make([]byte, len(data)+n)
	copy(padded, data)
	for i := len(data); i < len(padded); i++ {
		padded[i] = byte(n)
	}
	return padded
}

func pkcs7Unpad(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty block", ErrDecode)
	}

	n := int(data[len(data)-1])
	if n == 0 || n > aes.BlockSize || n > len(data) {
		return nil, fmt.Errorf("%w: bad padding", ErrDecode)
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, fmt.Errorf("%w: bad padding", ErrDecode)
		}
	}

	return data[:len(data)-n], nil
}
