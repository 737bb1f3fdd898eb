package decoder

import (
	"fmt"
	"unicode/utf8"

	"github.com/logdiag-server/logdiag-server-pro/internal/config"
	"github.com/logdiag-server/logdiag-server-pro/pkg/crypto"
)

// Decoder turns a raw upload buffer into newline-delimited log text.
// It detects the proprietary encrypted container by its magic signature;
// anything else passes through as plain UTF-8. Pure transform, no side
// effects.
type Decoder struct {
	key []byte
	iv  []byte
}

// New creates a decoder from the deployment key material
func New(cfg *config.DecoderConfig) (*Decoder, error) {
	key, err := cfg.KeyBytes()
	if err != nil {
		return nil, err
	}
	iv, err := cfg.IVBytes()
	if err != nil {
		return nil, err
	}
	return &Decoder{key: key, iv: iv}, nil
}

// Decode returns the log text contained in data. A buffer carrying the
// container magic that cannot be decrypted fails as a whole; the caller
// surfaces this as a file-level failure, never per-line.
func (d *Decoder) Decode(data []byte) (string, error) {
	if !crypto.IsEncryptedContainer(data) {
		if !utf8.Valid(data) {
			return "", fmt.Errorf("%w: not valid UTF-8 text", crypto.ErrDecode)
		}
		return string(data), nil
	}

	if len(d.key) == 0 {
		return "", fmt.Errorf("%w: encrypted container but no key configured", crypto.ErrDecode)
	}

	plain, err := crypto.DecodeLogContainer(data, d.key, d.iv)
	if err != nil {
		return "", err
	}

	if !utf8.Valid(plain) {
		return "", fmt.Errorf("%w: decrypted content is not valid UTF-8", crypto.ErrDecode)
	}

	return string(plain), nil
}
