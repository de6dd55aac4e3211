package cinet

import (
	"fmt"

	"golang.org/x/crypto/blowfish"
)

// blockSize is the Blowfish block size in bytes.
const blockSize = 8

// payloadBlocks is the number of 8-byte blocks in the encrypted payload
// region (96 bytes = 12 blocks, ECB, no padding).
const payloadBlocks = 12
const payloadLen = payloadBlocks * blockSize

// ecbCipher wraps a Blowfish key schedule for ECB-mode encrypt/decrypt over
// the fixed 96-byte payload. The device firmware does not use padding: the
// payload length is a wire contract, not negotiated, and ECB chaining is a
// flat loop over independent blocks (stdlib deliberately doesn't ship ECB
// as a cipher.BlockMode, since it's unsafe for variable-length general use;
// here the block count and alignment are fixed by the protocol, not chosen
// by a caller).
type ecbCipher struct {
	block *blowfish.Cipher
}

// deriveCipher builds the per-device key schedule from its passphrase. The
// passphrase is used directly as the Blowfish key (not hashed, not salted)
// — the device firmware derives its own schedule the same way, and
// passphrases are short, device-specific secrets rather than user
// passwords subject to dictionary attack from the wire.
func deriveCipher(passphrase string) (*ecbCipher, error) {
	block, err := blowfish.NewCipher([]byte(passphrase))
	if err != nil {
		return nil, fmt.Errorf("cinet: derive cipher: %w", err)
	}
	return &ecbCipher{block: block}, nil
}

// decrypt returns the plaintext for a 96-byte ciphertext, ECB, ignoring and
// not requiring any key feedback between blocks.
func (c *ecbCipher) decrypt(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) != payloadLen {
		return nil, fmt.Errorf("cinet: ciphertext must be %d bytes, got %d", payloadLen, len(ciphertext))
	}
	plaintext := make([]byte, payloadLen)
	for off := 0; off < payloadLen; off += blockSize {
		c.block.Decrypt(plaintext[off:off+blockSize], ciphertext[off:off+blockSize])
	}
	return plaintext, nil
}

// encrypt returns the ciphertext for a 96-byte plaintext, ECB. Used by the
// reference frame encoder (internal/cinet/simulate) and round-trip tests;
// the server never encrypts frames itself, since ingest is one-way.
func (c *ecbCipher) encrypt(plaintext []byte) ([]byte, error) {
	if len(plaintext) != payloadLen {
		return nil, fmt.Errorf("cinet: plaintext must be %d bytes, got %d", payloadLen, len(plaintext))
	}
	ciphertext := make([]byte, payloadLen)
	for off := 0; off < payloadLen; off += blockSize {
		c.block.Encrypt(ciphertext[off:off+blockSize], plaintext[off:off+blockSize])
	}
	return ciphertext, nil
}

// EncryptPayload derives a one-off cipher for passphrase and encrypts a
// 96-byte plaintext payload. Used by the reference frame encoder
// (internal/cinet/simulate) and by tests exercising the round-trip law of
// spec §8; production ingest never calls this (the server only decrypts).
func EncryptPayload(passphrase string, plaintext []byte) ([]byte, error) {
	c, err := deriveCipher(passphrase)
	if err != nil {
		return nil, err
	}
	return c.encrypt(plaintext)
}
