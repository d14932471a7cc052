// Package argcrypto is the crypto façade the rest of the gateway talks to.
// It wraps Go's standard RSA, AES, and HMAC implementations behind a small
// interface (Suite) so the protocol engine and its tests can substitute a
// fake whose Random output is deterministic. RSA keys used with either
// suite are real keys from crypto/rsa.
//
// Per §1/§9 of the design, the primitive library itself (RSA-PKCS1v1.5,
// AES-256-CTR, HMAC-SHA-256) is treated as an external collaborator; this
// package is the thin glue around it, not a reimplementation of it.
package argcrypto

import (
	"crypto"
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
)

// SigSize is the length in bytes of an RSA-1024 PKCS1v1.5/SHA-256
// signature, matching the original's RSA_SIG_SIZE.
const SigSize = 128

// KeySize is the AES-256 key length in bytes.
const KeySize = 32

// HopKeySize is the length of the hopper's HMAC key.
const HopKeySize = 16

// Suite is the capability set injected into every component that needs
// cryptography. Production code uses StdSuite; tests use FakeSuite,
// which differs only in its deterministic Random.
type Suite interface {
	Sign(priv *rsa.PrivateKey, frame []byte) ([]byte, error)
	Verify(pub *rsa.PublicKey, frame, sig []byte) error
	Encrypt(key []byte, seq uint32, plaintext []byte) ([]byte, error)
	Decrypt(key []byte, seq uint32, ciphertext []byte) ([]byte, error)
	HMAC(key, data []byte) []byte
	Random(n int) ([]byte, error)
}

// StdSuite implements Suite using Go's standard library primitives.
type StdSuite struct{}

var _ Suite = StdSuite{}

// Sign produces an RSA-PKCS1v1.5 signature over SHA-256(frame).
func (StdSuite) Sign(priv *rsa.PrivateKey, frame []byte) ([]byte, error) {
	digest := sha256.Sum256(frame)
	sig, err := rsa.SignPKCS1v15(rand.Reader, priv, crypto.SHA256, digest[:])
	if err != nil {
		return nil, fmt.Errorf("rsa sign: %w", err)
	}
	return sig, nil
}

// Verify checks an RSA-PKCS1v1.5 signature over SHA-256(frame).
func (StdSuite) Verify(pub *rsa.PublicKey, frame, sig []byte) error {
	digest := sha256.Sum256(frame)
	if err := rsa.VerifyPKCS1v15(pub, crypto.SHA256, digest[:], sig); err != nil {
		return fmt.Errorf("%w: rsa verify: %v", ErrVerifyFailed, err)
	}
	return nil
}

// nonce derives the AES-CTR counter block from a sequence number: the
// high 96 bits are zero, the low 32 bits carry seq (§4.5).
func nonce(seq uint32) []byte {
	iv := make([]byte, aes.BlockSize)
	binary.BigEndian.PutUint32(iv[aes.BlockSize-4:], seq)
	return iv
}

// Encrypt/Decrypt are the same operation under AES-CTR (XOR with keystream).
func (StdSuite) Encrypt(key []byte, seq uint32, plaintext []byte) ([]byte, error) {
	return ctrTransform(key, seq, plaintext)
}

func (StdSuite) Decrypt(key []byte, seq uint32, ciphertext []byte) ([]byte, error) {
	out, err := ctrTransform(key, seq, ciphertext)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptFailed, err)
	}
	return out, nil
}

func ctrTransform(key []byte, seq uint32, in []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes: %w", err)
	}
	out := make([]byte, len(in))
	cipher.NewCTR(block, nonce(seq)).XORKeyStream(out, in)
	return out, nil
}

func (StdSuite) HMAC(key, data []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(data)
	return mac.Sum(nil)
}

func (StdSuite) Random(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("random: %w", err)
	}
	return b, nil
}
