package argcrypto

import "errors"

var (
	// ErrVerifyFailed is returned when an RSA signature does not validate.
	ErrVerifyFailed = errors.New("signature verification failed")

	// ErrDecryptFailed wraps any failure decrypting a frame payload.
	ErrDecryptFailed = errors.New("decryption failed")
)
