// Package webpush implements Web Push message encryption (RFC 8291) and
// VAPID request signing (RFC 8292) for delivery to browser push services.
package webpush

import (
	"crypto/ecdh"
	"encoding/base64"
	"errors"
	"fmt"
)

// Key material errors.
var (
	// ErrInvalidKeys is returned when a device's stored key material cannot
	// be used for encryption (bad encoding, wrong length, bad curve point).
	ErrInvalidKeys = errors.New("invalid subscription keys")
)

const (
	// authSecretLen is the length of the client auth secret.
	authSecretLen = 16

	// publicKeyLen is the length of an uncompressed P-256 point.
	publicKeyLen = 65
)

// SubscriptionKeys holds a device's parsed push subscription key material.
type SubscriptionKeys struct {
	publicKey  *ecdh.PublicKey
	rawPublic  []byte
	authSecret []byte
}

// ParseSubscriptionKeys parses and validates base64url-encoded subscription
// key material: the p256dh public key (uncompressed P-256 point) and the
// 16-byte auth secret.
func ParseSubscriptionKeys(publicKey, authSecret string) (*SubscriptionKeys, error) {
	rawPub, err := decodeBase64(publicKey)
	if err != nil {
		return nil, fmt.Errorf("%w: public key: %v", ErrInvalidKeys, err)
	}
	if len(rawPub) != publicKeyLen {
		return nil, fmt.Errorf("%w: public key must be %d bytes, got %d", ErrInvalidKeys, publicKeyLen, len(rawPub))
	}

	pub, err := ecdh.P256().NewPublicKey(rawPub)
	if err != nil {
		return nil, fmt.Errorf("%w: public key is not a valid P-256 point", ErrInvalidKeys)
	}

	auth, err := decodeBase64(authSecret)
	if err != nil {
		return nil, fmt.Errorf("%w: auth secret: %v", ErrInvalidKeys, err)
	}
	if len(auth) != authSecretLen {
		return nil, fmt.Errorf("%w: auth secret must be %d bytes, got %d", ErrInvalidKeys, authSecretLen, len(auth))
	}

	return &SubscriptionKeys{
		publicKey:  pub,
		rawPublic:  rawPub,
		authSecret: auth,
	}, nil
}

// decodeBase64 decodes a string in any of the base64 alphabets clients use.
// Subscriptions arrive from several client generations; some pad, some use
// the standard alphabet.
func decodeBase64(s string) ([]byte, error) {
	encodings := []*base64.Encoding{
		base64.RawURLEncoding,
		base64.URLEncoding,
		base64.RawStdEncoding,
		base64.StdEncoding,
	}

	var lastErr error
	for _, enc := range encodings {
		b, err := enc.DecodeString(s)
		if err == nil {
			return b, nil
		}
		lastErr = err
	}
	return nil, lastErr
}
