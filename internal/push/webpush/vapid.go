package webpush

import (
	"crypto/ecdh"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
	"net/url"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// VAPID errors.
var (
	ErrInvalidVAPIDKey = errors.New("invalid vapid private key")
)

const (
	// vapidTokenTTL is how long issued VAPID tokens are valid. RFC 8292
	// caps validity at 24 hours; 12 keeps clock skew comfortably away from
	// the cap.
	vapidTokenTTL = 12 * time.Hour

	// vapidRefreshMargin is how long before expiry a cached token is
	// replaced rather than reused.
	vapidRefreshMargin = 1 * time.Hour
)

// VAPIDConfig holds configuration for the VAPID signer.
type VAPIDConfig struct {
	// PrivateKey is the base64url-encoded 32-byte P-256 scalar identifying
	// this server to push services.
	PrivateKey string

	// Subject is a contact URI for the operator (mailto: or https:).
	Subject string
}

// VAPIDSigner produces Authorization header values for push requests.
//
// Tokens are scoped to the push service origin, not the full endpoint, so
// one token serves every device subscribed through the same service. Issued
// tokens are cached per origin until they approach expiry.
type VAPIDSigner struct {
	privateKey *ecdsa.PrivateKey
	publicB64  string
	subject    string

	mu     sync.Mutex
	tokens map[string]cachedToken
}

type cachedToken struct {
	header    string
	expiresAt time.Time
}

// NewVAPIDSigner creates a signer from the configured private key.
func NewVAPIDSigner(cfg VAPIDConfig) (*VAPIDSigner, error) {
	raw, err := decodeBase64(cfg.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidVAPIDKey, err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("%w: must be 32 bytes, got %d", ErrInvalidVAPIDKey, len(raw))
	}

	priv, err := ecdsaKeyFromScalar(raw)
	if err != nil {
		return nil, err
	}

	publicRaw := elliptic.Marshal(elliptic.P256(), priv.PublicKey.X, priv.PublicKey.Y) //nolint:staticcheck // uncompressed point encoding is what push services expect

	return &VAPIDSigner{
		privateKey: priv,
		publicB64:  base64.RawURLEncoding.EncodeToString(publicRaw),
		subject:    cfg.Subject,
		tokens:     make(map[string]cachedToken),
	}, nil
}

// GenerateVAPIDKey generates a new key pair and returns the base64url
// private scalar and uncompressed public key.
func GenerateVAPIDKey() (privateKey, publicKey string, err error) {
	key, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		return "", "", fmt.Errorf("generating vapid key: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(key.Bytes()),
		base64.RawURLEncoding.EncodeToString(key.PublicKey().Bytes()),
		nil
}

// PublicKey returns the base64url-encoded uncompressed public key.
func (s *VAPIDSigner) PublicKey() string {
	return s.publicB64
}

// AuthorizationHeader returns the Authorization header value for a request
// to the given push endpoint.
func (s *VAPIDSigner) AuthorizationHeader(endpoint string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("parsing endpoint: %w", err)
	}
	origin := u.Scheme + "://" + u.Host

	s.mu.Lock()
	defer s.mu.Unlock()

	if cached, ok := s.tokens[origin]; ok && time.Until(cached.expiresAt) > vapidRefreshMargin {
		return cached.header, nil
	}

	expiresAt := time.Now().Add(vapidTokenTTL)
	claims := jwt.RegisteredClaims{
		Audience:  jwt.ClaimStrings{origin},
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}
	if s.subject != "" {
		claims.Subject = s.subject
	}

	token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	signed, err := token.SignedString(s.privateKey)
	if err != nil {
		return "", fmt.Errorf("signing vapid token: %w", err)
	}

	header := "vapid t=" + signed + ", k=" + s.publicB64
	s.tokens[origin] = cachedToken{header: header, expiresAt: expiresAt}
	return header, nil
}

// ecdsaKeyFromScalar builds an ECDSA P-256 key from a raw private scalar.
func ecdsaKeyFromScalar(raw []byte) (*ecdsa.PrivateKey, error) {
	// Round-trip through crypto/ecdh to validate the scalar is in range.
	if _, err := ecdh.P256().NewPrivateKey(raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidVAPIDKey, err)
	}

	d := new(big.Int).SetBytes(raw)
	priv := &ecdsa.PrivateKey{
		PublicKey: ecdsa.PublicKey{Curve: elliptic.P256()},
		D:         d,
	}
	priv.PublicKey.X, priv.PublicKey.Y = elliptic.P256().ScalarBaseMult(raw)
	return priv, nil
}
