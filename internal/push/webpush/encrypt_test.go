package webpush

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdh"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"strings"
	"testing"

	"golang.org/x/crypto/hkdf"
)

// newTestSubscription generates a client-side key pair and returns the
// private key plus the encoded subscription material a device would upload.
func newTestSubscription(t *testing.T) (*ecdh.PrivateKey, string, string) {
	t.Helper()

	priv, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generating client key: %v", err)
	}

	auth := make([]byte, authSecretLen)
	if _, err := rand.Read(auth); err != nil {
		t.Fatalf("generating auth secret: %v", err)
	}

	return priv,
		base64.RawURLEncoding.EncodeToString(priv.PublicKey().Bytes()),
		base64.RawURLEncoding.EncodeToString(auth)
}

// decrypt reverses the aes128gcm content coding using the client private
// key, mirroring what a user agent does on receipt.
func decrypt(t *testing.T, body []byte, clientKey *ecdh.PrivateKey, authSecret []byte) []byte {
	t.Helper()

	if len(body) < headerLen {
		t.Fatalf("body too short: %d bytes", len(body))
	}

	salt := body[:saltLen]
	rs := binary.BigEndian.Uint32(body[saltLen : saltLen+4])
	if rs != recordSize {
		t.Fatalf("unexpected record size %d", rs)
	}
	idLen := int(body[saltLen+4])
	if idLen != publicKeyLen {
		t.Fatalf("unexpected key id length %d", idLen)
	}
	serverPubRaw := body[saltLen+5 : saltLen+5+idLen]
	ciphertext := body[saltLen+5+idLen:]

	serverPub, err := ecdh.P256().NewPublicKey(serverPubRaw)
	if err != nil {
		t.Fatalf("parsing server public key: %v", err)
	}

	sharedSecret, err := clientKey.ECDH(serverPub)
	if err != nil {
		t.Fatalf("ecdh: %v", err)
	}

	keyInfo := append([]byte("WebPush: info\x00"), clientKey.PublicKey().Bytes()...)
	keyInfo = append(keyInfo, serverPubRaw...)

	prkKey := hkdf.Extract(sha256.New, sharedSecret, authSecret)
	ikm := make([]byte, sha256.Size)
	if _, err := hkdf.Expand(sha256.New, prkKey, keyInfo).Read(ikm); err != nil {
		t.Fatalf("expanding ikm: %v", err)
	}

	prk := hkdf.Extract(sha256.New, ikm, salt)
	cek := make([]byte, keyLen)
	if _, err := hkdf.Expand(sha256.New, prk, []byte("Content-Encoding: aes128gcm\x00")).Read(cek); err != nil {
		t.Fatalf("expanding cek: %v", err)
	}
	nonce := make([]byte, nonceLen)
	if _, err := hkdf.Expand(sha256.New, prk, []byte("Content-Encoding: nonce\x00")).Read(nonce); err != nil {
		t.Fatalf("expanding nonce: %v", err)
	}

	block, err := aes.NewCipher(cek)
	if err != nil {
		t.Fatalf("creating cipher: %v", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		t.Fatalf("creating gcm: %v", err)
	}

	record, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		t.Fatalf("decrypting: %v", err)
	}

	if len(record) == 0 || record[len(record)-1] != 0x02 {
		t.Fatalf("missing last-record delimiter")
	}
	return record[:len(record)-1]
}

func TestEncrypt_RoundTrip(t *testing.T) {
	clientKey, pub, auth := newTestSubscription(t)

	keys, err := ParseSubscriptionKeys(pub, auth)
	if err != nil {
		t.Fatalf("parsing keys: %v", err)
	}

	plaintext := []byte(`{"version":1,"command":"fxaccounts:device_disconnected","data":{"id":"0f7aa00356e5416e82b3bef7bc409eef"}}`)

	msg, err := Encrypt(plaintext, keys)
	if err != nil {
		t.Fatalf("encrypting: %v", err)
	}

	if !msg.Encrypted {
		t.Fatal("expected encrypted message")
	}
	if len(msg.Body) != len(plaintext)+CiphertextOverhead {
		t.Errorf("expected body of %d bytes, got %d", len(plaintext)+CiphertextOverhead, len(msg.Body))
	}

	got := decrypt(t, msg.Body, clientKey, keys.authSecret)
	if !bytes.Equal(got, plaintext) {
		t.Errorf("round trip mismatch: got %q, want %q", got, plaintext)
	}
}

func TestEncrypt_FreshEphemeralKeyPerMessage(t *testing.T) {
	_, pub, auth := newTestSubscription(t)

	keys, err := ParseSubscriptionKeys(pub, auth)
	if err != nil {
		t.Fatalf("parsing keys: %v", err)
	}

	plaintext := []byte(`{"version":1,"command":"fxaccounts:profile_updated"}`)

	first, err := Encrypt(plaintext, keys)
	if err != nil {
		t.Fatalf("first encrypt: %v", err)
	}
	second, err := Encrypt(plaintext, keys)
	if err != nil {
		t.Fatalf("second encrypt: %v", err)
	}

	if bytes.Equal(first.Body, second.Body) {
		t.Error("expected distinct ciphertexts for repeated encryption")
	}
}

func TestTickle(t *testing.T) {
	msg := Tickle()
	if len(msg.Body) != 0 {
		t.Errorf("expected empty body, got %d bytes", len(msg.Body))
	}
	if msg.Encrypted {
		t.Error("tickle must not claim to be encrypted")
	}
}

func TestParseSubscriptionKeys_PaddedStandardAlphabet(t *testing.T) {
	// Older clients upload padded base64url material.
	priv, _, _ := newTestSubscription(t)
	pub := base64.URLEncoding.EncodeToString(priv.PublicKey().Bytes())
	auth := base64.URLEncoding.EncodeToString(make([]byte, authSecretLen))

	if _, err := ParseSubscriptionKeys(pub, auth); err != nil {
		t.Fatalf("expected padded keys to parse, got %v", err)
	}
}

func TestParseSubscriptionKeys_Invalid(t *testing.T) {
	_, pub, auth := newTestSubscription(t)

	tests := []struct {
		name string
		pub  string
		auth string
	}{
		{"garbage public key", "!!!not-base64!!!", auth},
		{"truncated public key", pub[:20], auth},
		{"not a curve point", strings.Repeat("A", 87), auth},
		{"short auth secret", pub, base64.RawURLEncoding.EncodeToString([]byte("short"))},
		{"garbage auth secret", pub, "%%%"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseSubscriptionKeys(tt.pub, tt.auth)
			if err == nil {
				t.Fatal("expected error")
			}
		})
	}
}
