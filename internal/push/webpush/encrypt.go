package webpush

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdh"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const (
	// ContentEncoding is the content coding applied to encrypted bodies.
	ContentEncoding = "aes128gcm"

	saltLen   = 16
	keyLen    = 16
	nonceLen  = 12
	gcmTagLen = 16

	// recordSize is written into the aes128gcm body header. Payloads are
	// bounded well below it, so everything fits in a single record.
	recordSize = 4096

	// headerLen is salt (16) + record size (4) + key id length (1) +
	// ephemeral public key (65).
	headerLen = saltLen + 4 + 1 + publicKeyLen

	// CiphertextOverhead is the number of bytes encryption adds on top of
	// the serialized payload: the body header, the GCM tag and the padding
	// delimiter octet.
	CiphertextOverhead = headerLen + gcmTagLen + 1
)

// Message is a delivery-ready push message.
type Message struct {
	// Body is the encrypted record, or empty for a tickle.
	Body []byte

	// Encrypted reports whether Body carries an aes128gcm coded payload.
	Encrypted bool
}

// Tickle returns an empty-body message. Clients without key material cannot
// receive structured data; an empty push tells them to check server state.
func Tickle() *Message {
	return &Message{}
}

// Encrypt encrypts plaintext for the subscription per RFC 8291 (aes128gcm).
//
// A fresh ephemeral P-256 key pair is generated per message, so encrypting
// the same plaintext twice yields different ciphertexts. The function is
// pure given (plaintext, keys) apart from that randomness and never mutates
// the subscription keys.
func Encrypt(plaintext []byte, keys *SubscriptionKeys) (*Message, error) {
	ephemeral, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generating ephemeral key: %w", err)
	}

	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generating salt: %w", err)
	}

	return encryptWithParams(plaintext, keys, ephemeral, salt)
}

// encryptWithParams performs the deterministic part of Encrypt. Split out so
// tests can drive it with fixed parameters.
func encryptWithParams(plaintext []byte, keys *SubscriptionKeys, ephemeral *ecdh.PrivateKey, salt []byte) (*Message, error) {
	sharedSecret, err := ephemeral.ECDH(keys.publicKey)
	if err != nil {
		return nil, fmt.Errorf("ecdh key agreement: %w", err)
	}

	ephemeralPub := ephemeral.PublicKey().Bytes()

	// RFC 8291 §3.3-3.4: combine the ECDH secret with the client auth
	// secret, binding both public keys into the derivation.
	keyInfo := make([]byte, 0, 14+2*publicKeyLen)
	keyInfo = append(keyInfo, []byte("WebPush: info\x00")...)
	keyInfo = append(keyInfo, keys.rawPublic...)
	keyInfo = append(keyInfo, ephemeralPub...)

	prkKey := hkdf.Extract(sha256.New, sharedSecret, keys.authSecret)
	ikm, err := hkdfExpand(prkKey, keyInfo, sha256.Size)
	if err != nil {
		return nil, err
	}

	prk := hkdf.Extract(sha256.New, ikm, salt)
	cek, err := hkdfExpand(prk, []byte("Content-Encoding: aes128gcm\x00"), keyLen)
	if err != nil {
		return nil, err
	}
	nonce, err := hkdfExpand(prk, []byte("Content-Encoding: nonce\x00"), nonceLen)
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(cek)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating gcm: %w", err)
	}

	// Single record: plaintext followed by the last-record delimiter.
	record := make([]byte, 0, len(plaintext)+1)
	record = append(record, plaintext...)
	record = append(record, 0x02)

	body := make([]byte, 0, headerLen+len(record)+gcmTagLen)
	body = append(body, salt...)
	body = binary.BigEndian.AppendUint32(body, recordSize)
	body = append(body, byte(len(ephemeralPub)))
	body = append(body, ephemeralPub...)
	body = gcm.Seal(body, nonce, record, nil)

	return &Message{Body: body, Encrypted: true}, nil
}

// hkdfExpand reads length bytes of HKDF-Expand output for the given info.
func hkdfExpand(prk, info []byte, length int) ([]byte, error) {
	out := make([]byte, length)
	if _, err := io.ReadFull(hkdf.Expand(sha256.New, prk, info), out); err != nil {
		return nil, fmt.Errorf("hkdf expand: %w", err)
	}
	return out, nil
}
