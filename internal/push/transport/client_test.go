package transport

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pushgate/pushgate/internal/push/webpush"
)

func TestClient_Send_EncryptedMessage(t *testing.T) {
	var gotHeaders http.Header
	var gotBody []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeaders = r.Header.Clone()
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	client := NewClient(ClientConfig{Logger: zerolog.Nop()})

	msg := &webpush.Message{Body: []byte("ciphertext"), Encrypted: true}
	result, err := client.Send(context.Background(), server.URL, msg, 30*time.Second)
	require.NoError(t, err)

	assert.Equal(t, http.StatusCreated, result.StatusCode)
	assert.Empty(t, result.Detail)
	assert.Equal(t, "30", gotHeaders.Get("TTL"))
	assert.Equal(t, "aes128gcm", gotHeaders.Get("Content-Encoding"))
	assert.Equal(t, "application/octet-stream", gotHeaders.Get("Content-Type"))
	assert.Equal(t, []byte("ciphertext"), gotBody)
}

func TestClient_Send_TickleHasNoBody(t *testing.T) {
	var gotLength int64
	var gotEncoding string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotLength = r.ContentLength
		gotEncoding = r.Header.Get("Content-Encoding")
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	client := NewClient(ClientConfig{Logger: zerolog.Nop()})

	result, err := client.Send(context.Background(), server.URL, webpush.Tickle(), time.Minute)
	require.NoError(t, err)

	assert.Equal(t, http.StatusCreated, result.StatusCode)
	assert.Zero(t, gotLength)
	assert.Empty(t, gotEncoding)
}

func TestClient_Send_ErrorStatusReturnedNotErrored(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusGone)
		_, _ = w.Write([]byte("subscription expired"))
	}))
	defer server.Close()

	client := NewClient(ClientConfig{Logger: zerolog.Nop()})

	result, err := client.Send(context.Background(), server.URL, webpush.Tickle(), time.Minute)
	require.NoError(t, err, "an HTTP error status is a result, not an error")

	assert.Equal(t, http.StatusGone, result.StatusCode)
	assert.Equal(t, "subscription expired", result.Detail)
}

func TestClient_Send_RetryAfterDetail(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Retry-After", "120")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := NewClient(ClientConfig{Logger: zerolog.Nop()})

	result, err := client.Send(context.Background(), server.URL, webpush.Tickle(), time.Minute)
	require.NoError(t, err)

	assert.Equal(t, http.StatusTooManyRequests, result.StatusCode)
	assert.Equal(t, "retry-after: 120", result.Detail)
}

func TestClient_Send_InvalidEndpoint(t *testing.T) {
	client := NewClient(ClientConfig{Logger: zerolog.Nop()})

	for _, endpoint := range []string{"", "not a url", "ftp://push.example.com/x", "/relative/path"} {
		_, err := client.Send(context.Background(), endpoint, webpush.Tickle(), time.Minute)
		assert.ErrorIs(t, err, ErrInvalidEndpoint, endpoint)
	}
}

func TestClient_Send_SharesClientPerHost(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	client := NewClient(ClientConfig{Logger: zerolog.Nop()})

	for range 3 {
		_, err := client.Send(context.Background(), server.URL+"/sub/a", webpush.Tickle(), time.Minute)
		require.NoError(t, err)
	}
	_, err := client.Send(context.Background(), server.URL+"/sub/b", webpush.Tickle(), time.Minute)
	require.NoError(t, err)

	assert.Len(t, client.Upstreams().Names(), 1)

	health := client.Upstreams().GetAllHealth()
	require.Len(t, health, 1)
	assert.True(t, health[0].IsHealthy())
	assert.NotNil(t, health[0].LastSuccessAt)
}

func TestClient_BuildRequest_VAPIDAuthorization(t *testing.T) {
	privateKey, publicKey, err := webpush.GenerateVAPIDKey()
	require.NoError(t, err)

	signer, err := webpush.NewVAPIDSigner(webpush.VAPIDConfig{
		PrivateKey: privateKey,
		Subject:    "mailto:push@example.com",
	})
	require.NoError(t, err)

	client := NewClient(ClientConfig{Signer: signer, Logger: zerolog.Nop()})

	u, err := url.Parse("https://updates.push.services.mozilla.com/wpush/v2/abc")
	require.NoError(t, err)

	req, err := client.buildRequest(context.Background(), u, webpush.Tickle(), time.Minute)
	require.NoError(t, err)

	auth := req.Header.Get("Authorization")
	assert.True(t, strings.HasPrefix(auth, "vapid t="), auth)
	assert.Contains(t, auth, "k="+publicKey)
}

func TestClient_BuildRequest_NoAuthorizationForPlainHTTP(t *testing.T) {
	privateKey, _, err := webpush.GenerateVAPIDKey()
	require.NoError(t, err)

	signer, err := webpush.NewVAPIDSigner(webpush.VAPIDConfig{
		PrivateKey: privateKey,
		Subject:    "mailto:push@example.com",
	})
	require.NoError(t, err)

	client := NewClient(ClientConfig{Signer: signer, Logger: zerolog.Nop()})

	u, err := url.Parse("http://localhost:9000/wpush/v2/abc")
	require.NoError(t, err)

	req, err := client.buildRequest(context.Background(), u, webpush.Tickle(), time.Minute)
	require.NoError(t, err)
	assert.Empty(t, req.Header.Get("Authorization"))
}
