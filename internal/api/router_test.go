package api_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pushgate/pushgate/internal/api"
	"github.com/pushgate/pushgate/internal/api/models"
	"github.com/pushgate/pushgate/internal/device"
	"github.com/pushgate/pushgate/internal/featureflags"
	"github.com/pushgate/pushgate/internal/push"
	"github.com/pushgate/pushgate/internal/push/transport"
)

const testToken = "test-token-for-router-tests"

type routerFixture struct {
	router   http.Handler
	registry *device.InMemoryRegistry
	flags    *featureflags.Service
}

func newTestRouter() *routerFixture {
	logger := zerolog.New(io.Discard)

	registry := device.NewInMemoryRegistry()
	flags := featureflags.NewService(featureflags.ServiceConfig{
		Repository: featureflags.NewInMemoryRepository(),
		Logger:     logger,
	})

	sender := transport.NewClient(transport.ClientConfig{Logger: logger})
	pusher := push.NewService(push.ServiceConfig{
		Registry: registry,
		Sender:   sender,
		Flags:    flags,
		Logger:   logger,
	})

	router := api.NewRouter(api.RouterConfig{
		Version:            "test",
		BuildTime:          "2024-01-01T00:00:00Z",
		Logger:             logger,
		AuthTokens:         map[string]string{"tests": testToken},
		PushService:        pusher,
		DeviceService:      device.NewService(registry),
		FeatureFlagService: flags,
		Upstreams:          sender.Upstreams(),
	})

	return &routerFixture{router: router, registry: registry, flags: flags}
}

func (f *routerFixture) do(t *testing.T, method, path string, body any, authed bool) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader = http.NoBody
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(encoded)
	}

	req := httptest.NewRequest(method, path, reader)
	if authed {
		req.Header.Set("Authorization", "Bearer "+testToken)
	}

	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestRouter_HealthCheck(t *testing.T) {
	f := newTestRouter()

	w := f.do(t, http.MethodGet, "/v1/ops/health", nil, false)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.NotEmpty(t, w.Header().Get("X-Request-Id"))

	var health models.Health
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &health))
	assert.Equal(t, models.HealthStatusOK, health.Status)
}

func TestRouter_AuthRequired(t *testing.T) {
	f := newTestRouter()

	paths := []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/v1/accounts/acct/notify"},
		{http.MethodGet, "/v1/accounts/acct/devices/"},
		{http.MethodGet, "/v1/admin/feature-flags/"},
		{http.MethodGet, "/v1/ops/status"},
	}

	for _, p := range paths {
		w := f.do(t, p.method, p.path, nil, false)
		assert.Equal(t, http.StatusUnauthorized, w.Code, p.path)
		assert.Equal(t, "application/problem+json", w.Header().Get("Content-Type"), p.path)
	}
}

func TestRouter_RejectsBadToken(t *testing.T) {
	f := newTestRouter()

	req := httptest.NewRequest(http.MethodGet, "/v1/ops/status", http.NoBody)
	req.Header.Set("Authorization", "Bearer wrong-token")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRouter_DeviceLifecycle(t *testing.T) {
	f := newTestRouter()

	w := f.do(t, http.MethodPost, "/v1/accounts/acct/devices/", models.UpsertDeviceRequest{
		Name:         "Aurora on desktop",
		Type:         "desktop",
		PushEndpoint: "https://push.example.com/abc",
	}, true)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var registered models.Device
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &registered))
	assert.NotEmpty(t, registered.ID)
	assert.Equal(t, "/v1/accounts/acct/devices/"+registered.ID, w.Header().Get("Location"))

	w = f.do(t, http.MethodGet, "/v1/accounts/acct/devices/", nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	var list models.DeviceList
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Len(t, list.Items, 1)

	w = f.do(t, http.MethodDelete, "/v1/accounts/acct/devices/"+registered.ID+"/", nil, true)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = f.do(t, http.MethodGet, "/v1/accounts/acct/devices/"+registered.ID+"/", nil, true)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouter_NotifyEndToEnd(t *testing.T) {
	pushService := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))
	defer pushService.Close()

	f := newTestRouter()

	w := f.do(t, http.MethodPost, "/v1/accounts/acct/devices/", models.UpsertDeviceRequest{
		Name:         "phone",
		Type:         "mobile",
		PushEndpoint: pushService.URL,
	}, true)
	require.Equal(t, http.StatusCreated, w.Code)

	w = f.do(t, http.MethodPost, "/v1/accounts/acct/notify", models.NotifyRequest{
		Command: "fxaccounts:password_changed",
	}, true)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var result models.NotifyResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, 1, result.Attempted)
	assert.Equal(t, 1, result.Delivered)
}

func TestRouter_NotifyReportsEncryptionFailures(t *testing.T) {
	f := newTestRouter()

	w := f.do(t, http.MethodPost, "/v1/accounts/acct/devices/", models.UpsertDeviceRequest{
		Name:          "phone",
		PushEndpoint:  "https://push.example.com/abc",
		PushPublicKey: "not-a-p256-point",
		PushAuthKey:   "too-short",
	}, true)
	require.Equal(t, http.StatusCreated, w.Code)

	w = f.do(t, http.MethodPost, "/v1/accounts/acct/notify", models.NotifyRequest{
		Command: "fxaccounts:password_changed",
	}, true)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var result models.NotifyResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, 1, result.Attempted)
	assert.Equal(t, 0, result.Delivered)
	assert.Equal(t, 1, result.EncryptionUnavailable)
	assert.Equal(t, 0, result.PayloadTooLarge)
}

func TestRouter_NotifyUnknownCommand(t *testing.T) {
	f := newTestRouter()

	w := f.do(t, http.MethodPost, "/v1/accounts/acct/notify", models.NotifyRequest{
		Command: "fxaccounts:nonsense",
	}, true)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "application/problem+json", w.Header().Get("Content-Type"))
}

func TestRouter_NotifyNoDevices(t *testing.T) {
	f := newTestRouter()

	w := f.do(t, http.MethodPost, "/v1/accounts/empty/notify", models.NotifyRequest{
		Command: "fxaccounts:profile_updated",
	}, true)
	require.Equal(t, http.StatusOK, w.Code)

	var result models.NotifyResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.True(t, result.NoEligibleDevices)
	assert.Zero(t, result.Attempted)
}

func TestRouter_NotifyKillSwitch(t *testing.T) {
	f := newTestRouter()

	w := f.do(t, http.MethodPut, "/v1/admin/feature-flags/", models.FeatureFlagUpdateRequest{
		Updates: []models.FeatureFlagUpdate{
			{Key: featureflags.FlagDisablePushSending, Value: true},
		},
	}, true)
	require.Equal(t, http.StatusNoContent, w.Code)

	w = f.do(t, http.MethodPost, "/v1/accounts/acct/notify", models.NotifyRequest{
		Command: "fxaccounts:profile_updated",
	}, true)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestRouter_FeatureFlagsList(t *testing.T) {
	f := newTestRouter()

	w := f.do(t, http.MethodGet, "/v1/admin/feature-flags/", nil, true)
	require.Equal(t, http.StatusOK, w.Code)

	var list models.FeatureFlagList
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Len(t, list.Items, 3)
}

func TestRouter_DisconnectDevice(t *testing.T) {
	pushService := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))
	defer pushService.Close()

	f := newTestRouter()

	w := f.do(t, http.MethodPost, "/v1/accounts/acct/devices/", models.UpsertDeviceRequest{
		Name:         "old phone",
		PushEndpoint: pushService.URL + "/old",
	}, true)
	require.Equal(t, http.StatusCreated, w.Code)
	var gone models.Device
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &gone))

	w = f.do(t, http.MethodPost, "/v1/accounts/acct/devices/", models.UpsertDeviceRequest{
		Name:         "laptop",
		PushEndpoint: pushService.URL + "/laptop",
	}, true)
	require.Equal(t, http.StatusCreated, w.Code)

	w = f.do(t, http.MethodPost, "/v1/accounts/acct/devices/"+gone.ID+"/disconnect", nil, true)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var result models.NotifyResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, "fxaccounts:device_disconnected", result.Command)
	assert.Equal(t, 1, result.Attempted, "only the surviving device remains registered")

	w = f.do(t, http.MethodGet, "/v1/accounts/acct/devices/"+gone.ID+"/", nil, true)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
