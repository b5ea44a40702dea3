package cluster

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthAggregator_AllPassing(t *testing.T) {
	h := NewHealthAggregator()
	h.AddCheck("consul", func() error { return nil })

	rec := httptest.NewRecorder()
	h.Handler()(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
}

func TestHealthAggregator_ReportsFailures(t *testing.T) {
	h := NewHealthAggregator()
	h.AddCheck("consul", func() error { return ErrNotConnected })
	h.AddCheck("nats", func() error { return nil })
	h.AddCheck("directory", func() error { return errors.New("offline") })

	rec := httptest.NewRecorder()
	h.Handler()(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body, 2)
	assert.Equal(t, "offline", body["directory"])
	assert.Contains(t, body, "consul")
}

func TestBasicHealthHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	NewBasicHealthHandler()(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "alive")
}

func TestAuthorityKey(t *testing.T) {
	assert.Equal(t, "fragmatch/match/0420/authority", AuthorityKey("fragmatch", "0420"))
}

func TestAuthority_ReleaseWithoutLockIsNoop(t *testing.T) {
	a := NewAuthority(nil, "fragmatch", "1234", "node-1", nil)
	assert.False(t, a.Held())
	assert.NoError(t, a.Release())
	assert.ErrorIs(t, a.Acquire(t.Context()), ErrNotConnected)
}

func TestProcessRegistration_ServiceID(t *testing.T) {
	reg := ProcessRegistration{Name: HostServiceName, Host: "box", Port: 8080}
	assert.Equal(t, "fragmatch-host-box-8080", reg.ServiceID())
}
