package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/elys-network/vault-apy/internal/exporter"
	"github.com/elys-network/vault-apy/internal/metrics"
	"github.com/elys-network/vault-apy/internal/state"
	"github.com/elys-network/vault-apy/internal/types"
	"github.com/elys-network/vault-apy/internal/vaults"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const (
	knownVault   = "0x2994529c0652d127b7842094103715ec5299bbed"
	brokenVault  = "0x1111111111111111111111111111111111111111"
	unknownVault = "0x9999999999999999999999999999999999999999"
)

type stubEngine struct{}

func (stubEngine) ComputeApy(_ context.Context, v types.Vault) (types.Apy, error) {
	if types.SameAddress(v.Address, brokenVault) {
		return types.Apy{}, errors.New("vault address or token address is missing")
	}
	return types.Apy{Recommended: 0.12, Type: "curve", Composite: true, Data: map[string]float64{"poolApy": 0.02}}, nil
}

type stubCycles struct {
	result exporter.CycleResult
	ok     bool
}

func (s stubCycles) LastCycle() (exporter.CycleResult, bool) {
	return s.result, s.ok
}

func newTestServer(t *testing.T, cycles CycleReporter, dbCheck func() error) (*WebServer, *state.MemoryStore) {
	t.Helper()
	store := state.NewMemoryStore(nil)
	apy := types.Apy{Recommended: 0.05, Type: "curve", Data: map[string]float64{}}
	_, err := store.BatchPut(context.Background(), []types.CachedVault{
		types.NewCachedVault(types.Vault{Address: knownVault, Name: "curve 3pool"}, &apy, time.Unix(1_700_000_000, 0)),
		types.NewCachedVault(types.Vault{Address: brokenVault, Symbol: "yvBROKEN"}, nil, time.Unix(1_700_000_000, 0)),
	})
	require.NoError(t, err)

	source := vaults.Static{
		{Address: knownVault, Token: types.Token{Address: "0x6c3f90f043a72fa612cbac8115ee7e52bde6e490"}},
		{Address: brokenVault},
	}
	ws := NewWebServer(Config{
		Store:   store,
		Source:  source,
		Engine:  stubEngine{},
		Cycles:  cycles,
		Metrics: metrics.NewCollector("test"),
		DBCheck: dbCheck,
	})
	return ws, store
}

func get(t *testing.T, ws *WebServer, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	ws.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealth(t *testing.T) {
	okCycle := stubCycles{result: exporter.CycleResult{ID: "c1", Number: 3, Vaults: 2, Written: 2}, ok: true}

	t.Run("ok after a successful cycle", func(t *testing.T) {
		ws, _ := newTestServer(t, okCycle, func() error { return nil })
		rec := get(t, ws, "/health")
		require.Equal(t, http.StatusOK, rec.Code)

		var body map[string]interface{}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "OK", body["status"])
		status := body["exporter_status"].(map[string]interface{})
		assert.Equal(t, true, status["database_healthy"])
		info := status["cycle_info"].(map[string]interface{})
		assert.Equal(t, float64(3), info["current_cycle"])
		assert.Equal(t, "completed", info["last_cycle_status"])
	})

	t.Run("degraded before the first cycle", func(t *testing.T) {
		ws, _ := newTestServer(t, stubCycles{}, nil)
		rec := get(t, ws, "/api/health")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Contains(t, rec.Body.String(), `"DEGRADED"`)
	})

	t.Run("degraded when the database fails", func(t *testing.T) {
		ws, _ := newTestServer(t, okCycle, func() error { return errors.New("connection refused") })
		rec := get(t, ws, "/health")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.False(t, ws.Healthy())
	})

	t.Run("degraded after a failed cycle", func(t *testing.T) {
		failed := stubCycles{result: exporter.CycleResult{ID: "c2", ErrorMsg: "failed to list vaults"}, ok: true}
		ws, _ := newTestServer(t, failed, nil)
		rec := get(t, ws, "/health")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Contains(t, rec.Body.String(), `"failed"`)
	})
}

func TestGetVaults(t *testing.T) {
	ws, _ := newTestServer(t, nil, nil)
	rec := get(t, ws, "/api/vaults")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	var out []types.CachedVault
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Len(t, out, 2)
	assert.Equal(t, brokenVault, out[0].Address)
	assert.Equal(t, "yvBROKEN", out[0].DisplayName)
	assert.Nil(t, out[0].Apy)
	assert.Equal(t, knownVault, out[1].Address)
	require.NotNil(t, out[1].Apy)
	assert.Equal(t, 0.05, out[1].Apy.Recommended)
}

func TestGetVault(t *testing.T) {
	ws, _ := newTestServer(t, nil, nil)

	rec := get(t, ws, "/api/vaults/"+strings.ToUpper(knownVault[2:]))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = get(t, ws, "/api/vaults/0x"+strings.ToUpper(knownVault[2:]))
	require.Equal(t, http.StatusOK, rec.Code)
	var v types.CachedVault
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	assert.Equal(t, "curve 3pool", v.DisplayName)
	assert.Equal(t, int64(1_700_000_000), v.Updated)

	rec = get(t, ws, "/api/vaults/"+unknownVault)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "Vault not found")
}

func TestComputeApy(t *testing.T) {
	ws, _ := newTestServer(t, nil, nil)

	rec := get(t, ws, "/api/vaults/"+knownVault+"/apy")
	require.Equal(t, http.StatusOK, rec.Code)
	var apy types.Apy
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &apy))
	assert.Equal(t, 0.12, apy.Recommended)
	assert.True(t, apy.Composite)

	rec = get(t, ws, "/api/vaults/"+brokenVault+"/apy")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "token address is missing")

	rec = get(t, ws, "/api/vaults/"+unknownVault+"/apy")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetricsRoute(t *testing.T) {
	ws, _ := newTestServer(t, nil, nil)
	rec := get(t, ws, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)

	noMetrics := NewWebServer(Config{Store: state.NewMemoryStore(nil)})
	rec = get(t, noMetrics, "/metrics")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCorsPreflight(t *testing.T) {
	ws, _ := newTestServer(t, nil, nil)
	rec := httptest.NewRecorder()
	ws.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/api/vaults", nil))
	assert.Equal(t, "GET, OPTIONS", rec.Header().Get("Access-Control-Allow-Methods"))
}

func TestHealthServerFollowsCheck(t *testing.T) {
	healthy := false
	hs := NewHealthServer(func() bool { return healthy })
	ctx := context.Background()

	resp, err := hs.health.Check(ctx, &healthpb.HealthCheckRequest{Service: HealthService})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.Status)

	healthy = true
	hs.sync()
	resp, err = hs.health.Check(ctx, &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.Status)
}
