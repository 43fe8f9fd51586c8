package infra

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ── Circuit breaker ──────────────────────────────────────────────────────────

func TestCircuitBreakerTripsAndRecovers(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 2, SuccessThreshold: 1, OpenTimeout: time.Minute})
	clock := time.Now()
	cb.now = func() time.Time { return clock }

	boom := errors.New("boom")
	assert.ErrorIs(t, cb.Execute(func() error { return boom }), boom)
	assert.Equal(t, CBClosed, cb.State())
	assert.ErrorIs(t, cb.Execute(func() error { return boom }), boom)
	assert.Equal(t, CBOpen, cb.State())

	called := false
	err := cb.Execute(func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)

	clock = clock.Add(time.Minute)
	assert.Equal(t, CBHalfOpen, cb.State())
	require.NoError(t, cb.Execute(func() error { return nil }))
	assert.Equal(t, CBClosed, cb.State())
}

func TestCircuitBreakerHalfOpenFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1, OpenTimeout: time.Second})
	clock := time.Now()
	cb.now = func() time.Time { return clock }

	_ = cb.Execute(func() error { return errors.New("x") })
	clock = clock.Add(2 * time.Second)
	assert.Equal(t, CBHalfOpen, cb.State())

	_ = cb.Execute(func() error { return errors.New("x") })
	assert.Equal(t, CBOpen, cb.State())
	assert.Equal(t, "open", cb.State().String())
}

// ── Mesas client ─────────────────────────────────────────────────────────────

func mesasServer(t *testing.T, activeStatus int, sesiones []SesionMesa, settled *[]string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/table-sessions/active", func(w http.ResponseWriter, r *http.Request) {
		if activeStatus != http.StatusOK {
			w.WriteHeader(activeStatus)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"data": sesiones})
	})
	mux.HandleFunc("/v1/table-sessions/bills/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if settled != nil {
			*settled = append(*settled, r.URL.Path)
		}
		w.WriteHeader(http.StatusNoContent)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestMesasCuentaActiva(t *testing.T) {
	srv := mesasServer(t, http.StatusOK, []SesionMesa{
		{SesionID: "S1", CuentaRef: "CTA_1760400000_aaaaaaaa", Mesa: "4"},
		{SesionID: "S2", CuentaRef: "CTA_1760400000_bbbbbbbb", Mesa: "7"},
	}, nil)
	c := NewMesasClient(srv.URL, 2*time.Second, nil)

	s, err := c.CuentaActiva(context.Background(), "CTA_1760400000_bbbbbbbb")
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, "S2", s.SesionID)

	s, err = c.CuentaActiva(context.Background(), "CTA_1760400000_cccccccc")
	require.NoError(t, err)
	assert.Nil(t, s)

	n, err := c.ContarSesionesActivas(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestMesasNonSuccessIsError(t *testing.T) {
	srv := mesasServer(t, http.StatusBadGateway, nil, nil)
	c := NewMesasClient(srv.URL, 2*time.Second, nil)

	_, err := c.CuentaActiva(context.Background(), "CTA_1760400000_aaaaaaaa")
	assert.ErrorContains(t, err, "502")
}

func TestMesasUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewMesasClient(url, 500*time.Millisecond, nil)
	_, err := c.ContarSesionesActivas(context.Background())
	assert.ErrorContains(t, err, "unreachable")
}

func TestMesasTimeout(t *testing.T) {
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
	}))
	t.Cleanup(slow.Close)

	c := NewMesasClient(slow.URL, 50*time.Millisecond, nil)
	_, err := c.SesionesActivas(context.Background())
	assert.Error(t, err)
}

func TestMesasLiquidarCuenta(t *testing.T) {
	var settled []string
	srv := mesasServer(t, http.StatusOK, nil, &settled)
	c := NewMesasClient(srv.URL, 2*time.Second, nil)

	require.NoError(t, c.LiquidarCuenta(context.Background(), "CTA_1760400000_aaaaaaaa"))
	assert.Equal(t, []string{"/v1/table-sessions/bills/CTA_1760400000_aaaaaaaa/settle"}, settled)
}

func TestMesasBreakerOpensAfterFailures(t *testing.T) {
	srv := mesasServer(t, http.StatusInternalServerError, nil, nil)
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 2, OpenTimeout: time.Hour})
	c := NewMesasClient(srv.URL, time.Second, cb)

	for i := 0; i < 2; i++ {
		_, err := c.SesionesActivas(context.Background())
		assert.Error(t, err)
	}
	_, err := c.SesionesActivas(context.Background())
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, CBOpen, c.Breaker().State())
}
