package infra

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
)

// SesionMesa is one open table session as reported by the table/session service.
type SesionMesa struct {
	SesionID  string           `json:"session_id"`
	CuentaRef string           `json:"bill_ref"`
	Mesa      string           `json:"table"`
	Total     *decimal.Decimal `json:"total,omitempty"`
}

type sesionesActivasResponse struct {
	Data []SesionMesa `json:"data"`
}

// MesasClient talks to the table/session service, which owns table occupancy
// and bill lifecycle. Every call goes through the circuit breaker and carries
// the client timeout; callers decide whether a failure is fatal.
type MesasClient struct {
	baseURL    string
	httpClient *http.Client
	cb         *CircuitBreaker
}

func NewMesasClient(baseURL string, timeout time.Duration, cb *CircuitBreaker) *MesasClient {
	if cb == nil {
		cb = NewCircuitBreaker(DefaultCBConfig())
	}
	return &MesasClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		cb:         cb,
	}
}

// Breaker exposes the breaker for health reporting.
func (c *MesasClient) Breaker() *CircuitBreaker { return c.cb }

// SesionesActivas lists every open table session.
func (c *MesasClient) SesionesActivas(ctx context.Context) ([]SesionMesa, error) {
	var out sesionesActivasResponse
	err := c.cb.Execute(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/table-sessions/active", nil)
		if err != nil {
			return fmt.Errorf("mesas: create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("mesas: service unreachable: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("mesas: active sessions returned %d", resp.StatusCode)
		}
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return fmt.Errorf("mesas: decode response: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out.Data, nil
}

// CuentaActiva returns the open session holding cuentaRef, or nil when the
// bill is not part of any active session.
func (c *MesasClient) CuentaActiva(ctx context.Context, cuentaRef string) (*SesionMesa, error) {
	sesiones, err := c.SesionesActivas(ctx)
	if err != nil {
		return nil, err
	}
	for i := range sesiones {
		if sesiones[i].CuentaRef == cuentaRef {
			return &sesiones[i], nil
		}
	}
	return nil, nil
}

// ContarSesionesActivas returns how many table sessions are open.
func (c *MesasClient) ContarSesionesActivas(ctx context.Context) (int, error) {
	sesiones, err := c.SesionesActivas(ctx)
	if err != nil {
		return 0, err
	}
	return len(sesiones), nil
}

// LiquidarCuenta tells the table/session service that cuentaRef is fully paid.
func (c *MesasClient) LiquidarCuenta(ctx context.Context, cuentaRef string) error {
	return c.cb.Execute(func() error {
		endpoint := c.baseURL + "/v1/table-sessions/bills/" + url.PathEscape(cuentaRef) + "/settle"
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
		if err != nil {
			return fmt.Errorf("mesas: create request: %w", err)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("mesas: service unreachable: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return fmt.Errorf("mesas: settle returned %d", resp.StatusCode)
		}
		return nil
	})
}
