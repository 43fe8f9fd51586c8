package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

// ─── Request DTOs ────────────────────────────────────────────────────────────

type AbrirCajaRequest struct {
	MontoApertura decimal.Decimal `json:"monto_apertura" validate:"min=0"`
	Notas         *string         `json:"notas"`
}

// OverrideSupervisor authorizes a variance on behalf of a supervisor who is
// physically present at close.
type OverrideSupervisor struct {
	SupervisorID string `json:"supervisor_id" validate:"required,uuid"`
	PIN          string `json:"pin"           validate:"required,min=4,max=12"`
}

type CerrarCajaRequest struct {
	// SesionCajaID is optional; the open session is used when empty.
	SesionCajaID string              `json:"sesion_caja_id" validate:"omitempty,max=40"`
	MontoCierre  decimal.Decimal     `json:"monto_cierre"`
	Notas        *string             `json:"notas"`
	Override     *OverrideSupervisor `json:"override"`
}

type MovimientoManualRequest struct {
	Tipo              string          `json:"tipo"               validate:"required,oneof=deposito retiro"`
	MetodoPago        string          `json:"metodo_pago"        validate:"omitempty,oneof=efectivo debito credito transferencia qr"`
	Monto             decimal.Decimal `json:"monto"              validate:"required,gt=0"`
	Descripcion       string          `json:"descripcion"        validate:"required,min=3"`
	ReferenciaExterna string          `json:"referencia_externa" validate:"omitempty,max=64"`
}

type HistorialCajaFilter struct {
	Desde *time.Time `form:"desde" time_format:"2006-01-02"`
	Hasta *time.Time `form:"hasta" time_format:"2006-01-02"`
	Page  int        `form:"page"  validate:"omitempty,min=1"`
	Limit int        `form:"limit" validate:"omitempty,min=1,max=100"`
}

// ─── Response DTOs ───────────────────────────────────────────────────────────

type DesvioResponse struct {
	Monto         decimal.Decimal `json:"monto"`
	Porcentaje    decimal.Decimal `json:"porcentaje"`
	Clasificacion string          `json:"clasificacion"` // normal | advertencia | critico
}

type SesionCajaResponse struct {
	ID            string           `json:"id"`
	AbiertaPor    string           `json:"abierta_por"`
	CerradaPor    *string          `json:"cerrada_por"`
	OpenedAt      time.Time        `json:"opened_at"`
	ClosedAt      *time.Time       `json:"closed_at"`
	MontoApertura decimal.Decimal  `json:"monto_apertura"`
	MontoCierre   *decimal.Decimal `json:"monto_cierre"`
	MontoEsperado *decimal.Decimal `json:"monto_esperado"`
	Desvio        *DesvioResponse  `json:"desvio"`
	Estado        string           `json:"estado"`
	Notas         *string          `json:"notas"`
}

type MovimientoCajaResponse struct {
	ID                string          `json:"id"`
	Tipo              string          `json:"tipo"`
	MetodoPago        *string         `json:"metodo_pago"`
	Monto             decimal.Decimal `json:"monto"`
	ReferenciaExterna string          `json:"referencia_externa"`
	Descripcion       string          `json:"descripcion"`
	OcurridoEn        time.Time       `json:"ocurrido_en"`
}

type HistorialCajaResponse struct {
	Data  []SesionCajaResponse `json:"data"`
	Total int64                `json:"total"`
	Page  int                  `json:"page"`
	Limit int                  `json:"limit"`
}

// ReporteCajaResponse recomputes the subtotals from the movements. For closed
// sessions Deriva is the difference between that recomputation and the stored
// expected total; anything other than zero means the two paths disagree.
type ReporteCajaResponse struct {
	Sesion          SesionCajaResponse         `json:"sesion"`
	SubtotalPorTipo map[string]decimal.Decimal `json:"subtotal_por_tipo"`
	CantidadPorTipo map[string]int             `json:"cantidad_por_tipo"`
	TotalSistema    decimal.Decimal            `json:"total_sistema"`
	EsperadoCalc    decimal.Decimal            `json:"esperado_calculado"`
	Deriva          *decimal.Decimal           `json:"deriva"`
	Movimientos     []MovimientoCajaResponse   `json:"movimientos"`
}
