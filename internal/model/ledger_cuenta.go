package model

import (
	"time"

	"clubpos/internal/apierror"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Estado de LedgerCuenta
const (
	LedgerPendiente = "pendiente"
	LedgerParcial   = "parcial"
	LedgerPagada    = "pagada"
)

// LedgerCuenta holds the running totals of one bill. Exactly one row per
// CuentaRef; Estado is always derived by CalcularEstado, never set directly.
type LedgerCuenta struct {
	CuentaRef      string          `gorm:"type:varchar(64);primaryKey"`
	SesionRef      string          `gorm:"type:varchar(64);not null;index"`
	TotalDue       decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"`
	TotalDescuento decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"`
	TotalPagado    decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"`
	TotalPropina   decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"`
	Estado         string          `gorm:"type:varchar(20);not null;default:'pendiente'"`
	UpdatedAt      time.Time
}

func (LedgerCuenta) TableName() string { return "ledger_cuentas" }

func (l *LedgerCuenta) BeforeDelete(*gorm.DB) error { return apierror.ErrInmutable }

// DeltasLedger are the amounts one mutation adds to a ledger. Refunds carry a
// negative Pagado.
type DeltasLedger struct {
	Pagado    decimal.Decimal
	Descuento decimal.Decimal
	Propina   decimal.Decimal
}

// CalcularEstado derives the settlement status from the totals.
func CalcularEstado(due, pagado, descuento decimal.Decimal) string {
	cubierto := pagado.Add(descuento)
	switch {
	case cubierto.GreaterThanOrEqual(due):
		return LedgerPagada
	case cubierto.IsPositive():
		return LedgerParcial
	default:
		return LedgerPendiente
	}
}

// Aplicar accumulates d into l and recomputes Estado.
func (l *LedgerCuenta) Aplicar(d DeltasLedger) {
	l.TotalPagado = l.TotalPagado.Add(d.Pagado)
	l.TotalDescuento = l.TotalDescuento.Add(d.Descuento)
	l.TotalPropina = l.TotalPropina.Add(d.Propina)
	l.Estado = CalcularEstado(l.TotalDue, l.TotalPagado, l.TotalDescuento)
}

// Saldada reports whether paid + discount covers the amount due.
func (l *LedgerCuenta) Saldada() bool {
	return l.TotalPagado.Add(l.TotalDescuento).GreaterThanOrEqual(l.TotalDue)
}
