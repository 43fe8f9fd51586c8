package model

import (
	"time"

	"clubpos/internal/apierror"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Estado de SesionCaja
const (
	CajaAbierta = "abierta"
	CajaCerrada = "cerrada"
)

// Tipo de MovimientoCaja
const (
	MovVenta     = "venta"
	MovReembolso = "reembolso"
	MovPropina   = "propina"
	MovDeposito  = "deposito"
	MovRetiro    = "retiro"
)

// TiposMovimiento lists every movement type in report order.
var TiposMovimiento = []string{MovVenta, MovReembolso, MovPropina, MovDeposito, MovRetiro}

// SesionCaja is one accountable period of the physical cash drawer.
// At most one row may be "abierta" system-wide (partial unique index).
// Closing mutates the row exactly once; closed rows are never touched again.
type SesionCaja struct {
	ID            string          `gorm:"type:varchar(40);primaryKey"`
	AbiertaPor    uuid.UUID       `gorm:"type:uuid;not null"`
	CerradaPor    *uuid.UUID      `gorm:"type:uuid"`
	OpenedAt      time.Time       `gorm:"not null;index"`
	ClosedAt      *time.Time
	MontoApertura decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	// MontoCierre is the counted cash declared at close.
	MontoCierre *decimal.Decimal `gorm:"type:decimal(12,2)"`
	// MontoEsperado is computed on close: MontoApertura + signed SUM(movimientos)
	MontoEsperado *decimal.Decimal `gorm:"type:decimal(12,2)"`
	Diferencia    *decimal.Decimal `gorm:"type:decimal(12,2)"`
	DiferenciaPct *decimal.Decimal `gorm:"type:decimal(7,2)"`
	// ClasificacionDesvio: "normal" | "advertencia" | "critico"
	ClasificacionDesvio *string `gorm:"type:varchar(20)"`
	Estado              string  `gorm:"type:varchar(20);not null;default:'abierta'"`
	Notas               *string

	Movimientos []MovimientoCaja `gorm:"foreignKey:SesionCajaID"`
}

func (SesionCaja) TableName() string { return "sesiones_caja" }

func (s *SesionCaja) BeforeDelete(*gorm.DB) error { return apierror.ErrInmutable }

// MovimientoCaja is an immutable event in the cash drawer ledger.
// Monto is always stored non-negative; the sign comes from Tipo.
type MovimientoCaja struct {
	ID           uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	SesionCajaID string          `gorm:"type:varchar(40);index;not null"`
	Tipo         string          `gorm:"type:varchar(20);not null"`
	MetodoPago   *string         `gorm:"type:varchar(20)"`
	Monto        decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	// ReferenciaExterna links to the originating payment, refund or manual operation
	ReferenciaExterna string `gorm:"type:varchar(64);not null;index"`
	Descripcion       string
	OcurridoEn        time.Time `gorm:"not null"`
	CreatedAt         time.Time
}

func (MovimientoCaja) TableName() string { return "movimientos_caja" }

func (m *MovimientoCaja) BeforeUpdate(*gorm.DB) error { return apierror.ErrInmutable }
func (m *MovimientoCaja) BeforeDelete(*gorm.DB) error { return apierror.ErrInmutable }

// Signo returns +1 for movements that put money in the drawer and -1 for
// those that take it out. Unknown types count as zero.
func Signo(tipo string) int64 {
	switch tipo {
	case MovVenta, MovPropina, MovDeposito:
		return 1
	case MovReembolso, MovRetiro:
		return -1
	default:
		return 0
	}
}

// TipoMovimientoValido reports whether tipo is one of TiposMovimiento.
func TipoMovimientoValido(tipo string) bool { return Signo(tipo) != 0 }

// MontoFirmado is Monto with the sign convention applied.
func (m MovimientoCaja) MontoFirmado() decimal.Decimal {
	return m.Monto.Mul(decimal.NewFromInt(Signo(m.Tipo)))
}

// TotalSistema folds per-type sums into the signed drawer total.
func TotalSistema(sumasPorTipo map[string]decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for tipo, suma := range sumasPorTipo {
		total = total.Add(suma.Mul(decimal.NewFromInt(Signo(tipo))))
	}
	return total
}
