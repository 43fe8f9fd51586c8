package service

import (
	"context"
	"encoding/json"

	"clubpos/internal/infra"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// RegistroMesas is the slice of the table/session service the ledger needs.
// *infra.MesasClient satisfies it.
type RegistroMesas interface {
	// CuentaActiva returns nil, nil when the bill is in no active session.
	CuentaActiva(ctx context.Context, cuentaRef string) (*infra.SesionMesa, error)
	LiquidarCuenta(ctx context.Context, cuentaRef string) error
	ContarSesionesActivas(ctx context.Context) (int, error)
}

// NotificadorLiquidacion tells the table/session service that a bill is paid.
// It never fails the caller: delivery problems are retried or logged.
type NotificadorLiquidacion interface {
	Notificar(ctx context.Context, cuentaRef string)
}

// AlertasDesvio is told about every drawer that closes with a critical
// variance, after the close has committed.
type AlertasDesvio interface {
	AlertarDesvio(ctx context.Context, sesionCajaID string)
}

// runTx executes fn inside a GORM transaction when db is available,
// or calls fn(nil) directly when db is nil (unit test mode).
func runTx(ctx context.Context, db *gorm.DB, fn func(tx *gorm.DB) error) error {
	if db == nil {
		return fn(nil)
	}
	return db.WithContext(ctx).Transaction(fn)
}

// snapshot encodes v for an audit column. A nil v yields a NULL column.
func snapshot(v any) datatypes.JSON {
	if v == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return datatypes.JSON(b)
}
