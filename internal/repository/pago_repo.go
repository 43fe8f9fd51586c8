package repository

import (
	"context"
	"errors"

	"clubpos/internal/model"

	"gorm.io/gorm"
)

// PagoRepository is the append-only payment store. There is intentionally no
// Update or Delete method.
type PagoRepository interface {
	// InsertTx stores one row per line inside the caller's transaction. Lines
	// are expected to be validated already; amounts are stored as given.
	InsertTx(ctx context.Context, tx *gorm.DB, sesionRef, cuentaRef string, servidorID *string, lineas []model.Pago) error
	ListByCuenta(ctx context.Context, cuentaRef string) ([]model.Pago, error)
	ListAll(ctx context.Context, limit int) ([]model.Pago, error)
}

type pagoRepo struct{ db *gorm.DB }

func NewPagoRepository(db *gorm.DB) PagoRepository { return &pagoRepo{db: db} }

func (r *pagoRepo) InsertTx(ctx context.Context, tx *gorm.DB, sesionRef, cuentaRef string, servidorID *string, lineas []model.Pago) error {
	if cuentaRef == "" {
		return errors.New("pago: cuenta_ref vacia")
	}
	if len(lineas) == 0 {
		return nil
	}
	for i := range lineas {
		lineas[i].SesionRef = sesionRef
		lineas[i].CuentaRef = cuentaRef
		lineas[i].ServidorID = servidorID
	}
	return translate(tx.WithContext(ctx).Create(&lineas).Error)
}

func (r *pagoRepo) ListByCuenta(ctx context.Context, cuentaRef string) ([]model.Pago, error) {
	var pagos []model.Pago
	err := r.db.WithContext(ctx).Where("cuenta_ref = ?", cuentaRef).Order("created_at ASC, id ASC").Find(&pagos).Error
	return pagos, err
}

func (r *pagoRepo) ListAll(ctx context.Context, limit int) ([]model.Pago, error) {
	var pagos []model.Pago
	err := r.db.WithContext(ctx).Order("created_at DESC").Limit(limit).Find(&pagos).Error
	return pagos, err
}
