package repository

import (
	"context"

	"clubpos/internal/model"

	"gorm.io/gorm"
)

// LogPagoRepository is the append-only audit trail for bills.
type LogPagoRepository interface {
	AppendTx(ctx context.Context, tx *gorm.DB, entry *model.LogPago) error
	// ListByCuenta returns one page of entries, newest first, plus the total count.
	ListByCuenta(ctx context.Context, cuentaRef string, page, pageSize int) ([]model.LogPago, int64, error)
}

type logPagoRepo struct{ db *gorm.DB }

func NewLogPagoRepository(db *gorm.DB) LogPagoRepository { return &logPagoRepo{db: db} }

func (r *logPagoRepo) AppendTx(ctx context.Context, tx *gorm.DB, entry *model.LogPago) error {
	return translate(tx.WithContext(ctx).Create(entry).Error)
}

func (r *logPagoRepo) ListByCuenta(ctx context.Context, cuentaRef string, page, pageSize int) ([]model.LogPago, int64, error) {
	var (
		entries []model.LogPago
		total   int64
	)
	q := r.db.WithContext(ctx).Model(&model.LogPago{}).Where("cuenta_ref = ?", cuentaRef)
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := q.Order("created_at DESC, id DESC").
		Offset((page - 1) * pageSize).Limit(pageSize).
		Find(&entries).Error
	return entries, total, err
}
