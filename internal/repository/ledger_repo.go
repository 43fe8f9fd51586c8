package repository

import (
	"context"
	"errors"
	"time"

	"clubpos/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ValidarLedger inspects the locked row before the deltas are applied.
// actual is nil when the bill had no ledger yet. A non-nil error aborts the
// upsert and is returned unchanged.
type ValidarLedger func(actual *model.LedgerCuenta) error

type LedgerRepository interface {
	// Upsert is the only write path for ledger rows. It locks the row for
	// cuentaRef, seeds it from totalDue when missing, runs validar (may be
	// nil), applies d and stores the recomputed totals and estado. anterior
	// is the locked pre-image, nil for a new bill. Must run inside a
	// transaction.
	Upsert(ctx context.Context, tx *gorm.DB, sesionRef, cuentaRef string, totalDue *decimal.Decimal, d model.DeltasLedger, validar ValidarLedger) (anterior, nuevo *model.LedgerCuenta, err error)
	// FindByCuenta returns nil, nil when the bill has no ledger yet.
	FindByCuenta(ctx context.Context, cuentaRef string) (*model.LedgerCuenta, error)
	FindByCuentaTx(ctx context.Context, tx *gorm.DB, cuentaRef string) (*model.LedgerCuenta, error)
	DB() *gorm.DB // exposes the DB for transaction creation in service layer
}

type ledgerRepo struct{ db *gorm.DB }

func NewLedgerRepository(db *gorm.DB) LedgerRepository { return &ledgerRepo{db: db} }

func (r *ledgerRepo) DB() *gorm.DB { return r.db }

func (r *ledgerRepo) Upsert(ctx context.Context, tx *gorm.DB, sesionRef, cuentaRef string, totalDue *decimal.Decimal, d model.DeltasLedger, validar ValidarLedger) (*model.LedgerCuenta, *model.LedgerCuenta, error) {
	tx = tx.WithContext(ctx)

	// Seed first so there is always a row to lock: two first payments racing
	// on a new bill would otherwise both read "no row" and lose a delta.
	seed := model.LedgerCuenta{
		CuentaRef: cuentaRef,
		SesionRef: sesionRef,
		Estado:    model.LedgerPendiente,
		UpdatedAt: time.Now(),
	}
	if totalDue != nil {
		seed.TotalDue = *totalDue
	}
	seed.Estado = model.CalcularEstado(seed.TotalDue, seed.TotalPagado, seed.TotalDescuento)
	res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&seed)
	if res.Error != nil {
		return nil, nil, translate(res.Error)
	}
	nueva := res.RowsAffected == 1

	var l model.LedgerCuenta
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("cuenta_ref = ?", cuentaRef).
		First(&l).Error; err != nil {
		return nil, nil, err
	}

	var anterior *model.LedgerCuenta
	if !nueva {
		pre := l
		anterior = &pre
	}
	if validar != nil {
		if err := validar(anterior); err != nil {
			return nil, nil, err
		}
	}

	l.Aplicar(d)
	l.UpdatedAt = time.Now()
	err := tx.Model(&model.LedgerCuenta{}).
		Where("cuenta_ref = ?", cuentaRef).
		Updates(map[string]interface{}{
			"total_due":       l.TotalDue,
			"total_descuento": l.TotalDescuento,
			"total_pagado":    l.TotalPagado,
			"total_propina":   l.TotalPropina,
			"estado":          l.Estado,
			"updated_at":      l.UpdatedAt,
		}).Error
	if err != nil {
		return nil, nil, translate(err)
	}
	return anterior, &l, nil
}

func (r *ledgerRepo) FindByCuenta(ctx context.Context, cuentaRef string) (*model.LedgerCuenta, error) {
	return r.FindByCuentaTx(ctx, r.db, cuentaRef)
}

func (r *ledgerRepo) FindByCuentaTx(ctx context.Context, tx *gorm.DB, cuentaRef string) (*model.LedgerCuenta, error) {
	var l model.LedgerCuenta
	err := tx.WithContext(ctx).Where("cuenta_ref = ?", cuentaRef).First(&l).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}
