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

// CajaFiltro narrows the session history by opened_at range.
type CajaFiltro struct {
	Desde *time.Time
	Hasta *time.Time
	Page  int
	Limit int
}

type CajaRepository interface {
	// CreateSesionTx returns ErrSesionAbiertaDuplicada when another session is open.
	CreateSesionTx(ctx context.Context, tx *gorm.DB, s *model.SesionCaja) error
	// FindSesionAbierta returns nil, nil when no session is open.
	FindSesionAbierta(ctx context.Context) (*model.SesionCaja, error)
	// FindSesionAbiertaTx takes a shared lock on the open session so it cannot
	// close while the caller appends movements. Returns nil, nil when none.
	FindSesionAbiertaTx(ctx context.Context, tx *gorm.DB) (*model.SesionCaja, error)
	FindSesionByID(ctx context.Context, id string) (*model.SesionCaja, error)
	// LockSesionTx reads a session FOR UPDATE.
	LockSesionTx(ctx context.Context, tx *gorm.DB, id string) (*model.SesionCaja, error)
	// CerrarSesionTx persists the closing columns; ErrSesionNoAbierta if the
	// row is no longer open.
	CerrarSesionTx(ctx context.Context, tx *gorm.DB, s *model.SesionCaja) error
	ListSesiones(ctx context.Context, filtro CajaFiltro) ([]model.SesionCaja, int64, error)

	CreateMovimientoTx(ctx context.Context, tx *gorm.DB, m *model.MovimientoCaja) error
	ListMovimientos(ctx context.Context, sesionCajaID string) ([]model.MovimientoCaja, error)
	SumMovimientosPorTipoTx(ctx context.Context, tx *gorm.DB, sesionCajaID string) (map[string]decimal.Decimal, error)
	DB() *gorm.DB
}

type cajaRepo struct{ db *gorm.DB }

func NewCajaRepository(db *gorm.DB) CajaRepository { return &cajaRepo{db: db} }

func (r *cajaRepo) DB() *gorm.DB { return r.db }

func (r *cajaRepo) CreateSesionTx(ctx context.Context, tx *gorm.DB, s *model.SesionCaja) error {
	return translate(tx.WithContext(ctx).Create(s).Error)
}

func (r *cajaRepo) FindSesionAbierta(ctx context.Context) (*model.SesionCaja, error) {
	return firstOrNil(r.db.WithContext(ctx).Where("estado = ?", model.CajaAbierta))
}

func (r *cajaRepo) FindSesionAbiertaTx(ctx context.Context, tx *gorm.DB) (*model.SesionCaja, error) {
	return firstOrNil(tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "SHARE"}).
		Where("estado = ?", model.CajaAbierta))
}

func (r *cajaRepo) FindSesionByID(ctx context.Context, id string) (*model.SesionCaja, error) {
	return firstOrNil(r.db.WithContext(ctx).Where("id = ?", id))
}

func (r *cajaRepo) LockSesionTx(ctx context.Context, tx *gorm.DB, id string) (*model.SesionCaja, error) {
	return firstOrNil(tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id))
}

func (r *cajaRepo) CerrarSesionTx(ctx context.Context, tx *gorm.DB, s *model.SesionCaja) error {
	res := tx.WithContext(ctx).Model(&model.SesionCaja{}).
		Where("id = ? AND estado = ?", s.ID, model.CajaAbierta).
		Updates(map[string]interface{}{
			"estado":               model.CajaCerrada,
			"cerrada_por":          s.CerradaPor,
			"closed_at":            s.ClosedAt,
			"monto_cierre":         s.MontoCierre,
			"monto_esperado":       s.MontoEsperado,
			"diferencia":           s.Diferencia,
			"diferencia_pct":       s.DiferenciaPct,
			"clasificacion_desvio": s.ClasificacionDesvio,
			"notas":                s.Notas,
		})
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrSesionNoAbierta
	}
	s.Estado = model.CajaCerrada
	return nil
}

func (r *cajaRepo) ListSesiones(ctx context.Context, filtro CajaFiltro) ([]model.SesionCaja, int64, error) {
	var (
		sesiones []model.SesionCaja
		total    int64
	)
	q := r.db.WithContext(ctx).Model(&model.SesionCaja{})
	if filtro.Desde != nil {
		q = q.Where("opened_at >= ?", *filtro.Desde)
	}
	if filtro.Hasta != nil {
		q = q.Where("opened_at < ?", *filtro.Hasta)
	}
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := q.Order("opened_at DESC").
		Offset((filtro.Page - 1) * filtro.Limit).Limit(filtro.Limit).
		Find(&sesiones).Error
	return sesiones, total, err
}

func (r *cajaRepo) CreateMovimientoTx(ctx context.Context, tx *gorm.DB, m *model.MovimientoCaja) error {
	return translate(tx.WithContext(ctx).Create(m).Error)
}

func (r *cajaRepo) ListMovimientos(ctx context.Context, sesionCajaID string) ([]model.MovimientoCaja, error) {
	var movs []model.MovimientoCaja
	err := r.db.WithContext(ctx).Where("sesion_caja_id = ?", sesionCajaID).Order("ocurrido_en ASC, created_at ASC").Find(&movs).Error
	return movs, err
}

func (r *cajaRepo) SumMovimientosPorTipoTx(ctx context.Context, tx *gorm.DB, sesionCajaID string) (map[string]decimal.Decimal, error) {
	var rows []struct {
		Tipo  string
		Total decimal.Decimal
	}
	err := tx.WithContext(ctx).Model(&model.MovimientoCaja{}).
		Select("tipo, COALESCE(SUM(monto), 0) AS total").
		Where("sesion_caja_id = ?", sesionCajaID).
		Group("tipo").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	sums := make(map[string]decimal.Decimal, len(rows))
	for _, row := range rows {
		sums[row.Tipo] = row.Total
	}
	return sums, nil
}

func firstOrNil(q *gorm.DB) (*model.SesionCaja, error) {
	var s model.SesionCaja
	err := q.First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}
