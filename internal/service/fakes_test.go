package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"clubpos/internal/apierror"
	"clubpos/internal/infra"
	"clubpos/internal/model"
	"clubpos/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ── In-memory PagoRepository ─────────────────────────────────────────────────

type fakePagoRepo struct {
	mu    sync.Mutex
	pagos []model.Pago
}

func (r *fakePagoRepo) InsertTx(_ context.Context, _ *gorm.DB, sesionRef, cuentaRef string, servidorID *string, lineas []model.Pago) error {
	if cuentaRef == "" {
		return errors.New("pago: cuenta_ref vacia")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range lineas {
		lineas[i].SesionRef = sesionRef
		lineas[i].CuentaRef = cuentaRef
		lineas[i].ServidorID = servidorID
		r.pagos = append(r.pagos, lineas[i])
	}
	return nil
}

func (r *fakePagoRepo) ListByCuenta(_ context.Context, cuentaRef string) ([]model.Pago, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Pago
	for _, p := range r.pagos {
		if p.CuentaRef == cuentaRef {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *fakePagoRepo) ListAll(_ context.Context, limit int) ([]model.Pago, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.Pago, 0, len(r.pagos))
	for i := len(r.pagos) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, r.pagos[i])
	}
	return out, nil
}

// ── In-memory LedgerRepository ───────────────────────────────────────────────
// The mutex plays the role of the row lock taken by the real Upsert.

type fakeLedgerRepo struct {
	mu      sync.Mutex
	ledgers map[string]model.LedgerCuenta
}

func newFakeLedgerRepo() *fakeLedgerRepo {
	return &fakeLedgerRepo{ledgers: make(map[string]model.LedgerCuenta)}
}

// Upsert holds the mutex across validar and the write, like the row lock.
func (r *fakeLedgerRepo) Upsert(_ context.Context, _ *gorm.DB, sesionRef, cuentaRef string, totalDue *decimal.Decimal, d model.DeltasLedger, validar repository.ValidarLedger) (*model.LedgerCuenta, *model.LedgerCuenta, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var anterior *model.LedgerCuenta
	l, ok := r.ledgers[cuentaRef]
	if ok {
		pre := l
		anterior = &pre
	} else {
		l = model.LedgerCuenta{CuentaRef: cuentaRef, SesionRef: sesionRef}
		if totalDue != nil {
			l.TotalDue = *totalDue
		}
	}
	if validar != nil {
		if err := validar(anterior); err != nil {
			return nil, nil, err
		}
	}
	l.Aplicar(d)
	l.UpdatedAt = time.Now()
	r.ledgers[cuentaRef] = l
	return anterior, &l, nil
}

func (r *fakeLedgerRepo) FindByCuenta(_ context.Context, cuentaRef string) (*model.LedgerCuenta, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.ledgers[cuentaRef]
	if !ok {
		return nil, nil
	}
	return &l, nil
}

func (r *fakeLedgerRepo) FindByCuentaTx(ctx context.Context, _ *gorm.DB, cuentaRef string) (*model.LedgerCuenta, error) {
	return r.FindByCuenta(ctx, cuentaRef)
}

func (r *fakeLedgerRepo) DB() *gorm.DB { return nil }

// ── In-memory LogPagoRepository ──────────────────────────────────────────────

type fakeLogRepo struct {
	mu      sync.Mutex
	entries []model.LogPago
}

func (r *fakeLogRepo) AppendTx(_ context.Context, _ *gorm.DB, e *model.LogPago) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, *e)
	return nil
}

func (r *fakeLogRepo) ListByCuenta(_ context.Context, cuentaRef string, page, pageSize int) ([]model.LogPago, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var all []model.LogPago
	for i := len(r.entries) - 1; i >= 0; i-- {
		if r.entries[i].CuentaRef == cuentaRef {
			all = append(all, r.entries[i])
		}
	}
	total := int64(len(all))
	start := (page - 1) * pageSize
	if start >= len(all) {
		return nil, total, nil
	}
	end := start + pageSize
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], total, nil
}

func (r *fakeLogRepo) acciones(cuentaRef string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, e := range r.entries {
		if e.CuentaRef == cuentaRef {
			out = append(out, e.Accion)
		}
	}
	return out
}

// ── In-memory CajaRepository ─────────────────────────────────────────────────
// CreateSesionTx enforces the single open session like the partial unique
// index does.

type fakeCajaRepo struct {
	mu          sync.Mutex
	sesiones    map[string]*model.SesionCaja
	movimientos []model.MovimientoCaja
}

func newFakeCajaRepo() *fakeCajaRepo {
	return &fakeCajaRepo{sesiones: make(map[string]*model.SesionCaja)}
}

func (r *fakeCajaRepo) CreateSesionTx(_ context.Context, _ *gorm.DB, s *model.SesionCaja) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.sesiones {
		if existing.Estado == model.CajaAbierta {
			return repository.ErrSesionAbiertaDuplicada
		}
	}
	cp := *s
	r.sesiones[s.ID] = &cp
	return nil
}

func (r *fakeCajaRepo) FindSesionAbierta(_ context.Context) (*model.SesionCaja, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.sesiones {
		if s.Estado == model.CajaAbierta {
			cp := *s
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakeCajaRepo) FindSesionAbiertaTx(ctx context.Context, _ *gorm.DB) (*model.SesionCaja, error) {
	return r.FindSesionAbierta(ctx)
}

func (r *fakeCajaRepo) FindSesionByID(_ context.Context, id string) (*model.SesionCaja, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sesiones[id]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (r *fakeCajaRepo) LockSesionTx(ctx context.Context, _ *gorm.DB, id string) (*model.SesionCaja, error) {
	return r.FindSesionByID(ctx, id)
}

func (r *fakeCajaRepo) CerrarSesionTx(_ context.Context, _ *gorm.DB, s *model.SesionCaja) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.sesiones[s.ID]
	if !ok || existing.Estado != model.CajaAbierta {
		return repository.ErrSesionNoAbierta
	}
	cp := *s
	r.sesiones[s.ID] = &cp
	return nil
}

func (r *fakeCajaRepo) ListSesiones(_ context.Context, f repository.CajaFiltro) ([]model.SesionCaja, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var all []model.SesionCaja
	for _, s := range r.sesiones {
		if f.Desde != nil && s.OpenedAt.Before(*f.Desde) {
			continue
		}
		if f.Hasta != nil && !s.OpenedAt.Before(*f.Hasta) {
			continue
		}
		all = append(all, *s)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].OpenedAt.After(all[j].OpenedAt) })
	total := int64(len(all))
	start := (f.Page - 1) * f.Limit
	if start >= len(all) {
		return nil, total, nil
	}
	end := start + f.Limit
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], total, nil
}

func (r *fakeCajaRepo) CreateMovimientoTx(_ context.Context, _ *gorm.DB, m *model.MovimientoCaja) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	m.CreatedAt = time.Now()
	r.movimientos = append(r.movimientos, *m)
	return nil
}

func (r *fakeCajaRepo) ListMovimientos(_ context.Context, sesionID string) ([]model.MovimientoCaja, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.MovimientoCaja
	for _, m := range r.movimientos {
		if m.SesionCajaID == sesionID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *fakeCajaRepo) SumMovimientosPorTipoTx(_ context.Context, _ *gorm.DB, sesionID string) (map[string]decimal.Decimal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sums := make(map[string]decimal.Decimal)
	for _, m := range r.movimientos {
		if m.SesionCajaID == sesionID {
			sums[m.Tipo] = sums[m.Tipo].Add(m.Monto)
		}
	}
	return sums, nil
}

func (r *fakeCajaRepo) DB() *gorm.DB { return nil }

func (r *fakeCajaRepo) movimientosDeTipo(tipo string) []model.MovimientoCaja {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.MovimientoCaja
	for _, m := range r.movimientos {
		if m.Tipo == tipo {
			out = append(out, m)
		}
	}
	return out
}

// ── Collaborators ────────────────────────────────────────────────────────────

type fakeMesas struct {
	mu       sync.Mutex
	cuentas  map[string]infra.SesionMesa
	err      error
	activas  int
	countErr error
	settled  []string
}

func newFakeMesas() *fakeMesas {
	return &fakeMesas{cuentas: make(map[string]infra.SesionMesa)}
}

func (m *fakeMesas) abrir(cuentaRef string, total *decimal.Decimal) {
	m.cuentas[cuentaRef] = infra.SesionMesa{SesionID: "MESA-1", CuentaRef: cuentaRef, Mesa: "1", Total: total}
}

func (m *fakeMesas) CuentaActiva(_ context.Context, cuentaRef string) (*infra.SesionMesa, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	s, ok := m.cuentas[cuentaRef]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (m *fakeMesas) LiquidarCuenta(_ context.Context, cuentaRef string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settled = append(m.settled, cuentaRef)
	return m.err
}

func (m *fakeMesas) ContarSesionesActivas(context.Context) (int, error) {
	return m.activas, m.countErr
}

type fakeNotificador struct {
	mu   sync.Mutex
	refs []string
}

func (n *fakeNotificador) Notificar(_ context.Context, cuentaRef string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.refs = append(n.refs, cuentaRef)
}

func (n *fakeNotificador) notificadas() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.refs...)
}

type fakeAlertas struct {
	mu  sync.Mutex
	ids []string
}

func (a *fakeAlertas) AlertarDesvio(_ context.Context, sesionCajaID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.ids = append(a.ids, sesionCajaID)
}

func (a *fakeAlertas) sesiones() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.ids...)
}

type fakeAutorizador struct {
	permisos map[uuid.UUID]map[string]bool
	pins     map[uuid.UUID]string
	pinCalls int
}

func newFakeAutorizador() *fakeAutorizador {
	return &fakeAutorizador{
		permisos: make(map[uuid.UUID]map[string]bool),
		pins:     make(map[uuid.UUID]string),
	}
}

func (a *fakeAutorizador) conceder(id uuid.UUID, permisos ...string) {
	if a.permisos[id] == nil {
		a.permisos[id] = make(map[string]bool)
	}
	for _, p := range permisos {
		a.permisos[id][p] = true
	}
}

func (a *fakeAutorizador) TienePermiso(_ context.Context, id uuid.UUID, permiso string) (bool, error) {
	perms, ok := a.permisos[id]
	if !ok {
		return false, apierror.NotFound("usuario no encontrado")
	}
	return perms[permiso], nil
}

func (a *fakeAutorizador) VerificarPIN(_ context.Context, id uuid.UUID, pin string) (bool, error) {
	a.pinCalls++
	want, ok := a.pins[id]
	return ok && want == pin, nil
}
