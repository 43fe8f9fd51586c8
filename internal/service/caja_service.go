package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"clubpos/internal/apierror"
	"clubpos/internal/dto"
	"clubpos/internal/ids"
	"clubpos/internal/model"
	"clubpos/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type CajaService interface {
	Abrir(ctx context.Context, usuarioID uuid.UUID, req dto.AbrirCajaRequest) (*dto.SesionCajaResponse, error)
	Cerrar(ctx context.Context, usuarioID uuid.UUID, req dto.CerrarCajaRequest) (*dto.SesionCajaResponse, error)
	RegistrarMovimiento(ctx context.Context, req dto.MovimientoManualRequest) (*dto.MovimientoCajaResponse, error)
	// CalcularTotalSistema is the signed sum of a session's movements.
	CalcularTotalSistema(ctx context.Context, sesionID string) (decimal.Decimal, error)

	// GetActiva returns nil, nil when no session is open.
	GetActiva(ctx context.Context) (*dto.SesionCajaResponse, error)
	ObtenerSesion(ctx context.Context, id string) (*dto.SesionCajaResponse, error)
	Historial(ctx context.Context, filtro dto.HistorialCajaFilter) (*dto.HistorialCajaResponse, error)
	ObtenerReporte(ctx context.Context, id string) (*dto.ReporteCajaResponse, error)
}

// CajaConfig carries the variance threshold: a close whose |diferencia|
// exceeds max(DesvioMinimo, DesvioPorcentaje% of the expected total) needs
// a manager override.
type CajaConfig struct {
	DesvioMinimo     decimal.Decimal
	DesvioPorcentaje decimal.Decimal
	MesasTimeout     time.Duration
}

type cajaService struct {
	repo    repository.CajaRepository
	auth    Autorizador
	mesas   RegistroMesas
	alertas AlertasDesvio
	cfg     CajaConfig
}

// NewCajaService builds the drawer service. alertas may be nil.
func NewCajaService(repo repository.CajaRepository, auth Autorizador, mesas RegistroMesas, alertas AlertasDesvio, cfg CajaConfig) CajaService {
	if cfg.MesasTimeout <= 0 {
		cfg.MesasTimeout = 3 * time.Second
	}
	return &cajaService{repo: repo, auth: auth, mesas: mesas, alertas: alertas, cfg: cfg}
}

var hundred = decimal.NewFromInt(100)

// ── Abrir ─────────────────────────────────────────────────────────────────────
// At most one open session system-wide. The read inside the transaction gives
// a friendly error; the partial unique index decides concurrent races.

func (s *cajaService) Abrir(ctx context.Context, usuarioID uuid.UUID, req dto.AbrirCajaRequest) (*dto.SesionCajaResponse, error) {
	if err := s.exigirPermiso(ctx, usuarioID, model.PermisoAbrirCaja, "no tiene permiso para abrir la caja"); err != nil {
		return nil, err
	}
	if req.MontoApertura.IsNegative() {
		return nil, apierror.Validation("el monto de apertura no puede ser negativo")
	}

	id, err := ids.Generate(ids.PrefixCaja)
	if err != nil {
		return nil, err
	}
	sesion := &model.SesionCaja{
		ID:            id,
		AbiertaPor:    usuarioID,
		OpenedAt:      time.Now(),
		MontoApertura: req.MontoApertura,
		Estado:        model.CajaAbierta,
		Notas:         req.Notas,
	}

	err = runTx(ctx, s.repo.DB(), func(tx *gorm.DB) error {
		existing, err := s.repo.FindSesionAbiertaTx(ctx, tx)
		if err != nil {
			return err
		}
		if existing != nil {
			return repository.ErrSesionAbiertaDuplicada
		}
		return s.repo.CreateSesionTx(ctx, tx, sesion)
	})
	if errors.Is(err, repository.ErrSesionAbiertaDuplicada) {
		return nil, apierror.Conflict("ya existe una sesión de caja abierta")
	}
	if err != nil {
		return nil, err
	}

	log.Info().Str("sesion_caja_id", sesion.ID).Str("usuario_id", usuarioID.String()).
		Str("monto_apertura", sesion.MontoApertura.String()).Msg("caja abierta")
	return sesionToResponse(sesion), nil
}

// ── Cerrar ────────────────────────────────────────────────────────────────────
//   1. Validate the counted amount and the close permission
//   2. Refuse while tables are open (skipped when the mesas service is down)
//   3. BEGIN TX: lock session, sum movements, diff against the count
//   4. Variance over threshold needs an override
//   5. Persist the closing columns; the session never reopens

func (s *cajaService) Cerrar(ctx context.Context, usuarioID uuid.UUID, req dto.CerrarCajaRequest) (*dto.SesionCajaResponse, error) {
	if req.MontoCierre.IsNegative() {
		return nil, apierror.Validation("el monto de cierre no puede ser negativo")
	}
	if err := s.exigirPermiso(ctx, usuarioID, model.PermisoCerrarCaja, "no tiene permiso para cerrar la caja"); err != nil {
		return nil, err
	}
	if err := s.verificarMesasCerradas(ctx); err != nil {
		return nil, err
	}

	sesionID := req.SesionCajaID
	if sesionID != "" && !ids.IsValidFor(sesionID, ids.PrefixCaja) {
		return nil, apierror.Validation("id de sesión inválido")
	}
	if sesionID == "" {
		abierta, err := s.repo.FindSesionAbierta(ctx)
		if err != nil {
			return nil, err
		}
		if abierta == nil {
			return nil, apierror.NotFound("no hay sesión de caja abierta")
		}
		sesionID = abierta.ID
	}

	var (
		sesion     *model.SesionCaja
		autorizado bool
	)
	err := runTx(ctx, s.repo.DB(), func(tx *gorm.DB) error {
		var err error
		sesion, err = s.repo.LockSesionTx(ctx, tx, sesionID)
		if err != nil {
			return err
		}
		if sesion == nil {
			return apierror.NotFound("sesión de caja no encontrada")
		}
		if sesion.Estado != model.CajaAbierta {
			return apierror.Conflict("la sesión de caja ya está cerrada")
		}

		sums, err := s.repo.SumMovimientosPorTipoTx(ctx, tx, sesion.ID)
		if err != nil {
			return err
		}
		esperado := sesion.MontoApertura.Add(model.TotalSistema(sums))
		diferencia := req.MontoCierre.Sub(esperado)

		// The override is only consulted for a variance over the threshold.
		if diferencia.Abs().GreaterThan(s.umbralDesvio(esperado)) {
			if autorizado, err = s.puedeAprobarDesvio(ctx, usuarioID, req.Override); err != nil {
				return err
			}
			if !autorizado {
				log.Warn().Str("sesion_caja_id", sesion.ID).Str("esperado", esperado.String()).
					Str("diferencia", diferencia.String()).Msg("caja close rejected, variance needs override")
				return apierror.Forbidden("el desvío requiere autorización de un supervisor")
			}
		}

		var pct decimal.Decimal
		if !esperado.IsZero() {
			pct = diferencia.Div(esperado).Mul(hundred).Round(2)
		}
		clasificacion := clasificarDesvio(pct)
		now := time.Now()
		montoCierre := req.MontoCierre

		sesion.Estado = model.CajaCerrada
		sesion.CerradaPor = &usuarioID
		sesion.ClosedAt = &now
		sesion.MontoCierre = &montoCierre
		sesion.MontoEsperado = &esperado
		sesion.Diferencia = &diferencia
		sesion.DiferenciaPct = &pct
		sesion.ClasificacionDesvio = &clasificacion
		if req.Notas != nil {
			sesion.Notas = req.Notas
		}
		return s.repo.CerrarSesionTx(ctx, tx, sesion)
	})
	if errors.Is(err, repository.ErrSesionNoAbierta) {
		return nil, apierror.Conflict("la sesión de caja ya está cerrada")
	}
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("sesion_caja_id", sesion.ID).
		Str("esperado", sesion.MontoEsperado.String()).
		Str("diferencia", sesion.Diferencia.String()).
		Str("clasificacion", *sesion.ClasificacionDesvio).
		Bool("override", autorizado).
		Msg("caja cerrada")
	if *sesion.ClasificacionDesvio == desvioCritico && s.alertas != nil {
		s.alertas.AlertarDesvio(context.WithoutCancel(ctx), sesion.ID)
	}
	return sesionToResponse(sesion), nil
}

// verificarMesasCerradas is fail-open: when the mesas service cannot answer
// the guard is skipped with a warning.
func (s *cajaService) verificarMesasCerradas(ctx context.Context) error {
	if s.mesas == nil {
		return nil
	}
	cctx, cancel := context.WithTimeout(ctx, s.cfg.MesasTimeout)
	defer cancel()

	n, err := s.mesas.ContarSesionesActivas(cctx)
	if err != nil {
		log.Warn().Err(err).Msg("mesas service unavailable, open-tables guard skipped on caja close")
		return nil
	}
	if n > 0 {
		return apierror.Conflict(fmt.Sprintf("hay %d mesas abiertas: no se puede cerrar la caja", n))
	}
	return nil
}

// puedeAprobarDesvio reports whether a large variance may be accepted: the
// closer holds the override permission, or a supervisor present at close
// authorizes it with their PIN.
func (s *cajaService) puedeAprobarDesvio(ctx context.Context, usuarioID uuid.UUID, o *dto.OverrideSupervisor) (bool, error) {
	ok, err := s.auth.TienePermiso(ctx, usuarioID, model.PermisoAprobarDesvio)
	if err != nil {
		return false, err
	}
	if ok || o == nil {
		return ok, nil
	}

	supID, err := uuid.Parse(o.SupervisorID)
	if err != nil {
		return false, apierror.Validation("supervisor_id inválido")
	}
	ok, err = s.auth.TienePermiso(ctx, supID, model.PermisoAprobarDesvio)
	if apierror.KindOf(err) == apierror.KindNotFound {
		return false, nil
	}
	if err != nil || !ok {
		return false, err
	}
	return s.auth.VerificarPIN(ctx, supID, o.PIN)
}

func (s *cajaService) umbralDesvio(esperado decimal.Decimal) decimal.Decimal {
	relativo := esperado.Abs().Mul(s.cfg.DesvioPorcentaje).Div(hundred)
	return decimal.Max(s.cfg.DesvioMinimo, relativo)
}

func (s *cajaService) exigirPermiso(ctx context.Context, usuarioID uuid.UUID, permiso, msg string) error {
	ok, err := s.auth.TienePermiso(ctx, usuarioID, permiso)
	if err != nil {
		return err
	}
	if !ok {
		return apierror.Forbidden(msg)
	}
	return nil
}

// ── RegistrarMovimiento ───────────────────────────────────────────────────────
// Manual deposit or withdrawal. Movements are immutable; there is no update.

func (s *cajaService) RegistrarMovimiento(ctx context.Context, req dto.MovimientoManualRequest) (*dto.MovimientoCajaResponse, error) {
	if req.Tipo != model.MovDeposito && req.Tipo != model.MovRetiro {
		return nil, apierror.Validation("tipo de movimiento manual inválido")
	}
	if !req.Monto.IsPositive() {
		return nil, apierror.Validation("el monto debe ser mayor a cero")
	}

	mov := &model.MovimientoCaja{
		ID:                uuid.New(),
		Tipo:              req.Tipo,
		Monto:             req.Monto,
		ReferenciaExterna: req.ReferenciaExterna,
		Descripcion:       req.Descripcion,
		OcurridoEn:        time.Now(),
	}
	if mov.ReferenciaExterna == "" {
		mov.ReferenciaExterna = mov.ID.String()
	}
	if req.MetodoPago != "" {
		metodo := req.MetodoPago
		mov.MetodoPago = &metodo
	}

	err := runTx(ctx, s.repo.DB(), func(tx *gorm.DB) error {
		sesion, err := s.repo.FindSesionAbiertaTx(ctx, tx)
		if err != nil {
			return err
		}
		if sesion == nil {
			return apierror.Conflict("no hay sesión de caja abierta")
		}
		mov.SesionCajaID = sesion.ID
		return s.repo.CreateMovimientoTx(ctx, tx, mov)
	})
	if err != nil {
		return nil, err
	}

	log.Info().Str("sesion_caja_id", mov.SesionCajaID).Str("tipo", mov.Tipo).Str("monto", mov.Monto.String()).Msg("movimiento manual registrado")
	resp := movimientoToResponse(*mov)
	return &resp, nil
}

func (s *cajaService) CalcularTotalSistema(ctx context.Context, sesionID string) (decimal.Decimal, error) {
	sums, err := s.repo.SumMovimientosPorTipoTx(ctx, s.repo.DB(), sesionID)
	if err != nil {
		return decimal.Zero, err
	}
	return model.TotalSistema(sums), nil
}

// ── Reads ─────────────────────────────────────────────────────────────────────

func (s *cajaService) GetActiva(ctx context.Context) (*dto.SesionCajaResponse, error) {
	sesion, err := s.repo.FindSesionAbierta(ctx)
	if err != nil || sesion == nil {
		return nil, err
	}
	return sesionToResponse(sesion), nil
}

func (s *cajaService) ObtenerSesion(ctx context.Context, id string) (*dto.SesionCajaResponse, error) {
	sesion, err := s.buscarSesion(ctx, id)
	if err != nil {
		return nil, err
	}
	return sesionToResponse(sesion), nil
}

func (s *cajaService) Historial(ctx context.Context, filtro dto.HistorialCajaFilter) (*dto.HistorialCajaResponse, error) {
	if filtro.Page < 1 {
		filtro.Page = 1
	}
	if filtro.Limit < 1 || filtro.Limit > 100 {
		filtro.Limit = 20
	}
	f := repository.CajaFiltro{Desde: filtro.Desde, Page: filtro.Page, Limit: filtro.Limit}
	if filtro.Hasta != nil {
		// hasta is an inclusive calendar day
		h := filtro.Hasta.Add(24 * time.Hour)
		f.Hasta = &h
	}
	if f.Desde != nil && f.Hasta != nil && !f.Desde.Before(*f.Hasta) {
		return nil, apierror.Validation("el rango de fechas es inválido")
	}

	sesiones, total, err := s.repo.ListSesiones(ctx, f)
	if err != nil {
		return nil, err
	}
	out := &dto.HistorialCajaResponse{
		Data:  make([]dto.SesionCajaResponse, 0, len(sesiones)),
		Total: total,
		Page:  filtro.Page,
		Limit: filtro.Limit,
	}
	for i := range sesiones {
		out.Data = append(out.Data, *sesionToResponse(&sesiones[i]))
	}
	return out, nil
}

// ObtenerReporte recomputes per-type subtotals from the movement rows, apart
// from the SQL aggregate used at close, and reports any drift between the two.
func (s *cajaService) ObtenerReporte(ctx context.Context, id string) (*dto.ReporteCajaResponse, error) {
	sesion, err := s.buscarSesion(ctx, id)
	if err != nil {
		return nil, err
	}
	movs, err := s.repo.ListMovimientos(ctx, sesion.ID)
	if err != nil {
		return nil, err
	}

	reporte := &dto.ReporteCajaResponse{
		Sesion:          *sesionToResponse(sesion),
		SubtotalPorTipo: make(map[string]decimal.Decimal, len(model.TiposMovimiento)),
		CantidadPorTipo: make(map[string]int, len(model.TiposMovimiento)),
		TotalSistema:    decimal.Zero,
		Movimientos:     make([]dto.MovimientoCajaResponse, 0, len(movs)),
	}
	for _, tipo := range model.TiposMovimiento {
		reporte.SubtotalPorTipo[tipo] = decimal.Zero
	}
	for _, m := range movs {
		reporte.SubtotalPorTipo[m.Tipo] = reporte.SubtotalPorTipo[m.Tipo].Add(m.Monto)
		reporte.CantidadPorTipo[m.Tipo]++
		reporte.TotalSistema = reporte.TotalSistema.Add(m.MontoFirmado())
		reporte.Movimientos = append(reporte.Movimientos, movimientoToResponse(m))
	}
	reporte.EsperadoCalc = sesion.MontoApertura.Add(reporte.TotalSistema)

	if sesion.MontoEsperado != nil {
		deriva := reporte.EsperadoCalc.Sub(*sesion.MontoEsperado)
		reporte.Deriva = &deriva
		if !deriva.IsZero() {
			log.Warn().Str("sesion_caja_id", sesion.ID).Str("deriva", deriva.String()).Msg("caja report drift against stored expected total")
		}
	}
	return reporte, nil
}

func (s *cajaService) buscarSesion(ctx context.Context, id string) (*model.SesionCaja, error) {
	if !ids.IsValidFor(id, ids.PrefixCaja) {
		return nil, apierror.Validation("id de sesión inválido")
	}
	sesion, err := s.repo.FindSesionByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if sesion == nil {
		return nil, apierror.NotFound("sesión de caja no encontrada")
	}
	return sesion, nil
}

// ── Helpers ───────────────────────────────────────────────────────────────────

const (
	desvioNormal      = "normal"
	desvioAdvertencia = "advertencia"
	desvioCritico     = "critico"
)

// clasificarDesvio: normal |desvio| <= 1%, advertencia <= 5%, critico > 5%
func clasificarDesvio(pct decimal.Decimal) string {
	abs := pct.Abs()
	switch {
	case abs.LessThanOrEqual(decimal.NewFromInt(1)):
		return desvioNormal
	case abs.LessThanOrEqual(decimal.NewFromInt(5)):
		return desvioAdvertencia
	default:
		return desvioCritico
	}
}

func sesionToResponse(s *model.SesionCaja) *dto.SesionCajaResponse {
	resp := &dto.SesionCajaResponse{
		ID:            s.ID,
		AbiertaPor:    s.AbiertaPor.String(),
		OpenedAt:      s.OpenedAt,
		ClosedAt:      s.ClosedAt,
		MontoApertura: s.MontoApertura,
		MontoCierre:   s.MontoCierre,
		MontoEsperado: s.MontoEsperado,
		Estado:        s.Estado,
		Notas:         s.Notas,
	}
	if s.CerradaPor != nil {
		id := s.CerradaPor.String()
		resp.CerradaPor = &id
	}
	if s.Diferencia != nil && s.DiferenciaPct != nil && s.ClasificacionDesvio != nil {
		resp.Desvio = &dto.DesvioResponse{
			Monto:         *s.Diferencia,
			Porcentaje:    *s.DiferenciaPct,
			Clasificacion: *s.ClasificacionDesvio,
		}
	}
	return resp
}

func movimientoToResponse(m model.MovimientoCaja) dto.MovimientoCajaResponse {
	return dto.MovimientoCajaResponse{
		ID:                m.ID.String(),
		Tipo:              m.Tipo,
		MetodoPago:        m.MetodoPago,
		Monto:             m.Monto,
		ReferenciaExterna: m.ReferenciaExterna,
		Descripcion:       m.Descripcion,
		OcurridoEn:        m.OcurridoEn,
	}
}
