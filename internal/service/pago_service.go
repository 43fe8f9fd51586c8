package service

import (
	"context"
	"fmt"
	"time"

	"clubpos/internal/apierror"
	"clubpos/internal/dto"
	"clubpos/internal/ids"
	"clubpos/internal/infra"
	"clubpos/internal/model"
	"clubpos/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type PagoService interface {
	RegistrarPago(ctx context.Context, usuarioID *uuid.UUID, req dto.RegistrarPagoRequest) (*dto.LedgerResponse, error)
	AplicarDescuento(ctx context.Context, cuentaRef string, req dto.DescuentoRequest) (*dto.LedgerResponse, error)
	RegistrarReembolso(ctx context.Context, cuentaRef string, req dto.ReembolsoRequest) (*dto.LedgerResponse, error)
	CerrarCuenta(ctx context.Context, cuentaRef string, req dto.CerrarCuentaRequest) (*dto.LedgerResponse, error)

	ObtenerLedger(ctx context.Context, cuentaRef string) (*dto.LedgerResponse, error)
	ListarPagos(ctx context.Context, cuentaRef string) ([]dto.PagoResponse, error)
	ListarTodos(ctx context.Context, limit int) ([]dto.PagoResponse, error)
	ListarLogs(ctx context.Context, cuentaRef string, page, pageSize int) (*dto.LogPagoListResponse, error)
}

// PagoConfig carries the tunables of the payment workflow.
type PagoConfig struct {
	MesasTimeout  time.Duration
	MonedaDefault string
}

type pagoService struct {
	pagos       repository.PagoRepository
	ledger      repository.LedgerRepository
	logs        repository.LogPagoRepository
	caja        repository.CajaRepository
	mesas       RegistroMesas
	notificador NotificadorLiquidacion
	cfg         PagoConfig
}

func NewPagoService(
	pagos repository.PagoRepository,
	ledger repository.LedgerRepository,
	logs repository.LogPagoRepository,
	caja repository.CajaRepository,
	mesas RegistroMesas,
	notificador NotificadorLiquidacion,
	cfg PagoConfig,
) PagoService {
	if cfg.MesasTimeout <= 0 {
		cfg.MesasTimeout = 3 * time.Second
	}
	if cfg.MonedaDefault == "" {
		cfg.MonedaDefault = "ARS"
	}
	return &pagoService{
		pagos:       pagos,
		ledger:      ledger,
		logs:        logs,
		caja:        caja,
		mesas:       mesas,
		notificador: notificador,
		cfg:         cfg,
	}
}

// ── RegistrarPago ─────────────────────────────────────────────────────────────
//   1. Validate lines (non-empty, no negative amounts) and the bill id
//   2. Ask the mesas service whether the bill is in an active session (fail-closed)
//   3. BEGIN TX: snapshot ledger, insert legs, upsert ledger, drawer movements, audit entry
//   4. COMMIT
//   5. Settlement notification when the bill became paid (fail-open)

func (s *pagoService) RegistrarPago(ctx context.Context, usuarioID *uuid.UUID, req dto.RegistrarPagoRequest) (*dto.LedgerResponse, error) {
	if len(req.Lineas) == 0 {
		return nil, apierror.Validation("el pago debe tener al menos una línea")
	}
	for i, l := range req.Lineas {
		if l.Monto.IsNegative() || l.Descuento.IsNegative() || l.Propina.IsNegative() {
			return nil, apierror.Validation(fmt.Sprintf("línea %d: los montos no pueden ser negativos", i+1))
		}
	}
	if req.TotalDue != nil && req.TotalDue.IsNegative() {
		return nil, apierror.Validation("total_due no puede ser negativo")
	}

	mesa, err := s.verificarCuenta(ctx, req.CuentaRef)
	if err != nil {
		return nil, err
	}
	sesionRef, err := resolverSesion(req.SesionRef, mesa)
	if err != nil {
		return nil, err
	}
	totalDue := req.TotalDue
	if totalDue == nil {
		totalDue = mesa.Total
	}

	now := time.Now()
	lineas := make([]model.Pago, len(req.Lineas))
	var deltas model.DeltasLedger
	for i, l := range req.Lineas {
		moneda := l.Moneda
		if moneda == "" {
			moneda = s.cfg.MonedaDefault
		}
		var meta datatypes.JSON
		if len(l.Metadata) > 0 {
			meta = datatypes.JSON(l.Metadata)
		}
		lineas[i] = model.Pago{
			ID:                uuid.New(),
			Monto:             l.Monto,
			Moneda:            moneda,
			Metodo:            l.Metodo,
			Descuento:         l.Descuento,
			MotivoDescuento:   l.MotivoDescuento,
			Propina:           l.Propina,
			ReferenciaExterna: l.ReferenciaExterna,
			Metadata:          meta,
			CreadoPor:         usuarioID,
			CreatedAt:         now,
		}
		deltas.Pagado = deltas.Pagado.Add(l.Monto)
		deltas.Descuento = deltas.Descuento.Add(l.Descuento)
		deltas.Propina = deltas.Propina.Add(l.Propina)
	}

	var result *model.LedgerCuenta
	err = runTx(ctx, s.ledger.DB(), func(tx *gorm.DB) error {
		if err := s.pagos.InsertTx(ctx, tx, sesionRef, req.CuentaRef, req.ServidorID, lineas); err != nil {
			return fmt.Errorf("insertar pagos: %w", err)
		}
		anterior, nuevo, err := s.ledger.Upsert(ctx, tx, sesionRef, req.CuentaRef, totalDue, deltas, nil)
		result = nuevo
		if err != nil {
			return fmt.Errorf("actualizar ledger: %w", err)
		}
		if err := s.movimientosDePago(ctx, tx, req.CuentaRef, lineas); err != nil {
			return err
		}
		return s.logs.AppendTx(ctx, tx, &model.LogPago{
			ID:            uuid.New(),
			CuentaRef:     req.CuentaRef,
			SesionRef:     sesionRef,
			Accion:        model.AccionPago,
			ValorAnterior: snapshotLedger(anterior),
			ValorNuevo: snapshot(map[string]any{
				"lineas": pagosToResponse(lineas),
				"ledger": ledgerToResponse(result),
			}),
			ServidorID: req.ServidorID,
			CreatedAt:  now,
		})
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("cuenta_ref", req.CuentaRef).
		Int("lineas", len(lineas)).
		Str("monto", deltas.Pagado.String()).
		Str("estado", result.Estado).
		Msg("pago registrado")

	s.notificarSiPagada(ctx, result)
	return ledgerToResponse(result), nil
}

// movimientosDePago appends one venta movement per paid leg and one propina
// movement per tipped leg to the open drawer session. The session row is
// share-locked so it cannot close mid-transaction.
func (s *pagoService) movimientosDePago(ctx context.Context, tx *gorm.DB, cuentaRef string, lineas []model.Pago) error {
	sesion, err := s.caja.FindSesionAbiertaTx(ctx, tx)
	if err != nil {
		return err
	}
	if sesion == nil {
		log.Warn().Str("cuenta_ref", cuentaRef).Msg("no open caja session, drawer movements skipped")
		return nil
	}
	for _, p := range lineas {
		metodo := p.Metodo
		if p.Monto.IsPositive() {
			if err := s.caja.CreateMovimientoTx(ctx, tx, &model.MovimientoCaja{
				ID:                uuid.New(),
				SesionCajaID:      sesion.ID,
				Tipo:              model.MovVenta,
				MetodoPago:        &metodo,
				Monto:             p.Monto,
				ReferenciaExterna: p.ID.String(),
				Descripcion:       "pago cuenta " + cuentaRef,
				OcurridoEn:        p.CreatedAt,
			}); err != nil {
				return fmt.Errorf("movimiento venta: %w", err)
			}
		}
		if p.Propina.IsPositive() {
			if err := s.caja.CreateMovimientoTx(ctx, tx, &model.MovimientoCaja{
				ID:                uuid.New(),
				SesionCajaID:      sesion.ID,
				Tipo:              model.MovPropina,
				MetodoPago:        &metodo,
				Monto:             p.Propina,
				ReferenciaExterna: p.ID.String(),
				Descripcion:       "propina cuenta " + cuentaRef,
				OcurridoEn:        p.CreatedAt,
			}); err != nil {
				return fmt.Errorf("movimiento propina: %w", err)
			}
		}
	}
	return nil
}

// ── AplicarDescuento ──────────────────────────────────────────────────────────

func (s *pagoService) AplicarDescuento(ctx context.Context, cuentaRef string, req dto.DescuentoRequest) (*dto.LedgerResponse, error) {
	if !req.Monto.IsPositive() {
		return nil, apierror.Validation("el descuento debe ser mayor a cero")
	}
	mesa, err := s.verificarCuenta(ctx, cuentaRef)
	if err != nil {
		return nil, err
	}
	sesionRef, err := resolverSesion(req.SesionRef, mesa)
	if err != nil {
		return nil, err
	}

	var result *model.LedgerCuenta
	err = runTx(ctx, s.ledger.DB(), func(tx *gorm.DB) error {
		anterior, nuevo, err := s.ledger.Upsert(ctx, tx, sesionRef, cuentaRef, mesa.Total, model.DeltasLedger{Descuento: req.Monto}, nil)
		result = nuevo
		if err != nil {
			return fmt.Errorf("actualizar ledger: %w", err)
		}
		return s.logs.AppendTx(ctx, tx, &model.LogPago{
			ID:            uuid.New(),
			CuentaRef:     cuentaRef,
			SesionRef:     sesionRef,
			Accion:        model.AccionDescuento,
			ValorAnterior: snapshotLedger(anterior),
			ValorNuevo: snapshot(map[string]any{
				"monto":  req.Monto,
				"motivo": req.Motivo,
				"ledger": ledgerToResponse(result),
			}),
			ServidorID: req.ServidorID,
			CreatedAt:  time.Now(),
		})
	})
	if err != nil {
		return nil, err
	}

	log.Info().Str("cuenta_ref", cuentaRef).Str("monto", req.Monto.String()).Str("estado", result.Estado).Msg("descuento aplicado")
	s.notificarSiPagada(ctx, result)
	return ledgerToResponse(result), nil
}

// ── RegistrarReembolso ────────────────────────────────────────────────────────
// A refund is a negative paid delta on the ledger plus a reembolso drawer
// movement. No Pago row is written; payment legs are never negative.

func (s *pagoService) RegistrarReembolso(ctx context.Context, cuentaRef string, req dto.ReembolsoRequest) (*dto.LedgerResponse, error) {
	if !req.Monto.IsPositive() {
		return nil, apierror.Validation("el reembolso debe ser mayor a cero")
	}
	mesa, err := s.verificarCuenta(ctx, cuentaRef)
	if err != nil {
		return nil, err
	}
	sesionRef, err := resolverSesion(req.SesionRef, mesa)
	if err != nil {
		return nil, err
	}

	reembolsoID := uuid.New()
	now := time.Now()
	var result *model.LedgerCuenta
	err = runTx(ctx, s.ledger.DB(), func(tx *gorm.DB) error {
		// The cap is checked against the locked row so concurrent refunds
		// cannot overdraw the bill.
		anterior, nuevo, err := s.ledger.Upsert(ctx, tx, sesionRef, cuentaRef, nil, model.DeltasLedger{Pagado: req.Monto.Neg()},
			func(actual *model.LedgerCuenta) error {
				if actual == nil {
					return apierror.NotFound("la cuenta no tiene pagos registrados")
				}
				if req.Monto.GreaterThan(actual.TotalPagado) {
					return apierror.Conflict("el reembolso supera el total pagado")
				}
				return nil
			})
		result = nuevo
		if err != nil {
			return fmt.Errorf("actualizar ledger: %w", err)
		}

		sesion, err := s.caja.FindSesionAbiertaTx(ctx, tx)
		if err != nil {
			return err
		}
		if sesion == nil {
			log.Warn().Str("cuenta_ref", cuentaRef).Msg("no open caja session, refund movement skipped")
		} else {
			metodo := req.Metodo
			if err := s.caja.CreateMovimientoTx(ctx, tx, &model.MovimientoCaja{
				ID:                uuid.New(),
				SesionCajaID:      sesion.ID,
				Tipo:              model.MovReembolso,
				MetodoPago:        &metodo,
				Monto:             req.Monto,
				ReferenciaExterna: reembolsoID.String(),
				Descripcion:       "reembolso cuenta " + cuentaRef,
				OcurridoEn:        now,
			}); err != nil {
				return fmt.Errorf("movimiento reembolso: %w", err)
			}
		}

		return s.logs.AppendTx(ctx, tx, &model.LogPago{
			ID:            uuid.New(),
			CuentaRef:     cuentaRef,
			SesionRef:     sesionRef,
			Accion:        model.AccionReembolso,
			ValorAnterior: snapshotLedger(anterior),
			ValorNuevo: snapshot(map[string]any{
				"reembolso_id": reembolsoID,
				"monto":        req.Monto,
				"metodo":       req.Metodo,
				"motivo":       req.Motivo,
				"ledger":       ledgerToResponse(result),
			}),
			ServidorID: req.ServidorID,
			CreatedAt:  now,
		})
	})
	if err != nil {
		return nil, err
	}

	log.Info().Str("cuenta_ref", cuentaRef).Str("monto", req.Monto.String()).Str("estado", result.Estado).Msg("reembolso registrado")
	return ledgerToResponse(result), nil
}

// ── CerrarCuenta ──────────────────────────────────────────────────────────────
// Closing is a logged fact; the ledger row is left untouched.

func (s *pagoService) CerrarCuenta(ctx context.Context, cuentaRef string, req dto.CerrarCuentaRequest) (*dto.LedgerResponse, error) {
	if !ids.IsValid(cuentaRef) {
		return nil, apierror.Validation("cuenta_ref inválida")
	}

	var ledger *model.LedgerCuenta
	err := runTx(ctx, s.ledger.DB(), func(tx *gorm.DB) error {
		var err error
		ledger, err = s.ledger.FindByCuentaTx(ctx, tx, cuentaRef)
		if err != nil {
			return err
		}
		if ledger == nil {
			return apierror.NotFound("cuenta no encontrada")
		}
		if !ledger.Saldada() {
			return apierror.Conflict("la cuenta no está saldada")
		}
		return s.logs.AppendTx(ctx, tx, &model.LogPago{
			ID:         uuid.New(),
			CuentaRef:  cuentaRef,
			SesionRef:  ledger.SesionRef,
			Accion:     model.AccionCierre,
			ValorNuevo: snapshotLedger(ledger),
			ServidorID: req.ServidorID,
			CreatedAt:  time.Now(),
		})
	})
	if err != nil {
		return nil, err
	}
	log.Info().Str("cuenta_ref", cuentaRef).Msg("cuenta cerrada")
	return ledgerToResponse(ledger), nil
}

// ── Reads ─────────────────────────────────────────────────────────────────────

func (s *pagoService) ObtenerLedger(ctx context.Context, cuentaRef string) (*dto.LedgerResponse, error) {
	if !ids.IsValid(cuentaRef) {
		return nil, apierror.Validation("cuenta_ref inválida")
	}
	l, err := s.ledger.FindByCuenta(ctx, cuentaRef)
	if err != nil {
		return nil, err
	}
	if l == nil {
		return nil, apierror.NotFound("cuenta no encontrada")
	}
	return ledgerToResponse(l), nil
}

func (s *pagoService) ListarPagos(ctx context.Context, cuentaRef string) ([]dto.PagoResponse, error) {
	if !ids.IsValid(cuentaRef) {
		return nil, apierror.Validation("cuenta_ref inválida")
	}
	pagos, err := s.pagos.ListByCuenta(ctx, cuentaRef)
	if err != nil {
		return nil, err
	}
	return pagosToResponse(pagos), nil
}

func (s *pagoService) ListarTodos(ctx context.Context, limit int) ([]dto.PagoResponse, error) {
	if limit < 1 || limit > 500 {
		limit = 100
	}
	pagos, err := s.pagos.ListAll(ctx, limit)
	if err != nil {
		return nil, err
	}
	return pagosToResponse(pagos), nil
}

func (s *pagoService) ListarLogs(ctx context.Context, cuentaRef string, page, pageSize int) (*dto.LogPagoListResponse, error) {
	if !ids.IsValid(cuentaRef) {
		return nil, apierror.Validation("cuenta_ref inválida")
	}
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	entries, total, err := s.logs.ListByCuenta(ctx, cuentaRef, page, pageSize)
	if err != nil {
		return nil, err
	}
	out := &dto.LogPagoListResponse{
		Data:     make([]dto.LogPagoResponse, 0, len(entries)),
		Total:    total,
		Page:     page,
		PageSize: pageSize,
	}
	for _, e := range entries {
		out.Data = append(out.Data, dto.LogPagoResponse{
			ID:            e.ID.String(),
			CuentaRef:     e.CuentaRef,
			SesionRef:     e.SesionRef,
			Accion:        e.Accion,
			ValorAnterior: []byte(e.ValorAnterior),
			ValorNuevo:    []byte(e.ValorNuevo),
			ServidorID:    e.ServidorID,
			CreatedAt:     e.CreatedAt,
		})
	}
	return out, nil
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// verificarCuenta is the fail-closed admission check: an unreachable mesas
// service rejects the operation.
func (s *pagoService) verificarCuenta(ctx context.Context, cuentaRef string) (*infra.SesionMesa, error) {
	if !ids.IsValid(cuentaRef) {
		return nil, apierror.Validation("cuenta_ref inválida")
	}
	cctx, cancel := context.WithTimeout(ctx, s.cfg.MesasTimeout)
	defer cancel()

	mesa, err := s.mesas.CuentaActiva(cctx, cuentaRef)
	if err != nil {
		log.Error().Err(err).Str("cuenta_ref", cuentaRef).Msg("mesas service check failed, payment rejected")
		return nil, apierror.Unavailable("servicio de mesas no disponible", err)
	}
	if mesa == nil {
		return nil, apierror.Conflict("la cuenta no pertenece a una sesión de mesa activa")
	}
	return mesa, nil
}

func (s *pagoService) notificarSiPagada(ctx context.Context, l *model.LedgerCuenta) {
	if l.Estado != model.LedgerPagada || s.notificador == nil {
		return
	}
	s.notificador.Notificar(context.WithoutCancel(ctx), l.CuentaRef)
}

func resolverSesion(sesionRef string, mesa *infra.SesionMesa) (string, error) {
	if sesionRef != "" {
		return sesionRef, nil
	}
	if mesa != nil && mesa.SesionID != "" {
		return mesa.SesionID, nil
	}
	return "", apierror.Validation("sesion_ref requerida")
}

func snapshotLedger(l *model.LedgerCuenta) datatypes.JSON {
	if l == nil {
		return nil
	}
	return snapshot(ledgerToResponse(l))
}

func ledgerToResponse(l *model.LedgerCuenta) *dto.LedgerResponse {
	return &dto.LedgerResponse{
		CuentaRef:      l.CuentaRef,
		SesionRef:      l.SesionRef,
		TotalDue:       l.TotalDue,
		TotalDescuento: l.TotalDescuento,
		TotalPagado:    l.TotalPagado,
		TotalPropina:   l.TotalPropina,
		Estado:         l.Estado,
		UpdatedAt:      l.UpdatedAt,
	}
}

func pagosToResponse(pagos []model.Pago) []dto.PagoResponse {
	out := make([]dto.PagoResponse, 0, len(pagos))
	for _, p := range pagos {
		out = append(out, dto.PagoResponse{
			ID:                p.ID.String(),
			SesionRef:         p.SesionRef,
			CuentaRef:         p.CuentaRef,
			Monto:             p.Monto,
			Moneda:            p.Moneda,
			Metodo:            p.Metodo,
			Descuento:         p.Descuento,
			MotivoDescuento:   p.MotivoDescuento,
			Propina:           p.Propina,
			ReferenciaExterna: p.ReferenciaExterna,
			Metadata:          []byte(p.Metadata),
			ServidorID:        p.ServidorID,
			CreatedAt:         p.CreatedAt,
		})
	}
	return out
}
