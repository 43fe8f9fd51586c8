package worker

// liquidacion_worker.go
// Tells the mesas service that a bill is fully paid. The first attempt is a
// direct call from the request path; failures are queued and retried with
// exponential backoff, then parked in the DLQ.

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// Liquidador settles a bill in the mesas service. *infra.MesasClient implements it.
type Liquidador interface {
	LiquidarCuenta(ctx context.Context, cuentaRef string) error
}

// Cola is the queue side of the settlement flow. *Dispatcher implements it.
type Cola interface {
	EnqueueLiquidacion(ctx context.Context, payload LiquidacionPayload) error
	DeadLetter(ctx context.Context, queue, jobType string, payload any, reason string, attempts int)
}

// LiquidacionPayload is the job body sent to QueueLiquidacion.
type LiquidacionPayload struct {
	CuentaRef   string    `json:"cuenta_ref"`
	Intentos    int       `json:"intentos"`
	NoAntesDe   time.Time `json:"no_antes_de"`
	UltimoError string    `json:"ultimo_error,omitempty"`
}

const (
	backoffBase = 2 * time.Second
	backoffMax  = 2 * time.Minute
)

// Backoff returns the wait before retry number intento (1-based).
func Backoff(intento int) time.Duration {
	if intento < 1 {
		intento = 1
	}
	d := backoffBase << (intento - 1)
	if d <= 0 || d > backoffMax {
		return backoffMax
	}
	return d
}

// ── Notificador ──────────────────────────────────────────────────────────────

// Notificador is the request-path entry point. It never returns an error: the
// payment is already committed when it runs.
type Notificador struct {
	liq     Liquidador
	cola    Cola
	timeout time.Duration
	now     func() time.Time
}

func NewNotificador(liq Liquidador, cola Cola, timeout time.Duration) *Notificador {
	return &Notificador{liq: liq, cola: cola, timeout: timeout, now: time.Now}
}

func (n *Notificador) Notificar(ctx context.Context, cuentaRef string) {
	cctx, cancel := context.WithTimeout(ctx, n.timeout)
	err := n.liq.LiquidarCuenta(cctx, cuentaRef)
	cancel()
	if err == nil {
		log.Info().Str("cuenta_ref", cuentaRef).Msg("liquidacion: bill settled in mesas service")
		return
	}

	log.Warn().Err(err).Str("cuenta_ref", cuentaRef).Msg("liquidacion: settle failed, queued for retry")
	payload := LiquidacionPayload{
		CuentaRef:   cuentaRef,
		NoAntesDe:   n.now().Add(Backoff(1)),
		UltimoError: err.Error(),
	}
	if err := n.cola.EnqueueLiquidacion(ctx, payload); err != nil {
		log.Error().Err(err).Str("cuenta_ref", cuentaRef).Msg("liquidacion: enqueue failed, bill left unsettled in mesas service")
	}
}

// ── LiquidacionWorker ────────────────────────────────────────────────────────

// LiquidacionWorker processes jobs from QueueLiquidacion.
type LiquidacionWorker struct {
	liq         Liquidador
	cola        Cola
	maxIntentos int
	timeout     time.Duration
	now         func() time.Time
	sleep       func(ctx context.Context, d time.Duration) error
}

func NewLiquidacionWorker(liq Liquidador, cola Cola, maxIntentos int, timeout time.Duration) *LiquidacionWorker {
	if maxIntentos < 1 {
		maxIntentos = 1
	}
	return &LiquidacionWorker{
		liq:         liq,
		cola:        cola,
		maxIntentos: maxIntentos,
		timeout:     timeout,
		now:         time.Now,
		sleep:       sleepCtx,
	}
}

// Handle is the JobHandler for QueueLiquidacion.
func (w *LiquidacionWorker) Handle(ctx context.Context, job Job) error {
	var p LiquidacionPayload
	if err := json.Unmarshal(job.Payload, &p); err != nil {
		return fmt.Errorf("liquidacion: invalid payload: %w", err)
	}
	if p.CuentaRef == "" {
		log.Warn().Msg("liquidacion: empty cuenta_ref, skipping")
		return nil
	}

	if wait := p.NoAntesDe.Sub(w.now()); wait > 0 {
		if err := w.sleep(ctx, wait); err != nil {
			// shutting down: put the job back untouched
			if qerr := w.cola.EnqueueLiquidacion(context.WithoutCancel(ctx), p); qerr != nil {
				return fmt.Errorf("liquidacion: requeue on shutdown: %w", qerr)
			}
			return nil
		}
	}

	cctx, cancel := context.WithTimeout(ctx, w.timeout)
	err := w.liq.LiquidarCuenta(cctx, p.CuentaRef)
	cancel()
	if err == nil {
		log.Info().Str("cuenta_ref", p.CuentaRef).Int("intentos", p.Intentos+1).Msg("liquidacion: bill settled on retry")
		return nil
	}

	p.Intentos++
	p.UltimoError = err.Error()
	if p.Intentos >= w.maxIntentos {
		w.cola.DeadLetter(ctx, QueueLiquidacion, JobLiquidacion, p, err.Error(), p.Intentos)
		return nil
	}

	p.NoAntesDe = w.now().Add(Backoff(p.Intentos + 1))
	log.Warn().Err(err).Str("cuenta_ref", p.CuentaRef).Int("intentos", p.Intentos).Time("no_antes_de", p.NoAntesDe).
		Msg("liquidacion: retry failed, requeued")
	return w.cola.EnqueueLiquidacion(ctx, p)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
