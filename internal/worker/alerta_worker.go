package worker

// alerta_worker.go
// Emails the drawer close report (PDF attached) when a session closes with a
// critical variance. Alerts are single-shot: a failed send goes to the DLQ.

import (
	"context"
	"encoding/json"
	"fmt"

	"clubpos/internal/dto"
	"clubpos/internal/infra"

	"github.com/rs/zerolog/log"
)

// AlertaDesvioPayload is the job body sent to QueueAlertas.
type AlertaDesvioPayload struct {
	SesionCajaID  string   `json:"sesion_caja_id"`
	Destinatarios []string `json:"destinatarios"`
}

// Enviador sends an email. *infra.Mailer implements it.
type Enviador interface {
	Enviar(to []string, subject, body string, adjuntos ...infra.Adjunto) error
}

// FuenteReporte loads a drawer report. service.CajaService implements it.
type FuenteReporte interface {
	ObtenerReporte(ctx context.Context, id string) (*dto.ReporteCajaResponse, error)
}

// ColaAlertas is the queue side of the alert flow. *Dispatcher implements it.
type ColaAlertas interface {
	EnqueueAlertaDesvio(ctx context.Context, payload AlertaDesvioPayload) error
	DeadLetter(ctx context.Context, queue, jobType string, payload any, reason string, attempts int)
}

// ── Alertador ────────────────────────────────────────────────────────────────

// Alertador queues a variance alert from the request path. It never fails the
// close: the session is already committed when it runs.
type Alertador struct {
	cola          ColaAlertas
	destinatarios []string
}

func NewAlertador(cola ColaAlertas, destinatarios []string) *Alertador {
	return &Alertador{cola: cola, destinatarios: destinatarios}
}

func (a *Alertador) AlertarDesvio(ctx context.Context, sesionCajaID string) {
	if len(a.destinatarios) == 0 {
		log.Debug().Str("sesion_caja_id", sesionCajaID).Msg("alerta: no recipients configured, skipped")
		return
	}
	p := AlertaDesvioPayload{SesionCajaID: sesionCajaID, Destinatarios: a.destinatarios}
	if err := a.cola.EnqueueAlertaDesvio(ctx, p); err != nil {
		log.Error().Err(err).Str("sesion_caja_id", sesionCajaID).Msg("alerta: enqueue failed")
	}
}

// ── AlertaWorker ─────────────────────────────────────────────────────────────

// AlertaWorker processes jobs from QueueAlertas.
type AlertaWorker struct {
	enviador Enviador
	fuente   FuenteReporte
	cola     ColaAlertas
	render   func(*dto.ReporteCajaResponse) ([]byte, error)
}

func NewAlertaWorker(enviador Enviador, fuente FuenteReporte, cola ColaAlertas) *AlertaWorker {
	return &AlertaWorker{
		enviador: enviador,
		fuente:   fuente,
		cola:     cola,
		render:   infra.GenerarReporteCajaPDF,
	}
}

// Handle is the JobHandler for QueueAlertas.
func (w *AlertaWorker) Handle(ctx context.Context, job Job) error {
	var p AlertaDesvioPayload
	if err := json.Unmarshal(job.Payload, &p); err != nil {
		return fmt.Errorf("alerta: invalid payload: %w", err)
	}
	if p.SesionCajaID == "" || len(p.Destinatarios) == 0 {
		log.Warn().Msg("alerta: empty sesion_caja_id or recipients, skipping")
		return nil
	}

	if err := w.enviar(ctx, p); err != nil {
		w.cola.DeadLetter(ctx, QueueAlertas, JobAlertaDesvio, p, err.Error(), 1)
		return nil
	}
	log.Info().Str("sesion_caja_id", p.SesionCajaID).Strs("to", p.Destinatarios).Msg("alerta: variance report sent")
	return nil
}

func (w *AlertaWorker) enviar(ctx context.Context, p AlertaDesvioPayload) error {
	rep, err := w.fuente.ObtenerReporte(ctx, p.SesionCajaID)
	if err != nil {
		return fmt.Errorf("reporte: %w", err)
	}
	pdf, err := w.render(rep)
	if err != nil {
		return err
	}

	s := rep.Sesion
	subject := fmt.Sprintf("Desvío crítico en caja %s", s.ID)
	body := fmt.Sprintf("La sesión %s cerró con un desvío fuera de rango.\nEsperado: $%s\n",
		s.ID, rep.EsperadoCalc.StringFixed(2))
	if s.MontoCierre != nil {
		body += fmt.Sprintf("Contado: $%s\n", s.MontoCierre.StringFixed(2))
	}
	if s.Desvio != nil {
		body += fmt.Sprintf("Desvío: $%s (%s%%)\n", s.Desvio.Monto.StringFixed(2), s.Desvio.Porcentaje.StringFixed(2))
	}

	return w.enviador.Enviar(p.Destinatarios, subject, body, infra.Adjunto{
		Nombre: "cierre_" + s.ID + ".pdf",
		Tipo:   "application/pdf",
		Data:   pdf,
	})
}
