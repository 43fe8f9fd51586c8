package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLiquidador struct {
	mu    sync.Mutex
	fails int // number of calls that fail before succeeding; -1 fails forever
	calls []string
}

func (f *fakeLiquidador) LiquidarCuenta(_ context.Context, ref string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, ref)
	if f.fails < 0 || len(f.calls) <= f.fails {
		return errors.New("mesas down")
	}
	return nil
}

type deadLetter struct {
	queue    string
	reason   string
	attempts int
}

type fakeCola struct {
	queued     []LiquidacionPayload
	dead       []deadLetter
	enqueueErr error
}

func (c *fakeCola) EnqueueLiquidacion(_ context.Context, p LiquidacionPayload) error {
	if c.enqueueErr != nil {
		return c.enqueueErr
	}
	c.queued = append(c.queued, p)
	return nil
}

func (c *fakeCola) DeadLetter(_ context.Context, queue, _ string, _ any, reason string, attempts int) {
	c.dead = append(c.dead, deadLetter{queue: queue, reason: reason, attempts: attempts})
}

func (c *fakeCola) pop(t *testing.T) Job {
	t.Helper()
	require.NotEmpty(t, c.queued)
	p := c.queued[0]
	c.queued = c.queued[1:]
	raw, err := json.Marshal(p)
	require.NoError(t, err)
	return Job{Type: JobLiquidacion, Payload: raw}
}

func newTestWorker(liq Liquidador, cola Cola, max int) (*LiquidacionWorker, *[]time.Duration) {
	w := NewLiquidacionWorker(liq, cola, max, time.Second)
	clock := time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)
	w.now = func() time.Time { return clock }
	slept := &[]time.Duration{}
	w.sleep = func(_ context.Context, d time.Duration) error {
		*slept = append(*slept, d)
		clock = clock.Add(d)
		return nil
	}
	return w, slept
}

func TestBackoff(t *testing.T) {
	assert.Equal(t, 2*time.Second, Backoff(0))
	assert.Equal(t, 2*time.Second, Backoff(1))
	assert.Equal(t, 4*time.Second, Backoff(2))
	assert.Equal(t, 32*time.Second, Backoff(5))
	assert.Equal(t, 2*time.Minute, Backoff(10))
	assert.Equal(t, 2*time.Minute, Backoff(100))
}

func TestNotificar_DirectSuccessDoesNotQueue(t *testing.T) {
	liq := &fakeLiquidador{}
	cola := &fakeCola{}
	NewNotificador(liq, cola, time.Second).Notificar(context.Background(), "CTA_1_aaaaaaaa")

	assert.Equal(t, []string{"CTA_1_aaaaaaaa"}, liq.calls)
	assert.Empty(t, cola.queued)
}

func TestNotificar_FailureQueues(t *testing.T) {
	liq := &fakeLiquidador{fails: -1}
	cola := &fakeCola{}
	n := NewNotificador(liq, cola, time.Second)
	n.now = func() time.Time { return time.Unix(1000, 0) }

	n.Notificar(context.Background(), "CTA_1_aaaaaaaa")

	require.Len(t, cola.queued, 1)
	assert.Equal(t, 0, cola.queued[0].Intentos)
	assert.Equal(t, time.Unix(1002, 0), cola.queued[0].NoAntesDe)
	assert.Equal(t, "mesas down", cola.queued[0].UltimoError)
}

func TestNotificar_EnqueueFailureIsSwallowed(t *testing.T) {
	liq := &fakeLiquidador{fails: -1}
	cola := &fakeCola{enqueueErr: errors.New("redis down")}

	assert.NotPanics(t, func() {
		NewNotificador(liq, cola, time.Second).Notificar(context.Background(), "CTA_1_aaaaaaaa")
	})
}

func TestLiquidacionWorker_RetriesThenSucceeds(t *testing.T) {
	liq := &fakeLiquidador{fails: 2} // direct call + first retry fail
	cola := &fakeCola{}
	NewNotificador(liq, cola, time.Second).Notificar(context.Background(), "CTA_1_aaaaaaaa")

	w, _ := newTestWorker(liq, cola, 5)
	require.NoError(t, w.Handle(context.Background(), cola.pop(t)))
	require.Len(t, cola.queued, 1)
	assert.Equal(t, 1, cola.queued[0].Intentos)

	require.NoError(t, w.Handle(context.Background(), cola.pop(t)))
	assert.Empty(t, cola.queued)
	assert.Empty(t, cola.dead)
	assert.Len(t, liq.calls, 3)
}

func TestLiquidacionWorker_ExhaustedGoesToDLQ(t *testing.T) {
	liq := &fakeLiquidador{fails: -1}
	cola := &fakeCola{}
	w, slept := newTestWorker(liq, cola, 3)
	cola.queued = append(cola.queued, LiquidacionPayload{CuentaRef: "CTA_1_aaaaaaaa"})

	for len(cola.queued) > 0 {
		require.NoError(t, w.Handle(context.Background(), cola.pop(t)))
	}

	require.Len(t, cola.dead, 1)
	assert.Equal(t, QueueLiquidacion, cola.dead[0].queue)
	assert.Equal(t, 3, cola.dead[0].attempts)
	assert.Len(t, liq.calls, 3)
	assert.Equal(t, []time.Duration{4 * time.Second, 8 * time.Second}, *slept)
}

func TestLiquidacionWorker_ShutdownRequeuesUntouched(t *testing.T) {
	liq := &fakeLiquidador{}
	cola := &fakeCola{}
	w := NewLiquidacionWorker(liq, cola, 3, time.Second)
	w.sleep = func(context.Context, time.Duration) error { return context.Canceled }
	cola.queued = append(cola.queued, LiquidacionPayload{CuentaRef: "CTA_1_aaaaaaaa", Intentos: 1, NoAntesDe: time.Now().Add(time.Hour)})

	require.NoError(t, w.Handle(context.Background(), cola.pop(t)))
	require.Len(t, cola.queued, 1)
	assert.Equal(t, 1, cola.queued[0].Intentos)
	assert.Empty(t, liq.calls)
}

func TestLiquidacionWorker_BadPayload(t *testing.T) {
	w := NewLiquidacionWorker(&fakeLiquidador{}, &fakeCola{}, 3, time.Second)
	assert.Error(t, w.Handle(context.Background(), Job{Type: JobLiquidacion, Payload: json.RawMessage(`{`)}))
}

func TestProcessJob_Dispatch(t *testing.T) {
	var got []Job
	handlers := map[string]JobHandler{
		QueueLiquidacion: func(_ context.Context, j Job) error {
			got = append(got, j)
			return nil
		},
	}

	processJob(context.Background(), handlers, QueueLiquidacion, `{"type":"liquidacion","payload":{"cuenta_ref":"X"}}`)
	processJob(context.Background(), handlers, "jobs:desconocida", `{"type":"otro","payload":{}}`)
	processJob(context.Background(), handlers, QueueLiquidacion, `not json`)

	require.Len(t, got, 1)
	assert.Equal(t, JobLiquidacion, got[0].Type)
	assert.JSONEq(t, `{"cuenta_ref":"X"}`, string(got[0].Payload))
}
