package ingestion

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tip-settlement/internal/domain"
	"tip-settlement/internal/idhash"
	"tip-settlement/internal/solana"
	"tip-settlement/internal/solana/stub"
	"tip-settlement/internal/storage/memory"
)

func startWatcher(t *testing.T, w *Watcher) (cancel func() error) {
	t.Helper()
	ctx, stop := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	return func() error {
		stop()
		select {
		case err := <-done:
			return err
		case <-time.After(2 * time.Second):
			t.Fatal("watcher did not stop")
			return nil
		}
	}
}

func waitSubscribed(t *testing.T, ws *stub.WSClient) {
	t.Helper()
	select {
	case <-ws.Subscribed:
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not subscribe")
	}
}

func settled(f *fixture, sig string) func() bool {
	return func() bool {
		rec, err := f.ledger.Get(context.Background(), idhash.ComputeTipID("solana", sig, 0))
		return err == nil && rec.Status == domain.TipStatusSettled
	}
}

func TestWatcher_SettlesLiveTips(t *testing.T) {
	f := newFixture(t)
	ws := stub.NewWSClient()
	f.addTip(t, sig1, 10, 1000, 30)
	f.addTip(t, sig2, 11, 1000, 30)

	w := NewWatcher(WatcherOptions{WS: ws, Processor: f.processor, ProgramID: testProgram})
	stop := startWatcher(t, w)
	waitSubscribed(t, ws)

	require.Len(t, ws.Filters(), 1)
	assert.Equal(t, []string{testProgram}, ws.Filters()[0].Mentions)

	ws.Publish(solana.LogNotification{Signature: sig2, Slot: 11, Logs: sendTipLogs(t, 1000, 30), Err: "failed"})
	ws.Publish(solana.LogNotification{Signature: "unrelated", Slot: 11, Logs: []string{"Program log: hello"}})
	ws.Publish(solana.LogNotification{Signature: sig1, Slot: 10, Logs: sendTipLogs(t, 1000, 30)})

	require.Eventually(t, settled(f, sig1), 2*time.Second, 10*time.Millisecond)
	assert.ErrorIs(t, stop(), context.Canceled)

	assert.Zero(t, f.rpc.CallCount(sig2))
	assert.Zero(t, f.rpc.CallCount("unrelated"))
}

func TestWatcher_BackfillsOnStartup(t *testing.T) {
	f := newFixture(t)
	ws := stub.NewWSClient()
	history(t, f)

	w := NewWatcher(WatcherOptions{
		WS:         ws,
		Processor:  f.processor,
		Backfiller: newBackfiller(f, memory.NewIngestionCursorStore(), 0, 0),
		ProgramID:  testProgram,
	})
	stop := startWatcher(t, w)

	require.Eventually(t, settled(f, sig3), 2*time.Second, 10*time.Millisecond)
	assert.True(t, settled(f, sig1)())
	assert.ErrorIs(t, stop(), context.Canceled)
}

func TestWatcher_SubscriptionClosed(t *testing.T) {
	f := newFixture(t)
	ws := stub.NewWSClient()

	w := NewWatcher(WatcherOptions{WS: ws, Processor: f.processor, ProgramID: testProgram})
	done := make(chan error, 1)
	go func() { done <- w.Run(context.Background()) }()
	waitSubscribed(t, ws)
	ws.Close()

	select {
	case err := <-done:
		assert.EqualError(t, err, "logs subscription closed")
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not return")
	}
}

func TestWatcher_SubscribeError(t *testing.T) {
	f := newFixture(t)
	ws := stub.NewWSClient()
	ws.Close()

	w := NewWatcher(WatcherOptions{WS: ws, Processor: f.processor, ProgramID: testProgram})
	assert.Error(t, w.Run(context.Background()))
}
