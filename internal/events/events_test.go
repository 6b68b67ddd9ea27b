package events

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suspectuso/xlm-tipbot/internal/command"
)

func TestBusDeliversToSubscribers(t *testing.T) {
	bus := NewBus()

	var got []Type
	unsubscribe := bus.Subscribe(func(e Event) { got = append(got, e.Type) })

	bus.Publish(Event{Type: TipSuccess})
	unsubscribe()
	bus.Publish(Event{Type: TipSelf})

	assert.Equal(t, []Type{TipSuccess}, got)
}

func TestBusStampsTimestamp(t *testing.T) {
	bus := NewBus()

	var got Event
	bus.Subscribe(func(e Event) { got = e })
	bus.Publish(Event{Type: BalanceRequest})

	assert.False(t, got.Timestamp.IsZero())
}

func TestHandlerMaySubscribeDuringPublish(t *testing.T) {
	bus := NewBus()

	calls := 0
	bus.Subscribe(func(e Event) {
		calls++
		if e.Type == InfoRequest {
			bus.Subscribe(func(Event) { calls++ })
		}
	})

	bus.Publish(Event{Type: InfoRequest})
	bus.Publish(Event{Type: BalanceRequest})

	assert.Equal(t, 3, calls)
}

func TestMetricsSinkCountsByType(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink := NewMetricsSink(reg)

	sink.Handle(Event{Type: TipSuccess, Amount: decimal.RequireFromString("0.5")})
	sink.Handle(Event{Type: TipSuccess, Amount: decimal.RequireFromString("1.25")})
	sink.Handle(Event{Type: TipSelf})
	sink.Handle(Event{Type: DepositSuccess, Amount: decimal.NewFromInt(3)})

	assert.Equal(t, 2.0, testutil.ToFloat64(sink.total.WithLabelValues(string(TipSuccess))))
	assert.Equal(t, 1.0, testutil.ToFloat64(sink.total.WithLabelValues(string(TipSelf))))
	assert.Equal(t, 1.75, testutil.ToFloat64(sink.tipped))
	assert.Equal(t, 3.0, testutil.ToFloat64(sink.credits))
}

func TestLogSinkWritesCommandHash(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	cmd := command.NewBalance("telegram", "42", "")
	NewLogSink(log).Handle(Event{Type: BalanceRequest, Command: cmd})

	out := buf.String()
	require.Contains(t, out, "type=balance.request")
	assert.Contains(t, out, "hash="+cmd.Hash)
	assert.Contains(t, out, "unique_id=42")
}
