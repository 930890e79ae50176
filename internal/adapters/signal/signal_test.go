package signal

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/okian/scoutsync/pkg/logger"
)

func TestMain(m *testing.M) {
	if err := logger.Init(); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

func TestBus_FanOut(t *testing.T) {
	bus := NewBus()
	a, cancelA := bus.Subscribe(4)
	b, cancelB := bus.Subscribe(4)
	defer cancelB()

	bus.Publish(Event{Collection: CollectionPending, Value: []byte(`["x"]`)})

	require.Equal(t, CollectionPending, (<-a).Collection)
	require.Equal(t, `["x"]`, string((<-b).Value))

	cancelA()
	cancelA()
	_, open := <-a
	require.False(t, open, "cancelled subscription must be closed")

	bus.Publish(Event{Collection: CollectionRoster})
	require.Equal(t, CollectionRoster, (<-b).Collection)
}

func TestBus_PublishNeverBlocks(t *testing.T) {
	bus := NewBus()
	ch, cancel := bus.Subscribe(1)
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			bus.Publish(Event{Collection: CollectionPending})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}
	require.Len(t, ch, 1)
}

func TestBus_Close(t *testing.T) {
	bus := NewBus()
	ch, _ := bus.Subscribe(0)
	bus.Close()
	bus.Close()

	_, open := <-ch
	require.False(t, open)

	late, _ := bus.Subscribe(1)
	_, open = <-late
	require.False(t, open)

	bus.Publish(Event{Collection: CollectionPending})
}

func TestFileSignal_CrossProcess(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	dir := filepath.Join(t.TempDir(), "signals")

	// Two instances sharing one directory stand in for two processes.
	busA, busB := NewBus(), NewBus()
	sigA, sigB := NewFileSignal(dir, busA), NewFileSignal(dir, busB)
	require.NoError(t, sigA.Start(ctx))
	require.NoError(t, sigB.Start(ctx))
	defer sigA.Stop()
	defer sigB.Stop()
	require.Error(t, sigA.Start(ctx), "double start must fail")

	eventsA, cancelA := busA.Subscribe(8)
	defer cancelA()
	eventsB, cancelB := busB.Subscribe(8)
	defer cancelB()

	sigA.Publish(Event{Collection: CollectionPending, Value: []byte(`["r1"]`)})

	// Local subscribers see the event immediately.
	require.Equal(t, CollectionPending, (<-eventsA).Collection)

	select {
	case ev := <-eventsB:
		require.Equal(t, CollectionPending, ev.Collection)
		require.Equal(t, `["r1"]`, string(ev.Value))
	case <-time.After(3 * time.Second):
		t.Fatal("other instance never saw the marker change")
	}

	// A's own marker write must not echo back to A.
	select {
	case ev := <-eventsA:
		t.Fatalf("unexpected echo: %+v", ev)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestFileSignal_StopIsIdempotent(t *testing.T) {
	sig := NewFileSignal(t.TempDir(), NewBus())
	require.NoError(t, sig.Stop())
	require.NoError(t, sig.Start(context.Background()))
	require.NoError(t, sig.Stop())
	require.NoError(t, sig.Stop())
	require.NotEmpty(t, sig.Origin())
}
