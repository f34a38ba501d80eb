package batch

import (
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shii9/reconkit/internal/probe"
	"github.com/shii9/reconkit/internal/target"
)

func targets(n int) []target.Target {
	lines := make([]string, n)
	for i := range lines {
		lines[i] = "example.com:" + strconv.Itoa(i+1)
	}
	return target.ParseLines(strings.Join(lines, "\n"), target.ShapeHostPort, 0)
}

func result(t target.Target, s probe.Status) probe.Result {
	if s.Succeeded() {
		return probe.Success(probe.KindTCP, t, s, time.Millisecond, probe.PortInfo{Port: t.Port, State: "open"})
	}
	return probe.Failure(probe.KindTCP, t, s, time.Millisecond, nil)
}

func TestStartCreatesQueuedSlots(t *testing.T) {
	tr := NewTracker(zerolog.Nop())
	ts := targets(3)

	gen, id := tr.Start(probe.KindTCP, ts)
	assert.Equal(t, uint64(1), gen)
	assert.NotEmpty(t, id)

	snap := tr.Snapshot()
	assert.True(t, snap.Running)
	assert.Equal(t, 3, snap.Counters.Total)
	require.Len(t, snap.Results, 3)
	for i, r := range snap.Results {
		assert.Equal(t, probe.StatusQueued, r.Status)
		assert.Equal(t, ts[i], r.Target)
	}

	gen2, id2 := tr.Start(probe.KindTCP, ts[:1])
	assert.Equal(t, uint64(2), gen2)
	assert.NotEqual(t, id, id2)
}

func TestRecordCountsAndGuards(t *testing.T) {
	tr := NewTracker(zerolog.Nop())
	ts := targets(3)
	gen, _ := tr.Start(probe.KindTCP, ts)

	assert.True(t, tr.Mark(gen, 0))
	assert.False(t, tr.Mark(gen, 0), "already scanning")
	assert.Equal(t, probe.StatusScanning, tr.Snapshot().Results[0].Status)

	assert.True(t, tr.Record(gen, 0, result(ts[0], probe.StatusOpen)))
	assert.True(t, tr.Record(gen, 1, result(ts[1], probe.StatusTimeout)))
	assert.False(t, tr.Record(gen, 1, result(ts[1], probe.StatusOpen)), "slot recorded once")
	assert.False(t, tr.Record(gen, 7, result(ts[1], probe.StatusOpen)), "out of range")
	assert.False(t, tr.Record(gen, 2, probe.Result{Status: probe.StatusScanning}), "non-terminal")

	snap := tr.Snapshot()
	assert.Equal(t, Counters{Total: 3, Succeeded: 1, Failed: 1, Completed: 2}, snap.Counters)
	assert.Equal(t, gen, snap.Results[0].Generation)
	assert.Equal(t, probe.StatusTimeout, snap.Results[1].Status)
}

func TestStaleGenerationIgnored(t *testing.T) {
	tr := NewTracker(zerolog.Nop())
	old := targets(2)
	oldGen, _ := tr.Start(probe.KindTCP, old)

	fresh := targets(2)
	newGen, _ := tr.Start(probe.KindTCP, fresh)

	assert.False(t, tr.Mark(oldGen, 0))
	assert.False(t, tr.Record(oldGen, 0, result(old[0], probe.StatusOpen)))
	assert.False(t, tr.Finish(oldGen))

	snap := tr.Snapshot()
	assert.Equal(t, newGen, snap.Generation)
	assert.Equal(t, probe.StatusQueued, snap.Results[0].Status)
	assert.Zero(t, snap.Counters.Completed)
	assert.Zero(t, snap.Counters.Succeeded)
	assert.True(t, snap.Running)
}

func TestFinish(t *testing.T) {
	tr := NewTracker(zerolog.Nop())
	gen, _ := tr.Start(probe.KindTCP, targets(1))

	assert.True(t, tr.Finish(gen))
	assert.False(t, tr.Finish(gen))

	snap := tr.Snapshot()
	assert.False(t, snap.Running)
	assert.False(t, snap.FinishedAt.IsZero())
}

func TestSnapshotIsACopy(t *testing.T) {
	tr := NewTracker(zerolog.Nop())
	ts := targets(2)
	gen, _ := tr.Start(probe.KindTCP, ts)

	snap := tr.Snapshot()
	snap.Results[0].Status = probe.StatusOpen

	assert.Equal(t, probe.StatusQueued, tr.Snapshot().Results[0].Status)
	assert.True(t, tr.Record(gen, 0, result(ts[0], probe.StatusClosed)))
}

func TestSubscribe(t *testing.T) {
	tr := NewTracker(zerolog.Nop())
	ts := targets(2)
	gen, id := tr.Start(probe.KindTCP, ts)

	sub := tr.Subscribe(8)
	sink := tr.Sink(gen)
	sink.Mark(1)
	sink.Record(1, result(ts[1], probe.StatusOpen))
	tr.Finish(gen)

	u := <-sub.Updates
	assert.Equal(t, 1, u.Index)
	assert.Equal(t, probe.StatusScanning, u.Result.Status)
	assert.Equal(t, id, u.BatchID)

	u = <-sub.Updates
	assert.Equal(t, probe.StatusOpen, u.Result.Status)
	assert.Equal(t, 1, u.Counters.Succeeded)

	last := <-sub.Updates
	assert.True(t, last.Done)
	assert.Greater(t, last.Seq, u.Seq)
	assert.Equal(t, last.Seq, tr.Snapshot().Seq)
	assert.Empty(t, sub.Lagged)

	sub.Close()
	sub.Close()
	_, open := <-sub.Updates
	assert.False(t, open)
}

func TestSubscribeDropsWhenFull(t *testing.T) {
	tr := NewTracker(zerolog.Nop())
	ts := targets(3)
	gen, _ := tr.Start(probe.KindTCP, ts)

	sub := tr.Subscribe(1)
	defer sub.Close()

	for i := range ts {
		require.True(t, tr.Record(gen, i, result(ts[i], probe.StatusClosed)))
	}
	assert.Len(t, sub.Updates, 1)
	assert.Len(t, sub.Lagged, 1)
	assert.Equal(t, 3, tr.Snapshot().Counters.Failed)
}

func TestSubscribeLaggedSeesFinish(t *testing.T) {
	tr := NewTracker(zerolog.Nop())
	ts := targets(300)
	gen, _ := tr.Start(probe.KindTCP, ts)

	sub := tr.Subscribe(16)
	defer sub.Close()

	sink := tr.Sink(gen)
	for i := range ts {
		sink.Mark(i)
		sink.Record(i, result(ts[i], probe.StatusClosed))
	}
	require.True(t, tr.Finish(gen))
	assert.False(t, tr.Running())

	sawDone := false
	for len(sub.Updates) > 0 {
		if u := <-sub.Updates; u.Done {
			sawDone = true
		}
	}
	assert.False(t, sawDone, "done update is dropped for a full subscriber")

	select {
	case <-sub.Lagged:
	default:
		t.Fatal("lagged subscriber was not flagged")
	}
	state := tr.Snapshot()
	assert.False(t, state.Running)
	assert.Equal(t, 300, state.Counters.Completed)
	assert.Equal(t, uint64(601), state.Seq)
}

func TestRunning(t *testing.T) {
	tr := NewTracker(zerolog.Nop())
	assert.False(t, tr.Running())

	gen, _ := tr.Start(probe.KindTCP, targets(1))
	assert.True(t, tr.Running())
	tr.Finish(gen)
	assert.False(t, tr.Running())
}
