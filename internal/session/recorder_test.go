package session

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/gamma.mca/internal/decoder"
	"github.com/banshee-data/gamma.mca/internal/importer"
	"github.com/banshee-data/gamma.mca/internal/scheduler"
	"github.com/banshee-data/gamma.mca/internal/spectrum"
	"github.com/banshee-data/gamma.mca/internal/timeutil"
)

type stopEvent struct {
	reason StopReason
	err    error
}

type recordingObserver struct {
	redraws  []Snapshot
	progress []Progress
	stops    []stopEvent
}

func (o *recordingObserver) Redraw(s Snapshot)  { o.redraws = append(o.redraws, s) }
func (o *recordingObserver) Elapsed(p Progress) { o.progress = append(o.progress, p) }
func (o *recordingObserver) Stopped(r StopReason, err error) {
	o.stops = append(o.stops, stopEvent{r, err})
}

type harness struct {
	clock *timeutil.MockClock
	sched *scheduler.Scheduler
	dec   *decoder.Decoder
	obs   *recordingObserver
	rec   *Recorder
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	clock := timeutil.NewMockClock(time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC))
	sched := scheduler.New(clock)

	cfg := decoder.DefaultConfig()
	cfg.ChannelCount = 8
	dec, err := decoder.New(cfg)
	require.NoError(t, err)

	obs := &recordingObserver{}
	return &harness{
		clock: clock,
		sched: sched,
		dec:   dec,
		obs:   obs,
		rec:   New(sched, dec, opts, obs),
	}
}

// step advances virtual time in increments of at most 100ms, running due
// tasks after each increment.
func (h *harness) step(d time.Duration) {
	h.sched.RunDue()
	for d > 0 {
		inc := min(d, 100*time.Millisecond)
		h.clock.Advance(inc)
		h.sched.RunDue()
		d -= inc
	}
}

func TestRecorder_RefreshMergesDecodedEvents(t *testing.T) {
	h := newHarness(t, Options{RefreshInterval: time.Second, MetaInterval: 100 * time.Millisecond})

	h.rec.Start(spectrum.Data, false)
	h.step(0)
	require.True(t, h.rec.Snapshot().Recording)
	firstID := h.rec.Snapshot().SessionID
	assert.NotEmpty(t, firstID)

	h.rec.Feed([]byte("junk;1;2;2;"))
	h.rec.Feed([]byte("7;3"))
	h.step(time.Second)

	require.Len(t, h.obs.redraws, 1)
	snap := h.obs.redraws[0]
	want := spectrum.Histogram{0, 1, 2, 0, 0, 0, 0, 1}
	if diff := cmp.Diff(want, snap.Data); diff != "" {
		t.Errorf("histogram mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, []float64{0, 1, 2, 0, 0, 0, 0, 1}, snap.DataCps)
	assert.Equal(t, 4.0, snap.Rate.Instant)
	assert.Equal(t, 4.0, snap.TotalData)
	assert.Equal(t, time.Second, snap.Elapsed)

	// The partial "3" completes on the next chunk.
	h.rec.Feed([]byte(";"))
	h.step(time.Second)
	require.Len(t, h.obs.redraws, 2)
	snap = h.obs.redraws[1]
	assert.Equal(t, 1.0, snap.Data[3])
	assert.Equal(t, 2, snap.Rate.Samples)
	assert.Equal(t, 1.0, snap.Rate.Instant)
	assert.InDelta(t, 2.5, snap.Rate.Mean, 1e-9)
	assert.Equal(t, firstID, snap.SessionID)
}

func TestRecorder_RefreshKeepsInterval(t *testing.T) {
	h := newHarness(t, Options{RefreshInterval: 500 * time.Millisecond, MetaInterval: 100 * time.Millisecond})
	h.rec.Start(spectrum.Data, false)
	h.step(2 * time.Second)
	assert.Len(t, h.obs.redraws, 4)
	assert.Len(t, h.obs.progress, 21, "one at start plus one per meta tick")
	assert.Equal(t, 2*time.Second, h.obs.progress[len(h.obs.progress)-1].Elapsed)
}

func TestRecorder_PauseResumeKeepsTime(t *testing.T) {
	h := newHarness(t, Options{RefreshInterval: time.Second, MetaInterval: 100 * time.Millisecond})

	h.rec.Start(spectrum.Data, false)
	h.step(0)
	h.rec.Feed([]byte(";1;1;"))
	h.step(2 * time.Second)
	id := h.rec.Snapshot().SessionID

	h.rec.Pause()
	h.step(0)
	snap := h.rec.Snapshot()
	assert.False(t, snap.Recording)
	assert.Equal(t, 2*time.Second, snap.Elapsed)
	assert.Empty(t, h.obs.stops, "pause is not a stop")

	// Time spent paused does not count, and no ticks run.
	redraws := len(h.obs.redraws)
	h.step(5 * time.Second)
	assert.Len(t, h.obs.redraws, redraws)

	h.rec.Start(spectrum.Data, true)
	h.step(time.Second)
	snap = h.rec.Snapshot()
	assert.True(t, snap.Recording)
	assert.Equal(t, 3*time.Second, snap.Elapsed)
	assert.Equal(t, id, snap.SessionID)
	assert.Equal(t, 2.0, snap.Data[1], "histogram kept across resume")
	assert.Equal(t, 3, snap.Rate.Samples)
}

func TestRecorder_StopResetsTimeAndRates(t *testing.T) {
	h := newHarness(t, Options{RefreshInterval: time.Second, MetaInterval: 100 * time.Millisecond})

	h.rec.Start(spectrum.Background, false)
	h.step(0)
	h.rec.Feed([]byte(";4;4;"))
	// Stop before the refresh tick: pending events are still merged.
	h.step(500 * time.Millisecond)
	h.rec.Stop()
	h.step(0)

	snap := h.rec.Snapshot()
	assert.False(t, snap.Recording)
	assert.Zero(t, snap.Elapsed)
	assert.Zero(t, snap.Rate.Samples)
	assert.Equal(t, 2.0, snap.Background[4])
	assert.Nil(t, snap.Data)
	require.Len(t, h.obs.stops, 1)
	assert.Equal(t, StopRequested, h.obs.stops[0].reason)
	assert.Equal(t, 0, h.sched.Pending(), "ticks cancelled")

	// A fresh start clears the histogram and issues a new session.
	id := snap.SessionID
	h.rec.Start(spectrum.Background, false)
	h.step(time.Second)
	snap = h.rec.Snapshot()
	assert.NotEqual(t, id, snap.SessionID)
	assert.Equal(t, 0.0, snap.Background.Total())
}

func TestRecorder_AutoStopAtTimeLimit(t *testing.T) {
	h := newHarness(t, Options{
		RefreshInterval:     time.Second,
		MetaInterval:        100 * time.Millisecond,
		MaxRecordingTime:    2 * time.Second,
		MaxRecordingEnabled: true,
	})

	h.rec.Start(spectrum.Data, false)
	h.step(2 * time.Second)
	assert.True(t, h.rec.Snapshot().Recording, "limit reached but not exceeded")

	h.step(100 * time.Millisecond)
	assert.False(t, h.rec.Snapshot().Recording)
	require.Len(t, h.obs.stops, 1)
	assert.Equal(t, StopTimeLimit, h.obs.stops[0].reason)

	last := h.obs.progress[len(h.obs.progress)-1]
	assert.True(t, last.Exceeded())
	assert.Equal(t, 105, last.Percent())
}

func TestRecorder_FailStopsWithTransportError(t *testing.T) {
	h := newHarness(t, Options{})
	h.rec.Start(spectrum.Data, false)
	h.step(0)

	cause := errors.New("device unplugged")
	h.rec.Fail(cause)
	h.step(0)

	require.Len(t, h.obs.stops, 1)
	assert.Equal(t, StopTransport, h.obs.stops[0].reason)
	assert.ErrorIs(t, h.obs.stops[0].err, cause)
}

func TestRecorder_FeedWhileIdleOnlyUpdatesConsole(t *testing.T) {
	h := newHarness(t, Options{})
	h.rec.Feed([]byte("hello;1;2;"))
	h.step(0)

	assert.Equal(t, "hello;1;2;", h.rec.Console())
	assert.Zero(t, h.dec.Pending())

	h.rec.ClearConsole()
	h.step(0)
	assert.Empty(t, h.rec.Console())
}

func TestRecorder_Load(t *testing.T) {
	h := newHarness(t, Options{})
	h.rec.Load(importer.Result{
		Data:       spectrum.Histogram{1, 2, 3},
		Background: spectrum.Histogram{1, 1},
		Meta:       importer.Meta{DataTime: 2 * time.Second},
	})
	h.step(0)

	snap := h.rec.Snapshot()
	assert.Equal(t, spectrum.Histogram{1, 2, 3}, snap.Data)
	assert.Equal(t, []float64{0.5, 1, 1.5}, snap.DataCps)
	assert.Equal(t, []float64{1, 1}, snap.BackgroundCps)
	assert.False(t, snap.Consistent)
}

func TestProgress(t *testing.T) {
	p := Progress{Elapsed: 45 * time.Second, Limit: time.Minute, LimitEnabled: true}
	assert.Equal(t, 75, p.Percent())
	assert.False(t, p.Exceeded())

	p.LimitEnabled = false
	p.Elapsed = 2 * time.Minute
	assert.Zero(t, p.Percent())
	assert.False(t, p.Exceeded())
}

func TestRateSummary_RelativeStdDev(t *testing.T) {
	assert.Zero(t, RateSummary{}.RelativeStdDev())
	assert.InDelta(t, 10.0, RateSummary{Mean: 20, StdDev: 2}.RelativeStdDev(), 1e-9)
}

// slowObserver spends cost of virtual time in every redraw.
type slowObserver struct {
	recordingObserver
	clock *timeutil.MockClock
	cost  time.Duration
}

func (o *slowObserver) Redraw(s Snapshot) {
	o.recordingObserver.Redraw(s)
	o.clock.Advance(o.cost)
}

func TestRecorder_SlowRedrawKeepsRefreshCadence(t *testing.T) {
	opts := Options{RefreshInterval: time.Second, MetaInterval: time.Hour}
	h := newHarness(t, opts)
	obs := &slowObserver{clock: h.clock, cost: 300 * time.Millisecond}
	h.rec = New(h.sched, h.dec, opts, obs)
	start := h.clock.Now()

	h.rec.Start(spectrum.Data, false)
	h.step(4 * time.Second)

	require.Len(t, obs.redraws, 5)
	for i, s := range obs.redraws {
		assert.Equal(t, time.Duration(i+1)*time.Second, s.UpdatedAt.Sub(start), "redraw %d", i)
	}
}
