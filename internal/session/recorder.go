// Package session drives a recording: it feeds serial chunks to the decoder,
// folds decoded events into the live spectrum on a refresh tick, tracks
// count-rate statistics and elapsed time, and stops the recording when the
// configured time limit runs out.
//
// All recording state is owned by the scheduler goroutine. The exported
// methods only post work to it, so they are safe to call from anywhere.
// Readers on other goroutines use Snapshot.
package session

import (
	"errors"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/gamma.mca/internal/decoder"
	"github.com/banshee-data/gamma.mca/internal/importer"
	"github.com/banshee-data/gamma.mca/internal/monitoring"
	"github.com/banshee-data/gamma.mca/internal/scheduler"
	"github.com/banshee-data/gamma.mca/internal/spectrum"
	"github.com/banshee-data/gamma.mca/internal/timeutil"
)

// Options configures the recorder's ticks.
type Options struct {
	RefreshInterval     time.Duration
	MetaInterval        time.Duration
	MaxRecordingTime    time.Duration
	MaxRecordingEnabled bool
}

// DefaultOptions returns a 1s refresh, a 100ms meta tick and a disabled
// 30 minute limit.
func DefaultOptions() Options {
	return Options{
		RefreshInterval:  time.Second,
		MetaInterval:     100 * time.Millisecond,
		MaxRecordingTime: 30 * time.Minute,
	}
}

// Recorder runs recording sessions on a scheduler.
type Recorder struct {
	sched *scheduler.Scheduler
	clock timeutil.Clock
	dec   *decoder.Decoder
	opts  Options
	obs   Observer

	// Owned by the scheduler goroutine.
	id          string
	set         spectrum.Set
	kind        spectrum.Kind
	recording   bool
	accumulated time.Duration
	startedAt   time.Time
	lastRefresh time.Time
	stats       spectrum.RateStats
	refreshTask scheduler.Handle
	metaTask    scheduler.Handle

	snap    atomic.Pointer[Snapshot]
	console atomic.Pointer[string]
}

// New returns an idle recorder. A nil observer is replaced by one that
// ignores every event.
func New(sched *scheduler.Scheduler, dec *decoder.Decoder, opts Options, obs Observer) *Recorder {
	if obs == nil {
		obs = NopObserver{}
	}
	def := DefaultOptions()
	if opts.RefreshInterval <= 0 {
		opts.RefreshInterval = def.RefreshInterval
	}
	if opts.MetaInterval <= 0 {
		opts.MetaInterval = def.MetaInterval
	}
	r := &Recorder{
		sched: sched,
		clock: sched.Clock(),
		dec:   dec,
		opts:  opts,
		obs:   obs,
	}
	empty := ""
	r.console.Store(&empty)
	r.publish(r.clock.Now())
	return r
}

// Snapshot returns the most recently published state.
func (r *Recorder) Snapshot() Snapshot {
	return *r.snap.Load()
}

// Console returns the decoder's console text as of the last fed chunk.
func (r *Recorder) Console() string {
	return *r.console.Load()
}

// Start begins recording into the spectrum of kind. With resume the
// histogram, rate history and elapsed time of the previous recording are
// kept; otherwise they are cleared and a new session ID is issued.
func (r *Recorder) Start(kind spectrum.Kind, resume bool) {
	r.sched.Post(func() { r.start(kind, resume) })
}

// Pause stops recording but keeps the accumulated time and rate history
// for a later Start with resume.
func (r *Recorder) Pause() {
	r.sched.Post(func() { r.halt(false, StopRequested, nil) })
}

// Stop ends the recording and resets elapsed time and rate history.
func (r *Recorder) Stop() {
	r.sched.Post(func() { r.halt(true, StopRequested, nil) })
}

// Fail ends the recording because the byte stream failed.
func (r *Recorder) Fail(err error) {
	r.sched.Post(func() { r.halt(true, StopTransport, err) })
}

// Feed hands a chunk read from the port to the decoder. While no recording
// is active only the console is updated.
func (r *Recorder) Feed(chunk []byte) {
	buf := append([]byte(nil), chunk...)
	r.sched.Post(func() { r.ingest(buf) })
}

// ClearConsole empties the console buffer.
func (r *Recorder) ClearConsole() {
	r.sched.Post(func() {
		r.dec.ClearConsole()
		r.storeConsole()
	})
}

// Load installs spectra read from a file, replacing the corresponding
// histograms.
func (r *Recorder) Load(res importer.Result) {
	r.sched.Post(func() {
		res.Apply(&r.set)
		if !r.set.Consistent() {
			monitoring.Warnf("session: data and background spectra have different channel counts (%d vs %d)",
				len(r.set.Data), len(r.set.Background))
		}
		r.publish(r.clock.Now())
	})
}

func (r *Recorder) ingest(chunk []byte) {
	var err error
	if r.recording {
		err = r.dec.Ingest(chunk)
	} else {
		err = r.dec.IngestConsole(chunk)
	}
	if err != nil && !errors.Is(err, decoder.ErrSaturated) {
		monitoring.Logf("session: ingest: %v", err)
	}
	r.storeConsole()
}

func (r *Recorder) storeConsole() {
	c := r.dec.Console()
	r.console.Store(&c)
}

func (r *Recorder) start(kind spectrum.Kind, resume bool) {
	if r.recording {
		return
	}
	if !resume || r.id == "" || kind != r.kind {
		r.id = uuid.NewString()
		r.set.Clear(kind)
		r.stats.Reset()
		r.accumulated = 0
		r.dec.ResetBaseline()
	}
	r.dec.Flush()

	now := r.clock.Now()
	r.kind = kind
	r.recording = true
	r.startedAt = now
	r.lastRefresh = now
	monitoring.Logf("session %s: recording %s (resume=%t)", r.id, kind, resume)

	r.refreshTask = r.sched.ScheduleAfter(r.opts.RefreshInterval, r.refresh)
	r.metaTask = r.sched.ScheduleAfter(r.opts.MetaInterval, r.meta)
	r.publish(now)
	r.obs.Elapsed(r.progress(now))
}

// halt ends the active recording. Events still in the decoder sink are
// merged first; partial frames are discarded.
func (r *Recorder) halt(stop bool, reason StopReason, cause error) {
	now := r.clock.Now()
	if r.recording {
		r.sched.Cancel(r.refreshTask)
		r.sched.Cancel(r.metaTask)
		r.merge(r.dec.Drain(), now)
		r.accumulated += now.Sub(r.startedAt)
		r.recording = false
		r.dec.Flush()
	} else if !stop {
		return
	}

	if stop {
		r.accumulated = 0
		r.stats.Reset()
		monitoring.CountsPerSecond.Set(0)
		monitoring.RecordingSeconds.Set(0)
		if cause != nil {
			monitoring.Logf("session %s: stopped (%s): %v", r.id, reason, cause)
		} else {
			monitoring.Logf("session %s: stopped (%s)", r.id, reason)
		}
	}
	r.publish(now)
	if stop {
		r.obs.Stopped(reason, cause)
	}
}

func (r *Recorder) elapsed(now time.Time) time.Duration {
	if !r.recording {
		return r.accumulated
	}
	return r.accumulated + now.Sub(r.startedAt)
}

func (r *Recorder) merge(batch []int, now time.Time) {
	h := spectrum.Merge(r.set.Get(r.kind), batch, r.dec.Config().ChannelCount)
	r.set.Replace(r.kind, h, r.elapsed(now))
}

func (r *Recorder) refresh() {
	if !r.recording {
		return
	}
	start := r.clock.Now()

	batch := r.dec.Drain()
	r.merge(batch, start)

	rate := spectrum.Rate(len(batch), start.Sub(r.lastRefresh))
	r.lastRefresh = start
	r.stats.Push(rate)
	monitoring.CountsPerSecond.Set(rate)

	snap := r.publish(start)
	r.obs.Redraw(*snap)

	delay := scheduler.NextDelay(r.opts.RefreshInterval, r.clock.Since(start))
	r.refreshTask = r.sched.ScheduleAfter(delay, r.refresh)
}

func (r *Recorder) meta() {
	if !r.recording {
		return
	}
	start := r.clock.Now()
	p := r.progress(start)
	monitoring.RecordingSeconds.Set(p.Elapsed.Seconds())
	r.obs.Elapsed(p)

	if p.Exceeded() {
		monitoring.Logf("session %s: recording time limit %s reached", r.id, p.Limit)
		r.halt(true, StopTimeLimit, nil)
		return
	}

	delay := scheduler.NextDelay(r.opts.MetaInterval, r.clock.Since(start))
	r.metaTask = r.sched.ScheduleAfter(delay, r.meta)
}

func (r *Recorder) progress(now time.Time) Progress {
	return Progress{
		Elapsed:      r.elapsed(now),
		Limit:        r.opts.MaxRecordingTime,
		LimitEnabled: r.opts.MaxRecordingEnabled,
	}
}

func (r *Recorder) publish(now time.Time) *Snapshot {
	s := &Snapshot{
		SessionID:     r.id,
		Recording:     r.recording,
		Kind:          r.kind,
		Data:          r.set.Data.Clone(),
		Background:    r.set.Background.Clone(),
		DataCps:       cloneFloats(r.set.DataCps),
		BackgroundCps: cloneFloats(r.set.BackgroundCps),
		Elapsed:       r.elapsed(now),
		Rate: RateSummary{
			Instant: r.stats.Instant(),
			Mean:    r.stats.Mean(),
			StdDev:  r.stats.StdDev(),
			Samples: r.stats.Len(),
		},
		TotalData:       r.set.Data.Total(),
		TotalBackground: r.set.Background.Total(),
		Consistent:      r.set.Consistent(),
		UpdatedAt:       now,
	}
	r.snap.Store(s)
	return s
}

func cloneFloats(v []float64) []float64 {
	if v == nil {
		return nil
	}
	return append([]float64(nil), v...)
}
