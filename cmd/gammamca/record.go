package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/banshee-data/gamma.mca/internal/api"
	"github.com/banshee-data/gamma.mca/internal/calibration"
	"github.com/banshee-data/gamma.mca/internal/decoder"
	"github.com/banshee-data/gamma.mca/internal/importer"
	"github.com/banshee-data/gamma.mca/internal/monitoring"
	"github.com/banshee-data/gamma.mca/internal/scheduler"
	"github.com/banshee-data/gamma.mca/internal/serialport"
	"github.com/banshee-data/gamma.mca/internal/session"
	"github.com/banshee-data/gamma.mca/internal/spectrum"
)

// shutdownTimeout bounds how long the command waits for the read loop and
// HTTP server to wind down.
const shutdownTimeout = 5 * time.Second

func (a *app) recordCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record a spectrum from a serial MCA.",
		Long: `Record opens the serial port, decodes the byte stream into events and
accumulates them into the data (or background) spectrum until interrupted,
the time limit is reached or the port fails.`,
		Args: cobra.NoArgs,
		RunE: a.runRecord,
	}
	f := cmd.Flags()
	f.String("port", "", "serial device path (required)")
	f.String("listen", ":8080", "HTTP listen address; empty disables the API")
	f.Bool("background", false, "record into the background spectrum")
	f.String("load", "", "spectrum file to load before recording")
	f.Bool("load-background", false, "load a single-spectrum --load file as the background")
	f.String("out", "", "write the recorded spectrum as CSV when recording ends")
	_ = cmd.MarkFlagRequired("port")
	return cmd
}

// stopObserver prints rate updates and reports the end of the recording.
// It runs on the scheduler goroutine and never blocks.
type stopObserver struct {
	out     io.Writer
	stopped chan session.StopReason

	mu      sync.Mutex
	rate    session.RateSummary
	elapsed time.Duration
}

func newStopObserver(out io.Writer) *stopObserver {
	return &stopObserver{out: out, stopped: make(chan session.StopReason, 1)}
}

func (o *stopObserver) Redraw(s session.Snapshot) {
	o.mu.Lock()
	o.rate = s.Rate
	o.mu.Unlock()
	fmt.Fprintf(o.out, "%s %8.1f cps  avg %.1f ± %.1f cps (Δ %.0f%%)  total %.0f\n",
		color.CyanString("%8s", s.Elapsed.Truncate(time.Second)),
		s.Rate.Instant, s.Rate.Mean, s.Rate.StdDev, s.Rate.RelativeStdDev(),
		totalOf(s))
}

func (o *stopObserver) Elapsed(p session.Progress) {
	o.mu.Lock()
	o.elapsed = p.Elapsed
	o.mu.Unlock()
}

// last returns the rate summary and elapsed time seen before the recording
// stopped; stopping resets both in the recorder.
func (o *stopObserver) last() (session.RateSummary, time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.rate, o.elapsed
}

func (o *stopObserver) Stopped(reason session.StopReason, err error) {
	if err != nil {
		fmt.Fprintln(o.out, color.RedString("recording stopped (%s): %v", reason, err))
	} else {
		fmt.Fprintln(o.out, color.YellowString("recording stopped (%s)", reason))
	}
	select {
	case o.stopped <- reason:
	default:
	}
}

func totalOf(s session.Snapshot) float64 {
	if s.Kind == spectrum.Background {
		return s.TotalBackground
	}
	return s.TotalData
}

func (a *app) runRecord(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	path, _ := cmd.Flags().GetString("port")
	listen, _ := cmd.Flags().GetString("listen")
	background, _ := cmd.Flags().GetBool("background")
	load, _ := cmd.Flags().GetString("load")
	loadBackground, _ := cmd.Flags().GetBool("load-background")
	out, _ := cmd.Flags().GetString("out")

	kind := spectrum.Data
	if background {
		kind = spectrum.Background
	}

	decCfg, err := a.cfg.DecoderConfig()
	if err != nil {
		return err
	}
	dec, err := decoder.New(decCfg)
	if err != nil {
		return err
	}

	sched := scheduler.New(a.clock)
	obs := newStopObserver(cmd.OutOrStdout())
	rec := session.New(sched, dec, sessionOptions(a.cfg), obs)

	port, err := serialport.OpenWith(a.open, path, a.cfg.PortOptions())
	if err != nil {
		return err
	}
	defer func() {
		if err := port.Close(); err != nil {
			monitoring.Warnf("close %s: %v", path, err)
		}
	}()

	server := api.NewServer(rec, port)
	if load != "" {
		res, err := a.loadForRecording(ctx, cmd.ErrOrStderr(), load, loadBackground, kind)
		if err != nil {
			return err
		}
		rec.Load(res)
		if res.Calibration != nil {
			server.SetCalibration(calibration.Calibration{
				Coeff:    *res.Calibration,
				Imported: res.CalibrationLocked(),
			})
		}
	}

	// The scheduler outlives ctx so the stop request still runs after an
	// interrupt.
	schedCtx, cancelSched := context.WithCancel(context.WithoutCancel(ctx))
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := sched.Run(schedCtx); err != nil && !errors.Is(err, context.Canceled) {
			monitoring.Logf("scheduler: %v", err)
		}
	}()
	defer func() {
		cancelSched()
		wg.Wait()
	}()

	rec.Start(kind, false)
	loop, err := serialport.StartReadLoop(port, serialport.DefaultPollInterval, rec.Feed)
	if err != nil {
		rec.Stop()
		return err
	}

	var srv *http.Server
	if listen != "" {
		srv = &http.Server{
			Addr:    listen,
			Handler: api.LoggingMiddleware(server.ServeMux()),
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				monitoring.Logf("http server: %v", err)
			}
		}()
		fmt.Fprintf(cmd.ErrOrStderr(), "serving on %s\n", listen)
	}

	var reason session.StopReason
	stopped := false
	select {
	case <-ctx.Done():
		rec.Stop()
	case <-loop.Done():
		if err := loop.Err(); err != nil {
			rec.Fail(err)
		} else {
			rec.Stop()
		}
	case reason = <-obs.stopped:
		stopped = true
	}
	if !stopped {
		reason = <-obs.stopped
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := loop.Wait(shutdownCtx); err != nil && reason != session.StopTransport {
		monitoring.Warnf("serial read loop: %v", err)
	}
	if srv != nil {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			monitoring.Logf("http shutdown: %v", err)
		}
	}

	snap := rec.Snapshot()
	if out != "" {
		if err := a.writeSpectrumCSV(out, snap, kind); err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s spectrum to %s\n", kind, out)
	}
	rate, elapsed := obs.last()
	if err := printRecordSummary(cmd.OutOrStdout(), snap, rate, elapsed); err != nil {
		return err
	}
	if reason == session.StopTransport {
		return fmt.Errorf("serial %s: %w", path, loop.Err())
	}
	return nil
}

// loadForRecording imports path for use alongside a new recording. Starting
// a recording clears the spectrum it records into, so a file that only
// carries that spectrum is rejected, and a file carrying both keeps only
// the other one.
func (a *app) loadForRecording(ctx context.Context, w io.Writer, path string, asBackground bool, kind spectrum.Kind) (importer.Result, error) {
	fi, err := a.fileImporter(a.cfg)
	if err != nil {
		return importer.Result{}, err
	}
	res, err := fi.ImportFile(ctx, path)
	if err != nil {
		return importer.Result{}, fmt.Errorf("load %s: %w", path, err)
	}
	if asBackground {
		res = res.AsBackground()
	}

	other := spectrum.Background
	if kind == spectrum.Background {
		other = spectrum.Data
	}
	if res.Has(kind) {
		if !res.Has(other) {
			return importer.Result{}, fmt.Errorf("load %s: its %s spectrum is cleared when recording starts; use --load-background or --background",
				path, kind)
		}
		fmt.Fprintf(w, "%s %s: %s spectrum ignored, it is being recorded\n",
			color.YellowString("warning"), path, kind)
		res = res.Without(kind)
	}
	fmt.Fprintf(w, "loaded %s spectrum from %s (%.0f counts)\n",
		other, path, totalOfKind(res, other))
	return res, nil
}

func totalOfKind(r importer.Result, kind spectrum.Kind) float64 {
	if kind == spectrum.Background {
		return r.Background.Total()
	}
	return r.Data.Total()
}

func (a *app) writeSpectrumCSV(path string, snap session.Snapshot, kind spectrum.Kind) error {
	if kind == spectrum.Background {
		return a.writeHistogramCSV(path, snap.Background)
	}
	return a.writeHistogramCSV(path, snap.Data)
}

func printRecordSummary(w io.Writer, s session.Snapshot, rate session.RateSummary, elapsed time.Duration) error {
	table := tablewriter.NewWriter(w)
	table.Header([]string{"Session", "Recorded", "Elapsed", "Data", "Background", "Mean cps", "Std dev"})
	row := []string{
		s.SessionID,
		s.Kind.String(),
		elapsed.Truncate(time.Millisecond).String(),
		fmt.Sprintf("%.0f", s.TotalData),
		fmt.Sprintf("%.0f", s.TotalBackground),
		fmt.Sprintf("%.2f", rate.Mean),
		fmt.Sprintf("%.2f", rate.StdDev),
	}
	if err := table.Bulk([][]string{row}); err != nil {
		return err
	}
	return table.Render()
}
