package batch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/moffa90/go-arimu/datafile"
	"github.com/moffa90/go-arimu/protocol"
	"github.com/moffa90/go-arimu/session"
)

// DeviceResult is the outcome of one port in a batch.
type DeviceResult struct {
	Port   string
	Device string

	// Got and NotGot partition the files planned for download
	Got    []string
	NotGot []string

	// Cached lists eligible files that were already present locally
	Cached []string

	Deleted    []string
	NotDeleted []string

	// Err is the failure that ended the device early, if any
	Err error
}

// Connected reports whether the unit on this port identified itself.
func (r *DeviceResult) Connected() bool {
	return r.Device != ""
}

// Result is the outcome of a batch.
type Result struct {
	Devices []DeviceResult
}

// Connected returns the ports whose unit identified itself, in queue order.
func (r *Result) Connected() []string {
	var ports []string
	for i := range r.Devices {
		if r.Devices[i].Connected() {
			ports = append(ports, r.Devices[i].Port)
		}
	}
	return ports
}

// Synchronizer downloads new recordings from a queue of units, deletes
// expired ones and keeps the unit clocks set.
type Synchronizer struct {
	config Config
}

// New creates a Synchronizer with the given options.
//
// Example:
//
//	syncer := batch.New(
//	    batch.WithOutDir("subjectdata"),
//	    batch.WithRetention(10*24*time.Hour),
//	    batch.WithReportCallback(printReport),
//	)
//	result, err := syncer.Run(ctx, []string{"/dev/ttyACM0", "/dev/ttyACM1"})
func New(opts ...Option) *Synchronizer {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Synchronizer{config: cfg}
}

// Run synchronizes every port, then keeps the clocks of the connected units
// set until ctx is cancelled.
func (s *Synchronizer) Run(ctx context.Context, ports []string) (*Result, error) {
	result, err := s.Sync(ctx, ports)
	if err != nil {
		return result, err
	}
	return result, s.Maintain(ctx, result.Connected())
}

// Sync processes ports strictly one after another. Per-file and per-device
// failures are recorded in the result; the returned error is non-nil only
// when ctx ends the batch early.
func (s *Synchronizer) Sync(ctx context.Context, ports []string) (*Result, error) {
	result := &Result{Devices: make([]DeviceResult, 0, len(ports))}

	for i, port := range ports {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		s.logInfo("starting device", "port", port, "index", i+1, "of", len(ports))
		d := &deviceRun{s: s, port: port, result: DeviceResult{Port: port}}
		d.run(ctx)
		result.Devices = append(result.Devices, d.result)
	}

	s.report(Report{State: AllDone, Kind: NewLine, Text: fmt.Sprintf("> All %d device(s) done.", len(ports))})
	return result, ctx.Err()
}

// session opens port and wraps it in a Session.
func (s *Synchronizer) session(port string) (*session.Session, error) {
	rw, err := s.config.Opener(port)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", port, err)
	}

	opts := append([]session.Option{session.WithLogger(s.config.Logger)}, s.config.SessionOptions...)
	return session.New(port, rw, opts...), nil
}

// setTime sets the unit clock and journals the echo.
func (s *Synchronizer) setTime(ctx context.Context, sess *session.Session, device string) (*protocol.TimeReport, error) {
	sent := s.config.Now()
	report, err := sess.SetTime(ctx, sent)
	if report != nil && s.config.Recorder != nil {
		if rerr := s.config.Recorder.RecordTimeSync(ctx, sess.Port(), device, sent, report.DeviceTime); rerr != nil {
			s.logError("failed to journal time sync", "port", sess.Port(), "error", rerr)
		}
	}
	return report, err
}

// deviceRun is the state owned by one device's pass through the sequence.
type deviceRun struct {
	s      *Synchronizer
	port   string
	state  State
	sess   *session.Session
	runID  string
	plan   TransferPlan
	names  []string
	result DeviceResult
}

func (d *deviceRun) run(ctx context.Context) {
	d.enter(WaitingToStart, NewLine, fmt.Sprintf("> Device on %s", d.port))

	for d.state != AllDone {
		var next State
		switch d.state {
		case WaitingToStart:
			next = ConnectToDevice
		case ConnectToDevice:
			next = d.connect(ctx)
		case ListingFiles:
			next = d.list(ctx)
		case ReadingFilesStart:
			next = d.startReading()
		case ReadingFilesLogging:
			next = d.download(ctx)
		case DeletingFiles:
			next = d.deleteExpired(ctx)
		}

		if err := ctx.Err(); err != nil {
			if d.result.Err == nil {
				d.fail(err)
			}
			next = AllDone
		}
		d.transition(next)
	}

	d.finish()
}

func (d *deviceRun) transition(next State) {
	if next == d.state {
		return
	}
	d.state = next
	switch next {
	case ConnectToDevice:
		d.enter(next, NewLine, fmt.Sprintf("> Connecting to %s ... ", d.port))
	case ListingFiles:
		d.enter(next, NewLine, "> Getting list of files.")
	case ReadingFilesStart:
		d.enter(next, NewLine, "> Preparing transfer plan ... ")
	case ReadingFilesLogging:
		d.enter(next, NewLine, fmt.Sprintf("> Reading %d file(s).", len(d.plan.Downloads())))
	case DeletingFiles:
		d.enter(next, NewLine, "> Deleting expired files ... ")
	case AllDone:
		d.enter(next, NewLine, fmt.Sprintf("> Done with %s.", d.port))
	}
}

func (d *deviceRun) enter(state State, kind ReportKind, text string) {
	d.state = state
	d.s.report(Report{Port: d.port, State: state, Kind: kind, Text: text})
}

func (d *deviceRun) say(kind ReportKind, text string) {
	d.s.report(Report{Port: d.port, State: d.state, Kind: kind, Text: text})
}

func (d *deviceRun) fail(err error) {
	if d.result.Err == nil {
		d.result.Err = err
	}
	d.s.logError("device failed", "port", d.port, "state", d.state.String(), "error", err)
	d.say(Append, fmt.Sprintf("failed: %v", err))
}

func (d *deviceRun) connect(ctx context.Context) State {
	sess, err := d.s.session(d.port)
	if err != nil {
		d.fail(err)
		return AllDone
	}
	d.sess = sess

	id, err := sess.Connect(ctx)
	if err != nil {
		d.fail(err)
		return AllDone
	}
	d.result.Device = id.Name
	d.say(Append, fmt.Sprintf("connected to %s.", id.Name))
	if id.Errors != 0 {
		d.say(NewLine, fmt.Sprintf("  device reports: %s", id.Errors))
	}

	if rec := d.s.config.Recorder; rec != nil {
		runID, err := rec.BeginRun(ctx, d.port, id.Name)
		if err != nil {
			d.s.logError("failed to journal run", "port", d.port, "error", err)
		}
		d.runID = runID
	}

	report, err := d.s.setTime(ctx, sess, id.Name)
	switch {
	case err == nil:
		d.say(NewLine, fmt.Sprintf("> Device time set to %s.", report.DeviceTime.Format("2006-01-02 15:04:05.00")))
	case ctx.Err() != nil:
		return AllDone
	default:
		d.s.logError("failed to set device time", "port", d.port, "error", err)
		d.say(NewLine, fmt.Sprintf("> Device time not set: %v", err))
	}

	return ListingFiles
}

func (d *deviceRun) list(ctx context.Context) State {
	names, err := d.sess.ListAllFiles(ctx)
	if err != nil {
		d.fail(err)
		return AllDone
	}
	d.names = names
	d.say(Overwrite, fmt.Sprintf("> Getting list of files. [%3d]", len(names)))
	return ReadingFilesStart
}

func (d *deviceRun) startReading() State {
	outdir := d.s.config.OutDir

	plan, err := BuildPlan(d.names, outdir)
	if err == nil {
		err = plan.prepareDirs(outdir)
	}
	if err != nil {
		d.fail(err)
		return AllDone
	}
	d.plan = plan

	for _, f := range plan.Cached() {
		d.result.Cached = append(d.result.Cached, f.Raw)
	}
	downloads := len(plan.Downloads())
	d.say(Append, fmt.Sprintf("%d eligible, %d new.", len(plan), downloads))

	if downloads == 0 {
		return DeletingFiles
	}
	return ReadingFilesLogging
}

func (d *deviceRun) download(ctx context.Context) State {
	downloads := d.plan.Downloads()
	for i, f := range downloads {
		if ctx.Err() != nil {
			break
		}

		d.say(NewLine, fmt.Sprintf("  [%d/%d] %s", i+1, len(downloads), f.Raw))
		n, err := d.fetch(ctx, f)

		t := Transfer{File: f.Raw, Subject: f.Subject, Bytes: n, Obtained: err == nil}
		if err != nil {
			t.Reason = err.Error()
			d.result.NotGot = append(d.result.NotGot, f.Raw)
			d.s.logError("file not obtained", "port", d.port, "file", f.Raw, "error", err)
			d.say(Overwrite, fmt.Sprintf("  [%d/%d] %s not obtained: %v", i+1, len(downloads), f.Raw, err))
		} else {
			d.result.Got = append(d.result.Got, f.Raw)
			d.s.logInfo("file obtained", "port", d.port, "file", f.Raw, "bytes", n)
			d.say(Overwrite, fmt.Sprintf("  [%d/%d] %s (%d bytes)", i+1, len(downloads), f.Raw, n))
		}
		d.record(ctx, t)
	}
	return DeletingFiles
}

func (d *deviceRun) record(ctx context.Context, t Transfer) {
	if rec := d.s.config.Recorder; rec != nil && d.runID != "" {
		if err := rec.RecordTransfer(ctx, d.runID, t); err != nil {
			d.s.logError("failed to journal transfer", "port", d.port, "error", err)
		}
	}
}

// fetch downloads one file under the watchdog and writes it only when the
// transfer completed.
func (d *deviceRun) fetch(ctx context.Context, f *datafile.Name) (int64, error) {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	wd := newWatchdog(d.s.config.WatchdogTick, d.s.config.WatchdogThreshold)
	go wd.run(ctx, cancel)

	start := time.Now()
	r, err := d.sess.GetFileData(ctx, f.Raw)
	if err != nil {
		return 0, stallCause(ctx, err)
	}
	defer r.Close()

	var buf bytes.Buffer
	total := int64(-1)
	for {
		chunk, err := r.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return int64(buf.Len()), stallCause(ctx, err)
		}

		switch chunk.Flag {
		case protocol.FlagFileHeader:
			total = int64(chunk.TotalSize)
			buf.Grow(int(chunk.TotalSize))
			wd.kick()
		case protocol.FlagFileContent:
			if len(chunk.Data) > 0 || chunk.Final() {
				wd.kick()
			}
			buf.Write(chunk.Data)
			d.progress(f.Raw, chunk.Progress, buf.Len(), total, time.Since(start))
		}
	}

	received := int64(buf.Len())
	if total >= 0 && received != total {
		return received, &SizeMismatchError{File: f.Raw, Expected: total, Actual: received}
	}

	if err := writeFile(f.LocalPath(d.s.config.OutDir), buf.Bytes()); err != nil {
		return received, err
	}
	return received, nil
}

func (d *deviceRun) progress(file string, value byte, received int, total int64, elapsed time.Duration) {
	if cb := d.s.config.ProgressCallback; cb != nil {
		cb(Progress{Port: d.port, File: file, Value: value, Received: received, Total: total, Elapsed: elapsed})
	}
	d.say(Overwrite, "  "+DefaultProgressBar.Render(int(value)))
}

// stallCause reports ErrStalled in place of the cancellation it caused.
func stallCause(ctx context.Context, err error) error {
	if cause := context.Cause(ctx); errors.Is(cause, ErrStalled) {
		return ErrStalled
	}
	return err
}

// writeFile writes data to a temporary file beside path and renames it into
// place, so path never holds a partial recording.
func writeFile(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.part")
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}

func (d *deviceRun) deleteExpired(ctx context.Context) State {
	if d.s.config.DoNotDelete {
		d.say(Append, "skipped.")
		return AllDone
	}

	now := d.s.config.Now()
	var expired []*datafile.Name
	for _, f := range d.plan.Files() {
		if !f.OlderThan(now, d.s.config.Retention) {
			continue
		}
		cached, err := exists(f.LocalPath(d.s.config.OutDir))
		if err != nil || !cached {
			continue
		}
		expired = append(expired, f)
	}

	if len(expired) == 0 {
		d.say(Append, "none.")
		return AllDone
	}

	for i, f := range expired {
		if ctx.Err() != nil {
			break
		}

		res, err := d.sess.DeleteFile(ctx, f.Raw)
		deleted := err == nil && res == session.Deleted
		if deleted {
			d.result.Deleted = append(d.result.Deleted, f.Raw)
		} else {
			d.result.NotDeleted = append(d.result.NotDeleted, f.Raw)
			if err != nil {
				d.s.logError("delete failed", "port", d.port, "file", f.Raw, "error", err)
			}
		}
		d.say(Overwrite, fmt.Sprintf("> Deleting expired files [%d/%d]", i+1, len(expired)))

		if rec := d.s.config.Recorder; rec != nil && d.runID != "" {
			if err := rec.RecordDeletion(ctx, d.runID, f.Raw, deleted); err != nil {
				d.s.logError("failed to journal deletion", "port", d.port, "error", err)
			}
		}
	}
	return AllDone
}

func (d *deviceRun) finish() {
	if d.sess != nil {
		if err := d.sess.Close(); err != nil {
			d.s.logDebug("close failed", "port", d.port, "error", err)
		}
	}

	if rec := d.s.config.Recorder; rec != nil && d.runID != "" {
		if err := rec.EndRun(context.Background(), d.runID, d.result.Err); err != nil {
			d.s.logError("failed to journal run end", "port", d.port, "error", err)
		}
	}

	d.say(Append, fmt.Sprintf("got %d, not got %d, deleted %d.",
		len(d.result.Got), len(d.result.NotGot), len(d.result.Deleted)))
}

func (s *Synchronizer) report(r Report) {
	if s.config.ReportCallback != nil {
		s.config.ReportCallback(r)
	}
}

func (s *Synchronizer) logDebug(msg string, kv ...interface{}) {
	if s.config.Logger != nil {
		s.config.Logger.Debug(msg, kv...)
	}
}

func (s *Synchronizer) logInfo(msg string, kv ...interface{}) {
	if s.config.Logger != nil {
		s.config.Logger.Info(msg, kv...)
	}
}

func (s *Synchronizer) logError(msg string, kv ...interface{}) {
	if s.config.Logger != nil {
		s.config.Logger.Error(msg, kv...)
	}
}
