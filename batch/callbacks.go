package batch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/moffa90/go-arimu/session"
)

// ReportKind says how a status line relates to the previous one.
type ReportKind int

const (
	// NewLine starts a new line
	NewLine ReportKind = iota

	// Append extends the last line
	Append

	// Overwrite replaces the last line
	Overwrite
)

func (k ReportKind) String() string {
	switch k {
	case NewLine:
		return "NewLine"
	case Append:
		return "Append"
	case Overwrite:
		return "Overwrite"
	default:
		return fmt.Sprintf("ReportKind(%d)", int(k))
	}
}

// Report is one status line for display.
type Report struct {
	Port  string
	State State
	Kind  ReportKind
	Text  string
}

// ReportCallback receives status lines. It is called from the goroutine
// running Sync or Maintain and should return quickly.
//
// Example:
//
//	var lines []string
//	syncer := batch.New(batch.WithReportCallback(func(r batch.Report) {
//	    switch r.Kind {
//	    case batch.NewLine:
//	        lines = append(lines, r.Text)
//	    case batch.Append:
//	        lines[len(lines)-1] += r.Text
//	    case batch.Overwrite:
//	        lines[len(lines)-1] = r.Text
//	    }
//	}))
type ReportCallback func(Report)

// Progress describes one download in flight.
type Progress struct {
	Port string
	File string

	// Value is the unit's 0-255 progress byte
	Value byte

	// Received is the number of bytes received so far
	Received int

	// Total is the size announced by the unit, or -1 before the header
	Total int64

	// Elapsed is the time since the download started
	Elapsed time.Duration
}

// ProgressCallback is called for every content chunk of a download.
type ProgressCallback func(Progress)

// Logger is the logging interface shared with packages session and transport.
type Logger = session.Logger

// Transfer is the outcome of one file in the plan.
type Transfer struct {
	File     string
	Subject  string
	Bytes    int64
	Obtained bool

	// Reason is why the file was not obtained
	Reason string
}

// Recorder journals synchronizer activity. Errors returned by a Recorder
// are logged and never stop a run.
type Recorder interface {
	BeginRun(ctx context.Context, port, device string) (runID string, err error)
	RecordTransfer(ctx context.Context, runID string, t Transfer) error
	RecordDeletion(ctx context.Context, runID, file string, deleted bool) error
	RecordTimeSync(ctx context.Context, port, device string, sent, echoed time.Time) error
	EndRun(ctx context.Context, runID string, runErr error) error
}

// ProgressBar renders the unit's 0-255 progress byte as a text bar.
type ProgressBar struct {
	Divisions int
	Max       int
}

// DefaultProgressBar is 40 divisions over the 0-255 progress range.
var DefaultProgressBar = ProgressBar{Divisions: 40, Max: 255}

// Render returns the bar for value followed by a percentage.
func (b ProgressBar) Render(value int) string {
	if value < 0 {
		value = 0
	}
	if value > b.Max {
		value = b.Max
	}

	filled := value * b.Divisions / b.Max
	percent := 100 * float64(value) / float64(b.Max)

	return strings.Repeat("█", filled) + strings.Repeat(" ", b.Divisions-filled) + fmt.Sprintf(" %5.1f%%", percent)
}
