package utils

import (
	"fmt"
	"time"

	"github.com/cheggaaa/pb/v3"

	"swiftget/internal"
)

// PBProgressReporter adapts github.com/cheggaaa/pb/v3 to the
// internal.ProgressReporter interface of §6, the default reporter wired by
// the CLI (grounded on the teacher's ProgressTracker, split apart from the
// aggregator, which reaches it only through that interface).
type PBProgressReporter struct {
	bar       *pb.ProgressBar
	quiet     bool
	startTime time.Time
	label     string
}

// NewPBProgressReporter creates a reporter for a download of the given
// total size. A quiet reporter renders nothing.
func NewPBProgressReporter(totalBytes int64, label string, quiet bool) *PBProgressReporter {
	r := &PBProgressReporter{quiet: quiet, startTime: time.Now(), label: label}
	if !quiet {
		prefix := "Downloading: "
		if label != "" {
			prefix = fmt.Sprintf("%s: ", label)
		}
		tmpl := `{{string . "prefix"}}{{counters . }} {{bar . }} {{percent . }} {{string . "speed"}} {{rtime . "ETA %s"}}`
		bar := pb.ProgressBarTemplate(tmpl).Start64(totalBytes)
		bar.Set(pb.Bytes, true)
		bar.Set(pb.SIBytesPrefix, true)
		bar.Set("prefix", prefix)
		r.bar = bar
	}
	return r
}

// Update implements internal.ProgressReporter. It is invoked at the
// aggregator's bounded reporter tick (default 100ms, §4.5).
func (r *PBProgressReporter) Update(bytesDownloaded, totalBytes int64, speed float64) {
	if r.bar == nil {
		return
	}
	r.bar.SetCurrent(bytesDownloaded)
	r.bar.Set("speed", fmt.Sprintf("%.2f MiB/s", speed/(1024*1024)))
}

// Complete implements internal.ProgressReporter, finishing the bar.
func (r *PBProgressReporter) Complete() {
	if r.bar != nil {
		r.bar.Finish()
	}
}

var _ internal.ProgressReporter = (*PBProgressReporter)(nil)

// FormatBytes renders a human-readable byte count, used by the CLI's final
// summary line.
func FormatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
