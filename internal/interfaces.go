package internal

import "context"

// DownloadEngine drives a single URL task end to end (C8).
type DownloadEngine interface {
	Download(ctx context.Context, task *URLTask) (*DownloadSummary, error)
}

// RateLimiter controls one worker's egress bandwidth (C1).
type RateLimiter interface {
	Wait(ctx context.Context, n int) error
	SetRate(bytesPerSecond int64)
}

// ProgressReporter is the pluggable external collaborator of §6, invoked at
// a bounded rate with the aggregator's latest statistics.
type ProgressReporter interface {
	Update(bytesDownloaded, totalBytes int64, speed float64)
	Complete()
}

// Logger is the leveled, structured logger interface of §6: no ordering
// guarantees across tasks.
type Logger interface {
	Trace(format string, args ...interface{})
	Debug(format string, args ...interface{})
	Info(format string, args ...interface{})
	Warn(format string, args ...interface{})
	Error(format string, args ...interface{})
}
