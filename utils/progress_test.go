package utils

import "testing"

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		bytes    int64
		expected string
	}{
		{0, "0 B"},
		{512, "512 B"},
		{1024, "1.0 KiB"},
		{1536, "1.5 KiB"},
		{1048576, "1.0 MiB"},
		{1073741824, "1.0 GiB"},
		{5368709120, "5.0 GiB"},
	}

	for _, tt := range tests {
		if got := FormatBytes(tt.bytes); got != tt.expected {
			t.Errorf("FormatBytes(%d) = %q, want %q", tt.bytes, got, tt.expected)
		}
	}
}

func TestPBProgressReporterQuiet(t *testing.T) {
	r := NewPBProgressReporter(1000, "file.bin", true)
	if r.bar != nil {
		t.Error("expected no progress bar to be created in quiet mode")
	}
	// Update/Complete must be safe no-ops without a bar.
	r.Update(500, 1000, 1024)
	r.Complete()
}

func TestPBProgressReporterNonQuiet(t *testing.T) {
	r := NewPBProgressReporter(1000, "file.bin", false)
	if r.bar == nil {
		t.Fatal("expected a progress bar to be created in non-quiet mode")
	}
	r.Update(250, 1000, 2048)
	r.Update(1000, 1000, 2048)
	r.Complete()
}
