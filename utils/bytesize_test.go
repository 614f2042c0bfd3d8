package utils

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseByteSize(t *testing.T) {
	tests := []struct {
		name        string
		in          string
		want        int64
		expectError bool
	}{
		{"bare_integer", "1048576", 1048576, false},
		{"kilobytes_short", "5K", 5 * 1024, false},
		{"megabytes_short", "5M", 5 * 1024 * 1024, false},
		{"gigabytes_short", "2G", 2 * 1024 * 1024 * 1024, false},
		{"terabytes_short", "1T", 1024 * 1024 * 1024 * 1024, false},
		{"megabytes_long", "5MB", 5 * 1024 * 1024, false},
		{"fractional", "1.5M", int64(1.5 * 1024 * 1024), false},
		{"empty_means_zero", "", 0, false},
		{"unknown_suffix", "5X", 0, true},
		{"negative", "-5M", 0, true},
		{"garbage", "abc", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseByteSize(tt.in)
			if tt.expectError {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}
