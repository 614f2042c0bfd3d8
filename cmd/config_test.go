package cmd

import "testing"

func TestParseSetArg(t *testing.T) {
	tests := []struct {
		name        string
		raw         string
		wantKey     string
		wantValue   string
		expectError bool
	}{
		{"simple", "default-connections=8", "default-connections", "8", false},
		{"value_with_equals", "default-user-agent=swiftget/1.0=beta", "default-user-agent", "swiftget/1.0=beta", false},
		{"no_equals", "default-connections", "", "", true},
		{"empty_key", "=8", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, value, err := parseSetArg(tt.raw)
			if tt.expectError {
				if err == nil {
					t.Fatalf("expected an error for %q", tt.raw)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error for %q: %v", tt.raw, err)
			}
			if key != tt.wantKey || value != tt.wantValue {
				t.Errorf("parseSetArg(%q) = (%q, %q), want (%q, %q)", tt.raw, key, value, tt.wantKey, tt.wantValue)
			}
		})
	}
}

func TestCountTrue(t *testing.T) {
	tests := []struct {
		name string
		bs   []bool
		want int
	}{
		{"none", []bool{false, false, false}, 0},
		{"one", []bool{true, false, false}, 1},
		{"all", []bool{true, true, true}, 3},
		{"empty", nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := countTrue(tt.bs...); got != tt.want {
				t.Errorf("countTrue(%v) = %d, want %d", tt.bs, got, tt.want)
			}
		})
	}
}
