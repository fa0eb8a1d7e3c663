package util

import (
	"reflect"
	"testing"
)

func TestSafeTruncate(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		maxLen int
		want   string
	}{
		{"longer than max", "very-long-token-abc123", 8, "very-lon"},
		{"shorter than max", "short", 10, "short"},
		{"exact", "exact", 5, "exact"},
		{"empty", "", 5, ""},
		{"zero", "abc", 0, ""},
		{"negative", "abc", -1, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SafeTruncate(tt.input, tt.maxLen); got != tt.want {
				t.Errorf("SafeTruncate(%q, %d) = %q, want %q", tt.input, tt.maxLen, got, tt.want)
			}
		})
	}
}

func TestSplitScope(t *testing.T) {
	tests := []struct {
		scope string
		want  []string
	}{
		{"openid profile", []string{"openid", "profile"}},
		{"  openid   profile  ", []string{"openid", "profile"}},
		{"openid openid profile", []string{"openid", "profile"}},
		{"", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.scope, func(t *testing.T) {
			if got := SplitScope(tt.scope); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("SplitScope(%q) = %v, want %v", tt.scope, got, tt.want)
			}
		})
	}
}

func TestNormalizeScope(t *testing.T) {
	if got := NormalizeScope(" profile  openid profile "); got != "profile openid" {
		t.Errorf("NormalizeScope() = %q, want %q", got, "profile openid")
	}
}

func TestHasScope(t *testing.T) {
	tests := []struct {
		scope string
		want  string
		has   bool
	}{
		{"openid profile", "openid", true},
		{"openid profile", "profile", true},
		{"openidx profile", "openid", false},
		{"", "openid", false},
	}

	for _, tt := range tests {
		if got := HasScope(tt.scope, tt.want); got != tt.has {
			t.Errorf("HasScope(%q, %q) = %v, want %v", tt.scope, tt.want, got, tt.has)
		}
	}
}
