package util

import "testing"

func TestSlugify(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"My Show", "my_show"},
		{"  Ep. 12: AI & You  ", "ep__12__ai___you"},
		{"", ""},
		{"ABC123", "abc123"},
		{"Café Talk", "caf__talk"},
	}
	for _, tt := range tests {
		if got := Slugify(tt.in); got != tt.want {
			t.Fatalf("Slugify(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestPreviewKeepsRuneBoundary(t *testing.T) {
	if got := Preview("aé", 2); got != "a" {
		t.Fatalf("expected cut before multibyte rune, got %q", got)
	}
}
