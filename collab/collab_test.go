package collab_test

import (
	"testing"

	"github.com/alimaamoun/DM-Agent/collab"
)

func TestParseSize(t *testing.T) {
	tests := []struct {
		in   string
		w, h int
		ok   bool
	}{
		{"1024x1024", 1024, 1024, true},
		{" 1080X1350 ", 1080, 1350, true},
		{"1024", 0, 0, false},
		{"0x10", 0, 0, false},
		{"axb", 0, 0, false},
	}
	for _, tt := range tests {
		w, h, err := collab.ParseSize(tt.in)
		if tt.ok != (err == nil) || w != tt.w || h != tt.h {
			t.Errorf("ParseSize(%q) = %d, %d, %v", tt.in, w, h, err)
		}
	}
}
