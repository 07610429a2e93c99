package providera

import "testing"

func TestSignedDeltaString(t *testing.T) {
	tests := []struct {
		delta int
		want  string
	}{
		{5, "+5"},
		{0, "+0"},
		{-3, "-3"},
	}
	for _, tt := range tests {
		if got := signedDeltaString(tt.delta); got != tt.want {
			t.Errorf("signedDeltaString(%d) = %q, want %q", tt.delta, got, tt.want)
		}
	}
}
