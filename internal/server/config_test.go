package server

import "testing"

func TestParsePort_NoArgsUsesDefault(t *testing.T) {
	if got := ParsePort(nil, nil); got != DefaultPort {
		t.Fatalf("got %d, want %d", got, DefaultPort)
	}
}

func TestParsePort_FirstArgumentIsThePort(t *testing.T) {
	if got := ParsePort([]string{"9999"}, nil); got != 9999 {
		t.Fatalf("got %d, want 9999", got)
	}
}

func TestParsePort_InvalidFallsBackToDefault(t *testing.T) {
	if got := ParsePort([]string{"not-a-port"}, nil); got != DefaultPort {
		t.Fatalf("got %d, want %d", got, DefaultPort)
	}
}
