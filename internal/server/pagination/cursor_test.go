package pagination

import (
	"encoding/base64"
	"testing"
	"time"
)

func TestCursorRoundTrip(t *testing.T) {
	in := Cursor{CollectedAt: time.Date(2025, 3, 10, 9, 30, 0, 123456000, time.FixedZone("JST", 9*3600)), ID: 42}
	out, err := Decode(in.Encode())
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !out.CollectedAt.Equal(in.CollectedAt) || out.CollectedAt.Location() != time.UTC || out.ID != 42 {
		t.Errorf("round trip = %+v", out)
	}
}

func TestDecodeInvalid(t *testing.T) {
	enc := func(s string) string { return base64.RawURLEncoding.EncodeToString([]byte(s)) }
	for _, s := range []string{
		"!!!",
		enc("no-separator"),
		enc("yesterday,1"),
		enc("2025-03-10T09:30:00Z,abc"),
		enc("2025-03-10T09:30:00Z,-1"),
	} {
		if _, err := Decode(s); err == nil {
			t.Errorf("Decode(%q) succeeded", s)
		}
	}
}
