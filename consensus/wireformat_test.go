package consensus

import "testing"

func TestIsPoWBlock(t *testing.T) {
	tests := []struct {
		raw  string
		want bool
	}{
		{"PoW:22:12345:100.5", true},
		{"PoW", true},
		{"sawtooth.consensus.devmode", false},
		{"", false},
		{":22:12345:100.5", false},
	}
	for _, tt := range tests {
		if got := IsPoWBlock([]byte(tt.raw)); got != tt.want {
			t.Errorf("IsPoWBlock(%q) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}

func TestSerializeThenParse_RoundTrip(t *testing.T) {
	nonce := EncodeNonce(987654321)
	raw := SerializeFields(17, nonce, 1234.5)

	fields, err := ParseFields(raw)
	if err != nil {
		t.Fatalf("ParseFields(%q): %v", raw, err)
	}
	if fields.Difficulty != 17 {
		t.Errorf("Difficulty = %d, want 17", fields.Difficulty)
	}
	if string(fields.NonceASCII) != string(nonce) {
		t.Errorf("NonceASCII = %q, want %q", fields.NonceASCII, nonce)
	}
	if fields.Time != 1234.5 {
		t.Errorf("Time = %v, want 1234.5", fields.Time)
	}
}

func TestParseFields_TooFewSegments(t *testing.T) {
	if _, err := ParseFields([]byte("PoW:22:12345")); err == nil {
		t.Fatal("ParseFields with 3 segments: want error, got nil")
	}
}

func TestParseFields_WrongTag(t *testing.T) {
	if _, err := ParseFields([]byte("DevMode:22:12345:100.5")); err == nil {
		t.Fatal("ParseFields with wrong tag: want error, got nil")
	}
}

func TestParseFields_MalformedDifficulty(t *testing.T) {
	if _, err := ParseFields([]byte("PoW:not-a-number:12345:100.5")); err == nil {
		t.Fatal("ParseFields with non-numeric difficulty: want error, got nil")
	}
}

func TestParseFields_MalformedTime(t *testing.T) {
	if _, err := ParseFields([]byte("PoW:22:12345:not-a-time")); err == nil {
		t.Fatal("ParseFields with non-numeric time: want error, got nil")
	}
}

func TestParseFields_DifficultyOverflow(t *testing.T) {
	// Difficulty is stored as uint8 on the wire; 256 overflows it.
	if _, err := ParseFields([]byte("PoW:256:12345:100.5")); err == nil {
		t.Fatal("ParseFields with difficulty=256: want error, got nil")
	}
}
