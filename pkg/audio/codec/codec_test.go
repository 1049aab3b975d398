package codec

import (
	"testing"
)

func TestNameIsValid(t *testing.T) {
	if !PCM.IsValid() || !Opus.IsValid() {
		t.Error("pcm and opus must be valid")
	}
	if Name("mp3").IsValid() {
		t.Error("mp3 must not be valid")
	}
	if Name("").IsValid() {
		t.Error("empty name must not be valid")
	}
}

func TestNewEncoder(t *testing.T) {
	t.Run("pcm", func(t *testing.T) {
		enc, err := NewEncoder(PCM, 16000, 512)
		if err != nil {
			t.Fatal(err)
		}
		if enc.Name() != PCM {
			t.Errorf("name = %q, want pcm", enc.Name())
		}
	})

	t.Run("empty selects pcm", func(t *testing.T) {
		enc, err := NewEncoder("", 16000, 512)
		if err != nil {
			t.Fatal(err)
		}
		if enc.Name() != PCM {
			t.Errorf("name = %q, want pcm", enc.Name())
		}
	})

	t.Run("unknown", func(t *testing.T) {
		if _, err := NewEncoder("mp3", 16000, 512); err == nil {
			t.Error("want error for unknown codec")
		}
	})

	t.Run("opus rejects bad chunk", func(t *testing.T) {
		if _, err := NewEncoder(Opus, 16000, 512); err == nil {
			t.Error("want error: 512 samples at 16 kHz is 32 ms")
		}
	})
}

func TestPCMEncoder(t *testing.T) {
	enc := PCMEncoder{}
	data, err := enc.Encode([]int16{0x0102, -1})
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{0x02, 0x01, 0xff, 0xff}
	if len(data) != len(want) {
		t.Fatalf("length = %d, want %d", len(data), len(want))
	}
	for i := range want {
		if data[i] != want[i] {
			t.Errorf("byte %d = %#x, want %#x", i, data[i], want[i])
		}
	}
}

func TestValidOpusChunk(t *testing.T) {
	tests := []struct {
		sampleRate int
		chunkSize  int
		want       bool
	}{
		{16000, 320, true},  // 20 ms
		{16000, 160, true},  // 10 ms
		{16000, 960, true},  // 60 ms
		{16000, 40, true},   // 2.5 ms
		{16000, 512, false}, // 32 ms
		{48000, 960, true},  // 20 ms
		{16000, 0, false},
		{0, 320, false},
	}
	for _, tt := range tests {
		if got := ValidOpusChunk(tt.sampleRate, tt.chunkSize); got != tt.want {
			t.Errorf("ValidOpusChunk(%d, %d) = %v, want %v", tt.sampleRate, tt.chunkSize, got, tt.want)
		}
	}
}

func TestOpusEncoder(t *testing.T) {
	enc, err := NewOpusEncoder(16000, 320)
	if err != nil {
		t.Fatal(err)
	}
	if enc.Name() != Opus {
		t.Errorf("name = %q, want opus", enc.Name())
	}

	data, err := enc.Encode(make([]int16, 320))
	if err != nil {
		t.Fatal(err)
	}
	if len(data) == 0 {
		t.Error("encoded payload is empty")
	}

	if _, err := enc.Encode(make([]int16, 512)); err == nil {
		t.Error("want error for wrong input length")
	}
}
