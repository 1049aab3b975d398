package energy

import (
	"testing"

	"github.com/MrWong99/sonaris/pkg/audio"
)

func frame(amplitude int16) audio.Frame {
	samples := make([]int16, 64)
	for i := range samples {
		if i%2 == 0 {
			samples[i] = amplitude
		} else {
			samples[i] = -amplitude
		}
	}
	return audio.Frame{Samples: samples, SampleRate: 16000, Channels: 1}
}

func TestScore_RampsWithSustainedEnergy(t *testing.T) {
	d := New(WithWindow(4), WithRMSThreshold(500))

	loud := frame(1000)
	quiet := frame(10)

	steps := []struct {
		frame audio.Frame
		want  float64
	}{
		{loud, 0.25},
		{loud, 0.5},
		{loud, 0.75},
		{loud, 1.0},
		{quiet, 0.75}, // oldest loud frame rotates out
	}
	for i, s := range steps {
		got, err := d.Score(s.frame)
		if err != nil {
			t.Fatal(err)
		}
		if got != s.want {
			t.Errorf("step %d: score = %v, want %v", i, got, s.want)
		}
	}
}

func TestScore_QuietStaysZero(t *testing.T) {
	d := New(WithWindow(4), WithRMSThreshold(500))
	for i := 0; i < 8; i++ {
		got, err := d.Score(frame(10))
		if err != nil {
			t.Fatal(err)
		}
		if got != 0 {
			t.Fatalf("score = %v on quiet input, want 0", got)
		}
	}
}

func TestReset_ClearsWindow(t *testing.T) {
	d := New(WithWindow(4), WithRMSThreshold(500))
	for i := 0; i < 4; i++ {
		if _, err := d.Score(frame(1000)); err != nil {
			t.Fatal(err)
		}
	}
	d.Reset()
	got, err := d.Score(frame(10))
	if err != nil {
		t.Fatal(err)
	}
	if got != 0 {
		t.Errorf("score after Reset = %v, want 0", got)
	}
}
