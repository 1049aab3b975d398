package wavdump

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-audio/wav"
)

func TestRecorder_WritesDump(t *testing.T) {
	dir := t.TempDir()
	r, err := NewRecorder(dir)
	if err != nil {
		t.Fatalf("NewRecorder failed: %v", err)
	}

	samples := make([]int16, 1600)
	for i := range samples {
		samples[i] = int16(i % 100)
	}
	if !r.Submit(Dump{ID: "utt-1", Samples: samples, SampleRate: 16000}) {
		t.Fatal("Submit returned false")
	}

	// Close drains the queue before returning.
	if err := r.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 dump file, got %d", len(entries))
	}
	name := entries[0].Name()
	if !strings.HasSuffix(name, "-utt-1.wav") {
		t.Errorf("file name %q does not carry the utterance id", name)
	}

	f, err := os.Open(filepath.Join(dir, name))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		t.Fatalf("decode wav: %v", err)
	}
	if got := int(dec.SampleRate); got != 16000 {
		t.Errorf("sample rate = %d, want 16000", got)
	}
	if got := int(dec.NumChans); got != 1 {
		t.Errorf("channels = %d, want 1", got)
	}
	if len(buf.Data) != len(samples) {
		t.Fatalf("samples = %d, want %d", len(buf.Data), len(samples))
	}
	for i := 0; i < 10; i++ {
		if buf.Data[i] != int(samples[i]) {
			t.Errorf("sample %d = %d, want %d", i, buf.Data[i], samples[i])
		}
	}
}

func TestRecorder_SubmitAfterCloseFails(t *testing.T) {
	r, err := NewRecorder(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Close(); err != nil {
		t.Fatal(err)
	}
	if r.Submit(Dump{ID: "late", SampleRate: 16000}) {
		t.Error("Submit must fail after Close")
	}
	// Close is idempotent.
	if err := r.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestRecorder_CreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "dumps")
	r, err := NewRecorder(dir)
	if err != nil {
		t.Fatalf("NewRecorder failed: %v", err)
	}
	defer r.Close()

	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		t.Errorf("directory %q was not created: %v", dir, err)
	}
}
