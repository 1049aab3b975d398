// Package wavdump writes captured utterances to disk as 16-bit WAV files for
// offline wake-word and VAD tuning. Writes happen on a dedicated goroutine so
// the capture path never touches the filesystem.
package wavdump

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// Dump is one sealed utterance queued for writing.
type Dump struct {
	// ID names the output file (an utterance identifier).
	ID string

	// Samples is the mono PCM content.
	Samples []int16

	// SampleRate in Hz.
	SampleRate int
}

// Recorder asynchronously persists dumps under a directory. Submit never
// blocks; dumps are discarded when the writer falls behind.
type Recorder struct {
	dir   string
	queue chan Dump

	closeOnce sync.Once
	stop      chan struct{}
	done      chan struct{}
}

// NewRecorder creates the target directory if needed and starts the writer
// goroutine.
func NewRecorder(dir string) (*Recorder, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("wavdump: create %q: %w", dir, err)
	}
	r := &Recorder{
		dir:   dir,
		queue: make(chan Dump, 4),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	go r.writeLoop()
	return r, nil
}

// Submit queues d for writing. Returns false if the queue is full or the
// recorder is closed; the dump is dropped in either case.
func (r *Recorder) Submit(d Dump) bool {
	select {
	case <-r.stop:
		return false
	default:
	}
	select {
	case r.queue <- d:
		return true
	default:
		return false
	}
}

// Close stops the writer after draining queued dumps. Safe to call more than
// once.
func (r *Recorder) Close() error {
	r.closeOnce.Do(func() {
		close(r.stop)
		<-r.done
	})
	return nil
}

func (r *Recorder) writeLoop() {
	defer close(r.done)
	for {
		select {
		case d := <-r.queue:
			if err := r.write(d); err != nil {
				slog.Warn("utterance dump failed", "id", d.ID, "error", err)
			}
		case <-r.stop:
			// Drain whatever was queued before the stop.
			for {
				select {
				case d := <-r.queue:
					if err := r.write(d); err != nil {
						slog.Warn("utterance dump failed", "id", d.ID, "error", err)
					}
				default:
					return
				}
			}
		}
	}
}

func (r *Recorder) write(d Dump) error {
	name := fmt.Sprintf("%s-%s.wav", time.Now().UTC().Format("20060102T150405"), d.ID)
	f, err := os.Create(filepath.Join(r.dir, name))
	if err != nil {
		return err
	}
	defer f.Close()

	enc := wav.NewEncoder(f, d.SampleRate, 16, 1, 1)
	data := make([]int, len(d.Samples))
	for i, s := range d.Samples {
		data[i] = int(s)
	}
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: d.SampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		_ = enc.Close()
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}
	slog.Debug("utterance dumped", "id", d.ID, "file", name, "samples", len(d.Samples))
	return nil
}
