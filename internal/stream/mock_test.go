package stream

import (
	"context"
	"sync"
	"testing"
	"time"

	"gold-trading-insight/internal/domain/model"
)

type fakeProgressStore struct {
	mu  sync.Mutex
	rec model.JobRecord
}

func (s *fakeProgressStore) set(progress int, output string, status model.JobStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rec = model.JobRecord{Progress: progress, CurrentOutput: output, Status: status}
}

func (s *fakeProgressStore) Save(_ context.Context, _ string, rec model.JobRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rec = rec
	return nil
}

func (s *fakeProgressStore) Get(_ context.Context, _ string) (model.JobRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rec, nil
}

func (s *fakeProgressStore) UpdateProgress(_ context.Context, _ string, progress int, output string) error {
	s.set(progress, output, model.StatusForProgress(progress))
	return nil
}

// readFrame pops the next frame or fails the test after a grace period.
func readFrame(t *testing.T, frames <-chan Frame) Frame {
	t.Helper()
	select {
	case f, ok := <-frames:
		if !ok {
			t.Fatal("frame channel closed early")
		}
		return f
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a frame")
	}
	return Frame{}
}

// readUntilText drains frames until one carries exactly text.
func readUntilText(t *testing.T, frames <-chan Frame, text string) Frame {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case f, ok := <-frames:
			if !ok {
				t.Fatalf("channel closed before seeing %q", text)
			}
			if f.Text == text {
				return f
			}
		case <-deadline:
			t.Fatalf("timed out waiting for frame %q", text)
		}
	}
}
