package reader

import (
	"context"
	"fmt"
	"time"
)

type pendingProgress struct {
	seq      uint64
	id       string
	location string
	progress int
}

// SaveProgress records location and progress as the pending write and
// restarts the debounce timer. Only the latest pair is kept.
func (s *Session) SaveProgress(location string, progress int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Ready {
		return ErrNotReady
	}
	s.location = location
	s.progress = min(max(progress, 0), 100)
	s.scheduleLocked(location, progress)
	return nil
}

// Flush writes the pending pair now instead of waiting for the timer.
func (s *Session) Flush(ctx context.Context) error {
	s.mu.Lock()
	pending := s.takePendingLocked()
	s.mu.Unlock()
	return s.write(ctx, pending)
}

func (s *Session) scheduleLocked(location string, progress int) {
	s.seq++
	seq := s.seq
	s.pending = &pendingProgress{
		seq:      seq,
		id:       s.doc.ID,
		location: location,
		progress: min(max(progress, 0), 100),
	}

	if s.timer != nil && s.timer.Stop() {
		s.timers.Done()
	}
	s.timers.Add(1)
	s.timer = time.AfterFunc(s.delay, func() { s.fire(seq) })
}

// takePendingLocked clears the pending pair and cancels its timer.
func (s *Session) takePendingLocked() *pendingProgress {
	pending := s.pending
	s.pending = nil
	if s.timer != nil {
		if s.timer.Stop() {
			s.timers.Done()
		}
		s.timer = nil
	}
	return pending
}

// fire writes the pair scheduled as seq. A timer that expired while a newer
// pair was being scheduled finds a different seq and leaves it to its own
// timer.
func (s *Session) fire(seq uint64) {
	defer s.timers.Done()

	s.mu.Lock()
	pending := s.pending
	if pending == nil || pending.seq != seq {
		s.mu.Unlock()
		return
	}
	s.pending = nil
	s.timer = nil
	s.mu.Unlock()

	if err := s.write(context.Background(), pending); err != nil {
		s.logger.Warn("debounced progress write failed", "error", err)
	}
}

// write persists p unless a newer pair was already written.
func (s *Session) write(ctx context.Context, p *pendingProgress) error {
	if p == nil {
		return nil
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if p.seq <= s.written {
		return nil
	}

	at, err := s.docs.UpdateProgress(ctx, p.id, p.location, p.progress)
	if err != nil {
		s.logger.Error("save progress", "id", p.id, "error", err)
		return fmt.Errorf("save progress: %w", err)
	}
	s.written = p.seq
	s.logger.Debug("progress saved", "id", p.id, "location", p.location, "progress", p.progress)

	if s.observer != nil {
		s.observer(p.id, p.location, p.progress, at)
	}
	return nil
}
