// Package breaker implements a sliding-window circuit breaker that throttles
// hook admissions to a fixed frequency. State persists across processes in a
// small JSON file so overlapping hook invocations share one window.
package breaker

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thebtf/recall/internal/storage"
)

const (
	// Threshold is the maximum hook admissions per window.
	Threshold = 5

	// Window is the sliding time window.
	Window = 60 * time.Second
)

// Decision is the outcome of an admission check.
type Decision struct {
	Reason      string
	WaitSeconds int
	RecentCount int
	Allowed     bool
}

// persisted mirrors the on-disk state: unix-second admission timestamps.
type persisted struct {
	Timestamps []int64 `json:"timestamps"`
}

// Breaker throttles admissions using the state file at Path.
type Breaker struct {
	now  func() time.Time
	Path string
}

// New returns a breaker backed by the given state file.
func New(path string) *Breaker {
	return &Breaker{Path: path, now: time.Now}
}

// Admit checks whether another hook action may proceed, recording the
// admission when allowed. A corrupted state file is treated as empty; the
// breaker is safety-neutral and resets rather than failing.
func (b *Breaker) Admit() Decision {
	state := b.load()
	now := b.now().Unix()

	recent := make([]int64, 0, len(state.Timestamps))
	oldest := int64(0)
	for _, ts := range state.Timestamps {
		if now-ts < int64(Window.Seconds()) {
			recent = append(recent, ts)
			if oldest == 0 || ts < oldest {
				oldest = ts
			}
		}
	}

	if len(recent) >= Threshold {
		wait := int(int64(Window.Seconds()) - (now - oldest))
		return Decision{
			Allowed:     false,
			Reason:      fmt.Sprintf("Too many hooks (%d in %ds)", len(recent), int(Window.Seconds())),
			WaitSeconds: wait,
			RecentCount: len(recent),
		}
	}

	recent = append(recent, now)
	if err := storage.SaveJSON(b.Path, persisted{Timestamps: recent}); err != nil {
		log.Warn().Err(err).Msg("Failed to persist circuit breaker state")
	}

	return Decision{
		Allowed:     true,
		Reason:      "Within frequency threshold",
		RecentCount: len(recent),
	}
}

// Reset deletes the breaker state. Administrative operation.
func (b *Breaker) Reset() error {
	if err := storage.Remove(b.Path); err != nil {
		return fmt.Errorf("reset circuit breaker: %w", err)
	}
	log.Info().Msg("Circuit breaker reset")
	return nil
}

func (b *Breaker) load() persisted {
	var state persisted
	if _, err := storage.LoadJSON(b.Path, &state); err != nil {
		// Corrupted state is safety-neutral: start over.
		return persisted{}
	}
	return state
}
