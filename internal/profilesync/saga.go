package profilesync

import (
	"context"
	"errors"
	"fmt"
)

// saga records how to undo each completed step of a multi-step write.
// compensate runs the undo steps newest first.
type saga struct {
	steps []sagaStep
}

type sagaStep struct {
	name string
	undo func(ctx context.Context) error
}

func (s *saga) onFailure(name string, undo func(ctx context.Context) error) {
	s.steps = append(s.steps, sagaStep{name: name, undo: undo})
}

// compensate keeps going after a failed undo and returns every failure.
// It ignores cancellation of ctx so a dropped request still cleans up.
func (s *saga) compensate(ctx context.Context) error {
	ctx = context.WithoutCancel(ctx)
	var errs []error
	for i := len(s.steps) - 1; i >= 0; i-- {
		if err := s.steps[i].undo(ctx); err != nil {
			errs = append(errs, fmt.Errorf("undo %s: %w", s.steps[i].name, err))
		}
	}
	return errors.Join(errs...)
}
