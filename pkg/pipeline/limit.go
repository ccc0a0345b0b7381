package pipeline

import (
	"context"

	"github.com/driftdb/driftdb/pkg/document"
)

// LimitName is the operator name of the limit stage.
const LimitName = "$limit"

// SkipName is the operator name of the skip stage.
const SkipName = "$skip"

// LimitStage passes through at most n documents. It takes no part in
// dependency analysis: it neither reads nor produces fields.
type LimitStage struct {
	baseStage

	n     int64
	taken int64
}

var _ Stage = (*LimitStage)(nil)

// NewLimit creates a limit stage.
func NewLimit(n int64) *LimitStage {
	return &LimitStage{n: n}
}

func (s *LimitStage) Name() string {
	return LimitName
}

func (s *LimitStage) EOF(ctx context.Context) (bool, error) {
	if s.taken >= s.n {
		return true, nil
	}
	return s.source.EOF(ctx)
}

func (s *LimitStage) Advance(ctx context.Context) (bool, error) {
	if err := checkInterrupt(ctx); err != nil {
		return false, err
	}
	s.taken++
	if s.taken >= s.n {
		return false, nil
	}
	return s.source.Advance(ctx)
}

func (s *LimitStage) Current(ctx context.Context) (*document.Document, error) {
	if s.taken >= s.n {
		return nil, nil
	}
	return s.source.Current(ctx)
}

// SkipStage discards the first n documents. Like limit, it is transparent to
// dependency analysis.
type SkipStage struct {
	baseStage

	n       int64
	skipped bool
}

var _ Stage = (*SkipStage)(nil)

// NewSkip creates a skip stage.
func NewSkip(n int64) *SkipStage {
	return &SkipStage{n: n}
}

func (s *SkipStage) Name() string {
	return SkipName
}

func (s *SkipStage) skipAhead(ctx context.Context) error {
	if s.skipped {
		return nil
	}
	s.skipped = true
	for i := int64(0); i < s.n; i++ {
		eof, err := s.source.EOF(ctx)
		if err != nil || eof {
			return err
		}
		if _, err := s.source.Advance(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (s *SkipStage) EOF(ctx context.Context) (bool, error) {
	if err := s.skipAhead(ctx); err != nil {
		return false, err
	}
	return s.source.EOF(ctx)
}

func (s *SkipStage) Advance(ctx context.Context) (bool, error) {
	if err := checkInterrupt(ctx); err != nil {
		return false, err
	}
	if err := s.skipAhead(ctx); err != nil {
		return false, err
	}
	return s.source.Advance(ctx)
}

func (s *SkipStage) Current(ctx context.Context) (*document.Document, error) {
	if err := s.skipAhead(ctx); err != nil {
		return nil, err
	}
	return s.source.Current(ctx)
}
