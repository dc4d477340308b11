package sales

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/gemtrade-backend/pkg/logger"
)

type stubSequencer struct {
	next   int64
	err    error
	scopes [][]string
}

func (s *stubSequencer) NextSequence(_ context.Context, scope ...string) (int64, error) {
	s.scopes = append(s.scopes, scope)
	if s.err != nil {
		return 0, s.err
	}
	s.next++
	return s.next, nil
}

func TestCodeGeneratorUsesYearScopedCounter(t *testing.T) {
	seq := &stubSequencer{next: 41}
	gen := NewCodeGenerator("SL", seq, logger.Nop())

	code := gen.Next(context.Background(), time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, "SL-2026-000042", code)
	require.Len(t, seq.scopes, 1)
	assert.Equal(t, []string{codeScope, "2026"}, seq.scopes[0])
}

func TestCodeGeneratorFallsBackWhenCounterFails(t *testing.T) {
	seq := &stubSequencer{err: errors.New("redis down")}
	gen := NewCodeGenerator("", seq, logger.Nop())
	gen.now = func() time.Time { return time.Date(2025, 1, 2, 3, 4, 5, 6, time.UTC) }

	code := gen.Next(context.Background(), time.Time{})
	assert.Regexp(t, regexp.MustCompile(`^SL-2025-[0-9A-Z]+$`), code)
}

func TestCodeGeneratorWithoutSequencerIsUnique(t *testing.T) {
	gen := NewCodeGenerator("INV", nil, nil)
	tick := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	gen.now = func() time.Time {
		tick = tick.Add(time.Nanosecond)
		return tick
	}

	a := gen.Next(context.Background(), tick)
	b := gen.Next(context.Background(), tick)
	assert.NotEqual(t, a, b)
	assert.Contains(t, a, "INV-2026-")
}
