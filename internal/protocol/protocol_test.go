package protocol

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"pcstore-service/internal/apperr"
	"pcstore-service/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChecker struct {
	mu       sync.Mutex
	taken    map[string]bool
	allTaken bool
	err      error
}

func (f *fakeChecker) ProtocolExists(_ context.Context, _ Kind, code string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.allTaken || f.taken[code], f.err
}

func (f *fakeChecker) HighestSequence(_ context.Context, kind Kind, day string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var highest int64
	for code := range f.taken {
		if n, ok := ParseSequence(kind, day, code); ok && n > highest {
			highest = n
		}
	}
	return highest, f.err
}

type failingSequencer struct{}

func (failingSequencer) Next(context.Context, string) (int64, error) {
	return 0, errors.New("redis down")
}

func (failingSequencer) AdvanceTo(context.Context, string, int64) error {
	return errors.New("redis down")
}

var fixedNow = util.FixedClock{T: time.Date(2026, 10, 17, 23, 30, 0, 0, time.UTC)}

func TestGenerateFormat(t *testing.T) {
	g := NewGenerator(NewLocalSequencer(), &fakeChecker{}, fixedNow, 0)

	code, err := g.Generate(context.Background(), KindOrder)
	require.NoError(t, err)
	assert.Equal(t, "ORD-20261017-000001", code)

	code, err = g.Generate(context.Background(), KindTicket)
	require.NoError(t, err)
	assert.Equal(t, "TKT-20261017-000001", code)
}

func TestGenerateSkipsTakenCodes(t *testing.T) {
	checker := &fakeChecker{taken: map[string]bool{
		"ORD-20261017-000001": true,
		"ORD-20261017-000002": true,
	}}
	g := NewGenerator(NewLocalSequencer(), checker, fixedNow, 3)

	code, err := g.Generate(context.Background(), KindOrder)
	require.NoError(t, err)
	assert.Equal(t, "ORD-20261017-000003", code)
}

func TestGenerateRecoversFromSequenceReset(t *testing.T) {
	taken := map[string]bool{}
	for i := int64(1); i <= 40; i++ {
		taken[Format(KindOrder, "20261017", i)] = true
	}
	taken[Format(KindOrder, "20261016", 900)] = true
	seq := NewLocalSequencer()
	g := NewGenerator(seq, &fakeChecker{taken: taken}, fixedNow, 2)

	code, err := g.Generate(context.Background(), KindOrder)
	require.NoError(t, err)
	assert.Equal(t, "ORD-20261017-000041", code)

	code, err = g.Generate(context.Background(), KindOrder)
	require.NoError(t, err)
	assert.Equal(t, "ORD-20261017-000042", code)
}

func TestParseSequence(t *testing.T) {
	n, ok := ParseSequence(KindOrder, "20261017", "ORD-20261017-000123")
	require.True(t, ok)
	assert.Equal(t, int64(123), n)

	n, ok = ParseSequence(KindOrder, "20261017", "ORD-20261017-1000000")
	require.True(t, ok)
	assert.Equal(t, int64(1000000), n)

	for _, code := range []string{"TKT-20261017-000001", "ORD-20261016-000001", "ORD-20261017-abc", "ORD-20261017-"} {
		_, ok := ParseSequence(KindOrder, "20261017", code)
		assert.False(t, ok, code)
	}
}

func TestGenerateGivesUpAfterMaxAttempts(t *testing.T) {
	g := NewGenerator(NewLocalSequencer(), &fakeChecker{allTaken: true}, fixedNow, 3)

	_, err := g.Generate(context.Background(), KindOrder)
	assert.True(t, errors.Is(err, apperr.ErrProtocolGenerationFailed))
}

func TestGeneratePropagatesStoreErrors(t *testing.T) {
	g := NewGenerator(NewLocalSequencer(), &fakeChecker{err: errors.New("db down")}, fixedNow, 3)
	_, err := g.Generate(context.Background(), KindOrder)
	require.Error(t, err)
	assert.False(t, errors.Is(err, apperr.ErrProtocolGenerationFailed))

	g = NewGenerator(failingSequencer{}, &fakeChecker{}, fixedNow, 3)
	_, err = g.Generate(context.Background(), KindOrder)
	assert.Error(t, err)
}

func TestGenerateNeverRepeatsWithinSameInstant(t *testing.T) {
	g := NewGenerator(NewLocalSequencer(), &fakeChecker{}, fixedNow, 0)

	const n = 200
	codes := make(chan string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			code, err := g.Generate(context.Background(), KindTicket)
			if err == nil {
				codes <- code
			}
		}()
	}
	wg.Wait()
	close(codes)

	seen := map[string]bool{}
	for c := range codes {
		assert.False(t, seen[c], "duplicate %s", c)
		seen[c] = true
	}
	assert.Len(t, seen, n)
}
