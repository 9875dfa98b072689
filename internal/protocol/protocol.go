package protocol

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"pcstore-service/internal/apperr"
	"pcstore-service/internal/util"

	"go.uber.org/zap"
)

// Kind selects the entity a protocol is issued for
type Kind string

// Protocol kinds
const (
	KindOrder  Kind = "ORD"
	KindTicket Kind = "TKT"
)

// DefaultMaxAttempts bounds the candidates tried before giving up
const DefaultMaxAttempts = 5

// Sequencer hands out increasing numbers per key
type Sequencer interface {
	Next(ctx context.Context, key string) (int64, error)
	// AdvanceTo raises the sequence under key to at least n
	AdvanceTo(ctx context.Context, key string, n int64) error
}

// Checker reports which protocols are already taken in the store
type Checker interface {
	ProtocolExists(ctx context.Context, kind Kind, code string) (bool, error)
	// HighestSequence returns the largest sequence stored for kind on day,
	// or 0 when there is none.
	HighestSequence(ctx context.Context, kind Kind, day string) (int64, error)
}

// Generator issues codes shaped PREFIX-YYYYMMDD-NNNNNN
type Generator struct {
	seq         Sequencer
	checker     Checker
	clock       util.Clock
	maxAttempts int
	logger      *zap.Logger
}

// NewGenerator creates a protocol generator
func NewGenerator(seq Sequencer, checker Checker, clock util.Clock, maxAttempts int) *Generator {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Generator{
		seq:         seq,
		checker:     checker,
		clock:       clock,
		maxAttempts: maxAttempts,
		logger:      util.GetLogger(),
	}
}

// Generate returns a protocol not yet present in the store. On the first
// collision the sequence is moved past the highest stored code, so a
// sequencer that lost its state recovers in one step.
func (g *Generator) Generate(ctx context.Context, kind Kind) (string, error) {
	day := g.clock.Now().UTC().Format("20060102")
	key := fmt.Sprintf("%s:%s", kind, day)

	resynced := false
	for attempt := 1; attempt <= g.maxAttempts; attempt++ {
		n, err := g.seq.Next(ctx, key)
		if err != nil {
			return "", fmt.Errorf("failed to draw protocol sequence: %w", err)
		}
		code := Format(kind, day, n)

		exists, err := g.checker.ProtocolExists(ctx, kind, code)
		if err != nil {
			return "", fmt.Errorf("failed to check protocol uniqueness: %w", err)
		}
		if !exists {
			return code, nil
		}

		util.ProtocolCollisionsTotal.WithLabelValues(string(kind)).Inc()
		g.logger.Warn("Protocol collision, retrying",
			zap.String("protocol", code),
			zap.Int("attempt", attempt))

		if !resynced {
			resynced = true
			if err := g.resync(ctx, kind, day, key, n); err != nil {
				return "", err
			}
		}
	}

	return "", fmt.Errorf("%s after %d attempts: %w", kind, g.maxAttempts, apperr.ErrProtocolGenerationFailed)
}

func (g *Generator) resync(ctx context.Context, kind Kind, day, key string, drawn int64) error {
	highest, err := g.checker.HighestSequence(ctx, kind, day)
	if err != nil {
		return fmt.Errorf("failed to read highest protocol: %w", err)
	}
	if highest <= drawn {
		return nil
	}
	if err := g.seq.AdvanceTo(ctx, key, highest); err != nil {
		return fmt.Errorf("failed to advance protocol sequence: %w", err)
	}
	g.logger.Warn("Protocol sequence behind store, advanced",
		zap.String("key", key),
		zap.Int64("drawn", drawn),
		zap.Int64("highest", highest))
	return nil
}

// Format renders a protocol code
func Format(kind Kind, day string, n int64) string {
	return fmt.Sprintf("%s-%s-%06d", kind, day, n)
}

// Prefix is the part shared by every code of kind issued on day
func Prefix(kind Kind, day string) string {
	return fmt.Sprintf("%s-%s-", kind, day)
}

// ParseSequence extracts the sequence number of a code issued for kind on day
func ParseSequence(kind Kind, day, code string) (int64, bool) {
	rest := strings.TrimPrefix(code, Prefix(kind, day))
	if rest == code {
		return 0, false
	}
	n, err := strconv.ParseInt(rest, 10, 64)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// LocalSequencer is an in-process Sequencer, suitable for a single instance
// and for tests.
type LocalSequencer struct {
	mu       sync.Mutex
	counters map[string]int64
}

// NewLocalSequencer creates an empty local sequencer
func NewLocalSequencer() *LocalSequencer {
	return &LocalSequencer{counters: make(map[string]int64)}
}

// Next implements Sequencer
func (s *LocalSequencer) Next(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[key]++
	return s.counters[key], nil
}

// AdvanceTo implements Sequencer
func (s *LocalSequencer) AdvanceTo(_ context.Context, key string, n int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.counters[key] < n {
		s.counters[key] = n
	}
	return nil
}
