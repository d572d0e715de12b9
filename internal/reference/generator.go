// Package reference allocates the short, shareable ids that link the two
// ledger entries of a transfer.
package reference

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/rayyanshah04/FlexPay/internal/domain"
)

const (
	// Length of an id: 7 hex characters, 2^28 combinations.
	Length = 7

	DefaultMaxAttempts = 8
)

// Checker reports whether an id is already present among persisted reference ids.
type Checker interface {
	ReferenceExists(ctx context.Context, referenceID string) (bool, error)
}

// Generator draws random ids and rejects any the checker has already seen.
type Generator struct {
	checker     Checker
	random      io.Reader
	maxAttempts int
	onCollision func()
}

type Option func(*Generator)

// WithRandom replaces crypto/rand as the entropy source.
func WithRandom(r io.Reader) Option {
	return func(g *Generator) { g.random = r }
}

func WithMaxAttempts(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.maxAttempts = n
		}
	}
}

// WithCollisionHook is called once per rejected candidate.
func WithCollisionHook(fn func()) Option {
	return func(g *Generator) { g.onCollision = fn }
}

func NewGenerator(checker Checker, opts ...Option) *Generator {
	g := &Generator{
		checker:     checker,
		random:      rand.Reader,
		maxAttempts: DefaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// MaxAttempts is the retry budget shared with callers that retry on a late conflict.
func (g *Generator) MaxAttempts() int {
	return g.maxAttempts
}

// Generate returns an id that was not persisted at the time of the check.
// It never returns an unchecked id: a checker failure is ErrStoreUnavailable.
func (g *Generator) Generate(ctx context.Context) (string, error) {
	for attempt := 0; attempt < g.maxAttempts; attempt++ {
		candidate, err := g.candidate()
		if err != nil {
			return "", err
		}

		exists, err := g.checker.ReferenceExists(ctx, candidate)
		if err != nil {
			if errors.Is(err, domain.ErrStoreUnavailable) {
				return "", err
			}
			return "", fmt.Errorf("reference check: %w: %w", domain.ErrStoreUnavailable, err)
		}
		if !exists {
			return candidate, nil
		}
		if g.onCollision != nil {
			g.onCollision()
		}
	}
	return "", domain.ErrReferenceCollisionExhausted
}

func (g *Generator) candidate() (string, error) {
	var buf [4]byte
	if _, err := io.ReadFull(g.random, buf[:]); err != nil {
		return "", fmt.Errorf("read entropy: %w", err)
	}
	return strings.ToUpper(hex.EncodeToString(buf[:]))[:Length], nil
}

// Normalize upper-cases and trims a caller-supplied reference for lookups.
func Normalize(referenceID string) string {
	return strings.ToUpper(strings.TrimSpace(referenceID))
}
