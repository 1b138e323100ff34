// Package refcode draws the six-digit reference codes customers quote when
// paying a remote order.
package refcode

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strconv"
)

const (
	Min         = 100000
	Max         = 999999
	MaxAttempts = 10
)

var ErrExhausted = errors.New("could not generate a unique reference code")

// ExistsFunc reports whether any order, in any status, already uses code.
type ExistsFunc func(ctx context.Context, code string) (bool, error)

type Generator struct {
	exists ExistsFunc
	intn   func(n int64) (int64, error)
}

func NewGenerator(exists ExistsFunc) *Generator {
	return &Generator{exists: exists, intn: cryptoIntn}
}

// WithSource replaces the random source; intn must return a value in [0, n).
func (g *Generator) WithSource(intn func(n int64) (int64, error)) *Generator {
	g.intn = intn
	return g
}

// Draw returns one candidate code without checking uniqueness.
func (g *Generator) Draw() (string, error) {
	n, err := g.intn(Max - Min + 1)
	if err != nil {
		return "", fmt.Errorf("draw reference code: %w", err)
	}
	return strconv.FormatInt(Min+n, 10), nil
}

// Attempts tracks the shared retry budget so callers that also retry on an
// insert collision stay within MaxAttempts overall.
type Attempts struct {
	used int
}

// Next returns a code that is not in use yet. Each call consumes at least one
// attempt from budget; ErrExhausted once the budget is spent.
func (g *Generator) Next(ctx context.Context, budget *Attempts) (string, error) {
	if budget == nil {
		budget = &Attempts{}
	}
	for budget.used < MaxAttempts {
		budget.used++
		code, err := g.Draw()
		if err != nil {
			return "", err
		}
		taken, err := g.exists(ctx, code)
		if err != nil {
			return "", fmt.Errorf("check reference code: %w", err)
		}
		if !taken {
			return code, nil
		}
	}
	return "", ErrExhausted
}

// Generate is Next with a fresh budget.
func (g *Generator) Generate(ctx context.Context) (string, error) {
	return g.Next(ctx, &Attempts{})
}

func cryptoIntn(n int64) (int64, error) {
	v, err := rand.Int(rand.Reader, big.NewInt(n))
	if err != nil {
		return 0, err
	}
	return v.Int64(), nil
}
