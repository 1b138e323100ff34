package refcode

import (
	"context"
	"errors"
	"strconv"
	"testing"
)

func sequence(values ...int64) func(int64) (int64, error) {
	i := 0
	return func(int64) (int64, error) {
		v := values[i%len(values)]
		i++
		return v, nil
	}
}

func TestGenerateStaysInRange(t *testing.T) {
	gen := NewGenerator(func(context.Context, string) (bool, error) { return false, nil })
	for i := 0; i < 200; i++ {
		code, err := gen.Generate(context.Background())
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		n, err := strconv.Atoi(code)
		if err != nil || n < Min || n > Max || len(code) != 6 {
			t.Fatalf("code out of range: %q", code)
		}
	}
}

func TestGenerateRetriesOnCollision(t *testing.T) {
	taken := map[string]bool{"100000": true, "100001": true}
	calls := 0
	gen := NewGenerator(func(_ context.Context, code string) (bool, error) {
		calls++
		return taken[code], nil
	}).WithSource(sequence(0, 1, 2))

	code, err := gen.Generate(context.Background())
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if code != "100002" || calls != 3 {
		t.Fatalf("expected 100002 after 3 checks, got %s after %d", code, calls)
	}
}

func TestGenerateGivesUpAfterTenAttempts(t *testing.T) {
	calls := 0
	gen := NewGenerator(func(context.Context, string) (bool, error) {
		calls++
		return true, nil
	}).WithSource(sequence(42))

	_, err := gen.Generate(context.Background())
	if !errors.Is(err, ErrExhausted) {
		t.Fatalf("expected ErrExhausted, got %v", err)
	}
	if calls != MaxAttempts {
		t.Fatalf("expected %d checks, got %d", MaxAttempts, calls)
	}
}

func TestNextSharesBudgetAcrossCalls(t *testing.T) {
	gen := NewGenerator(func(context.Context, string) (bool, error) { return false, nil }).WithSource(sequence(7))
	budget := &Attempts{}
	for i := 0; i < MaxAttempts; i++ {
		if _, err := gen.Next(context.Background(), budget); err != nil {
			t.Fatalf("attempt %d: %v", i, err)
		}
	}
	if _, err := gen.Next(context.Background(), budget); !errors.Is(err, ErrExhausted) {
		t.Fatalf("expected budget to be spent, got %v", err)
	}
}

func TestGenerateSurfacesLookupFailure(t *testing.T) {
	boom := errors.New("db down")
	gen := NewGenerator(func(context.Context, string) (bool, error) { return false, boom })
	if _, err := gen.Generate(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected lookup error, got %v", err)
	}
}
