// Package fallback runs ordered candidate strategies for one step and
// returns the first acceptable result.
package fallback

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"

	"github.com/jdziat/simple-report-runs/pkg/core"
)

// DefaultName is the candidate name reported when every candidate failed.
const DefaultName = "default"

// ErrRejected is recorded when a candidate's result fails its Accept predicate.
var ErrRejected = errors.New("fallback: result below quality threshold")

// Tier is the quality of a result. Tiers are ordered: none < low < medium < high.
type Tier int

const (
	TierNone Tier = iota
	TierLow
	TierMedium
	TierHigh
)

func (t Tier) String() string {
	switch t {
	case TierLow:
		return "low"
	case TierMedium:
		return "medium"
	case TierHigh:
		return "high"
	default:
		return "none"
	}
}

// Candidate is one strategy in a chain.
type Candidate[T any] struct {
	Name string
	Tier Tier
	// Timeout bounds Run. Zero uses the chain timeout.
	Timeout time.Duration
	Run     func(ctx context.Context) (T, error)
	// Accept is the minimum quality predicate. Nil accepts any result.
	Accept func(T) bool
}

// Chain is an ordered list of candidates plus the value used when all fail.
type Chain[T any] struct {
	Candidates []Candidate[T]
	Default    func() T
	// Timeout is the per-candidate timeout when a candidate sets none.
	// Zero means no timeout beyond the parent context.
	Timeout time.Duration
}

// Attempt is one failed candidate in the diagnostic trail.
type Attempt struct {
	Candidate string
	Err       error
	Elapsed   time.Duration
}

func (a Attempt) String() string {
	return fmt.Sprintf("%s: %v", a.Candidate, a.Err)
}

// Outcome is the result of Execute.
type Outcome[T any] struct {
	Value     T
	Candidate string
	Tier      Tier
	// Best is the highest tier any candidate in the chain could deliver.
	Best Tier
	// Attempts lists the candidates that failed before Candidate, in order.
	Attempts []Attempt
}

// Degraded reports whether the result came in below the best tier the
// chain could offer.
func (o Outcome[T]) Degraded() bool {
	return o.Tier < o.Best
}

// Failures returns the diagnostic trail as strings.
func (o Outcome[T]) Failures() []string {
	out := make([]string, len(o.Attempts))
	for i, a := range o.Attempts {
		out[i] = a.String()
	}
	return out
}

// Execute tries each candidate strictly in order and returns the first
// result that succeeds and passes Accept. Errors, timeouts, panics and
// rejections move on to the next candidate. When every candidate fails, or
// ctx is done, it returns chain.Default() tagged TierNone. It never panics
// and never runs two candidates at once.
func Execute[T any](ctx context.Context, chain Chain[T]) Outcome[T] {
	log := zerolog.Ctx(ctx)
	out := Outcome[T]{Best: TierNone}
	for _, c := range chain.Candidates {
		if c.Tier > out.Best {
			out.Best = c.Tier
		}
	}

	for _, c := range chain.Candidates {
		if err := ctx.Err(); err != nil {
			out.Attempts = append(out.Attempts, Attempt{Candidate: c.Name, Err: err})
			break
		}

		timeout := c.Timeout
		if timeout == 0 {
			timeout = chain.Timeout
		}

		start := time.Now()
		v, err := runCandidate(ctx, c, timeout)
		elapsed := time.Since(start)
		if err == nil && c.Accept != nil && !c.Accept(v) {
			err = ErrRejected
		}
		if err != nil {
			log.Debug().Err(err).Str("candidate", c.Name).Dur("elapsed", elapsed).Msg("fallback candidate failed")
			out.Attempts = append(out.Attempts, Attempt{Candidate: c.Name, Err: err, Elapsed: elapsed})
			continue
		}

		out.Value = v
		out.Candidate = c.Name
		out.Tier = c.Tier
		return out
	}

	if chain.Default != nil {
		out.Value = chain.Default()
	}
	out.Candidate = DefaultName
	out.Tier = TierNone
	log.Debug().Int("attempts", len(out.Attempts)).Msg("all fallback candidates failed, using default")
	return out
}

type candidateResult[T any] struct {
	v   T
	err error
}

// runCandidate calls c.Run under timeout. A candidate that ignores its
// context is abandoned when the timeout fires; its goroutine finishes on
// its own and its result is dropped.
func runCandidate[T any](ctx context.Context, c Candidate[T], timeout time.Duration) (T, error) {
	var zero T
	if c.Run == nil {
		return zero, fmt.Errorf("candidate %q has no operation", c.Name)
	}

	cctx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		cctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	done := make(chan candidateResult[T], 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- candidateResult[T]{err: &core.PanicError{Value: r, Stack: debug.Stack()}}
			}
		}()
		v, err := c.Run(cctx)
		done <- candidateResult[T]{v: v, err: err}
	}()

	select {
	case res := <-done:
		return res.v, res.err
	case <-cctx.Done():
		return zero, cctx.Err()
	}
}
