package retry

import (
	"errors"
	"math"
	"math/rand"
	"time"

	"golang.org/x/exp/constraints"
)

type Strategy interface {
	// Sleep returns the delay before attempt retryCount+1 and whether the
	// retry budget is exhausted.
	Sleep(retryCount uint) (time.Duration, bool)
}

type never struct{}

func NewNever() Strategy {
	return &never{}
}

func (nr *never) Sleep(uint) (time.Duration, bool) {
	return 0, true
}

type Entropy func(int64) int64

type exponentialBackOff struct {
	base          time.Duration
	max           time.Duration
	maxRetryCount uint
	entropy       Entropy
}

// NewExponentialBackOff doubles base per attempt up to max, with full jitter
// drawn from entropy (rand.Int63n when nil).
func NewExponentialBackOff(base time.Duration, max time.Duration, maxRetryCount uint, entropy Entropy) Strategy {
	if entropy == nil {
		entropy = rand.Int63n
	}
	return &exponentialBackOff{
		base:          base,
		max:           max,
		maxRetryCount: maxRetryCount,
		entropy:       entropy,
	}
}

func (eb *exponentialBackOff) Sleep(retryCount uint) (time.Duration, bool) {
	if retryCount >= eb.maxRetryCount {
		return 0, true
	}

	ceiling := int64(eb.max)
	if retryCount < 63 {
		if delay, err := checkedMulInt64(1<<retryCount, int64(eb.base)); err == nil {
			ceiling = minOf(delay, ceiling)
		}
	}
	return time.Duration(eb.jitter(ceiling)), false
}

func (eb *exponentialBackOff) jitter(ceiling int64) int64 {
	if ceiling <= 0 {
		return 0
	}
	return eb.entropy(ceiling)
}

func minOf[T constraints.Ordered](l T, r T) T {
	if l > r {
		return r
	}
	return l
}

var OverflowError = errors.New("overflow")

func checkedMulInt64(l int64, r int64) (int64, error) {
	if l == 0 || r == 0 {
		return 0, nil
	}
	if l > math.MaxInt64/r {
		return 0, OverflowError
	}
	return l * r, nil
}
