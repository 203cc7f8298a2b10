package oracle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"materialflow/internal/port"
)

// circuitState tracks rate-limit backoff for a single oracle.
type circuitState struct {
	mu      sync.RWMutex
	resetAt time.Time // zero value = closed (healthy)
}

func (c *circuitState) isOpenWithReset(now time.Time) (time.Time, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.resetAt, !c.resetAt.IsZero() && now.Before(c.resetAt)
}

func (c *circuitState) open(resetAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetAt = resetAt
}

// FallbackOracle tries oracles in order, skipping those with open circuits.
// It implements port.ExtractionOracle.
type FallbackOracle struct {
	oracles  []port.ExtractionOracle
	circuits []*circuitState
	logger   *zap.Logger
}

// NewFallbackOracle creates a FallbackOracle from an ordered list of oracles.
func NewFallbackOracle(oracles []port.ExtractionOracle, logger *zap.Logger) *FallbackOracle {
	circuits := make([]*circuitState, len(oracles))
	for i := range circuits {
		circuits[i] = &circuitState{}
	}
	return &FallbackOracle{
		oracles:  oracles,
		circuits: circuits,
		logger:   logger,
	}
}

func (f *FallbackOracle) Name() string {
	names := make([]string, len(f.oracles))
	for i, o := range f.oracles {
		names[i] = o.Name()
	}
	return strings.Join(names, ",")
}

func (f *FallbackOracle) Generate(ctx context.Context, req port.OracleRequest) (*port.OracleResponse, error) {
	now := time.Now()
	var lastErr error
	allRateLimited := true
	var earliestReset time.Time

	for i, o := range f.oracles {
		if resetAt, open := f.circuits[i].isOpenWithReset(now); open {
			f.logger.Info("oracle.FallbackOracle: skipping oracle with open circuit",
				zap.String("oracle", o.Name()),
				zap.Time("reset_at", resetAt),
			)
			if earliestReset.IsZero() || resetAt.Before(earliestReset) {
				earliestReset = resetAt
			}
			continue
		}

		out, err := o.Generate(ctx, req)
		if err == nil {
			return out, nil
		}
		if ctx.Err() != nil {
			return nil, err
		}

		f.logger.Warn("oracle.FallbackOracle: oracle failed",
			zap.String("oracle", o.Name()),
			zap.String("document_id", req.DocumentID),
			zap.Error(err),
		)
		lastErr = err

		var rlErr *RateLimitError
		if errors.As(err, &rlErr) {
			resetAt := now.Add(rlErr.RetryAfter)
			f.circuits[i].open(resetAt)
			if earliestReset.IsZero() || resetAt.Before(earliestReset) {
				earliestReset = resetAt
			}
		} else {
			allRateLimited = false
		}
	}

	if lastErr == nil || allRateLimited {
		retryAfter := time.Until(earliestReset)
		if retryAfter < time.Second {
			retryAfter = time.Second
		}
		return nil, NewRateLimitError("all", fmt.Errorf("all oracles rate limited"), int(retryAfter.Seconds()))
	}

	return nil, fmt.Errorf("all oracles failed: %w", lastErr)
}
