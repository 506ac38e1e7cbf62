package mutex

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/pixperk/rowlock/pkg/metrics"
	lktime "github.com/pixperk/rowlock/pkg/time"
	"github.com/pixperk/rowlock/pkg/types"
	"golang.org/x/time/rate"
)

// ScanOptions selects which rows a Scanner yields.
type ScanOptions struct {
	IncludeUnattended bool
	IncludeExpired    bool

	// KeyMask restricts candidates to exactly this key when set.
	KeyMask string

	// Refresh is the maximum age of a batch. Zero uses the manager's setting.
	Refresh time.Duration
}

// Scanner is an endless, restartable sequence of acquirable lock keys.
//
// It queries the table for unattended and lease-expired rows, shuffles the result
// and hands it out one key at a time. A new query is issued when the batch runs
// out or gets older than Refresh. Keys may already be taken by the time they are
// tried; the conditional write that follows is what decides.
//
// A Scanner is not safe for concurrent use.
type Scanner struct {
	m    *Manager
	opts ScanOptions

	batch     []string
	pos       int
	scannedAt time.Time
	limiter   *rate.Limiter
}

// NewScanner returns a scanner over the manager's table.
func (m *Manager) NewScanner(opts ScanOptions) *Scanner {
	if opts.Refresh <= 0 {
		opts.Refresh = m.refresh
	}
	return &Scanner{
		m:       m,
		opts:    opts,
		limiter: rate.NewLimiter(m.scanRate, m.scanBurst),
	}
}

// Next returns the next candidate key. It blocks while re-scanning, pacing
// scans by the scan rate, until ctx is done.
// ok is false only when the options select nothing at all.
func (s *Scanner) Next(ctx context.Context) (key string, ok bool, err error) {
	if !s.opts.IncludeUnattended && !s.opts.IncludeExpired {
		return "", false, nil
	}

	for {
		if s.pos < len(s.batch) && s.m.clock.Now().Sub(s.scannedAt) <= s.opts.Refresh {
			key = s.batch[s.pos]
			s.pos++
			return key, true, nil
		}

		if err := wait(ctx, s.limiter); err != nil {
			return "", false, err
		}
		if err := s.rescan(ctx); err != nil {
			return "", false, err
		}
	}
}

func (s *Scanner) rescan(ctx context.Context) error {
	s.scannedAt = s.m.clock.Now()
	keys, err := s.m.stale(ctx, s.opts)
	if err != nil {
		return err
	}
	s.batch = keys
	s.pos = 0
	return nil
}

// builds the range predicate for the selected rows:
// lower bound 0 keeps unattended rows, 1 drops them;
// upper bound now - timeout keeps expired leases, 1 drops them.
// deleted rows (-1) are always below the lower bound and live leases above the upper
func (m *Manager) staleQuery(opts ScanOptions) types.ScanQuery {
	q := types.ScanQuery{
		MinScore:    types.ScoreReleased,
		MaxScore:    types.ScoreReleased,
		Key:         opts.KeyMask,
		Consistency: types.Eventual,
	}
	if opts.IncludeUnattended {
		q.MinScore = types.ScoreUnattended
	}
	if opts.IncludeExpired {
		q.MaxScore = lktime.Micros(m.clock) - m.timeoutMicros()
	}
	return q
}

// one shuffled snapshot of the acquirable keys
func (m *Manager) stale(ctx context.Context, opts ScanOptions) ([]string, error) {
	if !opts.IncludeUnattended && !opts.IncludeExpired {
		return nil, nil
	}

	keys, err := m.store.Scan(ctx, m.table.ID, m.staleQuery(opts))
	if err != nil {
		metrics.ScanTotal.WithLabelValues("error").Inc()
		m.logger.Warn("candidate scan failed", "table", m.table.Name, "error", err)
		return nil, types.NewStoreError("scan", err)
	}

	// spread concurrent clients over the candidates instead of all racing for the first
	rand.Shuffle(len(keys), func(i, j int) {
		keys[i], keys[j] = keys[j], keys[i]
	})

	metrics.ScanTotal.WithLabelValues("ok").Inc()
	metrics.ScanCandidates.Observe(float64(len(keys)))
	m.logger.Trace("candidate scan", "table", m.table.Name, "mask", opts.KeyMask, "candidates", len(keys))
	return keys, nil
}

// blocks until lim admits one event or ctx is done
func wait(ctx context.Context, lim *rate.Limiter) error {
	r := lim.Reserve()
	d := r.Delay()
	if d == 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		r.Cancel()
		return ctx.Err()
	}
}
