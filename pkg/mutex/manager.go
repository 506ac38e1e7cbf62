// Package mutex implements distributed mutexes on top of a key-value table that
// supports conditional writes.
//
// Every lock is a row. Its score column encodes the lease: 0 for a lock nobody has
// acquired yet, the acquisition time in microseconds while held, 1 once released
// and -1 once deleted. Mutual exclusion comes solely from the store's version
// tokens: every state change is a write that only succeeds if the row still has
// the version the caller last saw.
//
// Losing a race is the normal case and is reported as a nil handle with a nil
// error. Errors are reserved for store and transport faults, which are always
// wrapped in *types.StoreError.
package mutex

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/pixperk/rowlock/pkg/metrics"
	"github.com/pixperk/rowlock/pkg/table"
	lktime "github.com/pixperk/rowlock/pkg/time"
	"github.com/pixperk/rowlock/pkg/types"
	"golang.org/x/time/rate"
)

// Manager hands out locks stored in one table. It holds no client-side lock
// state, so any number of managers, in any number of processes, may share a table.
type Manager struct {
	store   table.Store
	table   types.TableInfo
	owner   string
	timeout time.Duration
	refresh time.Duration
	clock   lktime.Clock
	logger  hclog.Logger

	attemptRate  rate.Limit
	attemptBurst int
	scanRate     rate.Limit
	scanBurst    int
}

// New resolves the lock table and returns a manager for it.
func New(ctx context.Context, store table.Store, cfg Config) (*Manager, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store is nil", types.ErrInvalidRequest)
	}
	if cfg.Table == "" {
		return nil, fmt.Errorf("%w: table name or id required", types.ErrInvalidRequest)
	}
	cfg = cfg.withDefaults()

	info, err := store.GetTable(ctx, cfg.Table)
	if err != nil {
		return nil, types.NewStoreError("get table", err)
	}

	return &Manager{
		store:        store,
		table:        info,
		owner:        cfg.Owner,
		timeout:      cfg.LeaseTimeout,
		refresh:      cfg.Refresh,
		clock:        cfg.Clock,
		logger:       cfg.Logger.Named("mutex").With("table", info.Name),
		attemptRate:  cfg.AttemptRate,
		attemptBurst: cfg.AttemptBurst,
		scanRate:     cfg.ScanRate,
		scanBurst:    cfg.ScanBurst,
	}, nil
}

// Table returns the table the manager works on.
func (m *Manager) Table() types.TableInfo {
	return m.table
}

// LeaseTimeout returns how long an acquired lock stays valid.
func (m *Manager) LeaseTimeout() time.Duration {
	return m.timeout
}

func (m *Manager) timeoutMicros() int64 {
	return m.timeout.Microseconds()
}

func (m *Manager) resolveOwner(owner string) *string {
	if owner == "" {
		owner = m.owner
	}
	if owner == "" {
		return nil
	}
	return &owner
}

// Create adds a lock row. It returns nil if the lock already exists, in which case
// the existing row is left untouched.
func (m *Manager) Create(ctx context.Context, lockID string, opts CreateOptions) (*types.Handle, error) {
	if lockID == "" {
		return nil, types.ErrInvalidKey
	}

	score := types.ScoreUnattended
	if opts.Acquire {
		score = lktime.Micros(m.clock)
	}

	res, err := m.store.PutRow(ctx, m.table.ID, types.PutRequest{
		Value: types.Row{
			Key:   lockID,
			Score: score,
			Owner: m.resolveOwner(opts.Owner),
			Body:  opts.Body,
		},
		Mode:      types.PutIfAbsent,
		ReturnRow: true,
	})
	if err != nil {
		metrics.WriteTotal.WithLabelValues("create", "error").Inc()
		return nil, types.NewStoreError("create row", err)
	}
	if !res.Written() {
		metrics.WriteTotal.WithLabelValues("create", "conflict").Inc()
		m.logger.Debug("lock already exists", "lock", lockID)
		return nil, nil
	}

	metrics.WriteTotal.WithLabelValues("create", "ok").Inc()
	m.logger.Debug("lock created", "lock", lockID, "acquired", opts.Acquire)
	return &types.Handle{Key: lockID, Version: res.Version, Body: opts.Body}, nil
}

// Acquire blocks until it takes over a lock or the timeout passes.
//
// Candidates come from a Scanner restricted to opts.LockID when set. A timeout
// and a run of lost races both end in a nil handle and nil error; the two are
// not distinguishable. With a zero timeout Acquire only returns once it holds a
// lock, the store fails, or ctx is cancelled (then ctx.Err() is returned).
//
// The deadline is checked between attempts; a store call in flight may overrun it.
func (m *Manager) Acquire(ctx context.Context, opts AcquireOptions) (*types.Handle, error) {
	// metrics time on the host clock, leases on m.clock
	start := time.Now()
	owner := m.resolveOwner(opts.Owner)

	attemptCtx := ctx
	bounded := opts.Timeout > 0
	if bounded {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	scanner := m.NewScanner(ScanOptions{
		IncludeUnattended: true,
		IncludeExpired:    true,
		KeyMask:           opts.LockID,
	})
	attempts := rate.NewLimiter(m.attemptRate, m.attemptBurst)

	for n := 0; ; n++ {
		if n > 0 {
			if err := wait(attemptCtx, attempts); err != nil {
				return m.acquireStopped(ctx, attemptCtx, bounded, start, err)
			}
		}

		key, ok, err := scanner.Next(attemptCtx)
		if err != nil {
			return m.acquireStopped(ctx, attemptCtx, bounded, start, err)
		}
		if !ok {
			return m.acquireStopped(ctx, attemptCtx, bounded, start, nil)
		}

		h, err := m.tryAcquire(attemptCtx, key, write{owner: owner, body: opts.Body})
		if err != nil {
			return m.acquireStopped(ctx, attemptCtx, bounded, start, err)
		}
		if h != nil {
			metrics.AcquireDuration.Observe(time.Since(start).Seconds())
			metrics.AcquireTotal.WithLabelValues("success").Inc()
			m.logger.Debug("lock acquired", "lock", h.Key, "attempts", n+1)
			return h, nil
		}
	}
}

// classifies why the acquire loop stopped
// the caller's own cancellation wins, then our own deadline (not an error).
// anything else is a store fault, including a deadline the store or transport hit on its own
func (m *Manager) acquireStopped(ctx, attemptCtx context.Context, bounded bool, start time.Time, err error) (*types.Handle, error) {
	metrics.AcquireDuration.Observe(time.Since(start).Seconds())

	if ctxErr := ctx.Err(); ctxErr != nil {
		metrics.AcquireTotal.WithLabelValues("cancelled").Inc()
		return nil, ctxErr
	}
	if err == nil || (bounded && attemptCtx.Err() != nil) {
		metrics.AcquireTotal.WithLabelValues("timeout").Inc()
		m.logger.Trace("acquire timed out", "elapsed", time.Since(start))
		return nil, nil
	}

	metrics.AcquireTotal.WithLabelValues("error").Inc()
	return nil, err
}

// Update renews the lease on a held lock. It returns nil if the handle is stale.
func (m *Manager) Update(ctx context.Context, h *types.Handle, opts WriteOptions) (*types.Handle, error) {
	return m.writeHandle(ctx, "update", h, nil, opts)
}

// Release hands the lock back; anyone may acquire it immediately.
// It returns nil if the handle is stale.
func (m *Manager) Release(ctx context.Context, h *types.Handle, opts WriteOptions) (*types.Handle, error) {
	score := types.ScoreReleased
	return m.writeHandle(ctx, "release", h, &score, opts)
}

// Delete retires the lock for good; it is never returned by a scan again.
// It returns nil if the handle is stale.
func (m *Manager) Delete(ctx context.Context, h *types.Handle, opts WriteOptions) (*types.Handle, error) {
	score := types.ScoreDeleted
	return m.writeHandle(ctx, "delete", h, &score, opts)
}

func (m *Manager) writeHandle(ctx context.Context, op string, h *types.Handle, score *int64, opts WriteOptions) (*types.Handle, error) {
	if h == nil {
		return nil, types.ErrNilHandle
	}
	if h.Key == "" || h.Version == "" {
		return nil, fmt.Errorf("%w: handle needs a key and a version", types.ErrInvalidRequest)
	}

	next, err := m.tryAcquire(ctx, h.Key, write{
		etag:  h.Version,
		score: score,
		owner: m.resolveOwner(opts.Owner),
		body:  opts.Body,
	})
	switch {
	case errors.Is(err, types.ErrIllegalTransition):
		metrics.WriteTotal.WithLabelValues(op, "refused").Inc()
		m.logger.Debug("write refused", "op", op, "lock", h.Key, "error", err)
		return nil, err
	case err != nil:
		metrics.WriteTotal.WithLabelValues(op, "error").Inc()
		return nil, err
	case next == nil:
		metrics.WriteTotal.WithLabelValues(op, "conflict").Inc()
		m.logger.Debug("stale handle", "op", op, "lock", h.Key)
		return nil, nil
	}

	if next.Body == nil {
		next.Body = h.Body
	}
	metrics.WriteTotal.WithLabelValues(op, "ok").Inc()
	m.logger.Debug("lock "+op, "lock", h.Key)
	return next, nil
}

// one conditional write
// an empty etag is the cold path: read the row first, take its version and only
// write if its lease is over.
// with an etag the row is read too, so a write that would leave the lease state
// machine (anything out of deleted, releasing a lock nobody holds) is refused
// before it is sent; the version check on the write keeps that read honest
type write struct {
	etag  string
	score *int64
	owner *string
	body  json.RawMessage
}

// the compare-and-swap every mutating call goes through
// nil handle and nil error means the row was absent, still leased, or changed underneath us
func (m *Manager) tryAcquire(ctx context.Context, lockID string, w write) (*types.Handle, error) {
	now := lktime.Micros(m.clock)

	value := types.Row{Key: lockID, Score: now, Owner: w.owner, Body: w.body}
	if w.score != nil {
		value.Score = *w.score
	}

	body := w.body
	etag := w.etag
	if etag == "" {
		row, version, err := m.store.GetRow(ctx, m.table.ID, lockID)
		if err != nil {
			metrics.AttemptTotal.WithLabelValues("error").Inc()
			m.logger.Warn("read lock row failed", "lock", lockID, "error", err)
			return nil, types.NewStoreError("get row", err)
		}
		if row == nil {
			metrics.AttemptTotal.WithLabelValues("absent").Inc()
			return nil, nil
		}
		if body == nil {
			body = row.Body
		}
		if !types.IsExpired(row.Score, now, m.timeoutMicros()) {
			// a write would be refused anyway, save the round trip
			metrics.AttemptTotal.WithLabelValues("live").Inc()
			m.logger.Trace("lock not acquirable", "lock", lockID,
				"state", types.StateOf(row.Score, now, m.timeoutMicros()))
			return nil, nil
		}
		etag = version
	} else {
		row, version, err := m.store.GetRow(ctx, m.table.ID, lockID)
		if err != nil {
			metrics.AttemptTotal.WithLabelValues("error").Inc()
			m.logger.Warn("read lock row failed", "lock", lockID, "error", err)
			return nil, types.NewStoreError("get row", err)
		}
		if row == nil {
			metrics.AttemptTotal.WithLabelValues("absent").Inc()
			return nil, nil
		}
		if version != etag {
			metrics.AttemptTotal.WithLabelValues("conflict").Inc()
			m.logger.Trace("handle is stale", "lock", lockID)
			return nil, nil
		}
		if !types.CanTransition(row.Score, value.Score) {
			return nil, fmt.Errorf("%w: %s to %s", types.ErrIllegalTransition,
				types.StateOf(row.Score, now, m.timeoutMicros()),
				types.StateOf(value.Score, now, m.timeoutMicros()))
		}
	}

	res, err := m.store.PutRow(ctx, m.table.ID, types.PutRequest{
		Value:        value,
		Mode:         types.PutIfPresent,
		MatchVersion: etag,
	})
	if err != nil {
		metrics.AttemptTotal.WithLabelValues("error").Inc()
		m.logger.Warn("conditional write failed", "lock", lockID, "error", err)
		return nil, types.NewStoreError("put row", err)
	}
	if !res.Written() {
		metrics.AttemptTotal.WithLabelValues("conflict").Inc()
		m.logger.Trace("lost race", "lock", lockID)
		return nil, nil
	}

	metrics.AttemptTotal.WithLabelValues("won").Inc()
	return &types.Handle{Key: lockID, Version: res.Version, Body: body}, nil
}

// Scan returns one shuffled snapshot of the keys Acquire could currently try.
// Results are eventually consistent.
func (m *Manager) Scan(ctx context.Context, opts ScanOptions) ([]string, error) {
	return m.stale(ctx, opts)
}

// Inspect reads a lock row and reports its lease state. The row is nil if the lock does not exist.
func (m *Manager) Inspect(ctx context.Context, lockID string) (*types.Row, types.LeaseState, error) {
	row, _, err := m.store.GetRow(ctx, m.table.ID, lockID)
	if err != nil {
		return nil, 0, types.NewStoreError("get row", err)
	}
	if row == nil {
		return nil, 0, nil
	}
	return row, types.StateOf(row.Score, lktime.Micros(m.clock), m.timeoutMicros()), nil
}
