package memory

import (
	"errors"
	"hash/fnv"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/giantswarm/player-oidc/instrumentation"
	"github.com/giantswarm/player-oidc/storage"
)

const (
	codeShardCount = 32

	// DefaultCodeMaxAge is how long an authorization code stays exchangeable
	DefaultCodeMaxAge = 10 * time.Minute

	// DefaultSweepInterval is the minimum time between two sweeps
	DefaultSweepInterval = time.Minute
)

// ErrCodeExists is returned by Put when the code is already pending
var ErrCodeExists = errors.New("authorization code already exists")

type codeEntry struct {
	data      *storage.PendingAuthorization
	createdAt time.Time
}

type codeShard struct {
	mu      sync.Mutex
	entries map[string]codeEntry
}

// CodeStore is a sharded, concurrency-safe table of pending authorization
// codes. Take is atomic: a code is handed out at most once.
type CodeStore struct {
	shards [codeShardCount]codeShard

	maxAge        time.Duration
	sweepInterval time.Duration

	// lastSweep holds the unix nanos of the last sweep; it is the CAS guard
	// that keeps concurrent callers from scanning together.
	lastSweep atomic.Int64
	count     atomic.Int64

	now    func() time.Time
	logger *slog.Logger
}

// NewCodeStore creates a code store. Codes older than maxAge are refused by
// Take and removed by sweeps, which run at most once per sweepInterval.
// Non-positive values fall back to the defaults.
func NewCodeStore(maxAge, sweepInterval time.Duration) *CodeStore {
	if maxAge <= 0 {
		maxAge = DefaultCodeMaxAge
	}
	if sweepInterval <= 0 {
		sweepInterval = DefaultSweepInterval
	}

	c := &CodeStore{
		maxAge:        maxAge,
		sweepInterval: sweepInterval,
		now:           time.Now,
		logger:        slog.Default(),
	}
	for i := range c.shards {
		c.shards[i].entries = make(map[string]codeEntry)
	}
	return c
}

// SetClock replaces the time source. Call before the store is shared.
func (c *CodeStore) SetClock(now func() time.Time) {
	if now != nil {
		c.now = now
	}
}

// SetLogger sets a custom logger
func (c *CodeStore) SetLogger(logger *slog.Logger) {
	if logger != nil {
		c.logger = logger
	}
}

// SetInstrumentation registers the pending codes gauge
func (c *CodeStore) SetInstrumentation(inst *instrumentation.Instrumentation) {
	if inst == nil {
		return
	}
	if err := inst.RegisterStorageSizeCallbacks(nil, func() int64 { return c.count.Load() }, nil); err != nil {
		c.logger.Warn("Failed to register code store size callback", "error", err)
	}
}

// MaxAge returns the configured code lifetime
func (c *CodeStore) MaxAge() time.Duration {
	return c.maxAge
}

func (c *CodeStore) shard(code string) *codeShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(code))
	return &c.shards[h.Sum32()%codeShardCount]
}

// Put stores a pending authorization under code
func (c *CodeStore) Put(code string, data *storage.PendingAuthorization) error {
	if code == "" {
		return errors.New("code cannot be empty")
	}
	if data == nil {
		return errors.New("pending authorization cannot be nil")
	}

	sh := c.shard(code)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	if _, exists := sh.entries[code]; exists {
		return ErrCodeExists
	}
	cp := *data
	cp.Code = code
	sh.entries[code] = codeEntry{data: &cp, createdAt: c.now()}
	c.count.Add(1)
	return nil
}

// Take removes code and returns its pending authorization. The entry is
// removed even when it is too old to be returned, so every exchange attempt
// consumes the code.
func (c *CodeStore) Take(code string) (*storage.PendingAuthorization, bool) {
	sh := c.shard(code)
	sh.mu.Lock()
	entry, ok := sh.entries[code]
	if ok {
		delete(sh.entries, code)
		c.count.Add(-1)
	}
	sh.mu.Unlock()

	if !ok {
		return nil, false
	}
	if c.now().Sub(entry.createdAt) > c.maxAge {
		return nil, false
	}
	return entry.data, true
}

// SweepExpired removes entries strictly older than maxAge and returns how
// many were removed. It returns 0 without scanning when another sweep ran
// within the sweep interval or is running concurrently.
func (c *CodeStore) SweepExpired(maxAge time.Duration) int {
	now := c.now()
	last := c.lastSweep.Load()
	if last != 0 && now.UnixNano()-last < int64(c.sweepInterval) {
		return 0
	}
	if !c.lastSweep.CompareAndSwap(last, now.UnixNano()) {
		return 0
	}
	return c.sweep(now, maxAge)
}

func (c *CodeStore) sweep(now time.Time, maxAge time.Duration) int {
	removed := 0
	for i := range c.shards {
		sh := &c.shards[i]
		sh.mu.Lock()
		for code, entry := range sh.entries {
			if now.Sub(entry.createdAt) > maxAge {
				delete(sh.entries, code)
				removed++
			}
		}
		sh.mu.Unlock()
	}
	c.count.Add(int64(-removed))

	if removed > 0 {
		c.logger.Debug("Swept expired authorization codes", "count", removed)
	}
	return removed
}

// Len returns the number of pending codes
func (c *CodeStore) Len() int {
	return int(c.count.Load())
}
