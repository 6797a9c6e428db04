package usage

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/xhad/lectern/internal/types"
)

const monthLayout = "2006-01"

type LedgerConfig struct {
	Path         string
	MonthlyLimit float64
	// Pricing is the USD cost of a single token per model key.
	Pricing     map[string]float64
	LockTimeout time.Duration
	Now         func() time.Time
}

// Ledger is a file-backed monthly spend tracker. Every read-modify-write
// happens under both an in-process mutex and an advisory file lock so
// concurrent requests and processes cannot lose updates.
type Ledger struct {
	config LedgerConfig
	mu     sync.Mutex
	lock   *flock.Flock
}

type record struct {
	Month     string             `json:"month"`
	TotalCost float64            `json:"total_cost"`
	Breakdown map[string]float64 `json:"breakdown"`
}

// Stats is a snapshot of the current month's spend.
type Stats struct {
	Month     string             `json:"month"`
	TotalCost float64            `json:"total_cost"`
	Limit     float64            `json:"limit"`
	Remaining float64            `json:"remaining"`
	Breakdown map[string]float64 `json:"breakdown"`
}

var _ types.BudgetGate = (*Ledger)(nil)

func NewWithConfig(config LedgerConfig) (*Ledger, error) {
	if config.Path == "" {
		config.Path = "usage_data.json"
	}
	if config.MonthlyLimit <= 0 {
		config.MonthlyLimit = 5.00
	}
	if config.Pricing == nil {
		config.Pricing = map[string]float64{}
	}
	if config.LockTimeout == 0 {
		config.LockTimeout = 5 * time.Second
	}
	if config.Now == nil {
		config.Now = time.Now
	}

	if dir := filepath.Dir(config.Path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create ledger directory: %w", err)
		}
	}

	return &Ledger{
		config: config,
		lock:   flock.New(config.Path + ".lock"),
	}, nil
}

// CheckAllowed reports whether metered calls may proceed this month. A month
// rollover is persisted as a side effect.
func (l *Ledger) CheckAllowed() (types.Allowance, error) {
	var allowance types.Allowance
	err := l.update(func(r *record) {
		if r.TotalCost >= l.config.MonthlyLimit {
			allowance = types.Allowance{
				Allowed: false,
				Message: LimitMessage(l.config.MonthlyLimit, l.config.Now()),
			}
		} else {
			allowance = types.Allowance{
				Allowed:   true,
				Remaining: l.config.MonthlyLimit - r.TotalCost,
			}
		}
	})
	return allowance, err
}

// Record adds the cost of tokens consumed under modelKey and returns that
// cost. Unknown model keys are priced at zero and logged; config
// validation rejects metered models without a price.
func (l *Ledger) Record(modelKey string, tokens int) (float64, error) {
	price, ok := l.config.Pricing[modelKey]
	if !ok {
		log.Printf("Warning: no price for model key %q, usage not charged", modelKey)
	}
	cost := float64(tokens) * price
	err := l.update(func(r *record) {
		r.TotalCost += cost
		r.Breakdown[modelKey] += cost
	})
	if err != nil {
		return 0, err
	}
	return cost, nil
}

func (l *Ledger) Stats() (Stats, error) {
	var stats Stats
	err := l.update(func(r *record) {
		breakdown := make(map[string]float64, len(r.Breakdown))
		for k, v := range r.Breakdown {
			breakdown[k] = v
		}
		remaining := l.config.MonthlyLimit - r.TotalCost
		if remaining < 0 {
			remaining = 0
		}
		stats = Stats{
			Month:     r.Month,
			TotalCost: r.TotalCost,
			Limit:     l.config.MonthlyLimit,
			Remaining: remaining,
			Breakdown: breakdown,
		}
	})
	return stats, err
}

// update runs fn against the current month's record and saves the result.
func (l *Ledger) update(fn func(r *record)) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	unlock, err := l.acquire()
	if err != nil {
		return err
	}
	defer unlock()

	r := l.load()
	if month := l.config.Now().Format(monthLayout); r.Month != month {
		r = &record{Month: month, Breakdown: map[string]float64{}}
	}

	fn(r)
	return l.save(r)
}

func (l *Ledger) acquire() (func(), error) {
	deadline := time.Now().Add(l.config.LockTimeout)
	for {
		locked, err := l.lock.TryLock()
		if err != nil {
			return func() {}, fmt.Errorf("cannot acquire ledger lock: %w", err)
		}
		if locked {
			return func() { _ = l.lock.Unlock() }, nil
		}
		if time.Now().After(deadline) {
			return func() {}, fmt.Errorf("ledger is locked by another process (lock: %s)", l.lock.Path())
		}
		time.Sleep(50 * time.Millisecond)
	}
}

// load returns an empty record when the file is missing or unreadable.
func (l *Ledger) load() *record {
	r := &record{Breakdown: map[string]float64{}}
	data, err := os.ReadFile(l.config.Path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Printf("Warning: failed to read usage ledger %s: %v", l.config.Path, err)
		}
		return r
	}
	if err := json.Unmarshal(data, r); err != nil {
		log.Printf("Warning: usage ledger %s is corrupt, starting fresh: %v", l.config.Path, err)
		return &record{Breakdown: map[string]float64{}}
	}
	if r.Breakdown == nil {
		r.Breakdown = map[string]float64{}
	}
	return r
}

func (l *Ledger) save(r *record) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode usage ledger: %w", err)
	}
	tmp := l.config.Path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write usage ledger: %w", err)
	}
	if err := os.Rename(tmp, l.config.Path); err != nil {
		return fmt.Errorf("failed to replace usage ledger: %w", err)
	}
	return nil
}
