// Package balance implements the trust-point balance store and stake
// manager. It is the only component allowed to mutate a TrustBalance.
//
// Each participant holds total / available / staked point counts. Staking
// moves points from available to staked; resolution either releases them
// back, mints a reward, or slashes them permanently. All four operations
// are atomic per participant: two concurrent locks against an insufficient
// combined balance can never both succeed.
package balance

import (
	"fmt"
	"sync"
	"time"

	"github.com/vouch-network/vouch/internal/domain"
)

// ─── Configuration ──────────────────────────────────────────────────────────

// Config controls balance bootstrapping and decay defaults.
type Config struct {
	// InitialGrant is minted for a participant the first time they are
	// seen. A staking economy needs a non-zero starting float.
	InitialGrant uint64

	// DefaultDecayRate is the fractional monthly reduction applied to
	// dormant balances (0.0–1.0).
	DefaultDecayRate float64

	// DormancyGrace is how long a balance may sit inactive before decay
	// starts accruing.
	DormancyGrace time.Duration
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		InitialGrant:     100,
		DefaultDecayRate: 0.02,
		DormancyGrace:    30 * 24 * time.Hour,
	}
}

// decayMonth is the fixed month length used by the decay schedule.
const decayMonth = 30 * 24 * time.Hour

// ─── Persistence Boundary ───────────────────────────────────────────────────

// Persister receives write-through snapshots of mutated balances.
// The sqlite layer implements it; tests leave it nil.
type Persister interface {
	SaveBalance(b domain.TrustBalance) error
}

// ─── Store ──────────────────────────────────────────────────────────────────

// entry pairs one balance with its own lock so mutations for different
// participants never serialize against each other.
type entry struct {
	mu        sync.Mutex
	balance   domain.TrustBalance
	lastDecay time.Time
}

// Store manages all trust balances. The outer lock only guards the map;
// per-participant mutation happens under the entry lock.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*entry
	config  Config
	persist Persister

	// Injectable clock for testing.
	now func() time.Time
}

// NewStore creates a balance store.
func NewStore(cfg Config) *Store {
	return &Store{
		entries: make(map[string]*entry),
		config:  cfg,
		now:     time.Now,
	}
}

// SetPersister attaches a write-through persistence sink.
func (s *Store) SetPersister(p Persister) { s.persist = p }

// SetClock overrides the store clock (tests only).
func (s *Store) SetClock(now func() time.Time) { s.now = now }

// ─── Lookup ─────────────────────────────────────────────────────────────────

// Seed installs a balance loaded from storage, replacing any existing
// record. Used at boot before any traffic.
func (s *Store) Seed(b domain.TrustBalance) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[b.ParticipantID] = &entry{balance: b, lastDecay: b.LastActivity}
}

// MarkDecayed records that decay has been applied through t for every
// balance. Called at boot with the last recorded decay run so a restart
// never re-applies months an earlier process already decayed.
func (s *Store) MarkDecayed(t time.Time) {
	s.mu.RLock()
	entries := make([]*entry, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	for _, e := range entries {
		e.mu.Lock()
		if t.After(e.lastDecay) {
			e.lastDecay = t
		}
		e.mu.Unlock()
	}
}

// Get returns a copy of the participant's balance.
func (s *Store) Get(participantID string) (domain.TrustBalance, bool) {
	s.mu.RLock()
	e, ok := s.entries[participantID]
	s.mu.RUnlock()
	if !ok {
		return domain.TrustBalance{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.balance, true
}

// GetOrCreate returns the participant's balance, minting the initial grant
// on first sight.
func (s *Store) GetOrCreate(participantID string) domain.TrustBalance {
	b, _ := s.getOrCreateEntry(participantID)
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.balance
}

// TotalPoints returns the participant's pre-decay total, creating the
// balance if needed. Used as the reputation-weight input.
func (s *Store) TotalPoints(participantID string) uint64 {
	return s.GetOrCreate(participantID).TotalPoints
}

// Participants returns all known participant ids.
func (s *Store) Participants() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}
	return ids
}

// Count returns the number of tracked balances.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *Store) getOrCreateEntry(participantID string) (*entry, bool) {
	s.mu.RLock()
	e, ok := s.entries[participantID]
	s.mu.RUnlock()
	if ok {
		return e, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[participantID]; ok {
		return e, false
	}
	now := s.now()
	e = &entry{
		balance: domain.TrustBalance{
			ParticipantID:   participantID,
			TotalPoints:     s.config.InitialGrant,
			AvailablePoints: s.config.InitialGrant,
			DecayRate:       s.config.DefaultDecayRate,
			LastActivity:    now,
		},
		lastDecay: now,
	}
	s.entries[participantID] = e
	s.persistLocked(e.balance)
	return e, true
}

// ─── Stake Manager Operations ───────────────────────────────────────────────

// Lock moves amount from available to staked. Fails with
// ErrInsufficientBalance when the available balance cannot cover it —
// never clamps.
func (s *Store) Lock(participantID string, amount uint64) error {
	if amount == 0 {
		return fmt.Errorf("participant %s: %w", participantID, domain.ErrInvalidAmount)
	}
	e, _ := s.getOrCreateEntry(participantID)
	e.mu.Lock()
	defer e.mu.Unlock()

	if amount > e.balance.AvailablePoints {
		return fmt.Errorf("participant %s: lock %d exceeds available %d: %w",
			participantID, amount, e.balance.AvailablePoints, domain.ErrInsufficientBalance)
	}
	e.balance.AvailablePoints -= amount
	e.balance.StakedPoints += amount
	e.balance.LastActivity = s.now()
	s.persistLocked(e.balance)
	return nil
}

// Release is the inverse of Lock, used on refund.
func (s *Store) Release(participantID string, amount uint64) error {
	if amount == 0 {
		return nil
	}
	e, err := s.lookup(participantID)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if amount > e.balance.StakedPoints {
		return fmt.Errorf("participant %s: release %d exceeds staked %d: %w",
			participantID, amount, e.balance.StakedPoints, domain.ErrInvalidAmount)
	}
	e.balance.StakedPoints -= amount
	e.balance.AvailablePoints += amount
	e.balance.LastActivity = s.now()
	s.persistLocked(e.balance)
	return nil
}

// Reward mints new points: total and available increase together.
func (s *Store) Reward(participantID string, amount uint64) error {
	if amount == 0 {
		return nil
	}
	e, _ := s.getOrCreateEntry(participantID)
	e.mu.Lock()
	defer e.mu.Unlock()

	e.balance.TotalPoints += amount
	e.balance.AvailablePoints += amount
	e.balance.LastActivity = s.now()
	s.persistLocked(e.balance)
	return nil
}

// Slash permanently removes amount from staked and total. Slashed points
// never return to available.
func (s *Store) Slash(participantID string, amount uint64) error {
	if amount == 0 {
		return nil
	}
	e, err := s.lookup(participantID)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if amount > e.balance.StakedPoints {
		return fmt.Errorf("participant %s: slash %d exceeds staked %d: %w",
			participantID, amount, e.balance.StakedPoints, domain.ErrInvalidAmount)
	}
	e.balance.StakedPoints -= amount
	e.balance.TotalPoints -= amount
	e.balance.LastActivity = s.now()
	s.persistLocked(e.balance)
	return nil
}

func (s *Store) lookup(participantID string) (*entry, error) {
	s.mu.RLock()
	e, ok := s.entries[participantID]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("participant %s: %w", participantID, domain.ErrUnknownParticipant)
	}
	return e, nil
}

// ─── Decay ──────────────────────────────────────────────────────────────────

// RunDecay applies the dormancy decay schedule to every balance and
// returns how many were reduced. A balance decays once it has been
// inactive past the grace period, compounding per whole 30-day month.
//
// Staked points are never decayed — points at risk in an open report
// resolve through the consensus outcome instead — so the reduction is
// capped at the available balance. Idempotent: months already covered by
// the last decay pass are skipped, so a second run in the same period is
// a no-op.
func (s *Store) RunDecay() int {
	s.mu.RLock()
	entries := make([]*entry, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	now := s.now()
	decayed := 0
	for _, e := range entries {
		if s.decayEntry(e, now) {
			decayed++
		}
	}
	return decayed
}

func (s *Store) decayEntry(e *entry, now time.Time) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	b := &e.balance
	if b.DecayRate <= 0 {
		return false
	}
	graceEnd := b.LastActivity.Add(s.config.DormancyGrace)
	if !now.After(graceEnd) {
		return false
	}

	monthsTotal := int(now.Sub(graceEnd) / decayMonth)
	monthsApplied := 0
	if e.lastDecay.After(graceEnd) {
		monthsApplied = int(e.lastDecay.Sub(graceEnd) / decayMonth)
	}
	pending := monthsTotal - monthsApplied
	if pending <= 0 {
		return false
	}

	newTotal := domain.DecayedTotal(b.TotalPoints, b.DecayRate, pending)
	delta := b.TotalPoints - newTotal
	if delta > b.AvailablePoints {
		delta = b.AvailablePoints // staked points are exempt from decay
	}
	e.lastDecay = now
	if delta == 0 {
		return false
	}

	b.TotalPoints -= delta
	b.AvailablePoints -= delta
	s.persistLocked(*b)
	return true
}

// persistLocked writes through to storage. Persistence failures are
// logged by the sqlite layer; the in-memory state stays authoritative.
func (s *Store) persistLocked(b domain.TrustBalance) {
	if s.persist == nil {
		return
	}
	_ = s.persist.SaveBalance(b)
}
