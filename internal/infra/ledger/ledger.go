// Package ledger implements the append-only, hash-linked block chain that
// records finalized trust reports.
//
// Blocks are immutable once appended; reads of historical blocks return
// copies and take only a read lock. Appends serialize on the chain tip.
// An integrity violation found during verification halts all further
// appends — a corrupted chain is never silently extended or repaired.
package ledger

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/vouch-network/vouch/internal/domain"
	"github.com/vouch-network/vouch/internal/infra/observability"
)

// ─── Persistence Boundary ───────────────────────────────────────────────────

// Persister receives appended blocks for durable storage.
type Persister interface {
	SaveBlock(b domain.Block) error
}

// ─── Chain ──────────────────────────────────────────────────────────────────

// Chain is the in-process block chain. The genesis block is deterministic:
// index 0, zero timestamp, the well-known previous-hash sentinel, and an
// empty payload, so every fresh chain starts from the same hash.
type Chain struct {
	mu      sync.RWMutex
	blocks  []domain.Block
	halted  bool
	persist Persister

	// Injectable clock for testing.
	now func() time.Time
}

// New creates a chain holding only the genesis block.
func New() *Chain {
	c := &Chain{now: time.Now}
	c.blocks = []domain.Block{genesisBlock()}
	return c
}

func genesisBlock() domain.Block {
	g := domain.Block{
		Index:        0,
		Timestamp:    time.Unix(0, 0).UTC(),
		PreviousHash: domain.GenesisPreviousHash,
	}
	g.ContentHash = g.ComputeContentHash()
	g.Hash = g.ComputeHash()
	return g
}

// SetPersister attaches a durable block sink.
func (c *Chain) SetPersister(p Persister) { c.persist = p }

// SetClock overrides the chain clock (tests only).
func (c *Chain) SetClock(now func() time.Time) { c.now = now }

// Seed replaces the chain with blocks loaded from storage. The loaded
// chain is verified before it is accepted.
func (c *Chain) Seed(blocks []domain.Block) error {
	if len(blocks) == 0 {
		return nil
	}
	if err := verify(blocks); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.blocks = make([]domain.Block, len(blocks))
	copy(c.blocks, blocks)
	c.halted = false
	observability.BlockHeight.Set(float64(c.blocks[len(c.blocks)-1].Index))
	return nil
}

// ─── Append ─────────────────────────────────────────────────────────────────

// Append bundles the given finalized reports and slash audits into the
// next block and chains it to the current tip. Returns the new block's
// index. No two appends can claim the same index.
func (c *Chain) Append(reports []domain.VerifiedTrustReport, audits []domain.SlashAudit) (uint64, error) {
	if len(reports) == 0 && len(audits) == 0 {
		return 0, fmt.Errorf("append: empty payload")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.halted {
		return 0, fmt.Errorf("append: %w", domain.ErrChainHalted)
	}

	tip := c.blocks[len(c.blocks)-1]
	b := domain.Block{
		Index:            tip.Index + 1,
		Timestamp:        c.now(),
		PreviousHash:     tip.Hash,
		FinalizedReports: reports,
		SlashAudits:      audits,
	}
	b.ContentHash = b.ComputeContentHash()
	b.Hash = b.ComputeHash()

	c.blocks = append(c.blocks, b)
	observability.BlockHeight.Set(float64(b.Index))
	if c.persist != nil {
		if err := c.persist.SaveBlock(b); err != nil {
			log.Printf("[ledger] persist block %d: %v", b.Index, err)
		}
	}
	return b.Index, nil
}

// ─── Verification ───────────────────────────────────────────────────────────

// VerifyChain recomputes every block hash and confirms linkage. On the
// first mismatch it halts further appends and returns ErrChainIntegrity
// with the offending index — manual audit territory, never auto-repaired.
func (c *Chain) VerifyChain() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := verify(c.blocks); err != nil {
		c.halted = true
		observability.ChainVerifications.WithLabelValues("violation").Inc()
		log.Printf("[ledger] %v; appends halted", err)
		return err
	}
	observability.ChainVerifications.WithLabelValues("ok").Inc()
	return nil
}

// Halted reports whether appends are blocked by an integrity violation.
func (c *Chain) Halted() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.halted
}

func verify(blocks []domain.Block) error {
	for i, b := range blocks {
		if !b.Verify() {
			return fmt.Errorf("block %d hash mismatch: %w", b.Index, domain.ErrChainIntegrity)
		}
		if i == 0 {
			if b.PreviousHash != domain.GenesisPreviousHash {
				return fmt.Errorf("genesis previous hash %q: %w", b.PreviousHash, domain.ErrChainIntegrity)
			}
			continue
		}
		if b.Index != blocks[i-1].Index+1 {
			return fmt.Errorf("block %d out of order after %d: %w",
				b.Index, blocks[i-1].Index, domain.ErrChainIntegrity)
		}
		if b.PreviousHash != blocks[i-1].Hash {
			return fmt.Errorf("block %d broken link: %w", b.Index, domain.ErrChainIntegrity)
		}
	}
	return nil
}

// ─── Queries ────────────────────────────────────────────────────────────────

// Height returns the index of the chain tip.
func (c *Chain) Height() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.blocks[len(c.blocks)-1].Index
}

// Block returns a copy of the block at the given index.
func (c *Chain) Block(index uint64) (domain.Block, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if index >= uint64(len(c.blocks)) {
		return domain.Block{}, false
	}
	return c.blocks[index], true
}

// Blocks returns copies of the most recent blocks, newest last.
func (c *Chain) Blocks(limit int) []domain.Block {
	c.mu.RLock()
	defer c.mu.RUnlock()

	n := len(c.blocks)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]domain.Block, limit)
	copy(out, c.blocks[n-limit:])
	return out
}

// ReportsTargeting scans the chain for all finalized reports naming the
// participant as target, oldest first. This is the trust-score input feed.
func (c *Chain) ReportsTargeting(participantID string) []domain.VerifiedTrustReport {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []domain.VerifiedTrustReport
	for _, b := range c.blocks {
		for _, r := range b.FinalizedReports {
			if r.TargetParticipant == participantID {
				out = append(out, r)
			}
		}
	}
	return out
}
