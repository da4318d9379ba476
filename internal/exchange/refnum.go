package exchange

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math/rand"
	"sync"
	"time"
)

// RefNumGenerator produces unique internal reference numbers for exchange
// submissions. A reference number identifies one logical submission: retries
// of the same logical operation reuse the number so the exchange can
// de-duplicate, while new submissions always get a fresh one.
type RefNumGenerator struct {
	mu   sync.Mutex
	rnd  *rand.Rand
	last string
	seq  int
	now  func() time.Time
}

// NewRefNumGenerator creates a generator seeded from the current time.
func NewRefNumGenerator() *RefNumGenerator {
	return &RefNumGenerator{
		rnd: rand.New(rand.NewSource(time.Now().UnixNano())),
		now: time.Now,
	}
}

// Next returns a fresh reference number: memberCode + yyMMddHHmmss + a
// 4-digit suffix. Within one wall-clock second the suffix increments, so two
// calls never collide even under a frozen clock.
func (g *RefNumGenerator) Next(memberCode string) string {
	g.mu.Lock()
	defer g.mu.Unlock()

	stamp := g.now().Format("060102150405")
	if stamp == g.last {
		g.seq++
	} else {
		g.last = stamp
		g.seq = g.rnd.Intn(10000)
	}
	return fmt.Sprintf("%s%s%04d", memberCode, stamp, g.seq%10000)
}

// ForKey returns a deterministic reference number for an idempotency key.
// The same (memberCode, key) always maps to the same number, so a retried
// submission reuses its original reference.
func (g *RefNumGenerator) ForKey(memberCode, key string) string {
	sum := sha256.Sum256([]byte(memberCode + ":" + key))
	n := binary.BigEndian.Uint64(sum[:8])
	return fmt.Sprintf("%sR%015d", memberCode, n%1_000_000_000_000_000)
}
