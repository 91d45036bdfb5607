package compilation

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// IDGenerator names compilations.
type IDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 compilation ids. It is
// stateless and safe for concurrent use.
type UUIDv7Generator struct{}

func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// FixedGenerator returns predetermined ids, for tests that compare output
// containing them. It panics once the ids are used up.
type FixedGenerator struct {
	mu  sync.Mutex
	ids []string
	idx int
}

func NewFixedGenerator(ids ...string) *FixedGenerator {
	return &FixedGenerator{ids: ids}
}

func (g *FixedGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.idx >= len(g.ids) {
		panic("FixedGenerator: all ids used")
	}
	id := g.ids[g.idx]
	g.idx++
	return id
}

// PassClock numbers the passes of a compiler. The first pass is 1.
type PassClock struct {
	seq atomic.Int64
}

// NewPassClockAt starts a clock after start, so a compiler reopening a
// journal continues its numbering.
func NewPassClockAt(start int64) *PassClock {
	c := &PassClock{}
	c.seq.Store(start)
	return c
}

func (c *PassClock) Next() int64    { return c.seq.Add(1) }
func (c *PassClock) Current() int64 { return c.seq.Load() }
