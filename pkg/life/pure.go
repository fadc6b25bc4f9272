package life

import (
	"fmt"
	"math/rand/v2"
)

// pureUniverse 纯 Go 切片实现
type pureUniverse struct {
	grid
}

func newPure(rows, cols int) *pureUniverse {
	u := &pureUniverse{}
	u.rules = DefaultRuleset
	u.alloc(rows, cols)
	return u
}

func (u *pureUniverse) alloc(rows, cols int) {
	cells := paddedCells(rows, cols)
	u.grid = grid{
		rows:        rows,
		cols:        cols,
		source:      make([]uint8, cells),
		target:      make([]uint8, cells),
		resurrected: make([]uint32, deltaCapacity(rows, cols)),
		killed:      make([]uint32, deltaCapacity(rows, cols)),
		rules:       u.rules,
	}
}

func (u *pureUniverse) Rows() int                { return u.rows }
func (u *pureUniverse) Cols() int                { return u.cols }
func (u *pureUniverse) NextGen()                 { u.nextGen() }
func (u *pureUniverse) Resurrected() []uint32    { return u.resurrectedView() }
func (u *pureUniverse) Killed() []uint32         { return u.killedView() }
func (u *pureUniverse) Ruleset() Ruleset         { return u.rules }
func (u *pureUniverse) Snapshot() []bool         { return u.snapshot() }
func (u *pureUniverse) SetCell(r, c int, a bool) { u.setCell(r, c, a) }

func (u *pureUniverse) SetRuleset(resurrect, survive uint16) {
	u.rules = Ruleset{Resurrect: resurrect & RuleMask, Survive: survive & RuleMask}
}

func (u *pureUniverse) Seed(probability float64, rng *rand.Rand) {
	u.seed(probability, rng)
}

func (u *pureUniverse) Resize(rows, cols int) {
	if rows <= 0 || cols <= 0 {
		panic(fmt.Errorf("%w (got %dx%d)", ErrInvalidSize, rows, cols))
	}
	old, oldRows, oldCols := u.current(), u.rows, u.cols
	u.alloc(rows, cols)
	u.adopt(old, oldRows, oldCols)
}

func (u *pureUniverse) Load(rows, cols int, cells []bool) error {
	if len(cells) != rows*cols {
		return fmt.Errorf("life: %d cells do not match %dx%d", len(cells), rows, cols)
	}
	u.load(rows, cols, cells)
	return nil
}

// Free 纯实现不持有外部内存
func (u *pureUniverse) Free() {}
