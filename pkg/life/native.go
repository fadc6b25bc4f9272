package life

import (
	"fmt"
	"image"
	"math/rand/v2"
)

// Imager 持有同步 RGBA 图像的实现
//
// 图像与网格同尺寸，每个细胞一个像素：存活为黑色，死亡为白色。
type Imager interface {
	Image() *image.RGBA
}

// 像素颜色分量
const (
	deadShade  = 0xFF
	aliveShade = 0x00
)

// nativeUniverse 线性内存实现
//
// 两份网格、两个增量列表与图像全部切分自同一块 Memory，
// Resurrected / Killed / Image 返回的都是该内存的视图。
type nativeUniverse struct {
	grid
	mem   *Memory
	image *image.RGBA
	freed bool
}

func newNative(rows, cols int) *nativeUniverse {
	u := &nativeUniverse{}
	u.rules = DefaultRuleset
	u.alloc(rows, cols)
	return u
}

// nativeLayout 计算一块 rows×cols 网格所需的内存
func nativeLayout(rows, cols int) (cells, deltas, pixels uintptr) {
	cells = uintptr(paddedCells(rows, cols))
	deltas = uintptr(deltaCapacity(rows, cols)) * 4
	pixels = uintptr(rows*cols) * 4
	return cells, deltas, pixels
}

func (u *nativeUniverse) alloc(rows, cols int) {
	cells, deltas, pixels := nativeLayout(rows, cols)
	mem := NewMemory(int(2*AlignedSize(cells) + 2*AlignedSize(deltas) + AlignedSize(pixels)))

	source := mustAlloc(mem, "source", cells)
	target := mustAlloc(mem, "target", cells)
	resurrected := mustAlloc(mem, "resurrected", deltas)
	killed := mustAlloc(mem, "killed", deltas)
	pix := mustAlloc(mem, "image", pixels)

	if u.mem != nil {
		u.mem.Release()
	}
	u.mem = mem
	u.grid = grid{
		rows:        rows,
		cols:        cols,
		source:      source,
		target:      target,
		resurrected: uint32View(resurrected),
		killed:      uint32View(killed),
		rules:       u.rules,
	}
	u.image = &image.RGBA{Pix: pix, Stride: 4 * cols, Rect: image.Rect(0, 0, cols, rows)}
	u.repaint()
}

func mustAlloc(mem *Memory, name string, size uintptr) []byte {
	b, err := mem.Alloc(name, size, CacheLineSize)
	if err != nil {
		panic(err)
	}
	return b
}

func (u *nativeUniverse) live() {
	if u.freed {
		panic(ErrFreed)
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// 图像同步
// ═══════════════════════════════════════════════════════════════════════════

func (u *nativeUniverse) paint(row, col int, alive bool) {
	shade := uint8(deadShade)
	if alive {
		shade = aliveShade
	}
	i := u.image.PixOffset(col, row)
	p := u.image.Pix[i : i+4 : i+4]
	p[0], p[1], p[2], p[3] = shade, shade, shade, 0xFF
}

func (u *nativeUniverse) paintDeltas(list []uint32, alive bool) {
	for i := 0; i+1 < len(list); i += 2 {
		u.paint(int(list[i]), int(list[i+1]), alive)
	}
}

// repaint 按当前网格重绘整张图像
func (u *nativeUniverse) repaint() {
	cur := u.current()
	for row := 0; row < u.rows; row++ {
		for col := 0; col < u.cols; col++ {
			u.paint(row, col, cur[u.index(row, col)] == 1)
		}
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Universe 接口实现
// ═══════════════════════════════════════════════════════════════════════════

func (u *nativeUniverse) Rows() int { u.live(); return u.rows }
func (u *nativeUniverse) Cols() int { u.live(); return u.cols }

func (u *nativeUniverse) NextGen() {
	u.live()
	u.nextGen()
	u.paintDeltas(u.killedView(), false)
	u.paintDeltas(u.resurrectedView(), true)
}

func (u *nativeUniverse) Resurrected() []uint32 { u.live(); return u.resurrectedView() }
func (u *nativeUniverse) Killed() []uint32      { u.live(); return u.killedView() }
func (u *nativeUniverse) Ruleset() Ruleset      { u.live(); return u.rules }
func (u *nativeUniverse) Snapshot() []bool      { u.live(); return u.snapshot() }

func (u *nativeUniverse) SetRuleset(resurrect, survive uint16) {
	u.live()
	u.rules = Ruleset{Resurrect: resurrect & RuleMask, Survive: survive & RuleMask}
}

func (u *nativeUniverse) Seed(probability float64, rng *rand.Rand) {
	u.live()
	from := u.nRes
	u.seed(probability, rng)
	u.paintDeltas(u.resurrected[from:u.nRes], true)
}

func (u *nativeUniverse) SetCell(row, col int, alive bool) {
	u.live()
	u.setCell(row, col, alive)
	if u.inside(row, col) {
		u.paint(row, col, alive)
	}
}

func (u *nativeUniverse) Resize(rows, cols int) {
	u.live()
	if rows <= 0 || cols <= 0 {
		panic(fmt.Errorf("%w (got %dx%d)", ErrInvalidSize, rows, cols))
	}
	old := make([]uint8, len(u.current()))
	copy(old, u.current())
	oldRows, oldCols := u.rows, u.cols
	u.alloc(rows, cols)
	u.adopt(old, oldRows, oldCols)
	u.repaint()
}

func (u *nativeUniverse) Load(rows, cols int, cells []bool) error {
	u.live()
	if len(cells) != rows*cols {
		return fmt.Errorf("life: %d cells do not match %dx%d", len(cells), rows, cols)
	}
	u.load(rows, cols, cells)
	u.repaint()
	return nil
}

// Image 返回与网格同步的图像，像素直接指向线性内存
func (u *nativeUniverse) Image() *image.RGBA {
	u.live()
	return u.image
}

// Memory 底层线性内存
func (u *nativeUniverse) Memory() *Memory {
	u.live()
	return u.mem
}

// Free 释放线性内存，之后的任何调用都会以 ErrFreed panic；重复调用无效果
func (u *nativeUniverse) Free() {
	if u.freed {
		return
	}
	u.freed = true
	u.mem.Release()
	u.grid = grid{}
	u.image = nil
}
