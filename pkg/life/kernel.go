package life

import (
	"math/bits"
	"math/rand/v2"
)

// centreBit 3×3 窗口中当前细胞所在的位
const centreBit = 1 << 4

// step 计算一代
//
// src 与 tar 是 (rows+2)×(cols+2) 的带边框网格，值只能是 0 或 1。
// 窗口按列滚动：左列位于 6–8 位，中列 3–5 位，右列 0–2 位，每列上中下依次从高到低。
// 返回写入 resurrected / killed 的元素个数（每个细胞两个元素）。
func step(src, tar []uint8, rows, cols int, rules Ruleset, resurrected, killed []uint32) (nRes, nKill int) {
	stride := cols + 2
	for row := 1; row <= rows; row++ {
		top := (row - 1) * stride
		mid := row * stride
		bot := (row + 1) * stride

		mask := uint16(src[top])<<5 | uint16(src[mid])<<4 | uint16(src[bot])<<3 |
			uint16(src[top+1])<<2 | uint16(src[mid+1])<<1 | uint16(src[bot+1])

		for col := 1; col <= cols; col++ {
			mask = (mask<<3)&RuleMask |
				uint16(src[top+col+1])<<2 |
				uint16(src[mid+col+1])<<1 |
				uint16(src[bot+col+1])

			neighbours := bits.OnesCount16(mask &^ centreBit)
			idx := mid + col
			cell := src[idx]

			rule := rules.Resurrect
			if cell != 0 {
				rule = rules.Survive
			}
			var next uint8
			if rule&(1<<neighbours) != 0 {
				next = 1
			}
			tar[idx] = next

			if cell == next {
				continue
			}
			if next == 1 {
				resurrected[nRes] = uint32(row - 1)
				resurrected[nRes+1] = uint32(col - 1)
				nRes += 2
			} else {
				killed[nKill] = uint32(row - 1)
				killed[nKill+1] = uint32(col - 1)
				nKill += 2
			}
		}
	}
	return nRes, nKill
}

// grid 两种实现共用的网格状态与增量簿记
//
// 存储由具体实现提供：纯实现使用独立切片，原生实现使用线性内存中的视图。
type grid struct {
	rows, cols  int
	source      []uint8
	target      []uint8
	resurrected []uint32
	killed      []uint32
	nRes, nKill int
	rules       Ruleset
	swap        bool
}

func (g *grid) current() []uint8 {
	if g.swap {
		return g.target
	}
	return g.source
}

func (g *grid) nextGen() {
	src, tar := g.source, g.target
	if g.swap {
		src, tar = tar, src
	}
	g.nRes, g.nKill = step(src, tar, g.rows, g.cols, g.rules, g.resurrected, g.killed)
	g.swap = !g.swap
}

func (g *grid) index(row, col int) int {
	return (row+1)*(g.cols+2) + col + 1
}

func (g *grid) inside(row, col int) bool {
	return row >= 0 && row < g.rows && col >= 0 && col < g.cols
}

// record 追加一个翻转，超出容量时丢弃
func (g *grid) record(row, col int, alive bool) {
	if alive {
		if g.nRes+2 <= len(g.resurrected) {
			g.resurrected[g.nRes] = uint32(row)
			g.resurrected[g.nRes+1] = uint32(col)
			g.nRes += 2
		}
		return
	}
	if g.nKill+2 <= len(g.killed) {
		g.killed[g.nKill] = uint32(row)
		g.killed[g.nKill+1] = uint32(col)
		g.nKill += 2
	}
}

func (g *grid) setCell(row, col int, alive bool) {
	if !g.inside(row, col) {
		return
	}
	cur := g.current()
	idx := g.index(row, col)
	var v uint8
	if alive {
		v = 1
	}
	if cur[idx] == v {
		return
	}
	cur[idx] = v

	// 尚未绘制的反向翻转与本次抵消，屏幕上的状态已经正确
	if alive {
		if n, ok := cancel(g.killed[:g.nKill], row, col); ok {
			g.nKill = n
			return
		}
	} else if n, ok := cancel(g.resurrected[:g.nRes], row, col); ok {
		g.nRes = n
		return
	}
	g.record(row, col, alive)
}

// cancel 从增量列表删除 (row, col)，其余条目保持顺序，返回新的长度
func cancel(list []uint32, row, col int) (int, bool) {
	for i := 0; i+1 < len(list); i += 2 {
		if list[i] == uint32(row) && list[i+1] == uint32(col) {
			copy(list[i:], list[i+2:])
			return len(list) - 2, true
		}
	}
	return len(list), false
}

func (g *grid) seed(probability float64, rng *rand.Rand) {
	float := rand.Float64
	if rng != nil {
		float = rng.Float64
	}
	cur := g.current()
	for row := 0; row < g.rows; row++ {
		for col := 0; col < g.cols; col++ {
			idx := g.index(row, col)
			if cur[idx] == 0 && float() < probability {
				cur[idx] = 1
				g.record(row, col, true)
			}
		}
	}
}

func (g *grid) snapshot() []bool {
	cur := g.current()
	cells := make([]bool, g.rows*g.cols)
	for row := 0; row < g.rows; row++ {
		for col := 0; col < g.cols; col++ {
			cells[row*g.cols+col] = cur[g.index(row, col)] == 1
		}
	}
	return cells
}

// load 清空网格后复制重叠区域，存活细胞记为复活
func (g *grid) load(rows, cols int, cells []bool) {
	cur := g.current()
	clear(cur)
	g.nRes, g.nKill = 0, 0
	for row := 0; row < min(rows, g.rows); row++ {
		for col := 0; col < min(cols, g.cols); col++ {
			if cells[row*cols+col] {
				cur[g.index(row, col)] = 1
				g.record(row, col, true)
			}
		}
	}
}

// adopt 把旧网格的重叠区域复制进当前（全空）网格，存活细胞记为复活
func (g *grid) adopt(oldCur []uint8, oldRows, oldCols int) {
	cur := g.current()
	oldStride := oldCols + 2
	for row := 0; row < min(oldRows, g.rows); row++ {
		for col := 0; col < min(oldCols, g.cols); col++ {
			if oldCur[(row+1)*oldStride+col+1] == 1 {
				cur[g.index(row, col)] = 1
				g.record(row, col, true)
			}
		}
	}
}

func (g *grid) resurrectedView() []uint32 { return g.resurrected[:g.nRes:g.nRes] }
func (g *grid) killedView() []uint32      { return g.killed[:g.nKill:g.nKill] }

// paddedCells 带边框的网格单元数
func paddedCells(rows, cols int) int { return (rows + 2) * (cols + 2) }

// deltaCapacity 增量列表容量：每个内部细胞最多翻转一次，每次两个元素
func deltaCapacity(rows, cols int) int { return 2 * rows * cols }
