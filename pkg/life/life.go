// Package life 实现双缓冲的生命游戏内核
//
// 网格四周有一圈永远为死的边框，内循环因此无需边界判断。每一代按 9 位滚动掩码
// 计算邻居数，并输出本代发生翻转的细胞坐标（复活 / 死亡两个增量列表），
// 供渲染端只绘制变化的像素。
//
// 两个实现共享同一个 [Universe] 接口，由 [Mode] 在构造时选择：
//
//	u, err := life.New(life.ModeNative, 120, 200)
//	if err != nil {
//		return err
//	}
//	defer u.Free()
//	u.Seed(0.55, nil)
//	u.NextGen()
package life

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
)

var (
	// ErrFreed 原生实现释放后仍被访问
	ErrFreed = errors.New("life: universe has been freed")

	// ErrInvalidRuleset 规则掩码超出 9 位或记法无法解析
	ErrInvalidRuleset = errors.New("life: invalid ruleset")

	// ErrInvalidSize 行列数必须为正
	ErrInvalidSize = errors.New("life: rows and cols must be positive")
)

// Universe 自动机内核
//
// 所有方法都只能在拥有它的执行上下文中调用。Resurrected / Killed 返回的切片
// 是内部缓冲区的视图，在下一次 NextGen、SetCell、Load 或 Resize 之前有效。
type Universe interface {
	// Rows 内部行数（不含边框）
	Rows() int
	// Cols 内部列数（不含边框）
	Cols() int

	// NextGen 前进一代：入口清零增量计数，出口交换缓冲区
	NextGen()
	// Resurrected 最近一代复活的细胞，扁平的 (row, col) 对
	Resurrected() []uint32
	// Killed 最近一代死亡的细胞，扁平的 (row, col) 对
	Killed() []uint32

	// SetRuleset 替换规则，从下一次 NextGen 起生效
	SetRuleset(resurrect, survive uint16)
	// Ruleset 当前规则
	Ruleset() Ruleset

	// Seed 以给定概率随机激活细胞，新激活的细胞记入复活列表
	Seed(probability float64, rng *rand.Rand)
	// SetCell 设置单个细胞，状态变化记入对应的增量列表；
	// 若同一细胞已有尚未绘制的反向翻转，两者抵消
	SetCell(row, col int, alive bool)
	// Resize 原地调整大小，保留重叠区域，所有存活细胞记为复活
	Resize(rows, cols int)
	// Snapshot 按行优先返回内部细胞
	Snapshot() []bool
	// Load 把 rows×cols 的细胞复制到重叠区域，其余清空
	Load(rows, cols int, cells []bool) error

	// Free 释放外部持有的内存；没有这类内存时为空操作
	Free()
}

// Mode 内核实现选择
type Mode string

const (
	// ModePure 纯 Go 切片实现
	ModePure Mode = "pure"
	// ModeNative 线性内存实现，全部状态位于一块对齐的内存区，并同步一张 RGBA 图像
	ModeNative Mode = "native"
)

// ParseMode 解析模式名
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModePure, ModeNative:
		return m, nil
	default:
		return "", fmt.Errorf("life: unknown mode %q", s)
	}
}

// New 按模式创建 rows×cols 的空网格
func New(mode Mode, rows, cols int) (Universe, error) {
	if rows <= 0 || cols <= 0 {
		return nil, fmt.Errorf("%w (got %dx%d)", ErrInvalidSize, rows, cols)
	}
	switch mode {
	case ModePure:
		return newPure(rows, cols), nil
	case ModeNative:
		return newNative(rows, cols), nil
	default:
		return nil, fmt.Errorf("life: unknown mode %q", mode)
	}
}

// Alive 统计 Snapshot 中存活的细胞数
func Alive(cells []bool) int {
	n := 0
	for _, c := range cells {
		if c {
			n++
		}
	}
	return n
}
