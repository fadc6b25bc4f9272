// Package chart 实现种群曲线图工作端
//
// 引擎每一代以 commit 发送 (killed, resurrected) 计数，Graph 在自己的环形缓冲区中
// 累计存活数并保存最近 [Capacity] 个样本；挂载表面后每次更新都重绘三条折线。
// Graph 与引擎的网格和增量列表完全解耦，只通过消息交互。
package chart

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/lwmacct/251219-go-pkg-life/pkg/actor"
	"github.com/lwmacct/251219-go-pkg-life/pkg/render"
)

// ClassName Graph 的注册名
const ClassName actor.ClassName = "Graph"

// Capacity 默认样本容量
const Capacity = 1000

// 方法名
const (
	MethodUpdate     = "update"
	MethodSetSurface = "setSurface"
	MethodSeries     = "series"
	MethodBounds     = "bounds"
	MethodReset      = "reset"
)

// 折线颜色
var (
	AliveColor       = color.RGBA{R: 0xFF, G: 0x26, B: 0xA5, A: 0xFF}
	KilledColor      = color.RGBA{R: 0xFF, G: 0x26, B: 0x38, A: 0xFF}
	ResurrectedColor = color.RGBA{R: 0x26, G: 0xFF, B: 0x26, A: 0xFF}
	GridColor        = color.RGBA{R: 0x20, G: 0x00, B: 0x40, A: 0x40}
)

// gridSpacing 背景网格间距（像素）
const gridSpacing = 10

// Sample 一代的统计
type Sample struct {
	Alive       int `json:"alive"`
	Killed      int `json:"killed"`
	Resurrected int `json:"resurrected"`
}

// Range 闭区间
type Range struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// Span 区间跨度
func (r Range) Span() int { return r.Max - r.Min }

func (r *Range) include(v int) {
	r.Min = min(r.Min, v)
	r.Max = max(r.Max, v)
}

// Bounds 三条曲线各自的取值范围
type Bounds struct {
	Alive       Range `json:"alive"`
	Killed      Range `json:"killed"`
	Resurrected Range `json:"resurrected"`
}

// ═══════════════════════════════════════════════════════════════════════════
// Graph
// ═══════════════════════════════════════════════════════════════════════════

// Graph 种群曲线图
//
// 只在所属工作端上使用，不加锁。
type Graph struct {
	samples []Sample
	start   int
	size    int
	alive   int

	surface render.Surface
}

// New 创建容量为 capacity 的 Graph，capacity 非正时使用 Capacity
func New(capacity int) *Graph {
	if capacity <= 0 {
		capacity = Capacity
	}
	return &Graph{samples: make([]Sample, capacity)}
}

// Update 记录一代的死亡与复活数，挂载表面时重绘
func (g *Graph) Update(killed, resurrected int) {
	g.alive += resurrected - killed
	s := Sample{Alive: g.alive, Killed: killed, Resurrected: resurrected}

	if g.size < len(g.samples) {
		g.samples[(g.start+g.size)%len(g.samples)] = s
		g.size++
	} else {
		// 已满：覆盖最旧的样本
		g.samples[g.start] = s
		g.start = (g.start + 1) % len(g.samples)
	}

	if g.surface != nil {
		g.Draw()
	}
}

// Alive 累计存活数
func (g *Graph) Alive() int { return g.alive }

// Len 当前样本数
func (g *Graph) Len() int { return g.size }

// Series 按时间顺序返回样本副本
func (g *Graph) Series() []Sample {
	out := make([]Sample, g.size)
	for i := range out {
		out[i] = g.at(i)
	}
	return out
}

func (g *Graph) at(i int) Sample {
	return g.samples[(g.start+i)%len(g.samples)]
}

// Bounds 计算三条曲线的最小 / 最大值；没有样本时全部为零
func (g *Graph) Bounds() Bounds {
	if g.size == 0 {
		return Bounds{}
	}
	first := g.at(0)
	b := Bounds{
		Alive:       Range{first.Alive, first.Alive},
		Killed:      Range{first.Killed, first.Killed},
		Resurrected: Range{first.Resurrected, first.Resurrected},
	}
	for i := 1; i < g.size; i++ {
		s := g.at(i)
		b.Alive.include(s.Alive)
		b.Killed.include(s.Killed)
		b.Resurrected.include(s.Resurrected)
	}
	return b
}

// Reset 清空样本与累计存活数
func (g *Graph) Reset() {
	g.start, g.size, g.alive = 0, 0, 0
	if g.surface != nil {
		g.Draw()
	}
}

// SetSurface 挂载绘图表面并立即重绘
func (g *Graph) SetSurface(s render.Surface) {
	g.surface = s
	if s != nil {
		g.Draw()
	}
}

// Surface 当前表面
func (g *Graph) Surface() render.Surface { return g.surface }

// ═══════════════════════════════════════════════════════════════════════════
// 绘制
// ═══════════════════════════════════════════════════════════════════════════

// Draw 清空表面并绘制网格与三条折线
//
// 三条曲线共用一个纵向比例（取跨度最大者），各自减去自身最小值后绘制。
func (g *Graph) Draw() {
	s := g.surface
	if s == nil {
		return
	}
	width, height := s.Size()
	s.Clear(color.Transparent)
	if width == 0 || height == 0 {
		return
	}

	for x := gridSpacing / 2; x < width; x += gridSpacing {
		s.FillRect(image.Rect(x, 0, x+1, height), GridColor)
	}
	for y := gridSpacing / 2; y < height; y += gridSpacing {
		s.FillRect(image.Rect(0, y, width, y+1), GridColor)
	}

	if g.size == 0 {
		return
	}

	b := g.Bounds()
	span := max(b.Alive.Span(), b.Killed.Span(), b.Resurrected.Span(), 1)
	ky := float64(height-1) / float64(span)
	kx := float64(width) / float64(g.size)

	plot := func(c color.Color, base int, value func(Sample) int) {
		var px, py int
		for i := 0; i < g.size; i++ {
			x := int(math.Round(kx * float64(i)))
			y := height - 1 - int(math.Round(ky*float64(value(g.at(i))-base)))
			if i > 0 {
				line(s, px, py, x, y, c)
			} else {
				dot(s, x, y, c)
			}
			px, py = x, y
		}
	}
	plot(AliveColor, b.Alive.Min, func(s Sample) int { return s.Alive })
	plot(KilledColor, b.Killed.Min, func(s Sample) int { return s.Killed })
	plot(ResurrectedColor, b.Resurrected.Min, func(s Sample) int { return s.Resurrected })
}

// dot 2×2 的点
func dot(s render.Surface, x, y int, c color.Color) {
	s.FillRect(image.Rect(x, y-1, x+2, y+1), c)
}

// line Bresenham 直线，线宽 2
func line(s render.Surface, x0, y0, x1, y1 int, c color.Color) {
	dx := abs(x1 - x0)
	dy := -abs(y1 - y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	e := dx + dy
	for {
		dot(s, x0, y0, c)
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * e
		if e2 >= dy {
			e += dy
			x0 += sx
		}
		if e2 <= dx {
			e += dx
			y0 += sy
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// ═══════════════════════════════════════════════════════════════════════════
// 托管
// ═══════════════════════════════════════════════════════════════════════════

// Invoke 实现 actor.Receiver 接口
func (g *Graph) Invoke(_ *actor.Context, method string, args actor.Args) (any, error) {
	switch method {
	case MethodUpdate:
		killed, err := args.Int(0)
		if err != nil {
			return nil, err
		}
		resurrected, err := args.Int(1)
		if err != nil {
			return nil, err
		}
		g.Update(killed, resurrected)
		return nil, nil

	case MethodSetSurface:
		v, err := args.At(0)
		if err != nil {
			return nil, err
		}
		if v == nil {
			g.SetSurface(nil)
			return nil, nil
		}
		s, ok := v.(render.Surface)
		if !ok {
			return nil, &actor.ArgError{Index: 0, Err: fmt.Errorf("expected surface, got %T", v)}
		}
		g.SetSurface(s)
		return nil, nil

	case MethodSeries:
		return g.Series(), nil

	case MethodBounds:
		return g.Bounds(), nil

	case MethodReset:
		g.Reset()
		return nil, nil

	default:
		return nil, &actor.UnknownMethodError{Method: method}
	}
}

// Factory 创建 Graph，可选参数为样本容量
func Factory(_ *actor.Context, args actor.Args) (actor.Receiver, error) {
	capacity := Capacity
	if args.Len() > 0 {
		n, err := args.Int(0)
		if err != nil {
			return nil, err
		}
		capacity = n
	}
	return New(capacity), nil
}

// Register 向注册表登记 Graph
func Register(reg *actor.Registry) *actor.Registry {
	return reg.Register(ClassName, Factory)
}

// NewRegistry 只包含 Graph 的注册表
func NewRegistry() *actor.Registry {
	return Register(actor.NewRegistry())
}
