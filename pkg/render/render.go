// Package render 定义绘图表面协作者及其内存实现
//
// 引擎在影子表面上按增量绘制细胞，再以平移缩放变换整体复制到可见表面。
// 表面可以通过 actor.Transfer 转移给其他工作端（例如图表），转移后原表面不可再用。
package render

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/lwmacct/251219-go-pkg-life/pkg/actor"
)

// ErrDetached 表面所有权已转移
var ErrDetached = errors.New("render: surface has been transferred")

// Surface 绘图表面
//
// 实现只需保证单一持有者下的正确性，引擎只在自己的工作端上调用它。
type Surface interface {
	// Size 宽高（像素）
	Size() (width, height int)
	// Resize 调整尺寸，内容被清空
	Resize(width, height int)
	// FillRect 以纯色填充矩形，超出边界的部分被裁剪
	FillRect(r image.Rectangle, c color.Color)
	// Clear 以纯色填充整个表面
	Clear(c color.Color)
	// Blit 把 src 按变换绘制到表面上
	Blit(src image.Image, t Transform)
	// Image 当前像素
	Image() *image.RGBA
}

// ═══════════════════════════════════════════════════════════════════════════
// Transform
// ═══════════════════════════════════════════════════════════════════════════

// Transform 平移缩放变换：目标坐标 = 源坐标 × Scale + (X, Y)
type Transform struct {
	Scale float64 `json:"scale"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
}

// Identity 恒等变换
var Identity = Transform{Scale: 1}

// normalized Scale 非正时按 1 处理
func (t Transform) normalized() Transform {
	if t.Scale <= 0 || math.IsNaN(t.Scale) || math.IsInf(t.Scale, 0) {
		t.Scale = 1
	}
	return t
}

// IsTranslation 是否只有整数像素的平移
func (t Transform) IsTranslation() bool {
	t = t.normalized()
	return t.Scale == 1 && t.X == math.Trunc(t.X) && t.Y == math.Trunc(t.Y)
}

// Invert 把目标坐标映射回源坐标
func (t Transform) Invert(x, y float64) (float64, float64) {
	t = t.normalized()
	return (x - t.X) / t.Scale, (y - t.Y) / t.Scale
}

// ═══════════════════════════════════════════════════════════════════════════
// ImageSurface
// ═══════════════════════════════════════════════════════════════════════════

// ImageSurface 基于 image.RGBA 的内存表面，可转移
type ImageSurface struct {
	mu       sync.Mutex
	img      *image.RGBA
	detached bool
}

var (
	_ Surface            = (*ImageSurface)(nil)
	_ actor.Transferable = (*ImageSurface)(nil)
)

// NewImageSurface 创建 width×height 的透明表面
func NewImageSurface(width, height int) *ImageSurface {
	return &ImageSurface{img: image.NewRGBA(image.Rect(0, 0, max(width, 0), max(height, 0)))}
}

// own 返回底层图像，已转移时 panic
func (s *ImageSurface) own() *image.RGBA {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.detached {
		panic(ErrDetached)
	}
	return s.img
}

// Size 实现 Surface 接口
func (s *ImageSurface) Size() (int, int) {
	b := s.own().Bounds()
	return b.Dx(), b.Dy()
}

// Resize 实现 Surface 接口
func (s *ImageSurface) Resize(width, height int) {
	s.own()
	s.mu.Lock()
	s.img = image.NewRGBA(image.Rect(0, 0, max(width, 0), max(height, 0)))
	s.mu.Unlock()
}

// FillRect 实现 Surface 接口
func (s *ImageSurface) FillRect(r image.Rectangle, c color.Color) {
	img := s.own()
	draw.Draw(img, r.Intersect(img.Bounds()), image.NewUniform(c), image.Point{}, draw.Src)
}

// Clear 实现 Surface 接口
func (s *ImageSurface) Clear(c color.Color) {
	img := s.own()
	draw.Draw(img, img.Bounds(), image.NewUniform(c), image.Point{}, draw.Src)
}

// Blit 实现 Surface 接口
//
// 纯整数平移直接复制，其余情况按最近邻采样。
func (s *ImageSurface) Blit(src image.Image, t Transform) {
	dst := s.own()
	t = t.normalized()

	if t.IsTranslation() {
		offset := image.Pt(int(t.X), int(t.Y))
		r := src.Bounds().Sub(src.Bounds().Min).Add(offset)
		draw.Draw(dst, r, src, src.Bounds().Min, draw.Src)
		return
	}

	sb := src.Bounds()
	db := dst.Bounds()
	// 只遍历变换后覆盖的目标区域
	area := image.Rect(
		int(math.Floor(t.X)), int(math.Floor(t.Y)),
		int(math.Ceil(t.X+float64(sb.Dx())*t.Scale)), int(math.Ceil(t.Y+float64(sb.Dy())*t.Scale)),
	).Intersect(db)

	for y := area.Min.Y; y < area.Max.Y; y++ {
		for x := area.Min.X; x < area.Max.X; x++ {
			fx, fy := t.Invert(float64(x)+0.5, float64(y)+0.5)
			sx, sy := sb.Min.X+int(math.Floor(fx)), sb.Min.Y+int(math.Floor(fy))
			if !image.Pt(sx, sy).In(sb) {
				continue
			}
			dst.Set(x, y, src.At(sx, sy))
		}
	}
}

// Image 实现 Surface 接口
func (s *ImageSurface) Image() *image.RGBA { return s.own() }

// Detached 实现 actor.Transferable 接口
func (s *ImageSurface) Detached() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.detached
}

// Detach 实现 actor.Transferable 接口，像素不做复制
func (s *ImageSurface) Detach() (actor.Transferable, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.detached {
		return nil, ErrDetached
	}
	moved := &ImageSurface{img: s.img}
	s.img = nil
	s.detached = true
	return moved, nil
}

// Reattach 实现 actor.Transferable 接口
func (s *ImageSurface) Reattach(moved actor.Transferable) error {
	m, ok := moved.(*ImageSurface)
	if !ok || m == s {
		return fmt.Errorf("render: cannot reattach %T to *ImageSurface", moved)
	}
	m.mu.Lock()
	img, detached := m.img, m.detached
	m.img, m.detached = nil, true
	m.mu.Unlock()
	if detached {
		return ErrDetached
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.img = img
	s.detached = false
	return nil
}

// ═══════════════════════════════════════════════════════════════════════════
// 颜色
// ═══════════════════════════════════════════════════════════════════════════

// ParseColor 解析 #rgb、#rrggbb 或 #rrggbbaa
func ParseColor(s string) (color.RGBA, error) {
	hex := strings.TrimPrefix(strings.TrimSpace(s), "#")
	switch len(hex) {
	case 3:
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]}) + "ff"
	case 6:
		hex += "ff"
	case 8:
	default:
		return color.RGBA{}, fmt.Errorf("render: invalid color %q", s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("render: invalid color %q: %w", s, err)
	}
	return color.RGBA{R: uint8(v >> 24), G: uint8(v >> 16), B: uint8(v >> 8), A: uint8(v)}, nil
}

// FormatColor 输出 #rrggbb，非不透明时附带 alpha
func FormatColor(c color.RGBA) string {
	if c.A == 0xFF {
		return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
	}
	return fmt.Sprintf("#%02x%02x%02x%02x", c.R, c.G, c.B, c.A)
}
