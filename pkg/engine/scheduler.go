package engine

import (
	"sync"
	"time"
)

// FrameInterval 下一帧原语的间隔（约 60Hz）
const FrameInterval = 16 * time.Millisecond

// TimerThreshold 限速时剩余预算超过该值才改用定时器
const TimerThreshold = 16 * time.Millisecond

// CancelFunc 取消尚未执行的回调
type CancelFunc func()

// Scheduler 渲染循环的调度原语
//
// 回调必须在宿主所在的执行上下文中运行。
type Scheduler interface {
	// NextFrame 在下一帧执行 fn
	NextFrame(fn func()) CancelFunc
	// After 在 d 之后执行 fn
	After(d time.Duration, fn func()) CancelFunc
}

// ═══════════════════════════════════════════════════════════════════════════
// PostScheduler
// ═══════════════════════════════════════════════════════════════════════════

// PostScheduler 基于定时器的调度器，到期后通过 post 回到宿主的工作端循环
type PostScheduler struct {
	interval time.Duration
	post     func(func()) bool
}

// NewPostScheduler 创建调度器，post 通常是 (*actor.Context).Post
func NewPostScheduler(post func(func()) bool) *PostScheduler {
	return &PostScheduler{interval: FrameInterval, post: post}
}

// NextFrame 实现 Scheduler 接口
func (s *PostScheduler) NextFrame(fn func()) CancelFunc {
	return s.After(s.interval, fn)
}

// After 实现 Scheduler 接口
func (s *PostScheduler) After(d time.Duration, fn func()) CancelFunc {
	t := time.AfterFunc(d, func() { s.post(fn) })
	return func() { t.Stop() }
}

// ═══════════════════════════════════════════════════════════════════════════
// ManualScheduler
// ═══════════════════════════════════════════════════════════════════════════

// Primitive 调度原语种类
type Primitive string

const (
	PrimitiveFrame Primitive = "frame"
	PrimitiveTimer Primitive = "timer"
)

// Scheduled 一个待执行的回调
type Scheduled struct {
	Primitive Primitive
	Delay     time.Duration
	fn        func()
	cancelled bool
}

// ManualScheduler 手动推进的调度器，回调只在 Step 时执行
//
// 用于测试与逐帧驱动的无头模式。
type ManualScheduler struct {
	mu      sync.Mutex
	pending []*Scheduled
	last    *Scheduled
}

// NewManualScheduler 创建手动调度器
func NewManualScheduler() *ManualScheduler {
	return &ManualScheduler{}
}

// NextFrame 实现 Scheduler 接口
func (s *ManualScheduler) NextFrame(fn func()) CancelFunc {
	return s.add(&Scheduled{Primitive: PrimitiveFrame, Delay: FrameInterval, fn: fn})
}

// After 实现 Scheduler 接口
func (s *ManualScheduler) After(d time.Duration, fn func()) CancelFunc {
	return s.add(&Scheduled{Primitive: PrimitiveTimer, Delay: d, fn: fn})
}

func (s *ManualScheduler) add(item *Scheduled) CancelFunc {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = append(s.pending, item)
	s.last = item
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		item.cancelled = true
	}
}

// Pending 尚未执行且未取消的回调数
func (s *ManualScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, item := range s.pending {
		if !item.cancelled {
			n++
		}
	}
	return n
}

// Last 最近一次调度的回调
func (s *ManualScheduler) Last() (Scheduled, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return Scheduled{}, false
	}
	return *s.last, true
}

// Step 执行最早的一个未取消回调，没有可执行的回调时返回 false
func (s *ManualScheduler) Step() bool {
	s.mu.Lock()
	var next *Scheduled
	for len(s.pending) > 0 {
		item := s.pending[0]
		s.pending = s.pending[1:]
		if !item.cancelled {
			next = item
			break
		}
	}
	s.mu.Unlock()

	if next == nil {
		return false
	}
	next.fn()
	return true
}

// Run 最多执行 n 个回调，返回实际执行数
func (s *ManualScheduler) Run(n int) int {
	done := 0
	for done < n && s.Step() {
		done++
	}
	return done
}
