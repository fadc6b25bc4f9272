package actor

import (
	"errors"
	"maps"
	"sync"
	"time"
)

// ═══════════════════════════════════════════════════════════════════════════
// 工作端统计信息
// ═══════════════════════════════════════════════════════════════════════════

// WorkerStats 工作端统计快照
type WorkerStats struct {
	// 按消息种类计数
	Instantiations int64
	Calls          int64 // 带 requestId 的调用
	Commits        int64
	Releases       int64

	Handled    int64 // 成功处理的消息数
	Failures   int64 // 方法错误、panic 与构造失败
	Violations int64 // 协议违规
	Instances  int   // 当前存活的实例数

	// Methods 按方法名统计的调用与 commit 次数
	Methods map[string]int64

	MeanLatency time.Duration
	PeakLatency time.Duration

	StartedAt     time.Time
	LastMessageAt time.Time
	LastError     error
}

// Received 接收的消息总数
func (s *WorkerStats) Received() int64 {
	return s.Instantiations + s.Calls + s.Commits + s.Releases
}

// Errors 失败与协议违规的总数
func (s *WorkerStats) Errors() int64 { return s.Failures + s.Violations }

// StatsCollector 统计收集器
//
// 由工作端 goroutine 写入，控制端通过 Actor.Stats 读取快照。
type StatsCollector struct {
	mu    sync.Mutex
	stats WorkerStats
	total time.Duration
}

// NewStatsCollector 创建统计收集器
func NewStatsCollector() *StatsCollector {
	return &StatsCollector{
		stats: WorkerStats{StartedAt: time.Now(), Methods: make(map[string]int64)},
	}
}

// Observe 记录收到的消息
func (c *StatsCollector) Observe(msg Message) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stats.LastMessageAt = time.Now()
	switch m := msg.(type) {
	case *Instantiate:
		c.stats.Instantiations++
	case *Call:
		if m.RequestID == nil {
			c.stats.Commits++
		} else {
			c.stats.Calls++
		}
		c.stats.Methods[m.FunctionName]++
	case *Release:
		c.stats.Releases++
	}
}

// Done 记录一条消息的处理结果
func (c *StatsCollector) Done(latency time.Duration, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err != nil {
		var perr *ProtocolError
		if errors.As(err, &perr) {
			c.stats.Violations++
		} else {
			c.stats.Failures++
		}
		c.stats.LastError = err
		return
	}
	c.stats.Handled++
	c.total += latency
	c.stats.MeanLatency = c.total / time.Duration(c.stats.Handled)
	c.stats.PeakLatency = max(c.stats.PeakLatency, latency)
}

// SetInstances 记录当前实例数
func (c *StatsCollector) SetInstances(n int) {
	c.mu.Lock()
	c.stats.Instances = n
	c.mu.Unlock()
}

// Snapshot 获取统计快照
func (c *StatsCollector) Snapshot() *WorkerStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.Methods = maps.Clone(c.stats.Methods)
	return &s
}
