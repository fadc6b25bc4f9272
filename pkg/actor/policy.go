package actor

import (
	"sync"
	"time"
)

// Directive 失败处理指令
type Directive int

const (
	// DirectiveResume 记录失败，工作端继续处理消息
	DirectiveResume Directive = iota
	// DirectiveStop 终止工作端，释放全部实例
	DirectiveStop
)

// String 返回指令名称
func (d Directive) String() string {
	switch d {
	case DirectiveResume:
		return "Resume"
	case DirectiveStop:
		return "Stop"
	default:
		return "Unknown"
	}
}

// Failure 没有回复通道可以承载的失败
//
// 包括 commit 调用失败、投递任务 panic 以及没有请求 ID 的协议违规。
type Failure struct {
	Worker   string
	Instance uint64
	Class    ClassName
	Method   string
	Err      error
	// Panic 非 nil 表示失败来自 recover
	Panic any
	Stack []byte
	// Protocol 为 true 表示失败由协议违规引起
	Protocol bool
}

// Decider 决策函数类型
type Decider func(f *Failure) Directive

// DefaultDecider 默认决策器
// panic 与协议违规停止工作端，普通错误继续运行
func DefaultDecider(f *Failure) Directive {
	if f.Panic != nil || f.Protocol {
		return DirectiveStop
	}
	return DirectiveResume
}

// ResumingDecider 对所有失败继续运行
func ResumingDecider(_ *Failure) Directive {
	return DirectiveResume
}

// StoppingDecider 对所有失败停止工作端
func StoppingDecider(_ *Failure) Directive {
	return DirectiveStop
}

// WindowDecider 时间窗口内失败次数超过上限时停止工作端
type WindowDecider struct {
	MaxFailures    int
	WithinDuration time.Duration
	Decider        Decider

	mu     sync.Mutex
	window []time.Time
}

// NewWindowDecider 创建窗口决策器，decider 为 nil 时使用 DefaultDecider
func NewWindowDecider(maxFailures int, within time.Duration, decider Decider) *WindowDecider {
	if decider == nil {
		decider = DefaultDecider
	}
	return &WindowDecider{
		MaxFailures:    maxFailures,
		WithinDuration: within,
		Decider:        decider,
	}
}

// Decide 可作为 Decider 使用
func (d *WindowDecider) Decide(f *Failure) Directive {
	directive := d.Decider(f)
	if directive != DirectiveResume {
		return directive
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-d.WithinDuration)
	valid := d.window[:0]
	for _, t := range d.window {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}
	d.window = append(valid, now)

	if len(d.window) > d.MaxFailures {
		return DirectiveStop
	}
	return DirectiveResume
}
