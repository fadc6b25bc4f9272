package actor

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// FatalHandler 处理协议违规
//
// 默认实现关闭 Actor，所有未完成的请求以该错误失败。
type FatalHandler func(a *Actor, err *ProtocolError)

// CloseOnFatal 默认的 FatalHandler
func CloseOnFatal(a *Actor, err *ProtocolError) {
	a.closeWith(err)
}

// Option 配置 Actor 与工作端
type Option func(*options)

type options struct {
	id             string
	logger         *slog.Logger
	requestTimeout time.Duration
	fatal          FatalHandler
	mailboxSize    int
	decider        Decider
}

func buildOptions(opts []Option) *options {
	o := &options{
		mailboxSize: 256,
		fatal:       CloseOnFatal,
		decider:     DefaultDecider,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.id == "" {
		o.id = uuid.NewString()
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return o
}

// WithID 指定 Actor ID（默认随机 UUID）
func WithID(id string) Option {
	return func(o *options) { o.id = id }
}

// WithLogger 指定日志器
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithRequestTimeout 设置请求截止时间，0 表示无限等待
func WithRequestTimeout(d time.Duration) Option {
	return func(o *options) { o.requestTimeout = d }
}

// WithFatalHandler 自定义协议违规处理
func WithFatalHandler(h FatalHandler) Option {
	return func(o *options) {
		if h != nil {
			o.fatal = h
		}
	}
}

// WithMailboxSize 设置端口与任务队列容量
func WithMailboxSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.mailboxSize = n
		}
	}
}

// WithDecider 设置工作端失败决策函数
func WithDecider(d Decider) Option {
	return func(o *options) {
		if d != nil {
			o.decider = d
		}
	}
}
