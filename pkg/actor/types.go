package actor

import (
	"context"
	"log/slog"
)

// Message 跨上下文传递的协议消息
//
// 所有消息都是带标签的记录，Kind 返回线上的 type 字段。
type Message interface {
	// Kind 返回消息类型标识（instantiation / call / release）
	Kind() string
}

// 线上消息类型标签
const (
	KindInstantiation = "instantiation"
	KindCall          = "call"
	KindRelease       = "release"
)

// FaultProtocol 标记由协议违规（而非方法本身）导致的失败回复
const FaultProtocol = "protocol"

// ClassName 可实例化类的注册键
type ClassName string

// ═══════════════════════════════════════════════════════════════════════════
// 出站消息（控制端 → 工作端）
// ═══════════════════════════════════════════════════════════════════════════

// Instantiate 请求工作端创建一个实例
type Instantiate struct {
	RequestID uint64    `json:"requestId"`
	Name      ClassName `json:"name"`
	Args      []any     `json:"args"`
}

// Kind 实现 Message 接口
func (m *Instantiate) Kind() string { return KindInstantiation }

// Call 调用实例上的方法
//
// RequestID 为 nil 表示 commit（fire-and-forget），工作端不会回复。
type Call struct {
	RequestID    *uint64 `json:"requestId"`
	Target       uint64  `json:"target"`
	FunctionName string  `json:"functionName"`
	Args         []any   `json:"args"`
}

// Kind 实现 Message 接口
func (m *Call) Kind() string { return KindCall }

// Release 释放工作端的实例
type Release struct {
	RequestID uint64 `json:"requestId"`
	Target    uint64 `json:"target"`
}

// Kind 实现 Message 接口
func (m *Release) Kind() string { return KindRelease }

// ═══════════════════════════════════════════════════════════════════════════
// 入站消息（工作端 → 控制端）
// ═══════════════════════════════════════════════════════════════════════════

// InstantiateReply 实例化结果
type InstantiateReply struct {
	RequestID  uint64 `json:"requestId"`
	InstanceID uint64 `json:"instanceId"`
	OK         bool   `json:"ok"`
	Value      any    `json:"value,omitempty"`
	Fault      string `json:"fault,omitempty"`
}

// Kind 实现 Message 接口
func (m *InstantiateReply) Kind() string { return KindInstantiation }

// CallReply 方法调用（或释放）结果
type CallReply struct {
	RequestID uint64 `json:"requestId"`
	OK        bool   `json:"ok"`
	Value     any    `json:"value"`
	Fault     string `json:"fault,omitempty"`
}

// Kind 实现 Message 接口
func (m *CallReply) Kind() string { return KindCall }

// ═══════════════════════════════════════════════════════════════════════════
// 工作端托管对象
// ═══════════════════════════════════════════════════════════════════════════

// Receiver 工作端托管的对象
//
// Invoke 按方法名显式分派，所有调用都在工作端的单一 goroutine 上执行，
// 因此实现无需加锁。
type Receiver interface {
	Invoke(ctx *Context, method string, args Args) (any, error)
}

// Freer 在实例被释放或工作端终止时调用 Free
type Freer interface {
	Free()
}

// Factory 构造托管对象
type Factory func(ctx *Context, args Args) (Receiver, error)

// Method 单个方法实现
type Method func(ctx *Context, args Args) (any, error)

// Methods 以方法表实现 Receiver，便于快速定义简单的托管对象
type Methods map[string]Method

// Invoke 实现 Receiver 接口
func (m Methods) Invoke(ctx *Context, method string, args Args) (any, error) {
	fn, ok := m[method]
	if !ok {
		return nil, &UnknownMethodError{Method: method}
	}
	return fn(ctx, args)
}

// Context 工作端执行上下文
//
// 托管对象通过它回到工作端循环（Post）、创建子工作端或获取日志器。
type Context struct {
	worker     *Worker
	instanceID uint64
	class      ClassName
}

// InstanceID 当前实例 ID（工厂调用时为即将分配的 ID）
func (c *Context) InstanceID() uint64 { return c.instanceID }

// Class 当前实例的类名
func (c *Context) Class() ClassName { return c.class }

// WorkerID 所属工作端 ID
func (c *Context) WorkerID() string { return c.worker.id }

// Logger 带工作端与实例属性的日志器
func (c *Context) Logger() *slog.Logger {
	return c.worker.logger.With("class", string(c.class), "instance", c.instanceID)
}

// Context 获取工作端生命周期 context，工作端终止时取消
func (c *Context) Context() context.Context { return c.worker.ctx }

// Post 把任务投递回工作端循环执行
//
// 定时器等其他 goroutine 必须通过 Post 访问托管对象。
// 工作端已终止时返回 false。
func (c *Context) Post(fn func()) bool { return c.worker.post(fn) }

// Spawn 创建子工作端，子工作端随当前工作端一起终止
func (c *Context) Spawn(reg *Registry, opts ...Option) *Actor {
	return c.worker.spawnChild(reg, opts...)
}
