package actor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// requestIDs 进程级请求 ID 计数器
var requestIDs atomic.Uint64

// maxExpired 记住的已超时请求 ID 个数
const maxExpired = 1024

// Actor 控制端句柄：一个通往工作端的有序端口及其关联表
//
// 方法可以在任意 goroutine 上并发调用。回复按请求 ID 关联，
// 不假设不同请求的完成顺序。
type Actor struct {
	id      string
	port    Port
	timeout time.Duration
	fatal   FatalHandler
	logger  *slog.Logger

	mu       sync.Mutex
	pending  map[uint64]*pendingRequest
	expired  []uint64
	expiredN map[uint64]struct{}
	closed   bool
	closeErr error

	done   chan struct{}
	worker *Worker
}

// pendingRequest 等待回复的请求
type pendingRequest struct {
	op      string
	future  *Future
	timer   *time.Timer
	resolve func(Message) (any, error)
}

// Connect 在已有端口上创建控制端句柄
func Connect(port Port, opts ...Option) *Actor {
	return newActor(port, buildOptions(opts))
}

func newActor(port Port, o *options) *Actor {
	a := &Actor{
		id:       o.id,
		port:     port,
		timeout:  o.requestTimeout,
		fatal:    o.fatal,
		logger:   o.logger.With("actor", o.id),
		pending:  make(map[uint64]*pendingRequest),
		expiredN: make(map[uint64]struct{}),
		done:     make(chan struct{}),
	}
	go a.readLoop()
	return a
}

// ID Actor ID
func (a *Actor) ID() string { return a.id }

// Done Actor 关闭后关闭
func (a *Actor) Done() <-chan struct{} { return a.done }

// Pending 未完成的请求数
func (a *Actor) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.pending)
}

// Err 关闭原因，未关闭时为 nil
func (a *Actor) Err() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.closeErr
}

// Stats 进程内工作端的统计快照，连接到外部端口时返回 nil
func (a *Actor) Stats() *WorkerStats {
	if a.worker == nil {
		return nil
	}
	return a.worker.Stats()
}

// Worker 进程内工作端，连接到外部端口时返回 nil
func (a *Actor) Worker() *Worker { return a.worker }

// Close 关闭端口，所有未完成请求以 ErrClosed 失败
func (a *Actor) Close() error {
	a.closeWith(ErrClosed)
	return nil
}

// ═══════════════════════════════════════════════════════════════════════════
// 请求
// ═══════════════════════════════════════════════════════════════════════════

// CreateAsync 请求工作端创建 class 的实例
func (a *Actor) CreateAsync(class ClassName, args ...any) *Future {
	return a.request(string(class), args,
		func(id uint64, raw []any) Message {
			return &Instantiate{RequestID: id, Name: class, Args: raw}
		},
		func(msg Message) (any, error) {
			reply, ok := msg.(*InstantiateReply)
			if !ok {
				return nil, &ProtocolError{Op: KindInstantiation, Class: class, Reason: fmt.Sprintf("unexpected reply %T", msg)}
			}
			if !reply.OK {
				err := replyError(string(class), reply.Fault, reply.Value)
				if perr, isProto := err.(*ProtocolError); isProto {
					perr.RequestID = reply.RequestID
					perr.Class = class
				}
				return nil, err
			}
			return &Instance{actor: a, id: reply.InstanceID, class: class}, nil
		})
}

// Create 创建实例并等待结果
func (a *Actor) Create(ctx context.Context, class ClassName, args ...any) (*Instance, error) {
	v, err := a.CreateAsync(class, args...).Await(ctx)
	if err != nil {
		return nil, err
	}
	return v.(*Instance), nil
}

// request 注册请求并发送消息
//
// 转移校验失败时不会发送任何内容，也不会留下待处理条目；投递失败时交还已转移的值。
func (a *Actor) request(op string, args []any, build func(id uint64, raw []any) Message, resolve func(Message) (any, error)) *Future {
	f := newFuture()

	if err := a.Err(); err != nil {
		f.settle(nil, err)
		return f
	}
	raw, moved, err := resolveArgs(args)
	if err != nil {
		f.settle(nil, err)
		return f
	}

	id := requestIDs.Add(1)
	p := &pendingRequest{op: op, future: f, resolve: resolve}

	a.mu.Lock()
	if a.closed {
		err := a.closeErr
		a.mu.Unlock()
		moved.undo()
		f.settle(nil, err)
		return f
	}
	a.pending[id] = p
	if a.timeout > 0 {
		p.timer = time.AfterFunc(a.timeout, func() { a.expire(id) })
	}
	a.mu.Unlock()

	if err := a.port.Post(build(id, raw)); err != nil {
		moved.undo()
		if a.take(id) != nil {
			p.stop()
			f.settle(nil, err)
		}
	}
	return f
}

// commit 发送不带请求 ID 的调用
func (a *Actor) commit(target uint64, method string, args []any) error {
	if err := a.Err(); err != nil {
		return err
	}
	raw, moved, err := resolveArgs(args)
	if err != nil {
		return err
	}
	if err := a.port.Post(&Call{Target: target, FunctionName: method, Args: raw}); err != nil {
		moved.undo()
		return err
	}
	return nil
}

// take 从关联表取出请求
func (a *Actor) take(id uint64) *pendingRequest {
	a.mu.Lock()
	defer a.mu.Unlock()
	p, ok := a.pending[id]
	if !ok {
		return nil
	}
	delete(a.pending, id)
	return p
}

func (a *Actor) expire(id uint64) {
	a.mu.Lock()
	p, ok := a.pending[id]
	if ok {
		delete(a.pending, id)
		a.rememberExpired(id)
	}
	a.mu.Unlock()
	if !ok {
		return
	}
	a.logger.Warn("request timed out", "request_id", id, "op", p.op, "timeout", a.timeout)
	p.future.settle(nil, &ResponseTimeout{Actor: a.id, RequestID: id, Timeout: a.timeout})
}

// rememberExpired 调用方持有 a.mu
func (a *Actor) rememberExpired(id uint64) {
	if len(a.expired) >= maxExpired {
		delete(a.expiredN, a.expired[0])
		a.expired = a.expired[1:]
	}
	a.expired = append(a.expired, id)
	a.expiredN[id] = struct{}{}
}

// ═══════════════════════════════════════════════════════════════════════════
// 回复处理
// ═══════════════════════════════════════════════════════════════════════════

func (a *Actor) readLoop() {
	for {
		select {
		case msg := <-a.port.Inbox():
			a.dispatch(msg)
		case <-a.port.Done():
			// 端口关闭前已入队的回复仍然有效
			for {
				select {
				case msg := <-a.port.Inbox():
					a.dispatch(msg)
				default:
					a.closeWith(ErrClosed)
					return
				}
			}
		}
	}
}

func (a *Actor) dispatch(msg Message) {
	var id uint64
	switch m := msg.(type) {
	case *InstantiateReply:
		id = m.RequestID
	case *CallReply:
		id = m.RequestID
	default:
		a.violation(&ProtocolError{Op: msg.Kind(), Reason: fmt.Sprintf("unexpected message %T from worker", msg)})
		return
	}

	a.mu.Lock()
	p, ok := a.pending[id]
	if ok {
		delete(a.pending, id)
	}
	_, late := a.expiredN[id]
	a.mu.Unlock()

	if !ok {
		if late {
			a.logger.Warn("late reply for expired request", "request_id", id, "kind", msg.Kind())
			return
		}
		a.violation(&ProtocolError{Op: msg.Kind(), RequestID: id, Reason: "reply names unknown request id"})
		return
	}

	p.stop()
	value, err := p.resolve(msg)
	p.future.settle(value, err)

	if perr, isProto := err.(*ProtocolError); isProto {
		if perr.RequestID == 0 {
			perr.RequestID = id
		}
		a.violation(perr)
	}
}

func (a *Actor) violation(err *ProtocolError) {
	a.logger.Error("protocol violation", "error", err)
	a.fatal(a, err)
}

// closeWith 关闭端口并以 err 结束全部未完成请求
func (a *Actor) closeWith(err error) {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	a.closeErr = err
	pending := a.pending
	a.pending = make(map[uint64]*pendingRequest)
	a.mu.Unlock()

	_ = a.port.Close()
	for _, p := range pending {
		p.stop()
		p.future.settle(nil, err)
	}
	close(a.done)
	a.logger.Debug("actor closed", "reason", err, "failed_requests", len(pending))
}

func (p *pendingRequest) stop() {
	if p.timer != nil {
		p.timer.Stop()
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Future
// ═══════════════════════════════════════════════════════════════════════════

// Future 跨上下文调用的结果，恰好完成一次
type Future struct {
	done  chan struct{}
	once  sync.Once
	value any
	err   error
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

func (f *Future) settle(value any, err error) {
	f.once.Do(func() {
		f.value = value
		f.err = err
		close(f.done)
	})
}

// Done 完成后关闭
func (f *Future) Done() <-chan struct{} { return f.done }

// Await 等待结果
//
// ctx 取消只结束本次等待，请求本身不会被撤销，迟到的回复仍会正常关联。
func (f *Future) Await(ctx context.Context) (any, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Settled 是否已完成
func (f *Future) Settled() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Instance 远端实例代理
// ═══════════════════════════════════════════════════════════════════════════

// Instance 工作端实例的控制端代理
type Instance struct {
	actor *Actor
	id    uint64
	class ClassName
}

// ID 实例 ID
func (i *Instance) ID() uint64 { return i.id }

// Class 类名
func (i *Instance) Class() ClassName { return i.class }

// Actor 所属 Actor
func (i *Instance) Actor() *Actor { return i.actor }

// CallAsync 调用方法，返回 Future
func (i *Instance) CallAsync(method string, args ...any) *Future {
	return i.actor.request(method, args,
		func(id uint64, raw []any) Message {
			return &Call{RequestID: &id, Target: i.id, FunctionName: method, Args: raw}
		},
		func(msg Message) (any, error) {
			return resolveCall(method, i.id, msg)
		})
}

// Call 调用方法并等待结果
func (i *Instance) Call(ctx context.Context, method string, args ...any) (any, error) {
	return i.CallAsync(method, args...).Await(ctx)
}

// Commit 发送不需要回复的调用
//
// 不登记关联表，返回的错误只表示本地发送失败。
func (i *Instance) Commit(method string, args ...any) error {
	return i.actor.commit(i.id, method, args)
}

// Release 释放工作端实例，若实现了 Freer 会调用 Free
func (i *Instance) Release(ctx context.Context) error {
	_, err := i.actor.request(KindRelease, nil,
		func(id uint64, _ []any) Message {
			return &Release{RequestID: id, Target: i.id}
		},
		func(msg Message) (any, error) {
			return resolveCall(KindRelease, i.id, msg)
		}).Await(ctx)
	return err
}

func resolveCall(method string, target uint64, msg Message) (any, error) {
	reply, ok := msg.(*CallReply)
	if !ok {
		return nil, &ProtocolError{Op: method, Target: target, Reason: fmt.Sprintf("unexpected reply %T", msg)}
	}
	if !reply.OK {
		err := replyError(method, reply.Fault, reply.Value)
		if perr, isProto := err.(*ProtocolError); isProto {
			perr.RequestID = reply.RequestID
			perr.Target = target
		}
		return nil, err
	}
	return reply.Value, nil
}
