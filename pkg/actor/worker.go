package actor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"runtime/debug"
	"slices"
	"time"
)

// Worker 工作端执行上下文
//
// 单一 goroutine 独占全部托管实例，只通过端口消息与 Post 投递的任务驱动。
type Worker struct {
	id       string
	port     Port
	registry *Registry

	// 实例表，仅在工作端 goroutine 上访问
	instances map[uint64]*hosted
	nextID    uint64
	children  []*Actor

	tasks chan func()

	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	stopErr error

	decider Decider
	stats   *StatsCollector
	logger  *slog.Logger
}

// hosted 托管实例
type hosted struct {
	class    ClassName
	receiver Receiver
	ctx      *Context
}

func newWorker(parent context.Context, port Port, reg *Registry, o *options) *Worker {
	ctx, cancel := context.WithCancel(parent)
	reg.seal()
	return &Worker{
		id:        o.id,
		port:      port,
		registry:  reg,
		instances: make(map[uint64]*hosted),
		tasks:     make(chan func(), o.mailboxSize),
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
		decider:   o.decider,
		stats:     NewStatsCollector(),
		logger:    o.logger.With("worker", o.id),
	}
}

// Spawn 启动进程内工作端，返回控制端句柄
func Spawn(reg *Registry, opts ...Option) *Actor {
	return spawn(context.Background(), reg, buildOptions(opts))
}

func spawn(parent context.Context, reg *Registry, o *options) *Actor {
	controller, remote := Pipe(o.mailboxSize)
	w := newWorker(parent, remote, reg, o)
	go func() { _ = w.run() }()

	a := newActor(controller, o)
	a.worker = w
	return a
}

// Serve 在给定端口上运行工作端，直到端口关闭或 ctx 取消
//
// 用于流端口（子进程 stdin/stdout、网络连接）。返回导致终止的失败，
// 端口正常关闭时返回 nil。
func Serve(ctx context.Context, port Port, reg *Registry, opts ...Option) error {
	w := newWorker(ctx, port, reg, buildOptions(opts))
	return w.run()
}

// ID 工作端 ID
func (w *Worker) ID() string { return w.id }

// Done 工作端终止后关闭
func (w *Worker) Done() <-chan struct{} { return w.done }

// Stats 统计快照
func (w *Worker) Stats() *WorkerStats { return w.stats.Snapshot() }

// run 工作端消息循环
func (w *Worker) run() error {
	defer w.terminate()

	w.logger.Debug("worker started", "classes", w.registry.Classes())
	for {
		select {
		case <-w.ctx.Done():
			if w.stopErr != nil {
				return w.stopErr
			}
			return w.ctx.Err()
		case <-w.port.Done():
			return nil
		case msg := <-w.port.Inbox():
			w.handle(msg)
		case fn := <-w.tasks:
			w.runTask(fn)
		}
	}
}

// post 把任务投递到工作端循环
func (w *Worker) post(fn func()) bool {
	select {
	case <-w.done:
		return false
	case <-w.ctx.Done():
		return false
	default:
	}
	select {
	case w.tasks <- fn:
		return true
	case <-w.done:
		return false
	}
}

func (w *Worker) spawnChild(reg *Registry, opts ...Option) *Actor {
	o := buildOptions(append([]Option{WithLogger(w.logger)}, opts...))
	child := spawn(w.ctx, reg, o)
	w.children = append(w.children, child)
	return child
}

// terminate 释放全部实例并关闭端口
func (w *Worker) terminate() {
	for _, id := range slices.Sorted(maps.Keys(w.instances)) {
		w.free(id, w.instances[id])
	}
	for _, child := range w.children {
		_ = child.Close()
	}
	w.cancel()
	_ = w.port.Close()
	close(w.done)
	w.logger.Debug("worker stopped", "error", w.stopErr)
}

// ═══════════════════════════════════════════════════════════════════════════
// 消息分派
// ═══════════════════════════════════════════════════════════════════════════

func (w *Worker) handle(msg Message) {
	w.stats.Observe(msg)
	start := time.Now()

	var err error
	switch m := msg.(type) {
	case *Instantiate:
		err = w.instantiate(m)
	case *Call:
		err = w.call(m)
	case *Release:
		err = w.release(m)
	default:
		perr := &ProtocolError{Op: msg.Kind(), Reason: fmt.Sprintf("unexpected message %T", msg)}
		w.logger.Error("protocol violation", "error", perr)
		w.fail(&Failure{Worker: w.id, Err: perr, Protocol: true})
		err = perr
	}

	w.stats.Done(time.Since(start), err)
}

func (w *Worker) instantiate(m *Instantiate) error {
	factory, ok := w.registry.lookup(m.Name)
	if !ok {
		perr := &ProtocolError{
			Op:        KindInstantiation,
			RequestID: m.RequestID,
			Class:     m.Name,
			Reason:    fmt.Sprintf("unknown class %q", m.Name),
		}
		w.logger.Error("protocol violation", "error", perr)
		w.reply(&InstantiateReply{RequestID: m.RequestID, Value: perr.Reason, Fault: FaultProtocol})
		return perr
	}

	id := w.nextID
	ctx := &Context{worker: w, instanceID: id, class: m.Name}

	var receiver Receiver
	_, err := w.guard(ctx, "new", func() (any, error) {
		r, err := factory(ctx, Args(m.Args))
		if err == nil && r == nil {
			err = errors.New("factory returned nil receiver")
		}
		receiver = r
		return nil, err
	})
	if err != nil {
		w.logger.Warn("instantiation failed", "class", m.Name, "error", err)
		w.reply(&InstantiateReply{RequestID: m.RequestID, Value: err.Error()})
		return err
	}

	w.nextID++
	w.instances[id] = &hosted{class: m.Name, receiver: receiver, ctx: ctx}
	w.stats.SetInstances(len(w.instances))
	w.logger.Debug("instance created", "class", m.Name, "instance", id)
	w.reply(&InstantiateReply{RequestID: m.RequestID, InstanceID: id, OK: true})
	return nil
}

func (w *Worker) call(m *Call) error {
	h, ok := w.instances[m.Target]
	if !ok {
		perr := &ProtocolError{
			Op:        m.FunctionName,
			RequestID: derefID(m.RequestID),
			Target:    m.Target,
			Reason:    fmt.Sprintf("unknown target instance %d", m.Target),
		}
		w.logger.Error("protocol violation", "error", perr)
		if m.RequestID != nil {
			w.reply(&CallReply{RequestID: *m.RequestID, Value: perr.Reason, Fault: FaultProtocol})
		} else {
			w.fail(&Failure{Worker: w.id, Instance: m.Target, Method: m.FunctionName, Err: perr, Protocol: true})
		}
		return perr
	}

	var failure *Failure
	value, err := w.guard(h.ctx, m.FunctionName, func() (any, error) {
		return h.receiver.Invoke(h.ctx, m.FunctionName, Args(m.Args))
	}, func(f *Failure) { failure = f })

	if m.RequestID == nil {
		if err != nil {
			if failure == nil {
				failure = &Failure{Worker: w.id, Instance: m.Target, Class: h.class, Method: m.FunctionName, Err: err}
			}
			w.logger.Warn("commit failed", "class", h.class, "instance", m.Target, "method", m.FunctionName, "error", err)
			w.fail(failure)
		}
		return err
	}

	if err != nil {
		w.reply(&CallReply{RequestID: *m.RequestID, Value: err.Error()})
		return err
	}
	w.reply(&CallReply{RequestID: *m.RequestID, OK: true, Value: value})
	return nil
}

func (w *Worker) release(m *Release) error {
	h, ok := w.instances[m.Target]
	if !ok {
		perr := &ProtocolError{
			Op:        KindRelease,
			RequestID: m.RequestID,
			Target:    m.Target,
			Reason:    fmt.Sprintf("unknown target instance %d", m.Target),
		}
		w.logger.Error("protocol violation", "error", perr)
		w.reply(&CallReply{RequestID: m.RequestID, Value: perr.Reason, Fault: FaultProtocol})
		return perr
	}
	w.free(m.Target, h)
	w.stats.SetInstances(len(w.instances))
	w.reply(&CallReply{RequestID: m.RequestID, OK: true})
	return nil
}

// free 从实例表删除并调用 Free
func (w *Worker) free(id uint64, h *hosted) {
	delete(w.instances, id)
	if f, ok := h.receiver.(Freer); ok {
		_, _ = w.guard(h.ctx, "free", func() (any, error) {
			f.Free()
			return nil, nil
		})
	}
	w.logger.Debug("instance released", "class", h.class, "instance", id)
}

// guard 执行 fn 并把 panic 转换为错误
func (w *Worker) guard(ctx *Context, method string, fn func() (any, error), onPanic ...func(*Failure)) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			stack := debug.Stack()
			err = fmt.Errorf("panic in %s: %v", method, r)
			w.logger.Error("panic in hosted object",
				"class", ctx.class,
				"instance", ctx.instanceID,
				"method", method,
				"error", r,
				"stack", string(stack))
			f := &Failure{
				Worker:   w.id,
				Instance: ctx.instanceID,
				Class:    ctx.class,
				Method:   method,
				Err:      err,
				Panic:    r,
				Stack:    stack,
			}
			for _, cb := range onPanic {
				cb(f)
			}
		}
	}()
	return fn()
}

func (w *Worker) runTask(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			stack := debug.Stack()
			err := fmt.Errorf("panic in posted task: %v", r)
			w.logger.Error("panic in posted task", "error", r, "stack", string(stack))
			w.stats.Done(0, err)
			w.fail(&Failure{Worker: w.id, Err: err, Panic: r, Stack: stack})
		}
	}()
	fn()
}

// fail 交给决策函数处理没有回复通道的失败
func (w *Worker) fail(f *Failure) {
	directive := w.decider(f)
	if directive != DirectiveStop {
		return
	}
	w.logger.Error("worker stopping after failure", "method", f.Method, "error", f.Err)
	if w.stopErr == nil {
		w.stopErr = f.Err
	}
	w.cancel()
}

func (w *Worker) reply(msg Message) {
	if err := w.port.Post(msg); err != nil {
		w.logger.Warn("reply dropped", "kind", msg.Kind(), "error", err)
	}
}
