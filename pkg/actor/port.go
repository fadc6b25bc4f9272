package actor

import "sync"

// Port 有序的单向消息端点对
//
// 每个方向保持发送顺序；不同请求的回复到达顺序不做保证。
type Port interface {
	// Post 发送消息，端口关闭后返回 ErrClosed
	Post(msg Message) error
	// Inbox 接收对端发来的消息
	Inbox() <-chan Message
	// Done 在端口关闭后关闭
	Done() <-chan struct{}
	// Close 关闭端口（两端同时关闭）
	Close() error
}

// link 连接两个 pipeEnd 的共享状态
type link struct {
	done chan struct{}
	once sync.Once
}

func (l *link) close() {
	l.once.Do(func() { close(l.done) })
}

// pipeEnd 进程内端口，消息按值传递，不做复制
type pipeEnd struct {
	in   chan Message
	out  chan Message
	link *link
}

// Pipe 创建一对相连的进程内端口
//
// buffer 为每个方向的通道容量，<= 0 时使用默认值 256。
func Pipe(buffer int) (Port, Port) {
	if buffer <= 0 {
		buffer = 256
	}
	l := &link{done: make(chan struct{})}
	a2b := make(chan Message, buffer)
	b2a := make(chan Message, buffer)
	return &pipeEnd{in: b2a, out: a2b, link: l}, &pipeEnd{in: a2b, out: b2a, link: l}
}

// Post 实现 Port 接口
func (p *pipeEnd) Post(msg Message) error {
	select {
	case <-p.link.done:
		return ErrClosed
	default:
	}
	select {
	case p.out <- msg:
		return nil
	case <-p.link.done:
		return ErrClosed
	}
}

// Inbox 实现 Port 接口
func (p *pipeEnd) Inbox() <-chan Message { return p.in }

// Done 实现 Port 接口
func (p *pipeEnd) Done() <-chan struct{} { return p.link.done }

// Close 实现 Port 接口
func (p *pipeEnd) Close() error {
	p.link.close()
	return nil
}
