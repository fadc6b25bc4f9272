package actor

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrClosed 端口或 Actor 已关闭
	ErrClosed = errors.New("actor: closed")

	// ErrDetached 值的所有权已转移，发送方不能再访问
	ErrDetached = errors.New("actor: value has been transferred")
)

// ProtocolError 协议违规：未知的请求 ID、目标实例或类名
//
// 这是逻辑错误，不会被重试，会被记录并交给 FatalHandler 处理。
type ProtocolError struct {
	Op        string
	RequestID uint64
	Target    uint64
	Class     ClassName
	Reason    string
	// Remote 为 true 表示违规由工作端检测并通过回复报告
	Remote bool
}

// Error 实现 error 接口
func (e *ProtocolError) Error() string {
	side := "local"
	if e.Remote {
		side = "remote"
	}
	return fmt.Sprintf("actor: protocol violation (%s) in %s: %s", side, e.Op, e.Reason)
}

// RemoteError 远端方法执行失败，只有错误消息能跨越上下文边界
type RemoteError struct {
	Method  string
	Message string
}

// Error 实现 error 接口
func (e *RemoteError) Error() string {
	if e.Method == "" {
		return "actor: remote failure: " + e.Message
	}
	return fmt.Sprintf("actor: remote %s failed: %s", e.Method, e.Message)
}

// ResponseTimeout 请求在截止时间内未得到回复
type ResponseTimeout struct {
	Actor     string
	RequestID uint64
	Timeout   time.Duration
}

// Error 实现 error 接口
func (e *ResponseTimeout) Error() string {
	return fmt.Sprintf("actor: request %d to %s timed out after %v", e.RequestID, e.Actor, e.Timeout)
}

// TransferError 参数无法转移所有权
type TransferError struct {
	Index int
	Err   error
}

// Error 实现 error 接口
func (e *TransferError) Error() string {
	return fmt.Sprintf("actor: cannot transfer argument %d: %v", e.Index, e.Err)
}

// Unwrap 返回底层错误
func (e *TransferError) Unwrap() error { return e.Err }

// UnknownMethodError 托管对象不支持该方法
type UnknownMethodError struct {
	Method string
}

// Error 实现 error 接口
func (e *UnknownMethodError) Error() string {
	return fmt.Sprintf("actor: unknown method %q", e.Method)
}

// ArgError 参数缺失或类型不匹配
type ArgError struct {
	Index int
	Err   error
}

// Error 实现 error 接口
func (e *ArgError) Error() string {
	return fmt.Sprintf("actor: argument %d: %v", e.Index, e.Err)
}

// Unwrap 返回底层错误
func (e *ArgError) Unwrap() error { return e.Err }

// replyError 把失败回复转换为本地错误
func replyError(method, fault string, value any) error {
	msg := fmt.Sprint(value)
	if s, ok := value.(string); ok {
		msg = s
	}
	if fault == FaultProtocol {
		return &ProtocolError{Op: method, Reason: msg, Remote: true}
	}
	return &RemoteError{Method: method, Message: msg}
}
