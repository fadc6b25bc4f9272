package actor

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sync"
)

// Transferable 可以在上下文之间转移所有权的值
//
// Detach 返回交给接收方的新持有者，并使原值失效；之后发送方对原值的任何访问
// 都必须失败。Reattach 把 Detach 返回的持有者交还原值，只在消息未能投递时使用。
// 实现必须是指针类型。
type Transferable interface {
	Detach() (Transferable, error)
	Detached() bool
	Reattach(moved Transferable) error
}

// transferMarker 标记需要转移而非复制的参数
type transferMarker struct {
	value Transferable
}

// Transfer 标记 v 在下一次发送时转移所有权
//
// 用法示例:
//
//	buf := actor.NewBuffer(data)
//	inst.Commit("load", actor.Transfer(buf))
//	// 此后 buf.Bytes() 返回 ErrDetached
func Transfer(v Transferable) any {
	return transferMarker{value: v}
}

// handoff 一次发送中已转移的值
type handoff struct {
	origin Transferable
	moved  Transferable
}

// transfers 消息投递失败时交还所有权
type transfers []handoff

// undo 按转移的逆序交还
func (t transfers) undo() {
	for i := len(t) - 1; i >= 0; i-- {
		_ = t[i].origin.Reattach(t[i].moved)
	}
}

// resolveArgs 展开 Transfer 标记并执行所有权转移
//
// 先校验全部标记再统一转移，校验失败时不会有任何值被转移。
// 返回的 transfers 供投递失败时交还所有权。
func resolveArgs(args []any) ([]any, transfers, error) {
	seen := make(map[any]struct{})
	marked := false
	for i, arg := range args {
		m, ok := arg.(transferMarker)
		if !ok {
			continue
		}
		marked = true
		if m.value == nil {
			return nil, nil, &TransferError{Index: i, Err: errors.New("nil value")}
		}
		if reflect.ValueOf(m.value).Kind() != reflect.Pointer {
			return nil, nil, &TransferError{Index: i, Err: errors.New("transferable must be a pointer")}
		}
		if m.value.Detached() {
			return nil, nil, &TransferError{Index: i, Err: ErrDetached}
		}
		if _, dup := seen[m.value]; dup {
			return nil, nil, &TransferError{Index: i, Err: errors.New("value transferred twice in one message")}
		}
		seen[m.value] = struct{}{}
	}

	if !marked {
		return args, nil, nil
	}

	raw := make([]any, len(args))
	var moved transfers
	for i, arg := range args {
		m, ok := arg.(transferMarker)
		if !ok {
			raw[i] = arg
			continue
		}
		v, err := m.value.Detach()
		if err != nil {
			moved.undo()
			return nil, nil, &TransferError{Index: i, Err: err}
		}
		moved = append(moved, handoff{origin: m.value, moved: v})
		raw[i] = v
	}
	return raw, moved, nil
}

// ═══════════════════════════════════════════════════════════════════════════
// Buffer 可转移的字节缓冲区
// ═══════════════════════════════════════════════════════════════════════════

// Buffer 拥有独占所有权的字节缓冲区
//
// 通过 Transfer 发送后原 Buffer 失效，底层数组不做复制直接交给接收方。
type Buffer struct {
	mu       sync.Mutex
	data     []byte
	detached bool
}

// NewBuffer 以 data 创建缓冲区，调用方此后不应再直接使用 data
func NewBuffer(data []byte) *Buffer {
	return &Buffer{data: data}
}

// Bytes 返回底层数据，所有权已转移时返回 ErrDetached
func (b *Buffer) Bytes() ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.detached {
		return nil, ErrDetached
	}
	return b.data, nil
}

// Len 返回长度，已转移时为 0
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.data)
}

// Detached 实现 Transferable 接口
func (b *Buffer) Detached() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.detached
}

// Detach 实现 Transferable 接口
func (b *Buffer) Detach() (Transferable, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.detached {
		return nil, ErrDetached
	}
	moved := &Buffer{data: b.data}
	b.data = nil
	b.detached = true
	return moved, nil
}

// Reattach 实现 Transferable 接口
func (b *Buffer) Reattach(moved Transferable) error {
	m, ok := moved.(*Buffer)
	if !ok || m == b {
		return fmt.Errorf("actor: cannot reattach %T to *Buffer", moved)
	}
	data, err := m.take()
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data = data
	b.detached = false
	return nil
}

// take 取走数据并使 b 失效
func (b *Buffer) take() ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.detached {
		return nil, ErrDetached
	}
	data := b.data
	b.data = nil
	b.detached = true
	return data, nil
}

// bufferField 缓冲区在 JSON 流中的字段名
const bufferField = "transfer_b64"

// MarshalJSON 编码为 {"transfer_b64": "..."}
func (b *Buffer) MarshalJSON() ([]byte, error) {
	data, err := b.Bytes()
	if err != nil {
		return nil, err
	}
	return json.Marshal(map[string]string{bufferField: base64.StdEncoding.EncodeToString(data)})
}
