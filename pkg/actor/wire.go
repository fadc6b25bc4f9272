package actor

import (
	"bufio"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// ═══════════════════════════════════════════════════════════════════════════
// JSON 线上编码
// ═══════════════════════════════════════════════════════════════════════════

// EncodeRecord 把消息编码为带 type 标签的 JSON 记录
func EncodeRecord(msg Message) ([]byte, error) {
	switch msg.(type) {
	case *Instantiate, *Call, *Release, *InstantiateReply, *CallReply:
	default:
		return nil, fmt.Errorf("actor: cannot encode message %T", msg)
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("actor: encode %s record: %w", msg.Kind(), err)
	}
	return sjson.SetBytes(data, "type", msg.Kind())
}

// record 解码时使用的宽松结构
type record struct {
	RequestID    *uint64           `json:"requestId"`
	Name         ClassName         `json:"name"`
	Target       uint64            `json:"target"`
	FunctionName string            `json:"functionName"`
	Args         []json.RawMessage `json:"args"`
	InstanceID   uint64            `json:"instanceId"`
	OK           bool              `json:"ok"`
	Value        json.RawMessage   `json:"value"`
	Fault        string            `json:"fault"`
}

// DecodeRecord 解码一条 JSON 记录
//
// instantiation 与 call 两个方向共用 type 标签，通过 instanceId / ok 字段区分回复。
func DecodeRecord(data []byte) (Message, error) {
	if !gjson.ValidBytes(data) {
		return nil, errors.New("actor: malformed record")
	}
	kind := gjson.GetBytes(data, "type").String()
	isReply := gjson.GetBytes(data, "ok").Exists()

	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("actor: decode %s record: %w", kind, err)
	}

	switch kind {
	case KindInstantiation:
		if gjson.GetBytes(data, "instanceId").Exists() || isReply {
			value, err := decodeValue(rec.Value)
			if err != nil {
				return nil, err
			}
			return &InstantiateReply{
				RequestID:  derefID(rec.RequestID),
				InstanceID: rec.InstanceID,
				OK:         rec.OK,
				Value:      value,
				Fault:      rec.Fault,
			}, nil
		}
		args, err := decodeArgs(rec.Args)
		if err != nil {
			return nil, err
		}
		return &Instantiate{RequestID: derefID(rec.RequestID), Name: rec.Name, Args: args}, nil

	case KindCall:
		if isReply {
			value, err := decodeValue(rec.Value)
			if err != nil {
				return nil, err
			}
			return &CallReply{RequestID: derefID(rec.RequestID), OK: rec.OK, Value: value, Fault: rec.Fault}, nil
		}
		args, err := decodeArgs(rec.Args)
		if err != nil {
			return nil, err
		}
		return &Call{RequestID: rec.RequestID, Target: rec.Target, FunctionName: rec.FunctionName, Args: args}, nil

	case KindRelease:
		return &Release{RequestID: derefID(rec.RequestID), Target: rec.Target}, nil

	default:
		return nil, fmt.Errorf("actor: unknown record type %q", kind)
	}
}

func derefID(id *uint64) uint64 {
	if id == nil {
		return 0
	}
	return *id
}

func decodeArgs(raw []json.RawMessage) ([]any, error) {
	args := make([]any, len(raw))
	for i, r := range raw {
		v, err := decodeValue(r)
		if err != nil {
			return nil, &ArgError{Index: i, Err: err}
		}
		args[i] = v
	}
	return args, nil
}

// decodeValue 解码单个值，{"transfer_b64": ...} 还原为 *Buffer
func decodeValue(raw json.RawMessage) (any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	res := gjson.ParseBytes(raw)
	if res.IsObject() {
		if b64 := res.Get(bufferField); b64.Exists() {
			data, err := base64.StdEncoding.DecodeString(b64.String())
			if err != nil {
				return nil, fmt.Errorf("actor: decode buffer: %w", err)
			}
			return NewBuffer(data), nil
		}
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// ═══════════════════════════════════════════════════════════════════════════
// StreamPort 基于字节流的端口（每行一条 JSON 记录）
// ═══════════════════════════════════════════════════════════════════════════

// maxRecordSize 单条记录的最大长度
const maxRecordSize = 64 << 20

// StreamPort 通过 io.Reader / io.Writer 传输 JSON 记录的端口
//
// 适用于子进程的 stdin/stdout 或网络连接。转移的缓冲区在线上会被编码，
// 但发送方的原值依然失效。
type StreamPort struct {
	r      io.Reader
	w      io.Writer
	wmu    sync.Mutex
	inbox  chan Message
	done   chan struct{}
	once   sync.Once
	logger *slog.Logger
}

// NewStreamPort 创建流端口并启动读取 goroutine
func NewStreamPort(r io.Reader, w io.Writer, logger *slog.Logger) *StreamPort {
	if logger == nil {
		logger = slog.Default()
	}
	p := &StreamPort{
		r:      r,
		w:      w,
		inbox:  make(chan Message, 256),
		done:   make(chan struct{}),
		logger: logger,
	}
	go p.readLoop()
	return p
}

func (p *StreamPort) readLoop() {
	defer p.Close()

	scanner := bufio.NewScanner(p.r)
	scanner.Buffer(make([]byte, 64*1024), maxRecordSize)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		msg, err := DecodeRecord(line)
		if err != nil {
			p.logger.Error("stream port received undecodable record", "error", err)
			return
		}
		select {
		case p.inbox <- msg:
		case <-p.done:
			return
		}
	}
	if err := scanner.Err(); err != nil {
		p.logger.Warn("stream port read failed", "error", err)
	}
}

// Post 实现 Port 接口
func (p *StreamPort) Post(msg Message) error {
	select {
	case <-p.done:
		return ErrClosed
	default:
	}
	data, err := EncodeRecord(msg)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	p.wmu.Lock()
	defer p.wmu.Unlock()
	if _, err := p.w.Write(data); err != nil {
		return fmt.Errorf("actor: stream write: %w", err)
	}
	return nil
}

// Inbox 实现 Port 接口
func (p *StreamPort) Inbox() <-chan Message { return p.inbox }

// Done 实现 Port 接口
func (p *StreamPort) Done() <-chan struct{} { return p.done }

// Close 实现 Port 接口，同时关闭底层实现了 io.Closer 的读写端
func (p *StreamPort) Close() error {
	var errs []error
	p.once.Do(func() {
		close(p.done)
		if c, ok := p.w.(io.Closer); ok {
			errs = append(errs, c.Close())
		}
		if c, ok := p.r.(io.Closer); ok && any(p.r) != any(p.w) {
			errs = append(errs, c.Close())
		}
	})
	return errors.Join(errs...)
}
