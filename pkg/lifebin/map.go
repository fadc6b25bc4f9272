// Package lifebin 实现 .clife 二进制格式
//
// 文件是一串 (key, value) 段，每段都以 LEB128 变长整数前缀长度：
//
//	┌────────┬──────────┬──────────┬────────────┐
//	│ keyLen │ key UTF-8│ valueLen │ value bytes│ ...
//	└────────┴──────────┴──────────┴────────────┘
//
// 数值以小端最少字节存储（0 为空值），字符串为 UTF-8，细胞按位打包（低位在前）。
// [Codec] 在此之上实现 engine.Codec。
package lifebin

import (
	"encoding/binary"
	"errors"
	"fmt"
	"unicode/utf8"
)

var (
	// ErrTruncated 数据在段中间结束
	ErrTruncated = errors.New("lifebin: truncated data")
	// ErrMissingKey 缺少必需的键
	ErrMissingKey = errors.New("lifebin: missing key")
)

// maxNumberBytes 数值段的最大字节数
const maxNumberBytes = 8

type entry struct {
	key   string
	value []byte
}

// Map 保持插入顺序的二进制键值表
//
// 重复 Set 同一个键会原位替换值，顺序不变。
type Map struct {
	entries []entry
	index   map[string]int
}

// NewMap 创建空表
func NewMap() *Map {
	return &Map{index: make(map[string]int)}
}

// Len 段数
func (m *Map) Len() int { return len(m.entries) }

// Keys 按顺序返回所有键
func (m *Map) Keys() []string {
	keys := make([]string, len(m.entries))
	for i, e := range m.entries {
		keys[i] = e.key
	}
	return keys
}

// Set 写入原始字节
func (m *Map) Set(key string, value []byte) *Map {
	if i, ok := m.index[key]; ok {
		m.entries[i].value = value
		return m
	}
	m.index[key] = len(m.entries)
	m.entries = append(m.entries, entry{key: key, value: value})
	return m
}

// SetUint 写入小端最少字节的数值
func (m *Map) SetUint(key string, v uint64) *Map {
	return m.Set(key, EncodeUint(v))
}

// SetString 写入 UTF-8 字符串
func (m *Map) SetString(key, v string) *Map {
	return m.Set(key, []byte(v))
}

// Get 读取原始字节
func (m *Map) Get(key string) ([]byte, bool) {
	i, ok := m.index[key]
	if !ok {
		return nil, false
	}
	return m.entries[i].value, true
}

// Has 是否存在 key
func (m *Map) Has(key string) bool {
	_, ok := m.index[key]
	return ok
}

// Uint 读取数值
func (m *Map) Uint(key string) (uint64, error) {
	raw, ok := m.Get(key)
	if !ok {
		return 0, fmt.Errorf("%w %q", ErrMissingKey, key)
	}
	v, err := DecodeUint(raw)
	if err != nil {
		return 0, fmt.Errorf("lifebin: key %q: %w", key, err)
	}
	return v, nil
}

// String 读取字符串
func (m *Map) String(key string) (string, error) {
	raw, ok := m.Get(key)
	if !ok {
		return "", fmt.Errorf("%w %q", ErrMissingKey, key)
	}
	if !utf8.Valid(raw) {
		return "", fmt.Errorf("lifebin: key %q is not valid UTF-8", key)
	}
	return string(raw), nil
}

// Encode 按插入顺序序列化
func (m *Map) Encode() []byte {
	size := 0
	for _, e := range m.entries {
		size += 2*binary.MaxVarintLen64 + len(e.key) + len(e.value)
	}
	out := make([]byte, 0, size)
	for _, e := range m.entries {
		out = appendSection(out, []byte(e.key))
		out = appendSection(out, e.value)
	}
	return out
}

func appendSection(dst, data []byte) []byte {
	dst = binary.AppendUvarint(dst, uint64(len(data)))
	return append(dst, data...)
}

// Decode 解析 Encode 的输出，重复的键以最后一次为准
func Decode(data []byte) (*Map, error) {
	m := NewMap()
	for offset := 0; offset < len(data); {
		key, next, err := readSection(data, offset)
		if err != nil {
			return nil, err
		}
		if !utf8.Valid(key) {
			return nil, fmt.Errorf("lifebin: key at offset %d is not valid UTF-8", offset)
		}
		value, end, err := readSection(data, next)
		if err != nil {
			return nil, fmt.Errorf("lifebin: key %q: %w", key, err)
		}
		m.Set(string(key), value)
		offset = end
	}
	return m, nil
}

// readSection 读取 offset 处的一段，返回内容与下一段的偏移
func readSection(data []byte, offset int) ([]byte, int, error) {
	if offset >= len(data) {
		return nil, 0, fmt.Errorf("%w: missing length at offset %d", ErrTruncated, offset)
	}
	size, n := binary.Uvarint(data[offset:])
	switch {
	case n == 0:
		return nil, 0, fmt.Errorf("%w: unterminated length at offset %d", ErrTruncated, offset)
	case n < 0:
		return nil, 0, fmt.Errorf("lifebin: length overflows at offset %d", offset)
	}
	start := offset + n
	if size > uint64(len(data)-start) {
		return nil, 0, fmt.Errorf("%w: section of %d bytes at offset %d exceeds input", ErrTruncated, size, start)
	}
	end := start + int(size)
	return data[start:end:end], end, nil
}

// ═══════════════════════════════════════════════════════════════════════════
// 数值
// ═══════════════════════════════════════════════════════════════════════════

// EncodeUint 小端最少字节，0 编码为空
func EncodeUint(v uint64) []byte {
	var out []byte
	for v != 0 {
		out = append(out, byte(v))
		v >>= 8
	}
	return out
}

// DecodeUint 解析 EncodeUint 的输出
func DecodeUint(raw []byte) (uint64, error) {
	if len(raw) > maxNumberBytes {
		return 0, fmt.Errorf("lifebin: number of %d bytes overflows uint64", len(raw))
	}
	var v uint64
	for i, b := range raw {
		v |= uint64(b) << (8 * i)
	}
	return v, nil
}
