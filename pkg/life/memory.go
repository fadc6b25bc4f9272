package life

import (
	"fmt"
	"unsafe"
)

// CacheLineSize 内存区基址与默认分配的对齐粒度
const CacheLineSize = 64

// Region 内存区中一段已命名的分配
type Region struct {
	Name   string
	Offset uintptr
	Size   uintptr
}

// Memory 一块预先分配的线性内存，按对齐的顺序分配切分
//
// 原生实现的全部状态（两份网格、两个增量列表、图像）都位于同一块 Memory 中，
// 增量列表与图像以零拷贝视图的形式交给调用方。
type Memory struct {
	buffer   []byte
	offset   uintptr
	regions  map[string]Region
	released bool
}

// AlignedSize 向上取整到 CacheLineSize 的倍数
func AlignedSize(size uintptr) uintptr {
	return (size + CacheLineSize - 1) &^ (CacheLineSize - 1)
}

// alignedBytes 分配基址按 CacheLineSize 对齐的字节切片
func alignedBytes(size int) []byte {
	if size == 0 {
		return nil
	}
	buf := make([]byte, size+CacheLineSize-1)
	ptr := uintptr(unsafe.Pointer(&buf[0]))
	offset := uintptr(0)
	if mod := ptr % CacheLineSize; mod != 0 {
		offset = CacheLineSize - mod
	}
	return buf[offset : offset+uintptr(size) : offset+uintptr(size)]
}

// NewMemory 分配 size 字节（向上对齐）的内存区
func NewMemory(size int) *Memory {
	return &Memory{
		buffer:  alignedBytes(int(AlignedSize(uintptr(size)))),
		regions: make(map[string]Region),
	}
}

// Alloc 以 alignment 对齐分配 size 字节并登记为 name
func (m *Memory) Alloc(name string, size, alignment uintptr) ([]byte, error) {
	if m.released {
		return nil, ErrFreed
	}
	if alignment == 0 || alignment&(alignment-1) != 0 {
		return nil, fmt.Errorf("life: alignment %d is not a power of two", alignment)
	}
	if _, dup := m.regions[name]; dup {
		return nil, fmt.Errorf("life: region %q already allocated", name)
	}
	start := (m.offset + alignment - 1) &^ (alignment - 1)
	end := start + size
	if end > uintptr(len(m.buffer)) {
		return nil, fmt.Errorf("life: region %q needs %d bytes, %d remaining", name, size, uintptr(len(m.buffer))-start)
	}
	m.offset = end
	m.regions[name] = Region{Name: name, Offset: start, Size: size}
	return m.buffer[start:end:end], nil
}

// Region 查询已分配的区域
func (m *Memory) Region(name string) (Region, bool) {
	r, ok := m.regions[name]
	return r, ok
}

// Size 总字节数
func (m *Memory) Size() int { return len(m.buffer) }

// Used 已分配字节数（含对齐填充）
func (m *Memory) Used() int { return int(m.offset) }

// Released 是否已释放
func (m *Memory) Released() bool { return m.released }

// Release 丢弃底层内存，之后的分配返回 ErrFreed
func (m *Memory) Release() {
	m.buffer = nil
	m.regions = nil
	m.offset = 0
	m.released = true
}

// uint32View 把 4 字节对齐的字节切片重新解释为 []uint32，不复制
func uint32View(b []byte) []uint32 {
	if len(b) == 0 {
		return nil
	}
	return unsafe.Slice((*uint32)(unsafe.Pointer(&b[0])), len(b)/4)
}
