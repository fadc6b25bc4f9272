package lifebin

import (
	"errors"
	"fmt"
	"math"

	"github.com/lwmacct/251219-go-pkg-life/pkg/engine"
	"github.com/lwmacct/251219-go-pkg-life/pkg/life"
)

// Version 当前格式版本
const Version = 1

// 键名
const (
	KeyVersion    = "version"
	KeyRows       = "rows"
	KeyCols       = "cols"
	KeyCellSize   = "cellSize"
	KeyResurrect  = "resurrect"
	KeySurvive    = "survive"
	KeyGeneration = "generation"
	KeyFPSLimit   = "fpsLimit"
	KeyCells      = "cells"
)

// ErrVersion 不支持的格式版本
var ErrVersion = errors.New("lifebin: unsupported version")

// maxCells 单个文件允许的细胞数上限
const maxCells = 1 << 28

// Codec 实现 engine.Codec
//
// rows、cols、cells 为必需键；缺少规则时使用 B3/S23，其余数值缺省为 0。
type Codec struct{}

var _ engine.Codec = Codec{}

// Encode 实现 engine.Codec 接口
func (Codec) Encode(s engine.Snapshot) ([]byte, error) {
	if s.Rows < 0 || s.Cols < 0 || len(s.Cells) != s.Rows*s.Cols {
		return nil, fmt.Errorf("lifebin: %d cells do not match %dx%d", len(s.Cells), s.Rows, s.Cols)
	}
	if s.CellSize < 0 || s.FPSLimit < 0 {
		return nil, fmt.Errorf("lifebin: negative cell size %d or fps limit %d", s.CellSize, s.FPSLimit)
	}
	m := NewMap().
		SetUint(KeyVersion, Version).
		SetUint(KeyRows, uint64(s.Rows)).
		SetUint(KeyCols, uint64(s.Cols)).
		SetUint(KeyCellSize, uint64(s.CellSize)).
		SetUint(KeyResurrect, uint64(s.Rules.Resurrect)).
		SetUint(KeySurvive, uint64(s.Rules.Survive)).
		SetUint(KeyGeneration, s.Generation).
		SetUint(KeyFPSLimit, uint64(s.FPSLimit)).
		Set(KeyCells, PackBits(s.Cells))
	return m.Encode(), nil
}

// Decode 实现 engine.Codec 接口
func (Codec) Decode(data []byte) (engine.Snapshot, error) {
	m, err := Decode(data)
	if err != nil {
		return engine.Snapshot{}, err
	}
	r := reader{m: m}

	if m.Has(KeyVersion) {
		if v := r.uint(KeyVersion, math.MaxUint8); r.err == nil && v != Version {
			return engine.Snapshot{}, fmt.Errorf("%w %d", ErrVersion, v)
		}
	}
	rows := r.require(KeyRows, maxCells)
	cols := r.require(KeyCols, maxCells)
	s := engine.Snapshot{
		Rows:       int(rows),
		Cols:       int(cols),
		CellSize:   int(r.uint(KeyCellSize, math.MaxInt32)),
		Generation: r.uint(KeyGeneration, math.MaxUint64),
		FPSLimit:   int(r.uint(KeyFPSLimit, math.MaxInt32)),
		Rules:      life.DefaultRuleset,
	}
	if m.Has(KeyResurrect) || m.Has(KeySurvive) {
		s.Rules = life.Ruleset{
			Resurrect: uint16(r.uint(KeyResurrect, math.MaxUint16)),
			Survive:   uint16(r.uint(KeySurvive, math.MaxUint16)),
		}
	}
	if r.err != nil {
		return engine.Snapshot{}, r.err
	}
	if rows*cols > maxCells {
		return engine.Snapshot{}, fmt.Errorf("lifebin: %dx%d grid exceeds %d cells", rows, cols, maxCells)
	}

	packed, ok := m.Get(KeyCells)
	if !ok {
		return engine.Snapshot{}, fmt.Errorf("%w %q", ErrMissingKey, KeyCells)
	}
	if s.Cells, err = UnpackBits(packed, s.Rows*s.Cols); err != nil {
		return engine.Snapshot{}, err
	}
	return s, nil
}

// reader 读取数值键，记录第一个错误
type reader struct {
	m   *Map
	err error
}

func (r *reader) require(key string, limit uint64) uint64 {
	if r.err == nil && !r.m.Has(key) {
		r.err = fmt.Errorf("%w %q", ErrMissingKey, key)
	}
	return r.uint(key, limit)
}

// uint 读取可选数值，缺失为 0，超过 limit 时报错
func (r *reader) uint(key string, limit uint64) uint64 {
	if r.err != nil || !r.m.Has(key) {
		return 0
	}
	v, err := r.m.Uint(key)
	if err == nil && v > limit {
		err = fmt.Errorf("lifebin: key %q value %d exceeds %d", key, v, limit)
	}
	if err != nil {
		r.err = err
		return 0
	}
	return v
}
