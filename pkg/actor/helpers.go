package actor

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"github.com/go-viper/mapstructure/v2"
)

// ═══════════════════════════════════════════════════════════════════════════
// 参数访问
// ═══════════════════════════════════════════════════════════════════════════

// Args 方法或工厂收到的参数列表
//
// 进程内端口按原值传递，流端口传来的是 JSON 解码后的值（数字为 float64），
// 因此取值统一经过 mapstructure 的弱类型转换。
type Args []any

// Len 参数个数
func (a Args) Len() int { return len(a) }

// At 返回第 i 个参数
func (a Args) At(i int) (any, error) {
	if i < 0 || i >= len(a) {
		return nil, &ArgError{Index: i, Err: errors.New("missing")}
	}
	return a[i], nil
}

// Decode 把第 i 个参数转换到 out 指向的值
func (a Args) Decode(i int, out any) error {
	v, err := a.At(i)
	if err != nil {
		return err
	}
	if err := convert(v, out); err != nil {
		return &ArgError{Index: i, Err: err}
	}
	return nil
}

// Int 取整数参数
func (a Args) Int(i int) (int, error) { return ArgAs[int](a, i) }

// Float 取浮点参数
func (a Args) Float(i int) (float64, error) { return ArgAs[float64](a, i) }

// String 取字符串参数
func (a Args) String(i int) (string, error) { return ArgAs[string](a, i) }

// Bool 取布尔参数
func (a Args) Bool(i int) (bool, error) { return ArgAs[bool](a, i) }

// Buffer 取转移过来的缓冲区
func (a Args) Buffer(i int) (*Buffer, error) {
	v, err := a.At(i)
	if err != nil {
		return nil, err
	}
	buf, ok := v.(*Buffer)
	if !ok {
		return nil, &ArgError{Index: i, Err: fmt.Errorf("expected buffer, got %T", v)}
	}
	return buf, nil
}

// ArgAs 以类型 T 取第 i 个参数
func ArgAs[T any](a Args, i int) (T, error) {
	var v T
	err := a.Decode(i, &v)
	return v, err
}

// ═══════════════════════════════════════════════════════════════════════════
// 类型化调用
// ═══════════════════════════════════════════════════════════════════════════

// CallAs 调用方法并把返回值转换为 T
//
// 用法示例:
//
//	gen, err := actor.CallAs[int](ctx, engine, "generation")
func CallAs[T any](ctx context.Context, inst *Instance, method string, args ...any) (T, error) {
	var zero T
	value, err := inst.Call(ctx, method, args...)
	if err != nil {
		return zero, err
	}
	var out T
	if err := convert(value, &out); err != nil {
		return zero, fmt.Errorf("actor: decode %s result: %w", method, err)
	}
	return out, nil
}

// convert 可直接赋值时原样赋值，否则经 mapstructure 转换
func convert(in, out any) error {
	rv := reflect.ValueOf(out)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return errors.New("decode target must be a non-nil pointer")
	}
	if in == nil {
		return nil
	}
	iv := reflect.ValueOf(in)
	if iv.Type().AssignableTo(rv.Elem().Type()) {
		rv.Elem().Set(iv)
		return nil
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		TagName:          "json",
		Result:           out,
	})
	if err != nil {
		return err
	}
	return dec.Decode(in)
}

// IsContextError 检查错误是否为 context 相关错误
func IsContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
