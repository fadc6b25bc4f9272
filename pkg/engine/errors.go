package engine

import "fmt"

// StateError 操作在当前状态下无效
type StateError struct {
	Op    string
	State State
}

// Error 实现 error 接口
func (e *StateError) Error() string {
	return fmt.Sprintf("engine: cannot %s while %s", e.Op, e.State)
}

// ConfigError 配置值无效
type ConfigError struct {
	Field  string
	Value  any
	Reason string
	Err    error
}

// Error 实现 error 接口
func (e *ConfigError) Error() string {
	if e.Reason == "" && e.Err != nil {
		return fmt.Sprintf("engine: invalid %s=%v: %v", e.Field, e.Value, e.Err)
	}
	return fmt.Sprintf("engine: invalid %s=%v: %s", e.Field, e.Value, e.Reason)
}

// Unwrap 返回底层错误
func (e *ConfigError) Unwrap() error { return e.Err }
