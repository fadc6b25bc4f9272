package actor

import (
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
)

// Registry 可实例化类的静态注册表
//
// 在进程启动时填充，第一个使用它的工作端启动后封存，之后注册会 panic。
type Registry struct {
	mu        sync.RWMutex
	factories map[ClassName]Factory
	sealed    atomic.Bool
}

// NewRegistry 创建空注册表
func NewRegistry() *Registry {
	return &Registry{factories: make(map[ClassName]Factory)}
}

// Register 注册类，重复注册、nil 工厂或封存后注册会 panic
func (r *Registry) Register(name ClassName, factory Factory) *Registry {
	if factory == nil {
		panic(fmt.Sprintf("actor: nil factory for class %q", name))
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed.Load() {
		panic(fmt.Sprintf("actor: registry sealed, cannot register %q", name))
	}
	if _, dup := r.factories[name]; dup {
		panic(fmt.Sprintf("actor: class %q registered twice", name))
	}
	r.factories[name] = factory
	return r
}

// Classes 返回已注册的类名（已排序）
func (r *Registry) Classes() []ClassName {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]ClassName, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Sealed 是否已封存
func (r *Registry) Sealed() bool { return r.sealed.Load() }

func (r *Registry) seal() { r.sealed.Store(true) }

func (r *Registry) lookup(name ClassName) (Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[name]
	return f, ok
}
