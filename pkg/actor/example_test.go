package actor_test

import (
	"context"
	"fmt"
	"time"

	"github.com/lwmacct/251219-go-pkg-life/pkg/actor"
)

// greeter 示例托管对象
type greeter struct {
	greeting string
	count    int
}

func (g *greeter) Invoke(_ *actor.Context, method string, args actor.Args) (any, error) {
	switch method {
	case "greet":
		name, err := args.String(0)
		if err != nil {
			return nil, err
		}
		g.count++
		return fmt.Sprintf("%s, %s!", g.greeting, name), nil
	case "count":
		return g.count, nil
	default:
		return nil, &actor.UnknownMethodError{Method: method}
	}
}

func newGreeter(_ *actor.Context, args actor.Args) (actor.Receiver, error) {
	greeting, err := args.String(0)
	if err != nil {
		return nil, err
	}
	return &greeter{greeting: greeting}, nil
}

// Example_basic 演示创建远端实例并调用方法
func Example_basic() {
	reg := actor.NewRegistry().Register("Greeter", newGreeter)

	a := actor.Spawn(reg, actor.WithRequestTimeout(time.Second))
	defer a.Close()

	ctx := context.Background()
	g, err := a.Create(ctx, "Greeter", "Hello")
	if err != nil {
		fmt.Println("create failed:", err)
		return
	}

	msg, _ := g.Call(ctx, "greet", "world")
	fmt.Println(msg)

	// commit 不等待回复，但同一端口上的后续调用能看到它的效果
	_ = g.Commit("greet", "again")
	n, _ := actor.CallAs[int](ctx, g, "count")
	fmt.Println("greeted", n, "times")

	// Output:
	// Hello, world!
	// greeted 2 times
}

// Example_methods 演示用方法表定义简单的托管对象
func Example_methods() {
	reg := actor.NewRegistry().Register("Adder", func(_ *actor.Context, _ actor.Args) (actor.Receiver, error) {
		return actor.Methods{
			"add": func(_ *actor.Context, args actor.Args) (any, error) {
				a, err := args.Int(0)
				if err != nil {
					return nil, err
				}
				b, err := args.Int(1)
				if err != nil {
					return nil, err
				}
				return a + b, nil
			},
		}, nil
	})

	a := actor.Spawn(reg)
	defer a.Close()

	ctx := context.Background()
	adder, _ := a.Create(ctx, "Adder")
	sum, _ := adder.Call(ctx, "add", 2, 3)
	fmt.Println(sum)

	_, err := adder.Call(ctx, "sub", 2, 3)
	fmt.Println(err)

	// Output:
	// 5
	// actor: remote sub failed: actor: unknown method "sub"
}

// Example_transfer 演示转移缓冲区所有权
func Example_transfer() {
	reg := actor.NewRegistry().Register("Sink", func(_ *actor.Context, _ actor.Args) (actor.Receiver, error) {
		return actor.Methods{
			"size": func(_ *actor.Context, args actor.Args) (any, error) {
				buf, err := args.Buffer(0)
				if err != nil {
					return nil, err
				}
				return buf.Len(), nil
			},
		}, nil
	})

	a := actor.Spawn(reg)
	defer a.Close()

	ctx := context.Background()
	sink, _ := a.Create(ctx, "Sink")

	buf := actor.NewBuffer(make([]byte, 1024))
	size, _ := sink.Call(ctx, "size", actor.Transfer(buf))
	fmt.Println(size)

	_, err := buf.Bytes()
	fmt.Println(err)

	// Output:
	// 1024
	// actor: value has been transferred
}
