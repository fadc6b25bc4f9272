package engine

import (
	"fmt"

	"github.com/lwmacct/251219-go-pkg-life/pkg/actor"
	"github.com/lwmacct/251219-go-pkg-life/pkg/chart"
	"github.com/lwmacct/251219-go-pkg-life/pkg/life"
	"github.com/lwmacct/251219-go-pkg-life/pkg/render"
)

// ClassName 引擎宿主的注册名
const ClassName actor.ClassName = "Engine"

// 方法名
const (
	MethodMount           = "mount"
	MethodPlay            = "play"
	MethodPause           = "pause"
	MethodStop            = "stop"
	MethodIsRunning       = "isRunning"
	MethodState           = "state"
	MethodStatus          = "status"
	MethodUpdateConfig    = "updateConfig"
	MethodSetMode         = "setMode"
	MethodMode            = "mode"
	MethodNextGeneration  = "nextGeneration"
	MethodLimitFPS        = "limitFPS"
	MethodUnlimitFPS      = "unlimitFPS"
	MethodGeneration      = "generation"
	MethodFrameRate       = "frameRate"
	MethodTransform       = "transform"
	MethodUpdateRuleset   = "updateRuleset"
	MethodSetCell         = "setCell"
	MethodCells           = "cells"
	MethodSetGraphSurface = "setGraphSurface"
	MethodExport          = "export"
	MethodImport          = "import"
)

// hosted 工作端上的引擎实例，附带它创建的图表工作端
type hosted struct {
	*Host
	chart *actor.Actor
}

// Free 实现 actor.Freer 接口
func (e *hosted) Free() {
	e.Host.Free()
	if e.chart != nil {
		_ = e.chart.Close()
	}
}

// Invoke 实现 actor.Receiver 接口
func (h *Host) Invoke(_ *actor.Context, method string, args actor.Args) (any, error) {
	switch method {
	case MethodMount:
		return nil, h.Mount()
	case MethodPlay:
		return nil, h.Play()
	case MethodPause:
		h.Pause()
		return nil, nil
	case MethodStop:
		h.Stop()
		return nil, nil
	case MethodIsRunning:
		return h.IsRunning(), nil
	case MethodState:
		return h.State().String(), nil
	case MethodStatus:
		return h.Status(), nil

	case MethodUpdateConfig:
		cfg := h.env.Config()
		if err := args.Decode(0, &cfg); err != nil {
			return nil, err
		}
		return nil, h.UpdateConfig(cfg)

	case MethodSetMode:
		s, err := args.String(0)
		if err != nil {
			return nil, err
		}
		return nil, h.SetMode(life.Mode(s))
	case MethodMode:
		return h.Mode(), nil

	case MethodNextGeneration:
		d, err := h.NextGeneration()
		return d.Seconds() * 1000, err

	case MethodLimitFPS:
		if v, _ := args.At(0); v == nil {
			h.UnlimitFPS()
			return nil, nil
		}
		limit, err := args.Int(0)
		if err != nil {
			return nil, err
		}
		return nil, h.LimitFPS(limit)
	case MethodUnlimitFPS:
		h.UnlimitFPS()
		return nil, nil

	case MethodGeneration:
		return h.Generation(), nil
	case MethodFrameRate:
		return h.FrameRate(), nil

	case MethodTransform:
		t := render.Identity
		if err := args.Decode(0, &t); err != nil {
			return nil, err
		}
		h.Transform(t)
		return nil, nil

	case MethodUpdateRuleset:
		return nil, h.invokeUpdateRuleset(args)

	case MethodSetCell:
		row, err := args.Int(0)
		if err != nil {
			return nil, err
		}
		col, err := args.Int(1)
		if err != nil {
			return nil, err
		}
		alive, err := args.Bool(2)
		if err != nil {
			return nil, err
		}
		return nil, h.SetCell(row, col, alive)
	case MethodCells:
		return h.Cells()

	case MethodSetGraphSurface:
		v, err := args.At(0)
		if err != nil {
			return nil, err
		}
		s, ok := v.(render.Surface)
		if !ok {
			return nil, &actor.ArgError{Index: 0, Err: fmt.Errorf("expected surface, got %T", v)}
		}
		return nil, h.SetGraphSurface(s)

	case MethodExport:
		data, err := h.Export()
		if err != nil {
			return nil, err
		}
		return actor.NewBuffer(data), nil
	case MethodImport:
		data, err := importBytes(args)
		if err != nil {
			return nil, err
		}
		return h.Import(data), nil

	default:
		return nil, &actor.UnknownMethodError{Method: method}
	}
}

// invokeUpdateRuleset 接受 (resurrect, survive) 两个掩码或一个 B/S 记法字符串
func (h *Host) invokeUpdateRuleset(args actor.Args) error {
	if args.Len() == 1 {
		s, err := args.String(0)
		if err != nil {
			return err
		}
		r, err := life.ParseRuleset(s)
		if err != nil {
			return &ConfigError{Field: "rules", Value: s, Err: err}
		}
		return h.UpdateRuleset(r.Resurrect, r.Survive)
	}
	// 先按 int 解码再检查范围，避免收窄时截断高位
	var masks [2]uint16
	for i := range masks {
		v, err := actor.ArgAs[int](args, i)
		if err != nil {
			return err
		}
		if v < 0 || v > life.RuleMask {
			return &ConfigError{Field: "rules", Value: v, Err: fmt.Errorf("%w: mask %d outside 0..%#x", life.ErrInvalidRuleset, v, life.RuleMask)}
		}
		masks[i] = uint16(v)
	}
	return h.UpdateRuleset(masks[0], masks[1])
}

// importBytes 导入数据可以是转移过来的 Buffer 或字节切片
func importBytes(args actor.Args) ([]byte, error) {
	v, err := args.At(0)
	if err != nil {
		return nil, err
	}
	switch d := v.(type) {
	case *actor.Buffer:
		return d.Bytes()
	case []byte:
		return d, nil
	default:
		return nil, &actor.ArgError{Index: 0, Err: fmt.Errorf("expected buffer, got %T", v)}
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// 工厂
// ═══════════════════════════════════════════════════════════════════════════

// NewFactory 返回引擎工厂
//
// 构造参数为 (surface, config)，两者都可省略；surface 通常以 actor.Transfer 发送。
// 未通过 WithScheduler 指定调度器时使用 PostScheduler 回到工作端循环；
// 未通过 WithReporter 指定统计接收方时创建图表子工作端与 Graph 实例。
func NewFactory(opts ...Option) actor.Factory {
	return func(ctx *actor.Context, args actor.Args) (actor.Receiver, error) {
		var visible render.Surface
		if v, _ := args.At(0); v != nil {
			s, ok := v.(render.Surface)
			if !ok {
				return nil, &actor.ArgError{Index: 0, Err: fmt.Errorf("expected surface, got %T", v)}
			}
			visible = s
		}
		cfg := DefaultConfig()
		if args.Len() > 1 {
			if err := args.Decode(1, &cfg); err != nil {
				return nil, err
			}
		}

		o := buildOptions(opts)
		base := []Option{WithLogger(ctx.Logger())}
		if o.scheduler == nil {
			base = append(base, WithScheduler(NewPostScheduler(ctx.Post)))
		}

		var graphs *actor.Actor
		if o.reporter == nil {
			graphs = ctx.Spawn(chart.NewRegistry())
			var graphArgs []any
			if o.chartCap > 0 {
				graphArgs = append(graphArgs, o.chartCap)
			}
			graph, err := graphs.Create(ctx.Context(), chart.ClassName, graphArgs...)
			if err != nil {
				_ = graphs.Close()
				return nil, fmt.Errorf("engine: create graph: %w", err)
			}
			base = append(base, WithReporter(NewChartReporter(graph)))
		}

		host, err := New(cfg, visible, append(base, opts...)...)
		if err != nil {
			if graphs != nil {
				_ = graphs.Close()
			}
			return nil, err
		}
		return &hosted{Host: host, chart: graphs}, nil
	}
}

// Register 向注册表登记引擎
func Register(reg *actor.Registry, opts ...Option) *actor.Registry {
	return reg.Register(ClassName, NewFactory(opts...))
}

// NewRegistry 只包含引擎的注册表
func NewRegistry(opts ...Option) *actor.Registry {
	return Register(actor.NewRegistry(), opts...)
}
