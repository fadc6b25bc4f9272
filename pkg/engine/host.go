// Package engine 实现生命游戏的引擎宿主与渲染循环
//
// Host 是一个状态机：
//
//	Idle ──Mount──▶ Ready ──Play──▶ Running ──Pause──▶ Paused
//	  ▲                │               │                  │
//	  └──── Mount ──── Stopped ◀─────── Stop ◀────────────┘
//
// 每一帧（tick）依次：记录帧间隔、代数加一、在影子表面上用背景色绘制死亡细胞、
// 用前景色绘制复活细胞、把计数 commit 给图表、按平移缩放变换复制到可见表面、
// 推进内核一代。Host 只在所属工作端上使用，调度回调通过 Scheduler 回到同一上下文。
package engine

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/lwmacct/251219-go-pkg-life/pkg/life"
	"github.com/lwmacct/251219-go-pkg-life/pkg/render"
)

// FPSBuffer 平滑帧率的环形缓冲区大小
const FPSBuffer = 16

// ErrNoCodec 未配置编解码器
var ErrNoCodec = errors.New("engine: no codec configured")

// State 宿主状态
type State int

const (
	StateIdle State = iota
	StateReady
	StateRunning
	StatePaused
	StateStopped
)

// String 实现 fmt.Stringer
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateReady:
		return "ready"
	case StateRunning:
		return "running"
	case StatePaused:
		return "paused"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Status 宿主状态摘要
type Status struct {
	State      string           `json:"state"`
	Mode       life.Mode        `json:"mode"`
	Generation uint64           `json:"generation"`
	FrameRate  int              `json:"frameRate"`
	FPSLimit   int              `json:"fpsLimit"`
	Rules      string           `json:"rules"`
	Env        Environment      `json:"env"`
	Transform  render.Transform `json:"transform"`
}

// Host 引擎宿主
type Host struct {
	env       Environment
	mode      life.Mode
	rules     life.Ruleset
	universe  life.Universe
	visible   render.Surface
	shadow    render.Surface
	transform render.Transform
	state     State

	generation uint64
	fpsLimit   int
	fpsBuffer  [FPSBuffer]time.Duration
	fpsIndex   int
	lastFrame  time.Time

	// loop 每次 Play 递增，过期的调度回调据此忽略
	loop   uint64
	cancel CancelFunc

	seed       float64
	rng        *rand.Rand
	foreground color.RGBA
	background color.RGBA
	scheduler  Scheduler
	reporter   Reporter
	codec      Codec
	now        func() time.Time
	logger     *slog.Logger
}

// New 以布局 cfg 与可见表面创建宿主，初始状态为 Idle
//
// visible 为 nil 时创建内存表面。
func New(cfg Config, visible render.Surface, opts ...Option) (*Host, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := buildOptions(opts)
	if o.scheduler == nil {
		return nil, errors.New("engine: scheduler is required")
	}
	if _, err := life.ParseMode(string(o.mode)); err != nil {
		return nil, &ConfigError{Field: "mode", Value: o.mode, Err: err}
	}
	if err := o.rules.Validate(); err != nil {
		return nil, &ConfigError{Field: "rules", Value: o.rules, Err: err}
	}
	if o.fpsLimit < 0 {
		return nil, &ConfigError{Field: "fpsLimit", Value: o.fpsLimit, Reason: "must not be negative"}
	}
	if o.reporter == nil {
		o.reporter = nopReporter{}
	}

	env := ConfigToEnv(cfg)
	if visible == nil {
		visible = render.NewImageSurface(env.Width, env.Height)
	} else {
		visible.Resize(env.Width, env.Height)
	}
	shadow := render.NewImageSurface(env.Width, env.Height)
	visible.Clear(o.background)
	shadow.Clear(o.background)

	return &Host{
		env:        env,
		mode:       o.mode,
		rules:      o.rules,
		visible:    visible,
		shadow:     shadow,
		transform:  render.Identity,
		state:      StateIdle,
		fpsLimit:   o.fpsLimit,
		seed:       o.seed,
		rng:        o.rng,
		foreground: o.foreground,
		background: o.background,
		scheduler:  o.scheduler,
		reporter:   o.reporter,
		codec:      o.codec,
		now:        o.clock,
		logger:     o.logger,
	}, nil
}

// ═══════════════════════════════════════════════════════════════════════════
// 状态机
// ═══════════════════════════════════════════════════════════════════════════

// State 当前状态
func (h *Host) State() State { return h.state }

// IsRunning 渲染循环是否在运行
func (h *Host) IsRunning() bool { return h.state == StateRunning }

// Mount 创建网格并随机填充：Idle / Stopped → Ready
func (h *Host) Mount() error {
	if h.state != StateIdle && h.state != StateStopped {
		return &StateError{Op: "mount", State: h.state}
	}
	u, err := life.New(h.mode, h.env.Rows, h.env.Cols)
	if err != nil {
		return err
	}
	u.SetRuleset(h.rules.Resurrect, h.rules.Survive)
	if h.seed > 0 {
		u.Seed(h.seed, h.rng)
	}

	h.universe = u
	h.generation = 0
	h.redraw()
	_ = h.reportReset()
	h.state = StateReady
	h.logger.Debug("universe mounted", "mode", h.mode, "rows", h.env.Rows, "cols", h.env.Cols)
	return nil
}

// Play 启动渲染循环：Ready / Paused → Running
func (h *Host) Play() error {
	if h.state != StateReady && h.state != StatePaused {
		return &StateError{Op: "play", State: h.state}
	}
	h.state = StateRunning
	h.loop++
	h.lastFrame = h.now()
	loop := h.loop
	h.cancel = h.scheduler.NextFrame(func() { h.tick(loop) })
	h.logger.Debug("render loop started", "generation", h.generation, "fps_limit", h.fpsLimit)
	return nil
}

// Pause 取消下一帧：Ready / Running / Paused → Paused；在 Idle、Stopped 下无效果
func (h *Host) Pause() {
	if h.cancel != nil {
		h.cancel()
		h.cancel = nil
	}
	switch h.state {
	case StateReady, StateRunning:
		h.state = StatePaused
		h.logger.Debug("render loop paused", "generation", h.generation)
	}
}

// Stop 暂停并释放网格：→ Stopped，再次运行需要重新 Mount
func (h *Host) Stop() {
	h.Pause()
	if h.universe != nil {
		h.universe.Free()
		h.universe = nil
	}
	if h.state != StateStopped {
		h.state = StateStopped
		h.logger.Debug("universe stopped", "generation", h.generation)
	}
}

// Free 释放全部资源，未挂载过网格时同样安全
func (h *Host) Free() {
	h.Stop()
}

// requireUniverse 需要已挂载网格的操作
func (h *Host) requireUniverse(op string) error {
	if h.universe == nil {
		return &StateError{Op: op, State: h.state}
	}
	return nil
}

// ═══════════════════════════════════════════════════════════════════════════
// 渲染循环
// ═══════════════════════════════════════════════════════════════════════════

func (h *Host) tick(loop uint64) {
	if h.state != StateRunning || loop != h.loop {
		return
	}
	h.cancel = nil

	end := h.now()
	h.fpsBuffer[h.fpsIndex] = end.Sub(h.lastFrame)
	h.fpsIndex = (h.fpsIndex + 1) % FPSBuffer
	h.lastFrame = end

	duration := h.step()

	next := func() { h.tick(loop) }
	if h.fpsLimit > 0 {
		rest := time.Second/time.Duration(h.fpsLimit) - duration
		if rest > TimerThreshold {
			h.cancel = h.scheduler.After(rest, next)
			return
		}
	}
	h.cancel = h.scheduler.NextFrame(next)
}

// step 绘制上一代的增量并推进一代，返回耗时
func (h *Host) step() time.Duration {
	start := h.now()
	h.generation++

	killed := h.universe.Killed()
	resurrected := h.universe.Resurrected()
	h.paint(killed, h.background)
	h.paint(resurrected, h.foreground)

	if err := h.reporter.Report(len(killed)/2, len(resurrected)/2); err != nil {
		h.logger.Warn("chart update dropped", "generation", h.generation, "error", err)
	}

	h.present()
	h.universe.NextGen()
	return h.now().Sub(start)
}

// paint 把增量列表中的细胞画到影子表面
func (h *Host) paint(cells []uint32, c color.RGBA) {
	for i := 0; i+1 < len(cells); i += 2 {
		h.paintCell(int(cells[i]), int(cells[i+1]), c)
	}
}

func (h *Host) paintCell(row, col int, c color.RGBA) {
	x, y := col*h.env.Block, row*h.env.Block
	h.shadow.FillRect(image.Rect(x, y, x+h.env.BlockSize, y+h.env.BlockSize), c)
}

// present 把影子表面按当前变换复制到可见表面
func (h *Host) present() {
	if h.transform != render.Identity {
		h.visible.Clear(h.background)
	}
	h.visible.Blit(h.shadow.Image(), h.transform)
}

// redraw 清空影子表面并画出待绘制的复活细胞
//
// 网格被整体替换（挂载、调整大小、切换实现、导入）后，所有存活细胞都在复活列表中，
// 下一帧会再次绘制它们，结果相同。
func (h *Host) redraw() {
	h.shadow.Clear(h.background)
	if h.universe != nil {
		h.paint(h.universe.Resurrected(), h.foreground)
	}
	h.present()
}

func (h *Host) reportReset() error {
	err := h.reporter.Reset()
	if err != nil {
		h.logger.Warn("chart reset dropped", "error", err)
	}
	return err
}

// NextGeneration 在当前状态下单步推进一帧，返回耗时
func (h *Host) NextGeneration() (time.Duration, error) {
	if err := h.requireUniverse("step"); err != nil {
		return 0, err
	}
	return h.step(), nil
}

// ═══════════════════════════════════════════════════════════════════════════
// 配置
// ═══════════════════════════════════════════════════════════════════════════

// Env 当前布局
func (h *Host) Env() Environment { return h.env }

// UpdateConfig 重新计算布局、调整两个表面与网格大小，运行中时自动恢复
func (h *Host) UpdateConfig(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	h.env = ConfigToEnv(cfg)
	running := h.state == StateRunning

	h.visible.Resize(h.env.Width, h.env.Height)
	h.shadow.Resize(h.env.Width, h.env.Height)
	h.visible.Clear(h.background)

	if running {
		h.Pause()
	}
	if h.universe != nil {
		h.universe.Resize(h.env.Rows, h.env.Cols)
		_ = h.reportReset()
	}
	h.redraw()
	h.logger.Debug("config updated", "rows", h.env.Rows, "cols", h.env.Cols, "width", h.env.Width, "height", h.env.Height)

	if running {
		return h.Play()
	}
	return nil
}

// Mode 当前内核实现
func (h *Host) Mode() life.Mode { return h.mode }

// SetMode 切换内核实现，已挂载的网格内容会被迁移
func (h *Host) SetMode(m life.Mode) error {
	if _, err := life.ParseMode(string(m)); err != nil {
		return &ConfigError{Field: "mode", Value: m, Err: err}
	}
	if m == h.mode {
		return nil
	}
	if h.universe != nil {
		u, err := life.New(m, h.env.Rows, h.env.Cols)
		if err != nil {
			return err
		}
		u.SetRuleset(h.rules.Resurrect, h.rules.Survive)
		if err := u.Load(h.env.Rows, h.env.Cols, h.universe.Snapshot()); err != nil {
			u.Free()
			return err
		}
		h.universe.Free()
		h.universe = u
		h.redraw()
		_ = h.reportReset()
	}
	h.logger.Debug("mode switched", "from", h.mode, "to", m)
	h.mode = m
	return nil
}

// LimitFPS 设置帧率上限
func (h *Host) LimitFPS(limit int) error {
	if limit <= 0 {
		return &ConfigError{Field: "fpsLimit", Value: limit, Reason: "cannot limit to a negative number or zero"}
	}
	h.fpsLimit = limit
	return nil
}

// UnlimitFPS 取消帧率上限
func (h *Host) UnlimitFPS() { h.fpsLimit = 0 }

// FPSLimit 当前帧率上限，0 表示不限速
func (h *Host) FPSLimit() int { return h.fpsLimit }

// Generation 已渲染的代数
func (h *Host) Generation() uint64 { return h.generation }

// FrameRate 最近 FPSBuffer 帧的平均帧率
func (h *Host) FrameRate() int {
	var total time.Duration
	for _, d := range h.fpsBuffer {
		total += d
	}
	avg := total / FPSBuffer
	if avg <= 0 {
		return 0
	}
	return int(time.Second / avg)
}

// Transform 设置平移缩放并立即重绘可见表面
func (h *Host) Transform(t render.Transform) {
	if t.Scale <= 0 {
		t.Scale = 1
	}
	h.transform = t
	h.visible.Clear(h.background)
	h.visible.Blit(h.shadow.Image(), t)
}

// CurrentTransform 当前变换
func (h *Host) CurrentTransform() render.Transform { return h.transform }

// Ruleset 当前规则
func (h *Host) Ruleset() life.Ruleset { return h.rules }

// UpdateRuleset 替换规则，从下一代起生效
func (h *Host) UpdateRuleset(resurrect, survive uint16) error {
	r := life.Ruleset{Resurrect: resurrect, Survive: survive}
	if err := r.Validate(); err != nil {
		return &ConfigError{Field: "rules", Value: r, Err: err}
	}
	h.rules = r
	if h.universe != nil {
		h.universe.SetRuleset(resurrect, survive)
	}
	return nil
}

// SetCell 设置单个细胞并立即绘制
func (h *Host) SetCell(row, col int, alive bool) error {
	if err := h.requireUniverse("set cell"); err != nil {
		return err
	}
	if row < 0 || row >= h.env.Rows || col < 0 || col >= h.env.Cols {
		return &ConfigError{Field: "cell", Value: [2]int{row, col}, Reason: "outside the grid"}
	}
	h.universe.SetCell(row, col, alive)
	c := h.background
	if alive {
		c = h.foreground
	}
	h.paintCell(row, col, c)
	h.present()
	return nil
}

// Cells 按行优先返回当前网格
func (h *Host) Cells() ([]bool, error) {
	if err := h.requireUniverse("read cells"); err != nil {
		return nil, err
	}
	return h.universe.Snapshot(), nil
}

// SetGraphSurface 把图表表面交给统计接收方
func (h *Host) SetGraphSurface(s render.Surface) error {
	return h.reporter.SetSurface(s)
}

// Surface 可见表面
func (h *Host) Surface() render.Surface { return h.visible }

// Status 状态摘要
func (h *Host) Status() Status {
	return Status{
		State:      h.state.String(),
		Mode:       h.mode,
		Generation: h.generation,
		FrameRate:  h.FrameRate(),
		FPSLimit:   h.fpsLimit,
		Rules:      h.rules.String(),
		Env:        h.env,
		Transform:  h.transform,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// 导入导出
// ═══════════════════════════════════════════════════════════════════════════

// Export 以编解码器编码当前网格
func (h *Host) Export() ([]byte, error) {
	if err := h.requireUniverse("export"); err != nil {
		return nil, err
	}
	if h.codec == nil {
		return nil, ErrNoCodec
	}
	data, err := h.codec.Encode(Snapshot{
		Cells:      h.universe.Snapshot(),
		CellSize:   h.env.BlockSize,
		Rows:       h.env.Rows,
		Cols:       h.env.Cols,
		Rules:      h.rules,
		Generation: h.generation,
		FPSLimit:   h.fpsLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("engine: export: %w", err)
	}
	return data, nil
}

// Import 解码并载入网格，尽力而为：任何失败都只记录警告并保持当前状态
//
// 返回是否成功载入。重叠区域之外的细胞被丢弃。
func (h *Host) Import(data []byte) bool {
	if h.universe == nil {
		h.logger.Warn("import ignored", "reason", "no universe mounted", "state", h.state)
		return false
	}
	if h.codec == nil {
		h.logger.Warn("import ignored", "error", ErrNoCodec)
		return false
	}
	snap, err := h.codec.Decode(data)
	if err == nil {
		err = snap.Rules.Validate()
	}
	if err == nil && snap.FPSLimit < 0 {
		err = fmt.Errorf("negative fps limit %d", snap.FPSLimit)
	}
	if err != nil {
		h.logger.Warn("import failed", "bytes", len(data), "error", err)
		return false
	}
	if err := h.universe.Load(snap.Rows, snap.Cols, snap.Cells); err != nil {
		h.logger.Warn("import failed", "bytes", len(data), "error", err)
		return false
	}

	h.rules = snap.Rules
	h.universe.SetRuleset(snap.Rules.Resurrect, snap.Rules.Survive)
	h.generation = snap.Generation
	h.fpsLimit = snap.FPSLimit
	if snap.CellSize != h.env.BlockSize {
		h.logger.Debug("imported cell size differs", "imported", snap.CellSize, "current", h.env.BlockSize)
	}
	h.redraw()
	_ = h.reportReset()

	h.logger.Info("universe imported", "rows", snap.Rows, "cols", snap.Cols, "generation", snap.Generation, "alive", life.Alive(snap.Cells))
	return true
}
