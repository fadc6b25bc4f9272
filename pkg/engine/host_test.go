package engine

import (
	"encoding/json"
	"errors"
	"image/color"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lwmacct/251219-go-pkg-life/pkg/life"
	"github.com/lwmacct/251219-go-pkg-life/pkg/render"
)

// ═══════════════════════════════════════════════════════════════════════════
// 测试替身
// ═══════════════════════════════════════════════════════════════════════════

type fakeClock struct{ t time.Time }

func newFakeClock() *fakeClock { return &fakeClock{t: time.Unix(1700000000, 0)} }

func (c *fakeClock) now() time.Time         { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }
func (c *fakeClock) option() Option          { return WithClock(c.now) }

type recordingReporter struct {
	reports  [][2]int
	resets   int
	surfaces []render.Surface
	fail     error
}

func (r *recordingReporter) Report(killed, resurrected int) error {
	if r.fail != nil {
		return r.fail
	}
	r.reports = append(r.reports, [2]int{killed, resurrected})
	return nil
}

func (r *recordingReporter) Reset() error {
	r.resets++
	return nil
}

func (r *recordingReporter) SetSurface(s render.Surface) error {
	r.surfaces = append(r.surfaces, s)
	return nil
}

func (r *recordingReporter) last() (killed, resurrected int) {
	n := r.reports[len(r.reports)-1]
	return n[0], n[1]
}

// jsonCodec 以 JSON 编码快照
type jsonCodec struct{}

func (jsonCodec) Encode(s Snapshot) ([]byte, error) { return json.Marshal(s) }

func (jsonCodec) Decode(data []byte) (Snapshot, error) {
	var s Snapshot
	err := json.Unmarshal(data, &s)
	return s, err
}

// 10×10 像素，块大小 2（细胞 1 + 间隔 1），5×5 网格
var smallConfig = Config{Width: 10, Height: 10, BlockSize: 1, BlockMargin: 1}

type fixture struct {
	host     *Host
	sched    *ManualScheduler
	reporter *recordingReporter
	clock    *fakeClock
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		sched:    NewManualScheduler(),
		reporter: &recordingReporter{},
		clock:    newFakeClock(),
	}
	base := []Option{
		WithScheduler(f.sched),
		WithReporter(f.reporter),
		WithSeed(0, nil),
		WithCodec(jsonCodec{}),
		f.clock.option(),
	}
	h, err := New(smallConfig, nil, append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(h.Free)
	f.host = h
	return f
}

// cellColor 读取可见表面上 (row, col) 细胞左上角的像素
func (f *fixture) cellColor(row, col int) color.RGBA {
	b := f.host.Env().Block
	return f.host.Surface().Image().RGBAAt(col*b, row*b)
}

func blinker(t *testing.T, h *Host) {
	t.Helper()
	for _, c := range [][2]int{{2, 1}, {2, 2}, {2, 3}} {
		require.NoError(t, h.SetCell(c[0], c[1], true))
	}
}

func assertStateError(t *testing.T, err error, op string) {
	t.Helper()
	var se *StateError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, op, se.Op)
}

// ═══════════════════════════════════════════════════════════════════════════
// 状态机
// ═══════════════════════════════════════════════════════════════════════════

func TestNew_Validation(t *testing.T) {
	sched := WithScheduler(NewManualScheduler())

	_, err := New(Config{Width: 10, Height: 10}, nil, sched)
	var ce *ConfigError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "blockSize", ce.Field)

	_, err = New(smallConfig, nil)
	assert.Error(t, err, "scheduler is required")

	_, err = New(smallConfig, nil, sched, WithMode("gpu"))
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "mode", ce.Field)

	_, err = New(smallConfig, nil, sched, WithRuleset(life.Ruleset{Survive: 0x400}))
	require.ErrorIs(t, err, life.ErrInvalidRuleset)

	_, err = New(smallConfig, nil, sched, WithFPSLimit(-1))
	require.ErrorAs(t, err, &ce)
}

func TestHost_StateMachine(t *testing.T) {
	f := newFixture(t)
	h := f.host
	assert.Equal(t, StateIdle, h.State())

	assertStateError(t, h.Play(), "play")

	require.NoError(t, h.Mount())
	assert.Equal(t, StateReady, h.State())
	assertStateError(t, h.Mount(), "mount")

	require.NoError(t, h.Play())
	assert.Equal(t, StateRunning, h.State())
	assert.True(t, h.IsRunning())
	assertStateError(t, h.Play(), "play")

	h.Pause()
	assert.Equal(t, StatePaused, h.State())
	h.Pause()
	assert.Equal(t, StatePaused, h.State())

	require.NoError(t, h.Play())
	h.Stop()
	assert.Equal(t, StateStopped, h.State())
	assertStateError(t, h.Play(), "play")
	_, err := h.Cells()
	assertStateError(t, err, "read cells")

	require.NoError(t, h.Mount())
	assert.Equal(t, StateReady, h.State())
}

func TestHost_FreeNeverMounted(t *testing.T) {
	f := newFixture(t)
	assert.NotPanics(t, f.host.Free)
	assert.NotPanics(t, f.host.Free)
	assert.Equal(t, StateStopped, f.host.State())

	e := &hosted{Host: newFixture(t).host}
	assert.NotPanics(t, e.Free)
}

func TestHost_PauseCancelsNextFrame(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.host.Mount())
	require.NoError(t, f.host.Play())
	assert.Equal(t, 1, f.sched.Pending())

	f.host.Pause()
	assert.Equal(t, 0, f.sched.Pending())
	assert.False(t, f.sched.Step())
	assert.Equal(t, uint64(0), f.host.Generation())

	require.NoError(t, f.host.Play())
	assert.True(t, f.sched.Step())
	assert.Equal(t, uint64(1), f.host.Generation())
	assert.Equal(t, 1, f.sched.Pending())
}

// leakyScheduler 忽略取消，模拟已经到期的定时器
type leakyScheduler struct{ *ManualScheduler }

func (s leakyScheduler) NextFrame(fn func()) CancelFunc {
	s.ManualScheduler.NextFrame(fn)
	return func() {}
}

func TestHost_StaleCallbackIgnored(t *testing.T) {
	sched := leakyScheduler{NewManualScheduler()}
	f := newFixture(t, WithScheduler(sched))
	require.NoError(t, f.host.Mount())
	require.NoError(t, f.host.Play())
	f.host.Pause()
	require.NoError(t, f.host.Play())
	assert.Equal(t, 2, sched.Pending())

	assert.Equal(t, 2, sched.Run(2))
	assert.Equal(t, uint64(1), f.host.Generation())
	assert.Equal(t, 1, sched.Pending())
}

// ═══════════════════════════════════════════════════════════════════════════
// 渲染循环
// ═══════════════════════════════════════════════════════════════════════════

func TestHost_TickPaintsDeltasAndReports(t *testing.T) {
	f := newFixture(t)
	h := f.host
	require.NoError(t, h.Mount())
	assert.Equal(t, 1, f.reporter.resets)

	blinker(t, h)
	// SetCell 立即绘制
	assert.Equal(t, DefaultForeground, f.cellColor(2, 1))
	assert.Equal(t, DefaultBackground, f.cellColor(1, 2))

	require.NoError(t, h.Play())
	require.True(t, f.sched.Step())
	assert.Equal(t, uint64(1), h.Generation())
	k, r := f.reporter.last()
	assert.Equal(t, 0, k)
	assert.Equal(t, 3, r)

	// 第二帧绘制第一代的增量：水平变为竖直
	require.True(t, f.sched.Step())
	k, r = f.reporter.last()
	assert.Equal(t, 2, k)
	assert.Equal(t, 2, r)
	assert.Equal(t, DefaultBackground, f.cellColor(2, 1))
	assert.Equal(t, DefaultForeground, f.cellColor(1, 2))
	assert.Equal(t, DefaultForeground, f.cellColor(2, 2))
	assert.Equal(t, DefaultForeground, f.cellColor(3, 2))

	// 间隔像素保持背景色
	assert.Equal(t, DefaultBackground, h.Surface().Image().RGBAAt(2*2+1, 2*2))
}

func TestHost_ReportFailureKeepsRunning(t *testing.T) {
	f := newFixture(t)
	f.reporter.fail = errors.New("port closed")
	require.NoError(t, f.host.Mount())
	require.NoError(t, f.host.Play())
	assert.Equal(t, 3, f.sched.Run(3))
	assert.Equal(t, uint64(3), f.host.Generation())
	assert.True(t, f.host.IsRunning())
}

func TestHost_NextGeneration(t *testing.T) {
	f := newFixture(t)
	_, err := f.host.NextGeneration()
	assertStateError(t, err, "step")

	require.NoError(t, f.host.Mount())
	blinker(t, f.host)
	_, err = f.host.NextGeneration()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), f.host.Generation())
	assert.Equal(t, StateReady, f.host.State())
	assert.Zero(t, f.sched.Pending())

	cells, err := f.host.Cells()
	require.NoError(t, err)
	assert.True(t, cells[1*5+2])
	assert.False(t, cells[2*5+1])
}

func TestHost_FPSLimit(t *testing.T) {
	f := newFixture(t)
	h := f.host

	var ce *ConfigError
	require.ErrorAs(t, h.LimitFPS(0), &ce)
	require.ErrorAs(t, h.LimitFPS(-5), &ce)
	assert.Equal(t, 0, h.FPSLimit())

	require.NoError(t, h.Mount())
	require.NoError(t, h.Play())
	last, _ := f.sched.Last()
	assert.Equal(t, PrimitiveFrame, last.Primitive)

	// 剩余预算 100ms > 16ms：定时器
	require.NoError(t, h.LimitFPS(10))
	f.sched.Step()
	last, _ = f.sched.Last()
	assert.Equal(t, PrimitiveTimer, last.Primitive)
	assert.Equal(t, 100*time.Millisecond, last.Delay)

	// 剩余预算 10ms：下一帧
	require.NoError(t, h.LimitFPS(100))
	f.sched.Step()
	last, _ = f.sched.Last()
	assert.Equal(t, PrimitiveFrame, last.Primitive)

	h.UnlimitFPS()
	assert.Equal(t, 0, h.FPSLimit())
	f.sched.Step()
	last, _ = f.sched.Last()
	assert.Equal(t, PrimitiveFrame, last.Primitive)
}

func TestHost_FrameRate(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.host.Mount())
	assert.Equal(t, 0, f.host.FrameRate())

	require.NoError(t, f.host.Play())
	for range FPSBuffer {
		f.clock.advance(10 * time.Millisecond)
		require.True(t, f.sched.Step())
	}
	assert.Equal(t, 100, f.host.FrameRate())

	// 环形缓冲区覆盖最旧的帧
	for range FPSBuffer {
		f.clock.advance(20 * time.Millisecond)
		require.True(t, f.sched.Step())
	}
	assert.Equal(t, 50, f.host.FrameRate())

	// 总耗时不足 FPSBuffer 纳秒时平均值为 0
	g := newFixture(t)
	require.NoError(t, g.host.Mount())
	require.NoError(t, g.host.Play())
	g.clock.advance(5 * time.Nanosecond)
	require.True(t, g.sched.Step())
	assert.Equal(t, 0, g.host.FrameRate())
	assert.Equal(t, 0, g.host.Status().FrameRate)
}

// ═══════════════════════════════════════════════════════════════════════════
// 配置
// ═══════════════════════════════════════════════════════════════════════════

func TestHost_UpdateConfigWhileRunning(t *testing.T) {
	f := newFixture(t)
	h := f.host
	require.NoError(t, h.Mount())
	blinker(t, h)
	require.NoError(t, h.Play())
	require.True(t, h.IsRunning())

	require.NoError(t, h.UpdateConfig(Config{Width: 21, Height: 8, BlockSize: 1, BlockMargin: 1}))
	assert.True(t, h.IsRunning())
	assert.Equal(t, StateRunning, h.State())
	assert.Equal(t, Environment{Width: 20, Height: 8, Cols: 10, Rows: 4, Block: 2, BlockSize: 1, BlockMargin: 1}, h.Env())
	assert.Equal(t, 1, f.sched.Pending(), "the old frame is cancelled and a new one scheduled")
	assert.Equal(t, 2, f.reporter.resets)

	w, hh := h.Surface().Size()
	assert.Equal(t, 20, w)
	assert.Equal(t, 8, hh)

	cells, err := h.Cells()
	require.NoError(t, err)
	require.Len(t, cells, 40)
	assert.Equal(t, 3, life.Alive(cells), "the overlapping region survives the resize")
	assert.Equal(t, DefaultForeground, f.cellColor(2, 2), "live cells are redrawn immediately")

	var ce *ConfigError
	require.ErrorAs(t, h.UpdateConfig(Config{Width: 1, Height: 8, BlockSize: 1, BlockMargin: 1}), &ce)
	assert.Equal(t, 10, h.Env().Cols)
	assert.True(t, h.IsRunning())
}

func TestHost_UpdateConfigKeepsState(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.host.UpdateConfig(Config{Width: 6, Height: 6, BlockSize: 2, BlockMargin: 0}))
	assert.Equal(t, StateIdle, f.host.State())

	require.NoError(t, f.host.Mount())
	require.NoError(t, f.host.UpdateConfig(smallConfig))
	assert.Equal(t, StateReady, f.host.State())
	assert.Zero(t, f.sched.Pending())
}

func TestHost_SetMode(t *testing.T) {
	f := newFixture(t)
	h := f.host
	assert.Equal(t, life.ModePure, h.Mode())

	require.NoError(t, h.SetMode(life.ModeNative))
	assert.Equal(t, life.ModeNative, h.Mode())

	require.NoError(t, h.Mount())
	blinker(t, h)
	before, err := h.Cells()
	require.NoError(t, err)

	require.NoError(t, h.SetMode(life.ModePure))
	after, err := h.Cells()
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Equal(t, DefaultForeground, f.cellColor(2, 3))

	var ce *ConfigError
	require.ErrorAs(t, h.SetMode("gpu"), &ce)
	assert.Equal(t, life.ModePure, h.Mode())
}

func TestHost_UpdateRuleset(t *testing.T) {
	f := newFixture(t)
	h := f.host
	require.ErrorIs(t, h.UpdateRuleset(0x200, 0), life.ErrInvalidRuleset)
	assert.Equal(t, life.DefaultRuleset, h.Ruleset())

	require.NoError(t, h.Mount())
	blinker(t, h)
	require.NoError(t, h.UpdateRuleset(0, 0))
	_, err := h.NextGeneration()
	require.NoError(t, err)

	cells, _ := h.Cells()
	assert.Equal(t, 0, life.Alive(cells))
	assert.Equal(t, "B/S", h.Status().Rules)
}

func TestHost_InvokeUpdateRulesetRejectsWideMasks(t *testing.T) {
	f := newFixture(t)
	h := f.host

	for _, args := range [][]any{{65536 + 8, 12}, {8, -1}, {0x200, 0}} {
		_, err := h.Invoke(nil, MethodUpdateRuleset, args)
		var ce *ConfigError
		require.ErrorAs(t, err, &ce, "%v", args)
		assert.Equal(t, "rules", ce.Field)
		assert.ErrorIs(t, err, life.ErrInvalidRuleset)
		assert.Equal(t, life.DefaultRuleset, h.Ruleset())
	}

	_, err := h.Invoke(nil, MethodUpdateRuleset, []any{0x1FF, 0})
	require.NoError(t, err)
	assert.Equal(t, life.Ruleset{Resurrect: 0x1FF}, h.Ruleset())
}

func TestHost_SetCellBounds(t *testing.T) {
	f := newFixture(t)
	assertStateError(t, f.host.SetCell(0, 0, true), "set cell")

	require.NoError(t, f.host.Mount())
	var ce *ConfigError
	require.ErrorAs(t, f.host.SetCell(5, 0, true), &ce)
	require.ErrorAs(t, f.host.SetCell(0, -1, true), &ce)
}

func TestHost_Transform(t *testing.T) {
	f := newFixture(t)
	h := f.host
	require.NoError(t, h.Mount())
	require.NoError(t, h.SetCell(0, 0, true))

	h.Transform(render.Transform{Scale: 2, X: 4, Y: 0})
	assert.Equal(t, render.Transform{Scale: 2, X: 4}, h.CurrentTransform())
	img := h.Surface().Image()
	assert.Equal(t, DefaultBackground, img.RGBAAt(0, 0))
	assert.Equal(t, DefaultForeground, img.RGBAAt(4, 0))
	assert.Equal(t, DefaultForeground, img.RGBAAt(5, 1))
	assert.Equal(t, DefaultBackground, img.RGBAAt(6, 0))

	h.Transform(render.Transform{})
	assert.Equal(t, render.Identity, h.CurrentTransform())
	assert.Equal(t, DefaultForeground, h.Surface().Image().RGBAAt(0, 0))
}

func TestHost_SetGraphSurface(t *testing.T) {
	f := newFixture(t)
	s := render.NewImageSurface(4, 4)
	require.NoError(t, f.host.SetGraphSurface(s))
	require.Len(t, f.reporter.surfaces, 1)
	assert.Same(t, s, f.reporter.surfaces[0])
}

func TestHost_Status(t *testing.T) {
	f := newFixture(t, WithMode(life.ModeNative), WithFPSLimit(30))
	require.NoError(t, f.host.Mount())

	st := f.host.Status()
	assert.Equal(t, "ready", st.State)
	assert.Equal(t, life.ModeNative, st.Mode)
	assert.Equal(t, 30, st.FPSLimit)
	assert.Equal(t, "B3/S23", st.Rules)
	assert.Equal(t, 5, st.Env.Rows)
}

// ═══════════════════════════════════════════════════════════════════════════
// 导入导出
// ═══════════════════════════════════════════════════════════════════════════

func TestHost_ExportImport(t *testing.T) {
	src := newFixture(t)
	_, err := src.host.Export()
	assertStateError(t, err, "export")

	require.NoError(t, src.host.Mount())
	blinker(t, src.host)
	require.NoError(t, src.host.LimitFPS(24))
	require.NoError(t, src.host.UpdateRuleset(0b1001000, 0b1100))
	_, err = src.host.NextGeneration()
	require.NoError(t, err)

	data, err := src.host.Export()
	require.NoError(t, err)

	dst := newFixture(t)
	assert.False(t, dst.host.Import(data), "nothing mounted yet")
	require.NoError(t, dst.host.Mount())
	require.True(t, dst.host.Import(data))

	want, _ := src.host.Cells()
	got, _ := dst.host.Cells()
	assert.Equal(t, want, got)
	assert.Equal(t, uint64(1), dst.host.Generation())
	assert.Equal(t, 24, dst.host.FPSLimit())
	assert.Equal(t, "B36/S23", dst.host.Ruleset().String())
	assert.Equal(t, 2, dst.reporter.resets)
	assert.Equal(t, DefaultForeground, dst.cellColor(1, 2))
}

func TestHost_ImportFailureKeepsState(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.host.Mount())
	blinker(t, f.host)
	_, err := f.host.NextGeneration()
	require.NoError(t, err)
	before, _ := f.host.Cells()

	bad := []string{
		`not json`,
		`{"cells":[true],"rows":2,"cols":2}`,
		`{"cells":[],"rows":0,"cols":0,"rules":{"resurrect":1024,"survive":0}}`,
		`{"cells":[],"rows":0,"cols":0,"fpsLimit":-3}`,
	}
	for _, in := range bad {
		assert.False(t, f.host.Import([]byte(in)), in)
	}

	after, _ := f.host.Cells()
	assert.Equal(t, before, after)
	assert.Equal(t, uint64(1), f.host.Generation())
	assert.Equal(t, life.DefaultRuleset, f.host.Ruleset())
	assert.Equal(t, 1, f.reporter.resets)
}

func TestHost_ExportWithoutCodec(t *testing.T) {
	h, err := New(smallConfig, nil, WithScheduler(NewManualScheduler()))
	require.NoError(t, err)
	defer h.Free()
	require.NoError(t, h.Mount())

	_, err = h.Export()
	assert.ErrorIs(t, err, ErrNoCodec)
	assert.False(t, h.Import([]byte("{}")))
}

func TestConfigToEnv(t *testing.T) {
	env := ConfigToEnv(Config{Width: 803, Height: 599, BlockSize: 4, BlockMargin: 1})
	assert.Equal(t, Environment{Width: 800, Height: 595, Cols: 160, Rows: 119, Block: 5, BlockSize: 4, BlockMargin: 1}, env)
	assert.Equal(t, Config{Width: 800, Height: 595, BlockSize: 4, BlockMargin: 1}, env.Config())

	require.NoError(t, DefaultConfig().Validate())
	var ce *ConfigError
	require.ErrorAs(t, Config{Width: 10, Height: 10, BlockSize: 1, BlockMargin: -1}.Validate(), &ce)
	assert.Equal(t, "blockMargin", ce.Field)
	require.ErrorAs(t, Config{Width: 10, Height: 1, BlockSize: 1, BlockMargin: 1}.Validate(), &ce)
	assert.Equal(t, "height", ce.Field)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "running", StateRunning.String())
	assert.Equal(t, "state(9)", State(9).String())
	assert.Equal(t, "engine: cannot play while stopped", (&StateError{Op: "play", State: StateStopped}).Error())
}
