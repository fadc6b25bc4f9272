package engine

import (
	"image/color"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/lwmacct/251219-go-pkg-life/pkg/life"
)

// DefaultSeedProbability 挂载时细胞存活的概率
const DefaultSeedProbability = 0.55

// 默认颜色
var (
	DefaultForeground = color.RGBA{A: 0xFF}
	DefaultBackground = color.RGBA{R: 0xFF, G: 0xFF, B: 0xFF, A: 0xFF}
)

// Option 宿主配置选项
type Option func(*options)

type options struct {
	mode       life.Mode
	rules      life.Ruleset
	seed       float64
	rng        *rand.Rand
	fpsLimit   int
	foreground color.RGBA
	background color.RGBA
	scheduler  Scheduler
	reporter   Reporter
	codec      Codec
	chartCap   int
	clock      func() time.Time
	logger     *slog.Logger
}

func buildOptions(opts []Option) *options {
	o := &options{
		mode:       life.ModePure,
		rules:      life.DefaultRuleset,
		seed:       DefaultSeedProbability,
		foreground: DefaultForeground,
		background: DefaultBackground,
		clock:      time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return o
}

// WithMode 选择内核实现
func WithMode(m life.Mode) Option {
	return func(o *options) { o.mode = m }
}

// WithRuleset 初始规则
func WithRuleset(r life.Ruleset) Option {
	return func(o *options) { o.rules = r }
}

// WithSeed 挂载时的随机填充概率与随机源，rng 为 nil 时使用全局随机源
func WithSeed(probability float64, rng *rand.Rand) Option {
	return func(o *options) {
		o.seed = probability
		o.rng = rng
	}
}

// WithFPSLimit 初始帧率上限，0 表示不限速
func WithFPSLimit(limit int) Option {
	return func(o *options) { o.fpsLimit = limit }
}

// WithColors 前景（存活）与背景（死亡）颜色
func WithColors(foreground, background color.RGBA) Option {
	return func(o *options) {
		o.foreground = foreground
		o.background = background
	}
}

// WithScheduler 设置调度器
func WithScheduler(s Scheduler) Option {
	return func(o *options) { o.scheduler = s }
}

// WithReporter 设置统计接收方
func WithReporter(r Reporter) Option {
	return func(o *options) { o.reporter = r }
}

// WithCodec 设置导入导出使用的编解码器
func WithCodec(c Codec) Option {
	return func(o *options) { o.codec = c }
}

// WithChartCapacity 工厂创建的 Graph 的样本容量，0 使用 chart.Capacity
func WithChartCapacity(n int) Option {
	return func(o *options) { o.chartCap = n }
}

// WithClock 设置计时用的时钟
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.clock = now }
}

// WithLogger 设置日志器
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}
