// Package config 加载模拟器配置
//
// 配置按层合并，后者覆盖前者：
//
//  1. 结构体默认值 [Defaults]
//  2. YAML / JSON 文件（按扩展名选择解析器）或内存中的文档
//
// [Watch] 监听配置文件，变更通过校验后回调。
package config

import (
	"errors"
	"fmt"
	"image/color"
	"io"
	"log/slog"
	"math/rand/v2"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/lwmacct/251219-go-pkg-life/pkg/chart"
	"github.com/lwmacct/251219-go-pkg-life/pkg/engine"
	"github.com/lwmacct/251219-go-pkg-life/pkg/life"
	"github.com/lwmacct/251219-go-pkg-life/pkg/render"
)

// ErrInvalid 配置值无效
var ErrInvalid = errors.New("config: invalid value")

// Config 模拟器配置
type Config struct {
	Engine   engine.Config `koanf:"engine"`
	Mode     string        `koanf:"mode"`
	Rules    string        `koanf:"rules"`
	FPSLimit int           `koanf:"fps_limit"`
	Seed     SeedConfig    `koanf:"seed"`
	Colors   ColorsConfig  `koanf:"colors"`
	Chart    ChartConfig   `koanf:"chart"`
	Actor    ActorConfig   `koanf:"actor"`
	Log      LogConfig     `koanf:"log"`
}

// SeedConfig 挂载时的随机填充
type SeedConfig struct {
	// Probability 细胞存活概率，0 表示不填充
	Probability float64 `koanf:"probability"`
	// Value 随机种子，0 表示使用全局随机源
	Value uint64 `koanf:"value"`
}

// ColorsConfig 细胞颜色（#rrggbb）
type ColorsConfig struct {
	Foreground string `koanf:"foreground"`
	Background string `koanf:"background"`
}

// ChartConfig 种群曲线图
type ChartConfig struct {
	// Capacity 保留的样本数
	Capacity int `koanf:"capacity"`
}

// ActorConfig 主线程一侧的 Actor 设置
type ActorConfig struct {
	// RequestTimeout 请求超时，0 表示只受 context 约束
	RequestTimeout time.Duration `koanf:"request_timeout"`
	MailboxSize    int           `koanf:"mailbox_size"`
}

// LogConfig 日志设置
type LogConfig struct {
	// Level debug / info / warn / error
	Level string `koanf:"level"`
	// Format text / json
	Format string `koanf:"format"`
}

// Defaults 默认配置
func Defaults() Config {
	return Config{
		Engine:   engine.DefaultConfig(),
		Mode:     string(life.ModePure),
		Rules:    life.DefaultRuleset.String(),
		FPSLimit: 0,
		Seed:     SeedConfig{Probability: engine.DefaultSeedProbability},
		Colors: ColorsConfig{
			Foreground: render.FormatColor(engine.DefaultForeground),
			Background: render.FormatColor(engine.DefaultBackground),
		},
		Chart: ChartConfig{Capacity: chart.Capacity},
		Actor: ActorConfig{MailboxSize: 64},
		Log:   LogConfig{Level: "info", Format: "text"},
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// 加载
// ═══════════════════════════════════════════════════════════════════════════

// Load 以默认值为底，合并 path 指向的文件；path 为空时只使用默认值
func Load(path string) (Config, error) {
	k, err := defaults()
	if err != nil {
		return Config{}, err
	}
	if path != "" {
		parser, err := parserFor(path)
		if err != nil {
			return Config{}, err
		}
		if err := k.Load(file.Provider(path), parser); err != nil {
			return Config{}, fmt.Errorf("config: load %s: %w", path, err)
		}
	}
	return unmarshal(k)
}

// Parse 以默认值为底，合并内存中的 YAML 或 JSON 文档
func Parse(data []byte, format string) (Config, error) {
	k, err := defaults()
	if err != nil {
		return Config{}, err
	}
	parser, err := parserFor("config." + format)
	if err != nil {
		return Config{}, err
	}
	if err := k.Load(rawbytes.Provider(data), parser); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", format, err)
	}
	return unmarshal(k)
}

func defaults() (*koanf.Koanf, error) {
	k := koanf.New(".")
	if err := k.Load(structs.Provider(Defaults(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("config: load defaults: %w", err)
	}
	return k, nil
}

func unmarshal(k *koanf.Koanf) (Config, error) {
	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("config: decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func parserFor(path string) (koanf.Parser, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		return yaml.Parser(), nil
	case ".json":
		return json.Parser(), nil
	default:
		return nil, fmt.Errorf("%w: unsupported config format %q", ErrInvalid, ext)
	}
}

// Watch 监听配置文件，变更且校验通过后调用 onChange
//
// 读取或校验失败只记录警告，保留当前配置。返回的函数停止监听。
func Watch(path string, logger *slog.Logger, onChange func(Config)) (func() error, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if _, err := parserFor(path); err != nil {
		return nil, err
	}
	f := file.Provider(path)
	err := f.Watch(func(_ any, err error) {
		if err != nil {
			logger.Warn("config watch failed", "path", path, "error", err)
			return
		}
		cfg, err := Load(path)
		if err != nil {
			logger.Warn("config reload rejected", "path", path, "error", err)
			return
		}
		logger.Info("config reloaded", "path", path)
		onChange(cfg)
	})
	if err != nil {
		return nil, fmt.Errorf("config: watch %s: %w", path, err)
	}
	return f.Unwatch, nil
}

// ═══════════════════════════════════════════════════════════════════════════
// 校验与转换
// ═══════════════════════════════════════════════════════════════════════════

// Validate 检查所有字段
func (c Config) Validate() error {
	if err := c.Engine.Validate(); err != nil {
		return fmt.Errorf("config: engine: %w", err)
	}
	if _, err := life.ParseMode(c.Mode); err != nil {
		return fmt.Errorf("%w: mode: %w", ErrInvalid, err)
	}
	if _, err := life.ParseRuleset(c.Rules); err != nil {
		return fmt.Errorf("%w: rules: %w", ErrInvalid, err)
	}
	if c.FPSLimit < 0 {
		return fmt.Errorf("%w: fps_limit %d is negative", ErrInvalid, c.FPSLimit)
	}
	if c.Seed.Probability < 0 || c.Seed.Probability > 1 {
		return fmt.Errorf("%w: seed.probability %v outside [0, 1]", ErrInvalid, c.Seed.Probability)
	}
	if _, _, err := c.Colors.parse(); err != nil {
		return err
	}
	if c.Chart.Capacity < 0 {
		return fmt.Errorf("%w: chart.capacity %d is negative", ErrInvalid, c.Chart.Capacity)
	}
	if c.Actor.RequestTimeout < 0 || c.Actor.MailboxSize < 0 {
		return fmt.Errorf("%w: actor timeout and mailbox size must not be negative", ErrInvalid)
	}
	if _, err := c.Log.level(); err != nil {
		return err
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("%w: log.format %q", ErrInvalid, c.Log.Format)
	}
	return nil
}

func (c ColorsConfig) parse() (fg, bg color.RGBA, err error) {
	if fg, err = render.ParseColor(c.Foreground); err != nil {
		return fg, bg, fmt.Errorf("%w: colors.foreground: %w", ErrInvalid, err)
	}
	if bg, err = render.ParseColor(c.Background); err != nil {
		return fg, bg, fmt.Errorf("%w: colors.background: %w", ErrInvalid, err)
	}
	return fg, bg, nil
}

// EngineOptions 转换为引擎选项，调用前应已通过 Validate
func (c Config) EngineOptions() ([]engine.Option, error) {
	mode, err := life.ParseMode(c.Mode)
	if err != nil {
		return nil, err
	}
	rules, err := life.ParseRuleset(c.Rules)
	if err != nil {
		return nil, err
	}
	fg, bg, err := c.Colors.parse()
	if err != nil {
		return nil, err
	}
	var rng *rand.Rand
	if c.Seed.Value != 0 {
		rng = rand.New(rand.NewPCG(c.Seed.Value, c.Seed.Value))
	}
	return []engine.Option{
		engine.WithMode(mode),
		engine.WithRuleset(rules),
		engine.WithFPSLimit(c.FPSLimit),
		engine.WithSeed(c.Seed.Probability, rng),
		engine.WithColors(fg, bg),
		engine.WithChartCapacity(c.Chart.Capacity),
	}, nil
}

func (l LogConfig) level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return level, fmt.Errorf("%w: log.level %q", ErrInvalid, l.Level)
	}
	return level, nil
}

// NewLogger 按日志配置创建输出到 w 的日志器
func (l LogConfig) NewLogger(w io.Writer) *slog.Logger {
	level, err := l.level()
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if l.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
