package engine

// Config 布局输入
type Config struct {
	Width       int `json:"width" koanf:"width"`
	Height      int `json:"height" koanf:"height"`
	BlockSize   int `json:"blockSize" koanf:"block_size"`
	BlockMargin int `json:"blockMargin" koanf:"block_margin"`
}

// DefaultConfig 默认布局：800×600 像素，细胞 4 像素加 1 像素间隔
func DefaultConfig() Config {
	return Config{Width: 800, Height: 600, BlockSize: 4, BlockMargin: 1}
}

// Validate 检查布局至少能容纳一个细胞
func (c Config) Validate() error {
	switch {
	case c.BlockSize <= 0:
		return &ConfigError{Field: "blockSize", Value: c.BlockSize, Reason: "must be positive"}
	case c.BlockMargin < 0:
		return &ConfigError{Field: "blockMargin", Value: c.BlockMargin, Reason: "must not be negative"}
	case c.Width < c.BlockSize+c.BlockMargin:
		return &ConfigError{Field: "width", Value: c.Width, Reason: "smaller than one block"}
	case c.Height < c.BlockSize+c.BlockMargin:
		return &ConfigError{Field: "height", Value: c.Height, Reason: "smaller than one block"}
	}
	return nil
}

// Environment 由 Config 推导出的布局
type Environment struct {
	Width       int `json:"width"`
	Height      int `json:"height"`
	Cols        int `json:"cols"`
	Rows        int `json:"rows"`
	Block       int `json:"block"`
	BlockSize   int `json:"blockSize"`
	BlockMargin int `json:"blockMargin"`
}

// ConfigToEnv 计算块大小与行列数，宽高截断为块大小的整数倍
func ConfigToEnv(c Config) Environment {
	block := c.BlockSize + c.BlockMargin
	width := c.Width - c.Width%block
	height := c.Height - c.Height%block
	return Environment{
		Width:       width,
		Height:      height,
		Cols:        width / block,
		Rows:        height / block,
		Block:       block,
		BlockSize:   c.BlockSize,
		BlockMargin: c.BlockMargin,
	}
}

// Config 还原为布局输入
func (e Environment) Config() Config {
	return Config{Width: e.Width, Height: e.Height, BlockSize: e.BlockSize, BlockMargin: e.BlockMargin}
}
