package engine

import "github.com/lwmacct/251219-go-pkg-life/pkg/life"

// Snapshot 导出 / 导入的记录
type Snapshot struct {
	Cells      []bool       `json:"cells"`
	CellSize   int          `json:"cellSize"`
	Rows       int          `json:"rows"`
	Cols       int          `json:"cols"`
	Rules      life.Ruleset `json:"rules"`
	Generation uint64       `json:"generation"`
	// FPSLimit 为 0 表示不限速
	FPSLimit int `json:"fpsLimit"`
}

// Codec 外部二进制编解码器，字节布局由实现决定
type Codec interface {
	Encode(s Snapshot) ([]byte, error)
	Decode(data []byte) (Snapshot, error)
}
