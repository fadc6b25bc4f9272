package engine

import (
	"github.com/lwmacct/251219-go-pkg-life/pkg/actor"
	"github.com/lwmacct/251219-go-pkg-life/pkg/chart"
	"github.com/lwmacct/251219-go-pkg-life/pkg/render"
)

// Reporter 每一代统计的接收方
//
// 所有方法都是 fire-and-forget，错误只表示本地发送失败。
type Reporter interface {
	// Report 上报一代的死亡与复活数
	Report(killed, resurrected int) error
	// Reset 网格被整体替换后清空累计值
	Reset() error
	// SetSurface 挂载绘图表面
	SetSurface(s render.Surface) error
}

// ChartReporter 把统计 commit 给图表工作端上的 Graph 实例
type ChartReporter struct {
	graph *actor.Instance
}

// NewChartReporter 包装 Graph 实例
func NewChartReporter(graph *actor.Instance) *ChartReporter {
	return &ChartReporter{graph: graph}
}

// Graph 底层实例
func (r *ChartReporter) Graph() *actor.Instance { return r.graph }

// Report 实现 Reporter 接口
func (r *ChartReporter) Report(killed, resurrected int) error {
	return r.graph.Commit(chart.MethodUpdate, killed, resurrected)
}

// Reset 实现 Reporter 接口
func (r *ChartReporter) Reset() error {
	return r.graph.Commit(chart.MethodReset)
}

// SetSurface 实现 Reporter 接口，可转移的表面以转移方式发送
func (r *ChartReporter) SetSurface(s render.Surface) error {
	if t, ok := s.(actor.Transferable); ok {
		return r.graph.Commit(chart.MethodSetSurface, actor.Transfer(t))
	}
	return r.graph.Commit(chart.MethodSetSurface, s)
}

// nopReporter 丢弃所有统计
type nopReporter struct{}

func (nopReporter) Report(int, int) error           { return nil }
func (nopReporter) Reset() error                    { return nil }
func (nopReporter) SetSurface(render.Surface) error { return nil }
