package chart

import (
	"context"
	"image/color"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lwmacct/251219-go-pkg-life/pkg/actor"
	"github.com/lwmacct/251219-go-pkg-life/pkg/render"
)

func countColor(s render.Surface, c color.RGBA) int {
	img := s.Image()
	n := 0
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if img.RGBAAt(x, y) == c {
				n++
			}
		}
	}
	return n
}

func TestGraph_Update(t *testing.T) {
	g := New(0)
	assert.Empty(t, g.Series())
	assert.Equal(t, Bounds{}, g.Bounds())

	g.Update(0, 10)
	g.Update(4, 2)
	g.Update(3, 0)

	assert.Equal(t, 5, g.Alive())
	assert.Equal(t, []Sample{
		{Alive: 10, Killed: 0, Resurrected: 10},
		{Alive: 8, Killed: 4, Resurrected: 2},
		{Alive: 5, Killed: 3, Resurrected: 0},
	}, g.Series())

	assert.Equal(t, Bounds{
		Alive:       Range{Min: 5, Max: 10},
		Killed:      Range{Min: 0, Max: 4},
		Resurrected: Range{Min: 0, Max: 10},
	}, g.Bounds())
}

func TestGraph_RingOverwritesOldest(t *testing.T) {
	g := New(3)
	for i := 1; i <= 5; i++ {
		g.Update(0, i)
	}

	assert.Equal(t, 3, g.Len())
	assert.Equal(t, 15, g.Alive(), "alive keeps accumulating past the ring")
	assert.Equal(t, []Sample{
		{Alive: 6, Resurrected: 3},
		{Alive: 10, Resurrected: 4},
		{Alive: 15, Resurrected: 5},
	}, g.Series())
	assert.Equal(t, Range{Min: 6, Max: 15}, g.Bounds().Alive)
}

func TestGraph_DefaultCapacity(t *testing.T) {
	g := New(-1)
	for range Capacity + 10 {
		g.Update(0, 1)
	}
	assert.Equal(t, Capacity, g.Len())
	assert.Equal(t, 11, g.Series()[0].Alive)
}

func TestGraph_Reset(t *testing.T) {
	g := New(10)
	g.Update(0, 3)
	g.Reset()
	assert.Equal(t, 0, g.Alive())
	assert.Empty(t, g.Series())
}

func TestGraph_Draw(t *testing.T) {
	g := New(10)
	s := render.NewImageSurface(40, 20)
	g.SetSurface(s)
	assert.Positive(t, countColor(s, GridColor))
	assert.Zero(t, countColor(s, AliveColor))

	for range 5 {
		g.Update(0, 10)
	}
	assert.Positive(t, countColor(s, AliveColor))
	assert.Positive(t, countColor(s, ResurrectedColor))

	// 卸下表面后不再绘制
	g.SetSurface(nil)
	s.Clear(color.RGBA{})
	g.Update(1, 1)
	assert.Zero(t, countColor(s, AliveColor))
}

func TestGraph_Actor(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	a := actor.Spawn(NewRegistry())
	defer a.Close()

	graph, err := a.Create(ctx, ClassName, 4)
	require.NoError(t, err)

	require.NoError(t, graph.Commit(MethodUpdate, 0, 7))
	require.NoError(t, graph.Commit(MethodUpdate, 2, 1))

	series, err := actor.CallAs[[]Sample](ctx, graph, MethodSeries)
	require.NoError(t, err)
	assert.Equal(t, []Sample{{Alive: 7, Resurrected: 7}, {Alive: 6, Killed: 2, Resurrected: 1}}, series)

	surface := render.NewImageSurface(30, 10)
	_, err = graph.Call(ctx, MethodSetSurface, actor.Transfer(surface))
	require.NoError(t, err)
	assert.True(t, surface.Detached())

	bounds, err := actor.CallAs[Bounds](ctx, graph, MethodBounds)
	require.NoError(t, err)
	assert.Equal(t, Range{Min: 6, Max: 7}, bounds.Alive)

	_, err = graph.Call(ctx, MethodSetSurface, "canvas")
	var remote *actor.RemoteError
	require.ErrorAs(t, err, &remote)

	_, err = graph.Call(ctx, "explode")
	require.ErrorAs(t, err, &remote)
	assert.Contains(t, remote.Message, "explode")
}
