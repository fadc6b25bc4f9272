package life

import (
	"image/color"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var modes = []Mode{ModePure, ModeNative}

func newUniverse(t *testing.T, mode Mode, rows, cols int) Universe {
	t.Helper()
	u, err := New(mode, rows, cols)
	require.NoError(t, err)
	t.Cleanup(u.Free)
	return u
}

// pairs 把扁平增量列表转成坐标集合，便于与顺序无关地比较
func pairs(list []uint32) map[[2]uint32]bool {
	out := make(map[[2]uint32]bool, len(list)/2)
	for i := 0; i+1 < len(list); i += 2 {
		out[[2]uint32{list[i], list[i+1]}] = true
	}
	return out
}

func set(u Universe, cells ...[2]int) {
	for _, c := range cells {
		u.SetCell(c[0], c[1], true)
	}
}

func TestNew(t *testing.T) {
	_, err := New(ModePure, 0, 5)
	require.ErrorIs(t, err, ErrInvalidSize)

	_, err = New(Mode("gpu"), 5, 5)
	require.Error(t, err)

	for _, mode := range modes {
		u := newUniverse(t, mode, 3, 4)
		assert.Equal(t, 3, u.Rows())
		assert.Equal(t, 4, u.Cols())
		assert.Equal(t, DefaultRuleset, u.Ruleset())
		assert.Empty(t, u.Resurrected())
		assert.Empty(t, u.Killed())
		assert.Equal(t, 0, Alive(u.Snapshot()))
	}
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode(" Native ")
	require.NoError(t, err)
	assert.Equal(t, ModeNative, m)

	_, err = ParseMode("wasm")
	assert.Error(t, err)
}

func TestNextGen_SingleCellDies(t *testing.T) {
	for _, mode := range modes {
		t.Run(string(mode), func(t *testing.T) {
			u := newUniverse(t, mode, 5, 5)
			u.SetCell(2, 2, true)
			assert.Equal(t, []uint32{2, 2}, u.Resurrected())

			u.NextGen()
			assert.Equal(t, []uint32{2, 2}, u.Killed())
			assert.Empty(t, u.Resurrected())
			assert.Equal(t, 0, Alive(u.Snapshot()))
		})
	}
}

func TestNextGen_Blinker(t *testing.T) {
	for _, mode := range modes {
		t.Run(string(mode), func(t *testing.T) {
			u := newUniverse(t, mode, 5, 5)
			set(u, [2]int{2, 1}, [2]int{2, 2}, [2]int{2, 3})

			u.NextGen()
			assert.Equal(t, []uint32{1, 2, 3, 2}, u.Resurrected())
			assert.Equal(t, []uint32{2, 1, 2, 3}, u.Killed())

			u.NextGen()
			assert.Equal(t, pairs([]uint32{2, 1, 2, 3}), pairs(u.Resurrected()))
			assert.Equal(t, pairs([]uint32{1, 2, 3, 2}), pairs(u.Killed()))
		})
	}
}

func TestNextGen_GliderTranslates(t *testing.T) {
	glider := [][2]int{{0, 1}, {1, 2}, {2, 0}, {2, 1}, {2, 2}}

	for _, mode := range modes {
		t.Run(string(mode), func(t *testing.T) {
			u := newUniverse(t, mode, 8, 8)
			set(u, glider...)
			for range 4 {
				u.NextGen()
			}

			want := make([]bool, 64)
			for _, c := range glider {
				want[(c[0]+1)*8+c[1]+1] = true
			}
			assert.Equal(t, want, u.Snapshot())
		})
	}
}

func TestNextGen_BorderStaysDead(t *testing.T) {
	u := newUniverse(t, ModePure, 3, 3)
	// 角上的三个细胞：边框外不会有细胞复活
	set(u, [2]int{0, 0}, [2]int{0, 1}, [2]int{1, 0})
	u.NextGen()
	assert.Equal(t, []uint32{1, 1}, u.Resurrected())
	assert.Empty(t, u.Killed())
	assert.Equal(t, 4, Alive(u.Snapshot()))
}

func TestSetRuleset_AppliesToNextGeneration(t *testing.T) {
	for _, mode := range modes {
		t.Run(string(mode), func(t *testing.T) {
			u := newUniverse(t, mode, 5, 5)
			set(u, [2]int{2, 1}, [2]int{2, 2}, [2]int{2, 3})
			u.NextGen()
			before := append([]uint32(nil), u.Resurrected()...)

			u.SetRuleset(0, 0)
			assert.Equal(t, Ruleset{}, u.Ruleset())
			assert.Equal(t, before, u.Resurrected(), "deltas of the last generation are untouched")

			u.NextGen()
			assert.Empty(t, u.Resurrected())
			assert.Len(t, u.Killed(), 6)
			assert.Equal(t, 0, Alive(u.Snapshot()))
		})
	}
}

func TestSetRuleset_MasksHighBits(t *testing.T) {
	u := newUniverse(t, ModePure, 2, 2)
	u.SetRuleset(0xFFFF, 0x0200|0b100)
	assert.Equal(t, Ruleset{Resurrect: 0x1FF, Survive: 0b100}, u.Ruleset())
}

func TestSetCell(t *testing.T) {
	for _, mode := range modes {
		t.Run(string(mode), func(t *testing.T) {
			u := newUniverse(t, mode, 5, 5)
			set(u, [2]int{2, 1}, [2]int{2, 2}, [2]int{2, 3})
			u.NextGen()
			require.Equal(t, []uint32{2, 1, 2, 3}, u.Killed())

			// 复活刚死亡的细胞：两个翻转抵消
			u.SetCell(2, 1, true)
			assert.Equal(t, []uint32{2, 3}, u.Killed())
			assert.Equal(t, []uint32{1, 2, 3, 2}, u.Resurrected())

			// 没有反向翻转时追加
			u.SetCell(0, 0, true)
			assert.Equal(t, []uint32{1, 2, 3, 2, 0, 0}, u.Resurrected())

			// 状态不变与越界都被忽略
			u.SetCell(0, 0, true)
			u.SetCell(-1, 0, true)
			u.SetCell(0, 5, true)
			assert.Len(t, u.Resurrected(), 6)

			// 抵消后其余翻转保持原有顺序
			u.SetCell(1, 2, false)
			assert.Equal(t, []uint32{3, 2, 0, 0}, u.Resurrected())
			assert.Equal(t, []uint32{2, 3}, u.Killed())
		})
	}
}

func TestSeed(t *testing.T) {
	for _, mode := range modes {
		t.Run(string(mode), func(t *testing.T) {
			u := newUniverse(t, mode, 20, 30)
			u.Seed(0, rand.New(rand.NewPCG(1, 2)))
			assert.Empty(t, u.Resurrected())

			u.Seed(1, rand.New(rand.NewPCG(1, 2)))
			assert.Len(t, u.Resurrected(), 2*20*30)
			assert.Equal(t, 20*30, Alive(u.Snapshot()))
		})
	}
}

func TestPureAndNativeAgree(t *testing.T) {
	pure := newUniverse(t, ModePure, 40, 60)
	native := newUniverse(t, ModeNative, 40, 60)

	pure.Seed(0.45, rand.New(rand.NewPCG(1, 2)))
	native.Seed(0.45, rand.New(rand.NewPCG(1, 2)))
	require.Equal(t, pure.Resurrected(), native.Resurrected())

	for gen := range 25 {
		pure.NextGen()
		native.NextGen()
		require.Equal(t, pure.Resurrected(), native.Resurrected(), "generation %d", gen)
		require.Equal(t, pure.Killed(), native.Killed(), "generation %d", gen)
	}
	assert.Equal(t, pure.Snapshot(), native.Snapshot())
}

func TestNative_ImageFollowsGrid(t *testing.T) {
	u := newUniverse(t, ModeNative, 5, 5)
	img := u.(Imager).Image()
	require.Equal(t, 5, img.Bounds().Dx())
	assert.Equal(t, color.RGBA{0xFF, 0xFF, 0xFF, 0xFF}, img.RGBAAt(2, 2))

	set(u, [2]int{2, 1}, [2]int{2, 2}, [2]int{2, 3})
	assert.Equal(t, color.RGBA{0, 0, 0, 0xFF}, img.RGBAAt(1, 2))

	u.NextGen()
	// 竖直的闪烁子：x 为列，y 为行
	assert.Equal(t, color.RGBA{0, 0, 0, 0xFF}, img.RGBAAt(2, 1))
	assert.Equal(t, color.RGBA{0, 0, 0, 0xFF}, img.RGBAAt(2, 3))
	assert.Equal(t, color.RGBA{0xFF, 0xFF, 0xFF, 0xFF}, img.RGBAAt(1, 2))

	u.Seed(1, nil)
	img = u.(Imager).Image()
	for y := range 5 {
		for x := range 5 {
			assert.Equal(t, uint8(0), img.RGBAAt(x, y).R)
		}
	}
}

func TestNative_DeltasLiveInMemory(t *testing.T) {
	u := newUniverse(t, ModeNative, 4, 4)
	mem := u.(interface{ Memory() *Memory }).Memory()

	for _, name := range []string{"source", "target", "resurrected", "killed", "image"} {
		r, ok := mem.Region(name)
		require.True(t, ok, name)
		assert.Zero(t, r.Offset%CacheLineSize, name)
	}
	r, _ := mem.Region("resurrected")
	assert.Equal(t, uintptr(2*4*4*4), r.Size)
}

func TestNative_FreedPanics(t *testing.T) {
	u, err := New(ModeNative, 4, 4)
	require.NoError(t, err)
	mem := u.(interface{ Memory() *Memory }).Memory()

	u.Free()
	assert.True(t, mem.Released())
	assert.NotPanics(t, u.Free)

	assert.PanicsWithValue(t, ErrFreed, func() { u.NextGen() })
	assert.PanicsWithValue(t, ErrFreed, func() { u.Resurrected() })
	assert.PanicsWithValue(t, ErrFreed, func() { u.SetCell(0, 0, true) })
	assert.PanicsWithValue(t, ErrFreed, func() { u.(Imager).Image() })
}

func TestResize(t *testing.T) {
	for _, mode := range modes {
		t.Run(string(mode), func(t *testing.T) {
			u := newUniverse(t, mode, 4, 4)
			set(u, [2]int{1, 1}, [2]int{3, 3})

			u.Resize(2, 3)
			assert.Equal(t, 2, u.Rows())
			assert.Equal(t, 3, u.Cols())
			assert.Equal(t, []bool{false, false, false, false, true, false}, u.Snapshot())
			assert.Equal(t, []uint32{1, 1}, u.Resurrected())
			assert.Empty(t, u.Killed())

			u.Resize(3, 3)
			assert.Equal(t, 1, Alive(u.Snapshot()))
			assert.Equal(t, []uint32{1, 1}, u.Resurrected())

			assert.Panics(t, func() { u.Resize(0, 3) })
		})
	}
}

func TestLoadAndSnapshot(t *testing.T) {
	for _, mode := range modes {
		t.Run(string(mode), func(t *testing.T) {
			u := newUniverse(t, mode, 3, 3)
			u.SetCell(2, 2, true)

			require.NoError(t, u.Load(2, 4, []bool{
				true, false, false, true,
				false, true, false, false,
			}))
			assert.Equal(t, []bool{
				true, false, false,
				false, true, false,
				false, false, false,
			}, u.Snapshot())
			assert.Equal(t, pairs([]uint32{0, 0, 1, 1}), pairs(u.Resurrected()))
			assert.Empty(t, u.Killed())

			assert.Error(t, u.Load(2, 2, []bool{true}))
		})
	}
}
