package life_test

import (
	"fmt"

	"github.com/lwmacct/251219-go-pkg-life/pkg/life"
)

func Example() {
	u, err := life.New(life.ModePure, 5, 5)
	if err != nil {
		panic(err)
	}
	defer u.Free()

	// 水平闪烁子
	u.SetCell(2, 1, true)
	u.SetCell(2, 2, true)
	u.SetCell(2, 3, true)

	u.NextGen()
	fmt.Println("resurrected:", u.Resurrected())
	fmt.Println("killed:", u.Killed())
	fmt.Println("alive:", life.Alive(u.Snapshot()))

	// Output:
	// resurrected: [1 2 3 2]
	// killed: [2 1 2 3]
	// alive: 3
}

func ExampleParseRuleset() {
	r, err := life.ParseRuleset("b36/s23")
	if err != nil {
		panic(err)
	}
	fmt.Println(r)
	fmt.Printf("resurrect=%09b survive=%09b\n", r.Resurrect, r.Survive)

	// Output:
	// B36/S23
	// resurrect=001001000 survive=000001100
}

func ExampleImager() {
	u, _ := life.New(life.ModeNative, 2, 3)
	defer u.Free()

	u.SetCell(1, 2, true)
	img := u.(life.Imager).Image()
	fmt.Println(img.Bounds(), img.RGBAAt(2, 1), img.RGBAAt(0, 0))

	// Output:
	// (0,0)-(3,2) {0 0 0 255} {255 255 255 255}
}
