package lifebin

import "fmt"

// PackBits 把布尔数组按位打包，第 i 个元素位于第 i/8 字节的第 i%8 位
func PackBits(cells []bool) []byte {
	out := make([]byte, (len(cells)+7)/8)
	for i, alive := range cells {
		if alive {
			out[i/8] |= 1 << (i % 8)
		}
	}
	return out
}

// UnpackBits 还原 n 个布尔值
//
// 数据不足 n 位时报错；多出的字节被忽略。
func UnpackBits(data []byte, n int) ([]bool, error) {
	if n < 0 {
		return nil, fmt.Errorf("lifebin: negative cell count %d", n)
	}
	if need := (n + 7) / 8; len(data) < need {
		return nil, fmt.Errorf("%w: %d cells need %d bytes, got %d", ErrTruncated, n, need, len(data))
	}
	cells := make([]bool, n)
	for i := range cells {
		cells[i] = data[i/8]&(1<<(i%8)) != 0
	}
	return cells, nil
}
