package life

import (
	"fmt"
	"strings"
)

// RuleMask 掩码的有效位，对应邻居数 0–8
const RuleMask = 0x1FF

// Ruleset 复活与存活掩码，第 n 位表示邻居数为 n 时生效
type Ruleset struct {
	Resurrect uint16 `json:"resurrect" koanf:"resurrect"`
	Survive   uint16 `json:"survive" koanf:"survive"`
}

// DefaultRuleset 经典规则 B3/S23
var DefaultRuleset = Ruleset{Resurrect: 0b000001000, Survive: 0b000001100}

// Validate 检查掩码是否在 9 位以内
func (r Ruleset) Validate() error {
	if r.Resurrect&^RuleMask != 0 || r.Survive&^RuleMask != 0 {
		return fmt.Errorf("%w: masks must fit in 9 bits (resurrect=%#x survive=%#x)", ErrInvalidRuleset, r.Resurrect, r.Survive)
	}
	return nil
}

// String 以 B/S 记法输出，如 B3/S23
func (r Ruleset) String() string {
	var b strings.Builder
	b.WriteByte('B')
	writeCounts(&b, r.Resurrect)
	b.WriteString("/S")
	writeCounts(&b, r.Survive)
	return b.String()
}

func writeCounts(b *strings.Builder, mask uint16) {
	for n := 0; n <= 8; n++ {
		if mask&(1<<n) != 0 {
			b.WriteByte(byte('0' + n))
		}
	}
}

// ParseRuleset 解析 B/S 记法（不区分大小写，两段顺序任意）
func ParseRuleset(s string) (Ruleset, error) {
	parts := strings.Split(strings.ToUpper(strings.TrimSpace(s)), "/")
	if len(parts) != 2 {
		return Ruleset{}, fmt.Errorf("%w: %q is not in B/S notation", ErrInvalidRuleset, s)
	}

	var r Ruleset
	var seenB, seenS bool
	for _, part := range parts {
		if part == "" {
			return Ruleset{}, fmt.Errorf("%w: empty section in %q", ErrInvalidRuleset, s)
		}
		mask, err := parseCounts(part[1:])
		if err != nil {
			return Ruleset{}, fmt.Errorf("%w: %q: %v", ErrInvalidRuleset, s, err)
		}
		switch part[0] {
		case 'B':
			if seenB {
				return Ruleset{}, fmt.Errorf("%w: duplicate B section in %q", ErrInvalidRuleset, s)
			}
			seenB = true
			r.Resurrect = mask
		case 'S':
			if seenS {
				return Ruleset{}, fmt.Errorf("%w: duplicate S section in %q", ErrInvalidRuleset, s)
			}
			seenS = true
			r.Survive = mask
		default:
			return Ruleset{}, fmt.Errorf("%w: section %q must start with B or S", ErrInvalidRuleset, part)
		}
	}
	return r, nil
}

func parseCounts(digits string) (uint16, error) {
	var mask uint16
	for _, c := range digits {
		if c < '0' || c > '8' {
			return 0, fmt.Errorf("neighbour count %q out of range 0-8", c)
		}
		mask |= 1 << (c - '0')
	}
	return mask, nil
}
