package keys

import "sort"

var (
	macOrder   = []Token{Command, Option, Shift, Ctrl, Fn}
	otherOrder = []Token{Ctrl, Alt, Shift, Super, Command, Option, Fn}
)

func orderTable(os OSType) []Token {
	if os == MacOS {
		return macOrder
	}
	return otherOrder
}

// Order returns tokens sorted by the OS priority table. Tokens missing from
// the table keep their relative order after all listed tokens. The input
// slice is not modified.
func Order(tokens []Token, os OSType) []Token {
	table := orderTable(os)
	rank := func(t Token) int {
		for i, x := range table {
			if x == t {
				return i
			}
		}
		return len(table)
	}

	out := make([]Token, len(tokens))
	copy(out, tokens)
	sort.SliceStable(out, func(i, j int) bool {
		return rank(out[i]) < rank(out[j])
	})
	return out
}
