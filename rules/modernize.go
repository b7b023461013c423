//go:build ruleguard

// Package gorules contains the ruleguard rules run by golangci-lint.
package gorules

import "github.com/quasilyte/go-ruleguard/dsl"

// MinMaxBuiltin detects math.Min/Max round trips through float64 for
// integers and suggests the min and max builtins.
func MinMaxBuiltin(m dsl.Matcher) {
	m.Match(`int(math.Min(float64($a), float64($b)))`).
		Report("use min($a, $b) instead of int(math.Min(float64(...)))").
		Suggest("min($a, $b)")

	m.Match(`int(math.Max(float64($a), float64($b)))`).
		Report("use max($a, $b) instead of int(math.Max(float64(...)))").
		Suggest("max($a, $b)")

	m.Match(`if $a < $b { $x = $a } else { $x = $b }`).
		Report("use $x = min($a, $b)").
		Suggest("$x = min($a, $b)")

	m.Match(`if $a > $b { $x = $a } else { $x = $b }`).
		Report("use $x = max($a, $b)").
		Suggest("$x = max($a, $b)")
}

// RangeOverInteger suggests range over an int for plain counting loops.
// Benchmark loops are left to BenchmarkLoop.
func RangeOverInteger(m dsl.Matcher) {
	m.Match(`for $i := 0; $i < $n; $i++ { $*body }`).
		Where(!m["n"].Text.Matches(`.*\.N$`)).
		Report("use for $i := range $n instead of for $i := 0; $i < $n; $i++").
		Suggest("for $i := range $n { $body }")
}

// BackwardIteration suggests slices.Backward for reverse loops.
func BackwardIteration(m dsl.Matcher) {
	m.Match(`for $i := len($s) - 1; $i >= 0; $i-- { $*body }`).
		Report("use slices.Backward($s) for reverse iteration")
}

// MapKeysCollection suggests maps.Keys over hand written key collection.
// Provider ids are listed in sorted order, so slices.Sorted is usually the
// better fit.
func MapKeysCollection(m dsl.Matcher) {
	m.Match(
		`for $k := range $m { $keys = append($keys, $k) }`,
		`for $k, _ := range $m { $keys = append($keys, $k) }`,
	).
		Report("use slices.Sorted(maps.Keys($m)) or slices.Collect(maps.Keys($m))")
}
