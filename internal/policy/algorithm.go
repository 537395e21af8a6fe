package policy

import (
	"fmt"
	"strings"
)

// Algorithm identifies a rate limiting algorithm.
type Algorithm uint8

const (
	AlgorithmTokenBucket Algorithm = iota
	AlgorithmLeakyBucket
	AlgorithmFixedWindow
	AlgorithmSlidingWindow
)

// Algorithms lists every supported algorithm in declaration order.
var Algorithms = []Algorithm{
	AlgorithmTokenBucket,
	AlgorithmLeakyBucket,
	AlgorithmFixedWindow,
	AlgorithmSlidingWindow,
}

var algorithmNames = [...]string{
	AlgorithmTokenBucket:   "token_bucket",
	AlgorithmLeakyBucket:   "leaky_bucket",
	AlgorithmFixedWindow:   "fixed_window",
	AlgorithmSlidingWindow: "sliding_window",
}

// Storage key suffixes. They keep the same raw key used under different
// algorithms in separate entries.
var algorithmSuffixes = [...]string{
	AlgorithmTokenBucket:   "tb",
	AlgorithmLeakyBucket:   "lb",
	AlgorithmFixedWindow:   "fw",
	AlgorithmSlidingWindow: "sw",
}

// ParseAlgorithm resolves an algorithm by its wire name.
func ParseAlgorithm(name string) (Algorithm, error) {
	for i, n := range algorithmNames {
		if n == name {
			return Algorithm(i), nil
		}
	}
	return 0, fmt.Errorf("%w: unknown algorithm %q, supported are [%s]",
		ErrInvalidArgument, name, strings.Join(algorithmNames[:], ", "))
}

// Valid reports whether a is one of the known algorithms.
func (a Algorithm) Valid() bool {
	return int(a) < len(algorithmNames)
}

func (a Algorithm) String() string {
	if !a.Valid() {
		return fmt.Sprintf("algorithm(%d)", uint8(a))
	}
	return algorithmNames[a]
}

// Suffix returns the storage key suffix for a.
func (a Algorithm) Suffix() string {
	if !a.Valid() {
		return ""
	}
	return algorithmSuffixes[a]
}

func (a Algorithm) MarshalText() ([]byte, error) {
	if !a.Valid() {
		return nil, fmt.Errorf("%w: unknown algorithm %d", ErrInvalidArgument, uint8(a))
	}
	return []byte(algorithmNames[a]), nil
}

func (a *Algorithm) UnmarshalText(text []byte) error {
	parsed, err := ParseAlgorithm(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
