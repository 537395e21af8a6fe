package policy

import internalpolicy "github.com/SmitUplenchwar2687/Shield/internal/policy"

// Algorithm identifies one of the four rate limiting algorithms.
type Algorithm = internalpolicy.Algorithm

const (
	AlgorithmTokenBucket   = internalpolicy.AlgorithmTokenBucket
	AlgorithmLeakyBucket   = internalpolicy.AlgorithmLeakyBucket
	AlgorithmFixedWindow   = internalpolicy.AlgorithmFixedWindow
	AlgorithmSlidingWindow = internalpolicy.AlgorithmSlidingWindow
)

const (
	CommandName   = internalpolicy.CommandName
	AlgorithmFlag = internalpolicy.AlgorithmFlag
	DefaultTokens = internalpolicy.DefaultTokens
	KeyPrefix     = internalpolicy.KeyPrefix
)

// ErrInvalidArgument marks malformed or out-of-range input.
var ErrInvalidArgument = internalpolicy.ErrInvalidArgument

// Policy is the per-algorithm parameter set.
type Policy = internalpolicy.Policy

// Invocation is one parsed admission request.
type Invocation = internalpolicy.Invocation

// Parser turns raw argument lists into invocations.
type Parser = internalpolicy.Parser

// ParseAlgorithm resolves an algorithm by its wire name.
func ParseAlgorithm(name string) (Algorithm, error) {
	return internalpolicy.ParseAlgorithm(name)
}

// ParseArgs parses "cmd key capacity period_seconds [tokens] [ALGORITHM name]".
func ParseArgs(args []string) (Invocation, error) {
	return internalpolicy.ParseArgs(args)
}

// NewInvocation builds a validated invocation.
func NewInvocation(key string, p Policy, tokens int64) (Invocation, error) {
	return internalpolicy.NewInvocation(key, p, tokens)
}

// BuildKey derives the storage key "tp:<suffix>:<rawKey>".
func BuildKey(rawKey string, a Algorithm) string {
	return internalpolicy.BuildKey(rawKey, a)
}
