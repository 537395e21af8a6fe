package policy

import (
	"fmt"
	"strconv"
	"strings"
)

// CommandName is the conventional args[0] for argument lists built by
// callers that have no command of their own.
const CommandName = "SHIELD.absorb"

// AlgorithmFlag introduces the optional algorithm name in an argument list.
const AlgorithmFlag = "ALGORITHM"

const (
	minArgs = 4
	maxArgs = 7

	argKey      = 1
	argCapacity = 2
	argPeriod   = 3
	argTokens   = 4

	millisPerSecond = 1000
)

// Parser turns raw argument lists into invocations. The zero value defaults
// to the token bucket.
type Parser struct {
	DefaultAlgorithm Algorithm
}

// ParseArgs parses args with the zero Parser.
func ParseArgs(args []string) (Invocation, error) {
	return Parser{}.Parse(args)
}

// Parse validates the raw list
//
//	cmd key capacity period [tokens] [ALGORITHM name]
//
// where args[0] is the command name and period is in seconds.
func (p Parser) Parse(args []string) (Invocation, error) {
	if len(args) < minArgs || len(args) > maxArgs {
		return Invocation{}, fmt.Errorf("%w: wrong number of arguments, got %d, want %d to %d",
			ErrInvalidArgument, len(args), minArgs, maxArgs)
	}

	var (
		algoName string
		hasAlgo  bool
	)
	tokens := DefaultTokens

	switch len(args) {
	case 5:
		if isAlgorithmFlag(args[argTokens]) {
			return Invocation{}, errAlgorithmValueMissing()
		}
		n, err := parsePositive(args[argTokens], "tokens")
		if err != nil {
			return Invocation{}, err
		}
		tokens = n
	case 6:
		switch {
		case isAlgorithmFlag(args[argTokens]):
			algoName, hasAlgo = args[argTokens+1], true
		case isAlgorithmFlag(args[argTokens+1]):
			return Invocation{}, errAlgorithmValueMissing()
		default:
			return Invocation{}, fmt.Errorf("%w: unexpected argument %q", ErrInvalidArgument, args[argTokens+1])
		}
	case 7:
		if !isAlgorithmFlag(args[argTokens+1]) {
			return Invocation{}, fmt.Errorf("%w: expected %s at position %d, got %q",
				ErrInvalidArgument, AlgorithmFlag, argTokens+1, args[argTokens+1])
		}
		n, err := parsePositive(args[argTokens], "tokens")
		if err != nil {
			return Invocation{}, err
		}
		tokens = n
		algoName, hasAlgo = args[argTokens+2], true
	}

	algo := p.DefaultAlgorithm
	if hasAlgo {
		a, err := ParseAlgorithm(algoName)
		if err != nil {
			return Invocation{}, err
		}
		algo = a
	}

	capacity, err := parsePositive(args[argCapacity], "capacity")
	if err != nil {
		return Invocation{}, err
	}
	periodSec, err := parsePositive(args[argPeriod], "period/window")
	if err != nil {
		return Invocation{}, err
	}
	periodMS, err := SecondsToMillis(periodSec)
	if err != nil {
		return Invocation{}, err
	}

	return NewInvocation(args[argKey], Policy{
		Algorithm: algo,
		Capacity:  capacity,
		PeriodMS:  periodMS,
	}, tokens)
}

// SecondsToMillis converts a period given in whole seconds, rejecting
// values beyond MaxPeriodMS.
func SecondsToMillis(sec int64) (int64, error) {
	if sec > MaxPeriodMS/millisPerSecond {
		return 0, fmt.Errorf("%w: period value too large, got %d", ErrInvalidArgument, sec)
	}
	return sec * millisPerSecond, nil
}

func isAlgorithmFlag(s string) bool {
	return strings.EqualFold(s, AlgorithmFlag)
}

func errAlgorithmValueMissing() error {
	return fmt.Errorf("%w: algorithm value missing", ErrInvalidArgument)
}

func parsePositive(raw, field string) (int64, error) {
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: %s must be a positive integer, got %q", ErrInvalidArgument, field, raw)
	}
	return n, nil
}
