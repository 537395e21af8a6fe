package policy

import (
	"errors"
	"testing"
)

func TestParseArgsPublicAPI(t *testing.T) {
	inv, err := ParseArgs([]string{CommandName, "user1", "10", "60", "2", AlgorithmFlag, "sliding_window"})
	if err != nil {
		t.Fatalf("ParseArgs() error = %v", err)
	}
	if inv.Policy.Algorithm != AlgorithmSlidingWindow || inv.Tokens != 2 {
		t.Fatalf("ParseArgs() = %+v", inv)
	}
	if inv.StorageKey() != BuildKey("user1", AlgorithmSlidingWindow) {
		t.Fatalf("StorageKey() = %q", inv.StorageKey())
	}

	if _, err := ParseArgs([]string{CommandName, "user1", "0", "60"}); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("err = %v, want ErrInvalidArgument", err)
	}
}
