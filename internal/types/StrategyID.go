package types

import (
	"encoding/hex"
	"fmt"
)

// StrategyID is an opaque 32-byte address identifying a strategy, a portfolio
// manager or a fee treasury.
type StrategyID [32]byte

// ParseStrategyID decodes the 64-character hex form produced by String.
func ParseStrategyID(s string) (StrategyID, error) {
	var id StrategyID
	raw, err := hex.DecodeString(s)
	if err != nil {
		return id, fmt.Errorf("%w: %w", ErrInvalidStrategyID, err)
	}
	if len(raw) != len(id) {
		return id, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidStrategyID, len(id), len(raw))
	}
	copy(id[:], raw)
	return id, nil
}

func (id StrategyID) String() string {
	return hex.EncodeToString(id[:])
}

// Short returns the first 8 hex characters, used in log lines.
func (id StrategyID) Short() string {
	return id.String()[:8]
}

// IsZero reports whether the id is unset.
func (id StrategyID) IsZero() bool {
	return id == StrategyID{}
}

func (id StrategyID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

func (id *StrategyID) UnmarshalText(text []byte) error {
	parsed, err := ParseStrategyID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
