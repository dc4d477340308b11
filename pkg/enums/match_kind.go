package enums

import "fmt"

// MatchKind records how a stone reference was resolved to an inventory item.
type MatchKind string

const (
	MatchKindExactID MatchKind = "exact_id"
	MatchKindCode    MatchKind = "code"
	MatchKindFuzzy   MatchKind = "fuzzy"
)

var validMatchKinds = []MatchKind{
	MatchKindExactID,
	MatchKindCode,
	MatchKindFuzzy,
}

func (m MatchKind) String() string {
	return string(m)
}

func (m MatchKind) IsValid() bool {
	for _, candidate := range validMatchKinds {
		if candidate == m {
			return true
		}
	}
	return false
}

// IsFallback reports whether the match came from the heuristic tier.
func (m MatchKind) IsFallback() bool {
	return m == MatchKindFuzzy
}

func ParseMatchKind(value string) (MatchKind, error) {
	for _, candidate := range validMatchKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid match kind %q", value)
}
