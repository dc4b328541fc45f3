package domain

import "strings"

// Line identifies the credit line a debt draws on.
type Line int

const (
	// LineNormal is a plain debt that does not consume revolving credit.
	LineNormal Line = iota
	// LineDaily is revolving line A.
	LineDaily
	// LinePrincipal is revolving line B.
	LinePrincipal
	// LineCustody tracks money held for someone else (a liability, not credit).
	LineCustody
)

var lineNames = map[Line]string{
	LineNormal:    "Normal",
	LineDaily:     "Daily",
	LinePrincipal: "Principal",
	LineCustody:   "Custody (Liability)",
}

// String returns the canonical label written to the Kind column.
func (l Line) String() string {
	if s, ok := lineNames[l]; ok {
		return s
	}
	return "Normal"
}

// Revolving reports whether the line has a credit limit and a due-date cadence.
func (l Line) Revolving() bool {
	return l == LineDaily || l == LinePrincipal
}

// Kind is the parsed form of the free-text Kind cell.
type Kind struct {
	Line     Line
	Imported bool
}

// String renders the kind in its canonical persisted form, e.g. "Principal - Imported".
func (k Kind) String() string {
	if k.Imported {
		return k.Line.String() + " - Imported"
	}
	return k.Line.String()
}

// MarshalText writes the canonical form.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText accepts any legacy spelling.
func (k *Kind) UnmarshalText(b []byte) error {
	*k = ParseKind(string(b))
	return nil
}

// ParseKind maps a legacy free-text kind onto the closed enumeration.
// Matching is case-insensitive substring matching, in the same order the old sheet used.
func ParseKind(raw string) Kind {
	s := strings.ToLower(strings.TrimSpace(raw))
	k := Kind{Imported: strings.Contains(s, "import")}

	switch {
	case strings.Contains(s, "custod"):
		k.Line = LineCustody
	case strings.Contains(s, "daily"), strings.Contains(s, "diario"), strings.Contains(s, "revolvinga"):
		k.Line = LineDaily
	case strings.Contains(s, "principal"), strings.Contains(s, "revolvingb"):
		k.Line = LinePrincipal
	default:
		k.Line = LineNormal
	}
	return k
}

// ParseLine resolves a user-supplied line name ("daily", "Principal", "a", "b").
func ParseLine(name string) (Line, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "daily", "diario", "a", "revolvinga", "line a":
		return LineDaily, true
	case "principal", "b", "revolvingb", "line b":
		return LinePrincipal, true
	case "normal", "":
		return LineNormal, true
	case "custody":
		return LineCustody, true
	}
	return LineNormal, false
}
