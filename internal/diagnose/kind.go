package diagnose

import "strings"

// Kind is the closed set of failure categories.
type Kind string

const (
	KindSyntax       Kind = "syntax"
	KindName         Kind = "name"
	KindType         Kind = "type"
	KindIndentation  Kind = "indentation"
	KindZeroDivision Kind = "zero_division"
	KindOther        Kind = "other"
)

// Kinds lists every category in dispatch order.
var Kinds = []Kind{KindSyntax, KindName, KindType, KindIndentation, KindZeroDivision, KindOther}

var tokens = map[Kind]string{
	KindSyntax:       "SyntaxError",
	KindName:         "NameError",
	KindType:         "TypeError",
	KindIndentation:  "IndentationError",
	KindZeroDivision: "ZeroDivisionError",
}

func (k Kind) String() string { return string(k) }

// Token is the exception name that identifies k in a raw signal.
// KindOther has no token.
func (k Kind) Token() string { return tokens[k] }

// Label is a lower-case human name, e.g. "zero division".
func (k Kind) Label() string { return strings.ReplaceAll(string(k), "_", " ") }

// ParseKind maps a serialized kind back to a Kind. Unknown values are KindOther.
func ParseKind(s string) Kind {
	for _, k := range Kinds {
		if string(k) == s {
			return k
		}
	}
	return KindOther
}

// kindFromSignal dispatches on the first exception token found in raw.
func kindFromSignal(raw string) Kind {
	for _, k := range Kinds {
		tok := k.Token()
		if tok != "" && strings.Contains(raw, tok) {
			return k
		}
	}
	return KindOther
}
