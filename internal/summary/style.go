package summary

import "strings"

// Style selects the register of a generated summary.
type Style string

const (
	StyleFormal Style = "formal"
	StyleCasual Style = "casual"
	StyleFriend Style = "friend"
	StyleSimple Style = "simple"
)

var styleClauses = map[Style]string{
	StyleFormal: "concise, professional",
	StyleCasual: "relaxed, blog-like",
	StyleFriend: "very informal, emoji/slang",
	StyleSimple: "extremely simple wording",
}

// Styles lists the supported styles in display order.
func Styles() []Style {
	return []Style{StyleFormal, StyleCasual, StyleFriend, StyleSimple}
}

// ParseStyle maps s to a Style; anything unrecognised is formal.
func ParseStyle(s string) Style {
	style := Style(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := styleClauses[style]; ok {
		return style
	}
	return StyleFormal
}

// Valid reports whether s is one of the supported styles.
func (s Style) Valid() bool {
	_, ok := styleClauses[s]
	return ok
}

// Clause is the instruction fragment embedded in the prompt.
func (s Style) Clause() string {
	if clause, ok := styleClauses[s]; ok {
		return clause
	}
	return styleClauses[StyleFormal]
}
