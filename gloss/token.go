// Package gloss maps normalized words to sign-language gloss tokens and
// decides which dispatches may reach the avatar.
package gloss

import (
	"strings"
)

// Entry is a dictionary value: a single Token or an ordered Sequence.
type Entry interface {
	// Glosses returns the clip identifiers in playback order.
	Glosses() []string
	isEntry()
}

// Token names one playable animation clip.
type Token string

func (t Token) Glosses() []string { return []string{string(t)} }
func (Token) isEntry()            {}

// Sequence is a non-empty list of clips played back to back.
type Sequence []string

func (s Sequence) Glosses() []string {
	out := make([]string, len(s))
	copy(out, s)
	return out
}
func (Sequence) isEntry() {}

type Kind int

const (
	KindPlay Kind = iota + 1
	KindFingerspell
)

func (k Kind) String() string {
	switch k {
	case KindPlay:
		return "play"
	case KindFingerspell:
		return "fingerspell"
	default:
		return "none"
	}
}

const (
	sequenceSeparator = "+"
	spellPrefix       = "SPELL:"
)

// DispatchToken is one resolved unit of work for the avatar: play one or
// more glosses in order, or fingerspell a word.
type DispatchToken struct {
	Kind    Kind
	Glosses []string // set for KindPlay
	Word    string   // set for KindFingerspell
}

func Play(glosses ...string) DispatchToken {
	return DispatchToken{Kind: KindPlay, Glosses: glosses}
}

func Fingerspell(word string) DispatchToken {
	return DispatchToken{Kind: KindFingerspell, Word: word}
}

// PlayEntry wraps a dictionary entry.
func PlayEntry(e Entry) DispatchToken {
	return Play(e.Glosses()...)
}

func (t DispatchToken) IsZero() bool {
	return t.Kind == 0
}

// Identity is the canonical cooldown and dedup key: glosses joined with
// "+" for plays, "SPELL:<word>" for fingerspelling.
func (t DispatchToken) Identity() string {
	switch t.Kind {
	case KindPlay:
		return strings.Join(t.Glosses, sequenceSeparator)
	case KindFingerspell:
		return spellPrefix + t.Word
	default:
		return ""
	}
}

func (t DispatchToken) String() string {
	return t.Kind.String() + "(" + t.Identity() + ")"
}

// Identity is a convenience for DispatchToken.Identity.
func Identity(t DispatchToken) string {
	return t.Identity()
}
