package gloss

import (
	"sync/atomic"

	"glosskit/utils/text"
)

// MinFingerspellLength is the shortest unmapped word that is fingerspelled.
// Shorter misses, which covers most stopwords, are dropped.
const MinFingerspellLength = 6

// Resolver turns words into dispatch tokens. The dictionary can be swapped
// at runtime; everything else is immutable.
type Resolver struct {
	dict           atomic.Pointer[Dictionary]
	extractor      text.IExtractor
	minFingerspell int
}

// NewResolver uses DefaultDictionary when dict is nil and
// MinFingerspellLength when minFingerspell is not positive.
func NewResolver(dict *Dictionary, minFingerspell int) *Resolver {
	if dict == nil {
		dict = DefaultDictionary()
	}
	if minFingerspell <= 0 {
		minFingerspell = MinFingerspellLength
	}
	r := &Resolver{extractor: text.Extractor{}, minFingerspell: minFingerspell}
	r.dict.Store(dict)
	return r
}

func (r *Resolver) Dictionary() *Dictionary {
	return r.dict.Load()
}

// SetDictionary replaces the active dictionary. Nil is ignored.
func (r *Resolver) SetDictionary(dict *Dictionary) {
	if dict != nil {
		r.dict.Store(dict)
	}
}

// Resolve normalizes word and looks it up. A hit plays the entry; a miss of
// at least the fingerspell length spells the normalized word; anything else
// reports false.
func (r *Resolver) Resolve(word string) (DispatchToken, bool) {
	w := text.NormalizeWord(word)
	if w == "" {
		return DispatchToken{}, false
	}
	if entry, ok := r.dict.Load().Lookup(w); ok {
		return PlayEntry(entry), true
	}
	if len(w) >= r.minFingerspell {
		return Fingerspell(w), true
	}
	return DispatchToken{}, false
}

// Resolution pairs a source word with what it resolved to.
type Resolution struct {
	Word  string
	Token DispatchToken
}

// ResolveWords extracts words from text and resolves each, keeping source
// order and skipping words that resolve to nothing.
func (r *Resolver) ResolveWords(transcript string) []Resolution {
	words := r.extractor.ExtractWords(transcript)
	out := make([]Resolution, 0, len(words))
	for _, w := range words {
		if tok, ok := r.Resolve(w); ok {
			out = append(out, Resolution{Word: w, Token: tok})
		}
	}
	return out
}

// ResolveText is ResolveWords without the source words.
func (r *Resolver) ResolveText(transcript string) []DispatchToken {
	res := r.ResolveWords(transcript)
	out := make([]DispatchToken, len(res))
	for i, x := range res {
		out[i] = x.Token
	}
	return out
}
