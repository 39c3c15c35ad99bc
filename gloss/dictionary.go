package gloss

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/bytedance/sonic"

	"glosskit/utils/text"
)

var (
	ErrEmptySequence = errors.New("gloss: empty sequence")
	ErrEmptyKey      = errors.New("gloss: empty key")
	ErrDuplicateKey  = errors.New("gloss: duplicate key")
	ErrInvalidValue  = errors.New("gloss: value must be a string or an array of strings")
)

// Dictionary is an immutable normalized-word → Entry map.
type Dictionary struct {
	entries map[string]Entry
}

// NewDictionary validates and normalizes entries. Keys are normalized the
// same way transcript words are, so lookups are case and punctuation
// insensitive.
func NewDictionary(entries map[string]Entry) (*Dictionary, error) {
	d := &Dictionary{entries: make(map[string]Entry, len(entries))}
	for raw, entry := range entries {
		key := text.NormalizeWord(raw)
		if key == "" {
			return nil, fmt.Errorf("%w: %q", ErrEmptyKey, raw)
		}
		if _, dup := d.entries[key]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateKey, key)
		}
		switch e := entry.(type) {
		case Token:
			if e == "" {
				return nil, fmt.Errorf("%w: %q", ErrEmptySequence, raw)
			}
		case Sequence:
			if len(e) == 0 {
				return nil, fmt.Errorf("%w: %q", ErrEmptySequence, raw)
			}
			for _, g := range e {
				if g == "" {
					return nil, fmt.Errorf("%w: %q has an empty gloss", ErrEmptySequence, raw)
				}
			}
			if len(e) == 1 {
				entry = Token(e[0])
			} else {
				entry = append(Sequence(nil), e...)
			}
		case nil:
			return nil, fmt.Errorf("%w: %q", ErrInvalidValue, raw)
		}
		d.entries[key] = entry
	}
	return d, nil
}

// MustDictionary is NewDictionary for static tables.
func MustDictionary(entries map[string]Entry) *Dictionary {
	d, err := NewDictionary(entries)
	if err != nil {
		panic(err)
	}
	return d
}

// Lookup expects an already normalized word.
func (d *Dictionary) Lookup(word string) (Entry, bool) {
	if d == nil {
		return nil, false
	}
	e, ok := d.entries[word]
	return e, ok
}

func (d *Dictionary) Len() int {
	if d == nil {
		return 0
	}
	return len(d.entries)
}

// Words returns the dictionary keys in sorted order.
func (d *Dictionary) Words() []string {
	if d == nil {
		return nil
	}
	words := make([]string, 0, len(d.entries))
	for w := range d.entries {
		words = append(words, w)
	}
	sort.Strings(words)
	return words
}

// Glosses returns every distinct clip identifier the dictionary can emit,
// sorted. Players use it to preload clips.
func (d *Dictionary) Glosses() []string {
	if d == nil {
		return nil
	}
	seen := make(map[string]struct{})
	for _, e := range d.entries {
		for _, g := range e.Glosses() {
			seen[g] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for g := range seen {
		out = append(out, g)
	}
	sort.Strings(out)
	return out
}

// ParseDictionaryJSON reads {"word": "gloss", "other": ["g1", "g2"]}.
func ParseDictionaryJSON(data []byte) (*Dictionary, error) {
	var raw map[string]interface{}
	if err := sonic.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("gloss: parse dictionary: %w", err)
	}
	entries := make(map[string]Entry, len(raw))
	for key, value := range raw {
		switch v := value.(type) {
		case string:
			entries[key] = Token(v)
		case []interface{}:
			seq := make(Sequence, 0, len(v))
			for _, item := range v {
				s, ok := item.(string)
				if !ok {
					return nil, fmt.Errorf("%w: %q", ErrInvalidValue, key)
				}
				seq = append(seq, s)
			}
			entries[key] = seq
		default:
			return nil, fmt.Errorf("%w: %q", ErrInvalidValue, key)
		}
	}
	return NewDictionary(entries)
}

func LoadDictionaryFile(path string) (*Dictionary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("gloss: read dictionary %q: %w", path, err)
	}
	return ParseDictionaryJSON(data)
}

var defaultEntries = map[string]Entry{
	"hello":      Token("hello"),
	"hi":         Token("hello"),
	"hey":        Token("hello"),
	"bye":        Token("goodbye"),
	"goodbye":    Token("goodbye"),
	"yes":        Token("yes"),
	"yeah":       Token("yes"),
	"no":         Token("no"),
	"nope":       Token("no"),
	"okay":       Sequence{"yes", "acknowledge"},
	"ok":         Sequence{"yes", "acknowledge"},
	"please":     Token("please"),
	"thanks":     Token("thankyou"),
	"thank":      Token("thankyou"),
	"sorry":      Token("sorry"),
	"good":       Token("good"),
	"great":      Sequence{"good", "clap"},
	"awesome":    Sequence{"good", "clap"},
	"clap":       Token("clap"),
	"applause":   Token("clap"),
	"help":       Token("help"),
	"stop":       Token("stop"),
	"wait":       Token("wait"),
	"more":       Token("more"),
	"again":      Token("again"),
	"finish":     Token("finish"),
	"done":       Token("finish"),
	"understand": Token("understand"),
	"love":       Token("love"),
	"friend":     Token("friend"),
	"family":     Token("family"),
	"name":       Token("name"),
	"what":       Token("what"),
	"where":      Token("where"),
	"when":       Token("when"),
	"who":        Token("who"),
	"why":        Token("why"),
	"how":        Token("how"),
	"eat":        Token("eat"),
	"drink":      Token("drink"),
	"water":      Token("water"),
	"home":       Token("home"),
	"work":       Token("work"),
	"school":     Token("school"),
	"happy":      Token("happy"),
	"sad":        Token("sad"),
	"welcome":    Token("welcome"),
	"learn":      Token("learn"),
	"sign":       Token("sign"),
}

// DefaultDictionary returns the built-in vocabulary.
func DefaultDictionary() *Dictionary {
	return MustDictionary(defaultEntries)
}
