// Package vocab exposes model vocabularies to the brace classifier.
package vocab

import (
	"fmt"

	"github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/pretrained"
)

// Tokenizer wraps a HuggingFace tokenizer.json.
type Tokenizer struct {
	tk *tokenizer.Tokenizer
}

// Load reads a tokenizer.json file.
func Load(path string) (*Tokenizer, error) {
	tk, err := pretrained.FromFile(path)
	if err != nil {
		return nil, fmt.Errorf("load tokenizer %s: %w", path, err)
	}
	return &Tokenizer{tk: tk}, nil
}

// Size includes added special tokens.
func (t *Tokenizer) Size() int {
	return t.tk.GetVocabSize(true)
}

func (t *Tokenizer) Decode(id int) (string, error) {
	return t.tk.Decode([]int{id}, false), nil
}

// Encode returns the token ids for text without special tokens.
func (t *Tokenizer) Encode(text string) ([]int, error) {
	enc, err := t.tk.EncodeSingle(text, false)
	if err != nil {
		return nil, err
	}
	return enc.Ids, nil
}

// Static is an in-memory vocabulary indexed by token id.
type Static []string

func (s Static) Size() int { return len(s) }

func (s Static) Decode(id int) (string, error) {
	if id < 0 || id >= len(s) {
		return "", fmt.Errorf("token id %d out of range", id)
	}
	return s[id], nil
}

// Encode splits text greedily into the longest matching entries. Bytes with
// no matching entry are skipped.
func (s Static) Encode(text string) ([]int, error) {
	var ids []int
	for i := 0; i < len(text); {
		best, bestLen := -1, 0
		for id, tok := range s {
			if len(tok) > bestLen && len(tok) <= len(text)-i && text[i:i+len(tok)] == tok {
				best, bestLen = id, len(tok)
			}
		}
		if best < 0 {
			i++
			continue
		}
		ids = append(ids, best)
		i += bestLen
	}
	return ids, nil
}
