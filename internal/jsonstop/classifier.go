// Package jsonstop ends generation as soon as a complete top-level JSON
// object has been produced.
package jsonstop

import (
	"fmt"
	"strings"
)

// Vocabulary decodes single token ids. Size is the number of ids, including
// added special tokens.
type Vocabulary interface {
	Size() int
	Decode(id int) (string, error)
}

// BraceFlags marks which token ids contain an opening or closing brace.
// Ids outside the table are treated as carrying neither.
type BraceFlags struct {
	Open  []bool
	Close []bool
}

// Len returns the number of classified ids.
func (f BraceFlags) Len() int {
	return len(f.Open)
}

func (f BraceFlags) opens(id int) bool {
	return id >= 0 && id < len(f.Open) && f.Open[id]
}

func (f BraceFlags) closes(id int) bool {
	return id >= 0 && id < len(f.Close) && f.Close[id]
}

// Classify decodes every id in v once. A token that decodes to text holding
// both braces is flagged both ways.
func Classify(v Vocabulary) (BraceFlags, error) {
	n := v.Size()
	flags := BraceFlags{Open: make([]bool, n), Close: make([]bool, n)}
	for id := 0; id < n; id++ {
		text, err := v.Decode(id)
		if err != nil {
			return BraceFlags{}, fmt.Errorf("decode token %d: %w", id, err)
		}
		flags.Open[id] = strings.Contains(text, "{")
		flags.Close[id] = strings.Contains(text, "}")
	}
	return flags, nil
}
