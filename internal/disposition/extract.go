package disposition

import (
	"encoding/json"
	"errors"
	"io"
	"strings"
)

// Extract locates the span from the first '{' to the last '}' in text and
// decodes it as a JSON object. Numbers are kept as json.Number so large
// amounts survive untouched.
func Extract(text string) (map[string]any, error) {
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end < 0 || end < start {
		return nil, &ExtractionError{Raw: text, Cause: ErrNoObject}
	}

	dec := json.NewDecoder(strings.NewReader(text[start : end+1]))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, &ExtractionError{Raw: text, Cause: err}
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, &ExtractionError{Raw: text, Cause: errors.New("trailing data after object")}
	}
	if obj == nil {
		return nil, &ExtractionError{Raw: text, Cause: ErrNoObject}
	}
	return obj, nil
}
