package vocab

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"callsense/internal/jsonstop"
)

func TestStaticEncodeLongestMatch(t *testing.T) {
	v := Static{"{", "}", `{"`, "ab", "a", "b"}
	ids, err := v.Encode(`{"ab}x`)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3, 1}, ids)
}

func TestStaticDecodeOutOfRange(t *testing.T) {
	_, err := Static{"a"}.Decode(3)
	require.Error(t, err)
}

func TestStaticDrivesController(t *testing.T) {
	v := Static{"{", "}", `"a"`, ":", "1", " ", "{}"}
	flags, err := jsonstop.Classify(v)
	require.NoError(t, err)
	c := jsonstop.NewController(flags)

	ids, err := v.Encode(`{"a": {}} trailing`)
	require.NoError(t, err)
	stopAt := -1
	for i, id := range ids {
		if c.Observe(id) {
			stopAt = i
			break
		}
	}
	require.GreaterOrEqual(t, stopAt, 0)
	assert.Equal(t, "}", v[ids[stopAt]])
}
