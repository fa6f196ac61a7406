package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestByName(t *testing.T) {
	c, ok := ByName("json")
	require.True(t, ok)
	assert.Equal(t, "json", c.Name())

	c, ok = ByName("go-json")
	require.True(t, ok)
	assert.Equal(t, GoJSON{}, c)

	_, ok = ByName("gob")
	assert.False(t, ok)
}

func TestJSON(t *testing.T) {
	type header struct {
		Step   int64             `json:"step"`
		Shapes map[string][]int  `json:"shapes"`
		Tags   map[string]string `json:"tags,omitempty"`
	}
	in := header{Step: 42, Shapes: map[string][]int{"seg/logits/weights": {128, 50}}}

	b := MustMarshal(nil, in)
	var out header
	require.NoError(t, Default.Unmarshal(b, &out))
	assert.Equal(t, in, out)

	var std header
	require.NoError(t, JSON{}.Unmarshal(b, &std))
	assert.Equal(t, in, std)

	assert.Panics(t, func() { MustMarshal(JSON{}, make(chan int)) })
}
