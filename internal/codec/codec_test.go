package codec

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGobRoundTripPayload(t *testing.T) {
	c := Gob{}
	data, err := c.Encode("foo")
	require.NoError(t, err)
	v, err := c.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, "foo", v)
}

func TestGobRoundTripHeaderMap(t *testing.T) {
	c := Gob{}
	created := time.Now().Round(0) // strip the monotonic reading
	in := map[string]any{
		"saved":       true,
		"createdDate": created,
		"attempt":     3,
		"trace":       []byte{0x01, 0x02},
	}
	data, err := c.Encode(in)
	require.NoError(t, err)

	v, err := c.Decode(data)
	require.NoError(t, err)
	out, ok := v.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, out["saved"])
	assert.Equal(t, 3, out["attempt"])
	assert.Equal(t, []byte{0x01, 0x02}, out["trace"])
	assert.True(t, created.Equal(out["createdDate"].(time.Time)))
}

func TestGobDecodeGarbage(t *testing.T) {
	_, err := Gob{}.Decode([]byte("not gob"))
	assert.Error(t, err)
}

func TestJSONRoundTrip(t *testing.T) {
	c := JSON{}
	data, err := c.Encode(map[string]any{"k": "v"})
	require.NoError(t, err)
	v, err := c.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"k": "v"}, v)
}

func TestForName(t *testing.T) {
	c, err := ForName("")
	require.NoError(t, err)
	assert.IsType(t, Gob{}, c)

	c, err = ForName("json")
	require.NoError(t, err)
	assert.IsType(t, JSON{}, c)

	_, err = ForName("xml")
	assert.Error(t, err)
}
