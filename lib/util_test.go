package lib

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestHexBytesJSON(t *testing.T) {
	x := HexBytes{0x01, 0xab}
	bz, err := json.Marshal(x)
	require.NoError(t, err)
	require.Equal(t, `"01ab"`, string(bz))
	var got HexBytes
	require.NoError(t, json.Unmarshal(bz, &got))
	require.Equal(t, x, got)
	require.Error(t, json.Unmarshal([]byte(`"zz"`), &got))
}

func TestJoinLenPrefix(t *testing.T) {
	require.Equal(t, []byte{1, 'r', 4, 0, 0, 0, 1}, JoinLenPrefix([]byte("r"), nil, []byte{0, 0, 0, 1}))
}

func TestJSONFile(t *testing.T) {
	dir := t.TempDir()
	type object struct {
		A int `json:"a"`
	}
	require.NoError(t, SaveJSONToFile(object{A: 5}, dir, "x.json"))
	got := new(object)
	require.NoError(t, NewJSONFromFile(got, dir, "x.json"))
	require.Equal(t, 5, got.A)
	// missing file
	err := NewJSONFromFile(got, dir, "missing.json")
	require.True(t, ErrorsIs(err, MainModule, CodeReadFile))
}

func TestSortedKeysAndDeDuplicator(t *testing.T) {
	require.Equal(t, []string{"a", "b", "c"}, SortedKeys(map[string]int{"c": 1, "a": 2, "b": 3}))
	d := NewDeDuplicator[string]()
	require.False(t, d.Found("x"))
	require.True(t, d.Found("x"))
}

func TestManualClock(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 123456789, time.UTC)
	c := NewManualClock(start)
	// truncated to milliseconds
	require.Equal(t, time.UnixMilli(start.UnixMilli()).UTC(), c.Now())
	c.Advance(time.Second)
	require.Equal(t, start.Add(time.Second).UnixMilli(), c.Now().UnixMilli())
	c.Set(start)
	require.Equal(t, start.UnixMilli(), c.Now().UnixMilli())
}
