package objectstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"tle_zone_judge/internal/domain/model"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func compress(t *testing.T, s string) []byte {
	t.Helper()
	enc, err := zstd.NewWriter(nil)
	require.NoError(t, err)
	defer enc.Close()
	return enc.EncodeAll([]byte(s), nil)
}

func TestDecode_Plain(t *testing.T) {
	b, err := Decode("tests/1.in", strings.NewReader("1 2\n"))
	require.NoError(t, err)
	assert.Equal(t, "1 2\n", string(b))
}

func TestDecode_Zstd(t *testing.T) {
	payload := strings.Repeat("42\n", 1000)
	b, err := Decode("tests/1.out.zst", strings.NewReader(string(compress(t, payload))))
	require.NoError(t, err)
	assert.Equal(t, payload, string(b))
}

func TestDecode_ZstdCorrupt(t *testing.T) {
	_, err := Decode("tests/1.out.zst", strings.NewReader("not zstd at all"))
	assert.Error(t, err)
}

type mapFetcher map[string]string

func (m mapFetcher) Fetch(_ context.Context, key string) (string, error) {
	v, ok := m[key]
	if !ok {
		return "", errors.New("missing " + key)
	}
	return v, nil
}

func TestHydrate(t *testing.T) {
	in, out := "p1/in", "p1/out"
	tests := []model.TestCase{
		{Ordinal: 1, Input: "inline", Expected: "inline-out"},
		{Ordinal: 2, InputKey: &in, ExpectedKey: &out},
	}
	require.NoError(t, Hydrate(context.Background(), mapFetcher{in: "big input", out: "big output"}, tests))

	assert.Equal(t, "inline", tests[0].Input)
	assert.Equal(t, "big input", tests[1].Input)
	assert.Equal(t, "big output", tests[1].Expected)
}

func TestHydrate_PropagatesErrors(t *testing.T) {
	key := "gone"
	err := Hydrate(context.Background(), mapFetcher{}, []model.TestCase{{InputKey: &key}})
	assert.ErrorContains(t, err, "missing gone")
}

func TestBlobCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c := newBlobCache(80)
	c.put("a", strings.Repeat("a", 10))
	c.put("b", strings.Repeat("b", 10))
	c.put("c", strings.Repeat("c", 10))
	_, ok := c.get("a")
	require.True(t, ok)

	for i := 0; i < 6; i++ {
		c.put(fmt.Sprintf("k%d", i), strings.Repeat("x", 10))
	}

	_, ok = c.get("a")
	assert.True(t, ok, "recently read entry survives")
	_, ok = c.get("b")
	assert.False(t, ok)
	assert.LessOrEqual(t, c.size(), int64(80))
}

func TestBlobCache_SkipsOversizedValues(t *testing.T) {
	c := newBlobCache(80)
	c.put("big", strings.Repeat("x", 11))
	_, ok := c.get("big")
	assert.False(t, ok)
	assert.Zero(t, c.size())

	disabled := newBlobCache(0)
	disabled.put("a", "1")
	_, ok = disabled.get("a")
	assert.False(t, ok)
}
