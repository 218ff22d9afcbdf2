package params

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/MimeLyc/presentation-params/internal/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClampZoom(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{in: 5.0, want: 2.0},
		{in: -1, want: 0.5},
		{in: 0, want: 0.5},
		{in: 0.5, want: 0.5},
		{in: 1.25, want: 1.25},
		{in: 2.0, want: 2.0},
		{in: math.Inf(1), want: 2.0},
		{in: math.Inf(-1), want: 0.5},
		{in: math.NaN(), want: 1.0},
	}
	for _, tt := range tests {
		got := ClampZoom(tt.in)
		assert.Equal(t, tt.want, got, "ClampZoom(%v)", tt.in)
		assert.Equal(t, got, ClampZoom(got), "clamp must be idempotent for %v", tt.in)
		assert.GreaterOrEqual(t, got, MinZoom)
		assert.LessOrEqual(t, got, MaxZoom)
	}
}

func TestClampZoom_IdempotentOverRange(t *testing.T) {
	for z := -3.0; z <= 3.0; z += 0.01 {
		once := ClampZoom(z)
		require.Equal(t, once, ClampZoom(once))
		require.True(t, once >= MinZoom && once <= MaxZoom)
	}
}

func TestDecodeSnapshot_DefaultsBadFields(t *testing.T) {
	snap, err := DecodeSnapshot([]byte(`{
		"imageDir": "songs",
		"items": {
			"a.jpg": {"top": {"offsetVh": "4", "zoom": "big", "mask": {"not": "array"}}, "bottom": null},
			"b.jpg": 12,
			"c.jpg": {"top": {"offsetVh": 3.9, "zoom": 5.0}, "bottom": {"offsetVh": -7, "zoom": -1, "mask": [{"x":1,"y":2}, "opaque"]}}
		}
	}`))
	require.NoError(t, err)

	assert.Equal(t, "songs", snap.ImageDir)
	require.Len(t, snap.Items, 3)
	assert.Equal(t, DefaultItem(), snap.Items["a.jpg"])
	assert.Equal(t, DefaultItem(), snap.Items["b.jpg"])

	c := snap.Items["c.jpg"]
	assert.Equal(t, 3, c.Top.OffsetVh)
	assert.Equal(t, 2.0, c.Top.Zoom)
	assert.Equal(t, -7, c.Bottom.OffsetVh)
	assert.Equal(t, 0.5, c.Bottom.Zoom)
	require.Len(t, c.Bottom.Mask, 2)
	assert.JSONEq(t, `{"x":1,"y":2}`, string(c.Bottom.Mask[0]))
	assert.JSONEq(t, `"opaque"`, string(c.Bottom.Mask[1]))
}

func TestDecodeSnapshot_RejectsInvalidTopLevel(t *testing.T) {
	_, err := DecodeSnapshot([]byte(`{"imageDir":`))
	require.Error(t, err)
	assert.True(t, apperr.IsType(err, apperr.ErrParse))

	_, err = DecodeSnapshot([]byte(`[1,2,3]`))
	require.Error(t, err)

	_, err = DecodeSnapshot([]byte(`"songs"`))
	require.Error(t, err)
}

func TestDecodeSnapshot_OutOfRangeOffsetFallsBack(t *testing.T) {
	snap, err := DecodeSnapshot([]byte(`{"imageDir":"d","items":{"a.jpg":{"top":{"offsetVh":1e300}}}}`))
	require.NoError(t, err)
	assert.Equal(t, 0, snap.Items["a.jpg"].Top.OffsetVh)
}

func TestParseDocument_CorruptInputIsEmpty(t *testing.T) {
	for _, body := range []string{``, `{`, `not json`, `[1,2]`, `null`, `"text"`} {
		doc := ParseDocument([]byte(body))
		assert.NotNil(t, doc.Dirs, "input %q", body)
		assert.Empty(t, doc.Dirs, "input %q", body)
		assert.Zero(t, doc.UpdatedAt, "input %q", body)
	}
}

func TestParseDocument_InvalidDirsBecomesEmpty(t *testing.T) {
	doc := ParseDocument([]byte(`{"dirs":"oops","updatedAt":5}`))
	assert.Empty(t, doc.Dirs)
	assert.Equal(t, int64(5), doc.UpdatedAt)
}

func TestParseDocument_KeepsMalformedDirectoryKey(t *testing.T) {
	doc := ParseDocument([]byte(`{"dirs":{"songs":"broken","hymns":{"items":{"a.jpg":{"top":{"zoom":9}}},"updatedAt":12}}}`))

	require.Contains(t, doc.Dirs, "songs")
	assert.Empty(t, doc.Dirs["songs"].Items)
	assert.Equal(t, int64(12), doc.Dirs["hymns"].UpdatedAt)
	assert.Equal(t, 2.0, doc.Dirs["hymns"].Items["a.jpg"].Top.Zoom, "zoom is clamped on read")
}

func TestParseDocument_WrapsLegacySnapshot(t *testing.T) {
	doc := ParseDocument([]byte(`{"imageDir":"songs","items":{"a.jpg":{"top":{"offsetVh":2,"zoom":1}}},"updatedAt":77}`))

	require.Contains(t, doc.Dirs, "songs")
	assert.Equal(t, 2, doc.Dirs["songs"].Items["a.jpg"].Top.OffsetVh)
	assert.Equal(t, int64(77), doc.Dirs["songs"].UpdatedAt)
	assert.Empty(t, doc.Extra)
}

func TestDocument_MarshalShape(t *testing.T) {
	doc := EmptyDocument()
	doc.Dirs["诗歌"] = DirEntry{Items: map[string]ItemParams{"主.jpg": DefaultItem()}, UpdatedAt: 3}
	doc.UpdatedAt = 3

	out, err := json.Marshal(doc)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"dirs": {"诗歌": {"items": {"主.jpg": {
			"top": {"offsetVh": 0, "zoom": 1, "mask": []},
			"bottom": {"offsetVh": 0, "zoom": 1, "mask": []}
		}}, "updatedAt": 3}},
		"updatedAt": 3
	}`, string(out))
	assert.Contains(t, string(out), "诗歌")

	var empty Document
	out, err = json.Marshal(empty)
	require.NoError(t, err)
	assert.JSONEq(t, `{"dirs":{},"updatedAt":0}`, string(out))
}

func TestParseHalf(t *testing.T) {
	for in, want := range map[string]Half{"top": Top, "0": Top, "Bottom": Bottom, "1": Bottom, " lower ": Bottom} {
		got, err := ParseHalf(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseHalf("middle")
	assert.Error(t, err)
}
