package params

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"

	"github.com/MimeLyc/presentation-params/internal/apperr"
)

const (
	MinZoom         = 0.5
	MaxZoom         = 2.0
	DefaultZoom     = 1.0
	DefaultOffsetVh = 0
)

var errNotObject = errors.New("snapshot must be a JSON object")

// ClampZoom bounds z to [MinZoom, MaxZoom]. NaN has no meaningful position in
// that range and maps to DefaultZoom.
func ClampZoom(z float64) float64 {
	if math.IsNaN(z) {
		return DefaultZoom
	}
	return math.Min(MaxZoom, math.Max(MinZoom, z))
}

// Normalize re-applies the value rules to a half built in code rather than
// decoded from JSON.
func (h HalfParams) Normalize() HalfParams {
	out := h.Clone()
	out.Zoom = ClampZoom(out.Zoom)
	return out
}

func (i ItemParams) Normalize() ItemParams {
	return ItemParams{Top: i.Top.Normalize(), Bottom: i.Bottom.Normalize()}
}

// DecodeSnapshot is the request boundary for the save endpoint. It fails only
// when the body is not JSON or not an object; every field below the top level
// is defaulted instead of rejected.
func DecodeSnapshot(data []byte) (Snapshot, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return Snapshot{}, nil
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, apperr.Wrap(err, apperr.ErrParse, "invalid snapshot")
	}
	return snap, nil
}

// ParseDocument decodes a stored document. Unparsable input yields an empty
// document rather than an error.
func ParseDocument(data []byte) Document {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return EmptyDocument()
	}
	return doc
}

func (s *Snapshot) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return errNotObject
	}
	*s = Snapshot{
		ImageDir: decodeString(fields["imageDir"]),
		Items:    decodeItems(fields["items"]),
	}
	return nil
}

func (h *HalfParams) UnmarshalJSON(data []byte) error {
	*h = normalizeHalf(data)
	return nil
}

func (i *ItemParams) UnmarshalJSON(data []byte) error {
	*i = normalizeItem(data)
	return nil
}

func (d *DirEntry) UnmarshalJSON(data []byte) error {
	*d = normalizeDirEntry(data)
	return nil
}

func (d *Document) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil || fields == nil {
		*d = EmptyDocument()
		return nil
	}

	doc := EmptyDocument()
	doc.UpdatedAt = decodeTimestamp(fields["updatedAt"])

	var rawDirs map[string]json.RawMessage
	if err := json.Unmarshal(fields["dirs"], &rawDirs); err == nil && rawDirs != nil {
		for key, raw := range rawDirs {
			doc.Dirs[key] = normalizeDirEntry(raw)
		}
	} else if legacyDir := decodeString(fields["imageDir"]); legacyDir != "" {
		// Older files held a single bare snapshot at the top level.
		if items := decodeItems(fields["items"]); items != nil {
			doc.Dirs[legacyDir] = DirEntry{Items: items, UpdatedAt: doc.UpdatedAt}
			delete(fields, "imageDir")
			delete(fields, "items")
		}
	}

	delete(fields, "dirs")
	delete(fields, "updatedAt")
	if len(fields) > 0 {
		doc.Extra = fields
	}
	*d = doc
	return nil
}

func normalizeDirEntry(data []byte) DirEntry {
	entry := DirEntry{Items: make(map[string]ItemParams)}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return entry
	}
	if items := decodeItems(fields["items"]); items != nil {
		entry.Items = items
	}
	entry.UpdatedAt = decodeTimestamp(fields["updatedAt"])
	return entry
}

func decodeItems(raw json.RawMessage) map[string]ItemParams {
	var rawItems map[string]json.RawMessage
	if err := json.Unmarshal(raw, &rawItems); err != nil || rawItems == nil {
		return nil
	}
	items := make(map[string]ItemParams, len(rawItems))
	for name, value := range rawItems {
		items[name] = normalizeItem(value)
	}
	return items
}

func normalizeItem(data []byte) ItemParams {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return DefaultItem()
	}
	return ItemParams{
		Top:    normalizeHalf(fields["top"]),
		Bottom: normalizeHalf(fields["bottom"]),
	}
}

func normalizeHalf(data []byte) HalfParams {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return DefaultHalf()
	}
	return HalfParams{
		OffsetVh: normalizeOffset(fields["offsetVh"]),
		Zoom:     normalizeZoom(fields["zoom"]),
		Mask:     normalizeMask(fields["mask"]),
	}
}

func normalizeOffset(raw json.RawMessage) int {
	f, ok := decodeNumber(raw)
	if !ok || f > math.MaxInt32 || f < math.MinInt32 {
		return DefaultOffsetVh
	}
	return int(f)
}

func normalizeZoom(raw json.RawMessage) float64 {
	f, ok := decodeNumber(raw)
	if !ok {
		return DefaultZoom
	}
	return ClampZoom(f)
}

func normalizeMask(raw json.RawMessage) []json.RawMessage {
	var mask []json.RawMessage
	if err := json.Unmarshal(raw, &mask); err != nil || mask == nil {
		return []json.RawMessage{}
	}
	return mask
}

func decodeNumber(raw json.RawMessage) (float64, bool) {
	var f *float64
	if err := json.Unmarshal(raw, &f); err != nil || f == nil {
		return 0, false
	}
	return *f, true
}

func decodeTimestamp(raw json.RawMessage) int64 {
	f, ok := decodeNumber(raw)
	if !ok || f < 0 || f > math.MaxInt64/2 {
		return 0
	}
	return int64(f)
}

func decodeString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}
