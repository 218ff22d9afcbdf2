package params

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"
)

// Half selects which half of a scanned page a parameter set applies to.
type Half int

const (
	Top Half = iota
	Bottom
)

func (h Half) String() string {
	if h == Bottom {
		return "bottom"
	}
	return "top"
}

func ParseHalf(s string) (Half, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "top", "upper", "0":
		return Top, nil
	case "bottom", "lower", "1":
		return Bottom, nil
	default:
		return Top, fmt.Errorf("unknown half %q", s)
	}
}

// HalfParams is the offset/zoom/mask triple for one half of one image.
// Mask entries are opaque region descriptors and are never inspected.
type HalfParams struct {
	OffsetVh int               `json:"offsetVh"`
	Zoom     float64           `json:"zoom"`
	Mask     []json.RawMessage `json:"mask"`
}

type ItemParams struct {
	Top    HalfParams `json:"top"`
	Bottom HalfParams `json:"bottom"`
}

type DirEntry struct {
	Items     map[string]ItemParams `json:"items"`
	UpdatedAt int64                 `json:"updatedAt"`
}

// Document is the canonical on-disk state shared by every catalog page.
// Extra keeps top-level keys this package does not own so that a merge
// round-trips them unchanged.
type Document struct {
	Dirs      map[string]DirEntry
	UpdatedAt int64
	Extra     map[string]json.RawMessage
}

// Snapshot is the full client-side view of one directory. Items is nil when
// the payload carried no usable mapping.
type Snapshot struct {
	ImageDir string                `json:"imageDir"`
	Items    map[string]ItemParams `json:"items"`
}

func DefaultHalf() HalfParams {
	return HalfParams{
		OffsetVh: DefaultOffsetVh,
		Zoom:     DefaultZoom,
		Mask:     []json.RawMessage{},
	}
}

func DefaultItem() ItemParams {
	return ItemParams{Top: DefaultHalf(), Bottom: DefaultHalf()}
}

// NewSnapshot seeds a snapshot with default parameters for every filename.
func NewSnapshot(imageDir string, filenames []string) Snapshot {
	items := make(map[string]ItemParams, len(filenames))
	for _, name := range filenames {
		items[name] = DefaultItem()
	}
	return Snapshot{ImageDir: imageDir, Items: items}
}

func EmptyDocument() Document {
	return Document{Dirs: make(map[string]DirEntry)}
}

func (i ItemParams) Half(h Half) HalfParams {
	if h == Bottom {
		return i.Bottom
	}
	return i.Top
}

func (i *ItemParams) SetHalf(h Half, p HalfParams) {
	if h == Bottom {
		i.Bottom = p
		return
	}
	i.Top = p
}

func (h HalfParams) Clone() HalfParams {
	out := h
	out.Mask = make([]json.RawMessage, 0, len(h.Mask))
	for _, region := range h.Mask {
		out.Mask = append(out.Mask, slices.Clone(region))
	}
	return out
}

func (i ItemParams) Clone() ItemParams {
	return ItemParams{Top: i.Top.Clone(), Bottom: i.Bottom.Clone()}
}

func cloneItems(items map[string]ItemParams) map[string]ItemParams {
	if items == nil {
		return nil
	}
	out := make(map[string]ItemParams, len(items))
	for name, item := range items {
		out[name] = item.Clone()
	}
	return out
}

func (s Snapshot) Clone() Snapshot {
	return Snapshot{ImageDir: s.ImageDir, Items: cloneItems(s.Items)}
}

func (d DirEntry) Clone() DirEntry {
	items := cloneItems(d.Items)
	if items == nil {
		items = make(map[string]ItemParams)
	}
	return DirEntry{Items: items, UpdatedAt: d.UpdatedAt}
}

func (d Document) Clone() Document {
	out := Document{
		Dirs:      make(map[string]DirEntry, len(d.Dirs)),
		UpdatedAt: d.UpdatedAt,
	}
	for key, entry := range d.Dirs {
		out.Dirs[key] = entry.Clone()
	}
	if d.Extra != nil {
		out.Extra = make(map[string]json.RawMessage, len(d.Extra))
		for k, v := range d.Extra {
			out.Extra[k] = slices.Clone(v)
		}
	}
	return out
}

// Filenames returns the snapshot's filenames in lexical order.
func (s Snapshot) Filenames() []string {
	return slices.Sorted(maps.Keys(s.Items))
}

func (h HalfParams) MarshalJSON() ([]byte, error) {
	type plain HalfParams
	out := plain(h)
	if out.Mask == nil {
		out.Mask = []json.RawMessage{}
	}
	return json.Marshal(out)
}

func (d DirEntry) MarshalJSON() ([]byte, error) {
	type plain DirEntry
	out := plain(d)
	if out.Items == nil {
		out.Items = map[string]ItemParams{}
	}
	return json.Marshal(out)
}

func (d Document) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(d.Extra)+2)
	for k, v := range d.Extra {
		out[k] = v
	}
	dirs := d.Dirs
	if dirs == nil {
		dirs = map[string]DirEntry{}
	}
	out["dirs"] = dirs
	out["updatedAt"] = d.UpdatedAt
	return json.Marshal(out)
}
