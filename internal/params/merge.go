package params

import (
	"maps"
	"time"
)

// Merge folds one snapshot into the stored document and returns the result;
// existing is not modified.
//
// Every filename in the snapshot replaces its stored ItemParams in full, both
// halves included. Filenames the snapshot does not mention and every other
// directory are carried over untouched. A snapshot without a directory key or
// without any items is a no-op.
func Merge(existing Document, incoming Snapshot, now time.Time) Document {
	if incoming.ImageDir == "" || len(incoming.Items) == 0 {
		return existing
	}

	ts := now.UnixMilli()
	dirs := make(map[string]DirEntry, len(existing.Dirs)+1)
	maps.Copy(dirs, existing.Dirs)

	current := existing.Dirs[incoming.ImageDir]
	working := make(map[string]ItemParams, len(current.Items)+len(incoming.Items))
	maps.Copy(working, current.Items)
	for name, item := range incoming.Items {
		working[name] = item.Normalize()
	}

	dirs[incoming.ImageDir] = DirEntry{Items: working, UpdatedAt: ts}
	return Document{
		Dirs:      dirs,
		UpdatedAt: ts,
		Extra:     maps.Clone(existing.Extra),
	}
}

// Seed adds default parameters for catalog filenames the document does not
// know yet. Stored entries are never overwritten. It reports how many
// entries were added; when none were, existing is returned as is.
func Seed(existing Document, imageDir string, filenames []string, now time.Time) (Document, int) {
	if imageDir == "" {
		return existing, 0
	}
	current := existing.Dirs[imageDir]
	missing := make(map[string]ItemParams)
	for _, name := range filenames {
		if _, ok := current.Items[name]; ok {
			continue
		}
		missing[name] = DefaultItem()
	}
	if len(missing) == 0 {
		return existing, 0
	}
	return Merge(existing, Snapshot{ImageDir: imageDir, Items: missing}, now), len(missing)
}
