package ledger

import (
	"context"
	"strings"

	"github.com/agnivade/levenshtein"
)

// NameInfo is one resolved lookup entry.
type NameInfo struct {
	ID          string
	DisplayName string
}

// NameLookup is a read-through cache over a name -> id table (categories or
// tags). Resolution is case-insensitive and returns the canonical display
// name. The cache loads lazily from Source and holds entries until
// Invalidate is called; the owner decides when the table may have changed.
// No internal locking: the core assumes a single logical writer.
type NameLookup struct {
	Source func(ctx context.Context) ([]NameInfo, error)

	byLower map[string]NameInfo
}

// NewNameLookup wraps a loader function.
func NewNameLookup(source func(ctx context.Context) ([]NameInfo, error)) *NameLookup {
	return &NameLookup{Source: source}
}

func (l *NameLookup) load(ctx context.Context) error {
	if l.byLower != nil {
		return nil
	}
	entries, err := l.Source(ctx)
	if err != nil {
		return err
	}
	m := make(map[string]NameInfo, len(entries))
	for _, e := range entries {
		m[strings.ToLower(e.DisplayName)] = e
	}
	l.byLower = m
	return nil
}

// Resolve looks up a name case-insensitively. ok is false when the name is
// unknown; err is only non-nil when the underlying table could not load.
func (l *NameLookup) Resolve(ctx context.Context, name string) (info NameInfo, ok bool, err error) {
	if name == "" {
		return NameInfo{}, false, nil
	}
	if err := l.load(ctx); err != nil {
		return NameInfo{}, false, err
	}
	info, ok = l.byLower[strings.ToLower(name)]
	return info, ok, nil
}

// Invalidate drops the cached table so the next Resolve reloads it.
func (l *NameLookup) Invalidate() { l.byLower = nil }

// Suggest returns the closest known display name within an edit distance of
// 3, for "did you mean" hints on failed resolution. Empty when nothing is
// close enough.
func (l *NameLookup) Suggest(ctx context.Context, name string) string {
	if err := l.load(ctx); err != nil {
		return ""
	}
	best, bestDist := "", 4
	lower := strings.ToLower(name)
	for key, info := range l.byLower {
		d := levenshtein.ComputeDistance(lower, key)
		if d < bestDist {
			best, bestDist = info.DisplayName, d
		}
	}
	return best
}
