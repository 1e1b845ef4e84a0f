package match

import (
	"context"
	"errors"
	"iter"
	"time"

	"github.com/spocli/spo/internal/sharepoint"
)

// Lister is the one remote capability the matcher needs. Satisfied by
// *sharepoint.Client; tests supply fakes.
type Lister interface {
	ListChildren(ctx context.Context, folderPath string) ([]sharepoint.Object, error)
}

// Matcher resolves selectors against a remote folder listing. Now is
// captured once per command invocation so the mtime predicate is
// consistent across a multi-object selection.
type Matcher struct {
	Lister Lister
	Now    time.Time
}

// NewMatcher returns a matcher over the given lister with Now pinned to
// the current time.
func NewMatcher(lister Lister) *Matcher {
	return &Matcher{Lister: lister, Now: time.Now()}
}

// Resolve lists the selector's folder once (non-recursive, mirroring shell
// glob semantics for a single directory level) and returns a lazy one-shot
// sequence of the objects matching the glob and mtime predicate, in
// listing order. A missing folder yields a RemotePathError; an existing
// but empty folder yields an empty sequence.
func (m *Matcher) Resolve(ctx context.Context, sel *Selector) (iter.Seq[sharepoint.Object], error) {
	// Fail fast on a bad pattern before spending a network round-trip.
	if err := validateGlob(sel.Pattern); err != nil {
		return nil, err
	}

	objects, err := m.Lister.ListChildren(ctx, sel.FolderPath)
	if err != nil {
		if errors.Is(err, sharepoint.ErrNotFound) {
			return nil, &RemotePathError{Folder: sel.FolderPath, Err: err}
		}

		return nil, err
	}

	now := m.Now

	return func(yield func(sharepoint.Object) bool) {
		for _, obj := range objects {
			if !Match(sel.Pattern, obj.Name) {
				continue
			}

			if sel.MTime != nil && !sel.MTime.Match(now.Sub(obj.ModifiedAt)) {
				continue
			}

			if !yield(obj) {
				return
			}
		}
	}, nil
}

// ResolveAll is Resolve with the sequence collected into a slice, for
// callers that need the full selection up front (e.g. counting matches).
func (m *Matcher) ResolveAll(ctx context.Context, sel *Selector) ([]sharepoint.Object, error) {
	seq, err := m.Resolve(ctx, sel)
	if err != nil {
		return nil, err
	}

	var objects []sharepoint.Object
	for obj := range seq {
		objects = append(objects, obj)
	}

	return objects, nil
}
