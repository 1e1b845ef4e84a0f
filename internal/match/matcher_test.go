package match

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spocli/spo/internal/sharepoint"
)

// fakeLister serves canned listings and records calls.
type fakeLister struct {
	objects []sharepoint.Object
	err     error
	calls   int
}

func (f *fakeLister) ListChildren(_ context.Context, _ string) ([]sharepoint.Object, error) {
	f.calls++

	if f.err != nil {
		return nil, f.err
	}

	return f.objects, nil
}

func testObjects(now time.Time) []sharepoint.Object {
	return []sharepoint.Object{
		{Name: "archive", Path: "docs/archive", IsFolder: true, ModifiedAt: now.Add(-100 * 24 * time.Hour)},
		{Name: "report.pdf", Path: "docs/report.pdf", Size: 100, ModifiedAt: now.Add(-3*24*time.Hour - time.Hour)},
		{Name: "notes.txt", Path: "docs/notes.txt", Size: 20, ModifiedAt: now.Add(-5 * 24 * time.Hour)},
		{Name: "summary.pdf", Path: "docs/summary.pdf", Size: 50, ModifiedAt: now.Add(-time.Hour)},
	}
}

func TestResolveGlobFilters(t *testing.T) {
	now := time.Now()
	lister := &fakeLister{objects: testObjects(now)}
	m := &Matcher{Lister: lister, Now: now}

	objects, err := m.ResolveAll(context.Background(), &Selector{FolderPath: "docs", Pattern: "*.pdf"})
	require.NoError(t, err)

	require.Len(t, objects, 2)
	assert.Equal(t, "report.pdf", objects[0].Name)
	assert.Equal(t, "summary.pdf", objects[1].Name)
}

func TestResolvePreservesListingOrder(t *testing.T) {
	now := time.Now()
	m := &Matcher{Lister: &fakeLister{objects: testObjects(now)}, Now: now}

	objects, err := m.ResolveAll(context.Background(), &Selector{FolderPath: "docs", Pattern: "*"})
	require.NoError(t, err)

	names := make([]string, len(objects))
	for i, obj := range objects {
		names[i] = obj.Name
	}

	assert.Equal(t, []string{"archive", "report.pdf", "notes.txt", "summary.pdf"}, names)
}

func TestResolveMTimePredicate(t *testing.T) {
	now := time.Now()
	m := &Matcher{Lister: &fakeLister{objects: testObjects(now)}, Now: now}

	tests := []struct {
		mtime *MTime
		want  []string
	}{
		{&MTime{Op: OpExact, Days: 3}, []string{"report.pdf"}},
		{&MTime{Op: OpGreater, Days: 3}, []string{"archive", "notes.txt"}},
		{&MTime{Op: OpLess, Days: 3}, []string{"summary.pdf"}},
	}

	for _, tt := range tests {
		objects, err := m.ResolveAll(context.Background(), &Selector{
			FolderPath: "docs",
			Pattern:    "*",
			MTime:      tt.mtime,
		})
		require.NoError(t, err, tt.mtime.String())

		names := make([]string, len(objects))
		for i, obj := range objects {
			names[i] = obj.Name
		}

		assert.Equal(t, tt.want, names, tt.mtime.String())
	}
}

func TestResolveGlobAndMTimeCombined(t *testing.T) {
	now := time.Now()
	m := &Matcher{Lister: &fakeLister{objects: testObjects(now)}, Now: now}

	objects, err := m.ResolveAll(context.Background(), &Selector{
		FolderPath: "docs",
		Pattern:    "*.pdf",
		MTime:      &MTime{Op: OpLess, Days: 1},
	})
	require.NoError(t, err)

	require.Len(t, objects, 1)
	assert.Equal(t, "summary.pdf", objects[0].Name)
}

func TestResolveEmptyFolderIsNotAnError(t *testing.T) {
	m := &Matcher{Lister: &fakeLister{}, Now: time.Now()}

	objects, err := m.ResolveAll(context.Background(), &Selector{FolderPath: "empty", Pattern: "*"})
	require.NoError(t, err)
	assert.Empty(t, objects)
}

func TestResolveMissingFolder(t *testing.T) {
	lister := &fakeLister{err: &sharepoint.APIError{StatusCode: 404, Err: sharepoint.ErrNotFound}}
	m := &Matcher{Lister: lister, Now: time.Now()}

	_, err := m.Resolve(context.Background(), &Selector{FolderPath: "missing", Pattern: "*"})
	require.Error(t, err)

	var pathErr *RemotePathError
	require.ErrorAs(t, err, &pathErr)
	assert.Equal(t, "missing", pathErr.Folder)
	assert.ErrorIs(t, err, sharepoint.ErrNotFound)
}

func TestResolveOtherListErrorsPassThrough(t *testing.T) {
	boom := errors.New("boom")
	m := &Matcher{Lister: &fakeLister{err: boom}, Now: time.Now()}

	_, err := m.Resolve(context.Background(), &Selector{FolderPath: "docs", Pattern: "*"})
	assert.ErrorIs(t, err, boom)
}

func TestResolveBadPatternFailsBeforeListing(t *testing.T) {
	lister := &fakeLister{}
	m := &Matcher{Lister: lister, Now: time.Now()}

	_, err := m.Resolve(context.Background(), &Selector{FolderPath: "docs", Pattern: "[broken"})
	require.Error(t, err)

	var invalid *InvalidPatternError
	assert.ErrorAs(t, err, &invalid)
	assert.Zero(t, lister.calls, "no remote call for an invalid pattern")
}

func TestResolveListsOnce(t *testing.T) {
	now := time.Now()
	lister := &fakeLister{objects: testObjects(now)}
	m := &Matcher{Lister: lister, Now: now}

	seq, err := m.Resolve(context.Background(), &Selector{FolderPath: "docs", Pattern: "*"})
	require.NoError(t, err)

	for range seq {
	}

	assert.Equal(t, 1, lister.calls)
}

func TestResolveSequenceStopsEarly(t *testing.T) {
	now := time.Now()
	m := &Matcher{Lister: &fakeLister{objects: testObjects(now)}, Now: now}

	seq, err := m.Resolve(context.Background(), &Selector{FolderPath: "docs", Pattern: "*"})
	require.NoError(t, err)

	var got []string
	for obj := range seq {
		got = append(got, obj.Name)
		if len(got) == 2 {
			break
		}
	}

	assert.Equal(t, []string{"archive", "report.pdf"}, got)
}
