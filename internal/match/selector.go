// Package match turns a user-supplied SharePoint URL containing shell-glob
// patterns and an optional find-style mtime predicate into a concrete,
// ordered selection of remote objects. Glob matching and mtime parsing are
// pure functions with no I/O so they can be tested without a live service.
package match

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// globMeta is the set of shell-glob metacharacters. Only the final path
// segment of a selector may contain them.
const globMeta = `*?[\`

// InvalidPatternError reports a syntactically invalid glob pattern or
// mtime expression. Raised before any remote call is made.
type InvalidPatternError struct {
	Expr   string
	Reason string
}

func (e *InvalidPatternError) Error() string {
	return fmt.Sprintf("invalid pattern %q: %s", e.Expr, e.Reason)
}

// RemotePathError reports a folder path that does not exist remotely.
// Distinct from "found but empty", which is not an error.
type RemotePathError struct {
	Folder string
	Err    error
}

func (e *RemotePathError) Error() string {
	return fmt.Sprintf("%s does not exist", e.Folder)
}

func (e *RemotePathError) Unwrap() error { return e.Err }

// Selector is the parsed form of a user URL.
type Selector struct {
	Domain     string // e.g. example.sharepoint.com
	SitePath   string // server-relative site prefix, e.g. "/sites/example"
	FolderPath string // site-relative folder path, no glob metacharacters
	Pattern    string // glob applied to the final path segment, default "*"
	MTime      *MTime // optional age predicate

	// PatternDefaulted records that Pattern is the implicit "*" from a
	// trailing slash, not a glob the user typed. Commands that need a
	// literal folder name (mkdir, rmdir) accept the defaulted form but
	// reject an explicit "*".
	PatternDefaulted bool
}

// IsRemote reports whether a cp argument names a remote URL rather than a
// local path.
func IsRemote(s string) bool {
	return strings.HasPrefix(s, "https://")
}

// ParseSelector splits a URL into domain, site path, literal folder path,
// and glob pattern. Everything up to the last segment is the literal folder
// path; the last segment is the pattern (default "*" when the URL ends in a
// slash). Glob metacharacters anywhere but the final segment are rejected.
func ParseSelector(rawURL string) (*Selector, error) {
	if !IsRemote(rawURL) {
		return nil, fmt.Errorf("match: %q is not a https:// SharePoint URL", rawURL)
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("match: parsing %q: %w", rawURL, err)
	}

	if u.Host == "" {
		return nil, fmt.Errorf("match: %q has no host", rawURL)
	}

	trailingSlash := strings.HasSuffix(u.Path, "/")

	segments := splitPath(u.Path)
	if len(segments) < 2 {
		return nil, fmt.Errorf("match: %q does not name a site (expected https://<domain>/sites/<name>/...)", rawURL)
	}

	sel := &Selector{
		Domain:           u.Host,
		SitePath:         "/" + segments[0] + "/" + segments[1],
		Pattern:          "*",
		PatternDefaulted: true,
	}

	rest := segments[2:]

	if !trailingSlash && len(rest) > 0 {
		sel.Pattern = rest[len(rest)-1]
		sel.PatternDefaulted = false
		rest = rest[:len(rest)-1]
	}

	for _, seg := range rest {
		if strings.ContainsAny(seg, globMeta) {
			return nil, &InvalidPatternError{
				Expr:   u.Path,
				Reason: fmt.Sprintf("glob metacharacters are only allowed in the final path segment (found in %q)", seg),
			}
		}
	}

	sel.FolderPath = strings.Join(rest, "/")

	if err := validateGlob(sel.Pattern); err != nil {
		return nil, err
	}

	return sel, nil
}

// HasGlob reports whether the selector's pattern contains metacharacters,
// i.e. whether it can match anything other than a literal name.
func (s *Selector) HasGlob() bool {
	return strings.ContainsAny(s.Pattern, globMeta)
}

// URL reconstructs the remote URL of an object under this selector's site.
func (s *Selector) URL(sitePathRelative string) string {
	return "https://" + s.Domain + s.SitePath + "/" + strings.TrimPrefix(sitePathRelative, "/")
}

// validateGlob checks glob syntax up front so a malformed pattern fails
// before any network round-trip.
func validateGlob(pattern string) error {
	if !doublestar.ValidatePattern(pattern) {
		return &InvalidPatternError{Expr: pattern, Reason: "malformed glob"}
	}

	return nil
}

// Match reports whether name matches pattern with shell-glob semantics:
// case-sensitive and anchored (the whole name must match). The pattern is
// assumed validated.
func Match(pattern, name string) bool {
	ok, err := doublestar.Match(pattern, name)

	return err == nil && ok
}

// splitPath returns the non-empty segments of a URL path.
func splitPath(p string) []string {
	var segments []string
	for _, seg := range strings.Split(p, "/") {
		if seg != "" {
			segments = append(segments, seg)
		}
	}

	return segments
}
