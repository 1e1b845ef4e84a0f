// Package credstore reads and writes the on-disk credentials file,
// ~/.spo/credentials by default. The file is INI-style with one [domain]
// section per configured SharePoint domain. It holds secrets, so it is
// created with owner-only permissions and written atomically.
package credstore

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/oauth2"
	"gopkg.in/ini.v1"
)

// FilePerms restricts the credentials file to owner-only read/write.
const FilePerms = 0o600

// DirPerms is used when creating the parent directory.
const DirPerms = 0o700

// Credential field keys, as they appear in the INI file.
const (
	KeyUsername     = "username"
	KeyPassword     = "password"
	KeyClientID     = "client_id"
	KeyClientSecret = "client_secret"
	KeyTenantID     = "tenant_id"
	keyAccessToken  = "access_token"
	keyRefreshToken = "refresh_token"
	keyTokenType    = "token_type"
	keyExpiry       = "expiry"
)

// DefaultSection is the fallback section consulted when a domain has no
// section of its own.
const DefaultSection = "default"

// PersistenceError indicates the credentials file could not be read or
// written. Fatal for the invocation.
type PersistenceError struct {
	Path string
	Op   string // "read" or "write"
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("credstore: cannot %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Entry holds the stored credential fields for one domain. Legacy mode uses
// Username/Password; modern mode uses ClientID/ClientSecret/TenantID plus
// the token blob. Empty fields are omitted from the file.
type Entry struct {
	Username     string
	Password     string
	ClientID     string
	ClientSecret string
	TenantID     string
	AccessToken  string
	RefreshToken string
	TokenType    string
	Expiry       time.Time
}

// HasToken reports whether the entry carries a persisted OAuth token.
func (e Entry) HasToken() bool {
	return e.AccessToken != "" || e.RefreshToken != ""
}

// Token converts the stored token blob to an oauth2.Token.
// Returns nil if no token is stored.
func (e Entry) Token() *oauth2.Token {
	if !e.HasToken() {
		return nil
	}

	return &oauth2.Token{
		AccessToken:  e.AccessToken,
		RefreshToken: e.RefreshToken,
		TokenType:    e.TokenType,
		Expiry:       e.Expiry,
	}
}

// SetToken copies an oauth2.Token into the entry's token fields.
func (e *Entry) SetToken(tok *oauth2.Token) {
	if tok == nil {
		return
	}

	e.AccessToken = tok.AccessToken
	e.RefreshToken = tok.RefreshToken
	e.TokenType = tok.TokenType
	e.Expiry = tok.Expiry
}

// merge overlays non-empty fields of other onto e. Unrelated existing
// fields are preserved.
func (e *Entry) merge(other Entry) {
	if other.Username != "" {
		e.Username = other.Username
	}

	if other.Password != "" {
		e.Password = other.Password
	}

	if other.ClientID != "" {
		e.ClientID = other.ClientID
	}

	if other.ClientSecret != "" {
		e.ClientSecret = other.ClientSecret
	}

	if other.TenantID != "" {
		e.TenantID = other.TenantID
	}

	if other.HasToken() {
		e.AccessToken = other.AccessToken
		e.RefreshToken = other.RefreshToken
		e.TokenType = other.TokenType
		e.Expiry = other.Expiry
	}
}

// Store is the on-disk credential store. The zero value is not usable;
// construct with New. The file is loaded lazily on first access and
// rewritten wholesale on every mutation. Concurrent processes are not
// coordinated — last writer wins, acceptable for an interactive
// single-user CLI.
type Store struct {
	path    string
	loaded  bool
	entries map[string]Entry
	order   []string // section order, preserved across load/save
}

// New returns a store bound to the given file path. The path comes from
// config.CredentialsPath; it is passed in explicitly so tests can use a
// temporary directory.
func New(path string) *Store {
	return &Store{path: path}
}

// Path returns the file path the store is bound to.
func (s *Store) Path() string { return s.path }

// Load reads the credentials file and returns the domain -> Entry mapping.
// A missing file yields an empty mapping, not an error. The result is
// cached for the lifetime of the process.
func (s *Store) Load() (map[string]Entry, error) {
	if s.loaded {
		return s.entries, nil
	}

	s.entries = make(map[string]Entry)
	s.order = nil

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		s.loaded = true
		return s.entries, nil
	}

	if err != nil {
		return nil, &PersistenceError{Path: s.path, Op: "read", Err: err}
	}

	f, err := ini.Load(data)
	if err != nil {
		return nil, &PersistenceError{Path: s.path, Op: "read", Err: err}
	}

	for _, sec := range f.Sections() {
		if sec.Name() == ini.DefaultSection {
			continue
		}

		s.entries[sec.Name()] = entryFromSection(sec)
		s.order = append(s.order, sec.Name())
	}

	s.loaded = true

	return s.entries, nil
}

// Lookup returns the entry for a domain, falling back to the [default]
// section. The second return reports whether any entry was found.
func (s *Store) Lookup(domain string) (Entry, bool, error) {
	entries, err := s.Load()
	if err != nil {
		return Entry{}, false, err
	}

	if e, ok := entries[domain]; ok {
		return e, true, nil
	}

	if e, ok := entries[DefaultSection]; ok {
		return e, true, nil
	}

	return Entry{}, false, nil
}

// Save serializes the full mapping back to disk in the same INI layout,
// creating parent directories as needed and restricting the file to the
// owning user. The write is atomic (temp file + rename) so an interrupted
// save never leaves a truncated secrets file behind.
func (s *Store) Save() error {
	f := ini.Empty()

	for _, domain := range s.order {
		entry := s.entries[domain]

		sec, err := f.NewSection(domain)
		if err != nil {
			return &PersistenceError{Path: s.path, Op: "write", Err: err}
		}

		entryToSection(sec, entry)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, DirPerms); err != nil {
		return &PersistenceError{Path: s.path, Op: "write", Err: err}
	}

	tmp, err := os.CreateTemp(dir, ".credentials-*.tmp")
	if err != nil {
		return &PersistenceError{Path: s.path, Op: "write", Err: err}
	}

	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpPath)
		}
	}()

	if err := os.Chmod(tmpPath, FilePerms); err != nil {
		tmp.Close()
		return &PersistenceError{Path: s.path, Op: "write", Err: err}
	}

	if _, err := f.WriteTo(tmp); err != nil {
		tmp.Close()
		return &PersistenceError{Path: s.path, Op: "write", Err: err}
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return &PersistenceError{Path: s.path, Op: "write", Err: err}
	}

	if err := tmp.Close(); err != nil {
		return &PersistenceError{Path: s.path, Op: "write", Err: err}
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		return &PersistenceError{Path: s.path, Op: "write", Err: err}
	}

	success = true

	return nil
}

// Upsert merges one entry into the mapping (non-empty new fields overwrite
// same-named existing fields, unrelated fields are preserved) and saves the
// store back to disk.
func (s *Store) Upsert(domain string, entry Entry) error {
	if _, err := s.Load(); err != nil {
		return err
	}

	existing, ok := s.entries[domain]
	if !ok {
		s.order = append(s.order, domain)
	}

	existing.merge(entry)
	s.entries[domain] = existing

	return s.Save()
}

// entryFromSection decodes one INI section into an Entry.
// An unparsable expiry is treated as zero — the token will look expired
// and get refreshed, which is the safe direction.
func entryFromSection(sec *ini.Section) Entry {
	e := Entry{
		Username:     sec.Key(KeyUsername).String(),
		Password:     sec.Key(KeyPassword).String(),
		ClientID:     sec.Key(KeyClientID).String(),
		ClientSecret: sec.Key(KeyClientSecret).String(),
		TenantID:     sec.Key(KeyTenantID).String(),
		AccessToken:  sec.Key(keyAccessToken).String(),
		RefreshToken: sec.Key(keyRefreshToken).String(),
		TokenType:    sec.Key(keyTokenType).String(),
	}

	if raw := sec.Key(keyExpiry).String(); raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			e.Expiry = t
		}
	}

	return e
}

// entryToSection encodes an Entry into an INI section, omitting empty fields.
func entryToSection(sec *ini.Section, e Entry) {
	set := func(key, value string) {
		if value != "" {
			sec.Key(key).SetValue(value)
		}
	}

	set(KeyUsername, e.Username)
	set(KeyPassword, e.Password)
	set(KeyClientID, e.ClientID)
	set(KeyClientSecret, e.ClientSecret)
	set(KeyTenantID, e.TenantID)
	set(keyAccessToken, e.AccessToken)
	set(keyRefreshToken, e.RefreshToken)
	set(keyTokenType, e.TokenType)

	if !e.Expiry.IsZero() {
		sec.Key(keyExpiry).SetValue(e.Expiry.Format(time.RFC3339))
	}
}
