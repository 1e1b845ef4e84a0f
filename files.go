package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/spocli/spo/internal/auth"
	"github.com/spocli/spo/internal/match"
	"github.com/spocli/spo/internal/resolver"
	"github.com/spocli/spo/internal/sharepoint"
)

func newLsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ls <url>",
		Short: "List files and folders",
		Long: `List files and folders at a SharePoint URL.

The final path segment may be a shell glob pattern (*, ?, [...]); a URL
ending in / lists the folder's contents. Folders print PRE in the size
column. --mtime filters by modification age in days, find-style: +N
means older than N days, -N younger, N exactly N days.`,
		Args: cobra.ExactArgs(1),
		RunE: runLs,
	}

	cmd.Flags().String("mtime", "", "filter by modification age in days (+N, -N, or N)")

	return cmd
}

func newCpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cp <source> <destination>",
		Short: "Copy files to or from SharePoint",
		Long: `Copy files between the local filesystem and SharePoint.

Exactly one argument must be a https:// SharePoint URL. Downloading
supports glob patterns in the final segment of the source URL; multiple
matches require the destination to be a local directory. Uploads
overwrite an existing remote file of the same name.`,
		Args: cobra.ExactArgs(2),
		RunE: runCp,
	}
}

func newMkdirCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mkdir <url>",
		Short: "Create a folder",
		Args:  cobra.ExactArgs(1),
		RunE:  runMkdir,
	}
}

func newRmCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rm <url>",
		Short: "Delete files",
		Long: `Delete files matching a SharePoint URL.

The final path segment may be a glob pattern. Only files are deleted;
folders are skipped (use rmdir). Deleting nothing is an error.`,
		Args: cobra.ExactArgs(1),
		RunE: runRm,
	}

	cmd.Flags().String("mtime", "", "filter by modification age in days (+N, -N, or N)")

	return cmd
}

func newRmdirCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rmdir <url>",
		Short: "Delete an empty folder",
		Args:  cobra.ExactArgs(1),
		RunE:  runRmdir,
	}
}

// connect resolves credentials for the selector's domain and builds an
// authenticated client for its site.
func connect(ctx context.Context, sel *match.Selector) (*sharepoint.Client, error) {
	store := openStore()

	cred, err := resolver.Resolve(sel.Domain, credentialOptions(), cliEnv, store)
	if err != nil {
		return nil, err
	}

	factory := &auth.Factory{
		Store:      store,
		HTTPClient: httpClient(),
		Logger:     buildLogger(),
	}

	return factory.Connect(ctx, cred, sel.SitePath)
}

// parseTarget parses a URL argument plus an optional --mtime flag value
// into a selector, validating both before any network traffic.
func parseTarget(cmd *cobra.Command, rawURL string) (*match.Selector, error) {
	sel, err := match.ParseSelector(rawURL)
	if err != nil {
		return nil, err
	}

	if f := cmd.Flags().Lookup("mtime"); f != nil && f.Value.String() != "" {
		mtime, err := match.ParseMTime(f.Value.String())
		if err != nil {
			return nil, err
		}

		sel.MTime = mtime
	}

	return sel, nil
}

// joinPath joins site-relative path components, tolerating an empty prefix.
func joinPath(folder, name string) string {
	if folder == "" {
		return name
	}

	return folder + "/" + name
}

// literalPath returns the full site-relative path a selector names when
// its pattern must be a literal (mkdir, rmdir, upload destination). Only
// the trailing-slash default is folded into the folder path; an explicit
// glob, "*" included, names the folder's contents and is rejected.
func literalPath(sel *match.Selector) (string, error) {
	if sel.PatternDefaulted {
		return sel.FolderPath, nil
	}

	if sel.HasGlob() {
		return "", &match.InvalidPatternError{
			Expr:   sel.Pattern,
			Reason: "glob patterns are not allowed here",
		}
	}

	return joinPath(sel.FolderPath, sel.Pattern), nil
}

func runLs(cmd *cobra.Command, args []string) error {
	sel, err := parseTarget(cmd, args[0])
	if err != nil {
		return err
	}

	ctx := cmd.Context()

	client, err := connect(ctx, sel)
	if err != nil {
		return err
	}

	objects, err := resolveListing(ctx, match.NewMatcher(client), sel, args[0])
	if err != nil {
		return err
	}

	if len(objects) == 0 {
		return nil
	}

	return printObjects(cmd.OutOrStdout(), objects)
}

// resolveListing resolves a selector for ls. A literal name that turns
// out to be a folder drills into that folder's contents, the way ls on a
// directory does. An empty folder yields an empty, non-error listing; an
// unmatched pattern is an error.
func resolveListing(ctx context.Context, matcher *match.Matcher, sel *match.Selector, rawURL string) ([]sharepoint.Object, error) {
	objects, err := matcher.ResolveAll(ctx, sel)
	if err != nil {
		return nil, err
	}

	listedFolder := sel.PatternDefaulted

	if len(objects) == 1 && objects[0].IsFolder && !sel.HasGlob() {
		inner := &match.Selector{
			Domain:           sel.Domain,
			SitePath:         sel.SitePath,
			FolderPath:       objects[0].Path,
			Pattern:          "*",
			PatternDefaulted: true,
			MTime:            sel.MTime,
		}

		objects, err = matcher.ResolveAll(ctx, inner)
		if err != nil {
			return nil, err
		}

		listedFolder = true
	}

	if len(objects) == 0 && !listedFolder {
		return nil, fmt.Errorf("ls: %s: no matches", rawURL)
	}

	return objects, nil
}

// printObjects renders a listing as an aligned table, or as JSON when
// --json is set.
func printObjects(w io.Writer, objects []sharepoint.Object) error {
	if flagJSON {
		type listing struct {
			Name       string `json:"name"`
			Path       string `json:"path"`
			Folder     bool   `json:"folder"`
			Size       int64  `json:"size"`
			ModifiedAt string `json:"modified_at"`
		}

		out := make([]listing, 0, len(objects))
		for _, obj := range objects {
			out = append(out, listing{
				Name:       obj.Name,
				Path:       obj.Path,
				Folder:     obj.IsFolder,
				Size:       obj.Size,
				ModifiedAt: obj.ModifiedAt.Format("2006-01-02T15:04:05Z07:00"),
			})
		}

		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")

		return enc.Encode(out)
	}

	rows := make([][]string, 0, len(objects))
	for _, obj := range objects {
		size := fmt.Sprintf("%d", obj.Size)
		name := obj.Name

		if obj.IsFolder {
			size = folderSizeColumn
			name += "/"
		}

		rows = append(rows, []string{formatListingTime(obj.ModifiedAt), size, name})
	}

	printTable(w, []string{"MODIFIED", "SIZE", "NAME"}, rows)

	return nil
}

func runCp(cmd *cobra.Command, args []string) error {
	src, dst := args[0], args[1]

	switch {
	case match.IsRemote(src) && !match.IsRemote(dst):
		return runDownload(cmd, src, dst)
	case !match.IsRemote(src) && match.IsRemote(dst):
		return runUpload(cmd, src, dst)
	default:
		return fmt.Errorf("cp: exactly one of source and destination must be a https:// SharePoint URL")
	}
}

func runDownload(cmd *cobra.Command, src, dst string) error {
	sel, err := parseTarget(cmd, src)
	if err != nil {
		return err
	}

	ctx := cmd.Context()

	client, err := connect(ctx, sel)
	if err != nil {
		return err
	}

	matcher := match.NewMatcher(client)

	objects, err := matcher.ResolveAll(ctx, sel)
	if err != nil {
		return err
	}

	var files []sharepoint.Object
	for _, obj := range objects {
		if !obj.IsFolder {
			files = append(files, obj)
		}
	}

	if len(files) == 0 {
		return fmt.Errorf("cp: %s: no matching files", src)
	}

	dstInfo, statErr := os.Stat(dst)
	dstIsDir := statErr == nil && dstInfo.IsDir()

	if len(files) > 1 && !dstIsDir {
		return fmt.Errorf("cp: %s matches %d files; destination %s must be an existing directory", src, len(files), dst)
	}

	for _, obj := range files {
		target := dst
		if dstIsDir {
			target = filepath.Join(dst, obj.Name)
		}

		if err := downloadOne(ctx, client, obj, target); err != nil {
			return err
		}

		statusf("download: %s to %s\n", sel.URL(obj.Path), target)
	}

	return nil
}

// downloadOne streams a single remote file to a local path.
func downloadOne(ctx context.Context, client *sharepoint.Client, obj sharepoint.Object, target string) error {
	body, err := client.Download(ctx, obj.Path)
	if err != nil {
		return err
	}
	defer body.Close()

	out, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("cp: creating %s: %w", target, err)
	}

	if _, err := io.Copy(out, body); err != nil {
		out.Close()
		return fmt.Errorf("cp: writing %s: %w", target, err)
	}

	if err := out.Close(); err != nil {
		return fmt.Errorf("cp: writing %s: %w", target, err)
	}

	return nil
}

func runUpload(cmd *cobra.Command, src, dst string) error {
	sel, err := parseTarget(cmd, dst)
	if err != nil {
		return err
	}

	content, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("cp: reading %s: %w", src, err)
	}

	folder := sel.FolderPath
	name := sel.Pattern

	if sel.PatternDefaulted {
		// Destination names a folder; keep the local file name.
		name = filepath.Base(src)
	} else if sel.HasGlob() {
		return &match.InvalidPatternError{
			Expr:   sel.Pattern,
			Reason: "glob patterns are not allowed in an upload destination",
		}
	}

	ctx := cmd.Context()

	client, err := connect(ctx, sel)
	if err != nil {
		return err
	}

	if err := client.Upload(ctx, folder, name, content); err != nil {
		return err
	}

	statusf("upload: %s to %s\n", src, sel.URL(joinPath(folder, name)))

	return nil
}

func runMkdir(cmd *cobra.Command, args []string) error {
	sel, err := match.ParseSelector(args[0])
	if err != nil {
		return err
	}

	folderPath, err := literalPath(sel)
	if err != nil {
		return err
	}

	if folderPath == "" {
		return fmt.Errorf("mkdir: %s does not name a folder under the site", args[0])
	}

	ctx := cmd.Context()

	client, err := connect(ctx, sel)
	if err != nil {
		return err
	}

	// Creating an existing folder is a silent no-op on the service side,
	// so check the parent listing first to report it.
	parent := path.Dir(folderPath)
	if parent == "." {
		parent = ""
	}

	name := path.Base(folderPath)

	siblings, err := client.ListChildren(ctx, parent)
	if err != nil {
		if errors.Is(err, sharepoint.ErrNotFound) {
			return &match.RemotePathError{Folder: parent, Err: err}
		}

		return err
	}

	for _, obj := range siblings {
		if obj.Name == name && obj.IsFolder {
			return fmt.Errorf("mkdir: cannot create folder %s: folder exists", args[0])
		}
	}

	if _, err := client.CreateFolder(ctx, folderPath); err != nil {
		return err
	}

	statusf("mkdir: %s created\n", args[0])

	return nil
}

func runRm(cmd *cobra.Command, args []string) error {
	sel, err := parseTarget(cmd, args[0])
	if err != nil {
		return err
	}

	ctx := cmd.Context()

	client, err := connect(ctx, sel)
	if err != nil {
		return err
	}

	_, err = deleteMatching(ctx, client, match.NewMatcher(client), sel, args[0])

	return err
}

// fileDeleter is the one remote capability rm needs beyond listing.
type fileDeleter interface {
	DeleteFile(ctx context.Context, filePath string) error
}

// deleteMatching deletes the files the selector matches. Folders are
// rmdir's job and are skipped; deleting nothing is an error.
func deleteMatching(ctx context.Context, deleter fileDeleter, matcher *match.Matcher, sel *match.Selector, rawURL string) (int, error) {
	seq, err := matcher.Resolve(ctx, sel)
	if err != nil {
		return 0, err
	}

	deleted := 0
	for obj := range seq {
		if obj.IsFolder {
			continue
		}

		if err := deleter.DeleteFile(ctx, obj.Path); err != nil {
			return deleted, err
		}

		statusf("rm: %s deleted\n", sel.URL(obj.Path))

		deleted++
	}

	if deleted == 0 {
		return 0, fmt.Errorf("rm: %s: no matching files", rawURL)
	}

	return deleted, nil
}

func runRmdir(cmd *cobra.Command, args []string) error {
	sel, err := match.ParseSelector(args[0])
	if err != nil {
		return err
	}

	folderPath, err := literalPath(sel)
	if err != nil {
		return err
	}

	if folderPath == "" {
		return fmt.Errorf("rmdir: %s does not name a folder under the site", args[0])
	}

	ctx := cmd.Context()

	client, err := connect(ctx, sel)
	if err != nil {
		return err
	}

	children, err := client.ListChildren(ctx, folderPath)
	if err != nil {
		if errors.Is(err, sharepoint.ErrNotFound) {
			return &match.RemotePathError{Folder: folderPath, Err: err}
		}

		return err
	}

	if len(children) > 0 {
		return fmt.Errorf("rmdir: %s: folder not empty", args[0])
	}

	if err := client.DeleteFolder(ctx, folderPath); err != nil {
		return err
	}

	statusf("rmdir: %s deleted\n", args[0])

	return nil
}
