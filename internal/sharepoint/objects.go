package sharepoint

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Object is one entry of a folder listing: a file or a subfolder.
// Produced per listing call, never cached across commands.
type Object struct {
	Name       string
	Path       string // site-relative path
	IsFolder   bool
	Size       int64
	ModifiedAt time.Time
}

// folderItemResponse mirrors the REST API folder/file JSON.
// Unexported — callers get normalized Objects.
type folderItemResponse struct {
	Name              string `json:"Name"`
	ServerRelativeURL string `json:"ServerRelativeUrl"`
	TimeLastModified  string `json:"TimeLastModified"`
	Length            int64  `json:"Length"`
}

type listFolderResponse struct {
	Folders []folderItemResponse `json:"Folders"`
	Files   []folderItemResponse `json:"Files"`
}

type createFolderRequest struct {
	ServerRelativeURL string `json:"ServerRelativeUrl"`
}

// toObject normalizes a REST API item into an Object.
func (r *folderItemResponse) toObject(sitePath string, isFolder bool, logger *slog.Logger) Object {
	path := r.ServerRelativeURL
	if len(path) >= len(sitePath) && path[:len(sitePath)] == sitePath {
		path = path[len(sitePath):]
	}

	return Object{
		Name:       r.Name,
		Path:       path,
		IsFolder:   isFolder,
		Size:       r.Length,
		ModifiedAt: parseTimestamp(r.TimeLastModified, r.Name, logger),
	}
}

// parseTimestamp parses an RFC3339 timestamp. Invalid timestamps are
// replaced with the current time and logged, never fatal.
func parseTimestamp(raw, name string, logger *slog.Logger) time.Time {
	if raw == "" {
		return time.Now().UTC()
	}

	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		logger.Warn("invalid timestamp, using current time",
			slog.String("name", name),
			slog.String("raw", raw),
			slog.String("error", err.Error()),
		)

		return time.Now().UTC()
	}

	return t
}

// ListChildren returns the immediate children of a site-relative folder
// path, subfolders first, in the order the service returns them.
// A missing folder surfaces as ErrNotFound.
func (c *Client) ListChildren(ctx context.Context, folderPath string) ([]Object, error) {
	c.logger.Info("listing folder",
		slog.String("path", folderPath),
	)

	apiPath := fmt.Sprintf("/_api/web/GetFolderByServerRelativeUrl('%s')?$expand=Folders,Files",
		quotePath(c.serverRelative(folderPath)))

	resp, err := c.Do(ctx, http.MethodGet, apiPath, nil, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var lfr listFolderResponse
	if err := json.NewDecoder(resp.Body).Decode(&lfr); err != nil {
		return nil, fmt.Errorf("sharepoint: decoding folder response: %w", err)
	}

	objects := make([]Object, 0, len(lfr.Folders)+len(lfr.Files))
	for i := range lfr.Folders {
		objects = append(objects, lfr.Folders[i].toObject(c.sitePath, true, c.logger))
	}

	for i := range lfr.Files {
		objects = append(objects, lfr.Files[i].toObject(c.sitePath, false, c.logger))
	}

	c.logger.Info("listed folder",
		slog.String("path", folderPath),
		slog.Int("total_objects", len(objects)),
	)

	return objects, nil
}

// Upload writes content as a file named name into the given folder,
// overwriting any existing file of the same name.
func (c *Client) Upload(ctx context.Context, folderPath, name string, content []byte) error {
	c.logger.Info("uploading file",
		slog.String("folder", folderPath),
		slog.String("name", name),
		slog.Int("size", len(content)),
	)

	apiPath := fmt.Sprintf("/_api/web/GetFolderByServerRelativeUrl('%s')/Files/add(url='%s',overwrite=true)",
		quotePath(c.serverRelative(folderPath)),
		quotePath(name))

	resp, err := c.Do(ctx, http.MethodPost, apiPath, bytes.NewReader(content), nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return drain(resp.Body)
}

// Download returns a reader over the contents of a site-relative file path.
// The caller must close it.
func (c *Client) Download(ctx context.Context, filePath string) (io.ReadCloser, error) {
	c.logger.Info("downloading file",
		slog.String("path", filePath),
	)

	apiPath := fmt.Sprintf("/_api/web/GetFileByServerRelativeUrl('%s')/$value",
		quotePath(c.serverRelative(filePath)))

	resp, err := c.Do(ctx, http.MethodGet, apiPath, nil, nil)
	if err != nil {
		return nil, err
	}

	return resp.Body, nil
}

// DeleteFile deletes a site-relative file path.
func (c *Client) DeleteFile(ctx context.Context, filePath string) error {
	c.logger.Info("deleting file",
		slog.String("path", filePath),
	)

	apiPath := fmt.Sprintf("/_api/web/GetFileByServerRelativeUrl('%s')",
		quotePath(c.serverRelative(filePath)))

	return c.deleteResource(ctx, apiPath)
}

// DeleteFolder deletes a site-relative folder path.
func (c *Client) DeleteFolder(ctx context.Context, folderPath string) error {
	c.logger.Info("deleting folder",
		slog.String("path", folderPath),
	)

	apiPath := fmt.Sprintf("/_api/web/GetFolderByServerRelativeUrl('%s')",
		quotePath(c.serverRelative(folderPath)))

	return c.deleteResource(ctx, apiPath)
}

// deleteResource issues the REST API's POST + X-HTTP-Method DELETE verb
// tunnel used for both files and folders.
func (c *Client) deleteResource(ctx context.Context, apiPath string) error {
	hdr := http.Header{}
	hdr.Set("X-HTTP-Method", "DELETE")
	hdr.Set("IF-MATCH", "*")

	resp, err := c.Do(ctx, http.MethodPost, apiPath, nil, hdr)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return drain(resp.Body)
}

// CreateFolder creates a folder at the given site-relative path.
// The parent folder must exist.
func (c *Client) CreateFolder(ctx context.Context, folderPath string) (*Object, error) {
	c.logger.Info("creating folder",
		slog.String("path", folderPath),
	)

	reqBody, err := json.Marshal(createFolderRequest{
		ServerRelativeURL: c.serverRelative(folderPath),
	})
	if err != nil {
		return nil, fmt.Errorf("sharepoint: marshaling create folder request: %w", err)
	}

	hdr := http.Header{}
	hdr.Set("Content-Type", acceptJSON)

	resp, err := c.Do(ctx, http.MethodPost, "/_api/web/Folders", bytes.NewReader(reqBody), hdr)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var fir folderItemResponse
	if err := json.NewDecoder(resp.Body).Decode(&fir); err != nil {
		return nil, fmt.Errorf("sharepoint: decoding create folder response: %w", err)
	}

	obj := fir.toObject(c.sitePath, true, c.logger)

	return &obj, nil
}

// drain discards a response body so the connection can be reused.
func drain(body io.Reader) error {
	if _, err := io.Copy(io.Discard, body); err != nil {
		return fmt.Errorf("sharepoint: draining response body: %w", err)
	}

	return nil
}
