package galaxy

import (
	"context"
	"net/http"
	"net/url"
)

// CreateLibrary creates a new data library.
func (c *Client) CreateLibrary(ctx context.Context, name, description string) (*Library, error) {
	req := map[string]string{"name": name, "description": description}
	var lib Library
	if err := c.call(ctx, "CreateLibrary", http.MethodPost, "/api/libraries", req, &lib); err != nil {
		return nil, err
	}
	if lib.ID == "" {
		return nil, NewError("CreateLibrary", "no library id returned from server")
	}
	return &lib, nil
}

// DeleteLibrary deletes a data library.
func (c *Client) DeleteLibrary(ctx context.Context, libraryID string) error {
	return c.call(ctx, "DeleteLibrary", http.MethodDelete, "/api/libraries/"+url.PathEscape(libraryID), nil, nil)
}

// UploadPathInput describes a server-visible file to register in a library.
type UploadPathInput struct {
	LibraryID string
	FolderID  string // defaults to the library's root folder
	Path      string
	FileType  string // defaults to "auto"
	LinkData  bool   // link instead of copying into the server's object store
}

// UploadFromPath registers a file already visible to the server's filesystem
// in a data library and returns the created library dataset.
func (c *Client) UploadFromPath(ctx context.Context, in UploadPathInput) (*LibraryDataset, error) {
	fileType := in.FileType
	if fileType == "" {
		fileType = "auto"
	}
	req := map[string]any{
		"upload_option":    "upload_paths",
		"filesystem_paths": in.Path,
		"file_type":        fileType,
		"dbkey":            "?",
		"create_type":      "file",
	}
	if in.FolderID != "" {
		req["folder_id"] = in.FolderID
	}
	if in.LinkData {
		req["link_data_only"] = "link_to_files"
	}

	var created []LibraryDataset
	path := "/api/libraries/" + url.PathEscape(in.LibraryID) + "/contents"
	if err := c.call(ctx, "UploadFromPath", http.MethodPost, path, req, &created); err != nil {
		return nil, err
	}
	if len(created) == 0 || created[0].ID == "" {
		return nil, NewError("UploadFromPath", "no dataset returned from server")
	}
	return &created[0], nil
}
