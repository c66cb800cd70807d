package galaxy

import (
	"context"
	"net/http"
	"net/url"
)

// CreateHistory creates a new, empty history.
func (c *Client) CreateHistory(ctx context.Context, name string) (*History, error) {
	var h History
	if err := c.call(ctx, "CreateHistory", http.MethodPost, "/api/histories", map[string]string{"name": name}, &h); err != nil {
		return nil, err
	}
	if h.ID == "" {
		return nil, NewError("CreateHistory", "no history id returned from server")
	}
	return &h, nil
}

// ShowHistory returns the detailed view of a history, including its overall
// state and the ids of its datasets grouped by state.
func (c *Client) ShowHistory(ctx context.Context, historyID string) (*HistoryDetails, error) {
	var h HistoryDetails
	path := "/api/histories/" + url.PathEscape(historyID) + "?view=detailed&keys=id,name,state,state_ids,deleted,purged"
	if err := c.call(ctx, "ShowHistory", http.MethodGet, path, nil, &h); err != nil {
		return nil, err
	}
	return &h, nil
}

// DeleteHistory deletes and purges a history.
func (c *Client) DeleteHistory(ctx context.Context, historyID string) error {
	return c.call(ctx, "DeleteHistory", http.MethodDelete, "/api/histories/"+url.PathEscape(historyID), deleteRequest{Purge: true}, nil)
}

// CopyLibraryDatasetToHistory copies a library dataset into a history and
// returns the new history dataset.
func (c *Client) CopyLibraryDatasetToHistory(ctx context.Context, historyID, libraryDatasetID string) (*HistoryDataset, error) {
	req := map[string]string{
		"source":  "library",
		"content": libraryDatasetID,
		"type":    "dataset",
	}
	var ds HistoryDataset
	path := "/api/histories/" + url.PathEscape(historyID) + "/contents"
	if err := c.call(ctx, "CopyLibraryDatasetToHistory", http.MethodPost, path, req, &ds); err != nil {
		return nil, err
	}
	if ds.ID == "" {
		return nil, NewError("CopyLibraryDatasetToHistory", "no dataset id returned from server")
	}
	return &ds, nil
}
