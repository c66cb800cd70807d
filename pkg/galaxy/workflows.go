package galaxy

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
)

// ImportWorkflow imports a workflow document and returns the stored workflow.
func (c *Client) ImportWorkflow(ctx context.Context, document json.RawMessage) (*StoredWorkflow, error) {
	var wf StoredWorkflow
	if err := c.call(ctx, "ImportWorkflow", http.MethodPost, "/api/workflows", importRequest{Workflow: document}, &wf); err != nil {
		return nil, err
	}
	if wf.ID == "" {
		return nil, NewError("ImportWorkflow", "no workflow id returned from server")
	}
	return &wf, nil
}

// DeleteWorkflow deletes a stored workflow.
func (c *Client) DeleteWorkflow(ctx context.Context, workflowID string) error {
	return c.call(ctx, "DeleteWorkflow", http.MethodDelete, "/api/workflows/"+url.PathEscape(workflowID), nil, nil)
}

// InvokeWorkflow schedules a workflow run in a history.
func (c *Client) InvokeWorkflow(ctx context.Context, workflowID string, req InvokeRequest) (*Invocation, error) {
	if req.InputsBy == "" {
		req.InputsBy = "name"
	}
	var inv Invocation
	path := "/api/workflows/" + url.PathEscape(workflowID) + "/invocations"
	if err := c.call(ctx, "InvokeWorkflow", http.MethodPost, path, req, &inv); err != nil {
		return nil, err
	}
	if inv.ID == "" {
		return nil, NewError("InvokeWorkflow", "no invocation id returned from server")
	}
	return &inv, nil
}

// ShowInvocation returns an invocation including its steps and outputs.
func (c *Client) ShowInvocation(ctx context.Context, invocationID string) (*Invocation, error) {
	var inv Invocation
	path := "/api/invocations/" + url.PathEscape(invocationID) + "?step_details=true"
	if err := c.call(ctx, "ShowInvocation", http.MethodGet, path, nil, &inv); err != nil {
		return nil, err
	}
	return &inv, nil
}
