package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/erazemk/inventar/internal/gateway"
	"github.com/erazemk/inventar/internal/model"
)

// Doer sends API requests. *gateway.Gateway implements it.
type Doer interface {
	Do(ctx context.Context, req gateway.Request) (*gateway.Response, error)
}

// Client exposes the inventory REST API as typed calls.
type Client struct {
	api Doer
}

// New creates a client that sends every request through api.
func New(api Doer) *Client {
	return &Client{api: api}
}

// NewItem is the input for CreateItem.
type NewItem struct {
	Name        string  `json:"name"`
	Serial      *string `json:"serial,omitempty"`
	Brand       string  `json:"brand,omitempty"`
	Responsible string  `json:"responsible,omitempty"`
	Location    string  `json:"location,omitempty"`
	Qty         int     `json:"qty,omitempty"`
}

// Update lists the item fields to change. Nil fields are left alone.
type Update struct {
	Name           *string       `json:"name,omitempty"`
	Serial         *string       `json:"serial,omitempty"`
	Brand          *string       `json:"brand,omitempty"`
	Status         *model.Status `json:"status,omitempty"`
	Responsible    *string       `json:"responsible,omitempty"`
	Location       *string       `json:"location,omitempty"`
	Qty            *int          `json:"qty,omitempty"`
	Brigade        *int64        `json:"brigade,omitempty"`
	ServiceComment string        `json:"service_comment,omitempty"`
	Reason         string        `json:"reason,omitempty"`
}

// ListItems handles GET items, optionally filtered by a search string.
func (c *Client) ListItems(ctx context.Context, search string) ([]model.Item, error) {
	req := gateway.Request{Method: http.MethodGet, Path: "items"}
	if s := strings.TrimSpace(search); s != "" {
		req.Query = url.Values{"search": {s}}
	}

	resp, err := c.api.Do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("listing items: %w", err)
	}
	items, err := decodeItems(resp.Data)
	if err != nil {
		return nil, fmt.Errorf("listing items: %w", err)
	}
	return items, nil
}

// decodeItems accepts both {"items": [...]} and a bare array.
func decodeItems(data json.RawMessage) ([]model.Item, error) {
	if len(data) == 0 {
		return []model.Item{}, nil
	}
	if data[0] == '[' {
		var items []model.Item
		if err := json.Unmarshal(data, &items); err != nil {
			return nil, fmt.Errorf("invalid response from backend: %w", err)
		}
		return items, nil
	}
	var body struct {
		Items []model.Item `json:"items"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, fmt.Errorf("invalid response from backend: %w", err)
	}
	if body.Items == nil {
		body.Items = []model.Item{}
	}
	return body.Items, nil
}

// CreateItem handles POST items.
func (c *Client) CreateItem(ctx context.Context, in NewItem) (*model.Item, error) {
	item, err := c.itemCall(ctx, http.MethodPost, "items", in)
	if err != nil {
		return nil, fmt.Errorf("creating item: %w", err)
	}
	return item, nil
}

// UpdateItem handles PUT or PATCH items/{id}/.
func (c *Client) UpdateItem(ctx context.Context, id int64, method string, u Update) (*model.Item, error) {
	if method != http.MethodPut && method != http.MethodPatch {
		return nil, fmt.Errorf("updating item %d: unsupported method %s", id, method)
	}
	item, err := c.itemCall(ctx, method, fmt.Sprintf("items/%d/", id), u)
	if err != nil {
		return nil, fmt.Errorf("updating item %d: %w", id, err)
	}
	return item, nil
}

// Transfer hands an available item to a responsible person.
func (c *Client) Transfer(ctx context.Context, id int64, responsible, location string) (*model.Item, error) {
	status := model.StatusIssued
	u := Update{Status: &status, Responsible: &responsible}
	if location != "" {
		u.Location = &location
	}
	return c.UpdateItem(ctx, id, http.MethodPut, u)
}

// IssueToWork assigns an issued item to a brigade.
func (c *Client) IssueToWork(ctx context.Context, id, brigade int64) (*model.Item, error) {
	status := model.StatusAtWork
	return c.UpdateItem(ctx, id, http.MethodPut, Update{Status: &status, Brigade: &brigade})
}

// SendToService asks for an item to be repaired.
func (c *Client) SendToService(ctx context.Context, id int64, comment string) (*model.Item, error) {
	status := model.StatusConfirmRepair
	return c.UpdateItem(ctx, id, http.MethodPatch, Update{Status: &status, ServiceComment: comment})
}

// WriteOff retires an item.
func (c *Client) WriteOff(ctx context.Context, id int64, reason string) (*model.Item, error) {
	status := model.StatusRetired
	return c.UpdateItem(ctx, id, http.MethodPatch, Update{Status: &status, Reason: reason})
}

// ConfirmRepair handles POST items/{id}/confirm-repair/.
func (c *Client) ConfirmRepair(ctx context.Context, id int64, invoiceNumber, location string) (*model.Item, error) {
	item, err := c.itemCall(ctx, http.MethodPost, fmt.Sprintf("items/%d/confirm-repair/", id), map[string]string{
		"invoice_number": invoiceNumber,
		"location":       location,
	})
	if err != nil {
		return nil, fmt.Errorf("confirming repair of item %d: %w", id, err)
	}
	return item, nil
}

// ReturnFromService handles POST items/{id}/return-from-service/.
func (c *Client) ReturnFromService(ctx context.Context, id int64, comment string) (*model.Item, error) {
	item, err := c.itemCall(ctx, http.MethodPost, fmt.Sprintf("items/%d/return-from-service/", id), map[string]string{
		"comment": comment,
	})
	if err != nil {
		return nil, fmt.Errorf("returning item %d from service: %w", id, err)
	}
	return item, nil
}

// ConfirmTMC handles POST items/{id}/confirm-tmc/. The backend may answer
// without the item, in which case the returned item is nil.
func (c *Client) ConfirmTMC(ctx context.Context, id int64, accept bool) (*model.Item, error) {
	action := "reject"
	if accept {
		action = "accept"
	}
	item, err := c.itemCall(ctx, http.MethodPost, fmt.Sprintf("items/%d/confirm-tmc/", id), map[string]string{
		"action": action,
	})
	if err != nil {
		return nil, fmt.Errorf("confirming item %d (%s): %w", id, action, err)
	}
	return item, nil
}

// CancelWriteOff handles POST items/{id}/cancel-write-off/.
func (c *Client) CancelWriteOff(ctx context.Context, id int64) (*model.Item, error) {
	item, err := c.itemCall(ctx, http.MethodPost, fmt.Sprintf("items/%d/cancel-write-off/", id), nil)
	if err != nil {
		return nil, fmt.Errorf("cancelling write-off of item %d: %w", id, err)
	}
	return item, nil
}

// StatusCounters handles GET status-counters/.
func (c *Client) StatusCounters(ctx context.Context) (model.StatusCounters, error) {
	var counters model.StatusCounters
	resp, err := c.api.Do(ctx, gateway.Request{Method: http.MethodGet, Path: "status-counters/"})
	if err != nil {
		return counters, fmt.Errorf("getting status counters: %w", err)
	}
	if err := resp.Decode(&counters); err != nil {
		return counters, fmt.Errorf("getting status counters: %w", err)
	}
	return counters, nil
}

// itemCall sends a request whose response is an item or nothing.
func (c *Client) itemCall(ctx context.Context, method, path string, body any) (*model.Item, error) {
	resp, err := c.api.Do(ctx, gateway.Request{Method: method, Path: path, Body: body})
	if err != nil {
		return nil, err
	}
	return decodeItem(resp.Data)
}

// decodeItem returns nil when the payload does not describe an item.
func decodeItem(data json.RawMessage) (*model.Item, error) {
	if len(data) == 0 || data[0] != '{' {
		return nil, nil
	}
	var head struct {
		ID     int64           `json:"id"`
		Status json.RawMessage `json:"status"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("invalid response from backend: %w", err)
	}
	if head.ID == 0 || len(head.Status) == 0 {
		return nil, nil
	}

	var item model.Item
	if err := json.Unmarshal(data, &item); err != nil {
		return nil, fmt.Errorf("invalid response from backend: %w", err)
	}
	return &item, nil
}
