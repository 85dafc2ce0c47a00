package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"habitpoints/internal/models"
)

const maxErrorBody = 1024

// Client talks to a PostgREST style backend holding the children,
// reward_punish_items and point_records tables.
type Client struct {
	baseURL    *url.URL
	apiKey     string
	httpClient *http.Client
}

// NewClient validates baseURL and returns a client whose requests time out
// after timeout.
func NewClient(baseURL, apiKey string, timeout time.Duration) (*Client, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid remote URL %q: %w", baseURL, err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("invalid remote URL %q: scheme must be http or https", baseURL)
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: base,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// Ping checks that the backend is reachable and answers queries.
func (c *Client) Ping(ctx context.Context) error {
	q := url.Values{}
	q.Set("select", "id")
	q.Set("limit", "1")
	return c.do(ctx, "ping", http.MethodGet, TableChildren, q, nil, "", nil)
}

// ListChildren returns every child, newest first.
func (c *Client) ListChildren(ctx context.Context) ([]models.Child, error) {
	var rows []ChildRow
	if err := c.do(ctx, "list", http.MethodGet, TableChildren, listQuery(), nil, "", &rows); err != nil {
		return nil, err
	}
	children := make([]models.Child, 0, len(rows))
	for _, row := range rows {
		children = append(children, ToChild(row))
	}
	return children, nil
}

// ListItems returns every catalog item, newest first. A row with an unknown
// type fails the whole call.
func (c *Client) ListItems(ctx context.Context) ([]models.RewardPunishItem, error) {
	var rows []ItemRow
	if err := c.do(ctx, "list", http.MethodGet, TableItems, listQuery(), nil, "", &rows); err != nil {
		return nil, err
	}
	items := make([]models.RewardPunishItem, 0, len(rows))
	for _, row := range rows {
		item, err := ToItem(row)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

// ListRecords returns every point record, newest first.
func (c *Client) ListRecords(ctx context.Context) ([]models.PointRecord, error) {
	var rows []RecordRow
	if err := c.do(ctx, "list", http.MethodGet, TableRecords, listQuery(), nil, "", &rows); err != nil {
		return nil, err
	}
	records := make([]models.PointRecord, 0, len(rows))
	for _, row := range rows {
		rec, err := ToRecord(row)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

func (c *Client) InsertChild(ctx context.Context, child models.Child) error {
	return c.insert(ctx, TableChildren, []ChildRow{FromChild(child)})
}

func (c *Client) UpdateChild(ctx context.Context, child models.Child) error {
	return c.do(ctx, "update", http.MethodPatch, TableChildren, idFilter("id", child.ID), FromChild(child), "return=representation", nil)
}

// DeleteChild removes the child's records and then the child.
func (c *Client) DeleteChild(ctx context.Context, id string) error {
	if err := c.do(ctx, "delete", http.MethodDelete, TableRecords, idFilter("child_id", id), nil, "", nil); err != nil {
		return err
	}
	return c.do(ctx, "delete", http.MethodDelete, TableChildren, idFilter("id", id), nil, "", nil)
}

func (c *Client) InsertItem(ctx context.Context, item models.RewardPunishItem) error {
	return c.insert(ctx, TableItems, []ItemRow{FromItem(item)})
}

func (c *Client) DeleteItem(ctx context.Context, id string) error {
	return c.do(ctx, "delete", http.MethodDelete, TableItems, idFilter("id", id), nil, "", nil)
}

func (c *Client) InsertRecord(ctx context.Context, rec models.PointRecord) error {
	return c.insert(ctx, TableRecords, []RecordRow{FromRecord(rec)})
}

func (c *Client) DeleteRecord(ctx context.Context, id string) error {
	return c.do(ctx, "delete", http.MethodDelete, TableRecords, idFilter("id", id), nil, "", nil)
}

// UpsertChildren writes children, replacing rows with the same id.
func (c *Client) UpsertChildren(ctx context.Context, children []models.Child) error {
	if len(children) == 0 {
		return nil
	}
	rows := make([]ChildRow, 0, len(children))
	for _, child := range children {
		rows = append(rows, FromChild(child))
	}
	return c.upsert(ctx, TableChildren, rows)
}

// UpsertItems writes catalog items, replacing rows with the same id.
func (c *Client) UpsertItems(ctx context.Context, items []models.RewardPunishItem) error {
	if len(items) == 0 {
		return nil
	}
	rows := make([]ItemRow, 0, len(items))
	for _, item := range items {
		rows = append(rows, FromItem(item))
	}
	return c.upsert(ctx, TableItems, rows)
}

// UpsertRecords writes point records, replacing rows with the same id.
func (c *Client) UpsertRecords(ctx context.Context, records []models.PointRecord) error {
	if len(records) == 0 {
		return nil
	}
	rows := make([]RecordRow, 0, len(records))
	for _, rec := range records {
		rows = append(rows, FromRecord(rec))
	}
	return c.upsert(ctx, TableRecords, rows)
}

func (c *Client) insert(ctx context.Context, table string, rows any) error {
	return c.do(ctx, "insert", http.MethodPost, table, nil, rows, "return=representation", nil)
}

func (c *Client) upsert(ctx context.Context, table string, rows any) error {
	return c.do(ctx, "upsert", http.MethodPost, table, nil, rows, "resolution=merge-duplicates,return=minimal", nil)
}

func listQuery() url.Values {
	q := url.Values{}
	q.Set("select", "*")
	q.Set("order", "created_at.desc")
	return q
}

func idFilter(column, id string) url.Values {
	q := url.Values{}
	q.Set(column, "eq."+id)
	return q
}

func (c *Client) do(ctx context.Context, op, method, table string, query url.Values, body any, prefer string, out any) error {
	endpoint := c.baseURL.JoinPath("rest", "v1", table)
	if query != nil {
		endpoint.RawQuery = query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode %s %s body: %w", op, table, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), reader)
	if err != nil {
		return fmt.Errorf("failed to create %s %s request: %w", op, table, err)
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if prefer != "" {
		req.Header.Set("Prefer", prefer)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("remote %s %s failed: %w", op, table, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &Error{Op: op, Table: table, StatusCode: resp.StatusCode, Body: string(data)}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s %s response: %w", op, table, err)
	}
	return nil
}
