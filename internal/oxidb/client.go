// Package oxidb provides a TCP client for oxidb-server.
//
// Protocol: each message is [4-byte little-endian length][JSON payload].
// Server responds with {"ok": true, "data": ...} or {"ok": false, "error": "..."}.
//
// Every call takes a context; its deadline, when set, bounds the round trip
// on the underlying connection.
package oxidb

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"
)

// maxFrame caps a single response payload.
const maxFrame = 64 << 20

// Client is a TCP client for oxidb-server. Thread-safe via mutex.
type Client struct {
	conn net.Conn
	mu   sync.Mutex
}

// Connect creates a new client connected to oxidb-server.
func Connect(host string, port int, timeout time.Duration) (*Client, error) {
	addr := net.JoinHostPort(host, fmt.Sprint(port))
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, fmt.Errorf("oxidb: connect to %s: %w", addr, err)
	}
	return &Client{conn: conn}, nil
}

// Close closes the TCP connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// ------------------------------------------------------------------
// Low-level protocol
// ------------------------------------------------------------------

func (c *Client) sendRaw(data []byte) error {
	frame := make([]byte, 4+len(data))
	binary.LittleEndian.PutUint32(frame, uint32(len(data)))
	copy(frame[4:], data)
	_, err := c.conn.Write(frame)
	return err
}

func (c *Client) recvRaw() ([]byte, error) {
	lenBuf := make([]byte, 4)
	if _, err := io.ReadFull(c.conn, lenBuf); err != nil {
		return nil, fmt.Errorf("oxidb: read length: %w", err)
	}
	length := binary.LittleEndian.Uint32(lenBuf)
	if length > maxFrame {
		return nil, fmt.Errorf("oxidb: response frame of %d bytes exceeds limit", length)
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(c.conn, payload); err != nil {
		return nil, fmt.Errorf("oxidb: read payload: %w", err)
	}
	return payload, nil
}

func (c *Client) request(ctx context.Context, payload map[string]any) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if dl, ok := ctx.Deadline(); ok {
		_ = c.conn.SetDeadline(dl)
		defer c.conn.SetDeadline(time.Time{})
	}

	jsonBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("oxidb: marshal request: %w", err)
	}
	if err := c.sendRaw(jsonBytes); err != nil {
		return nil, fmt.Errorf("oxidb: send: %w", err)
	}
	respBytes, err := c.recvRaw()
	if err != nil {
		return nil, err
	}
	var resp map[string]any
	if err := json.Unmarshal(respBytes, &resp); err != nil {
		return nil, fmt.Errorf("oxidb: unmarshal response: %w", err)
	}
	return resp, nil
}

func (c *Client) checked(ctx context.Context, payload map[string]any) (any, error) {
	resp, err := c.request(ctx, payload)
	if err != nil {
		return nil, err
	}
	ok, _ := resp["ok"].(bool)
	if !ok {
		errMsg, _ := resp["error"].(string)
		if errMsg == "" {
			errMsg = "unknown error"
		}
		if strings.Contains(strings.ToLower(errMsg), "conflict") {
			return nil, &TransactionConflictError{Msg: errMsg}
		}
		return nil, &Error{Msg: errMsg}
	}
	return resp["data"], nil
}

// Ping sends a ping to the server. Returns "pong".
func (c *Client) Ping(ctx context.Context) (string, error) {
	data, err := c.checked(ctx, map[string]any{"cmd": "ping"})
	if err != nil {
		return "", err
	}
	s, _ := data.(string)
	return s, nil
}

// ------------------------------------------------------------------
// CRUD
// ------------------------------------------------------------------

// Insert inserts a single document. Returns the raw response data.
func (c *Client) Insert(ctx context.Context, collection string, doc map[string]any) (map[string]any, error) {
	data, err := c.checked(ctx, map[string]any{"cmd": "insert", "collection": collection, "doc": doc})
	if err != nil {
		return nil, err
	}
	return asResult(data), nil
}

// FindOptions holds optional parameters for Find.
type FindOptions struct {
	Sort  map[string]any
	Skip  *int
	Limit *int
}

// Find returns documents matching a query.
func (c *Client) Find(ctx context.Context, collection string, query map[string]any, opts *FindOptions) ([]map[string]any, error) {
	payload := map[string]any{"cmd": "find", "collection": collection, "query": query}
	if opts != nil {
		if opts.Sort != nil {
			payload["sort"] = opts.Sort
		}
		if opts.Skip != nil {
			payload["skip"] = *opts.Skip
		}
		if opts.Limit != nil {
			payload["limit"] = *opts.Limit
		}
	}
	data, err := c.checked(ctx, payload)
	if err != nil {
		return nil, err
	}
	return toMapSlice(data), nil
}

// FindOne returns a single document matching a query, or nil.
func (c *Client) FindOne(ctx context.Context, collection string, query map[string]any) (map[string]any, error) {
	data, err := c.checked(ctx, map[string]any{"cmd": "find_one", "collection": collection, "query": query})
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, nil
	}
	m, _ := data.(map[string]any)
	return m, nil
}

// UpdateOne updates at most one document matching a query.
func (c *Client) UpdateOne(ctx context.Context, collection string, query, update map[string]any) (map[string]any, error) {
	data, err := c.checked(ctx, map[string]any{
		"cmd": "update_one", "collection": collection,
		"query": query, "update": update,
	})
	if err != nil {
		return nil, err
	}
	return asResult(data), nil
}

// Delete deletes documents matching a query.
func (c *Client) Delete(ctx context.Context, collection string, query map[string]any) (map[string]any, error) {
	data, err := c.checked(ctx, map[string]any{
		"cmd": "delete", "collection": collection, "query": query,
	})
	if err != nil {
		return nil, err
	}
	return asResult(data), nil
}

// DeleteOne deletes at most one document matching a query.
func (c *Client) DeleteOne(ctx context.Context, collection string, query map[string]any) (map[string]any, error) {
	data, err := c.checked(ctx, map[string]any{
		"cmd": "delete_one", "collection": collection, "query": query,
	})
	if err != nil {
		return nil, err
	}
	return asResult(data), nil
}

// ------------------------------------------------------------------
// Indexes
// ------------------------------------------------------------------

// CreateIndex creates a non-unique index on a field.
func (c *Client) CreateIndex(ctx context.Context, collection, field string) error {
	_, err := c.checked(ctx, map[string]any{"cmd": "create_index", "collection": collection, "field": field})
	return err
}

// CreateUniqueIndex creates a unique index on a field.
func (c *Client) CreateUniqueIndex(ctx context.Context, collection, field string) error {
	_, err := c.checked(ctx, map[string]any{"cmd": "create_unique_index", "collection": collection, "field": field})
	return err
}

// CreateCompositeIndex creates a composite index on multiple fields.
func (c *Client) CreateCompositeIndex(ctx context.Context, collection string, fields []string) error {
	_, err := c.checked(ctx, map[string]any{"cmd": "create_composite_index", "collection": collection, "fields": fields})
	return err
}

// ------------------------------------------------------------------
// Blob storage
// ------------------------------------------------------------------

// CreateBucket creates a blob storage bucket.
func (c *Client) CreateBucket(ctx context.Context, bucket string) error {
	_, err := c.checked(ctx, map[string]any{"cmd": "create_bucket", "bucket": bucket})
	return err
}

// PutObject uploads a blob object. Data is base64-encoded automatically.
func (c *Client) PutObject(ctx context.Context, bucket, key string, data []byte, contentType string, metadata map[string]string) (map[string]any, error) {
	payload := map[string]any{
		"cmd":          "put_object",
		"bucket":       bucket,
		"key":          key,
		"data":         base64.StdEncoding.EncodeToString(data),
		"content_type": contentType,
	}
	if contentType == "" {
		payload["content_type"] = "application/octet-stream"
	}
	if len(metadata) > 0 {
		payload["metadata"] = metadata
	}
	result, err := c.checked(ctx, payload)
	if err != nil {
		return nil, err
	}
	m, _ := result.(map[string]any)
	return m, nil
}

// GetObject downloads a blob object. Returns (data, metadata).
func (c *Client) GetObject(ctx context.Context, bucket, key string) ([]byte, map[string]any, error) {
	result, err := c.checked(ctx, map[string]any{"cmd": "get_object", "bucket": bucket, "key": key})
	if err != nil {
		return nil, nil, err
	}
	m, _ := result.(map[string]any)
	content, _ := m["content"].(string)
	decoded, err := base64.StdEncoding.DecodeString(content)
	if err != nil {
		return nil, nil, fmt.Errorf("oxidb: decode base64: %w", err)
	}
	meta, _ := m["metadata"].(map[string]any)
	return decoded, meta, nil
}

// HeadObject gets blob object metadata without downloading content.
func (c *Client) HeadObject(ctx context.Context, bucket, key string) (map[string]any, error) {
	data, err := c.checked(ctx, map[string]any{"cmd": "head_object", "bucket": bucket, "key": key})
	if err != nil {
		return nil, err
	}
	m, _ := data.(map[string]any)
	return m, nil
}

// DeleteObject deletes a blob object.
func (c *Client) DeleteObject(ctx context.Context, bucket, key string) error {
	_, err := c.checked(ctx, map[string]any{"cmd": "delete_object", "bucket": bucket, "key": key})
	return err
}

// ListObjects lists objects in a bucket whose key starts with prefix.
// An empty prefix lists the whole bucket.
func (c *Client) ListObjects(ctx context.Context, bucket, prefix string) ([]map[string]any, error) {
	payload := map[string]any{"cmd": "list_objects", "bucket": bucket}
	if prefix != "" {
		payload["prefix"] = prefix
	}
	data, err := c.checked(ctx, payload)
	if err != nil {
		return nil, err
	}
	return toMapSlice(data), nil
}

// ------------------------------------------------------------------
// Helpers
// ------------------------------------------------------------------

// asResult normalises write responses. Inside a transaction the server
// answers with a bare status string instead of a result object.
func asResult(data any) map[string]any {
	if m, ok := data.(map[string]any); ok {
		return m
	}
	return map[string]any{"status": data}
}

func toMapSlice(data any) []map[string]any {
	arr, _ := data.([]any)
	result := make([]map[string]any, 0, len(arr))
	for _, v := range arr {
		if m, ok := v.(map[string]any); ok {
			result = append(result, m)
		}
	}
	return result
}

// Count reads an integer counter such as "modified" or "deleted" from a
// write result.
func Count(result map[string]any, field string) int {
	switch v := result[field].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return 0
}
