package oxidb_test

import (
	"context"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceotind/sharp-form-backend/internal/oxidb"
	"github.com/ceotind/sharp-form-backend/internal/oxidb/oxidbtest"
)

func TestPing(t *testing.T) {
	s := oxidbtest.Start(t, func(req map[string]any) map[string]any { return oxidbtest.OK("pong") })
	c := s.Connect(t)

	pong, err := c.Ping(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "pong", pong)
	assert.Equal(t, "ping", (<-s.Requests)["cmd"])
}

func TestInsertAndFind(t *testing.T) {
	s := oxidbtest.Start(t, func(req map[string]any) map[string]any {
		switch req["cmd"] {
		case "insert":
			return oxidbtest.OK(map[string]any{"id": float64(7)})
		case "find":
			return oxidbtest.OK([]any{map[string]any{"_id": float64(7), "name": "Alice"}, "junk"})
		}
		return oxidbtest.Fail("unexpected")
	})
	c := s.Connect(t)
	ctx := context.Background()

	res, err := c.Insert(ctx, "forms", map[string]any{"name": "Alice"})
	require.NoError(t, err)
	assert.Equal(t, float64(7), res["id"])
	insertReq := <-s.Requests
	assert.Equal(t, "forms", insertReq["collection"])

	limit := 5
	docs, err := c.Find(ctx, "forms", map[string]any{"name": "Alice"}, &oxidb.FindOptions{
		Sort:  map[string]any{"createdAtMs": -1},
		Limit: &limit,
	})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "Alice", docs[0]["name"])

	findReq := <-s.Requests
	assert.Equal(t, float64(5), findReq["limit"])
	assert.Equal(t, map[string]any{"createdAtMs": float64(-1)}, findReq["sort"])
}

func TestServerErrorsAreClassified(t *testing.T) {
	msgs := []string{"object not found", "duplicate key for unique index email", "write conflict"}
	i := 0
	s := oxidbtest.Start(t, func(req map[string]any) map[string]any {
		m := msgs[i]
		i++
		return oxidbtest.Fail(m)
	})
	c := s.Connect(t)
	ctx := context.Background()

	_, err := c.HeadObject(ctx, "b", "k")
	require.Error(t, err)
	assert.True(t, oxidb.IsNotFound(err))
	assert.False(t, oxidb.IsDuplicate(err))

	_, err = c.Insert(ctx, "users", map[string]any{"email": "a@x.com"})
	require.Error(t, err)
	assert.True(t, oxidb.IsDuplicate(err))

	_, err = c.UpdateOne(ctx, "forms", map[string]any{}, map[string]any{})
	var conflict *oxidb.TransactionConflictError
	assert.ErrorAs(t, err, &conflict)
}

func TestBlobRoundTrip(t *testing.T) {
	var stored string
	s := oxidbtest.Start(t, func(req map[string]any) map[string]any {
		switch req["cmd"] {
		case "put_object":
			stored, _ = req["data"].(string)
			return oxidbtest.OK(map[string]any{"size": float64(5)})
		case "get_object":
			return oxidbtest.OK(map[string]any{"content": stored, "metadata": map[string]any{"originalName": "a.txt"}})
		case "list_objects":
			return oxidbtest.OK([]any{map[string]any{"key": "uploads/u1/a.txt", "size": float64(5)}})
		}
		return oxidbtest.OK(nil)
	})
	c := s.Connect(t)
	ctx := context.Background()

	_, err := c.PutObject(ctx, "bucket", "uploads/u1/a.txt", []byte("hello"), "", map[string]string{"originalName": "a.txt"})
	require.NoError(t, err)
	putReq := <-s.Requests
	assert.Equal(t, "application/octet-stream", putReq["content_type"])
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("hello")), putReq["data"])

	data, meta, err := c.GetObject(ctx, "bucket", "uploads/u1/a.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
	assert.Equal(t, "a.txt", meta["originalName"])
	<-s.Requests

	objs, err := c.ListObjects(ctx, "bucket", "uploads/u1/")
	require.NoError(t, err)
	require.Len(t, objs, 1)
	assert.Equal(t, "uploads/u1/", (<-s.Requests)["prefix"])
}

func TestCanceledContextSkipsRoundTrip(t *testing.T) {
	s := oxidbtest.Start(t, func(req map[string]any) map[string]any { return oxidbtest.OK("pong") })
	c := s.Connect(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Ping(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, s.Requests)
}

func TestCount(t *testing.T) {
	assert.Equal(t, 2, oxidb.Count(map[string]any{"modified": float64(2)}, "modified"))
	assert.Equal(t, 0, oxidb.Count(map[string]any{"status": "buffered"}, "modified"))
}
