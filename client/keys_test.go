package client

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AcalephStorage/etcdv2/response"
)

func assertErrorCode(t *testing.T, node *response.Node, code int) {
	t.Helper()
	require.True(t, node.IsError(), "expected error node, got %s", node)
	apiErr, err := node.APIError()
	require.NoError(t, err)
	assert.Equal(t, code, apiErr.Code)
}

func assertValue(t *testing.T, node *response.Node, expected string) {
	t.Helper()
	require.False(t, node.IsError(), "unexpected error node %s", node)
	value, ok := node.Value()
	require.True(t, ok)
	assert.Equal(t, expected, value)
}

func TestKeysSetAndGet(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	node, err := c.Keys().Set(ctx, "/a/b", "1", 0)
	require.NoError(t, err)
	assertValue(t, node, "1")
	_, hasPrev := node.Previous()
	assert.False(t, hasPrev)

	node, err = c.Keys().Set(ctx, "/a/b", "2", 0)
	require.NoError(t, err)
	prev, hasPrev := node.Previous()
	require.True(t, hasPrev)
	assertValue(t, prev, "1")

	node, err = c.Keys().Get(ctx, "/a/b", GetOptions{})
	require.NoError(t, err)
	assertValue(t, node, "2")
	assert.Equal(t, "b", node.Name())
}

func TestKeysGetMissing(t *testing.T) {
	c, _ := newTestClient(t)

	node, err := c.Keys().Get(context.Background(), "/missing", GetOptions{})
	require.NoError(t, err)
	assertErrorCode(t, node, response.KeyNotFound)
	assert.True(t, node.IsDeleted())
}

func TestKeysRelativePath(t *testing.T) {
	c := newStaticClient(t, deadURL())

	_, err := c.Keys().Set(context.Background(), "a", "1", 0)
	assert.True(t, errors.Is(err, ErrRelativePath))
	assert.True(t, strings.Contains(err.Error(), "[a]"))
}

func TestKeysSetWithTTL(t *testing.T) {
	c, _ := newTestClient(t)

	node, err := c.Keys().Set(context.Background(), "/ttl", "1", 1500*time.Millisecond)
	require.NoError(t, err)

	stat, err := node.Stat()
	require.NoError(t, err)
	require.NotNil(t, stat.TTL)
	require.NotNil(t, stat.Expiration)
	assert.True(t, stat.Expiration.After(time.Now()))
}

func TestKeysCreateOnlyAndUpdateOnly(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	node, err := c.Keys().UpdateOnly(ctx, "/k", "1", 0)
	require.NoError(t, err)
	assertErrorCode(t, node, response.KeyNotFound)

	node, err = c.Keys().CreateOnly(ctx, "/k", "1", 0)
	require.NoError(t, err)
	assertValue(t, node, "1")

	node, err = c.Keys().CreateOnly(ctx, "/k", "2", 0)
	require.NoError(t, err)
	assertErrorCode(t, node, response.NodeExist)

	node, err = c.Keys().UpdateOnly(ctx, "/k", "2", 0)
	require.NoError(t, err)
	assertValue(t, node, "2")
}

func TestKeysCompareAndSwap(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	node, err := c.Keys().Set(ctx, "/k", "1", 0)
	require.NoError(t, err)
	stat, _ := node.Stat()

	node, err = c.Keys().UpdateIfValue(ctx, "/k", "2", "wrong", 0)
	require.NoError(t, err)
	assertErrorCode(t, node, response.TestFailed)

	node, err = c.Keys().UpdateIfValue(ctx, "/k", "2", "1", 0)
	require.NoError(t, err)
	assertValue(t, node, "2")

	node, err = c.Keys().UpdateIfIndex(ctx, "/k", "3", stat.ModifiedIndex, 0)
	require.NoError(t, err)
	assertErrorCode(t, node, response.TestFailed)

	current, _ := c.Keys().Get(ctx, "/k", GetOptions{})
	stat, _ = current.Stat()
	node, err = c.Keys().UpdateIfIndex(ctx, "/k", "3", stat.ModifiedIndex, 0)
	require.NoError(t, err)
	assertValue(t, node, "3")

	exists := false
	node, err = c.Keys().CompareAndSwap(ctx, "/other", "x", CASOptions{PrevExists: &exists})
	require.NoError(t, err)
	assertValue(t, node, "x")
}

func TestKeysCompareAndSwapRequiresCondition(t *testing.T) {
	c := newStaticClient(t, deadURL())

	_, err := c.Keys().CompareAndSwap(context.Background(), "/k", "v", CASOptions{})
	assert.Equal(t, ErrComparisonRequired, err)
}

func TestKeysRefreshTTL(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	node, err := c.Keys().RefreshTTL(ctx, "/k", time.Minute)
	require.NoError(t, err)
	assertErrorCode(t, node, response.KeyNotFound)

	_, err = c.Keys().Set(ctx, "/k", "v", time.Second)
	require.NoError(t, err)

	node, err = c.Keys().RefreshTTL(ctx, "/k", time.Minute)
	require.NoError(t, err)
	assertValue(t, node, "v")
	stat, _ := node.Stat()
	require.NotNil(t, stat.Expiration)
	assert.True(t, stat.Expiration.After(time.Now().Add(30*time.Second)))
}

func TestKeysCreateInOrder(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	first, err := c.Keys().CreateInOrder(ctx, "/queue", "a", 0)
	require.NoError(t, err)
	second, err := c.Keys().CreateInOrder(ctx, "/queue", "b", 0)
	require.NoError(t, err)

	assertValue(t, first, "a")
	assertValue(t, second, "b")
	assert.True(t, strings.HasPrefix(first.Key(), "/queue/"))
	assert.True(t, first.Key() < second.Key())
}

func TestKeysDelete(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	_, err := c.Keys().Set(ctx, "/k", "v", 0)
	require.NoError(t, err)

	node, err := c.Keys().Delete(ctx, "/k")
	require.NoError(t, err)
	assert.True(t, node.IsDeleted())
	_, hasValue := node.Value()
	assert.False(t, hasValue)
	prev, ok := node.Previous()
	require.True(t, ok)
	assertValue(t, prev, "v")

	node, err = c.Keys().Delete(ctx, "/k")
	require.NoError(t, err)
	assertErrorCode(t, node, response.KeyNotFound)
}

func TestKeysConditionalDelete(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	set, err := c.Keys().Set(ctx, "/k", "v", 0)
	require.NoError(t, err)
	stat, _ := set.Stat()

	node, err := c.Keys().DeleteIfValue(ctx, "/k", "other")
	require.NoError(t, err)
	assertErrorCode(t, node, response.TestFailed)

	node, err = c.Keys().DeleteIfIndex(ctx, "/k", stat.ModifiedIndex+100)
	require.NoError(t, err)
	assertErrorCode(t, node, response.TestFailed)

	node, err = c.Keys().DeleteIfIndex(ctx, "/k", stat.ModifiedIndex)
	require.NoError(t, err)
	assert.Equal(t, response.KindDeleted, node.Kind())
}

func TestKeysConditionalDeleteRequest(t *testing.T) {
	server, requests := newServer(200, `{"action":"compareAndDelete","node":{"key":"/k"}}`)
	defer server.Close()
	c := newStaticClient(t, server.URL)

	_, err := c.Keys().DeleteIfValue(context.Background(), "/k", "v")
	require.NoError(t, err)

	got := (*requests)[0]
	assert.Equal(t, "DELETE", got.Method)
	assert.Equal(t, "v", got.Query.Get("prevValue"))
	assert.Equal(t, "false", got.Query.Get("dir"))
}
