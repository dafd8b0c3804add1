package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AcalephStorage/etcdv2/etcdtest"
	"github.com/AcalephStorage/etcdv2/response"
)

func TestWaitEmptyBodyIsWaitFault(t *testing.T) {
	server, requests := newServer(200, ``)
	defer server.Close()
	c := newStaticClient(t, server.URL)

	_, err := c.Wait(context.Background(), "/watched", WaitOptions{Recursive: true, WaitIndex: 7})
	assert.Equal(t, ErrWaitFault, err)

	got := (*requests)[0]
	assert.Equal(t, "/v2/keys/watched", got.Path)
	assert.Equal(t, "true", got.Query.Get("wait"))
	assert.Equal(t, "true", got.Query.Get("recursive"))
	assert.Equal(t, "7", got.Query.Get("waitIndex"))
}

func TestWaitTimeoutIsWaitFault(t *testing.T) {
	c, _ := newTestClient(t, etcdtest.WithWaitTimeout(50*time.Millisecond))

	_, err := c.Wait(context.Background(), "/quiet", WaitOptions{})
	assert.Equal(t, ErrWaitFault, err)
}

func TestWaitBrokenChunkedBodyIsWaitFault(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, buf, err := w.(http.Hijacker).Hijack()
		if err != nil {
			return
		}
		defer conn.Close()
		buf.WriteString("HTTP/1.1 200 OK\r\n" +
			"Content-Type: application/json\r\n" +
			"Transfer-Encoding: chunked\r\n\r\n" +
			"40\r\n{\"action\":\"set\"")
		buf.Flush()
	}))
	defer server.Close()
	c := newStaticClient(t, server.URL)

	_, err := c.Wait(context.Background(), "/watched", WaitOptions{})
	assert.Equal(t, ErrWaitFault, err)
}

func TestWaitMalformedBodyIsNotWaitFault(t *testing.T) {
	server, _ := newServer(200, `not json`)
	defer server.Close()
	c := newStaticClient(t, server.URL)

	_, err := c.Wait(context.Background(), "/watched", WaitOptions{})
	assert.IsType(t, &response.MalformedResponseError{}, err)
}

func TestWaitRelativePath(t *testing.T) {
	c := newStaticClient(t, deadURL())

	_, err := c.Wait(context.Background(), "watched", WaitOptions{})
	assert.True(t, errors.Is(err, ErrRelativePath))
}

func TestWaitFromIndex(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	set, err := c.Keys().Set(ctx, "/w", "a", 0)
	require.NoError(t, err)
	stat, _ := set.Stat()
	_, err = c.Keys().Set(ctx, "/w", "b", 0)
	require.NoError(t, err)

	node, err := c.Wait(ctx, "/w", WaitOptions{WaitIndex: stat.ModifiedIndex})
	require.NoError(t, err)

	value, _ := node.Value()
	assert.Equal(t, "a", value)
}

func TestWaitForChange(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	type result struct {
		node *response.Node
		err  error
	}
	done := make(chan result, 1)
	go func() {
		node, err := c.Wait(ctx, "/dir", WaitOptions{Recursive: true})
		done <- result{node, err}
	}()

	require.Eventually(t, func() bool {
		stats, err := c.Stats().Store(ctx)
		return err == nil && stats["watchers"] == 1
	}, 5*time.Second, 10*time.Millisecond)

	_, err := c.Keys().Set(ctx, "/dir/child", "v", 0)
	require.NoError(t, err)

	select {
	case r := <-done:
		require.NoError(t, r.err)
		assert.Equal(t, "/dir/child", r.node.Key())
		value, _ := r.node.Value()
		assert.Equal(t, "v", value)
	case <-time.After(5 * time.Second):
		t.Fatal("wait did not return")
	}
}
