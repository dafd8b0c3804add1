package shell

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AcalephStorage/etcdv2/client"
	"github.com/AcalephStorage/etcdv2/etcdtest"
	"github.com/AcalephStorage/etcdv2/response"
)

func newContext(t *testing.T, cwd string) *Context {
	s := etcdtest.Start()
	t.Cleanup(s.Close)

	c, err := client.New(context.Background(), client.NewConfig(s.URL))
	require.NoError(t, err)
	return New(c, cwd)
}

func TestResolve(t *testing.T) {
	sh := New(nil, "app/")

	assert.Equal(t, "/app", sh.Cwd())
	assert.Equal(t, "/app", sh.Resolve(""))
	assert.Equal(t, "/app/db", sh.Resolve("db"))
	assert.Equal(t, "/other", sh.Resolve("/other/"))
	assert.Equal(t, "/other", sh.Resolve("../other"))
}

func TestNewDefaultsToRoot(t *testing.T) {
	assert.Equal(t, "/", New(nil, "").Cwd())
}

func TestSetGetRm(t *testing.T) {
	sh := newContext(t, "/app")
	ctx := context.Background()

	written, err := sh.Set(ctx, "name", "demo")
	require.NoError(t, err)
	assert.Equal(t, "/app/name=demo", written)

	value, err := sh.Get(ctx, "name")
	require.NoError(t, err)
	assert.Equal(t, "demo", value)

	removed, err := sh.Rm(ctx, "/app/name")
	require.NoError(t, err)
	assert.Equal(t, "/app/name deleted", removed)

	_, err = sh.Get(ctx, "name")
	apiErr := &response.APIError{}
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, response.KeyNotFound, apiErr.Code)

	_, err = sh.Rm(ctx, "")
	assert.Error(t, err)
}

func TestMkdirCdLs(t *testing.T) {
	sh := newContext(t, "/")
	ctx := context.Background()

	key, err := sh.Mkdir(ctx, "app")
	require.NoError(t, err)
	assert.Equal(t, "/app", key)

	cwd, err := sh.Cd(ctx, "app")
	require.NoError(t, err)
	assert.Equal(t, "/app", cwd)

	_, err = sh.Set(ctx, "b", "2")
	require.NoError(t, err)
	_, err = sh.Set(ctx, "a", "1")
	require.NoError(t, err)
	_, err = sh.Mkdir(ctx, "sub")
	require.NoError(t, err)

	entries, err := sh.Ls(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"a=1", "b=2", "sub/"}, entries)

	node, err := sh.Node(ctx)
	require.NoError(t, err)
	assert.True(t, node.IsDirectory())
	assert.Equal(t, "/app", node.Key())
}

func TestCdErrors(t *testing.T) {
	sh := newContext(t, "/")
	ctx := context.Background()

	_, err := sh.Set(ctx, "/file", "v")
	require.NoError(t, err)

	_, err = sh.Cd(ctx, "/file")
	assert.IsType(t, &NotDirectoryError{}, err)

	_, err = sh.Cd(ctx, "/missing")
	assert.IsType(t, &response.APIError{}, err)
	assert.Equal(t, "/", sh.Cwd())
}

func TestGetDirectoryHasNoValue(t *testing.T) {
	sh := newContext(t, "/")
	ctx := context.Background()

	_, err := sh.Mkdir(ctx, "/dir")
	require.NoError(t, err)

	_, err = sh.Get(ctx, "/dir")
	assert.IsType(t, &response.WrongKindError{}, err)
}
