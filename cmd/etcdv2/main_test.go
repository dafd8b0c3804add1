package main

import (
	"bytes"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AcalephStorage/etcdv2/etcdtest"
)

func TestGetEnv(t *testing.T) {
	// test using default
	defVal := "sample"
	actVal := getEnv("test", defVal)
	assert.Equal(t, defVal, actVal)

	// test getting value from OS
	osVal := "changed"
	os.Setenv("test", osVal)
	defer os.Unsetenv("test")
	actVal = getEnv("test", defVal)
	assert.Equal(t, osVal, actVal)
}

// run executes the cli against server and returns what it printed.
func run(t *testing.T, server *etcdtest.Server, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app := newApp()
	app.Writer = &out

	argv := append([]string{"etcdv2", "--endpoint", server.URL}, args...)
	err := app.Run(argv)
	return out.String(), err
}

func TestSetAndGet(t *testing.T) {
	s := etcdtest.Start()
	defer s.Close()

	out, err := run(t, s, "set", "/app/name", "demo")
	require.NoError(t, err)
	assert.Equal(t, "demo\n", out)

	out, err = run(t, s, "get", "/app/name")
	require.NoError(t, err)
	assert.Equal(t, "demo\n", out)

	_, err = run(t, s, "get", "/app/missing")
	assert.Error(t, err)
}

func TestMissingArgs(t *testing.T) {
	s := etcdtest.Start()
	defer s.Close()

	_, err := run(t, s, "set", "/only-key")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires 2 argument(s)")
}

func TestMkUpdateRm(t *testing.T) {
	s := etcdtest.Start()
	defer s.Close()

	_, err := run(t, s, "mk", "/k", "1")
	require.NoError(t, err)
	_, err = run(t, s, "mk", "/k", "2")
	assert.Error(t, err)

	_, err = run(t, s, "update", "--swap-with-value", "wrong", "/k", "2")
	assert.Error(t, err)
	out, err := run(t, s, "update", "--swap-with-value", "1", "/k", "2")
	require.NoError(t, err)
	assert.Equal(t, "2\n", out)

	out, err = run(t, s, "rm", "/k")
	require.NoError(t, err)
	assert.Equal(t, "/k deleted\n", out)
}

func TestDirectories(t *testing.T) {
	s := etcdtest.Start()
	defer s.Close()

	_, err := run(t, s, "mkdir", "/cfg")
	require.NoError(t, err)
	_, err = run(t, s, "set", "/cfg/db/host", "localhost")
	require.NoError(t, err)

	out, err := run(t, s, "ls", "--recursive", "/cfg")
	require.NoError(t, err)
	assert.Contains(t, out, "/cfg/db/")
	assert.Contains(t, out, "/cfg/db/host")
	assert.Contains(t, out, "localhost")

	out, err = run(t, s, "doc", "--yaml", "/cfg")
	require.NoError(t, err)
	assert.Equal(t, "db:\n  host: localhost\n", out)

	out, err = run(t, s, "doc", "/cfg")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "{"))

	_, err = run(t, s, "rmdir", "/cfg")
	assert.Error(t, err)
	_, err = run(t, s, "rmdir", "--recursive", "/cfg")
	require.NoError(t, err)
}

func TestWatchAfterIndex(t *testing.T) {
	s := etcdtest.Start()
	defer s.Close()

	_, err := run(t, s, "set", "/w", "changed")
	require.NoError(t, err)

	out, err := run(t, s, "watch", "--after-index", "1", "/w")
	require.NoError(t, err)
	assert.Equal(t, "changed\n", out)
}

func TestClusterCommands(t *testing.T) {
	s := etcdtest.Start()
	defer s.Close()

	out, err := run(t, s, "members")
	require.NoError(t, err)
	assert.Contains(t, out, s.URL)

	out, err = run(t, s, "health")
	require.NoError(t, err)
	assert.Contains(t, out, "2.3.7")

	out, err = run(t, s, "server-version")
	require.NoError(t, err)
	assert.Equal(t, etcdtest.DefaultVersion+"\n", out)

	out, err = run(t, s, "stats", "store")
	require.NoError(t, err)
	assert.Contains(t, out, "watchers")

	_, err = run(t, s, "stats", "bogus")
	assert.Error(t, err)
}

func TestShell(t *testing.T) {
	s := etcdtest.Start()
	defer s.Close()

	stdin = strings.NewReader("mkdir app\ncd app\nset name demo\nget name\nls\ncd name\nbogus\nexit\n")
	defer func() { stdin = os.Stdin }()

	out, err := run(t, s, "shell")
	require.NoError(t, err)
	assert.Contains(t, out, "/app> ")
	assert.Contains(t, out, "/app/name=demo\n")
	assert.Contains(t, out, "demo\n")
	assert.Contains(t, out, "name=demo\n")
	assert.Contains(t, out, "ERROR: ")
	assert.Contains(t, out, `unknown command "bogus"`)
}
