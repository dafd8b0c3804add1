package client

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AcalephStorage/etcdv2/etcdtest"
)

func TestServerVersion(t *testing.T) {
	c, _ := newTestClient(t)

	text, err := c.Server().Version(context.Background())
	require.NoError(t, err)
	assert.Equal(t, etcdtest.DefaultVersion, text)
}

func TestServerLeaderURL(t *testing.T) {
	c, s := newTestClient(t)

	leader, err := c.Server().LeaderURL(context.Background())
	require.NoError(t, err)
	assert.Equal(t, s.URL, leader)
}

func TestServerMachines(t *testing.T) {
	s := etcdtest.Start(etcdtest.WithClientURLs("http://10.0.0.1:4001", "http://10.0.0.2:4001"), etcdtest.WithName("node"))
	defer s.Close()
	c := newStaticClient(t, s.URL)

	machines, err := c.Server().Machines(context.Background())
	require.NoError(t, err)
	require.Len(t, machines, 2)

	byName := map[string]Machine{}
	for _, m := range machines {
		byName[m.Name] = m
	}
	assert.Equal(t, "http://10.0.0.1:4001", byName["node0"].ClientURL)
	assert.Equal(t, "http://10.0.0.1:4001", byName["node0"].PeerURL)
	assert.Equal(t, "http://10.0.0.2:4001", byName["node1"].ClientURL)
}

func TestServerMembers(t *testing.T) {
	s := etcdtest.Start(etcdtest.WithClientURLs("http://10.0.0.1:2379", "http://10.0.0.2:2379"))
	defer s.Close()
	c := newStaticClient(t, s.URL)

	members, err := c.Server().Members(context.Background())
	require.NoError(t, err)
	require.Len(t, members, 2)
	assert.Equal(t, []string{"http://10.0.0.2:2379"}, members[1].ClientURLs)
}

func TestServerDashboardURL(t *testing.T) {
	c := newStaticClient(t, "http://127.0.0.1:2379/")
	assert.Equal(t, "http://127.0.0.1:2379/mod/dashboard", c.Server().DashboardURL())
}

func TestServerHealth(t *testing.T) {
	live := etcdtest.Start()
	defer live.Close()
	dead := deadURL()

	s := etcdtest.Start(etcdtest.WithClientURLs(live.URL, dead))
	defer s.Close()
	c := newStaticClient(t, s.URL)

	health, err := c.Server().Health(context.Background())
	require.NoError(t, err)
	require.Len(t, health, 2)

	assert.True(t, health[0].Healthy)
	assert.Equal(t, "2.3.7", health[0].Version)
	assert.NoError(t, health[0].Err)

	assert.False(t, health[1].Healthy)
	assert.Error(t, health[1].Err)
}

func TestStats(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	_, err := c.Keys().Get(ctx, "/missing", GetOptions{})
	require.NoError(t, err)

	self, err := c.Stats().Self(ctx)
	require.NoError(t, err)
	assert.Equal(t, "default", self.Name)
	assert.Equal(t, "StateLeader", self.State)

	leader, err := c.Stats().Leader(ctx)
	require.NoError(t, err)
	assert.Equal(t, self.ID, leader.Leader)

	store, err := c.Stats().Store(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), store["getsFail"])
}
