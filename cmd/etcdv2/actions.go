package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ghodss/yaml"
	"github.com/gosuri/uitable"
	"github.com/urfave/cli"

	"github.com/AcalephStorage/etcdv2/client"
	"github.com/AcalephStorage/etcdv2/response"
)

func newClient(c *cli.Context) (*client.Client, error) {
	log := mainLog.InFunc("newClient")

	config, err := client.LoadConfig(c.GlobalString("conf"))
	if err != nil {
		return nil, err
	}
	if endpoints := c.GlobalStringSlice("endpoint"); len(endpoints) > 0 {
		config.Endpoints = endpoints
	}
	if c.GlobalBool("no-discover") {
		config.Discover = false
	}

	cl, err := client.New(context.Background(), config)
	if err != nil {
		log.WithError(err).Debug("unable to create client")
		return nil, err
	}
	return cl, nil
}

// nodeError returns the error document of an error node.
func nodeError(node *response.Node) error {
	if apiErr, err := node.APIError(); err == nil {
		return apiErr
	}
	return nil
}

func ttl(c *cli.Context) time.Duration {
	return time.Duration(c.Int("ttl")) * time.Second
}

// printNode writes the value of a node, or what happened to it.
func printNode(c *cli.Context, node *response.Node) error {
	if err := nodeError(node); err != nil {
		return err
	}
	switch {
	case node.Kind() == response.KindDeleted:
		fmt.Fprintf(c.App.Writer, "%s deleted\n", node.Key())
	case node.IsDirectory():
		fmt.Fprintf(c.App.Writer, "%s/\n", node.Key())
	default:
		value, _ := node.Value()
		fmt.Fprintln(c.App.Writer, value)
	}
	return nil
}

func getKey(c *cli.Context) error {
	cl, err := newClient(c)
	if err != nil {
		return err
	}
	node, err := cl.Keys().Get(context.Background(), c.Args().First(), client.GetOptions{})
	if err != nil {
		return err
	}
	return printNode(c, node)
}

func setKey(c *cli.Context) error {
	cl, err := newClient(c)
	if err != nil {
		return err
	}
	node, err := cl.Keys().Set(context.Background(), c.Args().Get(0), c.Args().Get(1), ttl(c))
	if err != nil {
		return err
	}
	return printNode(c, node)
}

func makeKey(c *cli.Context) error {
	cl, err := newClient(c)
	if err != nil {
		return err
	}
	node, err := cl.Keys().CreateOnly(context.Background(), c.Args().Get(0), c.Args().Get(1), ttl(c))
	if err != nil {
		return err
	}
	return printNode(c, node)
}

func updateKey(c *cli.Context) error {
	cl, err := newClient(c)
	if err != nil {
		return err
	}

	key, value := c.Args().Get(0), c.Args().Get(1)
	ctx := context.Background()

	var node *response.Node
	switch {
	case c.IsSet("swap-with-value"):
		node, err = cl.Keys().UpdateIfValue(ctx, key, value, c.String("swap-with-value"), ttl(c))
	case c.IsSet("swap-with-index"):
		node, err = cl.Keys().UpdateIfIndex(ctx, key, value, uint64(c.Int("swap-with-index")), ttl(c))
	default:
		node, err = cl.Keys().UpdateOnly(ctx, key, value, ttl(c))
	}
	if err != nil {
		return err
	}
	return printNode(c, node)
}

func removeKey(c *cli.Context) error {
	cl, err := newClient(c)
	if err != nil {
		return err
	}

	key := c.Args().First()
	ctx := context.Background()

	var node *response.Node
	switch {
	case c.IsSet("with-value"):
		node, err = cl.Keys().DeleteIfValue(ctx, key, c.String("with-value"))
	case c.IsSet("with-index"):
		node, err = cl.Keys().DeleteIfIndex(ctx, key, uint64(c.Int("with-index")))
	default:
		node, err = cl.Keys().Delete(ctx, key)
	}
	if err != nil {
		return err
	}
	return printNode(c, node)
}

func makeDir(c *cli.Context) error {
	cl, err := newClient(c)
	if err != nil {
		return err
	}
	node, err := cl.Directory().Create(context.Background(), c.Args().First(), ttl(c))
	if err != nil {
		return err
	}
	return printNode(c, node)
}

func removeDir(c *cli.Context) error {
	cl, err := newClient(c)
	if err != nil {
		return err
	}

	dir := c.Args().First()
	var node *response.Node
	if c.Bool("recursive") {
		node, err = cl.Directory().DeleteRecursive(context.Background(), dir, 0)
	} else {
		node, err = cl.Directory().Delete(context.Background(), dir, 0)
	}
	if err != nil {
		return err
	}
	return printNode(c, node)
}

func listDir(c *cli.Context) error {
	cl, err := newClient(c)
	if err != nil {
		return err
	}

	dir := c.Args().First()
	if dir == "" {
		dir = "/"
	}
	node, err := cl.Directory().List(context.Background(), dir, client.ListOptions{Recursive: c.Bool("recursive"), Sorted: true})
	if err != nil {
		return err
	}
	if err := nodeError(node); err != nil {
		return err
	}

	table := uitable.New()
	table.AddRow("KEY", "VALUE", "MODIFIED", "TTL")
	if err := addRows(table, node); err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, table)
	return nil
}

func addRows(table *uitable.Table, node *response.Node) error {
	children, err := node.Children()
	if err != nil {
		return err
	}
	for _, n := range children {
		stat, _ := n.Stat()
		expires := "-"
		if stat.TTL != nil {
			expires = stat.TTL.String()
		}
		if n.IsDirectory() {
			table.AddRow(n.Key()+"/", "", stat.ModifiedIndex, expires)
			if err := addRows(table, n); err != nil {
				return err
			}
			continue
		}
		value, _ := n.Value()
		table.AddRow(n.Key(), value, stat.ModifiedIndex, expires)
	}
	return nil
}

func watchKey(c *cli.Context) error {
	cl, err := newClient(c)
	if err != nil {
		return err
	}

	key := c.Args().First()
	opts := client.WaitOptions{
		Recursive: c.Bool("recursive"),
		WaitIndex: uint64(c.Int("after-index")),
	}
	for {
		node, err := cl.Wait(context.Background(), key, opts)
		if errors.Is(err, client.ErrWaitFault) {
			mainLog.InFunc("watchKey").Debug("long-poll timed out, waiting again")
			continue
		}
		if err != nil {
			return err
		}
		if err := printNode(c, node); err != nil {
			return err
		}
		if !c.Bool("forever") {
			return nil
		}
		stat, err := node.Stat()
		if err != nil {
			return err
		}
		opts.WaitIndex = stat.ModifiedIndex + 1
	}
}

func printDocument(c *cli.Context) error {
	cl, err := newClient(c)
	if err != nil {
		return err
	}
	doc, err := cl.Directory().Document(context.Background(), c.Args().First())
	if err != nil {
		return err
	}

	var out []byte
	if c.Bool("yaml") {
		out, err = yaml.Marshal(doc)
	} else {
		out, err = json.MarshalIndent(doc, "", "  ")
		out = append(out, '\n')
	}
	if err != nil {
		return err
	}
	c.App.Writer.Write(out)
	return nil
}

func listMembers(c *cli.Context) error {
	cl, err := newClient(c)
	if err != nil {
		return err
	}
	members, err := cl.Server().Members(context.Background())
	if err != nil {
		return err
	}

	table := uitable.New()
	table.AddRow("ID", "NAME", "CLIENT URLS", "PEER URLS")
	for _, m := range members {
		table.AddRow(m.ID, m.Name, strings.Join(m.ClientURLs, ","), strings.Join(m.PeerURLs, ","))
	}
	fmt.Fprintln(c.App.Writer, table)
	return nil
}

func printStats(c *cli.Context) error {
	cl, err := newClient(c)
	if err != nil {
		return err
	}

	ctx := context.Background()
	table := uitable.New()
	switch kind := c.Args().First(); kind {
	case "self":
		self, err := cl.Stats().Self(ctx)
		if err != nil {
			return err
		}
		table.AddRow("NAME", self.Name)
		table.AddRow("ID", self.ID)
		table.AddRow("STATE", self.State)
		table.AddRow("LEADER", self.LeaderInfo.Leader)
		table.AddRow("UPTIME", self.LeaderInfo.Uptime)
	case "store":
		stats, err := cl.Stats().Store(ctx)
		if err != nil {
			return err
		}
		names := make([]string, 0, len(stats))
		for name := range stats {
			names = append(names, name)
		}
		sort.Strings(names)
		table.AddRow("COUNTER", "VALUE")
		for _, name := range names {
			table.AddRow(name, stats[name])
		}
	case "leader":
		leader, err := cl.Stats().Leader(ctx)
		if err != nil {
			return err
		}
		table.AddRow("FOLLOWER", "LATENCY", "SUCCESS", "FAIL")
		for id, f := range leader.Followers {
			table.AddRow(id, f.Latency.Current, f.Counts.Success, f.Counts.Fail)
		}
	default:
		return fmt.Errorf("unknown stats %q, expected self, store or leader", kind)
	}
	fmt.Fprintln(c.App.Writer, table)
	return nil
}

func checkHealth(c *cli.Context) error {
	cl, err := newClient(c)
	if err != nil {
		return err
	}
	health, err := cl.Server().Health(context.Background())
	if err != nil {
		return err
	}

	table := uitable.New()
	table.AddRow("URL", "HEALTHY", "VERSION", "ERROR")
	unhealthy := 0
	for _, h := range health {
		problem := "-"
		if h.Err != nil {
			problem = h.Err.Error()
		}
		if !h.Healthy {
			unhealthy++
		}
		table.AddRow(h.URL, h.Healthy, h.Version, problem)
	}
	fmt.Fprintln(c.App.Writer, table)

	if unhealthy > 0 {
		return fmt.Errorf("%d of %d members are unhealthy", unhealthy, len(health))
	}
	return nil
}

func serverVersion(c *cli.Context) error {
	cl, err := newClient(c)
	if err != nil {
		return err
	}
	text, err := cl.Server().Version(context.Background())
	if err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, text)
	return nil
}
