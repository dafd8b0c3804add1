// Package shell is a working directory on top of a client, for interactive
// use: paths without a leading slash resolve against the current directory.
package shell

import (
	"context"
	"fmt"
	"path"

	"github.com/AcalephStorage/etcdv2/client"
	"github.com/AcalephStorage/etcdv2/response"
	"github.com/AcalephStorage/etcdv2/util"
)

var shellLog = util.NewContextLogger("shell")

// Context pairs a client with a current directory. It is not safe for
// concurrent use; give each goroutine its own.
type Context struct {
	client *client.Client
	cwd    string
}

// NotDirectoryError is returned by Cd for a key that holds a value.
type NotDirectoryError struct {
	Path string
}

func (e *NotDirectoryError) Error() string {
	return fmt.Sprintf("%s is not a directory", e.Path)
}

// DeletedError is returned by Get when the key was deleted.
type DeletedError struct {
	Path string
}

func (e *DeletedError) Error() string {
	return fmt.Sprintf("%s was deleted", e.Path)
}

// New starts at cwd, or at the root when cwd is empty.
func New(c *client.Client, cwd string) *Context {
	if cwd == "" {
		cwd = "/"
	}
	return &Context{client: c, cwd: path.Clean("/" + cwd)}
}

func (c *Context) Cwd() string {
	return c.cwd
}

// Resolve returns the absolute form of p. An empty p is the current directory.
func (c *Context) Resolve(p string) string {
	switch {
	case p == "":
		return c.cwd
	case p[0] == '/':
		return path.Clean(p)
	}
	return path.Join(c.cwd, p)
}

// Node returns the node of the current directory.
func (c *Context) Node(ctx context.Context) (*response.Node, error) {
	return c.client.Keys().Get(ctx, c.cwd, client.GetOptions{})
}

// Ls lists a directory as "name/" for directories and "name=value" for keys.
func (c *Context) Ls(ctx context.Context, p string) ([]string, error) {
	node, err := c.client.Directory().List(ctx, c.Resolve(p), client.ListOptions{Sorted: true})
	if err := failed(node, err); err != nil {
		return nil, err
	}

	children, err := node.Children()
	if err != nil {
		return nil, err
	}

	entries := make([]string, 0, len(children))
	for _, n := range children {
		entries = append(entries, entry(n))
	}
	return entries, nil
}

func entry(n *response.Node) string {
	switch {
	case n.IsDirectory():
		return n.Name() + "/"
	case n.IsError():
		apiErr, _ := n.APIError()
		return "ERROR: " + apiErr.Message
	}
	value, _ := n.Value()
	return n.Name() + "=" + value
}

// Cd changes the current directory and returns it.
func (c *Context) Cd(ctx context.Context, p string) (string, error) {
	target := c.Resolve(p)
	node, err := c.client.Keys().Get(ctx, target, client.GetOptions{})
	if err := failed(node, err); err != nil {
		return "", err
	}
	if !node.IsDirectory() {
		return "", &NotDirectoryError{Path: target}
	}

	c.cwd = target
	shellLog.InFunc("Cd").Debugf("cwd is now %s", c.cwd)
	return c.cwd, nil
}

// Mkdir creates a directory and returns its key.
func (c *Context) Mkdir(ctx context.Context, p string) (string, error) {
	node, err := c.client.Directory().Create(ctx, c.Resolve(p), 0)
	if err := failed(node, err); err != nil {
		return "", err
	}
	return node.Key(), nil
}

func (c *Context) Get(ctx context.Context, p string) (string, error) {
	target := c.Resolve(p)
	node, err := c.client.Keys().Get(ctx, target, client.GetOptions{})
	if err != nil {
		return "", err
	}
	if node.Kind() == response.KindDeleted {
		return "", &DeletedError{Path: target}
	}
	if err := failed(node, nil); err != nil {
		return "", err
	}

	value, ok := node.Value()
	if !ok {
		return "", &response.WrongKindError{Op: "Get", Key: node.Key(), Kind: node.Kind()}
	}
	return value, nil
}

// Set writes value and returns "key=value".
func (c *Context) Set(ctx context.Context, p, value string) (string, error) {
	node, err := c.client.Keys().Set(ctx, c.Resolve(p), value, 0)
	if err := failed(node, err); err != nil {
		return "", err
	}
	written, _ := node.Value()
	return node.Key() + "=" + written, nil
}

// Rm removes a key and returns "key deleted".
func (c *Context) Rm(ctx context.Context, p string) (string, error) {
	if p == "" {
		return "", fmt.Errorf("rm requires a path")
	}
	node, err := c.client.Keys().Delete(ctx, c.Resolve(p))
	if err := failed(node, err); err != nil {
		return "", err
	}
	return node.Key() + " deleted", nil
}

// failed returns err, or the error document of node if it is an error node.
func failed(node *response.Node, err error) error {
	if err != nil {
		return err
	}
	if apiErr, aerr := node.APIError(); aerr == nil {
		return apiErr
	}
	return nil
}
