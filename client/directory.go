package client

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/AcalephStorage/etcdv2/response"
)

type (
	// DirectoryOps manages directories.
	DirectoryOps struct {
		s sender
	}

	ListOptions struct {
		// Recursive includes children of children.
		Recursive bool
		// Sorted returns entries in key order.
		Sorted     bool
		Consistent bool
		Quorum     bool
	}
)

func (d *DirectoryOps) List(ctx context.Context, path string, opts ListOptions) (*response.Node, error) {
	fqPath, err := nodePath(path)
	if err != nil {
		return nil, err
	}

	query := url.Values{}
	setFlag(query, "recursive", opts.Recursive)
	setFlag(query, "consistent", opts.Consistent)
	setFlag(query, "quorum", opts.Quorum)
	setFlag(query, "sorted", opts.Sorted)

	return d.s.Send(ctx, &Request{Method: http.MethodGet, Path: fqPath, Query: query})
}

// Create makes an empty directory. Writing a key creates its parents
// implicitly, this is for when a directory is wanted on its own.
func (d *DirectoryOps) Create(ctx context.Context, path string, ttl time.Duration) (*response.Node, error) {
	fqPath, err := nodePath(path)
	if err != nil {
		return nil, err
	}

	form := url.Values{"dir": {"true"}}
	setTTL(form, ttl)

	node, err := d.s.Send(ctx, &Request{Method: http.MethodPut, Path: fqPath, Form: form})
	if err != nil {
		return nil, err
	}
	// the server answers "Not a file" when the directory is already there
	if apiErr, err := node.APIError(); err == nil && apiErr.Code == response.NotFile {
		return nil, &AlreadyExistsError{Path: path}
	}
	return node, nil
}

// Delete removes an empty directory. With a non-zero currentIndex it only
// does so if the directory is still at that index.
func (d *DirectoryOps) Delete(ctx context.Context, path string, currentIndex uint64) (*response.Node, error) {
	cmp := compare{currentIndex: currentIndex}
	if cmp.set() {
		return compareAndDelete(ctx, d.s, path, true, cmp)
	}

	fqPath, err := nodePath(path)
	if err != nil {
		return nil, err
	}
	query := url.Values{"dir": {"true"}}
	return d.s.Send(ctx, &Request{Method: http.MethodDelete, Path: fqPath, Query: query})
}

func (d *DirectoryOps) DeleteIfIndex(ctx context.Context, path string, currentIndex uint64) (*response.Node, error) {
	return compareAndDelete(ctx, d.s, path, true, compare{currentIndex: currentIndex})
}

// DeleteRecursive removes the directory and everything below it.
func (d *DirectoryOps) DeleteRecursive(ctx context.Context, path string, currentIndex uint64) (*response.Node, error) {
	recursive := true
	cmp := compare{currentIndex: currentIndex, recursive: &recursive}
	if cmp.set() {
		return compareAndDelete(ctx, d.s, path, true, cmp)
	}

	fqPath, err := nodePath(path)
	if err != nil {
		return nil, err
	}
	query := url.Values{"dir": {"true"}, "recursive": {"true"}}
	return d.s.Send(ctx, &Request{Method: http.MethodDelete, Path: fqPath, Query: query})
}

func (d *DirectoryOps) DeleteRecursiveIfIndex(ctx context.Context, path string, currentIndex uint64) (*response.Node, error) {
	recursive := true
	return compareAndDelete(ctx, d.s, path, true, compare{currentIndex: currentIndex, recursive: &recursive})
}

// Document lists path recursively and folds it into nested maps keyed by the
// last segment of each key. Directories become maps, keys their values.
func (d *DirectoryOps) Document(ctx context.Context, path string) (map[string]interface{}, error) {
	node, err := d.List(ctx, path, ListOptions{Recursive: true, Sorted: true})
	if err != nil {
		return nil, err
	}
	if apiErr, err := node.APIError(); err == nil {
		return nil, apiErr
	}

	doc := map[string]interface{}{}
	if err := docify(doc, node); err != nil {
		return nil, err
	}
	return doc, nil
}

func docify(doc map[string]interface{}, node *response.Node) error {
	children, err := node.Children()
	if err != nil {
		return err
	}
	for _, c := range children {
		if c.IsDirectory() {
			sub := map[string]interface{}{}
			if err := docify(sub, c); err != nil {
				return err
			}
			doc[c.Name()] = sub
			continue
		}
		value, _ := c.Value()
		doc[c.Name()] = value
	}
	return nil
}
