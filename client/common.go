package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/AcalephStorage/etcdv2/response"
)

// WaitOptions tunes a long-poll.
type WaitOptions struct {
	// Recursive waits on any change below the path.
	Recursive bool
	// Consistent only talks to the leader.
	Consistent bool
	// WaitIndex waits for the first change at or after this index; 0 waits
	// for the next one.
	WaitIndex uint64
}

// Wait blocks until the key, or with Recursive anything below it, changes.
// A long-poll the server closes without a document returns ErrWaitFault.
func (c *Client) Wait(ctx context.Context, path string, opts WaitOptions) (*response.Node, error) {
	fqPath, err := nodePath(path)
	if err != nil {
		return nil, err
	}

	query := url.Values{"wait": {"true"}}
	setFlag(query, "recursive", opts.Recursive)
	setFlag(query, "consistent", opts.Consistent)
	if opts.WaitIndex > 0 {
		query.Set("waitIndex", strconv.FormatUint(opts.WaitIndex, 10))
	}

	node, err := c.Send(ctx, &Request{Method: http.MethodGet, Path: fqPath, Query: query})

	var bodyErr *BodyReadError
	switch {
	case errors.Is(err, response.ErrEmptyResponse), errors.As(err, &bodyErr):
		clientLog.InFunc("Wait").WithError(err).Debugf("long-poll on %s ended without a response", path)
		return nil, ErrWaitFault
	case err != nil:
		return nil, err
	}
	return node, nil
}

func validatePath(path string) error {
	if path == "" || path[0] != '/' {
		return fmt.Errorf("%w: [%s]", ErrRelativePath, path)
	}
	return nil
}

// nodePath maps a key to its API path under /keys.
func nodePath(path string) (string, error) {
	if err := validatePath(path); err != nil {
		return "", err
	}
	return "/keys" + path, nil
}

type compare struct {
	currentValue *string
	currentIndex uint64
	// recursive, when set, implies a directory delete.
	recursive *bool
}

func (c compare) set() bool {
	return c.currentValue != nil || c.currentIndex > 0
}

func compareAndDelete(ctx context.Context, s sender, path string, isDir bool, cmp compare) (*response.Node, error) {
	fqPath, err := nodePath(path)
	if err != nil {
		return nil, err
	}

	query := url.Values{}
	switch {
	case cmp.currentValue != nil:
		query.Set("prevValue", *cmp.currentValue)
	case cmp.currentIndex > 0:
		query.Set("prevIndex", strconv.FormatUint(cmp.currentIndex, 10))
	default:
		return nil, ErrComparisonRequired
	}

	if cmp.recursive != nil {
		isDir = true
		setFlag(query, "recursive", *cmp.recursive)
	}
	query.Set("dir", strconv.FormatBool(isDir))

	return s.Send(ctx, &Request{Method: http.MethodDelete, Path: fqPath, Query: query})
}

func setFlag(v url.Values, name string, on bool) {
	if on {
		v.Set(name, "true")
	}
}

func setTTL(v url.Values, ttl time.Duration) {
	if ttl > 0 {
		seconds := (ttl + time.Second - 1) / time.Second
		v.Set("ttl", strconv.FormatInt(int64(seconds), 10))
	}
}
