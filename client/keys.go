package client

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/AcalephStorage/etcdv2/response"
)

type (
	// KeyOps reads and writes single keys.
	KeyOps struct {
		s sender
	}

	GetOptions struct {
		Recursive  bool
		Sorted     bool
		Consistent bool
		Quorum     bool
	}

	CASOptions struct {
		CurrentValue *string
		CurrentIndex uint64
		// PrevExists requires the key to exist (true) or not exist (false).
		PrevExists *bool
		TTL        time.Duration
	}
)

func (k *KeyOps) Get(ctx context.Context, path string, opts GetOptions) (*response.Node, error) {
	fqPath, err := nodePath(path)
	if err != nil {
		return nil, err
	}

	query := url.Values{}
	setFlag(query, "recursive", opts.Recursive)
	setFlag(query, "sorted", opts.Sorted)
	setFlag(query, "consistent", opts.Consistent)
	setFlag(query, "quorum", opts.Quorum)

	return k.s.Send(ctx, &Request{Method: http.MethodGet, Path: fqPath, Query: query})
}

// Set writes the value whether or not the key exists. A zero ttl never expires.
func (k *KeyOps) Set(ctx context.Context, path, value string, ttl time.Duration) (*response.Node, error) {
	return k.put(ctx, path, value, ttl, nil)
}

// CreateOnly fails with a NodeExist error node when the key exists.
func (k *KeyOps) CreateOnly(ctx context.Context, path, value string, ttl time.Duration) (*response.Node, error) {
	return k.put(ctx, path, value, ttl, url.Values{"prevExist": {"false"}})
}

// UpdateOnly fails with a KeyNotFound error node when the key is missing.
func (k *KeyOps) UpdateOnly(ctx context.Context, path, value string, ttl time.Duration) (*response.Node, error) {
	return k.put(ctx, path, value, ttl, url.Values{"prevExist": {"true"}})
}

func (k *KeyOps) UpdateIfIndex(ctx context.Context, path, value string, currentIndex uint64, ttl time.Duration) (*response.Node, error) {
	return k.CompareAndSwap(ctx, path, value, CASOptions{CurrentIndex: currentIndex, TTL: ttl})
}

func (k *KeyOps) UpdateIfValue(ctx context.Context, path, value, currentValue string, ttl time.Duration) (*response.Node, error) {
	return k.CompareAndSwap(ctx, path, value, CASOptions{CurrentValue: &currentValue, TTL: ttl})
}

// CompareAndSwap writes value only if every given condition holds. A failed
// condition comes back as a TestFailed error node.
func (k *KeyOps) CompareAndSwap(ctx context.Context, path, value string, opts CASOptions) (*response.Node, error) {
	if opts.CurrentValue == nil && opts.CurrentIndex == 0 && opts.PrevExists == nil {
		return nil, ErrComparisonRequired
	}

	form := url.Values{}
	if opts.CurrentValue != nil {
		form.Set("prevValue", *opts.CurrentValue)
	}
	if opts.CurrentIndex > 0 {
		form.Set("prevIndex", strconv.FormatUint(opts.CurrentIndex, 10))
	}
	if opts.PrevExists != nil {
		form.Set("prevExist", strconv.FormatBool(*opts.PrevExists))
	}
	return k.put(ctx, path, value, opts.TTL, form)
}

// RefreshTTL resets the ttl of an existing key without notifying watchers.
func (k *KeyOps) RefreshTTL(ctx context.Context, path string, ttl time.Duration) (*response.Node, error) {
	fqPath, err := nodePath(path)
	if err != nil {
		return nil, err
	}

	form := url.Values{"refresh": {"true"}, "prevExist": {"true"}}
	setTTL(form, ttl)
	return k.s.Send(ctx, &Request{Method: http.MethodPut, Path: fqPath, Form: form})
}

// CreateInOrder adds a key with a server generated, increasing name below dir.
func (k *KeyOps) CreateInOrder(ctx context.Context, dir, value string, ttl time.Duration) (*response.Node, error) {
	fqPath, err := nodePath(dir)
	if err != nil {
		return nil, err
	}

	form := url.Values{}
	setTTL(form, ttl)
	return k.s.Send(ctx, &Request{Method: http.MethodPost, Path: fqPath, Value: &value, Form: form})
}

func (k *KeyOps) Delete(ctx context.Context, path string) (*response.Node, error) {
	fqPath, err := nodePath(path)
	if err != nil {
		return nil, err
	}
	return k.s.Send(ctx, &Request{Method: http.MethodDelete, Path: fqPath})
}

func (k *KeyOps) DeleteIfValue(ctx context.Context, path, currentValue string) (*response.Node, error) {
	return compareAndDelete(ctx, k.s, path, false, compare{currentValue: &currentValue})
}

func (k *KeyOps) DeleteIfIndex(ctx context.Context, path string, currentIndex uint64) (*response.Node, error) {
	return compareAndDelete(ctx, k.s, path, false, compare{currentIndex: currentIndex})
}

func (k *KeyOps) put(ctx context.Context, path, value string, ttl time.Duration, form url.Values) (*response.Node, error) {
	fqPath, err := nodePath(path)
	if err != nil {
		return nil, err
	}

	if form == nil {
		form = url.Values{}
	}
	setTTL(form, ttl)
	return k.s.Send(ctx, &Request{Method: http.MethodPut, Path: fqPath, Value: &value, Form: form})
}
