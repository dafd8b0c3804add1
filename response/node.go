// Package response turns etcd v2 JSON documents into Node values.
//
// A Node is one of four kinds: a value, a directory, a deletion or an error.
// Fields that do not belong to a node's kind are absent, and the accessors
// that only make sense for some kinds return a *WrongKindError otherwise.
package response

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Kind is the variant of a Node.
type Kind int

const (
	KindValue Kind = iota + 1
	KindDirectory
	KindDeleted
	KindError
)

func (k Kind) String() string {
	switch k {
	case KindValue:
		return "value"
	case KindDirectory:
		return "directory"
	case KindDeleted:
		return "deleted"
	case KindError:
		return "error"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Stat is the index and expiry metadata carried by every non-error node.
type Stat struct {
	CreatedIndex  uint64
	ModifiedIndex uint64
	// TTL and Expiration are nil unless the key expires.
	TTL        *time.Duration
	Expiration *time.Time
}

// APIError is the payload of an error node.
type APIError struct {
	Code    int
	Message string
	Cause   string
	// Index is the cluster index when the error happened.
	Index uint64
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s (%d): %s", e.Message, e.Code, e.Cause)
}

// Node is a parsed response. It is immutable once built.
type Node struct {
	key  string
	kind Kind

	stat     *Stat
	value    *string
	prev     *Node
	children *children

	apiErr   *APIError
	notFound bool
}

type children struct {
	raw   []json.RawMessage
	once  sync.Once
	nodes []*Node
	err   error
}

func (c *children) load() ([]*Node, error) {
	c.once.Do(func() {
		nodes := make([]*Node, 0, len(c.raw))
		for _, r := range c.raw {
			n, err := ParseNode(r)
			if err != nil {
				c.err = err
				return
			}
			nodes = append(nodes, n)
		}
		c.nodes = nodes
		c.raw = nil
	})
	return c.nodes, c.err
}

// Key is the node path. For error nodes it is the error cause.
func (n *Node) Key() string {
	return n.key
}

func (n *Node) Kind() Kind {
	return n.kind
}

func (n *Node) IsError() bool {
	return n.kind == KindError
}

// IsDeleted is true for deletion responses and for error responses that
// came back as 404, since the server uses that status for both.
func (n *Node) IsDeleted() bool {
	return n.kind == KindDeleted || (n.kind == KindError && n.notFound)
}

func (n *Node) IsDirectory() bool {
	return n.kind == KindDirectory
}

// IsHidden reports whether the last segment of the key starts with '_'.
func (n *Node) IsHidden() bool {
	name := n.Name()
	return strings.HasPrefix(name, "_")
}

// Name is the last segment of the key.
func (n *Node) Name() string {
	key := strings.TrimRight(n.key, "/")
	if i := strings.LastIndex(key, "/"); i >= 0 {
		return key[i+1:]
	}
	return key
}

// Value returns the node value. ok is false when the node has none, which is
// always the case for directories, deletions and errors.
func (n *Node) Value() (value string, ok bool) {
	if n.value == nil {
		return "", false
	}
	return *n.value, true
}

// Previous is the state of the node before the mutation, when the server sent it.
func (n *Node) Previous() (*Node, bool) {
	return n.prev, n.prev != nil
}

func (n *Node) Stat() (Stat, error) {
	if n.stat == nil {
		return Stat{}, &WrongKindError{Op: "Stat", Key: n.key, Kind: n.kind}
	}
	stat := *n.stat
	if stat.TTL != nil {
		ttl := *stat.TTL
		stat.TTL = &ttl
	}
	if stat.Expiration != nil {
		expiration := *stat.Expiration
		stat.Expiration = &expiration
	}
	return stat, nil
}

// Children parses the directory entries on first use and caches them.
func (n *Node) Children() ([]*Node, error) {
	if n.children == nil {
		return nil, &WrongKindError{Op: "Children", Key: n.key, Kind: n.kind}
	}
	return n.children.load()
}

func (n *Node) APIError() (*APIError, error) {
	if n.apiErr == nil {
		return nil, &WrongKindError{Op: "APIError", Key: n.key, Kind: n.kind}
	}
	return n.apiErr, nil
}

func (n *Node) String() string {
	count := "<NA>"
	if n.children != nil {
		if nodes, err := n.children.load(); err == nil {
			count = fmt.Sprint(len(nodes))
		}
	}
	errPhrase := "<NA>"
	if n.apiErr != nil {
		errPhrase = fmt.Sprintf("%s (%d)", n.apiErr.Message, n.apiErr.Code)
	}
	ttl, ci, mi := "<NA>", "<NA>", "<NA>"
	if n.stat != nil {
		ci = fmt.Sprint(n.stat.CreatedIndex)
		mi = fmt.Sprint(n.stat.ModifiedIndex)
		if n.stat.TTL != nil {
			ttl = fmt.Sprintf("%s: %s", n.stat.TTL, n.stat.Expiration.Format(time.RFC3339))
		}
	}
	return fmt.Sprintf("<NODE(%s) KIND=[%s] ERROR=[%s] IS_HID=[%t] IS_DEL=[%t] COUNT=[%s] TTL=[%s] CI=(%s) MI=(%s)>",
		n.key, n.kind, errPhrase, n.IsHidden(), n.IsDeleted(), count, ttl, ci, mi)
}
