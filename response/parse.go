package response

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const (
	ActionDelete           = "delete"
	ActionCompareAndDelete = "compareAndDelete"
)

type document struct {
	Action   string          `json:"action"`
	Node     json.RawMessage `json:"node"`
	PrevNode json.RawMessage `json:"prevNode"`

	ErrorCode *int   `json:"errorCode"`
	Message   string `json:"message"`
	Cause     string `json:"cause"`
	Index     uint64 `json:"index"`
}

type nodeDocument struct {
	Key           string            `json:"key"`
	Value         *string           `json:"value"`
	Dir           bool              `json:"dir"`
	Nodes         []json.RawMessage `json:"nodes"`
	CreatedIndex  uint64            `json:"createdIndex"`
	ModifiedIndex uint64            `json:"modifiedIndex"`
	TTL           *int64            `json:"ttl"`
	Expiration    *string           `json:"expiration"`
	PrevNode      json.RawMessage   `json:"prevNode"`
}

// Parse builds a Node from a full response document. verb and path only
// identify the request in errors.
func Parse(body []byte, status int, verb, path string) (*Node, error) {
	if len(body) == 0 {
		return nil, ErrEmptyResponse
	}

	doc := document{}
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, &MalformedResponseError{Verb: verb, Path: path, Err: err}
	}

	if doc.ErrorCode != nil {
		return &Node{
			key:  doc.Cause,
			kind: KindError,
			apiErr: &APIError{
				Code:    *doc.ErrorCode,
				Message: doc.Message,
				Cause:   doc.Cause,
				Index:   doc.Index,
			},
			notFound: status == http.StatusNotFound,
		}, nil
	}

	if isAbsent(doc.Node) {
		return nil, &MalformedResponseError{Verb: verb, Path: path, Err: errMissingNode}
	}

	n, err := parseNode(doc.Node, doc.PrevNode)
	if err != nil {
		return nil, &MalformedResponseError{Verb: verb, Path: path, Err: err}
	}

	if doc.Action == ActionDelete || doc.Action == ActionCompareAndDelete {
		n.kind = KindDeleted
		n.value = nil
		n.children = nil
	}
	return n, nil
}

// ParseNode builds a Node from a bare node document, such as an entry of a
// directory listing or a prevNode.
func ParseNode(doc []byte) (*Node, error) {
	return parseNode(doc, nil)
}

func parseNode(raw, fallbackPrev json.RawMessage) (*Node, error) {
	doc := nodeDocument{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}

	stat := &Stat{
		CreatedIndex:  doc.CreatedIndex,
		ModifiedIndex: doc.ModifiedIndex,
	}
	if doc.Expiration != nil {
		exp, err := parseExpiration(*doc.Expiration)
		if err != nil {
			return nil, err
		}
		stat.Expiration = &exp
		if doc.TTL != nil {
			ttl := time.Duration(*doc.TTL) * time.Second
			stat.TTL = &ttl
		}
	}

	n := &Node{
		key:  doc.Key,
		kind: KindValue,
		stat: stat,
	}

	if doc.Dir {
		n.kind = KindDirectory
		n.children = &children{raw: doc.Nodes}
	} else {
		n.value = doc.Value
	}

	// etcd 2.x sends prevNode next to node rather than inside it.
	prevRaw := doc.PrevNode
	if isAbsent(prevRaw) {
		prevRaw = fallbackPrev
	}
	if !isAbsent(prevRaw) {
		prev, err := ParseNode(prevRaw)
		if err != nil {
			return nil, fmt.Errorf("prevNode: %v", err)
		}
		n.prev = prev
	}
	return n, nil
}

func parseExpiration(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("expiration: %v", err)
	}
	return t, nil
}

func isAbsent(raw json.RawMessage) bool {
	return len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
