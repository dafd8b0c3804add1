package response

import (
	"errors"
	"fmt"
)

// ErrEmptyResponse is returned for a zero-length body. The server answers a
// timed out long-poll this way.
var ErrEmptyResponse = errors.New("empty response body")

var errMissingNode = errors.New("document has neither errorCode nor node")

// MalformedResponseError is returned when a body is not a valid response document.
type MalformedResponseError struct {
	Verb string
	Path string
	Err  error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed response to %s %s: %v", e.Verb, e.Path, e.Err)
}

func (e *MalformedResponseError) Unwrap() error {
	return e.Err
}

// WrongKindError is returned by accessors used on a node of the wrong kind.
type WrongKindError struct {
	Op   string
	Key  string
	Kind Kind
}

func (e *WrongKindError) Error() string {
	return fmt.Sprintf("%s is not available on %s node %q", e.Op, e.Kind, e.Key)
}

// Error codes reported by the server, from etcd's error.go.
const (
	KeyNotFound      = 100
	TestFailed       = 101
	NotFile          = 102
	NoMorePeer       = 103
	NotDir           = 104
	NodeExist        = 105
	KeyIsPreserved   = 106
	RootROnly        = 107
	DirNotEmpty      = 108
	ExistingPeerAddr = 109
	Unauthorized     = 110

	ValueRequired        = 200
	PrevValueRequired    = 201
	TTLNaN               = 202
	IndexNaN             = 203
	ValueOrTTLRequired   = 204
	TimeoutNaN           = 205
	NameRequired         = 206
	IndexOrValueRequired = 207
	IndexValueMutex      = 208
	InvalidField         = 209
	InvalidForm          = 210
	RefreshValue         = 211
	RefreshTTLRequired   = 212

	RaftInternal = 300
	LeaderElect  = 301

	WatcherCleared     = 400
	EventIndexCleared  = 401
	StandbyInternal    = 402
	InvalidActiveSize  = 403
	InvalidRemoveDelay = 404

	ClientInternal = 500
)
