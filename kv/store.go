// Package kv is a small typed key value layer on top of the etcd client for
// callers that only need strings, ints and flat directories.
package kv

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/AcalephStorage/etcdv2/client"
	"github.com/AcalephStorage/etcdv2/response"
	"github.com/AcalephStorage/etcdv2/util"
)

var kvLog = util.NewContextLogger("kv")

type KVClient interface {
	// Put sets the value of a key
	Put(ctx context.Context, key, value string) error

	// Get returns the value of the specified key.
	Get(ctx context.Context, key string) (string, error)

	// PutInt accepts an Int value and store it under the specified key.
	PutInt(ctx context.Context, key string, value int) error

	// GetInt returns the value of the specified key. In Int type
	GetInt(ctx context.Context, key string) (int, error)

	// GetDir returns the child nodes of a given directory
	GetDir(ctx context.Context, key string) ([]*KVPair, error)

	// PutDir creates a directory.
	PutDir(ctx context.Context, key string) error

	// PutIntDir creates an integer directory under the given key
	PutIntDir(ctx context.Context, key string, value int) error

	// DeleteTree removes a range of keys under the given directory.
	DeleteTree(ctx context.Context, key string) error
}

// KVPair defines the retrieved key and value
type KVPair struct {
	Key       string
	Value     []byte
	LastIndex uint64
	Dir       bool
}

// Error is an error document returned by the server for a kv operation.
type Error struct {
	Op  string
	Key string
	Err *response.APIError
}

func (e *Error) Error() string {
	return fmt.Sprintf("kv %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether err is a server "Key not found" error.
func IsNotFound(err error) bool {
	var kvErr *Error
	return errors.As(err, &kvErr) && kvErr.Err.Code == response.KeyNotFound
}

// nodeStore is the subset of the client the kv layer calls.
type nodeStore interface {
	Get(ctx context.Context, key string, opts client.GetOptions) (*response.Node, error)
	Set(ctx context.Context, key, value string) (*response.Node, error)
	MakeDir(ctx context.Context, key string) (*response.Node, error)
	DeleteTree(ctx context.Context, key string) (*response.Node, error)
}

type clientStore struct {
	c *client.Client
}

func (s clientStore) Get(ctx context.Context, key string, opts client.GetOptions) (*response.Node, error) {
	return s.c.Keys().Get(ctx, key, opts)
}

func (s clientStore) Set(ctx context.Context, key, value string) (*response.Node, error) {
	return s.c.Keys().Set(ctx, key, value, 0)
}

func (s clientStore) MakeDir(ctx context.Context, key string) (*response.Node, error) {
	return s.c.Directory().Create(ctx, key, 0)
}

func (s clientStore) DeleteTree(ctx context.Context, key string) (*response.Node, error) {
	return s.c.Directory().DeleteRecursive(ctx, key, 0)
}

type etcdClient struct {
	store nodeStore
}

// NewKVClient wraps an etcd client.
func NewKVClient(c *client.Client) KVClient {
	return &etcdClient{clientStore{c}}
}

// NewEtcdClient connects to the given endpoints using config for everything
// but the endpoint list.
func NewEtcdClient(ctx context.Context, config *client.Config, addresses ...string) (KVClient, error) {
	log := kvLog.InFunc("NewEtcdClient")

	if len(addresses) > 0 {
		copied := *config
		copied.Endpoints = addresses
		config = &copied
	}

	c, err := client.New(ctx, config)
	if err != nil {
		log.WithError(err).Error("unable to create kvclient.")
		return nil, err
	}
	return NewKVClient(c), nil
}

func (kv *etcdClient) Put(ctx context.Context, key, value string) error {
	node, err := kv.store.Set(ctx, key, value)
	return check("put", key, node, err)
}

func (kv *etcdClient) Get(ctx context.Context, key string) (string, error) {
	node, err := kv.store.Get(ctx, key, client.GetOptions{Quorum: true})
	if err := check("get", key, node, err); err != nil {
		return "", err
	}
	value, ok := node.Value()
	if !ok {
		return "", fmt.Errorf("kv get %s: %s has no value", key, node.Kind())
	}
	return value, nil
}

func (kv *etcdClient) PutInt(ctx context.Context, key string, value int) error {
	return kv.Put(ctx, key, strconv.Itoa(value))
}

func (kv *etcdClient) GetInt(ctx context.Context, key string) (int, error) {
	val, err := kv.Get(ctx, key)
	if err != nil {
		return -1, err
	}
	return strconv.Atoi(val)
}

func (kv *etcdClient) GetDir(ctx context.Context, key string) ([]*KVPair, error) {
	getOpts := client.GetOptions{
		Quorum:    true,
		Recursive: true,
		Sorted:    true,
	}

	node, err := kv.store.Get(ctx, key, getOpts)
	if err := check("getDir", key, node, err); err != nil {
		return nil, err
	}

	children, err := node.Children()
	if err != nil {
		return nil, err
	}

	kvpair := []*KVPair{}
	for _, n := range children {
		stat, _ := n.Stat()
		value, _ := n.Value()
		kvpair = append(kvpair, &KVPair{
			Key:       n.Key(),
			Value:     []byte(value),
			LastIndex: stat.ModifiedIndex,
			Dir:       n.IsDirectory(),
		})
	}
	return kvpair, nil
}

func (kv *etcdClient) PutDir(ctx context.Context, key string) error {
	node, err := kv.store.MakeDir(ctx, key)
	return check("putDir", key, node, err)
}

func (kv *etcdClient) PutIntDir(ctx context.Context, key string, value int) error {
	dirName := key + "/" + strconv.Itoa(value)
	return kv.PutDir(ctx, dirName)
}

func (kv *etcdClient) DeleteTree(ctx context.Context, key string) error {
	node, err := kv.store.DeleteTree(ctx, key)
	return check("deleteTree", key, node, err)
}

// check turns an error node into an *Error.
func check(op, key string, node *response.Node, err error) error {
	log := kvLog.InFunc(op)
	if err != nil {
		log.WithError(err).Debugf("unable to %s %s", op, key)
		return err
	}
	if apiErr, aerr := node.APIError(); aerr == nil {
		log.WithError(apiErr).Debugf("unable to %s %s", op, key)
		return &Error{Op: op, Key: key, Err: apiErr}
	}
	return nil
}
