package client

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"

	uuid "github.com/satori/go.uuid"
)

const (
	lockModule   = "lock"
	leaderModule = "leader"
)

type (
	// LockModule drives the server side lock module under /mod/v2/lock.
	LockModule struct {
		s sender
	}

	// Lock is a held lock. Index identifies it to Renew and Release.
	Lock struct {
		Key   string
		Index uint64
		Value string
	}

	// LeaderModule drives the leader election module under /mod/v2/leader.
	LeaderModule struct {
		s sender
	}
)

// Acquire blocks until the lock is held. An empty value gets a random one so
// the lock can also be released by value.
func (l *LockModule) Acquire(ctx context.Context, key string, ttl time.Duration, value string) (*Lock, error) {
	if err := validatePath(key); err != nil {
		return nil, err
	}
	if value == "" {
		value = uuid.NewV4().String()
	}

	query := url.Values{"value": {value}}
	setTTL(query, ttl)

	text, err := l.text(ctx, http.MethodPost, key, query)
	if err != nil {
		return nil, err
	}
	index, err := strconv.ParseUint(text, 10, 64)
	if err != nil {
		return nil, err
	}
	return &Lock{Key: key, Index: index, Value: value}, nil
}

func (l *LockModule) Renew(ctx context.Context, lock *Lock, ttl time.Duration) error {
	if err := validatePath(lock.Key); err != nil {
		return err
	}
	query := url.Values{"index": {strconv.FormatUint(lock.Index, 10)}}
	setTTL(query, ttl)
	_, err := l.text(ctx, http.MethodPut, lock.Key, query)
	return err
}

func (l *LockModule) Release(ctx context.Context, lock *Lock) error {
	if err := validatePath(lock.Key); err != nil {
		return err
	}
	query := url.Values{"index": {strconv.FormatUint(lock.Index, 10)}}
	_, err := l.text(ctx, http.MethodDelete, lock.Key, query)
	return err
}

// Holder returns the value of the current lock holder, empty when unlocked.
func (l *LockModule) Holder(ctx context.Context, key string) (string, error) {
	if err := validatePath(key); err != nil {
		return "", err
	}
	return l.text(ctx, http.MethodGet, key, nil)
}

func (l *LockModule) text(ctx context.Context, method, key string, query url.Values) (string, error) {
	return moduleText(ctx, l.s, lockModule, method, key, query)
}

// Elect registers name as a candidate and blocks until it leads.
func (l *LeaderModule) Elect(ctx context.Context, key, name string, ttl time.Duration) error {
	if err := validatePath(key); err != nil {
		return err
	}
	query := url.Values{"name": {name}}
	setTTL(query, ttl)
	_, err := moduleText(ctx, l.s, leaderModule, http.MethodPut, key, query)
	return err
}

// Current returns the name of the current leader, empty when there is none.
func (l *LeaderModule) Current(ctx context.Context, key string) (string, error) {
	if err := validatePath(key); err != nil {
		return "", err
	}
	return moduleText(ctx, l.s, leaderModule, http.MethodGet, key, nil)
}

func (l *LeaderModule) Resign(ctx context.Context, key, name string) error {
	if err := validatePath(key); err != nil {
		return err
	}
	_, err := moduleText(ctx, l.s, leaderModule, http.MethodDelete, key, url.Values{"name": {name}})
	return err
}

func moduleText(ctx context.Context, s sender, module, method, key string, query url.Values) (string, error) {
	raw, err := s.SendRaw(ctx, &Request{Method: method, Module: module, Path: key, Query: query})
	if err != nil {
		return "", err
	}
	return raw.text()
}
