// Package cluster keeps track of the members a client can talk to and picks
// a new one when the active member stops answering.
package cluster

import (
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"golang.org/x/exp/slices"

	"github.com/AcalephStorage/etcdv2/util"
)

// DefaultFailWait is how long a failed member is skipped before it is tried again.
const DefaultFailWait = 60 * time.Second

var (
	clusterLog = util.NewContextLogger("cluster")

	ErrNoMembers = errors.New("cluster has no members")
)

// Election decides which eligible member wins a failover.
type Election int

const (
	// FirstEligible stops at the first eligible member after the failed one.
	FirstEligible Election = iota
	// LastEligible walks the whole ring and keeps the last eligible member.
	LastEligible
)

// Member is one cluster endpoint. A zero LastFailure means it never failed.
type Member struct {
	URL         string
	LastFailure time.Time
}

func (m Member) eligible(now time.Time, wait time.Duration) bool {
	return m.LastFailure.IsZero() || now.Sub(m.LastFailure) > wait
}

// AllMembersDownError is returned when no member is eligible after a failure.
type AllMembersDownError struct {
	Members []Member
}

func (e *AllMembersDownError) Error() string {
	urls := make([]string, len(e.Members))
	for i, m := range e.Members {
		urls[i] = m.URL
	}
	return fmt.Sprintf("all cluster members have failed: [%s]", strings.Join(urls, ", "))
}

// Table is the ordered member list plus the index of the active member.
// It is safe for concurrent use.
type Table struct {
	mu       sync.Mutex
	members  []Member
	active   int
	failWait time.Duration
	election Election
}

type Option func(*Table)

func WithElection(e Election) Option {
	return func(t *Table) {
		t.election = e
	}
}

// WithActive starts the table on the given index instead of a random one.
func WithActive(index int) Option {
	return func(t *Table) {
		if index >= 0 && index < len(t.members) {
			t.active = index
		}
	}
}

// NewTable builds a table in discovery order and starts on a random member,
// so clients started together do not all hit the first one.
func NewTable(urls []string, failWait time.Duration, opts ...Option) (*Table, error) {
	if len(urls) == 0 {
		return nil, ErrNoMembers
	}

	members := make([]Member, len(urls))
	for i, u := range urls {
		members[i] = Member{URL: strings.TrimRight(u, "/")}
	}

	t := &Table{
		members:  members,
		active:   rand.Intn(len(members)),
		failWait: failWait,
	}
	for _, opt := range opts {
		opt(t)
	}

	clusterLog.InFunc("NewTable").Debugf("members: %v, starting on %s", urls, t.members[t.active].URL)
	return t, nil
}

func (t *Table) Active() Member {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.members[t.active]
}

func (t *Table) Members() []Member {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.members)
}

// FailOver marks the member at URL failed as of now and elects the next one.
// When failed is no longer the active member another caller already moved
// the table on, and the current active member is returned as is.
func (t *Table) FailOver(failed string, now time.Time) (Member, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	log := clusterLog.InFunc("FailOver")

	if t.members[t.active].URL != strings.TrimRight(failed, "/") {
		log.Debugf("%s already replaced by %s", failed, t.members[t.active].URL)
		return t.members[t.active], nil
	}

	t.members[t.active].LastFailure = now

	count := len(t.members)
	elected := -1
	for i := 1; i <= count; i++ {
		candidate := (t.active + i) % count
		if !t.members[candidate].eligible(now, t.failWait) {
			continue
		}
		elected = candidate
		if t.election == FirstEligible {
			break
		}
	}

	if elected < 0 {
		err := &AllMembersDownError{Members: slices.Clone(t.members)}
		log.WithError(err).Error("no member left to fail over to")
		return Member{}, err
	}

	t.active = elected
	log.Warnf("member %s failed, switching to %s", failed, t.members[elected].URL)
	return t.members[elected], nil
}
