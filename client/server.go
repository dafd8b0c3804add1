package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/AcalephStorage/etcdv2/version"
)

type (
	// ServerOps queries cluster level information.
	ServerOps struct {
		s sender
	}

	// Machine is an entry of the legacy /_etcd/machines list.
	Machine struct {
		Name      string
		ClientURL string
		PeerURL   string
	}

	ClusterMember struct {
		ID         string   `json:"id"`
		Name       string   `json:"name"`
		PeerURLs   []string `json:"peerURLs"`
		ClientURLs []string `json:"clientURLs"`
	}

	MemberHealth struct {
		URL     string
		Healthy bool
		Version string
		Err     error
	}
)

// Version returns the raw version text of the active member, either
// "etcd v0.4.6" or the JSON document newer servers send. Unreachable
// members are skipped like for any other request.
func (s *ServerOps) Version(ctx context.Context) (string, error) {
	raw, err := s.s.SendRaw(ctx, &Request{Method: http.MethodGet, Path: "/version", Unversioned: true})
	if err != nil {
		return "", err
	}
	return raw.text()
}

// LeaderURL returns the URL prefix of the leader.
func (s *ServerOps) LeaderURL(ctx context.Context) (string, error) {
	raw, err := s.s.SendRaw(ctx, &Request{Method: http.MethodGet, Path: "/leader"})
	if err != nil {
		return "", err
	}
	return raw.text()
}

// Machines reads the member list servers before 2.0 keep under /_etcd/machines.
func (s *ServerOps) Machines(ctx context.Context) ([]Machine, error) {
	node, err := s.s.Send(ctx, &Request{Method: http.MethodGet, Path: "/keys/_etcd/machines", NoReconnect: true})
	if err != nil {
		return nil, err
	}
	if apiErr, err := node.APIError(); err == nil {
		return nil, apiErr
	}

	children, err := node.Children()
	if err != nil {
		return nil, err
	}

	machines := make([]Machine, 0, len(children))
	for _, c := range children {
		value, _ := c.Value()
		info, err := url.ParseQuery(value)
		if err != nil {
			return nil, err
		}
		machines = append(machines, Machine{
			Name:      c.Name(),
			ClientURL: info.Get("etcd"),
			PeerURL:   info.Get("raft"),
		})
	}
	return machines, nil
}

func (s *ServerOps) Members(ctx context.Context) ([]ClusterMember, error) {
	raw, err := s.s.SendRaw(ctx, &Request{Method: http.MethodGet, Path: "/members"})
	if err != nil {
		return nil, err
	}

	doc := struct {
		Members []ClusterMember `json:"members"`
	}{}
	if err := raw.decode(&doc); err != nil {
		return nil, err
	}
	return doc.Members, nil
}

func (s *ServerOps) DashboardURL() string {
	return s.s.Prefix() + "/mod/dashboard"
}

// Health asks every member for its version at the same time. A member is
// healthy when it answers with a version this client understands.
func (s *ServerOps) Health(ctx context.Context) ([]MemberHealth, error) {
	members, err := s.Members(ctx)
	if err != nil {
		return nil, err
	}

	results := make([]MemberHealth, len(members))
	g, gctx := errgroup.WithContext(ctx)
	for i, m := range members {
		if len(m.ClientURLs) == 0 {
			results[i] = MemberHealth{URL: m.Name, Err: errNoClientURL}
			continue
		}
		i, target := i, strings.TrimRight(m.ClientURLs[0], "/")
		g.Go(func() error {
			results[i] = s.probe(gctx, target)
			return nil
		})
	}
	g.Wait()
	return results, nil
}

func (s *ServerOps) probe(ctx context.Context, target string) MemberHealth {
	health := MemberHealth{URL: target}

	raw, err := s.s.Fetch(ctx, target+"/version")
	if err == nil {
		var text string
		if text, err = raw.text(); err == nil {
			if v, perr := version.Parse(text); perr == nil {
				health.Healthy = true
				health.Version = v.String()
			} else {
				err = perr
			}
		}
	}
	health.Err = err
	return health
}

func (r *RawResponse) decode(v interface{}) error {
	if !isSuccess(r.StatusCode) {
		return r.httpError()
	}
	return json.Unmarshal(r.Body, v)
}
