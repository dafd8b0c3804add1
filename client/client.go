// Package client talks to an etcd v2 cluster over HTTP/JSON. Requests go to
// one active member; when that member cannot be reached the client fails
// over to the next live one and retries.
package client

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	uuid "github.com/satori/go.uuid"

	"github.com/AcalephStorage/etcdv2/cluster"
	"github.com/AcalephStorage/etcdv2/response"
	"github.com/AcalephStorage/etcdv2/util"
	"github.com/AcalephStorage/etcdv2/version"
)

const apiVersion = "v2"

var clientLog = util.NewContextLogger("client")

// validResponseErrors are error statuses that still carry a node document.
var validResponseErrors = map[int]bool{
	http.StatusBadRequest:         true,
	http.StatusNotFound:           true,
	http.StatusPreconditionFailed: true,
	http.StatusForbidden:          true,
}

type (
	// Request is one call to the API. Path is relative to the versioned
	// root, e.g. /keys/foo or /members.
	Request struct {
		Method string
		Path   string
		// Value is sent as the "value" form field.
		Value *string
		Query url.Values
		Form  url.Values
		// Module scopes the path to /mod/v2/<module>.
		Module string
		// Unversioned sends Path as is, without the /v2 prefix.
		Unversioned bool
		// NoReconnect returns transport failures instead of failing over.
		NoReconnect bool
	}

	RawResponse struct {
		StatusCode int
		Status     string
		Header     http.Header
		Body       []byte
		URL        string
	}

	Client struct {
		http    *http.Client
		members *cluster.Table
		version *semver.Version
	}

	// sender is what the operation types need from a Client.
	sender interface {
		Send(ctx context.Context, req *Request) (*response.Node, error)
		SendRaw(ctx context.Context, req *Request) (*RawResponse, error)
		Fetch(ctx context.Context, rawurl string) (*RawResponse, error)
		Prefix() string
	}
)

func (r *Request) url(prefix string) string {
	var target string
	switch {
	case r.Unversioned:
		target = prefix + r.Path
	case r.Module != "":
		target = prefix + "/mod/" + apiVersion + "/" + r.Module + r.Path
	default:
		target = prefix + "/" + apiVersion + r.Path
	}
	if len(r.Query) > 0 {
		target += "?" + r.Query.Encode()
	}
	return target
}

func (r *Request) form() url.Values {
	form := url.Values{}
	for k, v := range r.Form {
		form[k] = append([]string(nil), v...)
	}
	if r.Value != nil {
		form.Set("value", *r.Value)
	}
	return form
}

// New builds a client. With config.Discover set it checks the server version
// and replaces the configured endpoints with the members the cluster reports.
func New(ctx context.Context, config *Config) (*Client, error) {
	log := clientLog.InFunc("New")

	if err := config.validate(); err != nil {
		log.WithError(err).Error("invalid client configuration")
		return nil, err
	}

	transport, err := newTransport(config)
	if err != nil {
		log.WithError(err).Error("unable to create http transport")
		return nil, err
	}

	election, _ := config.election()
	members, err := cluster.NewTable(config.Endpoints, config.failWait(), cluster.WithElection(election))
	if err != nil {
		return nil, err
	}

	c := &Client{
		http:    &http.Client{Transport: transport},
		members: members,
	}

	if !config.Discover {
		return c, nil
	}

	urls, err := c.discover(ctx)
	if err != nil {
		log.WithError(err).Error("unable to discover cluster members")
		return nil, err
	}

	c.members, err = cluster.NewTable(urls, config.failWait(), cluster.WithElection(election))
	if err != nil {
		return nil, err
	}
	log.Debugf("cluster members: %v, active: %s", urls, c.members.Active().URL)
	return c, nil
}

func (c *Client) discover(ctx context.Context) ([]string, error) {
	text, err := c.Server().Version(ctx)
	if err != nil {
		return nil, err
	}
	v, err := version.Parse(text)
	if err != nil {
		return nil, err
	}
	if err := version.Check(v); err != nil {
		return nil, err
	}
	c.version = v
	clientLog.InFunc("discover").Debugf("etcd version: %s", v)

	var urls []string
	if version.UsesMachines(v) {
		machines, err := c.Server().Machines(ctx)
		if err != nil {
			return nil, err
		}
		for _, m := range machines {
			urls = append(urls, m.ClientURL)
		}
	} else {
		members, err := c.Server().Members(ctx)
		if err != nil {
			return nil, err
		}
		for _, m := range members {
			if len(m.ClientURLs) > 0 {
				urls = append(urls, m.ClientURLs[0])
			}
		}
	}
	return urls, nil
}

// Version is the server version found during discovery, nil without discovery.
func (c *Client) Version() *semver.Version {
	return c.version
}

// Prefix is the base URL of the active member.
func (c *Client) Prefix() string {
	return c.members.Active().URL
}

func (c *Client) String() string {
	return "<ETCD " + c.Prefix() + ">"
}

// Members returns a snapshot of the member table.
func (c *Client) Members() []cluster.Member {
	return c.members.Members()
}

// Send issues the request and parses the response into a node. Error
// documents come back as error nodes, not as errors.
func (c *Client) Send(ctx context.Context, req *Request) (*response.Node, error) {
	raw, err := c.SendRaw(ctx, req)
	if err != nil {
		return nil, err
	}

	if !isSuccess(raw.StatusCode) && !validResponseErrors[raw.StatusCode] {
		return nil, raw.httpError()
	}
	return response.Parse(raw.Body, raw.StatusCode, req.Method, req.Path)
}

// SendRaw issues the request against the active member, failing over and
// retrying on transport errors until a member answers or none is left. A
// write whose response was lost is sent again to the next member; use the
// compare-and-swap operations where that matters.
func (c *Client) SendRaw(ctx context.Context, req *Request) (*RawResponse, error) {
	id := uuid.NewV4().String()
	form := req.form()

	for {
		member := c.members.Active()
		target := req.url(member.URL)
		log := clientLog.InFunc("SendRaw").ForRequest(id, member.URL)
		log.Debugf("Request(%s)=[%s] form_keys=%v", req.Method, target, keys(form))

		raw, err := c.do(ctx, req.Method, target, form)
		if err == nil {
			log.Debugf("Response(%s)=[%d]", req.Method, raw.StatusCode)
			return raw, nil
		}

		var terr *TransportError
		if !errors.As(err, &terr) {
			return nil, err
		}
		log.WithError(err).Debug("connection error")
		if req.NoReconnect {
			return nil, err
		}

		if _, err := c.members.FailOver(member.URL, time.Now()); err != nil {
			return nil, err
		}
	}
}

// Fetch makes a single GET against an absolute URL, without failover.
func (c *Client) Fetch(ctx context.Context, rawurl string) (*RawResponse, error) {
	return c.do(ctx, http.MethodGet, rawurl, nil)
}

func (c *Client) do(ctx context.Context, method, target string, form url.Values) (*RawResponse, error) {
	var body io.Reader
	if len(form) > 0 {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &TransportError{URL: target, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &BodyReadError{URL: target, Err: err}
	}

	return &RawResponse{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Header:     resp.Header,
		Body:       data,
		URL:        target,
	}, nil
}

func (r *RawResponse) httpError() *HTTPError {
	return &HTTPError{
		URL:        r.URL,
		StatusCode: r.StatusCode,
		Status:     r.Status,
		Body:       r.Body,
	}
}

// text returns the trimmed body of a successful plain text response.
func (r *RawResponse) text() (string, error) {
	if !isSuccess(r.StatusCode) {
		return "", r.httpError()
	}
	return strings.TrimSpace(string(r.Body)), nil
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}

func keys(form url.Values) []string {
	k := make([]string, 0, len(form))
	for key := range form {
		k = append(k, key)
	}
	return k
}

func (c *Client) Keys() *KeyOps {
	return &KeyOps{c}
}

func (c *Client) Directory() *DirectoryOps {
	return &DirectoryOps{c}
}

func (c *Client) Server() *ServerOps {
	return &ServerOps{c}
}

func (c *Client) Stats() *StatOps {
	return &StatOps{c}
}

func (c *Client) Lock() *LockModule {
	return &LockModule{c}
}

func (c *Client) Leader() *LeaderModule {
	return &LeaderModule{c}
}
