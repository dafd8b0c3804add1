// Package etcdtest runs an in-memory etcd v2 server for tests and demos. It
// speaks the keys, members, leader, stats and version endpoints, and can be
// told to close long-polls with an empty body the way real servers do when a
// wait times out.
package etcdtest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"

	restful "github.com/emicklei/go-restful/v3"
	uuid "github.com/satori/go.uuid"

	"github.com/AcalephStorage/etcdv2/util"
)

const (
	DefaultVersion = `{"etcdserver":"2.3.7","etcdcluster":"2.3.0"}`
	formMIME       = "application/x-www-form-urlencoded"
)

var testLog = util.NewContextLogger("etcdtest")

type (
	Server struct {
		// URL is the base URL of the running server.
		URL string

		mu          sync.Mutex
		store       *store
		watchers    map[*watcher]struct{}
		http        *httptest.Server
		done        chan struct{}
		closeOnce   sync.Once
		id          string
		name        string
		version     string
		clientURLs  []string
		waitTimeout time.Duration
		started     time.Time
	}

	watcher struct {
		key       string
		recursive bool
		events    chan *event
	}

	Option func(*Server)

	member struct {
		ID         string   `json:"id"`
		Name       string   `json:"name"`
		PeerURLs   []string `json:"peerURLs"`
		ClientURLs []string `json:"clientURLs"`
	}
)

// WithVersion sets the body of /version, e.g. "etcd v0.4.6".
func WithVersion(text string) Option {
	return func(s *Server) {
		s.version = text
	}
}

// WithClientURLs sets the member URLs advertised by /v2/members and the
// legacy machines list. The server's own URL is used by default.
func WithClientURLs(urls ...string) Option {
	return func(s *Server) {
		s.clientURLs = urls
	}
}

// WithWaitTimeout closes long-polls that saw no change with an empty 200.
func WithWaitTimeout(d time.Duration) Option {
	return func(s *Server) {
		s.waitTimeout = d
	}
}

func WithName(name string) Option {
	return func(s *Server) {
		s.name = name
	}
}

// Start runs a server on a random local port.
func Start(opts ...Option) *Server {
	s := &Server{
		store:    newStore(),
		watchers: map[*watcher]struct{}{},
		done:     make(chan struct{}),
		id:       strings.Replace(uuid.NewV4().String(), "-", "", -1)[:16],
		name:     "default",
		version:  DefaultVersion,
		started:  time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.http = httptest.NewServer(s.container())
	s.URL = s.http.URL
	if len(s.clientURLs) == 0 {
		s.clientURLs = []string{s.URL}
	}
	s.publishMachines()

	testLog.InFunc("Start").Debugf("etcd test server %s listening on %s", s.name, s.URL)
	return s
}

// Close ends pending long-polls and stops the server.
func (s *Server) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.http.Close()
	})
}

// Index is the current store index.
func (s *Server) Index() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.index
}

// publishMachines writes the legacy member list under /_etcd/machines.
func (s *Server) publishMachines() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, u := range s.clientURLs {
		key := "/_etcd/machines/" + s.name + strconv.Itoa(i)
		value := "etcd=" + u + "&raft=" + u
		s.store.set(key, setRequest{value: value})
	}
}

func (s *Server) container() *restful.Container {
	container := restful.NewContainer()
	container.Filter(requestLogger)

	root := new(restful.WebService)
	root.Produces(restful.MIME_JSON, "text/plain")
	root.Route(root.GET("/version").To(s.getVersion))
	container.Add(root)

	ws := new(restful.WebService)
	ws.Path("/v2").
		Consumes(formMIME).
		Produces(restful.MIME_JSON, "text/plain")

	for _, p := range []string{"/keys", "/keys/{key:*}"} {
		ws.Route(ws.GET(p).To(s.getKey))
		ws.Route(ws.PUT(p).To(s.putKey))
		ws.Route(ws.POST(p).To(s.postKey))
		ws.Route(ws.DELETE(p).To(s.deleteKey))
	}
	ws.Route(ws.GET("/members").To(s.getMembers))
	ws.Route(ws.GET("/leader").To(s.getLeader))
	ws.Route(ws.GET("/stats/{kind}").To(s.getStats))
	container.Add(ws)

	return container
}

func requestLogger(req *restful.Request, res *restful.Response, chain *restful.FilterChain) {
	log := testLog.InFunc("requestLogger")
	log.Debugf("--- %s %s", req.Request.Method, req.Request.URL.RequestURI())
	chain.ProcessFilter(req, res)
	log.Debugf("--- status-code: %d, content-length: %d", res.StatusCode(), res.ContentLength())
}

func keyOf(req *restful.Request) string {
	return cleanKey(strings.TrimPrefix(req.Request.URL.Path, "/v2/keys"))
}

func (s *Server) getVersion(req *restful.Request, res *restful.Response) {
	res.Write([]byte(s.version))
}

func (s *Server) getMembers(req *restful.Request, res *restful.Response) {
	members := make([]member, len(s.clientURLs))
	for i, u := range s.clientURLs {
		members[i] = member{
			ID:         s.id + strconv.Itoa(i),
			Name:       s.name + strconv.Itoa(i),
			PeerURLs:   []string{u},
			ClientURLs: []string{u},
		}
	}
	s.writeJSON(res, http.StatusOK, s.Index(), map[string][]member{"members": members})
}

func (s *Server) getLeader(req *restful.Request, res *restful.Response) {
	res.Write([]byte(s.clientURLs[0]))
}

func (s *Server) getStats(req *restful.Request, res *restful.Response) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch req.PathParameter("kind") {
	case "self":
		s.writeJSON(res, http.StatusOK, s.store.index, map[string]interface{}{
			"name":      s.name,
			"id":        s.id,
			"state":     "StateLeader",
			"startTime": s.started.Format(time.RFC3339Nano),
			"leaderInfo": map[string]string{
				"leader":    s.id,
				"uptime":    time.Since(s.started).String(),
				"startTime": s.started.Format(time.RFC3339Nano),
			},
		})
	case "leader":
		s.writeJSON(res, http.StatusOK, s.store.index, map[string]interface{}{
			"leader":    s.id,
			"followers": map[string]interface{}{},
		})
	case "store":
		stats := s.store.snapshotStats()
		stats["watchers"] = uint64(len(s.watchers))
		s.writeJSON(res, http.StatusOK, s.store.index, stats)
	default:
		res.WriteErrorString(http.StatusNotFound, "404 page not found")
	}
}

func (s *Server) getKey(req *restful.Request, res *restful.Response) {
	key := keyOf(req)
	if req.QueryParameter("wait") == "true" {
		s.wait(key, req, res)
		return
	}

	s.mu.Lock()
	ev, err := s.store.get(key, req.QueryParameter("recursive") == "true", req.QueryParameter("sorted") == "true")
	s.mu.Unlock()
	s.respond(res, ev, err)
}

func (s *Server) putKey(req *restful.Request, res *restful.Response) {
	key := keyOf(req)
	sreq, err := s.parseSet(req)
	if err != nil {
		s.respond(res, nil, err)
		return
	}

	s.mu.Lock()
	ev, err := s.store.set(key, sreq)
	s.notify(ev)
	s.mu.Unlock()
	s.respond(res, ev, err)
}

func (s *Server) postKey(req *restful.Request, res *restful.Response) {
	key := keyOf(req)
	sreq, err := s.parseSet(req)
	if err != nil {
		s.respond(res, nil, err)
		return
	}

	s.mu.Lock()
	ev, err := s.store.createInOrder(key, sreq)
	s.notify(ev)
	s.mu.Unlock()
	s.respond(res, ev, err)
}

func (s *Server) deleteKey(req *restful.Request, res *restful.Response) {
	key := keyOf(req)
	r := req.Request
	r.ParseForm()

	dreq := deleteRequest{
		dir:       r.Form.Get("dir") == "true",
		recursive: r.Form.Get("recursive") == "true",
	}
	if _, ok := r.Form["prevValue"]; ok {
		v := r.Form.Get("prevValue")
		dreq.prevValue = &v
	}
	if idx := r.Form.Get("prevIndex"); idx != "" {
		n, perr := strconv.ParseUint(idx, 10, 64)
		if perr != nil {
			s.mu.Lock()
			err := s.store.newError(203, "prevIndex")
			s.mu.Unlock()
			s.respond(res, nil, err)
			return
		}
		dreq.prevIndex = n
	}

	s.mu.Lock()
	ev, err := s.store.delete(key, dreq)
	s.notify(ev)
	s.mu.Unlock()
	s.respond(res, ev, err)
}

func (s *Server) parseSet(req *restful.Request) (setRequest, *apiError) {
	r := req.Request
	r.ParseForm()

	s.mu.Lock()
	defer s.mu.Unlock()

	sreq := setRequest{
		value:   r.Form.Get("value"),
		dir:     r.Form.Get("dir") == "true",
		refresh: r.Form.Get("refresh") == "true",
	}
	if ttl := r.Form.Get("ttl"); ttl != "" {
		n, err := strconv.ParseInt(ttl, 10, 64)
		if err != nil {
			return sreq, s.store.newError(202, "ttl")
		}
		sreq.ttl = time.Duration(n) * time.Second
	}
	if pe := r.Form.Get("prevExist"); pe != "" {
		b, err := strconv.ParseBool(pe)
		if err != nil {
			return sreq, s.store.newError(209, "prevExist")
		}
		sreq.prevExist = &b
	}
	if _, ok := r.Form["prevValue"]; ok {
		v := r.Form.Get("prevValue")
		sreq.prevValue = &v
	}
	if idx := r.Form.Get("prevIndex"); idx != "" {
		n, err := strconv.ParseUint(idx, 10, 64)
		if err != nil {
			return sreq, s.store.newError(203, "prevIndex")
		}
		sreq.prevIndex = n
	}
	return sreq, nil
}

// wait holds the request until a matching change, the wait timeout, or the
// client going away.
func (s *Server) wait(key string, req *restful.Request, res *restful.Response) {
	recursive := req.QueryParameter("recursive") == "true"
	w := &watcher{key: key, recursive: recursive, events: make(chan *event, 1)}

	s.mu.Lock()
	if idx := req.QueryParameter("waitIndex"); idx != "" {
		n, err := strconv.ParseUint(idx, 10, 64)
		if err != nil {
			apiErr := s.store.newError(203, "waitIndex")
			s.mu.Unlock()
			s.respond(res, nil, apiErr)
			return
		}
		if ev := s.store.since(n, w.matches); ev != nil {
			s.mu.Unlock()
			s.respond(res, ev, nil)
			return
		}
	}
	s.watchers[w] = struct{}{}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.watchers, w)
		s.mu.Unlock()
	}()

	var timeout <-chan time.Time
	if s.waitTimeout > 0 {
		timer := time.NewTimer(s.waitTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case ev := <-w.events:
		s.respond(res, ev, nil)
	case <-timeout:
		res.WriteHeader(http.StatusOK)
	case <-s.done:
		res.WriteHeader(http.StatusOK)
	case <-req.Request.Context().Done():
	}
}

func (w *watcher) matches(ev *event) bool {
	key := ev.Node.Key
	switch {
	case key == w.key:
		return true
	case w.recursive && strings.HasPrefix(key, strings.TrimRight(w.key, "/")+"/"):
		return true
	case strings.HasPrefix(w.key, key+"/") && ev.Node.Dir:
		// a directory above the watched key went away
		return true
	}
	return false
}

// notify hands ev to every matching watcher. Callers hold s.mu.
func (s *Server) notify(ev *event) {
	if ev == nil {
		return
	}
	for w := range s.watchers {
		if !w.matches(ev) {
			continue
		}
		select {
		case w.events <- ev:
		default:
		}
		delete(s.watchers, w)
	}
}

func (s *Server) respond(res *restful.Response, ev *event, err *apiError) {
	index := s.Index()
	if err != nil {
		s.writeJSON(res, err.status, index, err)
		return
	}
	s.writeJSON(res, ev.status, index, ev)
}

func (s *Server) writeJSON(res *restful.Response, status int, index uint64, v interface{}) {
	body, err := json.Marshal(v)
	if err != nil {
		res.WriteErrorString(http.StatusInternalServerError, err.Error())
		return
	}

	res.AddHeader("Content-Type", restful.MIME_JSON)
	res.AddHeader("X-Etcd-Index", strconv.FormatUint(index, 10))
	res.AddHeader("X-Etcd-Cluster-ID", s.id)
	res.WriteHeader(status)
	res.Write(body)
}
