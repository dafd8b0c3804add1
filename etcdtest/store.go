package etcdtest

import (
	"fmt"
	"net/http"
	"path"
	"sort"
	"strings"
	"time"
)

type (
	entry struct {
		key        string
		value      string
		dir        bool
		children   map[string]*entry
		created    uint64
		modified   uint64
		expiration *time.Time
	}

	nodeJSON struct {
		Key           string      `json:"key"`
		Value         *string     `json:"value,omitempty"`
		Dir           bool        `json:"dir,omitempty"`
		Nodes         []*nodeJSON `json:"nodes,omitempty"`
		Expiration    *time.Time  `json:"expiration,omitempty"`
		TTL           int64       `json:"ttl,omitempty"`
		ModifiedIndex uint64      `json:"modifiedIndex"`
		CreatedIndex  uint64      `json:"createdIndex"`
	}

	event struct {
		Action   string    `json:"action"`
		Node     *nodeJSON `json:"node"`
		PrevNode *nodeJSON `json:"prevNode,omitempty"`

		index  uint64
		status int
	}

	apiError struct {
		ErrorCode int    `json:"errorCode"`
		Message   string `json:"message"`
		Cause     string `json:"cause"`
		Index     uint64 `json:"index"`

		status int
	}

	// setRequest is a parsed PUT or POST.
	setRequest struct {
		value     string
		dir       bool
		ttl       time.Duration
		prevExist *bool
		prevValue *string
		prevIndex uint64
		refresh   bool
	}

	deleteRequest struct {
		dir       bool
		recursive bool
		prevValue *string
		prevIndex uint64
	}

	// store is the key tree. Callers hold the server lock.
	store struct {
		root    *entry
		index   uint64
		history []*event
		stats   map[string]uint64
	}
)

var errorMessages = map[int]string{
	100: "Key not found",
	101: "Compare failed",
	102: "Not a file",
	104: "Not a directory",
	105: "Key already exists",
	107: "The root is read only",
	108: "Directory not empty",
	202: "The given TTL in POST form is not a number",
	203: "The given index in POST form is not a number",
	209: "Invalid field",
	211: "Value provided on refresh",
	212: "A TTL must be provided on refresh",
}

var errorStatus = map[int]int{
	100: http.StatusNotFound,
	101: http.StatusPreconditionFailed,
	102: http.StatusForbidden,
	104: http.StatusForbidden,
	105: http.StatusPreconditionFailed,
	107: http.StatusForbidden,
	108: http.StatusForbidden,
}

func (e *apiError) Error() string {
	return fmt.Sprintf("%s (%d): %s", e.Message, e.ErrorCode, e.Cause)
}

func newStore() *store {
	return &store{
		root:  &entry{key: "/", dir: true, children: map[string]*entry{}},
		stats: map[string]uint64{},
	}
}

func (s *store) newError(code int, cause string) *apiError {
	status, ok := errorStatus[code]
	if !ok {
		status = http.StatusBadRequest
	}
	return &apiError{
		ErrorCode: code,
		Message:   errorMessages[code],
		Cause:     cause,
		Index:     s.index,
		status:    status,
	}
}

func (s *store) count(op string, err *apiError) {
	if err != nil {
		s.stats[op+"Fail"]++
		return
	}
	s.stats[op+"Success"]++
}

func cleanKey(key string) string {
	return path.Clean("/" + key)
}

func segments(key string) []string {
	key = strings.Trim(key, "/")
	if key == "" {
		return nil
	}
	return strings.Split(key, "/")
}

func (e *entry) expired(now time.Time) bool {
	return e.expiration != nil && !now.Before(*e.expiration)
}

// purge drops expired entries below e.
func (s *store) purge(e *entry, now time.Time) {
	for name, c := range e.children {
		if c.expired(now) {
			delete(e.children, name)
			s.stats["expireCount"]++
			continue
		}
		if c.dir {
			s.purge(c, now)
		}
	}
}

func (s *store) lookup(key string) *entry {
	s.purge(s.root, time.Now())
	e := s.root
	for _, seg := range segments(key) {
		if !e.dir {
			return nil
		}
		c, ok := e.children[seg]
		if !ok {
			return nil
		}
		e = c
	}
	return e
}

// parent returns the directory that holds key, creating missing directories.
func (s *store) parent(key string) (*entry, *apiError) {
	segs := segments(key)
	e := s.root
	for i, seg := range segs[:len(segs)-1] {
		c, ok := e.children[seg]
		if !ok {
			c = &entry{
				key:      "/" + strings.Join(segs[:i+1], "/"),
				dir:      true,
				children: map[string]*entry{},
				created:  s.index,
				modified: s.index,
			}
			e.children[seg] = c
		}
		if !c.dir {
			return nil, s.newError(104, c.key)
		}
		e = c
	}
	return e, nil
}

func (e *entry) json(recursive, sorted bool, depth int) *nodeJSON {
	n := &nodeJSON{
		Key:           e.key,
		Dir:           e.dir,
		ModifiedIndex: e.modified,
		CreatedIndex:  e.created,
	}
	if e.expiration != nil {
		exp := *e.expiration
		n.Expiration = &exp
		n.TTL = int64(time.Until(exp)/time.Second) + 1
	}
	if !e.dir {
		v := e.value
		n.Value = &v
		return n
	}
	if depth > 0 && !recursive {
		return n
	}
	for name, c := range e.children {
		if strings.HasPrefix(name, "_") {
			continue
		}
		n.Nodes = append(n.Nodes, c.json(recursive, sorted, depth+1))
	}
	if sorted {
		sort.Slice(n.Nodes, func(i, j int) bool { return n.Nodes[i].Key < n.Nodes[j].Key })
	}
	return n
}

func (s *store) record(ev *event) *event {
	ev.index = s.index
	s.history = append(s.history, ev)
	if len(s.history) > 1000 {
		s.history = s.history[1:]
	}
	return ev
}

func (s *store) get(key string, recursive, sorted bool) (*event, *apiError) {
	key = cleanKey(key)
	e := s.lookup(key)
	if e == nil {
		err := s.newError(100, key)
		s.count("gets", err)
		return nil, err
	}
	s.count("gets", nil)
	return &event{Action: "get", Node: e.json(recursive, sorted, 0), status: http.StatusOK}, nil
}

func (s *store) set(key string, req setRequest) (*event, *apiError) {
	key = cleanKey(key)
	if key == "/" {
		return nil, s.newError(107, "/")
	}

	existing := s.lookup(key)
	var prev *nodeJSON
	if existing != nil {
		prev = existing.json(false, false, 1)
	}

	switch {
	case req.refresh:
		return s.refresh(key, existing, req)
	case req.prevValue != nil || req.prevIndex > 0:
		return s.compareAndSwap(key, existing, prev, req)
	case req.prevExist != nil && *req.prevExist:
		if existing == nil {
			return s.fail("update", s.newError(100, key))
		}
		if existing.dir && !req.dir {
			return s.fail("update", s.newError(102, key))
		}
		return s.write("update", key, req, existing, prev, http.StatusOK)
	case req.prevExist != nil && !*req.prevExist:
		if existing != nil {
			return s.fail("create", s.newError(105, key))
		}
		return s.write("create", key, req, nil, nil, http.StatusCreated)
	}

	if existing != nil && existing.dir {
		return s.fail("sets", s.newError(102, key))
	}
	status := http.StatusCreated
	if existing != nil {
		status = http.StatusOK
	}
	return s.write("set", key, req, existing, prev, status)
}

func (s *store) refresh(key string, existing *entry, req setRequest) (*event, *apiError) {
	switch {
	case existing == nil:
		return s.fail("update", s.newError(100, key))
	case req.value != "":
		return s.fail("update", s.newError(211, key))
	case req.ttl <= 0:
		return s.fail("update", s.newError(212, key))
	}
	prev := existing.json(false, false, 1)
	s.index++
	exp := time.Now().Add(req.ttl)
	existing.expiration = &exp
	existing.modified = s.index
	s.count("update", nil)
	return s.record(&event{Action: "update", Node: existing.json(false, false, 1), PrevNode: prev, status: http.StatusOK}), nil
}

func (s *store) compareAndSwap(key string, existing *entry, prev *nodeJSON, req setRequest) (*event, *apiError) {
	if existing == nil {
		return s.fail("compareAndSwap", s.newError(100, key))
	}
	if existing.dir {
		return s.fail("compareAndSwap", s.newError(102, key))
	}
	if cause, ok := matches(existing, req.prevValue, req.prevIndex); !ok {
		return s.fail("compareAndSwap", s.newError(101, cause))
	}
	return s.write("compareAndSwap", key, req, existing, prev, http.StatusOK)
}

func (s *store) fail(op string, err *apiError) (*event, *apiError) {
	s.count(op, err)
	return nil, err
}

func matches(e *entry, prevValue *string, prevIndex uint64) (string, bool) {
	var causes []string
	if prevValue != nil && *prevValue != e.value {
		causes = append(causes, fmt.Sprintf("[%s != %s]", *prevValue, e.value))
	}
	if prevIndex > 0 && prevIndex != e.modified {
		causes = append(causes, fmt.Sprintf("[%d != %d]", prevIndex, e.modified))
	}
	return strings.Join(causes, " "), len(causes) == 0
}

func (s *store) write(action, key string, req setRequest, existing *entry, prev *nodeJSON, status int) (*event, *apiError) {
	parent, err := s.parent(key)
	if err != nil {
		return s.fail(statName(action), err)
	}

	s.index++
	e := existing
	if e == nil {
		e = &entry{key: key, created: s.index}
		segs := segments(key)
		parent.children[segs[len(segs)-1]] = e
	}
	e.modified = s.index
	e.dir = req.dir
	e.value = ""
	if req.dir {
		if e.children == nil {
			e.children = map[string]*entry{}
		}
	} else {
		e.children = nil
		e.value = req.value
	}
	e.expiration = nil
	if req.ttl > 0 {
		exp := time.Now().Add(req.ttl)
		e.expiration = &exp
	}

	s.count(statName(action), nil)
	return s.record(&event{Action: action, Node: e.json(false, false, 1), PrevNode: prev, status: status}), nil
}

func statName(action string) string {
	if action == "set" {
		return "sets"
	}
	return action
}

// createInOrder adds a key below dir named after the new index.
func (s *store) createInOrder(dir string, req setRequest) (*event, *apiError) {
	dir = cleanKey(dir)
	if d := s.lookup(dir); d != nil && !d.dir {
		return s.fail("create", s.newError(104, dir))
	}
	key := path.Join(dir, fmt.Sprintf("%020d", s.index+1))
	return s.write("create", key, req, nil, nil, http.StatusCreated)
}

func (s *store) delete(key string, req deleteRequest) (*event, *apiError) {
	key = cleanKey(key)
	if key == "/" {
		return nil, s.newError(107, "/")
	}

	e := s.lookup(key)
	if e == nil {
		return s.fail("delete", s.newError(100, key))
	}

	action := "delete"
	if req.prevValue != nil || req.prevIndex > 0 {
		action = "compareAndDelete"
		if e.dir {
			return s.fail(action, s.newError(102, key))
		}
		if cause, ok := matches(e, req.prevValue, req.prevIndex); !ok {
			return s.fail(action, s.newError(101, cause))
		}
	}

	if e.dir {
		if !req.dir && !req.recursive {
			return s.fail(action, s.newError(102, key))
		}
		if len(e.children) > 0 && !req.recursive {
			return s.fail(action, s.newError(108, key))
		}
	}

	prev := e.json(false, false, 1)
	parent, _ := s.parent(key)
	segs := segments(key)
	delete(parent.children, segs[len(segs)-1])

	s.index++
	node := &nodeJSON{Key: key, Dir: e.dir, CreatedIndex: e.created, ModifiedIndex: s.index}
	s.count(action, nil)
	return s.record(&event{Action: action, Node: node, PrevNode: prev, status: http.StatusOK}), nil
}

// since returns the first recorded event at or after index that matches.
func (s *store) since(index uint64, match func(*event) bool) *event {
	for _, ev := range s.history {
		if ev.index >= index && match(ev) {
			return ev
		}
	}
	return nil
}

func (s *store) snapshotStats() map[string]uint64 {
	stats := map[string]uint64{}
	for k, v := range s.stats {
		stats[k] = v
	}
	return stats
}
