// Package zabbixtest provides an in-process fake of the administrative JSON-RPC API.
package zabbixtest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"

	"zac/internal/zabbix"
)

const (
	// AdminUserID is the id of the seeded "Admin" user.
	AdminUserID = "1"
	// ServerHostID is the id of the seeded "Zabbix server" host.
	ServerHostID = "10084"
	// LinuxGroupID is the id of the seeded "Linux servers" group.
	LinuxGroupID = "2"
	// Token is the session token issued by user.login.
	Token = "0424bd59b807674191e7d77572075f33"
)

// Call is one recorded JSON-RPC request.
type Call struct {
	Method string
	Auth   string
	Params json.RawMessage
}

// Decode unmarshals recorded params into v.
func (c Call) Decode(v any) error {
	return json.Unmarshal(c.Params, v)
}

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
	Auth    string          `json:"auth"`
	ID      int             `json:"id"`
}

// Server is a fake administrative API with mutable in-memory state.
type Server struct {
	mu       sync.Mutex
	ts       *httptest.Server
	URL      string
	closed   bool
	user     string
	password string
	version  string
	nextID   int
	calls    []Call
	failures map[string]*zabbix.APIError

	mediaTypes []zabbix.MediaType
	users      []zabbix.User
	userMedia  map[string][]zabbix.Media
	actions    []zabbix.Action
	created    []zabbix.ActionCreate
	hosts      []zabbix.Host
	groups     []zabbix.HostGroup
	templates  []zabbix.Template
	items      []zabbix.Item
	triggers   []zabbix.Trigger
}

// NewServer starts a fake seeded like a fresh dockerized server:
// user Admin/zabbix, host "Zabbix server", group "Linux servers",
// and the templates used by the default demo topology.
func NewServer() *Server {
	s := &Server{
		user:      "Admin",
		password:  "zabbix",
		version:   "3.4.15",
		nextID:    100,
		failures:  make(map[string]*zabbix.APIError),
		userMedia: make(map[string][]zabbix.Media),
		users: []zabbix.User{
			{ID: AdminUserID, Alias: "Admin", Name: "Zabbix", Surname: "Administrator"},
			{ID: "2", Alias: "guest"},
		},
		hosts: []zabbix.Host{
			{ID: ServerHostID, Host: "Zabbix server", Name: "Zabbix server", Status: "1"},
		},
		groups: []zabbix.HostGroup{
			{ID: "1", Name: "Templates"},
			{ID: LinuxGroupID, Name: "Linux servers"},
			{ID: "4", Name: "Zabbix servers"},
		},
		templates: []zabbix.Template{
			{ID: "10001", Name: "Template OS Linux"},
			{ID: "10047", Name: "Template App Zabbix Server"},
			{ID: "10050", Name: "Template App Zabbix Agent"},
			{ID: "10166", Name: "Template App MySQL"},
			{ID: "10094", Name: "Template App HTTP Service"},
			{ID: "10186", Name: "Template ICMP Ping"},
		},
	}
	s.ts = httptest.NewServer(http.HandlerFunc(s.serveHTTP))
	s.URL = s.ts.URL
	return s
}

// Close stops the HTTP server.
func (s *Server) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.ts.Close()
}

// SetCredentials changes the accepted login.
func (s *Server) SetCredentials(user, password string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user, s.password = user, password
}

// SetNextID sets the id handed out by the next create call.
func (s *Server) SetNextID(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID = id
}

// Fail makes every call of method return err until cleared with a nil err.
func (s *Server) Fail(method string, err *zabbix.APIError) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, method)
		return
	}
	s.failures[method] = err
}

// AddMediaType seeds an existing media type.
func (s *Server) AddMediaType(mediaType zabbix.MediaType) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mediaTypes = append(s.mediaTypes, mediaType)
}

// AddUser seeds an extra user.
func (s *Server) AddUser(user zabbix.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users = append(s.users, user)
}

// RemoveUser drops a user by alias.
func (s *Server) RemoveUser(alias string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users = filter(s.users, func(u zabbix.User) bool { return u.Alias != alias })
}

// AddHost seeds an existing host.
func (s *Server) AddHost(host zabbix.Host) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hosts = append(s.hosts, host)
}

// SetTriggerValue sets the evaluated value returned for a trigger.
func (s *Server) SetTriggerValue(triggerID string, value zabbix.TriggerValue) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for idx := range s.triggers {
		if s.triggers[idx].ID == triggerID {
			s.triggers[idx].Value = value
		}
	}
}

// SetItemValue stores the last value of every item with host name and key,
// as the trapper would after receiving a sender push.
// Returns: number of items updated.
func (s *Server) SetItemValue(hostName, key, value string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	host, ok := zabbix.FindBy(s.hosts, func(h zabbix.Host) bool { return h.Host == hostName })
	if !ok {
		return 0
	}
	updated := 0
	for idx := range s.items {
		if s.items[idx].HostID == host.ID && s.items[idx].Key == key {
			s.items[idx].LastValue = value
			updated++
		}
	}
	return updated
}

// Calls returns all recorded requests.
func (s *Server) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// CallsFor returns recorded requests of one method.
func (s *Server) CallsFor(method string) []Call {
	return filter(s.Calls(), func(c Call) bool { return c.Method == method })
}

// MediaTypes returns current media types.
func (s *Server) MediaTypes() []zabbix.MediaType {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]zabbix.MediaType(nil), s.mediaTypes...)
}

// UserMedia returns the media list bound to a user.
func (s *Server) UserMedia(userID string) []zabbix.Media {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]zabbix.Media(nil), s.userMedia[userID]...)
}

// CreatedActions returns payloads of every action.create call in order.
func (s *Server) CreatedActions() []zabbix.ActionCreate {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]zabbix.ActionCreate(nil), s.created...)
}

// Hosts returns current hosts.
func (s *Server) Hosts() []zabbix.Host {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]zabbix.Host(nil), s.hosts...)
}

// Items returns current items.
func (s *Server) Items() []zabbix.Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]zabbix.Item(nil), s.items...)
}

// Triggers returns current triggers.
func (s *Server) Triggers() []zabbix.Trigger {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]zabbix.Trigger(nil), s.triggers...)
}

func (s *Server) serveHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost || r.URL.Path != "/api_jsonrpc.php" {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	var request rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		writeResponse(w, 0, nil, &zabbix.APIError{Code: -32700, Message: "Parse error.", Data: err.Error()})
		return
	}

	s.mu.Lock()
	s.calls = append(s.calls, Call{Method: request.Method, Auth: request.Auth, Params: request.Params})
	result, apiErr := s.dispatch(request)
	s.mu.Unlock()

	writeResponse(w, request.ID, result, apiErr)
}

func writeResponse(w http.ResponseWriter, id int, result any, apiErr *zabbix.APIError) {
	body := map[string]any{"jsonrpc": "2.0", "id": id}
	if apiErr != nil {
		body["error"] = apiErr
	} else {
		body["result"] = result
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(body)
}

// dispatch runs under s.mu.
func (s *Server) dispatch(request rpcRequest) (any, *zabbix.APIError) {
	if failure, ok := s.failures[request.Method]; ok {
		return nil, failure
	}
	if request.Method != "apiinfo.version" && request.Method != "user.login" && request.Auth != Token {
		return nil, invalidParams("Not authorised.")
	}

	switch request.Method {
	case "apiinfo.version":
		return s.version, nil
	case "user.login":
		return s.login(request.Params)
	case "mediatype.get":
		return s.mediaTypes, nil
	case "mediatype.create":
		return s.createMediaType(request.Params)
	case "user.get":
		return s.users, nil
	case "user.updatemedia":
		return s.updateMedia(request.Params)
	case "action.get":
		return s.getActions(request.Params)
	case "action.create":
		return s.createAction(request.Params)
	case "host.get":
		return s.hosts, nil
	case "host.update":
		return s.updateHost(request.Params)
	case "host.create":
		return s.createHost(request.Params)
	case "hostgroup.get":
		return s.groups, nil
	case "template.get":
		return s.templates, nil
	case "item.create":
		return s.createItem(request.Params)
	case "item.get":
		return s.getItems(request.Params)
	case "item.delete":
		return s.deleteItems(request.Params)
	case "trigger.create":
		return s.createTrigger(request.Params)
	case "trigger.get":
		return s.getTriggers(request.Params)
	case "trigger.delete":
		return s.deleteTriggers(request.Params)
	default:
		return nil, &zabbix.APIError{Code: -32601, Message: "Method not found.", Data: "Incorrect API \"" + request.Method + "\"."}
	}
}

func (s *Server) login(raw json.RawMessage) (any, *zabbix.APIError) {
	var params struct {
		User     string `json:"user"`
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, invalidParams(err.Error())
	}
	user := params.User
	if user == "" {
		user = params.Username
	}
	if user != s.user || params.Password != s.password {
		return nil, invalidParams("Login name or password is incorrect.")
	}
	return Token, nil
}

func (s *Server) createMediaType(raw json.RawMessage) (any, *zabbix.APIError) {
	var params zabbix.MediaTypeCreate
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, invalidParams(err.Error())
	}
	if _, exists := zabbix.FindBy(s.mediaTypes, func(m zabbix.MediaType) bool { return m.Description == params.Description }); exists {
		return nil, invalidParams(fmt.Sprintf("Media type %q already exists.", params.Description))
	}
	id := s.allocateID()
	s.mediaTypes = append(s.mediaTypes, zabbix.MediaType{
		ID:              id,
		Description:     params.Description,
		Type:            strconv.Itoa(int(params.Type)),
		ExecPath:        params.ExecPath,
		ExecParams:      params.ExecParams,
		MaxAttempts:     params.MaxAttempts,
		AttemptInterval: params.AttemptInterval,
		Status:          "0",
	})
	return map[string][]string{"mediatypeids": {id}}, nil
}

func (s *Server) updateMedia(raw json.RawMessage) (any, *zabbix.APIError) {
	var params struct {
		Users  struct{ UserID string `json:"userid"` } `json:"users"`
		Medias []zabbix.Media                          `json:"medias"`
	}
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, invalidParams(err.Error())
	}
	if _, ok := zabbix.FindBy(s.users, func(u zabbix.User) bool { return u.ID == params.Users.UserID }); !ok {
		return nil, noPermissions()
	}
	for _, media := range params.Medias {
		if _, ok := zabbix.FindBy(s.mediaTypes, func(m zabbix.MediaType) bool { return m.ID == media.MediaTypeID }); !ok {
			return nil, noPermissions()
		}
	}
	s.userMedia[params.Users.UserID] = params.Medias
	return map[string][]string{"userids": {params.Users.UserID}}, nil
}

func (s *Server) getActions(raw json.RawMessage) (any, *zabbix.APIError) {
	var params struct {
		Filter struct {
			Name []string `json:"name"`
		} `json:"filter"`
	}
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, invalidParams(err.Error())
	}
	if len(params.Filter.Name) == 0 {
		return s.actions, nil
	}
	names := make(map[string]struct{}, len(params.Filter.Name))
	for _, name := range params.Filter.Name {
		names[name] = struct{}{}
	}
	return filter(s.actions, func(a zabbix.Action) bool {
		_, ok := names[a.Name]
		return ok
	}), nil
}

func (s *Server) createAction(raw json.RawMessage) (any, *zabbix.APIError) {
	var params zabbix.ActionCreate
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, invalidParams(err.Error())
	}
	id := s.allocateID()
	s.actions = append(s.actions, zabbix.Action{
		ID:          id,
		Name:        params.Name,
		EventSource: strconv.Itoa(int(params.EventSource)),
		Status:      strconv.Itoa(int(params.Status)),
		EscPeriod:   strconv.Itoa(params.EscPeriod),
	})
	s.created = append(s.created, params)
	return map[string][]string{"actionids": {id}}, nil
}

func (s *Server) updateHost(raw json.RawMessage) (any, *zabbix.APIError) {
	var params struct {
		HostID string        `json:"hostid"`
		Status zabbix.Status `json:"status"`
	}
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, invalidParams(err.Error())
	}
	for idx := range s.hosts {
		if s.hosts[idx].ID == params.HostID {
			s.hosts[idx].Status = strconv.Itoa(int(params.Status))
			return map[string][]string{"hostids": {params.HostID}}, nil
		}
	}
	return nil, noPermissions()
}

func (s *Server) createHost(raw json.RawMessage) (any, *zabbix.APIError) {
	var params zabbix.HostCreate
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, invalidParams(err.Error())
	}
	if _, exists := zabbix.FindBy(s.hosts, func(h zabbix.Host) bool { return h.Host == params.Host }); exists {
		return nil, invalidParams(fmt.Sprintf("Host with the same name %q already exists.", params.Host))
	}
	for _, group := range params.Groups {
		if _, ok := zabbix.FindBy(s.groups, func(g zabbix.HostGroup) bool { return g.ID == group.GroupID }); !ok {
			return nil, noPermissions()
		}
	}
	for _, template := range params.Templates {
		if _, ok := zabbix.FindBy(s.templates, func(t zabbix.Template) bool { return t.ID == template.TemplateID }); !ok {
			return nil, noPermissions()
		}
	}
	id := s.allocateID()
	s.hosts = append(s.hosts, zabbix.Host{ID: id, Host: params.Host, Name: params.Host, Status: "0"})
	return map[string][]string{"hostids": {id}}, nil
}

func (s *Server) createItem(raw json.RawMessage) (any, *zabbix.APIError) {
	var params zabbix.ItemCreate
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, invalidParams(err.Error())
	}
	if _, ok := zabbix.FindBy(s.hosts, func(h zabbix.Host) bool { return h.ID == params.HostID }); !ok {
		return nil, noPermissions()
	}
	if _, exists := zabbix.FindBy(s.items, func(i zabbix.Item) bool { return i.HostID == params.HostID && i.Key == params.Key }); exists {
		return nil, invalidParams(fmt.Sprintf("Item with key %q already exists on host.", params.Key))
	}
	id := s.allocateID()
	s.items = append(s.items, zabbix.Item{ID: id, HostID: params.HostID, Key: params.Key})
	return map[string][]string{"itemids": {id}}, nil
}

func (s *Server) getItems(raw json.RawMessage) (any, *zabbix.APIError) {
	var params struct {
		ItemIDs []string `json:"itemids"`
	}
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, invalidParams(err.Error())
	}
	ids := toSet(params.ItemIDs)
	return filter(s.items, func(i zabbix.Item) bool {
		_, ok := ids[i.ID]
		return ok
	}), nil
}

func (s *Server) deleteItems(raw json.RawMessage) (any, *zabbix.APIError) {
	var ids []string
	if err := json.Unmarshal(raw, &ids); err != nil {
		return nil, invalidParams(err.Error())
	}
	remaining, err := removeByID(s.items, ids, func(i zabbix.Item) string { return i.ID })
	if err != nil {
		return nil, err
	}
	s.items = remaining
	return map[string][]string{"itemids": ids}, nil
}

func (s *Server) createTrigger(raw json.RawMessage) (any, *zabbix.APIError) {
	var params zabbix.TriggerCreate
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, invalidParams(err.Error())
	}
	id := s.allocateID()
	s.triggers = append(s.triggers, zabbix.Trigger{
		ID:          id,
		Description: params.Description,
		Expression:  params.Expression,
		Value:       zabbix.TriggerOK,
		Priority:    strconv.Itoa(int(params.Priority)),
	})
	return map[string][]string{"triggerids": {id}}, nil
}

func (s *Server) getTriggers(raw json.RawMessage) (any, *zabbix.APIError) {
	var params struct {
		TriggerIDs []string `json:"triggerids"`
	}
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, invalidParams(err.Error())
	}
	ids := toSet(params.TriggerIDs)
	return filter(s.triggers, func(t zabbix.Trigger) bool {
		_, ok := ids[t.ID]
		return ok
	}), nil
}

func (s *Server) deleteTriggers(raw json.RawMessage) (any, *zabbix.APIError) {
	var ids []string
	if err := json.Unmarshal(raw, &ids); err != nil {
		return nil, invalidParams(err.Error())
	}
	remaining, err := removeByID(s.triggers, ids, func(t zabbix.Trigger) string { return t.ID })
	if err != nil {
		return nil, err
	}
	s.triggers = remaining
	return map[string][]string{"triggerids": ids}, nil
}

func (s *Server) allocateID() string {
	id := strconv.Itoa(s.nextID)
	s.nextID++
	return id
}

func invalidParams(data string) *zabbix.APIError {
	return &zabbix.APIError{Code: -32602, Message: "Invalid params.", Data: data}
}

func noPermissions() *zabbix.APIError {
	return invalidParams("No permissions to referred object or it does not exist!")
}

func filter[T any](records []T, keep func(T) bool) []T {
	out := make([]T, 0, len(records))
	for _, record := range records {
		if keep(record) {
			out = append(out, record)
		}
	}
	return out
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, value := range values {
		set[value] = struct{}{}
	}
	return set
}

func removeByID[T any](records []T, ids []string, idOf func(T) string) ([]T, *zabbix.APIError) {
	drop := toSet(ids)
	for id := range drop {
		if _, ok := zabbix.FindBy(records, func(r T) bool { return idOf(r) == id }); !ok {
			return nil, noPermissions()
		}
	}
	return filter(records, func(r T) bool {
		_, ok := drop[idOf(r)]
		return !ok
	}), nil
}
