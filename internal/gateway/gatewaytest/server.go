// Package gatewaytest runs an in-memory stand-in for the remote EMS API so
// that the gateway, the workflow controller and the HTTP handlers can be
// tested against real HTTP round trips.
package gatewaytest

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/iliyamo/ems-console/internal/model"
)

// Call is one request the server received.
type Call struct {
	Method string
	Path   string
	Query  string
	Auth   string
	Form   map[string][]string
	File   []byte
}

// Server is a fake EMS API.  Its exported fields may be changed between
// requests; use Lock/Unlock around changes made while requests are in
// flight.
type Server struct {
	*httptest.Server

	sync.Mutex
	// Token, when set, is the only bearer token accepted.
	Token string
	// Users maps email to password; sign-in hands out Tokens[email].
	Users  map[string]string
	Tokens map[string]string
	// Tenants is the tenant table, ordered by ID.
	Tenants  []model.Tenant
	Pictures map[int64][]byte
	Modules  []model.Module
	Calls    []Call
	// Before runs ahead of every request, outside the lock.
	Before func(r *http.Request)

	failures map[string][]int
	nextID   int64
}

// New starts a server.  Close it with Close.
func New() *Server {
	s := &Server{
		Users:    map[string]string{},
		Tokens:   map[string]string{},
		Pictures: map[int64][]byte{},
		Modules:  model.AllModules(),
		failures: map[string][]int{},
		nextID:   1,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/Auth/signin", s.signIn)
	mux.HandleFunc("POST /api/v1/Auth/signout", s.authed(s.signOut))
	mux.HandleFunc("POST /api/v1/Auth/change-password", s.authed(s.changePassword))
	mux.HandleFunc("GET /api/v1/Tenants", s.authed(s.list))
	mux.HandleFunc("GET /api/v1/Tenants/{id}", s.authed(s.get))
	mux.HandleFunc("POST /api/v1/Tenants", s.authed(s.create))
	mux.HandleFunc("PUT /api/v1/Tenants", s.authed(s.update))
	mux.HandleFunc("DELETE /api/v1/Tenants/{id}", s.authed(s.delete))
	mux.HandleFunc("PUT /api/v1/Tenants/deactivate/{id}", s.authed(s.deactivate))
	mux.HandleFunc("GET /api/v1/Tenants/display-picture/{id}", s.authed(s.picture))
	mux.HandleFunc("GET /api/v1/Module", s.authed(s.modules))
	s.Server = httptest.NewServer(s.record(mux))
	return s
}

// Fail makes the next request matching method and path answer status.
// Several calls queue several failures.
func (s *Server) Fail(method, path string, status int) {
	s.Lock()
	defer s.Unlock()
	k := method + " " + path
	s.failures[k] = append(s.failures[k], status)
}

// Seed adds tenants with server-assigned IDs and returns them.
func (s *Server) Seed(ts ...model.Tenant) []model.Tenant {
	s.Lock()
	defer s.Unlock()
	out := make([]model.Tenant, 0, len(ts))
	for _, t := range ts {
		t.ID = s.nextID
		s.nextID++
		now := time.Now().UTC()
		t.CreatedAt, t.UpdatedAt = &now, &now
		s.Tenants = append(s.Tenants, t)
		out = append(out, t)
	}
	return out
}

// CallsTo returns the recorded calls with the given method and path.
func (s *Server) CallsTo(method, path string) []Call {
	s.Lock()
	defer s.Unlock()
	var out []Call
	for _, c := range s.Calls {
		if c.Method == method && c.Path == path {
			out = append(out, c)
		}
	}
	return out
}

// Tenant returns the stored tenant with id.
func (s *Server) Tenant(id int64) (model.Tenant, bool) {
	s.Lock()
	defer s.Unlock()
	i := s.index(id)
	if i < 0 {
		return model.Tenant{}, false
	}
	return s.Tenants[i], true
}

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.Lock()
		before := s.Before
		s.Unlock()
		if before != nil {
			before(r)
		}

		c := Call{Method: r.Method, Path: r.URL.Path, Query: r.URL.RawQuery, Auth: r.Header.Get("Authorization")}
		if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
			if err := r.ParseMultipartForm(4 << 20); err == nil {
				c.Form = r.MultipartForm.Value
				if fhs := r.MultipartForm.File["DisplayPictureFile"]; len(fhs) > 0 {
					if f, err := fhs[0].Open(); err == nil {
						c.File, _ = io.ReadAll(f)
						_ = f.Close()
					}
				}
			}
		}

		s.Lock()
		s.Calls = append(s.Calls, c)
		k := r.Method + " " + r.URL.Path
		if q := s.failures[k]; len(q) > 0 {
			status := q[0]
			s.failures[k] = q[1:]
			s.Unlock()
			writeEnvelope(w, status, nil, "injected failure")
			return
		}
		s.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) authed(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.Lock()
		want := s.Token
		s.Unlock()
		got := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if got == "" || (want != "" && got != want) {
			writeEnvelope(w, http.StatusUnauthorized, nil, "Unauthorized")
			return
		}
		h(w, r)
	}
}

func writeEnvelope(w http.ResponseWriter, status int, result any, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"traceId":   "trace-" + strconv.Itoa(status),
		"result":    result,
		"message":   msg,
		"timeStamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) signIn(w http.ResponseWriter, r *http.Request) {
	var req model.SignInRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeEnvelope(w, http.StatusBadRequest, nil, "invalid body")
		return
	}
	s.Lock()
	pw, ok := s.Users[req.Email]
	tok := s.Tokens[req.Email]
	s.Unlock()
	if !ok || pw != req.Password {
		writeEnvelope(w, http.StatusUnauthorized, nil, "Invalid credentials")
		return
	}
	writeEnvelope(w, http.StatusOK, model.SignInResult{Token: tok}, "Signed in")
}

func (s *Server) signOut(w http.ResponseWriter, _ *http.Request) {
	writeEnvelope(w, http.StatusOK, true, "Signed out")
}

func (s *Server) changePassword(w http.ResponseWriter, r *http.Request) {
	var req model.ChangePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeEnvelope(w, http.StatusBadRequest, nil, "invalid body")
		return
	}
	s.Lock()
	defer s.Unlock()
	if s.Users[req.Email] != req.OldPassword {
		writeEnvelope(w, http.StatusBadRequest, false, "Old password is incorrect")
		return
	}
	s.Users[req.Email] = req.NewPassword
	w.Header().Set("Content-Type", "application/json")
	_, _ = io.WriteString(w, "true")
}

func (s *Server) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	size, _ := strconv.Atoi(q.Get("pageSize"))
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = model.DefaultPageSize
	}
	search := strings.ToLower(q.Get("search"))

	s.Lock()
	var match []model.Tenant
	for _, t := range s.Tenants {
		if search != "" && !strings.Contains(strings.ToLower(t.Name), search) && !strings.Contains(strings.ToLower(t.Email), search) {
			continue
		}
		if a := q.Get("isActive"); a != "" && strconv.FormatBool(t.IsActivated) != a {
			continue
		}
		match = append(match, t)
	}
	s.Unlock()

	if q.Get("sortingOrder") == "desc" {
		sort.SliceStable(match, func(i, j int) bool { return match[i].ID > match[j].ID })
	}
	total := len(match)
	pages := (total + size - 1) / size
	from := (page - 1) * size
	if from > total {
		from = total
	}
	to := from + size
	if to > total {
		to = total
	}
	items := append([]model.Tenant{}, match[from:to]...)
	writeEnvelope(w, http.StatusOK, model.TenantPage{
		Items: items, TotalCount: total, Page: page, PageSize: size, TotalPages: pages,
	}, "")
}

func (s *Server) index(id int64) int {
	for i, t := range s.Tenants {
		if t.ID == id {
			return i
		}
	}
	return -1
}

func pathID(r *http.Request) int64 {
	id, _ := strconv.ParseInt(r.PathValue("id"), 10, 64)
	return id
}

func (s *Server) get(w http.ResponseWriter, r *http.Request) {
	t, ok := s.Tenant(pathID(r))
	if !ok {
		writeEnvelope(w, http.StatusNotFound, nil, "Tenant not found")
		return
	}
	writeEnvelope(w, http.StatusOK, t, "")
}

func parseModules(vals []string) []model.Module {
	out := make([]model.Module, 0, len(vals))
	for _, v := range vals {
		out = append(out, model.Module(v))
	}
	return out
}

func (s *Server) create(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(4 << 20); err != nil {
		writeEnvelope(w, http.StatusBadRequest, nil, "multipart form expected")
		return
	}
	f := r.MultipartForm.Value
	email := first(f["Email"])
	s.Lock()
	for _, t := range s.Tenants {
		if strings.EqualFold(t.Email, email) {
			s.Unlock()
			writeEnvelope(w, http.StatusConflict, nil, "Tenant with this email already exists")
			return
		}
	}
	s.Unlock()

	t := model.Tenant{
		Name:        first(f["Name"]),
		Email:       email,
		Remarks:     first(f["Remarks"]),
		Modules:     parseModules(f["Modules"]),
		IsActivated: first(f["IsActivated"]) == "true",
	}
	created := s.Seed(t)[0]
	if fhs := r.MultipartForm.File["DisplayPictureFile"]; len(fhs) > 0 {
		if fh, err := fhs[0].Open(); err == nil {
			data, _ := io.ReadAll(fh)
			_ = fh.Close()
			s.Lock()
			s.Pictures[created.ID] = data
			i := s.index(created.ID)
			s.Tenants[i].DisplayPicture = "/api/v1/Tenants/display-picture/" + strconv.FormatInt(created.ID, 10)
			created = s.Tenants[i]
			s.Unlock()
		}
	}
	writeEnvelope(w, http.StatusOK, created, "Tenant created")
}

func (s *Server) update(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(4 << 20); err != nil {
		writeEnvelope(w, http.StatusBadRequest, nil, "multipart form expected")
		return
	}
	f := r.MultipartForm.Value
	id, _ := strconv.ParseInt(first(f["Id"]), 10, 64)

	s.Lock()
	defer s.Unlock()
	i := s.index(id)
	if i < 0 {
		writeEnvelope(w, http.StatusNotFound, nil, "Tenant not found")
		return
	}
	t := &s.Tenants[i]
	if v, ok := f["Name"]; ok {
		t.Name = first(v)
	}
	if v, ok := f["Remarks"]; ok {
		t.Remarks = first(v)
	}
	if v, ok := f["Modules"]; ok {
		t.Modules = parseModules(v)
	}
	if v, ok := f["IsActivated"]; ok {
		t.IsActivated = first(v) == "true"
	}
	now := time.Now().UTC()
	t.UpdatedAt = &now
	writeEnvelope(w, http.StatusOK, *t, "Tenant updated")
}

func (s *Server) delete(w http.ResponseWriter, r *http.Request) {
	s.Lock()
	defer s.Unlock()
	i := s.index(pathID(r))
	if i < 0 {
		writeEnvelope(w, http.StatusNotFound, false, "Tenant not found")
		return
	}
	s.Tenants = append(s.Tenants[:i], s.Tenants[i+1:]...)
	writeEnvelope(w, http.StatusOK, true, "Tenant deleted")
}

func (s *Server) deactivate(w http.ResponseWriter, r *http.Request) {
	s.Lock()
	defer s.Unlock()
	i := s.index(pathID(r))
	if i < 0 {
		writeEnvelope(w, http.StatusNotFound, false, "Tenant not found")
		return
	}
	was := s.Tenants[i].IsActivated
	s.Tenants[i].IsActivated = false
	writeEnvelope(w, http.StatusOK, was, "")
}

func (s *Server) picture(w http.ResponseWriter, r *http.Request) {
	s.Lock()
	data, ok := s.Pictures[pathID(r)]
	s.Unlock()
	if !ok {
		writeEnvelope(w, http.StatusNotFound, nil, "No display picture")
		return
	}
	w.Header().Set("Content-Type", http.DetectContentType(data))
	_, _ = w.Write(data)
}

func (s *Server) modules(w http.ResponseWriter, _ *http.Request) {
	s.Lock()
	mods := append([]model.Module{}, s.Modules...)
	s.Unlock()
	writeEnvelope(w, http.StatusOK, mods, "")
}

func first(v []string) string {
	if len(v) == 0 {
		return ""
	}
	return v[0]
}
