// Package mocks provides a scriptable fake of the upload/query backend for tests.
package mocks

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// UploadCall records one POST /upload.
type UploadCall struct {
	Fields      []string // multipart file field names
	Filename    string
	ContentType string
	Size        int64
	RequestID   string
}

// QueryCall records one POST /query.
type QueryCall struct {
	PDFID     string `json:"pdf_id"`
	Question  string `json:"question"`
	RequestID string `json:"-"`
}

// Reply is a canned response. An empty Body on /upload echoes the uploaded filename.
type Reply struct {
	Status int
	Body   string
}

// Backend is a fake backend served by httptest. Zero replies default to success.
type Backend struct {
	server  *httptest.Server
	mu      sync.Mutex
	uploads []UploadCall
	queries []QueryCall
	upload  Reply
	query   Reply
	hold    chan struct{}
	release func()
	arrived chan struct{}
	onQuery func(QueryCall)
}

// NewBackend starts a fake backend. Call Close when done.
func NewBackend() *Backend {
	b := &Backend{arrived: make(chan struct{}, 64)}
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/", b.handleRoot)
	r.Post("/upload", b.handleUpload)
	r.Post("/query", b.handleQuery)
	b.server = httptest.NewServer(r)
	return b
}

// URL returns the base URL of the fake backend.
func (b *Backend) URL() string { return b.server.URL }

// Close releases any held requests and stops the server.
func (b *Backend) Close() {
	b.mu.Lock()
	release := b.release
	b.mu.Unlock()
	if release != nil {
		release()
	}
	b.server.Close()
}

// SetUploadReply scripts the response of POST /upload.
func (b *Backend) SetUploadReply(status int, body string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.upload = Reply{Status: status, Body: body}
}

// SetQueryReply scripts the response of POST /query.
func (b *Backend) SetQueryReply(status int, body string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.query = Reply{Status: status, Body: body}
}

// OnQuery registers fn to run inside the /query handler before it responds.
func (b *Backend) OnQuery(fn func(QueryCall)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onQuery = fn
}

// Hold makes subsequent requests block until the returned release func is called.
func (b *Backend) Hold() (release func()) {
	ch := make(chan struct{})
	var once sync.Once
	release = func() {
		once.Do(func() {
			b.mu.Lock()
			if b.hold == ch {
				b.hold = nil
				b.release = nil
			}
			b.mu.Unlock()
			close(ch)
		})
	}
	b.mu.Lock()
	b.hold = ch
	b.release = release
	b.mu.Unlock()
	return release
}

// Arrived receives one value per request that reached a handler.
func (b *Backend) Arrived() <-chan struct{} { return b.arrived }

// Uploads returns a copy of the recorded upload calls.
func (b *Backend) Uploads() []UploadCall {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]UploadCall(nil), b.uploads...)
}

// Queries returns a copy of the recorded query calls.
func (b *Backend) Queries() []QueryCall {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]QueryCall(nil), b.queries...)
}

// Calls returns the total number of upload and query requests received.
func (b *Backend) Calls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.uploads) + len(b.queries)
}

func (b *Backend) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeRaw(w, http.StatusOK, `{"message":"fake backend"}`)
}

func (b *Backend) handleUpload(w http.ResponseWriter, r *http.Request) {
	call := UploadCall{RequestID: r.Header.Get("X-Request-ID")}
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeRaw(w, http.StatusBadRequest, `{"detail":"invalid multipart form"}`)
		return
	}
	for name := range r.MultipartForm.File {
		call.Fields = append(call.Fields, name)
	}
	sort.Strings(call.Fields)
	if file, header, err := r.FormFile("file"); err == nil {
		n, _ := io.Copy(io.Discard, file)
		_ = file.Close()
		call.Filename = header.Filename
		call.ContentType = header.Header.Get("Content-Type")
		call.Size = n
	}

	b.mu.Lock()
	b.uploads = append(b.uploads, call)
	reply := b.upload
	hold := b.hold
	b.mu.Unlock()
	b.signal()
	if !b.wait(r, hold) {
		return
	}

	if reply.Status == 0 {
		reply.Status = http.StatusOK
	}
	if reply.Body == "" && reply.Status < 300 {
		body, _ := json.Marshal(map[string]interface{}{
			"pdf_id":     fmt.Sprintf("doc-%d", len(b.Uploads())),
			"status":     "processed",
			"filename":   call.Filename,
			"num_chunks": 3,
		})
		reply.Body = string(body)
	}
	writeRaw(w, reply.Status, reply.Body)
}

func (b *Backend) handleQuery(w http.ResponseWriter, r *http.Request) {
	var call QueryCall
	if err := json.NewDecoder(r.Body).Decode(&call); err != nil {
		writeRaw(w, http.StatusUnprocessableEntity, `{"detail":"invalid request body"}`)
		return
	}
	call.RequestID = r.Header.Get("X-Request-ID")

	b.mu.Lock()
	b.queries = append(b.queries, call)
	reply := b.query
	hold := b.hold
	onQuery := b.onQuery
	b.mu.Unlock()
	b.signal()
	if onQuery != nil {
		onQuery(call)
	}
	if !b.wait(r, hold) {
		return
	}

	if reply.Status == 0 {
		reply.Status = http.StatusOK
	}
	if reply.Body == "" && reply.Status < 300 {
		reply.Body = `{"answer":"fake answer"}`
	}
	writeRaw(w, reply.Status, reply.Body)
}

func (b *Backend) signal() {
	select {
	case b.arrived <- struct{}{}:
	default:
	}
}

// wait blocks on hold; it returns false when the client went away first.
func (b *Backend) wait(r *http.Request, hold chan struct{}) bool {
	if hold == nil {
		return true
	}
	select {
	case <-hold:
		return true
	case <-r.Context().Done():
		return false
	}
}

func writeRaw(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

// UnreachableURL returns the URL of a server that has already been shut down,
// so requests to it fail at the transport level.
func UnreachableURL() string {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	return url
}
