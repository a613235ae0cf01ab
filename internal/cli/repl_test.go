package cli

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hyperjump/docchat/internal/api"
	"github.com/hyperjump/docchat/internal/chat"
	"github.com/hyperjump/docchat/internal/mocks"
	"github.com/hyperjump/docchat/internal/models"
	"github.com/hyperjump/docchat/internal/session"
	"github.com/hyperjump/docchat/internal/upload"
)

// syncBuffer guards a bytes.Buffer written by hooks on other goroutines.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func fakeInspector(t *testing.T) Inspector {
	t.Helper()
	dir := t.TempDir()
	return func(path string) (models.File, error) {
		if strings.HasPrefix(path, "missing") {
			return models.File{}, errors.New("no such file")
		}
		full := filepath.Join(dir, filepath.Base(path))
		if err := os.WriteFile(full, []byte("%PDF-1.4\n"), 0600); err != nil {
			return models.File{}, err
		}
		typ := "application/pdf"
		if !strings.HasSuffix(path, ".pdf") {
			typ = "text/plain"
		}
		return models.File{Name: filepath.Base(path), Type: typ, Size: 9, Path: full, Pages: 1}, nil
	}
}

func newTestRepl(t *testing.T, backend *mocks.Backend, opts ...ReplOption) (*Repl, *session.Orchestrator, *syncBuffer) {
	t.Helper()
	out := &syncBuffer{}
	r := NewRepl(out, fakeInspector(t), opts...)
	sess := session.New(api.NewClient(backend.URL()),
		session.WithChatOptions(chat.WithMessageHook(r.PrintMessage)),
		session.WithUploadOptions(upload.WithObserver(r.UploadState)),
		session.WithViewHook(r.ViewChanged),
	)
	t.Cleanup(sess.Close)
	r.Attach(sess)
	return r, sess, out
}

func TestRepl_UploadThenAsk(t *testing.T) {
	backend := mocks.NewBackend()
	defer backend.Close()
	backend.SetUploadReply(http.StatusOK, `{"pdf_id":"abc123","status":"processed","filename":"doc.pdf","num_chunks":5}`)
	backend.SetQueryReply(http.StatusOK, `{"answer":"It is about testing."}`)
	r, sess, out := newTestRepl(t, backend)
	ctx := context.Background()

	if r.Handle(ctx, "doc.pdf") {
		t.Fatal("upload line should not stop the loop")
	}
	if sess.View() != session.ViewChat {
		t.Fatalf("view = %s, want chat", sess.View())
	}
	if r.Handle(ctx, "  What is it?  ") {
		t.Fatal("question should not stop the loop")
	}
	got := out.String()
	for _, want := range []string{
		"Uploading doc.pdf (9 B, 1 page)",
		"Processing...",
		"Successfully uploaded: doc.pdf",
		"PDF ID: abc123",
		"AI Assistant: It is about testing.",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
	queries := backend.Queries()
	if len(queries) != 1 || queries[0].PDFID != "abc123" || queries[0].Question != "What is it?" {
		t.Errorf("queries = %+v", queries)
	}
}

func TestRepl_RejectedFile(t *testing.T) {
	backend := mocks.NewBackend()
	defer backend.Close()
	r, sess, out := newTestRepl(t, backend)

	r.Handle(context.Background(), "notes.txt")
	if !strings.Contains(out.String(), "Error: Please select a PDF file") {
		t.Errorf("output = %q", out.String())
	}
	if backend.Calls() != 0 {
		t.Errorf("backend calls = %d, want 0", backend.Calls())
	}
	if sess.View() != session.ViewUpload {
		t.Errorf("view = %s", sess.View())
	}
}

func TestRepl_InspectFailure(t *testing.T) {
	backend := mocks.NewBackend()
	defer backend.Close()
	r, _, out := newTestRepl(t, backend)

	r.Handle(context.Background(), "missing.pdf")
	if !strings.Contains(out.String(), "Error: cannot read missing.pdf") {
		t.Errorf("output = %q", out.String())
	}
}

func TestRepl_AbsoluteAndQuotedPaths(t *testing.T) {
	tests := []struct {
		name     string
		line     string
		wantPath string
		wantName string
	}{
		{"absolute path", "/home/user/doc.pdf", "/home/user/doc.pdf", "doc.pdf"},
		{"single quoted", "'/home/user/My Files/q3 report.pdf' ", "/home/user/My Files/q3 report.pdf", "q3 report.pdf"},
		{"double quoted", `"/tmp/notes.pdf"`, "/tmp/notes.pdf", "notes.pdf"},
		{"escaped spaces", `/home/user/My\ Files/q3\ report.pdf`, "/home/user/My Files/q3 report.pdf", "q3 report.pdf"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := mocks.NewBackend()
			defer backend.Close()
			out := &syncBuffer{}
			inspectFile := fakeInspector(t)
			var seen []string
			r := NewRepl(out, func(path string) (models.File, error) {
				seen = append(seen, path)
				return inspectFile(path)
			})
			sess := session.New(api.NewClient(backend.URL()), session.WithViewHook(r.ViewChanged))
			defer sess.Close()
			r.Attach(sess)

			if r.Handle(context.Background(), tt.line) {
				t.Fatal("a path should not stop the loop")
			}
			if len(seen) != 1 || seen[0] != tt.wantPath {
				t.Fatalf("inspected %q, want %q; output:\n%s", seen, tt.wantPath, out.String())
			}
			if sess.View() != session.ViewChat {
				t.Fatalf("view = %s; output:\n%s", sess.View(), out.String())
			}
			if up := backend.Uploads(); len(up) != 1 || up[0].Filename != tt.wantName {
				t.Errorf("uploads = %+v", up)
			}
			if strings.Contains(out.String(), "Unknown command") {
				t.Errorf("path treated as a command:\n%s", out.String())
			}
		})
	}
}

func TestUnquotePath(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"doc.pdf", "doc.pdf"},
		{"  /a/b.pdf  ", "/a/b.pdf"},
		{"'/a b/c.pdf'", "/a b/c.pdf"},
		{`"/a b/c.pdf"`, "/a b/c.pdf"},
		{`/a\ b/c\(1\).pdf`, "/a b/c(1).pdf"},
		{"'unbalanced.pdf", "'unbalanced.pdf"},
	}
	for _, tt := range tests {
		if got := UnquotePath(tt.in); got != tt.want {
			t.Errorf("UnquotePath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRepl_Commands(t *testing.T) {
	backend := mocks.NewBackend()
	defer backend.Close()
	r, sess, out := newTestRepl(t, backend)
	ctx := context.Background()

	r.Handle(ctx, "/status")
	r.Handle(ctx, "/history")
	if !strings.Contains(out.String(), "No document loaded.") {
		t.Errorf("output missing %q:\n%s", "No document loaded.", out.String())
	}

	r.Handle(ctx, "doc.pdf")
	r.Handle(ctx, "/bogus")
	if !strings.Contains(out.String(), "Unknown command /bogus") {
		t.Errorf("unknown command not reported:\n%s", out.String())
	}
	if len(backend.Queries()) != 0 {
		t.Error("an unknown command must not be sent as a question")
	}
	r.Handle(ctx, "/suggest")
	if !strings.Contains(out.String(), "1. "+chat.DefaultSuggestions[0]) {
		t.Errorf("suggestions not listed:\n%s", out.String())
	}
	r.Handle(ctx, "/suggest 2")
	if got := sess.Chat().Input(); got != chat.DefaultSuggestions[1] {
		t.Errorf("input = %q", got)
	}
	if len(backend.Queries()) != 0 {
		t.Error("choosing a suggestion must not send it")
	}
	r.Handle(ctx, "/send")
	if q := backend.Queries(); len(q) != 1 || q[0].Question != chat.DefaultSuggestions[1] {
		t.Errorf("queries = %+v", q)
	}
	r.Handle(ctx, "/suggest 9")
	if !strings.Contains(out.String(), "No suggestion 9.") {
		t.Errorf("output = %s", out.String())
	}

	r.Handle(ctx, "/history")
	if !strings.Contains(out.String(), "You: "+chat.DefaultSuggestions[1]) {
		t.Errorf("history missing user turn:\n%s", out.String())
	}

	r.Handle(ctx, "/reset")
	if sess.View() != session.ViewUpload || sess.Chat() != nil {
		t.Errorf("reset did not return to upload view")
	}
	if !strings.Contains(out.String(), "Enter the path of a PDF to upload.") {
		t.Errorf("reset not announced:\n%s", out.String())
	}
	if !r.Handle(ctx, "/quit") {
		t.Error("/quit should stop the loop")
	}
}

func TestRepl_JSONOutput(t *testing.T) {
	backend := mocks.NewBackend()
	defer backend.Close()
	r, _, out := newTestRepl(t, backend, WithFormat(OutputJSON))
	ctx := context.Background()

	r.Handle(ctx, "doc.pdf")
	r.Handle(ctx, "hello")
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("want upload, user and assistant events, got %d lines:\n%s", len(lines), out.String())
	}
	if !strings.Contains(lines[0], `"type":"upload"`) ||
		!strings.Contains(lines[1], `"role":"user"`) ||
		!strings.Contains(lines[2], `"content":"fake answer"`) {
		t.Errorf("unexpected events:\n%s", out.String())
	}
}

func TestRepl_Run(t *testing.T) {
	backend := mocks.NewBackend()
	defer backend.Close()
	r, _, out := newTestRepl(t, backend)

	in := strings.NewReader("doc.pdf\nWhat now?\n/quit\nnever read\n")
	if err := r.Run(context.Background(), in); err != nil {
		t.Fatal(err)
	}
	if got := backend.Queries(); len(got) != 1 || got[0].Question != "What now?" {
		t.Errorf("queries = %+v", got)
	}
	if !strings.Contains(out.String(), "doc.pdf> ") {
		t.Errorf("prompt should name the loaded file:\n%s", out.String())
	}
}

func TestRepl_RunStopsOnEOFAndCancel(t *testing.T) {
	backend := mocks.NewBackend()
	defer backend.Close()
	r, _, _ := newTestRepl(t, backend)

	if err := r.Run(context.Background(), strings.NewReader("")); err != nil {
		t.Errorf("EOF: %v", err)
	}

	pr, pw := io.Pipe()
	defer pw.Close()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx, pr) }()
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("err = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRepl_RunWithoutSession(t *testing.T) {
	r := NewRepl(&bytes.Buffer{}, nil)
	if err := r.Run(context.Background(), strings.NewReader("")); err == nil {
		t.Error("expected error without a session")
	}
}

func TestRepl_DropResult(t *testing.T) {
	var buf bytes.Buffer
	r := NewRepl(&buf, nil)
	r.DropResult("a.pdf", nil)
	if buf.Len() != 0 {
		t.Errorf("success prints nothing, got %q", buf.String())
	}
	r.DropResult("a.pdf", session.ErrDocumentLoaded)
	if !strings.Contains(buf.String(), "Ignored a.pdf") {
		t.Errorf("got %q", buf.String())
	}
	buf.Reset()
	r.DropResult("b.txt", &models.Error{Kind: models.InvalidFileType, Message: upload.MsgInvalidType})
	if got := buf.String(); got != "Error: Please select a PDF file\n" {
		t.Errorf("got %q", got)
	}
}
