package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/hyperjump/docchat/internal/models"
	"github.com/hyperjump/docchat/internal/session"
	"github.com/hyperjump/docchat/internal/upload"
	"go.uber.org/zap"
)

const replHelp = `Commands:
  <path>          (upload view) upload the PDF at path
  <question>      (chat view) ask a question about the loaded document
  /suggest        list suggested questions
  /suggest <n>    put suggestion n into the input without sending
  /send           send the current input
  /history        show the conversation so far
  /reset          close the document and upload another
  /status         show what is loaded
  /help           show this help
  /quit           exit`

// Inspector describes a local file for upload.
type Inspector func(path string) (models.File, error)

// Repl is the interactive terminal loop. Output from hooks (messages, view changes,
// drop-folder results) may arrive from other goroutines and is serialised.
type Repl struct {
	out     io.Writer
	inspect Inspector
	format  OutputFormat
	text    TextOptions
	logger  *zap.Logger

	mu   sync.Mutex
	sess *session.Orchestrator
}

// ReplOption configures a Repl.
type ReplOption func(*Repl)

// WithFormat sets the output format.
func WithFormat(f OutputFormat) ReplOption {
	return func(r *Repl) { r.format = f }
}

// WithTimestamps enables message times in text output.
func WithTimestamps(show bool) ReplOption {
	return func(r *Repl) { r.text.ShowTimestamps = show }
}

// WithLogger sets a logger.
func WithLogger(l *zap.Logger) ReplOption {
	return func(r *Repl) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRepl creates a loop writing to out. Attach a session before Run.
func NewRepl(out io.Writer, inspect Inspector, opts ...ReplOption) *Repl {
	r := &Repl{out: out, inspect: inspect, format: OutputText, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// PrintMessage renders a chat message; pass it to chat.WithMessageHook.
func (r *Repl) PrintMessage(m models.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_ = WriteMessage(r.out, m, r.format, r.text)
	if r.format == OutputText && m.Role == models.RoleUser {
		fmt.Fprintln(r.out, "Processing...")
	}
}

// UploadState renders upload progress; pass it to upload.WithObserver.
func (r *Repl) UploadState(s upload.State) {
	if s != upload.StateUploading || r.format != OutputText {
		return
	}
	r.printf("Processing...\n")
}

// ViewChanged announces view switches; pass it to session.WithViewHook.
func (r *Repl) ViewChanged(v session.View) {
	sess := r.session()
	if sess == nil {
		return
	}
	switch v {
	case session.ViewChat:
		res := sess.Result()
		if res == nil {
			return
		}
		r.mu.Lock()
		_ = WriteUploadResult(r.out, res, nil, r.format)
		if r.format == OutputText {
			fmt.Fprintln(r.out, "Ask a question about the document, or /help for commands.")
		}
		r.mu.Unlock()
	case session.ViewUpload:
		if r.format == OutputText {
			r.printf("Enter the path of a PDF to upload.\n")
		}
	}
}

// DropResult renders the outcome of a drop-folder upload; pass it to watcher.WithResultHook.
func (r *Repl) DropResult(path string, err error) {
	if err == nil {
		return
	}
	if errors.Is(err, session.ErrDocumentLoaded) {
		r.printf("Ignored %s: %v\n", path, err)
		return
	}
	r.printError(err)
}

// Attach sets the session driven by the loop.
func (r *Repl) Attach(sess *session.Orchestrator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sess = sess
}

// Run reads lines from in until EOF, /quit, or ctx is cancelled.
func (r *Repl) Run(ctx context.Context, in io.Reader) error {
	if r.session() == nil {
		return errors.New("no session attached")
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	if r.format == OutputText {
		r.printf("Enter the path of a PDF to upload, or /help for commands.\n")
	}
	for {
		r.prompt()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					return err
				default:
					return nil
				}
			}
			if quit := r.Handle(ctx, line); quit {
				return nil
			}
		}
	}
}

// replCommands are the slash commands the loop understands. Other lines starting
// with "/" are absolute paths in the upload view.
var replCommands = map[string]bool{
	"/quit": true, "/exit": true, "/help": true, "/reset": true,
	"/status": true, "/history": true, "/suggest": true, "/send": true,
}

// Handle processes one input line and reports whether the loop should stop.
func (r *Repl) Handle(ctx context.Context, line string) bool {
	line = strings.TrimSpace(line)
	if fields := strings.Fields(line); len(fields) > 0 && replCommands[fields[0]] {
		return r.command(ctx, line)
	}
	sess := r.session()
	if sess.View() == session.ViewChat {
		if strings.HasPrefix(line, "/") && !strings.ContainsAny(line, " \t") {
			r.printf("Unknown command %s; /help lists commands.\n", line)
			return false
		}
		if c := sess.Chat(); c != nil {
			c.Send(ctx, line)
		}
		return false
	}
	if line == "" {
		return false
	}
	r.uploadPath(ctx, sess, UnquotePath(line))
	return false
}

// UnquotePath undoes the quoting terminals add to dragged-in paths: surrounding
// single or double quotes, or backslash-escaped characters.
func UnquotePath(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && (s[0] == '\'' || s[0] == '"') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1]
	}
	if !strings.Contains(s, "\\") {
		return s
	}
	var b strings.Builder
	escaped := false
	for _, r := range s {
		if r == '\\' && !escaped {
			escaped = true
			continue
		}
		escaped = false
		b.WriteRune(r)
	}
	return b.String()
}

func (r *Repl) command(ctx context.Context, line string) bool {
	fields := strings.Fields(line)
	sess := r.session()
	c := sess.Chat()
	switch fields[0] {
	case "/quit", "/exit":
		return true
	case "/help":
		r.printf("%s\n", replHelp)
	case "/reset":
		sess.Reset()
	case "/status":
		if res := sess.Result(); res != nil {
			r.printf("Loaded: %s (PDF ID %s, %s)\n", res.Filename, res.DocumentID, res.Status)
		} else {
			r.printf("No document loaded.\n")
		}
	case "/history":
		if c == nil {
			r.printf("No document loaded.\n")
			break
		}
		r.mu.Lock()
		_ = WriteHistory(r.out, c.History(), r.format, r.text)
		r.mu.Unlock()
	case "/suggest":
		if c == nil {
			r.printf("No document loaded.\n")
			break
		}
		if len(fields) == 1 {
			for i, s := range c.Suggestions() {
				r.printf("  %d. %s\n", i+1, s)
			}
			break
		}
		n, err := strconv.Atoi(fields[1])
		if err != nil || !c.ChooseSuggestion(n-1) {
			r.printf("No suggestion %s.\n", fields[1])
			break
		}
		r.printf("Input: %s (/send to ask)\n", c.Input())
	case "/send":
		if c == nil {
			r.printf("No document loaded.\n")
			break
		}
		if !c.SubmitInput(ctx) {
			r.printf("Nothing to send.\n")
		}
	}
	return false
}

func (r *Repl) uploadPath(ctx context.Context, sess *session.Orchestrator, path string) {
	uc := sess.Upload()
	if uc == nil {
		return
	}
	file, err := r.inspect(path)
	if err != nil {
		r.logger.Debug("inspect failed", zap.String("path", path), zap.Error(err))
		r.printError(fmt.Errorf("cannot read %s: %w", path, err))
		return
	}
	if r.format == OutputText {
		r.printf("Uploading %s\n", DescribeFile(file))
	}
	err = uc.Select(ctx, file)
	switch {
	case err == nil:
	case errors.Is(err, upload.ErrBusy):
		r.printf("An upload is already in progress.\n")
	default:
		r.printError(err)
	}
}

func (r *Repl) prompt() {
	if r.format != OutputText {
		return
	}
	sess := r.session()
	if res := sess.Result(); res != nil {
		r.printf("%s> ", Truncate(res.Filename, 24))
		return
	}
	r.printf("pdf> ")
}

func (r *Repl) session() *session.Orchestrator {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sess
}

func (r *Repl) printError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_ = WriteError(r.out, err, r.format)
}

func (r *Repl) printf(format string, args ...interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.out, format, args...)
}
