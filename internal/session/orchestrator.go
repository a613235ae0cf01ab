// Package session composes the upload and chat controllers around the one
// currently loaded document.
package session

import (
	"context"
	"errors"
	"sync"

	"github.com/hyperjump/docchat/internal/chat"
	"github.com/hyperjump/docchat/internal/models"
	"github.com/hyperjump/docchat/internal/upload"
	"go.uber.org/zap"
)

// View is the component currently shown.
type View string

const (
	ViewUpload View = "upload"
	ViewChat   View = "chat"
)

// ErrDocumentLoaded is returned by Drop when a document is already loaded.
var ErrDocumentLoaded = errors.New("a document is already loaded; reset first")

// Backend is the remote collaborator used by both controllers.
type Backend interface {
	upload.Uploader
	chat.Asker
}

// Orchestrator holds at most one UploadResult. Without one it exposes an upload
// controller; with one it exposes a chat controller scoped to the result's document id.
type Orchestrator struct {
	backend    Backend
	logger     *zap.Logger
	uploadOpts []upload.Option
	chatOpts   []chat.Option
	onChange   func(View)

	mu     sync.Mutex
	result *models.UploadResult
	upload *upload.Controller
	chat   *chat.Controller
	closed bool
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets a logger; it is also handed to the controllers.
func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithUploadOptions passes options to every upload controller created.
func WithUploadOptions(opts ...upload.Option) Option {
	return func(o *Orchestrator) { o.uploadOpts = append(o.uploadOpts, opts...) }
}

// WithChatOptions passes options to every chat controller created.
func WithChatOptions(opts ...chat.Option) Option {
	return func(o *Orchestrator) { o.chatOpts = append(o.chatOpts, opts...) }
}

// WithViewHook registers fn to run after every view switch.
func WithViewHook(fn func(View)) Option {
	return func(o *Orchestrator) { o.onChange = fn }
}

// New returns an orchestrator in the upload view.
func New(backend Backend, opts ...Option) *Orchestrator {
	o := &Orchestrator{backend: backend, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(o)
	}
	o.upload = o.newUpload()
	return o
}

func (o *Orchestrator) newUpload() *upload.Controller {
	var uc *upload.Controller
	opts := append([]upload.Option{upload.WithLogger(o.logger)}, o.uploadOpts...)
	uc = upload.NewController(o.backend, func(res models.UploadResult) {
		o.load(uc, res)
	}, opts...)
	return uc
}

// load switches to the chat view. Results from an upload controller that is no
// longer mounted are discarded.
func (o *Orchestrator) load(from *upload.Controller, res models.UploadResult) {
	o.mu.Lock()
	if o.closed || o.upload != from || o.result != nil {
		o.mu.Unlock()
		o.logger.Debug("discarding upload result", zap.String("document_id", res.DocumentID))
		return
	}
	r := res
	o.result = &r
	opts := append([]chat.Option{chat.WithLogger(o.logger)}, o.chatOpts...)
	o.chat = chat.NewController(o.backend, res.DocumentID, opts...)
	o.upload = nil
	o.mu.Unlock()
	o.logger.Info("document loaded",
		zap.String("document_id", res.DocumentID),
		zap.String("filename", res.Filename))
	o.changed(ViewChat)
}

// View returns the current view.
func (o *Orchestrator) View() View {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.result != nil {
		return ViewChat
	}
	return ViewUpload
}

// Result returns a copy of the loaded UploadResult, or nil.
func (o *Orchestrator) Result() *models.UploadResult {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.result == nil {
		return nil
	}
	r := *o.result
	return &r
}

// Upload returns the mounted upload controller, or nil in the chat view.
func (o *Orchestrator) Upload() *upload.Controller {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.upload
}

// Chat returns the mounted chat controller, or nil in the upload view.
func (o *Orchestrator) Chat() *chat.Controller {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.chat
}

// Reset discards the loaded document and its chat history and mounts a fresh upload controller.
func (o *Orchestrator) Reset() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	old := o.chat
	var id string
	if o.result != nil {
		id = o.result.DocumentID
	}
	o.result = nil
	o.chat = nil
	o.upload = o.newUpload()
	o.mu.Unlock()
	if old != nil {
		old.Close()
	}
	o.logger.Info("session reset", zap.String("document_id", id))
	o.changed(ViewUpload)
}

// Close tears down the mounted controllers.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	old := o.chat
	o.chat = nil
	o.upload = nil
	o.mu.Unlock()
	if old != nil {
		old.Close()
	}
}

// DragEnter forwards to the mounted upload controller.
func (o *Orchestrator) DragEnter() {
	if uc := o.Upload(); uc != nil {
		uc.DragEnter()
	}
}

// DragOver forwards to the mounted upload controller.
func (o *Orchestrator) DragOver() {
	if uc := o.Upload(); uc != nil {
		uc.DragOver()
	}
}

// DragLeave forwards to the mounted upload controller.
func (o *Orchestrator) DragLeave() {
	if uc := o.Upload(); uc != nil {
		uc.DragLeave()
	}
}

// Drop forwards to the mounted upload controller. In the chat view it returns ErrDocumentLoaded.
func (o *Orchestrator) Drop(ctx context.Context, files []models.File) error {
	uc := o.Upload()
	if uc == nil {
		return ErrDocumentLoaded
	}
	return uc.Drop(ctx, files)
}

func (o *Orchestrator) changed(v View) {
	if o.onChange != nil {
		o.onChange(v)
	}
}
