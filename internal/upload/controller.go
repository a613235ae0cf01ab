// Package upload implements the upload controller: local validation, a single
// in-flight upload request, and drag-and-drop target state.
package upload

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/hyperjump/docchat/internal/api"
	"github.com/hyperjump/docchat/internal/models"
	"go.uber.org/zap"
)

// MaxFileSize is the largest accepted upload (10 MiB).
const MaxFileSize = 10 * 1024 * 1024

// User-visible messages.
const (
	MsgInvalidType     = "Please select a PDF file"
	MsgTooLarge        = "File size must be less than 10MB"
	MsgRejected        = "Upload failed"
	MsgTransportFailed = "Failed to upload file"
)

// ErrBusy is returned when a submission arrives while an upload is outstanding.
// The submission is ignored and no state changes.
var ErrBusy = errors.New("upload already in progress")

var errNoResult = errors.New("upload returned no result")

// State is a state of the upload state machine.
type State string

const (
	StateIdle       State = "idle"
	StateValidating State = "validating"
	StateRejected   State = "rejected"
	StateUploading  State = "uploading"
	StateSucceeded  State = "succeeded"
	StateFailed     State = "failed"
)

// Uploader sends a file to the backend.
type Uploader interface {
	Upload(ctx context.Context, file models.File) (*models.UploadResult, error)
}

// Controller owns file selection, validation, and submission.
type Controller struct {
	uploader  Uploader
	onSuccess func(models.UploadResult)
	observer  func(State)
	logger    *zap.Logger

	mu         sync.Mutex
	state      State
	dragActive bool
	selected   *models.File
	lastErr    *models.Error
	result     *models.UploadResult
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets a logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithObserver registers fn to receive every state transition, in order.
// fn runs outside the controller lock.
func WithObserver(fn func(State)) Option {
	return func(c *Controller) { c.observer = fn }
}

// NewController creates an idle controller. onSuccess (may be nil) is invoked once per
// successful upload with the stored result.
func NewController(uploader Uploader, onSuccess func(models.UploadResult), opts ...Option) *Controller {
	c := &Controller{
		uploader:  uploader,
		onSuccess: onSuccess,
		logger:    zap.NewNop(),
		state:     StateIdle,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Select records file as the selected file and submits it.
func (c *Controller) Select(ctx context.Context, file models.File) error {
	c.mu.Lock()
	if c.state == StateUploading {
		c.mu.Unlock()
		return ErrBusy
	}
	f := file
	c.selected = &f
	c.mu.Unlock()
	return c.Submit(ctx, file)
}

// Submit validates file and, if it passes, uploads it. It blocks for the round trip.
// Returns ErrBusy if an upload is outstanding, a *models.Error on rejection or failure,
// and nil on success.
func (c *Controller) Submit(ctx context.Context, file models.File) error {
	c.mu.Lock()
	if c.state == StateUploading {
		c.mu.Unlock()
		c.logger.Debug("submission ignored while uploading", zap.String("file", file.Name))
		return ErrBusy
	}
	c.lastErr = nil
	c.result = nil
	var trail []State
	trail = append(trail, c.setLocked(StateValidating))
	if verr := Validate(file); verr != nil {
		c.lastErr = verr
		trail = append(trail, c.setLocked(StateRejected), c.setLocked(StateIdle))
		c.mu.Unlock()
		c.notify(trail)
		c.logger.Debug("file rejected", zap.String("file", file.Name), zap.String("kind", string(verr.Kind)))
		return verr
	}
	trail = append(trail, c.setLocked(StateUploading))
	c.mu.Unlock()
	c.notify(trail)

	res, err := c.uploader.Upload(ctx, file)
	if err == nil && res == nil {
		err = errNoResult
	}

	c.mu.Lock()
	if err != nil {
		uerr := classify(err)
		c.lastErr = uerr
		trail = []State{c.setLocked(StateFailed), c.setLocked(StateIdle)}
		c.mu.Unlock()
		c.notify(trail)
		c.logger.Warn("upload failed",
			zap.String("file", file.Name),
			zap.String("kind", string(uerr.Kind)),
			zap.Error(err))
		return uerr
	}
	c.result = res
	c.selected = nil
	trail = []State{c.setLocked(StateSucceeded), c.setLocked(StateIdle)}
	c.mu.Unlock()
	c.notify(trail)
	c.logger.Info("upload succeeded",
		zap.String("file", file.Name),
		zap.String("document_id", res.DocumentID),
		zap.String("status", string(res.Status)))
	if c.onSuccess != nil {
		c.onSuccess(*res)
	}
	return nil
}

// DragEnter arms the drop target.
func (c *Controller) DragEnter() { c.setDrag(true) }

// DragOver keeps the drop target armed.
func (c *Controller) DragOver() { c.setDrag(true) }

// DragLeave disarms the drop target.
func (c *Controller) DragLeave() { c.setDrag(false) }

// Drop disarms the drop target and submits the first dropped file, if any.
func (c *Controller) Drop(ctx context.Context, files []models.File) error {
	c.setDrag(false)
	if len(files) == 0 {
		return nil
	}
	return c.Select(ctx, files[0])
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Uploading reports whether a request is outstanding.
func (c *Controller) Uploading() bool {
	return c.State() == StateUploading
}

// DragActive reports whether the drop target is armed.
func (c *Controller) DragActive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dragActive
}

// Err returns the error shown to the user, or nil.
func (c *Controller) Err() *models.Error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Result returns the last successful upload result shown to the user, or nil.
func (c *Controller) Result() *models.UploadResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.result
}

// Selected returns the selected file reference, or nil once an upload succeeded.
func (c *Controller) Selected() *models.File {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.selected == nil {
		return nil
	}
	f := *c.selected
	return &f
}

func (c *Controller) setDrag(active bool) {
	c.mu.Lock()
	c.dragActive = active
	c.mu.Unlock()
}

func (c *Controller) setLocked(s State) State {
	c.state = s
	return s
}

func (c *Controller) notify(trail []State) {
	if c.observer == nil {
		return
	}
	for _, s := range trail {
		c.observer(s)
	}
}

// Validate checks the file locally. It returns nil when the file may be uploaded.
func Validate(file models.File) *models.Error {
	if !strings.Contains(strings.ToLower(file.Type), "pdf") {
		return &models.Error{Kind: models.InvalidFileType, Message: MsgInvalidType}
	}
	if file.Size > MaxFileSize {
		return &models.Error{Kind: models.FileTooLarge, Message: MsgTooLarge}
	}
	return nil
}

func classify(err error) *models.Error {
	var se *api.StatusError
	if errors.As(err, &se) {
		msg := se.Detail
		if msg == "" {
			msg = MsgRejected
		}
		return &models.Error{Kind: models.UploadRejected, Message: msg, Err: err}
	}
	return &models.Error{Kind: models.UploadTransportFailure, Message: MsgTransportFailed, Err: err}
}
