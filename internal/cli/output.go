// Package cli provides terminal rendering and the interactive loop for docchat.
package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dustin/go-humanize"
	"github.com/hyperjump/docchat/internal/models"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is one JSON object per line for machine consumption.
	OutputJSON OutputFormat = "json"
)

// AssistantLabel prefixes assistant replies in text output.
const AssistantLabel = "AI Assistant"

// ParseFormat maps a flag value to an OutputFormat.
func ParseFormat(s string) (OutputFormat, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "text":
		return OutputText, nil
	case "json":
		return OutputJSON, nil
	default:
		return "", fmt.Errorf("unknown output format %q; use text or json", s)
	}
}

// TextOptions tunes text rendering.
type TextOptions struct {
	ShowTimestamps bool
	ShowUser       bool
}

type messageEvent struct {
	Type      string      `json:"type"`
	Role      models.Role `json:"role"`
	Content   string      `json:"content"`
	Timestamp time.Time   `json:"timestamp"`
}

type uploadEvent struct {
	Type   string               `json:"type"`
	File   *models.File         `json:"file,omitempty"`
	Result *models.UploadResult `json:"result"`
}

type errorEvent struct {
	Type    string           `json:"type"`
	Kind    models.ErrorKind `json:"kind,omitempty"`
	Message string           `json:"message"`
}

// WriteMessage writes one chat message.
func WriteMessage(w io.Writer, m models.Message, format OutputFormat, opts TextOptions) error {
	if format == OutputJSON {
		return writeJSON(w, messageEvent{Type: "message", Role: m.Role, Content: m.Content, Timestamp: m.Timestamp})
	}
	if m.Role == models.RoleUser && !opts.ShowUser {
		return nil
	}
	label := "You"
	if m.Role == models.RoleAssistant {
		label = AssistantLabel
	}
	if opts.ShowTimestamps && !m.Timestamp.IsZero() {
		_, err := fmt.Fprintf(w, "[%s] %s: %s\n", m.Timestamp.Format("15:04"), label, m.Content)
		return err
	}
	_, err := fmt.Fprintf(w, "%s: %s\n", label, m.Content)
	return err
}

// WriteHistory writes every message, user turns included.
func WriteHistory(w io.Writer, history []models.Message, format OutputFormat, opts TextOptions) error {
	opts.ShowUser = true
	if format == OutputText && len(history) == 0 {
		_, err := fmt.Fprintln(w, "No messages yet.")
		return err
	}
	for _, m := range history {
		if err := WriteMessage(w, m, format, opts); err != nil {
			return err
		}
	}
	return nil
}

// WriteUploadResult writes a successful upload. file may be nil.
func WriteUploadResult(w io.Writer, res *models.UploadResult, file *models.File, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, uploadEvent{Type: "upload", File: file, Result: res})
	}
	fmt.Fprintf(w, "Successfully uploaded: %s\n", res.Filename)
	fmt.Fprintf(w, "PDF ID: %s\n", res.DocumentID)
	fmt.Fprintf(w, "Status: %s\n", res.Status)
	if n, ok := res.Chunks(); ok {
		fmt.Fprintf(w, "Chunks: %d\n", n)
	}
	if file != nil {
		fmt.Fprintf(w, "Size:   %s\n", humanize.IBytes(uint64(file.Size)))
		if file.Pages > 0 {
			fmt.Fprintf(w, "Pages:  %d\n", file.Pages)
		}
	}
	if res.Warning != "" {
		fmt.Fprintf(w, "Warning: %s\n", res.Warning)
	}
	return nil
}

// WriteError writes a user-visible error banner.
func WriteError(w io.Writer, err error, format OutputFormat) error {
	ev := errorEvent{Type: "error", Message: err.Error()}
	var e *models.Error
	if errors.As(err, &e) {
		ev.Kind = e.Kind
		ev.Message = e.Message
	}
	if format == OutputJSON {
		return writeJSON(w, ev)
	}
	_, werr := fmt.Fprintf(w, "Error: %s\n", ev.Message)
	return werr
}

// DescribeFile returns a one-line description such as "doc.pdf (1.2 MiB, 3 pages)".
func DescribeFile(f models.File) string {
	parts := []string{humanize.IBytes(uint64(f.Size))}
	if f.Pages == 1 {
		parts = append(parts, "1 page")
	} else if f.Pages > 1 {
		parts = append(parts, fmt.Sprintf("%d pages", f.Pages))
	}
	return fmt.Sprintf("%s (%s)", f.Name, strings.Join(parts, ", "))
}

// Truncate truncates s to maxLen runes and appends "..." if truncated.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 || utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	return string([]rune(s)[:maxLen]) + "..."
}

func writeJSON(w io.Writer, v interface{}) error {
	return json.NewEncoder(w).Encode(v)
}
