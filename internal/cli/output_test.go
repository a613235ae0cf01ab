package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/hyperjump/docchat/internal/models"
)

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    OutputFormat
		wantErr bool
	}{
		{"", OutputText, false},
		{"text", OutputText, false},
		{"JSON", OutputJSON, false},
		{"compact", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, %v", tt.in, got, err)
		}
	}
}

func TestWriteMessage_Text(t *testing.T) {
	ts := time.Date(2026, 3, 4, 9, 30, 0, 0, time.UTC)
	var buf bytes.Buffer
	assistant := models.Message{Role: models.RoleAssistant, Content: "It is a contract.", Timestamp: ts}
	if err := WriteMessage(&buf, assistant, OutputText, TextOptions{ShowTimestamps: true}); err != nil {
		t.Fatal(err)
	}
	if got := buf.String(); got != "[09:30] AI Assistant: It is a contract.\n" {
		t.Errorf("got %q", got)
	}

	buf.Reset()
	user := models.Message{Role: models.RoleUser, Content: "What is this?", Timestamp: ts}
	_ = WriteMessage(&buf, user, OutputText, TextOptions{})
	if buf.Len() != 0 {
		t.Errorf("user messages are not echoed by default, got %q", buf.String())
	}
	_ = WriteMessage(&buf, user, OutputText, TextOptions{ShowUser: true})
	if got := buf.String(); got != "You: What is this?\n" {
		t.Errorf("got %q", got)
	}
}

func TestWriteMessage_JSON(t *testing.T) {
	var buf bytes.Buffer
	m := models.Message{Role: models.RoleUser, Content: "hi", Timestamp: time.Now()}
	if err := WriteMessage(&buf, m, OutputJSON, TextOptions{}); err != nil {
		t.Fatal(err)
	}
	var decoded messageEvent
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v\n%s", err, buf.String())
	}
	if decoded.Type != "message" || decoded.Role != models.RoleUser || decoded.Content != "hi" {
		t.Errorf("decoded = %+v", decoded)
	}
}

func TestWriteHistory(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteHistory(&buf, nil, OutputText, TextOptions{}); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "No messages yet") {
		t.Errorf("got %q", buf.String())
	}
	buf.Reset()
	history := []models.Message{
		{Role: models.RoleUser, Content: "q"},
		{Role: models.RoleAssistant, Content: "a"},
	}
	_ = WriteHistory(&buf, history, OutputText, TextOptions{})
	if got := buf.String(); got != "You: q\nAI Assistant: a\n" {
		t.Errorf("got %q", got)
	}
	buf.Reset()
	_ = WriteHistory(&buf, history, OutputJSON, TextOptions{})
	if n := strings.Count(buf.String(), "\n"); n != 2 {
		t.Errorf("want one JSON line per message, got %d lines", n)
	}
}

func TestWriteUploadResult(t *testing.T) {
	five := 5
	res := &models.UploadResult{DocumentID: "abc123", Status: models.StatusProcessed, Filename: "doc.pdf", ChunkCount: &five}
	file := &models.File{Name: "doc.pdf", Size: 2048, Pages: 3}
	var buf bytes.Buffer
	if err := WriteUploadResult(&buf, res, file, OutputText); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"Successfully uploaded: doc.pdf", "PDF ID: abc123", "Chunks: 5", "2.0 KiB", "Pages:  3"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	buf.Reset()
	pending := &models.UploadResult{DocumentID: "x", Status: models.StatusPending, Filename: "a.pdf", Warning: "File uploaded but processing failed"}
	_ = WriteUploadResult(&buf, pending, nil, OutputText)
	if strings.Contains(buf.String(), "Chunks") {
		t.Error("chunks line should be omitted when unknown")
	}
	if !strings.Contains(buf.String(), "Warning: File uploaded but processing failed") {
		t.Errorf("warning missing: %s", buf.String())
	}

	buf.Reset()
	_ = WriteUploadResult(&buf, res, nil, OutputJSON)
	var decoded uploadEvent
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded.Result == nil || decoded.Result.DocumentID != "abc123" {
		t.Errorf("decoded = %+v", decoded)
	}
}

func TestWriteError(t *testing.T) {
	var buf bytes.Buffer
	err := &models.Error{Kind: models.InvalidFileType, Message: "Please select a PDF file"}
	_ = WriteError(&buf, err, OutputText)
	if got := buf.String(); got != "Error: Please select a PDF file\n" {
		t.Errorf("got %q", got)
	}
	buf.Reset()
	_ = WriteError(&buf, err, OutputJSON)
	var decoded errorEvent
	if jerr := json.Unmarshal(buf.Bytes(), &decoded); jerr != nil {
		t.Fatal(jerr)
	}
	if decoded.Kind != models.InvalidFileType || decoded.Message != "Please select a PDF file" {
		t.Errorf("decoded = %+v", decoded)
	}
	buf.Reset()
	_ = WriteError(&buf, errors.New("plain"), OutputText)
	if got := buf.String(); got != "Error: plain\n" {
		t.Errorf("got %q", got)
	}
}

func TestDescribeFile(t *testing.T) {
	if got := DescribeFile(models.File{Name: "a.pdf", Size: 1024, Pages: 1}); got != "a.pdf (1.0 KiB, 1 page)" {
		t.Errorf("got %q", got)
	}
	if got := DescribeFile(models.File{Name: "b.pdf", Size: 10}); got != "b.pdf (10 B)" {
		t.Errorf("got %q", got)
	}
}

func TestTruncate(t *testing.T) {
	if Truncate("hello", 10) != "hello" {
		t.Error("short string unchanged")
	}
	if Truncate("hello world", 5) != "hello..." {
		t.Errorf("got %s", Truncate("hello world", 5))
	}
	name := "日本語の報告書.pdf"
	got := Truncate(name, 3)
	if got != "日本語..." || !utf8.ValidString(got) {
		t.Errorf("Truncate(%q, 3) = %q", name, got)
	}
	if Truncate(name, 11) != name {
		t.Error("rune count at limit returns as-is")
	}
	if Truncate("x", 0) != "x" {
		t.Error("maxLen 0 returns as-is")
	}
}
