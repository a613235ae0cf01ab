package models

import (
	"fmt"
	"strings"
)

// QueryRequest is the JSON body of POST /query.
type QueryRequest struct {
	PDFID    string `json:"pdf_id"`
	Question string `json:"question"`
}

// Validate trims the question and returns an error if the document id or question is empty.
func (q *QueryRequest) Validate() error {
	q.Question = strings.TrimSpace(q.Question)
	if q.PDFID == "" {
		return fmt.Errorf("pdf_id cannot be empty")
	}
	if q.Question == "" {
		return fmt.Errorf("question cannot be empty")
	}
	return nil
}

// QueryResponse is the 2xx body of POST /query. Either field may be absent.
type QueryResponse struct {
	Answer *string `json:"answer,omitempty"`
	Error  *string `json:"error,omitempty"`
}

// AnswerText returns the answer when present and non-empty.
func (r *QueryResponse) AnswerText() (string, bool) {
	if r == nil || r.Answer == nil || *r.Answer == "" {
		return "", false
	}
	return *r.Answer, true
}

// ErrorText returns the in-band answer service error when present and non-empty.
func (r *QueryResponse) ErrorText() (string, bool) {
	if r == nil || r.Error == nil || *r.Error == "" {
		return "", false
	}
	return *r.Error, true
}

func errMissingField(name string) error {
	return fmt.Errorf("missing or invalid field %q", name)
}
