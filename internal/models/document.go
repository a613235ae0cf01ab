// Package models defines core data structures for uploaded documents, questions, and chat messages.
package models

// UploadStatus is the ingestion state reported by the backend at upload time.
type UploadStatus string

const (
	StatusPending   UploadStatus = "pending"
	StatusProcessed UploadStatus = "processed"
)

// ParseUploadStatus maps a backend status string to an UploadStatus.
// Only "processed" means the document is ready; anything else (e.g. "uploaded") is pending.
func ParseUploadStatus(s string) UploadStatus {
	if s == string(StatusProcessed) {
		return StatusProcessed
	}
	return StatusPending
}

// UploadResult is produced by a successful upload. It is immutable once created.
type UploadResult struct {
	DocumentID string       `json:"document_id"`
	Status     UploadStatus `json:"status"`
	Filename   string       `json:"filename"`
	ChunkCount *int         `json:"chunk_count,omitempty"` // nil until the backend reports num_chunks
	Warning    string       `json:"warning,omitempty"`
}

// Chunks returns the chunk count and whether the backend reported one.
func (r *UploadResult) Chunks() (int, bool) {
	if r == nil || r.ChunkCount == nil {
		return 0, false
	}
	return *r.ChunkCount, true
}

// File is a local file offered for upload.
type File struct {
	Name  string `json:"name"`
	Type  string `json:"type"` // MIME type
	Size  int64  `json:"size"`
	Path  string `json:"path"`
	Pages int    `json:"pages,omitempty"` // 0 when unknown
}

// UploadResponse is the wire shape of a 2xx POST /upload body.
type UploadResponse struct {
	PDFID     string `json:"pdf_id"`
	Status    string `json:"status"`
	Filename  string `json:"filename"`
	NumChunks *int   `json:"num_chunks,omitempty"`
	Warning   string `json:"warning,omitempty"`
}

// Validate reports whether the body carries the fields an UploadResult requires.
func (r *UploadResponse) Validate() error {
	switch {
	case r.PDFID == "":
		return errMissingField("pdf_id")
	case r.Status == "":
		return errMissingField("status")
	case r.Filename == "":
		return errMissingField("filename")
	}
	if r.NumChunks != nil && *r.NumChunks < 0 {
		return errMissingField("num_chunks")
	}
	return nil
}

// Result converts the wire body into an UploadResult.
func (r *UploadResponse) Result() *UploadResult {
	res := &UploadResult{
		DocumentID: r.PDFID,
		Status:     ParseUploadStatus(r.Status),
		Filename:   r.Filename,
		Warning:    r.Warning,
	}
	if r.NumChunks != nil {
		n := *r.NumChunks
		res.ChunkCount = &n
	}
	return res
}

// ErrorResponse is the wire shape of a non-2xx body.
type ErrorResponse struct {
	Detail string `json:"detail,omitempty"`
}
