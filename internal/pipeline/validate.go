package pipeline

import (
	"bytes"
	"io"
	"strings"

	"github.com/contextforge/contextforge/backend/go-services/internal/document"
	"github.com/gabriel-vasile/mimetype"
)

// File is one user-submitted upload. Open may be called more than once.
type File struct {
	Name        string
	ContentType string
	Size        int64
	Open        func() (io.ReadCloser, error)
}

// BytesFile wraps an in-memory upload.
func BytesFile(name, contentType string, data []byte) File {
	return File{
		Name:        name,
		ContentType: contentType,
		Size:        int64(len(data)),
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(data)), nil
		},
	}
}

// sniffLen is how much of the file is inspected for the PDF signature.
const sniffLen = 3072

// Validator holds the local checks run before anything touches the network.
type Validator struct {
	MaxBytes int64 // 0 disables the size cap
	Sniff    bool  // also require the bytes to look like a PDF
}

// Validate checks the declared media type (exactly application/pdf), then
// name, size and optionally the leading bytes.
func (v Validator) Validate(f File) error {
	if f.ContentType != document.PDFContentType {
		return invalid("contentType", "only %s is accepted, got %q", document.PDFContentType, f.ContentType)
	}
	if strings.TrimSpace(f.Name) == "" {
		return invalid("filename", "required")
	}
	if f.Open == nil {
		return invalid("file", "required")
	}
	if f.Size == 0 {
		return invalid("file", "empty")
	}
	if v.MaxBytes > 0 && f.Size > v.MaxBytes {
		return invalid("file", "%d bytes exceeds limit of %d", f.Size, v.MaxBytes)
	}
	if !v.Sniff {
		return nil
	}
	rc, err := f.Open()
	if err != nil {
		return invalid("file", "unreadable: %v", err)
	}
	defer rc.Close()
	head := make([]byte, sniffLen)
	n, err := io.ReadFull(rc, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return invalid("file", "unreadable: %v", err)
	}
	if !mimetype.Detect(head[:n]).Is(document.PDFContentType) {
		return invalid("file", "content is not a PDF")
	}
	return nil
}
