package validation

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
)

var ErrInvalidFile = errors.New("invalid file")

// FileConstraints defines validation rules for file uploads
type FileConstraints struct {
	// AllowedMimeTypes restricts detected types; empty allows any type.
	AllowedMimeTypes map[string]bool
	MaxSize          int64
}

// UploadedFile is a validated multipart file read into memory.
type UploadedFile struct {
	Filename    string
	Content     []byte
	ContentType string
}

// ReadFile validates a file upload and reads its content
// The content type comes from the part header and falls back to detection
// from the first 512 bytes when the client sent none.
func ReadFile(header *multipart.FileHeader, constraints FileConstraints) (*UploadedFile, error) {
	filename := filepath.Base(strings.TrimSpace(header.Filename))
	if filename == "" || filename == "." || filename == "/" {
		return nil, fmt.Errorf("%w: filename is required", ErrInvalidFile)
	}

	// Check file size first (before reading content)
	if constraints.MaxSize > 0 && header.Size > constraints.MaxSize {
		return nil, fmt.Errorf("%w: file too large, maximum size is %s",
			ErrInvalidFile, humanize.IBytes(uint64(constraints.MaxSize)))
	}

	file, err := header.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	content, err := ReadLimited(file, constraints.MaxSize)
	if err != nil {
		return nil, err
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(content)
	}
	mediaType, _, _ := strings.Cut(contentType, ";")
	if len(constraints.AllowedMimeTypes) > 0 && !constraints.AllowedMimeTypes[strings.TrimSpace(mediaType)] {
		return nil, fmt.Errorf("%w: type %s not allowed", ErrInvalidFile, contentType)
	}

	return &UploadedFile{
		Filename:    filename,
		Content:     content,
		ContentType: contentType,
	}, nil
}

// ReadLimited reads r fully, failing when it holds more than maxSize bytes.
// A maxSize of zero disables the limit.
func ReadLimited(r io.Reader, maxSize int64) ([]byte, error) {
	if maxSize <= 0 {
		return io.ReadAll(r)
	}

	content, err := io.ReadAll(io.LimitReader(r, maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	if int64(len(content)) > maxSize {
		return nil, fmt.Errorf("%w: file too large, maximum size is %s",
			ErrInvalidFile, humanize.IBytes(uint64(maxSize)))
	}
	return content, nil
}
