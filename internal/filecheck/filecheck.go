// Package filecheck validates uploaded files before they are stored: size,
// declared content type, file extension and the leading bytes of the content.
// Checks run in that order and the first failure wins.
package filecheck

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/ceotind/sharp-form-backend/internal/apperr"
)

const DefaultMaxBytes = 5 << 20

const mib = 1 << 20

type fileType struct {
	signatures [][]byte
	extensions []string
}

const mimeText = "text/plain"

var allowedTypes = []string{
	"image/jpeg",
	"image/png",
	"image/webp",
	"application/pdf",
	"application/msword",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"application/vnd.ms-excel",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	mimeText,
}

var supportedExtensions = []string{"jpg", "jpeg", "png", "webp", "pdf", "doc", "docx", "xls", "xlsx", "txt"}

var (
	sigZip = []byte{0x50, 0x4B, 0x03, 0x04}
	sigOLE = []byte{0xD0, 0xCF, 0x11, 0xE0}
)

var fileTypes = map[string]fileType{
	"image/jpeg": {
		signatures: [][]byte{{0xFF, 0xD8, 0xFF}, {0xFF, 0xD8, 0xFF, 0xE0}, {0xFF, 0xD8, 0xFF, 0xE1}},
		extensions: []string{"jpg", "jpeg"},
	},
	"image/png":       {signatures: [][]byte{{0x89, 0x50, 0x4E, 0x47}}, extensions: []string{"png"}},
	"image/webp":      {signatures: [][]byte{{0x52, 0x49, 0x46, 0x46}}, extensions: []string{"webp"}},
	"application/pdf": {signatures: [][]byte{{0x25, 0x50, 0x44, 0x46}}, extensions: []string{"pdf"}},
	"application/msword": {signatures: [][]byte{sigOLE}, extensions: []string{"doc"}},
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": {
		signatures: [][]byte{sigZip}, extensions: []string{"docx"},
	},
	"application/vnd.ms-excel": {signatures: [][]byte{sigOLE}, extensions: []string{"xls"}},
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": {
		signatures: [][]byte{sigZip}, extensions: []string{"xlsx"},
	},
	mimeText: {extensions: []string{"txt"}},
}

// AllowedTypes returns the accepted MIME types.
func AllowedTypes() []string {
	return append([]string(nil), allowedTypes...)
}

// Upload is a buffered file part.
type Upload struct {
	FileName    string
	ContentType string
	Data        []byte
}

type Checker struct {
	MaxBytes int64
}

func New(maxBytes int64) *Checker {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Checker{MaxBytes: maxBytes}
}

// Extension returns the case-folded text after the last ".", or the whole
// name when there is none.
func Extension(name string) string {
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		name = name[i+1:]
	}
	return strings.ToLower(name)
}

// FormatMB renders n bytes as megabytes rounded to one decimal, e.g. "5.3MB".
func FormatMB(n int64) string {
	v := float64(n) / mib
	rounded := float64(int64(v*10+0.5)) / 10
	return strconv.FormatFloat(rounded, 'f', -1, 64) + "MB"
}

// TooLarge builds the FILE_TOO_LARGE error for a payload of size bytes.
func (c *Checker) TooLarge(size int64) *apperr.Error {
	return apperr.New(apperr.KindInvalidInput, apperr.CodeFileTooLarge, "File too large").
		WithDetails(apperr.Details{
			"maxSize":      FormatMB(c.MaxBytes),
			"receivedSize": FormatMB(size),
		})
}

// NoFile is returned when the request carried no file part.
func NoFile() *apperr.Error {
	return apperr.New(apperr.KindInvalidInput, apperr.CodeNoFile, "No file uploaded")
}

// Validate runs every check against u and returns the normalized extension
// on success.
func (c *Checker) Validate(u *Upload) (string, error) {
	if u == nil {
		return "", NoFile()
	}
	size := int64(len(u.Data))
	if size > c.MaxBytes {
		return "", c.TooLarge(size)
	}

	ft, ok := fileTypes[u.ContentType]
	if !ok {
		return "", apperr.New(apperr.KindInvalidInput, apperr.CodeInvalidType, "Invalid file type").
			WithDetails(apperr.Details{
				"allowedTypes": AllowedTypes(),
				"receivedType": u.ContentType,
			})
	}

	ext := Extension(u.FileName)
	if !contains(supportedExtensions, ext) {
		return "", apperr.New(apperr.KindInvalidInput, apperr.CodeInvalidExtension, "Invalid file extension").
			WithDetails(apperr.Details{
				"allowedExtensions": supportedExtensions,
				"receivedExtension": ext,
			})
	}
	if !contains(ft.extensions, ext) {
		return "", apperr.New(apperr.KindInvalidInput, apperr.CodeInvalidExtension, "File extension does not match content type").
			WithDetails(apperr.Details{
				"expectedExtensions": ft.extensions,
				"receivedExtension":  ext,
				"mimeType":           u.ContentType,
			})
	}

	if u.ContentType == mimeText {
		if !printable(u.Data) {
			return "", apperr.New(apperr.KindInvalidInput, apperr.CodeContentMismatch, "Invalid text file content").
				WithDetails(apperr.Details{
					"mimeType": u.ContentType,
					"reason":   "File contains non-printable characters",
				})
		}
		return ext, nil
	}

	for _, sig := range ft.signatures {
		if bytes.HasPrefix(u.Data, sig) {
			return ext, nil
		}
	}
	return "", apperr.New(apperr.KindInvalidInput, apperr.CodeContentMismatch, "File content does not match its extension").
		WithDetails(apperr.Details{
			"declaredType": u.ContentType,
			"extension":    ext,
		})
}

func printable(data []byte) bool {
	for _, b := range data {
		if (b < 0x20 || b > 0x7E) && b != '\n' && b != '\r' && b != '\t' {
			return false
		}
	}
	return true
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
