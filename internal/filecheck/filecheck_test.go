package filecheck

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceotind/sharp-form-backend/internal/apperr"
)

var pngHeader = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}

func codeOf(t *testing.T, err error) string {
	t.Helper()
	var e *apperr.Error
	require.True(t, errors.As(err, &e), "expected *apperr.Error, got %v", err)
	return e.Code
}

func padTo(head []byte, n int) []byte {
	b := make([]byte, n)
	copy(b, head)
	return b
}

func TestValidateAccepts(t *testing.T) {
	c := New(0)
	cases := []struct {
		name string
		u    Upload
		ext  string
	}{
		{"png", Upload{"Logo.PNG", "image/png", pngHeader}, "png"},
		{"jpeg e1", Upload{"p.jpeg", "image/jpeg", []byte{0xFF, 0xD8, 0xFF, 0xE1, 0x00}}, "jpeg"},
		{"pdf", Upload{"cv.pdf", "application/pdf", []byte("%PDF-1.7")}, "pdf"},
		{"docx", Upload{"a.b.docx", "application/vnd.openxmlformats-officedocument.wordprocessingml.document", []byte{0x50, 0x4B, 0x03, 0x04, 1}}, "docx"},
		{"xls", Upload{"s.xls", "application/vnd.ms-excel", []byte{0xD0, 0xCF, 0x11, 0xE0}}, "xls"},
		{"text", Upload{"notes.txt", "text/plain", []byte("line one\r\n\tline two\n")}, "txt"},
		{"exactly max", Upload{"full.png", "image/png", padTo(pngHeader, DefaultMaxBytes)}, "png"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ext, err := c.Validate(&tc.u)
			require.NoError(t, err)
			assert.Equal(t, tc.ext, ext)
		})
	}
}

func TestValidateRejects(t *testing.T) {
	c := New(0)
	cases := []struct {
		name string
		u    *Upload
		code string
	}{
		{"missing", nil, apperr.CodeNoFile},
		{"too large", &Upload{"a.png", "image/png", append(pngHeader, make([]byte, DefaultMaxBytes)...)}, apperr.CodeFileTooLarge},
		{"gif", &Upload{"a.gif", "image/gif", []byte("GIF89a")}, apperr.CodeInvalidType},
		{"unsupported ext", &Upload{"a.exe", "image/png", pngHeader}, apperr.CodeInvalidExtension},
		{"no dot", &Upload{"png", "application/pdf", []byte("%PDF")}, apperr.CodeInvalidExtension},
		{"ext mismatch", &Upload{"a.pdf", "image/png", pngHeader}, apperr.CodeInvalidExtension},
		{"renamed exe", &Upload{"a.png", "image/png", []byte("MZ\x90\x00")}, apperr.CodeContentMismatch},
		{"binary text", &Upload{"a.txt", "text/plain", []byte("ok\x00")}, apperr.CodeContentMismatch},
		{"pdf without signature", &Upload{"cv.pdf", "application/pdf", []byte("PK\x03\x04")}, apperr.CodeContentMismatch},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := c.Validate(tc.u)
			require.Error(t, err)
			assert.Equal(t, tc.code, codeOf(t, err))
			assert.Equal(t, apperr.KindInvalidInput, apperr.KindOf(err))
		})
	}
}

func TestTooLargeDetails(t *testing.T) {
	c := New(0)
	data := bytes.Repeat([]byte{0}, 5*1024*1024+300*1024)
	_, err := c.Validate(&Upload{"a.png", "image/png", data})
	var e *apperr.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, "5MB", e.Details["maxSize"])
	assert.Equal(t, "5.3MB", e.Details["receivedSize"])
}

func TestOneByteOverMax(t *testing.T) {
	c := New(0)
	_, err := c.Validate(&Upload{"a.png", "image/png", padTo(pngHeader, DefaultMaxBytes+1)})
	var e *apperr.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, apperr.CodeFileTooLarge, e.Code)
	assert.Equal(t, "5MB", e.Details["maxSize"])
	assert.Equal(t, "5MB", e.Details["receivedSize"])
}

func TestSignatureMismatchDetails(t *testing.T) {
	_, err := New(0).Validate(&Upload{"cv.pdf", "application/pdf", []byte("not a pdf")})
	var e *apperr.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, apperr.CodeContentMismatch, e.Code)
	assert.Equal(t, "application/pdf", e.Details["declaredType"])
	assert.Equal(t, "pdf", e.Details["extension"])
}

func TestInvalidTypeEchoesAllowList(t *testing.T) {
	_, err := New(0).Validate(&Upload{"a.svg", "image/svg+xml", []byte("<svg/>")})
	var e *apperr.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, AllowedTypes(), e.Details["allowedTypes"])
	assert.Equal(t, "image/svg+xml", e.Details["receivedType"])
}

func TestExtension(t *testing.T) {
	assert.Equal(t, "pdf", Extension("report.final.PDF"))
	assert.Equal(t, "readme", Extension("README"))
	assert.Equal(t, "", Extension("trailing."))
}
