package models

import "time"

// UploadsPrefix is the root of every uploaded object key.
const UploadsPrefix = "uploads/"

// Object metadata keys written with every upload.
const (
	MetaOriginalName = "originalName"
	MetaUploadedBy   = "uploadedBy"
	MetaUploadedAt   = "uploadedAt"
)

// OwnerPrefix is the key prefix holding one identity's uploads.
func OwnerPrefix(ownerID string) string {
	return UploadsPrefix + ownerID + "/"
}

// FileInfo describes an uploaded file to its owner.
type FileInfo struct {
	FileName     string    `json:"fileName"`
	OriginalName string    `json:"originalName"`
	ContentType  string    `json:"contentType"`
	Size         int64     `json:"size"`
	UploadedAt   time.Time `json:"uploadedAt"`
	Path         string    `json:"path"`
	URL          string    `json:"url"`
}
