package models

import (
	"time"

	"github.com/google/uuid"
)

// Image is an uploaded picture attached to a Pinecone.
type Image struct {
	ID           uuid.UUID `json:"id"`
	PineconeGuid uuid.UUID `json:"pineconeGuid"`
	UserName     string    `json:"-"`
	Filename     string    `json:"filename"`
	MimeType     string    `json:"mimeType"`
	Size         int64     `json:"size"`
	Hash         string    `json:"hash"`
	StoragePath  string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}

// ImageUploadResponse is returned after a successful upload.
type ImageUploadResponse struct {
	ID       uuid.UUID `json:"id"`
	URL      string    `json:"url"`
	Filename string    `json:"filename"`
	MimeType string    `json:"mimeType"`
	Size     int64     `json:"size"`
}
