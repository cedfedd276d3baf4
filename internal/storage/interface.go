package storage

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound   = errors.New("object not found")
	ErrInvalidKey = errors.New("invalid storage key")
)

// Metadata is the sidecar stored next to an object
type Metadata struct {
	ContentType  string            `json:"contentType,omitempty"`
	OriginalName string            `json:"originalName,omitempty"`
	DocumentID   string            `json:"documentId,omitempty"`
	Kind         string            `json:"kind,omitempty"`
	SHA256       string            `json:"sha256,omitempty"`
	CreatedAt    time.Time         `json:"createdAt,omitempty"`
	Custom       map[string]string `json:"custom,omitempty"`
}

// FileInfo describes a stored object
type FileInfo struct {
	Key         string    `json:"key"`
	Size        int64     `json:"size"`
	Checksum    string    `json:"checksum"`
	ContentType string    `json:"contentType,omitempty"`
	ModifiedAt  time.Time `json:"modifiedAt"`
	Metadata    *Metadata `json:"metadata,omitempty"`
}

// Storage is a key/value object store. Keys use forward slashes.
type Storage interface {
	Put(ctx context.Context, key string, content []byte, metadata *Metadata) error

	// Get returns ErrNotFound when the key does not exist.
	Get(ctx context.Context, key string) ([]byte, error)

	GetInfo(ctx context.Context, key string) (*FileInfo, error)
	Exists(ctx context.Context, key string) (bool, error)

	// Delete is a no-op for a missing key.
	Delete(ctx context.Context, key string) error

	// List returns every key under prefix in lexical order.
	List(ctx context.Context, prefix string) ([]string, error)

	// GetChecksum returns the hex SHA-256 of the object.
	GetChecksum(ctx context.Context, key string) (string, error)
}

type StorageType string

const (
	StorageTypeLocal StorageType = "local"
)

// Object kinds recorded in Metadata.Kind
const (
	KindDocumentFile = "document_file"
	KindTransferBag  = "transfer_bag"
)
