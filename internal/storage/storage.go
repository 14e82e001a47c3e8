package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"evofit/health-protocol/internal/domain"
)

// Default expiry duration for presigned URLs
const DefaultPresignedURLExpiry = 15 * time.Minute

var ErrObjectNotFound = errors.New("object not found in storage")

// FileStorage defines the interface for object storage operations.
type FileStorage interface {
	// PutObject uploads body under objectKey, replacing any existing object.
	PutObject(ctx context.Context, objectKey string, contentType string, body []byte) error

	// GeneratePresignedDownloadURL creates a temporary URL that allows GET requests
	// for downloading an object directly from the storage provider.
	GeneratePresignedDownloadURL(ctx context.Context, objectKey string, expires time.Duration) (string, error)

	DeleteObject(ctx context.Context, objectKey string) error
}

// SnapshotArchive writes every protocol version as a JSON document so history
// can be audited or restored outside the database.
type SnapshotArchive struct {
	files  FileStorage
	prefix string
}

func NewSnapshotArchive(files FileStorage) *SnapshotArchive {
	return &SnapshotArchive{files: files, prefix: "protocols"}
}

// SnapshotKey is the object key of one version snapshot. The entry id keeps
// two attempts at the same version number apart.
func (a *SnapshotArchive) SnapshotKey(v domain.ProtocolVersion) string {
	return fmt.Sprintf("%s/%s/v%d-%s.json", a.prefix, v.ProtocolID.Hex(), v.Version, v.ID.Hex())
}

// ArchiveVersion uploads the snapshot and returns its key.
func (a *SnapshotArchive) ArchiveVersion(ctx context.Context, v domain.ProtocolVersion) (string, error) {
	body, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", err
	}
	if v.ID.IsZero() {
		return "", errors.New("snapshot requires a version id")
	}
	key := a.SnapshotKey(v)
	if err := a.files.PutObject(ctx, key, "application/json", body); err != nil {
		return "", err
	}
	return key, nil
}

// DeleteArchived removes a snapshot. Missing objects are not an error.
func (a *SnapshotArchive) DeleteArchived(ctx context.Context, key string) error {
	return a.files.DeleteObject(ctx, key)
}

// DownloadURL returns a presigned link to an archived snapshot.
func (a *SnapshotArchive) DownloadURL(ctx context.Context, key string) (string, error) {
	return a.files.GeneratePresignedDownloadURL(ctx, key, DefaultPresignedURLExpiry)
}

// MemoryStorage is an in-process FileStorage used when no bucket is configured.
type MemoryStorage struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{objects: make(map[string][]byte)}
}

func (m *MemoryStorage) PutObject(ctx context.Context, objectKey string, contentType string, body []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[objectKey] = append([]byte(nil), body...)
	return nil
}

func (m *MemoryStorage) GeneratePresignedDownloadURL(ctx context.Context, objectKey string, expires time.Duration) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.objects[objectKey]; !ok {
		return "", ErrObjectNotFound
	}
	return "memory://" + objectKey, nil
}

func (m *MemoryStorage) DeleteObject(ctx context.Context, objectKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, objectKey)
	return nil
}

// Object returns a stored object's bytes.
func (m *MemoryStorage) Object(objectKey string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.objects[objectKey]
	return b, ok
}
