package source

import (
	"errors"
	"strings"
	"sync"
	"time"
)

var ErrUploadNotFound = errors.New("source: upload not found or expired")

// Upload is a file held in memory until a run fetches it.
type Upload struct {
	ID        string    `json:"upload_id"`
	Ref       string    `json:"source_ref"`
	Filename  string    `json:"filename"`
	Bytes     int       `json:"bytes"`
	CreatedAt time.Time `json:"created_at"`
	Data      []byte    `json:"-"`
}

// Uploads is a content-addressed, TTL-bounded in-memory upload store.
// Identical bytes map to the same ref, so re-uploading a file hits the
// same fingerprint.
type Uploads struct {
	mu    sync.Mutex
	items map[string]*Upload
	ttl   time.Duration
	now   func() time.Time
}

func NewUploads(ttl time.Duration) *Uploads {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Uploads{
		items: make(map[string]*Upload),
		ttl:   ttl,
		now:   time.Now,
	}
}

// Put stores data under a content-derived id.
func (s *Uploads) Put(filename string, data []byte) *Upload {
	id := HashHex(data)[:16]
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.pruneLocked(now)
	up := &Upload{
		ID:        id,
		Ref:       UploadScheme + id,
		Filename:  filename,
		Bytes:     len(data),
		CreatedAt: now,
		Data:      data,
	}
	s.items[id] = up
	return up
}

// Get accepts either an upload id or an upload:// ref.
func (s *Uploads) Get(idOrRef string) (*Upload, error) {
	id := strings.TrimPrefix(idOrRef, UploadScheme)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.pruneLocked(s.now())
	up, ok := s.items[id]
	if !ok {
		return nil, ErrUploadNotFound
	}
	return up, nil
}

func (s *Uploads) pruneLocked(now time.Time) {
	cutoff := now.Add(-s.ttl)
	for id, up := range s.items {
		if up.CreatedAt.Before(cutoff) {
			delete(s.items, id)
		}
	}
}
