// Package source fetches raw documents, holds uploaded files and cleans
// both into sectioned markdown text.
package source

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"

	"github.com/dgallion1/docset/internal/doctree"
)

// UploadScheme prefixes source references that point at uploaded files.
const UploadScheme = "upload://"

// Document is a fetched, not yet cleaned, source.
type Document struct {
	Ref         string
	URL         string
	Title       string
	Lang        string
	Filename    string
	ContentType string
	Body        []byte
}

// Cleaned is normalized markdown text plus its section map.
type Cleaned struct {
	Title     string
	Lang      string
	Text      string
	Sections  []doctree.Section
	WordCount int
	CharCount int
	Removed   int // sections stripped by title
}

// IsUpload reports whether ref names an uploaded file.
func IsUpload(ref string) bool {
	return strings.HasPrefix(ref, UploadScheme)
}

// NormalizeRef canonicalizes a source reference so equivalent spellings of
// the same URL share a fingerprint. Scheme and host are lowercased, the
// fragment and a trailing slash are dropped. Upload refs pass through.
func NormalizeRef(ref string) string {
	ref = strings.TrimSpace(ref)
	if IsUpload(ref) {
		return ref
	}
	u, err := url.Parse(ref)
	if err != nil || u.Host == "" {
		return ref
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.RawFragment = ""
	if len(u.Path) > 1 {
		u.Path = strings.TrimRight(u.Path, "/")
		u.RawPath = strings.TrimRight(u.RawPath, "/")
	}
	return u.String()
}

// Fingerprint identifies a source for idempotent re-ingestion.
func Fingerprint(ref string) string {
	return HashHex([]byte(NormalizeRef(ref)))
}

// HashHex computes SHA-256 of data and returns the hex string.
func HashHex(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
