// Package blobstore provides access to stored report attachments. A store
// issues time-bounded signed URLs for (bucket, path) pairs and fetches the
// bytes behind such URLs.
package blobstore

import (
	"context"
	"errors"
	"mime"
	"strings"
)

var (
	ErrNotFound     = errors.New("blob not found")
	ErrTooLarge     = errors.New("blob exceeds maximum allowed size")
	ErrInvalidPath  = errors.New("invalid blob path")
	ErrInvalidToken = errors.New("invalid or expired download token")
	ErrUnexpected   = errors.New("unexpected response from blob store")
)

// Blob is a fetched object.
type Blob struct {
	Data        []byte
	ContentType string
}

// Signer issues time-bounded retrieval URLs.
type Signer interface {
	SignURL(ctx context.Context, bucket, path string) (string, error)
}

// Fetcher retrieves the object behind a signed URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*Blob, error)
}

// BlobStore is the capability the attachment resolver consumes.
type BlobStore interface {
	Signer
	Fetcher
}

type store struct {
	Signer
	Fetcher
}

// New pairs a signer with a fetcher.
func New(signer Signer, fetcher Fetcher) BlobStore {
	return store{Signer: signer, Fetcher: fetcher}
}

// MediaType strips parameters and lower-cases a Content-Type value.
func MediaType(contentType string) string {
	if contentType == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
	}
	return mt
}

// CleanPath normalises an object path and rejects traversal.
func CleanPath(p string) (string, error) {
	p = strings.TrimLeft(strings.ReplaceAll(p, "\\", "/"), "/")
	if p == "" {
		return "", ErrInvalidPath
	}
	for _, seg := range strings.Split(p, "/") {
		if seg == ".." {
			return "", ErrInvalidPath
		}
	}
	return p, nil
}
