package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/golang-jwt/jwt/v5"
)

// FilesRoute is the download route served for local store URLs.
const FilesRoute = "/api/v1/files/"

// LocalConfig configures a filesystem-backed store. Files live at
// Root/<bucket>/<path> and are served through signed download URLs.
type LocalConfig struct {
	Root      string
	BaseURL   string
	Secret    []byte
	URLExpiry time.Duration
	MaxBytes  int64
}

type downloadClaims struct {
	jwt.RegisteredClaims
	Bucket string `json:"bucket"`
	Path   string `json:"path"`
}

// LocalStore signs HS256 download tokens bound to one bucket/path pair.
type LocalStore struct {
	cfg LocalConfig
	now func() time.Time
}

func NewLocalStore(cfg LocalConfig) (*LocalStore, error) {
	if cfg.Root == "" {
		return nil, errors.New("local store root is required")
	}
	if len(cfg.Secret) == 0 {
		return nil, errors.New("local store signing secret is required")
	}
	if cfg.URLExpiry <= 0 {
		cfg.URLExpiry = 5 * time.Minute
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &LocalStore{cfg: cfg, now: time.Now}, nil
}

func (s *LocalStore) SignURL(_ context.Context, bucket, path string) (string, error) {
	bucket, path, err := cleanObject(bucket, path)
	if err != nil {
		return "", err
	}

	now := s.now()
	claims := downloadClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.URLExpiry)),
		},
		Bucket: bucket,
		Path:   path,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.cfg.Secret)
	if err != nil {
		return "", fmt.Errorf("sign download token: %w", err)
	}

	segments := strings.Split(path, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return fmt.Sprintf("%s%s%s/%s?token=%s",
		s.cfg.BaseURL, FilesRoute, url.PathEscape(bucket), strings.Join(segments, "/"), url.QueryEscape(token)), nil
}

// Verify checks that token is unexpired and was issued for bucket/path.
func (s *LocalStore) Verify(token, bucket, path string) error {
	bucket, path, err := cleanObject(bucket, path)
	if err != nil {
		return err
	}

	claims := &downloadClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return s.cfg.Secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now), jwt.WithExpirationRequired())
	if err != nil || !parsed.Valid {
		return ErrInvalidToken
	}
	if claims.Bucket != bucket || claims.Path != path {
		return ErrInvalidToken
	}
	return nil
}

// Open reads a stored file and detects its media type from content.
func (s *LocalStore) Open(bucket, path string) (*Blob, error) {
	bucket, path, err := cleanObject(bucket, path)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(filepath.Join(s.cfg.Root, bucket, filepath.FromSlash(path)))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("open %s/%s: %w", bucket, path, err)
	}
	defer f.Close()

	r := io.Reader(f)
	if s.cfg.MaxBytes > 0 {
		r = io.LimitReader(f, s.cfg.MaxBytes+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read %s/%s: %w", bucket, path, err)
	}
	if s.cfg.MaxBytes > 0 && int64(len(data)) > s.cfg.MaxBytes {
		return nil, ErrTooLarge
	}
	return &Blob{Data: data, ContentType: MediaType(mimetype.Detect(data).String())}, nil
}

// Fetch resolves one of this store's own signed URLs without a network hop.
func (s *LocalStore) Fetch(ctx context.Context, rawURL string) (*Blob, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPath, err)
	}
	rest, ok := strings.CutPrefix(u.Path, FilesRoute)
	if !ok {
		return nil, ErrInvalidPath
	}
	bucket, path, ok := strings.Cut(rest, "/")
	if !ok {
		return nil, ErrInvalidPath
	}
	if err := s.Verify(u.Query().Get("token"), bucket, path); err != nil {
		return nil, err
	}
	return s.Open(bucket, path)
}

func cleanObject(bucket, path string) (string, string, error) {
	if bucket == "" || bucket == "." || bucket == ".." || strings.ContainsAny(bucket, `/\`) {
		return "", "", ErrInvalidPath
	}
	clean, err := CleanPath(path)
	if err != nil {
		return "", "", err
	}
	return bucket, clean, nil
}
