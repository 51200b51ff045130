// Package fs stores objects as files under a root directory.
//
// Presigned URLs point at the service's own /objects/ route and carry an
// expiry and an HMAC-SHA256 signature, so a remote worker can fetch audio
// without credentials. VerifySignature checks them on the way back in.
package fs

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/custodia-labs/stitch/internal/core/domain"
	"github.com/custodia-labs/stitch/internal/core/ports/driven"
)

// RoutePrefix is the HTTP path under which signed objects are served.
const RoutePrefix = "/objects/"

// Query parameters of a signed URL.
const (
	ParamExpires   = "expires"
	ParamSignature = "sig"
)

// ErrSignature is returned when a signed URL is invalid or expired.
var ErrSignature = errors.New("invalid or expired signature")

// Ensure ObjectStore implements the interface.
var _ driven.ObjectStore = (*ObjectStore)(nil)

// ObjectStore is a filesystem-backed implementation of driven.ObjectStore.
type ObjectStore struct {
	root    string
	baseURL string
	secret  []byte
	now     func() time.Time
}

// NewObjectStore creates the root directory if needed. baseURL is the
// externally reachable service URL used for presigned links.
func NewObjectStore(root, baseURL string, secret []byte) (*ObjectStore, error) {
	if root == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		root = filepath.Join(home, ".stitch", "objects")
	}
	if len(secret) == 0 {
		return nil, fmt.Errorf("%w: signing secret is required", domain.ErrInvalidInput)
	}
	if err := os.MkdirAll(root, 0700); err != nil {
		return nil, fmt.Errorf("creating object root: %w", err)
	}
	return &ObjectStore{
		root:    root,
		baseURL: strings.TrimRight(baseURL, "/"),
		secret:  secret,
		now:     time.Now,
	}, nil
}

// Root returns the directory objects are stored under.
func (s *ObjectStore) Root() string {
	return s.root
}

// Put writes data under key, replacing any existing object atomically.
func (s *ObjectStore) Put(_ context.Context, key string, data []byte, _ string) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating object directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".put-*")
	if err != nil {
		return fmt.Errorf("creating temp object: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("writing object %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("closing object %s: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("renaming object %s: %w", key, err)
	}
	return nil
}

// Get reads the object at key.
func (s *ObjectStore) Get(_ context.Context, key string) ([]byte, error) {
	path, err := s.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("object %s: %w", key, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("reading object %s: %w", key, err)
	}
	return data, nil
}

// PresignedGetURL returns a signed link to an existing object, valid for ttl.
func (s *ObjectStore) PresignedGetURL(_ context.Context, key string, ttl time.Duration) (string, error) {
	path, err := s.path(key)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("object %s: %w", key, domain.ErrNotFound)
		}
		return "", fmt.Errorf("stat object %s: %w", key, err)
	}

	expires := strconv.FormatInt(s.now().Add(ttl).Unix(), 10)
	q := url.Values{}
	q.Set(ParamExpires, expires)
	q.Set(ParamSignature, s.sign(key, expires))
	return s.baseURL + RoutePrefix + (&url.URL{Path: key}).EscapedPath() + "?" + q.Encode(), nil
}

// VerifySignature checks a signed URL's query against key.
func (s *ObjectStore) VerifySignature(key string, query url.Values) error {
	expires := query.Get(ParamExpires)
	unix, err := strconv.ParseInt(expires, 10, 64)
	if err != nil {
		return ErrSignature
	}
	if s.now().Unix() > unix {
		return ErrSignature
	}
	got, err := hex.DecodeString(query.Get(ParamSignature))
	if err != nil {
		return ErrSignature
	}
	want, _ := hex.DecodeString(s.sign(key, expires))
	if !hmac.Equal(got, want) {
		return ErrSignature
	}
	return nil
}

func (s *ObjectStore) sign(key, expires string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(key))
	mac.Write([]byte{'\n'})
	mac.Write([]byte(expires))
	return hex.EncodeToString(mac.Sum(nil))
}

// path maps key to a file under root, refusing keys that escape it.
func (s *ObjectStore) path(key string) (string, error) {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return "", fmt.Errorf("%w: object key %q", domain.ErrInvalidInput, key)
	}
	clean := filepath.Clean(filepath.FromSlash(key))
	if clean == "." || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: object key %q", domain.ErrInvalidInput, key)
	}
	return filepath.Join(s.root, clean), nil
}
