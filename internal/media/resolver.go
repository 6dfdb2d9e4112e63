// Package media turns the media field of a new_message frame into a locator
// that can be stored on the message and sent to clients.
package media

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/thereayou/roomchat/internal/services"
)

const dataURLPrefix = "data:"

// Resolver maps a raw media reference to a locator.
type Resolver interface {
	Resolve(ctx context.Context, raw string) (string, error)
	// Discard undoes Resolve for a message that was never stored.
	Discard(ctx context.Context, raw, locator string) error
}

// IsDataURL reports whether raw carries inline media rather than a locator.
func IsDataURL(raw string) bool {
	return strings.HasPrefix(strings.TrimSpace(raw), dataURLPrefix)
}

// LocalStore writes inline data URLs to a directory and serves them under a
// base URL. Every other reference is treated as an opaque locator.
type LocalStore struct {
	dir     string
	baseURL string
	maxSize int
	log     *logrus.Entry
}

func NewLocalStore(dir, baseURL string, maxSize int) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create media dir: %w", err)
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	return &LocalStore{
		dir:     dir,
		baseURL: baseURL,
		maxSize: maxSize,
		log:     logrus.WithField("component", "media"),
	}, nil
}

func (s *LocalStore) Resolve(ctx context.Context, raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if !IsDataURL(raw) {
		return raw, nil
	}

	data, err := decodeDataURL(raw)
	if err != nil {
		return "", err
	}
	if s.maxSize > 0 && len(data) > s.maxSize {
		return "", fmt.Errorf("%w: media exceeds %d bytes", services.ErrMalformedFrame, s.maxSize)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	mtype := mimetype.Detect(data)
	name := uuid.NewString() + mtype.Extension()
	if err := os.WriteFile(filepath.Join(s.dir, name), data, 0o644); err != nil {
		return "", fmt.Errorf("%w: write media: %v", services.ErrStorageUnavailable, err)
	}

	s.log.WithFields(logrus.Fields{
		"file": name,
		"mime": mtype.String(),
		"size": len(data),
	}).Debug("media stored")
	return s.baseURL + name, nil
}

// Discard removes the file Resolve wrote for raw. Passed-through locators
// are not ours to remove.
func (s *LocalStore) Discard(_ context.Context, raw, locator string) error {
	if !IsDataURL(raw) {
		return nil
	}
	name, ok := strings.CutPrefix(locator, s.baseURL)
	if !ok || name == "" || filepath.Base(name) != name {
		return fmt.Errorf("discard media: %q is not a stored locator", locator)
	}
	if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("discard media: %w", err)
	}
	s.log.WithField("file", name).Debug("media discarded")
	return nil
}

// decodeDataURL accepts data:[<mime>][;base64],<payload>. Only base64
// payloads are supported.
func decodeDataURL(raw string) ([]byte, error) {
	header, payload, ok := strings.Cut(strings.TrimPrefix(raw, dataURLPrefix), ",")
	if !ok || !strings.HasSuffix(header, ";base64") {
		return nil, fmt.Errorf("%w: media must be a base64 data url", services.ErrMalformedFrame)
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: media payload is not valid base64", services.ErrMalformedFrame)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: media payload is empty", services.ErrMalformedFrame)
	}
	return data, nil
}
