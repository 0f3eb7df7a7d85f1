package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultMaxBytes is the per-file ceiling (500 KB).
const DefaultMaxBytes int64 = 500 * 1024

var (
	ErrFileTooLarge  = errors.New("file exceeds the upload size limit")
	ErrEmptyFile     = errors.New("file is empty")
	ErrInvalidFolder = errors.New("invalid storage folder")
)

// Bucket stores a file and returns its public URL.
type Bucket interface {
	Upload(ctx context.Context, folder, filename string, src io.Reader, size int64) (string, error)
	Remove(ctx context.Context, publicURL string) error
	MaxBytes() int64
}

// LocalBucket keeps files on disk under Root; they are served by app.Static at PublicPath.
type LocalBucket struct {
	Root       string
	BaseURL    string
	PublicPath string
	Limit      int64
}

func NewLocalBucket(root, baseURL string, limit int64) *LocalBucket {
	if limit <= 0 {
		limit = DefaultMaxBytes
	}
	return &LocalBucket{
		Root:       root,
		BaseURL:    strings.TrimRight(baseURL, "/"),
		PublicPath: "/uploads",
		Limit:      limit,
	}
}

func (b *LocalBucket) MaxBytes() int64 { return b.Limit }

func (b *LocalBucket) Upload(ctx context.Context, folder, filename string, src io.Reader, size int64) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if size <= 0 {
		return "", ErrEmptyFile
	}
	if size > b.Limit {
		return "", ErrFileTooLarge
	}
	folder, err := cleanFolder(folder)
	if err != nil {
		return "", err
	}

	dir := filepath.Join(b.Root, folder)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(filename))
	name := fmt.Sprintf("%d_%s%s", time.Now().UnixNano(), uuid.NewString()[:8], ext)
	dst, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		return "", fmt.Errorf("create file: %w", err)
	}

	// read one byte past the limit so a lying size header is still caught
	n, err := io.Copy(dst, io.LimitReader(src, b.Limit+1))
	closeErr := dst.Close()
	if err == nil {
		err = closeErr
	}
	if err == nil && n > b.Limit {
		err = ErrFileTooLarge
	}
	if err != nil {
		_ = os.Remove(filepath.Join(dir, name))
		return "", err
	}

	return b.BaseURL + b.PublicPath + "/" + folder + "/" + name, nil
}

func (b *LocalBucket) Remove(ctx context.Context, publicURL string) error {
	rel := strings.TrimPrefix(publicURL, b.BaseURL)
	if !strings.HasPrefix(rel, b.PublicPath+"/") {
		return nil
	}
	rel = strings.TrimPrefix(rel, b.PublicPath+"/")
	if strings.Contains(rel, "..") {
		return ErrInvalidFolder
	}
	err := os.Remove(filepath.Join(b.Root, filepath.FromSlash(rel)))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

func cleanFolder(folder string) (string, error) {
	folder = strings.Trim(strings.TrimSpace(folder), "/")
	if folder == "" {
		return "misc", nil
	}
	for _, part := range strings.Split(folder, "/") {
		if part == "" || part == "." || part == ".." {
			return "", ErrInvalidFolder
		}
		for _, r := range part {
			if !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '-' || r == '_') {
				return "", ErrInvalidFolder
			}
		}
	}
	return folder, nil
}
