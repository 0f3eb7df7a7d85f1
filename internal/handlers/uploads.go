package handlers

import (
	"context"
	"errors"
	"fmt"
	"log"
	"mime/multipart"
	"path/filepath"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/finitixhub/finitix_be/internal/services/storage"
)

var imageExts = map[string]bool{".jpg": true, ".jpeg": true, ".png": true, ".webp": true, ".gif": true}

// rejectedFile is reported back when a multi-file upload skips a file.
type rejectedFile struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// storeFile checks the size ceiling before the bucket is touched.
func storeFile(ctx context.Context, bucket storage.Bucket, folder string, fh *multipart.FileHeader) (string, error) {
	if fh.Size <= 0 {
		return "", storage.ErrEmptyFile
	}
	if fh.Size > bucket.MaxBytes() {
		return "", storage.ErrFileTooLarge
	}
	f, err := fh.Open()
	if err != nil {
		return "", fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()
	return bucket.Upload(ctx, folder, fh.Filename, f, fh.Size)
}

// storeFiles uploads every file of a multipart field. Oversize and empty files
// are listed as rejected; storage failures are logged and dropped.
func storeFiles(ctx context.Context, bucket storage.Bucket, folder string, files []*multipart.FileHeader) ([]string, []rejectedFile) {
	urls := make([]string, 0, len(files))
	var rejected []rejectedFile
	for _, fh := range files {
		url, err := storeFile(ctx, bucket, folder, fh)
		switch {
		case err == nil:
			urls = append(urls, url)
		case errors.Is(err, storage.ErrFileTooLarge):
			rejected = append(rejected, rejectedFile{Name: fh.Filename, Reason: sizeMessage(bucket)})
		case errors.Is(err, storage.ErrEmptyFile):
			rejected = append(rejected, rejectedFile{Name: fh.Filename, Reason: "file is empty"})
		default:
			log.Printf("[Storage] dropped %q in %s: %v", fh.Filename, folder, err)
		}
	}
	return urls, rejected
}

// formFiles returns the files of a multipart field, or nil for JSON requests.
func formFiles(c *fiber.Ctx, field string) []*multipart.FileHeader {
	form, err := c.MultipartForm()
	if err != nil || form == nil {
		return nil
	}
	return form.File[field]
}

func isImage(filename string) bool {
	return imageExts[strings.ToLower(filepath.Ext(filename))]
}

func sizeMessage(bucket storage.Bucket) string {
	return fmt.Sprintf("file exceeds the %d KB limit", bucket.MaxBytes()/1024)
}

// uploadFail maps bucket errors to the response envelope.
func uploadFail(c *fiber.Ctx, bucket storage.Bucket, err error) error {
	switch {
	case errors.Is(err, storage.ErrFileTooLarge):
		return fail(c, fiber.StatusBadRequest, sizeMessage(bucket))
	case errors.Is(err, storage.ErrEmptyFile):
		return fail(c, fiber.StatusBadRequest, "file is empty")
	case errors.Is(err, storage.ErrInvalidFolder):
		return fail(c, fiber.StatusBadRequest, "invalid folder")
	default:
		return fail500(c, "failed to store file", err)
	}
}
