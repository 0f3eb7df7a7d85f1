package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/finitixhub/finitix_be/internal/services/storage"
)

type StorageHandler struct {
	Bucket storage.Bucket
}

func NewStorageHandler(bucket storage.Bucket) *StorageHandler {
	return &StorageHandler{Bucket: bucket}
}

// Upload stores a single file and returns its public URL. Files over the
// size limit are refused before the bucket is called.
func (h *StorageHandler) Upload(c *fiber.Ctx) error {
	if _, err := getAuth(c); err != nil {
		return err
	}

	file, err := c.FormFile("file")
	if err != nil {
		return fail(c, fiber.StatusBadRequest, "file is required (multipart field: file)")
	}

	url, err := storeFile(c.UserContext(), h.Bucket, c.Query("folder", "misc"), file)
	if err != nil {
		return uploadFail(c, h.Bucket, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "File uploaded",
		"data": fiber.Map{
			"url":  url,
			"name": file.Filename,
			"size": file.Size,
		},
	})
}
