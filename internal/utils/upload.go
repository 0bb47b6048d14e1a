package utils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Upload sub-directories under the configured upload root.
const (
	UploadRepairRequests = "repair-requests"
	UploadBicycles       = "bicycles"
	UploadPromotional    = "promotional"
	UploadProfilePhotos  = "profile-photos"
)

// SavedFile describes a stored upload.
type SavedFile struct {
	URL  string
	Size int64
	Kind string
}

// SaveUpload stores the file under root/dir with a timestamp+random name and returns
// the public URL path (/uploads/dir/name).
func SaveUpload(c *fiber.Ctx, root, dir string, fh *multipart.FileHeader) (SavedFile, error) {
	target := filepath.Join(root, dir)
	if err := os.MkdirAll(target, 0o755); err != nil {
		return SavedFile{}, err
	}

	name, err := uniqueName(filepath.Ext(fh.Filename))
	if err != nil {
		return SavedFile{}, err
	}

	if err := c.SaveFile(fh, filepath.Join(target, name)); err != nil {
		return SavedFile{}, err
	}

	return SavedFile{
		URL:  "/uploads/" + dir + "/" + name,
		Size: fh.Size,
		Kind: MediaKind(fh),
	}, nil
}

// MediaKind classifies an upload as image or video by content type.
func MediaKind(fh *multipart.FileHeader) string {
	ct := fh.Header.Get("Content-Type")
	switch {
	case strings.HasPrefix(ct, "video/"):
		return "video"
	case strings.HasPrefix(ct, "image/"):
		return "image"
	}
	return "other"
}

func uniqueName(ext string) (string, error) {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return fmt.Sprintf("%d-%s%s", time.Now().UnixMilli(), hex.EncodeToString(buf), strings.ToLower(ext)), nil
}

// RemoveUpload deletes a file previously stored by SaveUpload. Unknown URLs are ignored.
func RemoveUpload(root, url string) {
	rel := strings.TrimPrefix(url, "/uploads/")
	if rel == url || rel == "" || strings.Contains(rel, "..") {
		return
	}
	_ = os.Remove(filepath.Join(root, filepath.FromSlash(rel)))
}
