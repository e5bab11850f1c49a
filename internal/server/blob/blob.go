// Package blob stores uploaded file contents under hierarchical keys of
// the form {taskId}/{task|completion}/{storedName}. Two backends exist: a
// local directory and an S3-compatible bucket.
package blob

import (
	"context"
	"io"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/taskkeeper/internal/common"
)

// PublicPrefix is the URL path under which blobs are served.
const PublicPrefix = "/uploads/"

// Info describes a stored blob.
type Info struct {
	Size        int64
	ContentType string
	ModTime     time.Time
}

// Store is a blob backend. Keys use forward slashes.
type Store interface {
	// Put writes r under key; readers never see a partial blob.
	Put(ctx context.Context, key string, r io.ReadSeeker, size int64, contentType string) error
	// Open returns the blob content or common.ErrorNotFound.
	Open(ctx context.Context, key string) (io.ReadCloser, *Info, error)
	// Delete removes key. A missing blob is not an error.
	Delete(ctx context.Context, key string) error
	// DeletePrefix removes every blob under prefix + "/".
	DeletePrefix(ctx context.Context, prefix string) error
}

// Presigner is implemented by backends that can hand out a temporary
// direct download URL.
type Presigner interface {
	PresignGet(ctx context.Context, key string) (string, error)
}

var allowedExtensions = map[string]struct{}{
	".jpg": {}, ".jpeg": {}, ".png": {}, ".gif": {}, ".bmp": {}, ".svg": {}, ".webp": {},
	".pdf": {}, ".doc": {}, ".docx": {}, ".xls": {}, ".xlsx": {}, ".csv": {},
}

// contentTypeByExt maps the allowed extensions to MIME types.
var contentTypeByExt = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".bmp":  "image/bmp",
	".svg":  "image/svg+xml",
	".webp": "image/webp",
	".pdf":  "application/pdf",
	".doc":  "application/msword",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".xls":  "application/vnd.ms-excel",
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".csv":  "text/csv",
}

// BaseName strips any client-side directory from an uploaded file name,
// for both slash styles.
func BaseName(name string) string {
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	return name
}

func ext(name string) string {
	return strings.ToLower(filepath.Ext(BaseName(name)))
}

// IsAllowed reports whether name carries an accepted extension,
// compared case-insensitively.
func IsAllowed(name string) bool {
	_, ok := allowedExtensions[ext(name)]
	return ok
}

// FileType is the lowercase extension of name without the dot.
func FileType(name string) string {
	return strings.TrimPrefix(ext(name), ".")
}

// ContentType returns the MIME type for name, defaulting to
// application/octet-stream.
func ContentType(name string) string {
	if ct, ok := contentTypeByExt[ext(name)]; ok {
		return ct
	}
	return "application/octet-stream"
}

// StoredName is the name a file is stored under: "{unixMillis}-{base}".
func StoredName(now time.Time, original string) string {
	return strconv.FormatInt(now.UnixMilli(), 10) + "-" + BaseName(original)
}

// Key builds the blob key of a stored file.
func Key(taskID, category, storedName string) string {
	return taskID + "/" + category + "/" + storedName
}

// PublicPath is the URL path a blob is served under.
func PublicPath(key string) string {
	return PublicPrefix + key
}

// CleanKey validates a key taken from a request path. It rejects empty
// keys, traversal, and segments starting with a dot.
func CleanKey(key string) (string, error) {
	key = strings.TrimPrefix(key, "/")
	if key == "" {
		return "", common.ErrorNotFound
	}
	cleaned := path.Clean(key)
	if cleaned != key {
		return "", common.ErrorNotFound
	}
	for _, seg := range strings.Split(cleaned, "/") {
		if seg == "" || strings.HasPrefix(seg, ".") || strings.Contains(seg, `\`) {
			return "", common.ErrorNotFound
		}
	}
	return cleaned, nil
}
