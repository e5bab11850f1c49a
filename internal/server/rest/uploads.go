package rest

import (
	"errors"
	"net/http"
	"strings"

	"github.com/dmitrijs2005/taskkeeper/internal/common"
	"github.com/dmitrijs2005/taskkeeper/internal/server/blob"
	"github.com/gin-gonic/gin"
)

// serveBlob streams a stored file by its public path. Stores that can
// presign (S3) answer with a redirect to a short-lived URL instead.
func (s *Server) serveBlob(c *gin.Context) {
	key, err := blob.CleanKey(strings.TrimPrefix(c.Param("key"), "/"))
	if err != nil {
		s.fail(c, fileNotFound())
		return
	}

	if p, isPresigner := s.blobs.(blob.Presigner); isPresigner {
		url, err := p.PresignGet(c.Request.Context(), key)
		if err != nil {
			s.fail(c, err)
			return
		}
		c.Redirect(http.StatusTemporaryRedirect, url)
		return
	}

	rc, info, err := s.blobs.Open(c.Request.Context(), key)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			s.fail(c, fileNotFound())
			return
		}
		s.fail(c, err)
		return
	}
	defer rc.Close()

	c.DataFromReader(http.StatusOK, info.Size, info.ContentType, rc, map[string]string{
		"Last-Modified": info.ModTime.UTC().Format(http.TimeFormat),
	})
}

func fileNotFound() error {
	return common.Errorf(common.ErrorNotFound, "file not found")
}
