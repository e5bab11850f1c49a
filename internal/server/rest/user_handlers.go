package rest

import (
	"net/http"

	"github.com/dmitrijs2005/taskkeeper/internal/server/services"
	"github.com/gin-gonic/gin"
)

func (s *Server) listUsers(c *gin.Context) {
	list, err := s.users.List(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	okList(c, list, len(list), nil)
}

func (s *Server) getUser(c *gin.Context) {
	user, err := s.users.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	ok(c, http.StatusOK, user)
}

// createUser serves both POST /api/users and POST /api/auth/register.
func (s *Server) createUser(c *gin.Context) {
	var req userRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, invalidBody())
		return
	}

	user, err := s.users.Register(c.Request.Context(), actorFrom(c), services.NewUser{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Role:     req.Role,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	ok(c, http.StatusCreated, user)
}

func (s *Server) deleteUser(c *gin.Context) {
	if err := s.users.Delete(c.Request.Context(), actorFrom(c), c.Param("id")); err != nil {
		s.fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{})
}
