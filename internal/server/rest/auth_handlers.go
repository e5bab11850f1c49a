package rest

import (
	"net/http"

	"github.com/dmitrijs2005/taskkeeper/internal/common"
	"github.com/dmitrijs2005/taskkeeper/internal/server/models"
	"github.com/dmitrijs2005/taskkeeper/internal/server/services"
	"github.com/gin-gonic/gin"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type userRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

// tokenResponse is the login and refresh body; token sits at the top level
// next to the envelope fields.
type tokenResponse struct {
	Success      bool         `json:"success"`
	Token        string       `json:"token"`
	RefreshToken string       `json:"refreshToken"`
	Data         *models.User `json:"data,omitempty"`
}

func (s *Server) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, invalidBody())
		return
	}

	pair, user, err := s.users.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		s.fail(c, err)
		return
	}

	s.sendTokens(c, pair, user)
}

func (s *Server) refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, invalidBody())
		return
	}

	pair, err := s.users.RefreshToken(c.Request.Context(), req.RefreshToken)
	if err != nil {
		s.fail(c, err)
		return
	}

	s.sendTokens(c, pair, nil)
}

func (s *Server) sendTokens(c *gin.Context, pair *services.TokenPair, user *models.User) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(common.TokenCookieName, pair.AccessToken, int(s.accessTTL.Seconds()), "/", "", false, true)
	c.JSON(http.StatusOK, tokenResponse{
		Success:      true,
		Token:        pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		Data:         user,
	})
}

// logout revokes the refresh token sent in the body, if any, and clears
// the token cookie.
func (s *Server) logout(c *gin.Context) {
	var req refreshRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			s.fail(c, invalidBody())
			return
		}
	}

	if err := s.users.Logout(c.Request.Context(), req.RefreshToken); err != nil {
		s.fail(c, err)
		return
	}

	c.SetCookie(common.TokenCookieName, "", -1, "/", "", false, true)
	ok(c, http.StatusOK, gin.H{})
}

func (s *Server) me(c *gin.Context) {
	user, err := s.users.Get(c.Request.Context(), actorFrom(c).ID)
	if err != nil {
		s.fail(c, err)
		return
	}
	ok(c, http.StatusOK, user)
}

func invalidBody() error {
	return common.Errorf(common.ErrorValidation, "invalid request body")
}
