package rest

import (
	"errors"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/dmitrijs2005/taskkeeper/internal/common"
	"github.com/dmitrijs2005/taskkeeper/internal/server/models"
	"github.com/dmitrijs2005/taskkeeper/internal/server/query"
	"github.com/dmitrijs2005/taskkeeper/internal/server/services"
	"github.com/gin-gonic/gin"
)

// uploadField is the multipart field carrying files.
const uploadField = "files"

type createTaskRequest struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	StartDate   string   `json:"startDate"`
	DueDate     string   `json:"dueDate"`
	AssignedTo  []string `json:"assignedTo"`
}

type updateTaskRequest struct {
	Title       *string   `json:"title"`
	Description *string   `json:"description"`
	Status      *string   `json:"status"`
	StartDate   *string   `json:"startDate"`
	DueDate     *string   `json:"dueDate"`
	AssignedTo  *[]string `json:"assignedTo"`
}

type commentRequest struct {
	Text string `json:"text"`
}

func (s *Server) listTasks(c *gin.Context) {
	q, err := query.Parse(c.Request.URL.Query())
	if err != nil {
		s.fail(c, err)
		return
	}

	list, total, err := s.tasks.List(c.Request.Context(), actorFrom(c), q)
	if err != nil {
		s.fail(c, err)
		return
	}
	if list == nil {
		list = []*models.Task{}
	}

	data, err := project(list, q.Select)
	if err != nil {
		s.fail(c, err)
		return
	}
	okList(c, data, len(list), paginate(q.Page, q.Limit, total))
}

func (s *Server) listCompletedTasks(c *gin.Context) {
	page, limit := query.ParsePaging(c.Request.URL.Query())

	list, total, err := s.tasks.ListCompleted(c.Request.Context(), actorFrom(c), page, limit)
	if err != nil {
		s.fail(c, err)
		return
	}
	if list == nil {
		list = []*models.Task{}
	}
	okList(c, list, len(list), paginate(page, limit, total))
}

func (s *Server) getTask(c *gin.Context) {
	task, err := s.tasks.Get(c.Request.Context(), actorFrom(c), c.Param("id"))
	s.respondTask(c, http.StatusOK, task, err)
}

func (s *Server) createTask(c *gin.Context) {
	var req createTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, invalidBody())
		return
	}

	task, err := s.tasks.Create(c.Request.Context(), actorFrom(c), services.CreateTaskInput{
		Title:       req.Title,
		Description: req.Description,
		StartDate:   req.StartDate,
		DueDate:     req.DueDate,
		AssignedTo:  req.AssignedTo,
	})
	s.respondTask(c, http.StatusCreated, task, err)
}

func (s *Server) updateTask(c *gin.Context) {
	var req updateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, invalidBody())
		return
	}

	task, err := s.tasks.Update(c.Request.Context(), actorFrom(c), c.Param("id"), services.UpdateTaskInput{
		Title:       req.Title,
		Description: req.Description,
		Status:      req.Status,
		StartDate:   req.StartDate,
		DueDate:     req.DueDate,
		AssignedTo:  req.AssignedTo,
	})
	s.respondTask(c, http.StatusOK, task, err)
}

func (s *Server) deleteTask(c *gin.Context) {
	if err := s.tasks.Delete(c.Request.Context(), actorFrom(c), c.Param("id")); err != nil {
		s.fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{})
}

func (s *Server) startTask(c *gin.Context) {
	task, err := s.tasks.Start(c.Request.Context(), actorFrom(c), c.Param("id"))
	s.respondTask(c, http.StatusOK, task, err)
}

func (s *Server) completeTask(c *gin.Context) {
	task, err := s.tasks.Complete(c.Request.Context(), actorFrom(c), c.Param("id"))
	s.respondTask(c, http.StatusOK, task, err)
}

func (s *Server) addComment(c *gin.Context) {
	var req commentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, invalidBody())
		return
	}

	task, err := s.tasks.AddComment(c.Request.Context(), actorFrom(c), c.Param("id"), req.Text)
	s.respondTask(c, http.StatusOK, task, err)
}

func (s *Server) uploadTaskFiles(c *gin.Context) {
	s.upload(c, models.FileCategoryTask)
}

func (s *Server) uploadCompletionFiles(c *gin.Context) {
	s.upload(c, models.FileCategoryCompletion)
}

func (s *Server) upload(c *gin.Context, category string) {
	form, err := c.MultipartForm()
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
			s.fail(c, s.tooLarge())
			return
		}
		s.fail(c, common.Errorf(common.ErrorValidation, "please upload a file"))
		return
	}
	defer form.RemoveAll()

	headers := form.File[uploadField]
	uploads := make([]services.Upload, 0, len(headers))
	opened := make([]multipart.File, 0, len(headers))
	defer func() {
		for _, f := range opened {
			f.Close()
		}
	}()

	for _, h := range headers {
		f, err := h.Open()
		if err != nil {
			s.fail(c, err)
			return
		}
		opened = append(opened, f)
		uploads = append(uploads, services.Upload{Name: h.Filename, Size: h.Size, Content: f})
	}

	task, err := s.tasks.AttachFiles(c.Request.Context(), actorFrom(c), c.Param("id"), category, uploads)
	s.respondTask(c, http.StatusOK, task, err)
}

func (s *Server) removeTaskFile(c *gin.Context) {
	task, err := s.tasks.RemoveFile(c.Request.Context(), actorFrom(c), c.Param("id"), models.FileCategoryTask, c.Param("fileId"))
	s.respondTask(c, http.StatusOK, task, err)
}

func (s *Server) removeCompletionFile(c *gin.Context) {
	task, err := s.tasks.RemoveFile(c.Request.Context(), actorFrom(c), c.Param("id"), models.FileCategoryCompletion, c.Param("fileId"))
	s.respondTask(c, http.StatusOK, task, err)
}

func (s *Server) respondTask(c *gin.Context, status int, task *models.Task, err error) {
	if err != nil {
		s.fail(c, err)
		return
	}
	ok(c, status, task)
}
