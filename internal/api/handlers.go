package api

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/cg-order-portal/internal/archive"
	"github.com/cg-order-portal/internal/domain"
	"github.com/cg-order-portal/internal/logging"
	"github.com/cg-order-portal/internal/orderform"
	"github.com/cg-order-portal/internal/service"
	"github.com/cg-order-portal/internal/telemetry"
)

var errNoStore = errors.New("no project store configured")

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error  string `json:"error"`
	Code   string `json:"code,omitempty"`
	Entity string `json:"entity,omitempty"`
	Name   string `json:"name,omitempty"`
	Field  string `json:"field,omitempty"`
}

var codeStatus = map[string]int{
	domain.ErrSchema:      http.StatusBadRequest,
	domain.ErrParse:       http.StatusBadRequest,
	domain.ErrReference:   http.StatusUnprocessableEntity,
	domain.ErrValidation:  http.StatusUnprocessableEntity,
	domain.ErrUnsupported: http.StatusUnprocessableEntity,
	domain.ErrDuplicate:   http.StatusConflict,
	domain.ErrRemote:      http.StatusBadGateway,
}

// statusOf maps an error to its HTTP status.
func statusOf(err error) int {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrLocked):
		return http.StatusConflict
	case errors.Is(err, errNoStore):
		return http.StatusServiceUnavailable
	}
	if status, ok := codeStatus[domain.CodeOf(err)]; ok {
		return status
	}
	return http.StatusInternalServerError
}

func (s *Server) fail(c *gin.Context, err error) {
	status := statusOf(err)
	body := errorBody{Error: err.Error()}
	var perr *domain.PipelineError
	if errors.As(err, &perr) {
		body.Code = perr.Code
		body.Entity = perr.Entity
		body.Name = perr.Name
		body.Field = perr.Field
	}
	if status >= http.StatusInternalServerError {
		logging.Entry(c.Request.Context(), s.log).WithError(err).Error("Request error")
	}
	c.AbortWithStatusJSON(status, body)
}

func (s *Server) store() (domain.ProjectStore, error) {
	if s.deps.Store == nil {
		return nil, errNoStore
	}
	return s.deps.Store, nil
}

func (s *Server) decodeProject(c *gin.Context) (*domain.ProjectRecord, bool) {
	data, err := io.ReadAll(c.Request.Body)
	if err != nil {
		s.fail(c, err)
		return nil, false
	}
	project, err := service.DecodeProject(data)
	if err != nil {
		s.fail(c, err)
		return nil, false
	}
	return project, true
}

func projectID(c *gin.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.NewPipelineError(domain.ErrSchema, domain.EntityProject, c.Param("id"), "invalid project id").WithField("id")
	}
	return id, nil
}

// handleOrderForm archives and parses an uploaded order form, and stores
// the project when save=true.
func (s *Server) handleOrderForm(c *gin.Context) {
	metrics := s.deps.Pipeline.Metrics()
	project, key, id, err := s.importOrderForm(c)
	metrics.OrderForms.WithLabelValues(telemetry.Outcome(err)).Inc()
	if err != nil {
		s.fail(c, err)
		return
	}

	response := gin.H{"project": project, "archive_key": key}
	status := http.StatusOK
	if id != 0 {
		response["id"] = id
		status = http.StatusCreated
	}
	c.JSON(status, response)
}

func (s *Server) importOrderForm(c *gin.Context) (*domain.ProjectRecord, string, int64, error) {
	header, err := c.FormFile("orderform")
	if err != nil {
		return nil, "", 0, domain.NewPipelineError(domain.ErrSchema, domain.EntityOrderForm, "",
			"multipart field orderform is required").WithField("orderform").Wrap(err)
	}
	file, err := header.Open()
	if err != nil {
		return nil, "", 0, err
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		return nil, "", 0, err
	}

	ctx := c.Request.Context()
	key, err := archive.Save(ctx, s.deps.Archive, header.Filename, bytes.NewReader(data))
	if err != nil {
		return nil, "", 0, err
	}

	project, err := s.deps.Parser.Parse(bytes.NewReader(data), orderform.ProjectName(header.Filename))
	if err != nil {
		return nil, key, 0, err
	}
	if s.configManager.GetConfig().Submission.UpgradeTrioTags {
		if upgraded := service.UpgradeTrioTags(project); len(upgraded) > 0 {
			logging.Entry(ctx, s.log).WithField("families", upgraded).Info("Upgraded trio application tags")
		}
	}

	if c.Query("save") != "true" {
		return project, key, 0, nil
	}
	store, err := s.store()
	if err != nil {
		return nil, key, 0, err
	}
	id, err := store.SaveProject(ctx, project)
	if err != nil {
		return nil, key, 0, err
	}
	return project, key, id, nil
}

type containerPreview struct {
	Name    string   `json:"name"`
	TypeID  string   `json:"type_id"`
	Samples []string `json:"samples"`
}

// handleValidate runs every validation stage without writing to the LIMS.
func (s *Server) handleValidate(c *gin.Context) {
	project, ok := s.decodeProject(c)
	if !ok {
		return
	}
	prepared, err := s.deps.Pipeline.ValidateAndPrepare(c.Request.Context(), project)
	if err != nil {
		s.fail(c, err)
		return
	}
	groups, err := service.GroupContainers(prepared)
	if err != nil {
		s.fail(c, err)
		return
	}

	previews := make([]containerPreview, 0, len(groups))
	for _, group := range groups {
		preview := containerPreview{Name: group.Name, TypeID: group.TypeID}
		for _, sample := range group.Samples {
			preview.Samples = append(preview.Samples, sample.Name)
		}
		previews = append(previews, preview)
	}
	c.JSON(http.StatusOK, gin.H{
		"valid":      true,
		"samples":    len(prepared.Samples()),
		"containers": previews,
	})
}

func (s *Server) handleSubmit(c *gin.Context) {
	project, ok := s.decodeProject(c)
	if !ok {
		return
	}
	submission, err := s.deps.Pipeline.Submit(c.Request.Context(), project)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, submission)
}

func (s *Server) handleListProjects(c *gin.Context) {
	store, err := s.store()
	if err != nil {
		s.fail(c, err)
		return
	}
	projects, err := store.ListProjects(c.Request.Context(), c.Query("submitted") == "true")
	if err != nil {
		s.fail(c, err)
		return
	}
	if projects == nil {
		projects = []*domain.ProjectSummary{}
	}
	c.JSON(http.StatusOK, gin.H{"projects": projects})
}

func (s *Server) handleGetProject(c *gin.Context) {
	id, err := projectID(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	store, err := s.store()
	if err != nil {
		s.fail(c, err)
		return
	}
	project, err := store.GetProject(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, project)
}

func (s *Server) handleLockProject(c *gin.Context) {
	id, err := projectID(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	store, err := s.store()
	if err != nil {
		s.fail(c, err)
		return
	}
	if err := store.LockProject(c.Request.Context(), id); err != nil {
		s.fail(c, err)
		return
	}
	logging.Entry(c.Request.Context(), s.log).WithField("project_id", id).Info("Project locked")
	c.JSON(http.StatusOK, gin.H{"id": id, "is_locked": true})
}

func (s *Server) handleProcessProject(c *gin.Context) {
	id, err := projectID(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	if _, err := s.store(); err != nil {
		s.fail(c, err)
		return
	}
	submission, err := s.deps.Pipeline.ProcessStored(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	logging.Entry(c.Request.Context(), s.log).WithFields(logrus.Fields{
		"project_id": id,
		"lims_id":    submission.Project.ID,
	}).Info("Stored project processed")
	c.JSON(http.StatusCreated, submission)
}
