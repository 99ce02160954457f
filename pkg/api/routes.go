package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/japaniel/yomikomi/pkg/jobs"
)

type API struct {
	jobs      *jobs.Manager
	uploadDir string
	log       *slog.Logger
}

func registerRoutes(r *gin.Engine, api *API, authorize func(*gin.Context) error) {
	r.GET("/api/health", api.handleHealth)

	apiGroup := r.Group("/api", Authorize(authorize))
	{
		apiGroup.POST("/imports", api.handleSubmit)
		apiGroup.GET("/imports", api.handleList)
		apiGroup.GET("/imports/:id", api.handleStatus)
		apiGroup.DELETE("/imports/:id", api.handleCancel)
		apiGroup.POST("/imports/validate", api.handleValidate)
		apiGroup.POST("/imports/seed", api.handleSeed)

		apiGroup.GET("/content/summary", api.handleContentSummary)
		apiGroup.GET("/content/sources", api.handleListSources)
		apiGroup.POST("/content/sources/deactivate", api.handleDeactivateSource)
	}
}

func (a *API) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (a *API) handleSubmit(c *gin.Context) {
	req, status, err := a.bindRequest(c)
	if err != nil {
		respondError(c, status, err)
		return
	}

	id, err := a.jobs.Submit(c.Request.Context(), req)
	switch {
	case errors.Is(err, jobs.ErrInvalidRequest):
		respondError(c, http.StatusBadRequest, err)
		return
	case err != nil && id != "":
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error(), "id": id})
		return
	case err != nil:
		respondError(c, http.StatusInternalServerError, err)
		return
	}

	job, err := a.jobs.Status(id)
	if err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusAccepted, job)
}

func (a *API) handleList(c *gin.Context) {
	c.JSON(http.StatusOK, a.jobs.List())
}

func (a *API) handleStatus(c *gin.Context) {
	job, err := a.jobs.Status(c.Param("id"))
	if err != nil {
		respondJobError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

func (a *API) handleCancel(c *gin.Context) {
	id := c.Param("id")
	if err := a.jobs.Cancel(id); err != nil {
		respondJobError(c, err)
		return
	}
	job, err := a.jobs.Status(id)
	if err != nil {
		respondJobError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, job)
}

func (a *API) handleValidate(c *gin.Context) {
	req, status, err := a.bindRequest(c)
	if err != nil {
		respondError(c, status, err)
		return
	}
	if req.Temporary {
		defer a.removeUpload(req.Path)
	}
	c.JSON(http.StatusOK, a.jobs.Validate(c.Request.Context(), req))
}

func (a *API) handleSeed(c *gin.Context) {
	id, err := a.jobs.SeedSample(c.Request.Context())
	if err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}
	job, err := a.jobs.Status(id)
	if err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusAccepted, job)
}

func (a *API) handleContentSummary(c *gin.Context) {
	sum, err := a.jobs.ContentSummary(c.Request.Context())
	if err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}

func (a *API) handleListSources(c *gin.Context) {
	sources, err := a.jobs.ListSources(c.Request.Context())
	if err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, sources)
}

func (a *API) handleDeactivateSource(c *gin.Context) {
	var payload struct {
		Source string `json:"source" binding:"required"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		respondError(c, bodyStatus(err), err)
		return
	}

	payload.Source = strings.TrimSpace(payload.Source)
	n, err := a.jobs.DeactivateSource(c.Request.Context(), payload.Source)
	if err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"source": payload.Source, "deactivated": n})
}

// bindRequest reads a jobs.Request from a JSON body or from a multipart form
// with "kind", an optional "deckName" and a "file" part. Uploaded files are
// saved under the upload dir and marked temporary.
func (a *API) bindRequest(c *gin.Context) (jobs.Request, int, error) {
	var req jobs.Request
	if c.ContentType() != gin.MIMEMultipartPOSTForm {
		if err := c.ShouldBindJSON(&req); err != nil {
			return req, bodyStatus(err), err
		}
		return req, 0, nil
	}

	fh, err := c.FormFile("file")
	if err != nil && !errors.Is(err, http.ErrMissingFile) {
		return req, bodyStatus(err), err
	}
	req.Kind = jobs.Kind(c.PostForm("kind"))
	req.DeckName = c.PostForm("deckName")
	if fh == nil {
		switch req.Kind {
		case jobs.KindCorpus, jobs.KindSample:
			return req, 0, nil
		}
		return req, http.StatusBadRequest, errors.New("missing file")
	}

	// The file keeps its original name so provenance reads "file:cards.csv".
	dir := filepath.Join(a.uploadDir, uuid.NewString())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return req, http.StatusInternalServerError, fmt.Errorf("create upload dir: %w", err)
	}
	dst := filepath.Join(dir, filepath.Base(fh.Filename))
	if err := c.SaveUploadedFile(fh, dst); err != nil {
		os.RemoveAll(dir)
		return req, http.StatusInternalServerError, fmt.Errorf("save upload: %w", err)
	}
	a.log.Info("upload saved", slog.String("file", fh.Filename), slog.Int64("bytes", fh.Size), slog.String("kind", string(req.Kind)))

	req.Path = dst
	req.Temporary = true
	return req, 0, nil
}

func (a *API) removeUpload(path string) {
	if err := os.RemoveAll(filepath.Dir(path)); err != nil {
		a.log.Warn("remove upload", slog.String("path", path), slog.Any("error", err))
	}
}

func bodyStatus(err error) int {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusBadRequest
}

func respondJobError(c *gin.Context, err error) {
	if errors.Is(err, jobs.ErrNotFound) {
		respondMessage(c, http.StatusNotFound, "import not found")
		return
	}
	respondError(c, http.StatusInternalServerError, err)
}

func respondError(c *gin.Context, status int, err error) {
	respondMessage(c, status, err.Error())
}

func respondMessage(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"error": message})
}
