package api

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/kapu/persona-script-go/internal/capture"
	"github.com/kapu/persona-script-go/internal/constants"
	"github.com/kapu/persona-script-go/internal/domain"
	"github.com/kapu/persona-script-go/internal/session"
	"github.com/kapu/persona-script-go/internal/util"
)

// HealthReporter exposes the AI circuit state on the health endpoint.
type HealthReporter interface {
	CircuitStatus() util.CircuitBreakerStatus
}

type Handler struct {
	store          *session.Store
	workflow       *session.Workflow
	health         HealthReporter
	maxUploadBytes int64
	now            func() time.Time
	logger         *zap.Logger
}

func NewHandler(store *session.Store, workflow *session.Workflow, health HealthReporter, maxUploadBytes int64, logger *zap.Logger) *Handler {
	return &Handler{
		store:          store,
		workflow:       workflow,
		health:         health,
		maxUploadBytes: maxUploadBytes,
		now:            time.Now,
		logger:         logger,
	}
}

// UploadResponse reports the committed state and any files that could not be read.
type UploadResponse struct {
	State  session.State `json:"state"`
	Failed []FailedFile  `json:"failed"`
}

type FailedFile struct {
	Name  string `json:"name"`
	Error string `json:"error"`
}

type linkRequest struct {
	URL string `json:"url" binding:"required"`
}

type refineRequest struct {
	Instruction string `json:"instruction" binding:"required"`
}

func (h *Handler) Health(c *gin.Context) {
	body := gin.H{"status": "ok"}
	if h.health != nil {
		body["ai"] = h.health.CircuitStatus()
	}
	c.JSON(http.StatusOK, body)
}

func (h *Handler) ListModels(c *gin.Context) {
	c.JSON(http.StatusOK, domain.AvailableModels)
}

func (h *Handler) ListSessions(c *gin.Context) {
	c.JSON(http.StatusOK, h.store.List())
}

func (h *Handler) CreateSession(c *gin.Context) {
	sess := h.store.Create()
	c.JSON(http.StatusCreated, sess.Snapshot())
}

func (h *Handler) GetSession(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, sess.Snapshot())
}

func (h *Handler) DeleteSession(c *gin.Context) {
	if err := h.store.Delete(c.Param("id")); err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) UpdateSettings(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	var settings domain.ModelSettings
	if err := c.ShouldBindJSON(&settings); err != nil {
		badRequest(c, h.logger, "settings", "Invalid settings payload.")
		return
	}
	h.respond(c)(sess.Apply(func(s session.State) (session.State, error) {
		return session.SetSettings(s, settings)
	}))
}

func (h *Handler) DismissError(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, sess.Update(session.ClearError))
}

func (h *Handler) Export(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	doc, filename := session.Export(sess.Snapshot(), h.now())
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.IndentedJSON(http.StatusOK, doc)
}

func (h *Handler) AddPersona(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	st, _ := h.workflow.AddPersona(sess)
	c.JSON(http.StatusCreated, st)
}

func (h *Handler) UpdatePersona(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	var upd domain.PersonaUpdate
	if err := c.ShouldBindJSON(&upd); err != nil {
		badRequest(c, h.logger, "persona", "Invalid persona payload.")
		return
	}
	pid := c.Param("pid")
	h.respond(c)(sess.Apply(func(s session.State) (session.State, error) {
		return session.UpdatePersona(s, pid, upd)
	}))
}

func (h *Handler) DeletePersona(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	pid := c.Param("pid")
	h.respond(c)(sess.Apply(func(s session.State) (session.State, error) {
		return session.DeletePersona(s, pid)
	}))
}

func (h *Handler) UploadPersonaSources(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	kind, files, ok := h.uploads(c)
	if !ok {
		return
	}
	st, res, err := h.workflow.AddPersonaSources(c.Request.Context(), sess, c.Param("pid"), kind, files)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, uploadResponse(st, res))
}

func (h *Handler) UploadContextSources(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	kind, files, ok := h.uploads(c)
	if !ok {
		return
	}
	st, res := h.workflow.AddContextSources(c.Request.Context(), sess, kind, files)
	c.JSON(http.StatusOK, uploadResponse(st, res))
}

func (h *Handler) AddPersonaLink(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	var req linkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, h.logger, "url", "A url is required.")
		return
	}
	h.respond(c)(h.workflow.AddPersonaLink(c.Request.Context(), sess, c.Param("pid"), req.URL))
}

func (h *Handler) AddContextLink(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	var req linkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, h.logger, "url", "A url is required.")
		return
	}
	h.respond(c)(h.workflow.AddContextLink(c.Request.Context(), sess, req.URL))
}

func (h *Handler) RemovePersonaSource(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	pid, sid := c.Param("pid"), c.Param("sid")
	h.respond(c)(sess.Apply(func(s session.State) (session.State, error) {
		return session.RemovePersonaSource(s, pid, sid)
	}))
}

func (h *Handler) RemoveContextSource(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	sid := c.Param("sid")
	h.respond(c)(sess.Apply(func(s session.State) (session.State, error) {
		return session.RemoveContextSource(s, sid)
	}))
}

func (h *Handler) AnalyzePersona(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	h.respond(c)(h.workflow.AnalyzePersona(c.Request.Context(), sess, c.Param("pid")))
}

func (h *Handler) UpdateShow(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	var upd domain.ShowUpdate
	if err := c.ShouldBindJSON(&upd); err != nil {
		badRequest(c, h.logger, "show", "Invalid show payload.")
		return
	}
	h.respond(c)(sess.Apply(func(s session.State) (session.State, error) {
		return session.UpdateShow(s, upd)
	}))
}

func (h *Handler) AnalyzeShowContext(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	h.respond(c)(h.workflow.AnalyzeShowContext(c.Request.Context(), sess))
}

func (h *Handler) GenerateScript(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	h.respond(c)(h.workflow.GenerateScript(c.Request.Context(), sess))
}

func (h *Handler) RefineLine(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	var req refineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, h.logger, "instruction", "An instruction is required.")
		return
	}
	h.respond(c)(h.workflow.RefineLine(c.Request.Context(), sess, c.Param("lid"), req.Instruction))
}

func (h *Handler) ContinueScript(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	h.respond(c)(h.workflow.ContinueScript(c.Request.Context(), sess))
}

func (h *Handler) Search(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	h.respond(c)(h.workflow.Search(c.Request.Context(), sess))
}

func (h *Handler) NextStep(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	h.respond(c)(h.workflow.Next(c.Request.Context(), sess))
}

func (h *Handler) PrevStep(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, h.workflow.Prev(c.Request.Context(), sess))
}

func (h *Handler) GoToStep(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	n, err := strconv.Atoi(c.Param("step"))
	if err != nil {
		badRequest(c, h.logger, "step", "Step must be a number between 1 and 5.")
		return
	}
	h.respond(c)(h.workflow.GoTo(c.Request.Context(), sess, domain.Step(n)))
}

func (h *Handler) session(c *gin.Context) (*session.Session, bool) {
	sess, err := h.store.Get(c.Param("id"))
	if err != nil {
		writeError(c, h.logger, err)
		return nil, false
	}
	return sess, true
}

// respond writes the state on success or the error envelope on failure.
func (h *Handler) respond(c *gin.Context) func(session.State, error) {
	return func(st session.State, err error) {
		if err != nil {
			writeError(c, h.logger, err)
			return
		}
		c.JSON(http.StatusOK, st)
	}
}

func (h *Handler) uploads(c *gin.Context) (domain.MediaKind, []capture.FileInput, bool) {
	kind, valid := domain.ParseMediaKind(c.Query("kind"))
	if !valid || kind == domain.MediaKindLink {
		badRequest(c, h.logger, "kind", "Unsupported source kind.")
		return "", nil, false
	}

	if h.maxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes*int64(constants.CaptureLimits.MaxFilesPerUpload))
	}
	form, err := c.MultipartForm()
	if err != nil {
		badRequest(c, h.logger, "files", "Expected a multipart form with files.")
		return "", nil, false
	}

	headers := form.File["files"]
	files := make([]capture.FileInput, 0, len(headers))
	for _, fh := range headers {
		files = append(files, capture.FileInput{
			Name:     fh.Filename,
			MIMEType: fh.Header.Get("Content-Type"),
			Open: func() (io.ReadCloser, error) {
				return fh.Open()
			},
		})
	}
	return kind, files, true
}

func uploadResponse(st session.State, res capture.BatchResult) UploadResponse {
	failed := make([]FailedFile, 0, len(res.Failed))
	for _, f := range res.Failed {
		failed = append(failed, FailedFile{Name: f.Name, Error: f.Err.Error()})
	}
	return UploadResponse{State: st, Failed: failed}
}
