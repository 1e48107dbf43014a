package reports

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	validator "github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-komisi/internal/commission"
	"github.com/noah-isme/backend-komisi/internal/common"
	"github.com/noah-isme/backend-komisi/internal/ledger"
	"github.com/noah-isme/backend-komisi/internal/obs"
	"github.com/noah-isme/backend-komisi/internal/security"
	"github.com/noah-isme/backend-komisi/internal/spreadsheet"
)

// ReportsPath is where the upload form posts to.
const ReportsPath = "/api/v1/commission/reports"

// Handler exposes the commission report endpoints.
type Handler struct {
	service   *Service
	validate  *validator.Validate
	maxUpload int64
	logger    zerolog.Logger
}

// HandlerConfig configures the Handler dependencies.
type HandlerConfig struct {
	Service   *Service
	Validator *validator.Validate
	MaxUpload int64
	Logger    zerolog.Logger
}

// NewHandler constructs a Handler.
func NewHandler(cfg HandlerConfig) *Handler {
	v := cfg.Validator
	if v == nil {
		v = validator.New()
	}
	maxUpload := cfg.MaxUpload
	if maxUpload <= 0 {
		maxUpload = 10 << 20
	}
	return &Handler{service: cfg.Service, validate: v, maxUpload: maxUpload, logger: cfg.Logger}
}

type uploadForm struct {
	FileName   string `validate:"required,max=255"`
	OutputName string `validate:"max=128"`
}

// Form handles GET / with the upload page.
func (h *Handler) Form(w http.ResponseWriter, _ *http.Request) {
	if err := renderForm(w, h.service.Labels(), ReportsPath); err != nil {
		h.logger.Error().Err(err).Msg("render upload form")
	}
}

// Generate handles POST /api/v1/commission/reports and streams the workbook.
func (h *Handler) Generate(w http.ResponseWriter, r *http.Request) {
	up, err := h.readUpload(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	artifact, err := h.service.Generate(r.Context(), up, obs.SourceHTTP)
	if err != nil {
		h.writeError(w, err)
		return
	}
	obs.Annotate(r.Context(), "report_id", artifact.ID)
	writeArtifact(w, artifact)
}

// Preview handles POST /api/v1/commission/preview with the report as JSON.
func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	up, err := h.readUpload(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	report, err := h.service.Preview(r.Context(), up)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": report})
}

// Submit handles POST /api/v1/commission/jobs.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	up, err := h.readUpload(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	job, err := h.service.Submit(r.Context(), up)
	if err != nil {
		h.writeError(w, err)
		return
	}
	obs.Annotate(r.Context(), "job_id", job.ID)
	w.Header().Set("Location", "/api/v1/commission/jobs/"+job.ID)
	common.JSON(w, http.StatusAccepted, map[string]any{"data": job})
}

// JobStatus handles GET /api/v1/commission/jobs/{id}.
func (h *Handler) JobStatus(w http.ResponseWriter, r *http.Request) {
	obs.Annotate(r.Context(), "job_id", chi.URLParam(r, "id"))
	job, err := h.service.Status(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": job})
}

// JobReport handles GET /api/v1/commission/jobs/{id}/report.
func (h *Handler) JobReport(w http.ResponseWriter, r *http.Request) {
	obs.Annotate(r.Context(), "job_id", chi.URLParam(r, "id"))
	artifact, err := h.service.JobReport(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	obs.Annotate(r.Context(), "report_id", artifact.ID)
	writeArtifact(w, artifact)
}

// Download handles GET /api/v1/commission/reports/{id}.
func (h *Handler) Download(w http.ResponseWriter, r *http.Request) {
	obs.Annotate(r.Context(), "report_id", chi.URLParam(r, "id"))
	artifact, err := h.service.Fetch(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeArtifact(w, artifact)
}

func (h *Handler) readUpload(r *http.Request) (Upload, error) {
	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		if limit, ok := security.TooLarge(err); ok {
			return Upload{}, common.NewAppError(common.CodePayloadTooLarge, security.LimitMessage(limit), http.StatusRequestEntityTooLarge, err)
		}
		return Upload{}, common.BadRequest(fmt.Errorf("expected multipart form upload: %w", err))
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return Upload{}, common.BadRequest(errors.New("file is required"))
		}
		return Upload{}, common.BadRequest(err)
	}
	defer file.Close()

	form := uploadForm{
		FileName:   strings.TrimSpace(header.Filename),
		OutputName: strings.TrimSpace(r.FormValue("output_name")),
	}
	if err := h.validate.Struct(form); err != nil {
		return Upload{}, formError(err)
	}
	content, err := io.ReadAll(file)
	if err != nil {
		return Upload{}, common.BadRequest(fmt.Errorf("read upload: %w", err))
	}
	return Upload{FileName: form.FileName, OutputName: form.OutputName, Content: content}, nil
}

func formError(err error) *common.AppError {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return common.BadRequest(err)
	}
	details := make([]map[string]string, 0, len(verrs))
	for _, fe := range verrs {
		details = append(details, map[string]string{"field": formFieldName(fe.Field()), "rule": fe.Tag()})
	}
	return common.NewAppError(common.CodeBadRequest, "invalid upload form", http.StatusBadRequest, err).WithDetails(details)
}

func formFieldName(field string) string {
	switch field {
	case "FileName":
		return "file"
	case "OutputName":
		return "output_name"
	default:
		return strings.ToLower(field)
	}
}

func writeArtifact(w http.ResponseWriter, artifact *Artifact) {
	headers := w.Header()
	headers.Set("Content-Type", spreadsheet.ContentType)
	headers.Set("Content-Disposition", contentDisposition(artifact.FileName))
	headers.Set("Content-Length", strconv.Itoa(len(artifact.Content)))
	headers.Set("X-Report-ID", artifact.ID)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(artifact.Content)
}

// contentDisposition carries an ASCII fallback plus the RFC 5987 encoded name
// for non-ASCII output names.
func contentDisposition(name string) string {
	fallback := strings.Map(func(r rune) rune {
		if r > 0x7e || r < 0x20 || r == '"' || r == '\\' {
			return -1
		}
		return r
	}, name)
	if strings.TrimSuffix(fallback, spreadsheet.Extension) == "" {
		fallback = "report" + spreadsheet.Extension
	}
	return fmt.Sprintf("attachment; filename=%q; filename*=UTF-8''%s", fallback, extValue(name))
}

// extValue percent-encodes every byte outside the RFC 5987 attr-char set.
func extValue(s string) string {
	const hex = "0123456789ABCDEF"
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isAttrChar(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hex[c>>4])
		b.WriteByte(hex[c&0x0f])
	}
	return b.String()
}

func isAttrChar(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	return strings.IndexByte("!#$&+-.^_`|~", c) >= 0
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	appErr := toAppError(err)
	if appErr.HTTPStatus >= http.StatusInternalServerError {
		h.logger.Error().Err(err).Msg("commission request failed")
	}
	common.WriteError(w, appErr)
}

func toAppError(err error) *common.AppError {
	var appErr *common.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	var verr *commission.ValidationError
	switch {
	case errors.As(err, &verr):
		return common.NewAppError(common.CodeValidationFailed, verr.Error(), http.StatusUnprocessableEntity, err).
			WithDetails(verr.Problems)
	case errors.Is(err, ledger.ErrUnsupportedFormat):
		return common.NewAppError(common.CodeUnsupportedFormat, err.Error(), http.StatusBadRequest, err)
	case errors.Is(err, ledger.ErrMalformed), errors.Is(err, ErrEmptyUpload):
		return common.BadRequest(err)
	case errors.Is(err, ErrNotFound):
		return common.NotFound(err.Error(), err)
	case errors.Is(err, ErrJobPending):
		return common.NewAppError(common.CodeConflict, err.Error(), http.StatusConflict, err)
	case errors.Is(err, ErrJobsDisabled):
		return common.NewAppError("JOBS_DISABLED", err.Error(), http.StatusServiceUnavailable, err)
	default:
		return common.Internal(err)
	}
}
