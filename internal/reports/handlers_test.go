package reports

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-komisi/internal/security"
)

type errorResponse struct {
	Error struct {
		Code    string          `json:"code"`
		Message string          `json:"message"`
		Details json.RawMessage `json:"details"`
	} `json:"error"`
}

func newRouter(t *testing.T) (http.Handler, fixture) {
	t.Helper()
	f := newFixture(t, "")
	h := NewHandler(HandlerConfig{Service: f.svc, MaxUpload: 1 << 20, Logger: zerolog.Nop()})
	r := chi.NewRouter()
	r.Get("/", h.Form)
	r.Route("/api/v1/commission", func(c chi.Router) {
		c.Post("/reports", h.Generate)
		c.Get("/reports/{id}", h.Download)
		c.Post("/preview", h.Preview)
		c.Post("/jobs", h.Submit)
		c.Get("/jobs/{id}", h.JobStatus)
		c.Get("/jobs/{id}/report", h.JobReport)
	})
	return r, f
}

func uploadRequest(t *testing.T, path, fileName, content, outputName string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if fileName != "" {
		part, err := mw.CreateFormFile("file", fileName)
		require.NoError(t, err)
		_, err = part.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, mw.WriteField("output_name", outputName))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestGenerateDownloadsWorkbook(t *testing.T) {
	router, _ := newRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, uploadRequest(t, "/api/v1/commission/reports", "ledger.txt", sampleLedger, "七月"))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", rec.Header().Get("Content-Type"))
	require.Contains(t, rec.Header().Get("Content-Disposition"), "filename*=UTF-8''"+url.PathEscape("七月.xlsx"))
	reportID := rec.Header().Get("X-Report-ID")
	require.NotEmpty(t, reportID)
	content := rec.Body.Bytes()

	dl := httptest.NewRecorder()
	router.ServeHTTP(dl, httptest.NewRequest(http.MethodGet, "/api/v1/commission/reports/"+reportID, nil))
	require.Equal(t, http.StatusOK, dl.Code)
	require.Equal(t, content, dl.Body.Bytes())
}

func TestPreviewReturnsRows(t *testing.T) {
	router, _ := newRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, uploadRequest(t, "/api/v1/commission/preview", "ledger.txt", sampleLedger, ""))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data struct {
			Rows []struct {
				Kind             string  `json:"kind"`
				DiscountRate     any     `json:"discount_rate"`
				CommissionRate   *int    `json:"commission_rate"`
				CumulativePct    *string `json:"cumulative_pct"`
				CommissionAmount int64   `json:"commission_amount"`
			} `json:"rows"`
			Tiers           int   `json:"tiers"`
			TotalCommission int64 `json:"total_commission"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Data.Rows, 10)
	require.Equal(t, 4, resp.Data.Tiers)
	require.Equal(t, int64(38033), resp.Data.TotalCommission)

	first := resp.Data.Rows[0]
	require.Equal(t, "data", first.Kind)
	require.Equal(t, 22, *first.CommissionRate)
	require.Equal(t, "0.63", *first.CumulativePct)
	require.Equal(t, int64(218), first.CommissionAmount)

	subtotal := resp.Data.Rows[3]
	require.Equal(t, "subtotal", subtotal.Kind)
	require.Equal(t, "Subtotal", subtotal.DiscountRate)
	require.Nil(t, subtotal.CommissionRate)
	require.Equal(t, int64(218+7755+12760), subtotal.CommissionAmount)
}

func TestUploadErrors(t *testing.T) {
	router, _ := newRouter(t)
	badDate := strings.Replace(sampleLedger, "2025/7/2\t60", "2025/13/2\t60", 1)

	cases := []struct {
		name     string
		req      *http.Request
		status   int
		code     string
		contains string
	}{
		{
			name:     "unsupported format",
			req:      uploadRequest(t, "/api/v1/commission/reports", "ledger.pdf", "x", ""),
			status:   http.StatusBadRequest,
			code:     "UNSUPPORTED_FORMAT",
			contains: "ledger.pdf",
		},
		{
			name:     "invalid ledger",
			req:      uploadRequest(t, "/api/v1/commission/reports", "ledger.txt", badDate, ""),
			status:   http.StatusUnprocessableEntity,
			code:     "VALIDATION_FAILED",
			contains: "line 3 sale_date: unparseable date",
		},
		{
			name:     "missing file",
			req:      uploadRequest(t, "/api/v1/commission/preview", "", "", ""),
			status:   http.StatusBadRequest,
			code:     "BAD_REQUEST",
			contains: "file is required",
		},
		{
			name:     "not multipart",
			req:      httptest.NewRequest(http.MethodPost, "/api/v1/commission/preview", strings.NewReader("{}")),
			status:   http.StatusBadRequest,
			code:     "BAD_REQUEST",
			contains: "multipart",
		},
		{
			name:     "output name too long",
			req:      uploadRequest(t, "/api/v1/commission/reports", "ledger.txt", sampleLedger, strings.Repeat("a", 129)),
			status:   http.StatusBadRequest,
			code:     "BAD_REQUEST",
			contains: "invalid upload form",
		},
		{
			name:     "unknown report",
			req:      httptest.NewRequest(http.MethodGet, "/api/v1/commission/reports/nope", nil),
			status:   http.StatusNotFound,
			code:     "NOT_FOUND",
			contains: "report not found",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, tc.req)
			require.Equal(t, tc.status, rec.Code)
			resp := decodeError(t, rec)
			require.Equal(t, tc.code, resp.Error.Code)
			require.Contains(t, resp.Error.Message, tc.contains)
		})
	}
}

func TestValidationErrorDetails(t *testing.T) {
	router, _ := newRouter(t)
	badNet := strings.Replace(sampleLedger, "\t990\n", "\tabc\n", 1)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, uploadRequest(t, "/api/v1/commission/preview", "ledger.txt", badNet, ""))
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var details []struct {
		Line   int    `json:"line"`
		Column string `json:"column"`
		Value  string `json:"value"`
	}
	require.NoError(t, json.Unmarshal(decodeError(t, rec).Error.Details, &details))
	require.Len(t, details, 1)
	require.Equal(t, 2, details[0].Line)
	require.Equal(t, "net_sales", details[0].Column)
	require.Equal(t, "abc", details[0].Value)
}

func TestJobEndpoints(t *testing.T) {
	router, f := newRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, uploadRequest(t, "/api/v1/commission/jobs", "ledger.txt", sampleLedger, ""))
	require.Equal(t, http.StatusAccepted, rec.Code)
	var submitted struct {
		Data Job `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &submitted))
	require.Equal(t, JobPending, submitted.Data.State)
	require.Equal(t, "/api/v1/commission/jobs/"+submitted.Data.ID, rec.Header().Get("Location"))

	pending := httptest.NewRecorder()
	router.ServeHTTP(pending, httptest.NewRequest(http.MethodGet, "/api/v1/commission/jobs/"+submitted.Data.ID+"/report", nil))
	require.Equal(t, http.StatusConflict, pending.Code)

	require.Len(t, f.queue.tasks, 1)
	require.NoError(t, TaskHandler{Service: f.svc}.ProcessTask(context.Background(), f.queue.tasks[0]))

	status := httptest.NewRecorder()
	router.ServeHTTP(status, httptest.NewRequest(http.MethodGet, "/api/v1/commission/jobs/"+submitted.Data.ID, nil))
	require.Equal(t, http.StatusOK, status.Code)
	require.Contains(t, status.Body.String(), `"status":"succeeded"`)

	report := httptest.NewRecorder()
	router.ServeHTTP(report, httptest.NewRequest(http.MethodGet, "/api/v1/commission/jobs/"+submitted.Data.ID+"/report", nil))
	require.Equal(t, http.StatusOK, report.Code)
	require.NotEmpty(t, report.Header().Get("X-Report-ID"))
}

func TestFormPage(t *testing.T) {
	router, _ := newRouter(t)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	body := rec.Body.String()
	require.Contains(t, body, `action="/api/v1/commission/reports"`)
	require.Contains(t, body, "<th>櫃位編號</th>")
	require.Contains(t, body, `value="處理結果"`)
	require.Contains(t, body, "<td>51040</td>")
}

func TestContentDisposition(t *testing.T) {
	require.Equal(t, `attachment; filename="report.xlsx"; filename*=UTF-8''%E8%99%95%E7%90%86%E7%B5%90%E6%9E%9C.xlsx`,
		contentDisposition("處理結果.xlsx"))
	require.Equal(t, `attachment; filename="july.xlsx"; filename*=UTF-8''july.xlsx`, contentDisposition("july.xlsx"))
	require.Equal(t, `attachment; filename="a=b@c d&e+f.xlsx"; filename*=UTF-8''a%3Db%40c%20d&e+f.xlsx`,
		contentDisposition("a=b@c d&e+f.xlsx"))
}

func TestExtValueKeepsOnlyAttrChars(t *testing.T) {
	require.Equal(t, "!#$&+-.^_`|~azAZ09", extValue("!#$&+-.^_`|~azAZ09"))
	require.Equal(t, "%3D%40%25%27%28%29%2A%2C%2F%3A%3B%22", extValue(`=@%'()*,/:;"`))
	require.Equal(t, "%E4%B8%83%E6%9C%88", extValue("七月"))
}

func TestOversizedUploadIsRejected(t *testing.T) {
	f := newFixture(t, "")
	h := NewHandler(HandlerConfig{Service: f.svc, MaxUpload: 1 << 20, Logger: zerolog.Nop()})
	handler := security.BodyLimit{Max: 64}.Middleware(http.HandlerFunc(h.Preview))

	req := uploadRequest(t, "/api/v1/commission/preview", "ledger.txt", sampleLedger, "")
	req.ContentLength = -1
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	resp := decodeError(t, rec)
	require.Equal(t, "PAYLOAD_TOO_LARGE", resp.Error.Code)
	require.Equal(t, "upload exceeds 64 bytes", resp.Error.Message)
}
