package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"docvault/internal/apperr"
	eventsPkg "docvault/internal/events"
	jobmocks "docvault/internal/jobstore/mocks"
	"docvault/internal/model"
	"docvault/internal/service"
	serviceMocks "docvault/internal/service/mocks"
	storagemocks "docvault/internal/storage/mocks"
)

type stubPinger struct{ err error }

func (s stubPinger) Ping(context.Context) error { return s.err }

type handlerFixture struct {
	app    *fiber.App
	docs   *serviceMocks.MockDocumentService
	scans  *serviceMocks.MockScanService
	store  *storagemocks.MockStorage
	jobs   *jobmocks.MockStore
	dbMock sqlmock.Sqlmock
	pinger *stubPinger
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()

	db, dbMock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	f := &handlerFixture{
		docs:   new(serviceMocks.MockDocumentService),
		scans:  new(serviceMocks.MockScanService),
		store:  new(storagemocks.MockStorage),
		jobs:   new(jobmocks.MockStore),
		dbMock: dbMock,
		pinger: &stubPinger{},
	}
	f.app = fiber.New(fiber.Config{ErrorHandler: ErrorHandler()})
	RegisterRoutes(f.app, Deps{
		DB:        db,
		Docs:      f.docs,
		Scans:     f.scans,
		Store:     f.store,
		Jobs:      f.jobs,
		Publisher: eventsPkg.NopPublisher{},
		Scanner:   f.pinger,
	})
	return f
}

func authed(req *http.Request) *http.Request {
	req.Header.Set("X-User-ID", "user-1")
	req.Header.Set("X-Tenant-ID", "tenant-1")
	return req
}

func TestHealth(t *testing.T) {
	t.Run("all dependencies healthy", func(t *testing.T) {
		f := newHandlerFixture(t)
		f.dbMock.ExpectPing().WillReturnError(nil)
		f.store.On("HealthCheck", mock.Anything).Return(nil)
		f.jobs.On("HealthCheck", mock.Anything).Return(nil)

		resp, _ := f.app.Test(httptest.NewRequest(http.MethodGet, "/health", nil))

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		var body struct {
			Status       string            `json:"status"`
			Dependencies map[string]string `json:"dependencies"`
		}
		json.NewDecoder(resp.Body).Decode(&body)
		assert.Equal(t, "healthy", body.Status)
		assert.Equal(t, "healthy", body.Dependencies["clamav"])
	})

	t.Run("one sick dependency degrades the service", func(t *testing.T) {
		f := newHandlerFixture(t)
		f.pinger.err = errors.New("connection refused")
		f.dbMock.ExpectPing().WillReturnError(nil)
		f.store.On("HealthCheck", mock.Anything).Return(nil)
		f.jobs.On("HealthCheck", mock.Anything).Return(nil)

		resp, _ := f.app.Test(httptest.NewRequest(http.MethodGet, "/health", nil))

		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
		var body struct {
			Status       string            `json:"status"`
			Dependencies map[string]string `json:"dependencies"`
		}
		json.NewDecoder(resp.Body).Decode(&body)
		assert.Equal(t, "degraded", body.Status)
		assert.Equal(t, "unhealthy", body.Dependencies["clamav"])
	})
}

func TestLivenessProbe(t *testing.T) {
	f := newHandlerFixture(t)
	resp, _ := f.app.Test(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestUploadDocument(t *testing.T) {
	buildUpload := func(t *testing.T, fields map[string]string) (*bytes.Buffer, string) {
		t.Helper()
		buf := new(bytes.Buffer)
		mw := multipart.NewWriter(buf)
		fw, err := mw.CreateFormFile("file", "report.pdf")
		require.NoError(t, err)
		io.WriteString(fw, "file body")
		for k, v := range fields {
			mw.WriteField(k, v)
		}
		require.NoError(t, mw.Close())
		return buf, mw.FormDataContentType()
	}

	t.Run("success returns 201 with result", func(t *testing.T) {
		f := newHandlerFixture(t)

		var gotMeta service.UploadMeta
		f.docs.On("Upload", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Run(func(args mock.Arguments) { gotMeta = args.Get(3).(service.UploadMeta) }).
			Return(&service.UploadResult{DocumentID: "doc-1", Status: "completed"}, nil)

		body, ct := buildUpload(t, map[string]string{
			"title":      "Q3 report",
			"tags":       "finance, q3",
			"attributes": `{"dept":"fin"}`,
		})
		req := authed(httptest.NewRequest(http.MethodPost, "/documents", body))
		req.Header.Set("Content-Type", ct)
		resp, _ := f.app.Test(req)

		assert.Equal(t, http.StatusCreated, resp.StatusCode)
		assert.Equal(t, "report.pdf", gotMeta.Filename)
		assert.Equal(t, "Q3 report", gotMeta.Title)
		assert.Equal(t, []string{"finance", "q3"}, gotMeta.Tags)
		assert.Equal(t, map[string]string{"dept": "fin"}, gotMeta.Attributes)
	})

	t.Run("missing file field is rejected", func(t *testing.T) {
		f := newHandlerFixture(t)

		buf := new(bytes.Buffer)
		mw := multipart.NewWriter(buf)
		mw.WriteField("title", "no file here")
		mw.Close()

		req := authed(httptest.NewRequest(http.MethodPost, "/documents", buf))
		req.Header.Set("Content-Type", mw.FormDataContentType())
		resp, _ := f.app.Test(req)

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		f.docs.AssertNotCalled(t, "Upload")
	})

	t.Run("missing identity headers are denied", func(t *testing.T) {
		f := newHandlerFixture(t)

		body, ct := buildUpload(t, nil)
		req := httptest.NewRequest(http.MethodPost, "/documents", body)
		req.Header.Set("Content-Type", ct)
		resp, _ := f.app.Test(req)

		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})

	t.Run("service errors map onto status codes", func(t *testing.T) {
		cases := []struct {
			kind   apperr.Kind
			status int
			code   string
		}{
			{apperr.KindInvalidArgument, http.StatusBadRequest, "INVALID_ARGUMENT"},
			{apperr.KindQuotaExceeded, http.StatusInsufficientStorage, "QUOTA_EXCEEDED"},
			{apperr.KindUnavailable, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE"},
			{apperr.KindTimeout, http.StatusGatewayTimeout, "TIMEOUT"},
			{apperr.KindInternal, http.StatusInternalServerError, "INTERNAL_ERROR"},
		}
		for _, tc := range cases {
			f := newHandlerFixture(t)
			f.docs.On("Upload", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
				Return(nil, apperr.New(tc.kind, "boom"))

			body, ct := buildUpload(t, nil)
			req := authed(httptest.NewRequest(http.MethodPost, "/documents", body))
			req.Header.Set("Content-Type", ct)
			resp, _ := f.app.Test(req)

			assert.Equal(t, tc.status, resp.StatusCode, string(tc.kind))
			var payload errorPayload
			json.NewDecoder(resp.Body).Decode(&payload)
			assert.Equal(t, tc.code, payload.Error.Code, string(tc.kind))
		}
	})
}

func TestGetDocument(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		f := newHandlerFixture(t)
		f.docs.On("Get", mock.Anything, mock.Anything, "doc-1").
			Return(&service.DocumentDetail{Document: model.Document{ID: "doc-1"}}, nil)

		resp, _ := f.app.Test(authed(httptest.NewRequest(http.MethodGet, "/documents/doc-1", nil)))

		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("not found", func(t *testing.T) {
		f := newHandlerFixture(t)
		f.docs.On("Get", mock.Anything, mock.Anything, "missing").
			Return(nil, apperr.New(apperr.KindNotFound, "document not found"))

		resp, _ := f.app.Test(authed(httptest.NewRequest(http.MethodGet, "/documents/missing", nil)))

		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("foreign document is forbidden", func(t *testing.T) {
		f := newHandlerFixture(t)
		f.docs.On("Get", mock.Anything, mock.Anything, "doc-1").
			Return(nil, apperr.New(apperr.KindPermissionDenied, "not allowed to access this document"))

		resp, _ := f.app.Test(authed(httptest.NewRequest(http.MethodGet, "/documents/doc-1", nil)))

		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})
}

func TestDeleteDocument(t *testing.T) {
	t.Run("deleted", func(t *testing.T) {
		f := newHandlerFixture(t)
		f.docs.On("Delete", mock.Anything, mock.Anything, "doc-1").Return(nil)

		resp, _ := f.app.Test(authed(httptest.NewRequest(http.MethodDelete, "/documents/doc-1", nil)))

		assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	})

	t.Run("repeat delete is not found", func(t *testing.T) {
		f := newHandlerFixture(t)
		f.docs.On("Delete", mock.Anything, mock.Anything, "doc-1").
			Return(apperr.New(apperr.KindNotFound, "document not found"))

		resp, _ := f.app.Test(authed(httptest.NewRequest(http.MethodDelete, "/documents/doc-1", nil)))

		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestUpdateDocument(t *testing.T) {
	f := newHandlerFixture(t)

	var gotUpd service.DocumentUpdate
	f.docs.On("Update", mock.Anything, mock.Anything, "doc-1", mock.Anything).
		Run(func(args mock.Arguments) { gotUpd = args.Get(3).(service.DocumentUpdate) }).
		Return(&model.Document{ID: "doc-1", Title: "new title"}, nil)

	body := bytes.NewBufferString(`{"title":"new title","tags":["a"]}`)
	req := authed(httptest.NewRequest(http.MethodPatch, "/documents/doc-1", body))
	req.Header.Set("Content-Type", "application/json")
	resp, _ := f.app.Test(req)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotNil(t, gotUpd.Title)
	assert.Equal(t, "new title", *gotUpd.Title)
	assert.Equal(t, []string{"a"}, gotUpd.Tags)
	assert.Nil(t, gotUpd.Description)
}

func TestRescanDocument(t *testing.T) {
	t.Run("accepted", func(t *testing.T) {
		f := newHandlerFixture(t)
		f.docs.On("VerifyAccess", mock.Anything, mock.Anything, "doc-1").Return(nil)
		f.scans.On("Enqueue", mock.Anything, "doc-1", "user-1", "tenant-1").Return("scan-9", nil)

		resp, _ := f.app.Test(authed(httptest.NewRequest(http.MethodPost, "/documents/doc-1/scan", nil)))

		assert.Equal(t, http.StatusAccepted, resp.StatusCode)
		var body map[string]string
		json.NewDecoder(resp.Body).Decode(&body)
		assert.Equal(t, "scan-9", body["scan_id"])
		assert.Equal(t, "pending", body["status"])
		// The ownership gate must not go through the full document read,
		// which records its own audit entry.
		f.docs.AssertNotCalled(t, "Get", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("foreign document", func(t *testing.T) {
		f := newHandlerFixture(t)
		f.docs.On("VerifyAccess", mock.Anything, mock.Anything, "doc-1").
			Return(apperr.New(apperr.KindPermissionDenied, "not allowed to access this document"))

		resp, _ := f.app.Test(authed(httptest.NewRequest(http.MethodPost, "/documents/doc-1/scan", nil)))

		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
		f.scans.AssertNotCalled(t, "Enqueue", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestDocumentAuditTrail(t *testing.T) {
	t.Run("returns entries", func(t *testing.T) {
		f := newHandlerFixture(t)
		f.docs.On("AuditTrail", mock.Anything, mock.Anything, "doc-1", 5, 10).
			Return([]model.AuditLog{{ID: "a-1", DocumentID: "doc-1", Action: model.AuditActionGet}}, nil)

		resp, _ := f.app.Test(authed(httptest.NewRequest(http.MethodGet, "/documents/doc-1/audit?limit=5&offset=10", nil)))

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		var body struct {
			Entries []model.AuditLog `json:"entries"`
			Limit   int              `json:"limit"`
			Offset  int              `json:"offset"`
		}
		json.NewDecoder(resp.Body).Decode(&body)
		require.Len(t, body.Entries, 1)
		assert.Equal(t, "a-1", body.Entries[0].ID)
		assert.Equal(t, 5, body.Limit)
		assert.Equal(t, 10, body.Offset)
	})

	t.Run("empty trail serializes as empty array", func(t *testing.T) {
		f := newHandlerFixture(t)
		f.docs.On("AuditTrail", mock.Anything, mock.Anything, "doc-1", 20, 0).
			Return([]model.AuditLog(nil), nil)

		resp, _ := f.app.Test(authed(httptest.NewRequest(http.MethodGet, "/documents/doc-1/audit", nil)))

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		raw, _ := io.ReadAll(resp.Body)
		assert.Contains(t, string(raw), `"entries":[]`)
	})

	t.Run("bad limit", func(t *testing.T) {
		f := newHandlerFixture(t)

		resp, _ := f.app.Test(authed(httptest.NewRequest(http.MethodGet, "/documents/doc-1/audit?limit=abc", nil)))

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestGetScanJob(t *testing.T) {
	t.Run("own tenant job", func(t *testing.T) {
		f := newHandlerFixture(t)
		f.scans.On("GetJob", mock.Anything, "scan-1").
			Return(&model.ScanJobRecord{ScanID: "scan-1", TenantID: "tenant-1", Status: model.ScanStatusPending}, nil)

		resp, _ := f.app.Test(authed(httptest.NewRequest(http.MethodGet, "/scans/scan-1", nil)))

		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("foreign tenant job is hidden", func(t *testing.T) {
		f := newHandlerFixture(t)
		f.scans.On("GetJob", mock.Anything, "scan-1").
			Return(&model.ScanJobRecord{ScanID: "scan-1", TenantID: "tenant-2"}, nil)

		resp, _ := f.app.Test(authed(httptest.NewRequest(http.MethodGet, "/scans/scan-1", nil)))

		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("expired job is not found", func(t *testing.T) {
		f := newHandlerFixture(t)
		f.scans.On("GetJob", mock.Anything, "scan-old").
			Return(nil, apperr.New(apperr.KindNotFound, "scan job not found"))

		resp, _ := f.app.Test(authed(httptest.NewRequest(http.MethodGet, "/scans/scan-old", nil)))

		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestLatestScan(t *testing.T) {
	t.Run("never scanned", func(t *testing.T) {
		f := newHandlerFixture(t)
		f.docs.On("Get", mock.Anything, mock.Anything, "doc-1").
			Return(&service.DocumentDetail{Document: model.Document{ID: "doc-1"}}, nil)

		resp, _ := f.app.Test(authed(httptest.NewRequest(http.MethodGet, "/documents/doc-1/scans/latest", nil)))

		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("returns the latest result", func(t *testing.T) {
		f := newHandlerFixture(t)
		f.docs.On("Get", mock.Anything, mock.Anything, "doc-1").
			Return(&service.DocumentDetail{
				Document:   model.Document{ID: "doc-1"},
				LatestScan: &model.ScanResult{ID: "scan-1", Result: model.ScanResultClean},
			}, nil)

		resp, _ := f.app.Test(authed(httptest.NewRequest(http.MethodGet, "/documents/doc-1/scans/latest", nil)))

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		var res model.ScanResult
		json.NewDecoder(resp.Body).Decode(&res)
		assert.Equal(t, model.ScanResultClean, res.Result)
	})
}

func TestUploadSessions(t *testing.T) {
	f := newHandlerFixture(t)
	f.docs.On("CreateSession", mock.Anything, mock.Anything, "big.bin", "application/octet-stream", int64(4096)).
		Return(&model.UploadSession{SessionID: "sess-1", Status: model.UploadSessionPending}, nil)

	body := bytes.NewBufferString(`{"filename":"big.bin","content_type":"application/octet-stream","expected_size":4096}`)
	req := authed(httptest.NewRequest(http.MethodPost, "/upload-sessions", body))
	req.Header.Set("Content-Type", "application/json")
	resp, _ := f.app.Test(req)

	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	f.docs.On("GetSession", mock.Anything, mock.Anything, "sess-1").
		Return(&model.UploadSession{SessionID: "sess-1"}, nil)
	resp, _ = f.app.Test(authed(httptest.NewRequest(http.MethodGet, "/upload-sessions/sess-1", nil)))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestListDocuments(t *testing.T) {
	f := newHandlerFixture(t)

	var gotQuery service.ListQuery
	f.docs.On("List", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { gotQuery = args.Get(2).(service.ListQuery) }).
		Return(&service.DocumentListResult{Items: []model.Document{{ID: "doc-1"}}, Total: 1}, nil)

	req := authed(httptest.NewRequest(http.MethodGet, "/documents?limit=5&offset=10&tag=finance&status=active", nil))
	resp, _ := f.app.Test(req)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 5, gotQuery.Limit)
	assert.Equal(t, 10, gotQuery.Offset)
	assert.Equal(t, "finance", gotQuery.Tag)
	assert.Equal(t, model.DocumentStatusActive, gotQuery.Status)

	var body service.DocumentListResult
	json.NewDecoder(resp.Body).Decode(&body)
	assert.Equal(t, 1, body.Total)
}

func TestDownloadDocument(t *testing.T) {
	f := newHandlerFixture(t)
	f.docs.On("Download", mock.Anything, mock.Anything, "doc-1").
		Return("https://minio.local/presigned", nil)

	resp, _ := f.app.Test(authed(httptest.NewRequest(http.MethodGet, "/documents/doc-1/download", nil)))

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]any
	json.NewDecoder(resp.Body).Decode(&body)
	assert.Equal(t, "https://minio.local/presigned", body["download_url"])
}
