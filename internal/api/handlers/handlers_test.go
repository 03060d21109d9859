package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/dvloznov/just-save/internal/domain"
	"github.com/dvloznov/just-save/internal/jobs"
	"github.com/dvloznov/just-save/internal/logger"
	"github.com/dvloznov/just-save/internal/pipeline"
)

// MockPipeline is a mock implementation of Pipeline
type MockPipeline struct {
	LimitsValue             pipeline.Limits
	ExtractTransactionsFunc func(ctx context.Context, content string, declaredSize int64, kind domain.SourceKind) ([]domain.Transaction, error)
	AnalyzeFunc             func(ctx context.Context, txs []domain.Transaction) (*domain.Analysis, error)
	ExplainFunc             func(ctx context.Context, a *domain.Analysis) (string, error)
}

func (m *MockPipeline) Limits() pipeline.Limits {
	if m.LimitsValue == (pipeline.Limits{}) {
		return pipeline.DefaultLimits()
	}
	return m.LimitsValue
}

func (m *MockPipeline) ExtractTransactions(ctx context.Context, content string, declaredSize int64, kind domain.SourceKind) ([]domain.Transaction, error) {
	if m.ExtractTransactionsFunc != nil {
		return m.ExtractTransactionsFunc(ctx, content, declaredSize, kind)
	}
	return nil, errors.New("not implemented")
}

func (m *MockPipeline) Analyze(ctx context.Context, txs []domain.Transaction) (*domain.Analysis, error) {
	if m.AnalyzeFunc != nil {
		return m.AnalyzeFunc(ctx, txs)
	}
	return nil, errors.New("not implemented")
}

func (m *MockPipeline) Explain(ctx context.Context, a *domain.Analysis) (string, error) {
	if m.ExplainFunc != nil {
		return m.ExplainFunc(ctx, a)
	}
	return "", errors.New("not implemented")
}

// MockPDF is a mock implementation of pdftext.Extractor
type MockPDF struct {
	ExtractTextFunc func(ctx context.Context, pdf []byte) (string, error)
}

func (m *MockPDF) ExtractText(ctx context.Context, pdf []byte) (string, error) {
	return m.ExtractTextFunc(ctx, pdf)
}

// MockPublisher is a mock implementation of jobs.Publisher
type MockPublisher struct {
	PublishFunc func(ctx context.Context, job *jobs.AnalysisJob) error
}

func (m *MockPublisher) Publish(ctx context.Context, job *jobs.AnalysisJob) error {
	return m.PublishFunc(ctx, job)
}

func (m *MockPublisher) Close() error { return nil }

// MockStore is a mock implementation of jobs.JobStore
type MockStore struct {
	GetJobFunc   func(ctx context.Context, jobID string) (*jobs.AnalysisJob, error)
	ListJobsFunc func(ctx context.Context, filter jobs.JobFilter) ([]*jobs.AnalysisJob, error)
}

func (m *MockStore) SaveJob(ctx context.Context, job *jobs.AnalysisJob) error { return nil }

func (m *MockStore) GetJob(ctx context.Context, jobID string) (*jobs.AnalysisJob, error) {
	return m.GetJobFunc(ctx, jobID)
}

func (m *MockStore) ListJobs(ctx context.Context, filter jobs.JobFilter) ([]*jobs.AnalysisJob, error) {
	return m.ListJobsFunc(ctx, filter)
}

func (m *MockStore) UpdateStage(ctx context.Context, jobID string, stage pipeline.Stage) error {
	return nil
}

func newTestRouter(cfg RouterConfig) http.Handler {
	cfg.Log = logger.NewWithWriter(io.Discard)
	return NewRouter(cfg)
}

func multipartBody(t *testing.T, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if filename != "" {
		fw, err := mw.CreateFormFile("file", filename)
		if err != nil {
			t.Fatal(err)
		}
		fw.Write(content)
	}
	mw.Close()
	return &buf, mw.FormDataContentType()
}

func errorBody(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("error body %q is not JSON: %v", rec.Body.String(), err)
	}
	return body["error"]
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{domain.ErrEmptyInput, http.StatusBadRequest},
		{domain.ErrFileTooLarge, http.StatusBadRequest},
		{domain.ErrNoTransactionsFound, http.StatusBadRequest},
		{domain.ErrUnsupportedSource, http.StatusBadRequest},
		{domain.ErrUnreadableDocument, http.StatusBadRequest},
		{domain.ErrReasoningUnavailable, http.StatusBadGateway},
		{domain.ErrNoJSONFound, http.StatusBadGateway},
		{domain.ErrReasoningTimeout, http.StatusGatewayTimeout},
		{domain.ErrNotConfigured, http.StatusInternalServerError},
		{errors.New("boom"), http.StatusInternalServerError},
		{domain.NewPipelineError("Analyze", "", "raw", domain.ErrReasoningTimeout), http.StatusGatewayTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			if got := StatusFor(tt.err); got != tt.want {
				t.Errorf("StatusFor(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

func TestParseCSV(t *testing.T) {
	want := []domain.Transaction{{Date: "01/03/2024", Description: "Tesco", Amount: 12.5, Type: domain.Debit}}
	var gotContent string
	var gotSize int64
	svc := &MockPipeline{
		ExtractTransactionsFunc: func(ctx context.Context, content string, declaredSize int64, kind domain.SourceKind) ([]domain.Transaction, error) {
			gotContent, gotSize = content, declaredSize
			if kind != domain.SourceCSV {
				t.Errorf("kind = %q", kind)
			}
			return want, nil
		},
	}
	h := newTestRouter(RouterConfig{Service: svc})

	csv := []byte("Date,Description,Amount\n01/03/2024,Tesco,-12.50\n")
	body, ct := multipartBody(t, "statement.csv", csv)
	req := httptest.NewRequest(http.MethodPost, "/api/parse-csv", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Transactions []domain.Transaction `json:"transactions"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Transactions) != 1 || resp.Transactions[0] != want[0] {
		t.Errorf("transactions = %+v", resp.Transactions)
	}
	if gotContent != string(csv) || gotSize != int64(len(csv)) {
		t.Errorf("service got %d bytes of content, size %d", len(gotContent), gotSize)
	}
}

func TestParseCSV_Errors(t *testing.T) {
	tests := []struct {
		name       string
		filename   string
		content    []byte
		extractErr error
		wantStatus int
		wantMsg    string
	}{
		{"no file", "", nil, nil, http.StatusBadRequest, "The CSV file is empty."},
		{"empty file", "statement.csv", []byte{}, nil, http.StatusBadRequest, "The CSV file is empty."},
		{"wrong type", "statement.pdf", []byte("%PDF"), nil, http.StatusBadRequest, "Please upload a CSV or PDF file."},
		{"too large", "statement.csv", bytes.Repeat([]byte("x"), 101), nil, http.StatusBadRequest, "File too large. Maximum size is 5MB."},
		{"nothing found", "statement.csv", []byte("a,b"), domain.ErrNoTransactionsFound, http.StatusBadRequest, "No transactions found in CSV. Please ensure this is a valid bank statement."},
		{"engine down", "statement.csv", []byte("a,b"), domain.NewPipelineError("ExtractTransactions", domain.SourceCSV, "", domain.ErrReasoningUnavailable), http.StatusBadGateway, "The analysis service is unavailable right now. Please try again."},
		{"engine slow", "statement.csv", []byte("a,b"), domain.ErrReasoningTimeout, http.StatusGatewayTimeout, "The analysis took too long. Please try again."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &MockPipeline{
				LimitsValue: pipeline.Limits{MaxCSVBytes: 100, MaxPDFBytes: 200, MaxTextLength: 1000},
				ExtractTransactionsFunc: func(ctx context.Context, content string, declaredSize int64, kind domain.SourceKind) ([]domain.Transaction, error) {
					return nil, tt.extractErr
				},
			}
			h := newTestRouter(RouterConfig{Service: svc})

			body, ct := multipartBody(t, tt.filename, tt.content)
			req := httptest.NewRequest(http.MethodPost, "/api/parse-csv", body)
			req.Header.Set("Content-Type", ct)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if got := errorBody(t, rec); got != tt.wantMsg {
				t.Errorf("error = %q, want %q", got, tt.wantMsg)
			}
		})
	}
}

func TestParseCSV_LargeUploadStaysInMemory(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv("TMPDIR", tmp)

	var gotSize int64
	svc := &MockPipeline{
		ExtractTransactionsFunc: func(ctx context.Context, content string, declaredSize int64, kind domain.SourceKind) ([]domain.Transaction, error) {
			gotSize = int64(len(content))
			return []domain.Transaction{{Date: "01/03/2024", Description: "Tesco", Amount: 1, Type: domain.Debit}}, nil
		},
	}
	h := newTestRouter(RouterConfig{Service: svc})

	row := "01/03/2024,Tesco,-12.50\n"
	csv := []byte("Date,Description,Amount\n" + strings.Repeat(row, (3<<20)/len(row)))

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	mw.WriteField("note", "march")
	fw, err := mw.CreateFormFile("file", "big.csv")
	if err != nil {
		t.Fatal(err)
	}
	fw.Write(csv)
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/parse-csv", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if gotSize != int64(len(csv)) {
		t.Errorf("service got %d bytes, want %d", gotSize, len(csv))
	}
	entries, err := os.ReadDir(tmp)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("upload wrote %d temporary files", len(entries))
	}
}

func TestParsePDF(t *testing.T) {
	pdf := &MockPDF{
		ExtractTextFunc: func(ctx context.Context, data []byte) (string, error) {
			if string(data) != "%PDF-1.4 fake" {
				t.Errorf("pdf bytes = %q", data)
			}
			return "01 Mar TESCO 12.50", nil
		},
	}
	var gotContent string
	svc := &MockPipeline{
		ExtractTransactionsFunc: func(ctx context.Context, content string, declaredSize int64, kind domain.SourceKind) ([]domain.Transaction, error) {
			gotContent = content
			return []domain.Transaction{{Date: "01 Mar", Description: "TESCO", Amount: 12.5, Type: domain.Debit}}, nil
		},
	}
	h := newTestRouter(RouterConfig{Service: svc, PDF: pdf})

	body, ct := multipartBody(t, "statement.PDF", []byte("%PDF-1.4 fake"))
	req := httptest.NewRequest(http.MethodPost, "/api/parse-pdf", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if gotContent != "01 Mar TESCO 12.50" {
		t.Errorf("service got %q, want extracted text", gotContent)
	}
}

func TestParsePDF_Unreadable(t *testing.T) {
	pdf := &MockPDF{
		ExtractTextFunc: func(ctx context.Context, data []byte) (string, error) {
			return "", domain.ErrUnreadableDocument
		},
	}
	h := newTestRouter(RouterConfig{Service: &MockPipeline{}, PDF: pdf})

	body, ct := multipartBody(t, "scan.pdf", []byte("%PDF"))
	req := httptest.NewRequest(http.MethodPost, "/api/parse-pdf", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestAnalyze(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		analyzeErr error
		wantStatus int
	}{
		{"ok", `{"transactions":[{"date":"01/03","description":"Netflix","amount":15.99,"type":"debit"}]}`, nil, http.StatusOK},
		{"empty body", ``, nil, http.StatusBadRequest},
		{"bad json", `{"transactions":`, nil, http.StatusBadRequest},
		{"no transactions", `{"transactions":[]}`, domain.ErrEmptyInput, http.StatusBadRequest},
		{"no json from engine", `{"transactions":[]}`, domain.ErrNoJSONFound, http.StatusBadGateway},
		{"not configured", `{"transactions":[]}`, domain.ErrNotConfigured, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &MockPipeline{
				AnalyzeFunc: func(ctx context.Context, txs []domain.Transaction) (*domain.Analysis, error) {
					if tt.analyzeErr != nil {
						return nil, tt.analyzeErr
					}
					return &domain.Analysis{TotalSpent: txs[0].Amount, Insights: domain.DefaultInsights()}, nil
				},
			}
			h := newTestRouter(RouterConfig{Service: svc})

			req := httptest.NewRequest(http.MethodPost, "/api/analyze", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if tt.wantStatus == http.StatusOK && !strings.Contains(rec.Body.String(), `"totalSpent":15.99`) {
				t.Errorf("body = %s", rec.Body.String())
			}
		})
	}
}

func TestExplain(t *testing.T) {
	svc := &MockPipeline{
		ExplainFunc: func(ctx context.Context, a *domain.Analysis) (string, error) {
			if a == nil || a.TotalSpent != 100 {
				t.Errorf("analysis = %+v", a)
			}
			return "You spent £100.", nil
		},
	}
	h := newTestRouter(RouterConfig{Service: svc})

	req := httptest.NewRequest(http.MethodPost, "/api/explain", strings.NewReader(`{"analysis":{"totalSpent":100}}`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "You spent") {
		t.Errorf("status = %d, body %s", rec.Code, rec.Body.String())
	}
}

func TestAudit(t *testing.T) {
	h := newTestRouter(RouterConfig{Service: &MockPipeline{}})

	body := `{"subscriptions":[
		{"name":"Netflix","amount":15.99,"frequency":"monthly","confidence":"high","decision":"cancel"},
		{"name":"Spotify","amount":9.99,"frequency":"monthly","confidence":"high","decision":"keep"}
	]}`
	req := httptest.NewRequest(http.MethodPost, "/api/audit", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var report struct {
		YearlySavings  float64 `json:"yearlySavings"`
		CancelledCount int     `json:"cancelledCount"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatal(err)
	}
	if report.CancelledCount != 1 || report.YearlySavings != 191.88 {
		t.Errorf("report = %+v", report)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/audit", strings.NewReader(`{"subscriptions":[{"name":"x","decision":"delete"}]}`))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unknown decision: status = %d, want 400", rec.Code)
	}
}

func TestJobs(t *testing.T) {
	var published *jobs.AnalysisJob
	pub := &MockPublisher{
		PublishFunc: func(ctx context.Context, job *jobs.AnalysisJob) error {
			job.JobID = "job-42"
			published = job
			return nil
		},
	}
	store := &MockStore{
		GetJobFunc: func(ctx context.Context, jobID string) (*jobs.AnalysisJob, error) {
			if jobID != "job-42" {
				return nil, jobs.ErrJobNotFound
			}
			return &jobs.AnalysisJob{
				JobID:  jobID,
				Status: jobs.JobStatusCompleted,
				Stage:  pipeline.StageComplete,
				Result: &domain.Analysis{TotalSpent: 10},
			}, nil
		},
		ListJobsFunc: func(ctx context.Context, filter jobs.JobFilter) ([]*jobs.AnalysisJob, error) {
			if filter.Limit != 5 || filter.Status != jobs.JobStatusCompleted {
				t.Errorf("filter = %+v", filter)
			}
			return []*jobs.AnalysisJob{{JobID: "job-42", Status: jobs.JobStatusCompleted, Result: &domain.Analysis{}}}, nil
		},
	}
	h := newTestRouter(RouterConfig{Service: &MockPipeline{}, Publisher: pub, Store: store})

	body, ct := multipartBody(t, "march.csv", []byte("Date,Description,Amount\n"))
	req := httptest.NewRequest(http.MethodPost, "/api/jobs", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted || !strings.Contains(rec.Body.String(), `"job_id":"job-42"`) {
		t.Fatalf("create: status = %d, body %s", rec.Code, rec.Body.String())
	}
	if published.Kind != domain.SourceCSV || published.Input.Content != "Date,Description,Amount\n" {
		t.Errorf("published job = %+v", published)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/jobs/job-42", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"stage":"complete"`) || !strings.Contains(rec.Body.String(), `"analysis"`) {
		t.Errorf("get: status = %d, body %s", rec.Code, rec.Body.String())
	}
	if strings.Contains(rec.Body.String(), "Date,Description") {
		t.Error("job response leaked statement text")
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/jobs/unknown", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("get unknown: status = %d, want 404", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/jobs?status=completed&limit=5", nil))
	if rec.Code != http.StatusOK || strings.Contains(rec.Body.String(), `"analysis"`) {
		t.Errorf("list: status = %d, body %s", rec.Code, rec.Body.String())
	}
}

func TestJobs_UnsupportedUpload(t *testing.T) {
	pub := &MockPublisher{
		PublishFunc: func(ctx context.Context, job *jobs.AnalysisJob) error {
			t.Error("nothing should be published")
			return nil
		},
	}
	h := newTestRouter(RouterConfig{Service: &MockPipeline{}, Publisher: pub, Store: &MockStore{}})

	body, ct := multipartBody(t, "statement.xlsx", []byte("PK"))
	req := httptest.NewRequest(http.MethodPost, "/api/jobs", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestRouter_AuthAndHealth(t *testing.T) {
	h := newTestRouter(RouterConfig{Service: &MockPipeline{}, APIKey: "secret"})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("/health status = %d, want 200 without a key", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/analyze", strings.NewReader(`{}`)))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("/api/analyze status = %d, want 401", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/analyze", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET /api/analyze status = %d, want 405", rec.Code)
	}
}

func TestAnalysisHandler_AuditTimestamp(t *testing.T) {
	h := NewAnalysisHandler(&MockPipeline{})
	fixed := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	h.now = func() time.Time { return fixed }

	rec := httptest.NewRecorder()
	h.Audit(rec, httptest.NewRequest(http.MethodPost, "/api/audit", strings.NewReader(`{"subscriptions":[]}`)))

	if !strings.Contains(rec.Body.String(), `"generatedAt":"2024-04-01T00:00:00Z"`) {
		t.Errorf("body = %s", rec.Body.String())
	}
}
