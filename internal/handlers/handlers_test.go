package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"marks-access/internal/auth"
	"marks-access/internal/config"
	"marks-access/internal/email"
	"marks-access/internal/middleware"
	"marks-access/internal/models"
	"marks-access/internal/service"
	"marks-access/internal/testutil"
)

type fakeEmailReporter struct {
	remaining int
	logs      []models.EmailLog
}

func (f *fakeEmailReporter) Quota(_ context.Context) (*email.QuotaReport, error) {
	return &email.QuotaReport{Remaining: f.remaining, Status: "Good", CheckedAt: time.Now()}, nil
}

func (f *fakeEmailReporter) RecentLogs(_ context.Context, limit, offset int) ([]models.EmailLog, error) {
	return f.logs, nil
}

// testAPI is the full route table over in-memory stores
type testAPI struct {
	t         *testing.T
	mux       *http.ServeMux
	auth      *testutil.AuthHelper
	otp       *service.OTPService
	records   *testutil.MemoryRecordStore
	requests  *testutil.MemoryEditRequestStore
	deadlines *testutil.MemoryDeadlineStore
	audit     *testutil.MemoryAuditStore
	notifier  *testutil.RecordingNotifier
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	api := &testAPI{
		t:         t,
		mux:       http.NewServeMux(),
		auth:      testutil.NewAuthHelper(),
		records:   testutil.NewMemoryRecordStore(testutil.SampleRecords()...),
		requests:  testutil.NewMemoryEditRequestStore(),
		deadlines: testutil.NewMemoryDeadlineStore(),
		audit:     testutil.NewMemoryAuditStore(),
		notifier:  testutil.NewRecordingNotifier(),
	}
	props := testutil.NewMemoryPropertyStore()

	api.otp = service.NewOTPService(props, api.records, api.deadlines, api.notifier)
	access := service.NewEditAccessService(api.records, api.requests, api.notifier, 48*time.Hour)
	marks := service.NewMarksService(api.records, access, 100)
	completion := service.NewCompletionService(api.records, props, api.notifier, 100)
	deadlines := service.NewDeadlineService(api.deadlines, api.records, api.otp, api.notifier, completion)
	auditSvc := service.NewAuditService(api.audit)

	admin := config.AdminConfig{Email: testutil.AdminEmail, PasswordHash: testutil.AdminPasswordHash(t)}
	RegisterRoutes(api.mux, Handlers{
		Auth:     NewAuthHandler(api.otp, api.auth.Service, admin, auditSvc),
		Faculty:  NewFacultyHandler(marks, access, deadlines),
		Admin:    NewAdminHandler(api.otp, access),
		Deadline: NewDeadlineHandler(deadlines),
		Report:   NewReportHandler(completion, service.NewImportService(api.records), &fakeEmailReporter{remaining: 80}),
		Audit:    NewAuditHandler(auditSvc),
	}, middleware.NewAuthMiddleware(api.auth.Service), middleware.NewAuditMiddleware(auditSvc))

	return api
}

// do sends body as JSON (when non-nil) with a token for email in role (when role is set)
func (a *testAPI) do(method, path string, body any, email, role string) (*testutil.TestResponse, map[string]any) {
	a.t.Helper()

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			a.t.Fatalf("Failed to encode body: %v", err)
		}
		reader = bytes.NewReader(buf)
	}

	var req *http.Request
	if role != "" {
		req = a.auth.CreateAuthenticatedRequest(a.t, method, path, reader, email, role)
	} else {
		req = httptestRequest(method, path, reader)
	}

	resp := testutil.NewTestResponse()
	a.mux.ServeHTTP(resp, req)

	var decoded map[string]any
	_ = json.Unmarshal(resp.Body.Bytes(), &decoded)
	return resp, decoded
}

func httptestRequest(method, path string, body io.Reader) *http.Request {
	req, _ := http.NewRequest(method, path, body)
	req.RemoteAddr = "192.0.2.10:4000"
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req
}

func TestFacultyLoginWithOTP(t *testing.T) {
	api := newTestAPI(t)

	code, err := api.otp.IssueOne(t.Context(), testutil.FacultyA)
	if err != nil {
		t.Fatalf("IssueOne failed: %v", err)
	}

	resp, body := api.do(http.MethodPost, "/api/v1/auth/otp/verify", map[string]string{"email": "Prof.A@University.edu", "otp": code}, "", "")
	resp.AssertStatus(t, http.StatusOK)

	token, _ := body["token"].(string)
	claims, err := api.auth.Service.ValidateToken(token)
	if err != nil {
		t.Fatalf("Issued token does not validate: %v", err)
	}
	if claims.Email != testutil.FacultyA || claims.Role != auth.RoleFaculty {
		t.Errorf("Unexpected claims %+v", claims)
	}

	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}
	resp, body = api.do(http.MethodPost, "/api/v1/auth/otp/verify", map[string]string{"email": testutil.FacultyA, "otp": wrong}, "", "")
	resp.AssertStatus(t, http.StatusUnauthorized)
	if body["code"] != CodeInvalidOTP {
		t.Errorf("Expected %s, got %v", CodeInvalidOTP, body["code"])
	}

	resp, _ = api.do(http.MethodPost, "/api/v1/auth/otp/verify", map[string]string{"email": testutil.FacultyA, "otp": "12ab"}, "", "")
	resp.AssertStatus(t, http.StatusBadRequest)
}

func TestAdminLogin(t *testing.T) {
	api := newTestAPI(t)

	tests := []struct {
		name     string
		email    string
		password string
		want     int
	}{
		{name: "valid", email: "COE@university.edu", password: testutil.AdminPassword, want: http.StatusOK},
		{name: "wrong password", email: testutil.AdminEmail, password: "nope", want: http.StatusUnauthorized},
		{name: "wrong email", email: testutil.FacultyA, password: testutil.AdminPassword, want: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := api.do(http.MethodPost, "/api/v1/auth/admin/login", map[string]string{"email": tt.email, "password": tt.password}, "", "")
			resp.AssertStatus(t, tt.want)
			if tt.want == http.StatusOK && body["role"] != auth.RoleAdmin {
				t.Errorf("Expected admin role, got %v", body["role"])
			}
		})
	}

	logs, _ := api.audit.List(t.Context(), 10, 0)
	failures := 0
	for _, l := range logs {
		if l.Action == AuditActionAdminLoginFailure {
			failures++
		}
	}
	if failures != 2 {
		t.Errorf("Expected 2 failed login audit entries, got %d", failures)
	}
}

func TestRoleEnforcement(t *testing.T) {
	api := newTestAPI(t)

	tests := []struct {
		name string
		path string
		role string
		want int
	}{
		{name: "faculty papers as faculty", path: "/api/v1/faculty/papers", role: auth.RoleFaculty, want: http.StatusOK},
		{name: "faculty papers as admin", path: "/api/v1/faculty/papers", role: auth.RoleAdmin, want: http.StatusForbidden},
		{name: "faculty papers anonymous", path: "/api/v1/faculty/papers", want: http.StatusUnauthorized},
		{name: "admin queue as faculty", path: "/api/v1/admin/edit-requests", role: auth.RoleFaculty, want: http.StatusForbidden},
		{name: "admin queue as admin", path: "/api/v1/admin/edit-requests", role: auth.RoleAdmin, want: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			email := testutil.FacultyA
			if tt.role == auth.RoleAdmin {
				email = testutil.AdminEmail
			}
			resp, _ := api.do(http.MethodGet, tt.path, nil, email, tt.role)
			resp.AssertStatus(t, tt.want)
		})
	}
}

func TestListPapers(t *testing.T) {
	api := newTestAPI(t)

	resp, body := api.do(http.MethodGet, "/api/v1/faculty/papers", nil, testutil.FacultyA, auth.RoleFaculty)
	resp.AssertStatus(t, http.StatusOK)

	data, _ := body["data"].(map[string]any)
	papers, _ := data["papers"].([]any)
	if len(papers) != 3 {
		t.Fatalf("Expected 3 papers, got %d", len(papers))
	}
	first, _ := papers[0].(map[string]any)
	if first["can_edit"] != false || first["is_unlocked"] != false {
		t.Errorf("A verified record without a grant must not be editable: %v", first)
	}
}

func TestSaveMarksErrors(t *testing.T) {
	api := newTestAPI(t)

	tests := []struct {
		name     string
		body     map[string]any
		want     int
		wantCode string
	}{
		{name: "unverified record", body: map[string]any{"registration_number": "2301003", "marks": 61}, want: http.StatusOK},
		{name: "verified record is locked", body: map[string]any{"registration_number": "2301001", "marks": 80}, want: http.StatusLocked, wantCode: CodeRecordLocked},
		{name: "out of range", body: map[string]any{"registration_number": "2301003", "marks": 150}, want: http.StatusBadRequest, wantCode: CodeInvalidMarks},
		{name: "other faculty's student", body: map[string]any{"registration_number": "2301004", "marks": 10}, want: http.StatusForbidden, wantCode: CodeNotOwned},
		{name: "unknown student", body: map[string]any{"registration_number": "9999999", "marks": 10}, want: http.StatusNotFound, wantCode: CodeNotFound},
		{name: "missing marks", body: map[string]any{"registration_number": "2301003"}, want: http.StatusBadRequest, wantCode: CodeValidationFailed},
		{name: "malformed registration number", body: map[string]any{"registration_number": "23 01!", "marks": 10}, want: http.StatusBadRequest, wantCode: CodeValidationFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := api.do(http.MethodPost, "/api/v1/faculty/marks", tt.body, testutil.FacultyA, auth.RoleFaculty)
			resp.AssertStatus(t, tt.want)
			if tt.wantCode != "" && body["code"] != tt.wantCode {
				t.Errorf("Expected code %s, got %v", tt.wantCode, body["code"])
			}
		})
	}
}

func TestBulkSaveAndVerify(t *testing.T) {
	api := newTestAPI(t)

	resp, body := api.do(http.MethodPost, "/api/v1/faculty/marks", map[string]any{
		"entries": []map[string]any{
			{"registration_number": "2301003", "marks": 70},
			{"registration_number": "2301001", "marks": 10},
		},
	}, testutil.FacultyA, auth.RoleFaculty)
	resp.AssertStatus(t, http.StatusOK)
	if body["success_count"] != float64(1) || body["error_count"] != float64(1) {
		t.Errorf("Unexpected bulk save outcome: %v", body)
	}

	resp, body = api.do(http.MethodPost, "/api/v1/faculty/verify", map[string]any{
		"students": []map[string]any{{"registration_number": "2301003"}, {"registration_number": "2301002"}},
	}, testutil.FacultyA, auth.RoleFaculty)
	resp.AssertStatus(t, http.StatusOK)
	if body["success_count"] != float64(2) {
		t.Errorf("Unexpected bulk verify outcome: %v", body)
	}
	if rec, ok := api.records.Get(3); !ok || !rec.Verified {
		t.Errorf("2301003 should now be verified: %+v", rec)
	}
}

func TestBulkSaveRejectsInvalidEntriesIndividually(t *testing.T) {
	api := newTestAPI(t)

	resp, body := api.do(http.MethodPost, "/api/v1/faculty/marks", map[string]any{
		"entries": []map[string]any{
			{"registration_number": "2301003", "marks": 70},
			{"registration_number": "2301002"},
			{"registration_number": "not a regd", "marks": 12},
		},
	}, testutil.FacultyA, auth.RoleFaculty)
	resp.AssertStatus(t, http.StatusOK)
	if body["success_count"] != float64(1) || body["error_count"] != float64(2) {
		t.Fatalf("Unexpected bulk save outcome: %v", body)
	}

	results, _ := body["results"].([]any)
	if len(results) != 3 {
		t.Fatalf("Expected 3 item results, got %v", body["results"])
	}
	if first, _ := results[0].(map[string]any); first["success"] != true {
		t.Errorf("Expected 2301003 to be saved, got %v", first)
	}

	rec, ok := api.records.Get(3)
	if !ok || rec.Marks == nil || *rec.Marks != 70 {
		t.Errorf("2301003 should hold 70, got %+v", rec)
	}
}

func TestEditRequestFlow(t *testing.T) {
	api := newTestAPI(t)

	submit := map[string]any{"registration_numbers": []string{"2301001"}}
	resp, body := api.do(http.MethodPost, "/api/v1/faculty/edit-requests", submit, testutil.FacultyA, auth.RoleFaculty)
	resp.AssertStatus(t, http.StatusCreated)
	ids, _ := body["request_ids"].([]any)
	if len(ids) != 1 {
		t.Fatalf("Expected one request id, got %v", body["request_ids"])
	}
	id := ids[0].(string)

	resp, body = api.do(http.MethodPost, "/api/v1/faculty/edit-requests", submit, testutil.FacultyA, auth.RoleFaculty)
	resp.AssertStatus(t, http.StatusConflict)
	if body["code"] != service.CodeAllDuplicate {
		t.Errorf("Expected %s, got %v", service.CodeAllDuplicate, body["code"])
	}

	resp, body = api.do(http.MethodGet, "/api/v1/admin/edit-requests?status=Pending", nil, testutil.AdminEmail, auth.RoleAdmin)
	resp.AssertStatus(t, http.StatusOK)
	if pending, _ := body["data"].([]any); len(pending) != 1 {
		t.Fatalf("Expected one pending request, got %v", body["data"])
	}

	resp, _ = api.do(http.MethodPost, "/api/v1/admin/edit-requests/"+id+"/approve", nil, testutil.AdminEmail, auth.RoleAdmin)
	resp.AssertStatus(t, http.StatusOK)
	resp, body = api.do(http.MethodPost, "/api/v1/admin/edit-requests/"+id+"/approve", nil, testutil.AdminEmail, auth.RoleAdmin)
	resp.AssertStatus(t, http.StatusConflict)
	if body["code"] != CodeInvalidStatus {
		t.Errorf("Expected %s, got %v", CodeInvalidStatus, body["code"])
	}

	resp, _ = api.do(http.MethodPost, "/api/v1/faculty/marks", map[string]any{"registration_number": "2301001", "marks": 82}, testutil.FacultyA, auth.RoleFaculty)
	resp.AssertStatus(t, http.StatusOK)

	logs, _ := api.audit.List(t.Context(), 10, 0)
	if len(logs) != 1 || logs[0].Action != AuditActionEditApprove || logs[0].ActorEmail != testutil.AdminEmail {
		t.Errorf("Expected one approve audit entry, got %+v", logs)
	}
	if api.notifier.Count(models.EmailTypeEditApproval) != 1 {
		t.Errorf("Expected one approval email, got %d", api.notifier.Count(models.EmailTypeEditApproval))
	}
}

func TestDisapproveRequiresReason(t *testing.T) {
	api := newTestAPI(t)

	_, body := api.do(http.MethodPost, "/api/v1/faculty/edit-requests", map[string]any{"registration_numbers": []string{"2301002"}}, testutil.FacultyA, auth.RoleFaculty)
	id := body["request_ids"].([]any)[0].(string)

	resp, _ := api.do(http.MethodPost, "/api/v1/admin/edit-requests/"+id+"/disapprove", map[string]string{"reason": ""}, testutil.AdminEmail, auth.RoleAdmin)
	resp.AssertStatus(t, http.StatusBadRequest)

	resp, _ = api.do(http.MethodPost, "/api/v1/admin/edit-requests/"+id+"/disapprove", map[string]string{"reason": "Marks already published"}, testutil.AdminEmail, auth.RoleAdmin)
	resp.AssertStatus(t, http.StatusOK)

	resp, _ = api.do(http.MethodPost, "/api/v1/admin/edit-requests/REQ-missing/approve", nil, testutil.AdminEmail, auth.RoleAdmin)
	resp.AssertStatus(t, http.StatusNotFound)
}

func TestDeadlineEndpoints(t *testing.T) {
	api := newTestAPI(t)

	resp, _ := api.do(http.MethodGet, "/api/v1/faculty/deadline", nil, testutil.FacultyA, auth.RoleFaculty)
	resp.AssertStatus(t, http.StatusNotFound)

	resp, _ = api.do(http.MethodPut, "/api/v1/admin/deadlines", map[string]string{"faculty_email": testutil.FacultyA, "due_date": "15/03/2026"}, testutil.AdminEmail, auth.RoleAdmin)
	resp.AssertStatus(t, http.StatusBadRequest)

	due := time.Now().AddDate(0, 0, 5).Format(time.DateOnly)
	resp, _ = api.do(http.MethodPut, "/api/v1/admin/deadlines", map[string]string{"faculty_email": testutil.FacultyA, "due_date": due}, testutil.AdminEmail, auth.RoleAdmin)
	resp.AssertStatus(t, http.StatusOK)

	resp, body := api.do(http.MethodGet, "/api/v1/faculty/deadline", nil, testutil.FacultyA, auth.RoleFaculty)
	resp.AssertStatus(t, http.StatusOK)
	data, _ := body["data"].(map[string]any)
	stats, _ := data["stats"].(map[string]any)
	if stats["total_students"] != float64(3) {
		t.Errorf("Expected 3 students, got %v", stats["total_students"])
	}

	resp, body = api.do(http.MethodPost, "/api/v1/admin/deadlines/remind", map[string]string{"faculty_email": testutil.FacultyA}, testutil.AdminEmail, auth.RoleAdmin)
	resp.AssertStatus(t, http.StatusOK)
	if data, _ := body["data"].(map[string]any); data["sent"] != false {
		t.Errorf("A future deadline must not trigger a reminder: %v", body)
	}

	resp, body = api.do(http.MethodPost, "/api/v1/faculty/deadline/confirm", nil, testutil.FacultyA, auth.RoleFaculty)
	resp.AssertStatus(t, http.StatusOK)
	resp, body = api.do(http.MethodPost, "/api/v1/faculty/deadline/confirm", nil, testutil.FacultyA, auth.RoleFaculty)
	resp.AssertStatus(t, http.StatusOK)
	if body["message"] != "Completion was already confirmed" {
		t.Errorf("Unexpected second confirmation message %v", body["message"])
	}
	if api.notifier.Count(models.EmailTypeCompletionConfirmed) != 1 {
		t.Errorf("Expected one confirmation email, got %d", api.notifier.Count(models.EmailTypeCompletionConfirmed))
	}

	resp, body = api.do(http.MethodGet, "/api/v1/admin/deadlines", nil, testutil.AdminEmail, auth.RoleAdmin)
	resp.AssertStatus(t, http.StatusOK)
	if list, _ := body["data"].([]any); len(list) != 1 {
		t.Errorf("Expected one deadline, got %v", body["data"])
	}
}

func TestImportRecords(t *testing.T) {
	api := newTestAPI(t)

	csv := "Regd. No.,Student Name,Paper Code,Examiner Email,Marks,Verified,Max Marks\n" +
		"2302001,Leela,BIO110,prof.c@university.edu,,,100\n"
	req := api.auth.CreateAuthenticatedRequest(t, http.MethodPost, "/api/v1/admin/records/import", strings.NewReader(csv), testutil.AdminEmail, auth.RoleAdmin)
	req.Header.Set("Content-Type", "text/csv")
	resp := testutil.NewTestResponse()
	api.mux.ServeHTTP(resp, req)
	resp.AssertStatus(t, http.StatusOK)

	recs, _ := api.records.ListByFaculty(t.Context(), "prof.c@university.edu")
	if len(recs) != 1 {
		t.Errorf("Expected the imported record, got %d", len(recs))
	}

	req = api.auth.CreateAuthenticatedRequest(t, http.MethodPost, "/api/v1/admin/records/import", strings.NewReader("Regd. No.,Student Name\n"), testutil.AdminEmail, auth.RoleAdmin)
	req.Header.Set("Content-Type", "text/csv")
	resp = testutil.NewTestResponse()
	api.mux.ServeHTTP(resp, req)
	resp.AssertStatus(t, http.StatusBadRequest)
}

func TestCompletionAndEmailEndpoints(t *testing.T) {
	api := newTestAPI(t)

	resp, body := api.do(http.MethodGet, "/api/v1/admin/reports/completion", nil, testutil.AdminEmail, auth.RoleAdmin)
	resp.AssertStatus(t, http.StatusOK)
	data, _ := body["data"].(map[string]any)
	if data["total_students"] != float64(5) || data["complete"] != false {
		t.Errorf("Unexpected report: %v", data)
	}

	resp, _ = api.do(http.MethodPost, "/api/v1/admin/completion/reset", nil, testutil.AdminEmail, auth.RoleAdmin)
	resp.AssertStatus(t, http.StatusOK)

	resp, body = api.do(http.MethodGet, "/api/v1/admin/email/quota", nil, testutil.AdminEmail, auth.RoleAdmin)
	resp.AssertStatus(t, http.StatusOK)
	if data, _ := body["data"].(map[string]any); data["remaining"] != float64(80) {
		t.Errorf("Unexpected quota: %v", body)
	}

	resp, body = api.do(http.MethodGet, "/api/v1/admin/email/logs", nil, testutil.AdminEmail, auth.RoleAdmin)
	resp.AssertStatus(t, http.StatusOK)
	if logs, ok := body["data"].([]any); !ok || len(logs) != 0 {
		t.Errorf("Expected an empty list rather than null, got %v", body["data"])
	}

	resp, _ = api.do(http.MethodGet, "/api/v1/admin/audit-logs?limit=abc", nil, testutil.AdminEmail, auth.RoleAdmin)
	resp.AssertStatus(t, http.StatusBadRequest)
}

func TestSendOTPs(t *testing.T) {
	api := newTestAPI(t)

	if err := api.deadlines.Upsert(t.Context(), &models.FacultyDeadline{
		FacultyEmail:     testutil.FacultyA,
		DueDate:          time.Now().AddDate(0, 0, 7),
		CompletionStatus: models.CompletionPending,
	}); err != nil {
		t.Fatalf("Failed to seed deadline: %v", err)
	}

	resp, body := api.do(http.MethodPost, "/api/v1/admin/otp/send-all", nil, testutil.AdminEmail, auth.RoleAdmin)
	resp.AssertStatus(t, http.StatusOK)
	if body["sent_count"] != float64(1) || body["total_faculty"] != float64(2) {
		t.Errorf("Expected 1 of 2 faculty mailed, got %v", body)
	}
	skipped, _ := body["skipped"].([]any)
	if len(skipped) != 1 {
		t.Fatalf("Expected one skipped faculty, got %v", body["skipped"])
	}
	if first, _ := skipped[0].(map[string]any); first["email"] != testutil.FacultyB {
		t.Errorf("Expected %s skipped, got %v", testutil.FacultyB, first)
	}
	if api.notifier.Count(models.EmailTypeAdminSelectiveAlert) != 1 {
		t.Error("Administrator should be alerted about the skipped faculty")
	}

	resp, _ = api.do(http.MethodPost, "/api/v1/admin/otp/send", map[string]string{"email": "nobody@university.edu"}, testutil.AdminEmail, auth.RoleAdmin)
	resp.AssertStatus(t, http.StatusNotFound)

	api.notifier.Quota = 0
	resp, body = api.do(http.MethodPost, "/api/v1/admin/otp/send-all", nil, testutil.AdminEmail, auth.RoleAdmin)
	resp.AssertStatus(t, http.StatusTooManyRequests)
	if body["code"] != CodeQuotaExceeded {
		t.Errorf("Expected %s, got %v", CodeQuotaExceeded, body["code"])
	}
}

func TestNormalizeSlices(t *testing.T) {
	type inner struct {
		Items []string `json:"items"`
	}
	type payload struct {
		Names  []string          `json:"names"`
		Nested *inner            `json:"nested"`
		Any    any               `json:"any"`
		ByKey  map[string]*inner `json:"by_key"`
		When   time.Time         `json:"when"`
	}

	out, err := json.Marshal(normalizeSlices(payload{
		Nested: &inner{},
		Any:    inner{},
		ByKey:  map[string]*inner{"a": {}},
	}))
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if strings.Contains(string(out), "null") {
		t.Errorf("Nil slices should encode as []: %s", out)
	}
}
