package testutil

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"marks-access/internal/email"
	"marks-access/internal/models"
)

// ErrInjected is returned by fakes configured to fail
var ErrInjected = errors.New("injected failure")

func lower(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// MemoryRecordStore is an in-memory record store
type MemoryRecordStore struct {
	mu      sync.Mutex
	nextID  int64
	records []models.StudentPaperRecord
	Fail    bool
}

// NewMemoryRecordStore seeds a store with records, assigning ids in order
func NewMemoryRecordStore(records ...models.StudentPaperRecord) *MemoryRecordStore {
	s := &MemoryRecordStore{}
	for i := range records {
		rec := records[i]
		_ = s.Upsert(context.Background(), &rec)
	}
	return s
}

func (s *MemoryRecordStore) filter(keep func(models.StudentPaperRecord) bool) ([]models.StudentPaperRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Fail {
		return nil, ErrInjected
	}
	var out []models.StudentPaperRecord
	for _, rec := range s.records {
		if keep(rec) {
			out = append(out, copyRecord(rec))
		}
	}
	return out, nil
}

// ListAll returns every record
func (s *MemoryRecordStore) ListAll(_ context.Context) ([]models.StudentPaperRecord, error) {
	return s.filter(func(models.StudentPaperRecord) bool { return true })
}

// ListByFaculty returns a faculty's records
func (s *MemoryRecordStore) ListByFaculty(_ context.Context, facultyEmail string) ([]models.StudentPaperRecord, error) {
	return s.filter(func(r models.StudentPaperRecord) bool { return lower(r.FacultyEmail) == lower(facultyEmail) })
}

// ListByRegistrationNumber returns one student's records
func (s *MemoryRecordStore) ListByRegistrationNumber(_ context.Context, regd string) ([]models.StudentPaperRecord, error) {
	return s.filter(func(r models.StudentPaperRecord) bool { return r.RegistrationNumber == strings.TrimSpace(regd) })
}

// UpdateMarks writes marks while verified still equals expectVerified
func (s *MemoryRecordStore) UpdateMarks(_ context.Context, id int64, marks float64, expectVerified bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Fail {
		return false, ErrInjected
	}
	for i := range s.records {
		if s.records[i].ID == id && s.records[i].Verified == expectVerified {
			m := marks
			s.records[i].Marks = &m
			s.records[i].Verified = false
			return true, nil
		}
	}
	return false, nil
}

// MarkVerified verifies an unverified row that has marks
func (s *MemoryRecordStore) MarkVerified(_ context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Fail {
		return false, ErrInjected
	}
	for i := range s.records {
		if s.records[i].ID == id && !s.records[i].Verified && s.records[i].Marks != nil {
			s.records[i].Verified = true
			return true, nil
		}
	}
	return false, nil
}

// Upsert inserts or replaces on (faculty, student, paper)
func (s *MemoryRecordStore) Upsert(_ context.Context, rec *models.StudentPaperRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Fail {
		return ErrInjected
	}
	rec.FacultyEmail = lower(rec.FacultyEmail)
	for i := range s.records {
		r := s.records[i]
		if r.FacultyEmail == rec.FacultyEmail && r.RegistrationNumber == rec.RegistrationNumber && r.PaperCode == rec.PaperCode {
			rec.ID = r.ID
			s.records[i] = copyRecord(*rec)
			return nil
		}
	}
	s.nextID++
	rec.ID = s.nextID
	s.records = append(s.records, copyRecord(*rec))
	return nil
}

// Get returns a copy of the record with id
func (s *MemoryRecordStore) Get(id int64) (models.StudentPaperRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range s.records {
		if rec.ID == id {
			return copyRecord(rec), true
		}
	}
	return models.StudentPaperRecord{}, false
}

func copyRecord(r models.StudentPaperRecord) models.StudentPaperRecord {
	if r.Marks != nil {
		m := *r.Marks
		r.Marks = &m
	}
	if r.MaxMarks != nil {
		m := *r.MaxMarks
		r.MaxMarks = &m
	}
	return r
}

// MemoryEditRequestStore is an in-memory edit request ledger
type MemoryEditRequestStore struct {
	mu       sync.Mutex
	requests []models.EditAccessRequest
	Fail     bool
}

// NewMemoryEditRequestStore creates an empty ledger
func NewMemoryEditRequestStore() *MemoryEditRequestStore {
	return &MemoryEditRequestStore{}
}

// Create appends a request, allowing one Pending request per pair
func (s *MemoryEditRequestStore) Create(_ context.Context, req *models.EditAccessRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Fail {
		return ErrInjected
	}
	c := *req
	c.FacultyEmail = lower(c.FacultyEmail)
	for _, r := range s.requests {
		if r.RequestID == req.RequestID {
			return errors.New("duplicate request id")
		}
		if c.Status == models.RequestStatusPending && r.Status == models.RequestStatusPending &&
			r.FacultyEmail == c.FacultyEmail && r.RegistrationNumber == c.RegistrationNumber {
			return models.ErrDuplicateRequest
		}
	}
	s.requests = append(s.requests, c)
	return nil
}

// GetByID returns nil, nil when absent
func (s *MemoryEditRequestStore) GetByID(_ context.Context, requestID string) (*models.EditAccessRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Fail {
		return nil, ErrInjected
	}
	for _, r := range s.requests {
		if r.RequestID == requestID {
			c := r
			return &c, nil
		}
	}
	return nil, nil
}

// List returns requests newest first, optionally filtered by status
func (s *MemoryEditRequestStore) List(_ context.Context, status string) ([]models.EditAccessRequest, error) {
	return s.filter(func(r models.EditAccessRequest) bool { return status == "" || r.Status == status })
}

// ListByFaculty returns a faculty's requests newest first
func (s *MemoryEditRequestStore) ListByFaculty(_ context.Context, facultyEmail string) ([]models.EditAccessRequest, error) {
	return s.filter(func(r models.EditAccessRequest) bool { return r.FacultyEmail == lower(facultyEmail) })
}

func (s *MemoryEditRequestStore) filter(keep func(models.EditAccessRequest) bool) ([]models.EditAccessRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Fail {
		return nil, ErrInjected
	}
	var out []models.EditAccessRequest
	for _, r := range s.requests {
		if keep(r) {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].RequestTime.After(out[j].RequestTime) })
	return out, nil
}

// TransitionFromPending moves a Pending request to status
func (s *MemoryEditRequestStore) TransitionFromPending(_ context.Context, requestID, status, note string, unlockUntil *time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Fail {
		return false, ErrInjected
	}
	for i := range s.requests {
		r := &s.requests[i]
		if r.RequestID != requestID || r.Status != models.RequestStatusPending {
			continue
		}
		r.UnlockUntil = copyTime(unlockUntil)
		r.ActionNotes = appendNote(r.ActionNotes, note)
		r.Status = status
		return true, nil
	}
	return false, nil
}

// RelockApproved completes every Approved request for the pair
func (s *MemoryEditRequestStore) RelockApproved(_ context.Context, facultyEmail, regd string, unlockUntil time.Time, note string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Fail {
		return 0, ErrInjected
	}
	var n int64
	for i := range s.requests {
		r := &s.requests[i]
		if r.FacultyEmail != lower(facultyEmail) || r.RegistrationNumber != regd || r.Status != models.RequestStatusApproved {
			continue
		}
		until := unlockUntil
		r.UnlockUntil = &until
		r.ActionNotes = appendNote(r.ActionNotes, note)
		r.Status = models.RequestStatusCompleted
		n++
	}
	return n, nil
}

// All returns a snapshot of every stored request
func (s *MemoryEditRequestStore) All() []models.EditAccessRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.EditAccessRequest(nil), s.requests...)
}

func appendNote(existing, note string) string {
	if existing == "" {
		return note
	}
	return existing + " | " + note
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

// MemoryDeadlineStore is an in-memory deadline table
type MemoryDeadlineStore struct {
	mu        sync.Mutex
	deadlines map[string]models.FacultyDeadline
	Fail      bool
}

// NewMemoryDeadlineStore creates an empty deadline table
func NewMemoryDeadlineStore() *MemoryDeadlineStore {
	return &MemoryDeadlineStore{deadlines: make(map[string]models.FacultyDeadline)}
}

// Upsert replaces the faculty's deadline
func (s *MemoryDeadlineStore) Upsert(_ context.Context, d *models.FacultyDeadline) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Fail {
		return ErrInjected
	}
	c := *d
	c.FacultyEmail = lower(c.FacultyEmail)
	s.deadlines[c.FacultyEmail] = c
	return nil
}

// Get returns nil, nil when absent
func (s *MemoryDeadlineStore) Get(_ context.Context, facultyEmail string) (*models.FacultyDeadline, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Fail {
		return nil, ErrInjected
	}
	d, ok := s.deadlines[lower(facultyEmail)]
	if !ok {
		return nil, nil
	}
	return &d, nil
}

// List returns deadlines ordered by due date then email
func (s *MemoryDeadlineStore) List(_ context.Context) ([]models.FacultyDeadline, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Fail {
		return nil, ErrInjected
	}
	out := make([]models.FacultyDeadline, 0, len(s.deadlines))
	for _, d := range s.deadlines {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].DueDate.Equal(out[j].DueDate) {
			return out[i].DueDate.Before(out[j].DueDate)
		}
		return out[i].FacultyEmail < out[j].FacultyEmail
	})
	return out, nil
}

func (s *MemoryDeadlineStore) update(facultyEmail string, fn func(d *models.FacultyDeadline) bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Fail {
		return false, ErrInjected
	}
	d, ok := s.deadlines[lower(facultyEmail)]
	if !ok {
		return false, nil
	}
	if !fn(&d) {
		return false, nil
	}
	s.deadlines[lower(facultyEmail)] = d
	return true, nil
}

// UpdateStats stores cached totals
func (s *MemoryDeadlineStore) UpdateStats(_ context.Context, facultyEmail string, stats models.FacultyStats) error {
	_, err := s.update(facultyEmail, func(d *models.FacultyDeadline) bool {
		d.TotalStudents = stats.TotalStudents
		d.StudentsWithMarks = stats.StudentsWithMarks
		d.StudentsVerified = stats.StudentsVerified
		return true
	})
	return err
}

// UpdateStatus changes status only while it equals from
func (s *MemoryDeadlineStore) UpdateStatus(_ context.Context, facultyEmail, from, to string) (bool, error) {
	return s.update(facultyEmail, func(d *models.FacultyDeadline) bool {
		if d.CompletionStatus != from {
			return false
		}
		d.CompletionStatus = to
		return true
	})
}

// RecordReminder stamps and counts a reminder
func (s *MemoryDeadlineStore) RecordReminder(_ context.Context, facultyEmail string, sentAt time.Time) error {
	_, err := s.update(facultyEmail, func(d *models.FacultyDeadline) bool {
		t := sentAt
		d.LastReminderSent = &t
		d.ReminderCount++
		return true
	})
	return err
}

// Confirm marks the deadline Confirmed unless it already is
func (s *MemoryDeadlineStore) Confirm(_ context.Context, facultyEmail string, at time.Time) (bool, error) {
	return s.update(facultyEmail, func(d *models.FacultyDeadline) bool {
		if d.CompletionStatus == models.CompletionConfirmed {
			return false
		}
		t := at
		d.CompletionConfirmedDate = &t
		d.CompletionStatus = models.CompletionConfirmed
		return true
	})
}

// MemoryPropertyStore is an in-memory key/value store
type MemoryPropertyStore struct {
	mu     sync.Mutex
	values map[string]string
	Fail   bool
}

// NewMemoryPropertyStore creates an empty property store
func NewMemoryPropertyStore() *MemoryPropertyStore {
	return &MemoryPropertyStore{values: make(map[string]string)}
}

// Get returns the value under key
func (s *MemoryPropertyStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Fail {
		return "", false, ErrInjected
	}
	v, ok := s.values[key]
	return v, ok, nil
}

// Set stores value under key
func (s *MemoryPropertyStore) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Fail {
		return ErrInjected
	}
	s.values[key] = value
	return nil
}

// SetIfAbsent stores value unless key is already present
func (s *MemoryPropertyStore) SetIfAbsent(_ context.Context, key, value string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Fail {
		return false, ErrInjected
	}
	if _, ok := s.values[key]; ok {
		return false, nil
	}
	s.values[key] = value
	return true, nil
}

// Delete removes key
func (s *MemoryPropertyStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Fail {
		return ErrInjected
	}
	delete(s.values, key)
	return nil
}

// List returns sorted keys with prefix
func (s *MemoryPropertyStore) List(_ context.Context, prefix string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Fail {
		return nil, ErrInjected
	}
	var keys []string
	for k := range s.values {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// MemoryAuditStore is an in-memory audit log
type MemoryAuditStore struct {
	mu   sync.Mutex
	logs []models.AuditLog
}

// NewMemoryAuditStore creates an empty audit log
func NewMemoryAuditStore() *MemoryAuditStore {
	return &MemoryAuditStore{}
}

// Create appends an entry
func (s *MemoryAuditStore) Create(_ context.Context, log *models.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	log.ID = int64(len(s.logs) + 1)
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now()
	}
	s.logs = append(s.logs, *log)
	return nil
}

// List returns entries newest first
func (s *MemoryAuditStore) List(_ context.Context, limit, offset int) ([]models.AuditLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.AuditLog, 0, len(s.logs))
	for i := len(s.logs) - 1; i >= 0; i-- {
		out = append(out, s.logs[i])
	}
	if offset >= len(out) {
		return []models.AuditLog{}, nil
	}
	return out[offset:min(offset+limit, len(out))], nil
}

// Notification is one message captured by RecordingNotifier
type Notification struct {
	Kind string
	To   string
	OTP  string
	Data any
}

// RecordingNotifier captures notifications instead of sending them
type RecordingNotifier struct {
	mu         sync.Mutex
	Sent       []Notification
	Quota      int
	FailKinds  map[string]bool
	AdminEmail string
}

// NewRecordingNotifier creates a notifier with a generous quota
func NewRecordingNotifier() *RecordingNotifier {
	return &RecordingNotifier{Quota: 1000, FailKinds: map[string]bool{}, AdminEmail: AdminEmail}
}

func (n *RecordingNotifier) record(kind, to, otp string, data any) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.FailKinds[kind] {
		return ErrInjected
	}
	if n.Quota <= 0 {
		return email.ErrQuotaExceeded
	}
	n.Quota--
	n.Sent = append(n.Sent, Notification{Kind: kind, To: to, OTP: otp, Data: data})
	return nil
}

// Count returns how many messages of kind were sent
func (n *RecordingNotifier) Count(kind string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, s := range n.Sent {
		if s.Kind == kind {
			c++
		}
	}
	return c
}

// Last returns the most recent message of kind
func (n *RecordingNotifier) Last(kind string) (Notification, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i := len(n.Sent) - 1; i >= 0; i-- {
		if n.Sent[i].Kind == kind {
			return n.Sent[i], true
		}
	}
	return Notification{}, false
}

func (n *RecordingNotifier) SendOTP(_ context.Context, to, otp string) error {
	return n.record(models.EmailTypeOTP, to, otp, nil)
}

func (n *RecordingNotifier) SendEditRequestNotification(_ context.Context, facultyEmail string, items []email.EditRequestItem) error {
	return n.record(models.EmailTypeEditRequest, n.AdminEmail, "", items)
}

func (n *RecordingNotifier) SendEditApproval(_ context.Context, req *models.EditAccessRequest) error {
	return n.record(models.EmailTypeEditApproval, req.FacultyEmail, "", *req)
}

func (n *RecordingNotifier) SendEditDisapproval(_ context.Context, req *models.EditAccessRequest, reason string) error {
	return n.record(models.EmailTypeEditDisapproval, req.FacultyEmail, "", reason)
}

func (n *RecordingNotifier) SendDeadlineReminder(_ context.Context, r email.Reminder) error {
	return n.record(models.EmailTypeDeadlineReminder, r.FacultyEmail, r.OTP, r)
}

func (n *RecordingNotifier) SendCompletionConfirmation(_ context.Context, to string, stats models.FacultyStats) error {
	return n.record(models.EmailTypeCompletionConfirmed, to, "", stats)
}

func (n *RecordingNotifier) SendAdminCompletionReport(_ context.Context, report *models.CompletionReport) error {
	return n.record(models.EmailTypeAdminCompletion, n.AdminEmail, "", *report)
}

func (n *RecordingNotifier) SendPendingDigest(_ context.Context, requests []models.EditAccessRequest) error {
	if len(requests) == 0 {
		return nil
	}
	return n.record(models.EmailTypePendingDigest, n.AdminEmail, "", requests)
}

func (n *RecordingNotifier) SendAdminSelectiveAlert(_ context.Context, skipped []email.SkippedFaculty, _ int) error {
	if len(skipped) == 0 {
		return nil
	}
	return n.record(models.EmailTypeAdminSelectiveAlert, n.AdminEmail, "", skipped)
}

func (n *RecordingNotifier) RemainingQuota(_ context.Context) (int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.Quota, nil
}
