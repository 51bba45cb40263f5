package service

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-portal-api/internal/models"
	"github.com/noah-isme/campus-portal-api/internal/repository"
	"github.com/noah-isme/campus-portal-api/pkg/config"
	appErrors "github.com/noah-isme/campus-portal-api/pkg/errors"
)

type mockEligibilityResolver struct {
	result *EligibilityResult
	err    error
}

func (m *mockEligibilityResolver) Resolve(ctx context.Context, studentID, periodID string) (*EligibilityResult, error) {
	return m.result, m.err
}

type mockCourseClassifier struct {
	classification *models.CourseClassification
	err            error
	invalidated    []string
	invalidateErr  error
}

func (m *mockCourseClassifier) Classify(ctx context.Context, studentID, programID string) (*models.CourseClassification, error) {
	return m.classification, m.err
}

func (m *mockCourseClassifier) Invalidate(ctx context.Context, studentID string) error {
	m.invalidated = append(m.invalidated, studentID)
	return m.invalidateErr
}

type mockFinanceSeeder struct {
	scheduled [][2]string
	err       error
}

func (m *mockFinanceSeeder) Schedule(studentID, periodID string) error {
	m.scheduled = append(m.scheduled, [2]string{studentID, periodID})
	return m.err
}

// fakeRegistrationTx records writes in memory. Batches persist across
// transactions when the outer fake store commits; enrollments are kept per
// attempt so rollback discards them.
type fakeRegistrationTx struct {
	batches          map[models.BatchKey]*models.ClassBatch
	instructor       *models.Instructor
	locked           []models.BatchKey
	created          []*models.ClassBatch
	enrollments      []*models.Enrollment
	backfilled       map[string]time.Time
	createBatchErr   error
	createBatchOnce  bool
	conflictWinner   *models.ClassBatch
	enrollmentErrsAt int
}

func newFakeRegistrationTx() *fakeRegistrationTx {
	return &fakeRegistrationTx{
		batches:          map[models.BatchKey]*models.ClassBatch{},
		backfilled:       map[string]time.Time{},
		enrollmentErrsAt: -1,
	}
}

func (f *fakeRegistrationTx) LockBatchKey(ctx context.Context, key models.BatchKey) error {
	f.locked = append(f.locked, key)
	return nil
}

func (f *fakeRegistrationTx) FindScheduledBatch(ctx context.Context, key models.BatchKey) (*models.ClassBatch, error) {
	if b, ok := f.batches[key]; ok {
		return b, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeRegistrationTx) CreateBatch(ctx context.Context, batch *models.ClassBatch) error {
	if f.createBatchErr != nil {
		err := f.createBatchErr
		if f.createBatchOnce {
			f.createBatchErr = nil
			if f.conflictWinner != nil {
				key := models.BatchKey{
					CourseID:     batch.CourseID,
					ProgramType:  batch.ProgramType,
					PeriodNumber: batch.PeriodNumber,
					AcademicYear: batch.AcademicYear,
				}
				f.batches[key] = f.conflictWinner
			}
		}
		return err
	}
	batch.ID = uuid.NewString()
	key := models.BatchKey{
		CourseID:     batch.CourseID,
		ProgramType:  batch.ProgramType,
		PeriodNumber: batch.PeriodNumber,
		AcademicYear: batch.AcademicYear,
	}
	f.batches[key] = batch
	f.created = append(f.created, batch)
	return nil
}

func (f *fakeRegistrationTx) RandomActiveInstructor(ctx context.Context) (*models.Instructor, error) {
	if f.instructor == nil {
		return nil, sql.ErrNoRows
	}
	return f.instructor, nil
}

func (f *fakeRegistrationTx) BackfillPaymentDeadline(ctx context.Context, periodID string, deadline time.Time) error {
	if _, done := f.backfilled[periodID]; !done {
		f.backfilled[periodID] = deadline
	}
	return nil
}

func (f *fakeRegistrationTx) CreateEnrollment(ctx context.Context, enrollment *models.Enrollment) error {
	if f.enrollmentErrsAt >= 0 && len(f.enrollments) == f.enrollmentErrsAt {
		return fmt.Errorf("insert enrollment: connection reset")
	}
	f.enrollments = append(f.enrollments, enrollment)
	return nil
}

type fakeRegistrationStore struct {
	tx        *fakeRegistrationTx
	committed []*models.Enrollment
	beginErr  error
}

func (f *fakeRegistrationStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx repository.RegistrationTx) error) error {
	if f.beginErr != nil {
		return f.beginErr
	}
	f.tx.enrollments = nil
	if err := fn(ctx, f.tx); err != nil {
		return err
	}
	f.committed = append(f.committed, f.tx.enrollments...)
	return nil
}

type registrationFixture struct {
	svc        *RegistrationService
	elig       *mockEligibilityResolver
	classifier *mockCourseClassifier
	store      *fakeRegistrationStore
	seeder     *mockFinanceSeeder
	period     *models.AcademicPeriod
}

func newRegistrationFixture(t *testing.T, programType models.ProgramType) *registrationFixture {
	t.Helper()

	period := openPeriod()
	period.ProgramType = programType
	program := &models.Program{ID: "prog-1", Type: programType}

	elig := &mockEligibilityResolver{result: &EligibilityResult{
		Open:    true,
		Reason:  ReasonEligible,
		Program: program,
		Period:  period,
	}}
	classifier := &mockCourseClassifier{classification: &models.CourseClassification{
		Core: []models.SelectableCourse{
			{CourseID: "c-intro", Code: "CS101", Name: "Intro", CourseType: models.CourseTypeCore},
			{CourseID: "c-algo", Code: "CS201", Name: "Algorithms", CourseType: models.CourseTypeCore},
		},
		Elective: []models.SelectableCourse{
			{CourseID: "c-art", Code: "AR110", Name: "Art History", CourseType: models.CourseTypeElective},
			{CourseID: "c-music", Code: "MU120", Name: "Music Theory", CourseType: models.CourseTypeElective},
			{CourseID: "c-film", Code: "FL130", Name: "Film Studies", CourseType: models.CourseTypeElective},
		},
		SelectableIDs: map[string]bool{
			"c-intro": true, "c-algo": true, "c-art": true, "c-film": true,
		},
		MaxElectives: 2,
	}}
	store := &fakeRegistrationStore{tx: newFakeRegistrationTx()}
	seeder := &mockFinanceSeeder{}

	svc := NewRegistrationService(elig, classifier, store, seeder, config.RegistrationConfig{PaymentDeadlineDays: 14}, nil, zap.NewNop())
	svc.now = func() time.Time { return date(2026, time.January, 15) }

	return &registrationFixture{svc: svc, elig: elig, classifier: classifier, store: store, seeder: seeder, period: period}
}

func registerRequest(courseIDs ...string) RegisterRequest {
	return RegisterRequest{StudentID: "stu-1", PeriodID: "per-1", CourseIDs: courseIDs}
}

func TestRegisterHappyPathCreatesBatchesAndEnrollments(t *testing.T) {
	fx := newRegistrationFixture(t, models.ProgramTypeOnsite)

	result, err := fx.svc.Register(context.Background(), registerRequest("c-intro", "c-art"))
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 2, result.EnrolledCount)

	require.Len(t, fx.store.committed, 2)
	for _, e := range fx.store.committed {
		assert.Equal(t, "stu-1", e.StudentID)
		assert.Equal(t, models.EnrollmentStatusActive, e.Status)
		require.NotNil(t, e.TermID)
		assert.Equal(t, "per-1", *e.TermID)
		assert.Nil(t, e.BlockID)
	}

	// Every batch key was serialized before the find-or-create.
	assert.Len(t, fx.store.tx.locked, 2)
	require.Len(t, fx.store.tx.created, 2)
	assert.Equal(t, models.BatchStatusScheduled, fx.store.tx.created[0].Status)
	assert.Equal(t, "ON_CAMPUS", fx.store.tx.created[0].LocationType)

	assert.Equal(t, []string{"stu-1"}, fx.classifier.invalidated)
	require.Len(t, fx.seeder.scheduled, 1)
	assert.Equal(t, [2]string{"stu-1", "per-1"}, fx.seeder.scheduled[0])
}

func TestRegisterOnlineUsesBlockIDAndVirtualLocation(t *testing.T) {
	fx := newRegistrationFixture(t, models.ProgramTypeOnline)

	_, err := fx.svc.Register(context.Background(), registerRequest("c-intro"))
	require.NoError(t, err)

	require.Len(t, fx.store.committed, 1)
	e := fx.store.committed[0]
	require.NotNil(t, e.BlockID)
	assert.Equal(t, "per-1", *e.BlockID)
	assert.Nil(t, e.TermID)

	require.Len(t, fx.store.tx.created, 1)
	assert.Equal(t, "VIRTUAL", fx.store.tx.created[0].LocationType)
	assert.True(t, strings.HasPrefix(fx.store.tx.created[0].BatchCode, "ONL-01-CS101-"))
}

func TestRegisterReusesExistingBatch(t *testing.T) {
	fx := newRegistrationFixture(t, models.ProgramTypeOnsite)
	key := models.BatchKey{CourseID: "c-intro", ProgramType: models.ProgramTypeOnsite, PeriodNumber: 1, AcademicYear: "2025/2026"}
	fx.store.tx.batches[key] = &models.ClassBatch{ID: "batch-existing", Status: models.BatchStatusScheduled}

	_, err := fx.svc.Register(context.Background(), registerRequest("c-intro"))
	require.NoError(t, err)

	assert.Empty(t, fx.store.tx.created)
	require.Len(t, fx.store.committed, 1)
	assert.Equal(t, "batch-existing", fx.store.committed[0].ClassID)
}

func TestRegisterBatchConflictRetriesWithReRead(t *testing.T) {
	fx := newRegistrationFixture(t, models.ProgramTypeOnsite)
	fx.store.tx.createBatchErr = appErrors.Clone(appErrors.ErrBatchConflict, "")
	fx.store.tx.createBatchOnce = true
	fx.store.tx.conflictWinner = &models.ClassBatch{ID: "batch-winner", Status: models.BatchStatusScheduled}

	_, err := fx.svc.Register(context.Background(), registerRequest("c-intro"))
	require.NoError(t, err)

	require.Len(t, fx.store.committed, 1)
	assert.Equal(t, "batch-winner", fx.store.committed[0].ClassID)
}

func TestRegisterBatchConflictWithoutWinnerFails(t *testing.T) {
	fx := newRegistrationFixture(t, models.ProgramTypeOnsite)
	fx.store.tx.createBatchErr = appErrors.Clone(appErrors.ErrBatchConflict, "")

	_, err := fx.svc.Register(context.Background(), registerRequest("c-intro"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrBatchConflict.Code, appErrors.FromError(err).Code)
	assert.Empty(t, fx.store.committed)
}

func TestRegisterPartialFailureCommitsNothing(t *testing.T) {
	fx := newRegistrationFixture(t, models.ProgramTypeOnsite)
	fx.store.tx.enrollmentErrsAt = 1

	_, err := fx.svc.Register(context.Background(), registerRequest("c-intro", "c-algo"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrRegistrationFailed.Code, appErrors.FromError(err).Code)
	assert.Empty(t, fx.store.committed)
	assert.Empty(t, fx.seeder.scheduled)
	assert.Empty(t, fx.classifier.invalidated)
}

func TestRegisterElectiveQuota(t *testing.T) {
	cases := []struct {
		name    string
		max     int
		courses []string
		wantErr string
	}{
		{"at quota passes", 2, []string{"c-art", "c-film"}, ""},
		{"over quota rejected", 2, []string{"c-art", "c-film", "c-music"}, appErrors.ErrQuotaExceeded.Code},
		{"zero max means unbounded", 0, []string{"c-art", "c-film"}, ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fx := newRegistrationFixture(t, models.ProgramTypeOnsite)
			fx.classifier.classification.MaxElectives = tc.max
			fx.classifier.classification.SelectableIDs["c-music"] = true

			_, err := fx.svc.Register(context.Background(), registerRequest(tc.courses...))
			if tc.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tc.wantErr, appErrors.FromError(err).Code)
		})
	}
}

func TestRegisterQuotaCheckedBeforeAnyWrite(t *testing.T) {
	fx := newRegistrationFixture(t, models.ProgramTypeOnsite)
	fx.classifier.classification.SelectableIDs["c-music"] = true

	_, err := fx.svc.Register(context.Background(), registerRequest("c-intro", "c-art", "c-film", "c-music"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrQuotaExceeded.Code, appErrors.FromError(err).Code)
	assert.Empty(t, fx.store.tx.locked, "quota failure must precede the transaction")
	assert.Empty(t, fx.store.committed)
}

func TestRegisterInvalidSelections(t *testing.T) {
	cases := []struct {
		name    string
		courses []string
		wantMsg string
	}{
		{"duplicate course", []string{"c-intro", "c-intro"}, "more than once"},
		{"unknown course", []string{"c-ghost"}, "not available"},
		{"unmet prerequisite", []string{"c-music"}, "unmet prerequisite"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fx := newRegistrationFixture(t, models.ProgramTypeOnsite)

			_, err := fx.svc.Register(context.Background(), registerRequest(tc.courses...))
			require.Error(t, err)
			appErr := appErrors.FromError(err)
			assert.Equal(t, appErrors.ErrInvalidSelection.Code, appErr.Code)
			assert.Contains(t, appErr.Message, tc.wantMsg)
			assert.Empty(t, fx.store.committed)
		})
	}
}

func TestRegisterAlreadyRegistered(t *testing.T) {
	fx := newRegistrationFixture(t, models.ProgramTypeOnsite)
	fx.elig.result = &EligibilityResult{AlreadyRegistered: true, Reason: ReasonAlreadyRegistered}

	_, err := fx.svc.Register(context.Background(), registerRequest("c-intro"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrAlreadyRegistered.Code, appErrors.FromError(err).Code)
}

func TestRegisterIneligible(t *testing.T) {
	fx := newRegistrationFixture(t, models.ProgramTypeOnsite)
	fx.elig.result = &EligibilityResult{Open: false, Reason: ReasonFeeUnpaid}

	_, err := fx.svc.Register(context.Background(), registerRequest("c-intro"))
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrIneligible.Code, appErr.Code)
	assert.Contains(t, appErr.Message, "fee")
}

func TestRegisterValidation(t *testing.T) {
	fx := newRegistrationFixture(t, models.ProgramTypeOnsite)

	cases := []RegisterRequest{
		{PeriodID: "per-1", CourseIDs: []string{"c-intro"}},
		{StudentID: "stu-1", CourseIDs: []string{"c-intro"}},
		{StudentID: "stu-1", PeriodID: "per-1"},
		{StudentID: "stu-1", PeriodID: "per-1", CourseIDs: []string{""}},
	}
	for _, req := range cases {
		_, err := fx.svc.Register(context.Background(), req)
		require.Error(t, err)
		assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	}
}

func TestRegisterBackfillsPaymentDeadlineOnce(t *testing.T) {
	fx := newRegistrationFixture(t, models.ProgramTypeOnsite)
	fx.period.PaymentDeadline = nil

	_, err := fx.svc.Register(context.Background(), registerRequest("c-intro", "c-algo"))
	require.NoError(t, err)

	require.Len(t, fx.store.tx.backfilled, 1)
	want := fx.period.StartDate.AddDate(0, 0, 14)
	assert.Equal(t, want, fx.store.tx.backfilled["per-1"])
	for _, b := range fx.store.tx.created {
		require.NotNil(t, b.PaymentDeadline)
		assert.Equal(t, want, *b.PaymentDeadline)
	}
}

func TestRegisterSeedScheduleFailureIsNonFatal(t *testing.T) {
	fx := newRegistrationFixture(t, models.ProgramTypeOnsite)
	fx.seeder.err = fmt.Errorf("queue full")

	result, err := fx.svc.Register(context.Background(), registerRequest("c-intro"))
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.NotEmpty(t, result.SeedWarning)
	require.Len(t, fx.store.committed, 1)
}

func TestRegisterAssignsInstructorWhenAvailable(t *testing.T) {
	fx := newRegistrationFixture(t, models.ProgramTypeOnsite)
	fx.store.tx.instructor = &models.Instructor{ID: "inst-1", FullName: "Dr. Vega", Active: true}

	_, err := fx.svc.Register(context.Background(), registerRequest("c-intro"))
	require.NoError(t, err)

	require.Len(t, fx.store.tx.created, 1)
	require.NotNil(t, fx.store.tx.created[0].InstructorID)
	assert.Equal(t, "inst-1", *fx.store.tx.created[0].InstructorID)
}

func TestBatchCodeFormat(t *testing.T) {
	code := batchCode(models.ProgramTypeOnsite, 3, "CS101")
	require.True(t, strings.HasPrefix(code, "ONS-03-CS101-"))
	assert.Len(t, code, len("ONS-03-CS101-")+3)

	for _, ch := range code[len(code)-3:] {
		assert.Contains(t, batchCodeAlphabet, string(ch))
	}
}

// serializedRegistrationStore emulates the advisory key lock: the first
// LockBatchKey in a transaction blocks until the holding transaction
// finishes, so find-or-create sections never interleave for the same key.
type serializedRegistrationStore struct {
	mu        sync.Mutex
	batches   map[models.BatchKey]*models.ClassBatch
	created   int
	committed []*models.Enrollment
}

type serializedRegistrationTx struct {
	store       *serializedRegistrationStore
	locked      bool
	enrollments []*models.Enrollment
}

func (s *serializedRegistrationStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx repository.RegistrationTx) error) error {
	tx := &serializedRegistrationTx{store: s}
	defer func() {
		if tx.locked {
			s.mu.Unlock()
		}
	}()
	if err := fn(ctx, tx); err != nil {
		return err
	}
	s.committed = append(s.committed, tx.enrollments...)
	return nil
}

func (t *serializedRegistrationTx) LockBatchKey(ctx context.Context, key models.BatchKey) error {
	if !t.locked {
		t.store.mu.Lock()
		t.locked = true
	}
	return nil
}

func (t *serializedRegistrationTx) FindScheduledBatch(ctx context.Context, key models.BatchKey) (*models.ClassBatch, error) {
	if b, ok := t.store.batches[key]; ok {
		return b, nil
	}
	return nil, sql.ErrNoRows
}

func (t *serializedRegistrationTx) CreateBatch(ctx context.Context, batch *models.ClassBatch) error {
	batch.ID = uuid.NewString()
	t.store.batches[models.BatchKey{
		CourseID:     batch.CourseID,
		ProgramType:  batch.ProgramType,
		PeriodNumber: batch.PeriodNumber,
		AcademicYear: batch.AcademicYear,
	}] = batch
	t.store.created++
	return nil
}

func (t *serializedRegistrationTx) RandomActiveInstructor(ctx context.Context) (*models.Instructor, error) {
	return nil, sql.ErrNoRows
}

func (t *serializedRegistrationTx) BackfillPaymentDeadline(ctx context.Context, periodID string, deadline time.Time) error {
	return nil
}

func (t *serializedRegistrationTx) CreateEnrollment(ctx context.Context, enrollment *models.Enrollment) error {
	t.enrollments = append(t.enrollments, enrollment)
	return nil
}

type syncCourseClassifier struct {
	mu             sync.Mutex
	classification *models.CourseClassification
	invalidated    []string
}

func (m *syncCourseClassifier) Classify(ctx context.Context, studentID, programID string) (*models.CourseClassification, error) {
	return m.classification, nil
}

func (m *syncCourseClassifier) Invalidate(ctx context.Context, studentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invalidated = append(m.invalidated, studentID)
	return nil
}

type syncFinanceSeeder struct {
	mu        sync.Mutex
	scheduled int
}

func (m *syncFinanceSeeder) Schedule(studentID, periodID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scheduled++
	return nil
}

func TestRegisterConcurrentStudentsShareOneBatch(t *testing.T) {
	const students = 8

	period := openPeriod()
	period.PaymentDeadline = datePtr(2026, time.June, 1)
	program := &models.Program{ID: "prog-1", Type: models.ProgramTypeOnsite}

	classifier := &syncCourseClassifier{classification: &models.CourseClassification{
		Core: []models.SelectableCourse{
			{CourseID: "c-intro", Code: "CS101", Name: "Intro", CourseType: models.CourseTypeCore},
		},
		SelectableIDs: map[string]bool{"c-intro": true},
	}}
	store := &serializedRegistrationStore{batches: map[models.BatchKey]*models.ClassBatch{}}
	seeder := &syncFinanceSeeder{}

	svc := NewRegistrationService(
		&mockEligibilityResolver{result: &EligibilityResult{Open: true, Reason: ReasonEligible, Program: program, Period: period}},
		classifier,
		store,
		seeder,
		config.RegistrationConfig{PaymentDeadlineDays: 14},
		nil,
		zap.NewNop(),
	)
	svc.now = func() time.Time { return date(2026, time.January, 15) }

	var wg sync.WaitGroup
	errs := make([]error, students)
	for i := 0; i < students; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := RegisterRequest{
				StudentID: fmt.Sprintf("stu-%d", i),
				PeriodID:  "per-1",
				CourseIDs: []string{"c-intro"},
			}
			_, errs[i] = svc.Register(context.Background(), req)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		require.NoError(t, err, "registration %d", i)
	}

	// Exactly one transaction created the batch; everyone else reused it.
	assert.Equal(t, 1, store.created)
	require.Len(t, store.committed, students)
	classID := store.committed[0].ClassID
	for _, e := range store.committed {
		assert.Equal(t, classID, e.ClassID)
	}
	assert.Equal(t, students, seeder.scheduled)
}
