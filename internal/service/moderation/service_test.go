package moderation_test

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/careloop/consult-api/internal/model"
	"github.com/careloop/consult-api/internal/repository"
	"github.com/careloop/consult-api/internal/repository/memory"
	"github.com/careloop/consult-api/internal/service/consultation"
	"github.com/careloop/consult-api/internal/service/matching"
	"github.com/careloop/consult-api/internal/service/moderation"
	"github.com/careloop/consult-api/internal/service/notification"
	apperrors "github.com/careloop/consult-api/pkg/errors"
	"github.com/careloop/consult-api/pkg/logger"
	"github.com/careloop/consult-api/pkg/metrics"
)

type testEnv struct {
	svc           *moderation.Service
	matcher       *matching.Service
	consultations repository.ConsultationRepository
	doctors       *memory.DoctorRepository
	patients      *memory.PatientRepository
	notifier      notification.Service
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	consultations := memory.NewConsultationRepository()
	complaints := memory.NewComplaintRepository()
	doctors := memory.NewDoctorRepository()
	patients := memory.NewPatientRepository()
	health := memory.NewHealthProfileReader()
	notifications := memory.NewNotificationRepository()
	outbox := memory.NewOutboxRepository()

	log := logger.NewLogger(&logger.Config{
		Level:      logger.ErrorLevel,
		TimeFormat: time.RFC3339,
		Output:     io.Discard,
	})
	m := metrics.New("test")

	notifier := notification.NewService(notifications, outbox, log, m)
	matcher := matching.NewService(doctors, consultations)
	scheduler := consultation.NewService(consultations, doctors, patients, health, matcher, notifier, log, m)
	svc := moderation.NewService(complaints, consultations, doctors, scheduler, matcher, notifier, log)

	return &testEnv{
		svc:           svc,
		matcher:       matcher,
		consultations: consultations,
		doctors:       doctors,
		patients:      patients,
		notifier:      notifier,
	}
}

func (e *testEnv) seedDoctor() *model.Doctor {
	d := &model.Doctor{
		ID:             uuid.New(),
		Name:           "Dr. Chen",
		Specialization: model.SpecializationPharmacology,
		FeeCents:       5000,
		Active:         true,
	}
	e.doctors.Put(d)
	return d
}

func (e *testEnv) seedPatient() *model.Patient {
	p := &model.Patient{ID: uuid.New(), Name: "Alice Wong"}
	e.patients.Put(p)
	return p
}

func (e *testEnv) seedConsultation(t *testing.T, patientID, doctorID uuid.UUID, status model.ConsultationStatus) *model.Consultation {
	t.Helper()
	c := &model.Consultation{
		ID:        uuid.New(),
		PatientID: patientID,
		DoctorID:  doctorID,
		Medicine:  "metformin",
		Concern:   model.ConcernDosageQuestion,
		Status:    status,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	require.NoError(t, e.consultations.Create(context.Background(), c))
	return c
}

func asPatient(p *model.Patient) model.Actor {
	return model.Actor{ID: p.ID, Role: model.RolePatient}
}

func admin() model.Actor {
	return model.Actor{ID: uuid.New(), Role: model.RoleAdmin}
}

const longEnough = "The doctor did not show up for our scheduled consultation and never followed up afterwards."

func TestFileComplaintRequiresConsultationHistory(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	doctor := e.seedDoctor()
	patient := e.seedPatient()

	_, err := e.svc.FileComplaint(ctx, asPatient(patient), &model.FileComplaintRequest{
		DoctorID:    doctor.ID,
		Category:    model.ComplaintCategoryNoShow,
		Description: longEnough,
	})
	assert.True(t, apperrors.Is(err, apperrors.ErrPreconditionFailed))

	e.seedConsultation(t, patient.ID, doctor.ID, model.ConsultationStatusCompleted)

	c, err := e.svc.FileComplaint(ctx, asPatient(patient), &model.FileComplaintRequest{
		DoctorID:    doctor.ID,
		Category:    model.ComplaintCategoryNoShow,
		Description: longEnough,
	})
	require.NoError(t, err)
	assert.Equal(t, model.ComplaintStatusUnderReview, c.Status)
}

func TestFileComplaintDescriptionBounds(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	doctor := e.seedDoctor()
	patient := e.seedPatient()
	e.seedConsultation(t, patient.ID, doctor.ID, model.ConsultationStatusCompleted)

	_, err := e.svc.FileComplaint(ctx, asPatient(patient), &model.FileComplaintRequest{
		DoctorID:    doctor.ID,
		Category:    model.ComplaintCategoryNoShow,
		Description: "too short",
	})
	assert.True(t, apperrors.Is(err, apperrors.ErrValidation))

	_, err = e.svc.FileComplaint(ctx, asPatient(patient), &model.FileComplaintRequest{
		DoctorID:    doctor.ID,
		Category:    model.ComplaintCategoryNoShow,
		Description: strings.Repeat("x", 2001),
	})
	assert.True(t, apperrors.Is(err, apperrors.ErrValidation))
}

func TestResolveWithBlockCascades(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	doctor := e.seedDoctor()
	patient := e.seedPatient()
	e.seedConsultation(t, patient.ID, doctor.ID, model.ConsultationStatusCompleted)
	open := e.seedConsultation(t, patient.ID, doctor.ID, model.ConsultationStatusAccepted)

	filed, err := e.svc.FileComplaint(ctx, asPatient(patient), &model.FileComplaintRequest{
		DoctorID:    doctor.ID,
		Category:    model.ComplaintCategoryNoShow,
		Description: longEnough,
	})
	require.NoError(t, err)

	resolved, err := e.svc.Resolve(ctx, admin(), filed.ID, &model.ResolveComplaintRequest{
		Resolution:  "Pattern of missed appointments confirmed.",
		ActionTaken: model.ComplaintActionDoctorBlocked,
	})
	require.NoError(t, err)
	assert.Equal(t, model.ComplaintStatusResolved, resolved.Status)

	d, err := e.doctors.Get(ctx, doctor.ID)
	require.NoError(t, err)
	assert.True(t, d.Blocked)

	c, err := e.consultations.Get(ctx, open.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ConsultationStatusCancelled, c.Status)
	require.NotNil(t, c.CancelReason)
	assert.Equal(t, "doctor account suspended", *c.CancelReason)

	// The blocked doctor no longer receives assignments.
	_, err = e.matcher.Assign(ctx, model.ConcernDosageQuestion, nil)
	assert.True(t, apperrors.Is(err, apperrors.ErrNoDoctorAvailable))

	// The complainant hears about the outcome.
	list, err := e.notifier.ListUnread(ctx, patient.ID)
	require.NoError(t, err)
	var sawResolution bool
	for _, n := range list {
		if n.Type == model.NotificationComplaintResolved {
			sawResolution = true
		}
	}
	assert.True(t, sawResolution)
}

func TestResolveIsTerminal(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	doctor := e.seedDoctor()
	patient := e.seedPatient()
	e.seedConsultation(t, patient.ID, doctor.ID, model.ConsultationStatusCompleted)

	filed, err := e.svc.FileComplaint(ctx, asPatient(patient), &model.FileComplaintRequest{
		DoctorID:    doctor.ID,
		Category:    model.ComplaintCategoryNoShow,
		Description: longEnough,
	})
	require.NoError(t, err)

	_, err = e.svc.Resolve(ctx, admin(), filed.ID, &model.ResolveComplaintRequest{
		Resolution:  "Warning issued.",
		ActionTaken: model.ComplaintActionWarning,
	})
	require.NoError(t, err)

	_, err = e.svc.Resolve(ctx, admin(), filed.ID, &model.ResolveComplaintRequest{
		Resolution:  "Trying again.",
		ActionTaken: model.ComplaintActionNone,
	})
	assert.True(t, apperrors.Is(err, apperrors.ErrConflict))
}

func TestResolveAdminOnly(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	doctor := e.seedDoctor()
	patient := e.seedPatient()
	e.seedConsultation(t, patient.ID, doctor.ID, model.ConsultationStatusCompleted)

	filed, err := e.svc.FileComplaint(ctx, asPatient(patient), &model.FileComplaintRequest{
		DoctorID:    doctor.ID,
		Category:    model.ComplaintCategoryNoShow,
		Description: longEnough,
	})
	require.NoError(t, err)

	_, err = e.svc.Resolve(ctx, asPatient(patient), filed.ID, &model.ResolveComplaintRequest{
		Resolution:  "self service",
		ActionTaken: model.ComplaintActionNone,
	})
	assert.True(t, apperrors.Is(err, apperrors.ErrUnauthorized))
}
