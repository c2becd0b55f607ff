package consultation_test

import (
	"context"
	"io"
	"sync"
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
	"github.com/careloop/consult-api/internal/service/notification"
	apperrors "github.com/careloop/consult-api/pkg/errors"
	"github.com/careloop/consult-api/pkg/logger"
	"github.com/careloop/consult-api/pkg/metrics"
)

type testEnv struct {
	svc           *consultation.Service
	consultations repository.ConsultationRepository
	doctors       *memory.DoctorRepository
	patients      *memory.PatientRepository
	health        *memory.HealthProfileReader
	notifications repository.NotificationRepository
	notifier      notification.Service
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	consultations := memory.NewConsultationRepository()
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
	svc := consultation.NewService(consultations, doctors, patients, health, matcher, notifier, log, m)

	return &testEnv{
		svc:           svc,
		consultations: consultations,
		doctors:       doctors,
		patients:      patients,
		health:        health,
		notifications: notifications,
		notifier:      notifier,
	}
}

func (e *testEnv) seedDoctor(spec model.Specialization) *model.Doctor {
	d := &model.Doctor{
		ID:             uuid.New(),
		Name:           "Dr. Chen",
		Email:          "chen@example.com",
		Specialization: spec,
		FeeCents:       5000,
		Active:         true,
	}
	e.doctors.Put(d)
	return d
}

func (e *testEnv) seedPatient() *model.Patient {
	p := &model.Patient{
		ID:    uuid.New(),
		Name:  "Alice Wong",
		Email: "alice@example.com",
	}
	e.patients.Put(p)
	return p
}

func (e *testEnv) request(t *testing.T, patient *model.Patient, doctorID *uuid.UUID) *model.Consultation {
	t.Helper()
	c, err := e.svc.Request(context.Background(), asPatient(patient), &model.CreateConsultationRequest{
		Medicine:    "metformin",
		Concern:     model.ConcernDosageQuestion,
		Description: "Unsure whether to take with meals",
		DoctorID:    doctorID,
	})
	require.NoError(t, err)
	return c
}

func asPatient(p *model.Patient) model.Actor {
	return model.Actor{ID: p.ID, Role: model.RolePatient}
}

func asDoctor(d *model.Doctor) model.Actor {
	return model.Actor{ID: d.ID, Role: model.RoleDoctor}
}

func admin() model.Actor {
	return model.Actor{ID: uuid.New(), Role: model.RoleAdmin}
}

func unreadTypes(t *testing.T, e *testEnv, userID uuid.UUID) []model.NotificationType {
	t.Helper()
	list, err := e.notifier.ListUnread(context.Background(), userID)
	require.NoError(t, err)
	types := make([]model.NotificationType, 0, len(list))
	for _, n := range list {
		types = append(types, n.Type)
	}
	return types
}

func TestRequestAssignsDoctorByConcern(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	pharma := e.seedDoctor(model.SpecializationPharmacology)
	e.seedDoctor(model.SpecializationPsychiatry)
	patient := e.seedPatient()

	c, err := e.svc.Request(ctx, asPatient(patient), &model.CreateConsultationRequest{
		Medicine:    "metformin",
		Concern:     model.ConcernDosageQuestion,
		Description: "Unsure whether to take with meals",
	})
	require.NoError(t, err)

	assert.Equal(t, model.ConsultationStatusPending, c.Status)
	assert.Equal(t, pharma.ID, c.DoctorID)
	assert.Equal(t, pharma.FeeCents, c.FeeCents)
	assert.Nil(t, c.HealthSnapshot)
	assert.Equal(t, 0, c.EditCount)

	assert.Contains(t, unreadTypes(t, e, pharma.ID), model.NotificationConsultationRequested)
}

func TestRequestOnlyPatients(t *testing.T) {
	e := newTestEnv(t)
	d := e.seedDoctor(model.SpecializationGeneralPractice)

	_, err := e.svc.Request(context.Background(), asDoctor(d), &model.CreateConsultationRequest{
		Medicine:    "ibuprofen",
		Concern:     model.ConcernOther,
		Description: "test",
	})
	assert.True(t, apperrors.Is(err, apperrors.ErrUnauthorized))
}

func TestRequestSnapshotsHealthData(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	e.seedDoctor(model.SpecializationPharmacology)
	patient := e.seedPatient()
	e.health.Put(patient.ID, &model.HealthSnapshot{
		CapturedAt: time.Now(),
		Conditions: []string{"type 2 diabetes"},
		Allergies:  []string{"penicillin"},
	})

	c, err := e.svc.Request(ctx, asPatient(patient), &model.CreateConsultationRequest{
		Medicine:        "metformin",
		Concern:         model.ConcernDosageQuestion,
		Description:     "dosage check",
		ShareHealthData: true,
	})
	require.NoError(t, err)
	require.NotNil(t, c.HealthSnapshot)
	assert.Equal(t, []string{"type 2 diabetes"}, c.HealthSnapshot.Conditions)
	assert.Equal(t, []string{"penicillin"}, c.HealthSnapshot.Allergies)
}

func TestRequestExplicitDoctorMustBeAssignable(t *testing.T) {
	e := newTestEnv(t)
	patient := e.seedPatient()

	inactive := e.seedDoctor(model.SpecializationPharmacology)
	inactive.Active = false
	e.doctors.Put(inactive)

	_, err := e.svc.Request(context.Background(), asPatient(patient), &model.CreateConsultationRequest{
		Medicine:    "metformin",
		Concern:     model.ConcernDosageQuestion,
		Description: "dosage check",
		DoctorID:    &inactive.ID,
	})
	assert.True(t, apperrors.Is(err, apperrors.ErrDoctorUnavailable))
}

func TestAcceptSchedulesConsultation(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	doctor := e.seedDoctor(model.SpecializationPharmacology)
	patient := e.seedPatient()
	c := e.request(t, patient, nil)

	when := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	updated, err := e.svc.Accept(ctx, asDoctor(doctor), c.ID, &model.AcceptConsultationRequest{
		MeetingLink:   "https://meet.example.com/abc",
		ScheduledTime: &when,
	})
	require.NoError(t, err)

	assert.Equal(t, model.ConsultationStatusAccepted, updated.Status)
	require.NotNil(t, updated.ScheduledTime)
	assert.True(t, when.Equal(*updated.ScheduledTime))
	require.NotNil(t, updated.MeetingLink)
	assert.Equal(t, "https://meet.example.com/abc", *updated.MeetingLink)

	assert.Contains(t, unreadTypes(t, e, patient.ID), model.NotificationConsultationAccepted)
}

func TestAcceptRequiresTime(t *testing.T) {
	e := newTestEnv(t)
	doctor := e.seedDoctor(model.SpecializationPharmacology)
	patient := e.seedPatient()
	c := e.request(t, patient, nil)

	_, err := e.svc.Accept(context.Background(), asDoctor(doctor), c.ID, &model.AcceptConsultationRequest{
		MeetingLink: "https://meet.example.com/abc",
	})
	assert.True(t, apperrors.Is(err, apperrors.ErrPreconditionFailed))
}

func TestAcceptOnlyAssignedDoctor(t *testing.T) {
	e := newTestEnv(t)
	e.seedDoctor(model.SpecializationPharmacology)
	patient := e.seedPatient()
	c := e.request(t, patient, nil)

	other := model.Actor{ID: uuid.New(), Role: model.RoleDoctor}
	when := time.Now().Add(24 * time.Hour)
	_, err := e.svc.Accept(context.Background(), other, c.ID, &model.AcceptConsultationRequest{
		MeetingLink:   "https://meet.example.com/abc",
		ScheduledTime: &when,
	})
	assert.True(t, apperrors.Is(err, apperrors.ErrUnauthorized))
}

func TestRejectIsTerminal(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	doctor := e.seedDoctor(model.SpecializationPharmacology)
	patient := e.seedPatient()
	c := e.request(t, patient, nil)

	updated, err := e.svc.Reject(ctx, asDoctor(doctor), c.ID, "outside my specialty")
	require.NoError(t, err)
	assert.Equal(t, model.ConsultationStatusRejected, updated.Status)
	require.NotNil(t, updated.DoctorResponse)
	assert.Equal(t, "outside my specialty", *updated.DoctorResponse)
	assert.NotNil(t, updated.RespondedAt)
	assert.Nil(t, updated.ScheduledTime)
	assert.Nil(t, updated.MeetingLink)

	when := time.Now().Add(24 * time.Hour)
	_, err = e.svc.Accept(ctx, asDoctor(doctor), c.ID, &model.AcceptConsultationRequest{
		MeetingLink:   "https://meet.example.com/abc",
		ScheduledTime: &when,
	})
	assert.True(t, apperrors.Is(err, apperrors.ErrPreconditionFailed))

	assert.Contains(t, unreadTypes(t, e, patient.ID), model.NotificationConsultationRejected)
}

func TestPostponeConfirmAcceptCycle(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	doctor := e.seedDoctor(model.SpecializationPharmacology)
	patient := e.seedPatient()

	preferred := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	c, err := e.svc.Request(ctx, asPatient(patient), &model.CreateConsultationRequest{
		Medicine:      "metformin",
		Concern:       model.ConcernDosageQuestion,
		Description:   "dosage check",
		PreferredTime: &preferred,
	})
	require.NoError(t, err)

	proposed := time.Date(2025, 3, 3, 14, 0, 0, 0, time.UTC)
	postponed, err := e.svc.Postpone(ctx, asDoctor(doctor), c.ID, &model.PostponeConsultationRequest{
		ScheduledTime: proposed,
		Reason:        "fully booked that morning",
	})
	require.NoError(t, err)

	assert.Equal(t, model.ConsultationStatusRescheduled, postponed.Status)
	assert.True(t, postponed.RequiresConfirmation)
	assert.False(t, postponed.AwaitingDoctorLink)
	assert.Nil(t, postponed.MeetingLink)
	require.NotNil(t, postponed.PreviousScheduledTime)
	assert.True(t, preferred.Equal(*postponed.PreviousScheduledTime))
	require.NotNil(t, postponed.ScheduledTime)
	assert.True(t, proposed.Equal(*postponed.ScheduledTime))
	require.NotNil(t, postponed.RescheduledBy)
	assert.Equal(t, model.RescheduledByDoctor, *postponed.RescheduledBy)

	confirmed, err := e.svc.ConfirmReschedule(ctx, asPatient(patient), c.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ConsultationStatusRescheduled, confirmed.Status)
	assert.False(t, confirmed.RequiresConfirmation)
	assert.True(t, confirmed.AwaitingDoctorLink)
	assert.Nil(t, confirmed.MeetingLink)
	assert.Contains(t, unreadTypes(t, e, doctor.ID), model.NotificationRescheduleConfirmed)

	// A second confirmation has nothing left to confirm.
	_, err = e.svc.ConfirmReschedule(ctx, asPatient(patient), c.ID)
	assert.True(t, apperrors.Is(err, apperrors.ErrPreconditionFailed))

	accepted, err := e.svc.Accept(ctx, asDoctor(doctor), c.ID, &model.AcceptConsultationRequest{
		MeetingLink: "https://meet.example.com/fresh",
	})
	require.NoError(t, err)
	assert.Equal(t, model.ConsultationStatusAccepted, accepted.Status)
	assert.False(t, accepted.AwaitingDoctorLink)
	require.NotNil(t, accepted.MeetingLink)
	assert.Equal(t, "https://meet.example.com/fresh", *accepted.MeetingLink)
	require.NotNil(t, accepted.ScheduledTime)
	assert.True(t, proposed.Equal(*accepted.ScheduledTime))
}

func TestCounterProposeReturnsToPending(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	doctor := e.seedDoctor(model.SpecializationPharmacology)
	patient := e.seedPatient()

	preferred := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	c, err := e.svc.Request(ctx, asPatient(patient), &model.CreateConsultationRequest{
		Medicine:      "metformin",
		Concern:       model.ConcernDosageQuestion,
		Description:   "dosage check",
		PreferredTime: &preferred,
	})
	require.NoError(t, err)

	proposed := time.Date(2025, 3, 3, 14, 0, 0, 0, time.UTC)
	_, err = e.svc.Postpone(ctx, asDoctor(doctor), c.ID, &model.PostponeConsultationRequest{
		ScheduledTime: proposed,
		Reason:        "fully booked that morning",
	})
	require.NoError(t, err)

	counter := time.Date(2025, 3, 2, 9, 0, 0, 0, time.UTC)
	updated, err := e.svc.CounterPropose(ctx, asPatient(patient), c.ID, &model.CounterProposeRequest{
		PreferredTime: counter,
	})
	require.NoError(t, err)

	assert.Equal(t, model.ConsultationStatusPending, updated.Status)
	assert.Nil(t, updated.ScheduledTime)
	assert.Nil(t, updated.MeetingLink)
	require.NotNil(t, updated.PreferredTime)
	assert.True(t, counter.Equal(*updated.PreferredTime))
	require.NotNil(t, updated.PreviousScheduledTime)
	assert.True(t, proposed.Equal(*updated.PreviousScheduledTime))
	assert.True(t, updated.PatientRequestedChanges)
	assert.Equal(t, 1, updated.EditCount)
	assert.NotNil(t, updated.LastEditedAt)
	assert.False(t, updated.RequiresConfirmation)

	assert.Contains(t, unreadTypes(t, e, doctor.ID), model.NotificationTimeChangeRequested)

	// The doctor can re-decide from pending as usual.
	again, err := e.svc.Postpone(ctx, asDoctor(doctor), c.ID, &model.PostponeConsultationRequest{
		ScheduledTime: proposed.Add(24 * time.Hour),
		Reason:        "still booked",
	})
	require.NoError(t, err)
	assert.Equal(t, model.ConsultationStatusRescheduled, again.Status)
}

func TestCompleteCreditsDoctor(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	doctor := e.seedDoctor(model.SpecializationPharmacology)
	patient := e.seedPatient()
	c := e.request(t, patient, nil)

	when := time.Now().Add(24 * time.Hour)
	_, err := e.svc.Accept(ctx, asDoctor(doctor), c.ID, &model.AcceptConsultationRequest{
		MeetingLink:   "https://meet.example.com/abc",
		ScheduledTime: &when,
	})
	require.NoError(t, err)

	updated, err := e.svc.Complete(ctx, asDoctor(doctor), c.ID, "Take it with your evening meal.")
	require.NoError(t, err)

	assert.Equal(t, model.ConsultationStatusCompleted, updated.Status)
	require.NotNil(t, updated.DoctorResponse)
	assert.Equal(t, "Take it with your evening meal.", *updated.DoctorResponse)
	assert.Nil(t, updated.ScheduledTime)
	assert.Nil(t, updated.MeetingLink)

	d, err := e.doctors.Get(ctx, doctor.ID)
	require.NoError(t, err)
	assert.Equal(t, c.FeeCents, d.EarningsCents)

	assert.Contains(t, unreadTypes(t, e, patient.ID), model.NotificationConsultationCompleted)
}

func TestCompleteRequiresResponse(t *testing.T) {
	e := newTestEnv(t)
	doctor := e.seedDoctor(model.SpecializationPharmacology)
	patient := e.seedPatient()
	c := e.request(t, patient, nil)

	_, err := e.svc.StartReview(context.Background(), asDoctor(doctor), c.ID)
	require.NoError(t, err)

	_, err = e.svc.Complete(context.Background(), asDoctor(doctor), c.ID, "")
	assert.True(t, apperrors.Is(err, apperrors.ErrPreconditionFailed))
}

func TestCancelAuthorization(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	doctor := e.seedDoctor(model.SpecializationPharmacology)
	patient := e.seedPatient()
	c := e.request(t, patient, nil)

	_, err := e.svc.Cancel(ctx, asPatient(patient), c.ID, "changed my mind")
	assert.True(t, apperrors.Is(err, apperrors.ErrUnauthorized))

	updated, err := e.svc.Cancel(ctx, asDoctor(doctor), c.ID, "on leave")
	require.NoError(t, err)
	assert.Equal(t, model.ConsultationStatusCancelled, updated.Status)
	require.NotNil(t, updated.CancelReason)
	assert.Equal(t, "on leave", *updated.CancelReason)

	_, err = e.svc.Cancel(ctx, admin(), c.ID, "again")
	assert.True(t, apperrors.Is(err, apperrors.ErrPreconditionFailed))
}

func TestDeleteOnlyFromTerminalOutcomes(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	doctor := e.seedDoctor(model.SpecializationPharmacology)
	patient := e.seedPatient()
	c := e.request(t, patient, nil)

	err := e.svc.Delete(ctx, asPatient(patient), c.ID)
	assert.True(t, apperrors.Is(err, apperrors.ErrPreconditionFailed))

	_, err = e.svc.Reject(ctx, asDoctor(doctor), c.ID, "outside my specialty")
	require.NoError(t, err)

	require.NoError(t, e.svc.Delete(ctx, asPatient(patient), c.ID))

	// Deleting the same id again just reports the record is gone.
	err = e.svc.Delete(ctx, asPatient(patient), c.ID)
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))
}

func TestBlockedDoctorRecordsAreFrozen(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	doctor := e.seedDoctor(model.SpecializationPharmacology)
	patient := e.seedPatient()
	c := e.request(t, patient, nil)

	require.NoError(t, e.doctors.SetBlocked(ctx, doctor.ID, true))

	when := time.Now().Add(24 * time.Hour)
	_, err := e.svc.Accept(ctx, asDoctor(doctor), c.ID, &model.AcceptConsultationRequest{
		MeetingLink:   "https://meet.example.com/abc",
		ScheduledTime: &when,
	})
	assert.True(t, apperrors.Is(err, apperrors.ErrPreconditionFailed))

	_, err = e.svc.ConfirmReschedule(ctx, asPatient(patient), c.ID)
	assert.True(t, apperrors.Is(err, apperrors.ErrPreconditionFailed))
}

func TestForceCancelOpenSkipsTerminal(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	doctor := e.seedDoctor(model.SpecializationPharmacology)
	patient := e.seedPatient()

	open := e.request(t, patient, nil)
	done := e.request(t, patient, nil)
	_, err := e.svc.StartReview(ctx, asDoctor(doctor), done.ID)
	require.NoError(t, err)
	_, err = e.svc.Complete(ctx, asDoctor(doctor), done.ID, "all set")
	require.NoError(t, err)

	cancelled, err := e.svc.ForceCancelOpen(ctx, doctor.ID, "doctor account suspended")
	require.NoError(t, err)
	assert.Equal(t, 1, cancelled)

	c, err := e.consultations.Get(ctx, open.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ConsultationStatusCancelled, c.Status)

	c, err = e.consultations.Get(ctx, done.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ConsultationStatusCompleted, c.Status)
}

// Two transitions racing from the same observed state must resolve to exactly
// one winner; the loser sees either a conflict or a failed precondition on
// re-read, and never partially applies.
func TestConcurrentTransitionsSingleWinner(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	doctor := e.seedDoctor(model.SpecializationPharmacology)
	patient := e.seedPatient()
	c := e.request(t, patient, nil)

	when := time.Now().Add(24 * time.Hour)

	var wg sync.WaitGroup
	errs := make([]error, 2)

	wg.Add(2)
	go func() {
		defer wg.Done()
		_, errs[0] = e.svc.Accept(ctx, asDoctor(doctor), c.ID, &model.AcceptConsultationRequest{
			MeetingLink:   "https://meet.example.com/abc",
			ScheduledTime: &when,
		})
	}()
	go func() {
		defer wg.Done()
		_, errs[1] = e.svc.Reject(ctx, asDoctor(doctor), c.ID, "outside my specialty")
	}()
	wg.Wait()

	successes := 0
	for _, err := range errs {
		if err == nil {
			successes++
			continue
		}
		ok := apperrors.Is(err, apperrors.ErrConflict) || apperrors.Is(err, apperrors.ErrPreconditionFailed)
		assert.True(t, ok, "loser saw unexpected error: %v", err)
	}
	assert.Equal(t, 1, successes)

	final, err := e.consultations.Get(ctx, c.ID)
	require.NoError(t, err)
	if errs[0] == nil {
		assert.Equal(t, model.ConsultationStatusAccepted, final.Status)
	} else {
		assert.Equal(t, model.ConsultationStatusRejected, final.Status)
	}
}

func TestListScopedToActor(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	e.seedDoctor(model.SpecializationPharmacology)
	alice := e.seedPatient()
	bob := e.seedPatient()

	e.request(t, alice, nil)
	e.request(t, alice, nil)
	e.request(t, bob, nil)

	mine, err := e.svc.List(ctx, asPatient(alice), "")
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	theirs, err := e.svc.List(ctx, asPatient(bob), "")
	require.NoError(t, err)
	assert.Len(t, theirs, 1)
}
