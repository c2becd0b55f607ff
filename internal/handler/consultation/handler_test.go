package consultation_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	consultationHandler "github.com/careloop/consult-api/internal/handler/consultation"
	"github.com/careloop/consult-api/internal/middleware"
	"github.com/careloop/consult-api/internal/model"
	"github.com/careloop/consult-api/internal/repository/memory"
	"github.com/careloop/consult-api/internal/service/consultation"
	"github.com/careloop/consult-api/internal/service/matching"
	"github.com/careloop/consult-api/internal/service/notification"
	"github.com/careloop/consult-api/pkg/auth"
	"github.com/careloop/consult-api/pkg/logger"
	"github.com/careloop/consult-api/pkg/metrics"
)

type testServer struct {
	engine *gin.Engine
	tokens *auth.TokenManager
	t      *testing.T
}

func newTestServer(t *testing.T) (*testServer, *memory.DoctorRepository, *memory.PatientRepository) {
	t.Helper()
	gin.SetMode(gin.TestMode)

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

	tokens := auth.NewTokenManager("test-secret", time.Hour)
	authMW := middleware.NewAuthMiddleware(tokens)

	engine := gin.New()
	api := engine.Group("/api/v1")
	api.Use(authMW.Authenticate())
	consultationHandler.NewHandler(svc).RegisterRoutes(api)

	return &testServer{engine: engine, tokens: tokens, t: t}, doctors, patients
}

func (s *testServer) do(method, path string, body interface{}, actorID uuid.UUID, role model.Role) *httptest.ResponseRecorder {
	s.t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	token, err := s.tokens.Generate(actorID, role)
	require.NoError(s.t, err)
	req.Header.Set("Authorization", "Bearer "+token)

	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	return w
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var envelope struct {
		Status string                 `json:"status"`
		Data   map[string]interface{} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	require.Equal(t, "success", envelope.Status)
	return envelope.Data
}

func TestNegotiationOverHTTP(t *testing.T) {
	s, doctors, patients := newTestServer(t)

	doctor := &model.Doctor{
		ID:             uuid.New(),
		Name:           "Dr. Chen",
		Specialization: model.SpecializationPharmacology,
		FeeCents:       5000,
		Active:         true,
	}
	doctors.Put(doctor)
	patient := &model.Patient{ID: uuid.New(), Name: "Alice Wong"}
	patients.Put(patient)

	w := s.do(http.MethodPost, "/api/v1/consultations", map[string]interface{}{
		"medicine":    "metformin",
		"concern":     "dosage_question",
		"description": "Unsure whether to take with meals",
	}, patient.ID, model.RolePatient)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	data := decodeData(t, w)
	id := data["id"].(string)
	assert.Equal(t, "pending", data["status"])
	assert.Equal(t, doctor.ID.String(), data["doctor_id"])

	// The patient cannot accept their own request.
	w = s.do(http.MethodPost, "/api/v1/consultations/"+id+"/accept", map[string]interface{}{
		"meeting_link":   "https://meet.example.com/abc",
		"scheduled_time": time.Now().Add(24 * time.Hour).Format(time.RFC3339),
	}, patient.ID, model.RolePatient)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(http.MethodPost, "/api/v1/consultations/"+id+"/accept", map[string]interface{}{
		"meeting_link":   "https://meet.example.com/abc",
		"scheduled_time": time.Now().Add(24 * time.Hour).Format(time.RFC3339),
	}, doctor.ID, model.RoleDoctor)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	data = decodeData(t, w)
	assert.Equal(t, "accepted", data["status"])

	// Rejecting an accepted consultation fails its precondition.
	w = s.do(http.MethodPost, "/api/v1/consultations/"+id+"/reject", map[string]interface{}{
		"reason": "changed my mind",
	}, doctor.ID, model.RoleDoctor)
	assert.Equal(t, http.StatusPreconditionFailed, w.Code)

	w = s.do(http.MethodPost, "/api/v1/consultations/"+id+"/complete", map[string]interface{}{
		"response": "Take it with your evening meal.",
	}, doctor.ID, model.RoleDoctor)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	data = decodeData(t, w)
	assert.Equal(t, "completed", data["status"])

	w = s.do(http.MethodDelete, "/api/v1/consultations/"+id, nil, patient.ID, model.RolePatient)
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(http.MethodGet, "/api/v1/consultations/"+id, nil, patient.ID, model.RolePatient)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRequestValidation(t *testing.T) {
	s, doctors, patients := newTestServer(t)

	doctors.Put(&model.Doctor{
		ID:             uuid.New(),
		Name:           "Dr. Chen",
		Specialization: model.SpecializationPharmacology,
		Active:         true,
	})
	patient := &model.Patient{ID: uuid.New(), Name: "Alice Wong"}
	patients.Put(patient)

	w := s.do(http.MethodPost, "/api/v1/consultations", map[string]interface{}{
		"medicine":    "metformin",
		"concern":     "not_a_concern",
		"description": "bad category",
	}, patient.ID, model.RolePatient)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMissingTokenRejected(t *testing.T) {
	s, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/consultations", nil)
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
