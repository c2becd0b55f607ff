package matching

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/careloop/consult-api/internal/model"
	"github.com/careloop/consult-api/internal/repository"
	apperrors "github.com/careloop/consult-api/pkg/errors"
)

const (
	rosterCacheTTL     = 30 * time.Second
	rosterCacheCleanup = 5 * time.Minute
)

// concernSpecializations maps a concern category to the specializations
// eligible to handle it.
var concernSpecializations = map[model.ConcernCategory][]model.Specialization{
	model.ConcernDosageQuestion:   {model.SpecializationPharmacology, model.SpecializationGeneralPractice},
	model.ConcernSideEffects:      {model.SpecializationPharmacology, model.SpecializationToxicology},
	model.ConcernDrugInteraction:  {model.SpecializationPharmacology},
	model.ConcernChronicCondition: {model.SpecializationInternalMedicine, model.SpecializationGeneralPractice},
	model.ConcernMentalHealth:     {model.SpecializationPsychiatry},
	model.ConcernOther:            {model.SpecializationGeneralPractice},
}

type Service struct {
	doctors       repository.DoctorRepository
	consultations repository.ConsultationRepository
	roster        *cache.Cache
}

func NewService(doctors repository.DoctorRepository, consultations repository.ConsultationRepository) *Service {
	return &Service{
		doctors:       doctors,
		consultations: consultations,
		roster:        cache.New(rosterCacheTTL, rosterCacheCleanup),
	}
}

// Assign selects the doctor for a new consultation. An explicit doctor id is
// validated but never substituted; otherwise the eligible active doctor with
// the fewest open pending/in-review assignments wins, falling back to any
// active doctor when no specialization matches. The load count is an advisory
// heuristic; two concurrent requests may both land on the same doctor.
func (s *Service) Assign(ctx context.Context, concern model.ConcernCategory, explicitDoctorID *uuid.UUID) (*model.Doctor, error) {
	if explicitDoctorID != nil {
		doctor, err := s.doctors.Get(ctx, *explicitDoctorID)
		if err != nil {
			return nil, err
		}
		if !doctor.Assignable() {
			return nil, apperrors.DoctorUnavailable(fmt.Sprintf("doctor %s is not accepting consultations", doctor.Name))
		}
		return doctor, nil
	}

	candidates, err := s.eligibleDoctors(ctx, concern)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		candidates, err = s.activeDoctors(ctx)
		if err != nil {
			return nil, err
		}
	}
	if len(candidates) == 0 {
		return nil, apperrors.NoDoctorAvailable()
	}

	return s.leastLoaded(ctx, candidates)
}

// InvalidateRoster drops cached rosters, used when a doctor is blocked so
// the stale roster cannot outlive the block.
func (s *Service) InvalidateRoster() {
	s.roster.Flush()
}

func (s *Service) eligibleDoctors(ctx context.Context, concern model.ConcernCategory) ([]*model.Doctor, error) {
	specs, ok := concernSpecializations[concern]
	if !ok {
		specs = concernSpecializations[model.ConcernOther]
	}

	key := "concern:" + string(concern)
	if cached, found := s.roster.Get(key); found {
		return cached.([]*model.Doctor), nil
	}

	doctors, err := s.doctors.ListActiveBySpecializations(ctx, specs)
	if err != nil {
		return nil, fmt.Errorf("failed to list eligible doctors: %w", err)
	}
	s.roster.Set(key, doctors, cache.DefaultExpiration)
	return doctors, nil
}

func (s *Service) activeDoctors(ctx context.Context) ([]*model.Doctor, error) {
	if cached, found := s.roster.Get("all"); found {
		return cached.([]*model.Doctor), nil
	}

	doctors, err := s.doctors.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list active doctors: %w", err)
	}
	s.roster.Set("all", doctors, cache.DefaultExpiration)
	return doctors, nil
}

// leastLoaded picks the candidate with the fewest open assignments; ties
// break on uuid order so selection stays deterministic.
func (s *Service) leastLoaded(ctx context.Context, candidates []*model.Doctor) (*model.Doctor, error) {
	ids := make([]uuid.UUID, len(candidates))
	for i, d := range candidates {
		ids[i] = d.ID
	}

	counts, err := s.consultations.CountOpenForDoctors(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to count open assignments: %w", err)
	}

	var best *model.Doctor
	bestCount := 0
	for _, d := range candidates {
		count := counts[d.ID]
		if best == nil || count < bestCount ||
			(count == bestCount && bytes.Compare(d.ID[:], best.ID[:]) < 0) {
			best = d
			bestCount = count
		}
	}
	return best, nil
}
