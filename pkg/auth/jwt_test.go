package auth_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/careloop/consult-api/internal/model"
	"github.com/careloop/consult-api/pkg/auth"
)

func TestGenerateValidateRoundtrip(t *testing.T) {
	tm := auth.NewTokenManager("test-secret", time.Hour)
	id := uuid.New()

	token, err := tm.Generate(id, model.RoleDoctor)
	require.NoError(t, err)

	actor, err := tm.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, id, actor.ID)
	assert.Equal(t, model.RoleDoctor, actor.Role)
}

func TestValidateRejectsWrongSecret(t *testing.T) {
	tm := auth.NewTokenManager("test-secret", time.Hour)
	other := auth.NewTokenManager("other-secret", time.Hour)

	token, err := tm.Generate(uuid.New(), model.RolePatient)
	require.NoError(t, err)

	_, err = other.Validate(token)
	assert.Error(t, err)
}

func TestValidateRejectsExpiredToken(t *testing.T) {
	tm := auth.NewTokenManager("test-secret", -time.Minute)

	token, err := tm.Generate(uuid.New(), model.RoleAdmin)
	require.NoError(t, err)

	_, err = tm.Validate(token)
	assert.Error(t, err)
}

func TestValidateRejectsGarbage(t *testing.T) {
	tm := auth.NewTokenManager("test-secret", time.Hour)

	_, err := tm.Validate("not-a-token")
	assert.Error(t, err)
}
