package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/homelead/mcphost/internal/config"
)

func TestSetTenantIDValidatesObjectID(t *testing.T) {
	s := New(&config.Config{})

	assert.False(t, s.HasTenant())

	err := s.SetTenantID("not-an-object-id")
	require.ErrorIs(t, err, ErrInvalidTenant)
	assert.False(t, s.HasTenant())

	valid := primitive.NewObjectID().Hex()
	require.NoError(t, s.SetTenantID(valid))
	assert.True(t, s.HasTenant())
	assert.Equal(t, valid, s.TenantID().Hex())
}

func TestDBBeforeConnectReturnsErrNotConnected(t *testing.T) {
	s := New(&config.Config{DBName: "test"})
	_, err := s.DB("")
	require.ErrorIs(t, err, ErrNotConnected)
}

func TestCloseBeforeConnectIsNoop(t *testing.T) {
	s := New(&config.Config{})
	assert.NoError(t, s.Close(nil))
}

func TestDBNameReflectsConfig(t *testing.T) {
	s := New(&config.Config{DBName: "homelead"})
	assert.Equal(t, "homelead", s.DBName())
}
