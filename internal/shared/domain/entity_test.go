package domain_test

import (
	"testing"
	"time"

	"github.com/felixgeelhaar/memberly/internal/shared/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestNewBaseEntity(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	entity := domain.NewBaseEntity(now)

	assert.NotEqual(t, uuid.Nil, entity.ID())
	assert.Equal(t, now, entity.CreatedAt())
	assert.Equal(t, now, entity.UpdatedAt())
}

func TestBaseEntity_TouchAt(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	entity := domain.NewBaseEntity(now)

	entity.TouchAt(now.Add(time.Hour))
	assert.Equal(t, now.Add(time.Hour), entity.UpdatedAt())

	// going backwards is ignored
	entity.TouchAt(now)
	assert.Equal(t, now.Add(time.Hour), entity.UpdatedAt())
	assert.Equal(t, now, entity.CreatedAt())
}
