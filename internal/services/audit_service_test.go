package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestAuditService_WithoutMongo(t *testing.T) {
	s := NewAuditService(nil)
	assert.Nil(t, s.collection)

	assert.NotPanics(t, func() {
		s.Record(context.Background(), AuditSaveTree, alice, uuid.New(), uuid.Nil, map[string]any{"strategy": StrategyContent})
	})

	var nilService *AuditService
	assert.NotPanics(t, func() {
		nilService.Record(context.Background(), AuditTrashTree, alice, uuid.New(), uuid.Nil, nil)
	})
}
