package services

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/mongo"

	"pinetree/internal/database"
)

// Audit actions
const (
	AuditCreateTree    = "tree.create"
	AuditSaveTree      = "tree.save"
	AuditTrashTree     = "tree.trash"
	AuditRestoreTree   = "tree.restore"
	AuditPurgeTree     = "tree.purge"
	AuditDeleteNode    = "node.delete"
	AuditSetVisibility = "node.visibility"
	AuditUploadImage   = "image.upload"
	AuditDeleteImage   = "image.delete"
)

// AuditEvent is one entry of the audit trail
type AuditEvent struct {
	Action    string         `bson:"action" json:"action"`
	UserName  string         `bson:"userName" json:"userName"`
	RootGuid  string         `bson:"rootGuid,omitempty" json:"rootGuid,omitempty"`
	Guid      string         `bson:"guid,omitempty" json:"guid,omitempty"`
	Details   map[string]any `bson:"details,omitempty" json:"details,omitempty"`
	CreatedAt time.Time      `bson:"createdAt" json:"createdAt"`
}

// AuditService writes the audit trail to MongoDB. Without MongoDB events
// only go to the log.
type AuditService struct {
	collection *mongo.Collection
}

// NewAuditService creates an audit service. mongoDB may be nil.
func NewAuditService(mongoDB *database.MongoDB) *AuditService {
	s := &AuditService{}
	if mongoDB != nil {
		s.collection = mongoDB.Collection(database.CollectionAuditEvents)
	}
	return s
}

// Record stores an event. Failures are logged and never returned: the
// audited operation has already happened.
func (s *AuditService) Record(ctx context.Context, action, userName string, rootGuid, guid uuid.UUID, details map[string]any) {
	event := AuditEvent{
		Action:    action,
		UserName:  userName,
		Details:   details,
		CreatedAt: time.Now().UTC(),
	}
	if rootGuid != uuid.Nil {
		event.RootGuid = rootGuid.String()
	}
	if guid != uuid.Nil {
		event.Guid = guid.String()
	}

	if s == nil || s.collection == nil {
		log.Printf("📝 [AUDIT] %s by %s root=%s guid=%s", action, userName, event.RootGuid, event.Guid)
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 3*time.Second)
	defer cancel()
	if _, err := s.collection.InsertOne(ctx, event); err != nil {
		log.Printf("⚠️  [AUDIT] Failed to record %s for %s: %v", action, userName, err)
	}
}
