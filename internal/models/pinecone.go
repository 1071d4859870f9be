package models

import (
	"time"

	"github.com/google/uuid"
)

// Pinecone is one persisted document in a tree.
type Pinecone struct {
	ID         int64      `json:"id"`
	Guid       uuid.UUID  `json:"guid"`
	Title      string     `json:"title"`
	Content    string     `json:"content"`
	GroupGuid  uuid.UUID  `json:"groupGuid"`
	ParentGuid *uuid.UUID `json:"parentGuid"`
	Order      int        `json:"order"`
	IsPublic   bool       `json:"isPublic"`
	UserName   string     `json:"userName"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
	// DeletedAt is only ever set on roots; it moves the whole tree to trash.
	DeletedAt *time.Time `json:"deletedAt,omitempty"`
}

// IsRoot reports whether the row is the top of its tree.
func (p *Pinecone) IsRoot() bool {
	return p.ParentGuid == nil
}

// NodeDescriptor is the flattened wire form of one tree node.
type NodeDescriptor struct {
	Guid       string  `json:"guid" validate:"omitempty,uuid"`
	Title      string  `json:"title" validate:"max=512"`
	Content    string  `json:"content"`
	GroupGuid  string  `json:"groupGuid" validate:"omitempty,uuid"`
	ParentGuid *string `json:"parentGuid" validate:"omitempty"`
	Order      int     `json:"order" validate:"min=0"`
	IsPublic   bool    `json:"isPublic"`
}

// IsRoot reports whether the descriptor claims to be the tree root.
func (d *NodeDescriptor) IsRoot() bool {
	return d.ParentGuid == nil || *d.ParentGuid == ""
}

// SaveTreeRequest carries a whole edited tree back to the server.
type SaveTreeRequest struct {
	RootID               string           `json:"rootId" validate:"required,uuid"`
	HasStructuralChanges bool             `json:"hasStructuralChanges"`
	Nodes                []NodeDescriptor `json:"nodes" validate:"required,min=1,dive"`
}

// CreateTreeRequest starts a new tree.
type CreateTreeRequest struct {
	Title   string `json:"title" validate:"max=512"`
	Content string `json:"content"`
}

// VisibilityRequest toggles whether a node can be read anonymously.
type VisibilityRequest struct {
	IsPublic bool `json:"isPublic"`
}

// TreeSummary lists a root in the user's library.
type TreeSummary struct {
	Guid      uuid.UUID  `json:"guid"`
	Title     string     `json:"title"`
	IsPublic  bool       `json:"isPublic"`
	UpdatedAt time.Time  `json:"updatedAt"`
	DeletedAt *time.Time `json:"deletedAt,omitempty"`
}
