package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// RequestStatus is the lifecycle of a disassociation request.
type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestApproved RequestStatus = "approved"
	RequestRejected RequestStatus = "rejected"
)

// Decision is what an admin answers to a pending request.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

// MinDisassociationReasonLength is measured on the trimmed reason.
const MinDisassociationReasonLength = 10

// DisassociationRequest is a client's request to leave their trainer.
// Only an admin resolves it; it is never deleted.
type DisassociationRequest struct {
	ID         primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	UserID     primitive.ObjectID  `bson:"user" json:"user"`
	TrainerID  primitive.ObjectID  `bson:"trainer" json:"trainer"`
	Reason     string              `bson:"reason" json:"reason"`
	Status     RequestStatus       `bson:"status" json:"status"`
	CreatedAt  time.Time           `bson:"createdAt" json:"createdAt"`
	ResolvedAt *time.Time          `bson:"resolvedAt,omitempty" json:"resolvedAt,omitempty"`
	ResolvedBy *primitive.ObjectID `bson:"resolvedBy,omitempty" json:"resolvedBy,omitempty"`
}

func (r *DisassociationRequest) IsPending() bool {
	return r.Status == RequestPending
}
