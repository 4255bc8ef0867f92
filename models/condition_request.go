package models

import "time"

const ConditionChangeTable = "dl_condition_change_requests"

type RequestStatus string

const (
	RequestPending  RequestStatus = "PENDING"
	RequestApproved RequestStatus = "APPROVED"
	RequestRejected RequestStatus = "REJECTED"
)

// ConditionChangeRequest is spawned by a loan return whose condition_after
// differs from condition_before. Approval writes the new condition onto the
// live device/child row; rejection leaves it untouched. Terminal either way.
type ConditionChangeRequest struct {
	ID            string          `gorm:"type:uuid;primaryKey" json:"id"`
	LoanItemID    string          `gorm:"type:uuid;index;not null" json:"loanItemId"`
	DeviceID      *string         `gorm:"type:uuid;index" json:"deviceId,omitempty"`
	ChildDeviceID *string         `gorm:"type:uuid;index" json:"childDeviceId,omitempty"`
	OldCondition  DeviceCondition `gorm:"size:20;not null" json:"oldCondition"`
	NewCondition  DeviceCondition `gorm:"size:20;not null" json:"newCondition"`
	Status        RequestStatus   `gorm:"size:20;not null;default:'PENDING';index" json:"status"`

	ReviewerID      *string    `gorm:"type:uuid" json:"reviewerId,omitempty"`
	ReviewedAt      *time.Time `json:"reviewedAt,omitempty"`
	RejectionReason string     `gorm:"size:500" json:"rejectionReason,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	LoanItem *LoanItem `gorm:"foreignKey:LoanItemID" json:"loanItem,omitempty"`
}

func (ConditionChangeRequest) TableName() string { return ConditionChangeTable }

// Ref mirrors LoanItem.Ref for the copied device/child pair.
func (r *ConditionChangeRequest) Ref() (DeviceRef, error) {
	switch {
	case r.DeviceID != nil && r.ChildDeviceID == nil:
		return ParentRef(*r.DeviceID), nil
	case r.DeviceID == nil && r.ChildDeviceID != nil:
		return ChildRef(*r.ChildDeviceID), nil
	}
	return DeviceRef{}, ErrAmbiguousDeviceRef
}
