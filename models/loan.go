package models

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

const LoanTable = "dl_loans"
const LoanItemTable = "dl_loan_items"
const LoanHistoryTable = "dl_loan_histories"

type LoanStatus string

const (
	LoanActive    LoanStatus = "ACTIVE"
	LoanReturned  LoanStatus = "RETURNED"
	LoanOverdue   LoanStatus = "OVERDUE"
	LoanCancelled LoanStatus = "CANCELLED"
)

type Loan struct {
	ID                 string     `gorm:"type:uuid;primaryKey" json:"id"`
	LoanNumber         string     `gorm:"size:20;not null" json:"loanNumber"` // BA-YYYY-MM-NNN, partial unique index in Migrate
	AssignmentLetterNo string     `gorm:"size:120;not null" json:"assignmentLetterNo"`
	BorrowerID         string     `gorm:"type:uuid;index;not null" json:"borrowerId"`
	ActivityName       string     `gorm:"size:255;not null" json:"activityName"`
	StartDate          time.Time  `gorm:"type:date;not null" json:"startDate"`
	DurationDays       int        `gorm:"not null" json:"durationDays"`
	EndDate            time.Time  `gorm:"type:date;not null;index" json:"endDate"`
	Status             LoanStatus `gorm:"size:20;not null;default:'ACTIVE';index" json:"status"`

	ActualReturnDate *time.Time `json:"actualReturnDate,omitempty"`
	ReturnNotes      string     `gorm:"size:500" json:"returnNotes,omitempty"`
	ReturnedByID     *string    `gorm:"type:uuid" json:"returnedById,omitempty"`
	CancelReason     string     `gorm:"size:500" json:"cancelReason,omitempty"`

	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	Borrower  *User         `gorm:"foreignKey:BorrowerID" json:"borrower,omitempty"`
	Items     []LoanItem    `gorm:"foreignKey:LoanID;constraint:OnDelete:CASCADE" json:"items,omitempty"`
	Histories []LoanHistory `gorm:"foreignKey:LoanID;constraint:OnDelete:CASCADE" json:"histories,omitempty"`
}

type LoanItem struct {
	ID              string           `gorm:"type:uuid;primaryKey" json:"id"`
	LoanID          string           `gorm:"type:uuid;index;not null" json:"loanId"`
	DeviceID        *string          `gorm:"type:uuid;index" json:"deviceId,omitempty"`
	ChildDeviceID   *string          `gorm:"type:uuid;index" json:"childDeviceId,omitempty"`
	Quantity        int              `gorm:"not null;default:1" json:"quantity"`
	ConditionBefore DeviceCondition  `gorm:"size:20;not null;default:'GOOD'" json:"conditionBefore"`
	ConditionAfter  *DeviceCondition `gorm:"size:20" json:"conditionAfter,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	Device      *Device      `gorm:"foreignKey:DeviceID" json:"device,omitempty"`
	ChildDevice *ChildDevice `gorm:"foreignKey:ChildDeviceID" json:"childDevice,omitempty"`
}

// System transitions (the overdue sweep) write an empty actor.
type LoanHistory struct {
	ID        string     `gorm:"type:uuid;primaryKey" json:"id"`
	LoanID    string     `gorm:"type:uuid;index;not null" json:"loanId"`
	OldStatus LoanStatus `gorm:"size:20" json:"oldStatus"`
	NewStatus LoanStatus `gorm:"size:20;not null" json:"newStatus"`
	Reason    string     `gorm:"size:500" json:"reason,omitempty"`
	ActorID   *string    `gorm:"type:uuid" json:"actorId,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
}

func (Loan) TableName() string        { return LoanTable }
func (LoanItem) TableName() string    { return LoanItemTable }
func (LoanHistory) TableName() string { return LoanHistoryTable }

// RefKind tags which side of the device/child pair a loan item points at.
type RefKind int

const (
	RefParent RefKind = iota
	RefChild
)

// DeviceRef is the tagged form of the nullable (device_id, child_device_id)
// column pair: exactly one side set, the both-null / both-set shapes are
// unrepresentable.
type DeviceRef struct {
	Kind RefKind
	ID   string
}

func ParentRef(id string) DeviceRef { return DeviceRef{Kind: RefParent, ID: id} }
func ChildRef(id string) DeviceRef  { return DeviceRef{Kind: RefChild, ID: id} }

var ErrAmbiguousDeviceRef = errors.New("loan item must reference exactly one of device or child device")

// Ref converts the stored column pair back to the tagged form.
func (it *LoanItem) Ref() (DeviceRef, error) {
	switch {
	case it.DeviceID != nil && it.ChildDeviceID == nil:
		return ParentRef(*it.DeviceID), nil
	case it.DeviceID == nil && it.ChildDeviceID != nil:
		return ChildRef(*it.ChildDeviceID), nil
	}
	return DeviceRef{}, ErrAmbiguousDeviceRef
}

// SetRef writes the tagged form onto the column pair.
func (it *LoanItem) SetRef(ref DeviceRef) {
	it.DeviceID, it.ChildDeviceID = nil, nil
	id := ref.ID
	if ref.Kind == RefParent {
		it.DeviceID = &id
	} else {
		it.ChildDeviceID = &id
	}
}

// DateOnly truncates to a UTC calendar date; loan ranges compare on whole days.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// LoanEndDate computes the denormalized end date: start + duration, fixed at
// creation and never revised afterwards.
func LoanEndDate(start time.Time, durationDays int) time.Time {
	return DateOnly(start).AddDate(0, 0, durationDays)
}

// RangesOverlap is the inclusive interval test: [s1,e1] and [s2,e2] overlap
// iff s1 <= e2 and s2 <= e1.
func RangesOverlap(s1, e1, s2, e2 time.Time) bool {
	return !s1.After(e2) && !s2.After(e1)
}

// FormatLoanNumber renders the monthly sequence as BA-YYYY-MM-NNN.
func FormatLoanNumber(year int, month time.Month, seq int) string {
	return fmt.Sprintf("BA-%04d-%02d-%03d", year, int(month), seq)
}
