package db

import (
	"context"
	"errors"
	"strings"
	"time"

	"device_loan_service/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var liveLoanStatuses = []models.LoanStatus{models.LoanActive, models.LoanOverdue}

// overlapConflicts counts items of live ACTIVE/OVERDUE loans that reference
// the given device/child with a period overlapping [start, end] (inclusive
// both ends). excludeLoanID skips one loan, used when re-checking an edit.
func overlapConflicts(tx *gorm.DB, ref models.DeviceRef, start, end time.Time, excludeLoanID string) (int64, error) {
	q := tx.Table(models.LoanItemTable+" li").
		Joins("JOIN "+models.LoanTable+" l ON l.id = li.loan_id").
		Where("l.deleted_at IS NULL").
		Where("l.status IN ?", liveLoanStatuses).
		Where("l.start_date <= ? AND l.end_date >= ?", end, start)
	if ref.Kind == models.RefParent {
		q = q.Where("li.device_id = ?", ref.ID)
	} else {
		q = q.Where("li.child_device_id = ?", ref.ID)
	}
	if excludeLoanID != "" {
		q = q.Where("l.id <> ?", excludeLoanID)
	}
	var n int64
	err := q.Count(&n).Error
	return n, err
}

// CheckAvailability runs the overlap test outside a creation transaction,
// for preview endpoints. The authoritative check happens again inside
// CreateLoan under row locks.
func (r *Repo) CheckAvailability(ctx context.Context, ref models.DeviceRef, start, end time.Time, excludeLoanID string) (bool, error) {
	n, err := overlapConflicts(r.DB.WithContext(ctx), ref, models.DateOnly(start), models.DateOnly(end), excludeLoanID)
	if err != nil {
		return false, err
	}
	return n == 0, nil
}

// nextLoanNumber counts live loans created in now's calendar month. Caller
// must hold the month's advisory lock (or be the only writer, as in SQLite).
func nextLoanNumber(tx *gorm.DB, now time.Time) (string, error) {
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	nextMonth := monthStart.AddDate(0, 1, 0)
	var n int64
	if err := tx.Model(&models.Loan{}).
		Where("created_at >= ? AND created_at < ?", monthStart, nextMonth).
		Count(&n).Error; err != nil {
		return "", err
	}
	return models.FormatLoanNumber(now.Year(), now.Month(), int(n)+1), nil
}

func lockLoanNumberBucket(tx *gorm.DB, now time.Time) error {
	if tx.Dialector.Name() != "postgres" {
		return nil
	}
	bucket := "dl_loan_number:" + now.Format("2006-01")
	return tx.Exec("SELECT pg_advisory_xact_lock(hashtext(?))", bucket).Error
}

type CreateLoanItemInput struct {
	Ref             models.DeviceRef
	Quantity        int
	ConditionBefore models.DeviceCondition
}

type CreateLoanInput struct {
	AssignmentLetterNo string
	BorrowerID         string
	ActivityName       string
	StartDate          time.Time
	DurationDays       int
	Items              []CreateLoanItemInput
	ActorID            string
}

// CreateLoan validates and persists a loan, its items and the initial history
// row in one transaction. Each referenced device row is locked before the
// overlap check so two concurrent requests for the same device serialize; the
// advisory lock keeps the monthly loan-number sequence gap-free.
func (r *Repo) CreateLoan(ctx context.Context, in CreateLoanInput) (*models.Loan, error) {
	if len(in.Items) == 0 {
		return nil, ErrNoItems
	}
	for _, it := range in.Items {
		if it.Quantity < 0 {
			return nil, ErrBadQuantity
		}
	}

	loan, err := r.createLoanOnce(ctx, in)
	if !errors.Is(err, gorm.ErrDuplicatedKey) {
		return loan, err
	}
	// The insert tripped one of the live unique indexes. Tell a raced
	// assignment letter apart from a raced loan number: the letter is caller
	// input, the number can be re-sequenced on a fresh attempt.
	taken, cerr := r.letterInUse(ctx, in.AssignmentLetterNo)
	if cerr != nil {
		return nil, cerr
	}
	if taken {
		return nil, ErrLetterTaken
	}
	return r.createLoanOnce(ctx, in)
}

func (r *Repo) letterInUse(ctx context.Context, letter string) (bool, error) {
	var n int64
	err := r.DB.WithContext(ctx).Model(&models.Loan{}).
		Where("assignment_letter_no = ?", letter).
		Count(&n).Error
	return n > 0, err
}

func (r *Repo) createLoanOnce(ctx context.Context, in CreateLoanInput) (*models.Loan, error) {
	start := models.DateOnly(in.StartDate)
	end := models.LoanEndDate(in.StartDate, in.DurationDays)
	now := time.Now().UTC()

	var created *models.Loan
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockLoanNumberBucket(tx, now); err != nil {
			return err
		}

		var dup int64
		if err := tx.Model(&models.Loan{}).
			Where("assignment_letter_no = ?", in.AssignmentLetterNo).
			Count(&dup).Error; err != nil {
			return err
		}
		if dup > 0 {
			return ErrLetterTaken
		}

		seen := map[models.DeviceRef]bool{}
		items := make([]models.LoanItem, 0, len(in.Items))
		for _, it := range in.Items {
			if seen[it.Ref] {
				return ErrDuplicateItemRef
			}
			seen[it.Ref] = true

			code, err := lockAndValidateRef(tx, it.Ref)
			if err != nil {
				return err
			}
			n, err := overlapConflicts(tx, it.Ref, start, end, "")
			if err != nil {
				return err
			}
			if n > 0 {
				return &UnavailableError{DeviceCode: code, Start: start, End: end}
			}

			row := models.LoanItem{
				ID:              uuid.NewString(),
				Quantity:        it.Quantity,
				ConditionBefore: it.ConditionBefore,
			}
			// zero means the caller left it out; negatives were rejected above
			if row.Quantity == 0 {
				row.Quantity = 1
			}
			if row.ConditionBefore == "" {
				row.ConditionBefore = models.ConditionGood
			}
			row.SetRef(it.Ref)
			items = append(items, row)
		}

		number, err := nextLoanNumber(tx, now)
		if err != nil {
			return err
		}

		loan := &models.Loan{
			ID:                 uuid.NewString(),
			LoanNumber:         number,
			AssignmentLetterNo: in.AssignmentLetterNo,
			BorrowerID:         in.BorrowerID,
			ActivityName:       in.ActivityName,
			StartDate:          start,
			DurationDays:       in.DurationDays,
			EndDate:            end,
			Status:             models.LoanActive,
		}
		if err := tx.Create(loan).Error; err != nil {
			return err
		}
		for i := range items {
			items[i].LoanID = loan.ID
		}
		if err := tx.Create(&items).Error; err != nil {
			return err
		}
		if err := appendHistory(tx, loan.ID, "", models.LoanActive, "loan created", &in.ActorID); err != nil {
			return err
		}
		for ref := range seen {
			if err := markRefBorrowed(tx, ref); err != nil {
				return err
			}
		}
		loan.Items = items
		created = loan
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// lockAndValidateRef locks the referenced row and checks it may be lent.
// Returns the device code for error reporting.
func lockAndValidateRef(tx *gorm.DB, ref models.DeviceRef) (string, error) {
	if ref.Kind == models.RefParent {
		var d models.Device
		if err := forUpdate(tx).First(&d, "id = ?", ref.ID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return "", ErrNotFound
			}
			return "", err
		}
		if !d.Status.Loanable() {
			return "", ErrDeviceNotLoanable
		}
		return d.Code, nil
	}
	var ch models.ChildDevice
	if err := forUpdate(tx).First(&ch, "id = ?", ref.ID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrNotFound
		}
		return "", err
	}
	if !ch.Status.Loanable() {
		return "", ErrDeviceNotLoanable
	}
	return ch.Code, nil
}

// markRefBorrowed flips the referenced row to BORROWED for the lifetime of the
// loan; child flips propagate to the derived parent status.
func markRefBorrowed(tx *gorm.DB, ref models.DeviceRef) error {
	if ref.Kind == models.RefParent {
		return tx.Model(&models.Device{}).
			Where("id = ? AND status = ?", ref.ID, models.DeviceAvailable).
			Update("status", models.DeviceBorrowed).Error
	}
	if err := tx.Model(&models.ChildDevice{}).
		Where("id = ? AND status = ?", ref.ID, models.DeviceAvailable).
		Update("status", models.DeviceBorrowed).Error; err != nil {
		return err
	}
	var ch models.ChildDevice
	if err := tx.First(&ch, "id = ?", ref.ID).Error; err != nil {
		return err
	}
	return recomputeParentStatus(tx, ch.DeviceID)
}

// releaseRef sets the row back to AVAILABLE unless another live loan still
// references it. The MAINTENANCE/INACTIVE states set by admins are preserved.
func releaseRef(tx *gorm.DB, ref models.DeviceRef, excludeLoanID string) error {
	q := tx.Table(models.LoanItemTable+" li").
		Joins("JOIN "+models.LoanTable+" l ON l.id = li.loan_id").
		Where("l.deleted_at IS NULL").
		Where("l.status IN ?", liveLoanStatuses).
		Where("l.id <> ?", excludeLoanID)
	if ref.Kind == models.RefParent {
		q = q.Where("li.device_id = ?", ref.ID)
	} else {
		q = q.Where("li.child_device_id = ?", ref.ID)
	}
	var still int64
	if err := q.Count(&still).Error; err != nil {
		return err
	}
	if still > 0 {
		return nil
	}

	if ref.Kind == models.RefParent {
		return tx.Model(&models.Device{}).
			Where("id = ? AND status = ?", ref.ID, models.DeviceBorrowed).
			Update("status", models.DeviceAvailable).Error
	}
	if err := tx.Model(&models.ChildDevice{}).
		Where("id = ? AND status = ?", ref.ID, models.DeviceBorrowed).
		Update("status", models.DeviceAvailable).Error; err != nil {
		return err
	}
	var ch models.ChildDevice
	if err := tx.First(&ch, "id = ?", ref.ID).Error; err != nil {
		return err
	}
	return recomputeParentStatus(tx, ch.DeviceID)
}

func appendHistory(tx *gorm.DB, loanID string, old, new models.LoanStatus, reason string, actorID *string) error {
	if actorID != nil && *actorID == "" {
		actorID = nil
	}
	return tx.Create(&models.LoanHistory{
		ID:        uuid.NewString(),
		LoanID:    loanID,
		OldStatus: old,
		NewStatus: new,
		Reason:    reason,
		ActorID:   actorID,
	}).Error
}

func (r *Repo) GetLoan(ctx context.Context, id string) (*models.Loan, error) {
	var l models.Loan
	err := r.DB.WithContext(ctx).
		Preload("Items").
		Preload("Items.Device").
		Preload("Items.ChildDevice").
		Preload("Borrower").
		Preload("Histories", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC") }).
		First(&l, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &l, nil
}

type ListLoansQuery struct {
	Status     string
	BorrowerID string
	Page       int
	Size       int
	SortBy     string
	SortOrder  string
}

type ListLoansResult struct {
	Loans []models.Loan `json:"loans"`
	Total int64         `json:"total"`
}

var loanSortColumns = map[string]string{
	"loanNumber": "loan_number",
	"startDate":  "start_date",
	"endDate":    "end_date",
	"status":     "status",
	"createdAt":  "created_at",
}

func (r *Repo) ListLoans(ctx context.Context, q ListLoansQuery) (ListLoansResult, error) {
	if q.Page <= 0 {
		q.Page = 1
	}
	if q.Size <= 0 || q.Size > 200 {
		q.Size = 20
	}

	tx := r.DB.WithContext(ctx).Model(&models.Loan{})
	if q.Status != "" {
		tx = tx.Where("status = ?", q.Status)
	}
	if q.BorrowerID != "" {
		tx = tx.Where("borrower_id = ?", q.BorrowerID)
	}

	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return ListLoansResult{}, err
	}

	col, ok := loanSortColumns[q.SortBy]
	if !ok {
		col = "created_at"
	}
	dir := "DESC"
	if strings.EqualFold(q.SortOrder, "asc") {
		dir = "ASC"
	}

	var loans []models.Loan
	if err := tx.Preload("Items").Preload("Borrower").
		Order(col + " " + dir).
		Offset((q.Page - 1) * q.Size).
		Limit(q.Size).
		Find(&loans).Error; err != nil {
		return ListLoansResult{}, err
	}
	return ListLoansResult{Loans: loans, Total: total}, nil
}

type UpdateLoanInput struct {
	AssignmentLetterNo *string
	ActivityName       *string
}

// UpdateLoan edits the limited field set while the loan is ACTIVE. Start date
// and duration are deliberately not updatable: the denormalized end date is
// fixed at creation, so changing the period means cancel and re-create.
func (r *Repo) UpdateLoan(ctx context.Context, id string, in UpdateLoanInput) (*models.Loan, error) {
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var l models.Loan
		if err := forUpdate(tx).First(&l, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if l.Status != models.LoanActive {
			return ErrInvalidStatus
		}

		fields := map[string]interface{}{}
		if in.AssignmentLetterNo != nil && *in.AssignmentLetterNo != l.AssignmentLetterNo {
			var dup int64
			if err := tx.Model(&models.Loan{}).
				Where("assignment_letter_no = ? AND id <> ?", *in.AssignmentLetterNo, id).
				Count(&dup).Error; err != nil {
				return err
			}
			if dup > 0 {
				return ErrLetterTaken
			}
			fields["assignment_letter_no"] = *in.AssignmentLetterNo
		}
		if in.ActivityName != nil {
			fields["activity_name"] = *in.ActivityName
		}
		if len(fields) == 0 {
			return nil
		}
		err := tx.Model(&l).Updates(fields).Error
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrLetterTaken
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return r.GetLoan(ctx, id)
}

type ReturnItemInput struct {
	ItemID         string
	ConditionAfter models.DeviceCondition
}

type ReturnLoanInput struct {
	ReturnedByID string
	Notes        string
	Items        []ReturnItemInput
}

// ReturnLoan closes an ACTIVE or OVERDUE loan. The payload must account for
// every loan item exactly once; partial returns are rejected. Items whose
// condition changed spawn a PENDING condition change request.
func (r *Repo) ReturnLoan(ctx context.Context, id string, in ReturnLoanInput) (*models.Loan, error) {
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var l models.Loan
		if err := forUpdate(tx).Preload("Items").First(&l, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if l.Status != models.LoanActive && l.Status != models.LoanOverdue {
			return ErrInvalidStatus
		}

		byID := make(map[string]*models.LoanItem, len(l.Items))
		for i := range l.Items {
			byID[l.Items[i].ID] = &l.Items[i]
		}
		if len(in.Items) != len(byID) {
			return ErrItemSetMismatch
		}
		seen := map[string]bool{}
		for _, ri := range in.Items {
			if _, ok := byID[ri.ItemID]; !ok || seen[ri.ItemID] {
				return ErrItemSetMismatch
			}
			seen[ri.ItemID] = true
		}

		now := time.Now().UTC()
		for _, ri := range in.Items {
			item := byID[ri.ItemID]
			after := ri.ConditionAfter
			if after == "" {
				after = item.ConditionBefore
			}
			if err := tx.Model(item).Update("condition_after", after).Error; err != nil {
				return err
			}
			if after != item.ConditionBefore {
				req := models.ConditionChangeRequest{
					ID:            uuid.NewString(),
					LoanItemID:    item.ID,
					DeviceID:      item.DeviceID,
					ChildDeviceID: item.ChildDeviceID,
					OldCondition:  item.ConditionBefore,
					NewCondition:  after,
					Status:        models.RequestPending,
				}
				if err := tx.Create(&req).Error; err != nil {
					return err
				}
			}
		}

		prev := l.Status
		returnedBy := in.ReturnedByID
		if err := tx.Model(&l).Updates(map[string]interface{}{
			"status":             models.LoanReturned,
			"actual_return_date": now,
			"return_notes":       in.Notes,
			"returned_by_id":     returnedBy,
		}).Error; err != nil {
			return err
		}
		if err := appendHistory(tx, l.ID, prev, models.LoanReturned, in.Notes, &returnedBy); err != nil {
			return err
		}

		for i := range l.Items {
			ref, err := l.Items[i].Ref()
			if err != nil {
				return err
			}
			if err := releaseRef(tx, ref, l.ID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r.GetLoan(ctx, id)
}

// CancelLoan aborts an ACTIVE loan with a reason.
func (r *Repo) CancelLoan(ctx context.Context, id, actorID, reason string) (*models.Loan, error) {
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var l models.Loan
		if err := forUpdate(tx).Preload("Items").First(&l, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if l.Status != models.LoanActive {
			return ErrInvalidStatus
		}
		if err := tx.Model(&l).Updates(map[string]interface{}{
			"status":        models.LoanCancelled,
			"cancel_reason": reason,
		}).Error; err != nil {
			return err
		}
		if err := appendHistory(tx, l.ID, models.LoanActive, models.LoanCancelled, reason, &actorID); err != nil {
			return err
		}
		for i := range l.Items {
			ref, err := l.Items[i].Ref()
			if err != nil {
				return err
			}
			if err := releaseRef(tx, ref, l.ID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r.GetLoan(ctx, id)
}

// MarkOverdue promotes every ACTIVE loan whose end date has passed to OVERDUE,
// one history row each with no actor. Idempotent: a second run finds nothing.
func (r *Repo) MarkOverdue(ctx context.Context, today time.Time) (int64, error) {
	today = models.DateOnly(today)
	var affected int64
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ids []string
		if err := forUpdate(tx).Model(&models.Loan{}).
			Where("status = ? AND end_date < ?", models.LoanActive, today).
			Pluck("id", &ids).Error; err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}
		res := tx.Model(&models.Loan{}).
			Where("id IN ? AND status = ?", ids, models.LoanActive).
			Update("status", models.LoanOverdue)
		if res.Error != nil {
			return res.Error
		}
		affected = res.RowsAffected
		for _, id := range ids {
			if err := appendHistory(tx, id, models.LoanActive, models.LoanOverdue, "loan period expired", nil); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return affected, nil
}
