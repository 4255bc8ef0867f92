package db

import (
	"context"
	"errors"
	"time"

	"device_loan_service/models"

	"gorm.io/gorm"
)

// Condition change requests

func (r *Repo) FindConditionRequestByID(ctx context.Context, id string) (*models.ConditionChangeRequest, error) {
	var req models.ConditionChangeRequest
	err := r.DB.WithContext(ctx).Preload("LoanItem").First(&req, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &req, nil
}

func (r *Repo) ListConditionRequests(ctx context.Context, status string, page, size int) ([]models.ConditionChangeRequest, int64, error) {
	if page <= 0 {
		page = 1
	}
	if size <= 0 || size > 200 {
		size = 20
	}
	tx := r.DB.WithContext(ctx).Model(&models.ConditionChangeRequest{})
	if status != "" {
		tx = tx.Where("status = ?", status)
	}
	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var reqs []models.ConditionChangeRequest
	if err := tx.Preload("LoanItem").
		Order("created_at DESC").
		Offset((page - 1) * size).
		Limit(size).
		Find(&reqs).Error; err != nil {
		return nil, 0, err
	}
	return reqs, total, nil
}

// ApproveConditionChange applies the new condition onto the live device/child
// row and closes the request, in one transaction. PENDING only.
func (r *Repo) ApproveConditionChange(ctx context.Context, id, reviewerID string) (*models.ConditionChangeRequest, error) {
	var req models.ConditionChangeRequest
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := forUpdate(tx).First(&req, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if req.Status != models.RequestPending {
			return ErrRequestNotPending
		}

		ref, err := req.Ref()
		if err != nil {
			return err
		}
		if ref.Kind == models.RefParent {
			if err := tx.Model(&models.Device{}).
				Where("id = ?", ref.ID).
				Update("condition", req.NewCondition).Error; err != nil {
				return err
			}
		} else {
			if err := tx.Model(&models.ChildDevice{}).
				Where("id = ?", ref.ID).
				Update("condition", req.NewCondition).Error; err != nil {
				return err
			}
		}

		now := time.Now().UTC()
		return tx.Model(&req).Updates(map[string]interface{}{
			"status":      models.RequestApproved,
			"reviewer_id": reviewerID,
			"reviewed_at": now,
		}).Error
	})
	if err != nil {
		return nil, err
	}
	return &req, nil
}

// RejectConditionChange annotates the reason and closes the request; the
// device condition stays as it was. PENDING only.
func (r *Repo) RejectConditionChange(ctx context.Context, id, reviewerID, reason string) (*models.ConditionChangeRequest, error) {
	var req models.ConditionChangeRequest
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := forUpdate(tx).First(&req, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if req.Status != models.RequestPending {
			return ErrRequestNotPending
		}
		now := time.Now().UTC()
		return tx.Model(&req).Updates(map[string]interface{}{
			"status":           models.RequestRejected,
			"reviewer_id":      reviewerID,
			"reviewed_at":      now,
			"rejection_reason": reason,
		}).Error
	})
	if err != nil {
		return nil, err
	}
	return &req, nil
}
