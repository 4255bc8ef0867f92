package db

import (
	"context"
	"errors"
	"strings"

	"device_loan_service/models"

	"gorm.io/gorm"
)

// Devices

func (r *Repo) CreateDevice(ctx context.Context, d *models.Device) error {
	err := r.DB.WithContext(ctx).Create(d).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrCodeTaken
	}
	return err
}

func (r *Repo) FindDeviceByID(ctx context.Context, id string) (*models.Device, error) {
	var d models.Device
	err := r.DB.WithContext(ctx).Preload("Children").First(&d, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &d, nil
}

func (r *Repo) FindDeviceByCode(ctx context.Context, code string) (*models.Device, error) {
	var d models.Device
	err := r.DB.WithContext(ctx).Preload("Children").Where("code = ?", code).First(&d).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &d, nil
}

// UpdateDevice applies a partial update. Condition and status have their own
// admin entry points and are not touched here.
func (r *Repo) UpdateDevice(ctx context.Context, id string, fields map[string]interface{}) (*models.Device, error) {
	res := r.DB.WithContext(ctx).Model(&models.Device{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
			return nil, ErrCodeTaken
		}
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return r.FindDeviceByID(ctx, id)
}

// DeleteDevice removes the device and its children and reports the stored
// photo paths so the caller can unlink the files best-effort.
func (r *Repo) DeleteDevice(ctx context.Context, id string) ([]string, error) {
	var photos []string
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var d models.Device
		if err := forUpdate(tx).Preload("Children").First(&d, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if d.PhotoPath != "" {
			photos = append(photos, d.PhotoPath)
		}
		for _, ch := range d.Children {
			if ch.PhotoPath != "" {
				photos = append(photos, ch.PhotoPath)
			}
		}
		// Children go explicitly even though the FK cascades.
		if err := tx.Where("device_id = ?", id).Delete(&models.ChildDevice{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Device{ID: id}).Error
	})
	if err != nil {
		return nil, err
	}
	return photos, nil
}

type ListDevicesQuery struct {
	Q         string // matches code/name
	Status    string
	Condition string
	Page      int
	Size      int
	SortBy    string // whitelisted below
	SortOrder string // asc|desc
}

type ListDevicesResult struct {
	Devices []models.Device `json:"devices"`
	Total   int64           `json:"total"`
}

var deviceSortColumns = map[string]string{
	"code":      "code",
	"name":      "name",
	"year":      "year",
	"status":    "status",
	"condition": "condition",
	"createdAt": "created_at",
}

func (r *Repo) ListDevices(ctx context.Context, q ListDevicesQuery) (ListDevicesResult, error) {
	if q.Page <= 0 {
		q.Page = 1
	}
	if q.Size <= 0 || q.Size > 200 {
		q.Size = 20
	}

	tx := r.DB.WithContext(ctx).Model(&models.Device{})
	if s := strings.TrimSpace(q.Q); s != "" {
		like := "%" + strings.ToLower(s) + "%"
		tx = tx.Where("LOWER(code) LIKE ? OR LOWER(name) LIKE ?", like, like)
	}
	if q.Status != "" {
		tx = tx.Where("status = ?", q.Status)
	}
	if q.Condition != "" {
		tx = tx.Where("condition = ?", q.Condition)
	}

	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return ListDevicesResult{}, err
	}

	col, ok := deviceSortColumns[q.SortBy]
	if !ok {
		col = "created_at"
	}
	dir := "DESC"
	if strings.EqualFold(q.SortOrder, "asc") {
		dir = "ASC"
	}

	var devices []models.Device
	if err := tx.Preload("Children").
		Order(col + " " + dir).
		Offset((q.Page - 1) * q.Size).
		Limit(q.Size).
		Find(&devices).Error; err != nil {
		return ListDevicesResult{}, err
	}
	return ListDevicesResult{Devices: devices, Total: total}, nil
}

func (r *Repo) SetDeviceCondition(ctx context.Context, id string, cond models.DeviceCondition) error {
	res := r.DB.WithContext(ctx).Model(&models.Device{}).Where("id = ?", id).Update("condition", cond)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repo) SetDeviceStatus(ctx context.Context, id string, status models.DeviceStatus) error {
	res := r.DB.WithContext(ctx).Model(&models.Device{}).Where("id = ?", id).Update("status", status)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Child devices. Every mutation recomputes the parent's derived status inside
// the same transaction.

func (r *Repo) CreateChildDevice(ctx context.Context, ch *models.ChildDevice) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var parent models.Device
		if err := forUpdate(tx).First(&parent, "id = ?", ch.DeviceID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if err := tx.Create(ch).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrCodeTaken
			}
			return err
		}
		return recomputeParentStatus(tx, ch.DeviceID)
	})
}

func (r *Repo) FindChildDeviceByID(ctx context.Context, id string) (*models.ChildDevice, error) {
	var ch models.ChildDevice
	if err := r.DB.WithContext(ctx).First(&ch, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &ch, nil
}

func (r *Repo) UpdateChildDevice(ctx context.Context, id string, fields map[string]interface{}) (*models.ChildDevice, error) {
	var ch models.ChildDevice
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := forUpdate(tx).First(&ch, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if err := tx.Model(&ch).Updates(fields).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrCodeTaken
			}
			return err
		}
		return recomputeParentStatus(tx, ch.DeviceID)
	})
	if err != nil {
		return nil, err
	}
	return &ch, nil
}

func (r *Repo) DeleteChildDevice(ctx context.Context, id string) (string, error) {
	var photo string
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ch models.ChildDevice
		if err := forUpdate(tx).First(&ch, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		photo = ch.PhotoPath
		if err := tx.Delete(&models.ChildDevice{ID: id}).Error; err != nil {
			return err
		}
		return recomputeParentStatus(tx, ch.DeviceID)
	})
	if err != nil {
		return "", err
	}
	return photo, nil
}

// recomputeParentStatus reloads the children and writes the derived status.
// Parents without children keep whatever status loan/admin operations set.
func recomputeParentStatus(tx *gorm.DB, parentID string) error {
	var children []models.ChildDevice
	if err := tx.Where("device_id = ?", parentID).Find(&children).Error; err != nil {
		return err
	}
	if len(children) == 0 {
		return nil
	}
	return tx.Model(&models.Device{}).
		Where("id = ?", parentID).
		Update("status", models.DeriveParentStatus(children)).Error
}
