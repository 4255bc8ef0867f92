package models

import "time"

const DeviceTable = "dl_devices"
const ChildDeviceTable = "dl_child_devices"

type DeviceCondition string

const (
	ConditionGood        DeviceCondition = "GOOD"
	ConditionLightDamage DeviceCondition = "LIGHT_DAMAGE"
	ConditionHeavyDamage DeviceCondition = "HEAVY_DAMAGE"
)

func (c DeviceCondition) Valid() bool {
	switch c {
	case ConditionGood, ConditionLightDamage, ConditionHeavyDamage:
		return true
	}
	return false
}

type DeviceStatus string

const (
	DeviceAvailable   DeviceStatus = "AVAILABLE"
	DeviceBorrowed    DeviceStatus = "BORROWED"
	DeviceMaintenance DeviceStatus = "MAINTENANCE"
	DeviceInactive    DeviceStatus = "INACTIVE"
)

func (s DeviceStatus) Valid() bool {
	switch s {
	case DeviceAvailable, DeviceBorrowed, DeviceMaintenance, DeviceInactive:
		return true
	}
	return false
}

// Loanable reports whether a device in this status may appear on a new loan.
// BORROWED is allowed here on purpose: the date-range overlap check is the
// authority on lending conflicts, so a device borrowed for a disjoint period
// can still be requested.
func (s DeviceStatus) Loanable() bool {
	return s == DeviceAvailable || s == DeviceBorrowed
}

type Device struct {
	ID        string          `gorm:"type:uuid;primaryKey" json:"id"`
	Code      string          `gorm:"size:120;uniqueIndex;not null" json:"code"`
	Name      string          `gorm:"size:200;not null" json:"name"`
	Brand     string          `gorm:"size:120" json:"brand,omitempty"`
	Year      int             `json:"year,omitempty"`
	Station   string          `gorm:"size:120" json:"station,omitempty"`
	Room      string          `gorm:"size:120" json:"room,omitempty"`
	Condition DeviceCondition `gorm:"size:20;not null;default:'GOOD'" json:"condition"`
	Status    DeviceStatus    `gorm:"size:20;not null;default:'AVAILABLE'" json:"status"`
	PhotoPath string          `gorm:"size:255" json:"photoPath,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	Children []ChildDevice `gorm:"foreignKey:DeviceID;constraint:OnDelete:CASCADE" json:"children,omitempty"`
}

type ChildDevice struct {
	ID        string          `gorm:"type:uuid;primaryKey" json:"id"`
	DeviceID  string          `gorm:"type:uuid;index;not null" json:"deviceId"`
	Code      string          `gorm:"size:120;uniqueIndex;not null" json:"code"`
	Name      string          `gorm:"size:200;not null" json:"name"`
	Condition DeviceCondition `gorm:"size:20;not null;default:'GOOD'" json:"condition"`
	Status    DeviceStatus    `gorm:"size:20;not null;default:'AVAILABLE'" json:"status"`
	PhotoPath string          `gorm:"size:255" json:"photoPath,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (Device) TableName() string      { return DeviceTable }
func (ChildDevice) TableName() string { return ChildDeviceTable }

// DeriveParentStatus computes the status a parent with children should carry:
// AVAILABLE while at least one child is AVAILABLE, else BORROWED. Recomputed
// inside the same transaction as any child mutation, never cached.
func DeriveParentStatus(children []ChildDevice) DeviceStatus {
	for _, ch := range children {
		if ch.Status == DeviceAvailable {
			return DeviceAvailable
		}
	}
	return DeviceBorrowed
}
