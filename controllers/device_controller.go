package controllers

import (
	"log"
	"net/http"
	"os"
	"strconv"

	"device_loan_service/app"
	"device_loan_service/db"
	"device_loan_service/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type DeviceController struct{ *Srv }

func GetDeviceController(s *Srv) *DeviceController { return &DeviceController{Srv: s} }

// POST /api/devices
func (dc *DeviceController) CreateDevice(c *gin.Context) {
	var in struct {
		Code      string `json:"code" binding:"required"`
		Name      string `json:"name" binding:"required"`
		Brand     string `json:"brand"`
		Year      int    `json:"year"`
		Station   string `json:"station"`
		Room      string `json:"room"`
		Condition string `json:"condition" binding:"omitempty,oneof=GOOD LIGHT_DAMAGE HEAVY_DAMAGE"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		writeBindError(c, err)
		return
	}

	d := &models.Device{
		ID:        uuid.NewString(),
		Code:      in.Code,
		Name:      in.Name,
		Brand:     in.Brand,
		Year:      in.Year,
		Station:   in.Station,
		Room:      in.Room,
		Condition: models.ConditionGood,
		Status:    models.DeviceAvailable,
	}
	if in.Condition != "" {
		d.Condition = models.DeviceCondition(in.Condition)
	}
	if err := dc.Repo.CreateDevice(c.Request.Context(), d); err != nil {
		writeRepoError(c, err)
		return
	}
	c.JSON(http.StatusCreated, d)
}

// GET /api/devices?q=&status=&condition=&page=&size=&sortBy=&sortOrder=
func (dc *DeviceController) ListDevices(c *gin.Context) {
	q := db.ListDevicesQuery{
		Q:         c.Query("q"),
		Status:    c.Query("status"),
		Condition: c.Query("condition"),
		SortBy:    c.Query("sortBy"),
		SortOrder: c.Query("sortOrder"),
	}
	q.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	q.Size, _ = strconv.Atoi(c.DefaultQuery("size", "20"))

	res, err := dc.Repo.ListDevices(c.Request.Context(), q)
	if err != nil {
		c.JSON(http.StatusInternalServerError, app.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, app.H{"total": res.Total, "devices": res.Devices})
}

// GET /api/devices/:id — id or human code.
func (dc *DeviceController) GetDevice(c *gin.Context) {
	id := c.Param("id")
	var (
		d   *models.Device
		err error
	)
	if _, perr := uuid.Parse(id); perr == nil {
		d, err = dc.Repo.FindDeviceByID(c.Request.Context(), id)
	} else {
		d, err = dc.Repo.FindDeviceByCode(c.Request.Context(), id)
	}
	if err != nil {
		writeRepoError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

// PATCH /api/devices/:id
func (dc *DeviceController) UpdateDevice(c *gin.Context) {
	var in struct {
		Code    *string `json:"code"`
		Name    *string `json:"name"`
		Brand   *string `json:"brand"`
		Year    *int    `json:"year"`
		Station *string `json:"station"`
		Room    *string `json:"room"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		writeBindError(c, err)
		return
	}

	fields := map[string]interface{}{}
	if in.Code != nil {
		fields["code"] = *in.Code
	}
	if in.Name != nil {
		fields["name"] = *in.Name
	}
	if in.Brand != nil {
		fields["brand"] = *in.Brand
	}
	if in.Year != nil {
		fields["year"] = *in.Year
	}
	if in.Station != nil {
		fields["station"] = *in.Station
	}
	if in.Room != nil {
		fields["room"] = *in.Room
	}
	if len(fields) == 0 {
		c.JSON(http.StatusBadRequest, app.H{"error": "empty update"})
		return
	}

	d, err := dc.Repo.UpdateDevice(c.Request.Context(), c.Param("id"), fields)
	if err != nil {
		writeRepoError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

// DELETE /api/devices/:id — hard delete; stored photos are unlinked best-effort.
func (dc *DeviceController) DeleteDevice(c *gin.Context) {
	photos, err := dc.Repo.DeleteDevice(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeRepoError(c, err)
		return
	}
	for _, p := range photos {
		if rmErr := os.Remove(p); rmErr != nil && !os.IsNotExist(rmErr) {
			log.Printf("device photo unlink failed: %v", rmErr)
		}
	}
	c.JSON(http.StatusOK, app.H{"ok": true})
}

// PATCH /api/devices/:id/condition
func (dc *DeviceController) SetCondition(c *gin.Context) {
	var in struct {
		Condition string `json:"condition" binding:"required,oneof=GOOD LIGHT_DAMAGE HEAVY_DAMAGE"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		writeBindError(c, err)
		return
	}
	if err := dc.Repo.SetDeviceCondition(c.Request.Context(), c.Param("id"), models.DeviceCondition(in.Condition)); err != nil {
		writeRepoError(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"ok": true})
}

// PATCH /api/devices/:id/status
func (dc *DeviceController) SetStatus(c *gin.Context) {
	var in struct {
		Status string `json:"status" binding:"required,oneof=AVAILABLE BORROWED MAINTENANCE INACTIVE"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		writeBindError(c, err)
		return
	}
	if err := dc.Repo.SetDeviceStatus(c.Request.Context(), c.Param("id"), models.DeviceStatus(in.Status)); err != nil {
		writeRepoError(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"ok": true})
}

// POST /api/devices/:id/children
func (dc *DeviceController) CreateChild(c *gin.Context) {
	var in struct {
		Code      string `json:"code" binding:"required"`
		Name      string `json:"name" binding:"required"`
		Condition string `json:"condition" binding:"omitempty,oneof=GOOD LIGHT_DAMAGE HEAVY_DAMAGE"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		writeBindError(c, err)
		return
	}

	ch := &models.ChildDevice{
		ID:        uuid.NewString(),
		DeviceID:  c.Param("id"),
		Code:      in.Code,
		Name:      in.Name,
		Condition: models.ConditionGood,
		Status:    models.DeviceAvailable,
	}
	if in.Condition != "" {
		ch.Condition = models.DeviceCondition(in.Condition)
	}
	if err := dc.Repo.CreateChildDevice(c.Request.Context(), ch); err != nil {
		writeRepoError(c, err)
		return
	}
	c.JSON(http.StatusCreated, ch)
}

// PATCH /api/children/:id
func (dc *DeviceController) UpdateChild(c *gin.Context) {
	var in struct {
		Code      *string `json:"code"`
		Name      *string `json:"name"`
		Condition *string `json:"condition" binding:"omitempty,oneof=GOOD LIGHT_DAMAGE HEAVY_DAMAGE"`
		Status    *string `json:"status" binding:"omitempty,oneof=AVAILABLE BORROWED MAINTENANCE INACTIVE"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		writeBindError(c, err)
		return
	}

	fields := map[string]interface{}{}
	if in.Code != nil {
		fields["code"] = *in.Code
	}
	if in.Name != nil {
		fields["name"] = *in.Name
	}
	if in.Condition != nil {
		fields["condition"] = *in.Condition
	}
	if in.Status != nil {
		fields["status"] = *in.Status
	}
	if len(fields) == 0 {
		c.JSON(http.StatusBadRequest, app.H{"error": "empty update"})
		return
	}

	ch, err := dc.Repo.UpdateChildDevice(c.Request.Context(), c.Param("id"), fields)
	if err != nil {
		writeRepoError(c, err)
		return
	}
	c.JSON(http.StatusOK, ch)
}

// DELETE /api/children/:id
func (dc *DeviceController) DeleteChild(c *gin.Context) {
	photo, err := dc.Repo.DeleteChildDevice(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeRepoError(c, err)
		return
	}
	if photo != "" {
		if rmErr := os.Remove(photo); rmErr != nil && !os.IsNotExist(rmErr) {
			log.Printf("child photo unlink failed: %v", rmErr)
		}
	}
	c.JSON(http.StatusOK, app.H{"ok": true})
}
