package controllers

import (
	"net/http"
	"strconv"

	"device_loan_service/app"

	"github.com/gin-gonic/gin"
)

type ConditionController struct{ *Srv }

func GetConditionController(s *Srv) *ConditionController { return &ConditionController{Srv: s} }

// GET /api/condition-changes?status=&page=&size=
func (cc *ConditionController) ListRequests(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("size", "20"))

	reqs, total, err := cc.Repo.ListConditionRequests(c.Request.Context(), c.Query("status"), page, size)
	if err != nil {
		c.JSON(http.StatusInternalServerError, app.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, app.H{"total": total, "requests": reqs})
}

// POST /api/condition-changes/:id/approve
func (cc *ConditionController) Approve(c *gin.Context) {
	req, err := cc.Repo.ApproveConditionChange(c.Request.Context(), c.Param("id"), currentUserID(c))
	if err != nil {
		writeRepoError(c, err)
		return
	}
	c.JSON(http.StatusOK, req)
}

// POST /api/condition-changes/:id/reject
func (cc *ConditionController) Reject(c *gin.Context) {
	var in struct {
		Reason string `json:"reason" binding:"required"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		writeBindError(c, err)
		return
	}
	req, err := cc.Repo.RejectConditionChange(c.Request.Context(), c.Param("id"), currentUserID(c), in.Reason)
	if err != nil {
		writeRepoError(c, err)
		return
	}
	c.JSON(http.StatusOK, req)
}
