package routes

import (
	"time"

	"device_loan_service/app"
	"device_loan_service/controllers"

	"github.com/gin-gonic/gin"
)

func RegisterRoutes(r *gin.Engine, a *app.App) {
	s := controllers.GetSrv(a)
	authCtl := controllers.GetAuthController(s)
	userCtl := controllers.GetUserController(s)
	deviceCtl := controllers.GetDeviceController(s)
	loanCtl := controllers.GetLoanController(s)
	condCtl := controllers.GetConditionController(s)

	authMW := app.AuthRequired(s.AppSess, s.Repo)
	adminMW := app.AdminOnly()
	seenMW := app.TouchLastSeen(s.Repo, a.RDB, 5*time.Minute)
	rateMW := app.RateLimit(a.RDB, a.Config.RateLimit, a.Config.RateWindow)

	// ------------------------------
	// Auth
	// ------------------------------
	auth := r.Group("/auth", rateMW)
	{
		auth.POST("/login", authCtl.Login)
	}
	authed := r.Group("/auth", authMW, seenMW)
	{
		authed.POST("/logout", authCtl.Logout)
		authed.GET("/whoami", authCtl.WhoAmI)
	}

	// ------------------------------
	// User management (admin)
	// ------------------------------
	users := r.Group("/api/users", authMW, adminMW)
	{
		users.POST("", authCtl.CreateUser)
		users.GET("", userCtl.ListUsers) // ?q=&page=&size=
		users.GET("/:id", userCtl.GetUser)
		users.DELETE("/:id", userCtl.DeleteUser)
	}

	// ------------------------------
	// Device registry
	// ------------------------------
	devices := r.Group("/api/devices", authMW, seenMW)
	{
		devices.GET("", deviceCtl.ListDevices)
		devices.GET("/:id", deviceCtl.GetDevice)
	}
	devicesAdmin := r.Group("/api/devices", authMW, adminMW)
	{
		devicesAdmin.POST("", deviceCtl.CreateDevice)
		devicesAdmin.PATCH("/:id", deviceCtl.UpdateDevice)
		devicesAdmin.DELETE("/:id", deviceCtl.DeleteDevice)
		devicesAdmin.PATCH("/:id/condition", deviceCtl.SetCondition)
		devicesAdmin.PATCH("/:id/status", deviceCtl.SetStatus)
		devicesAdmin.POST("/:id/children", deviceCtl.CreateChild)
	}
	childrenAdmin := r.Group("/api/children", authMW, adminMW)
	{
		childrenAdmin.PATCH("/:id", deviceCtl.UpdateChild)
		childrenAdmin.DELETE("/:id", deviceCtl.DeleteChild)
	}

	// ------------------------------
	// Loan lifecycle
	// ------------------------------
	loans := r.Group("/api/loans", authMW, seenMW)
	{
		loans.POST("", rateMW, loanCtl.CreateLoan)
		loans.GET("", loanCtl.ListLoans) // ?status=&borrowerId=&page=&size=&sortBy=&sortOrder=
		loans.GET("/:id", loanCtl.GetLoan)
		loans.PATCH("/:id", loanCtl.UpdateLoan)
		loans.POST("/:id/return", loanCtl.ReturnLoan)
		loans.GET("/:id/document", loanCtl.LoanDocument)
	}
	loansAdmin := r.Group("/api/loans", authMW, adminMW)
	{
		loansAdmin.POST("/:id/cancel", loanCtl.CancelLoan)
		loansAdmin.POST("/mark-overdue", loanCtl.MarkOverdue)
	}

	// ------------------------------
	// Condition change approvals (admin)
	// ------------------------------
	cond := r.Group("/api/condition-changes", authMW, adminMW)
	{
		cond.GET("", condCtl.ListRequests) // ?status=
		cond.POST("/:id/approve", condCtl.Approve)
		cond.POST("/:id/reject", condCtl.Reject)
	}
}
