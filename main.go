package main

import (
	"device_loan_service/app"
	"device_loan_service/config"
	"device_loan_service/db"
	"device_loan_service/routes"
	"log"
	"os"
)

func main() {
	config.LoadEnv()

	application := app.MustNew()
	defer application.Close()

	repo := db.NewRepo(application.DB)
	app.BootstrapFirstAdmin(application.Context(), application.Config, repo)
	app.StartOverdueSweeper(application.Context(), repo, application.Config.SweepInterval)

	r := application.Router

	// Health
	r.GET("/healthz", func(c *app.Ctx) { c.JSON(200, app.H{"ok": true}) })

	routes.RegisterRoutes(r, application)

	port := os.Getenv("PORT")
	if port == "" {
		port = "3001"
	}
	log.Printf("listening on :%s", port)
	_ = r.Run(":" + port)
}
