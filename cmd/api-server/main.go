package main

import (
	"log"

	"support-desk-backend/internal/api"
	"support-desk-backend/internal/api/router"
	"support-desk-backend/internal/database"
	"support-desk-backend/internal/env"
	"support-desk-backend/internal/queue"
)

func main() {
	if err := env.CheckRequired(); err != nil {
		log.Fatalf("config error: %v", err)
	}

	queueManager := queue.NewRequestQueueManager(10, 10)
	db, err := database.NewDatabase()
	if err != nil {
		log.Fatalf("db init failed: %v", err)
	}

	server := api.NewAPIServer(
		":82",
		queueManager,
		db,
		nil,
		router.UtilsRoutes("/api/support/v1"),
		router.SupportCaseRoutes("/api/support/v1"),
	)

	server.Run()
}
