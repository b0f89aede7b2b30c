package main

import (
	"fmt"
	"log"

	"medcover-tracking/internal/config"
	"medcover-tracking/internal/database"
)

func main() {
	config.LoadEnv()

	cfg, err := config.LoadServer()
	if err != nil {
		log.Fatal(err)
	}

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := database.Migrate(db); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}
	log.Println("Migration completed successfully!")

	var summary struct {
		Samples int `db:"samples"`
		Events  int `db:"events"`
		Workers int `db:"workers"`
	}
	query := `
		SELECT
			(SELECT COUNT(*) FROM position_samples) AS samples,
			(SELECT COUNT(*) FROM shift_events) AS events,
			(SELECT COUNT(DISTINCT worker_id) FROM position_samples) AS workers
	`
	if err := db.Get(&summary, query); err != nil {
		log.Fatalf("Failed to query summary: %v", err)
	}

	fmt.Println("\n============================================================")
	fmt.Println("TRACKING STORE SUMMARY")
	fmt.Println("============================================================")
	fmt.Printf("Position samples:        %d\n", summary.Samples)
	fmt.Printf("Shift events:            %d\n", summary.Events)
	fmt.Printf("Workers with samples:    %d\n", summary.Workers)
	fmt.Println("============================================================")
}
