package main

import (
	"flag"
	"log"

	"github.com/xavierca1/lead-relay/internal/config"
	"github.com/xavierca1/lead-relay/internal/infra/database"
)

func main() {
	direction := flag.String("direction", "up", "migration direction: up or down")
	flag.Parse()
	if flag.NArg() > 0 {
		*direction = flag.Arg(0)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	dialect := database.Dialect(cfg.DatabaseDriver)
	db, err := database.NewDBConnection(dialect, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("❌ database: %v", err)
	}
	defer db.Close()

	if err := database.Migrate(db, dialect, *direction); err != nil {
		log.Fatalf("❌ migrate %s: %v", *direction, err)
	}
	log.Printf("✅ migrations %s applied (%s)", *direction, dialect)
}
