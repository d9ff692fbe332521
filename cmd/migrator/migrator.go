package main

import (
	"context"
	"flag"
	"log"
	"os"

	pg "github.com/leasehub/leaseAuth/postgres"
)

func main() {
	down := flag.Bool("down", false, "roll back the most recent migration")
	status := flag.Bool("status", false, "print migration status and exit")
	flag.Parse()

	dsn := os.Getenv("DB_DSN")
	if dsn == "" {
		log.Fatal("DB_DSN is empty")
	}

	ctx := context.Background()
	if *status {
		if err := pg.MigrationStatus(ctx, dsn); err != nil {
			log.Fatalf("migration status: %v", err)
		}
		return
	}

	if err := pg.Migrate(ctx, dsn, *down); err != nil {
		log.Fatalf("migrate: %v", err)
	}
	if *down {
		log.Println("migrations: down OK")
		return
	}
	log.Println("migrations: up OK")
}
