package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

func main() {
	upFlag := flag.Bool("up", false, "Migrate up")
	downFlag := flag.Bool("down", false, "Migrate down")
	versionFlag := flag.Int("version", 0, "Migrate to specific version")
	dsnFlag := flag.String("dsn", "", "Postgres DSN (defaults to DATABASE_URL)")
	flag.Parse()

	dsn := *dsnFlag
	if dsn == "" {
		dsn = os.Getenv("DATABASE_URL")
	}
	if dsn == "" {
		log.Fatal("no database DSN provided: pass -dsn or set DATABASE_URL")
	}

	m, err := migrate.New("file://db/migrations", dsn)
	if err != nil {
		log.Fatalf("failed to create migrate instance: %v", err)
	}
	defer m.Close()

	switch {
	case *upFlag:
		if err := m.Up(); err != nil && err != migrate.ErrNoChange {
			log.Fatalf("failed to migrate up: %v", err)
		}
		log.Println("migration up completed successfully")
	case *downFlag:
		if err := m.Down(); err != nil && err != migrate.ErrNoChange {
			log.Fatalf("failed to migrate down: %v", err)
		}
		log.Println("migration down completed successfully")
	case *versionFlag > 0:
		if err := m.Migrate(uint(*versionFlag)); err != nil && err != migrate.ErrNoChange {
			log.Fatalf("failed to migrate to version %d: %v", *versionFlag, err)
		}
		log.Printf("migration to version %d completed successfully", *versionFlag)
	default:
		fmt.Println("no migration action specified; use -up, -down, or -version")
		os.Exit(1)
	}
}
