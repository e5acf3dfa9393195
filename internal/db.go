package database

import (
	"log"
	"os"

	_ "github.com/jackc/pgx/v5/stdlib" // Postgres driver, registered for database/sql
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
)

// DB holds the process-wide database connection pool.
var DB *sqlx.DB

// Connect initializes the database connection from DATABASE_URL.
// The Hub refuses to start without a reachable store.
func Connect() {
	if err := godotenv.Load(".env"); err != nil {
		log.Println("Warning: Could not load .env file:", err)
	}

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("FATAL: DATABASE_URL environment variable is not set")
	}

	db, err := sqlx.Connect("pgx", dsn)
	if err != nil {
		log.Fatalf("FATAL: Unable to connect to database: %v", err)
	}

	DB = db
	log.Println("Successfully connected to the database")
}
