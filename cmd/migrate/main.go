package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"github.com/ignite/campaign-sheet-sync/internal/pkg/logger"
)

func fatal(msg string, err error) {
	logger.Error(msg, "error", err)
	os.Exit(1)
}

func main() {
	_ = godotenv.Load()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		fatal("DATABASE_URL is required", nil)
	}

	dir := "migrations"
	listOnly := false
	for _, a := range os.Args[1:] {
		if a == "--list" {
			listOnly = true
		} else {
			dir = a
		}
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		fatal("connect", err)
	}
	defer db.Close()

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		fatal("ping", err)
	}
	logger.Info("migrate: connected to database")

	if listOnly {
		tables, err := listTables(ctx, db)
		if err != nil {
			fatal("list tables", err)
		}
		for _, t := range tables {
			fmt.Println(" ", t)
		}
		fmt.Printf("Total: %d tables\n", len(tables))
		return
	}

	files, err := migrationFiles(dir)
	if err != nil {
		fatal("read migrations", err)
	}

	var okCount, errCount int
	for _, f := range files {
		if err := apply(ctx, db, f); err != nil {
			logger.Error("migrate: failed", "file", filepath.Base(f), "error", err)
			errCount++
			continue
		}
		logger.Info("migrate: applied", "file", filepath.Base(f))
		okCount++
	}
	logger.Info("migrate: done", "ok", okCount, "errors", errCount)
	if errCount > 0 {
		os.Exit(1)
	}
}

func listTables(ctx context.Context, db *sql.DB) ([]string, error) {
	rows, err := db.QueryContext(ctx, "SELECT tablename FROM pg_tables WHERE schemaname='public' AND tablename LIKE 'sheet_%' ORDER BY tablename")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// migrationFiles returns the non-empty .sql files in dir, sorted by name.
func migrationFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

func apply(ctx context.Context, db *sql.DB, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if strings.TrimSpace(string(data)) == "" {
		return nil
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, string(data)); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}
