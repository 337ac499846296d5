package user

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq" // драйвер postgres
	"golang.org/x/crypto/bcrypt"
)

// PGStore хранит пользователей в Postgres.
type PGStore struct {
	Db *sql.DB
}

// NewPGStore открывает соединение и применяет миграции.
func NewPGStore(dsn string) (*PGStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := runMigrations(context.Background(), db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &PGStore{Db: db}, nil
}

func (s *PGStore) Register(username, password string) error {
	cred, err := Credentials{Username: username, Password: password}.Normalize()
	if err != nil {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(cred.Password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	query := `INSERT INTO users (username, password_hash, created_at) VALUES ($1, $2, $3)`
	if _, err = s.Db.Exec(query, cred.Username, string(hash), time.Now()); err != nil {
		if strings.Contains(err.Error(), "unique") {
			return ErrExists
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *PGStore) Authenticate(username, password string) bool {
	var hash string
	err := s.Db.QueryRow(`SELECT password_hash FROM users WHERE username = $1`, username).Scan(&hash)
	if err != nil {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

func (s *PGStore) Close() error {
	return s.Db.Close()
}
