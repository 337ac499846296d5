package user_test

import (
	"database/sql"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock" // библиотека для моков SQL-запросов
	"github.com/go-portfolio/chat-transport/internal/user"
	"github.com/stretchr/testify/assert" // удобные ассерты
	"golang.org/x/crypto/bcrypt"        // для генерации и проверки хэшей паролей
)

var (
	_ user.UserStore = (*user.MemoryStore)(nil)
	_ user.UserStore = (*user.PGStore)(nil)
)

const insertQuery = `INSERT INTO users (username, password_hash, created_at) VALUES ($1, $2, $3)`
const selectQuery = `SELECT password_hash FROM users WHERE username = $1`

// --- ТЕСТЫ ДЛЯ MemoryStore ---

func TestMemoryStore_RegisterAndAuthenticate(t *testing.T) {
	store := user.NewMemoryStore()

	assert.NoError(t, store.Register("  alice ", "secret"))
	// Пробелы по краям логина отрезаются
	assert.True(t, store.Authenticate("alice", "secret"))
	assert.False(t, store.Authenticate("alice", "wrong"))
	assert.False(t, store.Authenticate("nobody", "secret"))
}

func TestMemoryStore_Validation(t *testing.T) {
	store := user.NewMemoryStore()

	assert.ErrorIs(t, store.Register("", "secret"), user.ErrRequired)
	assert.ErrorIs(t, store.Register("bob", ""), user.ErrRequired)
	assert.ErrorIs(t, store.Register("this_is_way_too_long_username", "secret"), user.ErrTooLong)

	assert.NoError(t, store.Register("bob", "pass"))
	assert.ErrorIs(t, store.Register("bob", "other"), user.ErrExists)
}

// --- ТЕСТЫ ДЛЯ PGStore.Register ---

func TestPGStore_Register_Success(t *testing.T) {
	// создаём фейковую (mock) базу и объект Store
	db, mock, _ := sqlmock.New()
	defer db.Close()
	store := &user.PGStore{Db: db}

	// sqlmock.AnyArg() — хэш и время заранее неизвестны
	mock.ExpectExec(regexp.QuoteMeta(insertQuery)).
		WithArgs("alice", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := store.Register("alice", "secret")

	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPGStore_Register_Validation(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer db.Close()
	store := &user.PGStore{Db: db}

	assert.EqualError(t, store.Register("", "secret"), "username and password are required")
	assert.EqualError(t, store.Register("this_is_way_too_long_username", "secret"), "username too long (max 24)")
	// До базы дело не доходит
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPGStore_Register_UniqueViolation(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer db.Close()
	store := &user.PGStore{Db: db}

	// Эмулируем ошибку уникальности (duplicate key)
	mock.ExpectExec(regexp.QuoteMeta(insertQuery)).
		WillReturnError(errors.New(`pq: duplicate key value violates unique constraint "users_username_key"`))

	assert.ErrorIs(t, store.Register("alice", "secret"), user.ErrExists)
}

func TestPGStore_Register_DBError(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer db.Close()
	store := &user.PGStore{Db: db}

	mock.ExpectExec(regexp.QuoteMeta(insertQuery)).
		WillReturnError(errors.New("connection reset"))

	err := store.Register("alice", "secret")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, user.ErrExists)
}

// --- ТЕСТЫ ДЛЯ PGStore.Authenticate ---

func TestPGStore_Authenticate(t *testing.T) {
	hash, _ := bcrypt.GenerateFromPassword([]byte("secret"), bcrypt.MinCost)

	cases := []struct {
		name     string
		password string
		rows     *sqlmock.Rows
		err      error
		want     bool
	}{
		{"правильный пароль", "secret", sqlmock.NewRows([]string{"password_hash"}).AddRow(string(hash)), nil, true},
		{"неправильный пароль", "wrong", sqlmock.NewRows([]string{"password_hash"}).AddRow(string(hash)), nil, false},
		{"нет пользователя", "secret", nil, sql.ErrNoRows, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			db, mock, _ := sqlmock.New()
			defer db.Close()
			store := &user.PGStore{Db: db}

			q := mock.ExpectQuery(regexp.QuoteMeta(selectQuery)).WithArgs("alice")
			if tc.err != nil {
				q.WillReturnError(tc.err)
			} else {
				q.WillReturnRows(tc.rows)
			}

			assert.Equal(t, tc.want, store.Authenticate("alice", tc.password))
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestPGStore_Close(t *testing.T) {
	db, mock, _ := sqlmock.New()
	store := &user.PGStore{Db: db}
	mock.ExpectClose()

	assert.NoError(t, store.Close())
	assert.NoError(t, mock.ExpectationsWereMet())
}
