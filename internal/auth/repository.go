package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const pgUniqueViolation = "23505"

const userColumns = `"id","username","email","password_hash","google_id","github_id","picture","created_at","updated_at"`

// UserRepository is the Postgres UserStore.
type UserRepository struct {
	DB *pgxpool.Pool
}

func NewUserRepository(db *pgxpool.Pool) *UserRepository {
	return &UserRepository{DB: db}
}

func (r *UserRepository) Create(ctx context.Context, u NewUser) (*User, error) {
	query := `
		INSERT INTO "users"
		("id","username","email","password_hash","google_id","github_id","picture")
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING ` + userColumns

	row := r.DB.QueryRow(ctx, query, uuid.NewString(), u.Username, normalizeEmail(u.Email), u.PasswordHash, u.GoogleID, u.GitHubID, u.Picture)
	user, err := scanUser(row)
	if err != nil {
		return nil, mapConstraintError(err)
	}
	return user, nil
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM "users" WHERE "email"=$1`
	return r.findOne(ctx, query, normalizeEmail(email))
}

func (r *UserRepository) FindByID(ctx context.Context, id string) (*User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, nil
	}
	query := `SELECT ` + userColumns + ` FROM "users" WHERE "id"=$1`
	return r.findOne(ctx, query, id)
}

func (r *UserRepository) FindByEmailOrProvider(ctx context.Context, email string, provider Provider, providerID string) (*User, error) {
	column, err := providerColumn(provider)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`
		SELECT %s FROM "users"
		WHERE "email"=$1 OR (%s IS NOT NULL AND %s=$2)
		ORDER BY (%s=$2) DESC NULLS LAST
		LIMIT 1
	`, userColumns, column, column, column)
	return r.findOne(ctx, query, normalizeEmail(email), providerID)
}

// LinkProvider attaches the provider id and fills the picture, leaving
// values that are already set untouched.
func (r *UserRepository) LinkProvider(ctx context.Context, userID string, provider Provider, providerID string, picture *string) (*User, error) {
	column, err := providerColumn(provider)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`
		UPDATE "users"
		SET %s=COALESCE(%s, $1),
		    "picture"=COALESCE("picture", $2),
		    "updated_at"=NOW()
		WHERE "id"=$3
		RETURNING %s
	`, column, column, userColumns)

	user, err := scanUser(r.DB.QueryRow(ctx, query, providerID, picture, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, mapConstraintError(err)
	}
	return user, nil
}

func (r *UserRepository) UpdatePassword(ctx context.Context, userID, hash string) error {
	tag, err := r.DB.Exec(ctx, `
		UPDATE "users"
		SET "password_hash"=$1,
		    "updated_at"=NOW()
		WHERE "id"=$2
	`, hash, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *UserRepository) UpdateUsername(ctx context.Context, userID, username string) (*User, error) {
	row := r.DB.QueryRow(ctx, `
		UPDATE "users"
		SET "username"=$1,
		    "updated_at"=NOW()
		WHERE "id"=$2
		RETURNING `+userColumns, username, userID)
	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, mapConstraintError(err)
	}
	return user, nil
}

func (r *UserRepository) findOne(ctx context.Context, query string, args ...any) (*User, error) {
	user, err := scanUser(r.DB.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return user, err
}

func providerColumn(p Provider) (string, error) {
	switch p {
	case ProviderGoogle:
		return `"google_id"`, nil
	case ProviderGitHub:
		return `"github_id"`, nil
	}
	return "", fmt.Errorf("unknown provider %q", p)
}

func mapConstraintError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != pgUniqueViolation {
		return err
	}
	switch pgErr.ConstraintName {
	case "users_email_key":
		return ErrEmailTaken.Wrap(err)
	case "users_username_key":
		return ErrUsernameTaken.Wrap(err)
	case "users_google_id_key", "users_github_id_key":
		return ErrIdentityTaken.Wrap(err)
	}
	return err
}

func scanUser(row pgx.Row) (*User, error) {
	var (
		u            User
		passwordHash sql.NullString
		googleID     sql.NullString
		githubID     sql.NullString
		picture      sql.NullString
		createdAt    time.Time
		updatedAt    time.Time
	)
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &passwordHash, &googleID, &githubID, &picture, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	u.PasswordHash = nullStringPtr(passwordHash)
	u.GoogleID = nullStringPtr(googleID)
	u.GitHubID = nullStringPtr(githubID)
	u.Picture = nullStringPtr(picture)
	u.CreatedAt = createdAt
	u.UpdatedAt = updatedAt
	return &u, nil
}

func nullStringPtr(ns sql.NullString) *string {
	if ns.Valid {
		return &ns.String
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
