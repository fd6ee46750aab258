package repository

import (
	"errors"
	"fmt"
	"time"

	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/clinchain/backend/repository/models"
)

// PostgreSQL error codes surfaced in RepositoryError.Code.
const (
	PgErrForeignKeyViolation = "23503"
	PgErrUniqueViolation     = "23505"
	PgErrCheckViolation      = "23514"
	PgErrNotNullViolation    = "23502"
	PgErrConnectionFailure   = "08006"
)

// RepositoryError represents an error in the persistence layer. Code carries
// the PostgreSQL error code when one is available.
type RepositoryError struct {
	Code    string
	Message string
	Detail  string
}

func (e *RepositoryError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Detail)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// wrapDBError converts a gorm error into a RepositoryError, preserving the
// PostgreSQL error code when the driver reports one.
func wrapDBError(message string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return &RepositoryError{
			Code:    pgErr.Code,
			Message: pgErr.Message,
			Detail:  pgErr.Detail,
		}
	}
	return &RepositoryError{
		Code:    "DATABASE_ERROR",
		Message: message,
		Detail:  err.Error(),
	}
}

// Repository owns the database handle and the schema lifecycle.
type Repository struct {
	db     *gorm.DB
	logger cmtlog.Logger
}

func NewRepository(logger cmtlog.Logger) *Repository {
	return &Repository{logger: logger}
}

// ConnectDB opens the Postgres connection, retrying while the database is
// still starting up.
func (r *Repository) ConnectDB(dsn string) error {
	var lastErr error
	for i := range 10 {
		db, err := gorm.Open(postgres.Open(dsn))
		if err == nil {
			r.db = db
			r.logger.Info("Connected to Postgres")
			return nil
		}
		lastErr = err
		r.logger.Info("Connection attempt failed, retrying", "attempt", i+1, "err", err)
		time.Sleep(2 * time.Second)
	}
	return fmt.Errorf("connecting to database: %w", lastErr)
}

// DB exposes the handle to the store constructors.
func (r *Repository) DB() *gorm.DB {
	return r.db
}

func (r *Repository) Migrate() error {
	err := r.db.AutoMigrate(
		&models.User{},
		&models.Lot{},
		&models.LotHistory{},
	)
	if err != nil {
		return fmt.Errorf("migrating schema: %w", err)
	}
	r.logger.Info("Database migration completed")
	return nil
}

// Seed creates one account per role so a fresh deployment can exercise the
// whole lifecycle. It is idempotent: an already-populated user table is left
// untouched.
func (r *Repository) Seed(defaultPassword string) error {
	var userCount int64
	if err := r.db.Model(&models.User{}).Count(&userCount).Error; err != nil {
		return wrapDBError("counting users", err)
	}
	if userCount > 0 {
		r.logger.Info("Seed data already exists, skipping")
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(defaultPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hashing seed password: %w", err)
	}

	users := []models.User{
		{ID: uuid.NewString(), Username: "wholesaler1", Password: string(hash), Role: models.RoleWholesaler},
		{ID: uuid.NewString(), Username: "hospital1", Password: string(hash), Role: models.RoleHospital},
		{ID: uuid.NewString(), Username: "pharmacist1", Password: string(hash), Role: models.RolePharmacist},
		{ID: uuid.NewString(), Username: "nurse1", Password: string(hash), Role: models.RoleNurse},
	}
	for _, user := range users {
		if err := r.db.Create(&user).Error; err != nil {
			return wrapDBError(fmt.Sprintf("creating seed user %s", user.Username), err)
		}
	}

	r.logger.Info("Database seeding completed", "users", len(users))
	return nil
}
