package users

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gridstonehq/gridstone/backend/internal/core"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// User is an authenticated identity. A user owns zero or more bases.
type User struct {
	ID           int64  `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	Email        string `gorm:"column:email;size:190;not null;uniqueIndex" json:"email"`
	PasswordHash string `gorm:"column:password_hash;not null" json:"-"`
}

// TableName provides the explicit table binding for GORM.
func (User) TableName() string {
	return "users"
}

var (
	errMissingDatabase    = errors.New("database handle is required")
	errInvalidEmail       = errors.New("users: email is required")
	errInvalidPassword    = errors.New("users: password is required")
	errInvalidCredentials = errors.New("users: invalid credentials")
	noOpLogger            = zap.NewNop()
)

const (
	opServiceNew   = "users.service.new"
	opRegister     = "users.register"
	opAuthenticate = "users.authenticate"
	opGetByID      = "users.get_by_id"
	opGetByEmail   = "users.get_by_email"
)

// ServiceConfig describes the dependencies for the user service.
type ServiceConfig struct {
	Database *gorm.DB
	Logger   *zap.Logger
}

// Service manages user registration and credential verification.
type Service struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewService constructs the user service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, core.Internal(opServiceNew, "missing_database", errMissingDatabase)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Service{db: cfg.Database, logger: logger}, nil
}

// Register creates a user with a bcrypt-hashed password. A duplicate email
// is a conflict.
func (s *Service) Register(ctx context.Context, email, password string) (User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return User{}, core.Validation(opRegister, "invalid_email", errInvalidEmail)
	}
	if password == "" {
		return User{}, core.Validation(opRegister, "invalid_password", errInvalidPassword)
	}

	var existing int64
	if err := s.db.WithContext(ctx).Model(&User{}).
		Where("email = ?", email).
		Count(&existing).Error; err != nil {
		s.logError(opRegister, "lookup_failed", err)
		return User{}, core.Internal(opRegister, "lookup_failed", err)
	}
	if existing > 0 {
		return User{}, core.Conflict(opRegister, "email_taken",
			fmt.Errorf("users: email %s already registered", email))
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		s.logError(opRegister, "hash_failed", err)
		return User{}, core.Internal(opRegister, "hash_failed", err)
	}

	user := User{Email: email, PasswordHash: string(hash)}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		s.logError(opRegister, "insert_failed", err)
		return User{}, core.Internal(opRegister, "insert_failed", err)
	}
	return user, nil
}

// Authenticate verifies credentials and returns the matching user. Both an
// unknown email and a wrong password fail the same way.
func (s *Service) Authenticate(ctx context.Context, email, password string) (User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	var user User
	err := s.db.WithContext(ctx).Where("email = ?", email).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return User{}, core.Forbidden(opAuthenticate, "invalid_credentials", errInvalidCredentials)
	}
	if err != nil {
		s.logError(opAuthenticate, "lookup_failed", err)
		return User{}, core.Internal(opAuthenticate, "lookup_failed", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return User{}, core.Forbidden(opAuthenticate, "invalid_credentials", errInvalidCredentials)
	}
	return user, nil
}

// GetByID returns the user with the given id.
func (s *Service) GetByID(ctx context.Context, userID int64) (User, error) {
	var user User
	err := s.db.WithContext(ctx).Where("id = ?", userID).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return User{}, core.NotFound(opGetByID, "user_missing", err)
	}
	if err != nil {
		s.logError(opGetByID, "lookup_failed", err)
		return User{}, core.Internal(opGetByID, "lookup_failed", err)
	}
	return user, nil
}

// GetByEmail returns the user with the given email.
func (s *Service) GetByEmail(ctx context.Context, email string) (User, error) {
	var user User
	err := s.db.WithContext(ctx).
		Where("email = ?", strings.ToLower(strings.TrimSpace(email))).
		Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return User{}, core.NotFound(opGetByEmail, "user_missing", err)
	}
	if err != nil {
		s.logError(opGetByEmail, "lookup_failed", err)
		return User{}, core.Internal(opGetByEmail, "lookup_failed", err)
	}
	return user, nil
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("users service error", attrs...)
}
