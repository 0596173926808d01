package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/argus-sec/argus/internal/config"
	"github.com/argus-sec/argus/internal/models"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrAccountLocked      = errors.New("account temporarily locked")
	ErrAccountDisabled    = errors.New("account disabled")
	ErrInvalidToken       = errors.New("invalid or expired token")
)

const (
	maxFailedLogins = 5
	lockoutDuration = 15 * time.Minute
	tokenLifetime   = 24 * time.Hour
)

// AuthService issues and validates JWT bearer tokens for the admin
// surface and doubles as the gateway's principal resolver.
type AuthService struct {
	db     *gorm.DB
	events *EventService
	secret []byte
}

func NewAuthService(db *gorm.DB, cfg config.Config, events *EventService) *AuthService {
	return &AuthService{db: db, events: events, secret: []byte(cfg.JWTSecret)}
}

type claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Login verifies credentials and returns a signed token. Failed attempts
// increment the lockout counter and record a login_failed event.
func (s *AuthService) Login(ctx context.Context, email, password, clientIP string) (string, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.recordFailure(ctx, clientIP, email)
			return "", ErrInvalidCredentials
		}
		return "", err
	}

	if !user.Enabled {
		return "", ErrAccountDisabled
	}
	if user.IsLocked() {
		return "", ErrAccountLocked
	}

	if !user.CheckPassword(password) {
		user.FailedLoginAttempts++
		if user.FailedLoginAttempts >= maxFailedLogins {
			until := time.Now().Add(lockoutDuration)
			user.LockedUntil = &until
			user.FailedLoginAttempts = 0
		}
		_ = s.db.WithContext(ctx).Save(&user).Error
		s.recordFailure(ctx, clientIP, email)
		return "", ErrInvalidCredentials
	}

	now := time.Now()
	user.FailedLoginAttempts = 0
	user.LockedUntil = nil
	user.LastLogin = &now
	if err := s.db.WithContext(ctx).Save(&user).Error; err != nil {
		return "", err
	}

	return s.issueToken(&user)
}

// ResolveToken validates a bearer token and loads its principal. Used by
// both the auth middleware and the origin gate.
func (s *AuthService) ResolveToken(tokenString string) (*models.User, error) {
	if len(s.secret) == 0 {
		return nil, ErrInvalidToken
	}

	parsed, err := jwt.ParseWithClaims(tokenString, &claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	c, ok := parsed.Claims.(*claims)
	if !ok {
		return nil, ErrInvalidToken
	}

	var user models.User
	if err := s.db.Where("uuid = ?", c.Subject).First(&user).Error; err != nil {
		return nil, ErrInvalidToken
	}
	if !user.Enabled {
		return nil, ErrAccountDisabled
	}
	return &user, nil
}

// CreateUser provisions an account; used by the seeder.
func (s *AuthService) CreateUser(ctx context.Context, email, password, name, role string) (*models.User, error) {
	user := models.User{
		UUID:    uuid.NewString(),
		Email:   email,
		Name:    name,
		Role:    role,
		APIKey:  uuid.NewString(),
		Enabled: true,
	}
	if err := user.SetPassword(password); err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *AuthService) issueToken(user *models.User) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Role: user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.UUID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenLifetime)),
		},
	})
	return token.SignedString(s.secret)
}

func (s *AuthService) recordFailure(ctx context.Context, clientIP, email string) {
	if s.events == nil {
		return
	}
	s.events.LogEvent(ctx, &models.SecurityEvent{
		Address:    clientIP,
		EventType:  models.EventLoginFailed,
		Severity:   models.SeverityWarning,
		RiskScore:  30,
		Route:      "/api/v1/auth/login",
		RawRequest: fmt.Sprintf(`{"email":%q}`, email),
	})
}
