package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Freeeeeet/pbl_scheduler/internal/clock"
	"github.com/Freeeeeet/pbl_scheduler/internal/model"
	"github.com/Freeeeeet/pbl_scheduler/internal/partner"
	"github.com/Freeeeeet/pbl_scheduler/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type UserService struct {
	store       repository.Store
	provider    partner.ExternalProfileProvider
	assignments *AssignmentService
	tokens      *TokenIssuer
	clock       clock.Clock
	logger      *zap.Logger
}

func NewUserService(
	store repository.Store,
	provider partner.ExternalProfileProvider,
	assignments *AssignmentService,
	tokens *TokenIssuer,
	clk clock.Clock,
	logger *zap.Logger,
) *UserService {
	return &UserService{
		store:       store,
		provider:    provider,
		assignments: assignments,
		tokens:      tokens,
		clock:       clk,
		logger:      logger,
	}
}

// LocalUserInput - данные пользователя из внешней системы
type LocalUserInput struct {
	ExternalID           string
	Email                string
	Name                 string
	Role                 model.Role
	UniversityRollNumber string
}

// GetOrCreateLocalUser находит пользователя по email и обновляет его данные
// или создаёт нового
func (s *UserService) GetOrCreateLocalUser(ctx context.Context, in LocalUserInput) (*model.User, error) {
	email := strings.TrimSpace(in.Email)
	if email == "" {
		return nil, withMessage(ErrAuthentication, "Email is required")
	}
	if in.Role != model.RoleFaculty {
		in.Role = model.RoleStudent
	}

	var user *model.User
	var created bool
	err := s.store.InTx(ctx, func(tx repository.Tx) error {
		var err error
		user, created, err = upsertUser(ctx, tx, s.clock.Now(), email, in)
		return err
	})
	if err != nil {
		return nil, err
	}

	if created {
		s.logger.Info("New user registered",
			zap.String("user_id", user.ID.String()),
			zap.String("email", user.Email),
			zap.String("role", string(user.Role)),
		)
	}

	return user, nil
}

// upsertUser заводит или обновляет пользователя по email. Блокировка по email
// не даёт двум первым входам создать дубликат, а блокировка преподавателя
// сериализует запись с SetFacultySubject и SetAvailability.
func upsertUser(ctx context.Context, tx repository.Tx, now time.Time, email string, in LocalUserInput) (*model.User, bool, error) {
	if err := tx.Lock(ctx, repository.UserEmailLockKey(email)); err != nil {
		return nil, false, err
	}

	user, err := tx.Users().GetByEmail(ctx, email)
	if err != nil {
		return nil, false, fmt.Errorf("check existing user: %w", err)
	}

	if user != nil && user.IsFaculty() {
		if err := tx.Lock(ctx, repository.FacultyLockKey(user.ID)); err != nil {
			return nil, false, err
		}
		// Перечитываем под блокировкой
		if user, err = tx.Users().GetByID(ctx, user.ID); err != nil {
			return nil, false, fmt.Errorf("check existing user: %w", err)
		}
	}

	if user == nil {
		user = &model.User{
			ExternalID:            in.ExternalID,
			Email:                 email,
			Name:                  in.Name,
			Role:                  in.Role,
			UniversityRollNumber:  in.UniversityRollNumber,
			IsAvailableForBooking: true,
			IsActive:              true,
			CreatedAt:             now,
			UpdatedAt:             now,
		}
		if err := tx.Users().Create(ctx, user); err != nil {
			return nil, false, fmt.Errorf("create user: %w", err)
		}
		return user, true, nil
	}

	changed := false
	set := func(field *string, value string) {
		if value != "" && *field != value {
			*field = value
			changed = true
		}
	}
	set(&user.ExternalID, in.ExternalID)
	set(&user.Name, in.Name)
	set(&user.UniversityRollNumber, in.UniversityRollNumber)
	if user.Role != in.Role {
		user.Role = in.Role
		changed = true
	}

	if changed {
		user.UpdatedAt = now
		if err := tx.Users().Update(ctx, user); err != nil {
			return nil, false, fmt.Errorf("update user: %w", err)
		}
	}
	return user, false, nil
}

// LoginResult - результат входа через SSO
type LoginResult struct {
	Token       string      `json:"access_token"`
	TokenType   string      `json:"token_type"`
	ExpiresAt   time.Time   `json:"expires_at"`
	User        *model.User `json:"user"`
	Assignments *SyncResult `json:"assignments,omitempty"`
}

// Login проверяет SSO токен, заводит локального пользователя и выдаёт токен
// доступа. Ошибка синхронизации назначений вход не прерывает.
func (s *UserService) Login(ctx context.Context, ssoToken string) (*LoginResult, error) {
	identity, err := s.provider.VerifyToken(ctx, ssoToken)
	if err != nil {
		if errors.Is(err, partner.ErrInvalidToken) {
			return nil, withMessage(ErrAuthentication, "Invalid SSO token")
		}
		s.logger.Warn("SSO verification failed", zap.Error(err))
		return nil, ErrAuthentication
	}

	user, err := s.GetOrCreateLocalUser(ctx, LocalUserInput{
		ExternalID:           identity.ExternalID,
		Email:                identity.Email,
		Name:                 identity.Name,
		Role:                 identity.Role,
		UniversityRollNumber: identity.UniversityRollNumber,
	})
	if err != nil {
		return nil, err
	}
	if !user.IsActive {
		return nil, ErrInactiveUser
	}

	result := &LoginResult{TokenType: "bearer", User: user}
	if user.IsStudent() && identity.Raw != nil {
		synced := s.assignments.SyncFromExternalPayload(ctx, user, identity.Raw)
		result.Assignments = &synced
	}

	result.Token, result.ExpiresAt, err = s.tokens.Issue(user)
	if err != nil {
		return nil, err
	}

	s.logger.Info("User logged in",
		zap.String("user_id", user.ID.String()),
		zap.String("role", string(user.Role)),
	)

	return result, nil
}

// Authenticate возвращает активного пользователя по токену доступа
func (s *UserService) Authenticate(ctx context.Context, token string) (*model.User, error) {
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return nil, withMessage(ErrAuthentication, "Invalid or expired token")
	}
	id, err := claims.UserID()
	if err != nil {
		return nil, withMessage(ErrAuthentication, "Invalid or expired token")
	}

	user, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !user.IsActive {
		return nil, ErrInactiveUser
	}
	return user, nil
}

// GetByID получает пользователя по ID
func (s *UserService) GetByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	user, err := s.store.Users().GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}
