// Package auth implements dashboard sign-in: a short-lived code is texted
// to the user's phone and exchanged for a JWT access token.
package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/dailygrain/server/internal/model"
	"github.com/dailygrain/server/internal/repo"
	"github.com/dailygrain/server/internal/sms"
)

const (
	codeLength      = 6
	codeExpiry      = 5 * time.Minute
	maxAttempts     = 5
	minAttemptDelay = 2 * time.Second
)

// ErrInvalidCode covers every verification failure the client may see:
// wrong code, expired code, or too many attempts. Deliberately opaque.
var ErrInvalidCode = errors.New("invalid or expired code")

// Service runs the login-code flow.
type Service struct {
	codes     repo.LoginCodeStore
	users     repo.UserStore
	transport sms.Transport
	jwt       *JWTService
	salt      string
	devMode   bool
	logger    *zap.Logger
}

// NewService creates an auth service. In dev mode the code is always
// "123456" and nothing is texted.
func NewService(codes repo.LoginCodeStore, users repo.UserStore, transport sms.Transport, jwt *JWTService, salt string, devMode bool, logger *zap.Logger) *Service {
	return &Service{
		codes:     codes,
		users:     users,
		transport: transport,
		jwt:       jwt,
		salt:      salt,
		devMode:   devMode,
		logger:    logger,
	}
}

// RequestCode generates a sign-in code for phone and texts it. Only the
// salted hash is stored; the plaintext code is never logged.
func (s *Service) RequestCode(ctx context.Context, phone string) error {
	code := generateCode()
	if s.devMode {
		code = "123456"
	}

	expiresAt := time.Now().Add(codeExpiry)
	if _, err := s.codes.CreateOrReplace(ctx, phone, hashCodeHex(phone, code, s.salt), expiresAt); err != nil {
		return fmt.Errorf("store login code: %w", err)
	}

	if s.devMode {
		return nil
	}
	if _, err := s.transport.Send(ctx, phone, fmt.Sprintf("Your Daily Grain sign-in code is %s. It expires in 5 minutes.", code)); err != nil {
		return fmt.Errorf("send login code: %w", err)
	}
	return nil
}

// VerifyCode checks the submitted code and, on success, consumes it and
// returns an access token for the (possibly new) user.
func (s *Service) VerifyCode(ctx context.Context, phone, code string) (string, model.User, error) {
	session, err := s.codes.GetActive(ctx, phone)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return "", model.User{}, ErrInvalidCode
		}
		return "", model.User{}, fmt.Errorf("load login code: %w", err)
	}

	now := time.Now()
	if session.LastAttemptAt != nil && now.Sub(*session.LastAttemptAt) < minAttemptDelay {
		return "", model.User{}, ErrInvalidCode
	}
	if session.AttemptCount >= maxAttempts {
		return "", model.User{}, ErrInvalidCode
	}
	if err := s.codes.RecordAttempt(ctx, session.ID); err != nil {
		return "", model.User{}, fmt.Errorf("record attempt: %w", err)
	}

	if !constantTimeEqual(hashCodeHex(phone, code, s.salt), session.CodeHash) {
		return "", model.User{}, ErrInvalidCode
	}

	if err := s.codes.MarkConsumed(ctx, session.ID); err != nil {
		return "", model.User{}, fmt.Errorf("consume code: %w", err)
	}

	user, err := s.users.GetOrCreateByPhone(ctx, phone)
	if err != nil {
		return "", model.User{}, fmt.Errorf("get or create user: %w", err)
	}

	token, err := s.jwt.SignAccessToken(user.ID, user.PhoneNumber)
	if err != nil {
		return "", model.User{}, err
	}
	s.logger.Info("dashboard sign-in", zap.String("phone", phone))
	return token, user, nil
}

func generateCode() string {
	code := ""
	for i := 0; i < codeLength; i++ {
		code += fmt.Sprintf("%d", rand.Intn(10))
	}
	return code
}

func hashCodeHex(phone, code, salt string) string {
	sum := sha256.Sum256([]byte(phone + "|" + code + "|" + salt))
	return hex.EncodeToString(sum[:])
}

func constantTimeEqual(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
