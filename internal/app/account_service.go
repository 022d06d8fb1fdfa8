package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"bytebits/internal/mail"
	"bytebits/internal/model"
	"bytebits/internal/pkg/tokenutil"
)

var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrEmailTaken         = errors.New("Email address already in use.")
	ErrUsernameTaken      = errors.New("Username already in use.")
	ErrInvalidCredentials = errors.New("Invalid email/username or password")
	ErrNotVerified        = errors.New("Please verify your email before logging in.")
	ErrUserNotFound       = errors.New("User not found.")
	// ErrInvalidToken covers every confirmation-link failure: bad signature,
	// expired, malformed, or pointing at state that no longer exists. The
	// causes are deliberately indistinguishable.
	ErrInvalidToken = errors.New("Token is invalid or has expired.")
)

// UserStore is the account persistence surface the service needs.
type UserStore interface {
	Create(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, id uint) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	GetByUsername(ctx context.Context, username string) (*model.User, error)
	GetByIdentifier(ctx context.Context, identifier string) (*model.User, error)
	GetByEmailOrUsername(ctx context.Context, email, username string) (*model.User, error)
	Update(ctx context.Context, user *model.User) error
	Delete(ctx context.Context, id uint) error
}

// PostStore is the slice of post persistence the account flows touch: the
// bulk author rewrite that keeps denormalised author strings consistent.
type PostStore interface {
	ReassignAuthor(ctx context.Context, oldAuthor, newAuthor string) error
}

// TxRunner executes fn with user and post stores bound to one transaction so
// account mutations and post-author rewrites land atomically.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(users UserStore, posts PostStore) error) error
}

// MailPublisher enqueues mail for asynchronous delivery.
type MailPublisher interface {
	Publish(ctx context.Context, job model.MailJob) error
}

type AccountService struct {
	users  UserStore
	tx     TxRunner
	mailer MailPublisher

	secret    []byte
	tokenTTL  time.Duration
	verifyTTL time.Duration
	// baseURL, when set, overrides the per-request host for links in emails.
	baseURL string
}

func NewAccountService(
	users UserStore,
	tx TxRunner,
	mailer MailPublisher,
	secret []byte,
	tokenTTL, verifyTTL time.Duration,
	baseURL string,
) *AccountService {
	if tokenTTL <= 0 {
		tokenTTL = time.Hour
	}
	if verifyTTL <= 0 {
		verifyTTL = tokenTTL
	}
	return &AccountService{
		users:     users,
		tx:        tx,
		mailer:    mailer,
		secret:    secret,
		tokenTTL:  tokenTTL,
		verifyTTL: verifyTTL,
		baseURL:   baseURL,
	}
}

type SignupInput struct {
	Email    string
	Username string
	Password string
	// Host is the request's scheme://host, used for the verification link
	// when no base URL is configured.
	Host string
}

type SignupResult struct {
	User *model.User
	// MailErr is non-nil when the account was persisted but the verification
	// mail could not be queued. Signup still succeeds.
	MailErr error
}

func (s *AccountService) Signup(ctx context.Context, input SignupInput) (*SignupResult, error) {
	email := strings.TrimSpace(input.Email)
	username := strings.TrimSpace(input.Username)
	if email == "" || username == "" || input.Password == "" {
		return nil, ErrInvalidInput
	}

	existing, err := s.users.GetByEmailOrUsername(ctx, email, username)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if existing.Email == email {
			return nil, ErrEmailTaken
		}
		return nil, ErrUsernameTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password failed: %w", err)
	}

	user := &model.User{
		Email:        email,
		Username:     username,
		PasswordHash: string(hash),
		Verified:     false,
	}
	if err := s.users.Create(ctx, user); err != nil {
		// Concurrent signup won the race after the pre-check; report the
		// same conflict the pre-check would have.
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			if winner, lookupErr := s.users.GetByEmail(ctx, email); lookupErr == nil && winner != nil {
				return nil, ErrEmailTaken
			}
			return nil, ErrUsernameTaken
		}
		return nil, err
	}

	result := &SignupResult{User: user}
	result.MailErr = s.sendVerificationMail(ctx, user, input.Host)
	return result, nil
}

// Verify consumes a signup verification token. Verifying an already-verified
// account is a no-op success.
func (s *AccountService) Verify(ctx context.Context, token string) (*model.User, error) {
	claims, err := tokenutil.Verify(token, s.secret)
	if err != nil {
		return nil, ErrInvalidToken
	}

	user, err := s.users.GetByEmail(ctx, claims.Email)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrInvalidToken
	}
	if user.Verified {
		return user, nil
	}

	user.Verified = true
	if err := s.users.Update(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

type LoginInput struct {
	Identifier string
	Password   string
	RememberMe bool
}

// Login authenticates by exact email or case-insensitive username. Unknown
// identifier and wrong password yield the same error; only a correct
// password on an unverified account is distinguished.
func (s *AccountService) Login(ctx context.Context, input LoginInput) (*model.User, error) {
	identifier := strings.TrimSpace(input.Identifier)
	if identifier == "" || input.Password == "" {
		return nil, ErrInvalidCredentials
	}

	user, err := s.users.GetByIdentifier(ctx, identifier)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(input.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	if !user.Verified {
		return nil, ErrNotVerified
	}
	return user, nil
}

// ForgotPassword always reports success to the caller. When the email is
// registered a reset link is queued; a queue failure is logged and swallowed
// so the outcome stays uniform.
func (s *AccountService) ForgotPassword(ctx context.Context, email, host string) error {
	user, err := s.users.GetByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		return err
	}
	if user == nil {
		return nil
	}

	token, err := tokenutil.Issue(tokenutil.Claims{Email: user.Email}, s.secret, s.tokenTTL)
	if err != nil {
		return fmt.Errorf("issue reset token failed: %w", err)
	}
	job := mail.PasswordResetMessage(user.Email, s.link(host, "/auth/reset", token))
	if err := s.mailer.Publish(ctx, job); err != nil {
		log.Printf("queue password reset mail failed: %v", err)
	}
	return nil
}

func (s *AccountService) ResetPassword(ctx context.Context, token, newPassword string) error {
	if newPassword == "" {
		return ErrInvalidInput
	}
	claims, err := tokenutil.Verify(token, s.secret)
	if err != nil {
		return ErrInvalidToken
	}

	user, err := s.users.GetByEmail(ctx, claims.Email)
	if err != nil {
		return err
	}
	if user == nil {
		return ErrInvalidToken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password failed: %w", err)
	}
	user.PasswordHash = string(hash)
	return s.users.Update(ctx, user)
}

// RequestPasswordChange mails a reset link to the logged-in user's own
// address; the mutation happens only when the link is followed.
func (s *AccountService) RequestPasswordChange(ctx context.Context, userID uint, host string) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if user == nil {
		return ErrUserNotFound
	}

	token, err := tokenutil.Issue(tokenutil.Claims{Email: user.Email}, s.secret, s.tokenTTL)
	if err != nil {
		return fmt.Errorf("issue reset token failed: %w", err)
	}
	job := mail.PasswordChangeMessage(user.Email, user.Username, s.link(host, "/auth/reset", token))
	if err := s.mailer.Publish(ctx, job); err != nil {
		return fmt.Errorf("queue password change mail failed: %w", err)
	}
	return nil
}

// RequestEmailChange mails a confirmation link to the CURRENT address,
// proving the owner still controls the mailbox before anything mutates.
func (s *AccountService) RequestEmailChange(ctx context.Context, userID uint, newEmail, host string) error {
	newEmail = strings.TrimSpace(newEmail)
	if newEmail == "" {
		return ErrInvalidInput
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if user == nil {
		return ErrUserNotFound
	}

	taken, err := s.users.GetByEmail(ctx, newEmail)
	if err != nil {
		return err
	}
	if taken != nil {
		return ErrEmailTaken
	}

	token, err := tokenutil.Issue(tokenutil.Claims{UserID: user.ID, NewEmail: newEmail}, s.secret, s.tokenTTL)
	if err != nil {
		return fmt.Errorf("issue email change token failed: %w", err)
	}
	job := mail.EmailChangeMessage(user.Email, user.Username, newEmail, s.link(host, "/auth/confirm-update-email", token))
	if err := s.mailer.Publish(ctx, job); err != nil {
		return fmt.Errorf("queue email change mail failed: %w", err)
	}
	return nil
}

// ConfirmEmailChange applies the pending change. Uniqueness is re-checked at
// confirmation time because the token payload may be stale. The new address
// starts unverified and gets its own verification mail.
func (s *AccountService) ConfirmEmailChange(ctx context.Context, token, host string) error {
	claims, err := tokenutil.Verify(token, s.secret)
	if err != nil {
		return ErrInvalidToken
	}

	user, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		return err
	}
	if user == nil || claims.NewEmail == "" {
		return ErrInvalidToken
	}

	taken, err := s.users.GetByEmail(ctx, claims.NewEmail)
	if err != nil {
		return err
	}
	if taken != nil {
		return ErrEmailTaken
	}

	user.Email = claims.NewEmail
	user.Verified = false
	if err := s.users.Update(ctx, user); err != nil {
		return err
	}

	if mailErr := s.sendVerificationMail(ctx, user, host); mailErr != nil {
		log.Printf("queue verification mail after email change failed: %v", mailErr)
	}
	return nil
}

func (s *AccountService) RequestUsernameChange(ctx context.Context, userID uint, newUsername, host string) error {
	newUsername = strings.TrimSpace(newUsername)
	if newUsername == "" {
		return ErrInvalidInput
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if user == nil {
		return ErrUserNotFound
	}

	taken, err := s.users.GetByUsername(ctx, newUsername)
	if err != nil {
		return err
	}
	if taken != nil {
		return ErrUsernameTaken
	}

	token, err := tokenutil.Issue(tokenutil.Claims{UserID: user.ID, NewUsername: newUsername}, s.secret, s.tokenTTL)
	if err != nil {
		return fmt.Errorf("issue username change token failed: %w", err)
	}
	job := mail.UsernameChangeMessage(user.Email, user.Username, newUsername, s.link(host, "/auth/confirm-update-username", token))
	if err := s.mailer.Publish(ctx, job); err != nil {
		return fmt.Errorf("queue username change mail failed: %w", err)
	}
	return nil
}

// ConfirmUsernameChange renames the account and rewrites the author field of
// every post carrying the old name, in one transaction.
func (s *AccountService) ConfirmUsernameChange(ctx context.Context, token string) error {
	claims, err := tokenutil.Verify(token, s.secret)
	if err != nil {
		return ErrInvalidToken
	}

	user, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		return err
	}
	if user == nil || claims.NewUsername == "" {
		return ErrInvalidToken
	}

	taken, err := s.users.GetByUsername(ctx, claims.NewUsername)
	if err != nil {
		return err
	}
	if taken != nil && taken.ID != user.ID {
		return ErrUsernameTaken
	}

	oldUsername := user.Username
	return s.tx.RunInTx(ctx, func(users UserStore, posts PostStore) error {
		user.Username = claims.NewUsername
		if err := users.Update(ctx, user); err != nil {
			return err
		}
		return posts.ReassignAuthor(ctx, oldUsername, claims.NewUsername)
	})
}

func (s *AccountService) RequestDeletion(ctx context.Context, userID uint, host string) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if user == nil {
		return ErrUserNotFound
	}

	token, err := tokenutil.Issue(tokenutil.Claims{UserID: user.ID}, s.secret, s.tokenTTL)
	if err != nil {
		return fmt.Errorf("issue deletion token failed: %w", err)
	}
	job := mail.AccountDeletionMessage(user.Email, user.Username, s.link(host, "/auth/confirm-delete-account", token))
	if err := s.mailer.Publish(ctx, job); err != nil {
		return fmt.Errorf("queue deletion mail failed: %w", err)
	}
	return nil
}

// ConfirmDeletion reassigns the account's posts to the deleted-user
// placeholder and removes the row, atomically. The caller destroys the
// session afterwards.
func (s *AccountService) ConfirmDeletion(ctx context.Context, token string) error {
	claims, err := tokenutil.Verify(token, s.secret)
	if err != nil {
		return ErrInvalidToken
	}

	user, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		return err
	}
	if user == nil {
		return ErrInvalidToken
	}

	return s.tx.RunInTx(ctx, func(users UserStore, posts PostStore) error {
		if err := posts.ReassignAuthor(ctx, user.Username, model.DeletedAuthor); err != nil {
			return err
		}
		return users.Delete(ctx, user.ID)
	})
}

func (s *AccountService) AccountSettings(ctx context.Context, userID uint) (*model.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

func (s *AccountService) sendVerificationMail(ctx context.Context, user *model.User, host string) error {
	token, err := tokenutil.Issue(tokenutil.Claims{Email: user.Email}, s.secret, s.verifyTTL)
	if err != nil {
		return fmt.Errorf("issue verification token failed: %w", err)
	}
	job := mail.VerificationMessage(user.Email, user.Username, s.link(host, "/auth/verify", token))
	if err := s.mailer.Publish(ctx, job); err != nil {
		return fmt.Errorf("queue verification mail failed: %w", err)
	}
	return nil
}

func (s *AccountService) link(host, path, token string) string {
	base := s.baseURL
	if base == "" {
		base = host
	}
	return fmt.Sprintf("%s%s?token=%s", strings.TrimRight(base, "/"), path, url.QueryEscape(token))
}
