package services

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/medassist/api/internal/domain"
	"github.com/medassist/api/internal/platform/keyvalue"
	"github.com/medassist/api/internal/platform/token"
	"github.com/medassist/api/internal/repositories"
)

var (
	// ErrAuthInvalidInput signals the caller provided invalid arguments.
	ErrAuthInvalidInput = errors.New("auth: invalid input")
	// ErrInvalidCredentials covers unknown phone and wrong password alike so
	// responses never reveal which part failed.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	// ErrUserExists indicates the phone or email is already registered.
	ErrUserExists = errors.New("auth: user exists")
	// ErrUserNotFound indicates no such principal.
	ErrUserNotFound = errors.New("auth: user not found")
	// ErrOTPInvalid indicates the submitted code does not match.
	ErrOTPInvalid = errors.New("auth: otp invalid")
	// ErrOTPExpired indicates no live code exists for the phone.
	ErrOTPExpired = errors.New("auth: otp expired")
	// ErrRefreshInvalid indicates the refresh token is dead or malformed.
	ErrRefreshInvalid = errors.New("auth: refresh token invalid")
)

var phonePattern = regexp.MustCompile(`^\+?[0-9]{10,15}$`)

// driverEmailDomain hosts the generated mailboxes for provisioned drivers.
const driverEmailDomain = "drivers.medassist.internal"

// driverCounter names the sequence behind generated driver mailboxes.
const driverCounter = "driver_email"

// TokenPair is a freshly minted access/refresh pair.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// LoginResult carries the outcome of a credential check. Tokens are only
// minted for verified accounts; an unverified account gets a fresh
// verification code instead.
type LoginResult struct {
	User     domain.User
	Pair     TokenPair
	Verified bool
}

// RegisterInput captures a self-service customer registration.
type RegisterInput struct {
	Name     string
	Phone    string
	Email    string
	Password string
}

// ProvisionInput captures admin-driven creation of staff principals.
type ProvisionInput struct {
	Name     string
	Phone    string
	Email    string
	Password string
	Role     domain.Role
}

// ProvisionPharmacistInput creates a pharmacist together with the pharmacy
// they operate.
type ProvisionPharmacistInput struct {
	Name            string
	Phone           string
	Email           string
	Password        string
	PharmacyName    string
	PharmacyAddress string
	Location        domain.GeoPoint
}

// ProvisionDriverInput creates a driver. The internal mailbox is generated
// from a monotonic counter, never supplied by the caller.
type ProvisionDriverInput struct {
	Name     string
	Phone    string
	Password string
}

// OTPSender delivers a verification code out of band. The development build
// logs the code instead of sending it.
type OTPSender func(ctx context.Context, phone, code string) error

// AuthService implements registration, verification and session lifecycle.
type AuthService interface {
	Register(ctx context.Context, input RegisterInput) (domain.User, error)
	RequestOTP(ctx context.Context, phone string) error
	// VerifyOTP consumes the code and, on success, opens a session for the
	// freshly verified account.
	VerifyOTP(ctx context.Context, phone, code string) (domain.User, TokenPair, error)
	// Login accepts either the email address or the phone number as the
	// identifier.
	Login(ctx context.Context, emailOrPhone, password string) (LoginResult, error)
	Refresh(ctx context.Context, refreshToken string) (TokenPair, error)
	Logout(ctx context.Context, refreshToken string) error
	Provision(ctx context.Context, input ProvisionInput) (domain.User, error)
	ProvisionPharmacist(ctx context.Context, input ProvisionPharmacistInput) (domain.User, domain.Pharmacy, error)
	ProvisionDriver(ctx context.Context, input ProvisionDriverInput) (domain.User, error)
}

// AuthServiceDeps bundles the collaborators required to construct an auth
// service.
type AuthServiceDeps struct {
	Users       repositories.UserRepository
	Pharmacies  repositories.PharmacyRepository
	Counters    repositories.CounterRepository
	OTP         *keyvalue.OTPStore
	Refresh     *keyvalue.RefreshTokenStore
	Tokens      *token.Issuer
	SendOTP     OTPSender
	BcryptCost  int
	Clock       func() time.Time
	IDGenerator func() string
	PharmacyID  func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type authService struct {
	users         repositories.UserRepository
	pharmacies    repositories.PharmacyRepository
	counters      repositories.CounterRepository
	otp           *keyvalue.OTPStore
	refresh       *keyvalue.RefreshTokenStore
	tokens        *token.Issuer
	sendOTP       OTPSender
	bcryptCost    int
	clock         func() time.Time
	newID         func() string
	newPharmacyID func() string
	logger        func(context.Context, string, map[string]any)
}

// NewAuthService wires dependencies into a concrete AuthService.
func NewAuthService(deps AuthServiceDeps) (AuthService, error) {
	if deps.Users == nil {
		return nil, errors.New("auth service: user repository is required")
	}
	if deps.OTP == nil || deps.Refresh == nil {
		return nil, errors.New("auth service: key-value stores are required")
	}
	if deps.Tokens == nil {
		return nil, errors.New("auth service: token issuer is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	newID := deps.IDGenerator
	if newID == nil {
		return nil, errors.New("auth service: id generator is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	sendOTP := deps.SendOTP
	if sendOTP == nil {
		sendOTP = func(context.Context, string, string) error { return nil }
	}
	cost := deps.BcryptCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}

	pharmacyID := deps.PharmacyID
	if pharmacyID == nil {
		pharmacyID = newID
	}

	return &authService{
		users:         deps.Users,
		pharmacies:    deps.Pharmacies,
		counters:      deps.Counters,
		otp:           deps.OTP,
		refresh:       deps.Refresh,
		tokens:        deps.Tokens,
		sendOTP:       sendOTP,
		bcryptCost:    cost,
		clock:         func() time.Time { return clock().UTC() },
		newID:         newID,
		newPharmacyID: pharmacyID,
		logger:        logger,
	}, nil
}

func (s *authService) Register(ctx context.Context, input RegisterInput) (domain.User, error) {
	phone, err := NormalisePhone(input.Phone)
	if err != nil {
		return domain.User{}, err
	}
	name := strings.TrimSpace(input.Name)
	if name == "" || len(input.Password) < 8 {
		return domain.User{}, ErrAuthInvalidInput
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), s.bcryptCost)
	if err != nil {
		return domain.User{}, fmt.Errorf("auth: hash password: %w", err)
	}

	now := s.clock()
	user := domain.User{
		ID:           s.newID(),
		Name:         name,
		Email:        strings.ToLower(strings.TrimSpace(input.Email)),
		Phone:        phone,
		PasswordHash: string(hash),
		Roles:        []domain.Role{domain.RoleCustomer},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repositories.ErrDuplicate) {
			return domain.User{}, ErrUserExists
		}
		return domain.User{}, fmt.Errorf("auth: create user: %w", err)
	}

	if err := s.issueOTP(ctx, phone); err != nil {
		// Registration stands; the user can re-request a code.
		s.logger(ctx, "auth.otp_issue_failed", map[string]any{"error": err.Error()})
	}

	s.logger(ctx, "auth.registered", map[string]any{"user_id": user.ID})
	return user, nil
}

func (s *authService) RequestOTP(ctx context.Context, phone string) error {
	normalised, err := NormalisePhone(phone)
	if err != nil {
		return err
	}
	if _, err := s.users.GetByPhone(ctx, normalised); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("auth: load user: %w", err)
	}
	return s.issueOTP(ctx, normalised)
}

func (s *authService) VerifyOTP(ctx context.Context, phone, code string) (domain.User, TokenPair, error) {
	normalised, err := NormalisePhone(phone)
	if err != nil {
		return domain.User{}, TokenPair{}, err
	}
	if err := s.otp.Consume(ctx, normalised, strings.TrimSpace(code)); err != nil {
		switch {
		case errors.Is(err, keyvalue.ErrOTPNotFound), errors.Is(err, keyvalue.ErrOTPMismatch):
			return domain.User{}, TokenPair{}, ErrOTPInvalid
		case errors.Is(err, keyvalue.ErrOTPExpired):
			return domain.User{}, TokenPair{}, ErrOTPExpired
		}
		return domain.User{}, TokenPair{}, fmt.Errorf("auth: consume otp: %w", err)
	}

	user, err := s.users.GetByPhone(ctx, normalised)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return domain.User{}, TokenPair{}, ErrUserNotFound
		}
		return domain.User{}, TokenPair{}, fmt.Errorf("auth: load user: %w", err)
	}
	if err := s.users.SetVerified(ctx, user.ID); err != nil {
		return domain.User{}, TokenPair{}, fmt.Errorf("auth: mark verified: %w", err)
	}
	user.Verified = true

	pair, err := s.mintPair(ctx, user)
	if err != nil {
		return domain.User{}, TokenPair{}, err
	}
	s.logger(ctx, "auth.verified", map[string]any{"user_id": user.ID})
	return user, pair, nil
}

func (s *authService) Login(ctx context.Context, emailOrPhone, password string) (LoginResult, error) {
	user, err := s.findByIdentifier(ctx, emailOrPhone)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			// Burn a comparison so unknown identifiers cost as much as bad
			// passwords.
			_ = bcrypt.CompareHashAndPassword([]byte("$2a$12$C6UzMDM.H6dfI/f/IKcEeO7WDLPXsJkosMezmQVoXc9xdN0d1O1pa"), []byte(password))
			return LoginResult{}, ErrInvalidCredentials
		}
		return LoginResult{}, fmt.Errorf("auth: load user: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return LoginResult{}, ErrInvalidCredentials
	}

	if !user.Verified {
		// Valid credentials but no verified phone: hand out a fresh code
		// instead of a session.
		if err := s.issueOTP(ctx, user.Phone); err != nil {
			s.logger(ctx, "auth.otp_issue_failed", map[string]any{"error": err.Error()})
		}
		s.logger(ctx, "auth.login_unverified", map[string]any{"user_id": user.ID})
		return LoginResult{User: user}, nil
	}

	pair, err := s.mintPair(ctx, user)
	if err != nil {
		return LoginResult{}, err
	}
	s.logger(ctx, "auth.login", map[string]any{"user_id": user.ID})
	return LoginResult{User: user, Pair: pair, Verified: true}, nil
}

// findByIdentifier resolves the login identifier, treating anything with an @
// as an email address.
func (s *authService) findByIdentifier(ctx context.Context, emailOrPhone string) (domain.User, error) {
	identifier := strings.TrimSpace(emailOrPhone)
	if strings.Contains(identifier, "@") {
		return s.users.GetByEmail(ctx, strings.ToLower(identifier))
	}
	normalised, err := NormalisePhone(identifier)
	if err != nil {
		return domain.User{}, repositories.ErrNotFound
	}
	return s.users.GetByPhone(ctx, normalised)
}

func (s *authService) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	claims, err := s.tokens.Verify(refreshToken, token.KindRefresh)
	if err != nil {
		return TokenPair{}, ErrRefreshInvalid
	}
	if _, err := s.refresh.Verify(ctx, claims.JTI); err != nil {
		if errors.Is(err, keyvalue.ErrTokenNotLive) {
			return TokenPair{}, ErrRefreshInvalid
		}
		return TokenPair{}, fmt.Errorf("auth: verify refresh: %w", err)
	}

	user, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return TokenPair{}, ErrRefreshInvalid
		}
		return TokenPair{}, fmt.Errorf("auth: load user: %w", err)
	}

	newJTI := uuid.NewString()
	access, err := s.tokens.MintAccess(user.ID, user.Roles, newJTI)
	if err != nil {
		return TokenPair{}, fmt.Errorf("auth: mint access: %w", err)
	}
	refresh, err := s.tokens.MintRefresh(user.ID, user.Roles, newJTI)
	if err != nil {
		return TokenPair{}, fmt.Errorf("auth: mint refresh: %w", err)
	}
	// Rotation: the presented token dies with this call regardless of
	// whether the client ever receives the new pair.
	if err := s.refresh.Rotate(ctx, claims.JTI, newJTI, user.ID, s.tokens.RefreshTTL()); err != nil {
		return TokenPair{}, fmt.Errorf("auth: rotate refresh: %w", err)
	}

	s.logger(ctx, "auth.refreshed", map[string]any{"user_id": user.ID})
	return TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

func (s *authService) Logout(ctx context.Context, refreshToken string) error {
	claims, err := s.tokens.Verify(refreshToken, token.KindRefresh)
	if err != nil {
		// Logout is idempotent: a dead token is already logged out.
		return nil
	}
	if err := s.refresh.Revoke(ctx, claims.JTI); err != nil {
		return fmt.Errorf("auth: revoke refresh: %w", err)
	}
	s.logger(ctx, "auth.logout", map[string]any{"user_id": claims.UserID})
	return nil
}

func (s *authService) Provision(ctx context.Context, input ProvisionInput) (domain.User, error) {
	if input.Role != domain.RolePharmacist && input.Role != domain.RoleDriver && input.Role != domain.RoleAdmin {
		return domain.User{}, ErrAuthInvalidInput
	}
	phone, err := NormalisePhone(input.Phone)
	if err != nil {
		return domain.User{}, err
	}
	name := strings.TrimSpace(input.Name)
	if name == "" || len(input.Password) < 8 {
		return domain.User{}, ErrAuthInvalidInput
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), s.bcryptCost)
	if err != nil {
		return domain.User{}, fmt.Errorf("auth: hash password: %w", err)
	}

	now := s.clock()
	user := domain.User{
		ID:           s.newID(),
		Name:         name,
		Email:        strings.ToLower(strings.TrimSpace(input.Email)),
		Phone:        phone,
		PasswordHash: string(hash),
		Roles:        []domain.Role{input.Role},
		Verified:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repositories.ErrDuplicate) {
			return domain.User{}, ErrUserExists
		}
		return domain.User{}, fmt.Errorf("auth: create user: %w", err)
	}
	s.logger(ctx, "auth.provisioned", map[string]any{
		"user_id": user.ID,
		"role":    string(input.Role),
	})
	return user, nil
}

func (s *authService) ProvisionPharmacist(ctx context.Context, input ProvisionPharmacistInput) (domain.User, domain.Pharmacy, error) {
	if s.pharmacies == nil {
		return domain.User{}, domain.Pharmacy{}, errors.New("auth: pharmacy repository not configured")
	}
	name := strings.TrimSpace(input.PharmacyName)
	address := strings.TrimSpace(input.PharmacyAddress)
	if name == "" || address == "" {
		return domain.User{}, domain.Pharmacy{}, ErrAuthInvalidInput
	}

	user, err := s.Provision(ctx, ProvisionInput{
		Name:     input.Name,
		Phone:    input.Phone,
		Email:    input.Email,
		Password: input.Password,
		Role:     domain.RolePharmacist,
	})
	if err != nil {
		return domain.User{}, domain.Pharmacy{}, err
	}

	now := s.clock()
	pharmacy := domain.Pharmacy{
		ID:               s.newPharmacyID(),
		PharmacistUserID: user.ID,
		Name:             name,
		Address:          address,
		Location:         input.Location,
		Active:           true,
		ContactPhone:     user.Phone,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.pharmacies.Create(ctx, pharmacy); err != nil {
		// The pharmacist exists without a pharmacy; the operator must retry
		// or clean up by hand.
		s.logger(ctx, "auth.pharmacy_create_failed", map[string]any{
			"user_id": user.ID,
			"error":   err.Error(),
		})
		return domain.User{}, domain.Pharmacy{}, fmt.Errorf("auth: create pharmacy: %w", err)
	}

	s.logger(ctx, "auth.pharmacist_provisioned", map[string]any{
		"user_id":     user.ID,
		"pharmacy_id": pharmacy.ID,
	})
	return user, pharmacy, nil
}

func (s *authService) ProvisionDriver(ctx context.Context, input ProvisionDriverInput) (domain.User, error) {
	if s.counters == nil {
		return domain.User{}, errors.New("auth: counter repository not configured")
	}

	seq, err := s.counters.Next(ctx, driverCounter)
	if err != nil {
		return domain.User{}, fmt.Errorf("auth: next driver sequence: %w", err)
	}
	email := fmt.Sprintf("driver%04d@%s", seq, driverEmailDomain)

	user, err := s.Provision(ctx, ProvisionInput{
		Name:     input.Name,
		Phone:    input.Phone,
		Email:    email,
		Password: input.Password,
		Role:     domain.RoleDriver,
	})
	if err != nil {
		return domain.User{}, err
	}
	s.logger(ctx, "auth.driver_provisioned", map[string]any{
		"user_id": user.ID,
		"email":   email,
	})
	return user, nil
}

func (s *authService) mintPair(ctx context.Context, user domain.User) (TokenPair, error) {
	jti := uuid.NewString()
	access, err := s.tokens.MintAccess(user.ID, user.Roles, jti)
	if err != nil {
		return TokenPair{}, fmt.Errorf("auth: mint access: %w", err)
	}
	refresh, err := s.tokens.MintRefresh(user.ID, user.Roles, jti)
	if err != nil {
		return TokenPair{}, fmt.Errorf("auth: mint refresh: %w", err)
	}
	if err := s.refresh.Insert(ctx, jti, user.ID, s.tokens.RefreshTTL()); err != nil {
		return TokenPair{}, fmt.Errorf("auth: record refresh: %w", err)
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

func (s *authService) issueOTP(ctx context.Context, phone string) error {
	code, err := generateOTP()
	if err != nil {
		return err
	}
	if err := s.otp.Put(ctx, phone, code); err != nil {
		return err
	}
	if err := s.sendOTP(ctx, phone, code); err != nil {
		return fmt.Errorf("auth: send otp: %w", err)
	}
	return nil
}

// NormalisePhone strips separators and validates the digit count. The stored
// form always keeps a leading + when one was supplied.
func NormalisePhone(phone string) (string, error) {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '(', ')':
			return -1
		}
		return r
	}, strings.TrimSpace(phone))
	if !phonePattern.MatchString(cleaned) {
		return "", ErrAuthInvalidInput
	}
	return cleaned, nil
}

func generateOTP() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", fmt.Errorf("auth: generate otp: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
