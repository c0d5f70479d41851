package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"github.com/medassist/api/internal/domain"
	"github.com/medassist/api/internal/platform/config"
	"github.com/medassist/api/internal/platform/keyvalue"
	"github.com/medassist/api/internal/platform/token"
	"github.com/medassist/api/internal/repositories"
)

// memoryCommands is an in-process stand-in for the Redis command surface the
// key-value stores depend on. TTLs are ignored.
type memoryCommands struct {
	values map[string]string
}

func newMemoryCommands() *memoryCommands {
	return &memoryCommands{values: map[string]string{}}
}

func (m *memoryCommands) Set(_ context.Context, key string, value any, _ time.Duration) *redis.StatusCmd {
	m.values[key] = fmt.Sprint(value)
	return redis.NewStatusResult("OK", nil)
}

func (m *memoryCommands) Get(_ context.Context, key string) *redis.StringCmd {
	value, ok := m.values[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(value, nil)
}

func (m *memoryCommands) Del(_ context.Context, keys ...string) *redis.IntCmd {
	var removed int64
	for _, key := range keys {
		if _, ok := m.values[key]; ok {
			delete(m.values, key)
			removed++
		}
	}
	return redis.NewIntResult(removed, nil)
}

func testJWTConfig() config.JWTConfig {
	return config.JWTConfig{
		Secret:     "unit-test-secret-0123456789abcdefghij",
		Issuer:     "medassist-auth",
		Audience:   "medassist-services",
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 24 * time.Hour,
	}
}

func tokenIssuer(t *testing.T) *token.Issuer {
	t.Helper()
	return token.NewIssuer(testJWTConfig())
}

type authFixture struct {
	svc        AuthService
	users      *stubUserRepo
	pharmacies *stubPharmacyRepo
	counters   *stubCounterRepo
	sentOTPs   []string
}

func newAuthFixture(t *testing.T, users *stubUserRepo) *authFixture {
	t.Helper()
	commands := newMemoryCommands()
	fixture := &authFixture{
		users:      users,
		pharmacies: &stubPharmacyRepo{},
		counters:   &stubCounterRepo{},
	}
	svc, err := NewAuthService(AuthServiceDeps{
		Users:      users,
		Pharmacies: fixture.pharmacies,
		Counters:   fixture.counters,
		OTP:        keyvalue.NewOTPStore(commands),
		Refresh:    keyvalue.NewRefreshTokenStore(commands),
		Tokens:     tokenIssuer(t),
		BcryptCost: bcrypt.MinCost,
		SendOTP: func(_ context.Context, _, code string) error {
			fixture.sentOTPs = append(fixture.sentOTPs, code)
			return nil
		},
		IDGenerator: func() string { return "usr_test" },
		PharmacyID:  func() string { return "phc_test" },
	})
	if err != nil {
		t.Fatalf("new auth service: %v", err)
	}
	fixture.svc = svc
	return fixture
}

func hashedUser(t *testing.T, phone, password string) domain.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	return domain.User{
		ID:           "usr-1",
		Phone:        phone,
		PasswordHash: string(hash),
		Roles:        []domain.Role{domain.RoleCustomer},
		Verified:     true,
	}
}

func TestRegisterValidatesInput(t *testing.T) {
	fixture := newAuthFixture(t, &stubUserRepo{})
	ctx := context.Background()

	cases := []RegisterInput{
		{Name: "A", Phone: "not-a-phone", Password: "longenough"},
		{Name: "", Phone: "+919876543210", Password: "longenough"},
		{Name: "A", Phone: "+919876543210", Password: "short"},
	}
	for i, input := range cases {
		if _, err := fixture.svc.Register(ctx, input); !errors.Is(err, ErrAuthInvalidInput) {
			t.Errorf("case %d: expected ErrAuthInvalidInput, got %v", i, err)
		}
	}
}

func TestRegisterDuplicatePhoneMapsToUserExists(t *testing.T) {
	users := &stubUserRepo{
		createFn: func(context.Context, domain.User) error { return repositories.ErrDuplicate },
	}
	fixture := newAuthFixture(t, users)

	_, err := fixture.svc.Register(context.Background(), RegisterInput{
		Name:     "Asha",
		Phone:    "+919876543210",
		Password: "longenough",
	})
	if !errors.Is(err, ErrUserExists) {
		t.Fatalf("expected ErrUserExists, got %v", err)
	}
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	known := hashedUser(t, "+919876543210", "correct-horse")
	users := &stubUserRepo{
		getByPhoneFn: func(_ context.Context, phone string) (domain.User, error) {
			if phone == known.Phone {
				return known, nil
			}
			return domain.User{}, repositories.ErrNotFound
		},
	}
	fixture := newAuthFixture(t, users)
	ctx := context.Background()

	_, unknownErr := fixture.svc.Login(ctx, "+919999999999", "whatever")
	_, wrongErr := fixture.svc.Login(ctx, "+919876543210", "wrong-password")
	if !errors.Is(unknownErr, ErrInvalidCredentials) || !errors.Is(wrongErr, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for both, got %v / %v", unknownErr, wrongErr)
	}
}

func TestLoginMintsUsablePair(t *testing.T) {
	known := hashedUser(t, "+919876543210", "correct-horse")
	users := &stubUserRepo{
		getByPhoneFn: func(context.Context, string) (domain.User, error) { return known, nil },
		getByIDFn:    func(context.Context, string) (domain.User, error) { return known, nil },
	}
	fixture := newAuthFixture(t, users)
	ctx := context.Background()

	result, err := fixture.svc.Login(ctx, "+91 98765 43210", "correct-horse")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if result.User.ID != known.ID {
		t.Fatalf("unexpected user %s", result.User.ID)
	}
	if !result.Verified {
		t.Fatal("expected verified login")
	}
	if result.Pair.AccessToken == "" || result.Pair.RefreshToken == "" {
		t.Fatal("expected both tokens minted")
	}

	// The refresh token is immediately good for a rotation.
	if _, err := fixture.svc.Refresh(ctx, result.Pair.RefreshToken); err != nil {
		t.Fatalf("refresh: %v", err)
	}
}

func TestLoginAcceptsEmailIdentifier(t *testing.T) {
	known := hashedUser(t, "+919876543210", "correct-horse")
	known.Email = "asha@example.com"
	users := &stubUserRepo{
		getByEmailFn: func(_ context.Context, email string) (domain.User, error) {
			if email == known.Email {
				return known, nil
			}
			return domain.User{}, repositories.ErrNotFound
		},
		getByPhoneFn: func(context.Context, string) (domain.User, error) {
			return domain.User{}, repositories.ErrNotFound
		},
	}
	fixture := newAuthFixture(t, users)

	result, err := fixture.svc.Login(context.Background(), "Asha@Example.com", "correct-horse")
	if err != nil {
		t.Fatalf("login by email: %v", err)
	}
	if result.User.ID != known.ID {
		t.Fatalf("unexpected user %s", result.User.ID)
	}
}

func TestLoginUnverifiedReissuesCodeWithoutTokens(t *testing.T) {
	known := hashedUser(t, "+919876543210", "correct-horse")
	known.Verified = false
	users := &stubUserRepo{
		getByPhoneFn: func(context.Context, string) (domain.User, error) { return known, nil },
	}
	fixture := newAuthFixture(t, users)

	result, err := fixture.svc.Login(context.Background(), "+919876543210", "correct-horse")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if result.Verified {
		t.Fatal("expected unverified result")
	}
	if result.Pair.AccessToken != "" || result.Pair.RefreshToken != "" {
		t.Fatal("unverified login must not mint tokens")
	}
	if len(fixture.sentOTPs) != 1 {
		t.Fatalf("expected a fresh code sent, got %d", len(fixture.sentOTPs))
	}
}

func TestRefreshRotationKillsPresentedToken(t *testing.T) {
	known := hashedUser(t, "+919876543210", "correct-horse")
	users := &stubUserRepo{
		getByPhoneFn: func(context.Context, string) (domain.User, error) { return known, nil },
		getByIDFn:    func(context.Context, string) (domain.User, error) { return known, nil },
	}
	fixture := newAuthFixture(t, users)
	ctx := context.Background()

	login, err := fixture.svc.Login(ctx, "+919876543210", "correct-horse")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	pair := login.Pair
	rotated, err := fixture.svc.Refresh(ctx, pair.RefreshToken)
	if err != nil {
		t.Fatalf("first refresh: %v", err)
	}
	if rotated.RefreshToken == pair.RefreshToken {
		t.Fatal("rotation returned the same refresh token")
	}

	// Replaying the retired token must fail; the rotated one still works.
	if _, err := fixture.svc.Refresh(ctx, pair.RefreshToken); !errors.Is(err, ErrRefreshInvalid) {
		t.Fatalf("expected ErrRefreshInvalid for retired token, got %v", err)
	}
	if _, err := fixture.svc.Refresh(ctx, rotated.RefreshToken); err != nil {
		t.Fatalf("rotated token refresh: %v", err)
	}
}

func TestLogoutIsIdempotent(t *testing.T) {
	fixture := newAuthFixture(t, &stubUserRepo{})
	if err := fixture.svc.Logout(context.Background(), "garbage-token"); err != nil {
		t.Fatalf("logout with dead token: %v", err)
	}
}

func TestVerifyOTPIsSingleUse(t *testing.T) {
	known := hashedUser(t, "+919876543210", "correct-horse")
	verified := false
	users := &stubUserRepo{
		getByPhoneFn: func(context.Context, string) (domain.User, error) { return known, nil },
		setVerifiedFn: func(context.Context, string) error {
			verified = true
			return nil
		},
	}
	fixture := newAuthFixture(t, users)
	ctx := context.Background()

	if err := fixture.svc.RequestOTP(ctx, "+919876543210"); err != nil {
		t.Fatalf("request otp: %v", err)
	}
	if len(fixture.sentOTPs) != 1 {
		t.Fatalf("expected one code sent, got %d", len(fixture.sentOTPs))
	}
	code := fixture.sentOTPs[0]

	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}
	if _, _, err := fixture.svc.VerifyOTP(ctx, "+919876543210", wrong); !errors.Is(err, ErrOTPInvalid) {
		t.Fatalf("expected ErrOTPInvalid for wrong code, got %v", err)
	}
	user, pair, err := fixture.svc.VerifyOTP(ctx, "+919876543210", code)
	if err != nil {
		t.Fatalf("verify otp: %v", err)
	}
	if !verified {
		t.Fatal("expected user marked verified")
	}
	if !user.Verified {
		t.Fatal("expected returned user flagged verified")
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatal("verification must open a session")
	}
	if _, _, err := fixture.svc.VerifyOTP(ctx, "+919876543210", code); !errors.Is(err, ErrOTPExpired) {
		t.Fatalf("expected ErrOTPExpired on reuse, got %v", err)
	}
}

func TestVerifyOTPOpensUsableSession(t *testing.T) {
	known := hashedUser(t, "+919876543210", "correct-horse")
	known.Verified = false
	users := &stubUserRepo{
		getByPhoneFn:  func(context.Context, string) (domain.User, error) { return known, nil },
		getByIDFn:     func(context.Context, string) (domain.User, error) { return known, nil },
		setVerifiedFn: func(context.Context, string) error { return nil },
	}
	fixture := newAuthFixture(t, users)
	ctx := context.Background()

	if err := fixture.svc.RequestOTP(ctx, "+919876543210"); err != nil {
		t.Fatalf("request otp: %v", err)
	}
	_, pair, err := fixture.svc.VerifyOTP(ctx, "+919876543210", fixture.sentOTPs[0])
	if err != nil {
		t.Fatalf("verify otp: %v", err)
	}
	if _, err := fixture.svc.Refresh(ctx, pair.RefreshToken); err != nil {
		t.Fatalf("refresh with verification pair: %v", err)
	}
}

func TestVerifyOTPNeverIssuedIsInvalid(t *testing.T) {
	known := hashedUser(t, "+919876543210", "correct-horse")
	users := &stubUserRepo{
		getByPhoneFn: func(context.Context, string) (domain.User, error) { return known, nil },
	}
	fixture := newAuthFixture(t, users)

	// No code was ever requested for this phone; that is a bad code, not a
	// stale one.
	if _, _, err := fixture.svc.VerifyOTP(context.Background(), "+919876543210", "123456"); !errors.Is(err, ErrOTPInvalid) {
		t.Fatalf("expected ErrOTPInvalid when no code exists, got %v", err)
	}
}

func TestProvisionRejectsCustomerRole(t *testing.T) {
	fixture := newAuthFixture(t, &stubUserRepo{})

	_, err := fixture.svc.Provision(context.Background(), ProvisionInput{
		Name:     "Ops",
		Phone:    "+919876543210",
		Password: "longenough",
		Role:     domain.RoleCustomer,
	})
	if !errors.Is(err, ErrAuthInvalidInput) {
		t.Fatalf("expected ErrAuthInvalidInput, got %v", err)
	}
}

func TestProvisionMarksStaffVerified(t *testing.T) {
	var created domain.User
	users := &stubUserRepo{
		createFn: func(_ context.Context, user domain.User) error {
			created = user
			return nil
		},
	}
	fixture := newAuthFixture(t, users)

	_, err := fixture.svc.Provision(context.Background(), ProvisionInput{
		Name:     "Dev the Driver",
		Phone:    "+919876543210",
		Password: "longenough",
		Role:     domain.RoleDriver,
	})
	if err != nil {
		t.Fatalf("provision: %v", err)
	}
	if !created.Verified {
		t.Fatal("provisioned staff must be pre-verified")
	}
	if len(created.Roles) != 1 || created.Roles[0] != domain.RoleDriver {
		t.Fatalf("unexpected roles %v", created.Roles)
	}
}

func TestProvisionPharmacistCreatesPharmacy(t *testing.T) {
	var createdUser domain.User
	users := &stubUserRepo{
		createFn: func(_ context.Context, user domain.User) error {
			createdUser = user
			return nil
		},
	}
	fixture := newAuthFixture(t, users)
	var createdPharmacy domain.Pharmacy
	fixture.pharmacies.createFn = func(_ context.Context, pharmacy domain.Pharmacy) error {
		createdPharmacy = pharmacy
		return nil
	}

	user, pharmacy, err := fixture.svc.ProvisionPharmacist(context.Background(), ProvisionPharmacistInput{
		Name:            "Priya",
		Phone:           "+919876543210",
		Email:           "priya@pharma.example",
		Password:        "longenough",
		PharmacyName:    "City Chemist",
		PharmacyAddress: "12 MG Road",
	})
	if err != nil {
		t.Fatalf("provision pharmacist: %v", err)
	}
	if pharmacy.PharmacistUserID != user.ID || pharmacy.PharmacistUserID != createdUser.ID {
		t.Fatalf("pharmacy bound to %q, want %q", pharmacy.PharmacistUserID, createdUser.ID)
	}
	if !pharmacy.Active {
		t.Fatal("new pharmacy must start active")
	}
	if createdPharmacy.Name != "City Chemist" {
		t.Fatalf("unexpected stored pharmacy %q", createdPharmacy.Name)
	}
}

func TestProvisionPharmacistRequiresPharmacyDetails(t *testing.T) {
	fixture := newAuthFixture(t, &stubUserRepo{})

	_, _, err := fixture.svc.ProvisionPharmacist(context.Background(), ProvisionPharmacistInput{
		Name:            "Priya",
		Phone:           "+919876543210",
		Password:        "longenough",
		PharmacyName:    "   ",
		PharmacyAddress: "12 MG Road",
	})
	if !errors.Is(err, ErrAuthInvalidInput) {
		t.Fatalf("expected ErrAuthInvalidInput for blank pharmacy name, got %v", err)
	}
}

func TestProvisionDriverGeneratesSequentialEmail(t *testing.T) {
	var created []domain.User
	users := &stubUserRepo{
		createFn: func(_ context.Context, user domain.User) error {
			created = append(created, user)
			return nil
		},
	}
	fixture := newAuthFixture(t, users)

	for i := 0; i < 2; i++ {
		if _, err := fixture.svc.ProvisionDriver(context.Background(), ProvisionDriverInput{
			Name:     "Dev",
			Phone:    fmt.Sprintf("+9198765432%02d", i),
			Password: "longenough",
		}); err != nil {
			t.Fatalf("provision driver %d: %v", i, err)
		}
	}
	if len(created) != 2 {
		t.Fatalf("expected two drivers created, got %d", len(created))
	}
	if created[0].Email != "driver0001@drivers.medassist.internal" ||
		created[1].Email != "driver0002@drivers.medassist.internal" {
		t.Fatalf("unexpected internal emails %q / %q", created[0].Email, created[1].Email)
	}
	if len(created[0].Roles) != 1 || created[0].Roles[0] != domain.RoleDriver {
		t.Fatalf("unexpected roles %v", created[0].Roles)
	}
}

func TestNormalisePhone(t *testing.T) {
	cases := []struct {
		in, want string
		ok       bool
	}{
		{"+91 98765 43210", "+919876543210", true},
		{"98765-43210", "9876543210", true},
		{"+1 (415) 555-0100", "+14155550100", true},
		{"12345", "", false},
		{"9876543210987654", "", false},
		{"abcdefghij", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, err := NormalisePhone(tc.in)
		if tc.ok {
			if err != nil {
				t.Errorf("NormalisePhone(%q): unexpected error %v", tc.in, err)
				continue
			}
			if got != tc.want {
				t.Errorf("NormalisePhone(%q) = %q, want %q", tc.in, got, tc.want)
			}
			continue
		}
		if err == nil {
			t.Errorf("NormalisePhone(%q): expected error, got %q", tc.in, got)
		}
	}
}
