package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/medassist/api/internal/domain"
	"github.com/medassist/api/internal/repositories"
)

var (
	// ErrUserInvalidInput signals invalid arguments.
	ErrUserInvalidInput = errors.New("user: invalid input")
	// ErrCartItemNotFound indicates no such line in the cart.
	ErrCartItemNotFound = errors.New("user: cart item not found")
)

// ProfileUpdate carries optional profile changes; empty fields are kept.
type ProfileUpdate struct {
	Name  string
	Email string
}

// CartItemInput captures adding or re-quantifying a cart line.
type CartItemInput struct {
	MedicineID string
	PharmacyID string
	Qty        int
	Price      float64
}

// UserService is the customer self-service surface: profile, addresses, cart.
type UserService interface {
	GetProfile(ctx context.Context, userID string) (domain.User, error)
	UpdateProfile(ctx context.Context, userID string, update ProfileUpdate) (domain.User, error)
	AddAddress(ctx context.Context, userID string, address domain.Address) (domain.User, error)
	GetCart(ctx context.Context, userID string) ([]domain.CartEntry, error)
	AddCartItem(ctx context.Context, userID string, input CartItemInput) ([]domain.CartEntry, error)
	RemoveCartItem(ctx context.Context, userID, medicineID string) ([]domain.CartEntry, error)
	ClearCart(ctx context.Context, userID string) error
}

// UserServiceDeps bundles the collaborators required to construct a user
// service.
type UserServiceDeps struct {
	Users     repositories.UserRepository
	Medicines repositories.MedicineRepository
	Clock     func() time.Time
	Logger    func(ctx context.Context, event string, fields map[string]any)
}

type userService struct {
	users     repositories.UserRepository
	medicines repositories.MedicineRepository
	clock     func() time.Time
	logger    func(context.Context, string, map[string]any)
}

// NewUserService wires dependencies into a concrete UserService.
func NewUserService(deps UserServiceDeps) (UserService, error) {
	if deps.Users == nil {
		return nil, errors.New("user service: user repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &userService{
		users:     deps.Users,
		medicines: deps.Medicines,
		clock:     func() time.Time { return clock().UTC() },
		logger:    logger,
	}, nil
}

func (s *userService) GetProfile(ctx context.Context, userID string) (domain.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return domain.User{}, ErrUserNotFound
		}
		return domain.User{}, fmt.Errorf("user: load: %w", err)
	}
	return user, nil
}

func (s *userService) UpdateProfile(ctx context.Context, userID string, update ProfileUpdate) (domain.User, error) {
	user, err := s.GetProfile(ctx, userID)
	if err != nil {
		return domain.User{}, err
	}
	if name := strings.TrimSpace(update.Name); name != "" {
		user.Name = name
	}
	if email := strings.ToLower(strings.TrimSpace(update.Email)); email != "" {
		user.Email = email
	}
	user.UpdatedAt = s.clock()

	if err := s.users.Update(ctx, user); err != nil {
		if errors.Is(err, repositories.ErrDuplicate) {
			return domain.User{}, ErrUserExists
		}
		return domain.User{}, fmt.Errorf("user: update: %w", err)
	}
	return user, nil
}

func (s *userService) AddAddress(ctx context.Context, userID string, address domain.Address) (domain.User, error) {
	if strings.TrimSpace(address.Line1) == "" || strings.TrimSpace(address.City) == "" || strings.TrimSpace(address.Pincode) == "" {
		return domain.User{}, ErrUserInvalidInput
	}
	user, err := s.GetProfile(ctx, userID)
	if err != nil {
		return domain.User{}, err
	}
	user.Addresses = append(user.Addresses, address)
	user.UpdatedAt = s.clock()

	if err := s.users.Update(ctx, user); err != nil {
		return domain.User{}, fmt.Errorf("user: update: %w", err)
	}
	return user, nil
}

func (s *userService) GetCart(ctx context.Context, userID string) ([]domain.CartEntry, error) {
	user, err := s.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	return user.Cart, nil
}

func (s *userService) AddCartItem(ctx context.Context, userID string, input CartItemInput) ([]domain.CartEntry, error) {
	if input.MedicineID == "" || input.PharmacyID == "" || input.Qty <= 0 {
		return nil, ErrUserInvalidInput
	}
	if s.medicines != nil {
		if _, err := s.medicines.GetByID(ctx, input.MedicineID); err != nil {
			if errors.Is(err, repositories.ErrNotFound) {
				return nil, ErrUserInvalidInput
			}
			return nil, fmt.Errorf("user: load medicine: %w", err)
		}
	}

	user, err := s.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}

	updated := false
	for i, entry := range user.Cart {
		if entry.MedicineID == input.MedicineID && entry.PharmacyID == input.PharmacyID {
			user.Cart[i].Qty = input.Qty
			user.Cart[i].PriceAtAdd = input.Price
			updated = true
			break
		}
	}
	if !updated {
		user.Cart = append(user.Cart, domain.CartEntry{
			MedicineID: input.MedicineID,
			PharmacyID: input.PharmacyID,
			Qty:        input.Qty,
			PriceAtAdd: input.Price,
			AddedAt:    s.clock(),
		})
	}

	if err := s.users.ReplaceCart(ctx, userID, user.Cart); err != nil {
		return nil, fmt.Errorf("user: save cart: %w", err)
	}
	return user.Cart, nil
}

func (s *userService) RemoveCartItem(ctx context.Context, userID, medicineID string) ([]domain.CartEntry, error) {
	user, err := s.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}

	kept := user.Cart[:0]
	removed := false
	for _, entry := range user.Cart {
		if entry.MedicineID == medicineID {
			removed = true
			continue
		}
		kept = append(kept, entry)
	}
	if !removed {
		return nil, ErrCartItemNotFound
	}

	if err := s.users.ReplaceCart(ctx, userID, kept); err != nil {
		return nil, fmt.Errorf("user: save cart: %w", err)
	}
	return kept, nil
}

func (s *userService) ClearCart(ctx context.Context, userID string) error {
	if err := s.users.ReplaceCart(ctx, userID, nil); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("user: clear cart: %w", err)
	}
	return nil
}
