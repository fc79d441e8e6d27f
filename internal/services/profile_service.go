package services

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-marketplace-backend/internal/auth"
	"github.com/tbourn/go-marketplace-backend/internal/domain"
	"github.com/tbourn/go-marketplace-backend/internal/lock"
	"github.com/tbourn/go-marketplace-backend/internal/repo"
)

// DefaultWorkingHours is assigned to newly onboarded providers.
const DefaultWorkingHours = "09:00 - 18:00"

// ProfileService manages accounts and marketplace profiles.
type ProfileService struct {
	DB      *gorm.DB
	Gateway *repo.Gateway
	Tokens  *auth.Tokens

	// Locker serializes read-modify-write updates of one profile.
	Locker lock.Locker
}

// NewProfileService wires a ProfileService over db.
func NewProfileService(db *gorm.DB, tokens *auth.Tokens) *ProfileService {
	return &ProfileService{DB: db, Gateway: repo.NewGateway(db), Tokens: tokens, Locker: lock.NewLocal()}
}

func (p *ProfileService) start(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer("services/ProfileService").Start(ctx, op, trace.WithAttributes(attrs...))
}

// RegisterInput creates an account.
type RegisterInput struct {
	Phone    string `json:"phone"    validate:"required,e164"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	Name     string `json:"name"     validate:"required,max=120"`
}

// AuthResult is returned by Register and Login.
type AuthResult struct {
	Token     string              `json:"token"`
	ExpiresAt time.Time           `json:"expires_at"`
	Profile   *domain.UserProfile `json:"profile"`
}

// Register creates a profile without a role and signs the caller in.
func (p *ProfileService) Register(ctx context.Context, in RegisterInput) (_ *AuthResult, err error) {
	const op = "Register"
	ctx, span := p.start(ctx, op)
	defer end(span, op, &err)

	in.Phone = normalizePhone(in.Phone)
	in.Name = strings.TrimSpace(in.Name)
	if err := validateInput(op, in); err != nil {
		return nil, err
	}
	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, newErr(KindTransport, op, "could not hash password", err)
	}
	profile := &domain.UserProfile{
		ID:           uuid.NewString(),
		Name:         in.Name,
		Phone:        in.Phone,
		PasswordHash: hash,
		ServiceAreas: []string{},
		Addresses:    []domain.SavedAddress{},
	}
	if err := repo.CreateProfile(ctx, p.DB, profile); err != nil {
		if repo.IsDuplicate(err) {
			return nil, newErr(KindConflict, op, "phone number already registered", err)
		}
		return nil, storeErr(op, "profile", err)
	}
	return p.issue(op, profile)
}

// Login exchanges phone and password for a token. Unknown phones and wrong
// passwords fail the same way.
func (p *ProfileService) Login(ctx context.Context, phone, password string) (_ *AuthResult, err error) {
	const op = "Login"
	ctx, span := p.start(ctx, op)
	defer end(span, op, &err)

	profile, err := repo.GetProfileByPhone(ctx, p.DB, normalizePhone(phone))
	if err != nil {
		if repo.IsNotFound(err) {
			return nil, newErr(KindUnauthorized, op, "invalid phone or password", nil)
		}
		return nil, storeErr(op, "profile", err)
	}
	if err := auth.CheckPassword(profile.PasswordHash, password); err != nil {
		return nil, newErr(KindUnauthorized, op, "invalid phone or password", nil)
	}
	return p.issue(op, profile)
}

func (p *ProfileService) issue(op string, profile *domain.UserProfile) (*AuthResult, error) {
	if p.Tokens == nil {
		return nil, newErr(KindTransport, op, "token issuer not configured", nil)
	}
	tok, exp, err := p.Tokens.Issue(profile.ID)
	if err != nil {
		return nil, newErr(KindTransport, op, "could not issue token", err)
	}
	return &AuthResult{Token: tok, ExpiresAt: exp, Profile: profile}, nil
}

// Session resolves a verified principal id into a Session carrying the
// profile role.
func (p *ProfileService) Session(ctx context.Context, userID string) (Session, error) {
	const op = "Session"
	profile, err := repo.GetProfile(ctx, p.DB, userID)
	if err != nil {
		if repo.IsNotFound(err) {
			return Session{}, newErr(KindUnauthorized, op, "unknown user", err)
		}
		return Session{}, storeErr(op, "profile", err)
	}
	return Session{UserID: profile.ID, Role: profile.Role}, nil
}

// Me returns the caller's own profile.
func (p *ProfileService) Me(ctx context.Context, s Session) (_ *domain.UserProfile, err error) {
	const op = "Me"
	ctx, span := p.start(ctx, op, attribute.String("user.id", s.UserID))
	defer end(span, op, &err)

	if err := s.require(op, domain.RoleNone); err != nil {
		return nil, err
	}
	profile, err := repo.GetProfile(ctx, p.DB, s.UserID)
	if err != nil {
		return nil, storeErr(op, "profile", err)
	}
	return profile, nil
}

// SelectRole sets the caller's role. Switching to provider requires a
// completed provider onboarding (category and about).
func (p *ProfileService) SelectRole(ctx context.Context, s Session, role string) (_ *domain.UserProfile, err error) {
	const op = "SelectRole"
	ctx, span := p.start(ctx, op, attribute.String("user.id", s.UserID), attribute.String("role", role))
	defer end(span, op, &err)

	if err := s.require(op, domain.RoleNone); err != nil {
		return nil, err
	}
	r, ok := domain.ParseRole(strings.TrimSpace(role))
	if !ok {
		return nil, invalid(op, "role: must be one of: customer provider")
	}
	profile, err := repo.GetProfile(ctx, p.DB, s.UserID)
	if err != nil {
		return nil, storeErr(op, "profile", err)
	}
	if r == domain.RoleProvider && !profile.ProviderReady() {
		return nil, precondition(op, "complete provider onboarding first")
	}
	if err := p.Gateway.Update(ctx, repo.Profiles, s.UserID, domain.Document{"role": string(r)}); err != nil {
		return nil, storeErr(op, "profile", err)
	}
	return p.reload(ctx, op, s.UserID)
}

func (p *ProfileService) reload(ctx context.Context, op, id string) (*domain.UserProfile, error) {
	profile, err := repo.GetProfile(ctx, p.DB, id)
	if err != nil {
		return nil, storeErr(op, "profile", err)
	}
	return profile, nil
}

// OnboardInput turns an account into a provider.
type OnboardInput struct {
	Category     string   `json:"category"      validate:"required"`
	About        string   `json:"about"         validate:"required,max=2000"`
	WorkingHours string   `json:"working_hours" validate:"max=64"`
	ServiceAreas []string `json:"service_areas" validate:"max=20,dive,required,max=120"`
}

// OnboardProvider records the provider attributes and switches the role to
// provider. Working hours default to DefaultWorkingHours.
func (p *ProfileService) OnboardProvider(ctx context.Context, s Session, in OnboardInput) (_ *domain.UserProfile, err error) {
	const op = "OnboardProvider"
	ctx, span := p.start(ctx, op, attribute.String("user.id", s.UserID))
	defer end(span, op, &err)

	if err := s.require(op, domain.RoleNone); err != nil {
		return nil, err
	}
	in.About = strings.TrimSpace(in.About)
	in.WorkingHours = strings.TrimSpace(in.WorkingHours)
	if err := validateInput(op, in); err != nil {
		return nil, err
	}
	if in.WorkingHours == "" {
		in.WorkingHours = DefaultWorkingHours
	}
	if in.ServiceAreas == nil {
		in.ServiceAreas = []string{}
	}
	err = p.Gateway.Update(ctx, repo.Profiles, s.UserID, domain.Document{
		"role":          string(domain.RoleProvider),
		"category":      string(domain.ParseCategory(in.Category)),
		"about":         in.About,
		"working_hours": in.WorkingHours,
		"service_areas": in.ServiceAreas,
	})
	if err != nil {
		return nil, storeErr(op, "profile", err)
	}
	return p.reload(ctx, op, s.UserID)
}

// ProfilePatch lists the editable profile fields. Nil fields are left as
// they are.
type ProfilePatch struct {
	Name         *string   `json:"name"          validate:"omitempty,min=1,max=120"`
	About        *string   `json:"about"         validate:"omitempty,max=2000"`
	Category     *string   `json:"category"`
	WorkingHours *string   `json:"working_hours" validate:"omitempty,max=64"`
	ServiceAreas *[]string `json:"service_areas" validate:"omitempty,max=20,dive,required,max=120"`
}

// UpdateProfile applies a partial update to the caller's profile. Provider
// fields can only be changed by providers.
func (p *ProfileService) UpdateProfile(ctx context.Context, s Session, patch ProfilePatch) (_ *domain.UserProfile, err error) {
	const op = "UpdateProfile"
	ctx, span := p.start(ctx, op, attribute.String("user.id", s.UserID))
	defer end(span, op, &err)

	if err := s.require(op, domain.RoleNone); err != nil {
		return nil, err
	}
	if err := validateInput(op, patch); err != nil {
		return nil, err
	}
	doc := domain.Document{}
	if patch.Name != nil {
		doc["name"] = strings.TrimSpace(*patch.Name)
	}
	if patch.About != nil {
		about := strings.TrimSpace(*patch.About)
		if about == "" && s.Role == domain.RoleProvider {
			return nil, invalid(op, "about: providers must describe their services")
		}
		doc["about"] = about
	}
	providerOnly := patch.Category != nil || patch.WorkingHours != nil || patch.ServiceAreas != nil
	if providerOnly && s.Role != domain.RoleProvider {
		return nil, forbidden(op, "category, working hours and service areas are provider fields")
	}
	if patch.Category != nil {
		doc["category"] = string(domain.ParseCategory(*patch.Category))
	}
	if patch.WorkingHours != nil {
		doc["working_hours"] = strings.TrimSpace(*patch.WorkingHours)
	}
	if patch.ServiceAreas != nil {
		doc["service_areas"] = *patch.ServiceAreas
	}
	if err := p.Gateway.Update(ctx, repo.Profiles, s.UserID, doc); err != nil {
		return nil, storeErr(op, "profile", err)
	}
	return p.reload(ctx, op, s.UserID)
}

// AddressInput is a saved customer address.
type AddressInput struct {
	Title     string  `json:"title"     validate:"required,max=60"`
	Address   string  `json:"address"   validate:"required,max=255"`
	Latitude  float64 `json:"latitude"  validate:"gte=-90,lte=90"`
	Longitude float64 `json:"longitude" validate:"gte=-180,lte=180"`
}

// MaxAddresses caps a customer's saved addresses.
const MaxAddresses = 20

// AddAddress appends a saved address to the caller's profile.
func (p *ProfileService) AddAddress(ctx context.Context, s Session, in AddressInput) (_ *domain.SavedAddress, err error) {
	const op = "AddAddress"
	ctx, span := p.start(ctx, op, attribute.String("user.id", s.UserID))
	defer end(span, op, &err)

	if err := s.require(op, domain.RoleCustomer); err != nil {
		return nil, err
	}
	in.Title = strings.TrimSpace(in.Title)
	in.Address = strings.TrimSpace(in.Address)
	if err := validateInput(op, in); err != nil {
		return nil, err
	}
	unlock, err := p.Locker.Lock(ctx, "profile:"+s.UserID)
	if err != nil {
		return nil, newErr(KindTransport, op, "could not acquire profile lock", err)
	}
	defer unlock()

	addr := domain.SavedAddress{
		ID:        uuid.NewString(),
		Title:     in.Title,
		Address:   in.Address,
		Latitude:  in.Latitude,
		Longitude: in.Longitude,
	}
	// FOR UPDATE holds the row on Postgres; SQLite writers are already
	// serialized by the database lock.
	err = p.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var profile domain.UserProfile
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", s.UserID).First(&profile).Error; err != nil {
			return err
		}
		if len(profile.Addresses) >= MaxAddresses {
			return precondition(op, "at most %d saved addresses", MaxAddresses)
		}
		addrs := append(profile.Addresses, addr)
		return tx.Model(&profile).Select("addresses", "updated_at").
			Updates(&domain.UserProfile{Addresses: addrs, UpdatedAt: time.Now().UTC()}).Error
	})
	if err != nil {
		return nil, storeErr(op, "profile", err)
	}
	return &addr, nil
}

// PublicProfile is what other users see of a profile.
type PublicProfile struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Role          domain.Role     `json:"role"`
	Category      domain.Category `json:"category,omitempty"`
	About         string          `json:"about,omitempty"`
	Rating        float64         `json:"rating"`
	CompletedJobs int64           `json:"completed_jobs"`
	WorkingHours  string          `json:"working_hours,omitempty"`
	ServiceAreas  []string        `json:"service_areas,omitempty"`
}

// GetProfile returns the public view of a profile.
func (p *ProfileService) GetProfile(ctx context.Context, id string) (_ *PublicProfile, err error) {
	const op = "GetProfile"
	ctx, span := p.start(ctx, op, attribute.String("profile.id", id))
	defer end(span, op, &err)

	profile, err := repo.GetProfile(ctx, p.DB, id)
	if err != nil {
		return nil, storeErr(op, "profile", err)
	}
	return &PublicProfile{
		ID:            profile.ID,
		Name:          profile.Name,
		Role:          profile.Role,
		Category:      profile.Category,
		About:         profile.About,
		Rating:        profile.Rating,
		CompletedJobs: profile.CompletedJobs,
		WorkingHours:  profile.WorkingHours,
		ServiceAreas:  profile.ServiceAreas,
	}, nil
}

// normalizePhone drops spaces, dashes and parentheses.
func normalizePhone(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '(', ')', '.':
			return -1
		}
		return r
	}, strings.TrimSpace(s))
}
