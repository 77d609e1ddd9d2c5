package api

import (
	"context"
	"fmt"
	"net/mail"
	"net/url"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/tjddyd55-crypto/global-audition/client"
	"github.com/tjddyd55-crypto/global-audition/session"
)

const (
	minPasswordLen    = 8
	minNameLen        = 2
	minEstablished    = 1800
	countryCodeLength = 2
)

var birthdayPattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// Provider is a social login identity provider.
type Provider string

const (
	ProviderGoogle   Provider = "GOOGLE"
	ProviderKakao    Provider = "KAKAO"
	ProviderNaver    Provider = "NAVER"
	ProviderFacebook Provider = "FACEBOOK"
)

// AuthResponse is returned by every sign in flavour.
type AuthResponse struct {
	Token           string       `json:"token"`
	UserID          int64        `json:"userId"`
	Email           string       `json:"email"`
	Name            string       `json:"name"`
	UserType        session.Role `json:"userType"`
	ProfileImageURL string       `json:"profileImageUrl,omitempty"`
}

// UserProfile is the signed in user, cached under the current user key.
type UserProfile struct {
	ID              int64        `json:"id"`
	Email           string       `json:"email"`
	Name            string       `json:"name"`
	UserType        session.Role `json:"userType"`
	ProfileImageURL string       `json:"profileImageUrl,omitempty"`
	CreatedAt       string       `json:"createdAt"`
	UpdatedAt       string       `json:"updatedAt"`
}

// LoginRequest is an email and password sign in.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Applicant holds the fields only an APPLICANT registration carries.
type Applicant struct {
	Country   string   `json:"country"`
	City      string   `json:"city"`
	Birthday  string   `json:"birthday"`
	Phone     string   `json:"phone,omitempty"`
	Address   string   `json:"address,omitempty"`
	Timezone  string   `json:"timezone,omitempty"`
	Languages []string `json:"languages,omitempty"`
	Gender    string   `json:"gender,omitempty"`
}

// Business holds the fields only a BUSINESS registration carries.
type Business struct {
	BusinessCountry            string `json:"businessCountry"`
	BusinessCity               string `json:"businessCity"`
	CompanyName                string `json:"companyName"`
	LegalName                  string `json:"legalName"`
	RepresentativeName         string `json:"representativeName"`
	BusinessRegistrationNumber string `json:"businessRegistrationNumber"`
	BusinessLicenseDocumentURL string `json:"businessLicenseDocumentUrl,omitempty"`
	TaxID                      string `json:"taxId,omitempty"`
	BusinessAddress            string `json:"businessAddress,omitempty"`
	Website                    string `json:"website,omitempty"`
	ContactEmail               string `json:"contactEmail,omitempty"`
	ContactPhone               string `json:"contactPhone,omitempty"`
	EstablishedYear            int    `json:"establishedYear,omitempty"`
}

// RegisterRequest is a sign up. Exactly one of Applicant and Business is set, matching UserType.
type RegisterRequest struct {
	Email    string       `json:"email"`
	Password string       `json:"password"`
	Name     string       `json:"name"`
	UserType session.Role `json:"userType"`

	*Applicant
	*Business
}

// Validate applies the checks shared by both account types and then the variant's own.
// Messages are localization ids.
func (r *RegisterRequest) Validate(now time.Time) error {
	errs := FieldErrors{}

	if _, err := mail.ParseAddress(r.Email); err != nil || strings.Contains(r.Email, " ") {
		errs["email"] = "validation.email"
	}
	if utf8.RuneCountInString(r.Password) < minPasswordLen {
		errs["password"] = "validation.password"
	}
	if utf8.RuneCountInString(strings.TrimSpace(r.Name)) < minNameLen {
		errs["name"] = "validation.name"
	}

	switch r.UserType {
	case session.RoleApplicant:
		if r.Business != nil {
			errs["userType"] = "validation.userType"
		}
		r.validateApplicant(errs)
	case session.RoleBusiness:
		if r.Applicant != nil {
			errs["userType"] = "validation.userType"
		}
		r.validateBusiness(errs, now)
	default:
		errs["userType"] = "validation.userType"
	}

	return errs.orNil()
}

func (r *RegisterRequest) validateApplicant(errs FieldErrors) {
	a := r.Applicant
	if a == nil {
		a = &Applicant{}
	}
	if utf8.RuneCountInString(a.Country) != countryCodeLength {
		errs["country"] = "validation.country"
	}
	if strings.TrimSpace(a.City) == "" {
		errs["city"] = "validation.city"
	}
	if !birthdayPattern.MatchString(a.Birthday) {
		errs["birthday"] = "validation.birthday"
	}
}

func (r *RegisterRequest) validateBusiness(errs FieldErrors, now time.Time) {
	b := r.Business
	if b == nil {
		b = &Business{}
	}
	if utf8.RuneCountInString(b.BusinessCountry) != countryCodeLength {
		errs["businessCountry"] = "validation.country"
	}
	required := []struct{ field, value, message string }{
		{"businessCity", b.BusinessCity, "validation.city"},
		{"companyName", b.CompanyName, "validation.companyName"},
		{"legalName", b.LegalName, "validation.legalName"},
		{"representativeName", b.RepresentativeName, "validation.representativeName"},
		{"businessRegistrationNumber", b.BusinessRegistrationNumber, "validation.businessRegistrationNumber"},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			errs[r.field] = r.message
		}
	}
	if b.Website != "" {
		if u, err := url.ParseRequestURI(b.Website); err != nil || u.Scheme == "" || u.Host == "" {
			errs["website"] = "validation.url"
		}
	}
	if b.ContactEmail != "" {
		if _, err := mail.ParseAddress(b.ContactEmail); err != nil {
			errs["contactEmail"] = "validation.email"
		}
	}
	if b.EstablishedYear != 0 && (b.EstablishedYear < minEstablished || b.EstablishedYear > now.Year()) {
		errs["establishedYear"] = "validation.establishedYear"
	}
}

// AuthAPI covers /auth.
type AuthAPI struct {
	c *client.Client
}

// Login signs in with email and password.
func (a *AuthAPI) Login(ctx context.Context, req LoginRequest) (AuthResponse, error) {
	resp, err := post[AuthResponse](ctx, a.c, "/auth/login", req)
	if err != nil {
		return resp, err
	}
	return resp, checkToken(resp)
}

// Register validates req and creates the account.
func (a *AuthAPI) Register(ctx context.Context, req RegisterRequest) (AuthResponse, error) {
	if err := req.Validate(time.Now()); err != nil {
		return AuthResponse{}, err
	}
	resp, err := post[AuthResponse](ctx, a.c, "/auth/register", req)
	if err != nil {
		return resp, err
	}
	return resp, checkToken(resp)
}

// SocialLogin exchanges a provider access token. userType defaults to APPLICANT.
func (a *AuthAPI) SocialLogin(ctx context.Context, provider Provider, accessToken string, userType session.Role) (AuthResponse, error) {
	if userType == session.RoleNone {
		userType = session.RoleApplicant
	}
	resp, err := post[AuthResponse](ctx, a.c, "/auth/social/login", map[string]any{
		"provider":    provider,
		"accessToken": accessToken,
		"userType":    userType,
	})
	if err != nil {
		return resp, err
	}
	return resp, checkToken(resp)
}

// Me returns the signed in user.
func (a *AuthAPI) Me(ctx context.Context) (UserProfile, error) {
	return get[UserProfile](ctx, a.c, "/auth/me", nil)
}

// UserProfile returns another user's public profile.
func (a *AuthAPI) UserProfile(ctx context.Context, userID int64) (UserProfile, error) {
	return get[UserProfile](ctx, a.c, fmt.Sprintf("/auth/users/%d", userID), nil)
}

// FindUserID is not offered by the backend yet.
func (a *AuthAPI) FindUserID(_ context.Context, _ string) error {
	return client.ErrNotImplemented
}

// ResetPassword is not offered by the backend yet.
func (a *AuthAPI) ResetPassword(_ context.Context, _ string) error {
	return client.ErrNotImplemented
}

// ErrMissingToken is returned when a sign in answered 2xx without a token.
var ErrMissingToken = fmt.Errorf("%w: sign in response carried no token", client.ErrServer)

func checkToken(resp AuthResponse) error {
	if resp.Token == "" {
		return ErrMissingToken
	}
	return nil
}
