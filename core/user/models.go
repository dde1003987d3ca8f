package user

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"

	"github.com/eduweave/eduweave/core"
)

// Role is the closed set of portal roles. The zero value is not a valid role.
type Role int

const (
	RoleUnknown Role = iota
	RoleTeacher
	RoleDistrictOfficial
)

// Home paths
const (
	LoginPath        = "/login"
	TeacherHomePath  = "/teacher-dashboard"
	DistrictHomePath = "/diet-dashboard"
)

const (
	roleTeacherText      = "teacher"
	roleDistrictText     = "district_official"
	roleDistrictAliasTxt = "diet"
)

var (
	ErrInvalidRole = errors.New("invalid role")

	Roles = []Role{RoleTeacher, RoleDistrictOfficial}
)

// ParseRole parses the text form of a role. "diet" is accepted as an alias of district_official.
func ParseRole(s string) (Role, error) {
	switch core.CleanString(s, true /* lower */) {
	case roleTeacherText:
		return RoleTeacher, nil
	case roleDistrictText, roleDistrictAliasTxt:
		return RoleDistrictOfficial, nil
	default:
		return RoleUnknown, errors.Wrapf(ErrInvalidRole, "%q", s)
	}
}

func (r Role) String() string {
	switch r {
	case RoleTeacher:
		return roleTeacherText
	case RoleDistrictOfficial:
		return roleDistrictText
	default:
		return "unknown"
	}
}

func (r Role) Valid() bool {
	return r == RoleTeacher || r == RoleDistrictOfficial
}

// HomePath is the landing route of the role. Unknown roles land on the login view.
func (r Role) HomePath() string {
	switch r {
	case RoleTeacher:
		return TeacherHomePath
	case RoleDistrictOfficial:
		return DistrictHomePath
	default:
		return LoginPath
	}
}

func (r Role) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, ErrInvalidRole
	}
	return []byte(r.String()), nil
}

func (r *Role) UnmarshalText(text []byte) error {
	role, err := ParseRole(string(text))
	if err != nil {
		return err
	}
	*r = role
	return nil
}

// User is the authenticated identity record held by the session.
type User struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name"`
	Role        Role      `json:"role"`
	DistrictID  string    `json:"district_id"`
	SchoolName  string    `json:"school_name,omitempty"`
	SchoolCode  string    `json:"school_code,omitempty"`
	CreatedAt   time.Time `json:"created_at"` // UTC
}

func (u User) IsTeacher() bool          { return u.Role == RoleTeacher }
func (u User) IsDistrictOfficial() bool { return u.Role == RoleDistrictOfficial }

// Account is the backend's view of a user: the profile plus its credentials.
type Account struct {
	User
	PasswordHash []byte    `json:"-"`
	IsActive     bool      `json:"is_active"`
	UpdatedAt    time.Time `json:"updated_at"` // UTC
	LastLogin    time.Time `json:"last_login"` // UTC
}

func (a *Account) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	a.PasswordHash = hash
	return nil
}

func (a *Account) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(a.PasswordHash, []byte(pwd))
}

// NewAccount contains information needed to create or update an Account.
type NewAccount struct {
	Email           string `json:"email" validate:"required,email"`
	DisplayName     string `json:"display_name" validate:"required,notblank"`
	Role            string `json:"role" validate:"required,role"`
	DistrictID      string `json:"district_id"`
	SchoolName      string `json:"school_name"`
	SchoolCode      string `json:"school_code" validate:"omitempty,alphanum_"`
	Password        string `json:"password" validate:"required"`
	PasswordConfirm string `json:"password_confirm" validate:"required,eqfield=Password"`
}

func (na *NewAccount) Validate(validate *validator.Validate) error {
	na.Email = core.CleanString(na.Email, true /* lower */)
	na.DisplayName = core.CleanString(na.DisplayName)
	na.Role = core.CleanString(na.Role, true /* lower */)
	na.DistrictID = core.CleanString(na.DistrictID)
	na.SchoolName = core.CleanString(na.SchoolName)
	na.SchoolCode = strings.ToUpper(core.CleanString(na.SchoolCode))
	return validate.Struct(na)
}
