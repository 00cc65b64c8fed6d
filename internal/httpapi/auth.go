package httpapi

import (
	"context"
	"crypto/subtle"
	"errors"
	"strings"
	"sync"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/emiac1617/payment-reconciliation/internal/domain"
)

// Admins may refresh snapshots and save adjustments, viewers only read.
// RoleService is never stored for a user: it is the actor behind the shared
// service token and only reaches routes that list it.
const (
	RoleAdmin   = "admin"
	RoleViewer  = "viewer"
	RoleService = "service"

	tokenIssuer    = "payment-reconciliation"
	serviceSubject = "service"
)

var (
	errInvalidCredentials = errors.New("invalid credentials")
	errInactiveAccount    = errors.New("account is inactive")
	errInvalidToken       = errors.New("invalid or expired token")
)

// UserStore is the account table logins are checked against.
type UserStore interface {
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}

type AuthOptions struct {
	Secret   string
	TokenTTL time.Duration
	// ServiceToken, when set, authenticates peers reading raw credit notes.
	ServiceToken string
}

// AuthManager issues and checks HS256 access tokens for the accounts in a
// UserStore. The account table is re-read on every login.
type AuthManager struct {
	secret       []byte
	ttl          time.Duration
	serviceToken []byte
	users        UserStore

	mu       sync.RWMutex
	accounts map[string]account
}

type account struct {
	hash   []byte
	role   string
	active bool
}

type accessClaims struct {
	jwtlib.RegisteredClaims
	Role string `json:"role"`
}

func NewAuthManager(users UserStore, opts AuthOptions) *AuthManager {
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = 8 * time.Hour
	}
	m := &AuthManager{
		secret:   []byte(opts.Secret),
		ttl:      opts.TokenTTL,
		users:    users,
		accounts: make(map[string]account),
	}
	if token := strings.TrimSpace(opts.ServiceToken); token != "" {
		m.serviceToken = []byte(token)
	}
	m.syncAccounts(context.Background())
	return m
}

// Login checks the password of an active account and issues a token carrying
// its role. Unknown users and wrong passwords get the same error.
func (m *AuthManager) Login(ctx context.Context, req domain.LoginRequest) (domain.LoginResponse, error) {
	m.syncAccounts(ctx)

	username := normalizeUsername(req.Username)
	m.mu.RLock()
	acct, ok := m.accounts[username]
	m.mu.RUnlock()
	if !ok || strings.TrimSpace(req.Password) == "" {
		return domain.LoginResponse{}, errInvalidCredentials
	}
	if bcrypt.CompareHashAndPassword(acct.hash, []byte(req.Password)) != nil {
		return domain.LoginResponse{}, errInvalidCredentials
	}
	if !acct.active {
		return domain.LoginResponse{}, errInactiveAccount
	}

	expiresAt := time.Now().UTC().Add(m.ttl)
	token, err := m.issue(username, acct.role, expiresAt)
	if err != nil {
		return domain.LoginResponse{}, err
	}
	return domain.LoginResponse{
		AccessToken: token,
		Role:        acct.role,
		ExpiresAt:   expiresAt.Format(time.RFC3339),
	}, nil
}

// Authenticate resolves a bearer credential to an actor. The service token is
// tried first; anything else must be an access token from this service.
func (m *AuthManager) Authenticate(bearer string) (domain.Actor, error) {
	if len(m.serviceToken) > 0 && subtle.ConstantTimeCompare([]byte(bearer), m.serviceToken) == 1 {
		return domain.Actor{Username: serviceSubject, Role: RoleService}, nil
	}
	return m.ParseToken(bearer)
}

func (m *AuthManager) ParseToken(raw string) (domain.Actor, error) {
	var claims accessClaims
	_, err := jwtlib.ParseWithClaims(raw, &claims, func(*jwtlib.Token) (interface{}, error) {
		return m.secret, nil
	},
		jwtlib.WithValidMethods([]string{jwtlib.SigningMethodHS256.Alg()}),
		jwtlib.WithIssuer(tokenIssuer),
		jwtlib.WithExpirationRequired(),
	)
	if err != nil {
		return domain.Actor{}, errInvalidToken
	}
	if claims.Subject == "" || !isUserRole(claims.Role) {
		return domain.Actor{}, errInvalidToken
	}
	return domain.Actor{Username: claims.Subject, Role: claims.Role}, nil
}

func (m *AuthManager) issue(username, role string, expiresAt time.Time) (string, error) {
	now := time.Now().UTC()
	claims := accessClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   username,
			IssuedAt:  jwtlib.NewNumericDate(now),
			NotBefore: jwtlib.NewNumericDate(now),
			ExpiresAt: jwtlib.NewNumericDate(expiresAt),
		},
		Role: role,
	}
	return jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(m.secret)
}

// syncAccounts replaces the cached account table with the store's. Accounts
// with a role other than admin or viewer are skipped. A plain-text password
// is hashed and written back. A failed read keeps the previous table.
func (m *AuthManager) syncAccounts(ctx context.Context) {
	if m.users == nil {
		return
	}
	users, err := m.users.ListUsers(ctx)
	if err != nil {
		return
	}

	next := make(map[string]account, len(users))
	for _, u := range users {
		username := normalizeUsername(u.Username)
		if username == "" || !isUserRole(u.Role) {
			continue
		}
		hash := []byte(u.Password)
		if _, err := bcrypt.Cost(hash); err != nil {
			if u.Password == "" {
				continue
			}
			hash, err = bcrypt.GenerateFromPassword([]byte(u.Password), bcrypt.DefaultCost)
			if err != nil {
				continue
			}
			_ = m.users.UpdateUserPassword(ctx, username, string(hash))
		}
		next[username] = account{hash: hash, role: u.Role, active: u.Active}
	}

	m.mu.Lock()
	m.accounts = next
	m.mu.Unlock()
}

func normalizeUsername(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func isUserRole(role string) bool {
	return role == RoleAdmin || role == RoleViewer
}
