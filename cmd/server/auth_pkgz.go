package main

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	auth2 "github.com/go-pkgz/auth/v2"
	"github.com/go-pkgz/auth/v2/avatar"
	"github.com/go-pkgz/auth/v2/token"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/icco/taverna"
)

// Define context key type to avoid collisions
type contextKey string

const (
	identityContextKey contextKey = "identity"
	tokenIssuer        string     = "taverna-app"
	tokenAudience      string     = "taverna"
)

// Identity is the authenticated caller of a request.
type Identity struct {
	UserID int64
	Name   string
	Email  string
	Role   taverna.PlatformRole
}

// IsAdmin reports whether the caller holds the platform admin role.
func (i Identity) IsAdmin() bool {
	return i.Role == taverna.PlatformAdmin
}

var authService *auth2.Service

func newAuthService(c Config) *auth2.Service {
	secret := c.AuthSecret

	service := auth2.NewService(auth2.Opts{
		SecretReader:  token.SecretFunc(func(aud string) (string, error) { return secret, nil }),
		TokenDuration: c.TokenDuration,
		Issuer:        tokenIssuer,
		URL:           c.AuthURL,
		DisableXSRF:   true,
		SecureCookies: !c.IsDev(),
		AvatarStore:   avatar.NewNoOp(),
	})

	if c.GoogleClientID != "" && c.GoogleClientSecret != "" {
		service.AddProvider("google", c.GoogleClientID, c.GoogleClientSecret)
	}

	return service
}

type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email,max=255" example:"user@example.com"`
	Password string `json:"password" validate:"required,min=8,max=72" example:"secretpassword"`
	Name     string `json:"name" validate:"max=128" example:"Mira Stormborn"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required" example:"user@example.com"`
	Password string `json:"password" validate:"required" example:"secretpassword"`
}

type AuthResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

type UpdateProfileRequest struct {
	Name        *string        `json:"name,omitempty" validate:"omitempty,min=1,max=128"`
	AvatarURL   *string        `json:"avatarUrl,omitempty" validate:"omitempty,url,max=512"`
	Preferences datatypes.JSON `json:"preferences,omitempty"`
}

func AuthRoutes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Throttle(20))

	// go-pkgz handlers for social login
	authHandler, _ := authService.Handlers()
	r.Mount("/", authHandler)

	r.Group(func(r chi.Router) {
		r.Use(middleware.ThrottleBacklog(10, 60, 50))

		r.Post("/register", registerHandler)
		r.Post("/login", loginHandler)
	})

	r.Group(func(r chi.Router) {
		r.Use(authMiddleware)
		r.Get("/profile", profileHandler)
		r.Put("/profile", updateProfileHandler)
		r.Post("/logout", logoutHandler)
	})

	return r
}

// @Summary Register a new user
// @Description Register with email and password
// @Tags auth
// @Accept json
// @Produce json
// @Param user body RegisterRequest true "User registration data"
// @Success 201 {object} Response{data=User}
// @Failure 400 {object} Response
// @Failure 409 {object} Response
// @Router /auth/register [post]
func registerHandler(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := decodeJSON(r, &req); err != nil {
		renderError(w, r, err)
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	db, err := getDB()
	if err != nil {
		renderError(w, r, err)
		return
	}

	var existing int64
	if err := db.Model(&User{}).Where("email = ?", req.Email).Count(&existing).Error; err != nil {
		renderError(w, r, err)
		return
	}
	if existing > 0 {
		log.Warnw("registration attempt for existing user", "email", req.Email, "remote_addr", r.RemoteAddr)
		renderError(w, r, taverna.Conflict("email address is already registered"))
		return
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		renderError(w, r, fmt.Errorf("hash password: %w", err))
		return
	}

	name := ugcPolicy.Sanitize(req.Name)
	if name == "" {
		name = strings.SplitN(req.Email, "@", 2)[0]
	}

	user := User{
		Provider:     "local",
		ProviderID:   uuid.NewString(),
		Email:        req.Email,
		Name:         name,
		PasswordHash: string(hashedPassword),
		Role:         taverna.PlatformUser,
		Preferences:  datatypes.JSON("{}"),
	}

	if err := db.Create(&user).Error; err != nil {
		log.Errorw("failed to create user", "email", req.Email, zap.Error(err))
		if isDuplicate(err) {
			renderError(w, r, taverna.Conflict("email address is already registered"))
			return
		}
		renderError(w, r, err)
		return
	}

	log.Infow("user registered successfully", "user_id", user.ID, "email", req.Email, "remote_addr", r.RemoteAddr)
	renderData(w, http.StatusCreated, user)
}

// @Summary Login user
// @Description Login with email and password. Sets the JWT cookie and returns the token.
// @Tags auth
// @Accept json
// @Produce json
// @Param user body LoginRequest true "User login data"
// @Success 200 {object} Response{data=AuthResponse}
// @Failure 400 {object} Response
// @Failure 401 {object} Response
// @Router /auth/login [post]
func loginHandler(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		renderError(w, r, err)
		return
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))

	db, err := getDB()
	if err != nil {
		renderError(w, r, err)
		return
	}

	var user User
	if err := db.Where("email = ? AND provider = ?", email, "local").First(&user).Error; err != nil {
		log.Warnw("login attempt for non-existent user", "email", email, "remote_addr", r.RemoteAddr)
		renderError(w, r, taverna.Unauthenticated("invalid credentials"))
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		log.Warnw("login attempt with invalid password", "email", email, "user_id", user.ID, "remote_addr", r.RemoteAddr)
		renderError(w, r, taverna.Unauthenticated("invalid credentials"))
		return
	}

	if user.Disabled {
		renderError(w, r, taverna.Forbidden("account is disabled"))
		return
	}

	claims := claimsFor(&user, time.Now())
	tok, err := authService.TokenService().Token(claims)
	if err != nil {
		renderError(w, r, fmt.Errorf("failed to generate token: %w", err))
		return
	}
	if _, err := authService.TokenService().Set(w, claims); err != nil {
		log.Errorw("failed to set auth cookie", zap.Error(err))
	}

	log.Infow("user logged in successfully", "user_id", user.ID, "remote_addr", r.RemoteAddr)
	renderData(w, http.StatusOK, AuthResponse{Token: tok, User: user})
}

// @Summary Get user profile
// @Description Get current user profile information
// @Tags auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} Response{data=User}
// @Failure 401 {object} Response
// @Router /auth/profile [get]
func profileHandler(w http.ResponseWriter, r *http.Request) {
	db, err := getDB()
	if err != nil {
		renderError(w, r, err)
		return
	}

	var user User
	if err := db.First(&user, identityFrom(r).UserID).Error; err != nil {
		renderError(w, r, dbError(err, "user"))
		return
	}
	renderData(w, http.StatusOK, user)
}

// @Summary Update user profile
// @Description Update current user profile information
// @Tags auth
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param profile body UpdateProfileRequest true "Profile update data"
// @Success 200 {object} Response{data=User}
// @Failure 400 {object} Response
// @Failure 401 {object} Response
// @Router /auth/profile [put]
func updateProfileHandler(w http.ResponseWriter, r *http.Request) {
	var req UpdateProfileRequest
	if err := decodeJSON(r, &req); err != nil {
		renderError(w, r, err)
		return
	}

	db, err := getDB()
	if err != nil {
		renderError(w, r, err)
		return
	}

	updates := map[string]any{}
	if req.Name != nil {
		updates["name"] = ugcPolicy.Sanitize(*req.Name)
	}
	if req.AvatarURL != nil {
		updates["avatar_url"] = *req.AvatarURL
	}
	if len(req.Preferences) > 0 {
		updates["preferences"] = req.Preferences
	}

	var user User
	err = db.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&user, identityFrom(r).UserID).Error; err != nil {
			return dbError(err, "user")
		}
		if len(updates) > 0 {
			if err := tx.Model(&user).Updates(updates).Error; err != nil {
				return err
			}
		}
		return tx.First(&user, user.ID).Error
	})
	if err != nil {
		renderError(w, r, err)
		return
	}

	renderData(w, http.StatusOK, user)
}

// @Summary Logout user
// @Description Clears the auth cookie. Bearer tokens stay valid until they expire.
// @Tags auth
// @Produce json
// @Success 200 {object} Response
// @Router /auth/logout [post]
func logoutHandler(w http.ResponseWriter, r *http.Request) {
	authService.TokenService().Reset(w)
	renderData(w, http.StatusOK, map[string]string{"message": "logged out"})
}

func claimsFor(user *User, now time.Time) token.Claims {
	id := strconv.FormatInt(user.ID, 10)
	return token.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   id,
			Audience:  []string{tokenAudience},
			ExpiresAt: jwt.NewNumericDate(now.Add(conf.TokenDuration)),
			NotBefore: jwt.NewNumericDate(now),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		User: &token.User{
			ID:    id,
			Name:  user.Name,
			Email: user.Email,
		},
	}
}

// issueToken signs a token for user without touching the response.
func issueToken(user *User) (string, error) {
	return authService.TokenService().Token(claimsFor(user, time.Now()))
}

func claimsFromRequest(r *http.Request) (token.Claims, error) {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return authService.TokenService().Parse(strings.TrimPrefix(h, "Bearer "))
	}
	claims, _, err := authService.TokenService().Get(r)
	return claims, err
}

func currentIdentity(r *http.Request) (Identity, error) {
	claims, err := claimsFromRequest(r)
	if err != nil || claims.User == nil {
		return Identity{}, taverna.Unauthenticated("authentication required")
	}

	userID, err := strconv.ParseInt(claims.User.ID, 10, 64)
	if err != nil {
		// social logins carry provider ids; map them to local rows
		return socialIdentity(claims.User)
	}

	db, err := getDB()
	if err != nil {
		return Identity{}, err
	}

	var user User
	if err := db.First(&user, userID).Error; err != nil {
		return Identity{}, taverna.Unauthenticated("authentication required")
	}
	if user.Disabled {
		return Identity{}, taverna.Forbidden("account is disabled")
	}

	return Identity{UserID: user.ID, Name: user.Name, Email: user.Email, Role: user.Role}, nil
}

// socialIdentity finds or creates the local user for a go-pkgz social login.
func socialIdentity(u *token.User) (Identity, error) {
	db, err := getDB()
	if err != nil {
		return Identity{}, err
	}

	provider := "social"
	if i := strings.Index(u.ID, "_"); i > 0 {
		provider = u.ID[:i]
	}

	var user User
	err = db.Where(User{Provider: provider, ProviderID: u.ID}).
		Attrs(User{
			Email:       strings.ToLower(u.Email),
			Name:        ugcPolicy.Sanitize(u.Name),
			AvatarURL:   u.Picture,
			Role:        taverna.PlatformUser,
			Preferences: datatypes.JSON("{}"),
		}).
		FirstOrCreate(&user).Error
	if err != nil {
		return Identity{}, dbError(err, "user")
	}
	if user.Disabled {
		return Identity{}, taverna.Forbidden("account is disabled")
	}

	return Identity{UserID: user.ID, Name: user.Name, Email: user.Email, Role: user.Role}, nil
}

// authMiddleware accepts a bearer token or the JWT cookie.
func authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := currentIdentity(r)
		if err != nil {
			renderError(w, r, err)
			return
		}

		ctx := context.WithValue(r.Context(), identityContextKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func adminMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !identityFrom(r).IsAdmin() {
			renderError(w, r, taverna.ErrNotAdmin)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// identityFrom returns the caller set by authMiddleware. It panics on routes
// without it.
func identityFrom(r *http.Request) Identity {
	id, ok := r.Context().Value(identityContextKey).(Identity)
	if !ok {
		panic("identity missing from context: auth middleware not installed")
	}
	return id
}
