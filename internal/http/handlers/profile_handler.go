// Identity and profile HTTP handlers.
//
//   - POST  /auth/register
//   - POST  /auth/login
//   - GET   /me
//   - PATCH /me
//   - PUT   /me/role
//   - PUT   /me/provider
//   - POST  /me/addresses
//   - GET   /providers/{id}
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-marketplace-backend/internal/services"
)

//
// DTOs
//

// LoginRequest is the JSON payload for POST /auth/login.
type LoginRequest struct {
	Phone    string `json:"phone"    binding:"required" example:"+905551112233"`
	Password string `json:"password" binding:"required" example:"correct horse"`
}

// SelectRoleRequest is the JSON payload for PUT /me/role.
type SelectRoleRequest struct {
	Role string `json:"role" binding:"required" enums:"customer,provider" example:"customer"`
}

//
// Handlers
//

// Register godoc
// @ID          register
// @Summary     Create an account
// @Description Registers a principal by phone and password and returns a bearer token. The profile starts without a role.
// @Tags        Auth
// @Accept      json
// @Produce     json
// @Param       body  body      services.RegisterInput  true  "Registration payload"
// @Success     201   {object}  services.AuthResult
// @Failure     400   {object}  handlers.ErrorResponse  "Validation failed"
// @Failure     409   {object}  handlers.ErrorResponse  "Phone already registered"
// @Router      /auth/register [post]
func (h *Handlers) Register(c *gin.Context) {
	var in services.RegisterInput
	if err := c.ShouldBindJSON(&in); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	res, err := h.profiles.Register(c.Request.Context(), in)
	if err != nil {
		failFromErr(c, err)
		return
	}
	ok(c, http.StatusCreated, res)
}

// Login godoc
// @ID          login
// @Summary     Sign in
// @Tags        Auth
// @Accept      json
// @Produce     json
// @Param       body  body      handlers.LoginRequest  true  "Credentials"
// @Success     200   {object}  services.AuthResult
// @Failure     400   {object}  handlers.ErrorResponse  "Bad request"
// @Failure     401   {object}  handlers.ErrorResponse  "Invalid phone or password"
// @Router      /auth/login [post]
func (h *Handlers) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "phone and password required")
		return
	}
	res, err := h.profiles.Login(c.Request.Context(), req.Phone, req.Password)
	if err != nil {
		failFromErr(c, err)
		return
	}
	ok(c, http.StatusOK, res)
}

// Me godoc
// @ID          getMe
// @Summary     Current profile
// @Tags        Profile
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object}  domain.UserProfile
// @Failure     401  {object}  handlers.ErrorResponse
// @Router      /me [get]
func (h *Handlers) Me(c *gin.Context) {
	s, good := h.session(c)
	if !good {
		return
	}
	p, err := h.profiles.Me(c.Request.Context(), s)
	if err != nil {
		failFromErr(c, err)
		return
	}
	ok(c, http.StatusOK, p)
}

// SelectRole godoc
// @ID          selectRole
// @Summary     Switch marketplace role
// @Description Switching to provider requires a completed provider profile (category and about).
// @Tags        Profile
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       body  body      handlers.SelectRoleRequest  true  "Role"
// @Success     200   {object}  domain.UserProfile
// @Failure     400   {object}  handlers.ErrorResponse
// @Failure     409   {object}  handlers.ErrorResponse  "Provider profile incomplete"
// @Router      /me/role [put]
func (h *Handlers) SelectRole(c *gin.Context) {
	s, good := h.session(c)
	if !good {
		return
	}
	var req SelectRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "role required")
		return
	}
	p, err := h.profiles.SelectRole(c.Request.Context(), s, req.Role)
	if err != nil {
		failFromErr(c, err)
		return
	}
	ok(c, http.StatusOK, p)
}

// OnboardProvider godoc
// @ID          onboardProvider
// @Summary     Become a provider
// @Description Stores the provider profile and switches the role to provider.
// @Tags        Profile
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       body  body      services.OnboardInput  true  "Provider profile"
// @Success     200   {object}  domain.UserProfile
// @Failure     400   {object}  handlers.ErrorResponse
// @Router      /me/provider [put]
func (h *Handlers) OnboardProvider(c *gin.Context) {
	s, good := h.session(c)
	if !good {
		return
	}
	var in services.OnboardInput
	if err := c.ShouldBindJSON(&in); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	p, err := h.profiles.OnboardProvider(c.Request.Context(), s, in)
	if err != nil {
		failFromErr(c, err)
		return
	}
	ok(c, http.StatusOK, p)
}

// UpdateProfile godoc
// @ID          updateProfile
// @Summary     Edit profile fields
// @Description Absent fields are left unchanged. Provider fields require the provider role.
// @Tags        Profile
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       body  body      services.ProfilePatch  true  "Fields to change"
// @Success     200   {object}  domain.UserProfile
// @Failure     400   {object}  handlers.ErrorResponse
// @Failure     403   {object}  handlers.ErrorResponse
// @Router      /me [patch]
func (h *Handlers) UpdateProfile(c *gin.Context) {
	s, good := h.session(c)
	if !good {
		return
	}
	var patch services.ProfilePatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	p, err := h.profiles.UpdateProfile(c.Request.Context(), s, patch)
	if err != nil {
		failFromErr(c, err)
		return
	}
	ok(c, http.StatusOK, p)
}

// AddAddress godoc
// @ID          addAddress
// @Summary     Save an address
// @Tags        Profile
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       body  body      services.AddressInput  true  "Address"
// @Success     201   {object}  domain.SavedAddress
// @Failure     400   {object}  handlers.ErrorResponse
// @Failure     403   {object}  handlers.ErrorResponse  "Customers only"
// @Router      /me/addresses [post]
func (h *Handlers) AddAddress(c *gin.Context) {
	s, good := h.session(c)
	if !good {
		return
	}
	var in services.AddressInput
	if err := c.ShouldBindJSON(&in); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	a, err := h.profiles.AddAddress(c.Request.Context(), s, in)
	if err != nil {
		failFromErr(c, err)
		return
	}
	ok(c, http.StatusCreated, a)
}

// GetProvider godoc
// @ID          getProvider
// @Summary     Public provider profile
// @Tags        Profile
// @Produce     json
// @Param       id   path      string  true  "Profile ID"
// @Success     200  {object}  services.PublicProfile
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /providers/{id} [get]
func (h *Handlers) GetProvider(c *gin.Context) {
	p, err := h.profiles.GetProfile(c.Request.Context(), c.Param("id"))
	if err != nil {
		failFromErr(c, err)
		return
	}
	ok(c, http.StatusOK, p)
}
