package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"greenroom.fm/internal/auth"
	"greenroom.fm/internal/ledger"
)

type registerRequest struct {
	Username      string `json:"username"`
	Password      string `json:"password"`
	IsArtist      bool   `json:"is_artist"`
	WalletAddress string `json:"wallet_address"`
	Bio           string `json:"bio"`
	ImageURL      string `json:"image_url"`
}

type tokenRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	UserID    uint64    `json:"user_id"`
	Roles     []string  `json:"roles"`
}

// handleRegister creates a user account. The password is stored only as
// a bcrypt hash; the response never echoes it.
func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req registerRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	user, err := a.svc.RegisterUser(r.Context(), ledger.User{
		Username:      req.Username,
		PasswordHash:  hash,
		IsArtist:      req.IsArtist,
		WalletAddress: req.WalletAddress,
		Bio:           req.Bio,
		ImageURL:      req.ImageURL,
	})
	if err != nil {
		handleLedgerError(w, r, err)
		return
	}
	a.audit(r.Context(), "user.registered", "user", user.ID, map[string]string{"username": user.Username})
	w.Header().Set("Location", fmt.Sprintf("/v1/users/%d", user.ID))
	writeJSON(w, http.StatusCreated, user)
}

// handleAuthToken exchanges credentials for a signed bearer token. Both
// an unknown username and a wrong password answer the same 401 so the
// endpoint cannot be used to enumerate accounts.
func (a *API) handleAuthToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req tokenRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	user, err := a.svc.GetUserByUsername(r.Context(), req.Username)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			unauthorized(w, r, "invalid credentials")
			return
		}
		handleLedgerError(w, r, err)
		return
	}
	if err := auth.VerifyPassword(user.PasswordHash, req.Password); err != nil {
		unauthorized(w, r, "invalid credentials")
		return
	}
	roles := auth.RolesFor(user.IsArtist, a.cfg.IsOps(user.Username))
	ttl := time.Duration(a.cfg.TokenTTLMinutes) * time.Minute
	token, err := auth.GenerateToken(user.ID, roles, ttl)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "token generation failed")
		return
	}
	a.audit(r.Context(), "auth.token.issued", "user", user.ID, map[string]string{"username": user.Username})
	writeJSON(w, http.StatusOK, tokenResponse{
		Token:     token,
		ExpiresAt: time.Now().UTC().Add(ttl),
		UserID:    user.ID,
		Roles:     roles,
	})
}
