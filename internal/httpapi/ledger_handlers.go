package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"greenroom.fm/internal/auth"
	"greenroom.fm/internal/ledger"
	"greenroom.fm/internal/obs"
	"greenroom.fm/internal/stream"
)

// listResponse is the envelope for collection endpoints.
type listResponse[T any] struct {
	Items []T       `json:"items"`
	AsOf  time.Time `json:"as_of"`
}

func list[T any](items []T) listResponse[T] {
	if items == nil {
		items = []T{}
	}
	return listResponse[T]{Items: items, AsOf: time.Now().UTC()}
}

// --- request decoding and error helpers ---

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		writeError(w, r, http.StatusBadRequest, "invalid request body: unexpected trailing data")
		return false
	}
	return true
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, status, map[string]string{
		"error":      msg,
		"request_id": RequestIDFromContext(r.Context()),
	})
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}

// handleLedgerError переводит доменные ошибки в HTTP-статусы.
func handleLedgerError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ledger.ErrValidation):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, ledger.ErrUnauthorized):
		writeError(w, r, http.StatusForbidden, err.Error())
	case errors.Is(err, ledger.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, ledger.ErrInvalidState), errors.Is(err, ledger.ErrAlreadyExists):
		writeError(w, r, http.StatusConflict, err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

func parseID(raw string) (uint64, error) {
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("identifier must be a positive integer, got %q", raw)
	}
	return id, nil
}

func splitPath(rest string) []string {
	rest = strings.Trim(rest, "/")
	if rest == "" {
		return nil
	}
	return strings.Split(rest, "/")
}

// requireArtistOwner loads the artist and checks the authenticated user
// owns it. On failure the response is already written.
func (a *API) requireArtistOwner(w http.ResponseWriter, r *http.Request, artistID uint64) (ledger.Artist, bool) {
	art, err := a.svc.GetArtist(r.Context(), artistID)
	if err != nil {
		handleLedgerError(w, r, err)
		return ledger.Artist{}, false
	}
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		unauthorized(w, r, "authentication required")
		return ledger.Artist{}, false
	}
	if art.UserID != userID {
		writeError(w, r, http.StatusForbidden, "artist profile belongs to another user")
		return ledger.Artist{}, false
	}
	return art, true
}

// --- users ---

type profileRequest struct {
	WalletAddress string `json:"wallet_address"`
	Bio           string `json:"bio"`
	ImageURL      string `json:"image_url"`
}

func (a *API) handleUserResource(w http.ResponseWriter, r *http.Request) {
	segs := splitPath(strings.TrimPrefix(r.URL.Path, "/v1/users/"))
	if len(segs) == 0 {
		http.NotFound(w, r)
		return
	}
	id, err := parseID(segs[0])
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	switch {
	case len(segs) == 1:
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		user, err := a.svc.GetUser(r.Context(), id)
		if err != nil {
			handleLedgerError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, user)
	case len(segs) == 2 && segs[1] == "profile":
		if r.Method != http.MethodPut {
			methodNotAllowed(w, r, http.MethodPut)
			return
		}
		a.updateProfile(w, r, id)
	case len(segs) == 2 && segs[1] == "holdings":
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		items, err := a.svc.Portfolio(r.Context(), id)
		if err != nil {
			handleLedgerError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, list(items))
	case len(segs) == 2 && segs[1] == "earnings":
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		items, err := a.svc.EarningsByUser(r.Context(), id)
		if err != nil {
			handleLedgerError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, list(items))
	default:
		http.NotFound(w, r)
	}
}

func (a *API) updateProfile(w http.ResponseWriter, r *http.Request, id uint64) {
	authID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		unauthorized(w, r, "authentication required")
		return
	}
	if authID != id {
		writeError(w, r, http.StatusForbidden, "profile belongs to another user")
		return
	}
	var req profileRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	user, err := a.svc.UpdateProfile(r.Context(), id, req.WalletAddress, req.Bio, req.ImageURL)
	if err != nil {
		handleLedgerError(w, r, err)
		return
	}
	a.audit(r.Context(), "user.profile.updated", "user", id, nil)
	writeJSON(w, http.StatusOK, user)
}

// --- artists ---

type createArtistRequest struct {
	Name             string   `json:"name"`
	Genres           []string `json:"genres"`
	Location         string   `json:"location"`
	TokenName        string   `json:"token_name"`
	TokenSymbol      string   `json:"token_symbol"`
	TokenSupply      int64    `json:"token_supply"`
	ArtistSharePct   int      `json:"artist_share_pct"`
	HolderSharePct   int      `json:"holder_share_pct"`
	TreasurySharePct int      `json:"treasury_share_pct"`
}

type contractRequest struct {
	ContractAddress string `json:"contract_address"`
}

func (a *API) handleArtistsCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		items, err := a.svc.ListArtists(r.Context())
		if err != nil {
			handleLedgerError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, list(items))
	case http.MethodPost:
		a.createArtist(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) createArtist(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		unauthorized(w, r, "authentication required")
		return
	}
	var req createArtistRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	artist, err := a.svc.CreateArtist(r.Context(), ledger.Artist{
		UserID:           userID,
		Name:             req.Name,
		Genres:           req.Genres,
		Location:         req.Location,
		TokenName:        req.TokenName,
		TokenSymbol:      req.TokenSymbol,
		TokenSupply:      req.TokenSupply,
		ArtistSharePct:   req.ArtistSharePct,
		HolderSharePct:   req.HolderSharePct,
		TreasurySharePct: req.TreasurySharePct,
	})
	if err != nil {
		handleLedgerError(w, r, err)
		return
	}
	a.audit(r.Context(), "artist.onboarded", "artist", artist.ID, map[string]string{"name": artist.Name})
	w.Header().Set("Location", fmt.Sprintf("/v1/artists/%d", artist.ID))
	writeJSON(w, http.StatusCreated, artist)
}

func (a *API) handleArtistResource(w http.ResponseWriter, r *http.Request) {
	segs := splitPath(strings.TrimPrefix(r.URL.Path, "/v1/artists/"))
	if len(segs) == 0 {
		http.NotFound(w, r)
		return
	}
	id, err := parseID(segs[0])
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	switch {
	case len(segs) == 1:
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		artist, err := a.svc.GetArtist(r.Context(), id)
		if err != nil {
			handleLedgerError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, artist)
	case len(segs) == 2 && segs[1] == "contract":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		a.attachContract(w, r, id)
	case len(segs) == 2 && segs[1] == "holders":
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		items, err := a.svc.Shares(r.Context(), id)
		if err != nil {
			handleLedgerError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, list(items))
	case len(segs) == 2 && segs[1] == "proposals":
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		activeOnly := r.URL.Query().Get("active") == "true"
		items, err := a.svc.ListProposals(r.Context(), id, activeOnly)
		if err != nil {
			handleLedgerError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, list(items))
	case len(segs) == 2 && segs[1] == "revenue":
		switch r.Method {
		case http.MethodGet:
			items, err := a.svc.ListRevenue(r.Context(), id)
			if err != nil {
				handleLedgerError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, list(items))
		case http.MethodPost:
			a.recordRevenue(w, r, id)
		default:
			methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
		}
	case len(segs) == 2 && segs[1] == "distributions":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		a.distributePending(w, r, id)
	case len(segs) == 3 && segs[1] == "holdings":
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		userID, err := parseID(segs[2])
		if err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		share, err := a.svc.Share(r.Context(), id, userID)
		if err != nil {
			handleLedgerError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, share)
	case len(segs) == 3 && segs[1] == "revenue" && segs[2] == "summary":
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		summary, err := a.svc.Summarize(r.Context(), id)
		if err != nil {
			handleLedgerError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, summary)
	default:
		http.NotFound(w, r)
	}
}

func (a *API) attachContract(w http.ResponseWriter, r *http.Request, artistID uint64) {
	if _, ok := a.requireArtistOwner(w, r, artistID); !ok {
		return
	}
	var req contractRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	artist, err := a.svc.AttachContract(r.Context(), artistID, req.ContractAddress)
	if err != nil {
		handleLedgerError(w, r, err)
		return
	}
	a.audit(r.Context(), "artist.contract.attached", "artist", artistID, map[string]string{"contract": artist.ContractAddress})
	writeJSON(w, http.StatusOK, artist)
}

// --- purchases ---

type purchaseRequest struct {
	ArtistID       uint64 `json:"artist_id"`
	UserID         uint64 `json:"user_id"`
	Amount         int64  `json:"amount"`
	AcquisitionRef string `json:"acquisition_ref"`
}

// handlePurchases books a settled token acquisition. The route is ops
// only: confirmations come from the payment pipeline, not from fans.
func (a *API) handlePurchases(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req purchaseRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	holding, err := a.svc.ConfirmTokenPurchase(r.Context(), req.ArtistID, req.UserID, req.Amount, req.AcquisitionRef)
	if err != nil {
		handleLedgerError(w, r, err)
		return
	}
	obs.IncTokenPurchase()
	a.publish(stream.Event{
		Kind:      stream.KindPurchase,
		ArtistID:  holding.ArtistID,
		UserID:    holding.UserID,
		SubjectID: holding.ID,
		Detail:    holding.AcquisitionRef,
	})
	a.audit(r.Context(), "purchase.confirmed", "holding", holding.ID, map[string]string{
		"acquisition_ref": holding.AcquisitionRef,
	})
	writeJSON(w, http.StatusCreated, holding)
}
