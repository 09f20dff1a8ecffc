package httpapi

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"greenroom.fm/internal/auth"
	"greenroom.fm/internal/ledger"
	"greenroom.fm/internal/obs"
	"greenroom.fm/internal/stream"
)

type createProposalRequest struct {
	ArtistID    uint64    `json:"artist_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Type        string    `json:"type"`
	Options     []string  `json:"options"`
	EndDate     time.Time `json:"end_date"`
}

type closeProposalRequest struct {
	Status string `json:"status"`
}

type castVoteRequest struct {
	OptionIndex int `json:"option_index"`
}

// proposalResponse adds the derived votable flag to the stored fields.
type proposalResponse struct {
	ledger.Proposal
	Votable bool `json:"votable"`
}

func (a *API) handleProposalsCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		raw := r.URL.Query().Get("artist_id")
		if raw == "" {
			writeError(w, r, http.StatusBadRequest, "artist_id query parameter required")
			return
		}
		artistID, err := parseID(raw)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		activeOnly := r.URL.Query().Get("active") == "true"
		items, err := a.svc.ListProposals(r.Context(), artistID, activeOnly)
		if err != nil {
			handleLedgerError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, list(items))
	case http.MethodPost:
		a.createProposal(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

// createProposal opens a ballot. Only the owner of the artist profile
// may put questions to that artist's token holders.
func (a *API) createProposal(w http.ResponseWriter, r *http.Request) {
	var req createProposalRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if _, ok := a.requireArtistOwner(w, r, req.ArtistID); !ok {
		return
	}
	userID, _ := auth.UserIDFromContext(r.Context())
	proposal, err := a.svc.CreateProposal(r.Context(), ledger.Proposal{
		ArtistID:    req.ArtistID,
		CreatorID:   userID,
		Title:       req.Title,
		Description: req.Description,
		Type:        ledger.ProposalType(req.Type),
		Options:     req.Options,
		EndDate:     req.EndDate,
	})
	if err != nil {
		handleLedgerError(w, r, err)
		return
	}
	obs.IncProposalCreated()
	a.publish(stream.Event{
		Kind:      stream.KindProposalCreated,
		ArtistID:  proposal.ArtistID,
		UserID:    proposal.CreatorID,
		SubjectID: proposal.ID,
		Detail:    proposal.Title,
	})
	a.audit(r.Context(), "proposal.created", "proposal", proposal.ID, map[string]string{"title": proposal.Title})
	w.Header().Set("Location", fmt.Sprintf("/v1/proposals/%d", proposal.ID))
	writeJSON(w, http.StatusCreated, proposalResponse{Proposal: proposal, Votable: proposal.Votable(time.Now().UTC())})
}

func (a *API) handleProposalResource(w http.ResponseWriter, r *http.Request) {
	segs := splitPath(strings.TrimPrefix(r.URL.Path, "/v1/proposals/"))
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
		proposal, err := a.svc.GetProposal(r.Context(), id)
		if err != nil {
			handleLedgerError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, proposalResponse{Proposal: proposal, Votable: proposal.Votable(time.Now().UTC())})
	case len(segs) == 2 && segs[1] == "close":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		a.closeProposal(w, r, id)
	case len(segs) == 2 && segs[1] == "votes":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		a.castVote(w, r, id)
	case len(segs) == 2 && segs[1] == "tally":
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		tally, err := a.svc.Tally(r.Context(), id)
		if err != nil {
			handleLedgerError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, tally)
	default:
		http.NotFound(w, r)
	}
}

func (a *API) closeProposal(w http.ResponseWriter, r *http.Request, id uint64) {
	proposal, err := a.svc.GetProposal(r.Context(), id)
	if err != nil {
		handleLedgerError(w, r, err)
		return
	}
	if _, ok := a.requireArtistOwner(w, r, proposal.ArtistID); !ok {
		return
	}
	var req closeProposalRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	status := ledger.ProposalStatus(req.Status)
	if req.Status == "" {
		status = ledger.ProposalClosed
	}
	closed, err := a.svc.CloseProposal(r.Context(), id, status)
	if err != nil {
		handleLedgerError(w, r, err)
		return
	}
	a.publish(stream.Event{
		Kind:      stream.KindProposalClosed,
		ArtistID:  closed.ArtistID,
		SubjectID: closed.ID,
		Detail:    string(closed.Status),
	})
	a.audit(r.Context(), "proposal.closed", "proposal", closed.ID, map[string]string{"status": string(closed.Status)})
	writeJSON(w, http.StatusOK, proposalResponse{Proposal: closed, Votable: false})
}

// castVote books the authenticated user's ballot. The voter identity
// comes from the token, never from the request body.
func (a *API) castVote(w http.ResponseWriter, r *http.Request, proposalID uint64) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		unauthorized(w, r, "authentication required")
		return
	}
	var req castVoteRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	vote, err := a.svc.CastVote(r.Context(), proposalID, userID, req.OptionIndex)
	if err != nil {
		handleLedgerError(w, r, err)
		return
	}
	obs.IncVoteCast()
	a.publish(stream.Event{
		Kind:      stream.KindVoteCast,
		UserID:    vote.UserID,
		SubjectID: vote.ProposalID,
	})
	a.audit(r.Context(), "vote.cast", "proposal", proposalID, map[string]string{
		"option": strconv.Itoa(vote.OptionIndex),
	})
	writeJSON(w, http.StatusCreated, vote)
}
