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

type recordRevenueRequest struct {
	Amount       string `json:"amount"`
	Source       string `json:"source"`
	RecognizedAt string `json:"recognized_at"`
}

type revenueDetailResponse struct {
	Event    ledger.RevenueEvent `json:"event"`
	Earnings []ledger.Earning    `json:"earnings"`
}

// recordRevenue books an incoming royalty for an artist. Ops only:
// revenue enters through reconciled upstream statements, and the
// amount arrives as a decimal string ("149.90") in the ledger currency.
func (a *API) recordRevenue(w http.ResponseWriter, r *http.Request, artistID uint64) {
	if !checkRole(w, r, auth.RoleOps) {
		return
	}
	var req recordRevenueRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	amount, err := ledger.ParseAmount(req.Amount)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	var recognized time.Time
	if req.RecognizedAt != "" {
		recognized, err = time.Parse(time.RFC3339, req.RecognizedAt)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "recognized_at must be RFC 3339")
			return
		}
	}
	event, err := a.svc.RecordRevenue(r.Context(), artistID, ledger.Money{Currency: a.svc.Currency(), Amount: amount}, req.Source, recognized)
	if err != nil {
		handleLedgerError(w, r, err)
		return
	}
	obs.IncRevenueRecorded()
	a.publish(stream.Event{
		Kind:      stream.KindRevenueRecorded,
		ArtistID:  event.ArtistID,
		SubjectID: event.ID,
		Detail:    event.Source,
	})
	a.audit(r.Context(), "revenue.recorded", "revenue_event", event.ID, map[string]string{"source": event.Source})
	w.Header().Set("Location", fmt.Sprintf("/v1/revenue/%d", event.ID))
	writeJSON(w, http.StatusCreated, event)
}

// distributePending settles every undistributed event of one artist in
// recognition order.
func (a *API) distributePending(w http.ResponseWriter, r *http.Request, artistID uint64) {
	if !checkRole(w, r, auth.RoleOps) {
		return
	}
	dists, err := a.svc.DistributePending(r.Context(), artistID)
	if err != nil {
		handleLedgerError(w, r, err)
		return
	}
	for _, d := range dists {
		obs.IncRevenueDistributed()
		a.publish(stream.Event{
			Kind:      stream.KindRevenueDistributed,
			ArtistID:  d.ArtistID,
			SubjectID: d.RevenueID,
			Detail:    fmt.Sprintf("%d earnings", len(d.Earnings)),
		})
	}
	a.audit(r.Context(), "revenue.swept", "artist", artistID, map[string]string{"count": strconv.Itoa(len(dists))})
	writeJSON(w, http.StatusOK, list(dists))
}

func (a *API) handleRevenueResource(w http.ResponseWriter, r *http.Request) {
	segs := splitPath(strings.TrimPrefix(r.URL.Path, "/v1/revenue/"))
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
		event, earnings, err := a.svc.RevenueDetail(r.Context(), id)
		if err != nil {
			handleLedgerError(w, r, err)
			return
		}
		if earnings == nil {
			earnings = []ledger.Earning{}
		}
		writeJSON(w, http.StatusOK, revenueDetailResponse{Event: event, Earnings: earnings})
	case len(segs) == 2 && segs[1] == "distribute":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		a.distribute(w, r, id)
	default:
		http.NotFound(w, r)
	}
}

// distribute settles a single revenue event. A second call answers 409
// because the event's distributed flag only ever flips once.
func (a *API) distribute(w http.ResponseWriter, r *http.Request, revenueID uint64) {
	if !checkRole(w, r, auth.RoleOps) {
		return
	}
	dist, err := a.svc.Distribute(r.Context(), revenueID)
	if err != nil {
		handleLedgerError(w, r, err)
		return
	}
	obs.IncRevenueDistributed()
	a.publish(stream.Event{
		Kind:      stream.KindRevenueDistributed,
		ArtistID:  dist.ArtistID,
		SubjectID: dist.RevenueID,
		Detail:    fmt.Sprintf("%d earnings", len(dist.Earnings)),
	})
	a.audit(r.Context(), "revenue.distributed", "revenue_event", dist.RevenueID, map[string]string{
		"earnings": strconv.Itoa(len(dist.Earnings)),
	})
	writeJSON(w, http.StatusOK, dist)
}
