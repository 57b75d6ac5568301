package handler

import (
	"net/http"

	"github.com/go-faster/jx"

	"github.com/xenking/tableorder/internal/wire"
)

// ActiveOffers lists the offers of a restaurant applicable now. It answers
// 404 when there are none.
func (h *Handler) ActiveOffers(w http.ResponseWriter, r *http.Request) {
	offers, err := h.offers.Active(r.Context(), r.PathValue("restaurantId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if len(offers) == 0 {
		writeMessage(w, http.StatusNotFound, "no active offers found")
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		wire.EncodeOffers(e, offers)
	})
}
