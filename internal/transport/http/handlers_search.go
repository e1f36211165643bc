package httptransport

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"catcher/internal/item"
	"catcher/internal/search"
	"catcher/internal/transport/http/shared"
)

// SearchHandler serves the public verification lookup. It requires no
// authentication: anyone holding a serial number may ask whether it has been
// reported.
type SearchHandler struct {
	engine *search.Engine
}

// NewSearchHandler constructs the public search handler.
func NewSearchHandler(engine *search.Engine) *SearchHandler {
	return &SearchHandler{engine: engine}
}

// Register mounts the search route on a public router.
func (h *SearchHandler) Register(r chi.Router) {
	r.Get("/search", h.handleSearch)
}

func (h *SearchHandler) handleSearch(w http.ResponseWriter, r *http.Request) {
	serial := r.URL.Query().Get("serial")

	summaries, err := h.engine.Remote(r.Context(), serial)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	if summaries == nil {
		summaries = []item.Summary{}
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{
		"items":  summaries,
		"status": verdict(serial, summaries),
	})
}

// verdict is the headline answer for the queried serial: the status of the
// exact match when one exists, unknown otherwise. Unknown is a statement
// about the registry, not about the item.
func verdict(serial string, summaries []item.Summary) item.Status {
	serial = strings.TrimSpace(serial)
	for _, summary := range summaries {
		if strings.EqualFold(summary.SerialNumber, serial) {
			return summary.Status
		}
	}
	return item.StatusUnknown
}
