package api

import (
	"net/http"

	"github.com/okian/sift/pkg/logger"
)

// BlocklistHandler serves the blocklist read path.
type BlocklistHandler struct {
	deps BlocklistReader
}

// NewBlocklistHandler creates a new blocklist handler.
func NewBlocklistHandler(deps BlocklistReader) *BlocklistHandler {
	return &BlocklistHandler{deps: deps}
}

type blocklistResponse struct {
	Count int      `json:"count"`
	Users []string `json:"users"`
}

// HandleGetBlocklist handles GET /blocklist.
func (h *BlocklistHandler) HandleGetBlocklist(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_blocklist"
	users, err := h.deps.Blocklist(r.Context())
	if err != nil {
		logger.Get().Error(r.Context(), "blocklist query failed",
			logger.String("requestID", RequestID(r.Context())),
			logger.Error(WrapKind(op, ErrDatastore, err)),
		)
		writeDatastoreError(w, err)
		return
	}
	if users == nil {
		users = []string{}
	}
	writeJSON(w, http.StatusOK, blocklistResponse{Count: len(users), Users: users})
}
