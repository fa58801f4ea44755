package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gorilla/handlers"
	dcontext "github.com/mavenhub/registry/context"
	"github.com/mavenhub/registry/registry/aql"
	"github.com/mavenhub/registry/registry/datastore"
)

// maxQuerySize bounds the size of AQL request bodies.
const maxQuerySize = 1 << 20

func searchDispatcher(ctx *Context, r *http.Request) http.Handler {
	sh := &searchHandler{Context: ctx}

	return handlers.MethodHandler{
		http.MethodPost: http.HandlerFunc(sh.SearchAQL),
	}
}

type searchHandler struct {
	*Context
}

type searchRange struct {
	StartPos int `json:"start_pos"`
	EndPos   int `json:"end_pos"`
	Total    int `json:"total"`
	Limit    int `json:"limit,omitempty"`
}

type searchResponse struct {
	Results []datastore.Row `json:"results"`
	Range   searchRange     `json:"range"`
}

// SearchAQL runs the JSON query held by the request body against the item
// index.
func (sh *searchHandler) SearchAQL(w http.ResponseWriter, r *http.Request) {
	log := dcontext.GetLogger(sh)
	log.Debug("SearchAQL")

	if sh.aql == nil {
		sh.Errors = append(sh.Errors, errIndexDisabled)
		return
	}

	q, err := aql.Parse(io.LimitReader(r.Body, maxQuerySize))
	if err != nil {
		sh.Errors = append(sh.Errors, err)
		return
	}

	rows, err := sh.aql.Execute(sh, q)
	if err != nil {
		sh.Errors = append(sh.Errors, err)
		return
	}

	resp := searchResponse{
		Results: rows,
		Range: searchRange{
			StartPos: q.Offset,
			EndPos:   q.Offset + len(rows),
			Total:    len(rows),
			Limit:    q.Limit,
		},
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.WithError(err).Error("failed to write search response")
	}
}
