package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	dcontext "github.com/mavenhub/registry/context"
)

const unusedPeriodParam = "period"

func cleanupDispatcher(ctx *Context, r *http.Request) http.Handler {
	ch := &cleanupHandler{
		Context: ctx,
		RepoKey: dcontext.GetStringValue(ctx, "vars.repo"),
	}

	return handlers.MethodHandler{
		http.MethodPost: http.HandlerFunc(ch.Clean),
	}
}

type cleanupHandler struct {
	*Context

	RepoKey string
}

type cleanupResponse struct {
	Repo        string    `json:"repo"`
	Expiry      time.Time `json:"expiry"`
	Candidates  int       `json:"candidates"`
	Deleted     int       `json:"deleted"`
	Missing     int       `json:"missing"`
	Failed      int       `json:"failed"`
	Interrupted bool      `json:"interrupted"`
	Errors      []string  `json:"errors,omitempty"`
}

// Clean removes the items of a cache repository not downloaded within the
// period given by the "period" query parameter, a Go duration such as 720h.
// When omitted, the period of the configured cleanup policy applies.
func (ch *cleanupHandler) Clean(w http.ResponseWriter, r *http.Request) {
	log := dcontext.GetLogger(ch)
	log.Debug("Clean")

	if ch.cleaner == nil {
		ch.Errors = append(ch.Errors, errIndexDisabled)
		return
	}

	period, err := ch.unusedPeriod(r)
	if err != nil {
		ch.Errors = append(ch.Errors, err)
		return
	}

	report, err := ch.cleaner.Clean(ch, ch.RepoKey, period)
	if err != nil && report == nil {
		ch.Errors = append(ch.Errors, err)
		return
	}

	resp := cleanupResponse{
		Repo:        report.Repository,
		Expiry:      report.Expiry.UTC(),
		Candidates:  report.Candidates,
		Deleted:     report.Deleted,
		Missing:     report.Missing,
		Failed:      report.Failed,
		Interrupted: report.Interrupted,
	}
	if report.Errors != nil {
		resp.Errors = errorMessages(report.Errors)
	}
	if err != nil {
		resp.Errors = append(resp.Errors, err.Error())
	}

	status := http.StatusOK
	if report.Interrupted {
		status = http.StatusAccepted
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.WithError(err).Error("failed to write cleanup response")
	}
}

func (ch *cleanupHandler) unusedPeriod(r *http.Request) (time.Duration, error) {
	if v := r.URL.Query().Get(unusedPeriodParam); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, badRequest("invalid %s parameter %q", unusedPeriodParam, v)
		}
		return d, nil
	}

	for _, p := range ch.Config.Cleanup.Policies {
		if p.Repository == ch.RepoKey {
			return p.UnusedPeriod, nil
		}
	}
	return 0, badRequest("no %s parameter given and no cleanup policy configured for %s", unusedPeriodParam, ch.RepoKey)
}

