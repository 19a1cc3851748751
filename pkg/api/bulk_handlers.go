package api

import (
	"net/http"

	"github.com/guildhall-io/guildhall/pkg/adminops"
	"github.com/guildhall-io/guildhall/pkg/errdefs"
	"github.com/guildhall-io/guildhall/pkg/httputil"
)

func (s *Server) handleActionStates(w http.ResponseWriter, r *http.Request) {
	var req actionStatesRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	states, err := s.bulk.ActionStates(r.Context(), req.UserIDs)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	_ = httputil.WriteSuccess(w, map[string]interface{}{"states": states})
}

// handleExecuteAction runs one bulk action. Destructive actions must
// arrive confirmed; an unconfirmed request gets the dialog text back
// and mutates nothing. A partial failure still returns the structured
// result — the succeeded targets are not rolled back.
func (s *Server) handleExecuteAction(w http.ResponseWriter, r *http.Request) {
	actorID, ok := actorOrUnauthorized(w, r)
	if !ok {
		return
	}

	var req executeActionRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if len(req.UserIDs) == 0 {
		httputil.WriteValidationError(w, "user_ids is required")
		return
	}
	if !req.Action.Valid() {
		httputil.WriteValidationError(w, "unknown action")
		return
	}
	if req.Action.Category() == adminops.CategoryGroup && req.GroupID <= 0 {
		httputil.WriteValidationError(w, "group_id is required for "+string(req.Action))
		return
	}

	if prompt, required := adminops.ConfirmationPrompt(req.Action, len(req.UserIDs)); required && !req.Confirmed {
		_ = httputil.WriteJSON(w, http.StatusPreconditionRequired, confirmationResponse{
			ConfirmationRequired: true,
			Prompt:               prompt,
		})
		return
	}

	result, err := s.bulk.Execute(r.Context(), req.Action, req.UserIDs, actorID, adminops.Extra{
		GroupID: req.GroupID,
		Payload: req.Payload,
	})
	if err != nil && !errdefs.IsPartialFailure(err) {
		httputil.WriteDomainError(w, err)
		return
	}

	if result.Succeeded > 0 {
		s.invalidatePages()
	}

	status := http.StatusOK
	if errdefs.IsPartialFailure(err) {
		status = http.StatusMultiStatus
	}
	_ = httputil.WriteJSON(w, status, result)
}
