package api

import (
	"context"
	"net/http"

	"github.com/guildhall-io/guildhall/pkg/catalog"
	"github.com/guildhall-io/guildhall/pkg/httputil"
)

func (s *Server) handleInvite(w http.ResponseWriter, r *http.Request) {
	actorID, ok := actorOrUnauthorized(w, r)
	if !ok {
		return
	}
	groupID, ok := httputil.ParsePathInt64OrError(w, r, "groupID")
	if !ok {
		return
	}

	var req inviteRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.UserID <= 0 {
		httputil.WriteValidationError(w, "user_id is required")
		return
	}

	m, err := s.memberships.Invite(r.Context(), groupID, req.UserID, actorID)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	_ = httputil.WriteCreated(w, m)
}

func (s *Server) handleAcceptInvitation(w http.ResponseWriter, r *http.Request) {
	actorID, ok := actorOrUnauthorized(w, r)
	if !ok {
		return
	}
	membershipID, ok := httputil.ParsePathInt64OrError(w, r, "membershipID")
	if !ok {
		return
	}

	m, err := s.memberships.Accept(r.Context(), membershipID, actorID)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	_ = httputil.WriteSuccess(w, m)
}

func (s *Server) handleDeclineInvitation(w http.ResponseWriter, r *http.Request) {
	actorID, ok := actorOrUnauthorized(w, r)
	if !ok {
		return
	}
	membershipID, ok := httputil.ParsePathInt64OrError(w, r, "membershipID")
	if !ok {
		return
	}

	if err := s.memberships.Decline(r.Context(), membershipID, actorID); err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

func (s *Server) handlePauseMember(w http.ResponseWriter, r *http.Request) {
	s.memberTransition(w, r, s.memberships.Pause)
}

func (s *Server) handleResumeMember(w http.ResponseWriter, r *http.Request) {
	s.memberTransition(w, r, s.memberships.Resume)
}

func (s *Server) memberTransition(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, groupID, userID, actorID int64) error) {
	actorID, ok := actorOrUnauthorized(w, r)
	if !ok {
		return
	}
	groupID, ok := httputil.ParsePathInt64OrError(w, r, "groupID")
	if !ok {
		return
	}
	userID, ok := httputil.ParsePathInt64OrError(w, r, "userID")
	if !ok {
		return
	}

	if err := op(r.Context(), groupID, userID, actorID); err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

// handleRemoveMember ends another user's membership, or the actor's own
// when they target themselves. Self-removal is a leave; both paths run
// the last-privileged-holder guard.
func (s *Server) handleRemoveMember(w http.ResponseWriter, r *http.Request) {
	actorID, ok := actorOrUnauthorized(w, r)
	if !ok {
		return
	}
	groupID, ok := httputil.ParsePathInt64OrError(w, r, "groupID")
	if !ok {
		return
	}
	userID, ok := httputil.ParsePathInt64OrError(w, r, "userID")
	if !ok {
		return
	}

	if userID == actorID {
		if err := s.memberships.Leave(r.Context(), groupID, actorID); err != nil {
			httputil.WriteDomainError(w, err)
			return
		}
		httputil.WriteNoContent(w)
		return
	}

	if !s.resolver.HasPermission(r.Context(), actorID, groupID, catalog.PermRemoveMembers) {
		httputil.WriteForbidden(w, "requires permission "+catalog.PermRemoveMembers)
		return
	}
	if err := s.memberships.Remove(r.Context(), groupID, userID, actorID); err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

func (s *Server) handleLeaveGroup(w http.ResponseWriter, r *http.Request) {
	actorID, ok := actorOrUnauthorized(w, r)
	if !ok {
		return
	}
	groupID, ok := httputil.ParsePathInt64OrError(w, r, "groupID")
	if !ok {
		return
	}

	if err := s.memberships.Leave(r.Context(), groupID, actorID); err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}
