package api

import (
	"net/http"
	"time"

	"github.com/guildhall-io/guildhall/pkg/audit"
	"github.com/guildhall-io/guildhall/pkg/httputil"
)

func (s *Server) handleAuditSearch(w http.ResponseWriter, r *http.Request) {
	if s.auditSearch == nil {
		httputil.WriteServiceUnavailable(w, "audit search is not configured")
		return
	}

	events, err := s.auditSearch.Search(r.Context(), auditFilterFromQuery(r))
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	_ = httputil.WriteSuccess(w, map[string]interface{}{
		"events": events,
		"count":  len(events),
	})
}

func (s *Server) handleAuditExport(w http.ResponseWriter, r *http.Request) {
	if s.auditSearch == nil {
		httputil.WriteServiceUnavailable(w, "audit search is not configured")
		return
	}

	format := audit.ExportFormat(r.URL.Query().Get("format"))
	if format == "" {
		format = audit.ExportFormatNDJSON
	}

	events, err := s.auditSearch.Search(r.Context(), auditFilterFromQuery(r))
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}

	data, err := audit.Export(events, format)
	if err != nil {
		httputil.WriteValidationError(w, err.Error())
		return
	}

	switch format {
	case audit.ExportFormatCSV:
		w.Header().Set("Content-Type", "text/csv")
	case audit.ExportFormatJSON:
		w.Header().Set("Content-Type", "application/json")
	default:
		w.Header().Set("Content-Type", "application/x-ndjson")
	}
	w.Header().Set("Content-Disposition", "attachment; filename=audit."+string(format))
	_, _ = w.Write(data)
}

func auditFilterFromQuery(r *http.Request) audit.SearchFilter {
	filter := audit.SearchFilter{
		BulkOpID: r.URL.Query().Get("bulk_op_id"),
		Limit:    queryInt(r, "limit", 100),
		Offset:   int(queryInt64(r, "offset")),
	}

	if id := queryInt64(r, "actor_id"); id != 0 {
		filter.ActorID = &id
	}
	if id := queryInt64(r, "target_user_id"); id != 0 {
		filter.TargetUserID = &id
	}
	if id := queryInt64(r, "group_id"); id != 0 {
		filter.GroupID = &id
	}
	if eventType := r.URL.Query().Get("event_type"); eventType != "" {
		filter.EventTypes = []audit.EventType{audit.EventType(eventType)}
	}
	if raw := r.URL.Query().Get("since"); raw != "" {
		if ts, err := time.Parse(time.RFC3339, raw); err == nil {
			filter.StartTime = &ts
		}
	}
	if raw := r.URL.Query().Get("until"); raw != "" {
		if ts, err := time.Parse(time.RFC3339, raw); err == nil {
			filter.EndTime = &ts
		}
	}

	return filter
}
