package httpapi

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/carbonlabs/carbon/internal/auth"
)

// audit emits one structured audit-trail line for an admin mutation,
// attributed to the authenticated caller. Entries go through the process
// logger; nothing persists them separately.
func (s *Server) audit(r *http.Request, action, detail string) {
	e := auth.AuditEntry{
		Timestamp: time.Now().UnixMilli(),
		Username:  userFromCtx(r.Context()).Username,
		Action:    action,
		Detail:    detail,
	}
	s.log.Info("audit",
		zap.Int64("timestamp", e.Timestamp),
		zap.String("username", e.Username),
		zap.String("action", e.Action),
		zap.String("detail", e.Detail),
	)
}
