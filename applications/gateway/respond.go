package gateway

import (
	"net/http"

	svcerrors "github.com/OffGrid0xDAO/EigenSwarm-Monad-sub002/infrastructure/errors"
	"github.com/OffGrid0xDAO/EigenSwarm-Monad-sub002/infrastructure/httputil"
	"github.com/OffGrid0xDAO/EigenSwarm-Monad-sub002/infrastructure/redaction"
)

// writeError translates any error into the stable {code, message,
// details} wire body, defaulting unknown errors to 500.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if svcErr := svcerrors.GetServiceError(err); svcErr != nil {
		httputil.WriteErrorResponse(w, r, svcErr.HTTPStatus, string(svcErr.Code), svcErr.Message, svcErr.Details)
		return
	}
	s.logger.WithFields(map[string]interface{}{
		"error": redaction.RedactAll(err.Error()),
	}).Error("unclassified handler error")
	httputil.WriteErrorResponse(w, r, http.StatusInternalServerError, string(svcerrors.ErrCodeInternal), "Internal error", nil)
}
