package handler

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/docuchat-io/docuchat/internal/middleware"
	"github.com/docuchat-io/docuchat/internal/pkg/errcode"
	"github.com/docuchat-io/docuchat/internal/pkg/errs"
	"github.com/docuchat-io/docuchat/internal/pkg/response"
)

func getCompanyID(c *gin.Context) string {
	return middleware.CompanyID(c)
}

// handleError maps the error taxonomy onto wire codes. Scope violations are
// logged without any request payload.
func handleError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	logutil.GetLogger(c.Request.Context()).Warn("request failed",
		zap.String("method", c.Request.Method),
		zap.String("path", c.FullPath()),
		zap.Error(err),
	)
	switch {
	case errors.Is(err, errs.ErrUnauthorized):
		response.Error(c, errcode.ErrUnauthorized, "unauthorized")
	case errors.Is(err, errs.ErrForbidden):
		response.Error(c, errcode.ErrForbidden, "forbidden")
	case errors.Is(err, errs.ErrScopeViolation):
		response.Error(c, errcode.ErrForbidden, "forbidden")
	case errors.Is(err, errs.ErrNotFound):
		response.Error(c, errcode.ErrNotFound, "not found")
	case errors.Is(err, errs.ErrUnsupportedFormat):
		response.Error(c, errcode.ErrUnsupportedFormat, "unsupported file format")
	case errors.Is(err, errs.ErrCorruptFile):
		response.Error(c, errcode.ErrCorruptFile, "file could not be read")
	case errors.Is(err, errs.ErrInvalid):
		response.Error(c, errcode.ErrInvalid, err.Error())
	case errors.Is(err, errs.ErrIngestionInFlight):
		response.Error(c, errcode.ErrIngestionRunning, "document ingestion already running")
	case errors.Is(err, errs.ErrConflict):
		response.Error(c, errcode.ErrConflict, "conflict")
	case errors.Is(err, errs.ErrTooMany):
		response.Error(c, errcode.ErrTooMany, "too many requests")
	case errors.Is(err, errs.ErrEmbeddingUnavailable):
		response.Error(c, errcode.ErrEmbeddingUnavailable, "embedding backend unavailable")
	case errors.Is(err, errs.ErrGenerationUnavailable):
		response.Error(c, errcode.ErrGenerationUnavailable, "generation backend unavailable")
	default:
		response.Error(c, errcode.ErrInternal, "internal error")
	}
}
