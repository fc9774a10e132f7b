package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/edustack/tutord/internal/pkg/apperr"
	"github.com/edustack/tutord/internal/pkg/errcode"
	"github.com/edustack/tutord/internal/pkg/response"
)

// ownerID pulls the owner from the query string or, for JSON bodies,
// from the owner_id field the handler bound. Auth is handled by the
// fronting gateway; the owner arrives here as plain data.
func ownerID(c *gin.Context) string {
	return c.Query("owner")
}

func handleError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	msg := "internal error"
	var ae *apperr.Error
	if errors.As(err, &ae) {
		msg = ae.Message()
	}
	code := errcode.ErrInternal
	switch apperr.KindOf(err) {
	case apperr.KindInvalid:
		code = errcode.ErrInvalid
	case apperr.KindInvalidQuery:
		code = errcode.ErrInvalidQuery
	case apperr.KindNotFound:
		code = errcode.ErrNotFound
	case apperr.KindEmptyDocument:
		code = errcode.ErrEmptyDocument
	case apperr.KindConfiguration:
		code = errcode.ErrConfiguration
	case apperr.KindTransient:
		code = errcode.ErrTransient
	case apperr.KindModel:
		code = errcode.ErrModel
	case apperr.KindGenerationUnavailable:
		code = errcode.ErrGenerationUnavailable
	}
	response.Error(c, code, msg)
}
