package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gematik/zero-rar/pkg/rar"
	"github.com/labstack/echo/v4"
)

func ErrorLogMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		err := next(c)
		if err != nil {
			slog.Error("Error", "error", err, "path", c.Path(), "remote_addr", c.RealIP())
		}
		return err
	}
}

// toError maps any handler error to the response error shape.
func toError(err error) *rar.Error {
	if e := rar.AsError(err); e != nil {
		copied := *e
		return &copied
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		return &rar.Error{
			Kind:    rar.KindInternal,
			Status:  he.Code,
			Code:    strings.ReplaceAll(strings.ToLower(http.StatusText(he.Code)), " ", "_"),
			Message: fmt.Sprintf("%v", he.Message),
			Err:     err,
		}
	}

	return rar.Wrap(rar.ErrInternal, err)
}

func errorStatus(err error) int {
	if err == nil {
		return 0
	}
	return toError(err).Status
}

func (s *Server) httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	e := toError(err)
	if e.Status == 0 {
		e.Status = http.StatusInternalServerError
	}

	switch e.Kind {
	case rar.KindUnauthenticated, rar.KindInsufficientScope, rar.KindInsufficientAuthorizationDetails:
		c.Response().Header().Set(echo.HeaderWWWAuthenticate, e.Challenge(s.realm))
	}

	if e.Status >= http.StatusInternalServerError {
		// never expose internals
		e = rar.Elaborate(e, http.StatusText(e.Status))
	}

	var respErr error
	if c.Request().Method == http.MethodHead {
		respErr = c.NoContent(e.Status)
	} else {
		respErr = c.JSON(e.Status, e)
	}
	if respErr != nil {
		slog.Error("Unable to write error response", "error", respErr)
	}
}
