package server

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/hazardtrack/dts/pkg/httperr"
)

func pgErrorMessage(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr != nil {
		msg := strings.TrimSpace(pgErr.Message)
		if msg != "" {
			return msg
		}
	}
	return "UNKNOWN"
}

func pgErrorCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr != nil {
		return strings.TrimSpace(pgErr.Code)
	}
	return ""
}

// isPgInvalidInput covers the input-syntax class of errors that a bad
// payload can trigger despite field validation (casts, out-of-range).
func isPgInvalidInput(err error) bool {
	switch pgErrorCode(err) {
	case "22P02", "22003", "22007", "22008":
		return true
	default:
		return false
	}
}

// badRequestFromPg converts an invalid-input PG failure into a client
// error; everything else stays an infrastructure error.
func badRequestFromPg(err error) error {
	if isPgInvalidInput(err) {
		return httperr.NewBadRequest(pgErrorMessage(err))
	}
	return err
}
