package handlers

import (
	"errors"
	"net/http"

	"bountypool-backend/core/bounty"
	"bountypool-backend/services"
	auth "bountypool-backend/storage/auth"
	"bountypool-backend/storage/ledger"
)

// requestError is a malformed HTTP request, before any instruction runs.
type requestError struct{ msg string }

func (e *requestError) Error() string { return e.msg }

var statuses = []struct {
	kind   error
	status int
	code   string
}{
	{ledger.ErrSlotNotFound, http.StatusNotFound, "NotFound"},
	{ledger.ErrSlotInUse, http.StatusConflict, ""},
	{services.ErrFaucetDisabled, http.StatusForbidden, "FaucetDisabled"},
	{auth.ErrKeyNotFound, http.StatusNotFound, "NotFound"},
	{bounty.ErrDecode, http.StatusBadRequest, ""},
	{bounty.ErrInvalidAccounts, http.StatusBadRequest, ""},
	{bounty.ErrOwnership, http.StatusForbidden, ""},
	{bounty.ErrUnauthorized, http.StatusForbidden, ""},
	{bounty.ErrPhaseMismatch, http.StatusConflict, ""},
	{bounty.ErrDeadlineExpired, http.StatusConflict, ""},
	{bounty.ErrNotFutureDeadline, http.StatusConflict, ""},
	{bounty.ErrStakePotMismatch, http.StatusConflict, ""},
	{bounty.ErrUnknownParticipant, http.StatusConflict, ""},
	{bounty.ErrDuplicateVote, http.StatusConflict, ""},
	{bounty.ErrDuplicateSubmission, http.StatusConflict, ""},
	{bounty.ErrTransferFailure, http.StatusPaymentRequired, ""},
	{bounty.ErrUnsupportedOperation, http.StatusNotImplemented, ""},
}

// statusFor maps err to an HTTP status and a stable code. Codes left
// empty above come from bounty.Code.
func statusFor(err error) (int, string) {
	var reqErr *requestError
	if errors.As(err, &reqErr) {
		return http.StatusBadRequest, "DecodeError"
	}
	for _, s := range statuses {
		if errors.Is(err, s.kind) {
			code := s.code
			if code == "" {
				code = bounty.Code(err)
			}
			return s.status, code
		}
	}
	return http.StatusInternalServerError, bounty.Code(err)
}
