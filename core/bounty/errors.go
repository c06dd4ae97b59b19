package bounty

import (
	"errors"
	"fmt"
)

// Err is a simple string error helper.
type Err string

func (e Err) Error() string { return string(e) }

// Error kinds. Every failure returned by the processor matches exactly one
// of these through errors.Is.
var (
	ErrDecode               = Err("malformed instruction data")
	ErrOwnership            = Err("record slot is not owned by this program")
	ErrUnauthorized         = Err("unauthorized")
	ErrPhaseMismatch        = Err("operation not valid in current task phase")
	ErrDeadlineExpired      = Err("phase deadline has passed")
	ErrNotFutureDeadline    = Err("deadline is not in the future")
	ErrStakePotMismatch     = Err("stake pot does not match task")
	ErrUnknownParticipant   = Err("participant has no submission")
	ErrDuplicateVote        = Err("voter has already voted")
	ErrDuplicateSubmission  = Err("submitter already has a submission")
	ErrTransferFailure      = Err("stake transfer failed")
	ErrUnsupportedOperation = Err("unsupported operation")
	ErrInvalidAccounts      = Err("invalid account handles")
	ErrCorruptRecord        = Err("task record is corrupt")
	ErrStore                = Err("record store failure")
)

// kindErr is a specific failure that still matches its broader kind.
type kindErr struct {
	kind Err
	msg  string
}

func (e *kindErr) Error() string { return e.msg }
func (e *kindErr) Unwrap() error { return e.kind }

var (
	ErrUnknownVoter         error = &kindErr{ErrUnknownParticipant, "voter has not staked a submission"}
	ErrUnknownCandidate     error = &kindErr{ErrUnknownParticipant, "candidate has not submitted"}
	ErrNotEnoughAccounts    error = &kindErr{ErrInvalidAccounts, "not enough account handles"}
	ErrInvalidClockAccount  error = &kindErr{ErrInvalidAccounts, "clock handle is not the clock sysvar"}
	ErrInvalidSystemAccount error = &kindErr{ErrInvalidAccounts, "system handle is not the system program"}
	ErrMissingSignature     error = &kindErr{ErrUnauthorized, "required signature missing"}
	ErrNotManager           error = &kindErr{ErrUnauthorized, "signer is not the task manager"}
	ErrPayoutUnspecified    error = &kindErr{ErrUnsupportedOperation, "payout winner selection and distribution are not implemented"}
	ErrWithdrawUnspecified  error = &kindErr{ErrUnsupportedOperation, "withdraw submission is not implemented"}
)

// InstructionError records which operation failed.
type InstructionError struct {
	Op  Op
	Err error
}

func (e *InstructionError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }
func (e *InstructionError) Unwrap() error { return e.Err }

func failed(op Op, err error) error {
	if err == nil {
		return nil
	}
	return &InstructionError{Op: op, Err: err}
}

var codes = []struct {
	kind Err
	code string
}{
	{ErrDecode, "DecodeError"},
	{ErrOwnership, "OwnershipError"},
	{ErrUnauthorized, "Unauthorized"},
	{ErrPhaseMismatch, "PhaseMismatch"},
	{ErrDeadlineExpired, "DeadlineExpired"},
	{ErrNotFutureDeadline, "NotFutureDeadline"},
	{ErrStakePotMismatch, "StakePotMismatch"},
	{ErrUnknownParticipant, "UnknownParticipant"},
	{ErrDuplicateVote, "DuplicateVote"},
	{ErrDuplicateSubmission, "DuplicateSubmission"},
	{ErrTransferFailure, "TransferFailure"},
	{ErrUnsupportedOperation, "UnsupportedOperation"},
	{ErrInvalidAccounts, "InvalidAccounts"},
	{ErrCorruptRecord, "CorruptRecord"},
	{ErrStore, "StoreError"},
}

// Code returns the stable taxonomy code for err, or "Internal".
func Code(err error) string {
	if err == nil {
		return "OK"
	}
	for _, c := range codes {
		if errors.Is(err, c.kind) {
			return c.code
		}
	}
	return "Internal"
}
