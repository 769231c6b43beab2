package forward

import (
	"errors"
	"fmt"

	"github.com/egosumscientia/mini-pacs-edge/internal/dimse"
)

// ForwardError is any outbound-send problem. Worker-bound failures get
// a "worker_" prefix on their code so logs can distinguish them from
// archive-bound failures of the same underlying kind.
type ForwardError struct {
	Code string
}

func (e *ForwardError) Error() string { return e.Code }

func newForwardError(code string, worker bool) *ForwardError {
	if worker {
		code = "worker_" + code
	}
	return &ForwardError{Code: code}
}

// classifyAssociateErr turns a dimse.Associate error into the
// ForwardError sub-code spec.md §4.E names.
func classifyAssociateErr(err error, worker bool) *ForwardError {
	switch {
	case errors.Is(err, dimse.ErrTimeout):
		return newForwardError("timeout", worker)
	case errors.Is(err, dimse.ErrAssociationRefused):
		return newForwardError("association_refused", worker)
	default:
		var ae *dimse.AssociationError
		if errors.As(err, &ae) {
			return newForwardError(fmt.Sprintf("association_error:%s", ae.Cause), worker)
		}
		return newForwardError(fmt.Sprintf("association_error:%s", err), worker)
	}
}

// classifyStoreErr turns a SendCStore (status, error) pair into a
// ForwardError, or nil if the send succeeded.
func classifyStoreErr(status dimse.Status, err error, worker bool) *ForwardError {
	if err != nil {
		if errors.Is(err, dimse.ErrTimeout) {
			return newForwardError("timeout", worker)
		}
		if errors.Is(err, dimse.ErrNoStatus) {
			return newForwardError("c_store_no_status", worker)
		}
		return newForwardError(fmt.Sprintf("association_error:%s", err), worker)
	}
	if status != dimse.StatusSuccess {
		return newForwardError(fmt.Sprintf("c_store_failure:0x%04X", uint16(status)), worker)
	}
	return nil
}
