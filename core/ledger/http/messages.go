package http

import (
	"github.com/bitpond/appkit/core/execution"
	"github.com/bitpond/appkit/core/txn"
)

// CompileRequest is the body of a compilation request.
type CompileRequest struct {
	Source string `json:"source"`
}

// SubmitResponse is the body of the response to an accepted submission.
type SubmitResponse struct {
	ID string `json:"id"`
}

// ParamsJSON is the JSON message of the suggested parameters.
type ParamsJSON struct {
	Fee        uint64 `json:"fee"`
	FirstValid uint64 `json:"first_valid"`
	LastValid  uint64 `json:"last_valid"`
	GenesisID  string `json:"genesis_id"`
}

func newParamsJSON(params txn.Params) ParamsJSON {
	return ParamsJSON{
		Fee:        params.Fee,
		FirstValid: params.FirstValid,
		LastValid:  params.LastValid,
		GenesisID:  params.GenesisID,
	}
}

func (p ParamsJSON) params() txn.Params {
	return txn.Params{
		Fee:        p.Fee,
		FirstValid: p.FirstValid,
		LastValid:  p.LastValid,
		GenesisID:  p.GenesisID,
	}
}

// ApplicationJSON is the JSON message of the state of an application.
type ApplicationJSON struct {
	ID    uint64                     `json:"id"`
	State map[string]execution.Value `json:"state"`
}

// ErrorJSON is the body of a failed request.
type ErrorJSON struct {
	Error string `json:"error"`

	// Reason is set when a transaction is rejected.
	Reason string `json:"reason,omitempty"`
}
