package elector

import (
	"fmt"

	"github.com/canopy-network/aedpos/lib"
)

func ErrElectorRequest(err error) lib.ErrorI {
	return lib.NewError(lib.CodeElectorRequest, lib.ElectorModule, fmt.Sprintf("elector request failed with err: %s", err.Error()))
}

func ErrElectorResponse(status int, body []byte) lib.ErrorI {
	return lib.NewError(lib.CodeElectorResponse, lib.ElectorModule, fmt.Sprintf("elector responded with code %d and body %s", status, body))
}
