package secret

import (
	"fmt"

	"github.com/canopy-network/aedpos/lib"
)

func ErrInvalidThreshold(threshold, total int) lib.ErrorI {
	return lib.NewError(lib.CodeInvalidThreshold, lib.SecretModule, fmt.Sprintf("threshold %d is invalid for %d shares", threshold, total))
}

func ErrSplitSecret(err error) lib.ErrorI {
	return lib.NewError(lib.CodeSplitSecret, lib.SecretModule, fmt.Sprintf("split() failed with err: %s", err.Error()))
}

func ErrRecoverSecret(err error) lib.ErrorI {
	return lib.NewError(lib.CodeRecoverSecret, lib.SecretModule, fmt.Sprintf("recoverSecret() failed with err: %s", err.Error()))
}

func ErrMalformedPiece(reason string) lib.ErrorI {
	return lib.NewError(lib.CodeMalformedPiece, lib.SecretModule, fmt.Sprintf("malformed piece: %s", reason))
}

func ErrSealPiece(err error) lib.ErrorI {
	return lib.NewError(lib.CodeSealPiece, lib.SecretModule, fmt.Sprintf("seal() failed with err: %s", err.Error()))
}

func ErrOpenPiece() lib.ErrorI {
	return lib.NewError(lib.CodeOpenPiece, lib.SecretModule, "open() failed: the box is not addressed to this key or was tampered with")
}

func ErrNotEnoughPieces(got, need int) lib.ErrorI {
	return lib.NewError(lib.CodeNotEnoughPieces, lib.SecretModule, fmt.Sprintf("got %d pieces, need %d", got, need))
}

func ErrBoxKey(err error) lib.ErrorI {
	return lib.NewError(lib.CodeBoxKey, lib.SecretModule, fmt.Sprintf("invalid box key: %s", err.Error()))
}
