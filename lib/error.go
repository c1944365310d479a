package lib

import (
	"errors"
	"fmt"
	"math"
)

type ErrorI interface {
	Code() ErrorCode     // Returns the error code
	Module() ErrorModule // Returns the error module
	error                // Implements the built-in error interface
}

var _ ErrorI = &Error{} // Ensures *Error implements ErrorI

type ErrorCode uint32 // Defines a type for error codes

type ErrorModule string // Defines a type for error modules

type Error struct {
	ECode   ErrorCode   `json:"code"`   // Error code
	EModule ErrorModule `json:"module"` // Error module
	Msg     string      `json:"msg"`    // Error message
}

func NewError(code ErrorCode, module ErrorModule, msg string) *Error {
	// Constructs a new Error instance
	return &Error{ECode: code, EModule: module, Msg: msg}
}

// Code() returns the associated error code
func (p *Error) Code() ErrorCode { return p.ECode }

// Module() returns module field
func (p *Error) Module() ErrorModule { return p.EModule }

// String() calls Error()
func (p *Error) String() string { return p.Error() }

// Error() returns a formatted string including module, code and message
func (p *Error) Error() string {
	return fmt.Sprintf("\nModule:  %s\nCode:    %d\nMessage: %s", p.EModule, p.ECode, p.Msg)
}

// ErrorsIs() reports whether err is an ErrorI carrying the module and code
func ErrorsIs(err error, module ErrorModule, code ErrorCode) bool {
	var e ErrorI
	if !errors.As(err, &e) {
		return false
	}
	return e.Module() == module && e.Code() == code
}

const (
	NoCode ErrorCode = math.MaxUint32

	// Main Module
	MainModule ErrorModule = "main"

	// Main Module Error Codes
	CodeJSONMarshal     ErrorCode = 1
	CodeJSONUnmarshal   ErrorCode = 2
	CodeWriteFile       ErrorCode = 3
	CodeReadFile        ErrorCode = 4
	CodeInvalidArgument ErrorCode = 5
	CodeStringToBytes   ErrorCode = 6
	CodeNilRound        ErrorCode = 7
	CodeInvalidHash     ErrorCode = 8
	CodeInvalidPubKey   ErrorCode = 9
	CodeNoMiners        ErrorCode = 10
	CodeDuplicateMiner  ErrorCode = 11

	// Consensus Module
	ConsensusModule ErrorModule = "consensus"

	// Consensus Module Error Codes
	// the first six codes are the top level categories an operator sees
	CodeInvalidCommitment    ErrorCode = 1
	CodeOrderConflict        ErrorCode = 2
	CodeTimeSlotViolation    ErrorCode = 3
	CodeLibRegression        ErrorCode = 4
	CodePermissionDenied     ErrorCode = 5
	CodeStateCorruption      ErrorCode = 6
	CodeBehaviourMismatch    ErrorCode = 7
	CodeWrongRoundNumber     ErrorCode = 8
	CodeWrongTermNumber      ErrorCode = 9
	CodeMinerSetMismatch     ErrorCode = 10
	CodeTinyBlockLimit       ErrorCode = 11
	CodeInvalidTxSignature   ErrorCode = 12
	CodeEmptyPayload         ErrorCode = 13
	CodeMissingOutValue      ErrorCode = 14
	CodeUnknownBehaviour     ErrorCode = 15
	CodeTooManyPieces        ErrorCode = 16
	CodePieceTooLarge        ErrorCode = 17
	CodeUnknownPieceOwner    ErrorCode = 18
	CodeLibUnjustified       ErrorCode = 19
	CodeImpliedHeightTooHigh ErrorCode = 20
	CodeClaimedTimeDeviation ErrorCode = 21
	CodeRoundStartDeviation  ErrorCode = 22
	CodeIntervalMismatch     ErrorCode = 23
	CodePastMiningTime       ErrorCode = 24
	CodeOrderMismatch        ErrorCode = 25
	CodeExtraProducerWrong   ErrorCode = 26
	CodeEngineHalted         ErrorCode = 27
	CodeNoGenesis            ErrorCode = 28
	CodeTerminationTooEarly  ErrorCode = 29
	CodeSlotNotStarted       ErrorCode = 30
	CodeSlotPassed           ErrorCode = 31

	// Storage Module
	StorageModule ErrorModule = "store"

	// Storage Module Error Codes
	CodeOpenDB        ErrorCode = 1
	CodeCloseDB       ErrorCode = 2
	CodeCommitDB      ErrorCode = 3
	CodeStoreSet      ErrorCode = 4
	CodeStoreGet      ErrorCode = 5
	CodeStoreDelete   ErrorCode = 6
	CodeRoundNotFound ErrorCode = 7
	CodeNewCache      ErrorCode = 8

	// Secret Sharing Module
	SecretModule ErrorModule = "secret"

	// Secret Sharing Module Error Codes
	CodeInvalidThreshold ErrorCode = 1
	CodeSplitSecret      ErrorCode = 2
	CodeRecoverSecret    ErrorCode = 3
	CodeMalformedPiece   ErrorCode = 4
	CodeSealPiece        ErrorCode = 5
	CodeOpenPiece        ErrorCode = 6
	CodeNotEnoughPieces  ErrorCode = 7
	CodeBoxKey           ErrorCode = 8

	// Elector Module
	ElectorModule ErrorModule = "elector"

	// Elector Module Error Codes
	CodeElectorRequest  ErrorCode = 1
	CodeElectorResponse ErrorCode = 2

	// RPC Module
	RPCModule ErrorModule = "rpc"

	// RPC Module Error Codes
	CodeHTTPStatus    ErrorCode = 1
	CodeReadBody      ErrorCode = 2
	CodeServerTimeout ErrorCode = 3
	CodeInvalidParam  ErrorCode = 4
	CodePostRequest   ErrorCode = 5
	CodeGetRequest    ErrorCode = 6
)

func ErrJSONMarshal(err error) ErrorI {
	return NewError(CodeJSONMarshal, MainModule, fmt.Sprintf("json.marshal() failed with err: %s", err.Error()))
}

func ErrJSONUnmarshal(err error) ErrorI {
	return NewError(CodeJSONUnmarshal, MainModule, fmt.Sprintf("json.unmarshal() failed with err: %s", err.Error()))
}

func ErrWriteFile(err error) ErrorI {
	return NewError(CodeWriteFile, MainModule, fmt.Sprintf("os.WriteFile() failed with err: %s", err.Error()))
}

func ErrReadFile(err error) ErrorI {
	return NewError(CodeReadFile, MainModule, fmt.Sprintf("os.ReadFile() failed with err: %s", err.Error()))
}

func ErrInvalidArgument() ErrorI {
	return NewError(CodeInvalidArgument, MainModule, "the argument is invalid")
}

func ErrStringToBytes(err error) ErrorI {
	return NewError(CodeStringToBytes, MainModule, fmt.Sprintf("stringToBytes() failed with err: %s", err.Error()))
}

func ErrNilRound() ErrorI {
	return NewError(CodeNilRound, MainModule, "round is nil")
}

func ErrInvalidHash(err error) ErrorI {
	return NewError(CodeInvalidHash, MainModule, fmt.Sprintf("invalid hash: %s", err.Error()))
}

func ErrInvalidPubKey(err error) ErrorI {
	return NewError(CodeInvalidPubKey, MainModule, fmt.Sprintf("invalid public key: %s", err.Error()))
}

func ErrNoMiners() ErrorI {
	return NewError(CodeNoMiners, MainModule, "miner list is empty")
}

func ErrDuplicateMiner(pubkey string) ErrorI {
	return NewError(CodeDuplicateMiner, MainModule, fmt.Sprintf("miner %s is listed twice", pubkey))
}

func ErrServerTimeout() ErrorI {
	return NewError(CodeServerTimeout, RPCModule, "server timeout")
}
