// Package rpc is the devnet's JSON-RPC facade: method dispatch over
// jsonrpc.Server, restrictive-mode gating, and the full starknet_* plus
// devnet_* method set.
package rpc

import (
	"fmt"

	"github.com/NethermindEth/starknet-devnet-go/jsonrpc"
)

// Error codes follow the Starknet RPC spec.
const (
	CodeContractNotFound           = 20
	CodeBlockNotFound              = 24
	CodeTransactionHashNotFound    = 25
	CodeInvalidTransactionIndex    = 27
	CodeClassHashNotFound          = 28
	CodeClassAlreadyDeclared       = 51
	CodeInvalidContinuationToken   = 53
	CodeContractError              = 55
	CodeInvalidTransactionNonce    = 56
	CodeInsufficientMaxFee         = 57
	CodeInsufficientAccountBalance = 58
	CodeValidationFailure          = 59
	CodeCompiledClassHashMismatch  = 60
	CodeUnsupportedTxVersion       = 61
	CodeUnsupportedContractClass   = 62
	CodeUnexpectedError            = 63
	CodeStorageProofNotSupported   = 42
	CodeMethodForbidden            = -32604
)

func errWith(code int, msg string, data any) *jsonrpc.Error {
	return &jsonrpc.Error{Code: code, Message: msg, Data: data}
}

func errContractNotFound() *jsonrpc.Error {
	return errWith(CodeContractNotFound, "Contract not found", nil)
}

func errBlockNotFound() *jsonrpc.Error {
	return errWith(CodeBlockNotFound, "Block not found", nil)
}

func errTxHashNotFound() *jsonrpc.Error {
	return errWith(CodeTransactionHashNotFound, "Transaction hash not found", nil)
}

func errClassHashNotFound() *jsonrpc.Error {
	return errWith(CodeClassHashNotFound, "Class hash not found", nil)
}

func errClassAlreadyDeclared() *jsonrpc.Error {
	return errWith(CodeClassAlreadyDeclared, "Class already declared", nil)
}

func errValidationFailure(reason string) *jsonrpc.Error {
	return errWith(CodeValidationFailure, "Validation failure", reason)
}

func errCompiledClassHashMismatch() *jsonrpc.Error {
	return errWith(CodeCompiledClassHashMismatch, "Compiled class hash mismatch", nil)
}

func errInvalidTransactionNonce() *jsonrpc.Error {
	return errWith(CodeInvalidTransactionNonce, "Invalid transaction nonce", nil)
}

func errInsufficientMaxFee() *jsonrpc.Error {
	return errWith(CodeInsufficientMaxFee, "Max fee is smaller than the minimal transaction cost", nil)
}

func errInsufficientAccountBalance() *jsonrpc.Error {
	return errWith(CodeInsufficientAccountBalance, "Account balance is smaller than the transaction fee", nil)
}

func errUnexpected(reason string) *jsonrpc.Error {
	return errWith(CodeUnexpectedError, fmt.Sprintf("An unexpected error occurred: %s", reason), nil)
}

func errStorageProofNotSupported() *jsonrpc.Error {
	return errWith(CodeStorageProofNotSupported, "Devnet doesn't support storage proofs", nil)
}

func errMethodForbidden() *jsonrpc.Error {
	return errWith(CodeMethodForbidden, "The method is forbidden in the current configuration", nil)
}
