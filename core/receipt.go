package core

import "github.com/NethermindEth/starknet-devnet-go/core/felt"

// ExecutionStatus is the outcome of running a transaction's account logic
// and, for non-reverted transactions, its call.
type ExecutionStatus int

const (
	ExecutionSucceeded ExecutionStatus = iota
	ExecutionReverted
)

func (s ExecutionStatus) String() string {
	if s == ExecutionReverted {
		return "REVERTED"
	}
	return "SUCCEEDED"
}

// FinalityStatus is where a transaction's containing block sits in the
// accepted/pre-confirmed lifecycle.
type FinalityStatus int

const (
	FinalityPreConfirmed FinalityStatus = iota
	FinalityAcceptedOnL2
)

func (s FinalityStatus) String() string {
	if s == FinalityAcceptedOnL2 {
		return "ACCEPTED_ON_L2"
	}
	return "PRE_CONFIRMED"
}

// Receipt is the result of executing one transaction: fee charged,
// resources consumed, events and messages produced, and the two status
// axes (did it revert, is its block final).
type Receipt struct {
	TransactionHash    *felt.Felt
	ActualFee          *felt.Felt
	ExecutionStatus    ExecutionStatus
	FinalityStatus     FinalityStatus
	RevertReason       string
	Events             []Event
	L2ToL1Messages     []L2ToL1Message
	ExecutionResources ExecutionResources
	ContractAddress    *felt.Felt // set only for DEPLOY_ACCOUNT receipts
	MessageHash        *felt.Felt // set only for L1_HANDLER receipts
	BlockHash          *felt.Felt
	BlockNumber        uint64
}
