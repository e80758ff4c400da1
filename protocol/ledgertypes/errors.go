package ledgertypes

import sdkerrors "cosmossdk.io/errors"

var (
	InvalidAccountIDError     = sdkerrors.New("InvalidAccountID Error", 1001, "account id must look like shard.realm.num")
	InvalidTransactionIDError = sdkerrors.New("InvalidTransactionID Error", 1002, "transaction id must look like account@seconds.nanos")
	InvalidAmountError        = sdkerrors.New("InvalidAmount Error", 1003, "amount must be a decimal number of hbar")
)
