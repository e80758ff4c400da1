package wire

import (
	"github.com/lavanet/ledgerclient/utils"
)

const (
	MethodSubmitTransaction   = "/proto.CryptoService/cryptoTransfer"
	MethodGetReceipt          = "/proto.CryptoService/getTransactionReceipts"
	MethodGetRecord           = "/proto.CryptoService/getTxRecordByTxID"
	MethodGetAccountBalance   = "/proto.CryptoService/cryptoGetBalance"
	MethodSubmitTopicMessage  = "/proto.ConsensusService/submitMessage"
	MethodAppendFile          = "/proto.FileService/appendContent"
	MethodSubscribeTopic      = "/com.hedera.mirror.api.proto.ConsensusService/subscribeTopic"
	KindReceiptQuery          = "transactionGetReceipt"
	KindRecordQuery           = "transactionGetRecord"
	KindPaymentTransfer       = "cryptoTransfer"
	KindAccountBalance        = "cryptogetAccountBalance"
	rawBytesCodecContentLabel = "proto"
)

// RawBytesCodec hands already encoded messages to gRPC untouched. Messages are
// []byte on the way out and *[]byte on the way in.
type RawBytesCodec struct{}

func (RawBytesCodec) Marshal(v interface{}) ([]byte, error) {
	switch bytes := v.(type) {
	case []byte:
		return bytes, nil
	case *[]byte:
		return *bytes, nil
	default:
		return nil, utils.FormatError("cannot encode type", nil, utils.LogAttr("v", v))
	}
}

func (RawBytesCodec) Unmarshal(data []byte, v interface{}) error {
	bufferPtr, ok := v.(*[]byte)
	if !ok {
		return utils.FormatError("cannot decode into type", nil, utils.LogAttr("v", v))
	}
	*bufferPtr = append((*bufferPtr)[:0], data...)
	return nil
}

// Name is the content subtype, the payload is protobuf so it advertises itself as such.
func (RawBytesCodec) Name() string {
	return rawBytesCodecContentLabel
}
