package wire

import (
	"testing"
	"time"

	"github.com/lavanet/ledgerclient/protocol/ledgertypes"
	"github.com/lavanet/ledgerclient/protocol/status"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

func testTransactionID() ledgertypes.TransactionID {
	return ledgertypes.TransactionID{
		AccountID:  ledgertypes.AccountID{Shard: 0, Realm: 0, Num: 1001},
		ValidStart: time.Unix(1700000000, 42).UTC(),
		Nonce:      -2,
	}
}

func TestSignedChunkTransaction(t *testing.T) {
	first := testTransactionID()
	body := TransactionBody{
		TransactionID:  first.ForChunk(1),
		NodeAccountID:  ledgertypes.NewAccountID(3),
		TransactionFee: 2 * ledgertypes.Hbar,
		ValidDuration:  120 * time.Second,
		Memo:           "chunked",
		Kind:           "consensusSubmitMessage",
		Data:           []byte{1, 2, 3},
		ChunkInfo:      &ledgertypes.ChunkInfo{InitialTransactionID: first, Total: 3, Number: 2},
		Transfers: []ledgertypes.Transfer{
			{AccountID: ledgertypes.NewAccountID(1001), Amount: -5},
			{AccountID: ledgertypes.NewAccountID(3), Amount: 5},
		},
	}
	bodyBytes := body.Marshal()
	signed := SignedTransaction{
		BodyBytes: bodyBytes,
		Signatures: []SignaturePair{
			{PublicKey: []byte{0xaa}, Signature: []byte{0x01, 0x02}, Scheme: 1},
			{PublicKey: []byte{0xbb}, Signature: []byte{0x03}, Scheme: 2},
		},
	}

	var decodedSigned SignedTransaction
	require.NoError(t, decodedSigned.Unmarshal(signed.Marshal()))
	require.Equal(t, signed, decodedSigned)

	var decodedBody TransactionBody
	require.NoError(t, decodedBody.Unmarshal(decodedSigned.BodyBytes))
	require.Equal(t, body, decodedBody)
	// the bytes that were signed survive untouched
	require.Equal(t, bodyBytes, decodedSigned.BodyBytes)
}

func TestResponseWithRecord(t *testing.T) {
	account := ledgertypes.NewAccountID(77)
	receipt := ledgertypes.Receipt{
		Status:              status.Success,
		TransactionID:       testTransactionID(),
		AccountID:           &account,
		TopicSequenceNumber: 9,
		TopicRunningHash:    []byte("hash"),
	}
	response := Response{
		Header: ResponseHeader{PrecheckCode: status.Ok, ResponseType: ResponseTypeAnswerOnly},
		Record: &ledgertypes.Record{
			Receipt:            receipt,
			TransactionHash:    []byte{9, 9},
			ConsensusTimestamp: time.Unix(1700000100, 7).UTC(),
			Memo:               "memo",
			TransactionFee:     12345,
		},
	}
	var decoded Response
	require.NoError(t, decoded.Unmarshal(response.Marshal()))
	require.Equal(t, response, decoded)
}

func TestCostAnswerQuery(t *testing.T) {
	id := testTransactionID()
	query := Query{
		Header:        QueryHeader{Payment: []byte{7}, ResponseType: ResponseTypeCostAnswer},
		Kind:          KindRecordQuery,
		TransactionID: &id,
	}
	var decoded Query
	require.NoError(t, decoded.Unmarshal(query.Marshal()))
	require.Equal(t, query, decoded)

	response := Response{Header: ResponseHeader{PrecheckCode: status.Ok, ResponseType: ResponseTypeCostAnswer, Cost: 500}}
	var decodedResponse Response
	require.NoError(t, decodedResponse.Unmarshal(response.Marshal()))
	require.Equal(t, uint64(500), decodedResponse.Header.Cost)
	require.Nil(t, decodedResponse.Receipt)
}

func TestUnknownFieldsAreSkipped(t *testing.T) {
	response := TransactionResponse{PrecheckCode: status.Busy}
	encoded := response.Marshal()
	encoded = protowire.AppendTag(encoded, 15, protowire.Fixed64Type)
	encoded = protowire.AppendFixed64(encoded, 99)
	encoded = protowire.AppendTag(encoded, 16, protowire.BytesType)
	encoded = protowire.AppendBytes(encoded, []byte("future"))

	var decoded TransactionResponse
	require.NoError(t, decoded.Unmarshal(encoded))
	require.Equal(t, status.Busy, decoded.PrecheckCode)
}

func TestMalformedMessages(t *testing.T) {
	var decoded TransactionResponse
	require.ErrorIs(t, decoded.Unmarshal([]byte{0x08}), MalformedMessageError)

	wrongType := protowire.AppendTag(nil, 1, protowire.BytesType)
	wrongType = protowire.AppendBytes(wrongType, []byte{1})
	require.ErrorIs(t, decoded.Unmarshal(wrongType), FieldTypeError)
}

func TestTopicMessage(t *testing.T) {
	first := testTransactionID()
	message := TopicMessage{
		ConsensusTimestamp: time.Unix(1700000000, 1).UTC(),
		Contents:           []byte("part"),
		SequenceNumber:     4,
		ChunkInfo:          &ledgertypes.ChunkInfo{InitialTransactionID: first, Total: 2, Number: 1},
	}
	var decoded TopicMessage
	require.NoError(t, decoded.Unmarshal(message.Marshal()))
	require.Equal(t, message, decoded)

	query := TopicQuery{TopicID: ledgertypes.NewAccountID(5), StartTime: time.Unix(10, 0).UTC(), Limit: 3}
	var decodedQuery TopicQuery
	require.NoError(t, decodedQuery.Unmarshal(query.Marshal()))
	require.Equal(t, query, decodedQuery)
}

func TestRawBytesCodec(t *testing.T) {
	codec := RawBytesCodec{}
	out, err := codec.Marshal([]byte{1, 2})
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2}, out)

	var target []byte
	require.NoError(t, codec.Unmarshal([]byte{3}, &target))
	require.Equal(t, []byte{3}, target)

	_, err = codec.Marshal("text")
	require.Error(t, err)
	require.Error(t, codec.Unmarshal([]byte{3}, target))
	require.Equal(t, "proto", codec.Name())
}
