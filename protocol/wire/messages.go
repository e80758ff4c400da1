package wire

import (
	"time"

	"github.com/lavanet/ledgerclient/protocol/ledgertypes"
	"github.com/lavanet/ledgerclient/protocol/status"
)

type ResponseType int32

const (
	ResponseTypeAnswerOnly ResponseType = iota
	ResponseTypeAnswerStateProof
	ResponseTypeCostAnswer
	ResponseTypeCostAnswerStateProof
)

// TransactionBody is the part of a transaction every signature covers. The node
// account is part of the body, so a body is specific to the node it is sent to.
type TransactionBody struct {
	TransactionID  ledgertypes.TransactionID
	NodeAccountID  ledgertypes.AccountID
	TransactionFee ledgertypes.Amount
	ValidDuration  time.Duration
	Memo           string
	Kind           string
	Data           []byte
	ChunkInfo      *ledgertypes.ChunkInfo
	Transfers      []ledgertypes.Transfer
}

func (tb *TransactionBody) Marshal() []byte {
	var b []byte
	b = appendMessage(b, 1, EncodeTransactionID(tb.TransactionID))
	b = appendMessage(b, 2, encodeAccountID(tb.NodeAccountID))
	b = appendVarint(b, 3, uint64(tb.TransactionFee))
	b = appendVarint(b, 4, uint64(tb.ValidDuration/time.Second))
	b = appendString(b, 5, tb.Memo)
	b = appendString(b, 6, tb.Kind)
	b = appendBytes(b, 7, tb.Data)
	if tb.ChunkInfo != nil {
		b = appendMessage(b, 8, encodeChunkInfo(*tb.ChunkInfo))
	}
	if len(tb.Transfers) > 0 {
		b = appendMessage(b, 9, encodeTransfers(tb.Transfers))
	}
	return b
}

func (tb *TransactionBody) Unmarshal(b []byte) error {
	*tb = TransactionBody{}
	return walk(b, func(f field) error {
		switch f.num {
		case 1, 2, 7, 8, 9:
			data, err := f.data()
			if err != nil {
				return err
			}
			switch f.num {
			case 1:
				tb.TransactionID, err = DecodeTransactionID(data)
			case 2:
				tb.NodeAccountID, err = decodeAccountID(data)
			case 7:
				tb.Data = append([]byte(nil), data...)
			case 8:
				var info ledgertypes.ChunkInfo
				info, err = decodeChunkInfo(data)
				tb.ChunkInfo = &info
			case 9:
				tb.Transfers, err = decodeTransfers(data)
			}
			return err
		case 3:
			v, err := f.uint()
			tb.TransactionFee = ledgertypes.Amount(v)
			return err
		case 4:
			v, err := f.uint()
			tb.ValidDuration = time.Duration(v) * time.Second
			return err
		case 5, 6:
			data, err := f.data()
			if f.num == 5 {
				tb.Memo = string(data)
			} else {
				tb.Kind = string(data)
			}
			return err
		}
		return nil
	})
}

type SignaturePair struct {
	PublicKey []byte
	Signature []byte
	Scheme    uint32
}

// SignedTransaction is what goes on the wire for a submission: the exact body bytes
// that were signed, and the signatures over them.
type SignedTransaction struct {
	BodyBytes  []byte
	Signatures []SignaturePair
}

func (st *SignedTransaction) Marshal() []byte {
	var b []byte
	b = appendBytes(b, 1, st.BodyBytes)
	for _, pair := range st.Signatures {
		var entry []byte
		entry = appendBytes(entry, 1, pair.PublicKey)
		entry = appendBytes(entry, 2, pair.Signature)
		entry = appendVarint(entry, 3, uint64(pair.Scheme))
		b = appendMessage(b, 2, entry)
	}
	return b
}

func (st *SignedTransaction) Unmarshal(b []byte) error {
	*st = SignedTransaction{}
	return walk(b, func(f field) error {
		switch f.num {
		case 1:
			data, err := f.data()
			st.BodyBytes = append([]byte(nil), data...)
			return err
		case 2:
			data, err := f.data()
			if err != nil {
				return err
			}
			var pair SignaturePair
			err = walk(data, func(inner field) error {
				switch inner.num {
				case 1:
					raw, err := inner.data()
					pair.PublicKey = append([]byte(nil), raw...)
					return err
				case 2:
					raw, err := inner.data()
					pair.Signature = append([]byte(nil), raw...)
					return err
				case 3:
					v, err := inner.uint()
					pair.Scheme = uint32(v)
					return err
				}
				return nil
			})
			st.Signatures = append(st.Signatures, pair)
			return err
		}
		return nil
	})
}

// TransactionResponse is the immediate precheck answer to a submission.
type TransactionResponse struct {
	PrecheckCode status.Code
	Cost         uint64
}

func (tr *TransactionResponse) Marshal() []byte {
	var b []byte
	b = appendVarint(b, 1, uint64(tr.PrecheckCode))
	b = appendVarint(b, 2, tr.Cost)
	return b
}

func (tr *TransactionResponse) Unmarshal(b []byte) error {
	*tr = TransactionResponse{}
	return walk(b, func(f field) (err error) {
		switch f.num {
		case 1:
			var v int64
			v, err = f.int()
			tr.PrecheckCode = status.Code(v)
		case 2:
			tr.Cost, err = f.uint()
		}
		return err
	})
}

type QueryHeader struct {
	// Payment is an encoded SignedTransaction, empty for free queries.
	Payment      []byte
	ResponseType ResponseType
}

type Query struct {
	Header        QueryHeader
	Kind          string
	TransactionID *ledgertypes.TransactionID
	Data          []byte
}

func (q *Query) Marshal() []byte {
	var header []byte
	header = appendBytes(header, 1, q.Header.Payment)
	header = appendVarint(header, 2, uint64(q.Header.ResponseType))

	var b []byte
	b = appendMessage(b, 1, header)
	b = appendString(b, 2, q.Kind)
	if q.TransactionID != nil {
		b = appendMessage(b, 3, EncodeTransactionID(*q.TransactionID))
	}
	b = appendBytes(b, 4, q.Data)
	return b
}

func (q *Query) Unmarshal(b []byte) error {
	*q = Query{}
	return walk(b, func(f field) error {
		if f.num < 1 || f.num > 4 {
			return nil
		}
		data, err := f.data()
		if err != nil {
			return err
		}
		switch f.num {
		case 1:
			return walk(data, func(inner field) error {
				switch inner.num {
				case 1:
					raw, err := inner.data()
					q.Header.Payment = append([]byte(nil), raw...)
					return err
				case 2:
					v, err := inner.int()
					q.Header.ResponseType = ResponseType(v)
					return err
				}
				return nil
			})
		case 2:
			q.Kind = string(data)
		case 3:
			id, err := DecodeTransactionID(data)
			if err != nil {
				return err
			}
			q.TransactionID = &id
		case 4:
			q.Data = append([]byte(nil), data...)
		}
		return nil
	})
}

type ResponseHeader struct {
	PrecheckCode status.Code
	ResponseType ResponseType
	Cost         uint64
}

type Response struct {
	Header  ResponseHeader
	Receipt *ledgertypes.Receipt
	Record  *ledgertypes.Record
	Data    []byte
}

func (r *Response) Marshal() []byte {
	var header []byte
	header = appendVarint(header, 1, uint64(r.Header.PrecheckCode))
	header = appendVarint(header, 2, uint64(r.Header.ResponseType))
	header = appendVarint(header, 3, r.Header.Cost)

	var b []byte
	b = appendMessage(b, 1, header)
	if r.Receipt != nil {
		b = appendMessage(b, 2, encodeReceipt(*r.Receipt))
	}
	if r.Record != nil {
		b = appendMessage(b, 3, encodeRecord(*r.Record))
	}
	b = appendBytes(b, 4, r.Data)
	return b
}

func (r *Response) Unmarshal(b []byte) error {
	*r = Response{}
	return walk(b, func(f field) error {
		if f.num < 1 || f.num > 4 {
			return nil
		}
		data, err := f.data()
		if err != nil {
			return err
		}
		switch f.num {
		case 1:
			return walk(data, func(inner field) error {
				v, err := inner.uint()
				if err != nil {
					return err
				}
				switch inner.num {
				case 1:
					r.Header.PrecheckCode = status.Code(int64(v))
				case 2:
					r.Header.ResponseType = ResponseType(v)
				case 3:
					r.Header.Cost = v
				}
				return nil
			})
		case 2:
			receipt, err := decodeReceipt(data)
			if err != nil {
				return err
			}
			r.Receipt = &receipt
		case 3:
			record, err := decodeRecord(data)
			if err != nil {
				return err
			}
			r.Record = &record
		case 4:
			r.Data = append([]byte(nil), data...)
		}
		return nil
	})
}

func encodeReceipt(receipt ledgertypes.Receipt) []byte {
	var b []byte
	b = appendVarint(b, 1, uint64(receipt.Status))
	if receipt.AccountID != nil {
		b = appendMessage(b, 2, encodeAccountID(*receipt.AccountID))
	}
	if receipt.FileID != nil {
		b = appendMessage(b, 3, encodeAccountID(*receipt.FileID))
	}
	if receipt.TopicID != nil {
		b = appendMessage(b, 4, encodeAccountID(*receipt.TopicID))
	}
	b = appendVarint(b, 5, receipt.TopicSequenceNumber)
	b = appendBytes(b, 6, receipt.TopicRunningHash)
	if !receipt.TransactionID.IsZero() {
		b = appendMessage(b, 7, EncodeTransactionID(receipt.TransactionID))
	}
	return b
}

func decodeReceipt(b []byte) (receipt ledgertypes.Receipt, err error) {
	err = walk(b, func(f field) error {
		switch f.num {
		case 1:
			v, err := f.int()
			receipt.Status = status.Code(v)
			return err
		case 5:
			v, err := f.uint()
			receipt.TopicSequenceNumber = v
			return err
		case 2, 3, 4, 6, 7:
			data, err := f.data()
			if err != nil {
				return err
			}
			switch f.num {
			case 2:
				receipt.AccountID, err = decodeAccountIDPointer(data)
			case 3:
				receipt.FileID, err = decodeAccountIDPointer(data)
			case 4:
				receipt.TopicID, err = decodeAccountIDPointer(data)
			case 6:
				receipt.TopicRunningHash = append([]byte(nil), data...)
			case 7:
				receipt.TransactionID, err = DecodeTransactionID(data)
			}
			return err
		}
		return nil
	})
	return receipt, err
}

func encodeRecord(record ledgertypes.Record) []byte {
	var b []byte
	b = appendMessage(b, 1, encodeReceipt(record.Receipt))
	b = appendBytes(b, 2, record.TransactionHash)
	if !record.ConsensusTimestamp.IsZero() {
		b = appendMessage(b, 3, encodeTimestamp(record.ConsensusTimestamp))
	}
	b = appendString(b, 4, record.Memo)
	b = appendVarint(b, 5, uint64(record.TransactionFee))
	if len(record.Transfers) > 0 {
		b = appendMessage(b, 6, encodeTransfers(record.Transfers))
	}
	return b
}

func decodeRecord(b []byte) (record ledgertypes.Record, err error) {
	err = walk(b, func(f field) error {
		if f.num == 5 {
			v, err := f.uint()
			record.TransactionFee = ledgertypes.Amount(v)
			return err
		}
		if f.num < 1 || f.num > 6 {
			return nil
		}
		data, err := f.data()
		if err != nil {
			return err
		}
		switch f.num {
		case 1:
			record.Receipt, err = decodeReceipt(data)
		case 2:
			record.TransactionHash = append([]byte(nil), data...)
		case 3:
			record.ConsensusTimestamp, err = decodeTimestamp(data)
		case 4:
			record.Memo = string(data)
		case 6:
			record.Transfers, err = decodeTransfers(data)
		}
		return err
	})
	return record, err
}
