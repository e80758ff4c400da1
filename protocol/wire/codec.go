// Package wire encodes requests and decodes responses in the protobuf wire format the
// network nodes speak. Messages are written field by field with protowire, so the
// client carries no generated code.
package wire

import (
	"time"

	sdkerrors "cosmossdk.io/errors"
	"github.com/lavanet/ledgerclient/protocol/ledgertypes"
	"google.golang.org/protobuf/encoding/protowire"
)

var (
	MalformedMessageError = sdkerrors.New("MalformedMessage Error", 1101, "message bytes do not decode")
	FieldTypeError        = sdkerrors.New("FieldType Error", 1102, "field has an unexpected wire type")
)

type field struct {
	num    protowire.Number
	typ    protowire.Type
	varint uint64
	bytes  []byte
}

func (f field) uint() (uint64, error) {
	if f.typ != protowire.VarintType {
		return 0, sdkerrors.Wrapf(FieldTypeError, "field %d: want varint, got %d", f.num, f.typ)
	}
	return f.varint, nil
}

func (f field) int() (int64, error) {
	v, err := f.uint()
	return int64(v), err
}

func (f field) sint() (int64, error) {
	v, err := f.uint()
	return protowire.DecodeZigZag(v), err
}

func (f field) data() ([]byte, error) {
	if f.typ != protowire.BytesType {
		return nil, sdkerrors.Wrapf(FieldTypeError, "field %d: want bytes, got %d", f.num, f.typ)
	}
	return f.bytes, nil
}

// walk visits every varint and length delimited field. Fields of other wire types are
// skipped, as are fields a visitor does not know.
func walk(b []byte, visit func(f field) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return sdkerrors.Wrap(MalformedMessageError, protowire.ParseError(n).Error())
		}
		b = b[n:]
		current := field{num: num, typ: typ}
		switch typ {
		case protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return sdkerrors.Wrap(MalformedMessageError, protowire.ParseError(n).Error())
			}
			current.varint = v
			b = b[n:]
		case protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return sdkerrors.Wrap(MalformedMessageError, protowire.ParseError(n).Error())
			}
			current.bytes = v
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return sdkerrors.Wrap(MalformedMessageError, protowire.ParseError(n).Error())
			}
			b = b[n:]
			continue
		}
		if err := visit(current); err != nil {
			return err
		}
	}
	return nil
}

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendSint(b []byte, num protowire.Number, v int64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, protowire.EncodeZigZag(v))
}

func appendBool(b []byte, num protowire.Number, v bool) []byte {
	if !v {
		return b
	}
	return appendVarint(b, num, 1)
}

func appendBytes(b []byte, num protowire.Number, v []byte) []byte {
	if len(v) == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

func appendString(b []byte, num protowire.Number, v string) []byte {
	if v == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}

// appendMessage writes a nested message even when it encodes to zero bytes, presence
// is meaningful for nested messages.
func appendMessage(b []byte, num protowire.Number, encoded []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, encoded)
}

func encodeTimestamp(t time.Time) []byte {
	var b []byte
	b = appendSint(b, 1, t.Unix())
	b = appendVarint(b, 2, uint64(t.Nanosecond()))
	return b
}

func decodeTimestamp(b []byte) (time.Time, error) {
	var seconds, nanos int64
	err := walk(b, func(f field) (err error) {
		switch f.num {
		case 1:
			seconds, err = f.sint()
		case 2:
			nanos, err = f.int()
		}
		return err
	})
	return time.Unix(seconds, nanos).UTC(), err
}

func encodeAccountID(id ledgertypes.AccountID) []byte {
	var b []byte
	b = appendVarint(b, 1, id.Shard)
	b = appendVarint(b, 2, id.Realm)
	b = appendVarint(b, 3, id.Num)
	return b
}

func decodeAccountID(b []byte) (id ledgertypes.AccountID, err error) {
	err = walk(b, func(f field) (err error) {
		switch f.num {
		case 1:
			id.Shard, err = f.uint()
		case 2:
			id.Realm, err = f.uint()
		case 3:
			id.Num, err = f.uint()
		}
		return err
	})
	return id, err
}

func decodeAccountIDPointer(b []byte) (*ledgertypes.AccountID, error) {
	id, err := decodeAccountID(b)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func EncodeTransactionID(id ledgertypes.TransactionID) []byte {
	var b []byte
	b = appendMessage(b, 1, encodeAccountID(id.AccountID))
	b = appendMessage(b, 2, encodeTimestamp(id.ValidStart))
	b = appendBool(b, 3, id.Scheduled)
	b = appendSint(b, 4, int64(id.Nonce))
	return b
}

func DecodeTransactionID(b []byte) (id ledgertypes.TransactionID, err error) {
	err = walk(b, func(f field) error {
		switch f.num {
		case 1:
			data, err := f.data()
			if err != nil {
				return err
			}
			id.AccountID, err = decodeAccountID(data)
			return err
		case 2:
			data, err := f.data()
			if err != nil {
				return err
			}
			id.ValidStart, err = decodeTimestamp(data)
			return err
		case 3:
			v, err := f.uint()
			id.Scheduled = v != 0
			return err
		case 4:
			v, err := f.sint()
			id.Nonce = int32(v)
			return err
		}
		return nil
	})
	return id, err
}

func encodeChunkInfo(info ledgertypes.ChunkInfo) []byte {
	var b []byte
	b = appendMessage(b, 1, EncodeTransactionID(info.InitialTransactionID))
	b = appendVarint(b, 2, uint64(info.Total))
	b = appendVarint(b, 3, uint64(info.Number))
	return b
}

func decodeChunkInfo(b []byte) (info ledgertypes.ChunkInfo, err error) {
	err = walk(b, func(f field) error {
		switch f.num {
		case 1:
			data, err := f.data()
			if err != nil {
				return err
			}
			info.InitialTransactionID, err = DecodeTransactionID(data)
			return err
		case 2:
			v, err := f.int()
			info.Total = int32(v)
			return err
		case 3:
			v, err := f.int()
			info.Number = int32(v)
			return err
		}
		return nil
	})
	return info, err
}

func encodeTransfers(transfers []ledgertypes.Transfer) []byte {
	var b []byte
	for _, transfer := range transfers {
		var entry []byte
		entry = appendMessage(entry, 1, encodeAccountID(transfer.AccountID))
		entry = appendSint(entry, 2, int64(transfer.Amount))
		b = appendMessage(b, 1, entry)
	}
	return b
}

func decodeTransfers(b []byte) (transfers []ledgertypes.Transfer, err error) {
	err = walk(b, func(f field) error {
		if f.num != 1 {
			return nil
		}
		data, err := f.data()
		if err != nil {
			return err
		}
		var transfer ledgertypes.Transfer
		err = walk(data, func(inner field) error {
			switch inner.num {
			case 1:
				raw, err := inner.data()
				if err != nil {
					return err
				}
				transfer.AccountID, err = decodeAccountID(raw)
				return err
			case 2:
				v, err := inner.sint()
				transfer.Amount = ledgertypes.Amount(v)
				return err
			}
			return nil
		})
		transfers = append(transfers, transfer)
		return err
	})
	return transfers, err
}
