package wire

import (
	"time"

	"github.com/lavanet/ledgerclient/protocol/ledgertypes"
)

// TopicQuery asks a mirror node to stream the messages of a topic.
type TopicQuery struct {
	TopicID   ledgertypes.AccountID
	StartTime time.Time
	EndTime   time.Time
	Limit     uint64
}

func (tq *TopicQuery) Marshal() []byte {
	var b []byte
	b = appendMessage(b, 1, encodeAccountID(tq.TopicID))
	if !tq.StartTime.IsZero() {
		b = appendMessage(b, 2, encodeTimestamp(tq.StartTime))
	}
	if !tq.EndTime.IsZero() {
		b = appendMessage(b, 3, encodeTimestamp(tq.EndTime))
	}
	b = appendVarint(b, 4, tq.Limit)
	return b
}

func (tq *TopicQuery) Unmarshal(b []byte) error {
	*tq = TopicQuery{}
	return walk(b, func(f field) error {
		if f.num == 4 {
			v, err := f.uint()
			tq.Limit = v
			return err
		}
		if f.num < 1 || f.num > 3 {
			return nil
		}
		data, err := f.data()
		if err != nil {
			return err
		}
		switch f.num {
		case 1:
			tq.TopicID, err = decodeAccountID(data)
		case 2:
			tq.StartTime, err = decodeTimestamp(data)
		case 3:
			tq.EndTime, err = decodeTimestamp(data)
		}
		return err
	})
}

type TopicMessage struct {
	ConsensusTimestamp time.Time
	Contents           []byte
	SequenceNumber     uint64
	RunningHash        []byte
	ChunkInfo          *ledgertypes.ChunkInfo
}

func (tm *TopicMessage) Marshal() []byte {
	var b []byte
	b = appendMessage(b, 1, encodeTimestamp(tm.ConsensusTimestamp))
	b = appendBytes(b, 2, tm.Contents)
	b = appendVarint(b, 3, tm.SequenceNumber)
	b = appendBytes(b, 4, tm.RunningHash)
	if tm.ChunkInfo != nil {
		b = appendMessage(b, 5, encodeChunkInfo(*tm.ChunkInfo))
	}
	return b
}

func (tm *TopicMessage) Unmarshal(b []byte) error {
	*tm = TopicMessage{}
	return walk(b, func(f field) error {
		if f.num == 3 {
			v, err := f.uint()
			tm.SequenceNumber = v
			return err
		}
		if f.num < 1 || f.num > 5 {
			return nil
		}
		data, err := f.data()
		if err != nil {
			return err
		}
		switch f.num {
		case 1:
			tm.ConsensusTimestamp, err = decodeTimestamp(data)
		case 2:
			tm.Contents = append([]byte(nil), data...)
		case 4:
			tm.RunningHash = append([]byte(nil), data...)
		case 5:
			var info ledgertypes.ChunkInfo
			info, err = decodeChunkInfo(data)
			tm.ChunkInfo = &info
		}
		return err
	})
}
