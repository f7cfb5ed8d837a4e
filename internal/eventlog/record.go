package eventlog

import (
	"encoding/binary"
	"hash/crc32"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// Record encoding: varint headerLen | header | payload | crc32c(header|payload)
// The header is a msgpack map carrying the subject and publish time.

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

type recordHeader struct {
	Subject string `msgpack:"s"`
	TsMs    int64  `msgpack:"t"`
}

// Record is a decoded log entry.
type Record struct {
	Seq     uint64
	Subject string
	Payload []byte
	Time    time.Time
}

func encodeHeader(subject string, ts time.Time) ([]byte, error) {
	return msgpack.Marshal(&recordHeader{Subject: subject, TsMs: ts.UnixMilli()})
}

func decodeHeader(b []byte) (recordHeader, bool) {
	var h recordHeader
	if err := msgpack.Unmarshal(b, &h); err != nil {
		return h, false
	}
	return h, true
}

// headerTime is the timestamp extractor used by age trims.
func headerTime(header []byte) (int64, bool) {
	h, ok := decodeHeader(header)
	if !ok || h.TsMs == 0 {
		return 0, false
	}
	return h.TsMs, true
}

func EncodeRecord(header, payload []byte) []byte {
	out := make([]byte, 0, 10+len(header)+len(payload)+4)
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], uint64(len(header)))
	out = append(out, tmp[:n]...)
	out = append(out, header...)
	out = append(out, payload...)

	crc := crc32.Update(0, castagnoli, header)
	crc = crc32.Update(crc, castagnoli, payload)
	return binary.BigEndian.AppendUint32(out, crc)
}

// DecodeRecord splits and verifies an encoded record. The returned slices are
// copies and stay valid after the iterator moves.
func DecodeRecord(b []byte) (header, payload []byte, ok bool) {
	if len(b) < 1+4 {
		return nil, nil, false
	}
	hlen, n := binary.Uvarint(b)
	if n <= 0 || int(n)+int(hlen)+4 > len(b) {
		return nil, nil, false
	}
	header = b[n : n+int(hlen)]
	payload = b[n+int(hlen) : len(b)-4]
	crc := crc32.Update(0, castagnoli, header)
	crc = crc32.Update(crc, castagnoli, payload)
	if crc != binary.BigEndian.Uint32(b[len(b)-4:]) {
		return nil, nil, false
	}
	return append([]byte(nil), header...), append([]byte(nil), payload...), true
}

// decodeEntry turns a stored value into a Record.
func decodeEntry(seq uint64, value []byte) (Record, bool) {
	header, payload, ok := DecodeRecord(value)
	if !ok {
		return Record{}, false
	}
	h, ok := decodeHeader(header)
	if !ok {
		return Record{}, false
	}
	return Record{Seq: seq, Subject: h.Subject, Payload: payload, Time: time.UnixMilli(h.TsMs)}, true
}
