package ledger

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"time"
)

const recordFormatVersion = 1

var errCorruptRecord = errors.New("corrupt ledger record")

func encodeRecord(rec Record) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(recordFormatVersion)

	if err := binary.Write(&buf, binary.BigEndian, rec.ExpiresAt.UnixMilli()); err != nil {
		return nil, err
	}
	for _, field := range []string{rec.ID, rec.SubjectID, rec.TokenHash} {
		if len(field) > 0xFFFF {
			return nil, errors.New("ledger record field too long")
		}
		if err := binary.Write(&buf, binary.BigEndian, uint16(len(field))); err != nil {
			return nil, err
		}
		buf.WriteString(field)
	}

	return buf.Bytes(), nil
}

func decodeRecord(data []byte) (Record, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil || version != recordFormatVersion {
		return Record{}, errCorruptRecord
	}

	var expiresAt int64
	if err := binary.Read(reader, binary.BigEndian, &expiresAt); err != nil {
		return Record{}, errCorruptRecord
	}

	fields := make([]string, 3)
	for i := range fields {
		var n uint16
		if err := binary.Read(reader, binary.BigEndian, &n); err != nil {
			return Record{}, errCorruptRecord
		}
		b := make([]byte, n)
		if _, err := io.ReadFull(reader, b); err != nil {
			return Record{}, errCorruptRecord
		}
		fields[i] = string(b)
	}
	if reader.Len() != 0 {
		return Record{}, errCorruptRecord
	}

	return Record{
		ID:        fields[0],
		SubjectID: fields[1],
		TokenHash: fields[2],
		ExpiresAt: time.UnixMilli(expiresAt),
	}, nil
}
