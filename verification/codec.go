package verification

import (
	"time"

	"github.com/fxamacker/cbor/v2"
)

const recordFormatVersion = 1

// wireRecord is the CBOR form of a Record. Times are Unix milliseconds, zero for unset.
type wireRecord struct {
	Version     int    `cbor:"0,keyasint"`
	ID          string `cbor:"1,keyasint"`
	SubjectID   string `cbor:"2,keyasint"`
	Purpose     string `cbor:"3,keyasint"`
	TokenHash   string `cbor:"4,keyasint"`
	ExpiresAt   int64  `cbor:"5,keyasint"`
	Attempts    int    `cbor:"6,keyasint"`
	LastAttempt int64  `cbor:"7,keyasint,omitempty"`
}

// Deterministic encoding makes byte equality a valid compare-and-swap test.
var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("verification: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("verification: CBOR decoder initialization failed: " + err.Error())
	}
}

func encodeRecord(rec Record) ([]byte, error) {
	w := wireRecord{
		Version:   recordFormatVersion,
		ID:        rec.ID,
		SubjectID: rec.SubjectID,
		Purpose:   string(rec.Purpose),
		TokenHash: rec.TokenHash,
		ExpiresAt: rec.ExpiresAt.UnixMilli(),
		Attempts:  rec.Attempts,
	}
	if !rec.LastAttempt.IsZero() {
		w.LastAttempt = rec.LastAttempt.UnixMilli()
	}
	return encMode.Marshal(w)
}

func decodeRecord(data []byte) (Record, error) {
	var w wireRecord
	if err := decMode.Unmarshal(data, &w); err != nil {
		return Record{}, err
	}
	if w.Version != recordFormatVersion {
		return Record{}, errUnsupportedVersion
	}
	rec := Record{
		ID:        w.ID,
		SubjectID: w.SubjectID,
		Purpose:   Purpose(w.Purpose),
		TokenHash: w.TokenHash,
		ExpiresAt: time.UnixMilli(w.ExpiresAt),
		Attempts:  w.Attempts,
	}
	if w.LastAttempt != 0 {
		rec.LastAttempt = time.UnixMilli(w.LastAttempt)
	}
	return rec, nil
}
