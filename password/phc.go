package password

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

const algorithmID = "argon2id"

// ErrMalformedHash is returned when a stored hash is not a supported PHC string.
var ErrMalformedHash = errors.New("malformed password hash")

// phc is the decoded form of
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
type phc struct {
	memory      uint32
	time        uint32
	parallelism uint8
	salt        []byte
	key         []byte
}

func (p phc) String() string {
	return fmt.Sprintf("$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		algorithmID, argon2.Version,
		p.memory, p.time, p.parallelism,
		base64.StdEncoding.EncodeToString(p.salt),
		base64.StdEncoding.EncodeToString(p.key),
	)
}

func malformed(what string) error {
	return fmt.Errorf("%w: %s", ErrMalformedHash, what)
}

func decodePHC(encoded string) (phc, error) {
	fields := strings.Split(encoded, "$")
	if len(fields) != 6 || fields[0] != "" {
		return phc{}, malformed("field count")
	}
	if fields[1] != algorithmID {
		return phc{}, malformed("algorithm")
	}
	if fields[2] != fmt.Sprintf("v=%d", argon2.Version) {
		return phc{}, malformed("version")
	}

	var (
		out       phc
		threads   uint32
		paramText = fields[3]
	)
	if _, err := fmt.Sscanf(paramText, "m=%d,t=%d,p=%d", &out.memory, &out.time, &threads); err != nil {
		return phc{}, malformed("parameters")
	}
	// Reject trailing junk and non-canonical numbers that Sscanf tolerates.
	if paramText != fmt.Sprintf("m=%d,t=%d,p=%d", out.memory, out.time, threads) {
		return phc{}, malformed("parameters")
	}
	if out.memory < minMemoryKB || out.time < minTimeCost || threads < uint32(minParallelism) || threads > 255 {
		return phc{}, malformed("parameters out of range")
	}
	out.parallelism = uint8(threads)

	var err error
	if out.salt, err = base64.StdEncoding.DecodeString(fields[4]); err != nil || len(out.salt) < int(minSaltLength) {
		return phc{}, malformed("salt")
	}
	if out.key, err = base64.StdEncoding.DecodeString(fields[5]); err != nil || len(out.key) == 0 {
		return phc{}, malformed("key")
	}
	return out, nil
}
