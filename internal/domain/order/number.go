package order

import (
	"crypto/rand"
	"io"
	"regexp"

	"github.com/go-faster/errors"
)

const numberAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// numberPattern is the externally visible order number format.
var numberPattern = regexp.MustCompile(`^ORD-[A-Z0-9]{5}-[A-Z0-9]{5}$`)

// ValidNumber reports whether s is a well-formed order number.
func ValidNumber(s string) bool {
	return numberPattern.MatchString(s)
}

// NumberGenerator produces candidate order numbers. Uniqueness is enforced
// by the ledger; callers retry on ErrOrderNumberTaken.
type NumberGenerator func() (string, error)

// RandomNumbers returns a generator drawing from r, typically crypto/rand.
func RandomNumbers(r io.Reader) NumberGenerator {
	return func() (string, error) {
		var out [15]byte
		copy(out[:], "ORD-")
		if err := fillAlphabet(r, out[4:9]); err != nil {
			return "", err
		}
		out[9] = '-'
		if err := fillAlphabet(r, out[10:15]); err != nil {
			return "", err
		}
		return string(out[:]), nil
	}
}

// fillAlphabet fills dst with uniformly chosen alphabet characters using
// rejection sampling.
func fillAlphabet(r io.Reader, dst []byte) error {
	const limit = 256 - 256%len(numberAlphabet)
	var buf [16]byte
	for i := 0; i < len(dst); {
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return errors.Wrap(err, "read random")
		}
		for _, b := range buf {
			if int(b) >= limit {
				continue
			}
			dst[i] = numberAlphabet[int(b)%len(numberAlphabet)]
			i++
			if i == len(dst) {
				break
			}
		}
	}
	return nil
}

func defaultNumbers() NumberGenerator {
	return RandomNumbers(rand.Reader)
}
