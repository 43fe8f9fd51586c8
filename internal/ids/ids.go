// Package ids generates and validates the immutable identifiers used for bills
// and cash-drawer sessions.
//
// Structured ids have the shape PREFIX_<unix-seconds>_<8 alphanumerics>, e.g.
// "CAJA_1760400000_x7Kq2RbA". Rows created before structured ids existed carry
// a plain UUID; IsValid accepts both so historical data stays addressable.
package ids

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"regexp"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Prefixes in use.
const (
	PrefixCuenta = "CTA"
	PrefixCaja   = "CAJA"
)

const (
	suffixLen = 8
	alphabet  = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
)

var (
	prefixPattern = regexp.MustCompile(`^[A-Z][A-Z0-9]{0,15}$`)
	idPattern     = regexp.MustCompile(`^([A-Z][A-Z0-9]{0,15})_([0-9]{9,11})_([A-Za-z0-9]{8})$`)
	alphabetLen   = big.NewInt(int64(len(alphabet)))
)

// now is swapped in tests.
var now = time.Now

// Generate returns a new id for prefix. The suffix comes from crypto/rand.
func Generate(prefix string) (string, error) {
	if !prefixPattern.MatchString(prefix) {
		return "", fmt.Errorf("ids: invalid prefix %q", prefix)
	}
	suffix := make([]byte, suffixLen)
	for i := range suffix {
		n, err := rand.Int(rand.Reader, alphabetLen)
		if err != nil {
			return "", fmt.Errorf("ids: random source: %w", err)
		}
		suffix[i] = alphabet[n.Int64()]
	}
	return fmt.Sprintf("%s_%d_%s", prefix, now().Unix(), suffix), nil
}

// MustGenerate is like Generate but panics on error. Use with constant prefixes.
func MustGenerate(prefix string) string {
	id, err := Generate(prefix)
	if err != nil {
		panic(err)
	}
	return id
}

// IsValid reports whether id is a structured id or a legacy UUID.
// Rejections are logged: a malformed id reaching the API is a tampering signal.
func IsValid(id string) bool {
	if isStructured(id) || isLegacy(id) {
		return true
	}
	log.Warn().Str("id", truncate(id, 64)).Int("len", len(id)).Msg("ids: rejected malformed identifier")
	return false
}

// Prefix returns the prefix of a structured id.
func Prefix(id string) (string, bool) {
	m := idPattern.FindStringSubmatch(id)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// HasPrefix reports whether id is a structured id with the given prefix.
func HasPrefix(id, prefix string) bool {
	p, ok := Prefix(id)
	return ok && p == prefix
}

// IsValidFor is IsValid restricted to one prefix. Legacy UUIDs still pass.
func IsValidFor(id, prefix string) bool {
	if !IsValid(id) {
		return false
	}
	if isLegacy(id) || HasPrefix(id, prefix) {
		return true
	}
	log.Warn().Str("id", id).Str("want", prefix).Msg("ids: identifier carries the wrong prefix")
	return false
}

func isStructured(id string) bool {
	m := idPattern.FindStringSubmatch(id)
	if m == nil {
		return false
	}
	ts, err := strconv.ParseInt(m[2], 10, 64)
	if err != nil || ts <= 0 {
		return false
	}
	// A timestamp more than a day ahead of the clock was not minted here.
	return ts <= now().Add(24*time.Hour).Unix()
}

func isLegacy(id string) bool {
	if len(id) != 36 {
		return false
	}
	_, err := uuid.Parse(id)
	return err == nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
