// Package dedupe computes complaint fingerprints and answers whether an open
// complaint already holds one.
package dedupe

import (
	"encoding/hex"
	"strconv"
	"strings"
	"time"
	"unicode"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	id "civicdesk/pkg/domain"
)

// DefaultBucket groups submissions by UTC calendar day.
const DefaultBucket = 24 * time.Hour

// separator never appears in normalized text or ids.
const separator = "\x1f"

// Normalize folds a description to its comparison form: accents stripped,
// lowercased, apostrophes removed, other punctuation turned into spaces and
// whitespace collapsed.
func Normalize(description string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, description)
	if err != nil {
		folded = description
	}
	folded = strings.ToLower(folded)

	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		switch {
		case r == '\'' || r == '’':
			continue
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// Bucket returns the start of created's time bucket as Unix seconds.
func Bucket(created time.Time, width time.Duration) int64 {
	if width <= 0 {
		width = DefaultBucket
	}
	return created.UTC().Truncate(width).Unix()
}

// Fingerprinter hashes (submitter, type, normalized description, bucket).
type Fingerprinter struct {
	bucket time.Duration
}

// NewFingerprinter builds a Fingerprinter; a non-positive bucket means DefaultBucket.
func NewFingerprinter(bucket time.Duration) *Fingerprinter {
	if bucket <= 0 {
		bucket = DefaultBucket
	}
	return &Fingerprinter{bucket: bucket}
}

// Compute returns the hex BLAKE2b-256 fingerprint.
func (f *Fingerprinter) Compute(submitter id.UserID, typeID, description string, created time.Time) string {
	payload := strings.Join([]string{
		submitter.String(),
		strings.ToLower(typeID),
		Normalize(description),
		strconv.FormatInt(Bucket(created, f.bucket), 10),
	}, separator)
	sum := blake2b.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}
