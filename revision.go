package revdb

import (
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// newToken returns 128 random bits as 32 lowercase hex digits.
func newToken() string {
	u := uuid.New()
	return hex.EncodeToString(u[:])
}

// nextRevision bumps the record's revision counter and mints a fresh
// "<counter>-<token>" revision id.
func nextRevision(rec *docRecord) string {
	rec.RevIndex++
	return formatRevision(rec.RevIndex, newToken())
}

func formatRevision(counter uint64, token string) string {
	return strconv.FormatUint(counter, 10) + "-" + token
}

// ParseRevision splits a revision id into its counter and token.
func ParseRevision(rev string) (counter uint64, token string, ok bool) {
	counterStr, token, found := strings.Cut(rev, "-")
	if !found || token == "" {
		return 0, "", false
	}
	counter, err := strconv.ParseUint(counterStr, 10, 64)
	if err != nil || counter == 0 {
		return 0, "", false
	}
	return counter, token, true
}

func headRevision(rec *docRecord) string {
	if rec == nil || len(rec.Revs) == 0 {
		return ""
	}
	return rec.Revs[0]
}

// checkConflict decides whether a write carrying suppliedRev may proceed.
// rec is nil for documents that have never been written.
func checkConflict(rec *docRecord, suppliedRev string, isNewDoc bool) bool {
	if rec == nil {
		return false
	}
	if isNewDoc || suppliedRev == "" {
		return true
	}
	return suppliedRev != headRevision(rec)
}
