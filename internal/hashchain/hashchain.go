// Package hashchain implements the tamper-evident hash chain underlying the
// chain-of-custody ledger. Each custody event's hash is computed over the
// previous event's hash plus a canonicalized payload, so altering or
// reordering any past event breaks every link after it.
package hashchain

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"time"

	"github.com/dnafasttrack/custody-server/internal/models"
)

// FieldSep joins the prev-hash prefix and the canonical key=value pairs.
const FieldSep = "|"

// Digest computes the hex-encoded SHA-256 digest of a previous hash and an
// event payload. The payload is canonicalized by sorting keys
// lexicographically and joining "key=value" pairs with FieldSep, prefixed by
// prevHash and a separator. An empty prevHash marks the first event of a
// chain; callers must pass "" rather than any sentinel.
//
// Pure and total: identical inputs always yield identical output.
func Digest(prevHash string, payload map[string]string) string {
	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(prevHash)
	for _, k := range keys {
		b.WriteString(FieldSep)
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(payload[k])
	}

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// EventPayload returns the canonical payload of a custody event: every
// caller-supplied field covered by its hash, including the free-text note.
// RecordedAt is rendered in UTC RFC3339Nano so the digest is independent of
// server time zone.
func EventPayload(e models.CustodyEvent) map[string]string {
	return map[string]string{
		"actor":     e.Actor,
		"action":    e.Action,
		"note":      e.Note,
		"timestamp": Timestamp(e.RecordedAt),
	}
}

// Timestamp renders a custody timestamp in the canonical form used for
// hashing. Changing this format invalidates every stored hash. Appenders
// assign timestamps at microsecond precision so the rendered form is stable
// across backends that do not store nanoseconds.
func Timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// EventHash recomputes the expected hash of an event from its recorded
// prev_hash and payload fields.
func EventHash(e models.CustodyEvent) string {
	return Digest(e.PrevHash, EventPayload(e))
}

// VerifyEvents checks a case's events, already ordered by append sequence,
// for chain integrity: the first event's prev_hash must be empty, each
// subsequent event's prev_hash must equal its predecessor's stored hash, and
// every event's stored hash must match its recomputed hash. The result
// reports the id of the first event that diverges.
func VerifyEvents(caseNumber string, events []models.CustodyEvent) models.VerificationResult {
	res := models.VerificationResult{CaseNumber: caseNumber, Valid: true, Events: len(events)}

	prev := ""
	for i := range events {
		e := events[i]
		if e.PrevHash != prev || EventHash(e) != e.Hash {
			id := e.ID
			res.Valid = false
			res.BreakAt = &id
			return res
		}
		prev = e.Hash
	}
	return res
}
