package qbsync

import (
	"time"

	"bitbucket.org/mmdatafocus/qbo_sync/utils"
	"github.com/shopspring/decimal"
)

// maxNoteLength is the platform's limit for free-text note fields. Longer
// local notes are truncated at the edge rather than rejected.
const maxNoteLength = 4000

const txnDateFormat = "2006-01-02"

// money rounds to 2 decimal places at the wire boundary. Local storage keeps
// full precision; only outgoing payloads are rounded.
func money(d decimal.Decimal) *decimal.Decimal {
	r := d.Round(2)
	return &r
}

func remoteNote(s string) string {
	return utils.TruncateString(s, maxNoteLength)
}

func remoteDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(txnDateFormat)
}

func remoteDatePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return remoteDate(*t)
}
