package syncer

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var zeroWidth = strings.NewReplacer(
	"\u200b", "",
	"\u200c", "",
	"\u200d", "",
	"\u2060", "",
	"\ufeff", "",
)

// NormalizeMemo strips zero-width characters, trims, collapses whitespace runs into one space and
// upper-cases. It is the only producer of PaymentRecord.MemoNormalized.
func NormalizeMemo(memo string) string {
	if memo == "" {
		return ""
	}
	s := zeroWidth.Replace(memo)
	s = strings.Join(strings.Fields(s), " ")
	// cases.Caser keeps state, a fresh one per call keeps this safe for concurrent use
	return cases.Upper(language.Und).String(s)
}

// PrepareBatch validates records for one account: it drops records without a paging token,
// assigns the account and derives the normalized memo. Stores call it before writing a batch.
func PrepareBatch(accountID string, records []PaymentRecord) (valid []PaymentRecord, skipped int) {
	valid = make([]PaymentRecord, 0, len(records))
	for _, r := range records {
		r.PagingToken = strings.TrimSpace(r.PagingToken)
		if r.PagingToken == "" {
			skipped++
			continue
		}
		r.AccountID = accountID
		r.MemoNormalized = NormalizeMemo(r.Memo)
		valid = append(valid, r)
	}
	return valid, skipped
}
