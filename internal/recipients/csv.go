package recipients

import (
	"encoding/csv"
	"errors"
	"io"
	"strings"

	"sms-gateway/pkg/utils"
)

// headerWords are first-column values treated as a header row.
var headerWords = map[string]struct{}{
	"phone":        {},
	"phonenumber":  {},
	"phone_number": {},
	"mobile":       {},
}

// ParseCSV reads phone numbers from the first column. Header rows, blank rows
// and malformed numbers are skipped; duplicates keep their first position.
func ParseCSV(r io.Reader) ([]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true

	var (
		out  []string
		seen = map[string]struct{}{}
	)
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(rec) == 0 {
			continue
		}
		phone := utils.NormalizePhone(strings.TrimPrefix(rec[0], "\uFEFF"))
		if _, ok := headerWords[strings.ToLower(phone)]; ok {
			continue
		}
		if !utils.ValidPhone(phone) {
			continue
		}
		if _, dup := seen[phone]; dup {
			continue
		}
		seen[phone] = struct{}{}
		out = append(out, phone)
	}
	return out, nil
}
