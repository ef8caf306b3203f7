package snapshot

import (
	"go.uber.org/zap"

	"github.com/satscheck/ledger-cli/internal/model"
)

// BestDate returns the newer of a record's check_date and survey:date and
// the tag that produced it. check_date wins a tie. Unparsable dates are
// ignored; a record with neither yields the zero Date and no tag.
func BestDate(r *model.RawLocation) (model.Date, model.SourceTag) {
	check := parseDate(r.CheckDate, "check_date", r)
	survey := parseDate(r.SurveyDate, "survey:date", r)

	best := model.MaxDate(check, survey)
	switch {
	case best.IsZero():
		return best, model.SourceNone
	case !check.IsZero() && check.Equal(best):
		return best, model.SourceCheckDate
	default:
		return best, model.SourceSurveyDate
	}
}

func parseDate(v, field string, r *model.RawLocation) model.Date {
	d, err := model.ParseDate(v)
	if err != nil {
		zap.L().Warn("snapshot: ignoring unparsable date",
			zap.String("key", r.CompositeKey()),
			zap.String("field", field),
			zap.String("value", v),
		)
		return model.Date{}
	}
	return d
}

// BestDates indexes the newest date per composite key. When a key appears
// more than once, the newest date wins.
func (s *Snapshot) BestDates() map[string]DatedTag {
	out := make(map[string]DatedTag)
	for i := range s.Rows {
		r := &s.Rows[i]
		key := r.CompositeKey()
		if key == "" {
			continue
		}
		d, tag := BestDate(r)
		if d.IsZero() {
			continue
		}
		if cur, ok := out[key]; !ok || d.After(cur.Date) {
			out[key] = DatedTag{Date: d, Tag: tag}
		}
	}
	return out
}

// DatedTag is a date and the field it came from.
type DatedTag struct {
	Date model.Date
	Tag  model.SourceTag
}
