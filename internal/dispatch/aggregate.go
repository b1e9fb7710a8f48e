package dispatch

import (
	"fmt"

	"github.com/nao1215/mentionscan/internal/model"
)

// Aggregate folds dispatched counts into a finalized report. counts[i]
// must be the resolution of queries[i], which is exactly what Dispatch
// returns.
//
// The function is pure: given the same queries and counts it produces
// the same totals regardless of the completion order the dispatcher saw.
// Unavailable subjects keep their rows; only resolved values enter the
// total.
func Aggregate(kind model.ReportKind, r model.Range, timezone string, queries []model.Query, counts []model.Count) (*model.MentionReport, error) {
	if len(queries) != len(counts) {
		return nil, fmt.Errorf("aggregate: %d queries but %d counts", len(queries), len(counts))
	}

	report := model.NewMentionReport(kind, r)
	report.Timezone = timezone
	for i, query := range queries {
		report.AddResult(model.NewSubjectCount(query.Subject, counts[i]))
	}
	report.Finalize()
	return report, nil
}
