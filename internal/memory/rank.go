package memory

import "sort"

// RankBySignificance filters out rows below the minTotal floor, then sorts
// by total significance descending, recall frequency descending, and
// message recency descending. The floor is applied before the sort so
// limit semantics stay stable. Pure and deterministic: identical inputs
// always produce identical output.
func RankBySignificance(rows []WeightedMessage, minTotal, limit int) []WeightedMessage {
	ranked := make([]WeightedMessage, 0, len(rows))
	for _, row := range rows {
		total := row.Weight.Vector.Total()
		if total < minTotal {
			continue
		}
		row.TotalSignificance = total
		ranked = append(ranked, row)
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].TotalSignificance != ranked[j].TotalSignificance {
			return ranked[i].TotalSignificance > ranked[j].TotalSignificance
		}
		if ranked[i].Weight.RecallFrequency != ranked[j].Weight.RecallFrequency {
			return ranked[i].Weight.RecallFrequency > ranked[j].Weight.RecallFrequency
		}
		return ranked[i].Message.CreatedAt.After(ranked[j].Message.CreatedAt)
	})

	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}
