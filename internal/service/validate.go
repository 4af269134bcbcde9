package service

import "github.com/thunderlab/examprep/internal/model"

const minReportConfidence = 0.3

// ValidateReport drops low-confidence items and strips citations that
// point outside the chunk set actually handed to the model. Items that
// lose citations are kept; hallucinated references are not.
func ValidateReport(report *model.Report, knownChunkIDs map[string]struct{}) *model.Report {
	if report == nil {
		return nil
	}
	out := &model.Report{
		ProfessorMentioned: validateItems(report.ProfessorMentioned, knownChunkIDs),
		Likely:             validateItems(report.Likely, knownChunkIDs),
		TrapWarnings:       validateItems(report.TrapWarnings, knownChunkIDs),
		Note:               report.Note,
	}
	return out
}

func validateItems(items []model.ReportItem, knownChunkIDs map[string]struct{}) []model.ReportItem {
	out := make([]model.ReportItem, 0, len(items))
	for _, item := range items {
		if item.Confidence < minReportConfidence {
			continue
		}
		citations := make([]model.Citation, 0, len(item.Citations))
		for _, citation := range item.Citations {
			if _, ok := knownChunkIDs[citation.ChunkID]; ok {
				citations = append(citations, citation)
			}
		}
		item.Citations = citations
		out = append(out, item)
	}
	return out
}
