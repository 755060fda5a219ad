package discovery

import (
	"regexp"

	"github.com/couchcryptid/station-snapshot-collector/internal/domain"
)

// Station table columns. The RSS and HTML columns (2 and 3) are not used.
const (
	colLabel  = 0
	colLatest = 1
)

// BuildStationLinks maps station table rows to links. Rows without a latest
// URL, or whose latest URL yields no identifier, are left out.
func BuildStationLinks(rows [][]string, latest *regexp.Regexp, historyTemplate string) []domain.StationLink {
	links := make([]domain.StationLink, 0, len(rows))
	for _, row := range rows {
		id, ok := rowLatestID(row, latest)
		if !ok {
			continue
		}
		links = append(links, domain.StationLink{
			Location:   id,
			LatestURL:  row[colLatest],
			HistoryURL: domain.BuildHistoryURL(historyTemplate, id),
		})
	}
	return links
}

func rowLatestID(row []string, latest *regexp.Regexp) (string, bool) {
	if len(row) <= colLatest {
		return "", false
	}
	return domain.ExtractIdentifier(row[colLatest], latest)
}
