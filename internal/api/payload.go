package api

import "github.com/graderist/corrsync/internal/refdata"

// DataPayload is the full bootstrap payload of GET /data.
type DataPayload struct {
	Task      refdata.Task       `json:"task"`
	Settings  refdata.Settings   `json:"settings"`
	Resources []refdata.Resource `json:"resources"`
	Levels    []refdata.Level    `json:"levels"`
	Items     []refdata.Item     `json:"items"`
}

// ItemPayload is the item-scoped payload of GET /item/{itemKey}.
type ItemPayload struct {
	Essay      refdata.Essay       `json:"essay"`
	Correctors []refdata.Corrector `json:"correctors"`
	Summary    SummaryBody         `json:"summary"`
}

// SummaryBody is the correction summary as it travels over the wire, both
// inside ItemPayload and as the body of PUT /summary/{itemKey}.
type SummaryBody struct {
	Text         string  `json:"text"`
	Points       float64 `json:"points"`
	GradeKey     string  `json:"grade_key"`
	IsAuthorized bool    `json:"is_authorized"`
}
