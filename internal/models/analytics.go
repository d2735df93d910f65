package models

// ItemStat summarises one exam item across all scored respondents.
type ItemStat struct {
	Item int `json:"item"`
	// Difficulty is the fraction of respondents answering correctly.
	Difficulty float64 `json:"difficulty"`
	// DiscriminationIndex is upper-group minus lower-group correctness.
	DiscriminationIndex float64 `json:"discrimination_index"`
	// PointBiserial correlates item correctness with total raw score.
	PointBiserial float64 `json:"point_biserial"`
}

// ExamAnalytics aggregates reliability and item statistics for an exam.
// An exam with zero scored respondents yields the zero value with an empty
// ItemStats slice.
type ExamAnalytics struct {
	ExamID         string     `json:"exam_id"`
	KR20           float64    `json:"kr20"`
	AverageScore   float64    `json:"average_score"`
	AveragePercent float64    `json:"average_percent"`
	Respondents    int        `json:"respondents"`
	ItemStats      []ItemStat `json:"item_stats"`
}
