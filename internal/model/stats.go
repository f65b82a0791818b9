package model

// TopUser ranks an owner by case count on the admin dashboard.
type TopUser struct {
	Username  string `json:"username"`
	CaseCount int64  `json:"caseCount"`
}

// DashboardUserStats summarizes accounts for the admin dashboard.
type DashboardUserStats struct {
	Total        int64     `json:"total"`
	Admins       int64     `json:"admins"`
	RegularUsers int64     `json:"regularUsers"`
	NewLastWeek  int64     `json:"newLastWeek"`
	TopUsers     []TopUser `json:"topUsers"`
}

// DashboardCaseStats summarizes cases across all owners.
type DashboardCaseStats struct {
	Total               int64   `json:"total"`
	NewLastWeek         int64   `json:"newLastWeek"`
	AvgCompressionRatio float64 `json:"avgCompressionRatio"`
	MaxCompressionRatio float64 `json:"maxCompressionRatio"`
	AvgProcessingTime   float64 `json:"avgProcessingTime"`
	TotalOriginalLength int64   `json:"totalTextLength"`
	TotalSummaryLength  int64   `json:"totalSummaryLength"`
	AvgOriginalLength   float64 `json:"avgOriginalLength"`
	AvgSummaryLength    float64 `json:"avgSummaryLength"`
}

// DashboardStats is the admin dashboard payload.
type DashboardStats struct {
	Users DashboardUserStats `json:"users"`
	Cases DashboardCaseStats `json:"cases"`
}
