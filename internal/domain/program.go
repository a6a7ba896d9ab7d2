package domain

// Program represents a delivery program that depends on platform services.
type Program struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Confidence int    `json:"confidence"`
	Owner      string `json:"owner"`
}

// RiskLevel represents the delivery-risk tier of a program.
type RiskLevel string

// Risk levels.
const (
	RiskLevelLow      RiskLevel = "Low"
	RiskLevelMedium   RiskLevel = "Medium"
	RiskLevelHigh     RiskLevel = "High"
	RiskLevelCritical RiskLevel = "Critical"
)

// IsHigh reports whether the level counts as high risk (High or Critical).
func (l RiskLevel) IsHigh() bool {
	return l == RiskLevelHigh || l == RiskLevelCritical
}

// ProgramRisk is the derived risk view of a program. It is recomputed on
// every request and never stored.
type ProgramRisk struct {
	ProgramID   string    `json:"program_id"`
	ProgramName string    `json:"program_name"`
	Confidence  int       `json:"confidence"`
	RiskScore   int       `json:"risk_score"`
	RiskLevel   RiskLevel `json:"risk_level"`
	Owner       string    `json:"owner"`
}
