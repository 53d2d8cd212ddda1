package compliance

// Summary holds the headline counts shown on the dashboard.
type Summary struct {
	Facilities     FlexInt `json:"facilities" validate:"gte=0"`
	Inspections    FlexInt `json:"inspections" validate:"gte=0"`
	Form483s       FlexInt `json:"form483s" validate:"gte=0"`
	WarningLetters FlexInt `json:"warning_letters" validate:"gte=0"`
	Investigators  FlexInt `json:"investigators" validate:"gte=0"`
	OAIInspections FlexInt `json:"oai_inspections" validate:"gte=0"`
	RefreshedAt    Date    `json:"refreshed_at"`
}

// OAIShare is the fraction of inspections classified OAI.
func (s Summary) OAIShare() float64 {
	if s.Inspections <= 0 {
		return 0
	}
	return float64(s.OAIInspections) / float64(s.Inspections)
}

// YearCount is the number of inspections ending in one fiscal year, by classification.
type YearCount struct {
	FiscalYear FlexInt `json:"fiscal_year" validate:"gt=0"`
	NAI        FlexInt `json:"nai" validate:"gte=0"`
	VAI        FlexInt `json:"vai" validate:"gte=0"`
	OAI        FlexInt `json:"oai" validate:"gte=0"`
}

// Total sums every classification.
func (y YearCount) Total() int {
	return int(y.NAI + y.VAI + y.OAI)
}

// SystemCitations counts Form 483 observations attributed to one system, split into
// the current and prior fiscal year.
type SystemCitations struct {
	Code     string  `json:"system_code" validate:"required"`
	Current  FlexInt `json:"current" validate:"gte=0"`
	Previous FlexInt `json:"previous" validate:"gte=0"`
}

// Name resolves the system's display name.
func (c SystemCitations) Name() string {
	return SystemName(c.Code)
}
