package compliance

import "strings"

// System is one of the six inspection systems FDA uses to classify drug GMP observations.
type System struct {
	Code        string
	Name        string
	Subsystems  []string
	Description string
}

var systems = []System{
	{
		Code: "QS", Name: "Quality System",
		Description: "Overall compliance with cGMP, including the quality unit and its review and approval duties.",
		Subsystems: []string{
			"Quality unit responsibilities",
			"Product reviews",
			"Complaints",
			"Deviations and investigations",
			"Change control",
			"Returns and salvage",
			"Rejects and reprocessing",
			"Training",
		},
	},
	{
		Code: "FE", Name: "Facilities and Equipment",
		Description: "Physical plant and the equipment used to manufacture the product.",
		Subsystems: []string{
			"Buildings and facilities",
			"Cleaning and maintenance",
			"Equipment design and qualification",
			"Calibration",
			"Utilities",
			"Contamination controls",
		},
	},
	{
		Code: "MS", Name: "Materials System",
		Description: "Control of components, containers, closures and finished product.",
		Subsystems: []string{
			"Component testing and release",
			"Supplier qualification",
			"Storage and inventory",
			"Water and process gases",
			"Distribution",
		},
	},
	{
		Code: "PS", Name: "Production System",
		Description: "Manufacture of drugs, including in-process controls and process validation.",
		Subsystems: []string{
			"Batch records",
			"Process validation",
			"In-process testing",
			"Aseptic processing",
			"Yield reconciliation",
			"Time limits on production",
		},
	},
	{
		Code: "PL", Name: "Packaging and Labeling",
		Description: "Control of packaging and labeling operations and label issuance.",
		Subsystems: []string{
			"Label control and issuance",
			"Packaging operations",
			"Expiration dating",
			"Line clearance",
		},
	},
	{
		Code: "LC", Name: "Laboratory Control",
		Description: "Laboratory procedures, testing, analytical method validation and stability.",
		Subsystems: []string{
			"Laboratory controls",
			"Method validation",
			"Stability program",
			"Out-of-specification investigations",
			"Reserve samples",
			"Data integrity",
		},
	},
}

var systemsByCode = func() map[string]System {
	m := make(map[string]System, len(systems))
	for _, s := range systems {
		m[s.Code] = s
	}
	return m
}()

// Systems returns the six systems in their conventional order.
func Systems() []System {
	out := make([]System, len(systems))
	copy(out, systems)
	return out
}

// LookupSystem resolves a system by code, case-insensitively.
func LookupSystem(code string) (System, bool) {
	s, ok := systemsByCode[strings.ToUpper(strings.TrimSpace(code))]
	return s, ok
}

// SystemName returns the display name for code, or the code itself when unknown.
func SystemName(code string) string {
	if s, ok := LookupSystem(code); ok {
		return s.Name
	}
	return code
}
