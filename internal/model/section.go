package model

// SectionName identifies a named sub-document of a charter.
type SectionName string

// Sections recognized by the default charter schema.
const (
	SectionCurrentState         SectionName = "current_state"
	SectionObjectives           SectionName = "objectives"
	SectionFutureState          SectionName = "future_state"
	SectionHighLevelRequirement SectionName = "high_level_requirement"
	SectionBusinessBenefit      SectionName = "business_benefit"
	SectionProjectScope         SectionName = "project_scope"
	SectionBudgetBreakdown      SectionName = "budget_breakdown"
	SectionTimeline             SectionName = "timeline"
	SectionSuccessCriteria      SectionName = "success_criteria"
	SectionAssumptions          SectionName = "assumptions"
	SectionDependencies         SectionName = "dependencies"
	SectionRisks                SectionName = "risks_and_mitigation"
	SectionProjectManager       SectionName = "project_manager"
	SectionPMRecommendation     SectionName = "pm_resource_recommendation"
	SectionLessonsLearnt        SectionName = "lesson_learnt"
)

// DefaultSections lists the built-in section names in document order.
var DefaultSections = []SectionName{
	SectionCurrentState,
	SectionObjectives,
	SectionFutureState,
	SectionHighLevelRequirement,
	SectionBusinessBenefit,
	SectionProjectScope,
	SectionBudgetBreakdown,
	SectionTimeline,
	SectionSuccessCriteria,
	SectionAssumptions,
	SectionDependencies,
	SectionRisks,
	SectionProjectManager,
	SectionPMRecommendation,
	SectionLessonsLearnt,
}

// String returns the string representation of the section name.
func (s SectionName) String() string {
	return string(s)
}
