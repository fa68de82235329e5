package model

type FlowType string

const (
	FlowDataAnalysis FlowType = "data_analysis"
	FlowMarketing    FlowType = "marketing"
	FlowComplete     FlowType = "complete"
	FlowAuto         FlowType = "auto"
)

// Known reports whether t names one of the pipeline-backed flows.
// Anything else is answered by a single direct model completion.
func (t FlowType) Known() bool {
	switch t {
	case FlowDataAnalysis, FlowMarketing, FlowComplete:
		return true
	}
	return false
}
