package vm

// PipelineState is the driver's per-step status, reported for debugger/API
// consumption; it has no effect on execution semantics.
type PipelineState int

const (
	PipelineRunning PipelineState = iota
	PipelineStalled
	PipelineHalted
	PipelineDMAActive
	PipelineFaulted
)

func (s PipelineState) String() string {
	switch s {
	case PipelineRunning:
		return "RUNNING"
	case PipelineStalled:
		return "STALLED"
	case PipelineHalted:
		return "HALTED"
	case PipelineDMAActive:
		return "DMA_ACTIVE"
	case PipelineFaulted:
		return "FAULTED"
	default:
		return "UNKNOWN"
	}
}
