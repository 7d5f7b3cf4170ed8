package project

// Stage identifies one pipeline phase. Stages form a fixed chain: init
// registers samples, count produces per-sample k-mer databases, filter
// classifies k-mers by group coverage, extract pulls matching reads.
type Stage string

const (
	StageInit    Stage = "init"
	StageCount   Stage = "count"
	StageFilter  Stage = "filter"
	StageExtract Stage = "extract"
)

// stageOrder is the prerequisite chain, earliest first.
var stageOrder = []Stage{StageInit, StageCount, StageFilter, StageExtract}

// Prev returns the stage that must have completed before s may run, or ""
// for the first stage.
func (s Stage) Prev() Stage {
	for i, st := range stageOrder {
		if st == s && i > 0 {
			return stageOrder[i-1]
		}
	}
	return ""
}

func (s Stage) String() string { return string(s) }
