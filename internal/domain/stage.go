package domain

// Stage enumerates pipeline milestones for a (symbol, article) pair.
type Stage string

const (
	StageIdle       Stage = "idle"
	StageFetching   Stage = "fetching"
	StageEnriching  Stage = "enriching"
	StagePersisting Stage = "persisting"
	StageEvaluating Stage = "evaluating"
	StageCancelled  Stage = "cancelled"
)
