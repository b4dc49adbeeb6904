package models

// NeedVerse is the tri-state outcome of the rule-based gating layer. Defer
// means the rules have no opinion and the LLM signal decides.
type NeedVerse int

const (
	NeedVerseDefer NeedVerse = iota
	NeedVerseNo
	NeedVerseYes
)

// GatingSource records which layer produced the final gating decision
type GatingSource string

const (
	GatingSourceRule            GatingSource = "rule"
	GatingSourceLLM             GatingSource = "llm"
	GatingSourceDirectReference GatingSource = "direct_reference"
	GatingSourceCrisis          GatingSource = "crisis"
	GatingSourceDegraded        GatingSource = "degraded"
)

// RuleVerdict is the rule layer's opinion before merging with the LLM signal
type RuleVerdict struct {
	NeedVerse     NeedVerse
	Topics        []string
	TriggerReason []string
	ExcludeReason []string
}

// GatingDecision is the per-turn decision on whether a verse citation is
// needed. It exists only within one turn.
type GatingDecision struct {
	NeedVerse     bool         `json:"need_verse"`
	Topics        []string     `json:"topics"`
	UserGoal      string       `json:"user_goal"`
	RiskFlags     []string     `json:"risk_flags"`
	LLMOk         bool         `json:"llm_ok"`
	Source        GatingSource `json:"source"`
	TriggerReason []string     `json:"trigger_reason"`
	ExcludeReason []string     `json:"exclude_reason"`
}
