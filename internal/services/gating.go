package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/counsel-scripture-api/internal/models"
	pkgservices "github.com/counsel-scripture-api/pkg/schema/services"
)

// MaskPII replaces phone, resident-registration, and bank-account shaped
// numbers before the message is processed or persisted
func MaskPII(text string) string {
	masked := text
	for _, p := range piiPatterns {
		masked = p.re.ReplaceAllString(masked, p.repl)
	}
	return masked
}

// RiskFlags returns self-harm flags detected in text
func RiskFlags(text string) []string {
	for _, pat := range riskPatterns {
		if pat.MatchString(text) {
			return []string{"self_harm"}
		}
	}
	return nil
}

func explicitVerseRequest(text string) bool {
	lowered := strings.ToLower(text)
	for _, keyword := range verseRequestKeywords {
		if strings.Contains(lowered, keyword) {
			return true
		}
	}
	return false
}

// recentUserTexts returns the last few non-empty user messages
func recentUserTexts(recent []models.Message, limit int) []string {
	var userTexts []string
	for _, m := range recent {
		if m.Role == "user" && m.Content != "" {
			userTexts = append(userTexts, m.Content)
		}
	}
	if len(userTexts) > limit {
		userTexts = userTexts[len(userTexts)-limit:]
	}
	return userTexts
}

// buildContextText joins the current message, recent user messages, and the
// running summary into one retrieval/gating context string
func buildContextText(userMessage, summary string, recent []models.Message) string {
	parts := []string{userMessage}
	recentTexts := recentUserTexts(recent, 3)
	if len(recentTexts) > 0 && recentTexts[len(recentTexts)-1] == userMessage {
		recentTexts = recentTexts[:len(recentTexts)-1]
	}
	parts = append(parts, recentTexts...)
	if summary != "" {
		parts = append(parts, summary)
	}
	var nonEmpty []string
	for _, part := range parts {
		if part != "" {
			nonEmpty = append(nonEmpty, part)
		}
	}
	return strings.Join(nonEmpty, " ")
}

func containsAny(text string, keywords []string) bool {
	for _, keyword := range keywords {
		if strings.Contains(text, keyword) {
			return true
		}
	}
	return false
}

// isInfoRequest classifies informational questions: question markers or
// keywords with no topic match and no explicit verse request
func isInfoRequest(text string, topics []string) bool {
	if text == "" || len(topics) > 0 {
		return false
	}
	if containsAny(text, closingKeywords) || explicitVerseRequest(text) {
		return false
	}
	lowered := strings.ToLower(text)
	if containsAny(lowered, infoQuestionKeywords) {
		return true
	}
	return strings.Contains(text, "?")
}

// isSmallTalk classifies greetings, gratitude, and repeated-character
// emphasis as small talk
func isSmallTalk(text string) bool {
	if text == "" {
		return false
	}
	if containsAny(text, closingKeywords) || explicitVerseRequest(text) {
		return false
	}
	if smallTalkPattern.MatchString(text) {
		return true
	}
	return containsAny(strings.ToLower(text), smallTalkKeywords)
}

// ruleBasedGating evaluates the rule layer. NeedVerseDefer means no rule
// fired and the LLM signal decides.
func ruleBasedGating(userMessage, summary string, recent []models.Message) models.RuleVerdict {
	contextText := buildContextText(userMessage, summary, recent)
	topics := InferTopics(contextText)
	explicitRequest := explicitVerseRequest(userMessage) || explicitVerseRequest(contextText)
	closingStage := containsAny(contextText, closingKeywords)
	infoRequest := isInfoRequest(userMessage, topics)
	smallTalk := isSmallTalk(userMessage)

	var triggerReason []string
	if explicitRequest {
		triggerReason = append(triggerReason, "explicit_request")
	}
	if len(topics) > 0 {
		triggerReason = append(triggerReason, "strong_emotion")
	}
	if closingStage {
		triggerReason = append(triggerReason, "closing_stage")
	}

	var excludeReason []string
	if infoRequest {
		excludeReason = append(excludeReason, "info_request")
	}
	if smallTalk {
		excludeReason = append(excludeReason, "small_talk")
	}

	var needVerse models.NeedVerse
	switch {
	case explicitRequest:
		needVerse = models.NeedVerseYes
	case infoRequest || smallTalk:
		needVerse = models.NeedVerseNo
	case len(topics) > 0 || closingStage:
		needVerse = models.NeedVerseYes
	default:
		needVerse = models.NeedVerseDefer
	}

	return models.RuleVerdict{
		NeedVerse:     needVerse,
		Topics:        topics,
		TriggerReason: triggerReason,
		ExcludeReason: excludeReason,
	}
}

// GatingService decides whether a turn needs a verse citation by merging the
// rule layer with the LLM signal
type GatingService struct {
	llm    *pkgservices.CompletionService
	events *EventLogger
	slowMs int
}

// NewGatingService creates a gating service. llm may be nil; gating then runs
// on rules alone.
func NewGatingService(llm *pkgservices.CompletionService, events *EventLogger, slowMs int) *GatingService {
	return &GatingService{llm: llm, events: events, slowMs: slowMs}
}

type llmGatingPayload struct {
	NeedVerse bool     `json:"need_verse"`
	Topics    []string `json:"topics"`
	UserGoal  string   `json:"user_goal"`
	RiskFlags []string `json:"risk_flags"`
}

// complete runs the LLM with latency telemetry; any failure yields ""
func (g *GatingService) complete(ctx context.Context, prompt string) string {
	if g.llm == nil {
		return ""
	}
	start := time.Now()
	response, err := g.llm.Complete(ctx, prompt)
	elapsedMs := time.Since(start).Milliseconds()
	if err != nil {
		g.events.Log("llm_error", map[string]interface{}{
			"model": g.llm.Model(),
			"error": "request_failed",
		})
		return ""
	}
	g.events.Log("llm_latency", map[string]interface{}{
		"model":      g.llm.Model(),
		"elapsed_ms": elapsedMs,
	})
	if elapsedMs > int64(g.slowMs) {
		g.events.Log("llm_slow", map[string]interface{}{
			"model":      g.llm.Model(),
			"elapsed_ms": elapsedMs,
		})
	}
	return response
}

// GateNeedVerse produces the per-turn gating decision. The rule layer's
// opinion, when present, always overrides the LLM boolean; topics are the
// order-preserving union of both layers.
func (g *GatingService) GateNeedVerse(ctx context.Context, userMessage, summary string, recent []models.Message) models.GatingDecision {
	contextText := buildContextText(userMessage, summary, recent)
	prompt := "Return ONLY JSON. Decide if a Bible verse citation is needed.\n" +
		fmt.Sprintf("Summary: %s\n", summary) +
		fmt.Sprintf("Recent: %s\n", contextText) +
		fmt.Sprintf("User message: %s\n", userMessage) +
		`Format: {"need_verse": true|false, "topics": [], "user_goal": "", "risk_flags": []}`

	response := g.complete(ctx, prompt)
	rule := ruleBasedGating(userMessage, summary, recent)

	var payload llmGatingPayload
	if response != "" && pkgservices.ExtractJSON(response, &payload) {
		decision := models.GatingDecision{
			NeedVerse:     payload.NeedVerse,
			Topics:        dedupeTerms(append(append([]string{}, payload.Topics...), rule.Topics...)),
			UserGoal:      payload.UserGoal,
			RiskFlags:     payload.RiskFlags,
			LLMOk:         true,
			Source:        models.GatingSourceLLM,
			TriggerReason: rule.TriggerReason,
			ExcludeReason: rule.ExcludeReason,
		}
		if decision.RiskFlags == nil {
			decision.RiskFlags = []string{}
		}
		if rule.NeedVerse != models.NeedVerseDefer {
			decision.NeedVerse = rule.NeedVerse == models.NeedVerseYes
			decision.Source = models.GatingSourceRule
		}
		return decision
	}

	// LLM had no opinion; the rule verdict stands, deferring to false.
	return models.GatingDecision{
		NeedVerse:     rule.NeedVerse == models.NeedVerseYes,
		Topics:        rule.Topics,
		UserGoal:      "",
		RiskFlags:     []string{},
		LLMOk:         false,
		Source:        models.GatingSourceRule,
		TriggerReason: rule.TriggerReason,
		ExcludeReason: rule.ExcludeReason,
	}
}

// SummarizeMessages compresses the conversation into a Korean summary of at
// most maxChars, falling back to the last user lines when the LLM is down
func (g *GatingService) SummarizeMessages(ctx context.Context, messages []models.Message, previousSummary string, maxChars int) string {
	var lines []string
	for _, m := range messages {
		lines = append(lines, m.Role+": "+m.Content)
	}
	prompt := "Summarize the conversation in Korean within 800 characters. " +
		"Include: user situation, emotions, repeated concerns, and preferences.\n" +
		fmt.Sprintf("Previous summary:\n%s\n\nConversation:\n%s\n", previousSummary, strings.Join(lines, "\n"))

	if response := g.complete(ctx, prompt); response != "" {
		return truncateRunes(strings.TrimSpace(response), maxChars)
	}

	var userLines []string
	for _, m := range messages {
		if m.Role == "user" {
			userLines = append(userLines, m.Content)
		}
	}
	if len(userLines) > 3 {
		userLines = userLines[len(userLines)-3:]
	}
	return truncateRunes(strings.Join(userLines, " / "), maxChars)
}

// BuildAssistantMessage generates the counseling reply. The bool reports
// whether generation succeeded; on failure the fixed degraded message is
// returned and the caller must force degraded mode.
func (g *GatingService) BuildAssistantMessage(ctx context.Context, userMessage string, gating models.GatingDecision, summary string, recent []models.Message) (string, bool) {
	var recentLines []string
	for _, m := range recent {
		recentLines = append(recentLines, m.Role+": "+m.Content)
	}
	prompt := "You are a gentle Korean counselor. Avoid preaching. Ask 1-2 questions. " +
		"Keep it concise. Respond ONLY in Korean and do not use English.\n" +
		fmt.Sprintf("Summary: %s\n", summary) +
		fmt.Sprintf("Recent:\n%s\n", strings.Join(recentLines, "\n")) +
		fmt.Sprintf("Gating: need_verse=%t topics=%s\n", gating.NeedVerse, strings.Join(gating.Topics, ",")) +
		fmt.Sprintf("User: %s\n", userMessage)

	if response := g.complete(ctx, prompt); response != "" {
		return strings.TrimSpace(response), true
	}
	return DegradedResponse, false
}

func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
