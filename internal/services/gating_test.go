package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/counsel-scripture-api/internal/models"
	pkgconfig "github.com/counsel-scripture-api/pkg/schema/config"
	pkgservices "github.com/counsel-scripture-api/pkg/schema/services"
)

func TestMaskPII(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"제 번호는 010-1234-5678 이에요", "제 번호는 [PHONE] 이에요"},
		{"생년월일은 901231-1234567 입니다", "생년월일은 [RRN] 입니다"},
		{"계좌는 123-45-67890 이에요", "계좌는 [BANK] 이에요"},
		{"그냥 평범한 문장", "그냥 평범한 문장"},
	}
	for _, tt := range tests {
		if got := MaskPII(tt.input); got != tt.want {
			t.Errorf("MaskPII(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestRiskFlags(t *testing.T) {
	for _, text := range []string{"자살하고 싶어요", "자해를 했어요", "그냥 죽고 싶어요", "다 끝내고 싶어"} {
		if flags := RiskFlags(text); len(flags) != 1 || flags[0] != "self_harm" {
			t.Errorf("RiskFlags(%q) = %v, want [self_harm]", text, flags)
		}
	}
	if flags := RiskFlags("오늘 기분이 좋아요"); flags != nil {
		t.Errorf("RiskFlags on safe text = %v", flags)
	}
}

func TestRuleBasedGating(t *testing.T) {
	tests := []struct {
		name      string
		message   string
		needVerse models.NeedVerse
		trigger   []string
		exclude   []string
	}{
		{
			name:      "explicit verse request",
			message:   "위로가 되는 말씀 하나 알려줘",
			needVerse: models.NeedVerseYes,
			trigger:   []string{"explicit_request"},
		},
		{
			name:      "strong emotion",
			message:   "요즘 너무 불안하고 두려워요",
			needVerse: models.NeedVerseYes,
			trigger:   []string{"strong_emotion"},
		},
		{
			name:      "info question",
			message:   "삼위일체의 뜻이 뭐야?",
			needVerse: models.NeedVerseNo,
			exclude:   []string{"info_request"},
		},
		{
			name:      "small talk",
			message:   "안녕하세요 ㅎㅎㅎ",
			needVerse: models.NeedVerseNo,
			exclude:   []string{"small_talk"},
		},
		{
			name:      "neutral defers",
			message:   "오늘 회사에서 회의가 있었어요",
			needVerse: models.NeedVerseDefer,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verdict := ruleBasedGating(tt.message, "", nil)
			if verdict.NeedVerse != tt.needVerse {
				t.Errorf("NeedVerse = %v, want %v", verdict.NeedVerse, tt.needVerse)
			}
			if tt.trigger != nil && !reflect.DeepEqual(verdict.TriggerReason, tt.trigger) {
				t.Errorf("TriggerReason = %v, want %v", verdict.TriggerReason, tt.trigger)
			}
			if tt.exclude != nil && !reflect.DeepEqual(verdict.ExcludeReason, tt.exclude) {
				t.Errorf("ExcludeReason = %v, want %v", verdict.ExcludeReason, tt.exclude)
			}
		})
	}
}

func TestRuleBasedGatingSummaryCarriesTopics(t *testing.T) {
	// The current message is neutral but the summary holds the emotional
	// context, so the rule layer still fires.
	verdict := ruleBasedGating("네 맞아요", "사용자는 계속되는 불안과 걱정을 호소함", nil)
	if verdict.NeedVerse != models.NeedVerseYes {
		t.Errorf("NeedVerse = %v, want yes from summary topics", verdict.NeedVerse)
	}
	if len(verdict.Topics) == 0 || verdict.Topics[0] != "anxiety" {
		t.Errorf("Topics = %v, want anxiety first", verdict.Topics)
	}
}

func llmServer(t *testing.T, response string) *pkgservices.CompletionService {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"response": response})
	}))
	t.Cleanup(srv.Close)
	return pkgservices.NewCompletionService(&pkgconfig.Config{
		OllamaURL:     srv.URL,
		OllamaModel:   "test-model",
		OllamaTimeout: 2 * time.Second,
	})
}

func downLLM(t *testing.T) *pkgservices.CompletionService {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)
	return pkgservices.NewCompletionService(&pkgconfig.Config{
		OllamaURL:     srv.URL,
		OllamaModel:   "test-model",
		OllamaTimeout: 2 * time.Second,
	})
}

func TestGateNeedVerseRuleOverridesLLM(t *testing.T) {
	// LLM says no verse is needed; the explicit request rule must win.
	llm := llmServer(t, `{"need_verse": false, "topics": ["peace"], "user_goal": "위로", "risk_flags": []}`)
	g := NewGatingService(llm, testEventLogger(t), 2000)

	decision := g.GateNeedVerse(context.Background(), "위로가 되는 말씀 알려줘", "", nil)
	if !decision.NeedVerse {
		t.Error("explicit request must force need_verse=true over the LLM")
	}
	if decision.Source != models.GatingSourceRule {
		t.Errorf("Source = %v, want rule", decision.Source)
	}
	if !decision.LLMOk {
		t.Error("LLMOk should be true when the LLM answered")
	}
	if decision.UserGoal != "위로" {
		t.Errorf("UserGoal = %q, want LLM value preserved", decision.UserGoal)
	}
}

func TestGateNeedVerseLLMDecidesWhenRulesDefer(t *testing.T) {
	llm := llmServer(t, `{"need_verse": true, "topics": ["guidance"], "user_goal": "", "risk_flags": []}`)
	g := NewGatingService(llm, testEventLogger(t), 2000)

	decision := g.GateNeedVerse(context.Background(), "오늘 회사에서 회의가 있었어요", "", nil)
	if !decision.NeedVerse {
		t.Error("deferred rules should let the LLM decide")
	}
	if decision.Source != models.GatingSourceLLM {
		t.Errorf("Source = %v, want llm", decision.Source)
	}
}

func TestGateNeedVerseTopicsUnion(t *testing.T) {
	llm := llmServer(t, `{"need_verse": true, "topics": ["peace", "anxiety"], "user_goal": "", "risk_flags": []}`)
	g := NewGatingService(llm, testEventLogger(t), 2000)

	decision := g.GateNeedVerse(context.Background(), "요즘 너무 불안해요", "", nil)
	// LLM topics first, rule topics appended, anxiety deduplicated.
	want := []string{"peace", "anxiety"}
	if !reflect.DeepEqual(decision.Topics, want) {
		t.Errorf("Topics = %v, want %v", decision.Topics, want)
	}
}

func TestGateNeedVerseLLMFailure(t *testing.T) {
	g := NewGatingService(downLLM(t), testEventLogger(t), 2000)

	decision := g.GateNeedVerse(context.Background(), "요즘 너무 불안해요", "", nil)
	if decision.LLMOk {
		t.Error("LLMOk must be false when the LLM fails")
	}
	if decision.Source != models.GatingSourceRule {
		t.Errorf("Source = %v, want rule", decision.Source)
	}
	if !decision.NeedVerse {
		t.Error("rule layer should still gate on strong emotion")
	}

	// A deferred rule with a failed LLM resolves to no verse.
	neutral := g.GateNeedVerse(context.Background(), "오늘 회사에서 회의가 있었어요", "", nil)
	if neutral.NeedVerse {
		t.Error("deferred rule with failed LLM must resolve to false")
	}
}

func TestGateNeedVerseUnparseableLLM(t *testing.T) {
	llm := llmServer(t, "물론이죠! 구절이 필요해 보입니다.")
	g := NewGatingService(llm, testEventLogger(t), 2000)

	decision := g.GateNeedVerse(context.Background(), "오늘 회사에서 회의가 있었어요", "", nil)
	if decision.LLMOk {
		t.Error("unparseable output must count as LLM failure")
	}
	if decision.NeedVerse {
		t.Error("no rule opinion plus unparseable LLM must yield false")
	}
}

func TestBuildAssistantMessage(t *testing.T) {
	llm := llmServer(t, "많이 힘드셨겠어요. 요즘 어떤 순간에 가장 불안하신가요?")
	g := NewGatingService(llm, testEventLogger(t), 2000)

	msg, ok := g.BuildAssistantMessage(context.Background(), "불안해요", models.GatingDecision{}, "", nil)
	if !ok || !strings.Contains(msg, "힘드셨겠어요") {
		t.Errorf("BuildAssistantMessage = (%q, %v)", msg, ok)
	}
}

func TestBuildAssistantMessageDegraded(t *testing.T) {
	g := NewGatingService(downLLM(t), testEventLogger(t), 2000)

	msg, ok := g.BuildAssistantMessage(context.Background(), "불안해요", models.GatingDecision{}, "", nil)
	if ok {
		t.Error("generation failure must report ok=false")
	}
	if msg != DegradedResponse {
		t.Errorf("degraded message = %q", msg)
	}
}

func TestSummarizeMessagesFallback(t *testing.T) {
	g := NewGatingService(nil, testEventLogger(t), 2000)
	messages := []models.Message{
		{Role: "user", Content: "첫 번째 고민"},
		{Role: "assistant", Content: "들어드릴게요"},
		{Role: "user", Content: "두 번째 고민"},
		{Role: "user", Content: "세 번째 고민"},
		{Role: "user", Content: "네 번째 고민"},
	}
	got := g.SummarizeMessages(context.Background(), messages, "", 800)
	want := "두 번째 고민 / 세 번째 고민 / 네 번째 고민"
	if got != want {
		t.Errorf("fallback summary = %q, want %q", got, want)
	}
}

func TestSummarizeMessagesTruncates(t *testing.T) {
	llm := llmServer(t, strings.Repeat("가", 900))
	g := NewGatingService(llm, testEventLogger(t), 2000)
	got := g.SummarizeMessages(context.Background(), []models.Message{{Role: "user", Content: "고민"}}, "", 800)
	if len([]rune(got)) != 800 {
		t.Errorf("summary length = %d runes, want 800", len([]rune(got)))
	}
}
