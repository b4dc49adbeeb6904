package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/counsel-scripture-api/internal/models"
	"github.com/counsel-scripture-api/internal/repository"
	pkgconfig "github.com/counsel-scripture-api/pkg/schema/config"
	pkgservices "github.com/counsel-scripture-api/pkg/schema/services"
)

func TestSelectVersionID(t *testing.T) {
	tests := []struct {
		locale string
		want   string
	}{
		{"ko-KR", "krv"},
		{"ko", "krv"},
		{"en-US", "eng-web"},
		{"ja-JP", "eng-web"},
		{"", "krv"},
	}
	for _, tt := range tests {
		if got := SelectVersionID(tt.locale); got != tt.want {
			t.Errorf("SelectVersionID(%q) = %q, want %q", tt.locale, got, tt.want)
		}
	}
}

func TestSelectCitationVersionID(t *testing.T) {
	tests := []struct {
		name   string
		locale string
		text   string
		want   string
	}{
		{"hangul text wins", "en-US", "요즘 너무 불안해요", "krv"},
		{"latin text wins", "ko-KR", "I feel anxious", "eng-web"},
		{"no script falls back to locale", "en-US", "1234", "eng-web"},
		{"empty text korean locale", "ko-KR", "", "krv"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SelectCitationVersionID(tt.locale, tt.text); got != tt.want {
				t.Errorf("SelectCitationVersionID(%q, %q) = %q, want %q", tt.locale, tt.text, got, tt.want)
			}
		})
	}
}

func TestConversationStore(t *testing.T) {
	store := NewConversationStore(nil)
	ctx := context.Background()

	conv := store.Create(ctx, "device-1", "ko-KR", "krv", false)
	if conv.ConversationID == "" || strings.Contains(conv.ConversationID, "-") {
		t.Errorf("conversation id = %q", conv.ConversationID)
	}

	store.AddMessage(ctx, conv.ConversationID, "user", "안녕하세요")
	got, ok := store.Get(ctx, conv.ConversationID)
	if !ok || len(got.Messages) != 1 {
		t.Fatalf("Get after AddMessage: ok=%v messages=%d", ok, len(got.Messages))
	}

	// The returned record is a copy; mutating it must not leak into the store.
	got.Messages[0].Content = "변조"
	again, _ := store.Get(ctx, conv.ConversationID)
	if again.Messages[0].Content != "안녕하세요" {
		t.Error("store record was mutated through a returned copy")
	}

	store.SetSummary(ctx, conv.ConversationID, "요약")
	if withSummary, _ := store.Get(ctx, conv.ConversationID); withSummary.Summary != "요약" {
		t.Errorf("summary = %q", withSummary.Summary)
	}

	if !store.Delete(ctx, conv.ConversationID) {
		t.Error("delete existing conversation should report true")
	}
	if store.Delete(ctx, conv.ConversationID) {
		t.Error("delete missing conversation should report false")
	}
	if _, ok := store.Get(ctx, conv.ConversationID); ok {
		t.Error("conversation survived deletion")
	}
}

// counselorLLM answers the gating prompt with JSON and every other prompt
// with a fixed Korean reply.
func counselorLLM(t *testing.T) *pkgservices.CompletionService {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Prompt string `json:"prompt"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		response := "많이 힘드셨겠어요. 요즘 어떤 순간이 가장 어려우신가요?"
		if strings.Contains(req.Prompt, "Return ONLY JSON") {
			response = `{"need_verse": true, "topics": ["anxiety"], "user_goal": "위로", "risk_flags": []}`
		}
		json.NewEncoder(w).Encode(map[string]string{"response": response})
	}))
	t.Cleanup(srv.Close)
	return pkgservices.NewCompletionService(&pkgconfig.Config{
		OllamaURL:     srv.URL,
		OllamaModel:   "test-model",
		OllamaTimeout: 2 * time.Second,
	})
}

func newTestChatService(t *testing.T, llm *pkgservices.CompletionService, lexical *fakeLexicalRepo) (*ChatService, *fakeVerseRepo) {
	t.Helper()
	cfg := testPipelineConfig()
	events := testEventLogger(t)
	verses := newFakeVerseRepo()
	if lexical == nil {
		lexical = &fakeLexicalRepo{resultsFor: func(query string) []models.SearchItem {
			if strings.Contains(query, "불안") || strings.Contains(query, "두려") {
				return []models.SearchItem{{
					BookID: 19, BookName: "시편", Chapter: 56, Verse: 3,
					Text: "내가 두려워하는 날에는 주를 의지하리이다",
					Rank: 0.2, TrgmSim: 0.1,
				}}
			}
			return nil
		}}
	}
	retrieval := NewRetrievalService(lexical, nil, nil, NewKeywordExtractor(nil), NewSynonymExpander(nil), nil, events, cfg)
	gating := NewGatingService(llm, events, cfg.LLMSlowMs)
	chat := NewChatService(NewConversationStore(nil), verses, retrieval, gating, NewCitationVerifier(verses), events, cfg)
	return chat, verses
}

func createTestConversation(t *testing.T, chat *ChatService) string {
	t.Helper()
	conv := chat.CreateConversation(context.Background(), models.ChatCreateRequest{Locale: "ko-KR"})
	if conv.VersionID != "krv" {
		t.Fatalf("conversation version = %q", conv.VersionID)
	}
	return conv.ConversationID
}

func TestPostMessageAnxietyTurn(t *testing.T) {
	chat, _ := newTestChatService(t, counselorLLM(t), nil)
	id := createTestConversation(t, chat)

	resp, err := chat.PostMessage(context.Background(), id, "요즘 너무 불안하고 두려워요")
	if err != nil {
		t.Fatal(err)
	}
	if !resp.Memory.Gating.NeedVerse {
		t.Error("anxiety turn should need a verse")
	}
	if resp.Memory.Gating.Source != models.GatingSourceRule {
		t.Errorf("gating source = %v, want rule", resp.Memory.Gating.Source)
	}
	if len(resp.Citations) != 1 {
		t.Fatalf("citations = %+v", resp.Citations)
	}
	block := FormatCitation(resp.Citations[0])
	if !strings.HasSuffix(resp.AssistantMessage, block) {
		t.Errorf("assistant message missing citation block:\n%s", resp.AssistantMessage)
	}
	if !strings.Contains(resp.AssistantMessage, "힘드셨겠어요") {
		t.Errorf("generated reply missing:\n%s", resp.AssistantMessage)
	}

	conv, err := chat.GetConversation(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	if len(conv.Messages) != 2 {
		t.Errorf("conversation should hold user and assistant turns, got %d", len(conv.Messages))
	}
}

func TestPostMessageDirectReference(t *testing.T) {
	chat, _ := newTestChatService(t, counselorLLM(t), nil)
	id := createTestConversation(t, chat)

	resp, err := chat.PostMessage(context.Background(), id, "창1:1 말씀 주세요")
	if err != nil {
		t.Fatal(err)
	}
	if !resp.Memory.DirectReference {
		t.Error("direct reference flag not set")
	}
	if resp.Memory.Gating.Source != models.GatingSourceDirectReference {
		t.Errorf("gating source = %v", resp.Memory.Gating.Source)
	}
	if len(resp.Citations) != 1 {
		t.Fatalf("citations = %+v", resp.Citations)
	}
	c := resp.Citations[0]
	if c.BookName != "창세기" || c.Chapter != 1 || c.VerseStart != 1 {
		t.Errorf("citation = %+v", c)
	}
	if !strings.Contains(resp.AssistantMessage, "(창세기 1:1) 태초에 하나님이 천지를 창조하시니라") {
		t.Errorf("assistant message = %q", resp.AssistantMessage)
	}
}

func TestPostMessageDirectReferenceRange(t *testing.T) {
	chat, _ := newTestChatService(t, counselorLLM(t), nil)
	id := createTestConversation(t, chat)

	resp, err := chat.PostMessage(context.Background(), id, "창세기 1:1-2 보여줘")
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Citations) != 2 {
		t.Fatalf("range citations = %+v", resp.Citations)
	}
	if resp.Citations[1].VerseStart != 2 {
		t.Errorf("second citation = %+v", resp.Citations[1])
	}
}

func TestPostMessageDirectReferenceNotFound(t *testing.T) {
	chat, _ := newTestChatService(t, counselorLLM(t), nil)
	id := createTestConversation(t, chat)

	resp, err := chat.PostMessage(context.Background(), id, "없는책 3:16 주세요")
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Citations) != 0 {
		t.Errorf("citations for unknown book = %+v", resp.Citations)
	}
	if resp.AssistantMessage == "" {
		t.Error("not-found turn still needs a user-facing message")
	}
}

func TestPostMessageCrisis(t *testing.T) {
	chat, _ := newTestChatService(t, counselorLLM(t), nil)
	id := createTestConversation(t, chat)

	resp, err := chat.PostMessage(context.Background(), id, "자살하고 싶다는 생각이 들어요")
	if err != nil {
		t.Fatal(err)
	}
	if resp.AssistantMessage != CrisisResponse {
		t.Errorf("crisis turn must return the fixed safety reply:\n%s", resp.AssistantMessage)
	}
	if len(resp.Citations) != 0 {
		t.Errorf("crisis turn must carry zero citations: %+v", resp.Citations)
	}
	if resp.Memory.Gating.Source != models.GatingSourceCrisis {
		t.Errorf("gating source = %v", resp.Memory.Gating.Source)
	}
	if resp.Memory.Gating.NeedVerse {
		t.Error("crisis turn must not need a verse")
	}
}

func TestPostMessageDegraded(t *testing.T) {
	chat, _ := newTestChatService(t, downLLM(t), nil)
	id := createTestConversation(t, chat)

	resp, err := chat.PostMessage(context.Background(), id, "요즘 너무 불안하고 두려워요")
	if err != nil {
		t.Fatal(err)
	}
	if resp.AssistantMessage != DegradedResponse {
		t.Errorf("degraded message = %q", resp.AssistantMessage)
	}
	if len(resp.Citations) != 0 {
		t.Errorf("degraded turn must carry zero citations: %+v", resp.Citations)
	}
	if resp.Memory.Gating.NeedVerse {
		t.Error("generation failure must force need_verse=false")
	}
	if resp.Memory.Gating.Source != models.GatingSourceDegraded {
		t.Errorf("gating source = %v", resp.Memory.Gating.Source)
	}
}

func TestPostMessageInfoRequestSkipsCitations(t *testing.T) {
	chat, _ := newTestChatService(t, counselorLLM(t), nil)
	id := createTestConversation(t, chat)

	// The LLM says a verse is needed, but the info-request rule wins.
	resp, err := chat.PostMessage(context.Background(), id, "삼위일체의 뜻이 뭐야?")
	if err != nil {
		t.Fatal(err)
	}
	if resp.Memory.Gating.NeedVerse {
		t.Error("info request must not need a verse")
	}
	if len(resp.Citations) != 0 {
		t.Errorf("info request citations = %+v", resp.Citations)
	}
}

func TestPostMessageMasksPII(t *testing.T) {
	chat, _ := newTestChatService(t, counselorLLM(t), nil)
	id := createTestConversation(t, chat)

	if _, err := chat.PostMessage(context.Background(), id, "제 번호는 010-1234-5678 인데 너무 불안해요"); err != nil {
		t.Fatal(err)
	}
	conv, err := chat.GetConversation(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	stored := conv.Messages[0].Content
	if strings.Contains(stored, "010-1234-5678") || !strings.Contains(stored, "[PHONE]") {
		t.Errorf("stored message leaks PII: %q", stored)
	}
}

func TestPostMessageUnknownConversation(t *testing.T) {
	chat, _ := newTestChatService(t, counselorLLM(t), nil)
	if _, err := chat.PostMessage(context.Background(), "missing", "안녕하세요"); err != repository.ErrNotFound {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestPostMessageForcedFallbackCitations(t *testing.T) {
	empty := &fakeLexicalRepo{resultsFor: func(query string) []models.SearchItem { return nil }}
	chat, _ := newTestChatService(t, counselorLLM(t), empty)
	chat.cfg.ForceFallbackCitations = true
	id := createTestConversation(t, chat)

	resp, err := chat.PostMessage(context.Background(), id, "위로가 되는 말씀 부탁해요")
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Citations) != 2 {
		t.Fatalf("forced fallback citations = %+v", resp.Citations)
	}
	if resp.Citations[0].BookID != 19 || resp.Citations[0].Chapter != 23 {
		t.Errorf("first fallback citation = %+v", resp.Citations[0])
	}
	if resp.Citations[1].BookID != 40 || resp.Citations[1].Chapter != 11 {
		t.Errorf("second fallback citation = %+v", resp.Citations[1])
	}
}
