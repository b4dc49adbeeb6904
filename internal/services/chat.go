package services

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/counsel-scripture-api/internal/config"
	"github.com/counsel-scripture-api/internal/models"
	"github.com/counsel-scripture-api/internal/repository"
	"github.com/google/uuid"
)

var (
	langKoRE    = regexp.MustCompile(`[가-힣]`)
	langOtherRE = regexp.MustCompile(`[A-Za-z\x{3040}-\x{30ff}\x{3400}-\x{9fff}]`)
)

// SelectVersionID picks the Bible version for a conversation locale
func SelectVersionID(locale string) string {
	if locale != "" && strings.HasPrefix(strings.ToLower(locale), "ko") {
		return "krv"
	}
	if locale != "" {
		return "eng-web"
	}
	return "krv"
}

// SelectCitationVersionID picks the citation version from the message script
// first, falling back to the conversation locale
func SelectCitationVersionID(locale, text string) string {
	if text != "" && langKoRE.MatchString(text) {
		return "krv"
	}
	if text != "" && langOtherRE.MatchString(text) {
		return "eng-web"
	}
	return SelectVersionID(locale)
}

// ConversationStore keeps conversations in memory for the session, with
// Postgres write-through when a conversation opted into message storage.
// Storage failures degrade to memory only.
type ConversationStore struct {
	mu            sync.RWMutex
	conversations map[string]*models.Conversation
	repo          repository.ConversationRepository
}

// NewConversationStore creates a conversation store. repo may be nil.
func NewConversationStore(repo repository.ConversationRepository) *ConversationStore {
	return &ConversationStore{
		conversations: map[string]*models.Conversation{},
		repo:          repo,
	}
}

// Create registers a new conversation
func (s *ConversationStore) Create(ctx context.Context, deviceID, locale, versionID string, storeMessages bool) *models.Conversation {
	conv := &models.Conversation{
		ConversationID: strings.ReplaceAll(uuid.NewString(), "-", ""),
		DeviceID:       deviceID,
		Locale:         locale,
		VersionID:      versionID,
		StoreMessages:  storeMessages,
		CreatedAt:      time.Now().UTC(),
		Messages:       []models.Message{},
	}
	if s.repo != nil && storeMessages {
		_ = s.repo.Insert(ctx, conv)
	}
	s.mu.Lock()
	s.conversations[conv.ConversationID] = conv
	s.mu.Unlock()
	return copyConversation(conv)
}

// Get returns a copy of the conversation, loading from Postgres when it is
// not resident
func (s *ConversationStore) Get(ctx context.Context, conversationID string) (*models.Conversation, bool) {
	s.mu.RLock()
	conv, ok := s.conversations[conversationID]
	s.mu.RUnlock()
	if ok {
		return copyConversation(conv), true
	}
	if s.repo == nil {
		return nil, false
	}
	loaded, err := s.repo.Get(ctx, conversationID)
	if err != nil {
		return nil, false
	}
	s.mu.Lock()
	s.conversations[conversationID] = loaded
	s.mu.Unlock()
	return copyConversation(loaded), true
}

// Delete removes a conversation from memory and storage
func (s *ConversationStore) Delete(ctx context.Context, conversationID string) bool {
	s.mu.Lock()
	_, existed := s.conversations[conversationID]
	delete(s.conversations, conversationID)
	s.mu.Unlock()
	if s.repo != nil {
		if deleted, err := s.repo.Delete(ctx, conversationID); err == nil {
			existed = existed || deleted
		}
	}
	return existed
}

// AddMessage appends a message to the conversation
func (s *ConversationStore) AddMessage(ctx context.Context, conversationID, role, content string) {
	msg := models.Message{Role: role, Content: content, CreatedAt: time.Now().UTC()}
	s.mu.Lock()
	conv, ok := s.conversations[conversationID]
	if ok {
		conv.Messages = append(conv.Messages, msg)
	}
	storeThrough := ok && conv.StoreMessages
	s.mu.Unlock()
	if storeThrough && s.repo != nil {
		_ = s.repo.AddMessage(ctx, conversationID, msg)
	}
}

// SetSummary updates the running summary
func (s *ConversationStore) SetSummary(ctx context.Context, conversationID, summary string) {
	s.mu.Lock()
	conv, ok := s.conversations[conversationID]
	if ok {
		conv.Summary = summary
	}
	storeThrough := ok && conv.StoreMessages
	s.mu.Unlock()
	if storeThrough && s.repo != nil {
		_ = s.repo.SetSummary(ctx, conversationID, summary)
	}
}

func copyConversation(conv *models.Conversation) *models.Conversation {
	dup := *conv
	dup.Messages = append([]models.Message{}, conv.Messages...)
	return &dup
}

// ChatService orchestrates one counseling turn: direct-reference override,
// crisis short-circuit, gating, generation, retrieval, verification, and the
// final citation enforcement.
type ChatService struct {
	store     *ConversationStore
	verses    repository.VerseRepository
	retrieval *RetrievalService
	gating    *GatingService
	verifier  *CitationVerifier
	events    *EventLogger
	cfg       *config.Config
}

// NewChatService creates a chat service
func NewChatService(
	store *ConversationStore,
	verses repository.VerseRepository,
	retrieval *RetrievalService,
	gating *GatingService,
	verifier *CitationVerifier,
	events *EventLogger,
	cfg *config.Config,
) *ChatService {
	return &ChatService{
		store:     store,
		verses:    verses,
		retrieval: retrieval,
		gating:    gating,
		verifier:  verifier,
		events:    events,
		cfg:       cfg,
	}
}

// CreateConversation starts a conversation with the locale's default version
func (s *ChatService) CreateConversation(ctx context.Context, req models.ChatCreateRequest) *models.Conversation {
	versionID := SelectVersionID(req.Locale)
	return s.store.Create(ctx, req.DeviceID, req.Locale, versionID, req.StoreMessages)
}

// GetConversation returns a conversation or repository.ErrNotFound
func (s *ChatService) GetConversation(ctx context.Context, conversationID string) (*models.Conversation, error) {
	conv, ok := s.store.Get(ctx, conversationID)
	if !ok {
		return nil, repository.ErrNotFound
	}
	return conv, nil
}

// DeleteConversation removes a conversation, reporting whether it existed
func (s *ChatService) DeleteConversation(ctx context.Context, conversationID string) bool {
	return s.store.Delete(ctx, conversationID)
}

// PostMessage handles one user turn end to end
func (s *ChatService) PostMessage(ctx context.Context, conversationID, userMessage string) (*models.ChatMessageResponse, error) {
	record, ok := s.store.Get(ctx, conversationID)
	if !ok {
		return nil, repository.ErrNotFound
	}

	sanitized := MaskPII(userMessage)
	citationVersionID := SelectCitationVersionID(record.Locale, sanitized)
	s.store.AddMessage(ctx, conversationID, "user", sanitized)
	record.Messages = append(record.Messages, models.Message{Role: "user", Content: sanitized, CreatedAt: time.Now().UTC()})
	s.events.Log("chat_message", map[string]interface{}{
		"conversation_id": conversationID,
		"role":            "user",
		"store_messages":  record.StoreMessages,
	})

	if ref := ExtractReference(sanitized); ref != nil {
		return s.directReferenceTurn(ctx, record, citationVersionID, ref)
	}

	if riskFlags := RiskFlags(sanitized); len(riskFlags) > 0 {
		return s.crisisTurn(ctx, record, riskFlags)
	}

	summary := record.Summary
	if len(record.Messages) >= s.cfg.SummaryTriggerTurns {
		summary = s.gating.SummarizeMessages(ctx, record.Messages, record.Summary, s.cfg.SummaryMaxChars)
		s.store.SetSummary(ctx, conversationID, summary)
	}

	recent := recentMessages(record.Messages, s.cfg.RecentTurns)
	gating := s.gating.GateNeedVerse(ctx, sanitized, summary, recent)
	assistantMessage, llmOk := s.gating.BuildAssistantMessage(ctx, sanitized, gating, summary, recent)
	gating.LLMOk = llmOk
	if !llmOk {
		// Never cite without a freshly generated response to attach to.
		gating.NeedVerse = false
		gating.Source = models.GatingSourceDegraded
	}

	citations := []models.Citation{}
	var retrievalMeta models.RetrievalMeta
	turnIndex := len(record.Messages)
	if gating.NeedVerse {
		s.events.Log("citation_attempt", map[string]interface{}{
			"conversation_id": conversationID,
			"turn_index":      turnIndex,
			"need_verse":      gating.NeedVerse,
			"source":          string(gating.Source),
			"trigger_reason":  gating.TriggerReason,
			"exclude_reason":  gating.ExcludeReason,
			"topics":          gating.Topics,
			"user_goal":       gating.UserGoal,
		})
		citations, retrievalMeta = s.retrieval.RetrieveCitations(ctx, citationVersionID, sanitized, summary, recent, s.cfg.CitationLimit)
		s.events.Log("retrieval_candidates", map[string]interface{}{
			"conversation_id": conversationID,
			"turn_index":      turnIndex,
			"meta":            retrievalMeta,
		})
		assistantMessage = AppendCitations(assistantMessage, citations)
	}

	citations = s.verifier.Verify(ctx, citations)
	if gating.NeedVerse && len(citations) == 0 && s.cfg.ForceFallbackCitations {
		citations = s.FallbackCitations(ctx, citationVersionID, s.cfg.CitationLimit)
	}
	if gating.NeedVerse {
		if len(citations) > 0 {
			s.events.Log("citation_selected", map[string]interface{}{
				"conversation_id": conversationID,
				"turn_index":      turnIndex,
				"selected":        selectedRefs(citations),
			})
		} else {
			reason := retrievalMeta.FailureReason
			if reason == "" {
				reason = "verification_failed"
			}
			s.events.Log("citation_failure", map[string]interface{}{
				"conversation_id": conversationID,
				"turn_index":      turnIndex,
				"reason":          reason,
			})
		}
	}

	assistantMessage = EnforceExactCitations(assistantMessage, citations)
	s.store.AddMessage(ctx, conversationID, "assistant", assistantMessage)
	s.events.Log("chat_response", map[string]interface{}{
		"conversation_id": conversationID,
		"citations_count": len(citations),
		"need_verse":      gating.NeedVerse,
		"llm_ok":          llmOk,
		"store_messages":  record.StoreMessages,
	})
	s.events.LogVerseCited(conversationID, citations)

	mode := "recent"
	if summary != "" {
		mode = "recent+summary"
	}
	return &models.ChatMessageResponse{
		AssistantMessage: assistantMessage,
		Citations:        citations,
		Memory: models.MemoryInfo{
			Mode:        mode,
			RecentTurns: len(recent),
			Summary:     summary,
			Gating:      gating,
		},
	}, nil
}

// directReferenceTurn serves an explicit scripture reference verbatim,
// bypassing gating and retrieval entirely
func (s *ChatService) directReferenceTurn(ctx context.Context, record *models.Conversation, versionID string, ref *Reference) (*models.ChatMessageResponse, error) {
	citations := []models.Citation{}
	if ref.VerseEnd == ref.VerseStart {
		verse, err := s.verses.GetVerseByBookName(ctx, versionID, ref.Book, ref.Chapter, ref.VerseStart)
		if err == nil {
			citations = append(citations, citationFromVerse(*verse))
		} else if !errors.Is(err, repository.ErrNotFound) {
			citations = nil
		}
	} else {
		verses, err := s.verses.GetVerseRange(ctx, versionID, ref.Book, ref.Chapter, ref.VerseStart, ref.VerseEnd)
		if err == nil {
			for _, verse := range verses {
				citations = append(citations, citationFromVerse(verse))
			}
		}
	}

	citations = s.verifier.Verify(ctx, citations)
	assistantMessage := AppendCitations("", citations)
	assistantMessage = EnforceExactCitations(assistantMessage, citations)
	if assistantMessage == "" {
		assistantMessage = "요청하신 구절을 찾지 못했어요. 책 이름과 장, 절을 다시 확인해 주세요."
	}

	turnIndex := len(record.Messages)
	s.events.Log("citation_attempt", map[string]interface{}{
		"conversation_id": record.ConversationID,
		"turn_index":      turnIndex,
		"need_verse":      true,
		"source":          string(models.GatingSourceDirectReference),
		"trigger_reason":  []string{"direct_reference"},
		"exclude_reason":  []string{},
		"topics":          []string{},
		"user_goal":       "",
	})
	if len(citations) > 0 {
		s.events.Log("citation_selected", map[string]interface{}{
			"conversation_id": record.ConversationID,
			"turn_index":      turnIndex,
			"selected":        selectedRefs(citations),
		})
	} else {
		s.events.Log("citation_failure", map[string]interface{}{
			"conversation_id": record.ConversationID,
			"turn_index":      turnIndex,
			"reason":          "direct_reference_not_found",
		})
	}

	s.store.AddMessage(ctx, record.ConversationID, "assistant", assistantMessage)
	s.events.Log("chat_response", map[string]interface{}{
		"conversation_id":  record.ConversationID,
		"citations_count":  len(citations),
		"direct_reference": true,
	})
	s.events.LogVerseCited(record.ConversationID, citations)

	return &models.ChatMessageResponse{
		AssistantMessage: assistantMessage,
		Citations:        citations,
		Memory: models.MemoryInfo{
			Mode:        "recent",
			RecentTurns: len(recentMessages(record.Messages, s.cfg.RecentTurns)),
			Summary:     record.Summary,
			Gating: models.GatingDecision{
				NeedVerse:     true,
				Topics:        []string{},
				RiskFlags:     []string{},
				Source:        models.GatingSourceDirectReference,
				TriggerReason: []string{"direct_reference"},
				ExcludeReason: []string{},
			},
			DirectReference: true,
		},
	}, nil
}

// crisisTurn short-circuits to the fixed safety response with zero citations
func (s *ChatService) crisisTurn(ctx context.Context, record *models.Conversation, riskFlags []string) (*models.ChatMessageResponse, error) {
	s.store.AddMessage(ctx, record.ConversationID, "assistant", CrisisResponse)
	s.events.Log("chat_crisis", map[string]interface{}{
		"conversation_id": record.ConversationID,
		"risk_flags":      riskFlags,
		"store_messages":  record.StoreMessages,
	})
	return &models.ChatMessageResponse{
		AssistantMessage: CrisisResponse,
		Citations:        []models.Citation{},
		Memory: models.MemoryInfo{
			Mode:        "recent",
			RecentTurns: len(recentMessages(record.Messages, s.cfg.RecentTurns)),
			Summary:     record.Summary,
			Gating: models.GatingDecision{
				NeedVerse:     false,
				Topics:        []string{},
				RiskFlags:     riskFlags,
				Source:        models.GatingSourceCrisis,
				TriggerReason: []string{},
				ExcludeReason: []string{},
			},
		},
	}, nil
}

// FallbackCitations serves the curated comfort references straight from the
// corpus. Used only when fallback forcing is enabled.
func (s *ChatService) FallbackCitations(ctx context.Context, versionID string, limit int) []models.Citation {
	citations := []models.Citation{}
	for _, ref := range fallbackReferences {
		verse, err := s.verses.GetVerse(ctx, versionID, ref.bookID, ref.chapter, ref.verse)
		if err != nil {
			continue
		}
		citations = append(citations, citationFromVerse(*verse))
		if len(citations) >= limit {
			break
		}
	}
	return citations
}

func citationFromVerse(v models.Verse) models.Citation {
	return models.Citation{
		VersionID:  v.VersionID,
		BookID:     v.BookID,
		BookName:   v.BookName,
		Chapter:    v.Chapter,
		VerseStart: v.Verse,
		VerseEnd:   v.Verse,
		Text:       v.Text,
	}
}

func recentMessages(messages []models.Message, limit int) []models.Message {
	if len(messages) <= limit {
		return messages
	}
	return messages[len(messages)-limit:]
}

func selectedRefs(citations []models.Citation) []map[string]interface{} {
	refs := make([]map[string]interface{}, len(citations))
	for i, c := range citations {
		refs[i] = map[string]interface{}{
			"book_id":     c.BookID,
			"chapter":     c.Chapter,
			"verse_start": c.VerseStart,
			"verse_end":   c.VerseEnd,
		}
	}
	return refs
}
