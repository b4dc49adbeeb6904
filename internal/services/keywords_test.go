package services

import (
	"context"
	"reflect"
	"testing"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"empty", "", nil},
		{"drops numbers", "시편 23 읽었어요", []string{"시편", "읽었어요"}},
		{"drops short tokens", "너무 힘들어요 아", []string{"너무", "힘들어요"}},
		{"normalizes first", "불안,  걱정!", []string{"불안", "걱정"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tokenize(tt.input); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("tokenize(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestExtractKeywordsFrequencyOrder(t *testing.T) {
	e := NewKeywordExtractor(nil)
	texts := []string{
		"불안 불안 걱정",
		"불안 외로움",
	}
	got := e.ExtractKeywords(context.Background(), texts, 8)
	if len(got) == 0 || got[0] != "불안" {
		t.Fatalf("most frequent token should rank first, got %v", got)
	}
	// 걱정 and 외로움 both appear once; the longer token wins the tie.
	want := []string{"불안", "외로움", "걱정"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ExtractKeywords = %v, want %v", got, want)
	}
}

func TestExtractKeywordsLimit(t *testing.T) {
	e := NewKeywordExtractor(nil)
	got := e.ExtractKeywords(context.Background(), []string{"하나 둘씩 셋씩 넷씩 다섯"}, 2)
	if len(got) != 2 {
		t.Errorf("expected 2 keywords, got %v", got)
	}
}

func TestInferTopics(t *testing.T) {
	tests := []struct {
		input string
		want  []string
	}{
		{"요즘 너무 불안하고 두려워요", []string{"anxiety"}},
		{"슬프고 화가 나요", []string{"sadness", "anger"}},
		{"가족과의 관계가 힘들어요", []string{"relationships"}},
		{"오늘 날씨가 좋네요", nil},
	}
	for _, tt := range tests {
		if got := InferTopics(tt.input); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("InferTopics(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestInferTopicsDeclarationOrder(t *testing.T) {
	// anxiety is declared before peace regardless of keyword position in text.
	got := InferTopics("평안이 필요해요 너무 불안해서")
	want := []string{"anxiety", "peace"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("InferTopics = %v, want %v", got, want)
	}
}

func TestExpandTopicsToTerms(t *testing.T) {
	got := ExpandTopicsToTerms([]string{"anxiety"})
	want := []string{"불안", "두려", "긴장", "초조", "걱정"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ExpandTopicsToTerms = %v, want %v", got, want)
	}
	if terms := ExpandTopicsToTerms([]string{"unknown"}); len(terms) != 0 {
		t.Errorf("unknown topic should expand to nothing, got %v", terms)
	}
}

func TestDedupeTerms(t *testing.T) {
	got := dedupeTerms([]string{"불안", "걱정", "불안", "평안", "걱정"})
	want := []string{"불안", "걱정", "평안"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("dedupeTerms = %v, want %v", got, want)
	}
}
