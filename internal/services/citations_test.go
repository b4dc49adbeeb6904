package services

import (
	"context"
	"strings"
	"testing"

	"github.com/counsel-scripture-api/internal/models"
)

func TestFormatCitation(t *testing.T) {
	single := models.Citation{BookName: "시편", Chapter: 23, VerseStart: 1, VerseEnd: 1, Text: "여호와는 나의 목자시니"}
	if got := FormatCitation(single); got != "(시편 23:1) 여호와는 나의 목자시니" {
		t.Errorf("FormatCitation single = %q", got)
	}

	ranged := models.Citation{BookName: "빌립보서", Chapter: 4, VerseStart: 6, VerseEnd: 7, Text: "아무 것도 염려하지 말고"}
	if got := FormatCitation(ranged); got != "(빌립보서 4:6-7) 아무 것도 염려하지 말고" {
		t.Errorf("FormatCitation range = %q", got)
	}
}

func TestAppendCitations(t *testing.T) {
	citations := []models.Citation{
		{BookName: "시편", Chapter: 23, VerseStart: 1, VerseEnd: 1, Text: "여호와는 나의 목자시니"},
	}

	got := AppendCitations("마음이 많이 무거우셨겠어요.", citations)
	want := "마음이 많이 무거우셨겠어요.\n\n(시편 23:1) 여호와는 나의 목자시니"
	if got != want {
		t.Errorf("AppendCitations = %q, want %q", got, want)
	}

	// Already-present blocks are not duplicated.
	if again := AppendCitations(got, citations); again != got {
		t.Errorf("AppendCitations duplicated blocks: %q", again)
	}

	if got := AppendCitations("그대로", nil); got != "그대로" {
		t.Errorf("AppendCitations with no citations = %q", got)
	}
}

func TestStripCitationLines(t *testing.T) {
	input := "위로가 되셨으면 해요.\n(시편 23:1) 지어낸 본문입니다\n내일도 함께해요."
	got := StripCitationLines(input)
	if strings.Contains(got, "지어낸") {
		t.Errorf("hallucinated citation line survived: %q", got)
	}
	if !strings.Contains(got, "위로가") || !strings.Contains(got, "내일도") {
		t.Errorf("non-citation lines were lost: %q", got)
	}
}

func TestEnforceExactCitations(t *testing.T) {
	citations := []models.Citation{
		{BookName: "시편", Chapter: 23, VerseStart: 1, VerseEnd: 1, Text: "여호와는 나의 목자시니 내게 부족함이 없으리로다"},
	}
	expected := FormatCitation(citations[0])

	t.Run("appends when absent", func(t *testing.T) {
		got := EnforceExactCitations("마음이 무거우셨겠어요.", citations)
		if !strings.HasSuffix(got, expected) {
			t.Errorf("verified block missing: %q", got)
		}
	})

	t.Run("replaces hallucinated block", func(t *testing.T) {
		response := "마음이 무거우셨겠어요.\n(시편 23:1) 완전히 다른 본문"
		got := EnforceExactCitations(response, citations)
		if strings.Contains(got, "완전히 다른 본문") {
			t.Errorf("hallucinated block survived: %q", got)
		}
		if strings.Count(got, "(시편 23:1)") != 1 {
			t.Errorf("expected exactly one citation block: %q", got)
		}
		if !strings.HasSuffix(got, expected) {
			t.Errorf("verified block missing: %q", got)
		}
	})

	t.Run("leaves exact match alone", func(t *testing.T) {
		response := "마음이 무거우셨겠어요.\n\n" + expected
		if got := EnforceExactCitations(response, citations); got != response {
			t.Errorf("exact response was modified: %q", got)
		}
	})

	t.Run("no citations is a no-op", func(t *testing.T) {
		response := "인용 없이 응답합니다."
		if got := EnforceExactCitations(response, nil); got != response {
			t.Errorf("response modified without citations: %q", got)
		}
	})
}

func TestCitationVerifier(t *testing.T) {
	repo := newFakeVerseRepo()
	verifier := NewCitationVerifier(repo)
	ctx := context.Background()

	good := models.Citation{
		VersionID: "krv", BookID: 19, BookName: "시편", Chapter: 23, VerseStart: 1, VerseEnd: 1,
		Text: "여호와는 나의 목자시니 내게 부족함이 없으리로다",
	}
	tampered := good
	tampered.Text = "여호와는 나의 목자시니 내게 부족함이 없다"
	missing := models.Citation{
		VersionID: "krv", BookID: 19, BookName: "시편", Chapter: 999, VerseStart: 1, VerseEnd: 1,
		Text: "존재하지 않는 구절",
	}

	verified := verifier.Verify(ctx, []models.Citation{good, tampered, missing})
	if len(verified) != 1 {
		t.Fatalf("expected only the exact-text citation to survive, got %d", len(verified))
	}
	if verified[0].Text != good.Text {
		t.Errorf("wrong citation survived: %+v", verified[0])
	}
}
