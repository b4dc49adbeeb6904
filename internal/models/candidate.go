package models

// CandidateSource tags which retrieval stage produced a candidate
type CandidateSource string

const (
	CandidateSourceFTS    CandidateSource = "fts"
	CandidateSourceVector CandidateSource = "vector"
	CandidateSourceHybrid CandidateSource = "hybrid"
)

// Candidate is a transient per-query record combining a verse identity with
// its retrieval signals. Candidates never outlive one retrieval call.
type Candidate struct {
	BookID         int
	BookName       string
	Chapter        int
	Verse          int
	Text           string
	Snippet        string
	Rank           float64
	TrgmSim        float64
	VectorDistance *float64
	KeywordHits    int
	RerankScore    *float64
	Source         CandidateSource
}

// Key returns the verse identity used for fusion and deduplication
func (c Candidate) Key() VerseKey {
	return VerseKey{BookID: c.BookID, Chapter: c.Chapter, Verse: c.Verse}
}

// Citation is the externally visible unit: a verse range with its verbatim
// text. Text must equal the stored verse text at emission time; the verifier
// re-fetches it from the corpus rather than trusting the candidate.
type Citation struct {
	VersionID  string `json:"version_id"`
	BookID     int    `json:"book_id"`
	BookName   string `json:"book_name"`
	Chapter    int    `json:"chapter"`
	VerseStart int    `json:"verse_start"`
	VerseEnd   int    `json:"verse_end"`
	Text       string `json:"text"`
}

// Key returns the verse identity of the citation's first verse
func (c Citation) Key() VerseKey {
	return VerseKey{BookID: c.BookID, Chapter: c.Chapter, Verse: c.VerseStart}
}
