package services

import "regexp"

// topicLexicon maps each counseling topic to the keywords that signal it.
// Declaration order is significant: InferTopics reports topics in this order.
var topicLexicon = []struct {
	topic    string
	keywords []string
}{
	{"anxiety", []string{"불안", "두려", "긴장", "초조", "걱정"}},
	{"sadness", []string{"슬프", "우울", "눈물", "상실", "외로"}},
	{"anger", []string{"분노", "화가", "짜증", "미움"}},
	{"guidance", []string{"결정", "선택", "진로", "길", "방향"}},
	{"forgiveness", []string{"죄책", "용서", "회개", "죄"}},
	{"relationships", []string{"관계", "가족", "부부", "친구", "이별"}},
	{"peace", []string{"평안", "쉼", "안식", "안정"}},
}

// staticSynonyms is the in-process fallback synonym map, consulted after the
// persisted synonym table
var staticSynonyms = map[string][]string{
	"불안": {"근심", "염려", "걱정"},
	"두려": {"무서움", "공포"},
	"슬프": {"우울", "비통", "눈물"},
	"상실": {"이별", "잃음"},
	"분노": {"화", "격분"},
	"죄책": {"책망", "정죄"},
	"용서": {"용납", "사함"},
	"관계": {"갈등", "다툼"},
	"평안": {"안식", "쉼", "안정"},
}

var closingKeywords = []string{
	"정리",
	"마무리",
	"결론",
	"기도",
	"기도해",
	"정돈",
}

var infoQuestionKeywords = []string{
	"뜻",
	"의미",
	"정의",
	"설명",
	"알려줘",
	"정보",
	"무엇",
	"뭐",
	"어떤",
}

var smallTalkKeywords = []string{
	"안녕",
	"고마워",
	"감사",
	"잘 지내",
	"좋아",
	"오케이",
	"ok",
	"thanks",
}

var smallTalkPattern = regexp.MustCompile(`(ㅋ{2,}|ㅎ{2,})`)

var verseRequestKeywords = []string{
	"말씀",
	"성경",
	"구절",
	"verse",
	"bible",
}

var riskPatterns = []*regexp.Regexp{
	regexp.MustCompile(`자해`),
	regexp.MustCompile(`자살`),
	regexp.MustCompile(`죽고 싶`),
	regexp.MustCompile(`죽고싶`),
	regexp.MustCompile(`끝내고 싶`),
}

// CrisisResponse is the fixed safety reply for self-harm signals. It is never
// accompanied by citations.
const CrisisResponse = "지금 많이 힘드실 것 같아요. 혼자 버티지 않으셔도 됩니다.\n" +
	"한국에서는 24시간 도움을 받을 수 있는 창구가 있습니다:\n" +
	"- 자살예방 상담전화 1393\n" +
	"- 정신건강위기 상담전화 1577-0199\n" +
	"- 긴급 상황은 112 또는 119\n" +
	"가능하다면 지금 가까운 사람이나 전문가에게도 연락해 주세요."

// DegradedResponse is the fixed apology used when the generation backend is
// unreachable
const DegradedResponse = "현재 상담 기능이 원활하지 않아 기본 안내만 제공하고 있습니다. " +
	"불편을 드려 죄송합니다. 다른 질문이 있으신가요?"

var piiPatterns = []struct {
	re   *regexp.Regexp
	repl string
}{
	{regexp.MustCompile(`\b\d{2,3}-\d{3,4}-\d{4}\b`), "[PHONE]"},
	{regexp.MustCompile(`\b\d{6}-\d{7}\b`), "[RRN]"},
	{regexp.MustCompile(`\b\d{3}-\d{2}-\d{5}\b`), "[BANK]"},
}

// fallbackReferences are well-known comfort verses used by the ops
// force-citation path when retrieval is bypassed
var fallbackReferences = []struct {
	bookID  int
	chapter int
	verse   int
}{
	{19, 23, 1},  // Psalm 23:1
	{40, 11, 28}, // Matthew 11:28
	{50, 4, 6},   // Philippians 4:6
	{23, 41, 10}, // Isaiah 41:10
}
