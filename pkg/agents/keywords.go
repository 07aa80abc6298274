package agents

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// explicitSexualKeywords is the fixed list that gates the Sexuelle Themen
// label. A sexual classification without one of these in the combined text is
// demoted.
var explicitSexualKeywords = []string{
	"sex", "ficken", "vögeln", "blasen", "lecken", "geil", "horny", "titten",
	"brüste", "schwanz", "muschi", "pussy", "arsch", "nackt", "ausziehen",
	"stellung", "orgasmus", "kommen", "spritzen", "feucht", "hart", "steif",
	"wichsen", "fingern", "oral", "anal", "dessous", "erregt", "lust auf dich",
	"bett mit dir", "heiss machen", "heiß machen",
}

// harmlessCollocations are phrases that contain a sexual-looking token but
// are harmless in context; they clear a sexual classification.
var harmlessCollocations = []string{
	"evtl ziehen wir uns ja an",
	"vielleicht ziehen wir uns an",
	"passen wir zusammen",
	"ziehen uns gegenseitig an",
	"anziehend finde",
}

// germanFunctionWords is the whitelist the language gate scans before
// spending an LLM call. Any hit in a short message counts as German.
var germanFunctionWords = []string{
	"und", "oder", "aber", "nicht", "auch", "noch", "schon", "doch", "mal",
	"wie", "was", "wer", "wo", "wann", "warum", "wieso", "weshalb", "welche",
	"ich", "du", "wir", "ihr", "sie", "er", "es", "mich", "dich", "mir", "dir",
	"mein", "dein", "sein", "ihre", "unser", "euer",
	"der", "die", "das", "ein", "eine", "einen", "einem", "einer",
	"ist", "bin", "bist", "sind", "war", "waren", "habe", "hast", "hat",
	"haben", "hatte", "werde", "wirst", "wird", "werden", "kann", "kannst",
	"können", "will", "willst", "wollen", "möchte", "magst", "mögen",
	"soll", "sollst", "muss", "musst", "müssen", "darf", "darfst",
	"gut", "schön", "sehr", "heute", "morgen", "gestern", "jetzt", "gleich",
	"hallo", "hey", "huhu", "moin", "servus", "tschüss", "danke", "bitte",
	"ja", "nein", "vielleicht", "gerne", "klar", "genau",
	"fkk", "sauna", "feierabend", "wochenende", "schatz", "süße", "süßer",
}

// shortGreetings are common openers treated as German regardless of language
// detection confidence.
var shortGreetings = []string{
	"hi", "hey", "hallo", "huhu", "moin", "servus", "na", "na du", "hey du",
	"hallo du", "guten morgen", "guten abend", "guten tag", "nabend", "ciao",
}

// ambiguousPhrases trigger the ambiguity resolver.
var ambiguousPhrases = []string{
	"du weißt schon", "du weisst schon", "das eine", "das gewisse etwas",
	"sowas halt", "na sowas", "dieses dings", "das da", "du verstehst",
	"wenn du weißt was ich meine", "wenn du weisst was ich meine",
	"darauf", "davon", "dabei", "damit meinst du",
}

// meetingAgreementPhrases are formulations that commit to a meeting; they
// are hard-forbidden in replies.
var meetingAgreementPhrases = []string{
	"wann können wir uns treffen",
	"wann wollen wir uns treffen",
	"lass uns treffen",
	"wir können uns treffen",
	"ich komme zu dir",
	"komm zu mir",
	"ich hole dich ab",
	"wir sehen uns dann",
	"bis morgen dann",
	"bis dann um",
	"treffen wir uns",
	"ich habe zeit am",
	"passt mir gut, dann",
}

// metaCommentaryPatterns are openers that comment on the message instead of
// answering it.
var metaCommentaryPatterns = []string{
	"das klingt",
	"klingt spannend",
	"klingt gut",
	"klingt interessant",
	"ich finde es toll, dass",
	"ich finde es schön, dass",
	"ich finde es super, dass",
	"schön zu hören",
	"toll, dass du",
	"interessant, dass",
	"es freut mich zu hören",
}

// reciprocityTokens satisfy the reciprocity requirement for positive or
// sexual customer messages.
var reciprocityTokens = []string{
	"auch", "finde ich auch", "macht mich auch", "freut mich", "geht mir auch so",
}

// contactPlatformPattern tokens that indicate off-platform contact exchange.
var contactKeywords = []string{
	"whatsapp", "whats app", "telegram", "insta", "instagram", "snapchat",
	"handynummer", "telefonnummer", "nummer", "handy", "telefon", "e-mail",
	"email", "mail", "signal", "skype", "facebook",
}

// locationQuestionPatterns match location-only questions which must never be
// classified as meeting requests.
var locationQuestionPatterns = []string{
	"woher bist du", "woher kommst du", "wo wohnst du", "wo kommst du her",
	"wo lebst du", "aus welcher stadt", "aus welcher gegend", "wo genau wohnst",
}

// knownCityDistricts whitelists real neighborhoods for large cities; the
// fake-context builder may only name districts from this table.
var knownCityDistricts = map[string][]string{
	"berlin":    {"Prenzlauer Berg", "Kreuzberg", "Charlottenburg", "Friedrichshain", "Neukölln", "Schöneberg"},
	"hamburg":   {"Altona", "Eimsbüttel", "Winterhude", "Ottensen", "St. Georg", "Barmbek"},
	"münchen":   {"Schwabing", "Sendling", "Haidhausen", "Giesing", "Neuhausen"},
	"köln":      {"Ehrenfeld", "Nippes", "Sülz", "Deutz", "Lindenthal"},
	"frankfurt": {"Bockenheim", "Sachsenhausen", "Bornheim", "Nordend"},
	"stuttgart": {"Bad Cannstatt", "Degerloch", "Vaihingen", "Feuerbach"},
	"leipzig":   {"Plagwitz", "Connewitz", "Gohlis", "Südvorstadt"},
}

// positiveAffectTokens mark a positive customer message for the reciprocity
// check.
var positiveAffectTokens = []string{
	"freue mich", "freut mich", "schön", "toll", "super", "mag dich",
	"gefällst mir", "find dich", "finde dich", "süß", "suess", "hübsch",
	"huebsch", "sympathisch", "interessant",
}

func containsAny(text string, needles []string) (string, bool) {
	lower := strings.ToLower(text)
	for _, needle := range needles {
		if strings.Contains(lower, needle) {
			return needle, true
		}
	}
	return "", false
}

// ExplicitSexualKeyword returns the first explicit sexual keyword found at the
// start of a word in the text; a word that merely contains a keyword further
// in ("gekommen") does not match.
func ExplicitSexualKeyword(text string) (string, bool) {
	lower := strings.ToLower(text)
	for _, keyword := range explicitSexualKeywords {
		for from := 0; from < len(lower); {
			idx := strings.Index(lower[from:], keyword)
			if idx < 0 {
				break
			}
			at := from + idx
			if prev, _ := utf8.DecodeLastRuneInString(lower[:at]); at == 0 || !unicode.IsLetter(prev) {
				return keyword, true
			}
			from = at + len(keyword)
		}
	}
	return "", false
}

// ContainsExplicitSexual reports whether the text carries an explicit sexual
// keyword.
func ContainsExplicitSexual(text string) bool {
	_, ok := ExplicitSexualKeyword(text)
	return ok
}

// ContainsMeetingAgreement reports whether the text commits to a meeting.
func ContainsMeetingAgreement(text string) (string, bool) {
	return containsAny(text, meetingAgreementPhrases)
}

// ContainsMetaCommentary reports whether the text opens meta-commentary.
func ContainsMetaCommentary(text string) (string, bool) {
	return containsAny(text, metaCommentaryPatterns)
}

// ContainsReciprocity reports whether the text carries a reciprocity token.
func ContainsReciprocity(text string) bool {
	_, ok := containsAny(text, reciprocityTokens)
	return ok
}

// ContainsContactKeyword reports off-platform contact vocabulary.
func ContainsContactKeyword(text string) (string, bool) {
	return containsAny(text, contactKeywords)
}

// IsLocationOnlyQuestion matches pure location questions.
func IsLocationOnlyQuestion(text string) bool {
	_, ok := containsAny(text, locationQuestionPatterns)
	return ok
}

// ContainsPositiveAffect reports positive affect in the customer message.
func ContainsPositiveAffect(text string) bool {
	_, ok := containsAny(text, positiveAffectTokens)
	return ok
}

// DistrictsFor returns the whitelisted districts of a known large city.
func DistrictsFor(city string) []string {
	return knownCityDistricts[strings.ToLower(strings.TrimSpace(city))]
}
