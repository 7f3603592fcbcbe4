package data

import (
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
)

const (
	// Default tokens
	PAD = "<pad>"
	UNK = "<unk>"

	PadID = 0
	UnkID = 1
)

var (
	// 1. The Global List: Define all special characters you want to support here.
	// We use strings to support multi-byte characters (like emojis) easily.
	// "-" stays last so it is literal inside the character classes below.
	AllowedSpecialChars = []string{
		".", "!", "?", ",", "<", ">", "-",
	}

	// 2. Define which of the above characters end a sentence.
	EndTokenChars = []string{".", "!", "?"}

	// 3. Global Regex variables (compiled once at startup)
	ReClean *regexp.Regexp
	ReTok   *regexp.Regexp

	// 4. Global map for fast lookup of end tokens
	EndTokens map[string]bool
)

func init() {
	EndTokens = make(map[string]bool)
	for _, char := range EndTokenChars {
		EndTokens[char] = true
	}

	// Escape all characters to ensure they don't break regex syntax (e.g., "." becomes "\.")
	escapedChars := make([]string, len(AllowedSpecialChars))
	for i, c := range AllowedSpecialChars {
		escapedChars[i] = regexp.QuoteMeta(c)
	}
	allAllowedGroup := strings.Join(escapedChars, "")

	// Match anything that is NOT a-z, 0-9, or one of our allowed symbols
	ReClean = regexp.MustCompile(fmt.Sprintf(`[^a-z0-9%s]+`, allAllowedGroup))

	// tags | words | symbols, with <tags> first so <unk> stays one token
	tagPattern := `<[^>\s]+>`
	wordPattern := `[a-z0-9]+`
	symbolPattern := fmt.Sprintf(`[%s]`, allAllowedGroup)
	ReTok = regexp.MustCompile(fmt.Sprintf(`%s|%s|%s`, tagPattern, wordPattern, symbolPattern))
}

// CleanText lowercases text, drops apostrophes, replaces every run of
// unsupported characters with a single space and collapses whitespace.
func CleanText(text string) string {
	text = strings.ToLower(text)
	text = strings.ReplaceAll(text, "'", "")
	text = ReClean.ReplaceAllString(text, " ")
	return strings.Join(strings.Fields(text), " ")
}

func Tokenize(text string) []string {
	return ReTok.FindAllString(text, -1)
}

// SplitSentences cuts a token stream after every end token. A trailing
// sentence without an end token is kept.
func SplitSentences(words []string) [][]string {
	var out [][]string
	var sentence []string
	for _, w := range words {
		sentence = append(sentence, w)
		if EndTokens[w] {
			out = append(out, sentence)
			sentence = nil
		}
	}
	if len(sentence) > 0 {
		out = append(out, sentence)
	}
	return out
}

// JoinTokens renders tokens as text without a space before punctuation.
func JoinTokens(words []string) string {
	var sb strings.Builder
	for i, w := range words {
		if i > 0 && !isPunct(w) {
			sb.WriteByte(' ')
		}
		sb.WriteString(w)
	}
	return sb.String()
}

func isPunct(w string) bool {
	return w == "," || EndTokens[w]
}

// Vocab maps tokens to dense integer ids. Id 0 is PAD and id 1 is UNK.
type Vocab struct {
	WordToID map[string]int
	IDToWord []string
}

// BuildVocab assigns ids in order of first appearance. Words seen fewer than
// freqThreshold times are left out and encode as UNK.
func BuildVocab(words []string, freqThreshold int) *Vocab {
	freq := make(map[string]int)
	for _, w := range words {
		freq[w]++
	}
	v := &Vocab{
		WordToID: map[string]int{PAD: PadID, UNK: UnkID},
		IDToWord: []string{PAD, UNK},
	}
	for _, w := range words {
		if freq[w] < freqThreshold {
			continue
		}
		if _, ok := v.WordToID[w]; !ok {
			v.WordToID[w] = len(v.IDToWord)
			v.IDToWord = append(v.IDToWord, w)
		}
	}
	return v
}

func (v *Vocab) Size() int { return len(v.IDToWord) }

func (v *Vocab) ID(w string) int {
	if id, ok := v.WordToID[w]; ok {
		return id
	}
	return UnkID
}

func (v *Vocab) Word(id int) string {
	if id < 0 || id >= len(v.IDToWord) {
		return UNK
	}
	return v.IDToWord[id]
}

func (v *Vocab) Encode(words []string) []int {
	ids := make([]int, len(words))
	for i, w := range words {
		ids[i] = v.ID(w)
	}
	return ids
}

func (v *Vocab) Decode(ids []int) []string {
	words := make([]string, len(ids))
	for i, id := range ids {
		words[i] = v.Word(id)
	}
	return words
}

// WriteMapping writes one "word - id" line per entry.
func (v *Vocab) WriteMapping(w io.Writer) error {
	for id, word := range v.IDToWord {
		if _, err := fmt.Fprintf(w, "%s - %d\n", word, id); err != nil {
			return err
		}
	}
	return nil
}

// LoadCorpus reads a text file, cleans and tokenizes it, builds the vocabulary
// and splits the tokens into sentences.
func LoadCorpus(path string, freqThreshold int) (*Vocab, [][]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("load corpus: %w", err)
	}
	words := Tokenize(CleanText(string(raw)))
	if len(words) == 0 {
		return nil, nil, fmt.Errorf("load corpus %s: no tokens", path)
	}
	return BuildVocab(words, freqThreshold), SplitSentences(words), nil
}
