package recognizer

import (
	"hash/fnv"
	"unicode"
)

// vocabSize bounds the hashed vocabulary used to map surface tokens to
// model input IDs.
const vocabSize = 30522

// Token is a whitespace-delimited chunk of the input with its byte
// offsets preserved, so entity spans can be mapped back onto the
// original text.
type Token struct {
	Text  string
	Start int
	End   int
	ID    int64
}

// Tokenize splits text on Unicode whitespace and assigns each token a
// stable hashed vocabulary ID.
func Tokenize(text string) []Token {
	var tokens []Token
	start := -1
	for i, r := range text {
		if unicode.IsSpace(r) {
			if start >= 0 {
				tokens = append(tokens, newToken(text, start, i))
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		tokens = append(tokens, newToken(text, start, len(text)))
	}
	return tokens
}

func newToken(text string, start, end int) Token {
	chunk := text[start:end]
	h := fnv.New64a()
	h.Write([]byte(chunk))
	return Token{
		Text:  chunk,
		Start: start,
		End:   end,
		ID:    int64(h.Sum64() % vocabSize),
	}
}
