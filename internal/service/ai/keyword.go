package ai

import (
	"context"
	"strings"
	"unicode"

	"github.com/zhouzirui/kbchat/internal/model/chat"
	"github.com/zhouzirui/kbchat/internal/model/knowledgebase"
)

// NoMatchAnswer is returned by KeywordResponder when no document overlaps the question.
const NoMatchAnswer = "I could not find anything about that in this knowledge base."

// KeywordResponder is an offline responder that returns the document sharing
// the most words with the question.
type KeywordResponder struct{}

func NewKeywordResponder() KeywordResponder { return KeywordResponder{} }

func (KeywordResponder) Model() string { return "mock-keyword" }

func (KeywordResponder) Answer(ctx context.Context, kb knowledgebase.KnowledgeBase, _ []chat.Message, question string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	terms := tokenize(question)
	best, bestScore := -1, 0
	for i, doc := range kb.Documents {
		words := make(map[string]bool)
		for _, w := range tokenize(doc.Title + " " + doc.Content) {
			words[w] = true
		}
		score := 0
		for _, t := range terms {
			if words[t] {
				score++
			}
		}
		if score > bestScore {
			best, bestScore = i, score
		}
	}

	if best < 0 {
		return NoMatchAnswer, nil
	}
	return kb.Documents[best].Content, nil
}

var stopWords = map[string]bool{
	"a": true, "an": true, "the": true, "is": true, "are": true, "do": true, "does": true,
	"how": true, "what": true, "when": true, "can": true, "i": true, "to": true, "of": true,
	"my": true, "and": true, "or": true, "in": true, "on": true, "for": true, "it": true,
}

func tokenize(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := fields[:0]
	for _, f := range fields {
		if len(f) < 2 || stopWords[f] {
			continue
		}
		// 粗略去掉复数
		if len(f) > 3 && strings.HasSuffix(f, "s") {
			f = strings.TrimSuffix(f, "s")
		}
		out = append(out, f)
	}
	return out
}
