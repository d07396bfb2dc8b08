package followup

import "strings"

// MaxSuggestions caps the questions SuggestQuestions returns.
const MaxSuggestions = 3

const genericQuestion = "How have things been since we last talked?"

type keywordQuestion struct {
	keyword  string
	question string
}

type topic struct {
	category  string
	keywords  []string
	questions []string
	specific  []keywordQuestion
}

// topics is evaluated in order; matching is by substring on the lower-cased note.
var topics = []topic{
	{
		category:  "job",
		keywords:  []string{"job", "work", "interview", "career", "promotion"},
		questions: []string{"How is the job situation going?"},
		specific:  []keywordQuestion{{"interview", "How did the interview go?"}},
	},
	{
		category:  "health",
		keywords:  []string{"sick", "health", "doctor", "surgery", "hospital"},
		questions: []string{"How are you feeling now?", "Is there anything I can help with?"},
	},
	{
		category:  "family",
		keywords:  []string{"baby", "pregnant", "expecting", "child", "kid"},
		questions: []string{"How is the family doing?"},
	},
	{
		category:  "moving",
		keywords:  []string{"move", "moving", "house", "home", "apartment"},
		questions: []string{"How is the new place?", "Have you settled in?"},
	},
	{
		category:  "prayer",
		keywords:  []string{"pray", "prayer", "praying"},
		questions: []string{"How can I continue to pray for you?"},
	},
	{
		category:  "struggle",
		keywords:  []string{"struggle", "difficult", "hard", "challenge"},
		questions: []string{"How are things going now?", "Is there anything I can do to help?"},
	},
	{
		category:  "church",
		keywords:  []string{"church", "small group", "bible study"},
		questions: []string{"How is your involvement at church going?"},
	},
}

// SuggestQuestions derives follow-up questions from a prior contact note.
// Matching topics contribute their questions in table order, capped at
// MaxSuggestions. A note that matches nothing gets one generic question.
func SuggestQuestions(note string) []string {
	lower := strings.ToLower(note)
	var questions []string

	for _, t := range topics {
		if !containsAny(lower, t.keywords) {
			continue
		}
		questions = append(questions, t.questions...)
		for _, s := range t.specific {
			if strings.Contains(lower, s.keyword) {
				questions = append(questions, s.question)
			}
		}
	}

	if len(questions) == 0 {
		return []string{genericQuestion}
	}
	if len(questions) > MaxSuggestions {
		questions = questions[:MaxSuggestions]
	}
	return questions
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
