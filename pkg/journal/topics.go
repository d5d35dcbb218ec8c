package journal

import (
	"strings"
)

// Topic bucket names used for relatedness classification and persona
// affinity lookups.
const (
	TopicWorkStress    = "work_stress"
	TopicRelationships = "relationships"
	TopicHealth        = "health"
	TopicSleep         = "sleep"
	TopicGratitude     = "gratitude"
	TopicAnxiety       = "anxiety"
)

// topicKeywords maps each bucket to the keywords that classify an entry
// into it. Matching is case-insensitive on whole tokens.
var topicKeywords = map[string][]string{
	TopicWorkStress:    {"work", "deadline", "boss", "meeting", "project", "overtime", "coworker", "job"},
	TopicRelationships: {"partner", "friend", "family", "mom", "dad", "argument", "lonely", "relationship"},
	TopicHealth:        {"workout", "exercise", "run", "gym", "sick", "headache", "energy", "diet"},
	TopicSleep:         {"sleep", "tired", "insomnia", "nap", "exhausted", "awake", "dream"},
	TopicGratitude:     {"grateful", "thankful", "appreciate", "blessed", "gratitude"},
	TopicAnxiety:       {"anxious", "anxiety", "worried", "panic", "nervous", "overwhelmed", "stress", "stressed"},
}

// Topics classifies entry content into topic buckets. The result is
// sorted by bucket name for deterministic downstream behavior.
func Topics(content string) []string {
	tokens := tokenSet(content)

	var buckets []string
	for _, bucket := range []string{
		TopicAnxiety, TopicGratitude, TopicHealth,
		TopicRelationships, TopicSleep, TopicWorkStress,
	} {
		for _, kw := range topicKeywords[bucket] {
			if tokens[kw] {
				buckets = append(buckets, bucket)
				break
			}
		}
	}
	return buckets
}

// SharesTopic reports whether two contents share at least one topic bucket.
func SharesTopic(a, b string) bool {
	bTopics := Topics(b)
	for _, ta := range Topics(a) {
		for _, tb := range bTopics {
			if ta == tb {
				return true
			}
		}
	}
	return false
}

// Similarity computes token Jaccard similarity between two contents.
func Similarity(a, b string) float64 {
	sa := tokenSet(a)
	sb := tokenSet(b)
	if len(sa) == 0 || len(sb) == 0 {
		return 0
	}

	intersection := 0
	for tok := range sa {
		if sb[tok] {
			intersection++
		}
	}
	union := len(sa) + len(sb) - intersection
	return float64(intersection) / float64(union)
}

func tokenSet(content string) map[string]bool {
	set := make(map[string]bool)
	for _, tok := range strings.FieldsFunc(strings.ToLower(content), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	}) {
		set[tok] = true
	}
	return set
}
