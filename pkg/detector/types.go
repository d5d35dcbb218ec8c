package detector

import (
	"time"
)

// Reason classifies why an engagement opportunity exists.
type Reason string

const (
	ReasonInitialComment        Reason = "initial_comment"
	ReasonCollaborativeResponse Reason = "collaborative_response"
	ReasonPatternFollowUp       Reason = "pattern_follow_up"
	ReasonAdditionalPerspective Reason = "additional_perspective"
	ReasonRecurringPattern      Reason = "recurring_pattern"
)

// Rule priorities. Higher executes first.
const (
	priorityInitialComment        = 8
	priorityPatternFollowUp       = 7
	priorityCollaborativeResponse = 6
	priorityAdditionalPerspective = 5
)

// Strategy hints passed through to the response generator.
const (
	strategyOpenConversation  = "open_conversation"
	strategyJoinThread        = "join_thread"
	strategyConnectTheDots    = "connect_the_dots"
	strategyOfferContrast     = "offer_contrast"
	strategySurfaceRecurrence = "surface_recurrence"
)

// Opportunity is a candidate engagement moment. Opportunities are
// created and consumed within a single cycle and never persisted.
type Opportunity struct {
	EntryID         string
	UserID          string
	Reason          Reason
	Persona         string   // lead persona the executor generates for
	Personas        []string // full persona set drawn for this opportunity
	Priority        int
	Delay           time.Duration
	Strategy        string
	ExpectedScore   float64
	RelatedEntryIDs []string
}

// Config holds the detection timing knobs.
type Config struct {
	// MinInitialDelay is the minimum entry age before any opportunity
	// may target it.
	MinInitialDelay time.Duration
	// InitialDelayMin/Max bound the initial-comment delay; the actual
	// delay scales inversely with interaction level.
	InitialDelayMin time.Duration
	InitialDelayMax time.Duration
	// CollaborativeDelay is the minimum entry age for joining an
	// existing thread.
	CollaborativeDelay time.Duration
	// SecondPerspectiveDelay is the minimum entry age before a second
	// persona offers a different take.
	SecondPerspectiveDelay time.Duration
	// PatternWindow is the maximum spacing between entries considered
	// for relatedness.
	PatternWindow time.Duration
	// SimilarityThreshold is the token-Jaccard cutoff above which two
	// entries are related even without a shared topic bucket.
	SimilarityThreshold float64
	// PatternDetection toggles the pattern_follow_up/recurring_pattern
	// rules.
	PatternDetection bool
}

// DefaultConfig returns the standard detection timings.
func DefaultConfig() Config {
	return Config{
		MinInitialDelay:        5 * time.Minute,
		InitialDelayMin:        10 * time.Minute,
		InitialDelayMax:        2 * time.Hour,
		CollaborativeDelay:     30 * time.Minute,
		SecondPerspectiveDelay: time.Hour,
		PatternWindow:          4 * time.Hour,
		SimilarityThreshold:    0.3,
		PatternDetection:       true,
	}
}
