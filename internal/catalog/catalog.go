// Package catalog lists what a learner can choose from when starting a
// conversation: target language, learning mode, topic and difficulty.
package catalog

import (
	"errors"
	"fmt"
	"slices"

	"github.com/apper-canvas/linguaflow-1080p-card/internal/store"
)

// Language is a target language offered by the service.
type Language struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Flag      string `json:"flag"`
	Available bool   `json:"available"`
}

// Mode is a learning mode. Modes narrow the topic list.
type Mode struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Topic is a conversation subject.
type Topic struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Difficulty describes one [store.Difficulty] level.
type Difficulty struct {
	ID          store.Difficulty `json:"id"`
	Name        string           `json:"name"`
	Description string           `json:"description"`
}

// ModeConversation is the default mode; it offers the general topic list.
const ModeConversation = "conversation"

var languages = []Language{
	{ID: "spanish", Name: "Spanish", Flag: "🇪🇸", Available: true},
	{ID: "french", Name: "French", Flag: "🇫🇷", Available: true},
	{ID: "german", Name: "German", Flag: "🇩🇪", Available: true},
	{ID: "italian", Name: "Italian", Flag: "🇮🇹", Available: false},
}

var modes = []Mode{
	{ID: ModeConversation, Name: "Conversation Practice", Description: "Free-form chat on everyday topics"},
	{ID: "grammar", Name: "Grammar Focus", Description: "Practise structures with targeted feedback"},
	{ID: "vocabulary", Name: "Vocabulary Builder", Description: "Learn words around a theme"},
	{ID: "reading", Name: "Reading Comprehension", Description: "Discuss short texts"},
	{ID: "pronunciation", Name: "Pronunciation", Description: "Work on sounds and rhythm"},
}

var topics = []Topic{
	{ID: "hobbies", Name: "Hobbies & Interests", Description: "Talk about what you enjoy doing in your free time"},
	{ID: "travel", Name: "Travel & Places", Description: "Share travel experiences and dream destinations"},
	{ID: "food", Name: "Food & Cooking", Description: "Discuss favorite dishes and cooking experiences"},
	{ID: "business", Name: "Business & Work", Description: "Practice professional conversations and workplace topics"},
	{ID: "technology", Name: "Technology", Description: "Explore tech trends and digital life"},
	{ID: "sports", Name: "Sports & Fitness", Description: "Talk about sports, exercise and healthy living"},
	{ID: "movies", Name: "Movies & Entertainment", Description: "Discuss films, shows and entertainment"},
	{ID: "education", Name: "Education & Learning", Description: "Share learning experiences and academic topics"},
	{ID: "culture", Name: "Culture & Traditions", Description: "Compare customs, festivals and traditions"},
	{ID: "daily-life", Name: "Daily Life", Description: "Describe routines, errands and everyday situations"},
}

// generalTopics are shown in conversation mode.
var generalTopics = []string{"hobbies", "travel", "food", "business", "technology", "sports", "movies", "education"}

// modeTopics restricts the topic list per mode.
var modeTopics = map[string][]string{
	ModeConversation: generalTopics,
	"grammar":        {"business", "education", "daily-life"},
	"vocabulary":     {"hobbies", "travel", "food", "technology"},
	"reading":        {"travel", "technology", "education", "culture"},
	"pronunciation":  {"hobbies", "travel", "food", "daily-life"},
}

var difficulties = []Difficulty{
	{ID: store.DifficultyBeginner, Name: "Beginner", Description: "Simple sentences and common words"},
	{ID: store.DifficultyIntermediate, Name: "Intermediate", Description: "Everyday conversations with some complexity"},
	{ID: store.DifficultyAdvanced, Name: "Advanced", Description: "Complex discussions and nuanced expressions"},
}

// Catalog is the full set of choices, served to clients in one response.
type Catalog struct {
	Languages    []Language   `json:"languages"`
	Modes        []Mode       `json:"modes"`
	Topics       []Topic      `json:"topics"`
	Difficulties []Difficulty `json:"difficulties"`
}

// All returns a copy of the catalog with the conversation-mode topic list.
func All() Catalog {
	return Catalog{
		Languages:    slices.Clone(languages),
		Modes:        slices.Clone(modes),
		Topics:       FilterTopics(ModeConversation),
		Difficulties: slices.Clone(difficulties),
	}
}

// FilterTopics returns the topics offered in mode. Unknown modes fall back to
// the conversation list.
func FilterTopics(mode string) []Topic {
	ids, ok := modeTopics[mode]
	if !ok {
		ids = generalTopics
	}
	out := make([]Topic, 0, len(ids))
	for _, id := range ids {
		if t, ok := topicByID(id); ok {
			out = append(out, t)
		}
	}
	return out
}

// ErrInvalidSelection is wrapped by every error returned from [Validate].
var ErrInvalidSelection = errors.New("invalid selection")

// Selection is a learner's choice when starting a conversation. Empty
// Language and Mode mean "not specified".
type Selection struct {
	Topic      string
	Difficulty string
	Language   string
	Mode       string
}

// Validate checks sel against the catalog and returns the parsed difficulty.
func Validate(sel Selection) (store.Difficulty, error) {
	d, err := store.ParseDifficulty(sel.Difficulty)
	if err != nil {
		return "", fmt.Errorf("catalog: %w: %w", ErrInvalidSelection, err)
	}
	mode := sel.Mode
	if mode == "" {
		mode = ModeConversation
	}
	if _, ok := modeTopics[mode]; !ok {
		return "", fmt.Errorf("catalog: %w: unknown mode %q", ErrInvalidSelection, sel.Mode)
	}
	if !slices.Contains(modeTopics[mode], sel.Topic) {
		return "", fmt.Errorf("catalog: %w: topic %q is not offered in %s mode", ErrInvalidSelection, sel.Topic, mode)
	}
	if sel.Language != "" {
		i := slices.IndexFunc(languages, func(l Language) bool { return l.ID == sel.Language })
		if i < 0 {
			return "", fmt.Errorf("catalog: %w: unknown language %q", ErrInvalidSelection, sel.Language)
		}
		if !languages[i].Available {
			return "", fmt.Errorf("catalog: %w: language %q is coming soon", ErrInvalidSelection, sel.Language)
		}
	}
	return d, nil
}

// TopicName returns the display name of a topic id, or the id itself.
func TopicName(id string) string {
	if t, ok := topicByID(id); ok {
		return t.Name
	}
	return id
}

func topicByID(id string) (Topic, bool) {
	i := slices.IndexFunc(topics, func(t Topic) bool { return t.ID == id })
	if i < 0 {
		return Topic{}, false
	}
	return topics[i], true
}
