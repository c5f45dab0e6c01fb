package domain

import "time"

// PostType is the discriminator stored in the postType field.
type PostType string

const (
	PostTypeText       PostType = "post-text"
	PostTypeQuestion   PostType = "post-question"
	PostTypePoll       PostType = "post-poll"
	PostTypeScheduling PostType = "post-scheduling"
	PostTypeEvent      PostType = "post-event"
	PostTypeShared     PostType = "post-shared"
)

// PostTypes lists every known discriminator.
var PostTypes = []PostType{
	PostTypeText,
	PostTypeQuestion,
	PostTypePoll,
	PostTypeScheduling,
	PostTypeEvent,
	PostTypeShared,
}

// Valid reports whether t is one of the known discriminators.
func (t PostType) Valid() bool {
	for _, known := range PostTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Variant is the closed set of post payloads. Only types in this
// package implement it.
type Variant interface {
	PostType() PostType
	variant()
}

type TextPost struct{}

type QuestionPost struct{}

type PollPost struct {
	ResponseOptions                []string
	AllowAdditionalResponseOptions bool
	AllowMultipleSelection         bool
	Anonymous                      bool
}

type SchedulingPost struct {
	AllowAdditionalResponseOptions bool
	AllowMultipleSelection         bool
	AllowNoAnswerFit               bool
}

type EventCategory string

const (
	EventCategoryEvent          EventCategory = "event"
	EventCategoryParty          EventCategory = "party"
	EventCategoryConference     EventCategory = "conference"
	EventCategoryFair           EventCategory = "fair"
	EventCategoryOnline         EventCategory = "online"
	EventCategorySeminar        EventCategory = "seminar"
	EventCategoryConferenceCall EventCategory = "conference-call"
	EventCategoryWorkshop       EventCategory = "workshop"
)

type RegistrationMode string

const (
	RegistrationNo       RegistrationMode = "no"
	RegistrationInternal RegistrationMode = "internal"
	RegistrationExternal RegistrationMode = "external"
)

// EventLocation is embedded in event posts only. Optional parts default
// to the empty string.
type EventLocation struct {
	Name    string `json:"name" validate:"required"`
	Extra   string `json:"extra"`
	Street  string `json:"street"`
	Zip     string `json:"zip"`
	City    string `json:"city"`
	Country string `json:"country"`
}

type EventPost struct {
	Title      string
	StartDate  time.Time
	EndDate    *time.Time
	Fullday    bool
	OnSite     bool
	Remote     bool
	RemoteInfo *string
	Location   *EventLocation
	Category   *EventCategory

	RegistrationMode                     RegistrationMode
	SaveTheDate                          *bool
	MaxParticipants                      *int
	CloseRegistrationWithMaxParticipants *int
	Paid                                 *bool
	Costs                                *string
	OpenParticipantsList                 *bool
	RegistrationLink                     *string
	Deadline                             *time.Time
}

// SharedPost re-publishes another post.
type SharedPost struct {
	SharedFrom string
}

func (TextPost) PostType() PostType       { return PostTypeText }
func (QuestionPost) PostType() PostType   { return PostTypeQuestion }
func (PollPost) PostType() PostType       { return PostTypePoll }
func (SchedulingPost) PostType() PostType { return PostTypeScheduling }
func (EventPost) PostType() PostType      { return PostTypeEvent }
func (SharedPost) PostType() PostType     { return PostTypeShared }

func (TextPost) variant()       {}
func (QuestionPost) variant()   {}
func (PollPost) variant()       {}
func (SchedulingPost) variant() {}
func (EventPost) variant()      {}
func (SharedPost) variant()     {}
