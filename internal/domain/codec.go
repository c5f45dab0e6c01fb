package domain

import (
	"fmt"
	"slices"
	"sort"
	"time"

	jsoniter "github.com/json-iterator/go"
)

// json matches keys case-sensitively, unlike the standard library.
var json = jsoniter.Config{
	EscapeHTML:             true,
	SortMapKeys:            true,
	ValidateJsonRawMessage: true,
	CaseSensitive:          true,
}.Froze()

// Fields every stored document carries. The store owns them.
const (
	FieldID        = "id"
	FieldCreatedAt = "createdAt"
	FieldUpdatedAt = "updatedAt"
)

const (
	FieldCommentable   = "commentable"
	FieldPostType      = "postType"
	FieldContent       = "content"
	FieldComments      = "comments"
	FieldCommentsCount = "commentsCount"
	FieldSharedFrom    = "sharedFrom"

	FieldPost    = "post"
	FieldReplyTo = "replyTo"
)

type meta struct {
	ID        string     `json:"id"`
	CreatedAt *time.Time `json:"createdAt"`
	UpdatedAt *time.Time `json:"updatedAt"`
}

type postHeader struct {
	meta
	Commentable *bool    `json:"commentable" validate:"required"`
	PostType    PostType `json:"postType" validate:"required"`
}

// variantPayload is the decoded shape of the fields a variant adds to
// the header.
type variantPayload interface {
	body() *ContentBody
	toVariant() Variant
}

type contentPayload struct {
	Content *ContentBody `json:"content" validate:"required"`

	question bool
}

type pollPayload struct {
	Content                        *ContentBody `json:"content" validate:"required"`
	ResponseOptions                []string     `json:"responseOptions" validate:"required,min=2,dive,required"`
	AllowAdditionalResponseOptions *bool        `json:"allowAdditionalResponseOptions" validate:"required"`
	AllowMultipleSelection         *bool        `json:"allowMultipleSelection" validate:"required"`
	Anonymous                      *bool        `json:"anonymous" validate:"required"`
}

type schedulingPayload struct {
	Content                        *ContentBody `json:"content" validate:"required"`
	AllowAdditionalResponseOptions *bool        `json:"allowAdditionalResponseOptions" validate:"required"`
	AllowMultipleSelection         *bool        `json:"allowMultipleSelection" validate:"required"`
	AllowNoAnswerFit               *bool        `json:"allowNoAnswerFit" validate:"required"`
}

type eventPayload struct {
	Content    *ContentBody   `json:"content" validate:"required"`
	Title      string         `json:"title" validate:"required"`
	StartDate  *time.Time     `json:"startDate" validate:"required"`
	EndDate    *time.Time     `json:"endDate"`
	Fullday    *bool          `json:"fullday" validate:"required"`
	OnSite     *bool          `json:"onSite" validate:"required"`
	Remote     *bool          `json:"remote" validate:"required"`
	RemoteInfo *string        `json:"remoteInfo"`
	Location   *EventLocation `json:"location"`
	Category   *EventCategory `json:"category" validate:"omitnil,oneof=event party conference fair online seminar conference-call workshop"`

	RegistrationMode                     RegistrationMode `json:"registrationMode" validate:"required,oneof=no internal external"`
	SaveTheDate                          *bool            `json:"saveTheDate"`
	MaxParticipants                      *int             `json:"maxParticipants" validate:"omitnil,min=1"`
	CloseRegistrationWithMaxParticipants *int             `json:"closeRegistrationWithMaxParticipants" validate:"omitnil,min=1"`
	Paid                                 *bool            `json:"paid"`
	Costs                                *string          `json:"costs"`
	OpenParticipantsList                 *bool            `json:"openParticipantsList"`
	RegistrationLink                     *string          `json:"registrationLink" validate:"omitnil,url"`
	Deadline                             *time.Time       `json:"deadline"`
}

type sharedPayload struct {
	Content    *ContentBody `json:"content"`
	SharedFrom string       `json:"sharedFrom" validate:"required"`
}

func newPayload(t PostType) (variantPayload, bool) {
	switch t {
	case PostTypeText:
		return &contentPayload{}, true
	case PostTypeQuestion:
		return &contentPayload{question: true}, true
	case PostTypePoll:
		return &pollPayload{}, true
	case PostTypeScheduling:
		return &schedulingPayload{}, true
	case PostTypeEvent:
		return &eventPayload{}, true
	case PostTypeShared:
		return &sharedPayload{}, true
	default:
		return nil, false
	}
}

func (p *contentPayload) body() *ContentBody    { return p.Content }
func (p *pollPayload) body() *ContentBody       { return p.Content }
func (p *schedulingPayload) body() *ContentBody { return p.Content }
func (p *eventPayload) body() *ContentBody      { return p.Content }
func (p *sharedPayload) body() *ContentBody     { return p.Content }

func (p *contentPayload) toVariant() Variant {
	if p.question {
		return QuestionPost{}
	}
	return TextPost{}
}

func (p *pollPayload) toVariant() Variant {
	return PollPost{
		ResponseOptions:                slices.Clone(p.ResponseOptions),
		AllowAdditionalResponseOptions: *p.AllowAdditionalResponseOptions,
		AllowMultipleSelection:         *p.AllowMultipleSelection,
		Anonymous:                      *p.Anonymous,
	}
}

func (p *schedulingPayload) toVariant() Variant {
	return SchedulingPost{
		AllowAdditionalResponseOptions: *p.AllowAdditionalResponseOptions,
		AllowMultipleSelection:         *p.AllowMultipleSelection,
		AllowNoAnswerFit:               *p.AllowNoAnswerFit,
	}
}

func (p *eventPayload) toVariant() Variant {
	return EventPost{
		Title:                                p.Title,
		StartDate:                            p.StartDate.UTC(),
		EndDate:                              utc(p.EndDate),
		Fullday:                              *p.Fullday,
		OnSite:                               *p.OnSite,
		Remote:                               *p.Remote,
		RemoteInfo:                           p.RemoteInfo,
		Location:                             p.Location,
		Category:                             p.Category,
		RegistrationMode:                     p.RegistrationMode,
		SaveTheDate:                          p.SaveTheDate,
		MaxParticipants:                      p.MaxParticipants,
		CloseRegistrationWithMaxParticipants: p.CloseRegistrationWithMaxParticipants,
		Paid:                                 p.Paid,
		Costs:                                p.Costs,
		OpenParticipantsList:                 p.OpenParticipantsList,
		RegistrationLink:                     p.RegistrationLink,
		Deadline:                             utc(p.Deadline),
	}
}

// check covers the rules that span several event fields.
func (p *eventPayload) check() []FieldError {
	var fields []FieldError
	if p.StartDate != nil && p.EndDate != nil && p.EndDate.Before(*p.StartDate) {
		fields = append(fields, FieldError{Field: "endDate", Reason: "must not be before startDate"})
	}
	if p.RegistrationMode == RegistrationExternal && (p.RegistrationLink == nil || *p.RegistrationLink == "") {
		fields = append(fields, FieldError{Field: "registrationLink", Reason: "is required for external registration"})
	}
	return fields
}

func (p *sharedPayload) toVariant() Variant {
	return SharedPost{SharedFrom: p.SharedFrom}
}

// DecodePost builds a post from a document, checking that the fields
// exactly match the set its postType allows.
func DecodePost(doc Document) (*Post, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, Invalid("", "payload is not serializable")
	}

	var header postHeader
	if err := json.Unmarshal(raw, &header); err != nil {
		return nil, &ValidationError{Fields: []FieldError{decodeFailure(err, &header)}}
	}
	if fields := validateStruct(&header); len(fields) > 0 {
		return nil, &ValidationError{Fields: fields}
	}

	payload, ok := newPayload(header.PostType)
	if !ok {
		return nil, Invalid(FieldPostType, fmt.Sprintf("unknown post type %q", header.PostType))
	}

	fields := unknownFields(doc, string(header.PostType), jsonFields(&header), jsonFields(&header.meta), jsonFields(payload))
	fields = append(fields, nestedUnknownFields(doc, FieldContent, jsonFields(&ContentBody{}))...)
	if _, ok := payload.(*eventPayload); ok {
		fields = append(fields, nestedUnknownFields(doc, "location", jsonFields(&EventLocation{}))...)
	}
	if err := json.Unmarshal(raw, payload); err != nil {
		fields = append(fields, decodeFailure(err, payload))
		return nil, &ValidationError{Fields: fields}
	}
	fields = append(fields, validateStruct(payload)...)
	if c, ok := payload.(interface{ check() []FieldError }); ok {
		fields = append(fields, c.check()...)
	}
	if len(fields) > 0 {
		return nil, &ValidationError{Fields: fields}
	}

	post := &Post{
		ID:          header.ID,
		Commentable: *header.Commentable,
		Content:     payload.body(),
		Variant:     payload.toVariant(),
	}
	if header.CreatedAt != nil {
		post.CreatedAt = header.CreatedAt.UTC()
	}
	if header.UpdatedAt != nil {
		post.UpdatedAt = header.UpdatedAt.UTC()
	}
	return post, nil
}

func unknownFields(doc Document, owner string, allowed ...map[string]struct{}) []FieldError {
	var fields []FieldError
	for key := range doc {
		known := false
		for _, set := range allowed {
			if _, ok := set[key]; ok {
				known = true
				break
			}
		}
		if !known {
			fields = append(fields, FieldError{Field: key, Reason: fmt.Sprintf("is not allowed for %s", owner)})
		}
	}
	sort.Slice(fields, func(i, j int) bool { return fields[i].Field < fields[j].Field })
	return fields
}

// nestedUnknownFields runs the same check on the object under key and
// reports offenders as key.field.
func nestedUnknownFields(doc Document, key string, allowed map[string]struct{}) []FieldError {
	nested, ok := doc[key].(map[string]any)
	if !ok {
		return nil
	}
	fields := unknownFields(nested, key, allowed)
	for i := range fields {
		fields[i].Field = prefixed(key, fields[i].Field)
	}
	return fields
}

// EncodePost returns the stored shape of p. Computed relations are left out.
func EncodePost(p *Post) (Document, error) {
	doc := Document{
		FieldCommentable: p.Commentable,
		FieldPostType:    string(p.Type()),
	}
	putMeta(doc, p.ID, p.CreatedAt, p.UpdatedAt)
	if p.Content != nil {
		doc[FieldContent] = p.Content.document()
	}

	switch v := p.Variant.(type) {
	case TextPost, QuestionPost:
	case PollPost:
		doc["responseOptions"] = slices.Clone(v.ResponseOptions)
		doc["allowAdditionalResponseOptions"] = v.AllowAdditionalResponseOptions
		doc["allowMultipleSelection"] = v.AllowMultipleSelection
		doc["anonymous"] = v.Anonymous
	case SchedulingPost:
		doc["allowAdditionalResponseOptions"] = v.AllowAdditionalResponseOptions
		doc["allowMultipleSelection"] = v.AllowMultipleSelection
		doc["allowNoAnswerFit"] = v.AllowNoAnswerFit
	case EventPost:
		doc["title"] = v.Title
		doc["startDate"] = v.StartDate
		doc["fullday"] = v.Fullday
		doc["onSite"] = v.OnSite
		doc["remote"] = v.Remote
		doc["registrationMode"] = string(v.RegistrationMode)
		putOptional(doc, "endDate", v.EndDate)
		putOptional(doc, "remoteInfo", v.RemoteInfo)
		if v.Location != nil {
			doc["location"] = v.Location.document()
		}
		if v.Category != nil {
			doc["category"] = string(*v.Category)
		}
		putOptional(doc, "saveTheDate", v.SaveTheDate)
		putOptional(doc, "maxParticipants", v.MaxParticipants)
		putOptional(doc, "closeRegistrationWithMaxParticipants", v.CloseRegistrationWithMaxParticipants)
		putOptional(doc, "paid", v.Paid)
		putOptional(doc, "costs", v.Costs)
		putOptional(doc, "openParticipantsList", v.OpenParticipantsList)
		putOptional(doc, "registrationLink", v.RegistrationLink)
		putOptional(doc, "deadline", v.Deadline)
	case SharedPost:
		doc[FieldSharedFrom] = v.SharedFrom
	default:
		return nil, Invalid(FieldPostType, "unknown post variant")
	}
	return doc, nil
}

// EncodePostWithRelations adds the computed comments and commentsCount
// to the stored shape.
func EncodePostWithRelations(p *Post) (Document, error) {
	doc, err := EncodePost(p)
	if err != nil {
		return nil, err
	}
	comments := make([]Document, 0, len(p.Comments))
	for _, c := range p.Comments {
		comments = append(comments, EncodeComment(c))
	}
	doc[FieldComments] = comments
	doc[FieldCommentsCount] = p.CommentsCount
	return doc, nil
}

type commentWire struct {
	meta
	Post    string       `json:"post" validate:"required"`
	ReplyTo *string      `json:"replyTo" validate:"omitnil,min=1"`
	Content *ContentBody `json:"content" validate:"required"`
}

// DecodeComment builds a comment from a document.
func DecodeComment(doc Document) (*Comment, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, Invalid("", "payload is not serializable")
	}

	var wire commentWire
	fields := unknownFields(doc, "comment", jsonFields(&wire), jsonFields(&wire.meta))
	fields = append(fields, nestedUnknownFields(doc, FieldContent, jsonFields(&ContentBody{}))...)
	if err := json.Unmarshal(raw, &wire); err != nil {
		fields = append(fields, decodeFailure(err, &wire))
		return nil, &ValidationError{Fields: fields}
	}
	fields = append(fields, validateStruct(&wire)...)
	if len(fields) > 0 {
		return nil, &ValidationError{Fields: fields}
	}

	comment := &Comment{
		ID:      wire.ID,
		PostID:  wire.Post,
		ReplyTo: wire.ReplyTo,
		Content: *wire.Content,
	}
	if wire.CreatedAt != nil {
		comment.CreatedAt = wire.CreatedAt.UTC()
	}
	if wire.UpdatedAt != nil {
		comment.UpdatedAt = wire.UpdatedAt.UTC()
	}
	return comment, nil
}

// DecodeContent validates a standalone content body, as sent when a
// comment is edited.
func DecodeContent(doc Document) (*ContentBody, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, Invalid(FieldContent, "is not serializable")
	}
	var body ContentBody
	if fields := nestedUnknownFields(Document{FieldContent: doc}, FieldContent, jsonFields(&body)); len(fields) > 0 {
		return nil, &ValidationError{Fields: fields}
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		fe := decodeFailure(err, &body)
		fe.Field = prefixed(FieldContent, fe.Field)
		return nil, &ValidationError{Fields: []FieldError{fe}}
	}
	fields := validateStruct(&body)
	for i := range fields {
		fields[i].Field = prefixed(FieldContent, fields[i].Field)
	}
	if len(fields) > 0 {
		return nil, &ValidationError{Fields: fields}
	}
	return &body, nil
}

// EncodeComment returns the stored shape of c.
func EncodeComment(c *Comment) Document {
	doc := Document{
		FieldPost:    c.PostID,
		FieldContent: c.Content.document(),
	}
	putMeta(doc, c.ID, c.CreatedAt, c.UpdatedAt)
	if c.ReplyTo != nil {
		doc[FieldReplyTo] = *c.ReplyTo
	}
	return doc
}

func (c ContentBody) document() Document {
	return Document{
		"rawContent":    c.RawContent,
		"contentFormat": string(c.ContentFormat),
	}
}

func (l EventLocation) document() Document {
	return Document{
		"name":    l.Name,
		"extra":   l.Extra,
		"street":  l.Street,
		"zip":     l.Zip,
		"city":    l.City,
		"country": l.Country,
	}
}

func putMeta(doc Document, id string, createdAt, updatedAt time.Time) {
	if id != "" {
		doc[FieldID] = id
	}
	if !createdAt.IsZero() {
		doc[FieldCreatedAt] = createdAt
	}
	if !updatedAt.IsZero() {
		doc[FieldUpdatedAt] = updatedAt
	}
}

func putOptional[T any](doc Document, key string, v *T) {
	if v != nil {
		doc[key] = *v
	}
}

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

func prefixed(prefix, field string) string {
	if field == "" {
		return prefix
	}
	return prefix + "." + field
}
