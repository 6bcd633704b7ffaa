package contactlog

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// DateLayout is the serialized form of an entry date.
const DateLayout = "2006-01-02"

// Channel is how the advisor reached the merchant.
type Channel string

const (
	ChannelCall     Channel = "Call"
	ChannelEmail    Channel = "Email"
	ChannelChat     Channel = "Chat"
	ChannelInPerson Channel = "InPerson"
)

var channelAliases = map[string]Channel{
	"call":               ChannelCall,
	"llamada":            ChannelCall,
	"phone":              ChannelCall,
	"email":              ChannelEmail,
	"e-mail":             ChannelEmail,
	"chat":               ChannelChat,
	"whatsapp":           ChannelChat,
	"inperson":           ChannelInPerson,
	"in person":          ChannelInPerson,
	"in-person":          ChannelInPerson,
	"reunión presencial": ChannelInPerson,
	"reunion presencial": ChannelInPerson,
}

// ParseChannel accepts canonical names and the dashboard's Spanish labels.
func ParseChannel(s string) (Channel, error) {
	if c, ok := channelAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return c, nil
	}
	return "", &ValidationError{Field: "channel", Reason: fmt.Sprintf("unknown channel %q", s)}
}

// Priority is the ordered urgency of the advisor's commitment.
type Priority string

const (
	PriorityLow    Priority = "Low"
	PriorityMedium Priority = "Medium"
	PriorityHigh   Priority = "High"
)

var priorityAliases = map[string]Priority{
	"low":    PriorityLow,
	"baja":   PriorityLow,
	"medium": PriorityMedium,
	"media":  PriorityMedium,
	"high":   PriorityHigh,
	"alta":   PriorityHigh,
}

// ParsePriority accepts canonical names and the dashboard's Spanish labels.
func ParsePriority(s string) (Priority, error) {
	if p, ok := priorityAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return p, nil
	}
	return "", &ValidationError{Field: "priority", Reason: fmt.Sprintf("unknown priority %q", s)}
}

// Rank orders priorities: Low < Medium < High. Unknown priorities rank 0.
func (p Priority) Rank() int {
	switch p {
	case PriorityLow:
		return 1
	case PriorityMedium:
		return 2
	case PriorityHigh:
		return 3
	}
	return 0
}

// Entry is one advisor interaction with a merchant. Entries are never
// updated or deleted once appended.
type Entry struct {
	ID            string    `json:"id"`
	Date          time.Time `json:"date"`
	AdvisorName   string    `json:"advisor_name" validate:"required"`
	MerchantTaxID int64     `json:"merchant_tax_id" validate:"gt=0"`
	MerchantName  string    `json:"merchant_name"`
	Channel       Channel   `json:"channel" validate:"oneof=Call Email Chat InPerson"`
	Summary       string    `json:"summary"`
	Commitment    string    `json:"commitment"`
	Priority      Priority  `json:"priority" validate:"oneof=Low Medium High"`
}

// DateString returns the entry date as YYYY-MM-DD.
func (e Entry) DateString() string {
	return e.Date.Format(DateLayout)
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks the write guard of an entry: a non-blank advisor, a
// merchant reference and known enum values.
func Validate(e Entry) error {
	if strings.TrimSpace(e.AdvisorName) == "" {
		return &ValidationError{Field: "advisor_name", Reason: "advisor name is required"}
	}
	if err := validate.Struct(e); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
			fe := verrs[0]
			return &ValidationError{
				Field:  fe.Field(),
				Reason: fmt.Sprintf("failed %q rule with value %v", fe.Tag(), fe.Value()),
			}
		}
		return &ValidationError{Reason: err.Error()}
	}
	if e.Date.IsZero() {
		return &ValidationError{Field: "date", Reason: "date is required"}
	}
	return nil
}

// Prepare normalizes e for storage: trims text, turns CRLF line breaks into
// LF, defaults the date to today and the priority to Low, assigns an ID, then
// validates. Backends call it before touching storage so a rejected entry
// never mutates the log, and every backend stores the same text.
func Prepare(e Entry) (Entry, error) {
	e.AdvisorName = cleanText(e.AdvisorName)
	e.MerchantName = cleanText(e.MerchantName)
	e.Summary = cleanText(e.Summary)
	e.Commitment = cleanText(e.Commitment)
	if e.Priority == "" {
		e.Priority = PriorityLow
	}
	if e.Date.IsZero() {
		e.Date = time.Now()
	}
	e.Date = truncateDay(e.Date)
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if err := Validate(e); err != nil {
		return Entry{}, err
	}
	return e, nil
}

// ParseDate parses YYYY-MM-DD. An empty string yields the zero time, which
// Prepare turns into today.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, &ValidationError{Field: "date", Reason: fmt.Sprintf("expected YYYY-MM-DD, got %q", s)}
	}
	return t, nil
}

// cleanText trims s and normalizes CRLF to LF. CSV readers drop the CR.
func cleanText(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(s, "\r\n", "\n"))
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
