package tools

import (
	"context"

	"github.com/mitchellh/mapstructure"

	"github.com/troupe-ai/troupe/pkg/logger"
	"github.com/troupe-ai/troupe/pkg/protocol"
)

// CalendarEvent is the argument document of a CREATE_EVENT action.
type CalendarEvent struct {
	Title              string   `mapstructure:"title"`
	Description        string   `mapstructure:"description"`
	Date               string   `mapstructure:"date"`
	Owner              string   `mapstructure:"owner"`
	MandatoryAttendees []string `mapstructure:"mandatory_attendees"`
	OptionalAttendees  []string `mapstructure:"optional_attendees"`
	StartTime          string   `mapstructure:"start_time"`
	EndTime            string   `mapstructure:"end_time"`
}

// Calendar is a shared calendar agents can put events on.
type Calendar struct {
	baseTool
	events map[string][]CalendarEvent
}

func NewCalendar() *Calendar {
	return &Calendar{
		baseTool: baseTool{
			name:        "calendar",
			description: "A basic calendar tool that allows agents to keep track meetings and appointments.",
		},
		events: map[string][]CalendarEvent{},
	}
}

func (c *Calendar) ActionsDefinitions() string {
	return `- CREATE_EVENT: you can create a new event in your calendar. The content must be JSON of the form {"title": TITLE, "description": DESCRIPTION, "date": DATE, "mandatory_attendees": NAMES, "optional_attendees": NAMES, "start_time": START, "end_time": END}, where only the title is strictly required.`
}

func (c *Calendar) ActionsConstraints() string {
	return `- Whenever you CREATE_EVENT, you specify the title and as many of the other fields as you know.`
}

// ProcessAction consumes CREATE_EVENT actions.
func (c *Calendar) ProcessAction(ctx context.Context, agentName string, action protocol.Action) (bool, error) {
	if action.Type != protocol.ActionCreateEvent {
		return false, nil
	}
	if err := c.checkUse(agentName); err != nil {
		return false, err
	}

	content, err := actionContentMap(action)
	if err != nil {
		logger.GetLogger().Error("CREATE_EVENT with malformed content",
			"agent", agentName, "error", err)
		return false, nil
	}

	var event CalendarEvent
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:      &event,
		ErrorUnused: true,
	})
	if err != nil {
		return false, err
	}
	if err := decoder.Decode(content); err != nil {
		logger.GetLogger().Error("CREATE_EVENT with invalid fields",
			"agent", agentName, "error", err)
		return false, nil
	}

	if event.Owner == "" {
		event.Owner = agentName
	}
	c.AddEvent(event)
	return true, nil
}

// AddEvent records an event under its date. Undated events go under
// an empty key.
func (c *Calendar) AddEvent(event CalendarEvent) {
	c.events[event.Date] = append(c.events[event.Date], event)
	logger.GetLogger().Info("calendar event created",
		"title", event.Title, "date", event.Date, "owner", event.Owner)
}

// FindEvents returns the events on a given date.
func (c *Calendar) FindEvents(date string) []CalendarEvent {
	out := make([]CalendarEvent, len(c.events[date]))
	copy(out, c.events[date])
	return out
}
