// Package agenda renders a calendar window as a terminal list view, one
// block per day.
package agenda

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"storecal/internal/model"
	"storecal/internal/present"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	dayStyle    = lipgloss.NewStyle().Bold(true).Underline(true).MarginTop(1)
	timeStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Width(13)
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Italic(true)
	emptyStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Italic(true)
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)

	badgeStyles = map[model.UrgencyTier]lipgloss.Style{
		model.TierPast:     lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		model.TierCritical: lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
		model.TierHigh:     lipgloss.NewStyle().Foreground(lipgloss.Color("208")).Bold(true),
		model.TierMedium:   lipgloss.NewStyle().Foreground(lipgloss.Color("220")),
		model.TierLow:      lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
	}
)

// Render formats occurrences grouped by their local date in loc. title is
// printed as a heading when not empty.
func Render(title string, occ []model.Occurrence, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	var b strings.Builder
	if title != "" {
		b.WriteString(headerStyle.Render(title))
		b.WriteString("\n")
	}
	groups := present.GroupByDay(occ, loc)
	if len(groups) == 0 {
		b.WriteString(emptyStyle.Render("No events in this window"))
		b.WriteString("\n")
		return b.String()
	}
	for _, g := range groups {
		b.WriteString(dayStyle.Render(g.Date.Format("Monday, January 2 2006")))
		b.WriteString("\n")
		for _, o := range g.Occurrences {
			b.WriteString(line(o, loc))
			b.WriteString("\n")
		}
	}
	return b.String()
}

// RenderError formats a failed fetch.
func RenderError(title string, err error) string {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return headerStyle.Render(title) + "\n" + errorStyle.Render("Could not load events: "+msg) + "\n"
}

func line(o model.Occurrence, loc *time.Location) string {
	when := "all day"
	if !o.AllDay {
		start := o.Start.In(loc)
		when = start.Format("15:04")
		if o.End != nil {
			when += "-" + o.End.In(loc).Format("15:04")
		}
	}

	color := o.DisplayColor
	if color == "" {
		color = present.Color(o.Event)
	}
	marker := "●"
	if o.Emoji != "" {
		marker = o.Emoji
	}
	title := lipgloss.NewStyle().Foreground(lipgloss.Color(color)).Bold(true).Render(marker + " " + o.Title)

	parts := []string{timeStyle.Render(when), title}
	if o.Urgency.Label != "" {
		parts = append(parts, badgeStyles[o.Urgency.Tier].Render("["+o.Urgency.Label+"]"))
	}
	if a := o.Availability; a != nil {
		parts = append(parts, dimStyle.Render(slotText(*a)))
	}
	if r := o.Readiness; r != nil {
		parts = append(parts, dimStyle.Render(fmt.Sprintf("stock %d/%d ready (%d%%)", r.Ready, r.Total, r.Percentage)))
	}
	if o.Status == model.StatusCancelled {
		parts = append(parts, dimStyle.Render("cancelled"))
	}
	return strings.Join(parts, " ")
}

func slotText(a model.SlotAvailability) string {
	switch {
	case a.Unbounded:
		return fmt.Sprintf("%d booked", a.Current)
	case !a.Available:
		return fmt.Sprintf("full %d/%d", a.Current, a.Max)
	default:
		return fmt.Sprintf("%d of %d left", a.Remaining, a.Max)
	}
}
