package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/trezcool/hazira/core/attendance"
	"github.com/trezcool/hazira/core/enrollment"
)

var (
	colorRed    = lipgloss.Color("#FF0000")
	colorGreen  = lipgloss.Color("#00FF00")
	colorYellow = lipgloss.Color("#FFFF00")
	colorCyan   = lipgloss.Color("#00FFFF")
	colorGray   = lipgloss.Color("#666666")

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorCyan)

	labelStyle = lipgloss.NewStyle().
			Foreground(colorGray).
			Width(12)

	okStyle = lipgloss.NewStyle().
		Foreground(colorGreen)

	warnStyle = lipgloss.NewStyle().
			Foreground(colorYellow)

	errorStyle = lipgloss.NewStyle().
			Foreground(colorRed).
			Bold(true)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorGray).
			Padding(0, 1)
)

var statusStyles = map[attendance.Status]lipgloss.Style{
	attendance.StatusPresent: okStyle,
	attendance.StatusLate:    warnStyle,
	attendance.StatusAbsent:  errorStyle,
}

func renderStatus(st attendance.Status) string {
	if style, ok := statusStyles[st]; ok {
		return style.Render(string(st))
	}
	return string(st)
}

// renderGuidance formats one enrollment status line: state, attempts and the text for the subject.
func renderGuidance(st enrollment.Status) string {
	style := warnStyle
	switch st.State {
	case enrollment.Committed:
		style = okStyle
	case enrollment.Failed, enrollment.Cancelled:
		style = errorStyle
	}
	line := fmt.Sprintf("%-12s %s", st.State, style.Render(st.Guidance()))
	if st.State == enrollment.Countdown {
		line += fmt.Sprintf(" %d", st.Countdown)
	}
	if st.Attempts > 0 {
		line += labelStyle.Render(fmt.Sprintf(" (#%d)", st.Attempts))
	}
	return line
}

type kv struct {
	key, value string
}

func renderPanel(title string, rows ...kv) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(title))
	for _, r := range rows {
		b.WriteString("\n")
		b.WriteString(labelStyle.Render(r.key))
		b.WriteString(r.value)
	}
	return boxStyle.Render(b.String())
}
