package followup

import (
	"fmt"
	"strings"
)

// FormatReminder renders a follow-up as a plain-text reminder.
func FormatReminder(f Followup) string {
	var b strings.Builder

	fmt.Fprintf(&b, "🧑‍🤝‍🧑 Follow up with %s\n", f.PersonName)
	fmt.Fprintf(&b, "   Household: %s\n", f.Household)
	if f.Phone != "" {
		fmt.Fprintf(&b, "   📞 %s\n", f.Phone)
	}
	if f.Email != "" {
		fmt.Fprintf(&b, "   📧 %s\n", f.Email)
	}
	if f.IsOverdue {
		fmt.Fprintf(&b, "   ⚠️ OVERDUE by %d %s\n", f.DaysOverdue, plural(f.DaysOverdue, "day", "days"))
	}

	fmt.Fprintf(&b, "\n🎯 This Month's Theme: %s\n", f.Theme)
	for _, q := range f.ThemeQuestions {
		fmt.Fprintf(&b, "   • %s\n", q)
	}

	if len(f.HistoryQuestions) > 0 {
		b.WriteString("\n📝 From Previous Contact:\n")
		for _, q := range f.HistoryQuestions {
			fmt.Fprintf(&b, "   • %s\n", q)
		}
	}

	if f.PreviousContacts > 0 {
		fmt.Fprintf(&b, "\n   (%d previous %s logged)\n", f.PreviousContacts, plural(f.PreviousContacts, "contact", "contacts"))
	}

	return strings.TrimRight(b.String(), "\n")
}

// FormatDigest renders several follow-ups separated by rules.
func FormatDigest(followups []Followup) string {
	if len(followups) == 0 {
		return "No follow-ups scheduled for today."
	}
	parts := make([]string, len(followups))
	for i, f := range followups {
		parts[i] = FormatReminder(f)
	}
	header := fmt.Sprintf("Today's Follow-ups (%d):\n\n", len(followups))
	return header + strings.Join(parts, "\n\n"+strings.Repeat("=", 50)+"\n\n")
}

// FormatSummary renders a month's progress and assignment list.
func FormatSummary(s *Summary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Follow-up Summary for %s\n", s.Month)
	fmt.Fprintf(&b, "Theme: %s\n\n", s.Theme)
	fmt.Fprintf(&b, "Progress: %d/%d (%s)\n", s.Completed, s.TotalHouseholds, s.CompletionRate)
	fmt.Fprintf(&b, "Remaining: %d\n", s.Remaining)

	if len(s.Assignments) > 0 {
		b.WriteString("\nAssignments:\n")
		for _, a := range s.Assignments {
			mark := "○"
			if a.Completed {
				mark = "✓"
			}
			fmt.Fprintf(&b, "  %s %s: %s (%s)\n", mark, a.AssignedDate, a.PersonName, a.HouseholdName)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
