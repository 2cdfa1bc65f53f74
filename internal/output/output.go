// Package output provides styled terminal output helpers (success, error,
// warning, list and item formatting) using lipgloss.
package output

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/marcus/lists/internal/models"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true)
	subtleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	typeStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("212"))
	pendingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("45"))
	statusStyles = map[models.ItemStatus]lipgloss.Style{
		models.ItemPending: lipgloss.NewStyle().Foreground(lipgloss.Color("45")),
		models.ItemDone:    lipgloss.NewStyle().Foreground(lipgloss.Color("242")),
	}
)

// Success prints a success message
func Success(format string, args ...interface{}) {
	fmt.Println(successStyle.Render(fmt.Sprintf(format, args...)))
}

// Error prints an error message
func Error(format string, args ...interface{}) {
	fmt.Println(errorStyle.Render("ERROR: " + fmt.Sprintf(format, args...)))
}

// Warning prints a warning message
func Warning(format string, args ...interface{}) {
	fmt.Println(warningStyle.Render("Warning: " + fmt.Sprintf(format, args...)))
}

// Info prints an info message
func Info(format string, args ...interface{}) {
	fmt.Println(fmt.Sprintf(format, args...))
}

// ErrorText renders s in the error color without printing it
func ErrorText(s string) string {
	return errorStyle.Render(s)
}

// JSON outputs data as JSON
func JSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

// Error codes for structured JSON output
const (
	ErrCodeNotFound      = "not_found"
	ErrCodeInvalidInput  = "invalid_input"
	ErrCodeDatabaseError = "database_error"
	ErrCodeSyncError     = "sync_error"
	ErrCodeNotSignedIn   = "not_signed_in"
	ErrCodeSyncInFlight  = "sync_in_progress"
)

// JSONError outputs an error as JSON
func JSONError(code, message string) {
	data, _ := json.Marshal(map[string]any{
		"error": map[string]string{"code": code, "message": message},
	})
	fmt.Println(string(data))
}

// statusSymbols pairs each item status with its badge symbol.
var statusSymbols = map[models.ItemStatus]string{
	models.ItemPending: "○",
	models.ItemDone:    "✓",
}

func normalStatus(s models.ItemStatus) models.ItemStatus {
	if s == "" {
		return models.ItemPending
	}
	return s
}

// StatusBadge returns an item status with its symbol, e.g. "○ Pending", "✓ Done".
func StatusBadge(status models.ItemStatus) string {
	status = normalStatus(status)
	symbol, ok := statusSymbols[status]
	if !ok {
		symbol = "?"
	}
	text := fmt.Sprintf("%s %s", symbol, status)
	if style, ok := statusStyles[status]; ok {
		return style.Render(text)
	}
	return text
}

// FormatListType renders "type/subtype", or "" for an untyped list.
func FormatListType(l *models.List) string {
	if l.Type == "" {
		return ""
	}
	s := string(l.Type)
	if l.Subtype != "" {
		s += "/" + l.Subtype
	}
	return typeStyle.Render("[" + s + "]")
}

// SyncMarker flags entities with changes not yet pushed: "+" new, "*" changed, "-" deleted.
func SyncMarker(m *models.SyncMeta) string {
	switch m.ChangeFlag {
	case models.FlagNew:
		return pendingStyle.Render("+")
	case models.FlagChanged:
		return pendingStyle.Render("*")
	case models.FlagDeleted:
		return errorStyle.Render("-")
	}
	return ""
}

// FormatListShort formats a list on one line: id, name, type, progress, sync marker.
func FormatListShort(l *models.List) string {
	pending := len(models.ItemsByStatus(l.Items, models.ItemPending))
	done := len(models.ItemsByStatus(l.Items, models.ItemDone))

	parts := []string{
		titleStyle.Render(fmt.Sprintf("%d", l.LocalID)),
		l.Name,
	}
	if t := FormatListType(l); t != "" {
		parts = append(parts, t)
	}
	parts = append(parts, subtleStyle.Render(fmt.Sprintf("%d/%d done", done, pending+done)))
	if len(l.SharedWith) > 0 {
		parts = append(parts, subtleStyle.Render("shared with "+strings.Join(l.SharedWith, ", ")))
	}
	if mark := SyncMarker(&l.SyncMeta); mark != "" {
		parts = append(parts, mark)
	}
	return strings.Join(parts, "  ")
}

// FormatItemLine formats one item: id, badge, name, sync marker.
func FormatItemLine(item *models.ListItem) string {
	line := fmt.Sprintf("%4d  %s  %s", item.LocalID, StatusBadge(item.Status), item.Name)
	if mark := SyncMarker(&item.SyncMeta); mark != "" {
		line += "  " + mark
	}
	return line
}

// FormatListLong formats a list with its description and items grouped by
// status. notes, if non-empty, replaces the raw description (e.g. rendered markdown).
func FormatListLong(l *models.List, notes string) string {
	var sb strings.Builder

	sb.WriteString(titleStyle.Render(fmt.Sprintf("%d: %s", l.LocalID, l.Name)))
	if t := FormatListType(l); t != "" {
		sb.WriteString("  " + t)
	}
	sb.WriteString("\n")

	meta := []string{}
	if l.RemoteID != "" {
		meta = append(meta, "remote "+l.RemoteID)
	} else {
		meta = append(meta, "not synced")
	}
	if l.ModifiedAt > 0 {
		meta = append(meta, "modified "+FormatTimeAgo(time.UnixMilli(l.ModifiedAt)))
	}
	if len(l.SharedWith) > 0 {
		meta = append(meta, "shared with "+strings.Join(l.SharedWith, ", "))
	}
	sb.WriteString(subtleStyle.Render(strings.Join(meta, " | ")))
	sb.WriteString("\n")

	desc := notes
	if desc == "" {
		desc = l.Description
	}
	if desc != "" {
		sb.WriteString("\n")
		sb.WriteString(desc)
		sb.WriteString("\n")
	}

	for _, status := range []models.ItemStatus{models.ItemPending, models.ItemDone} {
		items := models.ItemsByStatus(l.Items, status)
		if len(items) == 0 {
			continue
		}
		sb.WriteString(SectionHeader(string(status)))
		for _, item := range items {
			sb.WriteString(FormatItemLine(item))
			sb.WriteString("\n")
			if item.Notes != "" {
				sb.WriteString(IndentString(subtleStyle.Render(item.Notes), 8))
				sb.WriteString("\n")
			}
		}
	}

	return sb.String()
}

// FormatTimeAgo formats a time as a human-readable "ago" string
func FormatTimeAgo(t time.Time) string {
	diff := time.Since(t)

	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		return fmt.Sprintf("%dm ago", int(diff.Minutes()))
	case diff < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(diff.Hours()))
	case diff < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(diff.Hours()/24))
	default:
		return t.Format("2006-01-02")
	}
}

// FormatLastSync describes a sync watermark; 0 means never.
func FormatLastSync(ms int64) string {
	if ms == 0 {
		return "never"
	}
	return FormatTimeAgo(time.UnixMilli(ms))
}

// SectionHeader returns a formatted section header for CLI output
// e.g., "\nPENDING:\n"
func SectionHeader(title string) string {
	return fmt.Sprintf("\n%s:\n", strings.ToUpper(title))
}

// IndentString indents each line in a string by the specified number of spaces
func IndentString(s string, spaces int) string {
	if s == "" {
		return ""
	}
	indent := strings.Repeat(" ", spaces)
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = indent + line
	}
	return strings.Join(lines, "\n")
}
