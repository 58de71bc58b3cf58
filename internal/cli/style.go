package cli

import (
	"github.com/charmbracelet/lipgloss"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("62"))

	statusPending  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	statusActive   = lipgloss.NewStyle().Foreground(lipgloss.Color("226"))
	statusApproval = lipgloss.NewStyle().Foreground(lipgloss.Color("141")).Bold(true)
	statusDone     = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))
	statusFailed   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))

	helpStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// renderStatus 按状态着色，宽度对齐到 width
func renderStatus(status string, width int) string {
	var style lipgloss.Style
	switch status {
	case "PENDING":
		style = statusPending
	case "IN_PROGRESS":
		style = statusActive
	case "PENDING_APPROVAL":
		style = statusApproval
	case "COMPLETED", "EXECUTED", "APPROVED":
		style = statusDone
	case "FAILED", "REJECTED":
		style = statusFailed
	default:
		return lipgloss.NewStyle().Width(width).Render(status)
	}
	return style.Width(width).Render(status)
}
