package views

import (
	"fmt"
	"time"

	"github.com/rivo/tview"

	"dormchat/internal/models"
)

// ContactList is the conversation list table.
type ContactList struct {
	*tview.Table
	contacts   []models.Contact
	selectedFn func() (int, int)
}

// NewContactList creates the conversation list.
func NewContactList() *ContactList {
	table := tview.NewTable().
		SetSelectable(true, false).
		SetBorders(false)
	table.SetBorder(true).SetTitle(" Conversations ")

	cl := &ContactList{Table: table}
	cl.selectedFn = table.GetSelection
	return cl
}

// Update refreshes the list. Contacts are expected pre-sorted, most recent
// conversation first.
func (cl *ContactList) Update(contacts []models.Contact) {
	cl.contacts = contacts
	cl.Clear()

	cl.SetCell(0, 0, tview.NewTableCell(" Name").SetSelectable(false).SetTextColor(tview.Styles.SecondaryTextColor))
	cl.SetCell(0, 1, tview.NewTableCell(" Last Message").SetSelectable(false).SetTextColor(tview.Styles.SecondaryTextColor))
	cl.SetCell(0, 2, tview.NewTableCell(" Time").SetSelectable(false).SetTextColor(tview.Styles.SecondaryTextColor))

	for i, c := range contacts {
		row := i + 1
		name := c.DisplayName
		if c.IsOnline {
			name = "● " + name
		}
		if c.UnreadCount > 0 {
			name = fmt.Sprintf("%s (%d)", name, c.UnreadCount)
		}

		cl.SetCell(row, 0, tview.NewTableCell(" "+sanitizeForTerminal(name)).SetMaxWidth(30).SetExpansion(1))
		cl.SetCell(row, 1, tview.NewTableCell(" "+sanitizeForTerminal(c.LastMessage)).SetMaxWidth(40).SetExpansion(2))
		cl.SetCell(row, 2, tview.NewTableCell(" "+formatTimestamp(c.LastMessageTime)).SetMaxWidth(12))
	}
}

// SelectedContact returns the user ID of the highlighted row, or 0.
func (cl *ContactList) SelectedContact() int64 {
	row, _ := cl.selectedFn()
	idx := row - 1 // account for header
	if idx >= 0 && idx < len(cl.contacts) {
		return cl.contacts[idx].ID
	}
	return 0
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	now := time.Now()
	if t.Year() == now.Year() && t.YearDay() == now.YearDay() {
		return t.Format("15:04")
	}
	return t.Format("01/02")
}
