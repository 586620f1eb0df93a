package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/MariuszDW/BuyBuy-sub001/internal/backup"
	"github.com/MariuszDW/BuyBuy-sub001/internal/model"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/shopspring/decimal"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true)
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	doneStyle   = lipgloss.NewStyle().Strikethrough(true).Foreground(lipgloss.Color("8"))

	swatches = map[model.ListColor]lipgloss.Color{
		model.ListColorRed:    "1",
		model.ListColorGreen:  "2",
		model.ListColorYellow: "3",
		model.ListColorBlue:   "4",
		model.ListColorPurple: "5",
		model.ListColorOrange: "208",
		model.ListColorGray:   "8",
	}
)

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.HiddenBorder()).
		StyleFunc(func(row, col int) lipgloss.Style {
			s := lipgloss.NewStyle().PaddingRight(1)
			if row == table.HeaderRow {
				return s.Inherit(headerStyle)
			}
			return s
		}).
		Headers(headers...)
}

func swatch(c model.ListColor) string {
	color, ok := swatches[c]
	if !ok {
		return " "
	}
	return lipgloss.NewStyle().Foreground(color).Render("●")
}

type listRow struct {
	list    model.ShoppingList
	pending int
	total   int
}

func printLists(w io.Writer, rows []listRow) {
	if len(rows) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("no lists"))
		return
	}
	t := newTable("", "ID", "NAME", "ITEMS", "NOTE")
	for _, r := range rows {
		note := ""
		if r.list.Note != nil {
			note = *r.list.Note
		}
		t.Row(swatch(r.list.Color), r.list.ID, r.list.Name,
			fmt.Sprintf("%d/%d", r.pending, r.total), note)
	}
	fmt.Fprintln(w, t)
}

func quantity(item *model.ShoppingItem) string {
	if item.Quantity == nil {
		return ""
	}
	q := item.Quantity.String()
	if item.Unit != nil {
		q += " " + item.Unit.Symbol()
	}
	return q
}

func money(d *decimal.Decimal) string {
	if d == nil {
		return ""
	}
	return d.StringFixed(2)
}

// printItems writes the items and the sum of the known totals.
func printItems(w io.Writer, items []model.ShoppingItem) {
	if len(items) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("no items"))
		return
	}
	t := newTable("ID", "STATUS", "NAME", "QTY", "PRICE", "TOTAL")
	sum := decimal.Zero
	for i := range items {
		item := &items[i]
		name := item.Name
		switch item.Status {
		case model.ItemStatusPurchased:
			name = doneStyle.Render(name)
		case model.ItemStatusInactive:
			name = mutedStyle.Render(name)
		}
		total := item.TotalPrice()
		if total != nil {
			sum = sum.Add(*total)
		}
		t.Row(item.ID, string(item.Status), name, quantity(item), money(item.UnitPrice), money(total))
	}
	fmt.Fprintln(w, t)
	fmt.Fprintf(w, "%s %s\n", headerStyle.Render("total"), sum.StringFixed(2))
}

func printTrash(w io.Writer, items []model.ShoppingItem) {
	if len(items) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("trash is empty"))
		return
	}
	t := newTable("ID", "NAME", "DELETED")
	for i := range items {
		deleted := items[i].UpdatedAt
		if items[i].DeletedAt != nil {
			deleted = *items[i].DeletedAt
		}
		t.Row(items[i].ID, items[i].Name, deleted.Local().Format("2006-01-02 15:04"))
	}
	fmt.Fprintln(w, t)
}

func printSnapshots(w io.Writer, snaps []backup.Snapshot) {
	if len(snaps) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("no snapshots"))
		return
	}
	t := newTable("NAME", "CREATED", "SIZE", "ENCRYPTED")
	for _, s := range snaps {
		t.Row(s.Name, s.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			strconv.FormatInt(s.Size, 10), strconv.FormatBool(s.Encrypted))
	}
	fmt.Fprintln(w, t)
}
