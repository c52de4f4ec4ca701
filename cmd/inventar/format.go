package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/erazemk/inventar/internal/lifecycle"
	"github.com/erazemk/inventar/internal/model"
)

var statusLabels = map[model.Status]string{
	model.StatusAvailable:     "на складе",
	model.StatusIssued:        "выдано",
	model.StatusAtWork:        "в работе",
	model.StatusConfirm:       "ожидает подтверждения",
	model.StatusConfirmRepair: "ожидает ремонта",
	model.StatusInRepair:      "в ремонте",
	model.StatusRetired:       "списано",
}

func statusLabel(s model.Status) string {
	if l, ok := statusLabels[s]; ok {
		return l
	}
	return string(s)
}

type rowView struct {
	model.Item
	Holder string
	Mine   bool
}

func printItems(w io.Writer, rows []rowView, self string) {
	if len(rows) == 0 {
		fmt.Fprintln(w, "No items.")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tSERIAL\tSTATUS\tRESPONSIBLE\tLOCATION\tLOCK")
	for _, r := range rows {
		lock := ""
		switch {
		case r.Holder == "":
		case r.Mine || r.Holder == self:
			lock = "you"
		default:
			lock = r.Holder
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID, r.Name, dash(r.SerialNumber()), statusLabel(r.Status), dash(r.Responsible), dash(r.Location), lock)
	}
	tw.Flush()
}

func printItem(w io.Writer, it model.Item, holder string, actions []lifecycle.Action) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "ID:\t%d\n", it.ID)
	fmt.Fprintf(tw, "Name:\t%s\n", it.Name)
	fmt.Fprintf(tw, "Serial:\t%s\n", dash(it.SerialNumber()))
	fmt.Fprintf(tw, "Brand:\t%s\n", dash(it.Brand))
	fmt.Fprintf(tw, "Status:\t%s\n", statusLabel(it.Status))
	fmt.Fprintf(tw, "Responsible:\t%s\n", dash(it.Responsible))
	fmt.Fprintf(tw, "Location:\t%s\n", dash(it.Location))
	fmt.Fprintf(tw, "Quantity:\t%d\n", it.Qty)
	if it.BrigadeDetails != nil {
		fmt.Fprintf(tw, "Brigade:\t%s\n", it.BrigadeDetails.Name)
	} else if it.Brigade != nil {
		fmt.Fprintf(tw, "Brigade:\t%d\n", *it.Brigade)
	}
	if holder != "" {
		fmt.Fprintf(tw, "Locked by:\t%s\n", holder)
	}
	if len(actions) > 0 {
		fmt.Fprintf(tw, "Actions:\t%v\n", actions)
	}
	tw.Flush()

	if len(it.History) == 0 {
		return
	}
	fmt.Fprintln(w, "\nHistory:")
	tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, h := range it.History {
		line := h.Action
		if h.Comment != "" {
			line += ": " + h.Comment
		}
		fmt.Fprintf(tw, "  %s\t%s\t%s\n", h.Date, dash(h.UserUsername), line)
	}
	tw.Flush()
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
