package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/xeonx/timeago"
	"gopkg.in/yaml.v3"

	"github.com/gotrs-io/gotrs-livesync/internal/models"
)

const maxPreview = 48

func writeYAML(w io.Writer, v interface{}) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeOutput(w io.Writer, format string, v interface{}) error {
	switch format {
	case "yaml", "yml", "":
		return writeYAML(w, v)
	case "json":
		return writeJSON(w, v)
	default:
		return fmt.Errorf("unknown output format %q (want yaml or json)", format)
	}
}

// renderTable prints tickets in collection order.
func renderTable(w io.Writer, tickets []models.Ticket, now time.Time) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tUNREAD\tUPDATED\tCONTACT\tLAST MESSAGE")
	for _, t := range tickets {
		fmt.Fprintf(tw, "%d\t%s\t%d\t%s\t%s\t%s\n",
			t.ID, t.Status, t.UnreadMessages, updatedAgo(t.UpdatedAt, now), contactName(t), preview(t.LastMessage))
	}
	return tw.Flush()
}

func updatedAgo(at, now time.Time) string {
	if at.IsZero() {
		return "-"
	}
	cfg := timeago.English
	cfg.DefaultLayout = "2006-01-02"
	return cfg.FormatReference(at, now)
}

func contactName(t models.Ticket) string {
	if t.Contact == nil || t.Contact.Name == "" {
		return "-"
	}
	return t.Contact.Name
}

func preview(msg string) string {
	msg = strings.Join(strings.Fields(msg), " ")
	if len([]rune(msg)) <= maxPreview {
		return msg
	}
	return string([]rune(msg)[:maxPreview-1]) + "…"
}
