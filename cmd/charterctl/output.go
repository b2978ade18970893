package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/alfredjeanlab/charters/internal/client"
	"github.com/alfredjeanlab/charters/internal/model"
	"github.com/alfredjeanlab/charters/internal/presence"
	"github.com/alfredjeanlab/charters/internal/ui"
)

const timeLayout = "2006-01-02 15:04:05"

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// printDocument pretty-prints a stored JSON document.
func printDocument(w io.Writer, doc json.RawMessage) {
	var buf bytes.Buffer
	if err := json.Indent(&buf, doc, "", "  "); err != nil {
		fmt.Fprintln(w, string(doc))
		return
	}
	fmt.Fprintln(w, buf.String())
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(timeLayout)
}

func printCharter(w io.Writer, ch *model.Charter, withDocument bool) {
	fmt.Fprintf(w, "%s %s\n", ui.RenderAccent("Charter:"), ch.ID)
	fmt.Fprintf(w, "Project:        %s\n", ch.ProjectID)
	fmt.Fprintf(w, "Created:        %s by %s\n", formatTime(ch.CreatedAt), ch.CreatedBy)
	modifiedBy := ch.LastModifiedBy
	if modifiedBy == "" {
		modifiedBy = ui.RenderMuted("(never updated)")
	}
	fmt.Fprintf(w, "Last modified:  %s by %s\n", formatTime(ch.LastModifiedAt), modifiedBy)
	if ch.CurrentOutputRef != "" {
		fmt.Fprintf(w, "Output:         %s\n", ch.CurrentOutputRef)
	}
	if withDocument {
		fmt.Fprintln(w)
		printDocument(w, ch.Document)
	}
}

func printCharterList(w io.Writer, charters []*model.Charter) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tPROJECT\tCREATED BY\tLAST MODIFIED\tBY")
	for _, ch := range charters {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			ch.ID, ch.ProjectID, ch.CreatedBy, formatTime(ch.LastModifiedAt), ch.LastModifiedBy)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(w, "\n%d charters\n", len(charters))
	return nil
}

func printSectionList(w io.Writer, sections []*model.CharterSection) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SECTION\tUPDATED BY\tUPDATED AT\tSIZE")
	for _, s := range sections {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", s.Name, s.UpdatedBy, formatTime(s.UpdatedAt), len(s.SectionJSON))
	}
	return tw.Flush()
}

func printVersionList(w io.Writer, resp *client.ListVersionsResponse) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "VERSION\tBY\tAT\tSHA256")
	for _, v := range resp.Versions {
		sha := v.SnapshotSHA256
		if len(sha) > 12 {
			sha = sha[:12]
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", v.Version, v.VersionBy, formatTime(v.VersionAt), sha)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(w, "\n%d versions (%d total)\n", len(resp.Versions), resp.Total)
	return nil
}

func printEditors(w io.Writer, editors []presence.Entry) error {
	if len(editors) == 0 {
		fmt.Fprintln(w, "no recent editors")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "USER\tEDITS\tLAST SECTION\tLAST VERSION\tIDLE")
	for _, e := range editors {
		idle := (time.Duration(e.IdleSecs) * time.Second).Round(time.Second)
		fmt.Fprintf(tw, "%s\t%d\t%s\t%d\t%s\n", e.UserID, e.EditCount, e.LastSection, e.LastVersion, idle)
	}
	return tw.Flush()
}

func printUpdateResult(w io.Writer, res *client.UpdateCharterResponse) {
	section := "(none)"
	if res.SectionUpdated != nil {
		section = *res.SectionUpdated
	}
	fmt.Fprintf(w, "%s %s version %d (section %s)\n", ui.RenderAccent("Updated"), res.CharterID, res.VersionID, section)
	if len(res.OtherEditors) > 0 {
		fmt.Fprintf(w, "%s also edited recently by %v\n", ui.RenderWarn("note:"), res.OtherEditors)
	}
}
