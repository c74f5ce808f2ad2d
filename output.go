package models

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
)

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

func renderTable(headers []string, rows [][]string, aligns []columnAlignment) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i := 0; i < columns; i++ {
		header[i] = headers[i]
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := 0; i < columns; i++ {
			if i < len(row) {
				r[i] = row[i]
			}
		}
		tw.AppendRow(r)
	}

	configs := make([]table.ColumnConfig, 0, columns)
	for i := 0; i < columns; i++ {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		configs = append(configs, table.ColumnConfig{Number: i + 1, Align: align, AlignHeader: text.AlignLeft})
	}
	tw.SetColumnConfigs(configs)

	return tw.Render()
}

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w any) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func formatBytes(n int64) string {
	if n <= 0 {
		return "-"
	}
	return humanize.IBytes(uint64(n))
}

func completeFiles(state AssetState) int {
	n := 0
	for _, f := range state.Files {
		if f.Complete {
			n++
		}
	}
	return n
}

func outputStatuses(w io.Writer, statuses []AssetStatus, spaces []DiskSpace, jsonOutput bool) error {
	if jsonOutput {
		return writeJSON(w, struct {
			Assets []AssetStatus `json:"assets"`
			Disks  []DiskSpace   `json:"disks,omitempty"`
		}{statuses, spaces})
	}

	if len(statuses) == 0 {
		fmt.Fprintln(w, "No assets found.")
		return nil
	}

	rows := make([][]string, 0, len(statuses))
	for _, s := range statuses {
		name := s.Asset.Name
		if s.Asset.Shared {
			name += " *"
		}
		rows = append(rows, []string{
			name,
			s.Asset.Group,
			s.State.Status(),
			fmt.Sprintf("%d/%d", completeFiles(s.State), len(s.Asset.Files)),
			formatBytes(s.State.SizeBytes),
		})
	}
	fmt.Fprintln(w, renderTable(
		[]string{"ASSET", "GROUP", "STATUS", "FILES", "SIZE"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight},
	))
	fmt.Fprintln(w, "* shared by other assets")

	for _, ds := range spaces {
		fmt.Fprintf(w, "%s: %s (%s free of %s)\n", ds.Family, ds.Root, humanize.IBytes(ds.Free), humanize.IBytes(ds.Total))
	}
	return nil
}

func outputAssetDetail(w io.Writer, s AssetStatus, jsonOutput bool) error {
	if jsonOutput {
		return writeJSON(w, s)
	}

	d := s.Asset
	fmt.Fprintf(w, "Asset:       %s\n", d.Name)
	if d.Description != "" {
		fmt.Fprintf(w, "Description: %s\n", d.Description)
	}
	fmt.Fprintf(w, "Family:      %s\n", d.Family)
	if d.Group != "" {
		fmt.Fprintf(w, "Group:       %s\n", d.Group)
	}
	if d.Language != "" {
		fmt.Fprintf(w, "Language:    %s\n", d.Language)
	}
	repo := d.Repository
	if d.Revision != "" {
		repo += "@" + d.Revision
	}
	fmt.Fprintf(w, "Repository:  %s\n", repo)
	if d.Shared {
		fmt.Fprintf(w, "Required by: %s\n", strings.Join(d.Dependents, ", "))
	}
	fmt.Fprintf(w, "Path:        %s\n", s.Path)
	fmt.Fprintf(w, "Status:      %s\n", s.State.Status())
	fmt.Fprintf(w, "Size:        %s\n\n", formatBytes(s.State.SizeBytes))

	rows := make([][]string, 0, len(s.State.Files))
	for _, f := range s.State.Files {
		status := "ok"
		switch {
		case !f.Exists:
			status = "missing"
		case !f.Complete:
			status = "undersized"
		}
		size := "-"
		if f.Exists {
			size = humanize.IBytes(uint64(f.Size))
		}
		rows = append(rows, []string{f.Local, size, humanize.IBytes(uint64(f.MinSize)), status})
	}
	fmt.Fprintln(w, renderTable(
		[]string{"FILE", "SIZE", "MIN", "STATUS"},
		rows,
		[]columnAlignment{alignLeft, alignRight, alignRight, alignLeft},
	))
	return nil
}

func outputRemoteFiles(w io.Writer, files []RemoteFile, jsonOutput bool) error {
	if jsonOutput {
		return writeJSON(w, files)
	}
	if len(files) == 0 {
		fmt.Fprintln(w, "No files found.")
		return nil
	}

	var total int64
	rows := make([][]string, 0, len(files))
	for _, f := range files {
		total += f.Size
		rows = append(rows, []string{f.Path, formatBytes(f.Size)})
	}
	fmt.Fprintln(w, renderTable([]string{"PATH", "SIZE"}, rows, []columnAlignment{alignLeft, alignRight}))
	fmt.Fprintf(w, "%d files, %s\n", len(files), humanize.IBytes(uint64(total)))
	return nil
}

func printBatch(w io.Writer, batch BatchResult, quiet bool) {
	for _, r := range batch.Results {
		switch {
		case r.AlreadyComplete:
			if !quiet {
				fmt.Fprintf(w, "%s: already complete (%s)\n", r.Asset, humanize.IBytes(uint64(r.State.SizeBytes)))
			}
		case r.OK:
			if !quiet {
				fmt.Fprintf(w, "%s: downloaded %d file(s), %s on disk (%s)\n",
					r.Asset, len(r.Downloaded), humanize.IBytes(uint64(r.State.SizeBytes)), formatDuration(r.Duration))
			}
		default:
			fmt.Fprintf(w, "%s: incomplete, %d file(s) failed\n", r.Asset, len(r.Errors))
		}
	}
}

func printRemoval(w io.Writer, res RemoveResult, quiet bool) {
	for _, c := range res.Cascaded {
		printRemoval(w, c, quiet)
	}
	switch {
	case !res.OK:
		fmt.Fprintf(w, "%s: removal incomplete\n", res.Asset)
		for _, fe := range res.Errors {
			fmt.Fprintf(w, "  %s: %v\n", fe.Path, fe.Err)
		}
	case quiet:
	case len(res.Removed) == 0:
		fmt.Fprintf(w, "%s: nothing to remove\n", res.Asset)
	default:
		fmt.Fprintf(w, "%s: removed %d file(s)\n", res.Asset, len(res.Removed))
	}
}

func printGroupRemoval(w io.Writer, res GroupRemoveResult, quiet bool) {
	if len(res.Members) == 0 && len(res.Shared) == 0 && !quiet {
		fmt.Fprintf(w, "Nothing of %s is on disk.\n", res.Group)
		return
	}
	for _, r := range res.Members {
		printRemoval(w, r, quiet)
	}
	for _, r := range res.Shared {
		if r.Cancelled {
			if !quiet {
				fmt.Fprintf(w, "%s: kept\n", r.Asset)
			}
			continue
		}
		printRemoval(w, r, quiet)
	}
}

// formatDuration formats a duration for display.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
}

// downloadProgress renders one byte-counting bar per asset. Worker
// goroutines report concurrently, so every update goes through mu.
type downloadProgress struct {
	mu      sync.Mutex
	w       io.Writer
	asset   string
	bar     *progressbar.ProgressBar
	written map[string]int64
	totals  map[string]int64
}

func newDownloadProgress(w io.Writer) *downloadProgress {
	return &downloadProgress{w: w}
}

func (p *downloadProgress) update(ev AcquireProgress) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if ev.Asset != p.asset || p.bar == nil {
		p.finishLocked()
		p.asset = ev.Asset
		p.written = make(map[string]int64)
		p.totals = make(map[string]int64)
		p.bar = progressbar.NewOptions64(-1,
			progressbar.OptionSetWriter(p.w),
			progressbar.OptionSetDescription(ev.Asset),
			progressbar.OptionShowBytes(true),
			progressbar.OptionSetWidth(30),
			progressbar.OptionThrottle(100*time.Millisecond),
			progressbar.OptionClearOnFinish(),
		)
	}

	if ev.BytesTotal > 0 && p.totals[ev.File] != ev.BytesTotal {
		p.totals[ev.File] = ev.BytesTotal
		var limit int64
		for _, t := range p.totals {
			limit += t
		}
		p.bar.ChangeMax64(limit)
	}
	switch {
	case !ev.Done:
		p.written[ev.File] = ev.BytesCompleted
	case ev.Err == nil && p.totals[ev.File] > 0:
		p.written[ev.File] = p.totals[ev.File]
	}

	var done int64
	for _, n := range p.written {
		done += n
	}
	_ = p.bar.Set64(done)
}

func (p *downloadProgress) finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.finishLocked()
}

func (p *downloadProgress) finishLocked() {
	if p.bar == nil {
		return
	}
	_ = p.bar.Finish()
	p.bar = nil
}
