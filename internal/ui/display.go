package ui

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-runewidth"

	"github.com/haricheung/playcrack/internal/playfair"
	"github.com/haricheung/playcrack/internal/types"
)

// ANSI codes
const (
	ansiReset   = "\033[0m"
	ansiBold    = "\033[1m"
	ansiDim     = "\033[2m"
	ansiCyan    = "\033[36m"
	ansiYellow  = "\033[33m"
	ansiGreen   = "\033[32m"
	ansiMagenta = "\033[35m"
)

var msgColor = map[types.MessageType]string{
	types.MsgRunBegin:    ansiCyan,
	types.MsgNewBest:     ansiYellow,
	types.MsgRunEnd:      ansiMagenta,
	types.MsgFinalResult: ansiGreen,
}

var spinRunes = []rune("⠋⠙⠹⠸⠼⠴⠦⠧⠇⠏")

// DefaultWidth is used when the terminal width is unknown.
const DefaultWidth = 80

// Display renders live search progress. It reads from a bus tap channel,
// prints one line per run start, new best and run end, and animates a
// spinner whose label follows the temperature schedule.
type Display struct {
	tap      <-chan types.Message
	out      io.Writer
	width    int
	quiet    bool // suppress new-best lines; run lines and spinner remain
	mu       sync.Mutex
	status   string
	started  time.Time
	inSearch bool
	spinIdx  int
	runs     map[string]string // run ID → short label
}

// New creates a Display reading from tap and writing to out. width is the
// terminal width in columns; values < 20 fall back to DefaultWidth.
func New(tap <-chan types.Message, out io.Writer, width int) *Display {
	if width < 20 {
		width = DefaultWidth
	}
	return &Display{tap: tap, out: out, width: width, runs: make(map[string]string)}
}

// SetQuiet hides per-improvement lines. Safe to call before Run.
func (d *Display) SetQuiet(q bool) { d.quiet = q }

// Run is the main goroutine. It renders flow lines and animates the spinner
// until the tap closes or ctx is done. All terminal writes happen here.
func (d *Display) Run(ctx context.Context) {
	ticker := time.NewTicker(80 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			fmt.Fprint(d.out, "\r\033[K")
			return

		case msg, ok := <-d.tap:
			if !ok {
				if d.inSearch {
					d.endSearch(false)
				}
				return
			}
			d.handle(msg)

		case <-ticker.C:
			if !d.inSearch {
				continue
			}
			frame := spinRunes[d.spinIdx%len(spinRunes)]
			d.spinIdx++
			d.mu.Lock()
			status := d.status
			d.mu.Unlock()
			fmt.Fprintf(d.out, "\r\033[K%s%s%s %s", ansiCyan, string(frame), ansiReset, clipCols(status, d.width-3))
		}
	}
}

func (d *Display) handle(msg types.Message) {
	if !d.inSearch && msg.Type != types.MsgFinalResult {
		d.startSearch()
	}
	switch p := msg.Payload.(type) {
	case types.RunBegin:
		d.runs[p.RunID] = shortID(p.RunID)
		d.printLine(msg.Type, runBeginDetail(p))
	case types.NewBest:
		if !d.quiet {
			d.printLine(msg.Type, d.newBestDetail(p))
		}
	case types.RunEnd:
		d.printLine(msg.Type, runEndDetail(p))
	case types.FinalResult:
		if d.inSearch {
			d.endSearch(true)
		}
		return
	}
	if s := d.statusFor(msg); s != "" {
		d.setStatus(s)
	}
}

func (d *Display) startSearch() {
	d.started = time.Now()
	d.inSearch = true
	d.setStatus("scoring start keys...")
	fmt.Fprintf(d.out, "\n%s┌─── ⚡ playcrack search %s%s\n", ansiDim, strings.Repeat("─", 40), ansiReset)
}

func (d *Display) endSearch(success bool) {
	d.inSearch = false
	elapsed := time.Since(d.started).Round(time.Millisecond)
	icon := "✅"
	if !success {
		icon = "❌"
	}
	fmt.Fprintf(d.out, "\r\033[K%s└─── %s  %v %s%s\n", ansiDim, icon, elapsed, strings.Repeat("─", 35), ansiReset)
}

func (d *Display) setStatus(s string) {
	d.mu.Lock()
	d.status = s
	d.mu.Unlock()
}

// printLine clears the spinner line and prints one flow line clipped to the terminal width.
func (d *Display) printLine(t types.MessageType, detail string) {
	color := msgColor[t]
	if color == "" {
		color = ansiDim
	}
	label := fmt.Sprintf("  ──[%s]── %s", t, detail)
	fmt.Fprintf(d.out, "\r\033[K%s%s%s\n", color, clipCols(label, d.width-1), ansiReset)
}

// statusFor returns a spinner label for msg, or "" to keep the current one.
func (d *Display) statusFor(msg types.Message) string {
	switch p := msg.Payload.(type) {
	case types.TemperatureStep:
		return fmt.Sprintf("%s T=%.2f step %d/%d best %.4f accepted %d",
			d.label(p.RunID), p.Temperature, p.Step+1, p.Steps, p.BestFitness, p.Accepted)
	case types.Progress:
		return fmt.Sprintf("%s T=%.2f iter %d p=%.4f fitness %.4f",
			d.label(p.RunID), p.Temperature, p.Iteration, p.Probability, p.CurrentFitness)
	case types.RunEnd:
		return "merging runs..."
	}
	return ""
}

func (d *Display) label(runID string) string {
	if l, ok := d.runs[runID]; ok {
		return l
	}
	return shortID(runID)
}

func runBeginDetail(p types.RunBegin) string {
	origin := "random"
	if p.Seeded {
		origin = "seeded"
	}
	return fmt.Sprintf("%s seed=%d %s start %s fitness %.4f", shortID(p.RunID), p.Seed, origin, p.StartKey, p.InitialFitness)
}

func (d *Display) newBestDetail(p types.NewBest) string {
	head := fmt.Sprintf("%s %.4f %s ", d.label(p.RunID), p.Fitness, p.Key)
	room := d.width - runewidth.StringWidth(head) - 12
	if room < 10 {
		room = 10
	}
	return head + clipCols(p.Plaintext, room)
}

func runEndDetail(p types.RunEnd) string {
	s := fmt.Sprintf("%s best %.4f %s after %d iterations (%d accepted, %d improvements, %dms)",
		shortID(p.RunID), p.BestFitness, p.BestKey, p.Iterations, p.Accepted, p.Improvements, p.ElapsedMs)
	if p.Stopped {
		s += " stopped early"
	}
	return s
}

// shortID returns the first 8 characters of a run ID.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// clipCols truncates s to at most cols terminal columns, appending "…" if trimmed.
func clipCols(s string, cols int) string {
	if runewidth.StringWidth(s) <= cols {
		return s
	}
	return runewidth.Truncate(s, cols, "…")
}

// FormatResult renders the final outcome of a search for the terminal:
// the key and its square, then the plaintext wrapped to width columns. The
// raw decryption is shown as well when filler stripping changed it.
func FormatResult(r types.FinalResult, width int) string {
	if width < 20 {
		width = DefaultWidth
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s%skey%s     %s  (fitness %.4f, best of %d run(s))\n", ansiBold, ansiGreen, ansiReset, r.BestKey, r.BestFitness, r.Runs)
	if k, err := playfair.ParseKey(r.BestKey); err == nil {
		for _, line := range strings.Split(strings.TrimRight(k.Grid(), "\n"), "\n") {
			fmt.Fprintf(&sb, "        %s\n", line)
		}
	}
	fmt.Fprintf(&sb, "%splaintext%s\n%s", ansiBold, ansiReset, wrap(r.Plaintext, width))
	if r.RawPlaintext != r.Plaintext {
		fmt.Fprintf(&sb, "%sraw (fillers kept)%s\n%s%s%s", ansiDim, ansiReset, ansiDim, wrap(r.RawPlaintext, width), ansiReset)
	}
	return sb.String()
}

// wrap breaks s into lines of at most width columns.
func wrap(s string, width int) string {
	var sb strings.Builder
	col := 0
	for _, r := range s {
		w := runewidth.RuneWidth(r)
		if col+w > width {
			sb.WriteByte('\n')
			col = 0
		}
		sb.WriteRune(r)
		col += w
	}
	sb.WriteByte('\n')
	return sb.String()
}
