// Package ui renders extraction progress as plain ASCII (plus the two bar
// glyphs) on a terminal. No TTY library; cursor control is raw escape codes
// with guaranteed cursor restore on every exit path.
package ui

import (
	"fmt"
	"io"
	"os"
	"strings"
)

// Stages shown in the progress block.
const (
	StageTriage     = "triage"
	StageExtraction = "extraction"
	StageStorage    = "storage"
)

const (
	barWidth      = 20
	stageBarWidth = 30
	blockHeight   = 8

	filledGlyph = "█"
	emptyGlyph  = "░"
)

// Progress is the state rendered by Update.
type Progress struct {
	CurrentSessionID     string
	CurrentStage         string
	TotalTranscripts     int
	CompletedTranscripts int
	MemoriesExtracted    int
	StageProgress        float64 // 0.0 to 1.0
}

// UI is the ASCII progress renderer. Start hides the cursor; Stop restores
// it. Stop is safe to call multiple times and must run on all exit paths.
type UI struct {
	out          io.Writer
	rendered     bool
	cursorHidden bool
}

// New returns a UI writing to out; nil defaults to stdout.
func New(out io.Writer) *UI {
	if out == nil {
		out = os.Stdout
	}
	return &UI{out: out}
}

// Start acquires the terminal: hides the cursor.
func (u *UI) Start() {
	fmt.Fprint(u.out, "\033[?25l")
	u.cursorHidden = true
}

// Stop releases the terminal: shows the cursor again.
func (u *UI) Stop() {
	if u.cursorHidden {
		fmt.Fprint(u.out, "\033[?25h")
		u.cursorHidden = false
	}
}

// Update clears the previously rendered block and redraws it.
func (u *UI) Update(p Progress) {
	u.clear()
	u.render(p)
}

// ShowSummary replaces the progress block with the completion summary.
func (u *UI) ShowSummary(transcripts, memories int, elapsed string) {
	u.clear()
	fmt.Fprintln(u.out)
	fmt.Fprintln(u.out, "Extraction Complete")
	fmt.Fprintln(u.out)
	fmt.Fprintf(u.out, "Transcripts processed: %d\n", transcripts)
	fmt.Fprintf(u.out, "Memories extracted: %d\n", memories)
	fmt.Fprintf(u.out, "Time taken: %s\n", elapsed)
	fmt.Fprintln(u.out)
}

func (u *UI) clear() {
	if !u.rendered {
		return
	}
	fmt.Fprint(u.out, "\033[2K")
	for i := 0; i < blockHeight-1; i++ {
		fmt.Fprint(u.out, "\033[1A\033[2K")
	}
}

func (u *UI) render(p Progress) {
	u.rendered = true

	fmt.Fprintln(u.out)
	fmt.Fprintln(u.out, "Memory Extraction")
	fmt.Fprintln(u.out)

	transcriptProgress := 0.0
	if p.TotalTranscripts > 0 {
		transcriptProgress = float64(p.CompletedTranscripts) / float64(p.TotalTranscripts)
	}
	fmt.Fprintf(u.out, "Transcripts: %s %d/%d\n",
		Bar(transcriptProgress, barWidth), p.CompletedTranscripts, p.TotalTranscripts)

	if p.CurrentSessionID != "" {
		fmt.Fprintf(u.out, "Current: Processing transcript %s...\n", truncateSession(p.CurrentSessionID))
	} else {
		fmt.Fprintln(u.out, "Current: Idle")
	}

	fmt.Fprintln(u.out)

	switch p.CurrentStage {
	case StageTriage:
		fmt.Fprintln(u.out, "[TRIAGE]     Identifying important ranges...")
		if p.StageProgress >= 1.0 {
			fmt.Fprintln(u.out, "             Triage complete")
		}
	case StageExtraction:
		fmt.Fprintln(u.out, "[EXTRACTION] Processing messages...")
		fmt.Fprintf(u.out, "             %s %d%%\n", Bar(p.StageProgress, stageBarWidth), int(p.StageProgress*100))
	case StageStorage:
		fmt.Fprintln(u.out, "[STORAGE]    Saving memories...")
		fmt.Fprintf(u.out, "             Saved %d memories\n", p.MemoriesExtracted)
	default:
		fmt.Fprintln(u.out)
	}
}

// Bar renders an ASCII progress bar like [████░░░░].
func Bar(progress float64, width int) string {
	if progress < 0 {
		progress = 0
	}
	if progress > 1 {
		progress = 1
	}
	filled := int(progress * float64(width))
	return "[" + strings.Repeat(filledGlyph, filled) + strings.Repeat(emptyGlyph, width-filled) + "]"
}

// truncateSession shortens long session ids for the single display line.
func truncateSession(id string) string {
	if len(id) > 15 {
		return id[:12] + "..."
	}
	return id
}
