// Package conflict detects drift between a checkpoint's recorded file list
// and the current filesystem and source-control state. Detection is
// conservative and degrades gracefully: without git only deleted files are
// reported; modification and creation checks are skipped.
package conflict

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Conflict types.
const (
	TypeModified = "modified"
	TypeDeleted  = "deleted"
	TypeCreated  = "created"
)

const (
	gitTimeout     = 5 * time.Second
	probeTimeout   = 2 * time.Second
	maxGitParallel = 8
)

// FileConflict is one detected divergence.
type FileConflict struct {
	Path                string `json:"file_path"`
	CheckpointTimestamp string `json:"checkpoint_timestamp"`
	LastModified        string `json:"last_modified"`
	Type                string `json:"conflict_type"`
}

// Report aggregates all conflicts with operator recommendations.
type Report struct {
	Conflicts       []FileConflict `json:"conflicts"`
	Recommendations []string       `json:"recommendations"`
	HasConflicts    bool           `json:"has_conflicts"`
}

// Detector checks checkpoints against git history. The git runner is
// injectable for tests.
type Detector struct {
	runGit func(ctx context.Context, args ...string) (string, error)
	statFn func(path string) (os.FileInfo, error)
}

// NewDetector returns a detector using the real git binary.
func NewDetector() *Detector {
	return &Detector{runGit: runGitCommand, statFn: os.Stat}
}

// Check compares a checkpoint's modified-file list against disk and git.
// checkpointTS is the checkpoint's RFC 3339 timestamp.
func (d *Detector) Check(checkpointTS string, filesModified []string) Report {
	checkpointTime, err := time.Parse(time.RFC3339, checkpointTS)
	if err != nil {
		log.Warn().Str("timestamp", checkpointTS).Msg("Unparseable checkpoint timestamp, skipping conflict check")
		return Report{Recommendations: []string{"No conflicts detected - safe to resume"}}
	}

	gitOK := d.gitAvailable()

	results := make([]*FileConflict, len(filesModified))
	g, ctx := errgroup.WithContext(context.Background())
	g.SetLimit(maxGitParallel)

	for i, path := range filesModified {
		g.Go(func() error {
			if _, err := d.statFn(path); os.IsNotExist(err) {
				results[i] = &FileConflict{
					Path:                path,
					CheckpointTimestamp: checkpointTS,
					LastModified:        "N/A",
					Type:                TypeDeleted,
				}
				return nil
			}

			if !gitOK {
				return nil
			}
			last, ok := d.lastModified(ctx, path)
			if ok && last.After(checkpointTime) {
				results[i] = &FileConflict{
					Path:                path,
					CheckpointTimestamp: checkpointTS,
					LastModified:        last.Format(time.RFC3339),
					Type:                TypeModified,
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	var conflicts []FileConflict
	for _, c := range results {
		if c != nil {
			conflicts = append(conflicts, *c)
		}
	}

	if gitOK {
		conflicts = append(conflicts, d.createdFiles(checkpointTS, checkpointTime, filesModified)...)
	}

	return Report{
		HasConflicts:    len(conflicts) > 0,
		Conflicts:       conflicts,
		Recommendations: recommendations(conflicts),
	}
}

// lastModified returns the last commit timestamp for a file. Files not in
// git yield ok=false.
func (d *Detector) lastModified(ctx context.Context, path string) (time.Time, bool) {
	out, err := d.runGit(ctx, "log", "-1", "--format=%aI", "--", path)
	if err != nil {
		return time.Time{}, false
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return time.Time{}, false
	}
	ts, err := time.Parse(time.RFC3339, out)
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}

// createdFiles scans git status for untracked or newly added files absent
// from the checkpoint's list.
func (d *Detector) createdFiles(checkpointTS string, checkpointTime time.Time, known []string) []FileConflict {
	ctx, cancel := context.WithTimeout(context.Background(), gitTimeout)
	defer cancel()

	out, err := d.runGit(ctx, "status", "--porcelain")
	if err != nil {
		return nil
	}

	knownSet := make(map[string]bool, len(known))
	for _, path := range known {
		knownSet[path] = true
	}

	var conflicts []FileConflict
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		if len(line) < 4 {
			continue
		}
		status := line[:2]
		path := strings.TrimSpace(line[3:])

		if !strings.HasPrefix(status, "??") && !strings.HasPrefix(status, "A") {
			continue
		}
		if knownSet[path] {
			continue
		}

		last, ok := d.lastModified(ctx, path)
		lastStr := time.Now().Format(time.RFC3339)
		if ok {
			if !last.After(checkpointTime) {
				continue
			}
			lastStr = last.Format(time.RFC3339)
		}

		conflicts = append(conflicts, FileConflict{
			Path:                path,
			CheckpointTimestamp: checkpointTS,
			LastModified:        lastStr,
			Type:                TypeCreated,
		})
	}
	return conflicts
}

func (d *Detector) gitAvailable() bool {
	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()
	_, err := d.runGit(ctx, "--version")
	return err == nil
}

// recommendations summarizes conflicts per type, naming up to three files
// each, ending with an actionable next step.
func recommendations(conflicts []FileConflict) []string {
	if len(conflicts) == 0 {
		return []string{"No conflicts detected - safe to resume"}
	}

	byType := map[string][]FileConflict{}
	for _, c := range conflicts {
		byType[c.Type] = append(byType[c.Type], c)
	}

	var recs []string
	addGroup := func(items []FileConflict, header string, withTimestamp bool) {
		if len(items) == 0 {
			return
		}
		recs = append(recs, fmt.Sprintf(header, len(items)))
		for i, c := range items {
			if i == 3 {
				break
			}
			if withTimestamp {
				recs = append(recs, fmt.Sprintf("  - %s modified at %s", c.Path, c.LastModified))
			} else {
				recs = append(recs, fmt.Sprintf("  - %s", c.Path))
			}
		}
		if len(items) > 3 {
			recs = append(recs, fmt.Sprintf("  ... and %d more", len(items)-3))
		}
	}

	addGroup(byType[TypeModified], "%d file(s) were modified externally - review changes before continuing", true)
	addGroup(byType[TypeDeleted], "%d file(s) were deleted - restore from checkpoint or skip chunk", false)
	addGroup(byType[TypeCreated], "%d file(s) were created externally - may conflict with planned changes", false)

	recs = append(recs, "Resolve conflicts before resuming")
	return recs
}

// runGitCommand executes git with a bounded deadline. Any OS-level failure
// is treated as "git not available".
func runGitCommand(ctx context.Context, args ...string) (string, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, gitTimeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, "git", args...)
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("git %s: %w", strings.Join(args, " "), err)
	}
	return string(out), nil
}
