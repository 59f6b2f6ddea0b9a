package git

import (
	"bufio"
	"context"
	"fmt"
	"strings"
)

// Status reports the state of the worktree and index.
// It does not report whether a rebase is in progress.
//
// It is the raw material that higher layers (the repository model builder)
// assemble into a richer working tree snapshot.
type Status struct {
	// Branch is the name of the currently checked out branch.
	// Empty if the worktree is in detached HEAD state.
	Branch string

	// Commit is the hash of the current HEAD commit.
	Commit Hash

	// Upstream is the upstream branch tracked by Branch, if any.
	Upstream string

	// Detached reports whether HEAD is detached.
	Detached bool

	// Staged, Modified, Created, Deleted, Renamed, NotAdded, and Conflicted
	// list paths in the corresponding state, derived from porcelain v2
	// status codes.
	Staged, Modified, Created, Deleted, Renamed, NotAdded, Conflicted []string
}

// Status reports the current state of the worktree.
func (w *Worktree) Status(ctx context.Context) (*Status, error) {
	cmd := w.gitCmd(ctx, "status", "--porcelain=v2", "--branch", "-z")
	out, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("pipe stdout: %w", err)
	}

	if err := cmd.Start(w.exec); err != nil {
		return nil, fmt.Errorf("start git status: %w", err)
	}

	scanner := bufio.NewScanner(out)
	scanner.Split(splitNullByte)

	st := &Status{}
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}

		switch {
		case strings.HasPrefix(line, "# branch.head "):
			head := strings.TrimPrefix(line, "# branch.head ")
			if head == "(detached)" {
				st.Detached = true
			} else {
				st.Branch = head
			}
		case strings.HasPrefix(line, "# branch.oid "):
			st.Commit = Hash(strings.TrimPrefix(line, "# branch.oid "))
		case strings.HasPrefix(line, "# branch.upstream "):
			st.Upstream = strings.TrimPrefix(line, "# branch.upstream ")
		case strings.HasPrefix(line, "1 "), strings.HasPrefix(line, "2 "):
			fields := strings.SplitN(line, " ", 9)
			if len(fields) < 9 {
				continue
			}
			xy := fields[1]
			path := fields[8]
			if strings.HasPrefix(line, "2 ") {
				// Renamed/copied entries carry a second NUL-terminated
				// field with the original path; consume and discard it.
				scanner.Scan()
			}
			classifyOrdinary(st, xy, path)
		case strings.HasPrefix(line, "u "):
			fields := strings.SplitN(line, " ", 11)
			if len(fields) < 11 {
				continue
			}
			st.Conflicted = append(st.Conflicted, fields[10])
		case strings.HasPrefix(line, "? "):
			st.NotAdded = append(st.NotAdded, strings.TrimPrefix(line, "? "))
		case strings.HasPrefix(line, "! "):
			// Ignored files are not part of any spec-tracked category.
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan git status: %w", err)
	}

	if err := cmd.Wait(w.exec); err != nil {
		return nil, fmt.Errorf("git status: %w", err)
	}

	return st, nil
}

// classifyOrdinary records path under the categories implied by an
// ordinary (type "1"/"2") porcelain v2 status code pair.
func classifyOrdinary(st *Status, xy, path string) {
	if len(xy) != 2 {
		return
	}
	index, worktree := xy[0], xy[1]

	if index != '.' {
		st.Staged = append(st.Staged, path)
	}
	switch {
	case index == 'A':
		st.Created = append(st.Created, path)
	case index == 'D' || worktree == 'D':
		st.Deleted = append(st.Deleted, path)
	case index == 'R':
		st.Renamed = append(st.Renamed, path)
	case worktree == 'M':
		st.Modified = append(st.Modified, path)
	case index == 'M':
		st.Modified = append(st.Modified, path)
	}
}
