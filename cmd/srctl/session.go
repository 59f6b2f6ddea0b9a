package main

import (
	"fmt"
	"os"

	"go.branchstack.dev/bse/internal/session"
	"gopkg.in/yaml.v3"
)

// sessionCmd dumps the in-memory session store as YAML, for inspecting
// or archiving a paused rebase's exact state outside of the engine's
// own request/response surface -- a debug affordance only, since the
// engine itself never persists sessions to disk.
type sessionCmd struct {
	Repo string `help:"Limit the dump to a single repository path"`
}

// sessionDump is the on-disk shape written by [sessionCmd]: the engine's
// in-memory [session.Stored] values are exported verbatim, keyed by
// repository path.
type sessionDump struct {
	Sessions map[string]*session.Stored `yaml:"sessions"`
}

func (cmd *sessionCmd) Run(sessions *session.Store) error {
	all := sessions.All()
	if cmd.Repo != "" {
		stored, ok := all[cmd.Repo]
		if !ok {
			return fmt.Errorf("no session stored for %q", cmd.Repo)
		}
		all = map[string]*session.Stored{cmd.Repo: stored}
	}

	enc := yaml.NewEncoder(os.Stdout)
	defer enc.Close()
	return enc.Encode(sessionDump{Sessions: all})
}
