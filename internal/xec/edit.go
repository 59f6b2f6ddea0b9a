package xec

import "os/exec"

// EditCommand constructs a command to open the editor
// with the given editor command.
// The editor command may be a shell command or a binary name.
//
// BSE_EXEC is set in the editor's environment so that the spawned
// process can tell it was launched by us, e.g. to adjust its own
// behavior when invoked as part of an interactive edit.
func EditCommand(editCmd string, args ...string) *exec.Cmd {
	var cmd *exec.Cmd
	if exe, err := LookPath(editCmd); err == nil {
		cmd = exec.Command(exe, args...)
	} else {
		// We'll run:
		//   sh -c 'EDITOR "$@"' -- "$1" "$2" ...
		// The shell will take care of quoting issues.
		args = append([]string{"-c", editCmd + ` "$@"`, "--"}, args...)
		cmd = exec.Command("sh", args...)
	}
	cmd.Env = append(_osEnviron(), "BSE_EXEC=1")
	return cmd
}
