package capability

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"strings"

	ncerr "remotecap/internal/errors"
	"remotecap/internal/session"
	"remotecap/remote"
	"remotecap/util"
)

// Exit codes of the load script.
const (
	exitNotFound   = 3
	exitSourceFail = 4
)

const pathMarker = "@path "

// RemoteLoader finds <dir>/<library><Ext> along LibPath on the remote
// host, sources it in bash, and lists the functions it defined.
// Functions whose names start with "_" are treated as private and are
// not exported.
type RemoteLoader struct {
	LibPath []string
	Ext     string // file extension, ".sh" when empty
	Logger  *util.Logger
}

// Load runs the load script over conn.
func (l *RemoteLoader) Load(ctx context.Context, conn *session.Connection, library string) (*Capability, error) {
	fail := func(code int, stderr string, err error) error {
		return &ncerr.RemoteLoadError{
			Host:     conn.Host,
			Library:  library,
			ExitCode: code,
			Stderr:   stderr,
			Err:      err,
		}
	}

	if !util.ValidLibraryName(library) {
		return nil, fail(-1, "", fmt.Errorf("%w: library %q", ncerr.ErrInvalidIdentifier, library))
	}
	if len(l.LibPath) == 0 {
		return nil, fail(-1, "", fmt.Errorf("%w: empty search path", ncerr.ErrLibraryNotFound))
	}

	script := l.script(library)
	l.Logger.Debug("loading %s on %s via %d-entry search path", library, conn.Host, len(l.LibPath))

	res, err := conn.Client.Run(ctx, script)
	if err != nil {
		var ee *remote.ExitError
		if ncerr.As(err, &ee) {
			switch ee.Code {
			case exitNotFound:
				return nil, fail(ee.Code, ee.Stderr, ncerr.ErrLibraryNotFound)
			case exitSourceFail:
				return nil, fail(ee.Code, ee.Stderr, fmt.Errorf("sourcing library failed"))
			}
			return nil, fail(ee.Code, ee.Stderr, err)
		}
		return nil, fail(-1, "", err)
	}

	capab, err := parseListing(library, res.Stdout)
	if err != nil {
		return nil, fail(res.ExitCode, strings.TrimSpace(string(res.Stderr)), err)
	}
	l.Logger.Verbose("loaded %s from %s on %s (%d commands)",
		library, capab.Path, conn.Host, len(capab.Commands))
	return capab, nil
}

// script builds the bash program sent to the remote shell.
func (l *RemoteLoader) script(library string) string {
	ext := l.Ext
	if ext == "" {
		ext = ".sh"
	}
	file := library + ext

	dirs := make([]string, len(l.LibPath))
	for i, d := range l.LibPath {
		dirs[i] = remoteDir(d)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "file=%s\n", util.ShellQuote(file))
	b.WriteString("found=\n")
	fmt.Fprintf(&b, "for dir in %s; do\n", strings.Join(dirs, " "))
	b.WriteString("  if [ -r \"$dir/$file\" ]; then found=\"$dir/$file\"; break; fi\n")
	b.WriteString("done\n")
	fmt.Fprintf(&b, "if [ -z \"$found\" ]; then echo %s >&2; exit %d; fi\n",
		util.ShellQuote("library "+library+" not found in "+strings.Join(l.LibPath, ":")), exitNotFound)
	b.WriteString("declare -A seen\n")
	b.WriteString("while read -r _ _ fn; do seen[$fn]=1; done < <(declare -F)\n")
	fmt.Fprintf(&b, ". \"$found\" >/dev/null || exit %d\n", exitSourceFail)
	fmt.Fprintf(&b, "printf '%s%%s\\n' \"$found\"\n", pathMarker)
	b.WriteString("while read -r _ _ fn; do\n")
	b.WriteString("  case $fn in _*) continue ;; esac\n")
	b.WriteString("  [ -n \"${seen[$fn]}\" ] || printf '%s\\n' \"$fn\"\n")
	b.WriteString("done < <(declare -F)\n")
	return b.String()
}

// remoteDir renders a search-path entry for the remote shell, keeping
// a leading "~/" expandable.
func remoteDir(d string) string {
	if rest, ok := strings.CutPrefix(d, "~/"); ok {
		return `"$HOME"/` + util.ShellQuote(rest)
	}
	return util.ShellQuote(d)
}

// parseListing decodes the load script's stdout: one path marker line
// followed by one function name per line.
func parseListing(library string, out []byte) (*Capability, error) {
	capab := &Capability{Library: library}
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		switch {
		case line == "":
		case strings.HasPrefix(line, pathMarker):
			capab.Path = strings.TrimPrefix(line, pathMarker)
		case capab.Path == "":
			// Output before the marker comes from shell startup files.
		case util.ValidCommandName(line) && !capab.Exports(line):
			capab.Commands = append(capab.Commands, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if capab.Path == "" {
		return nil, fmt.Errorf("malformed loader output: no path marker")
	}
	return capab, nil
}
