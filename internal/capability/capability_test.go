package capability

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	ncerr "remotecap/internal/errors"
	"remotecap/internal/session"
	"remotecap/remote"
	"remotecap/util"
)

// scriptedClient answers every Run with the same result and records
// the scripts it was given.
type scriptedClient struct {
	res     *remote.Result
	err     error
	alive   bool
	scripts []string
}

func (s *scriptedClient) Run(_ context.Context, script string) (*remote.Result, error) {
	s.scripts = append(s.scripts, script)
	return s.res, s.err
}

func (s *scriptedClient) Close() error  { s.alive = false; return nil }
func (s *scriptedClient) IsAlive() bool { return s.alive }

func openConn(host string, c *scriptedClient) *session.Connection {
	c.alive = true
	conn := session.New(host, c)
	conn.MarkOpen()
	return conn
}

func newLoader() *RemoteLoader {
	return &RemoteLoader{
		LibPath: []string{"~/.remotecap/lib", "/usr/local/lib/remotecap"},
		Logger:  util.NewLogger(0),
	}
}

func TestRemoteLoader_Load(t *testing.T) {
	client := &scriptedClient{res: &remote.Result{Stdout: []byte(
		"motd noise\n@path /usr/local/lib/remotecap/Lib.sh\nGet-Thing\nput_thing\nbad name\nGet-Thing\n",
	)}}
	conn := openConn("h1", client)

	capab, err := newLoader().Load(context.Background(), conn, "Lib")
	require.NoError(t, err)
	require.Equal(t, "Lib", capab.Library)
	require.Equal(t, "/usr/local/lib/remotecap/Lib.sh", capab.Path)
	require.Equal(t, []string{"Get-Thing", "put_thing"}, capab.Commands)

	require.Len(t, client.scripts, 1)
	script := client.scripts[0]
	require.Contains(t, script, "file=Lib.sh")
	require.Contains(t, script, `"$HOME"/.remotecap/lib /usr/local/lib/remotecap`)
	require.Contains(t, script, "declare -F")
}

func TestRemoteLoader_NotFound(t *testing.T) {
	client := &scriptedClient{
		res: &remote.Result{ExitCode: 3},
		err: &remote.ExitError{Code: 3, Stderr: "library Lib not found"},
	}

	_, err := newLoader().Load(context.Background(), openConn("h1", client), "Lib")

	var rle *ncerr.RemoteLoadError
	require.ErrorAs(t, err, &rle)
	require.Equal(t, "h1", rle.Host)
	require.Equal(t, "Lib", rle.Library)
	require.Equal(t, 3, rle.ExitCode)
	require.ErrorIs(t, err, ncerr.ErrLibraryNotFound)
}

func TestRemoteLoader_SourceFailure(t *testing.T) {
	client := &scriptedClient{err: &remote.ExitError{Code: 4, Stderr: "syntax error"}}

	_, err := newLoader().Load(context.Background(), openConn("h1", client), "Lib")

	var rle *ncerr.RemoteLoadError
	require.ErrorAs(t, err, &rle)
	require.Equal(t, 4, rle.ExitCode)
	require.Contains(t, err.Error(), "syntax error")
}

func TestRemoteLoader_TransportFailure(t *testing.T) {
	client := &scriptedClient{err: ncerr.ErrNotConnected}

	_, err := newLoader().Load(context.Background(), openConn("h1", client), "Lib")

	var rle *ncerr.RemoteLoadError
	require.ErrorAs(t, err, &rle)
	require.Equal(t, -1, rle.ExitCode)
	require.ErrorIs(t, err, ncerr.ErrNotConnected)
}

func TestRemoteLoader_MalformedOutput(t *testing.T) {
	client := &scriptedClient{res: &remote.Result{Stdout: []byte("get_thing\n")}}

	_, err := newLoader().Load(context.Background(), openConn("h1", client), "Lib")
	require.ErrorContains(t, err, "no path marker")
}

func TestRemoteLoader_RejectsBadLibraryName(t *testing.T) {
	client := &scriptedClient{}

	_, err := newLoader().Load(context.Background(), openConn("h1", client), "../etc/passwd")
	require.ErrorIs(t, err, ncerr.ErrInvalidIdentifier)
	require.Empty(t, client.scripts, "nothing should run remotely")
}

func TestRemoteDir(t *testing.T) {
	require.Equal(t, `"$HOME"/.remotecap/lib`, remoteDir("~/.remotecap/lib"))
	require.Equal(t, `'/opt/my tools'`, remoteDir("/opt/my tools"))
}

// ── Registry ─────────────────────────────────────────────────────────

func testCapability() *Capability {
	return &Capability{
		Library:  "Lib",
		Path:     "/usr/local/lib/remotecap/Lib.sh",
		Commands: []string{"Get-Thing", "put_thing", "list_things"},
	}
}

func TestRegistry_ImportAll(t *testing.T) {
	r := NewRegistry()
	conn := openConn("h1", &scriptedClient{})

	names, err := r.Import(conn, testCapability(), nil)
	require.NoError(t, err)
	require.Equal(t, []string{"Get-Thing", "put_thing", "list_things"}, names)
	require.Equal(t, []string{"Get-Thing", "list_things", "put_thing"}, r.Names())

	cmd, ok := r.Lookup("put_thing")
	require.True(t, ok)
	require.Equal(t, "h1", cmd.Host())
	require.Equal(t, conn.ID, cmd.ConnectionID())
}

func TestRegistry_ImportFiltered(t *testing.T) {
	r := NewRegistry()
	conn := openConn("h1", &scriptedClient{})

	names, err := r.Import(conn, testCapability(), []string{"put_thing", "Get-Thing", "put_thing"})
	require.NoError(t, err)
	require.Equal(t, []string{"put_thing", "Get-Thing"}, names)
	require.Equal(t, 2, r.Len())
	_, ok := r.Lookup("list_things")
	require.False(t, ok)
}

func TestRegistry_ImportMissingCommandIsAtomic(t *testing.T) {
	r := NewRegistry()
	conn := openConn("h1", &scriptedClient{})

	_, err := r.Import(conn, testCapability(), []string{"put_thing", "Remove-Thing"})

	var ie *ncerr.ImportError
	require.ErrorAs(t, err, &ie)
	require.Equal(t, "Remove-Thing", ie.Command)
	require.ErrorIs(t, err, ncerr.ErrCommandNotExported)
	require.Zero(t, r.Len(), "a failed import must not register anything")
}

func TestRegistry_ImportRequiresOpenConnection(t *testing.T) {
	r := NewRegistry()
	conn := session.New("h1", &scriptedClient{alive: true}) // still opening

	_, err := r.Import(conn, testCapability(), nil)
	require.ErrorIs(t, err, ncerr.ErrNotConnected)
}

func TestRegistry_ImportOverwrites(t *testing.T) {
	r := NewRegistry()
	first := openConn("h1", &scriptedClient{})
	second := openConn("h2", &scriptedClient{})

	_, err := r.Import(first, testCapability(), nil)
	require.NoError(t, err)
	other := &Capability{Library: "Other", Path: "/opt/Other.sh", Commands: []string{"put_thing"}}
	_, err = r.Import(second, other, nil)
	require.NoError(t, err)

	cmd, _ := r.Lookup("put_thing")
	require.Equal(t, "h2", cmd.Host())
	require.Equal(t, "Other", cmd.Library)
	require.Equal(t, 3, r.Len())
}

func TestRegistry_DropConnection(t *testing.T) {
	r := NewRegistry()
	a := openConn("h1", &scriptedClient{})
	b := openConn("h2", &scriptedClient{})
	_, err := r.Import(a, testCapability(), []string{"Get-Thing", "list_things"})
	require.NoError(t, err)
	_, err = r.Import(b, testCapability(), []string{"put_thing"})
	require.NoError(t, err)

	require.Equal(t, 2, r.DropConnection(a.ID))
	require.Equal(t, []string{"put_thing"}, r.Names())
}

func TestRegistry_Invoke(t *testing.T) {
	client := &scriptedClient{res: &remote.Result{Stdout: []byte("thing-1\n")}}
	conn := openConn("h1", client)
	r := NewRegistry()
	_, err := r.Import(conn, testCapability(), nil)
	require.NoError(t, err)

	res, err := r.Invoke(context.Background(), "Get-Thing", "id 1", "it's")
	require.NoError(t, err)
	require.Equal(t, "thing-1\n", string(res.Stdout))

	require.Len(t, client.scripts, 1)
	lines := strings.Split(strings.TrimSpace(client.scripts[0]), "\n")
	require.Equal(t, ". /usr/local/lib/remotecap/Lib.sh >/dev/null || exit 4", lines[0])
	require.Equal(t, `Get-Thing 'id 1' 'it'\''s'`, lines[1])
}

func TestRegistry_InvokeUnknown(t *testing.T) {
	_, err := NewRegistry().Invoke(context.Background(), "nope")
	require.ErrorIs(t, err, ncerr.ErrUnknownCommand)
}

func TestCommand_InvokeAfterClose(t *testing.T) {
	client := &scriptedClient{}
	conn := openConn("h1", client)
	r := NewRegistry()
	_, err := r.Import(conn, testCapability(), nil)
	require.NoError(t, err)

	require.NoError(t, conn.Close())
	_, err = r.Invoke(context.Background(), "put_thing")
	require.True(t, errors.Is(err, ncerr.ErrNotConnected))
	require.Empty(t, client.scripts)
}
