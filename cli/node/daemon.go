package node

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/bitpond/appkit"
	"github.com/rs/zerolog"
	"golang.org/x/xerrors"
	"gopkg.in/tomb.v2"
)

const (
	socketName = "daemon.sock"

	ioTimeout = 30 * time.Second
)

// request is sent by an invocation to execute an action on the daemon.
type request struct {
	Action int     `json:"action"`
	Flags  FlagSet `json:"flags"`
}

// reply is sent by the daemon for each write of the action. An error ends the
// execution.
type reply struct {
	Out string `json:"out,omitempty"`
	Err string `json:"err,omitempty"`
}

// daemon executes the actions received on a UNIX socket.
type daemon struct {
	logger   zerolog.Logger
	path     string
	injector Injector
	actions  []ActionTemplate
	timeout  time.Duration

	listener net.Listener
	tomb     tomb.Tomb
}

func newDaemon(dir string, inj Injector, actions []ActionTemplate) *daemon {
	path := filepath.Join(dir, socketName)

	return &daemon{
		logger:   appkit.Logger.With().Str("component", "daemon").Str("socket", path).Logger(),
		path:     path,
		injector: inj,
		actions:  actions,
		timeout:  ioTimeout,
	}
}

// Listen binds the socket and serves the connections in the background. A
// socket left by a daemon that did not stop is replaced.
func (d *daemon) Listen() error {
	err := removeStale(d.path)
	if err != nil {
		return err
	}

	listener, err := net.Listen("unix", d.path)
	if err != nil {
		return xerrors.Errorf("couldn't bind socket: %v", err)
	}

	d.listener = listener

	d.tomb.Go(d.serve)

	return nil
}

// Close stops accepting connections and waits for the actions in progress.
func (d *daemon) Close() error {
	d.tomb.Kill(nil)

	err := d.tomb.Wait()
	if err != nil {
		return xerrors.Errorf("daemon failed: %v", err)
	}

	return nil
}

func (d *daemon) serve() error {
	d.tomb.Go(func() error {
		<-d.tomb.Dying()
		return d.listener.Close()
	})

	for {
		conn, err := d.listener.Accept()
		if err != nil {
			select {
			case <-d.tomb.Dying():
				return nil
			default:
				return xerrors.Errorf("accept: %v", err)
			}
		}

		d.tomb.Go(func() error {
			d.handle(conn)
			return nil
		})
	}
}

func (d *daemon) handle(conn net.Conn) {
	defer conn.Close()

	err := conn.SetDeadline(time.Now().Add(d.timeout))
	if err != nil {
		d.logger.Warn().Err(err).Msg("couldn't set deadline")
	}

	var req request
	err = json.NewDecoder(conn).Decode(&req)
	if errors.Is(err, io.EOF) {
		// Closed without a request: the invocation only checks that a daemon
		// is listening.
		return
	}

	enc := json.NewEncoder(conn)

	if err != nil {
		d.fail(enc, xerrors.Errorf("malformed request: %v", err))
		return
	}

	if req.Action < 0 || req.Action >= len(d.actions) {
		d.fail(enc, xerrors.Errorf("unknown action %d", req.Action))
		return
	}

	d.logger.Debug().Int("action", req.Action).Interface("flags", req.Flags).Msg("executing")

	ctx := Context{
		Injector: d.injector,
		Flags:    req.Flags,
		Out:      replyWriter{enc: enc},
	}

	err = d.actions[req.Action].Execute(ctx)
	if err != nil {
		d.fail(enc, xerrors.Errorf("action failed: %v", err))
	}
}

func (d *daemon) fail(enc *json.Encoder, err error) {
	d.logger.Debug().Err(err).Msg("action error")

	err = enc.Encode(reply{Err: err.Error()})
	if err != nil {
		d.logger.Warn().Err(err).Msg("couldn't send error")
	}
}

// replyWriter sends each write as a reply.
//
// - implements io.Writer
type replyWriter struct {
	enc *json.Encoder
}

// Write implements io.Writer.
func (w replyWriter) Write(data []byte) (int, error) {
	err := w.enc.Encode(reply{Out: string(data)})
	if err != nil {
		return 0, xerrors.Errorf("couldn't write reply: %v", err)
	}

	return len(data), nil
}

// send sends the request to the daemon listening in the folder and prints the
// replies, one per line, until the daemon closes the connection.
func send(dir string, req request, out io.Writer) error {
	conn, err := net.DialTimeout("unix", filepath.Join(dir, socketName), ioTimeout)
	if err != nil {
		return xerrors.Errorf("couldn't reach the daemon: %v", err)
	}

	defer conn.Close()

	err = json.NewEncoder(conn).Encode(req)
	if err != nil {
		return xerrors.Errorf("couldn't send action: %v", err)
	}

	dec := json.NewDecoder(conn)

	for {
		var rep reply
		err = dec.Decode(&rep)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return xerrors.Errorf("malformed reply: %v", err)
		}

		if rep.Err != "" {
			return xerrors.New(rep.Err)
		}

		fmt.Fprintln(out, rep.Out)
	}
}

// removeStale removes the socket at the path unless a daemon is listening on
// it.
func removeStale(path string) error {
	conn, err := net.DialTimeout("unix", path, time.Second)
	if err == nil {
		conn.Close()
		return xerrors.Errorf("a daemon is already listening on %s", path)
	}

	err = os.Remove(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return xerrors.Errorf("couldn't remove stale socket: %v", err)
	}

	return nil
}
