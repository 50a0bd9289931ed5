package delivery

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/dmitrijs2005/seftconsumer/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFTP struct {
	dirs     map[string]bool
	cwd      string
	stored   map[string][]byte
	noopErr  error
	storErr  error
	loginErr error
	calls    []string
	quit     bool
}

func newFakeFTP() *fakeFTP {
	return &fakeFTP{dirs: map[string]bool{"/": true, "/home": true}, cwd: "/home", stored: map[string][]byte{}}
}

func (f *fakeFTP) Login(user, password string) error {
	f.calls = append(f.calls, "LOGIN "+user)
	return f.loginErr
}

func (f *fakeFTP) NoOp() error {
	f.calls = append(f.calls, "NOOP")
	return f.noopErr
}

func (f *fakeFTP) CurrentDir() (string, error) { return f.cwd, nil }

func (f *fakeFTP) ChangeDir(p string) error {
	f.calls = append(f.calls, "CWD "+p)
	if !f.dirs[p] {
		return errors.New("550 no such directory")
	}
	f.cwd = p
	return nil
}

func (f *fakeFTP) MakeDir(p string) error {
	f.calls = append(f.calls, "MKD "+p)
	f.dirs[p] = true
	return nil
}

func (f *fakeFTP) Stor(name string, r io.Reader) error {
	if f.storErr != nil {
		return f.storErr
	}
	b, _ := io.ReadAll(r)
	f.stored[f.cwd+"/"+name] = b
	return nil
}

func (f *fakeFTP) Quit() error {
	f.quit = true
	return nil
}

func withFakeDial(t *testing.T, conns ...*fakeFTP) *int {
	t.Helper()
	orig := dialFTP
	t.Cleanup(func() { dialFTP = orig })

	dials := 0
	dialFTP = func(ctx context.Context, addr string, timeout time.Duration) (ftpConn, error) {
		if dials >= len(conns) {
			return nil, errors.New("connection refused")
		}
		c := conns[dials]
		dials++
		return c, nil
	}
	return &dials
}

func TestFTPDeliverer_CreatesDirectoriesAndStores(t *testing.T) {
	conn := newFakeFTP()
	dials := withFakeDial(t, conn)

	d := NewFTPDeliverer(FTPConfig{Host: "ftp", User: "ons"}, logging.Discard())
	require.NoError(t, d.Deliver(context.Background(), Path(".", "S1"), "a.txt", []byte("hello")))

	assert.Equal(t, 1, *dials)
	assert.Equal(t, []byte("hello"), conn.stored["/home/S1/unchecked/a.txt"])
	assert.Contains(t, conn.calls, "MKD /home/S1")
	assert.Contains(t, conn.calls, "MKD /home/S1/unchecked")
}

func TestFTPDeliverer_OverwritesSameName(t *testing.T) {
	conn := newFakeFTP()
	withFakeDial(t, conn)

	d := NewFTPDeliverer(FTPConfig{Host: "ftp"}, logging.Discard())
	require.NoError(t, d.Deliver(context.Background(), "/out", "a.txt", []byte("one")))
	require.NoError(t, d.Deliver(context.Background(), "/out", "a.txt", []byte("two")))

	assert.Len(t, conn.stored, 1)
	assert.Equal(t, []byte("two"), conn.stored["/out/a.txt"])
}

func TestFTPDeliverer_ReusesLiveConnection(t *testing.T) {
	conn := newFakeFTP()
	dials := withFakeDial(t, conn)

	d := NewFTPDeliverer(FTPConfig{Host: "ftp"}, logging.Discard())
	require.NoError(t, d.Ping(context.Background()))
	require.NoError(t, d.Deliver(context.Background(), "/home", "a.txt", []byte("x")))

	assert.Equal(t, 1, *dials)
	assert.Contains(t, conn.calls, "NOOP")
}

func TestFTPDeliverer_ReconnectsDeadConnection(t *testing.T) {
	first, second := newFakeFTP(), newFakeFTP()
	dials := withFakeDial(t, first, second)

	d := NewFTPDeliverer(FTPConfig{Host: "ftp"}, logging.Discard())
	require.NoError(t, d.Ping(context.Background()))

	first.noopErr = errors.New("421 timeout")
	require.NoError(t, d.Deliver(context.Background(), "/home", "a.txt", []byte("x")))

	assert.Equal(t, 2, *dials)
	assert.True(t, first.quit)
	assert.Equal(t, []byte("x"), second.stored["/home/a.txt"])
}

func TestFTPDeliverer_StoreErrorDropsConnection(t *testing.T) {
	conn := newFakeFTP()
	conn.storErr = errors.New("452 disk full")
	withFakeDial(t, conn)

	d := NewFTPDeliverer(FTPConfig{Host: "ftp"}, logging.Discard())
	err := d.Deliver(context.Background(), "/home", "a.txt", []byte("x"))
	require.Error(t, err)
	assert.True(t, conn.quit)
	assert.Nil(t, d.conn)
}

func TestFTPDeliverer_DialAndLoginErrors(t *testing.T) {
	t.Run("dial", func(t *testing.T) {
		withFakeDial(t)
		d := NewFTPDeliverer(FTPConfig{Host: "ftp"}, logging.Discard())
		assert.Error(t, d.Ping(context.Background()))
	})

	t.Run("login", func(t *testing.T) {
		conn := newFakeFTP()
		conn.loginErr = errors.New("530 login incorrect")
		withFakeDial(t, conn)
		d := NewFTPDeliverer(FTPConfig{Host: "ftp"}, logging.Discard())
		assert.Error(t, d.Ping(context.Background()))
		assert.True(t, conn.quit)
	})
}

func TestFTPDeliverer_Close(t *testing.T) {
	conn := newFakeFTP()
	withFakeDial(t, conn)

	d := NewFTPDeliverer(FTPConfig{Host: "ftp"}, logging.Discard())
	require.NoError(t, d.Close())
	require.NoError(t, d.Ping(context.Background()))
	require.NoError(t, d.Close())
	assert.True(t, conn.quit)
}
