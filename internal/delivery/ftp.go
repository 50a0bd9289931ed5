package delivery

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/seftconsumer/internal/logging"
	"github.com/jlaffaye/ftp"
)

type FTPConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Timeout  time.Duration
}

// ftpConn is the subset of *ftp.ServerConn the deliverer uses.
type ftpConn interface {
	Login(user, password string) error
	NoOp() error
	CurrentDir() (string, error)
	ChangeDir(path string) error
	MakeDir(path string) error
	Stor(path string, r io.Reader) error
	Quit() error
}

var dialFTP = func(ctx context.Context, addr string, timeout time.Duration) (ftpConn, error) {
	c, err := ftp.Dial(addr, ftp.DialWithContext(ctx), ftp.DialWithTimeout(timeout))
	if err != nil {
		return nil, err
	}
	return c, nil
}

// FTPDeliverer keeps a single control connection open and reuses it while
// it answers NOOP. Calls are serialised.
type FTPDeliverer struct {
	cfg    FTPConfig
	logger logging.Logger

	mu   sync.Mutex
	conn ftpConn
	home string
}

func NewFTPDeliverer(cfg FTPConfig, logger logging.Logger) *FTPDeliverer {
	if cfg.Port == 0 {
		cfg.Port = 21
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &FTPDeliverer{cfg: cfg, logger: logger.With("module", "ftp", "host", cfg.Host)}
}

// Deliver stores data as fileName under dir, creating missing directories.
// A relative dir is resolved against the login directory.
func (d *FTPDeliverer) Deliver(ctx context.Context, dir, fileName string, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	conn, err := d.connection(ctx)
	if err != nil {
		return err
	}

	target := d.resolve(dir)
	d.logger.Info(ctx, "delivering binary file to FTP", "folder", target, "filename", fileName)

	if err := changeOrMakeDir(conn, target); err != nil {
		d.drop()
		return fmt.Errorf("ftp: change to %s: %w", target, err)
	}
	if err := conn.Stor(fileName, bytes.NewReader(data)); err != nil {
		d.drop()
		return fmt.Errorf("ftp: store %s: %w", fileName, err)
	}

	d.logger.Info(ctx, "delivered binary file to FTP", "folder", target, "filename", fileName)
	return nil
}

// Ping opens or probes the connection.
func (d *FTPDeliverer) Ping(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := d.connection(ctx)
	return err
}

// Close quits the open connection, if any.
func (d *FTPDeliverer) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.conn == nil {
		return nil
	}
	err := d.conn.Quit()
	d.conn = nil
	return err
}

func (d *FTPDeliverer) connection(ctx context.Context) (ftpConn, error) {
	if d.conn != nil {
		if err := d.conn.NoOp(); err == nil {
			return d.conn, nil
		}
		d.logger.Info(ctx, "FTP connection no longer alive, re-establishing connection")
		d.drop()
	} else {
		d.logger.Info(ctx, "establishing new FTP connection")
	}

	addr := net.JoinHostPort(d.cfg.Host, strconv.Itoa(d.cfg.Port))
	conn, err := dialFTP(ctx, addr, d.cfg.Timeout)
	if err != nil {
		return nil, fmt.Errorf("ftp: dial %s: %w", addr, err)
	}
	if err := conn.Login(d.cfg.User, d.cfg.Password); err != nil {
		_ = conn.Quit()
		return nil, fmt.Errorf("ftp: login: %w", err)
	}
	home, err := conn.CurrentDir()
	if err != nil {
		_ = conn.Quit()
		return nil, fmt.Errorf("ftp: pwd: %w", err)
	}

	d.conn, d.home = conn, home
	return conn, nil
}

func (d *FTPDeliverer) drop() {
	if d.conn != nil {
		_ = d.conn.Quit()
		d.conn = nil
	}
}

func (d *FTPDeliverer) resolve(dir string) string {
	if path.IsAbs(dir) {
		return path.Clean(dir)
	}
	return path.Join(d.home, dir)
}

// changeOrMakeDir changes into dir, creating each missing component.
func changeOrMakeDir(conn ftpConn, dir string) error {
	if err := conn.ChangeDir(dir); err == nil {
		return nil
	}

	current := "/"
	for _, part := range strings.Split(strings.Trim(dir, "/"), "/") {
		if part == "" {
			continue
		}
		current = path.Join(current, part)
		if err := conn.ChangeDir(current); err == nil {
			continue
		}
		if err := conn.MakeDir(current); err != nil {
			return err
		}
	}
	return conn.ChangeDir(dir)
}
