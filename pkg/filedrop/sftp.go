package filedrop

import (
	"fmt"
	"io"
	"net"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/erpbridge/platform/pkg/common/config"
	"github.com/erpbridge/platform/pkg/common/logger"
	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

// Client is a thin wrapper over one SFTP session. Not safe for concurrent
// use; each module run dials its own session and closes it when done.
type Client struct {
	conn *ssh.Client
	sftp *sftp.Client
}

// Dial opens an SFTP session using password authentication.
func Dial(cfg *config.Config) (*Client, error) {
	sshCfg := &ssh.ClientConfig{
		User: cfg.SFTPUser,
		Auth: []ssh.AuthMethod{
			ssh.Password(cfg.SFTPPassword),
		},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         15 * time.Second,
	}
	addr := net.JoinHostPort(cfg.SFTPHost, cfg.SFTPPort)

	conn, err := ssh.Dial("tcp", addr, sshCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to sftp host %s: %w", addr, err)
	}
	session, err := sftp.NewClient(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open sftp session on %s: %w", addr, err)
	}
	logger.WithField("host", addr).Debug("SFTP session opened")
	return &Client{conn: conn, sftp: session}, nil
}

// List returns the names of regular files in dir whose name carries the
// given suffix (case-insensitive), oldest first by modification time.
func (c *Client) List(dir, suffix string) ([]string, error) {
	entries, err := c.sftp.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}
	matched := make([]fileInfo, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if suffix != "" && !strings.HasSuffix(strings.ToLower(entry.Name()), strings.ToLower(suffix)) {
			continue
		}
		matched = append(matched, fileInfo{name: entry.Name(), modTime: entry.ModTime()})
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].modTime.Before(matched[j].modTime) })

	names := make([]string, 0, len(matched))
	for _, m := range matched {
		names = append(names, m.name)
	}
	return names, nil
}

type fileInfo struct {
	name    string
	modTime time.Time
}

// Download reads a remote file fully into memory. Drop files are small
// enough that streaming is not worth the bookkeeping.
func (c *Client) Download(remotePath string) ([]byte, error) {
	f, err := c.sftp.Open(remotePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", remotePath, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", remotePath, err)
	}
	return data, nil
}

// Upload writes data to remotePath, creating parent directories as needed.
func (c *Client) Upload(remotePath string, data []byte) error {
	if dir := path.Dir(remotePath); dir != "." && dir != "/" {
		if err := c.sftp.MkdirAll(dir); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	f, err := c.sftp.Create(remotePath)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", remotePath, err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("failed to write %s: %w", remotePath, err)
	}
	return nil
}

// Move renames a remote file, creating the destination directory first. Used
// to park processed and failed drop files out of the incoming directory.
func (c *Client) Move(src, dst string) error {
	if dir := path.Dir(dst); dir != "." && dir != "/" {
		if err := c.sftp.MkdirAll(dir); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	if err := c.sftp.Rename(src, dst); err != nil {
		return fmt.Errorf("failed to move %s to %s: %w", src, dst, err)
	}
	return nil
}

func (c *Client) Close() error {
	var firstErr error
	if c.sftp != nil {
		firstErr = c.sftp.Close()
	}
	if c.conn != nil {
		if err := c.conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
