package ftpclient

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/textproto"
	"os"
	"path"
	"time"

	"github.com/jlaffaye/ftp"
)

// Default configuration values.
const (
	defaultDialTimeout  = 30 * time.Second
	defaultRetryBackoff = time.Second
	copyBufferSize      = 64 << 10
)

// Session — открытая FTP-сессия (после login и, возможно, cwd).
type Session interface {
	// List возвращает имена файлов в текущем каталоге.
	List() ([]string, error)

	// Size возвращает размер файла в байтах.
	Size(name string) (int64, error)

	// Retrieve скачивает файл в w, вызывая progress после каждого блока.
	Retrieve(name string, w io.Writer, progress ProgressFunc) (int64, error)

	// Store загружает r в файл name.
	Store(name string, r io.Reader) error

	// Close завершает сессию.
	Close() error
}

// Dialer открывает сессии в каталоге restore.
// Реализуется Client; в тестах подменяется фейком.
type Dialer interface {
	Open(ctx context.Context, dir string) (Session, error)
}

// conn — методы *ftp.ServerConn, которые использует клиент.
type conn interface {
	Login(user, password string) error
	ChangeDir(path string) error
	NameList(path string) ([]string, error)
	FileSize(path string) (int64, error)
	Retr(path string) (io.ReadCloser, error)
	Stor(path string, r io.Reader) error
	Quit() error
}

// Client — FTP-клиент с явным TLS (AUTH TLS) и пассивным режимом.
type Client struct {
	addr         string
	user         string
	password     string
	tlsConfig    *tls.Config
	dialTimeout  time.Duration
	retryBackoff time.Duration
	logger       *slog.Logger

	dial func(ctx context.Context) (conn, error)
}

// Config — конфигурация Client.
type Config struct {
	Addr     string
	User     string
	Password string

	// TLSConfig — nil означает проверку сертификата по имени хоста.
	TLSConfig *tls.Config

	DialTimeout  time.Duration // default: 30s
	RetryBackoff time.Duration // пауза между попытками соединения (default: 1s)

	Logger *slog.Logger
}

// New создаёт новый Client.
func New(cfg Config) *Client {
	c := &Client{
		addr:         cfg.Addr,
		user:         cfg.User,
		password:     cfg.Password,
		tlsConfig:    cfg.TLSConfig,
		dialTimeout:  cfg.DialTimeout,
		retryBackoff: cfg.RetryBackoff,
		logger:       cfg.Logger,
	}
	if c.dialTimeout <= 0 {
		c.dialTimeout = defaultDialTimeout
	}
	if c.retryBackoff <= 0 {
		c.retryBackoff = defaultRetryBackoff
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.tlsConfig == nil {
		host, _, err := net.SplitHostPort(cfg.Addr)
		if err != nil {
			host = cfg.Addr
		}
		c.tlsConfig = &tls.Config{ServerName: host, MinVersion: tls.VersionTLS12}
	}
	c.dial = c.dialTLS
	return c
}

func (c *Client) dialTLS(ctx context.Context) (conn, error) {
	sc, err := ftp.Dial(c.addr,
		ftp.DialWithContext(ctx),
		ftp.DialWithTimeout(c.dialTimeout),
		ftp.DialWithExplicitTLS(c.tlsConfig),
	)
	if err != nil {
		return nil, err
	}
	return serverConn{sc}, nil
}

// Open подключается, логинится и переходит в каталог dir.
//
// Сетевые ошибки повторяются бесконечно с паузой retryBackoff (до отмены ctx).
// Ответ 530 на login возвращает ErrLoginRejected, 550 на cwd — ErrDirNotFound;
// эти ошибки не повторяются. Пустой dir оставляет домашний каталог.
func (c *Client) Open(ctx context.Context, dir string) (Session, error) {
	for {
		s, err := c.open(ctx, dir)
		if err == nil {
			return s, nil
		}
		if errors.Is(err, ErrLoginRejected) || errors.Is(err, ErrDirNotFound) {
			return nil, err
		}

		c.logger.Warn("ftp connection failed, retrying",
			"addr", c.addr,
			"dir", dir,
			"error", err,
			"backoff", c.retryBackoff,
		)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.retryBackoff):
		}
	}
}

func (c *Client) open(ctx context.Context, dir string) (Session, error) {
	sc, err := c.dial(ctx)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", c.addr, err)
	}

	if err := sc.Login(c.user, c.password); err != nil {
		_ = sc.Quit()
		if hasReplyCode(err, ftp.StatusNotLoggedIn) {
			return nil, fmt.Errorf("%w: user %s: %v", ErrLoginRejected, c.user, err)
		}
		return nil, fmt.Errorf("login: %w", err)
	}

	if dir != "" {
		if err := sc.ChangeDir(dir); err != nil {
			_ = sc.Quit()
			if hasReplyCode(err, ftp.StatusFileUnavailable) {
				return nil, fmt.Errorf("%w: %s: %v", ErrDirNotFound, dir, err)
			}
			return nil, fmt.Errorf("cwd %s: %w", dir, err)
		}
	}

	return &session{conn: sc}, nil
}

// hasReplyCode сообщает, что сервер ответил именно кодом code.
// Остальные ответы (421, 450 и т.п.) и обрывы соединения считаются временными.
func hasReplyCode(err error, code int) bool {
	var protoErr *textproto.Error
	return errors.As(err, &protoErr) && protoErr.Code == code
}

// session — реализация Session поверх conn.
type session struct {
	conn conn
}

func (s *session) List() ([]string, error) {
	names, err := s.conn.NameList("")
	if err != nil {
		return nil, fmt.Errorf("nlst: %w", err)
	}
	out := make([]string, 0, len(names))
	for _, n := range names {
		if base := path.Base(n); base != "." && base != ".." {
			out = append(out, base)
		}
	}
	return out, nil
}

func (s *session) Size(name string) (int64, error) {
	size, err := s.conn.FileSize(name)
	if err != nil {
		return 0, fmt.Errorf("size %s: %w", name, err)
	}
	return size, nil
}

func (s *session) Retrieve(name string, w io.Writer, progress ProgressFunc) (int64, error) {
	body, err := s.conn.Retr(name)
	if err != nil {
		return 0, fmt.Errorf("retr %s: %w", name, err)
	}

	pr := newProgressReader(body, progress)
	n, copyErr := io.CopyBuffer(w, pr, make([]byte, copyBufferSize))
	closeErr := body.Close()
	if copyErr != nil {
		return n, fmt.Errorf("retr %s: %w", name, copyErr)
	}
	if closeErr != nil {
		return n, fmt.Errorf("retr %s: %w", name, closeErr)
	}
	return n, nil
}

func (s *session) Store(name string, r io.Reader) error {
	if err := s.conn.Stor(name, r); err != nil {
		return fmt.Errorf("stor %s: %w", name, err)
	}
	return nil
}

func (s *session) Close() error {
	return s.conn.Quit()
}

// Upload загружает локальный файл и сверяет размер на сервере.
func Upload(s Session, localPath, remoteName string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}

	if err := s.Store(remoteName, f); err != nil {
		return err
	}

	remoteSize, err := s.Size(remoteName)
	if err != nil {
		return err
	}
	if remoteSize != info.Size() {
		return fmt.Errorf("%w: %s local %d != remote %d", ErrSizeMismatch, remoteName, info.Size(), remoteSize)
	}
	return nil
}

// serverConn адаптирует *ftp.ServerConn к conn.
type serverConn struct {
	*ftp.ServerConn
}

func (c serverConn) Retr(path string) (io.ReadCloser, error) {
	resp, err := c.ServerConn.Retr(path)
	if err != nil {
		return nil, err
	}
	return resp, nil
}
