package ftpclient

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// fakeConn — conn в памяти.
type fakeConn struct {
	loginErr error
	cwdErr   error
	files    map[string][]byte
	stored   map[string][]byte
	sizeSkew int64
	quit     bool
	cwd      string
}

func (f *fakeConn) Login(user, password string) error { return f.loginErr }

func (f *fakeConn) ChangeDir(path string) error {
	if f.cwdErr != nil {
		return f.cwdErr
	}
	f.cwd = path
	return nil
}

func (f *fakeConn) NameList(path string) ([]string, error) {
	var names []string
	for name := range f.files {
		names = append(names, "./"+name)
	}
	return names, nil
}

func (f *fakeConn) FileSize(path string) (int64, error) {
	if b, ok := f.stored[path]; ok {
		return int64(len(b)) + f.sizeSkew, nil
	}
	b, ok := f.files[path]
	if !ok {
		return 0, &textproto.Error{Code: 550, Msg: "no such file"}
	}
	return int64(len(b)), nil
}

func (f *fakeConn) Retr(path string) (io.ReadCloser, error) {
	b, ok := f.files[path]
	if !ok {
		return nil, &textproto.Error{Code: 550, Msg: "no such file"}
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (f *fakeConn) Stor(path string, r io.Reader) error {
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if f.stored == nil {
		f.stored = make(map[string][]byte)
	}
	f.stored[path] = b
	return nil
}

func (f *fakeConn) Quit() error {
	f.quit = true
	return nil
}

func newTestClient(dial func(ctx context.Context) (conn, error)) *Client {
	c := New(Config{Addr: "ftp.example.org:31001", User: "survey", RetryBackoff: time.Millisecond})
	c.dial = dial
	return c
}

func TestNew_Defaults(t *testing.T) {
	c := New(Config{Addr: "ftp.example.org:31001"})

	if c.retryBackoff != defaultRetryBackoff {
		t.Errorf("expected default backoff, got %v", c.retryBackoff)
	}
	if c.tlsConfig.ServerName != "ftp.example.org" {
		t.Errorf("expected server name from addr, got %q", c.tlsConfig.ServerName)
	}
}

func TestOpen_RetriesNetworkErrors(t *testing.T) {
	fc := &fakeConn{}
	dials := 0
	c := newTestClient(func(ctx context.Context) (conn, error) {
		dials++
		if dials < 3 {
			return nil, errors.New("connection refused")
		}
		return fc, nil
	})

	s, err := c.Open(context.Background(), "abc123")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer s.Close()

	if dials != 3 {
		t.Errorf("expected 3 dials, got %d", dials)
	}
	if fc.cwd != "abc123" {
		t.Errorf("expected cwd abc123, got %q", fc.cwd)
	}
}

func TestOpen_RetriesLoginTransportError(t *testing.T) {
	dials := 0
	c := newTestClient(func(ctx context.Context) (conn, error) {
		dials++
		if dials == 1 {
			return &fakeConn{loginErr: io.ErrUnexpectedEOF}, nil
		}
		return &fakeConn{}, nil
	})

	if _, err := c.Open(context.Background(), ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dials != 2 {
		t.Errorf("expected 2 dials, got %d", dials)
	}
}

func TestOpen_LoginRejectedIsFatal(t *testing.T) {
	dials := 0
	fc := &fakeConn{loginErr: &textproto.Error{Code: 530, Msg: "Login incorrect."}}
	c := newTestClient(func(ctx context.Context) (conn, error) {
		dials++
		return fc, nil
	})

	_, err := c.Open(context.Background(), "abc123")
	if !errors.Is(err, ErrLoginRejected) {
		t.Fatalf("expected ErrLoginRejected, got %v", err)
	}
	if dials != 1 {
		t.Errorf("login rejection must not be retried, got %d dials", dials)
	}
	if !fc.quit {
		t.Error("connection should be closed")
	}
}

func TestOpen_DirNotFoundIsFatal(t *testing.T) {
	c := newTestClient(func(ctx context.Context) (conn, error) {
		return &fakeConn{cwdErr: &textproto.Error{Code: 550, Msg: "No such directory."}}, nil
	})

	_, err := c.Open(context.Background(), "missing")
	if !errors.Is(err, ErrDirNotFound) {
		t.Fatalf("expected ErrDirNotFound, got %v", err)
	}
}

func TestOpen_TransientRepliesAreRetried(t *testing.T) {
	tests := []struct {
		name  string
		first *fakeConn
	}{
		{"421 on login", &fakeConn{loginErr: &textproto.Error{Code: 421, Msg: "Too many users, try later."}}},
		{"421 on cwd", &fakeConn{cwdErr: &textproto.Error{Code: 421, Msg: "Service not available."}}},
		{"450 on cwd", &fakeConn{cwdErr: &textproto.Error{Code: 450, Msg: "Directory busy."}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dials := 0
			c := newTestClient(func(ctx context.Context) (conn, error) {
				dials++
				if dials == 1 {
					return tt.first, nil
				}
				return &fakeConn{}, nil
			})

			s, err := c.Open(context.Background(), "abc123")
			if err != nil {
				t.Fatalf("transient reply must be retried, got %v", err)
			}
			defer s.Close()
			if dials != 2 {
				t.Errorf("expected 2 dials, got %d", dials)
			}
		})
	}
}

func TestOpen_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	c := newTestClient(func(context.Context) (conn, error) {
		cancel()
		return nil, errors.New("connection refused")
	})

	if _, err := c.Open(ctx, ""); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestSession_ListSizeRetrieve(t *testing.T) {
	payload := strings.Repeat("x", 200_000)
	fc := &fakeConn{files: map[string][]byte{"b0.fits": []byte(payload)}}
	s := &session{conn: fc}

	names, err := s.List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(names) != 1 || names[0] != "b0.fits" {
		t.Errorf("unexpected names %v", names)
	}

	size, err := s.Size("b0.fits")
	if err != nil || size != 200_000 {
		t.Errorf("size = %d, %v", size, err)
	}

	var buf bytes.Buffer
	var last Progress
	calls := 0
	n, err := s.Retrieve("b0.fits", &buf, func(p Progress) {
		calls++
		last = p
	})
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if n != 200_000 || buf.Len() != 200_000 {
		t.Errorf("expected 200000 bytes, got n=%d buf=%d", n, buf.Len())
	}
	if calls == 0 {
		t.Error("expected progress callbacks")
	}
	if last.Bytes != 200_000 {
		t.Errorf("final progress should report all bytes, got %d", last.Bytes)
	}
}

func TestUpload_VerifiesSize(t *testing.T) {
	local := filepath.Join(t.TempDir(), "cands.tgz")
	if err := os.WriteFile(local, []byte("results"), 0o644); err != nil {
		t.Fatal(err)
	}

	fc := &fakeConn{}
	if err := Upload(&session{conn: fc}, local, "cands.tgz"); err != nil {
		t.Fatalf("upload: %v", err)
	}
	if string(fc.stored["cands.tgz"]) != "results" {
		t.Errorf("unexpected stored content %q", fc.stored["cands.tgz"])
	}

	fc = &fakeConn{sizeSkew: -1}
	if err := Upload(&session{conn: fc}, local, "cands.tgz"); !errors.Is(err, ErrSizeMismatch) {
		t.Errorf("expected ErrSizeMismatch, got %v", err)
	}
}
