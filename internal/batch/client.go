package batch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/shlex"
)

const defaultDeleteSettle = 3 * time.Second

// Состояния задач PBS (job_state).
const (
	StateQueued  = "Q"
	StateRunning = "R"
	StateExiting = "E"
	StateHeld    = "H"
)

// QueueJob — задача в очереди.
type QueueJob struct {
	ID    string
	Name  string
	State string
}

// Client — клиент очереди PBS.
type Client struct {
	prefix       string
	resources    []string
	script       string
	logDir       string
	extraArgs    []string
	deleteSettle time.Duration
	logger       *slog.Logger

	// (для тестов) если не nil, вызывается вместо exec.CommandContext.
	stubCommand func(ctx context.Context, prog string, args ...string) *exec.Cmd
}

// Config — конфигурация Client.
type Config struct {
	JobPrefix string
	Resources string // значения -l через пробел, например "nodes=1:ppn=1 walltime=24:00:00"
	Script    string
	LogDir    string
	ExtraArgs string // дополнительные аргументы qsub

	// DeleteSettle — пауза между qdel и проверкой очереди (default: 3s).
	DeleteSettle time.Duration

	Logger *slog.Logger
}

// New создаёт новый Client.
func New(cfg Config) (*Client, error) {
	resources, err := shlex.Split(cfg.Resources)
	if err != nil {
		return nil, fmt.Errorf("parse resources %q: %w", cfg.Resources, err)
	}
	extra, err := shlex.Split(cfg.ExtraArgs)
	if err != nil {
		return nil, fmt.Errorf("parse extra args %q: %w", cfg.ExtraArgs, err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	settle := cfg.DeleteSettle
	if settle <= 0 {
		settle = defaultDeleteSettle
	}

	return &Client{
		prefix:       cfg.JobPrefix,
		resources:    resources,
		script:       cfg.Script,
		logDir:       cfg.LogDir,
		extraArgs:    extra,
		deleteSettle: settle,
		logger:       logger.With("component", "pbs"),
	}, nil
}

func (c *Client) command(ctx context.Context, prog string, args ...string) *exec.Cmd {
	if f := c.stubCommand; f != nil {
		return f(ctx, prog, args...)
	}
	return exec.CommandContext(ctx, prog, args...)
}

// submitArgs собирает аргументы qsub.
func (c *Client) submitArgs(datafiles []string, outDir string) []string {
	args := []string{
		"-V",
		"-v", fmt.Sprintf(`DATAFILES="%s",OUTDIR="%s"`, strings.Join(datafiles, ","), outDir),
	}
	for _, r := range c.resources {
		args = append(args, "-l", r)
	}
	args = append(args, "-N", c.prefix, "-e", c.logDir, "-o", c.logDir)
	args = append(args, c.extraArgs...)
	return append(args, c.script)
}

// Submit отправляет задачу и возвращает её идентификатор.
func (c *Client) Submit(ctx context.Context, datafiles []string, outDir string) (string, error) {
	args := c.submitArgs(datafiles, outDir)
	c.logger.Info("qsub", "args", args)

	out, err := c.command(ctx, "qsub", args...).Output()
	if err != nil {
		return "", fmt.Errorf("qsub: %w", errWithStderr(err))
	}

	id := strings.TrimSpace(string(out))
	if id == "" {
		return "", ErrNoJobID
	}
	return id, nil
}

// qstatOutput — вывод qstat -f -F json.
type qstatOutput struct {
	Jobs map[string]struct {
		Name  string `json:"Job_Name"`
		State string `json:"job_state"`
	} `json:"Jobs"`
}

// Jobs возвращает задачи очереди с именем, начинающимся с префикса.
func (c *Client) Jobs(ctx context.Context) ([]QueueJob, error) {
	out, err := c.command(ctx, "qstat", "-f", "-F", "json").Output()
	if err != nil {
		return nil, fmt.Errorf("qstat: %w", errWithStderr(err))
	}

	var resp qstatOutput
	if len(bytes.TrimSpace(out)) > 0 {
		if err := json.Unmarshal(out, &resp); err != nil {
			return nil, fmt.Errorf("parse qstat output: %w", err)
		}
	}

	jobs := make([]QueueJob, 0, len(resp.Jobs))
	for id, j := range resp.Jobs {
		if !strings.HasPrefix(j.Name, c.prefix) {
			continue
		}
		jobs = append(jobs, QueueJob{ID: id, Name: j.Name, State: j.State})
	}
	return jobs, nil
}

// Delete удаляет задачу и проверяет, что она покинула очередь
// или находится в состоянии завершения.
func (c *Client) Delete(ctx context.Context, id string) error {
	out, err := c.command(ctx, "qdel", id).CombinedOutput()
	if err != nil {
		c.logger.Warn("qdel failed", "job_id", id, "error", err, "output", strings.TrimSpace(string(out)))
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(c.deleteSettle):
	}

	jobs, err := c.Jobs(ctx)
	if err != nil {
		return err
	}
	for _, j := range jobs {
		if j.ID == id && !strings.Contains(j.State, StateExiting) {
			return fmt.Errorf("%w: %s (state %s)", ErrNotDeleted, id, j.State)
		}
	}
	return nil
}

// jobNumber — числовая часть идентификатора ("1234.server" → "1234").
func jobNumber(id string) string {
	num, _, _ := strings.Cut(id, ".")
	return num
}

// StderrPath возвращает путь к stderr-логу задачи.
func (c *Client) StderrPath(id string) string {
	return filepath.Join(c.logDir, c.prefix+".e"+jobNumber(id))
}

// StdoutPath возвращает путь к stdout-логу задачи.
func (c *Client) StdoutPath(id string) string {
	return filepath.Join(c.logDir, c.prefix+".o"+jobNumber(id))
}

// HadErrors сообщает, писала ли задача в stderr.
func (c *Client) HadErrors(id string) (bool, error) {
	info, err := os.Stat(c.StderrPath(id))
	if errors.Is(err, os.ErrNotExist) {
		return false, fmt.Errorf("%w: job %s: %s", ErrNoStderrLog, id, c.StderrPath(id))
	}
	if err != nil {
		return false, err
	}
	return info.Size() > 0, nil
}

// ReadStderr возвращает stderr-лог задачи.
func (c *Client) ReadStderr(id string) (string, error) {
	b, err := os.ReadFile(c.StderrPath(id))
	if errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("%w: job %s", ErrNoStderrLog, id)
	}
	return string(b), err
}

// ReadStdout возвращает stdout-лог задачи.
func (c *Client) ReadStdout(id string) (string, error) {
	b, err := os.ReadFile(c.StdoutPath(id))
	return string(b), err
}

func errWithStderr(err error) error {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
		return fmt.Errorf("%w (%q)", err, bytes.TrimSpace(exitErr.Stderr))
	}
	return err
}
