package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/drstein77/chainprices/internal/fetcher"
)

// ErrEmptyCommand is returned when no scraper command template is set.
var ErrEmptyCommand = errors.New("empty scraper command")

// CommandSource runs an external scraper for each request. The template is
// split on whitespace and each word may carry the placeholders {chain},
// {token}, {dir}, {types} and {limit}.
type CommandSource struct {
	template  []string
	log       Log
	waitDelay time.Duration
}

func NewCommandSource(template string, log Log) *CommandSource {
	return &CommandSource{
		template:  strings.Fields(template),
		log:       log,
		waitDelay: 5 * time.Second,
	}
}

// Args expands the template for req.
func (s *CommandSource) Args(req fetcher.Request) ([]string, error) {
	if len(s.template) == 0 {
		return nil, ErrEmptyCommand
	}

	r := strings.NewReplacer(
		"{chain}", req.Chain.ID,
		"{token}", req.Chain.Token,
		"{dir}", req.Dir,
		"{types}", strings.Join(req.FileTypes, ","),
		"{limit}", strconv.Itoa(req.FileLimit),
	)
	args := make([]string, len(s.template))
	for i, word := range s.template {
		args[i] = r.Replace(word)
	}
	return args, nil
}

// Fetch runs the scraper. Its output goes to the log, never to stdout.
func (s *CommandSource) Fetch(ctx context.Context, req fetcher.Request) error {
	args, err := s.Args(req)
	if err != nil {
		return err
	}

	stdout := &lineLog{log: s.log, chain: req.Chain.ID, stream: "stdout"}
	stderr := &lineLog{log: s.log, chain: req.Chain.ID, stream: "stderr"}
	defer stdout.flush()
	defer stderr.flush()

	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Dir = req.Dir
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.WaitDelay = s.waitDelay

	started := time.Now()
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("run %s: %w", args[0], err)
	}
	s.log.Info("scraper finished",
		zap.String("chain", req.Chain.ID),
		zap.Duration("elapsed", time.Since(started)))
	return nil
}

// lineLog writes each complete line of a stream as one log entry.
type lineLog struct {
	log    Log
	chain  string
	stream string
	buf    bytes.Buffer
}

func (l *lineLog) Write(p []byte) (int, error) {
	l.buf.Write(p)
	for {
		i := bytes.IndexByte(l.buf.Bytes(), '\n')
		if i < 0 {
			break
		}
		line := string(bytes.TrimRight(l.buf.Next(i+1), "\r\n"))
		l.emit(line)
	}
	return len(p), nil
}

func (l *lineLog) flush() {
	if l.buf.Len() > 0 {
		l.emit(l.buf.String())
		l.buf.Reset()
	}
}

func (l *lineLog) emit(line string) {
	if strings.TrimSpace(line) == "" {
		return
	}
	l.log.Info("scraper output",
		zap.String("chain", l.chain),
		zap.String("stream", l.stream),
		zap.String("line", line))
}
