// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package audit

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/samber/oops"

	"github.com/holomush/ethanol/internal/auth"
	"github.com/holomush/ethanol/internal/xdg"
	"github.com/holomush/ethanol/pkg/errutil"
)

// Writer is the primary destination for attempt records.
type Writer interface {
	Append(ctx context.Context, attempt auth.LoginAttempt) error
}

var (
	attemptsCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ethanol_login_attempts_total",
		Help: "Total number of login attempts by outcome",
	}, []string{"status"})

	failuresCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ethanol_audit_failures_total",
		Help: "Total number of audit logging failures",
	}, []string{"reason"})

	walEntriesGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ethanol_audit_wal_entries",
		Help: "Current number of entries in the WAL",
	})
)

// Logger implements auth.Auditor. Records go to the writer synchronously;
// when the writer fails they are appended to a write-ahead log opened with
// O_SYNC, so a record is durable somewhere before Record returns.
type Logger struct {
	writer  Writer
	walPath string
	walFile *os.File
	walMu   sync.Mutex
	logger  *slog.Logger

	// replayMu serializes replays; walMu only guards the file.
	replayMu sync.Mutex

	stop      chan struct{}
	wg        sync.WaitGroup
	startOnce sync.Once
	closeOnce sync.Once
}

// NewLogger creates a Logger. An empty walPath selects audit-wal.jsonl in the
// XDG state directory.
func NewLogger(writer Writer, walPath string, logger *slog.Logger) (*Logger, error) {
	if writer == nil {
		return nil, oops.Errorf("audit writer is required")
	}
	if logger == nil {
		return nil, oops.Errorf("logger is required")
	}
	if walPath == "" {
		path, err := DefaultWALPath()
		if err != nil {
			return nil, err
		}
		walPath = path
	}
	if err := xdg.EnsureDir(filepath.Dir(walPath)); err != nil {
		return nil, err
	}
	return &Logger{
		writer:  writer,
		walPath: walPath,
		logger:  logger,
		stop:    make(chan struct{}),
	}, nil
}

// DefaultWALPath returns the WAL location in the XDG state directory.
func DefaultWALPath() (string, error) {
	dir, err := xdg.StateDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "audit-wal.jsonl"), nil
}

// WALPath returns the write-ahead log location.
func (l *Logger) WALPath() string {
	return l.walPath
}

// Record writes attempt. It returns an error only when neither the writer
// nor the WAL accepted the record.
func (l *Logger) Record(ctx context.Context, attempt auth.LoginAttempt) error {
	attemptsCounter.WithLabelValues(string(attempt.Status)).Inc()

	err := l.writer.Append(ctx, attempt)
	if err == nil {
		return nil
	}
	failuresCounter.WithLabelValues("write_failed").Inc()

	if walErr := l.writeToWAL(attempt); walErr != nil {
		failuresCounter.WithLabelValues("wal_failed").Inc()
		return oops.Code("AUDIT_WRITE_FAILED").
			With("attempt_id", attempt.ID.String()).
			With("status", string(attempt.Status)).
			Wrap(errors.Join(err, walErr))
	}

	errutil.LogError(l.logger, "login attempt diverted to WAL",
		oops.With("attempt_id", attempt.ID.String()).With("wal", l.walPath).Wrap(err))
	return nil
}

func (l *Logger) writeToWAL(attempt auth.LoginAttempt) error {
	l.walMu.Lock()
	defer l.walMu.Unlock()

	if l.walFile == nil {
		file, err := os.OpenFile(l.walPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY|os.O_SYNC, 0o600)
		if err != nil {
			return oops.With("path", l.walPath).Wrap(err)
		}
		l.walFile = file
	}

	data, err := json.Marshal(attempt)
	if err != nil {
		return oops.Wrap(err)
	}
	if _, err := fmt.Fprintf(l.walFile, "%s\n", data); err != nil {
		return oops.With("path", l.walPath).Wrap(err)
	}

	walEntriesGauge.Inc()
	return nil
}

// ReplayWAL re-submits WAL records to the writer. Records the writer still
// rejects stay in the WAL; malformed lines are dropped. The writer is called
// without holding the WAL lock, so Record keeps falling back to the WAL while
// a replay is in flight; lines appended meanwhile are kept.
func (l *Logger) ReplayWAL(ctx context.Context) (int, error) {
	l.replayMu.Lock()
	defer l.replayMu.Unlock()

	data, err := l.readWAL()
	if err != nil || len(data) == 0 {
		return 0, err
	}

	var (
		replayed int
		kept     bytes.Buffer
	)
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}

		var attempt auth.LoginAttempt
		if err := json.Unmarshal(line, &attempt); err != nil {
			l.logger.Error("dropping malformed WAL line", "error", err)
			failuresCounter.WithLabelValues("wal_unmarshal_failed").Inc()
			continue
		}

		if err := l.writer.Append(ctx, attempt); err != nil {
			failuresCounter.WithLabelValues("wal_replay_failed").Inc()
			kept.Write(line)
			kept.WriteByte('\n')
			continue
		}
		replayed++
	}
	if err := scanner.Err(); err != nil {
		return replayed, oops.With("path", l.walPath).Wrap(err)
	}

	remaining, err := l.compactWAL(len(data), kept.Bytes())
	if err != nil {
		return replayed, err
	}
	walEntriesGauge.Set(float64(remaining))
	if replayed > 0 {
		l.logger.Info("replayed WAL entries", "count", replayed, "remaining", remaining)
	}
	return replayed, nil
}

func (l *Logger) readWAL() ([]byte, error) {
	l.walMu.Lock()
	defer l.walMu.Unlock()

	data, err := os.ReadFile(l.walPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, oops.With("path", l.walPath).Wrap(err)
	}
	return data, nil
}

// compactWAL replaces the first replayedLen bytes of the WAL with kept and
// preserves whatever was appended after them. It returns the number of
// entries left.
func (l *Logger) compactWAL(replayedLen int, kept []byte) (int, error) {
	l.walMu.Lock()
	defer l.walMu.Unlock()

	current, err := os.ReadFile(l.walPath)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return 0, oops.With("path", l.walPath).Wrap(err)
	}
	contents := append([]byte{}, kept...)
	if len(current) >= replayedLen {
		contents = append(contents, current[replayedLen:]...)
	}
	if err := l.rewriteWAL(contents); err != nil {
		return 0, err
	}
	return bytes.Count(contents, []byte{'\n'}), nil
}

// rewriteWAL atomically replaces the WAL contents through a synced temporary
// file. Callers hold walMu.
func (l *Logger) rewriteWAL(contents []byte) error {
	if l.walFile != nil {
		if err := l.walFile.Close(); err != nil {
			return oops.With("path", l.walPath).Wrap(err)
		}
		l.walFile = nil
	}

	tmp, err := os.CreateTemp(filepath.Dir(l.walPath), filepath.Base(l.walPath)+".*.tmp")
	if err != nil {
		return oops.With("path", l.walPath).Wrap(err)
	}
	tmpPath := tmp.Name()
	cleanup := func(err error) error {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return oops.With("path", l.walPath).With("tmp", tmpPath).Wrap(err)
	}

	if _, err := tmp.Write(contents); err != nil {
		return cleanup(err)
	}
	if err := tmp.Sync(); err != nil {
		return cleanup(err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return oops.With("path", l.walPath).Wrap(err)
	}
	if err := os.Rename(tmpPath, l.walPath); err != nil {
		_ = os.Remove(tmpPath)
		return oops.With("path", l.walPath).Wrap(err)
	}
	return nil
}

// Start replays the WAL every interval until Close or ctx is done.
func (l *Logger) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	l.startOnce.Do(func() {
		l.wg.Add(1)
		go l.replayLoop(ctx, interval)
	})
}

func (l *Logger) replayLoop(ctx context.Context, interval time.Duration) {
	defer l.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := l.ReplayWAL(ctx); err != nil {
				errutil.LogError(l.logger, "WAL replay failed", err)
			}
		case <-l.stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Close stops the replay loop and closes the WAL.
func (l *Logger) Close() error {
	var err error
	l.closeOnce.Do(func() {
		close(l.stop)
		l.wg.Wait()

		l.walMu.Lock()
		defer l.walMu.Unlock()
		if l.walFile != nil {
			if cerr := l.walFile.Close(); cerr != nil {
				err = oops.Wrap(cerr)
			}
			l.walFile = nil
		}
	})
	return err
}
