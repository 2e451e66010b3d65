// Package queue implements a durable, directory-backed message queue. Each
// topic is a directory with four state folders (pending, processing,
// completed, failed); a message's folder is its delivery state, and the only
// concurrency primitive is the atomicity of rename within one volume.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

// Queue is the mailbox contract the workers are written against. Dequeue
// returns a claim token that must later be resolved with Complete or Fail;
// an empty token means nothing was claimed.
type Queue interface {
	Enqueue(ctx context.Context, env *Envelope) error
	Dequeue(ctx context.Context) (*Envelope, string, error)
	Complete(token string) error
	Fail(token string) error
	PendingCount() (int, error)
}

// Counts holds per-folder message counts for one topic.
type Counts struct {
	Pending    int
	Processing int
	Completed  int
	Failed     int
}

// FileQueue is the filesystem implementation of Queue. Many producers and
// consumers may share one topic directory; a consumer claims a pending file
// by renaming it into processing, and a rename that fails because another
// consumer got there first is a lost race, not an error.
type FileQueue struct {
	topic      string
	topicDir   string
	pending    string
	processing string
	completed  string
	failed     string
	log        zerolog.Logger
}

// NewFileQueue opens (and creates, if needed) the state folders for topic
// under baseDir.
func NewFileQueue(baseDir, topic string, log zerolog.Logger) (*FileQueue, error) {
	topicDir := filepath.Join(baseDir, topic)
	q := &FileQueue{
		topic:      topic,
		topicDir:   topicDir,
		pending:    filepath.Join(topicDir, "pending"),
		processing: filepath.Join(topicDir, "processing"),
		completed:  filepath.Join(topicDir, "completed"),
		failed:     filepath.Join(topicDir, "failed"),
		log:        log.With().Str("queue", topic).Logger(),
	}
	for _, dir := range []string{q.pending, q.processing, q.completed, q.failed} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating queue folder %s: %w", dir, err)
		}
	}
	return q, nil
}

// Enqueue serializes env into the pending folder. The file is written to a
// temporary name first and renamed into place so a consumer can never claim
// a partially written message.
func (q *FileQueue) Enqueue(ctx context.Context, env *Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling envelope %s: %w", env.MessageID, err)
	}

	tmp, err := os.CreateTemp(q.topicDir, ".enqueue-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("writing envelope %s: %w", env.MessageID, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("closing temp file: %w", err)
	}

	dest := filepath.Join(q.pending, env.FileName())
	if err := os.Rename(tmp.Name(), dest); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("publishing envelope %s: %w", env.MessageID, err)
	}

	q.log.Info().
		Str("messageId", env.MessageID).
		Str("messageType", env.MessageType).
		Msg("enqueued message")
	return nil
}

// Dequeue claims the first pending message it can win the rename race for
// and returns it with its claim token. A nil envelope and empty token means
// the queue had nothing claimable. If a claimed file cannot be read or
// decoded, the claim token is returned alongside the error so the caller can
// dead-letter the message.
func (q *FileQueue) Dequeue(ctx context.Context) (*Envelope, string, error) {
	entries, err := os.ReadDir(q.pending)
	if err != nil {
		return nil, "", fmt.Errorf("listing pending folder: %w", err)
	}

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, "", err
		}
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}

		token := filepath.Join(q.processing, name)
		if err := os.Rename(filepath.Join(q.pending, name), token); err != nil {
			// Another consumer won the claim; move on.
			continue
		}

		data, err := os.ReadFile(token)
		if err != nil {
			return nil, token, fmt.Errorf("reading claimed message %s: %w", name, err)
		}
		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			return nil, token, fmt.Errorf("decoding claimed message %s: %w", name, err)
		}

		q.log.Info().Str("file", name).Msg("claimed message")
		return &env, token, nil
	}

	return nil, "", nil
}

// Complete moves a claimed message into the completed folder. A no-op for an
// empty token.
func (q *FileQueue) Complete(token string) error {
	if token == "" {
		return nil
	}
	name := filepath.Base(token)
	if err := os.Rename(token, filepath.Join(q.completed, name)); err != nil {
		return fmt.Errorf("completing message %s: %w", name, err)
	}
	q.log.Info().Str("file", name).Msg("completed message")
	return nil
}

// Fail moves a claimed message into the failed folder, the topic's
// dead-letter area. The queue performs no retry of its own; retry, if any,
// is the caller's responsibility.
func (q *FileQueue) Fail(token string) error {
	if token == "" {
		return nil
	}
	name := filepath.Base(token)
	if err := os.Rename(token, filepath.Join(q.failed, name)); err != nil {
		return fmt.Errorf("dead-lettering message %s: %w", name, err)
	}
	q.log.Warn().Str("file", name).Msg("dead-lettered message")
	return nil
}

// PendingCount reports how many messages are currently waiting.
func (q *FileQueue) PendingCount() (int, error) {
	return q.countDir(q.pending)
}

// FolderCounts reports per-folder counts for monitoring. Stranded files in
// processing (a consumer crashed after claiming) show up here; they are not
// requeued automatically.
func (q *FileQueue) FolderCounts() (Counts, error) {
	var c Counts
	var err error
	if c.Pending, err = q.countDir(q.pending); err != nil {
		return c, err
	}
	if c.Processing, err = q.countDir(q.processing); err != nil {
		return c, err
	}
	if c.Completed, err = q.countDir(q.completed); err != nil {
		return c, err
	}
	c.Failed, err = q.countDir(q.failed)
	return c, err
}

func (q *FileQueue) countDir(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("listing %s: %w", dir, err)
	}
	n := 0
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".json") {
			n++
		}
	}
	return n, nil
}
