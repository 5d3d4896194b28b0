// Package audit persists reward records as JSON lines under a per-datasource
// directory tree.
package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/ahrav/go-reward/internal/domain"
	"github.com/ahrav/go-reward/internal/ports"
)

// filePrefix starts every audit file name.
const filePrefix = "rollout_reward_"

// Verify interface compliance at compile time.
var _ ports.AuditSink = (*JSONLSink)(nil)

// JSONLSink appends records to <dir>/<datasource>/rollout_reward_<partition>.jsonl.
// Appends to the same file are serialized so lines never interleave; files
// are opened per append and closed afterwards.
type JSONLSink struct {
	dir string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewJSONLSink creates a sink rooted at dir. Directories are created on
// first append.
func NewJSONLSink(dir string) *JSONLSink {
	return &JSONLSink{dir: dir, locks: make(map[string]*sync.Mutex)}
}

// Path returns the file records for datasource and partition are written to.
func (s *JSONLSink) Path(datasource, partition string) string {
	return filepath.Join(s.dir, sanitize(datasource), filePrefix+partition+".jsonl")
}

// Append implements ports.AuditSink. The batch is encoded before the file
// lock is taken and written with a single call.
func (s *JSONLSink) Append(ctx context.Context, datasource, partition string, records []domain.RewardRecord) error {
	if len(records) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	var buf bytes.Buffer
	for i := range records {
		line, err := encodeRecord(&records[i], partition)
		if err != nil {
			return fmt.Errorf("encode audit record %d: %w", i, err)
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}

	path := s.Path(datasource, partition)
	lock := s.lock(path)
	lock.Lock()
	defer lock.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create audit dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open audit file: %w", err)
	}
	if _, err := f.Write(buf.Bytes()); err != nil {
		_ = f.Close()
		return fmt.Errorf("write audit file: %w", err)
	}
	return f.Close()
}

func (s *JSONLSink) lock(path string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[path]
	if !ok {
		l = &sync.Mutex{}
		s.locks[path] = l
	}
	return l
}

// sanitize keeps a datasource name from escaping the log directory.
func sanitize(datasource string) string {
	name := strings.NewReplacer("/", "_", "\\", "_").Replace(datasource)
	if name == "" || name == "." || name == ".." {
		return "_" + name
	}
	return name
}

// encodeRecord renders one line the way Python's json.dumps does with
// ensure_ascii off: ", " and ": " separators, UTF-8 kept as is, and NaN /
// Infinity written bare. The correct and incorrect files list
// answer_token_length ahead of gt_answer; the pass@k files list it after
// reward.
func encodeRecord(r *domain.RewardRecord, partition string) ([]byte, error) {
	var b bytes.Buffer
	field := func(name string, value []byte) {
		if b.Len() == 0 {
			b.WriteByte('{')
		} else {
			b.WriteString(", ")
		}
		b.WriteString(`"` + name + `": `)
		b.Write(value)
	}
	var firstErr error
	str := func(s string) []byte {
		v, err := jsonString(s)
		if err != nil && firstErr == nil {
			firstErr = err
		}
		return v
	}

	image := []byte("null")
	if r.ImageFile != nil {
		image = str(*r.ImageFile)
	}
	length := strconv.AppendInt(nil, int64(r.AnswerLength), 10)
	signOrder := partition == domain.PartitionCorrect || partition == domain.PartitionIncorrect

	field("current_iteration", strconv.AppendInt(nil, int64(r.CurrentIteration), 10))
	field("prompt", str(r.Prompt))
	field("image_file", image)
	field("answer", str(r.Answer))
	if signOrder {
		field("answer_token_length", length)
	}
	field("gt_answer", str(r.GTAnswer))
	field("reward", pyFloat(r.Reward))
	if !signOrder {
		field("answer_token_length", length)
	}
	field("reward_sum_of_this_prompt", pyFloat(r.RewardSum))
	field("uuid", str(r.UUID))
	b.WriteByte('}')

	if firstErr != nil {
		return nil, firstErr
	}
	return b.Bytes(), nil
}

// jsonString quotes s as a JSON string without HTML escaping.
func jsonString(s string) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// pyFloat encodes f as a JSON number, or as NaN / Infinity / -Infinity.
func pyFloat(f float64) []byte {
	switch {
	case math.IsNaN(f):
		return []byte("NaN")
	case math.IsInf(f, 1):
		return []byte("Infinity")
	case math.IsInf(f, -1):
		return []byte("-Infinity")
	}
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return []byte(s)
}
