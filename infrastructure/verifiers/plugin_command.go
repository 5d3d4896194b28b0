package verifiers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/ahrav/go-reward/internal/domain"
)

// ErrPluginProtocol is returned when a plugin process replies with
// something other than one JSON object.
var ErrPluginProtocol = errors.New("plugin protocol error")

// Plugin protocol operations.
const (
	opExtract = "extract"
	opJudge   = "judge"
)

// pluginWaitDelay bounds how long a killed plugin's children may hold its
// output pipes open.
const pluginWaitDelay = time.Second

// pluginRequest is written to the plugin's stdin, one object per process.
type pluginRequest struct {
	Op        string `json:"op"`
	Response  string `json:"response,omitempty"`
	Question  string `json:"question,omitempty"`
	Extracted any    `json:"extracted,omitempty"`
	Reference any    `json:"reference,omitempty"`
	Image     string `json:"image,omitempty"`
}

// pluginResponse is read from the plugin's stdout. Extract replies carry
// answer (null when extraction failed), judge replies carry score.
type pluginResponse struct {
	Answer any      `json:"answer"`
	Score  *float64 `json:"score"`
	Error  string   `json:"error"`
}

// commandPlugin runs an executable per call. The process boundary keeps
// configured code out of the grading process.
type commandPlugin struct {
	argv    []string
	timeout time.Duration
}

func (p *commandPlugin) Extract(ctx context.Context, response, question string) (domain.Answer, error) {
	resp, err := p.call(ctx, pluginRequest{Op: opExtract, Response: response, Question: question})
	if err != nil {
		return domain.Absent(), err
	}
	if resp.Answer == nil {
		return domain.Absent(), domain.ErrExtractionFailed
	}
	return domain.AnswerFromValue(resp.Answer), nil
}

func (p *commandPlugin) Judge(ctx context.Context, extracted, reference domain.Answer, question, image string) (float64, error) {
	resp, err := p.call(ctx, pluginRequest{
		Op:        opJudge,
		Extracted: extracted.Value(),
		Reference: reference.Value(),
		Question:  question,
		Image:     image,
	})
	if err != nil {
		return 0, err
	}
	if resp.Score == nil {
		return 0, fmt.Errorf("%w: judge reply has no score", ErrPluginProtocol)
	}
	return *resp.Score, nil
}

func (p *commandPlugin) call(ctx context.Context, req pluginRequest) (pluginResponse, error) {
	var resp pluginResponse
	payload, err := json.Marshal(req)
	if err != nil {
		return resp, fmt.Errorf("failed to encode plugin request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, p.argv[0], p.argv[1:]...)
	cmd.Stdin = bytes.NewReader(payload)
	cmd.WaitDelay = pluginWaitDelay
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return resp, fmt.Errorf("plugin %s %s: %w", p.argv[0], req.Op, ctx.Err())
		}
		return resp, fmt.Errorf("plugin %s %s failed: %w: %s",
			p.argv[0], req.Op, err, strings.TrimSpace(truncate(stderr.String(), 500)))
	}

	dec := json.NewDecoder(&stdout)
	dec.UseNumber()
	if err := dec.Decode(&resp); err != nil {
		return resp, fmt.Errorf("%w: %v", ErrPluginProtocol, err)
	}
	if resp.Error != "" {
		return resp, fmt.Errorf("plugin %s %s: %s", p.argv[0], req.Op, resp.Error)
	}
	return resp, nil
}
