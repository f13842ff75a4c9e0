package harness

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"solclash/internal/fault"
	"solclash/internal/policy"
)

const killGrace = 5 * time.Second

// Client multiplexes requests onto one harness child process. Safe for
// concurrent use; responses are matched to callers by request id.
type Client struct {
	mu      sync.Mutex
	nextID  uint64
	pending map[uint64]chan *response
	closed  bool

	stdin      io.WriteCloser
	cmd        *exec.Cmd
	readerDone chan struct{}
}

// New wraps an already-connected request/response pipe pair. Used directly
// in tests; production goes through Start.
func New(stdin io.WriteCloser, stdout io.Reader) *Client {
	c := &Client{
		pending:    make(map[uint64]chan *response),
		stdin:      stdin,
		readerDone: make(chan struct{}),
	}
	go c.readLoop(stdout)
	return c
}

// Start launches the harness binary and connects to its stdio.
func Start(binPath string, args ...string) (*Client, error) {
	cmd := exec.Command(binPath, args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("harness stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("harness stdout: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("harness stderr: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start harness %s: %w", binPath, err)
	}
	go drainStderr(stderr)

	c := New(stdin, stdout)
	c.cmd = cmd
	return c, nil
}

func drainStderr(r io.Reader) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		log.Debug().Str("stream", "harness").Msg(sc.Text())
	}
}

// readLoop scans stdout lines until the child closes the pipe. Malformed
// lines and responses without a pending request are dropped.
func (c *Client) readLoop(stdout io.Reader) {
	sc := bufio.NewScanner(stdout)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var resp response
		if err := json.Unmarshal(line, &resp); err != nil {
			continue
		}
		c.mu.Lock()
		ch, ok := c.pending[resp.RequestID]
		if ok {
			delete(c.pending, resp.RequestID)
		}
		c.mu.Unlock()
		if ok {
			ch <- &resp
		}
	}
	c.failAll()
	close(c.readerDone)
}

// failAll marks the channel dead and wakes every outstanding waiter.
func (c *Client) failAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
}

// send registers a pending entry and writes one request line.
func (c *Client) send(req *request) (chan *response, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, fault.New(fault.HarnessGone, "harness process is gone")
	}
	c.nextID++
	req.RequestID = c.nextID
	ch := make(chan *response, 1)
	c.pending[req.RequestID] = ch

	line, err := json.Marshal(req)
	if err != nil {
		delete(c.pending, req.RequestID)
		c.mu.Unlock()
		return nil, fmt.Errorf("encode %s request: %w", req.Kind, err)
	}
	line = append(line, '\n')
	_, werr := c.stdin.Write(line)
	if werr != nil {
		delete(c.pending, req.RequestID)
		c.mu.Unlock()
		return nil, fault.Wrap(fault.HarnessGone, werr, "write %s request", req.Kind)
	}
	c.mu.Unlock()
	return ch, nil
}

func (c *Client) await(ctx context.Context, id string, ch chan *response) (*response, error) {
	select {
	case resp, ok := <-ch:
		if !ok {
			return nil, fault.New(fault.HarnessGone, "harness exited with %s outstanding", id)
		}
		return resp, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Init loads the given programs into the harness.
func (c *Client) Init(ctx context.Context, programs []Program, computeUnitLimit *uint64) error {
	ch, err := c.send(&request{Kind: kindInit, Programs: programs, ComputeUnitLimit: computeUnitLimit})
	if err != nil {
		return err
	}
	resp, err := c.await(ctx, "init", ch)
	if err != nil {
		return err
	}
	switch resp.Kind {
	case kindOK:
		return nil
	case kindError:
		return fmt.Errorf("harness init: %s", resp.Message)
	default:
		return fault.New(fault.HarnessProtocolViolation, "unexpected %s response to init", resp.Kind)
	}
}

// Eval submits one evaluation input and awaits the decision.
func (c *Client) Eval(ctx context.Context, agentID string, in *policy.EvalInput) (*policy.StepOutput, error) {
	ch, err := c.send(&request{Kind: kindEval, AgentID: agentID, Input: encodeEvalInput(in)})
	if err != nil {
		return nil, err
	}
	resp, err := c.await(ctx, "eval "+agentID, ch)
	if err != nil {
		return nil, err
	}
	switch resp.Kind {
	case kindResult:
		if resp.Output == nil {
			return nil, fmt.Errorf("harness eval %s: result without output", agentID)
		}
		return decodeStepOutput(resp.Output, in.Instrument.VolumeScale)
	case kindError:
		return nil, fmt.Errorf("harness eval %s: %s", agentID, resp.Message)
	default:
		return nil, fault.New(fault.HarnessProtocolViolation, "unexpected %s response to eval", resp.Kind)
	}
}

// Shutdown asks the harness to exit, closes its stdin, and kills the child
// if it does not terminate in time.
func (c *Client) Shutdown(ctx context.Context) error {
	ch, err := c.send(&request{Kind: kindShutdown})
	if err == nil {
		if _, aerr := c.await(ctx, "shutdown", ch); aerr != nil && ctx.Err() != nil {
			log.Warn().Msg("harness shutdown acknowledgement timed out")
		}
	}
	_ = c.stdin.Close()

	if c.cmd == nil {
		return nil
	}
	waited := make(chan error, 1)
	go func() { waited <- c.cmd.Wait() }()
	select {
	case <-waited:
	case <-time.After(killGrace):
		_ = c.cmd.Process.Kill()
		<-waited
	}
	return nil
}

// PolicyFor adapts one loaded program into the engine's policy interface.
func (c *Client) PolicyFor(agentID string) policy.Policy {
	return policy.Func(func(ctx context.Context, in *policy.EvalInput) (*policy.StepOutput, error) {
		return c.Eval(ctx, agentID, in)
	})
}
