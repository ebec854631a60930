package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/soroosh-tanzadeh/elasticrunner/consumer"
	"github.com/soroosh-tanzadeh/elasticrunner/contracts"
	"github.com/soroosh-tanzadeh/elasticrunner/runner"
)

// exitTempFail asks for a retry (EX_TEMPFAIL from sysexits.h).
const exitTempFail = 75

const defaultCommandTimeout = time.Minute

type commandConsumer struct {
	cfg CommandConfig
}

// newCommandConsumer runs cfg.Command once per message with the payload on stdin.
// Exit code 0 acknowledges, 75 retries and anything else fails permanently.
func newCommandConsumer(cfg CommandConfig) consumer.Consumer {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultCommandTimeout
	}
	return consumer.Shared(commandConsumer{cfg: cfg})
}

func (c commandConsumer) Consume(ctx context.Context, msg contracts.Message, trace contracts.TraceContext) consumer.Outcome {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, c.cfg.Command[0], c.cfg.Command[1:]...)
	cmd.Stdin = bytes.NewBufferString(msg.GetPayload())
	cmd.Env = append(os.Environ(),
		"MESSAGE_ID="+msg.GetId(),
		"TRACE_ID="+trace.TraceID,
		"RECEIVE_COUNT="+strconv.FormatInt(msg.GetReceiveCount(), 10),
	)
	output, err := cmd.CombinedOutput()
	if err == nil {
		return consumer.Success()
	}

	log.WithFields(trace.Fields()).WithField("output", string(output)).Debug("handler failed")

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() == exitTempFail {
		return consumer.Retryable(0, err)
	}
	if ctx.Err() != nil {
		return consumer.Retryable(0, fmt.Errorf("handler timed out: %w", err))
	}
	return consumer.Fatal(err)
}

// commandCapacityManager runs cfg.Command with SOURCE_ID set on every scale up.
func commandCapacityManager(cfg CommandConfig) runner.CapacityManager {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultCommandTimeout
	}
	return runner.CapacityManagerFunc(func(ctx context.Context, sourceID string) error {
		ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()

		cmd := exec.CommandContext(ctx, cfg.Command[0], cfg.Command[1:]...)
		cmd.Env = append(os.Environ(), "SOURCE_ID="+sourceID)
		if output, err := cmd.CombinedOutput(); err != nil {
			return fmt.Errorf("capacity command failed: %w: %s", err, output)
		}
		return nil
	})
}
