// Copyright 2025 Arion Yau
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"drover/internal/envelope"
	"drover/internal/logger"
	"drover/internal/robot"
)

// Error codes attached to responses that did not reach a handler
const (
	codeUnknownAction = "UNKNOWN_ACTION"
	codeInternalError = "INTERNAL_ERROR"
)

// HandlerFunc executes one command against the active device
type HandlerFunc func(ctx context.Context, args map[string]interface{}) (interface{}, error)

// SendFunc delivers an encoded response to the backend. It returns false
// when the connection is gone; the response is then dropped.
type SendFunc func(data []byte) bool

// Dispatcher routes inbound messages to command handlers. Commands run
// concurrently; responses carry the correlation ID of the command they
// answer, so completion order does not matter.
type Dispatcher struct {
	handlers map[string]HandlerFunc
	devices  *DeviceManager
	replay   *ReplayCache
	logger   zerolog.Logger
	wg       sync.WaitGroup

	statusFn func() interface{}
}

// NewDispatcher creates a dispatcher with the full handler set registered
func NewDispatcher(devices *DeviceManager) *Dispatcher {
	d := &Dispatcher{
		handlers: make(map[string]HandlerFunc),
		devices:  devices,
		replay:   NewReplayCache(256, 10*time.Minute),
		logger:   logger.New(),
	}
	d.registerHandlers()
	return d
}

// Register adds or replaces a command handler
func (d *Dispatcher) Register(name string, fn HandlerFunc) {
	d.handlers[name] = fn
}

// SetStatusFunc installs the snapshot callback answering status requests
func (d *Dispatcher) SetStatusFunc(fn func() interface{}) {
	d.statusFn = fn
}

// HandleMessage parses one inbound frame and reacts to it. Command frames
// spawn a goroutine and return immediately; control frames are answered
// inline. Malformed frames are logged and dropped.
func (d *Dispatcher) HandleMessage(ctx context.Context, data []byte, send SendFunc) {
	inbound, err := envelope.Parse(data)
	if err != nil {
		d.logger.Warn().Err(err).Msg("Dropping malformed message")
		return
	}

	if inbound.Command != nil && inbound.Command.Name != "" {
		d.dispatch(ctx, inbound.Command, send)
		return
	}

	switch inbound.Type {
	case envelope.TypePing:
		d.respondPong(inbound.ID, send)
	case envelope.TypeStatusRequest:
		d.respondStatus(inbound.ID, send)
	default:
		d.logger.Debug().
			Str("type", inbound.Type).
			Msg("Ignoring message with no command")
	}
}

// Wait blocks until all in-flight commands have finished
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) dispatch(ctx context.Context, cmd *envelope.Command, send SendFunc) {
	if cached, found := d.replay.Check(cmd.CorrelationID); found {
		d.logger.Info().
			Str("correlation_id", cmd.CorrelationID).
			Str("command", cmd.Name).
			Msg("Replaying cached response for duplicate command")
		send(cached)
		return
	}

	handler, known := d.handlers[cmd.Name]
	if !known {
		d.logger.Warn().
			Str("command", cmd.Name).
			Str("correlation_id", cmd.CorrelationID).
			Msg("Unknown command")
		d.respondError(cmd, &envelope.ErrorInfo{
			Type:    "Error",
			Message: fmt.Sprintf("unknown command: %s", cmd.Name),
			Code:    codeUnknownAction,
		}, send)
		return
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.runCommand(ctx, cmd, handler, send)
	}()
}

func (d *Dispatcher) runCommand(ctx context.Context, cmd *envelope.Command, handler HandlerFunc, send SendFunc) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error().
				Str("command", cmd.Name).
				Interface("panic", r).
				Msg("Command handler panicked")
			d.respondError(cmd, &envelope.ErrorInfo{
				Type:    "Error",
				Message: fmt.Sprintf("internal error executing %s", cmd.Name),
				Code:    codeInternalError,
			}, send)
		}
	}()

	start := time.Now()
	d.logger.Info().
		Str("command", cmd.Name).
		Str("correlation_id", cmd.CorrelationID).
		Str("dialect", cmd.Dialect.String()).
		Msg("Executing command")

	result, err := handler(ctx, cmd.Args)
	if err != nil {
		d.respondError(cmd, classifyError(cmd.Name, err), send)
		return
	}

	payload, encErr := envelope.EncodeResult(cmd, result)
	if encErr != nil {
		d.logger.Error().Err(encErr).Msg("Failed to encode result")
		d.respondError(cmd, &envelope.ErrorInfo{
			Type:    "Error",
			Message: "failed to encode result",
			Code:    codeInternalError,
		}, send)
		return
	}

	d.replay.Store(cmd.CorrelationID, payload)
	if !send(payload) {
		d.logger.Warn().
			Str("correlation_id", cmd.CorrelationID).
			Msg("Response dropped, connection lost")
	}

	d.logger.Info().
		Str("command", cmd.Name).
		Str("correlation_id", cmd.CorrelationID).
		Dur("duration", time.Since(start)).
		Msg("Command completed")
}

// classifyError maps a handler failure to the wire error taxonomy. An
// ActionableError keeps its code and message verbatim; anything else is
// wrapped as internal with the message preserved for diagnosis.
func classifyError(command string, err error) *envelope.ErrorInfo {
	var actionable *robot.ActionableError
	if errors.As(err, &actionable) {
		return &envelope.ErrorInfo{
			Type:    "ActionableError",
			Message: actionable.Message,
			Code:    actionable.Code,
		}
	}
	return &envelope.ErrorInfo{
		Type:    "Error",
		Message: fmt.Sprintf("%s failed: %v", command, err),
		Code:    codeInternalError,
	}
}

func (d *Dispatcher) respondError(cmd *envelope.Command, errInfo *envelope.ErrorInfo, send SendFunc) {
	payload, err := envelope.EncodeError(cmd, errInfo)
	if err != nil {
		d.logger.Error().Err(err).Msg("Failed to encode error response")
		return
	}
	d.replay.Store(cmd.CorrelationID, payload)
	send(payload)
}

func (d *Dispatcher) respondPong(id string, send SendFunc) {
	cmd := &envelope.Command{CorrelationID: id, Dialect: envelope.DialectDirect}
	payload, err := envelope.EncodeResult(cmd, map[string]interface{}{"status": "pong"})
	if err != nil {
		return
	}
	send(payload)
}

func (d *Dispatcher) respondStatus(id string, send SendFunc) {
	var status interface{}
	if d.statusFn != nil {
		status = d.statusFn()
	}
	cmd := &envelope.Command{CorrelationID: id, Dialect: envelope.DialectDirect}
	payload, err := envelope.EncodeResult(cmd, status)
	if err != nil {
		return
	}
	send(payload)
}
