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

// Package envelope normalizes the three command envelope dialects the backend
// speaks into one internal representation, and serializes responses back into
// the dialect each request arrived in. Dialect-specific field shapes never
// leak past this package.
package envelope

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Dialect identifies the envelope shape of an inbound command.
type Dialect int

const (
	DialectDirect Dialect = iota
	DialectRPC
	DialectFarmWrap
)

func (d Dialect) String() string {
	switch d {
	case DialectDirect:
		return "direct"
	case DialectRPC:
		return "rpc"
	case DialectFarmWrap:
		return "farmwrap"
	default:
		return "unknown"
	}
}

// Message type discriminators
const (
	TypeAutomationCommand = "automation_command"
	TypeAutomationResult  = "automation_result"
	TypeRPCCall           = "rpc_call"
	TypeRPCResponse       = "rpc_response"
	TypePing              = "ping"
	TypeStatusRequest     = "status_request"
)

// Farm-wrap event names
const (
	EventResult = "result"
	EventError  = "error"
	EventReady  = "ready"
)

// Command is the normalized form of an inbound command, independent of the
// dialect it arrived in. It lives only until the matching response is sent.
type Command struct {
	CorrelationID string
	Name          string
	Args          map[string]interface{}
	Dialect       Dialect
}

// Inbound is one parsed message from the backend. Command is nil for control
// messages; Type and ID then carry the raw discriminator for the router.
type Inbound struct {
	Command *Command
	Type    string
	ID      string
}

// ErrorInfo is the machine-readable error payload attached to responses.
type ErrorInfo struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Parse classifies a raw message and normalizes it into an Inbound. Dialects
// are checked in priority order: a message carrying both "action" and
// "correlation_id" is farm-wrap even when it also has "type" and "id" fields.
// Only malformed JSON is an error.
func Parse(data []byte) (*Inbound, error) {
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}

	action, hasAction := stringField(raw, "action")
	correlationID, hasCorrelation := stringField(raw, "correlation_id")
	if hasAction && hasCorrelation {
		return &Inbound{Command: &Command{
			CorrelationID: correlationID,
			Name:          action,
			Args:          farmwrapArgs(raw["payload"]),
			Dialect:       DialectFarmWrap,
		}}, nil
	}

	msgType, _ := stringField(raw, "type")
	id, _ := stringField(raw, "id")

	switch msgType {
	case TypeAutomationCommand:
		return &Inbound{
			Type: msgType,
			ID:   id,
			Command: &Command{
				CorrelationID: id,
				Name:          action,
				Args:          mapField(raw, "params"),
				Dialect:       DialectDirect,
			},
		}, nil
	case TypeRPCCall:
		method, _ := stringField(raw, "method")
		return &Inbound{
			Type: msgType,
			ID:   id,
			Command: &Command{
				CorrelationID: id,
				Name:          method,
				Args:          mapField(raw, "params"),
				Dialect:       DialectRPC,
			},
		}, nil
	}

	return &Inbound{Type: msgType, ID: id}, nil
}

// farmwrapArgs extracts arguments from the first element of the payload list.
func farmwrapArgs(payload interface{}) map[string]interface{} {
	list, ok := payload.([]interface{})
	if !ok || len(list) == 0 {
		return map[string]interface{}{}
	}
	args, ok := list[0].(map[string]interface{})
	if !ok {
		return map[string]interface{}{}
	}
	return args
}

func stringField(raw map[string]interface{}, key string) (string, bool) {
	value, ok := raw[key]
	if !ok {
		return "", false
	}
	switch v := value.(type) {
	case string:
		return v, true
	case float64:
		// Numeric ids are tolerated and stringified for correlation.
		return strconv.FormatFloat(v, 'f', -1, 64), true
	default:
		return "", false
	}
}

func mapField(raw map[string]interface{}, key string) map[string]interface{} {
	if m, ok := raw[key].(map[string]interface{}); ok {
		return m
	}
	return map[string]interface{}{}
}

type directResponse struct {
	ID        string      `json:"id"`
	Type      string      `json:"type"`
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     *ErrorInfo  `json:"error,omitempty"`
	Timestamp string      `json:"timestamp"`
}

type rpcResponse struct {
	ID        string      `json:"id"`
	Type      string      `json:"type"`
	Success   bool        `json:"success"`
	Result    interface{} `json:"result,omitempty"`
	Error     *ErrorInfo  `json:"error,omitempty"`
	Timestamp string      `json:"timestamp"`
}

type farmwrapResponse struct {
	Event         string      `json:"event"`
	CorrelationID string      `json:"correlation_id"`
	Data          interface{} `json:"data"`
	Timestamp     string      `json:"timestamp"`
}

// ClientEvent is an unsolicited agent-to-backend event (ready, status).
type ClientEvent struct {
	Event     string      `json:"event"`
	SessionID string      `json:"session_id,omitempty"`
	Data      interface{} `json:"data"`
	Timestamp string      `json:"timestamp"`
}

// NewClientEvent builds an event with the current timestamp.
func NewClientEvent(event, sessionID string, data interface{}) *ClientEvent {
	return &ClientEvent{
		Event:     event,
		SessionID: sessionID,
		Data:      data,
		Timestamp: now(),
	}
}

// EncodeResult serializes a success response in the command's dialect.
func EncodeResult(cmd *Command, data interface{}) ([]byte, error) {
	switch cmd.Dialect {
	case DialectRPC:
		return json.Marshal(&rpcResponse{
			ID:        cmd.CorrelationID,
			Type:      TypeRPCResponse,
			Success:   true,
			Result:    data,
			Timestamp: now(),
		})
	case DialectFarmWrap:
		return json.Marshal(&farmwrapResponse{
			Event:         EventResult,
			CorrelationID: cmd.CorrelationID,
			Data:          data,
			Timestamp:     now(),
		})
	default:
		return json.Marshal(&directResponse{
			ID:        cmd.CorrelationID,
			Type:      TypeAutomationResult,
			Success:   true,
			Data:      data,
			Timestamp: now(),
		})
	}
}

// EncodeError serializes an error response in the command's dialect. The
// message and code survive in every dialect; farm-wrap carries them in the
// event data since its envelope has no error field.
func EncodeError(cmd *Command, errInfo *ErrorInfo) ([]byte, error) {
	switch cmd.Dialect {
	case DialectRPC:
		return json.Marshal(&rpcResponse{
			ID:        cmd.CorrelationID,
			Type:      TypeRPCResponse,
			Success:   false,
			Error:     errInfo,
			Timestamp: now(),
		})
	case DialectFarmWrap:
		return json.Marshal(&farmwrapResponse{
			Event:         EventError,
			CorrelationID: cmd.CorrelationID,
			Data: map[string]interface{}{
				"message": errInfo.Message,
				"code":    errInfo.Code,
			},
			Timestamp: now(),
		})
	default:
		return json.Marshal(&directResponse{
			ID:        cmd.CorrelationID,
			Type:      TypeAutomationResult,
			Success:   false,
			Error:     errInfo,
			Timestamp: now(),
		})
	}
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}
