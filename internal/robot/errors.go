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

package robot

// Stable machine-readable error codes surfaced to command callers.
const (
	CodeActionable       = "ACTIONABLE_ERROR"
	CodeNoDevices        = "NO_DEVICES"
	CodeMultipleDevices  = "MULTIPLE_DEVICES"
	CodeDeviceNotFound   = "DEVICE_NOT_FOUND"
	CodeNoDeviceSelected = "NO_DEVICE_SELECTED"
	CodeMissingArgument  = "MISSING_ARGUMENT"
	CodeInvalidArgument  = "INVALID_ARGUMENT"
)

// ActionableError is a failure the caller can resolve themselves, such as a
// missing device selection or a bad argument. It carries a stable code so the
// backend can react without parsing the message text.
type ActionableError struct {
	Message string
	Code    string
}

// NewActionableError creates an ActionableError with the default code.
func NewActionableError(message string) *ActionableError {
	return &ActionableError{Message: message, Code: CodeActionable}
}

// NewActionableErrorWithCode creates an ActionableError with a specific code.
func NewActionableErrorWithCode(message, code string) *ActionableError {
	return &ActionableError{Message: message, Code: code}
}

func (e *ActionableError) Error() string {
	return e.Message
}
