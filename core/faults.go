package core

import (
	"fmt"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

// FaultCode names the WS-ReliableMessaging fault subcode sent to the peer.
type FaultCode string

const (
	FaultSequenceTerminated        FaultCode = "SequenceTerminated"
	FaultUnknownSequence           FaultCode = "UnknownSequence"
	FaultMessageNumberRollover     FaultCode = "MessageNumberRollover"
	FaultLastMessageNumberExceeded FaultCode = "LastMessageNumberExceeded"
	FaultSequenceClosed            FaultCode = "SequenceClosed"
	FaultCreateSequenceRefused     FaultCode = "CreateSequenceRefused"
)

// ProtocolFault is an unrecoverable violation of the reliable messaging
// protocol. It terminates the affected session only.
type ProtocolFault struct {
	Code       FaultCode
	SequenceID string
	Reason     string
	Metadata   map[string]any
}

func NewProtocolFault(code FaultCode, sequenceID string, reason string) *ProtocolFault {
	return &ProtocolFault{
		Code:       code,
		SequenceID: strings.TrimSpace(sequenceID),
		Reason:     strings.TrimSpace(reason),
	}
}

func (f *ProtocolFault) Error() string {
	if f == nil {
		return "core: protocol fault"
	}
	msg := fmt.Sprintf("core: protocol fault %s", f.Code)
	if f.SequenceID != "" {
		msg += fmt.Sprintf(" on sequence %q", f.SequenceID)
	}
	if f.Reason != "" {
		msg += ": " + f.Reason
	}
	return msg
}

func (f *ProtocolFault) WithMetadata(metadata map[string]any) *ProtocolFault {
	if f == nil {
		return nil
	}
	if f.Metadata == nil {
		f.Metadata = map[string]any{}
	}
	for key, value := range metadata {
		f.Metadata[key] = value
	}
	return f
}

func (f *ProtocolFault) ToServiceError() *goerrors.Error {
	metadata := map[string]any{}
	if f != nil {
		for key, value := range f.Metadata {
			metadata[key] = value
		}
		metadata["fault_code"] = string(f.Code)
		if f.SequenceID != "" {
			metadata["sequence_id"] = f.SequenceID
		}
	}
	return NewError(f.Error(), goerrors.CategoryOperation, ErrorProtocolFault, metadata)
}
