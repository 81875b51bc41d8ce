package models

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

type StateType string

const (
	StateTypeLegacy StateType = "legacy"
	StateTypeStream StateType = "stream"
	StateTypeGlobal StateType = "global"
	StateTypeNotSet StateType = "not_set"
)

// ConnectionState is the state service's view of a connection's last committed state.
type ConnectionState struct {
	StateType    StateType       `json:"stateType" yaml:"stateType"`
	ConnectionID uuid.UUID       `json:"connectionId" yaml:"connectionId"`
	State        json.RawMessage `json:"state,omitempty" yaml:"-"`
	StreamState  []StreamState   `json:"streamState,omitempty" yaml:"-"`
	GlobalState  *GlobalState    `json:"globalState,omitempty" yaml:"-"`
}

type StreamDescriptor struct {
	Name      string `json:"name"`
	Namespace string `json:"namespace,omitempty"`
}

type StreamState struct {
	StreamDescriptor StreamDescriptor `json:"streamDescriptor"`
	StreamState      json.RawMessage  `json:"streamState,omitempty"`
}

type GlobalState struct {
	SharedState  json.RawMessage `json:"sharedState,omitempty"`
	StreamStates []StreamState   `json:"streamStates,omitempty"`
}

// State is the opaque state payload handed to the sync. Legacy states carry the raw
// object; stream and global states carry an array of protocol state messages.
type State struct {
	State json.RawMessage `json:"state"`
}

// NotSetState is what the state service reports for a connection that never committed.
func NotSetState(connectionID uuid.UUID) ConnectionState {
	return ConnectionState{StateType: StateTypeNotSet, ConnectionID: connectionID}
}

type protocolStreamDescriptor struct {
	Name      string `json:"name"`
	Namespace string `json:"namespace,omitempty"`
}

type protocolStreamState struct {
	StreamDescriptor protocolStreamDescriptor `json:"stream_descriptor"`
	StreamState      json.RawMessage          `json:"stream_state,omitempty"`
}

type protocolGlobalState struct {
	SharedState  json.RawMessage       `json:"shared_state,omitempty"`
	StreamStates []protocolStreamState `json:"stream_states"`
}

type protocolStateMessage struct {
	Type   string               `json:"type"`
	Stream *protocolStreamState `json:"stream,omitempty"`
	Global *protocolGlobalState `json:"global,omitempty"`
}

// ToState converts the service representation into the sync's state payload.
// A connection without state yields nil.
func (cs ConnectionState) ToState() (*State, error) {
	switch cs.StateType {
	case StateTypeLegacy:
		if len(cs.State) == 0 {
			return nil, nil
		}
		raw, err := compactJSON(cs.State)
		if err != nil {
			return nil, fmt.Errorf("legacy state: %w", err)
		}
		return &State{State: raw}, nil
	case StateTypeStream:
		msgs := make([]protocolStateMessage, 0, len(cs.StreamState))
		for _, ss := range cs.StreamState {
			pss := toProtocolStreamState(ss)
			msgs = append(msgs, protocolStateMessage{Type: "STREAM", Stream: &pss})
		}
		return marshalState(msgs)
	case StateTypeGlobal:
		if cs.GlobalState == nil {
			return nil, nil
		}
		global := protocolGlobalState{
			SharedState:  cs.GlobalState.SharedState,
			StreamStates: make([]protocolStreamState, 0, len(cs.GlobalState.StreamStates)),
		}
		for _, ss := range cs.GlobalState.StreamStates {
			global.StreamStates = append(global.StreamStates, toProtocolStreamState(ss))
		}
		return marshalState([]protocolStateMessage{{Type: "GLOBAL", Global: &global}})
	case StateTypeNotSet, "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown state type %q", cs.StateType)
	}
}

func toProtocolStreamState(ss StreamState) protocolStreamState {
	return protocolStreamState{
		StreamDescriptor: protocolStreamDescriptor{
			Name:      ss.StreamDescriptor.Name,
			Namespace: ss.StreamDescriptor.Namespace,
		},
		StreamState: ss.StreamState,
	}
}

func marshalState(v any) (*State, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode state messages: %w", err)
	}
	return &State{State: raw}, nil
}

func compactJSON(raw []byte) (json.RawMessage, error) {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return nil, err
	}
	return json.RawMessage(buf.Bytes()), nil
}
