package control

import (
	"encoding/json"
	"fmt"

	"github.com/troupe-ai/troupe/pkg/utils"
)

// TraceNode is one step of a simulation trace. On disk it is a
// four-element array: previous node hash, event hash, encoded output
// and the encoded simulation state after the event.
type TraceNode struct {
	PrevNodeHash string
	EventHash    string
	Output       json.RawMessage
	State        json.RawMessage
}

func (n TraceNode) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{n.PrevNodeHash, n.EventHash, n.Output, n.State})
}

func (n *TraceNode) UnmarshalJSON(data []byte) error {
	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil {
		return err
	}
	if len(parts) != 4 {
		return fmt.Errorf("trace node must have 4 elements, got %d", len(parts))
	}
	if err := json.Unmarshal(parts[0], &n.PrevNodeHash); err != nil {
		return fmt.Errorf("trace node prev hash: %w", err)
	}
	if err := json.Unmarshal(parts[1], &n.EventHash); err != nil {
		return fmt.Errorf("trace node event hash: %w", err)
	}
	n.Output = parts[2]
	n.State = parts[3]
	return nil
}

// Hash returns the node's digest, used as the next node's previous
// hash to chain the trace.
func (n TraceNode) Hash() (string, error) {
	return utils.HashJSON(n)
}

// eventHash digests a function invocation: its name and arguments.
func eventHash(functionName string, args []any) (string, error) {
	return utils.HashJSON([]any{functionName, args})
}
