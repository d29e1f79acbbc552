package collection

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	CommandPut    = "put"
	CommandRemove = "remove"
)

type Command struct {
	Name      string          `json:"name"`
	Uuid      string          `json:"uuid"`
	Timestamp int64           `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

type PutCommand struct {
	Id   string          `json:"id"`
	Data json.RawMessage `json:"data"`
}

type RemoveCommand struct {
	Id string `json:"id"`
}

func newCommand(name string, payload interface{}) (*Command, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("json encode payload: %w", err)
	}

	return &Command{
		Name:      name,
		Uuid:      uuid.New().String(),
		Timestamp: time.Now().UnixNano(),
		Payload:   encoded,
	}, nil
}
