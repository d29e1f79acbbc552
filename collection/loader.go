package collection

import (
	"encoding/json"
	"fmt"
)

// LoadCollection replays the storage command log into memory. Commands are
// applied in the order they were persisted, so sequence numbers are
// rebuilt exactly as they were assigned.
func LoadCollection(c *Collection) error {

	cmds, errs := c.storage.Load()

	var applyErr error
	for cmd := range cmds {
		if applyErr != nil {
			continue // drain
		}
		applyErr = c.apply(cmd)
	}

	if err := <-errs; err != nil {
		return err
	}

	return applyErr
}

func (c *Collection) apply(cmd *Command) error {
	switch cmd.Name {
	case CommandPut:
		params := &PutCommand{}
		err := json.Unmarshal(cmd.Payload, params)
		if err != nil {
			return fmt.Errorf("decode put command %s: %w", cmd.Uuid, err)
		}
		c.putRow(params.Id, params.Data)

	case CommandRemove:
		params := &RemoveCommand{}
		err := json.Unmarshal(cmd.Payload, params)
		if err != nil {
			return fmt.Errorf("decode remove command %s: %w", cmd.Uuid, err)
		}
		c.removeRow(params.Id)

	default:
		c.logger.Warn().Str("command", cmd.Name).Str("uuid", cmd.Uuid).Msg("unknown command skipped")
	}

	return nil
}
