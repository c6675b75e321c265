package transform

import (
	"encoding/json"
	"fmt"

	"streamloader/internal/event"
)

// DefaultCaster decodes a dynamic column's raw JSON payload into a Go value
// suitable for the warehouse driver, without further validation.
type DefaultCaster struct{}

// Cast implements Caster.
func (DefaultCaster) Cast(columnName string, columnType event.ColumnType, raw []byte) (ColumnValue, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("transform: column %s is not valid JSON: %w", columnName, err)
	}
	switch columnType {
	case event.ColumnArray:
		if _, ok := v.([]any); !ok {
			return nil, fmt.Errorf("transform: column %s must be a JSON array, got %T", columnName, v)
		}
	case event.ColumnObject:
		if _, ok := v.(map[string]any); !ok {
			return nil, fmt.Errorf("transform: column %s must be a JSON object, got %T", columnName, v)
		}
	}
	return v, nil
}

// DefaultCollaborator projects an Event's fixed columns as strings and casts
// its dynamic columns via the supplied Caster. It never fails on the fixed
// columns (they are all strings already); failures can only come from a
// dynamic column's Cast.
type DefaultCollaborator struct{}

// Transform implements Collaborator.
func (DefaultCollaborator) Transform(e *event.Event, caster Caster) (map[string]ColumnValue, error) {
	row := make(map[string]ColumnValue, len(e.Fields)+len(e.Dynamic))
	for name, val := range e.Fields {
		if val == "" {
			continue
		}
		row[name] = val
	}
	for name, raw := range e.Dynamic {
		colType := event.ClassifyColumn(name)
		v, err := caster.Cast(name, colType, raw)
		if err != nil {
			return nil, err
		}
		row[name] = v
	}
	return row, nil
}
