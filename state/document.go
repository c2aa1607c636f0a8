package state

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// DocumentVersion is the current version of the serialized state document.
const DocumentVersion = 1

// Document is the serialized form of the applied list used by byte-oriented
// backends.
type Document struct {
	Version int      `json:"version"`
	Applied []Record `json:"applied"`
}

// NewDocument returns an empty document of the current version.
func NewDocument() *Document {
	return &Document{Version: DocumentVersion, Applied: []Record{}}
}

// DecodeDocument parses a serialized state document. An empty payload decodes
// to an empty document.
func DecodeDocument(data []byte) (*Document, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return NewDocument(), nil
	}

	var head struct {
		Version int `json:"version"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, &CorruptStateError{Payload: data, Err: err}
	}
	if head.Version != DocumentVersion {
		return nil, &CorruptStateError{
			Payload: data,
			Err:     fmt.Errorf("unsupported state version %d", head.Version),
		}
	}

	doc := NewDocument()
	if err := json.Unmarshal(data, doc); err != nil {
		return nil, &CorruptStateError{Payload: data, Err: err}
	}
	if doc.Applied == nil {
		doc.Applied = []Record{}
	}

	seen := make(map[string]struct{}, len(doc.Applied))
	for i, r := range doc.Applied {
		if r.Name == "" {
			return nil, &CorruptStateError{
				Payload: data,
				Err:     fmt.Errorf("record at index %d has no name", i),
			}
		}
		if _, ok := seen[r.Name]; ok {
			return nil, &CorruptStateError{
				Payload: data,
				Err:     fmt.Errorf("migration '%s' is recorded more than once", r.Name),
			}
		}
		seen[r.Name] = struct{}{}
	}

	return doc, nil
}

// Encode serializes the document.
func (d *Document) Encode() ([]byte, error) {
	if d.Applied == nil {
		d.Applied = []Record{}
	}
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed encoding migration state: %w", err)
	}
	return append(data, '\n'), nil
}

// Names returns the applied migration names in application order.
func (d *Document) Names() []string {
	return Names(d.Applied)
}

// Append records name as the most recently applied migration.
func (d *Document) Append(name string, appliedAt time.Time) error {
	if name == "" {
		return errors.New("migration name is empty")
	}
	for _, r := range d.Applied {
		if r.Name == name {
			return &DuplicateRecordError{Name: name}
		}
	}
	d.Applied = append(d.Applied, Record{Name: name, AppliedAt: appliedAt.UTC()})
	return nil
}

// RemoveTail removes name from the applied list, if it's the most recently
// applied migration.
func (d *Document) RemoveTail(name string) error {
	if len(d.Applied) == 0 {
		return &OrderingError{Name: name}
	}
	tail := d.Applied[len(d.Applied)-1].Name
	if tail != name {
		return &OrderingError{Name: name, Tail: tail}
	}
	d.Applied = d.Applied[:len(d.Applied)-1]
	return nil
}
