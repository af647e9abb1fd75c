package state

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/oshokin/security-zone/internal/config"
	domain "github.com/oshokin/security-zone/internal/domain/zone"
)

// FileRepository persists the snapshots of all zones to one JSON file.
// The document is a protobuf Struct keyed by zone id and is written with
// protojson.
type FileRepository struct {
	// path is the filesystem location of the JSON state file.
	path string
	// mu protects concurrent access to the state file.
	mu sync.Mutex
}

// NewFileRepository creates a repository that reads/writes JSON at the provided path.
func NewFileRepository(path string) *FileRepository {
	return &FileRepository{
		path: filepath.Clean(path),
	}
}

// Load reads the snapshot of one zone.
func (r *FileRepository) Load(_ context.Context, zoneID string) (*domain.Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	document, err := r.read()
	if err != nil {
		return nil, err
	}

	value, ok := document.GetFields()[zoneID]
	if !ok || value.GetStructValue() == nil {
		return nil, ErrNotFound
	}

	snapshot, err := fromRecord(structToRecord(value.GetStructValue()))
	if err != nil {
		return nil, fmt.Errorf("decode zone %s: %w", zoneID, err)
	}

	return snapshot, nil
}

// Save writes the snapshot of one zone, keeping the others.
func (r *FileRepository) Save(_ context.Context, zoneID string, snapshot *domain.Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	document, err := r.read()
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}

	value, err := recordToValue(toRecord(snapshot))
	if err != nil {
		return fmt.Errorf("encode zone %s: %w", zoneID, err)
	}

	document.Fields[zoneID] = value

	return r.write(document)
}

// Delete removes the snapshot of one zone.
func (r *FileRepository) Delete(_ context.Context, zoneID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	document, err := r.read()
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}

		return err
	}

	delete(document.Fields, zoneID)

	return r.write(document)
}

// read returns the stored document, or an empty one with ErrNotFound.
func (r *FileRepository) read() (*structpb.Struct, error) {
	empty := &structpb.Struct{Fields: make(map[string]*structpb.Value)}

	contents, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return empty, ErrNotFound
		}

		return nil, fmt.Errorf("read state file: %w", err)
	}

	var document structpb.Struct
	if err = protojson.Unmarshal(contents, &document); err != nil {
		return nil, fmt.Errorf("decode state file: %w", err)
	}

	if document.Fields == nil {
		document.Fields = empty.Fields
	}

	return &document, nil
}

// write replaces the file through a temporary file in the same directory.
func (r *FileRepository) write(document *structpb.Struct) error {
	marshalOptions := protojson.MarshalOptions{
		Multiline:       true,
		EmitUnpopulated: true,
	}

	data, err := marshalOptions.Marshal(document)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	tmp := r.path + ".tmp"
	if err = os.WriteFile(tmp, data, config.DefaultFilePermissions); err != nil {
		return fmt.Errorf("write state file: %w", err)
	}

	if err = os.Rename(tmp, r.path); err != nil {
		return fmt.Errorf("replace state file: %w", err)
	}

	return nil
}

func recordToValue(r *record) (*structpb.Value, error) {
	devices := make([]any, 0, len(r.TriggeredDevices))
	for _, device := range r.TriggeredDevices {
		devices = append(devices, device)
	}

	fields := map[string]any{
		"state":            r.State,
		"level":            r.Level,
		"icon":             r.Icon,
		"triggeredDevices": devices,
	}

	if r.DelayActivate != "" {
		fields["delayActivate"] = r.DelayActivate
	}

	if r.DelayAlarm != "" {
		fields["delayAlarm"] = r.DelayAlarm
	}

	s, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, err
	}

	return structpb.NewStructValue(s), nil
}

func structToRecord(s *structpb.Struct) *record {
	fields := s.GetFields()

	r := &record{
		State:         fields["state"].GetStringValue(),
		Level:         fields["level"].GetStringValue(),
		Icon:          fields["icon"].GetStringValue(),
		DelayActivate: fields["delayActivate"].GetStringValue(),
		DelayAlarm:    fields["delayAlarm"].GetStringValue(),
	}

	for _, value := range fields["triggeredDevices"].GetListValue().GetValues() {
		r.TriggeredDevices = append(r.TriggeredDevices, value.GetStringValue())
	}

	return r
}
