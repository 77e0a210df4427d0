// Package filestore keeps stored workflows as YAML files in a directory,
// one <name>.yaml file per workflow.
package filestore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tailored-agentic-units/workflow/storage"
)

const extension = ".yaml"

// Store implements storage.WorkflowStore on the filesystem. Writes go
// through a temporary file and a rename so readers never see partial files.
type Store struct {
	root string
}

// New creates a store rooted at root. The directory is created on the
// first write.
func New(root string) *Store {
	return &Store{root: root}
}

type placeFile struct {
	Name  string `yaml:"name"`
	Label string `yaml:"label,omitempty"`
}

type transitionFile struct {
	Name           string   `yaml:"name"`
	Label          string   `yaml:"label,omitempty"`
	From           []string `yaml:"from"`
	To             []string `yaml:"to"`
	Permission     string   `yaml:"permission,omitempty"`
	HandleBySystem bool     `yaml:"handle_by_system,omitempty"`
}

type workflowFile struct {
	Name        string           `yaml:"name"`
	Supports    []string         `yaml:"supports"`
	StartPlace  string           `yaml:"start_place"`
	Places      []placeFile      `yaml:"places"`
	FinalPlace  string           `yaml:"final_place,omitempty"`
	LastPlaces  []string         `yaml:"last_places,omitempty"`
	Extra       map[string]any   `yaml:"extra,omitempty"`
	Transitions []transitionFile `yaml:"transitions"`
	CreatedAt   time.Time        `yaml:"created_at"`
	UpdatedAt   time.Time        `yaml:"updated_at"`
}

func (s *Store) path(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("workflow name is required")
	}
	if strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("invalid workflow name %q", name)
	}
	return filepath.Join(s.root, name+extension), nil
}

// ListWorkflows reads every workflow file ordered by creation time, then
// name. A missing root yields no workflows.
func (s *Store) ListWorkflows(ctx context.Context) ([]storage.WorkflowRecord, error) {
	var records []storage.WorkflowRecord

	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) && path == s.root {
				return fs.SkipAll
			}
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		if strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() && path != s.root {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if path != s.root {
				return filepath.SkipDir
			}
			return nil
		}
		if filepath.Ext(path) != extension {
			return nil
		}

		record, err := readFile(path)
		if err != nil {
			return err
		}
		records = append(records, record)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list workflows: %w", err)
	}

	sort.SliceStable(records, func(i, j int) bool {
		if !records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].CreatedAt.Before(records[j].CreatedAt)
		}
		return records[i].Name < records[j].Name
	})
	return records, nil
}

// GetWorkflow reads one workflow file.
func (s *Store) GetWorkflow(ctx context.Context, name string) (storage.WorkflowRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.WorkflowRecord{}, err
	}
	path, err := s.path(name)
	if err != nil {
		return storage.WorkflowRecord{}, err
	}

	record, err := readFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return storage.WorkflowRecord{}, storage.ErrNotFound
	}
	return record, err
}

// CreateWorkflow writes a new workflow file.
func (s *Store) CreateWorkflow(ctx context.Context, record storage.WorkflowRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := s.path(record.Name)
	if err != nil {
		return err
	}
	if strings.TrimSpace(record.StartPlace) == "" {
		return fmt.Errorf("start place is required")
	}
	if _, err := os.Stat(path); err == nil {
		return storage.ErrAlreadyExists
	}

	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	if record.UpdatedAt.IsZero() {
		record.UpdatedAt = record.CreatedAt
	}

	data, err := yaml.Marshal(toFile(record))
	if err != nil {
		return fmt.Errorf("encode workflow %q: %w", record.Name, err)
	}
	return writeAtomic(path, data)
}

// DeleteWorkflow removes a workflow file.
func (s *Store) DeleteWorkflow(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := s.path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return storage.ErrNotFound
		}
		return fmt.Errorf("delete workflow %q: %w", name, err)
	}
	return nil
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create store directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func readFile(path string) (storage.WorkflowRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return storage.WorkflowRecord{}, err
	}

	var file workflowFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return storage.WorkflowRecord{}, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	if file.Name == "" {
		file.Name = strings.TrimSuffix(filepath.Base(path), extension)
	}
	return fromFile(file), nil
}

func toFile(record storage.WorkflowRecord) workflowFile {
	file := workflowFile{
		Name:       record.Name,
		Supports:   record.Supports,
		StartPlace: record.StartPlace,
		FinalPlace: record.FinalPlace,
		LastPlaces: record.LastPlaces,
		Extra:      record.Extra,
		CreatedAt:  record.CreatedAt.UTC(),
		UpdatedAt:  record.UpdatedAt.UTC(),
	}
	for _, p := range record.Places {
		file.Places = append(file.Places, placeFile(p))
	}
	for _, t := range record.Transitions {
		file.Transitions = append(file.Transitions, transitionFile(t))
	}
	return file
}

func fromFile(file workflowFile) storage.WorkflowRecord {
	record := storage.WorkflowRecord{
		Name:       file.Name,
		Supports:   file.Supports,
		StartPlace: file.StartPlace,
		FinalPlace: file.FinalPlace,
		LastPlaces: file.LastPlaces,
		Extra:      file.Extra,
		CreatedAt:  file.CreatedAt,
		UpdatedAt:  file.UpdatedAt,
	}
	for _, p := range file.Places {
		record.Places = append(record.Places, storage.PlaceRecord(p))
	}
	for _, t := range file.Transitions {
		record.Transitions = append(record.Transitions, storage.TransitionRecord(t))
	}
	return record
}

var _ storage.WorkflowStore = (*Store)(nil)
