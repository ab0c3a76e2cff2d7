package storage

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/san-kum/deepc/internal/dynamo"
)

const (
	metadataFile   = "metadata.json"
	trajectoryFile = "trajectory.csv"
)

// Store keeps one directory per closed-loop run under baseDir.
type Store struct {
	baseDir string
	clock   clock.Clock
}

type Option func(*Store)

func WithClock(clk clock.Clock) Option {
	return func(s *Store) { s.clock = clk }
}

func New(baseDir string, opts ...Option) *Store {
	s := &Store{baseDir: baseDir, clock: clock.New()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Init() error {
	return errors.Wrapf(os.MkdirAll(s.baseDir, 0755), "create store %s", s.baseDir)
}

type RunMetadata struct {
	ID        string    `json:"id"`
	Preset    string    `json:"preset,omitempty"`
	Model     string    `json:"model"`
	Timestamp time.Time `json:"timestamp"`
	Seed      uint64    `json:"seed"`

	DataLength int     `json:"data_length"`
	Tini       int     `json:"tini"`
	Horizon    int     `json:"horizon"`
	S          int     `json:"s"`
	LambdaG    float64 `json:"lambda_g"`
	LambdaY    float64 `json:"lambda_y"`
	LambdaU    float64 `json:"lambda_u"`

	Iterations int                `json:"iterations"`
	Inputs     int                `json:"inputs"`
	Outputs    int                `json:"outputs"`
	Status     string             `json:"status"`
	Error      string             `json:"error,omitempty"`
	Metrics    map[string]float64 `json:"metrics"`
}

// Save assigns the run an ID and timestamp and writes its metadata and
// input/output trajectory.
func (s *Store) Save(meta RunMetadata, data dynamo.Data) (string, error) {
	meta.ID = newRunID(meta.Model)
	meta.Timestamp = s.clock.Now().UTC()
	meta.Inputs = data.Inputs()
	meta.Outputs = data.Outputs()

	runDir := filepath.Join(s.baseDir, meta.ID)
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", errors.Wrapf(err, "create run dir %s", runDir)
	}

	metaFile, err := os.Create(filepath.Join(runDir, metadataFile))
	if err != nil {
		return "", errors.Wrap(err, "create metadata")
	}
	defer metaFile.Close()

	enc := json.NewEncoder(metaFile)
	enc.SetIndent("", "  ")
	if err := enc.Encode(meta); err != nil {
		return "", errors.Wrapf(err, "write metadata for %s", meta.ID)
	}

	if err := SaveData(filepath.Join(runDir, trajectoryFile), data); err != nil {
		return "", err
	}
	return meta.ID, nil
}

func newRunID(model string) string {
	id := uuid.NewString()[:8]
	if model == "" {
		return id
	}
	return model + "_" + id
}

// List returns all readable runs, newest first.
func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMetadata{}, nil
		}
		return nil, errors.Wrapf(err, "list %s", s.baseDir)
	}

	runs := make([]RunMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		meta, err := s.Load(entry.Name())
		if err != nil {
			continue
		}
		runs = append(runs, *meta)
	}

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].Timestamp.After(runs[j].Timestamp)
	})
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	raw, err := os.ReadFile(filepath.Join(s.baseDir, runID, metadataFile))
	if err != nil {
		return nil, errors.Wrapf(err, "load run %s", runID)
	}

	var meta RunMetadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, errors.Wrapf(err, "decode run %s", runID)
	}
	return &meta, nil
}

func (s *Store) LoadTrajectory(runID string) (dynamo.Data, error) {
	return LoadData(filepath.Join(s.baseDir, runID, trajectoryFile))
}
