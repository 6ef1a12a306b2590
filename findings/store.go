package findings

import (
	"sort"
	"sync"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/google/uuid"

	"github.com/redcell-dev/opswarm/errors"
	"github.com/redcell-dev/opswarm/events"
	"github.com/redcell-dev/opswarm/logging"
)

// Store keeps mission findings in memory with a full-text index. One Store
// lives per mission and is dropped with it.
type Store struct {
	sink   events.Sink
	logger *logging.Logger

	mu       sync.RWMutex
	findings map[string]*Finding
	order    []string
	index    bleve.Index
}

// NewStore creates an empty in-memory store. sink and logger may be nil.
func NewStore(sink events.Sink, logger *logging.Logger) (*Store, error) {
	if sink == nil {
		sink = events.NopSink{}
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	docMapping := bleve.NewDocumentMapping()
	textField := bleve.NewTextFieldMapping()
	textField.Analyzer = standard.Name
	keywordField := bleve.NewKeywordFieldMapping()
	docMapping.AddFieldMappingsAt("content", textField)
	docMapping.AddFieldMappingsAt("severity", keywordField)
	docMapping.AddFieldMappingsAt("agent_id", keywordField)

	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultMapping = docMapping
	indexMapping.DefaultAnalyzer = standard.Name

	index, err := bleve.NewMemOnly(indexMapping)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrCodeInternal, "findings index")
	}

	return &Store{
		sink:     sink,
		logger:   logger.WithComponent("findings"),
		findings: make(map[string]*Finding),
		index:    index,
	}, nil
}

// Record classifies and stores one finding.
func (s *Store) Record(agentID, content string) (*Finding, error) {
	f := &Finding{
		ID:        uuid.New().String(),
		AgentID:   agentID,
		Content:   content,
		Severity:  Classify(content),
		CreatedAt: time.Now(),
	}

	s.mu.Lock()
	if err := s.index.Index(f.ID, f); err != nil {
		s.mu.Unlock()
		return nil, errors.WrapWithCode(err, errors.ErrCodeInternal, "index finding")
	}
	s.findings[f.ID] = f
	s.order = append(s.order, f.ID)
	s.mu.Unlock()

	s.logger.Info("finding recorded", map[string]interface{}{
		"agent":    agentID,
		"severity": string(f.Severity),
	})
	s.sink.Emit(events.New(events.TypeFinding, agentID, map[string]interface{}{
		"finding_id": f.ID,
		"severity":   string(f.Severity),
		"content":    content,
	}))

	return f, nil
}

// RecordFromResponse extracts and records every tagged finding in a model
// response. Returns the findings recorded, possibly none.
func (s *Store) RecordFromResponse(agentID, response string) ([]*Finding, error) {
	var out []*Finding
	for _, content := range Extract(response) {
		f, err := s.Record(agentID, content)
		if err != nil {
			return out, err
		}
		out = append(out, f)
	}
	return out, nil
}

// List returns all findings in record order.
func (s *Store) List() []*Finding {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Finding, 0, len(s.order))
	for _, id := range s.order {
		c := *s.findings[id]
		out = append(out, &c)
	}
	return out
}

// Summary counts findings per severity.
func (s *Store) Summary() map[Severity]int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summary := make(map[Severity]int)
	for _, f := range s.findings {
		summary[f.Severity]++
	}
	return summary
}

// Search runs a full-text query over finding contents and returns matches
// ranked by relevance.
func (s *Store) Search(queryText string, limit int) ([]*Finding, error) {
	if limit <= 0 {
		limit = 10
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	req := bleve.NewSearchRequest(bleve.NewMatchQuery(queryText))
	req.Size = limit

	result, err := s.index.Search(req)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrCodeInternal, "findings search")
	}

	var out []*Finding
	for _, hit := range result.Hits {
		if f, ok := s.findings[hit.ID]; ok {
			c := *f
			out = append(out, &c)
		}
	}
	return out, nil
}

// BySeverity returns findings of one severity, most recent first.
func (s *Store) BySeverity(sev Severity) []*Finding {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Finding
	for _, f := range s.findings {
		if f.Severity == sev {
			c := *f
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// Close releases the index.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index.Close()
}

// Ensure Store implements Recorder.
var _ Recorder = (*Store)(nil)
