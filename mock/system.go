// Package mock simulates a managed system: it serves quality requirement
// measurements, a knob catalogue and a blackboard over the HTTP protocol the
// adaptation manager speaks.
package mock

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"sync"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/snow-ghost/adaptmgr/core"
	"github.com/snow-ghost/adaptmgr/transport/httpapi"
)

// Default endpoint paths
const (
	MetricsPath    = "/get_qr"
	KnobsPath      = "/get_variable_params"
	BlackboardPath = "/set_blackboard"
)

// Scenario is the data a System serves
type Scenario struct {
	QRs   []core.MetricObservation `yaml:"qrs"`
	Knobs []core.Knob              `yaml:"knobs"`
	// Drift perturbs every served metric by up to +-Drift (relative).
	Drift float64 `yaml:"drift"`
}

// DefaultScenario is a small two-knob navigation system
func DefaultScenario() Scenario {
	return Scenario{
		QRs: []core.MetricObservation{
			{Name: "safety", RawValue: 0.8, Weight: 2},
			{Name: "energy", RawValue: 40, Weight: 1},
		},
		Knobs: []core.Knob{
			{Name: "max_speed", OwnerID: "controller_server", AdmissibleValues: []core.Value{
				core.DoubleValue(0.2), core.DoubleValue(0.5), core.DoubleValue(0.8),
			}},
			{Name: "planner", OwnerID: "planner_server", AdmissibleValues: []core.Value{
				core.StringValue("navfn"), core.StringValue("smac"),
			}},
		},
		Drift: 0.1,
	}
}

// LoadScenario reads a scenario from YAML
func LoadScenario(path string) (Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Scenario{}, fmt.Errorf("failed to read scenario: %w", err)
	}
	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Scenario{}, fmt.Errorf("failed to parse scenario: %w", err)
	}
	return s, nil
}

// BlackboardWrite is one accepted set_blackboard request
type BlackboardWrite struct {
	Key        string
	Value      string
	ScriptCode string
}

// System is an in-process managed system
type System struct {
	mu         sync.Mutex
	scenario   Scenario
	available  map[string]bool
	reject     bool
	blackboard map[string]string
	writes     []BlackboardWrite
	requests   map[string]int
	rng        *rand.Rand
	logger     *zap.Logger
}

// NewSystem creates a system serving scenario, with every endpoint available
func NewSystem(scenario Scenario, logger *zap.Logger) *System {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &System{
		scenario:   scenario,
		available:  map[string]bool{MetricsPath: true, KnobsPath: true, BlackboardPath: true},
		blackboard: make(map[string]string),
		requests:   make(map[string]int),
		rng:        rand.New(rand.NewSource(1)),
		logger:     logger,
	}
}

// SetAvailable toggles one endpoint. Unavailable endpoints answer 503.
func (s *System) SetAvailable(path string, up bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.available[path] = up
}

// RejectWrites makes the blackboard answer success=false
func (s *System) RejectWrites(reject bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reject = reject
}

// SetQRs replaces the served measurements
func (s *System) SetQRs(qrs []core.MetricObservation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scenario.QRs = qrs
}

// SetKnobs replaces the served knob catalogue
func (s *System) SetKnobs(knobs []core.Knob) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scenario.Knobs = knobs
}

// Blackboard returns the stored value for key
func (s *System) Blackboard(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.blackboard[key]
	return v, ok
}

// Writes returns every accepted blackboard write in order
func (s *System) Writes() []BlackboardWrite {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]BlackboardWrite(nil), s.writes...)
}

// Requests returns how many times path was hit, including refused calls
func (s *System) Requests(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[path]
}

// Handler routes the three managed system endpoints
func (s *System) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(MetricsPath, s.guard(MetricsPath, http.MethodGet, s.handleMetrics))
	mux.HandleFunc(KnobsPath, s.guard(KnobsPath, http.MethodGet, s.handleKnobs))
	mux.HandleFunc(BlackboardPath, s.guard(BlackboardPath, http.MethodPost, s.handleBlackboard))
	return mux
}

func (s *System) guard(path, method string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.requests[path]++
		up := s.available[path]
		s.mu.Unlock()

		if !up {
			http.Error(w, "service not available", http.StatusServiceUnavailable)
			return
		}
		if r.Method != method {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		next(w, r)
	}
}

func (s *System) handleMetrics(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	qrs := make([]core.MetricObservation, len(s.scenario.QRs))
	for i, qr := range s.scenario.QRs {
		if s.scenario.Drift > 0 {
			qr.RawValue *= 1 + (s.rng.Float64()*2-1)*s.scenario.Drift
		}
		qrs[i] = qr
	}
	s.mu.Unlock()

	writeJSON(w, httpapi.MetricsResponse{QRs: qrs})
}

func (s *System) handleKnobs(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	knobs := append([]core.Knob(nil), s.scenario.Knobs...)
	s.mu.Unlock()

	if knobs == nil {
		knobs = []core.Knob{}
	}
	writeJSON(w, httpapi.KnobsResponse{VariableParameters: knobs})
}

func (s *System) handleBlackboard(w http.ResponseWriter, r *http.Request) {
	var req httpapi.SetBlackboardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.KeyName == "" {
		http.Error(w, "key_name is required", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	reject := s.reject
	if !reject {
		s.blackboard[req.KeyName] = req.Value
		s.writes = append(s.writes, BlackboardWrite{Key: req.KeyName, Value: req.Value, ScriptCode: req.ScriptCode})
	}
	s.mu.Unlock()

	s.logger.Debug("blackboard write",
		zap.String("key", req.KeyName),
		zap.String("value", req.Value),
		zap.Bool("accepted", !reject))
	writeJSON(w, httpapi.SetBlackboardResponse{Success: !reject})
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
