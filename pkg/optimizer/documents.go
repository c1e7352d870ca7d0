// Package optimizer talks to the remote placement optimizer: it builds the
// request documents, submits them over a message session and waits for the
// placement decision correlated with the submitted request.
package optimizer

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/giannisaf2/crexdata-public/pkg/workflow"
)

// Algorithm selects the optimizer's search strategy.
type Algorithm string

const (
	AlgorithmExhaustive Algorithm = "op-ES"
	AlgorithmGreedy     Algorithm = "op-GS"
	AlgorithmHeuristic  Algorithm = "op-HS"
)

// ParseAlgorithm accepts either the wire code ("op-GS") or the strategy name
// ("greedy"), case-insensitively.
func ParseAlgorithm(s string) (Algorithm, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "op-es", "exhaustive":
		return AlgorithmExhaustive, nil
	case "op-gs", "greedy", "":
		return AlgorithmGreedy, nil
	case "op-hs", "heuristic":
		return AlgorithmHeuristic, nil
	}
	return "", fmt.Errorf("unknown optimizer algorithm %q", s)
}

// ActionOptimizationCompleted is the info message action announcing that the
// optimizer finished working on a request.
const ActionOptimizationCompleted = "OPTIMIZATION_COMPLETED"

// Platform is one execution platform available at a site.
type Platform struct {
	PlatformName string `json:"platformName"`
}

// Site is a computing site and its platforms.
type Site struct {
	SiteName           string     `json:"siteName"`
	AvailablePlatforms []Platform `json:"availablePlatforms"`
}

// Network describes the sites the optimizer may place operators on.
type Network struct {
	Network string `json:"network"`
	Sites   []Site `json:"sites"`
}

// NewNetwork builds a network from a site → platforms map. Sites are sorted
// by name; platform order is kept.
func NewNetwork(name string, sites map[string][]string) *Network {
	names := make([]string, 0, len(sites))
	for site := range sites {
		names = append(names, site)
	}
	sort.Strings(names)

	n := &Network{Network: name, Sites: make([]Site, 0, len(names))}
	for _, site := range names {
		s := Site{SiteName: site, AvailablePlatforms: make([]Platform, 0, len(sites[site]))}
		for _, p := range sites[site] {
			s.AvailablePlatforms = append(s.AvailablePlatforms, Platform{PlatformName: p})
		}
		n.Sites = append(n.Sites, s)
	}
	return n
}

// DictionaryOperator lists where operators of one class key can run.
type DictionaryOperator struct {
	ClassKey string `json:"classKey"`
	Sites    []Site `json:"sites"`
}

// OperatorDictionary tells the optimizer which operator kinds every site supports.
type OperatorDictionary struct {
	DictionaryName string               `json:"dictionaryName"`
	Network        string               `json:"network"`
	Operators      []DictionaryOperator `json:"operators"`
}

// NewDictionary lists every class key of the enabled operators of w, each
// supported on all sites and platforms of network. Keys appear in first-seen
// order.
func NewDictionary(name string, network *Network, w *workflow.Workflow) *OperatorDictionary {
	d := &OperatorDictionary{DictionaryName: name, Network: network.Network}
	seen := make(map[string]struct{})
	w.Walk(func(level *workflow.Workflow) bool {
		for _, op := range level.Operators {
			if !op.IsEnabled {
				continue
			}
			if _, ok := seen[op.ClassKey]; ok {
				continue
			}
			seen[op.ClassKey] = struct{}{}
			d.Operators = append(d.Operators, DictionaryOperator{ClassKey: op.ClassKey, Sites: network.Sites})
		}
		return true
	})
	return d
}

// Request asks the optimizer to place workflow on network.
type Request struct {
	Network       string             `json:"network"`
	Dictionary    string             `json:"dictionary"`
	Algorithm     Algorithm          `json:"algorithm"`
	Workflow      *workflow.Workflow `json:"workflow"`
	Continuous    bool               `json:"continuous"`
	NumberOfPlans int64              `json:"numberOfPlans"`
}

// Response carries the placement decision for one request.
type Response struct {
	OptimizationRequestID string             `json:"optimizationRequestId"`
	Workflow              *workflow.Workflow `json:"workflow"`
}

// Message is a status message published on the info, echo or errors topics.
type Message struct {
	ID      string `json:"id"`
	Action  string `json:"action"`
	Message string `json:"message,omitempty"`
}

// Documents bundles everything sent for one optimization.
type Documents struct {
	Network    *Network
	Dictionary *OperatorDictionary
	Request    *Request
}

// NewDocuments builds the network, dictionary and request for w.
func NewDocuments(networkName, dictionaryName string, sites map[string][]string, algorithm Algorithm, w *workflow.Workflow, continuous bool, plans int64) *Documents {
	network := NewNetwork(networkName, sites)
	dictionary := NewDictionary(dictionaryName, network, w)
	return &Documents{
		Network:    network,
		Dictionary: dictionary,
		Request: &Request{
			Network:       network.Network,
			Dictionary:    dictionary.DictionaryName,
			Algorithm:     algorithm,
			Workflow:      w,
			Continuous:    continuous,
			NumberOfPlans: plans,
		},
	}
}

// Encoded holds the JSON form of the documents.
type Encoded struct {
	Network    []byte
	Dictionary []byte
	Workflow   []byte
	Request    []byte
}

// Encode serializes the documents. The workflow is encoded on its own as
// well for dumping; it travels to the optimizer inside the request.
func (d *Documents) Encode() (*Encoded, error) {
	if d.Network == nil || d.Dictionary == nil || d.Request == nil || d.Request.Workflow == nil {
		return nil, fmt.Errorf("incomplete optimizer documents")
	}
	var (
		e   Encoded
		err error
	)
	if e.Network, err = json.Marshal(d.Network); err != nil {
		return nil, fmt.Errorf("failed to marshal network: %w", err)
	}
	if e.Dictionary, err = json.Marshal(d.Dictionary); err != nil {
		return nil, fmt.Errorf("failed to marshal dictionary: %w", err)
	}
	if e.Workflow, err = d.Request.Workflow.ToBytes(); err != nil {
		return nil, fmt.Errorf("failed to marshal workflow: %w", err)
	}
	if e.Request, err = json.Marshal(d.Request); err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	return &e, nil
}

// DecodeResponse parses a response document.
func DecodeResponse(data []byte) (*Response, error) {
	var r Response
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to unmarshal optimizer response: %w", err)
	}
	if r.Workflow == nil {
		return nil, fmt.Errorf("optimizer response %q carries no workflow", r.OptimizationRequestID)
	}
	return &r, nil
}
