// Package extract implements the five domain extractors (project, zones,
// windows, hvac, dhw), each producing a partial BuildingSpec fragment that
// the Merge Engine slots into the final record.
package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"basegraph.app/t24spec/internal/model"
	"basegraph.app/t24spec/internal/worker"
)

// ProjectFragment is the project extractor's output: scalar project
// metadata plus the aggregate envelope scalars.
type ProjectFragment struct {
	Project  model.Project  `json:"project"`
	Envelope model.Envelope `json:"envelope"`
}

// ZoneFragmentItem is one zone as the zones extractor reports it, with its
// walls nested: the merge domain "zones, walls within zones" in 4.G
// flattens Walls into BuildingSpec's top-level walls list.
type ZoneFragmentItem struct {
	model.Zone
	Walls []model.Wall `json:"walls"`
}

// Domain names one of the five extraction domains.
type Domain string

const (
	DomainProject Domain = "project"
	DomainZones   Domain = "zones"
	DomainWindows Domain = "windows"
	DomainHVAC    Domain = "hvac"
	DomainDHW     Domain = "dhw"
)

// Fragment is the untyped result of running one domain extractor: the
// caller knows which concrete type to expect from the Domain.
type Fragment struct {
	Domain  Domain
	Project *ProjectFragment
	Zones   []ZoneFragmentItem
	Windows []model.Window
	HVAC    []model.HVACSystem
	DHW     []model.WaterHeatingSystem
}

// Request describes one extraction invocation.
type Request struct {
	Domain              Domain
	DocumentMap         model.DocumentMap
	PageImagePaths      []string
	PageNote            string
	InstructionDocument string // path under the instruction root this extractor's prompt references
	Timeout             time.Duration
}

// Extractor runs a single domain extractor worker and validates its output.
type Extractor struct {
	invoker worker.Invoker
}

// NewExtractor constructs an Extractor backed by invoker.
func NewExtractor(invoker worker.Invoker) *Extractor {
	return &Extractor{invoker: invoker}
}

// Extract invokes the worker for req.Domain and returns a validated
// Fragment. A schema validation failure is returned as an error; the
// Parallel Orchestrator converts it into a failed ExtractionStatus.
func (e *Extractor) Extract(ctx context.Context, req Request) (Fragment, error) {
	workerName := workerNameFor(req.Domain)
	prompt := buildPrompt(req)

	response, err := e.invoker.Invoke(ctx, workerName, prompt, req.Timeout)
	if err != nil {
		return Fragment{}, fmt.Errorf("invoking %s extractor: %w", req.Domain, err)
	}

	return parseFragment(req.Domain, response)
}

func workerNameFor(d Domain) string {
	return fmt.Sprintf("extractor-%s", d)
}

func buildPrompt(req Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Extract the %s fragment of the building specification.\n", req.Domain)
	fmt.Fprintf(&b, "Follow the instructions in %s.\n", req.InstructionDocument)
	b.WriteString("Page images:\n")
	for _, p := range req.PageImagePaths {
		fmt.Fprintf(&b, "- %s\n", p)
	}
	if req.PageNote != "" {
		fmt.Fprintf(&b, "Note: %s\n", req.PageNote)
	}
	return b.String()
}

func parseFragment(domain Domain, response string) (Fragment, error) {
	switch domain {
	case DomainProject:
		f, err := worker.ParseStructured[ProjectFragment](response)
		if err != nil {
			return Fragment{}, err
		}
		if err := validateFragment("project_fragment", f); err != nil {
			return Fragment{}, err
		}
		return Fragment{Domain: domain, Project: &f}, nil

	case DomainZones:
		f, err := worker.ParseStructured[[]ZoneFragmentItem](response)
		if err != nil {
			return Fragment{}, err
		}
		if err := validateFragment("zones_fragment", f); err != nil {
			return Fragment{}, err
		}
		return Fragment{Domain: domain, Zones: f}, nil

	case DomainWindows:
		f, err := worker.ParseStructured[[]model.Window](response)
		if err != nil {
			return Fragment{}, err
		}
		if err := validateFragment("windows_fragment", f); err != nil {
			return Fragment{}, err
		}
		return Fragment{Domain: domain, Windows: f}, nil

	case DomainHVAC:
		f, err := worker.ParseStructured[[]model.HVACSystem](response)
		if err != nil {
			return Fragment{}, err
		}
		if err := validateFragment("hvac_fragment", f); err != nil {
			return Fragment{}, err
		}
		return Fragment{Domain: domain, HVAC: f}, nil

	case DomainDHW:
		f, err := worker.ParseStructured[[]model.WaterHeatingSystem](response)
		if err != nil {
			return Fragment{}, err
		}
		if err := validateFragment("dhw_fragment", f); err != nil {
			return Fragment{}, err
		}
		return Fragment{Domain: domain, DHW: f}, nil

	default:
		return Fragment{}, fmt.Errorf("unknown extraction domain %q", domain)
	}
}

func validateFragment[T any](name string, v T) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling %s for validation: %w", name, err)
	}
	return model.ValidateJSON[T](name, raw)
}
