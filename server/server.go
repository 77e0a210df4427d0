// Package server exposes loaded workflows for inspection over connect
// procedures carrying structpb messages.
//
//	mux := server.NewRouter(server.NewHandler(reg), observer)
//	http.ListenAndServe(":8080", mux)
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/tailored-agentic-units/workflow/config"
	"github.com/tailored-agentic-units/workflow/registry"
	"github.com/tailored-agentic-units/workflow/workflow"
)

// Procedure paths served by the inspection service.
const (
	ServiceName               = "workflow.v1.InspectionService"
	ListWorkflowsProcedure    = "/" + ServiceName + "/ListWorkflows"
	DescribeWorkflowProcedure = "/" + ServiceName + "/DescribeWorkflow"
	DumpWorkflowProcedure     = "/" + ServiceName + "/DumpWorkflow"
)

// Catalog is the read side of a registry.
type Catalog interface {
	Names() []string
	Workflow(name string) (*workflow.Workflow, error)
	Supports(name string) []string
	Export(name string) (config.Workflow, error)
}

var _ Catalog = (*registry.Registry)(nil)

// Handler implements the inspection procedures.
type Handler struct {
	catalog Catalog
}

// NewHandler creates a handler reading from catalog.
func NewHandler(catalog Catalog) *Handler {
	return &Handler{catalog: catalog}
}

// ListWorkflows returns one summary per loaded workflow:
// {"workflows": [{"name", "type", "supports", "places", "transitions"}]}.
func (h *Handler) ListWorkflows(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	names := h.catalog.Names()
	summaries := make([]any, 0, len(names))
	for _, name := range names {
		wf, err := h.catalog.Workflow(name)
		if err != nil {
			return nil, connectError(err)
		}
		kind := workflow.TypeWorkflow
		if wf.IsStateMachine() {
			kind = workflow.TypeStateMachine
		}
		supports := make([]any, 0)
		for _, s := range h.catalog.Supports(name) {
			supports = append(supports, s)
		}
		summaries = append(summaries, map[string]any{
			"name":        name,
			"type":        kind,
			"supports":    supports,
			"places":      len(wf.Definition().Places()),
			"transitions": len(wf.Definition().Transitions()),
		})
	}

	msg, err := structpb.NewStruct(map[string]any{"workflows": summaries})
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(msg), nil
}

// DescribeWorkflow returns the exported configuration record of
// {"name": "..."}.
func (h *Handler) DescribeWorkflow(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	name, err := requiredName(req.Msg)
	if err != nil {
		return nil, err
	}

	cfg, err := h.catalog.Export(name)
	if err != nil {
		return nil, connectError(err)
	}

	// Round trip through JSON so the struct tags decide the field names.
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}

	msg, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(msg), nil
}

// DumpWorkflow renders {"name": "...", "marking": ["place", ...]} as
// Graphviz DOT in {"dot": "..."}.
func (h *Handler) DumpWorkflow(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	name, err := requiredName(req.Msg)
	if err != nil {
		return nil, err
	}

	wf, err := h.catalog.Workflow(name)
	if err != nil {
		return nil, connectError(err)
	}

	var marking workflow.Marking
	if list := req.Msg.GetFields()["marking"].GetListValue(); list != nil {
		for _, v := range list.GetValues() {
			place := v.GetStringValue()
			if !wf.Definition().HasPlace(place) {
				return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("%w: %q", workflow.ErrUnknownPlace, place))
			}
			marking.Mark(place)
		}
	}

	msg, err := structpb.NewStruct(map[string]any{"dot": workflow.DumpDOT(wf, marking)})
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(msg), nil
}

func requiredName(msg *structpb.Struct) (string, error) {
	name := strings.TrimSpace(msg.GetFields()["name"].GetStringValue())
	if name == "" {
		return "", connect.NewError(connect.CodeInvalidArgument, errors.New("name is required"))
	}
	return name, nil
}

func connectError(err error) error {
	if errors.Is(err, registry.ErrWorkflowNotFound) {
		return connect.NewError(connect.CodeNotFound, err)
	}
	return connect.NewError(connect.CodeInternal, err)
}
