package rpcstdio

import (
	"context"
	"fmt"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/fyrsmithlabs/autofix/internal/defect"
)

type defectView struct {
	ID           int      `json:"id" jsonschema:"Defect id"`
	Title        string   `json:"title" jsonschema:"Defect title"`
	Body         string   `json:"body" jsonschema:"Defect description"`
	State        string   `json:"state" jsonschema:"Lifecycle state: open, in-progress, resolved, or closed"`
	Kind         string   `json:"kind" jsonschema:"Work kind: bug, feature, refactor, docs, test, or chore"`
	Priority     string   `json:"priority" jsonschema:"Urgency: critical, high, medium, or low"`
	Component    string   `json:"component" jsonschema:"Owning component"`
	Labels       []string `json:"labels" jsonschema:"Defect labels"`
	RelatedFiles []string `json:"related_files" jsonschema:"Files related to the defect"`
	URL          string   `json:"url" jsonschema:"Link to the defect in the tracker"`
}

func toDefectView(d *defect.Defect) defectView {
	return defectView{
		ID:           d.ID,
		Title:        d.Title,
		Body:         d.Body,
		State:        string(d.State),
		Kind:         string(d.Kind),
		Priority:     string(d.Context.Priority),
		Component:    d.Context.Component,
		Labels:       d.Labels,
		RelatedFiles: d.Context.RelatedFiles,
		URL:          d.URL,
	}
}

type defectListInput struct {
	Limit int `json:"limit,omitempty" jsonschema:"Maximum number of defects to return (default: all)"`
}

type defectListOutput struct {
	Defects []defectView `json:"defects" jsonschema:"Matching defects"`
	Count   int          `json:"count" jsonschema:"Number of defects returned"`
}

type defectGetInput struct {
	ID int `json:"id" jsonschema:"required,Defect id to fetch"`
}

type defectCreateInput struct {
	Title        string   `json:"title" jsonschema:"required,Defect title"`
	Body         string   `json:"body,omitempty" jsonschema:"Defect description"`
	Kind         string   `json:"kind,omitempty" jsonschema:"bug, feature, refactor, docs, test, or chore (default: bug)"`
	Priority     string   `json:"priority,omitempty" jsonschema:"critical, high, medium, or low (default: medium)"`
	Component    string   `json:"component,omitempty" jsonschema:"Owning component"`
	Labels       []string `json:"labels,omitempty" jsonschema:"Defect labels"`
	RelatedFiles []string `json:"related_files,omitempty" jsonschema:"Files related to the defect"`
}

type defectUpdateInput struct {
	ID       int      `json:"id" jsonschema:"required,Defect id to update"`
	Title    string   `json:"title,omitempty" jsonschema:"New title, unchanged if omitted"`
	Body     string   `json:"body,omitempty" jsonschema:"New description, unchanged if omitted"`
	State    string   `json:"state,omitempty" jsonschema:"New lifecycle state, unchanged if omitted"`
	Priority string   `json:"priority,omitempty" jsonschema:"New priority, unchanged if omitted"`
	Labels   []string `json:"labels,omitempty" jsonschema:"New label set, unchanged if omitted"`
}

func (s *Server) registerDefectTools() {
	s.mustRegister(&ToolMetadata{
		Name:        "list_defects",
		Description: "List the defects currently tracked for remediation",
		Category:    CategoryDefect,
		Keywords:    []string{"triage", "issues", "backlog"},
	})
	mcpsdk.AddTool(s.mcp, &mcpsdk.Tool{
		Name:        "list_defects",
		Description: "List the defects currently tracked for remediation",
	}, func(ctx context.Context, req *mcpsdk.CallToolRequest, args defectListInput) (*mcpsdk.CallToolResult, defectListOutput, error) {
		out, err := s.listDefects(ctx, args)
		if err != nil {
			return nil, defectListOutput{}, err
		}
		return &mcpsdk.CallToolResult{
			Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: fmt.Sprintf("%d defects", out.Count)}},
		}, out, nil
	})

	s.mustRegister(&ToolMetadata{
		Name:        "get_defect",
		Description: "Fetch a single defect by id",
		Category:    CategoryDefect,
		Keywords:    []string{"triage", "lookup"},
	})
	mcpsdk.AddTool(s.mcp, &mcpsdk.Tool{
		Name:        "get_defect",
		Description: "Fetch a single defect by id",
	}, func(ctx context.Context, req *mcpsdk.CallToolRequest, args defectGetInput) (*mcpsdk.CallToolResult, defectView, error) {
		out, err := s.getDefect(ctx, args)
		if err != nil {
			return nil, defectView{}, err
		}
		return &mcpsdk.CallToolResult{
			Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: fmt.Sprintf("defect #%d: %s", out.ID, out.Title)}},
		}, out, nil
	})

	s.mustRegister(&ToolMetadata{
		Name:        "create_defect",
		Description: "File a new defect against the tracker",
		Category:    CategoryDefect,
		Keywords:    []string{"file", "report"},
	})
	mcpsdk.AddTool(s.mcp, &mcpsdk.Tool{
		Name:        "create_defect",
		Description: "File a new defect against the tracker",
	}, func(ctx context.Context, req *mcpsdk.CallToolRequest, args defectCreateInput) (*mcpsdk.CallToolResult, defectView, error) {
		out, err := s.createDefect(ctx, args)
		if err != nil {
			return nil, defectView{}, err
		}
		return &mcpsdk.CallToolResult{
			Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: fmt.Sprintf("created defect #%d", out.ID)}},
		}, out, nil
	})

	s.mustRegister(&ToolMetadata{
		Name:        "update_defect",
		Description: "Update an existing defect's title, body, state, priority, or labels",
		Category:    CategoryDefect,
		Keywords:    []string{"triage", "edit"},
	})
	mcpsdk.AddTool(s.mcp, &mcpsdk.Tool{
		Name:        "update_defect",
		Description: "Update an existing defect's title, body, state, priority, or labels",
	}, func(ctx context.Context, req *mcpsdk.CallToolRequest, args defectUpdateInput) (*mcpsdk.CallToolResult, defectView, error) {
		out, err := s.updateDefect(ctx, args)
		if err != nil {
			return nil, defectView{}, err
		}
		return &mcpsdk.CallToolResult{
			Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: fmt.Sprintf("updated defect #%d", out.ID)}},
		}, out, nil
	})
}

func (s *Server) listDefects(ctx context.Context, args defectListInput) (defectListOutput, error) {
	defects, err := s.defects.FetchDefects(ctx)
	if err != nil {
		return defectListOutput{}, fmt.Errorf("list defects: %w", err)
	}
	if args.Limit > 0 && args.Limit < len(defects) {
		defects = defects[:args.Limit]
	}

	views := make([]defectView, len(defects))
	for i, d := range defects {
		views[i] = toDefectView(d)
	}
	return defectListOutput{Defects: views, Count: len(views)}, nil
}

func (s *Server) getDefect(ctx context.Context, args defectGetInput) (defectView, error) {
	d, err := s.defects.GetDefect(ctx, args.ID)
	if err != nil {
		return defectView{}, fmt.Errorf("get defect %d: %w", args.ID, err)
	}
	return toDefectView(d), nil
}

func (s *Server) createDefect(ctx context.Context, args defectCreateInput) (defectView, error) {
	kind := defect.KindBug
	if args.Kind != "" {
		kind = defect.Kind(args.Kind)
	}
	priority := defect.PriorityMedium
	if args.Priority != "" {
		priority = defect.Priority(args.Priority)
	}

	d := &defect.Defect{
		Title:  args.Title,
		Body:   args.Body,
		State:  defect.StateOpen,
		Kind:   kind,
		Labels: args.Labels,
		Context: defect.Context{
			Component:    args.Component,
			Priority:     priority,
			RelatedFiles: args.RelatedFiles,
			Origin:       defect.OriginManual,
		},
	}

	created, err := s.defects.CreateDefect(ctx, d)
	if err != nil {
		return defectView{}, fmt.Errorf("create defect: %w", err)
	}
	return toDefectView(created), nil
}

func (s *Server) updateDefect(ctx context.Context, args defectUpdateInput) (defectView, error) {
	existing, err := s.defects.GetDefect(ctx, args.ID)
	if err != nil {
		return defectView{}, fmt.Errorf("update defect %d: %w", args.ID, err)
	}

	if args.Title != "" {
		existing.Title = args.Title
	}
	if args.Body != "" {
		existing.Body = args.Body
	}
	if args.State != "" {
		existing.State = defect.State(args.State)
	}
	if args.Priority != "" {
		existing.Context.Priority = defect.Priority(args.Priority)
	}
	if args.Labels != nil {
		existing.Labels = args.Labels
	}

	updated, err := s.defects.UpdateDefect(ctx, existing)
	if err != nil {
		return defectView{}, fmt.Errorf("update defect %d: %w", args.ID, err)
	}
	return toDefectView(updated), nil
}

type publicationCreateInput struct {
	Branch     string `json:"branch" jsonschema:"required,Source branch containing the change"`
	BaseBranch string `json:"base_branch,omitempty" jsonschema:"Target branch (default: repository default branch)"`
	Title      string `json:"title" jsonschema:"required,Publication title"`
	Body       string `json:"body,omitempty" jsonschema:"Publication description"`
}

type publicationCreateOutput struct {
	URL    string `json:"url" jsonschema:"Published change URL"`
	Number int    `json:"number" jsonschema:"Publication number"`
}

func (s *Server) registerPublicationTools() {
	s.mustRegister(&ToolMetadata{
		Name:        "create_publication",
		Description: "Open a change proposal for a branch against a base branch",
		Category:    CategoryPublication,
		Keywords:    []string{"pull request", "merge request", "publish"},
	})
	mcpsdk.AddTool(s.mcp, &mcpsdk.Tool{
		Name:        "create_publication",
		Description: "Open a change proposal for a branch against a base branch",
	}, func(ctx context.Context, req *mcpsdk.CallToolRequest, args publicationCreateInput) (*mcpsdk.CallToolResult, publicationCreateOutput, error) {
		out, err := s.createPublication(ctx, args)
		if err != nil {
			return nil, publicationCreateOutput{}, err
		}
		return &mcpsdk.CallToolResult{
			Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: fmt.Sprintf("published: %s", out.URL)}},
		}, out, nil
	})
}

func (s *Server) createPublication(ctx context.Context, args publicationCreateInput) (publicationCreateOutput, error) {
	handle, err := s.publish.Publish(ctx, nil, args.Branch, args.BaseBranch, args.Title, args.Body)
	if err != nil {
		return publicationCreateOutput{}, fmt.Errorf("create publication: %w", err)
	}
	return publicationCreateOutput{URL: handle.URL, Number: handle.Number}, nil
}
