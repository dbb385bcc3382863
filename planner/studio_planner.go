package planner

import (
	"context"
	"errors"
	"fmt"
)

const defaultCreatePath = "/create"

// StudioPlanner expands a request into the studio's create-page flow:
// open the page, configure model and mode, fill the provided fields,
// then submit. The expansion is deterministic for a given request shape.
type StudioPlanner struct {
	// CreatePath is the studio path of the generation page.
	CreatePath string
}

func (p StudioPlanner) Plan(ctx context.Context, req GenerationRequest) ([]Action, error) {
	if req.RunID == "" {
		return nil, errors.New("planner: request missing run id")
	}

	createPath := p.CreatePath
	if createPath == "" {
		createPath = defaultCreatePath
	}

	plan := []Action{
		{
			Kind:   KindNavigate,
			Value:  createPath,
			Expect: "the studio create page is open with generation controls visible",
		},
	}

	if req.ModelID != "" {
		plan = append(plan, Action{
			Kind:   KindSelect,
			Target: "model-menu",
			Value:  req.ModelID,
			Expect: fmt.Sprintf("model %q is selected in the model menu", req.ModelID),
		})
	}

	// Lyrics and style only exist behind the custom-mode toggle.
	if req.Lyrics != "" || req.Style != "" {
		plan = append(plan, Action{
			Kind:   KindClick,
			Target: "custom-mode-toggle",
			Expect: "custom mode is enabled and the lyrics and style fields are visible",
		})
	}

	if req.Lyrics != "" {
		plan = append(plan, Action{
			Kind:   KindInput,
			Target: "lyrics-input",
			Value:  req.Lyrics,
			Expect: fmt.Sprintf("the lyrics field contains the provided lyrics (%d characters)", len(req.Lyrics)),
		})
	}

	if req.Style != "" {
		plan = append(plan, Action{
			Kind:   KindInput,
			Target: "style-input",
			Value:  req.Style,
			Expect: fmt.Sprintf("the style field reads %q", req.Style),
		})
	}

	if req.Title != "" {
		plan = append(plan, Action{
			Kind:   KindInput,
			Target: "title-input",
			Value:  req.Title,
			Expect: fmt.Sprintf("the title field reads %q", req.Title),
		})
	}

	if req.Persona != "" {
		plan = append(plan,
			Action{
				Kind:   KindClick,
				Target: "persona-menu",
				Expect: "the persona picker is open",
			},
			Action{
				Kind:   KindSelect,
				Target: "persona-list",
				Value:  req.Persona,
				Expect: fmt.Sprintf("persona %q is attached to the request", req.Persona),
			},
		)
	}

	if req.Workspace != "" {
		plan = append(plan, Action{
			Kind:   KindSelect,
			Target: "workspace-menu",
			Value:  req.Workspace,
			Expect: fmt.Sprintf("workspace %q is the active destination", req.Workspace),
		})
	}

	plan = append(plan, Action{
		Kind:   KindClick,
		Target: "create-button",
		Expect: "generation has started and a new song row appeared in the queue",
	})

	return plan, nil
}
