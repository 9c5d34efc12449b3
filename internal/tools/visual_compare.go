package tools

import (
	"context"

	"github.com/example/visual-compare/internal/comparator"
)

// VisualIdentityCompareName is the name the tool is registered under.
const VisualIdentityCompareName = "visual_identity_compare"

// VisualIdentityCompareTool exposes a Comparator as a tool.
type VisualIdentityCompareTool struct {
	comparator *comparator.Comparator
}

// NewVisualIdentityCompareTool wraps c.
func NewVisualIdentityCompareTool(c *comparator.Comparator) *VisualIdentityCompareTool {
	return &VisualIdentityCompareTool{comparator: c}
}

func (t *VisualIdentityCompareTool) Name() string {
	return VisualIdentityCompareName
}

func (t *VisualIdentityCompareTool) Description() string {
	return "Compares two images to determine if they show the same person. " +
		"The comparison may use facial features, clothing, tattoos, or other visible cues. " +
		"Requires a user-provided inference endpoint that accepts two images."
}

func (t *VisualIdentityCompareTool) Parameters() map[string]ParameterDefinition {
	return map[string]ParameterDefinition{
		"image1_path": {
			Type:        "string",
			Description: "Path to the first image file.",
			Required:    true,
		},
		"image2_path": {
			Type:        "string",
			Description: "Path to the second image file.",
			Required:    true,
		},
		"endpoint_url": {
			Type:        "string",
			Description: "The inference endpoint URL that performs the visual identity comparison.",
			Required:    true,
		},
	}
}

func (t *VisualIdentityCompareTool) OutputType() string {
	return "string"
}

// Request converts tool arguments to a comparison request.
func (t *VisualIdentityCompareTool) Request(args map[string]string) (comparator.ComparisonRequest, error) {
	if err := CheckArguments(t, args); err != nil {
		return comparator.ComparisonRequest{}, err
	}
	return comparator.ComparisonRequest{
		Image1Path:  args["image1_path"],
		Image2Path:  args["image2_path"],
		EndpointURL: args["endpoint_url"],
	}, nil
}

// Invoke runs the comparison described by args.
func (t *VisualIdentityCompareTool) Invoke(ctx context.Context, args map[string]string) (string, error) {
	req, err := t.Request(args)
	if err != nil {
		return "", err
	}
	return t.comparator.Compare(ctx, req)
}
