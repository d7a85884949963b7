package pricewatch

import (
	"context"
	"strings"
)

// ModelPlaceholder is the label of the empty first option of a model selector.
const ModelPlaceholder = "--select a model--"

// SelectOption is one option of a selector.
type SelectOption struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// ModelSelector is the view state of the model selector that depends on the
// chosen product name.
//
// The first option is always the placeholder. The selector is disabled
// until a non-empty model list has been loaded.
type ModelSelector struct {
	Name     string         `json:"name"`
	Options  []SelectOption `json:"options"`
	Disabled bool           `json:"disabled"`
}

// NewModelSelector builds a selector for the given models.
func NewModelSelector(name string, models []string) ModelSelector {
	sel := ModelSelector{
		Name:     name,
		Options:  []SelectOption{{Value: "", Label: ModelPlaceholder}},
		Disabled: true,
	}
	for _, m := range models {
		sel.Options = append(sel.Options, SelectOption{Value: m, Label: m})
	}
	if len(models) > 0 {
		sel.Disabled = false
	}
	return sel
}

// ModelSelector loads the models of a product name into a fresh selector.
//
// A blank name returns the disabled placeholder-only selector without
// calling the backend. On error the disabled selector is returned along
// with the error.
func (c *Client) ModelSelector(ctx context.Context, name string) (ModelSelector, error) {
	if strings.TrimSpace(name) == "" {
		return NewModelSelector(name, nil), nil
	}

	models, err := c.ListModels(ctx, name)
	if err != nil {
		return NewModelSelector(name, nil), err
	}
	return NewModelSelector(name, models), nil
}
