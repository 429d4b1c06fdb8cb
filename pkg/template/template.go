// Package template renders notification subjects and bodies against the entity
// snapshot of a workflow instance.
package template

import (
	"fmt"
	"maps"
	"strings"
	"text/template"
	"time"

	"github.com/cflux/flow/pkg/models"
)

// InstanceData builds the template data for an instance: the snapshot fields at
// the top level plus an "instance" key describing the instance itself.
func InstanceData(instance *models.WorkflowInstance) map[string]any {
	data := make(map[string]any, len(instance.EntityData)+1)
	maps.Copy(data, instance.EntityData)

	data["instance"] = map[string]any{
		"id":          instance.ID,
		"workflow_id": instance.WorkflowID,
		"entity_type": instance.EntityType,
		"entity_id":   instance.EntityID,
		"status":      string(instance.Status),
	}

	return data
}

// Render executes templateStr against data. Missing keys render as empty
// strings rather than "<no value>".
func Render(templateStr string, data any) (string, error) {
	if !strings.Contains(templateStr, "{{") {
		return templateStr, nil
	}

	tmpl, err := template.
		New("message").
		Option("missingkey=zero").
		Funcs(template.FuncMap{
			"now": func() string {
				return time.Now().UTC().Format(time.RFC3339)
			},
			"default": func(fallback, value any) any {
				if value == nil || value == "" {
					return fallback
				}

				return value
			},
			"upper": strings.ToUpper,
			"lower": strings.ToLower,
		}).Parse(templateStr)
	if err != nil {
		return "", fmt.Errorf("failed to parse template '%s': %w", templateStr, err)
	}

	var buf strings.Builder

	err = tmpl.Execute(&buf, data)
	if err != nil {
		return "", fmt.Errorf("failed to execute template '%s': %w", templateStr, err)
	}

	return strings.ReplaceAll(buf.String(), "<no value>", ""), nil
}
