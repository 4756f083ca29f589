package planner

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/slok/aihq/internal/model"
)

// Models sometimes wrap the JSON in a markdown code block even when asked not to,
// only a code block wrapping the whole response is accepted.
var codeBlockRegexp = regexp.MustCompile("(?s)^```(?:json)?\\s*\\n?(.*?)\\s*```$")

type jsonPlan struct {
	Actions *[]jsonAction `json:"actions"`
	Summary *string       `json:"summary"`
}

type jsonAction struct {
	Type        string `json:"type"`
	File        string `json:"file"`
	Content     string `json:"content"`
	Description string `json:"description"`
}

// ParsePlan parses and validates the raw model output of a plan. It returns a
// valid plan or a *model.PlanParseError, never a partially valid plan.
func ParsePlan(raw string) (model.Plan, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return model.Plan{}, &model.PlanParseError{Reason: "empty model response"}
	}

	if m := codeBlockRegexp.FindStringSubmatch(raw); len(m) > 1 {
		raw = m[1]
	}

	var jp jsonPlan
	if err := json.Unmarshal([]byte(raw), &jp); err != nil {
		return model.Plan{}, &model.PlanParseError{Reason: "invalid JSON", Err: err}
	}

	if jp.Actions == nil {
		return model.Plan{}, &model.PlanParseError{Reason: `missing "actions" field`}
	}
	if jp.Summary == nil {
		return model.Plan{}, &model.PlanParseError{Reason: `missing "summary" field`}
	}

	plan := model.Plan{
		Summary: *jp.Summary,
		Actions: make([]model.Action, 0, len(*jp.Actions)),
	}
	for _, a := range *jp.Actions {
		plan.Actions = append(plan.Actions, model.Action{
			Type:        model.ActionType(strings.ToLower(strings.TrimSpace(a.Type))),
			File:        strings.TrimSpace(a.File),
			Content:     a.Content,
			Description: a.Description,
		})
	}

	if err := plan.Validate(); err != nil {
		return model.Plan{}, &model.PlanParseError{Reason: "invalid plan", Err: err}
	}

	return plan, nil
}
