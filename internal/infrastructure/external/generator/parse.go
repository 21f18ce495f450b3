package generator

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/tidwall/gjson"

	"github.com/questforge/questbot/internal/domain/quest"
	"github.com/questforge/questbot/internal/domain/shared"
)

// payload is the JSON shape the model is asked to produce.
type payload struct {
	Title       string   `validate:"required"`
	Description string
	Tasks       []string `validate:"required,min=1,max=10,dive,required"`
	Difficulty  string   `validate:"required,oneof=easy medium hard"`
}

var validate = validator.New()

// Parse extracts a quest from a completion. Models sometimes wrap the JSON
// in a code fence or nest it under a "quest" key; both are accepted.
func Parse(content string, t quest.Type) (*quest.Generated, error) {
	raw := extractJSON(content)
	if raw == "" || !gjson.Valid(raw) {
		return nil, shared.Generation("Parse", "completion is not a JSON object", nil)
	}

	root := gjson.Parse(raw)
	if nested := root.Get("quest"); nested.IsObject() {
		root = nested
	}

	p := payload{
		Title:       strings.TrimSpace(root.Get("title").String()),
		Description: strings.TrimSpace(root.Get("description").String()),
		Difficulty:  strings.ToLower(strings.TrimSpace(root.Get("difficulty").String())),
	}
	for _, task := range root.Get("tasks").Array() {
		text := task.String()
		if task.IsObject() {
			text = firstString(task, "text", "title", "task")
		}
		p.Tasks = append(p.Tasks, strings.TrimSpace(text))
	}

	if err := validate.Struct(p); err != nil {
		return nil, shared.Generation("Parse", describe(err), err)
	}

	generated := &quest.Generated{
		Title:       p.Title,
		Description: p.Description,
		Tasks:       p.Tasks,
		Difficulty:  quest.Difficulty(p.Difficulty),
	}
	if err := generated.Validate(t); err != nil {
		return nil, err
	}
	return generated, nil
}

func extractJSON(content string) string {
	s := strings.TrimSpace(content)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
		s = strings.TrimSpace(s)
	}

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}

func firstString(r gjson.Result, keys ...string) string {
	for _, k := range keys {
		if v := r.Get(k); v.Exists() {
			return v.String()
		}
	}
	return ""
}

func describe(err error) string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok || len(verrs) == 0 {
		return "invalid payload"
	}
	fe := verrs[0]
	return fmt.Sprintf("field %s failed on %q", strings.ToLower(fe.Field()), fe.Tag())
}
