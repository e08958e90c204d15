package content

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"gopkg.in/yaml.v3"

	"clearner-backend/internal/errs"
)

// Lesson documents are authored as YAML files under
// <dir>/<course>/<lessonID>.yaml and served to clients as JSON.

var identifierRe = regexp.MustCompile(`[^a-zA-Z0-9-]`)

type Service struct {
	dir string
}

func NewService(dir string) *Service {
	return &Service{dir: dir}
}

// GetLesson loads a lesson and returns it as a JSON document.
// Course and lesson identifiers are stripped of anything outside
// [a-zA-Z0-9-] so request input cannot traverse the content dir.
func (s *Service) GetLesson(course, lessonID string) (json.RawMessage, error) {
	course = identifierRe.ReplaceAllString(course, "")
	lessonID = identifierRe.ReplaceAllString(lessonID, "")
	if course == "" || lessonID == "" {
		return nil, errs.ErrNotFound
	}

	path := filepath.Join(s.dir, course, lessonID+".yaml")
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errs.ErrNotFound
		}
		return nil, fmt.Errorf("failed to read lesson: %w", err)
	}

	var doc interface{}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse lesson %s/%s: %w", course, lessonID, err)
	}

	out, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode lesson %s/%s: %w", course, lessonID, err)
	}
	return out, nil
}
