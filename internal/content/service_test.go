package content

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"clearner-backend/internal/errs"
)

func setupContent(t *testing.T) *Service {
	t.Helper()

	dir := t.TempDir()
	lesson := `
id: hello-world
title: Hello, World
steps:
  - index: 0
    kind: read
    body: start here
  - index: 1
    kind: run
    expect: "Hello, World"
`
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "go-basics"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "go-basics", "hello-world.yaml"), []byte(lesson), 0o644))

	return NewService(dir)
}

func TestGetLessonConvertsYAMLToJSON(t *testing.T) {
	svc := setupContent(t)

	doc, err := svc.GetLesson("go-basics", "hello-world")
	require.NoError(t, err)

	var parsed map[string]interface{}
	require.NoError(t, json.Unmarshal(doc, &parsed))
	require.Equal(t, "hello-world", parsed["id"])
	require.Equal(t, "Hello, World", parsed["title"])

	steps, ok := parsed["steps"].([]interface{})
	require.True(t, ok)
	require.Len(t, steps, 2)

	first, ok := steps[0].(map[string]interface{})
	require.True(t, ok)
	require.Equal(t, float64(0), first["index"])
	require.Equal(t, "read", first["kind"])
}

func TestGetLessonMissing(t *testing.T) {
	svc := setupContent(t)

	_, err := svc.GetLesson("go-basics", "no-such-lesson")
	require.ErrorIs(t, err, errs.ErrNotFound)

	_, err = svc.GetLesson("no-such-course", "hello-world")
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestGetLessonSanitizesIdentifiers(t *testing.T) {
	svc := setupContent(t)

	// Traversal characters are stripped, not resolved
	_, err := svc.GetLesson("go-basics", "../../etc/passwd")
	require.ErrorIs(t, err, errs.ErrNotFound)

	_, err = svc.GetLesson("../go-basics", "hello-world")
	require.NoError(t, err)

	_, err = svc.GetLesson("", "hello-world")
	require.ErrorIs(t, err, errs.ErrNotFound)
}
