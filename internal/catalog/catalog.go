// Package catalog reads question seed files.
package catalog

import (
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/dukerupert/dailyquestion/internal/model"
)

type entry struct {
	Sequence int64  `yaml:"sequence"`
	Content  string `yaml:"content"`
}

type file struct {
	Questions []entry `yaml:"questions"`
}

// LoadFile reads and validates a seed file.
func LoadFile(path string) ([]model.Question, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Load parses a seed document. Sequences must start at 1 and increase by
// exactly one so every family can always reach the next question.
func Load(r io.Reader) ([]model.Question, error) {
	var doc file
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("catalog is empty")
		}
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	if len(doc.Questions) == 0 {
		return nil, fmt.Errorf("catalog is empty")
	}

	questions := make([]model.Question, 0, len(doc.Questions))
	for i, e := range doc.Questions {
		want := int64(i + 1)
		if e.Sequence != want {
			return nil, fmt.Errorf("question %d: sequence %d, want %d", i+1, e.Sequence, want)
		}
		content := strings.TrimSpace(e.Content)
		if content == "" {
			return nil, fmt.Errorf("question %d: content is empty", e.Sequence)
		}
		questions = append(questions, model.Question{SequenceID: e.Sequence, Content: content})
	}
	return questions, nil
}
