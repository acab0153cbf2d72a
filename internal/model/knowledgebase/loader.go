package knowledgebase

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type catalogue struct {
	KnowledgeBases []KnowledgeBase `yaml:"knowledge_bases"`
}

// LoadFile reads a YAML catalogue of knowledge bases:
//
//	knowledge_bases:
//	  - id: support
//	    name: Support
//	    widget: {heading: Support, background_color: "#333", font_color: "#fff"}
//	    documents:
//	      - {title: Hours, content: We are open 9-5.}
func LoadFile(path string) ([]KnowledgeBase, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading knowledge base catalogue: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML catalogue.
func Parse(data []byte) ([]KnowledgeBase, error) {
	var c catalogue
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parsing knowledge base catalogue: %w", err)
	}

	seen := make(map[string]bool, len(c.KnowledgeBases))
	for i, kb := range c.KnowledgeBases {
		if kb.ID == "" {
			return nil, fmt.Errorf("knowledge base #%d: id is required", i)
		}
		if seen[kb.ID] {
			return nil, fmt.Errorf("knowledge base %q: duplicate id", kb.ID)
		}
		seen[kb.ID] = true
	}
	return c.KnowledgeBases, nil
}
