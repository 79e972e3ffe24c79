package assessment

import (
	_ "embed"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalogYAML []byte

// Catalog is the immutable question registry. It is safe for concurrent use.
type Catalog struct {
	version   string
	domains   []string
	questions []*Question
	byID      map[string]*Question
	// per-domain question ids in catalog order; indexes back the session pointer
	byDomain    map[string][]string
	domainIndex map[string]int
}

type catalogFile struct {
	Version   string      `yaml:"version"`
	Domains   []string    `yaml:"domains"`
	Questions []*Question `yaml:"questions"`
}

var loadDefault = sync.OnceValues(func() (*Catalog, error) {
	return ParseCatalog(defaultCatalogYAML)
})

// DefaultCatalog returns the embedded onboarding catalog.
func DefaultCatalog() (*Catalog, error) {
	return loadDefault()
}

// ParseCatalog decodes and validates a YAML catalog.
func ParseCatalog(data []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	if len(f.Questions) == 0 {
		return nil, fmt.Errorf("catalog has no questions")
	}

	c := &Catalog{
		version:     f.Version,
		domains:     f.Domains,
		byID:        make(map[string]*Question, len(f.Questions)),
		byDomain:    make(map[string][]string),
		domainIndex: make(map[string]int, len(f.Domains)),
	}
	for i, d := range f.Domains {
		if _, dup := c.domainIndex[d]; dup {
			return nil, fmt.Errorf("duplicate domain: %s", d)
		}
		c.domainIndex[d] = i
	}

	for _, q := range f.Questions {
		if q.ID == "" {
			return nil, fmt.Errorf("question without id")
		}
		if _, dup := c.byID[q.ID]; dup {
			return nil, fmt.Errorf("duplicate question id: %s", q.ID)
		}
		if !validQuestionTypes[q.Type] {
			return nil, fmt.Errorf("question %s: invalid type %q", q.ID, q.Type)
		}
		if _, ok := c.domainIndex[q.Domain]; !ok {
			return nil, fmt.Errorf("question %s: unknown domain %q", q.ID, q.Domain)
		}
		if q.Type == TypeClinicalSelect && len(q.Options) == 0 {
			return nil, fmt.Errorf("question %s: clinical_select requires options", q.ID)
		}
		c.questions = append(c.questions, q)
		c.byID[q.ID] = q
		c.byDomain[q.Domain] = append(c.byDomain[q.Domain], q.ID)
	}
	return c, nil
}

// Version is the catalog version reported in submission metadata.
func (c *Catalog) Version() string { return c.version }

// Domains returns the domain order used by the session pointer.
func (c *Catalog) Domains() []string {
	out := make([]string, len(c.domains))
	copy(out, c.domains)
	return out
}

// Question returns a copy of the question with the given id.
func (c *Catalog) Question(id string) (*Question, error) {
	q, ok := c.byID[id]
	if !ok {
		return nil, &UnknownQuestionError{QuestionID: id}
	}
	return q.clone(), nil
}

func (c *Catalog) lookup(id string) (*Question, bool) {
	q, ok := c.byID[id]
	return q, ok
}

// Position returns the pointer (domain index, index within domain) of a question.
func (c *Catalog) Position(id string) (domainIndex, questionIndex int, err error) {
	q, ok := c.byID[id]
	if !ok {
		return 0, 0, &UnknownQuestionError{QuestionID: id}
	}
	domainIndex = c.domainIndex[q.Domain]
	for i, qid := range c.byDomain[q.Domain] {
		if qid == id {
			return domainIndex, i, nil
		}
	}
	return domainIndex, 0, nil
}

// QuestionAt resolves a session pointer back to a question.
func (c *Catalog) QuestionAt(domainIndex, questionIndex int) (*Question, error) {
	if domainIndex < 0 || domainIndex >= len(c.domains) {
		return nil, fmt.Errorf("domain index %d out of range", domainIndex)
	}
	ids := c.byDomain[c.domains[domainIndex]]
	if questionIndex < 0 || questionIndex >= len(ids) {
		return nil, fmt.Errorf("question index %d out of range for domain %s", questionIndex, c.domains[domainIndex])
	}
	return c.Question(ids[questionIndex])
}
