// Package schema provides the charter document schema and the enumeration of
// recognized section names.
//
// The schema is a CUE definition (#Charter) embedded in the binary. Deployments
// can replace it with their own .cue file, which may also declare a
// #Sections list to change the section enumeration.
package schema

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"

	"github.com/alfredjeanlab/charters/internal/model"
)

//go:embed charter.cue
var defaultSchema []byte

// DefaultMaxDocumentBytes caps the canonical size of a charter document.
const DefaultMaxDocumentBytes = 200_000

// Provider validates charter documents and answers section membership.
// A cue.Context is not safe for concurrent use, so validation is serialized.
type Provider struct {
	mu  sync.Mutex
	ctx *cue.Context
	def cue.Value

	sections   []model.SectionName
	sectionSet map[model.SectionName]struct{}

	// MaxDocumentBytes rejects larger documents; zero disables the check.
	MaxDocumentBytes int
}

// New returns a provider for the embedded default schema.
func New() (*Provider, error) {
	return compile(defaultSchema, "charter.cue")
}

// Load returns a provider for the CUE schema at path.
func Load(path string) (*Provider, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema: %w", err)
	}
	return compile(src, path)
}

func compile(src []byte, filename string) (*Provider, error) {
	ctx := cuecontext.New()
	root := ctx.CompileBytes(src, cue.Filename(filename))
	if err := root.Err(); err != nil {
		return nil, fmt.Errorf("compile schema %s: %w", filename, err)
	}

	def := root.LookupPath(cue.ParsePath("#Charter"))
	if !def.Exists() {
		return nil, fmt.Errorf("schema %s: #Charter definition not found", filename)
	}

	sections := model.DefaultSections
	if sv := root.LookupPath(cue.ParsePath("#Sections")); sv.Exists() {
		var names []string
		if err := sv.Decode(&names); err != nil {
			return nil, fmt.Errorf("schema %s: decode #Sections: %w", filename, err)
		}
		sections = make([]model.SectionName, 0, len(names))
		for _, n := range names {
			sections = append(sections, model.SectionName(n))
		}
	}

	p := &Provider{
		ctx:              ctx,
		def:              def,
		sections:         sections,
		sectionSet:       make(map[model.SectionName]struct{}, len(sections)),
		MaxDocumentBytes: DefaultMaxDocumentBytes,
	}
	for _, s := range sections {
		p.sectionSet[s] = struct{}{}
	}
	return p, nil
}

// Sections returns the recognized section names.
func (p *Provider) Sections() []model.SectionName {
	out := make([]model.SectionName, len(p.sections))
	copy(out, p.sections)
	return out
}

// IsSection reports whether name is a recognized section.
func (p *Provider) IsSection(name string) bool {
	_, ok := p.sectionSet[model.SectionName(name)]
	return ok
}

// Validate checks a JSON-encoded document against #Charter.
// It returns a *model.ValidationError describing every violation, or nil.
func (p *Provider) Validate(doc []byte) error {
	if p.MaxDocumentBytes > 0 && len(doc) > p.MaxDocumentBytes {
		return &model.ValidationError{Errors: []model.FieldError{{
			Field:   "document",
			Message: fmt.Sprintf("is %d bytes, limit is %d", len(doc), p.MaxDocumentBytes),
		}}}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	v := p.ctx.CompileBytes(doc, cue.Filename("document.json"))
	if err := v.Err(); err != nil {
		return &model.ValidationError{Errors: []model.FieldError{{Field: "document", Message: "contains invalid JSON"}}}
	}
	if v.Kind() != cue.StructKind {
		return &model.ValidationError{Errors: []model.FieldError{{Field: "document", Message: "must be a JSON object"}}}
	}

	err := p.def.Unify(v).Validate(cue.Concrete(true))
	if err == nil {
		return nil
	}

	var ve model.ValidationError
	for _, e := range cueerrors.Errors(err) {
		field := strings.Join(e.Path(), ".")
		if field == "" {
			field = "document"
		}
		format, args := e.Msg()
		ve.Add(field, fmt.Sprintf(format, args...))
	}
	if !ve.HasErrors() {
		ve.Add("document", err.Error())
	}
	return &ve
}
