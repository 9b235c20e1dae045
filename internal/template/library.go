package template

import (
	"embed"
	"fmt"
	"io/fs"
	"iter"
	"os"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/sahilm/fuzzy"
	"gopkg.in/yaml.v3"

	"github.com/hugo-lorenzo-mato/teamflow/internal/catalog"
	"github.com/hugo-lorenzo-mato/teamflow/internal/core"
	"github.com/hugo-lorenzo-mato/teamflow/internal/nodeconfig"
)

//go:embed templates/*.yaml
var embeddedFS embed.FS

var (
	defaultOnce    sync.Once
	defaultLibrary *Library
)

// Default returns the library of embedded templates. It panics if an
// embedded template is invalid.
func Default() *Library {
	defaultOnce.Do(func() {
		lib, err := Load(catalog.Default(), nodeconfig.NewStore())
		if err != nil {
			panic(fmt.Sprintf("template: embedded templates: %v", err))
		}
		defaultLibrary = lib
	})
	return defaultLibrary
}

// Library is a read-only set of templates keyed by id.
type Library struct {
	catalog   *catalog.Catalog
	store     *nodeconfig.Store
	templates map[string]*Template
	ids       []string // sorted
	newID     func() string
}

// Load builds a library from the embedded templates followed by every
// *.yaml file in dirs. A template in a directory replaces an earlier one
// with the same id unless its version is lower.
func Load(cat *catalog.Catalog, store *nodeconfig.Store, dirs ...string) (*Library, error) {
	lib := newLibrary(cat, store)
	if err := lib.loadFS(embeddedFS, "templates"); err != nil {
		return nil, err
	}
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := lib.loadFS(os.DirFS(dir), "."); err != nil {
			return nil, fmt.Errorf("loading templates from %s: %w", dir, err)
		}
	}
	return lib, nil
}

// New builds a library from in-memory templates.
func New(cat *catalog.Catalog, store *nodeconfig.Store, templates ...*Template) (*Library, error) {
	lib := newLibrary(cat, store)
	for _, t := range templates {
		if err := lib.add(t.clone()); err != nil {
			return nil, err
		}
	}
	return lib, nil
}

func newLibrary(cat *catalog.Catalog, store *nodeconfig.Store) *Library {
	return &Library{
		catalog:   cat,
		store:     store,
		templates: make(map[string]*Template),
		newID:     uuid.NewString,
	}
}

func (l *Library) loadFS(fsys fs.FS, dir string) error {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}
		name := path.Join(dir, entry.Name())
		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			return err
		}
		t, err := Parse(data)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		if err := l.add(t); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

// Parse decodes one template document. It does not validate it.
func Parse(data []byte) (*Template, error) {
	var t Template
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parsing template: %w", err)
	}
	return &t, nil
}

func (l *Library) add(t *Template) error {
	if err := l.validate(t); err != nil {
		return err
	}
	if existing, ok := l.templates[t.ID]; ok {
		if t.Version < existing.Version {
			return nil
		}
	} else {
		l.ids = append(l.ids, t.ID)
		sort.Strings(l.ids)
	}
	l.templates[t.ID] = t
	return nil
}

// validate checks t and resolves each agent's type and configuration
// overrides in place.
func (l *Library) validate(t *Template) error {
	if t.ID == "" {
		return core.ErrValidation(core.CodeInvalidNode, "template id cannot be empty")
	}
	if t.Name == "" {
		return invalid(t, "name cannot be empty")
	}
	if !t.Complexity.Valid() {
		return invalid(t, fmt.Sprintf("unknown complexity %q", t.Complexity))
	}
	return l.resolve(t)
}

// resolve checks the agents and edges of t and fills in each agent's type
// and configuration overrides.
func (l *Library) resolve(t *Template) error {
	if len(t.Agents) == 0 {
		return invalid(t, "template has no agents")
	}

	// A scratch graph keyed by template-local keys catches duplicates,
	// dangling edges and cycles.
	g := core.NewGraph(core.GraphID(t.ID), t.Name)
	for i := range t.Agents {
		a := &t.Agents[i]
		if a.Key == "" {
			return invalid(t, fmt.Sprintf("agent %d has no key", i))
		}
		agentType, defaults, err := l.resolveAgent(a.Agent)
		if err != nil {
			return fmt.Errorf("template %s agent %s: %w", t.ID, a.Key, err)
		}
		a.AgentType = agentType
		a.overrides = mergeBags(defaults, a.Configuration)
		if _, err := l.store.Merge(agentType, a.overrides); err != nil {
			return fmt.Errorf("template %s agent %s: %w", t.ID, a.Key, err)
		}
		if err := g.AddNode(core.NewNode(core.NodeID(a.Key), agentType, a.Label)); err != nil {
			return fmt.Errorf("template %s: %w", t.ID, err)
		}
	}
	for i, e := range t.Edges {
		if _, err := g.AddEdge(core.NewEdge(core.EdgeID(fmt.Sprintf("%d", i)), core.NodeID(e.From), core.NodeID(e.To))); err != nil {
			return fmt.Errorf("template %s edge %s->%s: %w", t.ID, e.From, e.To, err)
		}
	}
	return nil
}

// resolveAgent maps a catalog agent id or an agent type to a type and the
// catalog's configuration overrides.
func (l *Library) resolveAgent(ref string) (core.AgentType, map[string]interface{}, error) {
	if l.catalog != nil {
		if def, ok := l.catalog.Agent(ref); ok {
			return def.AgentType, def.DefaultConfiguration, nil
		}
	}
	if t, ok := core.ParseAgentType(ref); ok {
		return t, nil, nil
	}
	return "", nil, core.ErrValidation(core.CodeInvalidNode, fmt.Sprintf("unknown agent %q", ref))
}

func invalid(t *Template, msg string) error {
	return core.ErrValidation(core.CodeInvalidNode, fmt.Sprintf("template %s: %s", t.ID, msg))
}

// ListTemplates yields template summaries in id order. The sequence can be
// iterated any number of times.
func (l *Library) ListTemplates() iter.Seq[Summary] {
	return func(yield func(Summary) bool) {
		for _, id := range l.ids {
			if !yield(l.templates[id].Summary()) {
				return
			}
		}
	}
}

// Len returns the number of templates.
func (l *Library) Len() int { return len(l.ids) }

// Get returns a copy of a template.
func (l *Library) Get(id string) (*Template, error) {
	t, ok := l.templates[id]
	if !ok {
		return nil, core.NewTemplateNotFoundError(id)
	}
	return t.clone(), nil
}

// Instantiate builds a new graph from a template. Node and edge ids are
// freshly generated, so instantiations never share state with each other or
// with the template.
func (l *Library) Instantiate(id string) (*core.Graph, error) {
	t, ok := l.templates[id]
	if !ok {
		return nil, core.NewTemplateNotFoundError(id)
	}
	return l.instantiate(t, false)
}

// Build validates an ad-hoc template, such as a workflow file, and turns it
// into a graph without adding it to the library. Agent keys become node ids.
func (l *Library) Build(t *Template) (*core.Graph, error) {
	if t == nil {
		return nil, core.ErrValidation(core.CodeInvalidNode, "workflow is empty")
	}
	t = t.clone()
	if t.Name == "" {
		t.Name = "Untitled workflow"
	}
	if t.ID == "" {
		t.ID = "workflow"
	}
	if err := l.resolve(t); err != nil {
		return nil, err
	}
	return l.instantiate(t, true)
}

func (l *Library) instantiate(t *Template, keepKeys bool) (*core.Graph, error) {
	g := core.NewGraph(core.GraphID(l.newID()), t.Name)
	ids := make(map[string]core.NodeID, len(t.Agents))
	for _, a := range t.Agents {
		cfg, err := l.store.Merge(a.AgentType, cloneBag(a.overrides))
		if err != nil {
			return nil, err
		}
		nodeID := core.NodeID(l.newID())
		if keepKeys {
			nodeID = core.NodeID(a.Key)
		}
		node := core.NewNode(nodeID, a.AgentType, a.Label).
			WithDescription(a.Description).
			WithConfiguration(cfg).
			WithPosition(a.Position.X, a.Position.Y)
		if err := g.AddNode(node); err != nil {
			return nil, err
		}
		ids[a.Key] = nodeID
	}
	for _, e := range t.Edges {
		if _, err := g.AddEdge(core.NewEdge(core.EdgeID(l.newID()), ids[e.From], ids[e.To])); err != nil {
			return nil, err
		}
	}
	return g, nil
}

// Search fuzzy-matches query against template names and categories.
// An empty query lists everything.
func (l *Library) Search(query string) []Summary {
	if query == "" {
		out := make([]Summary, 0, len(l.ids))
		for s := range l.ListTemplates() {
			out = append(out, s)
		}
		return out
	}
	matches := fuzzy.FindFrom(query, searchSource{l})
	out := make([]Summary, 0, len(matches))
	for _, m := range matches {
		out = append(out, l.templates[l.ids[m.Index]].Summary())
	}
	return out
}

type searchSource struct{ l *Library }

func (s searchSource) String(i int) string {
	t := s.l.templates[s.l.ids[i]]
	return t.Name + " " + t.Category
}

func (s searchSource) Len() int { return len(s.l.ids) }

// Categories returns the distinct template categories, sorted.
func (l *Library) Categories() []string {
	seen := make(map[string]bool)
	var out []string
	for _, id := range l.ids {
		c := l.templates[id].Category
		if c != "" && !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	sort.Strings(out)
	return out
}

func mergeBags(base, overrides map[string]interface{}) map[string]interface{} {
	out := cloneBag(base)
	if out == nil {
		out = make(map[string]interface{}, len(overrides))
	}
	for k, v := range overrides {
		out[k] = v
	}
	return out
}
